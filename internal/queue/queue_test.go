package queue

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewTaskAppliesOptionsAndDefaults(t *testing.T) {
	task, err := newTask(QueueAI, "generate_reply", map[string]string{"prompt": "hi"}, WithIdempotencyKey("k1"), WithMaxRetries(5))
	if err != nil {
		t.Fatalf("newTask: %v", err)
	}
	if task.Queue != QueueAI || task.Name != "generate_reply" {
		t.Fatalf("unexpected queue/name: %+v", task)
	}
	if task.IdempotencyKey != "k1" || task.MaxRetries != 5 {
		t.Fatalf("options not applied: %+v", task)
	}
	if task.ID == "" {
		t.Fatalf("expected a generated task id")
	}

	var args map[string]string
	if err := json.Unmarshal(task.Args, &args); err != nil {
		t.Fatalf("args not round-trippable: %v", err)
	}
	if args["prompt"] != "hi" {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestNewTaskDefaultsMaxRetriesToThree(t *testing.T) {
	task, err := newTask(QueueDefault, "noop", nil)
	if err != nil {
		t.Fatalf("newTask: %v", err)
	}
	if task.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", task.MaxRetries)
	}
}

func TestBackoffWithJitterGrowsAndCaps(t *testing.T) {
	small := backoffWithJitter(1)
	if small <= 0 {
		t.Fatalf("expected positive backoff, got %s", small)
	}

	large := backoffWithJitter(20)
	if large > 6*time.Minute {
		t.Fatalf("backoff should be capped near 5 minutes, got %s", large)
	}
	if large < 3*time.Minute {
		t.Fatalf("capped backoff should still be close to 5 minutes, got %s", large)
	}
}

func TestBackoffWithJitterStaysWithinTwentyPercentBand(t *testing.T) {
	base := 4 * time.Second // attempt=2 -> 2^2s
	for i := 0; i < 50; i++ {
		got := backoffWithJitter(2)
		if got < time.Duration(float64(base)*0.8) || got > time.Duration(float64(base)*1.2) {
			t.Fatalf("jittered backoff %s outside ±20%% band around %s", got, base)
		}
	}
}
