package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestIncAccumulates(t *testing.T) {
	r := NewRegistry()
	r.Inc("webhook_requests_total")
	r.Inc("webhook_requests_total")
	r.Add("webhook_requests_total", 3)
	out := r.WriteText()
	if !strings.Contains(out, "webhook_requests_total 5") {
		t.Fatalf("expected accumulated counter in output, got %q", out)
	}
}

func TestObserveBucketsHistogram(t *testing.T) {
	r := NewRegistry()
	r.Observe("task_duration_seconds", 20*time.Millisecond)
	out := r.WriteText()
	if !strings.Contains(out, "task_duration_seconds_count 1") {
		t.Fatalf("expected histogram count in output, got %q", out)
	}
	if !strings.Contains(out, `task_duration_seconds_bucket{le="0.025"} 1`) {
		t.Fatalf("expected 20ms observation in the 0.025 bucket, got %q", out)
	}
}

func TestLabelsAreEmbeddedInName(t *testing.T) {
	r := NewRegistry()
	r.Inc("webhook_requests_total", "bot_id", "42")
	out := r.WriteText()
	if !strings.Contains(out, `webhook_requests_total{bot_id="42"} 1`) {
		t.Fatalf("expected labeled counter, got %q", out)
	}
}

func TestTimerRecordsElapsed(t *testing.T) {
	r := NewRegistry()
	stop := r.Timer("op_duration_seconds")
	stop()
	out := r.WriteText()
	if !strings.Contains(out, "op_duration_seconds_count 1") {
		t.Fatalf("expected one observation recorded by Timer, got %q", out)
	}
}
