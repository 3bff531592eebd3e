package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/breaker"
)

func TestCompleteReturnsTextAndUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "gpt-test", 5*time.Second, breaker.New("llm-test", 5, time.Minute), nil)
	reply, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, 0.7)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply.Text != "hello there" {
		t.Fatalf("unexpected text: %q", reply.Text)
	}
	if reply.Usage.PromptTokens != 10 || reply.Usage.CompletionTokens != 5 {
		t.Fatalf("unexpected usage: %+v", reply.Usage)
	}
}

func TestCompleteClassifies429AsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "gpt-test", 5*time.Second, breaker.New("llm-test", 5, time.Minute), nil)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, 0.7)
	if !apperr.Retriable(err) {
		t.Fatalf("expected retriable error, got %v", err)
	}
}

func TestCompleteClassifies400AsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "gpt-test", 5*time.Second, breaker.New("llm-test", 5, time.Minute), nil)
	_, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, 0.7)
	if !apperr.Fatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}
