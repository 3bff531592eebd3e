package whisper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vkultra/mitski/internal/apperr"
	"github.com/vkultra/mitski/internal/breaker"
)

func TestTranscribeReturnsTextAndDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("parse multipart form: %v", err)
		}
		if r.MultipartForm.Value["model"][0] != "whisper-1" {
			t.Fatalf("expected model field to be set")
		}
		_, _ = w.Write([]byte(`{"text":"ola mundo","duration":3.5}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "whisper-1", 5*time.Second, breaker.New("whisper-test", 5, time.Minute))
	out, err := c.Transcribe(context.Background(), "audio.ogg", []byte("fake-audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if out.Text != "ola mundo" {
		t.Fatalf("unexpected text: %q", out.Text)
	}
	if out.DurationSeconds != 3.5 {
		t.Fatalf("unexpected duration: %v", out.DurationSeconds)
	}
}

func TestTranscribeClassifiesServerErrorAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "whisper-1", 5*time.Second, breaker.New("whisper-test", 5, time.Minute))
	_, err := c.Transcribe(context.Background(), "audio.ogg", []byte("x"))
	if !apperr.Retriable(err) {
		t.Fatalf("expected retriable error, got %v", err)
	}
}
