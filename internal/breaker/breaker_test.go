package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterFailMax(t *testing.T) {
	b := New("test", 2, time.Minute)
	failing := func(ctx context.Context) error { return errors.New("boom") }

	_ = b.Run(context.Background(), failing)
	if b.State() != Closed {
		t.Fatalf("expected closed after 1 failure, got %s", b.State())
	}
	_ = b.Run(context.Background(), failing)
	if b.State() != Open {
		t.Fatalf("expected open after 2 failures, got %s", b.State())
	}

	err := b.Run(context.Background(), failing)
	var openErr *ErrOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("expected ErrOpen while open, got %v", err)
	}
}

func TestBreakerHalfOpenProbeRecoversOnSuccess(t *testing.T) {
	b := New("test", 1, 10*time.Millisecond)
	_ = b.Run(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	if b.State() != Open {
		t.Fatalf("expected open after 1 failure with failMax=1, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	err := b.Run(context.Background(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("half-open probe should have been allowed through: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreakerHalfOpenProbeReopensOnFailure(t *testing.T) {
	b := New("test", 1, 10*time.Millisecond)
	_ = b.Run(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	err := b.Run(context.Background(), func(ctx context.Context) error { return errors.New("still broken") })
	if err == nil {
		t.Fatalf("expected probe failure to surface")
	}
	if b.State() != Open {
		t.Fatalf("expected reopened after failed probe, got %s", b.State())
	}
}

func TestBreakerRejectsConcurrentProbes(t *testing.T) {
	b := New("test", 1, 10*time.Millisecond)
	_ = b.Run(context.Background(), func(ctx context.Context) error { return errors.New("boom") })
	time.Sleep(20 * time.Millisecond)

	allowed, wasProbe := b.allow()
	if !allowed || !wasProbe {
		t.Fatalf("first caller after timeout should get the probe slot")
	}
	allowed2, _ := b.allow()
	if allowed2 {
		t.Fatalf("a second caller should not be allowed while a probe is in flight")
	}
}
