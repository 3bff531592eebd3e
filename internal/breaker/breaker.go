// Package breaker implements a small closed/open/half-open circuit
// breaker used by every external client adapter (Telegram, LLM, Whisper,
// PIX gateway), per spec §5's "process-scoped context object" design
// note: state lives here, not in ad-hoc package globals.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned by Run when the breaker is open and not yet due for
// a half-open probe.
type ErrOpen struct {
	Name string
}

func (e *ErrOpen) Error() string { return fmt.Sprintf("breaker %q is open", e.Name) }

// Breaker trips open after FailMax consecutive failures and stays open for
// Timeout before allowing a single half-open probe.
type Breaker struct {
	mu sync.Mutex

	name     string
	failMax  int
	timeout  time.Duration

	state       State
	failures    int
	openedAt    time.Time
	probeInFlight bool
}

// New builds a Breaker named name, tripping after failMax consecutive
// failures and staying open for timeout.
func New(name string, failMax int, timeout time.Duration) *Breaker {
	if failMax <= 0 {
		failMax = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Breaker{name: name, failMax: failMax, timeout: timeout, state: Closed}
}

// allow decides whether a call may proceed right now, marking a half-open
// probe in flight if so.
func (b *Breaker) allow() (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, false
	case Open:
		if time.Since(b.openedAt) < b.timeout {
			return false, false
		}
		if b.probeInFlight {
			return false, false
		}
		b.state = HalfOpen
		b.probeInFlight = true
		return true, true
	case HalfOpen:
		return false, false
	}
	return false, false
}

func (b *Breaker) recordSuccess(wasProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
	b.probeInFlight = false
}

func (b *Breaker) recordFailure(wasProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wasProbe {
		// Probe failed: stay open, restart the timeout window.
		b.state = Open
		b.openedAt = time.Now()
		b.probeInFlight = false
		return
	}
	b.failures++
	if b.failures >= b.failMax {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// State returns the current breaker state (for health/metrics exposition).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Run executes fn if the breaker allows it, updating state from the
// outcome. Returns ErrOpen without calling fn when the breaker is open.
func (b *Breaker) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	allowed, wasProbe := b.allow()
	if !allowed {
		return &ErrOpen{Name: b.name}
	}

	err := fn(ctx)
	if err != nil {
		b.recordFailure(wasProbe)
		return err
	}
	b.recordSuccess(wasProbe)
	return nil
}
