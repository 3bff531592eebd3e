// Package apperr defines the error taxonomy of spec §7. Errors are
// classified by small marker interfaces rather than by type-name string
// matching, so the task runtime's retry/dead-letter decision is a single
// switch in queue.Runtime's process step.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError is malformed input; never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// AuthError is a missing/invalid secret or unauthorized admin action.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// RateLimitedError signals a rate-limit or cooldown. An open circuit
// breaker reports *breaker.ErrOpen instead.
// Retriable by the scheduler after RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}
func (e *RateLimitedError) Retriable() bool { return true }

// TransientExternalError is a 5xx, timeout, or connection reset from an
// external adapter. Retried with backoff up to max-retries.
type TransientExternalError struct {
	Adapter string
	Cause   error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("transient error from %s: %v", e.Adapter, e.Cause)
}
func (e *TransientExternalError) Unwrap() error   { return e.Cause }
func (e *TransientExternalError) Retriable() bool { return true }

// PermanentExternalError is a 4xx (other than 429), unresolvable media
// reference, or invalid token. The task moves to dead-letter.
type PermanentExternalError struct {
	Adapter string
	Cause   error
}

func (e *PermanentExternalError) Error() string {
	return fmt.Sprintf("permanent error from %s: %v", e.Adapter, e.Cause)
}
func (e *PermanentExternalError) Unwrap() error { return e.Cause }
func (e *PermanentExternalError) Fatal() bool    { return true }

// ConsistencyError is a stale inactivity/campaign version or CAS failure.
// The workflow must exit silently without retry.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string { return "consistency: " + e.Reason }
func (e *ConsistencyError) Silent() bool  { return true }

// InsufficientCreditsError is a failed pre-check for a non-unlimited admin.
type InsufficientCreditsError struct {
	AdminID        int64
	EstimatedCents int64
	BalanceCents   int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: admin=%d balance=%d estimate=%d", e.AdminID, e.BalanceCents, e.EstimatedCents)
}
func (e *InsufficientCreditsError) Silent() bool { return true }

// ConflictError is a unique-constraint violation treated as "already
// handled" — a success exit, not a failure.
type ConflictError struct {
	Resource string
}

func (e *ConflictError) Error() string  { return "conflict: " + e.Resource + " already exists" }
func (e *ConflictError) Handled() bool  { return true }

// Retriable reports whether err (or any error it wraps) should be retried
// with backoff by the task runtime.
func Retriable(err error) bool {
	var r interface{ Retriable() bool }
	if errors.As(err, &r) {
		return r.Retriable()
	}
	return false
}

// Fatal reports whether err should be sent straight to dead-letter.
func Fatal(err error) bool {
	var f interface{ Fatal() bool }
	if errors.As(err, &f) {
		return f.Fatal()
	}
	return false
}

// Silent reports whether err should abort processing without logging it
// as a failure (consistency errors, silent credit drops).
func Silent(err error) bool {
	var s interface{ Silent() bool }
	if errors.As(err, &s) {
		return s.Silent()
	}
	return false
}

// Handled reports whether err actually represents success (e.g. a
// conflict from a concurrent "first writer wins" insert).
func Handled(err error) bool {
	var h interface{ Handled() bool }
	if errors.As(err, &h) {
		return h.Handled()
	}
	return false
}
