package apperr

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetriableClassifiesRateLimitAndTransient(t *testing.T) {
	if !Retriable(&RateLimitedError{RetryAfter: time.Second}) {
		t.Fatalf("rate limited error should be retriable")
	}
	if !Retriable(&TransientExternalError{Adapter: "telegram", Cause: errors.New("timeout")}) {
		t.Fatalf("transient external error should be retriable")
	}
	if Retriable(&PermanentExternalError{Adapter: "telegram", Cause: errors.New("bad token")}) {
		t.Fatalf("permanent external error should not be retriable")
	}
}

func TestFatalClassifiesPermanentOnly(t *testing.T) {
	if !Fatal(&PermanentExternalError{Adapter: "pix", Cause: errors.New("invalid")}) {
		t.Fatalf("permanent external error should be fatal")
	}
	if Fatal(&ValidationError{Field: "phone", Message: "required"}) {
		t.Fatalf("validation error should not be classified fatal")
	}
}

func TestSilentClassifiesConsistencyAndCredits(t *testing.T) {
	if !Silent(&ConsistencyError{Reason: "stale history version"}) {
		t.Fatalf("consistency error should be silent")
	}
	if !Silent(&InsufficientCreditsError{AdminID: 1, EstimatedCents: 10, BalanceCents: 0}) {
		t.Fatalf("insufficient credits error should be silent")
	}
}

func TestHandledClassifiesConflict(t *testing.T) {
	if !Handled(&ConflictError{Resource: "sale_notification"}) {
		t.Fatalf("conflict error should be handled")
	}
}

func TestClassifiersUnwrapThroughFmtErrorf(t *testing.T) {
	wrapped := fmt.Errorf("processing task: %w", &TransientExternalError{Adapter: "llm", Cause: errors.New("503")})
	if !Retriable(wrapped) {
		t.Fatalf("wrapped transient error should still be retriable")
	}
}

func TestClassifiersDefaultFalseForPlainErrors(t *testing.T) {
	plain := errors.New("boom")
	if Retriable(plain) || Fatal(plain) || Silent(plain) || Handled(plain) {
		t.Fatalf("a plain error should not match any classifier")
	}
}
