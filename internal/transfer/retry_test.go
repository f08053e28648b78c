package transfer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDecideRetriesRecoverableUpToLimit(t *testing.T) {
	policy := Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	err := Wrap(ErrTransient, "fetch", "connection reset", nil)

	for attempt := 1; attempt <= 3; attempt++ {
		decision := policy.Decide(attempt, err)
		if !decision.Retry {
			t.Fatalf("attempt %d: expected retry", attempt)
		}
	}
	if decision := policy.Decide(4, err); decision.Retry {
		t.Fatal("attempt 4: expected no retry after limit")
	}
}

func TestDecideNeverRetriesNonRecoverable(t *testing.T) {
	policy := Policy{MaxRetries: 3, BaseDelay: time.Second}
	for _, marker := range []error{ErrNotFound, ErrAuth, ErrDiskFull, ErrInvalidArchive, ErrPostProcessing} {
		if decision := policy.Decide(1, Wrap(marker, "fetch", "", nil)); decision.Retry {
			t.Errorf("%v: expected no retry", marker)
		}
	}
	if decision := policy.Decide(1, context.Canceled); decision.Retry {
		t.Error("cancelled: expected no retry")
	}
	if decision := policy.Decide(1, nil); decision.Retry {
		t.Error("nil error: expected no retry")
	}
}

func TestDecideBackoffDoublesAndCaps(t *testing.T) {
	policy := Policy{MaxRetries: 10, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
	err := errors.New("flaky")

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, expected := range want {
		decision := policy.Decide(i+1, err)
		if !decision.Retry {
			t.Fatalf("attempt %d: expected retry", i+1)
		}
		if decision.Delay != expected {
			t.Fatalf("attempt %d: delay = %v, want %v", i+1, decision.Delay, expected)
		}
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	policy := Policy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	err := Wrap(ErrTimeout, "fetch", "deadline", nil)

	first := policy.Decide(2, err)
	second := policy.Decide(2, err)
	if first != second {
		t.Fatalf("expected identical decisions, got %+v and %+v", first, second)
	}
}

func TestRecoverableClassification(t *testing.T) {
	recoverable := []error{
		Wrap(ErrTransient, "fetch", "", nil),
		Wrap(ErrTimeout, "fetch", "", nil),
		Wrap(ErrStalled, "fetch", "", nil),
		errors.New("unadorned"),
	}
	for _, err := range recoverable {
		if !Recoverable(err) {
			t.Errorf("%v: expected recoverable", err)
		}
	}

	fatal := []error{
		Wrap(ErrNotFound, "fetch", "", nil),
		Wrap(ErrAuth, "fetch", "", nil),
		Wrap(ErrDiskFull, "write", "", nil),
		Wrap(ErrInvalidArchive, "extract", "", nil),
		Wrap(ErrPostProcessing, "record", "", nil),
		context.Canceled,
	}
	for _, err := range fatal {
		if Recoverable(err) {
			t.Errorf("%v: expected non-recoverable", err)
		}
	}
}

func TestFailureKindLabels(t *testing.T) {
	cases := map[string]error{
		"stalled":         Wrap(ErrStalled, "fetch", "", nil),
		"timeout":         Wrap(ErrTimeout, "fetch", "", nil),
		"not_found":       Wrap(ErrNotFound, "fetch", "", nil),
		"auth":            Wrap(ErrAuth, "fetch", "", nil),
		"disk_full":       Wrap(ErrDiskFull, "write", "", nil),
		"invalid_archive": Wrap(ErrInvalidArchive, "extract", "", nil),
		"post_processing": Wrap(ErrPostProcessing, "record", "", nil),
		"cancelled":       context.Canceled,
		"transient":       errors.New("who knows"),
	}
	for want, err := range cases {
		if got := FailureKind(err); got != want {
			t.Errorf("FailureKind(%v) = %q, want %q", err, got, want)
		}
	}
	if got := FailureKind(nil); got != "" {
		t.Errorf("FailureKind(nil) = %q, want empty", got)
	}
}
