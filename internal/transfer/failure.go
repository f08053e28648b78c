package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure kind sentinels. Attempts that fail with a recoverable marker are
// retried up to the configured limit; non-recoverable markers fail the task
// immediately.
var (
	ErrTransient      = errors.New("transient failure")
	ErrTimeout        = errors.New("timeout")
	ErrStalled        = errors.New("transfer stalled")
	ErrNotFound       = errors.New("not found")
	ErrAuth           = errors.New("authorization failure")
	ErrDiskFull       = errors.New("disk full")
	ErrInvalidArchive = errors.New("invalid archive")
	ErrPostProcessing = errors.New("post-processing failure")
)

// Request-level sentinels returned by Enqueue.
var (
	ErrDuplicateRequest = errors.New("already queued")
	ErrAlreadyAcquired  = errors.New("already acquired")
	ErrQueueClosed      = errors.New("queue closed")
	ErrUnknownTask      = errors.New("unknown task")
)

// Wrap builds an error message that includes operation context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Recoverable reports whether a failed attempt may be retried.
func Recoverable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStalled):
		// A stall cancels the attempt context, so check it before the
		// cancellation markers it wraps.
		return true
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAuth),
		errors.Is(err, ErrDiskFull),
		errors.Is(err, ErrInvalidArchive),
		errors.Is(err, ErrPostProcessing):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// FailureKind labels a terminal or retried error for progress events and
// operator-facing output.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStalled):
		return "stalled"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrDiskFull):
		return "disk_full"
	case errors.Is(err, ErrInvalidArchive):
		return "invalid_archive"
	case errors.Is(err, ErrPostProcessing):
		return "post_processing"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "transient"
	}
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "transfer failure"
	}
	return strings.Join(parts, ": ")
}
