package transfer

import (
	"fmt"
	"time"

	"gantry/internal/progress"
)

// State identifies where a task sits in its lifecycle.
type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

var validTransitions = map[State][]State{
	StateQueued: {StateActive, StateCancelled},
	StateActive: {StateSucceeded, StateFailed, StateCancelled},
}

func validTransition(from, to State) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", from, to)
}

// Request describes a transfer to enqueue.
type Request struct {
	ID        string
	Title     string
	SourceURL string
}

// Task is a point-in-time snapshot of a transfer. Callers receive copies;
// the queue owns the live record.
type Task struct {
	ID          string
	Title       string
	SourceURL   string
	TargetPath  string
	State       State
	Attempt     int
	Bytes       int64
	Total       int64
	Rate        float64
	ETASeconds  int64
	FailureKind string
	Err         string
	EnqueuedAt  time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// task is the queue-internal mutable record. All fields are guarded by the
// queue mutex.
type task struct {
	Task
	cancelAttempt func()
	cancelCause   error
	lastProgress  time.Time
	meter         *progress.Meter
}

func (t *task) snapshot() Task {
	return t.Task
}
