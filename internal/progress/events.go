package progress

import "time"

// UnknownTotal marks an event whose total byte count is not known.
const UnknownTotal int64 = -1

// Kind distinguishes the event variants published through the Hub.
type Kind string

const (
	KindTaskState    Kind = "task_state"
	KindTaskProgress Kind = "task_progress"
	KindCopyState    Kind = "copy_state"
	KindCopyProgress Kind = "copy_progress"
	KindVolumeAdded  Kind = "volume_added"
	KindVolumeGone   Kind = "volume_removed"
)

// Event is a single progress or state-change notification. TaskID is set for
// transfer events, JobID for copy events; both carry the artifact identifier.
type Event struct {
	Kind       Kind      `json:"kind"`
	TaskID     string    `json:"task_id,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	State      string    `json:"state,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Bytes      int64     `json:"bytes,omitempty"`
	Total      int64     `json:"total,omitempty"`
	Rate       float64   `json:"rate,omitempty"`
	ETA        int64     `json:"eta_seconds,omitempty"`
	Volume     string    `json:"volume,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HasETA reports whether the event carries a usable time estimate.
func (e Event) HasETA() bool {
	return e.Total != UnknownTotal && e.Total > 0 && e.ETA >= 0 && e.Rate > 0
}
