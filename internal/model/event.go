package model

import (
	"time"

	"modelmine/pkg/constants"
)

// ProgressEvent is one progress notification for a job.
type ProgressEvent struct {
	JobID      string                 `json:"jobId"`
	Status     constants.JobStatus    `json:"status"`
	Progress   *int                   `json:"progress,omitempty"`
	Step       int                    `json:"step,omitempty"`
	TotalSteps int                    `json:"totalSteps,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Snapshot   bool                   `json:"snapshot,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// IsTerminal reports whether the event closes the job's stream.
func (e ProgressEvent) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// SnapshotEvent builds the reconcile event sent to a (re)connecting subscriber.
func SnapshotEvent(job *Job) ProgressEvent {
	progress := job.Progress
	return ProgressEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  &progress,
		Result:    job.Result,
		Error:     job.Error,
		Snapshot:  true,
		Timestamp: time.Now(),
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
