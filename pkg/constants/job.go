package constants

// Job status constants
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	// JobStatusCanceled is declared for record compatibility; no code path produces it.
	JobStatusCanceled JobStatus = "CANCELED"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can leave this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCanceled
}
