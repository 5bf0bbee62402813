package models

import "time"

// JobStatus is the backend-native status of a remote job.
type JobStatus string

const (
	// JobStatusPending indicates the job is accepted but not yet running.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusSucceeded indicates the job finished with a zero exit.
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed indicates the job finished unsuccessfully.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true once the backend will not change the status again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// RemoteJob is a unit of work as represented by the compute backend. The
// executor creates remote jobs on submission or discovers them during
// startup reconciliation; it never deletes them.
type RemoteJob struct {
	// RemoteID is the backend-assigned identifier.
	RemoteID string `json:"remote_id"`
	// Name is the derived job name embedding the eval hash.
	Name string `json:"name"`
	// Status is the last observed backend status.
	Status JobStatus `json:"status"`
	// SubmittedAt is when the job was submitted, if known.
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
}
