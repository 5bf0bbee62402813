package executor

import "fmt"

// InfraError reports a remote job that failed without leaving a structured
// error record: the platform killed the job (OOM, image pull failure,
// preemption) before the task payload could run or report. Distinct from an
// application error so callers can tell "my code broke" from "the platform
// killed my job".
type InfraError struct {
	// JobName is the derived remote job name.
	JobName string
	// RemoteID is the backend-assigned id, if known.
	RemoteID string
	// Reason describes what was observed.
	Reason string
}

// Error implements the error interface.
func (e *InfraError) Error() string {
	return fmt.Sprintf("infrastructure failure for job %s (%s): %s", e.JobName, e.RemoteID, e.Reason)
}

// SubmitError reports a backend that refused a singleton or array
// submission. Every execution in the rejected group receives it.
type SubmitError struct {
	// JobName is the name of the rejected submission.
	JobName string
	// Err is the backend error.
	Err error
}

// Error implements the error interface.
func (e *SubmitError) Error() string {
	return fmt.Sprintf("submission of %s rejected: %v", e.JobName, e.Err)
}

// Unwrap returns the backend error.
func (e *SubmitError) Unwrap() error {
	return e.Err
}
