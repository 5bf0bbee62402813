// Package backend defines the capability contract every remote compute
// backend implements. The cluster executor is written once against this
// interface; container-orchestration clusters, managed batch services, and
// local containers each provide one variant.
package backend

import (
	"context"
	"errors"

	"github.com/ShayCichocki/regatta/pkg/models"
)

// ErrArrayUnsupported is returned by SubmitArrayJob on backends that cannot
// create array jobs. The arrayer falls back to singleton submissions.
var ErrArrayUnsupported = errors.New("backend does not support array jobs")

// SubmitRequest describes one remote job submission.
type SubmitRequest struct {
	// Name is the job name embedding the eval hash.
	Name string
	// Image is the container image to run.
	Image string
	// Command is the full argv executed inside the container.
	Command []string
	// Options are the resource requests, forwarded verbatim.
	Options models.Options
	// Labels are attached to the job for observability and filtering.
	// Reconciliation never reads them; it uses only the name-embedded hash.
	Labels map[string]string
}

// ArrayRequest describes one array submission covering several near
// identical jobs. ChildNames carries the per-child job names in submission
// order; the remote side resolves its own work item from the array index.
type ArrayRequest struct {
	// Name is the array job name.
	Name string
	// ChildNames are the derived names of the children, in order.
	ChildNames []string
	// Image is the container image to run.
	Image string
	// Command is the argv executed by every child.
	Command []string
	// Options are the shared resource requests.
	Options models.Options
	// Labels are attached to the array job.
	Labels map[string]string
}

// Backend is the pluggable compute surface the executor submits to and
// polls. Implementations must be safe for concurrent use: the submission
// path and the polling loop call into the backend from different goroutines.
type Backend interface {
	// Name identifies the backend variant (for logs and journal rows).
	Name() string

	// SupportsArray reports whether SubmitArrayJob is available.
	SupportsArray() bool

	// SubmitJob creates one remote job.
	SubmitJob(ctx context.Context, req *SubmitRequest) (*models.RemoteJob, error)

	// SubmitArrayJob creates one array job and returns a remote job handle
	// per child, in ChildNames order. Returns ErrArrayUnsupported when the
	// backend cannot create array jobs.
	SubmitArrayJob(ctx context.Context, req *ArrayRequest) ([]*models.RemoteJob, error)

	// ListJobs returns the jobs whose names carry the given prefix,
	// including jobs submitted by earlier executor lifetimes.
	ListJobs(ctx context.Context, namePrefix string) ([]*models.RemoteJob, error)

	// DescribeJobs returns current status for the given remote ids in one
	// batched call. Unknown ids are omitted from the result, not errors.
	DescribeJobs(ctx context.Context, remoteIDs []string) ([]*models.RemoteJob, error)
}
