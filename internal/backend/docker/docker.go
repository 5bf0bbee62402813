// Package docker runs remote jobs as local containers. It is the
// development backend: no array support, one container per job, status read
// back through docker inspect.
package docker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/regatta/internal/backend"
	"github.com/ShayCichocki/regatta/pkg/models"
)

// Config holds docker backend settings.
type Config struct {
	// Binary is the container CLI to invoke. Defaults to "docker".
	Binary string
	// Runner overrides command execution, for tests.
	Runner CommandRunner
}

// Backend submits jobs as containers via the docker CLI.
type Backend struct {
	binary string
	runner CommandRunner
}

// New creates a docker backend.
func New(cfg Config) *Backend {
	binary := cfg.Binary
	if binary == "" {
		binary = "docker"
	}
	runner := cfg.Runner
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Backend{binary: binary, runner: runner}
}

// Name identifies the backend variant.
func (b *Backend) Name() string {
	return "docker"
}

// SupportsArray reports that docker cannot create array jobs.
func (b *Backend) SupportsArray() bool {
	return false
}

// SubmitJob starts a detached container for the request.
func (b *Backend) SubmitJob(ctx context.Context, req *backend.SubmitRequest) (*models.RemoteJob, error) {
	args := []string{"run", "-d", "--name", req.Name}

	keys := make([]string, 0, len(req.Labels))
	for k := range req.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+req.Labels[k])
	}

	opts := req.Options
	if opts.VCPUs > 0 {
		args = append(args, "--cpus", strconv.Itoa(opts.VCPUs))
	}
	if opts.MemoryGB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dg", opts.MemoryGB))
	}
	if opts.GPUs > 0 {
		args = append(args, "--gpus", strconv.Itoa(opts.GPUs))
	}

	args = append(args, req.Image)
	args = append(args, req.Command...)

	out, err := b.runner.Run(ctx, b.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("docker run %s: %w", req.Name, err)
	}

	return &models.RemoteJob{
		RemoteID:    strings.TrimSpace(string(out)),
		Name:        req.Name,
		Status:      models.JobStatusPending,
		SubmittedAt: time.Now(),
	}, nil
}

// SubmitArrayJob always returns ErrArrayUnsupported.
func (b *Backend) SubmitArrayJob(ctx context.Context, req *backend.ArrayRequest) ([]*models.RemoteJob, error) {
	return nil, backend.ErrArrayUnsupported
}

// ListJobs returns containers whose names carry the given prefix.
func (b *Backend) ListJobs(ctx context.Context, namePrefix string) ([]*models.RemoteJob, error) {
	out, err := b.runner.Run(ctx, b.binary,
		"ps", "-a",
		"--filter", "name="+namePrefix,
		"--format", "{{.ID}}\t{{.Names}}\t{{.State}}")
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w", err)
	}

	var jobs []*models.RemoteJob
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		jobs = append(jobs, &models.RemoteJob{
			RemoteID: fields[0],
			Name:     strings.TrimPrefix(fields[1], "/"),
			Status:   mapState(fields[2], 0),
		})
	}
	return jobs, nil
}

// DescribeJobs inspects the given containers in one CLI call. Containers
// that no longer exist are omitted.
func (b *Backend) DescribeJobs(ctx context.Context, remoteIDs []string) ([]*models.RemoteJob, error) {
	if len(remoteIDs) == 0 {
		return nil, nil
	}
	args := []string{"inspect", "-f", "{{.Id}}\t{{.Name}}\t{{.State.Status}}\t{{.State.ExitCode}}"}
	args = append(args, remoteIDs...)

	// docker inspect exits non-zero when any id is unknown but still prints
	// the containers it found; parse whatever came back.
	out, _ := b.runner.Run(ctx, b.binary, args...)

	var jobs []*models.RemoteJob
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			continue
		}
		exitCode, _ := strconv.Atoi(fields[3])
		jobs = append(jobs, &models.RemoteJob{
			// Inspect prints full container ids; callers may hold the short
			// form from docker ps. Report the id the caller asked with.
			RemoteID: requestedID(remoteIDs, fields[0]),
			Name:     strings.TrimPrefix(fields[1], "/"),
			Status:   mapState(fields[2], exitCode),
		})
	}
	return jobs, nil
}

// requestedID maps a full container id back to the id it was queried by.
func requestedID(remoteIDs []string, fullID string) string {
	for _, id := range remoteIDs {
		if strings.HasPrefix(fullID, id) {
			return id
		}
	}
	return fullID
}

// mapState converts a docker container state to a job status.
func mapState(state string, exitCode int) models.JobStatus {
	switch state {
	case "created", "paused":
		return models.JobStatusPending
	case "running", "restarting", "removing":
		return models.JobStatusRunning
	case "exited", "dead":
		if exitCode == 0 {
			return models.JobStatusSucceeded
		}
		return models.JobStatusFailed
	default:
		return models.JobStatusPending
	}
}

var _ backend.Backend = (*Backend)(nil)
