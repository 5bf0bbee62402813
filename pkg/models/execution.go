package models

import (
	"fmt"
	"sort"
	"strings"
)

// ExecState represents the lifecycle state of an execution inside the
// cluster executor.
type ExecState string

const (
	// ExecStateQueued indicates the execution was accepted from the scheduler.
	ExecStateQueued ExecState = "queued"
	// ExecStateBatched indicates the execution is buffered by the job arrayer.
	ExecStateBatched ExecState = "batched"
	// ExecStateSubmitted indicates a remote job exists for the execution.
	ExecStateSubmitted ExecState = "submitted"
	// ExecStateMonitoring indicates the polling loop is tracking the remote job.
	ExecStateMonitoring ExecState = "monitoring"
	// ExecStateDone indicates a result was delivered to the scheduler.
	ExecStateDone ExecState = "done"
	// ExecStateFailed indicates an error was delivered to the scheduler.
	ExecStateFailed ExecState = "failed"
)

// Valid returns true if the state is a known value.
func (s ExecState) Valid() bool {
	switch s {
	case ExecStateQueued, ExecStateBatched, ExecStateSubmitted,
		ExecStateMonitoring, ExecStateDone, ExecStateFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for states that have delivered an outcome.
func (s ExecState) Terminal() bool {
	return s == ExecStateDone || s == ExecStateFailed
}

// Options holds the resource requests for a single execution. Options are
// forwarded verbatim to the backend submission call; the executor itself
// interprets none of them beyond grouping compatible executions into array
// submissions.
type Options struct {
	// VCPUs is the number of virtual CPUs requested.
	VCPUs int `json:"vcpus" yaml:"vcpus"`
	// MemoryGB is the requested memory in gigabytes.
	MemoryGB int `json:"memory_gb" yaml:"memory_gb"`
	// GPUs is the number of GPUs requested.
	GPUs int `json:"gpus" yaml:"gpus"`
	// Retries is the backend-level retry count for infrastructure restarts.
	// It never triggers orchestrator-side resubmission.
	Retries int `json:"retries" yaml:"retries"`
	// Role is the identity the remote job assumes, if any.
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
	// Labels are custom labels attached to the remote job.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// DefaultOptions returns the resource defaults applied when a submission
// leaves a field unset.
func DefaultOptions() Options {
	return Options{
		VCPUs:    1,
		MemoryGB: 4,
		GPUs:     0,
		Retries:  1,
	}
}

// WithDefaults fills zero-valued fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.VCPUs == 0 {
		o.VCPUs = def.VCPUs
	}
	if o.MemoryGB == 0 {
		o.MemoryGB = def.MemoryGB
	}
	if o.Retries == 0 {
		o.Retries = def.Retries
	}
	return o
}

// Signature returns the compatibility key used by the job arrayer. Two
// executions may share an array submission only if their signatures match
// exactly.
func (o Options) Signature() string {
	var b strings.Builder
	fmt.Fprintf(&b, "c%d-m%d-g%d-r%d-role=%s", o.VCPUs, o.MemoryGB, o.GPUs, o.Retries, o.Role)
	if len(o.Labels) > 0 {
		keys := make([]string, 0, len(o.Labels))
		for k := range o.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "-%s=%s", k, o.Labels[k])
		}
	}
	return b.String()
}

// Execution is a single logical task invocation handed to the executor by
// the scheduler. The executor treats it as read-only; EvalHash is the
// correlation key between the execution, its scratch paths, and any remote
// job.
type Execution struct {
	// ID is the scheduler-local identifier, used for result delivery.
	ID string `json:"id"`
	// EvalHash is the stable content hash of the task and its arguments.
	EvalHash string `json:"eval_hash"`
	// TaskName is the name of the task to run.
	TaskName string `json:"task_name"`
	// Module is the module the remote entrypoint loads the task from.
	Module string `json:"module"`
	// ImportPath is an optional path prepended before loading the module.
	ImportPath string `json:"import_path,omitempty"`
	// Options are the resource requests for this execution.
	Options Options `json:"options"`
}
