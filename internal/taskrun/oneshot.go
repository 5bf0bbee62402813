package taskrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/ShayCichocki/regatta/internal/codepack"
	"github.com/ShayCichocki/regatta/internal/scratch"
)

// Request describes one oneshot invocation, carrying the full scratch URIs
// the submitting executor derived from the eval hash.
type Request struct {
	// Module and Task identify the registered task to run.
	Module string
	Task   string
	// ImportPath is accepted for interface parity with dynamically loaded
	// workflows; registered tasks resolve by key alone.
	ImportPath string
	// CodeRef is the optional code bundle to unpack before running.
	CodeRef string
	// InputURI, OutputURI, ErrorURI are the scratch objects for this call.
	InputURI  string
	OutputURI string
	ErrorURI  string
}

// ArrayChild is one entry of an array manifest.
type ArrayChild struct {
	Module     string `json:"module"`
	Task       string `json:"task"`
	ImportPath string `json:"import_path,omitempty"`
	InputURI   string `json:"input"`
	OutputURI  string `json:"output"`
	ErrorURI   string `json:"error"`
}

// ArrayManifest lists the per-child work items of one array submission, in
// child index order.
type ArrayManifest struct {
	Children []ArrayChild `json:"children"`
}

// Oneshot runs a single task invocation inside a remote job.
type Oneshot struct {
	store    scratch.Store
	registry *Registry
	workDir  string
}

// NewOneshot creates a runner using the given store, registry, and work
// directory for unpacked code bundles.
func NewOneshot(store scratch.Store, registry *Registry, workDir string) *Oneshot {
	if registry == nil {
		registry = defaultRegistry
	}
	return &Oneshot{store: store, registry: registry, workDir: workDir}
}

// Run executes the request, writing output XOR error scratch. The returned
// error reports the task outcome for the process exit code; the scratch
// record is the authoritative result channel.
func (o *Oneshot) Run(ctx context.Context, req *Request) error {
	if req.CodeRef != "" {
		data, err := o.store.Get(ctx, req.CodeRef)
		if err != nil {
			return o.fail(ctx, req.ErrorURI, &scratch.ErrorRecord{
				Kind:    "CodeBundleError",
				Message: fmt.Sprintf("fetch code bundle %s: %v", req.CodeRef, err),
			})
		}
		if err := codepack.ExtractTar(data, o.workDir); err != nil {
			return o.fail(ctx, req.ErrorURI, &scratch.ErrorRecord{
				Kind:    "CodeBundleError",
				Message: fmt.Sprintf("unpack code bundle: %v", err),
			})
		}
	}

	payload, err := o.readInput(ctx, req.InputURI)
	if err != nil {
		return o.fail(ctx, req.ErrorURI, &scratch.ErrorRecord{
			Kind:    "InputError",
			Message: err.Error(),
		})
	}

	fn, ok := o.registry.Lookup(req.Module, req.Task)
	if !ok {
		return o.fail(ctx, req.ErrorURI, &scratch.ErrorRecord{
			Kind:    "TaskNotFound",
			Message: fmt.Sprintf("no task %s.%s registered", req.Module, req.Task),
		})
	}

	value, taskErr := o.invoke(ctx, fn, payload)
	if taskErr != nil {
		return o.fail(ctx, req.ErrorURI, recordFromError(taskErr))
	}

	data, err := json.Marshal(value)
	if err != nil {
		return o.fail(ctx, req.ErrorURI, &scratch.ErrorRecord{
			Kind:    "OutputError",
			Message: fmt.Sprintf("encode result: %v", err),
		})
	}
	if err := o.store.Put(ctx, req.OutputURI, data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// RunArrayChild resolves the child work item at index from the manifest and
// runs it.
func (o *Oneshot) RunArrayChild(ctx context.Context, manifestURI string, index int) error {
	data, err := o.store.Get(ctx, manifestURI)
	if err != nil {
		return fmt.Errorf("fetch array manifest %s: %w", manifestURI, err)
	}
	var manifest ArrayManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("decode array manifest: %w", err)
	}
	if index < 0 || index >= len(manifest.Children) {
		return fmt.Errorf("array index %d out of range (%d children)", index, len(manifest.Children))
	}

	child := manifest.Children[index]
	return o.Run(ctx, &Request{
		Module:     child.Module,
		Task:       child.Task,
		ImportPath: child.ImportPath,
		InputURI:   child.InputURI,
		OutputURI:  child.OutputURI,
		ErrorURI:   child.ErrorURI,
	})
}

// invoke runs the task, converting panics into errors carrying the stack.
func (o *Oneshot) invoke(ctx context.Context, fn Func, payload scratch.InputPayload) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return fn(ctx, payload.Args, payload.Kwargs)
}

func (o *Oneshot) readInput(ctx context.Context, uri string) (scratch.InputPayload, error) {
	var payload scratch.InputPayload
	data, err := o.store.Get(ctx, uri)
	if err != nil {
		return payload, fmt.Errorf("fetch input %s: %w", uri, err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode input: %w", err)
	}
	return payload, nil
}

// fail writes the error record and returns it as the process outcome.
func (o *Oneshot) fail(ctx context.Context, errorURI string, rec *scratch.ErrorRecord) error {
	data, err := json.Marshal(rec)
	if err == nil {
		// Best effort: a failed write leaves no error object, which the
		// executor reports as an infrastructure failure.
		_ = o.store.Put(ctx, errorURI, data)
	}
	return rec
}

// panicError carries a recovered panic and its stack.
type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// recordFromError builds the structured error record written to scratch.
func recordFromError(err error) *scratch.ErrorRecord {
	var kindErr *KindError
	if errors.As(err, &kindErr) {
		return &scratch.ErrorRecord{Kind: kindErr.Kind, Message: kindErr.Err.Error()}
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return &scratch.ErrorRecord{
			Kind:      "Panic",
			Message:   fmt.Sprintf("%v", pe.value),
			Traceback: strings.Split(strings.TrimSpace(pe.stack), "\n"),
		}
	}
	var rec *scratch.ErrorRecord
	if errors.As(err, &rec) {
		return rec
	}
	return &scratch.ErrorRecord{Kind: "Error", Message: err.Error()}
}
