package scratch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// InputPayload is the serialized call written to the input scratch object
// before submission and read back by the remote entrypoint.
type InputPayload struct {
	// Args are the positional arguments for the task.
	Args []any `json:"args"`
	// Kwargs are the keyword arguments for the task.
	Kwargs map[string]any `json:"kwargs"`
}

// ErrorRecord is the structured error written to the error scratch object
// when a task raises. Kind distinguishes error classes so callers can react
// without parsing messages.
type ErrorRecord struct {
	Kind      string   `json:"kind"`
	Message   string   `json:"message"`
	Traceback []string `json:"traceback,omitempty"`
}

// Error implements the error interface.
func (e *ErrorRecord) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Scratch provides the per-execution scratch layout on top of a Store.
// For a given eval hash, input is written exactly once before submission and
// output XOR error exactly once after completion.
type Scratch struct {
	root  string
	store Store
}

// New creates a Scratch rooted at the given URI, choosing a backing store
// from the root scheme.
func New(ctx context.Context, root string) (*Scratch, error) {
	store, err := NewStore(ctx, root)
	if err != nil {
		return nil, err
	}
	return &Scratch{root: strings.TrimRight(root, "/"), store: store}, nil
}

// NewWithStore creates a Scratch with an explicit backing store.
func NewWithStore(root string, store Store) *Scratch {
	return &Scratch{root: strings.TrimRight(root, "/"), store: store}
}

// Root returns the scratch root URI.
func (s *Scratch) Root() string {
	return s.root
}

// Store returns the backing store.
func (s *Scratch) Store() Store {
	return s.store
}

// InputPath returns the input object URI for an eval hash.
func (s *Scratch) InputPath(evalHash string) string {
	return s.jobPath(evalHash, "input")
}

// OutputPath returns the output object URI for an eval hash.
func (s *Scratch) OutputPath(evalHash string) string {
	return s.jobPath(evalHash, "output")
}

// ErrorPath returns the error object URI for an eval hash.
func (s *Scratch) ErrorPath(evalHash string) string {
	return s.jobPath(evalHash, "error")
}

// CodePath returns the URI for an uploaded code bundle.
func (s *Scratch) CodePath(filename string) string {
	return s.root + "/code/" + filename
}

// ArrayManifestPath returns the URI for an array submission manifest.
func (s *Scratch) ArrayManifestPath(arrayHash string) string {
	return s.root + "/arrays/" + arrayHash + "/manifest"
}

func (s *Scratch) jobPath(evalHash, kind string) string {
	return s.root + "/jobs/" + evalHash + "/" + kind
}

// WriteInput serializes and stores the call payload for an eval hash.
func (s *Scratch) WriteInput(ctx context.Context, evalHash string, payload InputPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	return s.store.Put(ctx, s.InputPath(evalHash), data)
}

// ReadInput loads the call payload for an eval hash.
func (s *Scratch) ReadInput(ctx context.Context, evalHash string) (InputPayload, error) {
	var payload InputPayload
	data, err := s.store.Get(ctx, s.InputPath(evalHash))
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("decode input: %w", err)
	}
	return payload, nil
}

// WriteOutput serializes and stores a task result.
func (s *Scratch) WriteOutput(ctx context.Context, evalHash string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return s.store.Put(ctx, s.OutputPath(evalHash), data)
}

// ReadOutput loads and deserializes a task result. Returns ErrNotExist if
// the job finished without writing one.
func (s *Scratch) ReadOutput(ctx context.Context, evalHash string) (any, error) {
	data, err := s.store.Get(ctx, s.OutputPath(evalHash))
	if err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	return value, nil
}

// WriteError serializes and stores a structured task error.
func (s *Scratch) WriteError(ctx context.Context, evalHash string, rec *ErrorRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode error record: %w", err)
	}
	return s.store.Put(ctx, s.ErrorPath(evalHash), data)
}

// ReadError loads the structured task error for an eval hash. Returns
// ErrNotExist when the job died without writing one, which the caller
// surfaces as an infrastructure failure rather than an application error.
func (s *Scratch) ReadError(ctx context.Context, evalHash string) (*ErrorRecord, error) {
	data, err := s.store.Get(ctx, s.ErrorPath(evalHash))
	if err != nil {
		return nil, err
	}
	var rec ErrorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode error record: %w", err)
	}
	return &rec, nil
}
