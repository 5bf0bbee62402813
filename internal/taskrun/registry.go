// Package taskrun executes tasks inside remote jobs. Tasks are registered
// at build time under module.name keys; the oneshot runner resolves the key
// it was invoked with, runs the task against the input scratch payload, and
// writes the outcome to the output or error scratch object.
package taskrun

import (
	"context"
	"fmt"
	"sync"
)

// Func is a registered task implementation.
type Func func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// KindError wraps an error with an explicit kind so that the structured
// error record surfaces it to the scheduler as that class of failure.
type KindError struct {
	Kind string
	Err  error
}

// Error implements the error interface.
func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the wrapped error.
func (e *KindError) Unwrap() error {
	return e.Err
}

// Registry maps module.name keys to task implementations.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Func
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Func)}
}

// Register adds a task under module.name. Registering the same key twice
// panics, mirroring duplicate symbol definitions.
func (r *Registry) Register(module, name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := taskKey(module, name)
	if _, exists := r.tasks[key]; exists {
		panic(fmt.Sprintf("task %s already registered", key))
	}
	r.tasks[key] = fn
}

// Lookup resolves a task by module and name.
func (r *Registry) Lookup(module, name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[taskKey(module, name)]
	return fn, ok
}

func taskKey(module, name string) string {
	return module + "." + name
}

// defaultRegistry backs the package-level Register/Lookup used by
// applications linking their tasks into the regatta binary.
var defaultRegistry = NewRegistry()

// Register adds a task to the default registry.
func Register(module, name string, fn Func) {
	defaultRegistry.Register(module, name, fn)
}

// Default returns the default registry.
func Default() *Registry {
	return defaultRegistry
}
