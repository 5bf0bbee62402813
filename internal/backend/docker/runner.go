package docker

import (
	"context"
	"os/exec"
)

// CommandRunner defines the interface for invoking the container CLI.
// This abstraction allows mocking container commands in tests.
type CommandRunner interface {
	// Run executes a command and returns its stdout. Stderr is folded into
	// the returned error on failure.
	Run(ctx context.Context, name string, args ...string) (output []byte, err error)
}

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

// Run executes a command and returns its stdout.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// Verify ExecRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ExecRunner)(nil)
