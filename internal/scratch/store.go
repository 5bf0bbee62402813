// Package scratch implements the content-addressed blob store used to pass
// task inputs, outputs, and errors between the orchestrator and remote jobs.
// Objects are keyed by eval hash under a configured scratch root, which may
// be a local directory or an s3:// prefix.
package scratch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned when a scratch object is absent. The polling loop
// relies on it to tell an application error payload apart from a job that
// died before writing one.
var ErrNotExist = errors.New("scratch object does not exist")

// Store is blob storage addressed by full URI. All operations are blocking
// I/O against a durable store; callers must not issue them from time-critical
// loops without isolation.
type Store interface {
	// Get reads the object at uri. Returns ErrNotExist if absent.
	Get(ctx context.Context, uri string) ([]byte, error)

	// Put writes the object at uri, creating parents as needed.
	Put(ctx context.Context, uri string, data []byte) error

	// Exists reports whether an object is present at uri.
	Exists(ctx context.Context, uri string) (bool, error)
}

// NewStore returns a store appropriate for the given scratch root: an S3
// store for s3:// roots, a local filesystem store otherwise.
func NewStore(ctx context.Context, root string) (Store, error) {
	if strings.HasPrefix(root, "s3://") {
		return NewS3Store(ctx)
	}
	return &FileStore{}, nil
}

// FileStore implements Store on the local filesystem. URIs are plain paths.
type FileStore struct{}

// Get reads the file at uri.
func (s *FileStore) Get(ctx context.Context, uri string) ([]byte, error) {
	data, err := os.ReadFile(uri)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	return data, nil
}

// Put writes the file at uri, creating parent directories.
func (s *FileStore) Put(ctx context.Context, uri string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(uri), 0755); err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	if err := os.WriteFile(uri, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", uri, err)
	}
	return nil
}

// Exists reports whether the file at uri exists.
func (s *FileStore) Exists(ctx context.Context, uri string) (bool, error) {
	_, err := os.Stat(uri)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", uri, err)
	}
	return true, nil
}

// Verify implementations at compile time.
var _ Store = (*FileStore)(nil)
