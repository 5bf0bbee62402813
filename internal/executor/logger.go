// Package executor implements the cluster executor engine: it turns logical
// task executions into remote job submissions, batches small submissions
// into array jobs, rejoins jobs already running on the backend after a
// restart, and polls job status without blocking the scheduler.
package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pkgLogger is the package-level debug logger used by executor components.
var pkgLogger *DebugLogger
var pkgLoggerMu sync.RWMutex

// SetDebugLogger sets the package-level logger.
func SetDebugLogger(l *DebugLogger) {
	pkgLoggerMu.Lock()
	defer pkgLoggerMu.Unlock()
	pkgLogger = l
}

// debugLog writes a message using the package-level logger.
func debugLog(format string, args ...interface{}) {
	pkgLoggerMu.RLock()
	l := pkgLogger
	pkgLoggerMu.RUnlock()

	if l != nil {
		l.Log(format, args...)
	}
}

// DebugLogger provides debug logging for executor operations. It wraps
// file-based logging with thread-safe access.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLogger creates a logger writing to the specified path.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &DebugLogger{file: f}, nil
}

// Log writes a formatted message with a timestamp.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.file, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
}

// Close closes the underlying file.
func (l *DebugLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
