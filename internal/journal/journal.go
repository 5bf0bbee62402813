// Package journal provides an SQLite record of execution state transitions.
// The executor writes it best-effort for observability; reconciliation never
// consults it, rejoin decisions come from name-embedded hashes only.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/regatta/pkg/models"
)

// Entry is one journaled execution.
type Entry struct {
	EvalHash    string
	ExecutionID string
	TaskName    string
	Backend     string
	RemoteID    string
	State       models.ExecState
	Detail      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Journal wraps an SQLite database recording execution progress.
type Journal struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// DefaultPath returns the journal location under the project directory.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".regatta", "journal.db")
}

// Open opens the journal at the given path, creating parent directories.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	j := &Journal{conn: conn, path: path}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return j, nil
}

// migrate creates the schema if needed.
func (j *Journal) migrate() error {
	_, err := j.conn.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			eval_hash    TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			task_name    TEXT NOT NULL,
			backend      TEXT NOT NULL DEFAULT '',
			remote_id    TEXT NOT NULL DEFAULT '',
			state        TEXT NOT NULL,
			detail       TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMP NOT NULL,
			updated_at   TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Record upserts the row for an execution entering the executor.
func (j *Journal) Record(evalHash, executionID, taskName, backendName string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().UTC()
	_, err := j.conn.Exec(`
		INSERT INTO executions (eval_hash, execution_id, task_name, backend, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(eval_hash) DO UPDATE SET
			execution_id = excluded.execution_id,
			task_name = excluded.task_name,
			backend = excluded.backend,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, evalHash, executionID, taskName, backendName, string(models.ExecStateQueued), now, now)
	if err != nil {
		return fmt.Errorf("record execution %s: %w", evalHash, err)
	}
	return nil
}

// SetState updates the state, remote id, and detail for an execution. An
// empty remoteID leaves the recorded remote id untouched.
func (j *Journal) SetState(evalHash string, state models.ExecState, remoteID, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.conn.Exec(`
		UPDATE executions
		SET state = ?,
		    remote_id = CASE WHEN ? = '' THEN remote_id ELSE ? END,
		    detail = ?,
		    updated_at = ?
		WHERE eval_hash = ?
	`, string(state), remoteID, remoteID, detail, time.Now().UTC(), evalHash)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", evalHash, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution %s not journaled", evalHash)
	}
	return nil
}

// List returns all journaled executions, most recently updated first.
func (j *Journal) List() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.conn.Query(`
		SELECT eval_hash, execution_id, task_name, backend, remote_id, state, detail, created_at, updated_at
		FROM executions
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var state string
		if err := rows.Scan(&e.EvalHash, &e.ExecutionID, &e.TaskName, &e.Backend,
			&e.RemoteID, &state, &e.Detail, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.State = models.ExecState(state)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.conn.Close()
}
