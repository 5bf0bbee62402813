package journal

import (
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/regatta/pkg/models"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Record("h1", "exec-1", "task1", "docker"); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := j.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.EvalHash != "h1" || e.ExecutionID != "exec-1" || e.TaskName != "task1" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.State != models.ExecStateQueued {
		t.Errorf("expected queued state, got %s", e.State)
	}
}

func TestSetState(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Record("h1", "exec-1", "task1", "docker"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.SetState("h1", models.ExecStateMonitoring, "container-1", ""); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := j.SetState("h1", models.ExecStateDone, "container-1", "result delivered"); err != nil {
		t.Fatalf("set terminal state: %v", err)
	}

	entries, err := j.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if entries[0].State != models.ExecStateDone {
		t.Errorf("expected done, got %s", entries[0].State)
	}
	if entries[0].RemoteID != "container-1" {
		t.Errorf("expected remote id recorded, got %q", entries[0].RemoteID)
	}
}

func TestSetStateUnknownHash(t *testing.T) {
	j := openTestJournal(t)
	if err := j.SetState("missing", models.ExecStateDone, "", ""); err == nil {
		t.Error("expected error for unjournaled execution")
	}
}

func TestRecordUpsert(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Record("h1", "exec-1", "task1", "docker"); err != nil {
		t.Fatalf("record: %v", err)
	}
	// A restart re-records the same hash under a new execution id.
	if err := j.Record("h1", "exec-2", "task1", "docker"); err != nil {
		t.Fatalf("re-record: %v", err)
	}

	entries, err := j.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected upsert to keep 1 entry, got %d", len(entries))
	}
	if entries[0].ExecutionID != "exec-2" {
		t.Errorf("expected execution id exec-2, got %q", entries[0].ExecutionID)
	}
}
