package docker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ShayCichocki/regatta/internal/backend"
	"github.com/ShayCichocki/regatta/pkg/models"
)

// fakeRunner records commands and returns canned output.
type fakeRunner struct {
	calls  [][]string
	output string
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte(f.output), f.err
}

func TestSubmitJobCommand(t *testing.T) {
	runner := &fakeRunner{output: "abc123\n"}
	b := New(Config{Runner: runner})

	job, err := b.SubmitJob(context.Background(), &backend.SubmitRequest{
		Name:    "regatta-job-h1",
		Image:   "my-image",
		Command: []string{"regatta", "oneshot", "main", "task1"},
		Options: models.Options{VCPUs: 2, MemoryGB: 8, GPUs: 1, Retries: 1},
		Labels:  map[string]string{"regatta_task_name": "task1"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.RemoteID != "abc123" {
		t.Errorf("expected container id abc123, got %q", job.RemoteID)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("expected pending status, got %s", job.Status)
	}

	got := strings.Join(runner.calls[0], " ")
	want := "docker run -d --name regatta-job-h1 --label regatta_task_name=task1 " +
		"--cpus 2 --memory 8g --gpus 1 my-image regatta oneshot main task1"
	if got != want {
		t.Errorf("unexpected command:\n  got  %s\n  want %s", got, want)
	}
}

func TestSubmitArrayJobUnsupported(t *testing.T) {
	b := New(Config{Runner: &fakeRunner{}})
	_, err := b.SubmitArrayJob(context.Background(), &backend.ArrayRequest{})
	if !errors.Is(err, backend.ErrArrayUnsupported) {
		t.Errorf("expected ErrArrayUnsupported, got %v", err)
	}
	if b.SupportsArray() {
		t.Error("expected SupportsArray to be false")
	}
}

func TestListJobs(t *testing.T) {
	runner := &fakeRunner{output: "id1\tregatta-job-h1\trunning\nid2\tregatta-job-h2\texited\n"}
	b := New(Config{Runner: runner})

	jobs, err := b.ListJobs(context.Background(), "regatta-job")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Name != "regatta-job-h1" || jobs[0].Status != models.JobStatusRunning {
		t.Errorf("unexpected job %+v", jobs[0])
	}
}

func TestDescribeJobsMapsStates(t *testing.T) {
	runner := &fakeRunner{output: "id1\t/regatta-job-h1\texited\t0\nid2\t/regatta-job-h2\texited\t137\n"}
	b := New(Config{Runner: runner})

	jobs, err := b.DescribeJobs(context.Background(), []string{"id1", "id2"})
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Status != models.JobStatusSucceeded {
		t.Errorf("expected succeeded, got %s", jobs[0].Status)
	}
	if jobs[1].Status != models.JobStatusFailed {
		t.Errorf("expected failed, got %s", jobs[1].Status)
	}
	if jobs[0].Name != "regatta-job-h1" {
		t.Errorf("expected leading slash trimmed, got %q", jobs[0].Name)
	}
}

func TestDescribeJobsEmpty(t *testing.T) {
	runner := &fakeRunner{}
	b := New(Config{Runner: runner})
	jobs, err := b.DescribeJobs(context.Background(), nil)
	if err != nil || jobs != nil {
		t.Errorf("expected no call for empty ids, got jobs=%v err=%v", jobs, err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("expected no CLI invocation, got %d", len(runner.calls))
	}
}
