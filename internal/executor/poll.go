package executor

import (
	"context"
	"time"

	"github.com/ShayCichocki/regatta/pkg/models"
)

// pollLoop watches tracked remote jobs until the executor stops.
func (e *Executor) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.JobMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

// PollOnce performs one polling pass, exposed for tests that drive the
// loop deterministically.
func (e *Executor) PollOnce(ctx context.Context) {
	e.pollOnce(ctx)
}

// pollOnce describes every tracked job in one batched call and settles the
// terminal ones.
func (e *Executor) pollOnce(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.tracked))
	for id := range e.tracked {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	jobs, err := e.backend.DescribeJobs(ctx, ids)
	if err != nil {
		debugLog("[executor %s] describe jobs: %v", e.runID, err)
		return
	}

	for _, job := range jobs {
		if !job.Status.Terminal() {
			continue
		}
		e.handleTerminal(ctx, job)
	}
}

// handleTerminal settles one finished remote job. The tracked entry is
// removed before any delivery, so a duplicate terminal observation from a
// later poll finds nothing and delivers nothing.
func (e *Executor) handleTerminal(ctx context.Context, job *models.RemoteJob) {
	e.mu.Lock()
	tj, ok := e.tracked[job.RemoteID]
	if ok {
		delete(e.tracked, job.RemoteID)
		delete(e.byHash, tj.exec.EvalHash)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	// Delivery reports the job handle recorded at submission or rejoin
	// time; status polls do not reliably echo the name back.
	switch job.Status {
	case models.JobStatusSucceeded:
		e.deliverSuccess(ctx, tj.exec, tj.remote)
	case models.JobStatusFailed:
		e.deliverFailure(ctx, tj.exec, tj.remote)
	}
}

// deliverSuccess reads the result from scratch. A succeeded job with no
// output object means the container died before the entrypoint could write
// one, which is an infrastructure failure, not a task failure.
func (e *Executor) deliverSuccess(ctx context.Context, exec *models.Execution, job *models.RemoteJob) {
	value, err := e.scratch.ReadOutput(ctx, exec.EvalHash)
	if err != nil {
		e.deliverError(exec, &InfraError{
			JobName:  job.Name,
			RemoteID: job.RemoteID,
			Reason:   "job succeeded but no output was written",
		})
		return
	}
	debugLog("[executor %s] job %s succeeded", e.runID, job.Name)
	e.deliverResult(exec, value)
}

// deliverFailure reads the error record from scratch. A failed job with no
// error record never reached the task code, so the failure is synthesized
// as infrastructural.
func (e *Executor) deliverFailure(ctx context.Context, exec *models.Execution, job *models.RemoteJob) {
	rec, err := e.scratch.ReadError(ctx, exec.EvalHash)
	if err != nil {
		e.deliverError(exec, &InfraError{
			JobName:  job.Name,
			RemoteID: job.RemoteID,
			Reason:   "job failed before task code ran",
		})
		return
	}
	debugLog("[executor %s] job %s failed: %s", e.runID, job.Name, rec.Kind)
	e.deliverError(exec, rec)
}
