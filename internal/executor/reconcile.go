package executor

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/regatta/internal/naming"
	"github.com/ShayCichocki/regatta/pkg/models"
)

// gatherInflight lists backend jobs under the configured name prefix and
// builds the eval-hash to remote-job map consulted by Submit. It runs
// exactly once, synchronously, during Start.
//
// Names without an extractable hash are skipped silently. Clusters host
// jobs this executor never submitted (head nodes, unrelated services), and
// treating those as failures would poison reconciliation.
func (e *Executor) gatherInflight(ctx context.Context) error {
	jobs, err := e.backend.ListJobs(ctx, e.cfg.JobNamePrefix)
	if err != nil {
		return fmt.Errorf("list jobs with prefix %q: %w", e.cfg.JobNamePrefix, err)
	}

	found := make(map[string]*models.RemoteJob, len(jobs))
	for _, job := range jobs {
		hash, ok := naming.HashFromName(job.Name)
		if !ok {
			continue
		}
		found[hash] = job
	}

	e.mu.Lock()
	e.preexisting = found
	e.mu.Unlock()

	debugLog("[executor %s] reconciled %d inflight jobs (of %d listed)", e.runID, len(found), len(jobs))
	return nil
}
