package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/regatta/internal/backend"
	"github.com/ShayCichocki/regatta/internal/naming"
	"github.com/ShayCichocki/regatta/internal/taskrun"
	"github.com/ShayCichocki/regatta/internal/version"
	"github.com/ShayCichocki/regatta/pkg/models"
)

// pendingGroup buffers executions whose option signatures match, so one
// array submission can cover all of them.
type pendingGroup struct {
	execs  []*models.Execution
	oldest time.Time
}

// Arrayer buffers queued executions and flushes each compatible group as a
// single array submission once the group ages past the stale time. Groups
// of one fall back to a plain submission, as does every group on backends
// without array support.
type Arrayer struct {
	exec      *Executor
	interval  time.Duration
	staleTime time.Duration

	mu     sync.Mutex
	groups map[string]*pendingGroup
	// inflight counts executions pulled from a group whose backend
	// submission has not returned yet. NumPending reaching 0 is the signal
	// that a flush happened, so it must not drop before the submission call
	// completes.
	inflight int
}

func newArrayer(e *Executor, interval, staleTime time.Duration) *Arrayer {
	return &Arrayer{
		exec:      e,
		interval:  interval,
		staleTime: staleTime,
		groups:    make(map[string]*pendingGroup),
	}
}

// NumPending returns the number of executions buffered or mid-flush. It
// reaches 0 only after the backend submission call for every flushed group
// has returned.
func (a *Arrayer) NumPending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.inflight
	for _, g := range a.groups {
		n += len(g.execs)
	}
	return n
}

// Add buffers an execution under its option signature.
func (a *Arrayer) Add(exec *models.Execution) {
	key := exec.Options.Signature()

	a.mu.Lock()
	g, ok := a.groups[key]
	if !ok {
		g = &pendingGroup{oldest: time.Now()}
		a.groups[key] = g
	}
	g.execs = append(g.execs, exec)
	a.mu.Unlock()

	a.exec.mu.Lock()
	a.exec.setStateLocked(exec.EvalHash, models.ExecStateBatched)
	a.exec.mu.Unlock()

	debugLog("[executor %s] batched %s under %q", a.exec.runID, exec.EvalHash, key)
}

// start launches the monitor loop that flushes stale groups.
func (a *Arrayer) start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				// Drain whatever is still buffered so no execution is left
				// unsubmitted. A fresh context bounds the final submissions.
				flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
				a.flushAll(flushCtx)
				cancel()
				return
			case <-ticker.C:
				a.flushStale(ctx)
			}
		}
	}()
}

// Flush submits every buffered group immediately. The run driver calls
// this once all executions are enqueued; tests use it to avoid waiting out
// the stale time.
func (a *Arrayer) Flush(ctx context.Context) {
	a.flushAll(ctx)
}

// flushStale submits every group older than the stale time.
func (a *Arrayer) flushStale(ctx context.Context) {
	cutoff := time.Now().Add(-a.staleTime)

	a.mu.Lock()
	var ready []*pendingGroup
	for key, g := range a.groups {
		if g.oldest.Before(cutoff) {
			ready = append(ready, g)
			a.inflight += len(g.execs)
			delete(a.groups, key)
		}
	}
	a.mu.Unlock()

	a.submitGroups(ctx, ready)
}

// flushAll submits every buffered group regardless of age.
func (a *Arrayer) flushAll(ctx context.Context) {
	a.mu.Lock()
	var all []*pendingGroup
	for key, g := range a.groups {
		all = append(all, g)
		a.inflight += len(g.execs)
		delete(a.groups, key)
	}
	a.mu.Unlock()

	a.submitGroups(ctx, all)
}

// submitGroups flushes groups already marked inflight, releasing each
// group's count once its submission call has returned.
func (a *Arrayer) submitGroups(ctx context.Context, groups []*pendingGroup) {
	for _, g := range groups {
		a.flushGroup(ctx, g)
		a.mu.Lock()
		a.inflight -= len(g.execs)
		a.mu.Unlock()
	}
}

// flushGroup turns one pending group into backend submissions. Groups of
// two or more become a single array job when the backend allows it;
// otherwise each execution is submitted on its own, in arrival order.
func (a *Arrayer) flushGroup(ctx context.Context, g *pendingGroup) {
	if len(g.execs) == 0 {
		return
	}

	if len(g.execs) > 1 && a.exec.backend.SupportsArray() {
		err := a.submitArray(ctx, g.execs)
		if err == nil {
			return
		}
		if err != backend.ErrArrayUnsupported {
			a.failGroup(g.execs, err)
			return
		}
		// Advertised support turned out false at submit time; fall through
		// to singletons.
	}

	for _, exec := range g.execs {
		if err := a.submitSingle(ctx, exec); err != nil {
			a.failGroup([]*models.Execution{exec}, err)
		}
	}
}

// submitSingle submits one execution as a plain remote job.
func (a *Arrayer) submitSingle(ctx context.Context, exec *models.Execution) error {
	e := a.exec
	req := &backend.SubmitRequest{
		Name:    e.jobName(exec),
		Image:   e.cfg.Image,
		Command: e.buildCommand(exec),
		Options: exec.Options,
		Labels:  e.buildLabels(exec),
	}

	e.mu.Lock()
	e.setStateLocked(exec.EvalHash, models.ExecStateSubmitted)
	e.mu.Unlock()

	job, err := e.backend.SubmitJob(ctx, req)
	if err != nil {
		return err
	}
	debugLog("[executor %s] submitted %s as %s", e.runID, exec.EvalHash, job.RemoteID)
	e.track(exec, job)
	return nil
}

// submitArray writes the per-child manifest to scratch and submits one
// array job covering the whole group.
func (a *Arrayer) submitArray(ctx context.Context, execs []*models.Execution) error {
	e := a.exec

	manifest := taskrun.ArrayManifest{Children: make([]taskrun.ArrayChild, len(execs))}
	childNames := make([]string, len(execs))
	hasher := sha256.New()
	codeRef := e.codeRef()
	for i, exec := range execs {
		manifest.Children[i] = taskrun.ArrayChild{
			Module:     exec.Module,
			Task:       exec.TaskName,
			ImportPath: exec.ImportPath,
			InputURI:   e.scratch.InputPath(exec.EvalHash),
			OutputURI:  e.scratch.OutputPath(exec.EvalHash),
			ErrorURI:   e.scratch.ErrorPath(exec.EvalHash),
		}
		childNames[i] = e.jobName(exec)
		hasher.Write([]byte(exec.EvalHash))
	}
	arrayHash := hex.EncodeToString(hasher.Sum(nil))

	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal array manifest: %w", err)
	}
	manifestURI := e.scratch.ArrayManifestPath(arrayHash)
	if err := e.scratch.Store().Put(ctx, manifestURI, data); err != nil {
		return fmt.Errorf("write array manifest: %w", err)
	}

	cmd := []string{"regatta", "--check-version", version.MinRemoteVersion, "oneshot", "--array", "--manifest", manifestURI}
	if codeRef != "" {
		cmd = append(cmd, "--code", codeRef)
	}

	req := &backend.ArrayRequest{
		Name:       naming.JobName(e.cfg.JobNamePrefix+"-array", arrayHash),
		ChildNames: childNames,
		Image:      e.cfg.Image,
		Command:    cmd,
		Options:    execs[0].Options,
		Labels: map[string]string{
			"regatta_execution_id": e.runID,
			"regatta_user":         e.cfg.User,
			"regatta_project":      e.cfg.Project,
		},
	}

	e.mu.Lock()
	for _, exec := range execs {
		e.setStateLocked(exec.EvalHash, models.ExecStateSubmitted)
	}
	e.mu.Unlock()

	jobs, err := e.backend.SubmitArrayJob(ctx, req)
	if err != nil {
		return err
	}
	debugLog("[executor %s] submitted array of %d as %s", e.runID, len(execs), req.Name)
	for i, exec := range execs {
		e.track(exec, jobs[i])
	}
	return nil
}

// failGroup delivers a submission error for every execution in the group.
// A group rejection fails only its own executions, never the whole run.
func (a *Arrayer) failGroup(execs []*models.Execution, err error) {
	e := a.exec
	for _, exec := range execs {
		serr := &SubmitError{JobName: e.jobName(exec), Err: err}
		debugLog("[executor %s] submission failed for %s: %v", e.runID, exec.EvalHash, err)
		e.deliverError(exec, serr)
	}
}
