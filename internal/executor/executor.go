package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/regatta/internal/backend"
	"github.com/ShayCichocki/regatta/internal/codepack"
	"github.com/ShayCichocki/regatta/internal/config"
	"github.com/ShayCichocki/regatta/internal/journal"
	"github.com/ShayCichocki/regatta/internal/naming"
	"github.com/ShayCichocki/regatta/internal/scratch"
	"github.com/ShayCichocki/regatta/internal/version"
	"github.com/ShayCichocki/regatta/pkg/models"
)

// Scheduler is what the executor reports back to. The task-graph scheduler
// provides executions and consumes exactly one delivery per execution.
type Scheduler interface {
	// DeliverResult reports a successful task result.
	DeliverResult(executionID string, value any)

	// DeliverError reports a task or infrastructure failure.
	DeliverError(executionID string, err error)
}

// Deps bundles the collaborators an Executor is constructed with.
type Deps struct {
	// Backend is the compute backend to submit to and poll.
	Backend backend.Backend
	// Scratch is the content-addressed store for inputs and results.
	Scratch *scratch.Scratch
	// Scheduler receives result and error deliveries.
	Scheduler Scheduler
	// Journal optionally records state transitions. May be nil.
	Journal *journal.Journal
	// WorkDir is the directory code bundles are built from.
	WorkDir string
}

// trackedJob pairs an execution with its remote job while the polling loop
// watches it.
type trackedJob struct {
	exec   *models.Execution
	remote *models.RemoteJob
}

// Executor is the cluster executor state machine. Executions move through
// QUEUED, BATCHED, SUBMITTED, and MONITORING before a terminal delivery.
// All mutable maps are per-instance so a test harness can construct
// independent executors.
type Executor struct {
	cfg       *config.Config
	backend   backend.Backend
	scratch   *scratch.Scratch
	scheduler Scheduler
	journal   *journal.Journal
	packager  *codepack.Packager

	arrayer *Arrayer

	// runID tags every submission of this executor lifetime.
	runID string

	mu      sync.Mutex
	started bool
	stopped bool
	// preexisting is written once during Start and read-only afterwards.
	preexisting map[string]*models.RemoteJob
	// tracked maps remote id to the job the polling loop watches.
	tracked map[string]*trackedJob
	// byHash indexes tracked jobs by eval hash.
	byHash map[string]*trackedJob
	// states records the lifecycle state per eval hash.
	states map[string]models.ExecState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Executor. Code packaging is prepared lazily: nothing is
// built or uploaded until the first submission.
func New(cfg *config.Config, deps Deps) *Executor {
	e := &Executor{
		cfg:         cfg,
		backend:     deps.Backend,
		scratch:     deps.Scratch,
		scheduler:   deps.Scheduler,
		journal:     deps.Journal,
		runID:       uuid.New().String()[:8],
		preexisting: make(map[string]*models.RemoteJob),
		tracked:     make(map[string]*trackedJob),
		byHash:      make(map[string]*trackedJob),
		states:      make(map[string]models.ExecState),
	}

	if enabled, includes := cfg.CodePackageSettings(); enabled {
		e.packager = codepack.New(deps.Scratch, deps.WorkDir, includes)
	}

	e.arrayer = newArrayer(e, cfg.JobMonitorInterval, cfg.JobStaleTime)
	return e
}

// Arrayer returns the job arrayer, exposed for tests that synchronize on
// NumPending.
func (e *Executor) Arrayer() *Arrayer {
	return e.arrayer
}

// RunID returns the identifier tagging this executor lifetime.
func (e *Executor) RunID() string {
	return e.runID
}

// Start reconciles in-flight jobs once, then launches the batching and
// polling loops. Calling Start again is a no-op.
func (e *Executor) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	ctx := e.ctx
	e.mu.Unlock()

	// Reconciliation runs synchronously, exactly once; submissions arriving
	// later consult the resulting map without re-querying the backend.
	if err := e.gatherInflight(ctx); err != nil {
		return fmt.Errorf("gather inflight jobs: %w", err)
	}

	e.arrayer.start(ctx, &e.wg)

	e.wg.Add(1)
	go e.pollLoop(ctx)

	debugLog("[executor %s] started (backend=%s, prefix=%s)", e.runID, e.backend.Name(), e.cfg.JobNamePrefix)
	return nil
}

// Submit accepts one execution from the scheduler. It packages code lazily
// on the first call, writes the input payload, and either rejoins a
// preexisting remote job or hands the execution to the arrayer.
func (e *Executor) Submit(exec *models.Execution, args []any, kwargs map[string]any) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return fmt.Errorf("executor is not running")
	}
	ctx := e.ctx
	e.setStateLocked(exec.EvalHash, models.ExecStateQueued)
	e.mu.Unlock()

	// The scheduler's execution stays untouched; defaults apply to the
	// executor's own copy.
	own := *exec
	own.Options = own.Options.WithDefaults()
	exec = &own

	if e.journal != nil {
		if err := e.journal.Record(exec.EvalHash, exec.ID, exec.TaskName, e.backend.Name()); err != nil {
			debugLog("[executor %s] journal record %s: %v", e.runID, exec.EvalHash, err)
		}
	}

	// One-time code packaging; concurrent first submissions share the result.
	if e.packager != nil {
		if _, err := e.packager.Ensure(ctx); err != nil {
			return fmt.Errorf("package code: %w", err)
		}
	}

	payload := scratch.InputPayload{Args: args, Kwargs: kwargs}
	if payload.Args == nil {
		payload.Args = []any{}
	}
	if payload.Kwargs == nil {
		payload.Kwargs = map[string]any{}
	}
	if err := e.scratch.WriteInput(ctx, exec.EvalHash, payload); err != nil {
		return fmt.Errorf("write input for %s: %w", exec.EvalHash, err)
	}

	// Rejoin rather than resubmit when a remote job already carries this
	// hash: a restarted orchestrator must not duplicate in-flight work.
	e.mu.Lock()
	job, rejoin := e.preexisting[exec.EvalHash]
	e.mu.Unlock()
	if rejoin {
		debugLog("[executor %s] rejoining inflight job %s for %s", e.runID, job.Name, exec.EvalHash)
		e.track(exec, job)
		return nil
	}

	e.arrayer.Add(exec)
	return nil
}

// Stop cancels the batching and polling loops. Pending batches are flushed
// best-effort first so no execution is stranded unsubmitted; jobs already
// submitted stay on the backend for the next start's reconciliation.
func (e *Executor) Stop() error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()

	debugLog("[executor %s] stopped", e.runID)
	return nil
}

// State reports the lifecycle state of an execution by eval hash.
func (e *Executor) State(evalHash string) models.ExecState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[evalHash]
}

// PreexistingJobs returns a copy of the reconciliation map.
func (e *Executor) PreexistingJobs() map[string]*models.RemoteJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*models.RemoteJob, len(e.preexisting))
	for hash, job := range e.preexisting {
		out[hash] = job
	}
	return out
}

// track registers a remote job with the polling loop.
func (e *Executor) track(exec *models.Execution, job *models.RemoteJob) {
	tj := &trackedJob{exec: exec, remote: job}
	e.mu.Lock()
	e.tracked[job.RemoteID] = tj
	e.byHash[exec.EvalHash] = tj
	e.setStateLocked(exec.EvalHash, models.ExecStateMonitoring)
	e.mu.Unlock()

	if e.journal != nil {
		if err := e.journal.SetState(exec.EvalHash, models.ExecStateMonitoring, job.RemoteID, ""); err != nil {
			debugLog("[executor %s] journal state %s: %v", e.runID, exec.EvalHash, err)
		}
	}
}

// setStateLocked records a state transition. Caller holds e.mu.
func (e *Executor) setStateLocked(evalHash string, state models.ExecState) {
	e.states[evalHash] = state
}

// jobName derives the remote job name for an execution.
func (e *Executor) jobName(exec *models.Execution) string {
	return naming.JobName(e.cfg.JobNamePrefix, exec.EvalHash)
}

// buildCommand assembles the remote entrypoint argv for one execution.
func (e *Executor) buildCommand(exec *models.Execution) []string {
	cmd := []string{"regatta", "--check-version", version.MinRemoteVersion, "oneshot", exec.Module}
	if exec.ImportPath != "" {
		cmd = append(cmd, "--import-path", exec.ImportPath)
	}
	if ref := e.codeRef(); ref != "" {
		cmd = append(cmd, "--code", ref)
	}
	cmd = append(cmd,
		"--input", e.scratch.InputPath(exec.EvalHash),
		"--output", e.scratch.OutputPath(exec.EvalHash),
		"--error", e.scratch.ErrorPath(exec.EvalHash),
		exec.TaskName,
	)
	return cmd
}

// codeRef returns the packaged code reference, or "" when packaging is
// disabled. Ensure has already run by submission time, so this never
// uploads.
func (e *Executor) codeRef() string {
	if e.packager == nil {
		return ""
	}
	ref, err := e.packager.Ensure(context.Background())
	if err != nil {
		return ""
	}
	return ref
}

// buildLabels returns the fixed observability label set for an execution.
// Reconciliation never reads labels; it relies on the name-embedded hash.
func (e *Executor) buildLabels(exec *models.Execution) map[string]string {
	labels := map[string]string{
		"regatta_execution_id": e.runID,
		"regatta_job_id":       exec.ID,
		"regatta_task_name":    exec.TaskName,
		"regatta_user":         e.cfg.User,
		"regatta_project":      e.cfg.Project,
	}
	for k, v := range exec.Options.Labels {
		labels[k] = v
	}
	return labels
}

// deliverResult reports a success to the scheduler and releases bookkeeping.
func (e *Executor) deliverResult(exec *models.Execution, value any) {
	e.mu.Lock()
	e.setStateLocked(exec.EvalHash, models.ExecStateDone)
	e.mu.Unlock()

	if e.journal != nil {
		if err := e.journal.SetState(exec.EvalHash, models.ExecStateDone, "", "result delivered"); err != nil {
			debugLog("[executor %s] journal state %s: %v", e.runID, exec.EvalHash, err)
		}
	}
	e.scheduler.DeliverResult(exec.ID, value)
}

// deliverError reports a failure to the scheduler and releases bookkeeping.
func (e *Executor) deliverError(exec *models.Execution, deliveryErr error) {
	e.mu.Lock()
	e.setStateLocked(exec.EvalHash, models.ExecStateFailed)
	e.mu.Unlock()

	if e.journal != nil {
		if err := e.journal.SetState(exec.EvalHash, models.ExecStateFailed, "", deliveryErr.Error()); err != nil {
			debugLog("[executor %s] journal state %s: %v", e.runID, exec.EvalHash, err)
		}
	}
	e.scheduler.DeliverError(exec.ID, deliveryErr)
}

// flushTimeout bounds the best-effort submissions performed while stopping.
const flushTimeout = 10 * time.Second
