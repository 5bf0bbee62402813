package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/regatta/internal/executor"
	"github.com/ShayCichocki/regatta/internal/journal"
	"github.com/ShayCichocki/regatta/internal/scratch"
	"github.com/ShayCichocki/regatta/pkg/models"
)

// workflowFile is the YAML shape of a workflow submitted with 'regatta run'.
type workflowFile struct {
	Tasks []workflowTask `yaml:"tasks"`
}

// workflowTask is one task invocation in a workflow file.
type workflowTask struct {
	Task       string         `yaml:"task"`
	Module     string         `yaml:"module"`
	ImportPath string         `yaml:"import_path"`
	Args       []any          `yaml:"args"`
	Kwargs     map[string]any `yaml:"kwargs"`
	Options    models.Options `yaml:"options"`
}

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Submit a workflow and wait for results",
	Long: `Run every task in a workflow file on the configured backend.

Each task is hashed over its module, name, and arguments; the hash names
the remote job and its scratch objects. Tasks already running from a
previous invocation are rejoined, not resubmitted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

// waiter collects one delivery per submitted execution.
type waiter struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	results map[string]any
	errs    map[string]error
}

var _ executor.Scheduler = (*waiter)(nil)

func newWaiter() *waiter {
	return &waiter{results: make(map[string]any), errs: make(map[string]error)}
}

func (w *waiter) expect(n int) {
	w.wg.Add(n)
}

func (w *waiter) DeliverResult(executionID string, value any) {
	w.mu.Lock()
	w.results[executionID] = value
	w.mu.Unlock()
	w.wg.Done()
}

func (w *waiter) DeliverError(executionID string, err error) {
	w.mu.Lock()
	w.errs[executionID] = err
	w.mu.Unlock()
	w.wg.Done()
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}
	var wf workflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return fmt.Errorf("parse workflow: %w", err)
	}
	if len(wf.Tasks) == 0 {
		return fmt.Errorf("workflow has no tasks")
	}

	ctx := context.Background()

	sc, err := scratch.New(ctx, cfg.ScratchRoot)
	if err != nil {
		return fmt.Errorf("open scratch store: %w", err)
	}
	be, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	journalPath := cfg.JournalPath
	if journalPath == "" {
		journalPath = journal.DefaultPath(cwd)
	}
	jn, err := journal.Open(journalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jn.Close()

	w := newWaiter()
	e := executor.New(cfg, executor.Deps{
		Backend:   be,
		Scratch:   sc,
		Scheduler: w,
		Journal:   jn,
		WorkDir:   cwd,
	})
	if err := e.Start(); err != nil {
		return fmt.Errorf("start executor: %w", err)
	}
	defer e.Stop()

	// Submit everything, then flush so the arrayer batches across the full
	// workflow instead of waiting out the stale timer.
	execs := make([]*models.Execution, 0, len(wf.Tasks))
	w.expect(len(wf.Tasks))
	for _, task := range wf.Tasks {
		ex := &models.Execution{
			ID:         uuid.New().String()[:8],
			EvalHash:   evalHash(task),
			TaskName:   task.Task,
			Module:     task.Module,
			ImportPath: task.ImportPath,
			Options:    task.Options,
		}
		if err := e.Submit(ex, task.Args, task.Kwargs); err != nil {
			return fmt.Errorf("submit %s.%s: %w", task.Module, task.Task, err)
		}
		execs = append(execs, ex)
	}
	e.Arrayer().Flush(ctx)

	w.wg.Wait()

	return printSummary(execs, w)
}

// evalHash derives the stable content hash naming a task's remote job and
// scratch objects. Identical invocations hash identically across runs.
func evalHash(task workflowTask) string {
	h := sha256.New()
	h.Write([]byte(task.Module))
	h.Write([]byte{0})
	h.Write([]byte(task.Task))
	h.Write([]byte{0})
	if data, err := json.Marshal(task.Args); err == nil {
		h.Write(data)
	}
	if data, err := json.Marshal(task.Kwargs); err == nil {
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:40]
}

// printSummary reports per-task outcomes and returns an error if any task
// failed.
func printSummary(execs []*models.Execution, w *waiter) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	w.mu.Lock()
	defer w.mu.Unlock()

	failed := 0
	for _, ex := range execs {
		if err, ok := w.errs[ex.ID]; ok {
			failed++
			fmt.Printf("%s %s.%s: %v\n", red.Sprint("✗"), ex.Module, ex.TaskName, err)
			continue
		}
		value := w.results[ex.ID]
		out, err := json.Marshal(value)
		if err != nil {
			out = []byte(fmt.Sprintf("%v", value))
		}
		fmt.Printf("%s %s.%s: %s\n", green.Sprint("✓"), ex.Module, ex.TaskName, out)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(execs))
	}
	return nil
}
