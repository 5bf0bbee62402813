package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/regatta/internal/scratch"
	"github.com/ShayCichocki/regatta/internal/taskrun"
)

var (
	oneshotImportPath string
	oneshotCodeRef    string
	oneshotInput      string
	oneshotOutput     string
	oneshotError      string
	oneshotArray      bool
	oneshotManifest   string
)

// arrayIndexEnv carries the child index assigned by AWS Batch to each
// member of an array job.
const arrayIndexEnv = "AWS_BATCH_JOB_ARRAY_INDEX"

var oneshotCmd = &cobra.Command{
	Use:   "oneshot <module> <task>",
	Short: "Run a single task inside a remote job",
	Long: `Execute one task invocation against scratch-store URIs.

This is the container entrypoint the executor submits. It fetches the code
bundle if one was packaged, reads the input payload, runs the registered
task, and writes either an output object or a structured error record.

With --array, per-child work is read from a manifest written at submission
time; the child index comes from ` + arrayIndexEnv + `.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runOneshot,
}

func runOneshot(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	workDir, err := os.MkdirTemp("", "regatta-oneshot-")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	if oneshotArray {
		if oneshotManifest == "" {
			return fmt.Errorf("--array requires --manifest")
		}
		index, err := arrayIndex()
		if err != nil {
			return err
		}
		store, err := scratch.NewStore(ctx, oneshotManifest)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		runner := taskrun.NewOneshot(store, nil, workDir)
		return runner.RunArrayChild(ctx, oneshotManifest, index)
	}

	if len(args) != 2 {
		return fmt.Errorf("expected <module> <task> arguments")
	}
	if oneshotInput == "" || oneshotOutput == "" || oneshotError == "" {
		return fmt.Errorf("--input, --output, and --error are required")
	}

	store, err := scratch.NewStore(ctx, oneshotInput)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	runner := taskrun.NewOneshot(store, nil, workDir)
	return runner.Run(ctx, &taskrun.Request{
		Module:     args[0],
		Task:       args[1],
		ImportPath: oneshotImportPath,
		CodeRef:    oneshotCodeRef,
		InputURI:   oneshotInput,
		OutputURI:  oneshotOutput,
		ErrorURI:   oneshotError,
	})
}

// reportVersionMismatch writes a structured error record to the oneshot
// error URI. In the array form the URI comes from this child's manifest
// entry. Best effort: outside a remote job there is no error URI and
// nothing to write.
func reportVersionMismatch(ctx context.Context, mismatch error) {
	if ctx == nil {
		ctx = context.Background()
	}
	errorURI := oneshotError
	if errorURI == "" && oneshotArray && oneshotManifest != "" {
		errorURI = arrayChildErrorURI(ctx)
	}
	if errorURI == "" {
		return
	}
	store, err := scratch.NewStore(ctx, errorURI)
	if err != nil {
		return
	}
	rec := &scratch.ErrorRecord{Kind: "VersionMismatch", Message: mismatch.Error()}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = store.Put(ctx, errorURI, data)
}

// arrayChildErrorURI resolves this child's error URI from the array
// manifest. Returns "" when the manifest or index cannot be resolved; the
// executor then falls back to an infrastructure failure report.
func arrayChildErrorURI(ctx context.Context) string {
	index, err := arrayIndex()
	if err != nil {
		return ""
	}
	store, err := scratch.NewStore(ctx, oneshotManifest)
	if err != nil {
		return ""
	}
	data, err := store.Get(ctx, oneshotManifest)
	if err != nil {
		return ""
	}
	var manifest taskrun.ArrayManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	if index < 0 || index >= len(manifest.Children) {
		return ""
	}
	return manifest.Children[index].ErrorURI
}

// arrayIndex reads this child's position from the batch environment.
func arrayIndex() (int, error) {
	raw := os.Getenv(arrayIndexEnv)
	if raw == "" {
		return 0, fmt.Errorf("%s is not set", arrayIndexEnv)
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", arrayIndexEnv, err)
	}
	return index, nil
}

func init() {
	oneshotCmd.Flags().StringVar(&oneshotImportPath, "import-path", "", "Path prepended before loading the module")
	oneshotCmd.Flags().StringVar(&oneshotCodeRef, "code", "", "Code bundle URI to unpack before running")
	oneshotCmd.Flags().StringVar(&oneshotInput, "input", "", "Input payload URI")
	oneshotCmd.Flags().StringVar(&oneshotOutput, "output", "", "Output URI written on success")
	oneshotCmd.Flags().StringVar(&oneshotError, "error", "", "Error record URI written on failure")
	oneshotCmd.Flags().BoolVar(&oneshotArray, "array", false, "Resolve work from an array manifest")
	oneshotCmd.Flags().StringVar(&oneshotManifest, "manifest", "", "Array manifest URI")
}
