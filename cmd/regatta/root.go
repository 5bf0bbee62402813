package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/regatta/internal/backend"
	"github.com/ShayCichocki/regatta/internal/backend/awsbatch"
	"github.com/ShayCichocki/regatta/internal/backend/docker"
	"github.com/ShayCichocki/regatta/internal/config"
	"github.com/ShayCichocki/regatta/internal/executor"
	"github.com/ShayCichocki/regatta/internal/version"
)

var (
	checkVersion string
	configPath   string
	debugLogPath string
)

var rootCmd = &cobra.Command{
	Use:   "regatta",
	Short: "Cluster executor for task workflows",
	Long: `Regatta submits workflow tasks as remote jobs on a compute backend,
batches small submissions into array jobs, and rejoins jobs left running
by a previous invocation instead of resubmitting them.

The same binary serves both sides: 'regatta run' drives submissions from
the orchestrator, and 'regatta oneshot' is the entrypoint executed inside
each remote container.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The version gate runs before any command logic. Remote jobs are
		// always launched with --check-version so a stale container image
		// fails fast instead of producing wire-incompatible results.
		if checkVersion != "" {
			ok, err := version.Satisfies(version.Get(), checkVersion)
			if err != nil {
				return fmt.Errorf("check version constraint %q: %w", checkVersion, err)
			}
			if !ok {
				mismatch := fmt.Errorf("regatta %s does not satisfy required version %s", version.Get(), checkVersion)
				// Inside a remote job the gate reports through the error
				// scratch object so the executor sees a structured failure
				// instead of synthesizing an infrastructure error.
				reportVersionMismatch(cmd.Context(), mismatch)
				return mismatch
			}
		}

		if debugLogPath != "" {
			logger, err := executor.NewDebugLogger(debugLogPath)
			if err != nil {
				return fmt.Errorf("open debug log: %w", err)
			}
			executor.SetDebugLogger(logger)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration, honoring the --config override.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// newBackend builds the compute backend selected by the config.
func newBackend(ctx context.Context, cfg *config.Config) (backend.Backend, error) {
	switch cfg.Backend {
	case "docker", "":
		return docker.New(docker.Config{Binary: cfg.Docker.Binary}), nil
	case "aws_batch":
		return awsbatch.New(ctx, awsbatch.Config{
			Queue:         cfg.Batch.Queue,
			JobDefinition: cfg.Batch.JobDefinition,
			Region:        cfg.Batch.Region,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q (expected docker or aws_batch)", cfg.Backend)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&checkVersion, "check-version", "", "Fail unless this binary satisfies the given version constraint")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (overrides discovery)")
	rootCmd.PersistentFlags().StringVar(&debugLogPath, "debug-log", "", "Write debug logs to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(oneshotCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
