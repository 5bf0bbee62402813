package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/regatta/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Display the resolved Regatta configuration.

Without arguments, displays all configuration values.
With one argument (key), displays the value for that key.

Configuration is stored at ~/.config/regatta/config.yaml
Project-specific overrides can be placed in .regatta.yaml`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		if len(args) == 0 {
			displayAllConfig(cfg)
			return
		}
		displayConfigKey(cfg, args[0])
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	enabled, includes := cfg.CodePackageSettings()
	codeDisplay := fmt.Sprintf("%t", enabled)
	if enabled && len(includes) > 0 {
		codeDisplay = fmt.Sprintf("includes=%v", includes)
	}

	fmt.Printf("backend: %s\n", cfg.Backend)
	fmt.Printf("image: %s\n", cfg.Image)
	fmt.Printf("scratch_root: %s\n", cfg.ScratchRoot)
	fmt.Printf("job_name_prefix: %s\n", cfg.JobNamePrefix)
	fmt.Printf("job_monitor_interval: %s\n", cfg.JobMonitorInterval)
	fmt.Printf("job_stale_time: %s\n", cfg.JobStaleTime)
	fmt.Printf("code_package: %s\n", codeDisplay)
	fmt.Printf("project: %s\n", cfg.Project)
	fmt.Printf("user: %s\n", cfg.User)
	fmt.Printf("journal_path: %s\n", cfg.JournalPath)
	fmt.Printf("batch.queue: %s\n", cfg.Batch.Queue)
	fmt.Printf("batch.job_definition: %s\n", cfg.Batch.JobDefinition)
	fmt.Printf("batch.region: %s\n", cfg.Batch.Region)
	fmt.Printf("docker.binary: %s\n", cfg.Docker.Binary)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// getConfigValue resolves a dotted key to its configured value.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "backend":
		return cfg.Backend, nil
	case "image":
		return cfg.Image, nil
	case "scratch_root":
		return cfg.ScratchRoot, nil
	case "job_name_prefix":
		return cfg.JobNamePrefix, nil
	case "job_monitor_interval":
		return cfg.JobMonitorInterval.String(), nil
	case "job_stale_time":
		return cfg.JobStaleTime.String(), nil
	case "project":
		return cfg.Project, nil
	case "user":
		return cfg.User, nil
	case "journal_path":
		return cfg.JournalPath, nil
	case "batch.queue":
		return cfg.Batch.Queue, nil
	case "batch.job_definition":
		return cfg.Batch.JobDefinition, nil
	case "batch.region":
		return cfg.Batch.Region, nil
	case "docker.binary":
		return cfg.Docker.Binary, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}
