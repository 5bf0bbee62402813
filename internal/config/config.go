// Package config handles configuration loading and management for Regatta.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the Regatta executor.
type Config struct {
	// Backend selects the compute backend: "docker" or "aws_batch".
	Backend string `mapstructure:"backend"`
	// Image is the container image used for submitted jobs.
	Image string `mapstructure:"image"`
	// ScratchRoot is the base URI for the scratch store (local path or s3://).
	ScratchRoot string `mapstructure:"scratch_root"`
	// JobNamePrefix is prepended to every derived job name. Startup
	// reconciliation lists backend jobs under this prefix.
	JobNamePrefix string `mapstructure:"job_name_prefix"`
	// JobMonitorInterval is the polling loop tick period.
	JobMonitorInterval time.Duration `mapstructure:"job_monitor_interval"`
	// JobStaleTime is the longest the arrayer buffers a batch before
	// force-flushing it.
	JobStaleTime time.Duration `mapstructure:"job_stale_time"`
	// CodePackage enables code bundling. Either a boolean or a map with an
	// "includes" pattern list, mirroring the union shape of the config file.
	CodePackage interface{} `mapstructure:"code_package"`
	// Project is the operator/project tag attached to every job.
	Project string `mapstructure:"project"`
	// User is the submitting user tag attached to every job.
	User string `mapstructure:"user"`
	// JournalPath is the optional sqlite submission journal location.
	JournalPath string `mapstructure:"journal_path"`
	// Batch holds AWS Batch backend settings.
	Batch BatchConfig `mapstructure:"batch"`
	// Docker holds docker backend settings.
	Docker DockerConfig `mapstructure:"docker"`
}

// BatchConfig holds AWS Batch settings.
type BatchConfig struct {
	// Queue is the Batch job queue.
	Queue string `mapstructure:"queue"`
	// JobDefinition is the registered Batch job definition.
	JobDefinition string `mapstructure:"job_definition"`
	// Region overrides the default AWS region.
	Region string `mapstructure:"region"`
}

// DockerConfig holds docker backend settings.
type DockerConfig struct {
	// Binary is the container CLI to invoke (docker, podman).
	Binary string `mapstructure:"binary"`
}

// CodePackageSettings normalizes the union-typed code_package option.
// Returns whether packaging is enabled and any include patterns.
func (c *Config) CodePackageSettings() (enabled bool, includes []string) {
	switch v := c.CodePackage.(type) {
	case bool:
		return v, nil
	case string:
		// A bare pattern enables packaging with that single include.
		if v == "" {
			return false, nil
		}
		return true, []string{v}
	case map[string]interface{}:
		raw, ok := v["includes"]
		if !ok {
			return true, nil
		}
		switch patterns := raw.(type) {
		case string:
			return true, []string{patterns}
		case []interface{}:
			for _, p := range patterns {
				if s, ok := p.(string); ok {
					includes = append(includes, s)
				}
			}
			return true, includes
		case []string:
			return true, patterns
		}
		return true, nil
	default:
		return false, nil
	}
}

// Validate checks that required options are present.
func (c *Config) Validate() error {
	if c.ScratchRoot == "" {
		return fmt.Errorf("scratch_root is required")
	}
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.Backend == "aws_batch" && c.Batch.Queue == "" {
		return fmt.Errorf("batch.queue is required for the aws_batch backend")
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (REGATTA_*)
// 2. Project config (.regatta.yaml in current directory or parent)
// 3. User config (~/.config/regatta/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("REGATTA")
	v.AutomaticEnv()
	v.BindEnv("scratch_root", "REGATTA_SCRATCH_ROOT")
	v.BindEnv("image", "REGATTA_IMAGE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ScratchRoot = os.ExpandEnv(cfg.ScratchRoot)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ScratchRoot = os.ExpandEnv(cfg.ScratchRoot)

	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "docker")
	v.SetDefault("job_name_prefix", "regatta-job")
	v.SetDefault("job_monitor_interval", "5s")
	v.SetDefault("job_stale_time", "3s")
	v.SetDefault("code_package", false)
	v.SetDefault("project", "")
	v.SetDefault("user", "")
}

// getUserConfigDir returns the XDG config directory for Regatta.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "regatta")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "regatta")
	}
	return filepath.Join(home, ".config", "regatta")
}

// findProjectConfig searches for .regatta.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".regatta.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Backend:            "docker",
		JobNamePrefix:      "regatta-job",
		JobMonitorInterval: 5 * time.Second,
		JobStaleTime:       3 * time.Second,
		CodePackage:        false,
	}
}
