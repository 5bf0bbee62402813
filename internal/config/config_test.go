package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
backend: aws_batch
image: my-image
scratch_root: s3://example-bucket/regatta
job_monitor_interval: 50ms
job_stale_time: 10ms
batch:
  queue: regatta-queue
  job_definition: regatta-def
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Backend != "aws_batch" {
		t.Errorf("expected backend aws_batch, got %q", cfg.Backend)
	}
	if cfg.Image != "my-image" {
		t.Errorf("expected image my-image, got %q", cfg.Image)
	}
	if cfg.ScratchRoot != "s3://example-bucket/regatta" {
		t.Errorf("unexpected scratch root %q", cfg.ScratchRoot)
	}
	if cfg.JobMonitorInterval != 50*time.Millisecond {
		t.Errorf("expected 50ms monitor interval, got %s", cfg.JobMonitorInterval)
	}
	if cfg.JobStaleTime != 10*time.Millisecond {
		t.Errorf("expected 10ms stale time, got %s", cfg.JobStaleTime)
	}
	if cfg.Batch.Queue != "regatta-queue" || cfg.Batch.JobDefinition != "regatta-def" {
		t.Errorf("unexpected batch settings %+v", cfg.Batch)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
image: my-image
scratch_root: /tmp/scratch
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != "docker" {
		t.Errorf("expected default backend docker, got %q", cfg.Backend)
	}
	if cfg.JobNamePrefix != "regatta-job" {
		t.Errorf("expected default prefix, got %q", cfg.JobNamePrefix)
	}
	if cfg.JobMonitorInterval != 5*time.Second {
		t.Errorf("expected default 5s interval, got %s", cfg.JobMonitorInterval)
	}

	enabled, _ := cfg.CodePackageSettings()
	if enabled {
		t.Error("expected code packaging disabled by default")
	}
}

func TestCodePackageBool(t *testing.T) {
	path := writeConfig(t, `
image: img
scratch_root: /tmp/scratch
code_package: true
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	enabled, includes := cfg.CodePackageSettings()
	if !enabled {
		t.Error("expected code packaging enabled")
	}
	if includes != nil {
		t.Errorf("expected default includes, got %v", includes)
	}
}

func TestCodePackageIncludes(t *testing.T) {
	path := writeConfig(t, `
image: img
scratch_root: /tmp/scratch
code_package:
  includes:
    - "**/*.go"
    - "*.txt"
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	enabled, includes := cfg.CodePackageSettings()
	if !enabled {
		t.Error("expected code packaging enabled")
	}
	if len(includes) != 2 || includes[0] != "**/*.go" || includes[1] != "*.txt" {
		t.Errorf("unexpected includes %v", includes)
	}
}

func TestCodePackageSinglePattern(t *testing.T) {
	cfg := &Config{CodePackage: "*.txt"}
	enabled, includes := cfg.CodePackageSettings()
	if !enabled || len(includes) != 1 || includes[0] != "*.txt" {
		t.Errorf("unexpected settings enabled=%v includes=%v", enabled, includes)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing scratch_root")
	}

	cfg.ScratchRoot = "/tmp/scratch"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing image")
	}

	cfg.Image = "img"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Backend = "aws_batch"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing batch queue")
	}
}
