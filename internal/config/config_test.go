package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/config"
)

func TestLoadDefaultsExpandPathsAndEnvToken(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("REELSMITH_API_TOKEN", "secret-token")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "reelsmith", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "reels") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7787" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Paths.APIToken != "secret-token" {
		t.Fatalf("expected token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Retry.Strategy != "exponential" {
		t.Fatalf("unexpected default strategy: %q", cfg.Retry.Strategy)
	}
	if !cfg.Retry.Jitter {
		t.Fatal("expected jitter enabled by default")
	}
	if cfg.Workflow.WorkerCount != config.Default().Workflow.WorkerCount {
		t.Fatalf("unexpected worker count: %d", cfg.Workflow.WorkerCount)
	}
	if !cfg.Audio.Enabled {
		t.Fatal("expected audio enabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LibraryDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPathOverridesAndNormalizes(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reelsmith.toml")

	contents := `
[paths]
staging_dir = "` + filepath.ToSlash(filepath.Join(tempDir, "staging")) + `"
library_dir = "` + filepath.ToSlash(filepath.Join(tempDir, "reels")) + `"

[retry]
strategy = "  LINEAR  "
max_attempts = 5

[workflow]
worker_count = 4

[logging]
format = "fancy"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("resolved = %q exists = %v", resolved, exists)
	}
	if cfg.Retry.Strategy != "linear" {
		t.Fatalf("strategy not normalized: %q", cfg.Retry.Strategy)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("max_attempts = %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Workflow.WorkerCount != 4 {
		t.Fatalf("worker_count = %d", cfg.Workflow.WorkerCount)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unknown format should fall back to console, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadStrategy(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.Strategy = "quadratic"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "retry.strategy") {
		t.Fatalf("expected strategy validation error, got %v", err)
	}
}

func TestValidateRejectsSharedStagingAndLibrary(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StagingDir = "/tmp/reelsmith"
	cfg.Paths.LibraryDir = "/tmp/reelsmith"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for shared directories")
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("sample config should exist")
	}
	if cfg.Breaker.FailureThreshold != config.Default().Breaker.FailureThreshold {
		t.Fatalf("sample breaker threshold = %d", cfg.Breaker.FailureThreshold)
	}
}
