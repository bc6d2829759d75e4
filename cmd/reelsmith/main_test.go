package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/state"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
staging_dir = %q
library_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"
`,
		filepath.Join(base, "staging"),
		filepath.Join(base, "reels"),
		filepath.Join(base, "logs"),
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) string {
	t.Helper()
	out := runCLIExpectingError(t, configPath, true, args...)
	return out
}

func runCLIExpectingError(t *testing.T, configPath string, mustSucceed bool, args ...string) string {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	if mustSucceed && err != nil {
		t.Fatalf("reelsmith %s: %v\n%s", strings.Join(args, " "), err, buf.String())
	}
	if !mustSucceed && err == nil {
		t.Fatalf("reelsmith %s succeeded, expected error", strings.Join(args, " "))
	}
	return buf.String()
}

func openStore(t *testing.T, configPath string) *checkpoint.DB {
	t.Helper()
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := checkpoint.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func submitJob(t *testing.T, configPath, text string) string {
	t.Helper()
	out := runCLI(t, configPath, "submit", text)
	fields := strings.Fields(out)
	jobID := fields[len(fields)-1]
	if jobID == "" {
		t.Fatalf("submit output missing job id: %q", out)
	}
	return jobID
}

func TestSubmitQueuesPendingJob(t *testing.T) {
	configPath := writeTestConfig(t)
	jobID := submitJob(t, configPath, "First fact. Second fact.")

	store := openStore(t, configPath)
	rec, err := store.Load(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Status != state.StatusPending {
		t.Fatalf("status = %s, want pending", rec.Status)
	}
	if rec.Input.Type != "text" {
		t.Fatalf("input type = %s, want text", rec.Input.Type)
	}
}

func TestSubmitRejectsConflictingInputs(t *testing.T) {
	configPath := writeTestConfig(t)
	runCLIExpectingError(t, configPath, false, "submit", "inline", "--file", "doc.txt")
	runCLIExpectingError(t, configPath, false, "submit")
}

func TestJobsListShowsQueuedJobs(t *testing.T) {
	configPath := writeTestConfig(t)
	jobID := submitJob(t, configPath, "Alpha. Beta.")

	out := runCLI(t, configPath, "jobs", "list")
	if !strings.Contains(out, jobID[:8]) {
		t.Fatalf("list missing job id prefix:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Fatalf("list missing status:\n%s", out)
	}

	empty := runCLI(t, configPath, "jobs", "list", "--status", "failed")
	if !strings.Contains(empty, "No jobs queued") {
		t.Fatalf("filtered list should be empty:\n%s", empty)
	}
}

func TestJobsShowAcceptsPrefix(t *testing.T) {
	configPath := writeTestConfig(t)
	jobID := submitJob(t, configPath, "Gamma. Delta.")

	out := runCLI(t, configPath, "jobs", "show", jobID[:8])
	if !strings.Contains(out, jobID) {
		t.Fatalf("show missing full job id:\n%s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Fatalf("show missing status:\n%s", out)
	}
}

func TestJobsCancelAndRetry(t *testing.T) {
	configPath := writeTestConfig(t)
	jobID := submitJob(t, configPath, "Epsilon. Zeta.")

	runCLI(t, configPath, "jobs", "cancel", jobID)
	store := openStore(t, configPath)
	cancelled, err := store.CancelRequested(context.Background(), jobID)
	if err != nil {
		t.Fatalf("CancelRequested: %v", err)
	}
	if !cancelled {
		t.Fatal("cancel flag not set")
	}

	// Retry only applies to terminal failures.
	runCLIExpectingError(t, configPath, false, "jobs", "retry", jobID)

	rec, err := store.Load(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec.Status = state.StatusFailed
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out := runCLI(t, configPath, "jobs", "retry", jobID)
	if !strings.Contains(out, "Requeued") {
		t.Fatalf("retry output = %q", out)
	}
	rec, err = store.Load(context.Background(), jobID)
	if err != nil {
		t.Fatalf("Load after retry: %v", err)
	}
	if rec.Status != state.StatusPending {
		t.Fatalf("status after retry = %s, want pending", rec.Status)
	}
}

func TestJobsClearRemovesTerminalJobs(t *testing.T) {
	configPath := writeTestConfig(t)
	keep := submitJob(t, configPath, "Keep me. Please.")
	done := submitJob(t, configPath, "Done already. Yes.")

	store := openStore(t, configPath)
	rec, err := store.Load(context.Background(), done)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec.Status = state.StatusCompleted
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out := runCLI(t, configPath, "jobs", "clear")
	if !strings.Contains(out, "Removed 1 jobs") {
		t.Fatalf("clear output = %q", out)
	}
	if _, err := store.Load(context.Background(), keep); err != nil {
		t.Fatalf("pending job should survive clear: %v", err)
	}
}

func TestStatusRendersQueueCounts(t *testing.T) {
	configPath := writeTestConfig(t)
	submitJob(t, configPath, "Count me. Thanks.")

	out := runCLI(t, configPath, "status")
	if !strings.Contains(out, "pending") || !strings.Contains(out, "total") {
		t.Fatalf("status output incomplete:\n%s", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out := runCLI(t, "", "config", "init", "--path", target)
	if !strings.Contains(out, target) {
		t.Fatalf("init output = %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}
	runCLIExpectingError(t, "", false, "config", "init", "--path", target)
	runCLI(t, "", "config", "init", "--path", target, "--overwrite")
}

func TestConfigValidateRunsPreflight(t *testing.T) {
	configPath := writeTestConfig(t)
	out := runCLI(t, configPath, "config", "validate")
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("validate output incomplete:\n%s", out)
	}
	if !strings.Contains(out, "Staging directory") {
		t.Fatalf("validate missing preflight results:\n%s", out)
	}
}
