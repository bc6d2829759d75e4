package preflight_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"reelsmith/internal/preflight"
	"reelsmith/internal/testsupport"
)

func TestRunAllPassesWithWritableDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := preflight.RunAll(context.Background(), cfg)
	if len(results) == 0 {
		t.Fatal("expected at least one check")
	}
	if failed := preflight.Failures(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestCheckDirectoryAccessReportsMissing(t *testing.T) {
	result := preflight.CheckDirectoryAccess("Staging directory", filepath.Join(t.TempDir(), "absent"))
	if result.Passed {
		t.Fatal("missing directory should fail")
	}
}

func TestCheckDirectoryAccessRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if result := preflight.CheckDirectoryAccess("Staging directory", path); result.Passed {
		t.Fatal("regular file should fail the directory check")
	}
}

func TestCheckBindAddress(t *testing.T) {
	if result := preflight.CheckBindAddress("API bind address", "127.0.0.1:0"); !result.Passed {
		t.Fatalf("valid bind rejected: %+v", result)
	}
	if result := preflight.CheckBindAddress("API bind address", "no-port"); result.Passed {
		t.Fatal("bind without port should fail")
	}
}
