package services_test

import (
	"errors"
	"testing"

	"reelsmith/internal/services"
	"reelsmith/internal/state"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := services.Wrap(services.ErrTransient, "render", "fetch assets", "asset host unreachable", cause)

	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("wrapped error lost its marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if got := services.CodeFor(err); got != "transient" {
		t.Fatalf("CodeFor = %q, want transient", got)
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "audio", "synthesize", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("nil marker should default to transient")
	}
}

func TestSeverityClassification(t *testing.T) {
	critical := services.Wrap(services.ErrCritical, "publish", "move", "library unavailable", nil)
	if got := services.SeverityFor(critical); got != state.SeverityCritical {
		t.Fatalf("SeverityFor(critical) = %s", got)
	}

	transient := services.Wrap(services.ErrTransient, "render", "draw", "", nil)
	if got := services.SeverityFor(transient); got != state.SeverityError {
		t.Fatalf("SeverityFor(transient) = %s", got)
	}
}

func TestRetryableClassification(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"critical", services.Wrap(services.ErrCritical, "s", "", "", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "s", "", "", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "s", "", "", nil), false},
		{"transient", services.Wrap(services.ErrTransient, "s", "", "", nil), true},
		{"external", services.Wrap(services.ErrExternalTool, "s", "", "", nil), true},
		{"plain", errors.New("boom"), true},
	} {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Errorf("Retryable(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDetailsExtraction(t *testing.T) {
	err := services.WithHint(
		services.Wrap(services.ErrExternalTool, "render", "rasterize", "renderer exited", errors.New("exit status 2")),
		"verify renderer installation",
	)

	details := services.Details(err)
	if details.Operation != "rasterize" {
		t.Fatalf("Operation = %q", details.Operation)
	}
	if details.Hint != "verify renderer installation" {
		t.Fatalf("Hint = %q", details.Hint)
	}
	if details.Code != "external_tool" {
		t.Fatalf("Code = %q", details.Code)
	}
	if details.Cause == nil {
		t.Fatal("Cause missing")
	}
}

func TestNewStageError(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "ingest", "validate", "unsupported input type", nil)
	entry := services.NewStageError(state.StageIngest, err, 2)

	if entry.StageID != state.StageIngest {
		t.Fatalf("StageID = %s", entry.StageID)
	}
	if entry.ErrorCode != "validation" {
		t.Fatalf("ErrorCode = %q", entry.ErrorCode)
	}
	if entry.Severity != state.SeverityError {
		t.Fatalf("Severity = %s", entry.Severity)
	}
	if entry.RetryCount != 2 {
		t.Fatalf("RetryCount = %d", entry.RetryCount)
	}
	if !entry.IsRecoverable() {
		t.Fatal("validation errors are non-retryable but recoverable")
	}
}
