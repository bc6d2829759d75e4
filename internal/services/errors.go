package services

import (
	"errors"
	"fmt"
	"strings"

	"reelsmith/internal/state"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient failure")
	ErrExternalTool  = errors.New("external tool error")
	ErrTimeout       = errors.New("timeout")
	ErrCritical      = errors.New("critical failure")
)

// StageFailure carries stage context alongside the classification marker so
// the execution wrapper can build structured ledger entries without string
// parsing.
type StageFailure struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Hint      string
	Err       error
}

func (f *StageFailure) Error() string {
	detail := buildDetail(f.Stage, f.Operation, f.Message)
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Marker, detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Marker, detail)
}

func (f *StageFailure) Unwrap() error { return f.Err }

// Is lets errors.Is match the classification marker in addition to the cause
// chain.
func (f *StageFailure) Is(target error) bool { return f.Marker == target }

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later severity classification. The marker should be one
// of the exported sentinel errors above; nil defaults to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &StageFailure{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// WithHint attaches an operator-facing remediation hint to a wrapped failure.
func WithHint(err error, hint string) error {
	var failure *StageFailure
	if errors.As(err, &failure) {
		failure.Hint = strings.TrimSpace(hint)
		return err
	}
	return err
}

// Details summarizes a stage error for logging and the error ledger.
type FailureDetails struct {
	Code      string
	Operation string
	Hint      string
	Message   string
	Cause     error
}

// Details extracts structured diagnostics from an error produced by Wrap,
// falling back to the bare error text for foreign errors.
func Details(err error) FailureDetails {
	if err == nil {
		return FailureDetails{}
	}
	d := FailureDetails{
		Code:    CodeFor(err),
		Message: err.Error(),
	}
	var failure *StageFailure
	if errors.As(err, &failure) {
		d.Operation = failure.Operation
		d.Hint = failure.Hint
		d.Cause = failure.Err
		d.Message = buildDetail(failure.Stage, failure.Operation, failure.Message)
		if d.Message == "" && failure.Err != nil {
			d.Message = failure.Err.Error()
		}
	}
	return d
}

// SeverityFor maps an error to the severity the orchestrator records for it.
// Only errors explicitly tagged critical abort the workflow.
func SeverityFor(err error) state.Severity {
	if errors.Is(err, ErrCritical) {
		return state.SeverityCritical
	}
	return state.SeverityError
}

// Retryable reports whether an error class may be retried. Validation and
// configuration failures are permanent; critical errors are never retried.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrCritical):
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return false
	default:
		return true
	}
}

// CodeFor maps an error to a stable ledger error code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrCritical):
		return "critical"
	default:
		return "transient"
	}
}

// NewStageError converts a stage failure into a ledger entry.
func NewStageError(stageID state.StageType, err error, retryCount int) state.StageError {
	details := Details(err)
	entry := state.StageError{
		StageID:    stageID,
		ErrorCode:  details.Code,
		Message:    details.Message,
		Severity:   SeverityFor(err),
		RetryCount: retryCount,
		Details: state.ErrorDetails{
			Operation: details.Operation,
			Hint:      details.Hint,
		},
	}
	if entry.Message == "" && err != nil {
		entry.Message = err.Error()
	}
	return entry
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	return strings.Join(parts, ": ")
}
