package state

import (
	"strings"
	"time"
)

// Severity classifies how a stage failure affects the run.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ParseSeverity converts a string into a known Severity, defaulting to error.
func ParseSeverity(value string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityWarning:
		return SeverityWarning
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// ErrorDetails carries structured diagnostic fields for a stage error. Known
// diagnostic kinds get named fields; anything genuinely unstructured goes in
// Extra.
type ErrorDetails struct {
	Operation string            `json:"operation,omitempty"`
	Path      string            `json:"path,omitempty"`
	Hint      string            `json:"hint,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether no detail field is populated.
func (d ErrorDetails) IsZero() bool {
	return d.Operation == "" && d.Path == "" && d.Hint == "" && len(d.Extra) == 0
}

// StageError is one entry in a record's append-only error ledger.
type StageError struct {
	StageID    StageType    `json:"stage_id"`
	ErrorCode  string       `json:"error_code"`
	Message    string       `json:"message"`
	Severity   Severity     `json:"severity"`
	Timestamp  time.Time    `json:"timestamp"`
	RetryCount int          `json:"retry_count"`
	Details    ErrorDetails `json:"details,omitzero"`
}

// IsRecoverable reports whether the workflow may continue past this error.
// Only critical errors are unrecoverable.
func (e StageError) IsRecoverable() bool {
	return e.Severity != SeverityCritical
}
