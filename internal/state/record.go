package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a pipeline job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether a job in this status will never run again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(value), true
	default:
		return "", false
	}
}

// Input is the caller-supplied payload a job operates on.
type Input struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Options holds per-job configuration fixed at submission time. Fields are
// read-only once the job starts.
type Options struct {
	MaxAttempts        int    `json:"max_attempts"`
	MaxDurationSeconds int    `json:"max_duration_seconds"`
	NarrationEnabled   bool   `json:"narration_enabled"`
	Voice              string `json:"voice,omitempty"`
	OverwriteExisting  bool   `json:"overwrite_existing"`
}

// MaxDuration returns the job's global timeout, or zero when unbounded.
func (o Options) MaxDuration() time.Duration {
	if o.MaxDurationSeconds <= 0 {
		return 0
	}
	return time.Duration(o.MaxDurationSeconds) * time.Second
}

// Progress tracks how far a job has advanced through the workflow graph.
type Progress struct {
	CurrentStep     StageType   `json:"current_step"`
	OverallProgress float64     `json:"overall_progress"`
	StepProgress    float64     `json:"step_progress"`
	CompletedSteps  []StageType `json:"completed_steps"`
	CurrentMessage  string      `json:"current_message"`
}

// Completed reports whether the given step is already in the completed set.
func (p Progress) Completed(step StageType) bool {
	for _, s := range p.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Record is the versioned, serializable state carried through a job's entire
// run. It is exclusively owned by the orchestrator while the job executes.
type Record struct {
	JobID        string                     `json:"job_id"`
	Input        Input                      `json:"input"`
	Options      Options                    `json:"options"`
	Progress     Progress                   `json:"progress"`
	Errors       []StageError               `json:"errors"`
	AckedErrors  int                        `json:"acked_errors,omitempty"`
	CurrentStage StageType                  `json:"current_stage"`
	Status       Status                     `json:"status"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
	Artifacts    map[string]json.RawMessage `json:"artifacts,omitempty"`
}

// NewRecord creates a pending record with a fresh job ID.
func NewRecord(input Input, opts Options) *Record {
	now := time.Now().UTC()
	return &Record{
		JobID:     uuid.NewString(),
		Input:     input,
		Options:   opts,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch refreshes the record's update timestamp.
func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC()
}

// AppendError adds an entry to the append-only error ledger.
func (r *Record) AppendError(entry StageError) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	r.Errors = append(r.Errors, entry)
	r.Touch()
}

// AbortRequired reports whether a critical error has been recorded in the
// current run. The orchestrator must observe this before starting the next
// stage.
func (r *Record) AbortRequired() bool {
	start := r.AckedErrors
	if start < 0 || start > len(r.Errors) {
		start = 0
	}
	for _, e := range r.Errors[start:] {
		if e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// LiftAbort acknowledges every recorded error so a requeued job is not
// aborted by the failure that ended its previous run. AckedErrors marks how
// far the ledger has been adjudicated; the entries themselves are never
// truncated.
func (r *Record) LiftAbort() {
	r.AckedErrors = len(r.Errors)
	r.Touch()
}

// NonFatalErrors returns the warning/error entries that did not halt the run.
func (r *Record) NonFatalErrors() []StageError {
	var out []StageError
	for _, e := range r.Errors {
		if e.Severity != SeverityCritical {
			out = append(out, e)
		}
	}
	return out
}

// SetProgress updates the step, message, and step-local percentage together.
func (r *Record) SetProgress(step StageType, message string, stepProgress float64) {
	r.Progress.CurrentStep = step
	r.Progress.CurrentMessage = message
	r.Progress.StepProgress = clampUnit(stepProgress)
	r.Touch()
}

// MarkStepComplete records step completion and advances overall progress.
// Both the completed set and overall progress are monotonic: re-marking a
// completed step is a no-op, and overall progress never decreases.
func (r *Record) MarkStepComplete(step StageType, overall float64) {
	if !r.Progress.Completed(step) {
		r.Progress.CompletedSteps = append(r.Progress.CompletedSteps, step)
	}
	if overall = clampUnit(overall); overall > r.Progress.OverallProgress {
		r.Progress.OverallProgress = overall
	}
	r.Progress.StepProgress = 1
	r.Touch()
}

// SetArtifact attaches a named, opaque artifact payload to the record.
func (r *Record) SetArtifact(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal artifact %q: %w", name, err)
	}
	if r.Artifacts == nil {
		r.Artifacts = make(map[string]json.RawMessage)
	}
	r.Artifacts[name] = raw
	r.Touch()
	return nil
}

// Artifact decodes the named artifact into dst. It returns ErrNoArtifact when
// the artifact is absent.
func (r *Record) Artifact(name string, dst any) error {
	raw, ok := r.Artifacts[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoArtifact, name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode artifact %q: %w", name, err)
	}
	return nil
}

// HasArtifact reports whether the named artifact is present.
func (r *Record) HasArtifact(name string) bool {
	_, ok := r.Artifacts[name]
	return ok
}

// ErrNoArtifact is returned when a stage requests an artifact that has not
// been attached yet.
var ErrNoArtifact = errors.New("artifact not present")

// Clone returns a deep copy of the record via a serialization round-trip, so
// status snapshots never alias the orchestrator-owned record.
func (r *Record) Clone() (*Record, error) {
	raw, err := Encode(r)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Encode serializes a record for checkpointing.
func Encode(r *Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return raw, nil
}

// Decode deserializes a checkpointed record.
func Decode(raw []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if rec.JobID == "" {
		return nil, errors.New("decode record: missing job_id")
	}
	return &rec, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
