package daemon

import (
	"time"

	"reelsmith/internal/state"
)

// SubmitRequest is the POST /api/jobs payload.
type SubmitRequest struct {
	Type               string `json:"type"`
	Content            string `json:"content"`
	MaxAttempts        int    `json:"max_attempts,omitempty"`
	MaxDurationSeconds int    `json:"max_duration_seconds,omitempty"`
	NarrationEnabled   bool   `json:"narration_enabled,omitempty"`
	Voice              string `json:"voice,omitempty"`
	OverwriteExisting  bool   `json:"overwrite_existing,omitempty"`
}

// Options converts the request into per-job options.
func (r SubmitRequest) Options() state.Options {
	return state.Options{
		MaxAttempts:        r.MaxAttempts,
		MaxDurationSeconds: r.MaxDurationSeconds,
		NarrationEnabled:   r.NarrationEnabled,
		Voice:              r.Voice,
		OverwriteExisting:  r.OverwriteExisting,
	}
}

// JobSummary is the list-view projection of a job record.
type JobSummary struct {
	JobID     string          `json:"job_id"`
	Status    state.Status    `json:"status"`
	Stage     state.StageType `json:"stage"`
	Progress  float64         `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Errors    int             `json:"errors"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SummarizeJob projects a record into its list view.
func SummarizeJob(rec *state.Record) JobSummary {
	return JobSummary{
		JobID:     rec.JobID,
		Status:    rec.Status,
		Stage:     rec.CurrentStage,
		Progress:  rec.Progress.OverallProgress,
		Message:   rec.Progress.CurrentMessage,
		Errors:    len(rec.Errors),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// JobListResponse is the GET /api/jobs payload.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// JobResponse wraps a full job record.
type JobResponse struct {
	Job *state.Record `json:"job"`
}

// StatusResponse is the GET /api/status payload.
type StatusResponse struct {
	Running      bool                    `json:"running"`
	Workers      int                     `json:"workers"`
	LastError    string                  `json:"last_error,omitempty"`
	QueueStats   map[state.Status]int    `json:"queue_stats"`
	StageHealth  map[string]StageHealth  `json:"stage_health"`
	JobDBPath    string                  `json:"job_db_path"`
	LockFilePath string                  `json:"lock_file_path"`
}

// StageHealth is the API projection of a stage health check.
type StageHealth struct {
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// FromStatus converts daemon status into its API payload.
func FromStatus(status Status) StatusResponse {
	resp := StatusResponse{
		Running:      status.Running,
		Workers:      status.Workflow.Workers,
		LastError:    status.Workflow.LastError,
		QueueStats:   status.Workflow.QueueStats,
		StageHealth:  make(map[string]StageHealth, len(status.Workflow.StageHealth)),
		JobDBPath:    status.JobDBPath,
		LockFilePath: status.LockFilePath,
	}
	for name, health := range status.Workflow.StageHealth {
		resp.StageHealth[name] = StageHealth{Ready: health.Ready, Detail: health.Detail}
	}
	return resp
}
