package checkpoint

import (
	"context"
	"errors"
	"time"

	"reelsmith/internal/state"
)

// ErrNotFound is returned when no checkpoint exists for the requested job.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists workflow state records between stage transitions.
//
// Save must be atomic per job: a crash mid-save leaves the previous
// checkpoint intact. The cancel flag lives beside the record rather than
// inside it so an API-side cancel cannot be lost to a concurrent orchestrator
// save.
type Store interface {
	// Save upserts the record keyed by its job ID.
	Save(ctx context.Context, rec *state.Record) error
	// Load returns the stored record, or ErrNotFound.
	Load(ctx context.Context, jobID string) (*state.Record, error)
	// Remove deletes the checkpoint for a job.
	Remove(ctx context.Context, jobID string) error
	// List returns records filtered by status, or all records when no
	// status is given, ordered by creation time.
	List(ctx context.Context, statuses ...state.Status) ([]*state.Record, error)
	// Stats counts jobs grouped by status.
	Stats(ctx context.Context) (map[state.Status]int, error)

	// ClaimPending atomically moves the oldest pending job to running and
	// returns it. It returns nil when the queue is empty.
	ClaimPending(ctx context.Context) (*state.Record, error)
	// Heartbeat refreshes the liveness timestamp of a running job.
	Heartbeat(ctx context.Context, jobID string) error
	// ReclaimStale returns running jobs whose heartbeat predates cutoff to
	// pending so another worker can pick them up.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)

	// RequestCancel flags a job for cooperative cancellation.
	RequestCancel(ctx context.Context, jobID string) error
	// CancelRequested reports whether cancellation has been requested.
	CancelRequested(ctx context.Context, jobID string) (bool, error)

	Close() error
}
