// Package stage defines the contract between the workflow orchestrator and
// the pipeline stage implementations, plus the registry that maps stage
// identifiers to lazily constructed handler singletons.
package stage

import (
	"context"
	"time"

	"reelsmith/internal/state"
)

// Handler describes the contract the orchestrator needs from each stage.
//
// Execute mutates the record in place; the orchestrator owns the record
// exclusively while a stage runs and checkpoints it after every transition.
// Errors returned from ValidateInput and Execute should be wrapped with
// services.Wrap so severity classification works.
type Handler interface {
	// Name returns the stage identifier the handler serves.
	Name() state.StageType
	// Description returns a short human-readable summary for status output.
	Description() string
	// ValidateInput checks that the record carries everything the stage
	// needs before any work starts.
	ValidateInput(ctx context.Context, rec *state.Record) error
	// Execute performs the stage work, updating progress and artifacts on
	// the record.
	Execute(ctx context.Context, rec *state.Record) error
	// HealthCheck reports whether the stage's dependencies are ready.
	HealthCheck(ctx context.Context) Health
}

// RetryPolicyOverride lets a handler replace the configured retry decision
// for its own failures. Handlers that do not implement it inherit the
// workflow default policy.
type RetryPolicyOverride interface {
	// ShouldRetry reports whether the stage wants another attempt after
	// the given 1-based attempt failed with err.
	ShouldRetry(err error, attempt int) bool
}

// RetryDelayOverride lets a handler replace the configured backoff schedule.
type RetryDelayOverride interface {
	// RetryDelay returns how long to wait after the given 1-based failed
	// attempt.
	RetryDelay(attempt int) time.Duration
}
