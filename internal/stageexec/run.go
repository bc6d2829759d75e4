// Package stageexec runs a single workflow stage under the retry policy,
// translating handler failures into ledger entries on the state record.
//
// The orchestrator calls RunWithRetry once per graph node. A nil return means
// the stage eventually succeeded; a non-nil return always carries critical
// severity and aborts the workflow (validation failures, exhausted retries,
// explicit critical errors, or cancellation).
package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/logging"
	"reelsmith/internal/metrics"
	"reelsmith/internal/retry"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
)

// Options controls stage execution and checkpoint persistence behaviour.
// Metrics may be nil.
type Options struct {
	Logger  *slog.Logger
	Store   checkpoint.Store
	Handler stage.Handler
	Policy  retry.Policy
	Record  *state.Record
	Metrics *metrics.Collector
}

// RunWithRetry executes the handler with validation, retries, and ledger
// bookkeeping. Every failed attempt is appended to the record's error ledger;
// intermediate failures are persisted when a store is supplied so the ledger
// survives a crash mid-retry.
func RunWithRetry(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return services.Wrap(services.ErrCritical, "", "run stage", "stage handler unavailable", nil)
	}
	if opts.Record == nil {
		return services.Wrap(services.ErrCritical, "", "run stage", "state record is required", nil)
	}

	stageType := opts.Handler.Name()
	stageCtx := services.WithStage(services.WithJobID(ctx, opts.Record.JobID), string(stageType))
	logger := logging.WithContext(stageCtx, opts.Logger)

	if err := opts.Handler.ValidateInput(stageCtx, opts.Record); err != nil {
		if !isClassified(err) {
			err = services.Wrap(services.ErrValidation, string(stageType), "validate input", "", err)
		}
		recordFailure(stageCtx, opts, stageType, err, 0)
		logger.Error("stage input rejected", logging.Args(logging.FailureAttrs(err)...)...)
		return escalate(stageType, err)
	}

	if opts.Record.AbortRequired() {
		logger.Error("abort condition set; refusing to execute stage")
		return services.Wrap(services.ErrCritical, string(stageType), "abort check",
			"a critical error is already recorded for this run", nil)
	}

	maxAttempts := attemptBudget(opts)
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := stageCtx.Err(); err != nil {
			return err
		}

		opts.Record.SetProgress(stageType, fmt.Sprintf("%s running", stageType.Label()), 0)
		if attempt == 1 {
			logger.Info("stage started", logging.String("description", opts.Handler.Description()))
		} else {
			logger.Info("stage retrying", logging.Int(logging.FieldAttempt, attempt))
		}

		lastErr = opts.Handler.Execute(stageCtx, opts.Record)
		if lastErr == nil {
			return nil
		}

		recordFailure(stageCtx, opts, stageType, lastErr, attempt-1)

		if errors.Is(lastErr, services.ErrCritical) {
			logger.Error("stage failed", logging.Args(logging.FailureAttrs(lastErr)...)...)
			return escalate(stageType, lastErr)
		}
		if !shouldRetry(opts, lastErr, attempt) {
			break
		}

		opts.Metrics.StageRetried(string(stageType))
		delay := retryDelay(opts, attempt)
		attrs := append(logging.FailureAttrs(lastErr),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("retry_in", delay))
		logger.Warn("stage attempt failed", logging.Args(attrs...)...)
		if err := retry.Wait(stageCtx, delay); err != nil {
			return err
		}
	}

	// Out of attempts (or the error was permanent). The failure becomes
	// critical so the orchestrator marks the job failed.
	escalated := escalate(stageType, lastErr)
	recordFailure(stageCtx, opts, stageType, escalated, maxAttempts-1)
	attrs := append(logging.FailureAttrs(escalated), logging.Int("attempts", maxAttempts))
	logger.Error("stage failed permanently", logging.Args(attrs...)...)
	return escalated
}

func attemptBudget(opts Options) int {
	attempts := opts.Policy.MaxAttempts
	if opts.Record != nil && opts.Record.Options.MaxAttempts > 0 {
		attempts = opts.Record.Options.MaxAttempts
	}
	if attempts < 1 {
		attempts = 1
	}
	return attempts
}

func shouldRetry(opts Options, err error, attempt int) bool {
	if attempt >= attemptBudget(opts) {
		return false
	}
	if override, ok := opts.Handler.(stage.RetryPolicyOverride); ok {
		return override.ShouldRetry(err, attempt)
	}
	return opts.Policy.ShouldRetry(err, attempt)
}

func retryDelay(opts Options, attempt int) time.Duration {
	if override, ok := opts.Handler.(stage.RetryDelayOverride); ok {
		return override.RetryDelay(attempt)
	}
	return opts.Policy.Delay(attempt)
}

// recordFailure appends a ledger entry and persists the record so failures
// survive crashes between attempts.
func recordFailure(ctx context.Context, opts Options, stageType state.StageType, err error, retryCount int) {
	opts.Record.AppendError(services.NewStageError(stageType, err, retryCount))
	opts.Metrics.StageFailed(string(stageType), services.Details(err).Code)
	if opts.Store != nil {
		if saveErr := opts.Store.Save(ctx, opts.Record); saveErr != nil {
			logging.WithContext(ctx, opts.Logger).Warn("persist failure ledger", logging.Error(saveErr))
		}
	}
}

func isClassified(err error) bool {
	var failure *services.StageFailure
	return errors.As(err, &failure)
}

func escalate(stageType state.StageType, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrCritical) {
		return err
	}
	details := services.Details(err)
	return services.Wrap(services.ErrCritical, string(stageType), details.Operation, details.Message, err)
}
