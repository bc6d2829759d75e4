package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/metrics"
	"reelsmith/internal/retry"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/stageexec"
	"reelsmith/internal/state"
)

// ErrCancelled is returned by Run when a job stops at a stage boundary
// because cancellation was requested.
var ErrCancelled = errors.New("workflow cancelled")

// Orchestrator executes a single job against the stage graph, checkpointing
// the record after every transition so a crash resumes at the last completed
// step instead of restarting the pipeline.
type Orchestrator struct {
	store    checkpoint.Store
	registry *stage.Registry
	graph    *Graph
	policy   retry.Policy
	deadline time.Duration
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// NewOrchestrator wires an orchestrator from configuration. The collector may
// be nil when metrics are not exported.
func NewOrchestrator(cfg *config.Config, store checkpoint.Store, registry *stage.Registry, graph *Graph, logger *slog.Logger, collector *metrics.Collector) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		graph:    graph,
		policy:   retry.FromConfig(cfg.Retry),
		deadline: cfg.Workflow.JobDeadline(),
		logger:   logging.NewComponentLogger(logger, "orchestrator"),
		metrics:  collector,
	}
}

// Run loads the checkpoint for a job and executes the workflow from wherever
// it left off.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*state.Record, error) {
	rec, err := o.store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return rec, nil
	}
	err = o.Execute(ctx, rec)
	return rec, err
}

// Cancel flags a job for cooperative cancellation. The running worker
// observes the flag at the next stage boundary.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	return o.store.RequestCancel(ctx, jobID)
}

// Status returns the stored record for a job.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*state.Record, error) {
	return o.store.Load(ctx, jobID)
}

// Execute walks the graph for the record, resuming past completed steps.
// It returns nil on completion, ErrCancelled on cooperative cancellation,
// the stage error when the job fails, and the bare context error when the
// surrounding daemon shuts down (leaving the job reclaimable).
func (o *Orchestrator) Execute(ctx context.Context, rec *state.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	jobCtx := ctx
	deadline := o.deadline
	if d := rec.Options.MaxDuration(); d > 0 {
		deadline = d
	}
	if deadline > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	jobCtx = services.WithJobID(jobCtx, rec.JobID)
	logger := logging.WithContext(jobCtx, o.logger)
	started := time.Now()

	current := o.graph.Start()
	if rec.CurrentStage != state.StageNone && o.graph.Contains(rec.CurrentStage) {
		current = rec.CurrentStage
	}

	rec.Status = state.StatusRunning
	o.metrics.JobStarted()
	defer o.metrics.JobDone()

	resumed := false
	for {
		// Skip steps finished before a crash or restart.
		if rec.Progress.Completed(current) {
			resumed = true
			next, err := o.graph.Next(current, rec)
			if err != nil {
				return o.failWorkflow(jobCtx, rec, current, err)
			}
			if next == state.StageNone {
				return o.completeWorkflow(jobCtx, rec, started)
			}
			current = next
			continue
		}
		if resumed {
			logger.Info("resuming from checkpoint", logging.String(logging.FieldStage, string(current)))
			resumed = false
		}

		if stop, err := o.checkBoundary(jobCtx, rec, current); stop {
			return err
		}

		rec.CurrentStage = current
		if err := o.store.Save(jobCtx, rec); err != nil {
			return fmt.Errorf("checkpoint stage start: %w", err)
		}

		handler, err := o.registry.GetInstance(current)
		if err != nil {
			return o.failWorkflow(jobCtx, rec, current, err)
		}

		stageStart := time.Now()
		execErr := stageexec.RunWithRetry(jobCtx, stageexec.Options{
			Logger:  o.logger,
			Store:   o.store,
			Handler: handler,
			Policy:  o.policy,
			Record:  rec,
			Metrics: o.metrics,
		})
		o.metrics.ObserveStage(string(current), time.Since(stageStart), execErr == nil)

		if execErr != nil {
			if jobCtx.Err() == context.DeadlineExceeded {
				return o.timeoutWorkflow(jobCtx, rec, current, deadline)
			}
			if ctx.Err() != nil {
				// Daemon shutdown: leave the job running so the
				// heartbeat reclaimer hands it to another worker.
				return ctx.Err()
			}
			return o.failWorkflow(jobCtx, rec, current, execErr)
		}

		next, err := o.graph.Next(current, rec)
		if err != nil {
			return o.failWorkflow(jobCtx, rec, current, err)
		}

		rec.MarkStepComplete(current, o.progressAfter(rec))
		if next == state.StageNone {
			return o.completeWorkflow(jobCtx, rec, started)
		}
		current = next
		if err := o.store.Save(jobCtx, rec); err != nil {
			return fmt.Errorf("checkpoint stage completion: %w", err)
		}
	}
}

// checkBoundary enforces cancellation and deadline at stage boundaries.
// It returns stop=true when the workflow must not continue.
func (o *Orchestrator) checkBoundary(ctx context.Context, rec *state.Record, current state.StageType) (bool, error) {
	cancelled, err := o.store.CancelRequested(ctx, rec.JobID)
	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return true, fmt.Errorf("query cancel flag: %w", err)
	}
	if cancelled {
		rec.Status = state.StatusCancelled
		rec.Progress.CurrentMessage = "cancelled by request"
		if saveErr := o.store.Save(ctx, rec); saveErr != nil {
			return true, fmt.Errorf("checkpoint cancellation: %w", saveErr)
		}
		o.metrics.JobFinished(string(state.StatusCancelled))
		logging.WithContext(ctx, o.logger).Info("workflow cancelled",
			logging.String(logging.FieldStage, string(current)))
		return true, ErrCancelled
	}
	if ctx.Err() == context.DeadlineExceeded {
		return true, o.timeoutWorkflow(ctx, rec, current, 0)
	}
	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	// A critical ledger entry from this run halts the job even when the
	// record was resumed mid-failure, e.g. after a crash between the ledger
	// save and the failure checkpoint.
	if rec.AbortRequired() {
		return true, o.failWorkflow(ctx, rec, current, services.Wrap(services.ErrCritical,
			string(current), "abort check", "critical error recorded; aborting workflow", nil))
	}
	return false, nil
}

func (o *Orchestrator) completeWorkflow(ctx context.Context, rec *state.Record, started time.Time) error {
	rec.Status = state.StatusCompleted
	rec.CurrentStage = state.StageNone
	rec.Progress.OverallProgress = 1
	rec.Progress.StepProgress = 1
	rec.Progress.CurrentMessage = "completed"
	if err := o.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("checkpoint completion: %w", err)
	}
	o.metrics.JobFinished(string(state.StatusCompleted))
	logging.WithContext(ctx, o.logger).Info("workflow completed",
		logging.Duration("duration", time.Since(started)),
		logging.Int("errors", len(rec.NonFatalErrors())))
	return nil
}

func (o *Orchestrator) failWorkflow(ctx context.Context, rec *state.Record, current state.StageType, cause error) error {
	rec.Status = state.StatusFailed
	rec.Progress.CurrentMessage = services.Details(cause).Message
	if err := o.store.Save(ctx, rec); err != nil {
		logging.WithContext(ctx, o.logger).Error("checkpoint failure state", logging.Error(err))
	}
	o.metrics.JobFinished(string(state.StatusFailed))
	attrs := append(logging.FailureAttrs(cause), logging.String(logging.FieldStage, string(current)))
	logging.WithContext(ctx, o.logger).Error("workflow failed", logging.Args(attrs...)...)
	return cause
}

// timeoutWorkflow records the deadline breach as a critical workflow-level
// error and fails the job.
func (o *Orchestrator) timeoutWorkflow(ctx context.Context, rec *state.Record, current state.StageType, deadline time.Duration) error {
	message := "workflow deadline exceeded"
	if deadline > 0 {
		message = fmt.Sprintf("workflow deadline of %s exceeded", deadline)
	}
	rec.AppendError(state.StageError{
		StageID:   current,
		ErrorCode: "workflow_timeout",
		Message:   message,
		Severity:  state.SeverityCritical,
		Timestamp: time.Now().UTC(),
	})
	// Save with a fresh context; the job context is already expired.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	rec.Status = state.StatusFailed
	rec.Progress.CurrentMessage = message
	if err := o.store.Save(saveCtx, rec); err != nil {
		logging.WithContext(ctx, o.logger).Error("checkpoint timeout state", logging.Error(err))
	}
	o.metrics.JobFinished(string(state.StatusFailed))
	logging.WithContext(ctx, o.logger).Error("workflow timed out",
		logging.String(logging.FieldStage, string(current)),
		logging.Duration("deadline", deadline))
	return services.Wrap(services.ErrCritical, string(current), "workflow timeout", message, context.DeadlineExceeded)
}

// progressAfter computes the overall fraction once the current step is done.
func (o *Orchestrator) progressAfter(rec *state.Record) float64 {
	total := o.graph.Len()
	if total == 0 {
		return 1
	}
	return float64(len(rec.Progress.CompletedSteps)+1) / float64(total)
}
