package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/metrics"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
)

// Manager runs a pool of workers that claim pending jobs from the checkpoint
// store and execute them through the orchestrator. Each running job publishes
// heartbeats; the first worker also reclaims jobs whose workers died.
type Manager struct {
	cfg          *config.Config
	store        checkpoint.Store
	registry     *stage.Registry
	orchestrator *Orchestrator
	heartbeat    *HeartbeatMonitor
	logger       *slog.Logger
	metrics      *metrics.Collector

	pollInterval  time.Duration
	retryInterval time.Duration
	workerCount   int

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastJobID string
}

// NewManager constructs a manager and its orchestrator from configuration.
// The collector may be nil.
func NewManager(cfg *config.Config, store checkpoint.Store, registry *stage.Registry, graph *Graph, logger *slog.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Workflow.WorkerCount
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		registry:     registry,
		orchestrator: NewOrchestrator(cfg, store, registry, graph, logger, collector),
		heartbeat: NewHeartbeatMonitor(store, logger,
			cfg.Workflow.Heartbeat(), cfg.Workflow.HeartbeatExpiry()),
		logger:        logging.NewComponentLogger(logger, "workflow"),
		metrics:       collector,
		pollInterval:  cfg.Workflow.PollInterval(),
		retryInterval: cfg.Workflow.RetryBackoff(),
		workerCount:   workers,
	}
}

// Submit queues a new job and returns its pending record.
func (m *Manager) Submit(ctx context.Context, input state.Input, opts state.Options) (*state.Record, error) {
	if input.Content == "" {
		return nil, errors.New("submit: input content is required")
	}
	if input.Type == "" {
		input.Type = "text"
	}
	rec := state.NewRecord(input, opts)
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("queue job: %w", err)
	}
	m.metrics.JobSubmitted()
	m.logger.Info("job queued",
		logging.String(logging.FieldJobID, rec.JobID),
		logging.String("input_type", input.Type))
	return rec, nil
}

// Retry requeues a failed or cancelled job from its last checkpoint.
func (m *Manager) Retry(ctx context.Context, jobID string) (*state.Record, error) {
	rec, err := m.store.Load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch rec.Status {
	case state.StatusFailed, state.StatusCancelled:
	default:
		return nil, fmt.Errorf("retry job %s: status is %s", jobID, rec.Status)
	}
	rec.Status = state.StatusPending
	rec.Progress.CurrentMessage = "requeued"
	rec.LiftAbort()
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("requeue job: %w", err)
	}
	return rec, nil
}

// Cancel requests cooperative cancellation of a job.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	return m.orchestrator.Cancel(ctx, jobID)
}

// Start launches the worker pool. It returns an error when already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workerCount)
	m.mu.Unlock()

	for i := 0; i < m.workerCount; i++ {
		go m.runWorker(runCtx, i)
	}
	m.logger.Info("workflow started", logging.Int("workers", m.workerCount))
	return nil
}

// Stop halts the worker pool and waits for in-flight jobs to checkpoint.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

func (m *Manager) runWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, fmt.Sprintf("worker-%d", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Only one worker scans for abandoned jobs.
		if index == 0 {
			reclaimed, err := m.heartbeat.ReclaimStale(ctx, logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale jobs failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check checkpoint database access"))
			}
			m.metrics.JobsReclaimed(int(reclaimed))
		}

		rec, err := m.store.ClaimPending(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check checkpoint database access"))
			m.sleep(ctx, m.retryInterval)
			continue
		}
		if rec == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}

		m.setLastJob(rec.JobID)
		if err := m.executeWithHeartbeat(ctx, rec); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if !errors.Is(err, ErrCancelled) {
				m.setLastError(err)
			}
		}
	}
}

// executeWithHeartbeat runs one job while a background loop keeps its
// heartbeat fresh.
func (m *Manager) executeWithHeartbeat(ctx context.Context, rec *state.Record) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, rec.JobID)
	defer func() {
		stopHeartbeat()
		hbWG.Wait()
	}()

	return m.orchestrator.Execute(ctx, rec)
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// StatusSummary is the lightweight diagnostic snapshot served by the API.
type StatusSummary struct {
	Running     bool
	Workers     int
	LastError   string
	LastJobID   string
	QueueStats  map[state.Status]int
	StageHealth map[string]stage.Health
}

// Status reports queue depth, stage health, and the manager's run state.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastJobID := m.lastJobID
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	checks := m.registry.HealthChecks(ctx)
	health := make(map[string]stage.Health, len(checks))
	for _, check := range checks {
		health[check.Name] = check
	}

	summary := StatusSummary{
		Running:     running,
		Workers:     m.workerCount,
		LastJobID:   lastJobID,
		QueueStats:  stats,
		StageHealth: health,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(jobID string) {
	m.mu.Lock()
	m.lastJobID = jobID
	m.mu.Unlock()
}
