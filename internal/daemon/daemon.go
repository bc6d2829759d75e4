package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/state"
	"reelsmith/internal/workflow"
)

// Daemon coordinates the workflow manager and API server and enforces
// single-instance execution through a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    checkpoint.Store
	manager  *workflow.Manager
	registry *prometheus.Registry

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	JobDBPath    string
	LockFilePath string
}

// New constructs a daemon around an already-wired manager. The metrics
// registry may be nil when metrics are not exported.
func New(cfg *config.Config, store checkpoint.Store, manager *workflow.Manager, logger *slog.Logger, registry *prometheus.Registry) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "reelsmithd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		manager:  manager,
		registry: registry,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches background processing.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("prepare lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelsmith daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the checkpoint store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// APIAddr returns the bound API address, empty until Start succeeds.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Submit queues a new job.
func (d *Daemon) Submit(ctx context.Context, input state.Input, opts state.Options) (*state.Record, error) {
	return d.manager.Submit(ctx, input, opts)
}

// Cancel requests cooperative cancellation of a job.
func (d *Daemon) Cancel(ctx context.Context, jobID string) error {
	return d.manager.Cancel(ctx, jobID)
}

// Retry requeues a failed or cancelled job from its last checkpoint.
func (d *Daemon) Retry(ctx context.Context, jobID string) (*state.Record, error) {
	return d.manager.Retry(ctx, jobID)
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses ...state.Status) ([]*state.Record, error) {
	return d.store.List(ctx, statuses...)
}

// Job returns the stored record for a job.
func (d *Daemon) Job(ctx context.Context, jobID string) (*state.Record, error) {
	return d.store.Load(ctx, jobID)
}

// ClearTerminal removes completed, failed, and cancelled jobs and returns the
// number deleted.
func (d *Daemon) ClearTerminal(ctx context.Context) (int, error) {
	records, err := d.store.List(ctx, state.StatusCompleted, state.StatusFailed, state.StatusCancelled)
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, rec := range records {
		if err := d.store.Remove(ctx, rec.JobID); err != nil {
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.manager.Status(ctx),
		JobDBPath:    filepath.Join(d.cfg.Paths.LogDir, "jobs.db"),
		LockFilePath: d.lockPath,
	}
}
