package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/logging"
)

// HeartbeatMonitor keeps running jobs alive and returns jobs whose workers
// stopped heartbeating to the pending queue.
type HeartbeatMonitor struct {
	store    checkpoint.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a monitor publishing heartbeats every interval
// and treating jobs silent for longer than timeout as abandoned.
func NewHeartbeatMonitor(store checkpoint.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStale resets abandoned running jobs to pending so another worker can
// pick them up. It returns the number of jobs reclaimed.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, logger *slog.Logger) (int64, error) {
	if h.timeout <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
	return reclaimed, nil
}

// StartLoop publishes heartbeats for one job until the context is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.Heartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed",
					logging.String(logging.FieldJobID, jobID),
					logging.Error(err))
			}
		}
	}
}
