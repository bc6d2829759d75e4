package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/metrics"
	"reelsmith/internal/preflight"
	"reelsmith/internal/stages"
	"reelsmith/internal/workflow"
)

// Bootstrap wires the production daemon: SQLite checkpoint store, Prometheus
// registry, the full stage registry, and the workflow manager.
func Bootstrap(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	for _, check := range preflight.Failures(preflight.RunAll(context.Background(), cfg)) {
		logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail))
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{
			Dir:     cfg.Paths.LogDir,
			Pattern: "*.log",
			Exclude: []string{filepath.Join(cfg.Paths.LogDir, "reelsmith.log")},
		})

	store, err := checkpoint.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(registry)

	breakers := stages.NewBreakerRegistry(cfg, collector)
	stageRegistry := stages.DefaultRegistry(cfg, logger, breakers)
	graph := workflow.DefaultGraph()
	if err := graph.Validate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("validate workflow graph: %w", err)
	}

	manager := workflow.NewManager(cfg, store, stageRegistry, graph, logger, collector)
	d, err := New(cfg, store, manager, logger, registry)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return d, nil
}
