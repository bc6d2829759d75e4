package stages

import (
	"log/slog"

	"reelsmith/internal/breaker"
	"reelsmith/internal/config"
	"reelsmith/internal/metrics"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
)

// NewBreakerRegistry builds the breaker registry shared by handlers that call
// external services, reporting transitions to the collector when present.
func NewBreakerRegistry(cfg *config.Config, collector *metrics.Collector) *breaker.Registry {
	return breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.Recovery(),
		OnStateChange: func(name string, _, to breaker.State) {
			collector.BreakerTransition(name, string(to))
		},
	})
}

// DefaultRegistry wires every production stage handler.
func DefaultRegistry(cfg *config.Config, logger *slog.Logger, breakers *breaker.Registry) *stage.Registry {
	registry := stage.NewRegistry()
	registry.MustRegister(state.StageIngest, func() (stage.Handler, error) {
		return NewIngest(cfg, logger), nil
	})
	registry.MustRegister(state.StageUnderstand, func() (stage.Handler, error) {
		return NewUnderstand(cfg, logger), nil
	})
	registry.MustRegister(state.StageScript, func() (stage.Handler, error) {
		return NewScriptWriter(cfg, logger), nil
	})
	registry.MustRegister(state.StagePlan, func() (stage.Handler, error) {
		return NewPlanner(cfg, logger), nil
	})
	registry.MustRegister(state.StageRender, func() (stage.Handler, error) {
		return NewRenderer(cfg, logger), nil
	})
	registry.MustRegister(state.StageAudio, func() (stage.Handler, error) {
		return NewNarrator(cfg, logger, breakers), nil
	})
	registry.MustRegister(state.StageCompose, func() (stage.Handler, error) {
		return NewComposer(cfg, logger), nil
	})
	registry.MustRegister(state.StagePublish, func() (stage.Handler, error) {
		return NewPublisher(cfg, logger), nil
	})
	return registry
}
