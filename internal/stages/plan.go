package stages

import (
	"context"
	"log/slog"
	"math"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
	"reelsmith/internal/textutil"
)

// minSceneSeconds keeps very short scenes watchable.
const minSceneSeconds = 2.0

// Planner computes per-scene timing from the configured narration pace.
type Planner struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewPlanner constructs the timing handler.
func NewPlanner(cfg *config.Config, logger *slog.Logger) *Planner {
	return &Planner{cfg: cfg, logger: logging.NewComponentLogger(logger, "plan")}
}

func (p *Planner) Name() state.StageType { return state.StagePlan }

func (p *Planner) Description() string { return "Compute scene timing from narration pace" }

func (p *Planner) ValidateInput(ctx context.Context, rec *state.Record) error {
	if !rec.HasArtifact(ArtifactScript) {
		return services.Wrap(services.ErrValidation, "plan", "validate input",
			"script artifact missing; run script first", nil)
	}
	return nil
}

func (p *Planner) Execute(ctx context.Context, rec *state.Record) error {
	var script Script
	if err := rec.Artifact(ArtifactScript, &script); err != nil {
		return services.Wrap(services.ErrValidation, "plan", "load script", "", err)
	}

	wpm := p.cfg.Render.WordsPerMinute
	if wpm <= 0 {
		return services.Wrap(services.ErrConfiguration, "plan", "read pace",
			"words_per_minute must be positive; check the render section of config.toml", nil)
	}

	plan := Plan{}
	cursor := 0.0
	for _, scene := range script.Scenes {
		words := textutil.CountWords(scene.Narration)
		duration := math.Max(minSceneSeconds, float64(words)/float64(wpm)*60)
		duration = math.Round(duration*10) / 10
		plan.Scenes = append(plan.Scenes, ScenePlan{
			Index:           scene.Index,
			StartSeconds:    cursor,
			DurationSeconds: duration,
		})
		cursor += duration
	}
	plan.TotalSeconds = math.Round(cursor*10) / 10

	if err := rec.SetArtifact(ArtifactPlan, plan); err != nil {
		return services.Wrap(services.ErrTransient, "plan", "store artifact", "", err)
	}
	logging.WithContext(ctx, p.logger).Info("timing planned",
		logging.Int("scenes", len(plan.Scenes)),
		logging.Float64("total_seconds", plan.TotalSeconds))
	return nil
}

func (p *Planner) HealthCheck(ctx context.Context) stage.Health {
	const name = "plan"
	if p.cfg == nil || p.cfg.Render.WordsPerMinute <= 0 {
		return stage.Unhealthy(name, "narration pace not configured")
	}
	return stage.Healthy(name)
}
