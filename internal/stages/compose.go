package stages

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
)

// manifest is the on-disk composition format consumed by publish and by any
// downstream encoder.
type manifest struct {
	JobID     string      `json:"job_id"`
	Title     string      `json:"title"`
	Geometry  Render      `json:"geometry"`
	Plan      Plan        `json:"plan"`
	Scenes    []Scene     `json:"scenes"`
	Narration *AudioTrack `json:"narration,omitempty"`
}

// Composer assembles the rendered scenes, timing plan, and optional narration
// into a single manifest in the staging directory.
type Composer struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewComposer constructs the composition handler.
func NewComposer(cfg *config.Config, logger *slog.Logger) *Composer {
	return &Composer{cfg: cfg, logger: logging.NewComponentLogger(logger, "compose")}
}

func (c *Composer) Name() state.StageType { return state.StageCompose }

func (c *Composer) Description() string { return "Assemble the composition manifest" }

func (c *Composer) ValidateInput(ctx context.Context, rec *state.Record) error {
	if !rec.HasArtifact(ArtifactRender) || !rec.HasArtifact(ArtifactPlan) {
		return services.Wrap(services.ErrValidation, "compose", "validate input",
			"render and plan artifacts required; run earlier stages first", nil)
	}
	return nil
}

func (c *Composer) Execute(ctx context.Context, rec *state.Record) error {
	var script Script
	if err := rec.Artifact(ArtifactScript, &script); err != nil {
		return services.Wrap(services.ErrValidation, "compose", "load script", "", err)
	}
	var plan Plan
	if err := rec.Artifact(ArtifactPlan, &plan); err != nil {
		return services.Wrap(services.ErrValidation, "compose", "load plan", "", err)
	}
	var render Render
	if err := rec.Artifact(ArtifactRender, &render); err != nil {
		return services.Wrap(services.ErrValidation, "compose", "load render", "", err)
	}

	m := manifest{
		JobID:    rec.JobID,
		Title:    script.Title,
		Geometry: render,
		Plan:     plan,
		Scenes:   script.Scenes,
	}
	if rec.HasArtifact(ArtifactAudio) {
		var track AudioTrack
		if err := rec.Artifact(ArtifactAudio, &track); err != nil {
			return services.Wrap(services.ErrValidation, "compose", "load narration", "", err)
		}
		m.Narration = &track
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrTransient, "compose", "encode manifest", "", err)
	}
	path := filepath.Join(JobStagingDir(c.cfg, rec.JobID), "composition.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "compose", "ensure staging dir",
			"could not create staging directory", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "compose", "write manifest",
			"could not write composition manifest", err)
	}

	composition := Composition{
		ManifestFile:    path,
		DurationSeconds: plan.TotalSeconds,
		HasNarration:    m.Narration != nil,
	}
	if err := rec.SetArtifact(ArtifactComposition, composition); err != nil {
		return services.Wrap(services.ErrTransient, "compose", "store artifact", "", err)
	}
	logging.WithContext(ctx, c.logger).Info("composition assembled",
		logging.String("manifest", path),
		logging.Bool("narration", composition.HasNarration),
		logging.Float64("duration_seconds", composition.DurationSeconds))
	return nil
}

func (c *Composer) HealthCheck(ctx context.Context) stage.Health {
	const name = "compose"
	if c.cfg == nil || c.cfg.Paths.StagingDir == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	return stage.Healthy(name)
}
