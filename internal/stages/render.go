package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
)

// Renderer writes one frame descriptor per scene into the job's staging
// directory. Video encoders consume these descriptors downstream; keeping the
// on-disk format plain text makes failed jobs inspectable by hand.
type Renderer struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRenderer constructs the rendering handler.
func NewRenderer(cfg *config.Config, logger *slog.Logger) *Renderer {
	return &Renderer{cfg: cfg, logger: logging.NewComponentLogger(logger, "render")}
}

func (r *Renderer) Name() state.StageType { return state.StageRender }

func (r *Renderer) Description() string { return "Render scene frames into the staging area" }

func (r *Renderer) ValidateInput(ctx context.Context, rec *state.Record) error {
	if !rec.HasArtifact(ArtifactScript) || !rec.HasArtifact(ArtifactPlan) {
		return services.Wrap(services.ErrValidation, "render", "validate input",
			"script and plan artifacts required; run earlier stages first", nil)
	}
	return nil
}

func (r *Renderer) Execute(ctx context.Context, rec *state.Record) error {
	var script Script
	if err := rec.Artifact(ArtifactScript, &script); err != nil {
		return services.Wrap(services.ErrValidation, "render", "load script", "", err)
	}
	var plan Plan
	if err := rec.Artifact(ArtifactPlan, &plan); err != nil {
		return services.Wrap(services.ErrValidation, "render", "load plan", "", err)
	}

	sceneDir := filepath.Join(JobStagingDir(r.cfg, rec.JobID), "scenes")
	if err := os.MkdirAll(sceneDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "render", "ensure staging dir",
			"could not create scene staging directory", err)
	}

	timings := make(map[int]ScenePlan, len(plan.Scenes))
	for _, sp := range plan.Scenes {
		timings[sp.Index] = sp
	}

	out := Render{
		Width:  r.cfg.Render.Width,
		Height: r.cfg.Render.Height,
		FPS:    r.cfg.Render.FPS,
	}
	for _, scene := range script.Scenes {
		if err := ctx.Err(); err != nil {
			return err
		}
		timing, ok := timings[scene.Index]
		if !ok {
			return services.Wrap(services.ErrValidation, "render", "match timing",
				fmt.Sprintf("no timing planned for scene %d", scene.Index), nil)
		}
		path := filepath.Join(sceneDir, fmt.Sprintf("scene-%03d.txt", scene.Index))
		if err := os.WriteFile(path, []byte(frameDescriptor(scene, timing, out)), 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "render", "write frame",
				fmt.Sprintf("could not write scene %d", scene.Index), err)
		}
		out.SceneFiles = append(out.SceneFiles, path)
	}

	if err := rec.SetArtifact(ArtifactRender, out); err != nil {
		return services.Wrap(services.ErrTransient, "render", "store artifact", "", err)
	}
	logging.WithContext(ctx, r.logger).Info("scenes rendered",
		logging.Int("scenes", len(out.SceneFiles)),
		logging.String("dir", sceneDir))
	return nil
}

func (r *Renderer) HealthCheck(ctx context.Context) stage.Health {
	const name = "render"
	if r.cfg == nil || strings.TrimSpace(r.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if r.cfg.Render.Width <= 0 || r.cfg.Render.Height <= 0 || r.cfg.Render.FPS <= 0 {
		return stage.Unhealthy(name, "render geometry not configured")
	}
	return stage.Healthy(name)
}

// JobStagingDir returns the per-job scratch directory under the configured
// staging root.
func JobStagingDir(cfg *config.Config, jobID string) string {
	return filepath.Join(cfg.Paths.StagingDir, jobID)
}

func frameDescriptor(scene Scene, timing ScenePlan, render Render) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scene: %d\n", scene.Index)
	fmt.Fprintf(&b, "heading: %s\n", scene.Heading)
	fmt.Fprintf(&b, "geometry: %dx%d@%d\n", render.Width, render.Height, render.FPS)
	fmt.Fprintf(&b, "start: %.1fs\n", timing.StartSeconds)
	fmt.Fprintf(&b, "duration: %.1fs\n", timing.DurationSeconds)
	if len(scene.Keywords) > 0 {
		fmt.Fprintf(&b, "keywords: %s\n", strings.Join(scene.Keywords, ", "))
	}
	fmt.Fprintf(&b, "\n%s\n", scene.Narration)
	return b.String()
}
