package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/config"
	"reelsmith/internal/fileutil"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
	"reelsmith/internal/textutil"
)

// Publisher moves the finished composition out of staging into the library.
type Publisher struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewPublisher constructs the publishing handler.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	return &Publisher{cfg: cfg, logger: logging.NewComponentLogger(logger, "publish")}
}

func (p *Publisher) Name() state.StageType { return state.StagePublish }

func (p *Publisher) Description() string { return "Move the finished output into the library" }

func (p *Publisher) ValidateInput(ctx context.Context, rec *state.Record) error {
	if !rec.HasArtifact(ArtifactComposition) {
		return services.Wrap(services.ErrValidation, "publish", "validate input",
			"composition artifact missing; run compose first", nil)
	}
	return nil
}

func (p *Publisher) Execute(ctx context.Context, rec *state.Record) error {
	logger := logging.WithContext(ctx, p.logger)

	var script Script
	if err := rec.Artifact(ArtifactScript, &script); err != nil {
		return services.Wrap(services.ErrValidation, "publish", "load script", "", err)
	}
	var composition Composition
	if err := rec.Artifact(ArtifactComposition, &composition); err != nil {
		return services.Wrap(services.ErrValidation, "publish", "load composition", "", err)
	}
	if _, err := os.Stat(composition.ManifestFile); err != nil {
		return services.Wrap(services.ErrValidation, "publish", "locate manifest",
			"composition manifest is missing from staging; re-run compose", err)
	}

	libraryDir := strings.TrimSpace(p.cfg.Paths.LibraryDir)
	if libraryDir == "" {
		return services.Wrap(services.ErrConfiguration, "publish", "resolve library dir",
			"library directory not configured; set library_dir in config.toml", nil)
	}
	if err := os.MkdirAll(libraryDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "publish", "ensure library dir",
			"could not create library directory", err)
	}

	target := filepath.Join(libraryDir, fmt.Sprintf("%s.json", textutil.Slugify(script.Title)))
	overwrite := rec.Options.OverwriteExisting || p.cfg.Publish.OverwriteExisting
	if _, err := os.Stat(target); err == nil && !overwrite {
		wrapped := services.Wrap(services.ErrValidation, "publish", "check target",
			fmt.Sprintf("library target %s already exists", filepath.Base(target)), nil)
		return services.WithHint(wrapped, "resubmit with overwrite enabled or remove the existing file")
	}

	if err := fileutil.MoveFile(composition.ManifestFile, target); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "move to library",
			"could not move composition into the library", err)
	}

	if err := rec.SetArtifact(ArtifactPublished, Published{Path: target}); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "store artifact", "", err)
	}
	logger.Info("composition published", logging.String("path", target))

	// Staging leftovers are scratch data once the output is in the library.
	stagingDir := JobStagingDir(p.cfg, rec.JobID)
	if err := os.RemoveAll(stagingDir); err != nil {
		logger.Warn("failed to clean staging directory",
			logging.String("dir", stagingDir), logging.Error(err))
	}
	return nil
}

func (p *Publisher) HealthCheck(ctx context.Context) stage.Health {
	const name = "publish"
	if p.cfg == nil || strings.TrimSpace(p.cfg.Paths.LibraryDir) == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	return stage.Healthy(name)
}
