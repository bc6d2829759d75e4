package stages

import (
	"context"
	"log/slog"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
	"reelsmith/internal/textutil"
)

// keywordLimit caps how many keywords the analysis keeps.
const keywordLimit = 12

// Understand analyzes the ingested document into sentences and keywords.
type Understand struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewUnderstand constructs the analysis handler.
func NewUnderstand(cfg *config.Config, logger *slog.Logger) *Understand {
	return &Understand{cfg: cfg, logger: logging.NewComponentLogger(logger, "understand")}
}

func (u *Understand) Name() state.StageType { return state.StageUnderstand }

func (u *Understand) Description() string { return "Analyze the document structure and vocabulary" }

func (u *Understand) ValidateInput(ctx context.Context, rec *state.Record) error {
	if !rec.HasArtifact(ArtifactSource) {
		return services.Wrap(services.ErrValidation, "understand", "validate input",
			"source artifact missing; run ingest first", nil)
	}
	return nil
}

func (u *Understand) Execute(ctx context.Context, rec *state.Record) error {
	var doc SourceDocument
	if err := rec.Artifact(ArtifactSource, &doc); err != nil {
		return services.Wrap(services.ErrValidation, "understand", "load source", "", err)
	}

	analysis := Analysis{
		Sentences: textutil.SplitSentences(doc.Text),
		Keywords:  textutil.ExtractKeywords(doc.Text, keywordLimit),
		WordCount: doc.WordCount,
	}
	if len(analysis.Sentences) == 0 {
		return services.Wrap(services.ErrValidation, "understand", "analyze document",
			"document yields no sentences", nil)
	}

	if err := rec.SetArtifact(ArtifactAnalysis, analysis); err != nil {
		return services.Wrap(services.ErrTransient, "understand", "store artifact", "", err)
	}
	logging.WithContext(ctx, u.logger).Info("document analyzed",
		logging.Int("sentences", len(analysis.Sentences)),
		logging.Int("keywords", len(analysis.Keywords)))
	return nil
}

func (u *Understand) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("understand")
}
