package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
)

// sentencesPerScene groups analysis sentences into narrated scenes.
const sentencesPerScene = 2

// ScriptWriter turns the analysis into an ordered scene script.
type ScriptWriter struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewScriptWriter constructs the scripting handler.
func NewScriptWriter(cfg *config.Config, logger *slog.Logger) *ScriptWriter {
	return &ScriptWriter{cfg: cfg, logger: logging.NewComponentLogger(logger, "script")}
}

func (s *ScriptWriter) Name() state.StageType { return state.StageScript }

func (s *ScriptWriter) Description() string { return "Build the scene script from the analysis" }

func (s *ScriptWriter) ValidateInput(ctx context.Context, rec *state.Record) error {
	if !rec.HasArtifact(ArtifactAnalysis) {
		return services.Wrap(services.ErrValidation, "script", "validate input",
			"analysis artifact missing; run understand first", nil)
	}
	return nil
}

func (s *ScriptWriter) Execute(ctx context.Context, rec *state.Record) error {
	var doc SourceDocument
	if err := rec.Artifact(ArtifactSource, &doc); err != nil {
		return services.Wrap(services.ErrValidation, "script", "load source", "", err)
	}
	var analysis Analysis
	if err := rec.Artifact(ArtifactAnalysis, &analysis); err != nil {
		return services.Wrap(services.ErrValidation, "script", "load analysis", "", err)
	}

	script := Script{Title: doc.Title}
	for start := 0; start < len(analysis.Sentences); start += sentencesPerScene {
		end := start + sentencesPerScene
		if end > len(analysis.Sentences) {
			end = len(analysis.Sentences)
		}
		narration := strings.Join(analysis.Sentences[start:end], " ")
		index := len(script.Scenes) + 1
		script.Scenes = append(script.Scenes, Scene{
			Index:     index,
			Heading:   sceneHeading(doc.Title, narration, analysis.Keywords, index),
			Narration: narration,
			Keywords:  sceneKeywords(narration, analysis.Keywords),
		})
	}
	if len(script.Scenes) == 0 {
		return services.Wrap(services.ErrValidation, "script", "build scenes",
			"analysis yields no scenes", nil)
	}

	if err := rec.SetArtifact(ArtifactScript, script); err != nil {
		return services.Wrap(services.ErrTransient, "script", "store artifact", "", err)
	}
	logging.WithContext(ctx, s.logger).Info("script built",
		logging.String("title", script.Title),
		logging.Int("scenes", len(script.Scenes)))
	return nil
}

func (s *ScriptWriter) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("script")
}

// sceneHeading prefers a document keyword that appears in the narration so
// headings track content rather than position.
func sceneHeading(title, narration string, keywords []string, index int) string {
	lowered := strings.ToLower(narration)
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			return capitalize(keyword)
		}
	}
	return fmt.Sprintf("%s, part %d", title, index)
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}

func sceneKeywords(narration string, keywords []string) []string {
	lowered := strings.ToLower(narration)
	var matched []string
	for _, keyword := range keywords {
		if strings.Contains(lowered, keyword) {
			matched = append(matched, keyword)
		}
		if len(matched) == 3 {
			break
		}
	}
	return matched
}
