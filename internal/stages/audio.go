package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reelsmith/internal/breaker"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/state"
	"reelsmith/internal/textutil"
)

// SpeechRequest asks the synthesizer for one narration segment.
type SpeechRequest struct {
	SceneIndex int
	Text       string
	Voice      string
	OutputDir  string
}

// SpeechResult reports where the synthesized segment landed.
type SpeechResult struct {
	File            string
	DurationSeconds float64
}

// Synthesizer converts narration text into audio. Implementations wrap real
// TTS engines; the in-tree local synthesizer writes cue files so the pipeline
// runs without external services.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (SpeechResult, error)
}

// LocalSynthesizer writes a cue file per segment, estimating duration from
// the configured narration pace.
type LocalSynthesizer struct {
	WordsPerMinute int
}

// Synthesize writes the cue file and returns the estimated duration.
func (s *LocalSynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (SpeechResult, error) {
	if err := ctx.Err(); err != nil {
		return SpeechResult{}, err
	}
	wpm := s.WordsPerMinute
	if wpm <= 0 {
		wpm = 150
	}
	duration := float64(textutil.CountWords(req.Text)) / float64(wpm) * 60
	if duration < 1 {
		duration = 1
	}
	path := filepath.Join(req.OutputDir, fmt.Sprintf("cue-%03d.txt", req.SceneIndex))
	content := fmt.Sprintf("voice: %s\nduration: %.1fs\n\n%s\n", req.Voice, duration, req.Text)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return SpeechResult{}, err
	}
	return SpeechResult{File: path, DurationSeconds: duration}, nil
}

// Narrator synthesizes narration for each scene behind a circuit breaker, so
// a misbehaving speech service fails fast instead of burning retry budget on
// every scene.
type Narrator struct {
	cfg         *config.Config
	logger      *slog.Logger
	synthesizer Synthesizer
	circuit     *breaker.Breaker
}

// NewNarrator constructs the narration handler with the local synthesizer.
func NewNarrator(cfg *config.Config, logger *slog.Logger, breakers *breaker.Registry) *Narrator {
	return NewNarratorWithSynthesizer(cfg, logger, breakers,
		&LocalSynthesizer{WordsPerMinute: cfg.Render.WordsPerMinute})
}

// NewNarratorWithSynthesizer injects the speech backend (used in tests).
func NewNarratorWithSynthesizer(cfg *config.Config, logger *slog.Logger, breakers *breaker.Registry, synthesizer Synthesizer) *Narrator {
	return &Narrator{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "audio"),
		synthesizer: synthesizer,
		circuit:     breakers.Get("synthesizer"),
	}
}

func (n *Narrator) Name() state.StageType { return state.StageAudio }

func (n *Narrator) Description() string { return "Synthesize narration audio for each scene" }

func (n *Narrator) ValidateInput(ctx context.Context, rec *state.Record) error {
	if !rec.HasArtifact(ArtifactScript) || !rec.HasArtifact(ArtifactRender) {
		return services.Wrap(services.ErrValidation, "audio", "validate input",
			"script and render artifacts required; run earlier stages first", nil)
	}
	return nil
}

func (n *Narrator) Execute(ctx context.Context, rec *state.Record) error {
	var script Script
	if err := rec.Artifact(ArtifactScript, &script); err != nil {
		return services.Wrap(services.ErrValidation, "audio", "load script", "", err)
	}

	voice := rec.Options.Voice
	if voice == "" {
		voice = n.cfg.Audio.Voice
	}
	audioDir := filepath.Join(JobStagingDir(n.cfg, rec.JobID), "audio")
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "audio", "ensure staging dir",
			"could not create audio staging directory", err)
	}

	track := AudioTrack{Voice: voice}
	for _, scene := range script.Scenes {
		var result SpeechResult
		err := n.circuit.Do(ctx, func(ctx context.Context) error {
			var synthErr error
			result, synthErr = n.synthesizer.Synthesize(ctx, SpeechRequest{
				SceneIndex: scene.Index,
				Text:       scene.Narration,
				Voice:      voice,
				OutputDir:  audioDir,
			})
			return synthErr
		})
		if err != nil {
			return n.wrapSynthesisError(scene.Index, err)
		}
		track.Cues = append(track.Cues, Cue{
			SceneIndex:      scene.Index,
			File:            result.File,
			DurationSeconds: result.DurationSeconds,
		})
	}

	if err := rec.SetArtifact(ArtifactAudio, track); err != nil {
		return services.Wrap(services.ErrTransient, "audio", "store artifact", "", err)
	}
	logging.WithContext(ctx, n.logger).Info("narration synthesized",
		logging.Int("cues", len(track.Cues)),
		logging.String("voice", voice))
	return nil
}

func (n *Narrator) wrapSynthesisError(sceneIndex int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	wrapped := services.Wrap(services.ErrExternalTool, "audio", "synthesize speech",
		fmt.Sprintf("synthesis failed for scene %d", sceneIndex), err)
	return services.WithHint(wrapped, "check the speech service; the circuit reopens after the recovery timeout")
}

func (n *Narrator) HealthCheck(ctx context.Context) stage.Health {
	const name = "audio"
	if n.synthesizer == nil {
		return stage.Unhealthy(name, "synthesizer unavailable")
	}
	if n.cfg != nil && strings.TrimSpace(n.cfg.Audio.Voice) == "" {
		return stage.Unhealthy(name, "default voice not configured")
	}
	if state := n.circuit.State(); state == breaker.StateOpen {
		return stage.Unhealthy(name, "synthesizer circuit open")
	}
	return stage.Healthy(name)
}
