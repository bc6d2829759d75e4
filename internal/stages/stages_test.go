package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsmith/internal/breaker"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/stages"
	"reelsmith/internal/state"
	"reelsmith/internal/testsupport"
)

const sampleText = "Rockets carry payloads into orbit. Fuel burns fast during ascent. " +
	"Payloads separate after the burn. Ground crews track every launch."

func newJob(t *testing.T, opts state.Options) *state.Record {
	t.Helper()
	return state.NewRecord(state.Input{Type: "text", Content: sampleText}, opts)
}

func runStage(t *testing.T, handler stage.Handler, rec *state.Record) {
	t.Helper()
	ctx := context.Background()
	if err := handler.ValidateInput(ctx, rec); err != nil {
		t.Fatalf("%s ValidateInput: %v", handler.Name(), err)
	}
	if err := handler.Execute(ctx, rec); err != nil {
		t.Fatalf("%s Execute: %v", handler.Name(), err)
	}
}

// runThrough executes the pipeline up to and including the named stage.
func runThrough(t *testing.T, cfg *config.Config, rec *state.Record, last state.StageType) {
	t.Helper()
	logger := logging.NewNop()
	breakers := stages.NewBreakerRegistry(cfg, nil)
	handlers := []stage.Handler{
		stages.NewIngest(cfg, logger),
		stages.NewUnderstand(cfg, logger),
		stages.NewScriptWriter(cfg, logger),
		stages.NewPlanner(cfg, logger),
		stages.NewRenderer(cfg, logger),
		stages.NewNarrator(cfg, logger, breakers),
		stages.NewComposer(cfg, logger),
		stages.NewPublisher(cfg, logger),
	}
	for _, handler := range handlers {
		if handler.Name() == state.StageAudio && !rec.Options.NarrationEnabled {
			continue
		}
		runStage(t, handler, rec)
		if handler.Name() == last {
			return
		}
	}
}

func TestIngestFromText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{})
	runStage(t, stages.NewIngest(cfg, logging.NewNop()), rec)

	var doc stages.SourceDocument
	if err := rec.Artifact(stages.ArtifactSource, &doc); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if doc.WordCount == 0 || doc.Title == "" {
		t.Fatalf("incomplete source document: %+v", doc)
	}
	if !strings.HasPrefix(doc.Title, "Rockets carry payloads") {
		t.Fatalf("title = %q", doc.Title)
	}
}

func TestIngestFromFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(t.TempDir(), "launch-notes.txt")
	if err := os.WriteFile(path, []byte(sampleText), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rec := state.NewRecord(state.Input{Type: "file", Content: path}, state.Options{})
	runStage(t, stages.NewIngest(cfg, logging.NewNop()), rec)

	var doc stages.SourceDocument
	if err := rec.Artifact(stages.ArtifactSource, &doc); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if doc.Title != "launch-notes" {
		t.Fatalf("title = %q, want launch-notes", doc.Title)
	}
	if doc.LoadedFrom != path {
		t.Fatalf("loaded from %q, want %q", doc.LoadedFrom, path)
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := stages.NewIngest(cfg, logging.NewNop())

	rec := state.NewRecord(state.Input{Type: "url", Content: "https://example.com"}, state.Options{})
	if err := handler.ValidateInput(context.Background(), rec); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("ValidateInput = %v, want validation error", err)
	}

	rec = state.NewRecord(state.Input{Type: "file", Content: filepath.Join(t.TempDir(), "missing.txt")}, state.Options{})
	if err := handler.Execute(context.Background(), rec); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Execute = %v, want validation error for missing file", err)
	}
}

func TestUnderstandAnalyzesDocument(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{})
	runThrough(t, cfg, rec, state.StageUnderstand)

	var analysis stages.Analysis
	if err := rec.Artifact(stages.ArtifactAnalysis, &analysis); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if len(analysis.Sentences) != 4 {
		t.Fatalf("sentences = %d, want 4", len(analysis.Sentences))
	}
	if len(analysis.Keywords) == 0 {
		t.Fatal("no keywords extracted")
	}
}

func TestUnderstandRequiresSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{})
	err := stages.NewUnderstand(cfg, logging.NewNop()).ValidateInput(context.Background(), rec)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("ValidateInput = %v, want validation error", err)
	}
}

func TestScriptGroupsSentencesIntoScenes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{})
	runThrough(t, cfg, rec, state.StageScript)

	var script stages.Script
	if err := rec.Artifact(stages.ArtifactScript, &script); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if len(script.Scenes) != 2 {
		t.Fatalf("scenes = %d, want 2", len(script.Scenes))
	}
	for i, scene := range script.Scenes {
		if scene.Index != i+1 {
			t.Fatalf("scene %d has index %d", i, scene.Index)
		}
		if scene.Narration == "" || scene.Heading == "" {
			t.Fatalf("incomplete scene: %+v", scene)
		}
	}
}

func TestPlannerComputesMonotonicTimings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Render.WordsPerMinute = 120
	rec := newJob(t, state.Options{})
	runThrough(t, cfg, rec, state.StagePlan)

	var plan stages.Plan
	if err := rec.Artifact(stages.ArtifactPlan, &plan); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	cursor := 0.0
	total := 0.0
	for _, sp := range plan.Scenes {
		if sp.StartSeconds != cursor {
			t.Fatalf("scene %d starts at %v, want %v", sp.Index, sp.StartSeconds, cursor)
		}
		if sp.DurationSeconds < 2 {
			t.Fatalf("scene %d duration %v below minimum", sp.Index, sp.DurationSeconds)
		}
		cursor += sp.DurationSeconds
		total += sp.DurationSeconds
	}
	if plan.TotalSeconds != total {
		t.Fatalf("total = %v, want %v", plan.TotalSeconds, total)
	}
}

func TestPlannerRejectsMissingPace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{})
	runThrough(t, cfg, rec, state.StageScript)

	cfg.Render.WordsPerMinute = 0
	err := stages.NewPlanner(cfg, logging.NewNop()).Execute(context.Background(), rec)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Execute = %v, want configuration error", err)
	}
}

func TestRendererWritesSceneFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{})
	runThrough(t, cfg, rec, state.StageRender)

	var render stages.Render
	if err := rec.Artifact(stages.ArtifactRender, &render); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if len(render.SceneFiles) != 2 {
		t.Fatalf("scene files = %d, want 2", len(render.SceneFiles))
	}
	raw, err := os.ReadFile(render.SceneFiles[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), "scene: 1") {
		t.Fatalf("frame descriptor missing scene header:\n%s", raw)
	}
	if render.Width != cfg.Render.Width || render.FPS != cfg.Render.FPS {
		t.Fatalf("geometry not carried: %+v", render)
	}
}

type failingSynthesizer struct {
	calls int
}

func (f *failingSynthesizer) Synthesize(context.Context, stages.SpeechRequest) (stages.SpeechResult, error) {
	f.calls++
	return stages.SpeechResult{}, errors.New("speech engine offline")
}

func TestNarratorSynthesizesCues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{NarrationEnabled: true, Voice: "custom"})
	runThrough(t, cfg, rec, state.StageAudio)

	var track stages.AudioTrack
	if err := rec.Artifact(stages.ArtifactAudio, &track); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if track.Voice != "custom" {
		t.Fatalf("voice = %q, want job override", track.Voice)
	}
	if len(track.Cues) != 2 {
		t.Fatalf("cues = %d, want 2", len(track.Cues))
	}
	for _, cue := range track.Cues {
		if _, err := os.Stat(cue.File); err != nil {
			t.Fatalf("cue file missing: %v", err)
		}
		if cue.DurationSeconds <= 0 {
			t.Fatalf("cue %d has no duration", cue.SceneIndex)
		}
	}
}

func TestNarratorBreakerOpensAfterRepeatedFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Breaker.FailureThreshold = 1
	cfg.Breaker.RecoveryTimeout = 3600

	rec := newJob(t, state.Options{NarrationEnabled: true})
	runThrough(t, cfg, rec, state.StageRender)

	synth := &failingSynthesizer{}
	breakers := stages.NewBreakerRegistry(cfg, nil)
	narrator := stages.NewNarratorWithSynthesizer(cfg, logging.NewNop(), breakers, synth)

	err := narrator.Execute(context.Background(), rec)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("Execute = %v, want external tool error", err)
	}
	if synth.calls != 1 {
		t.Fatalf("synthesizer called %d times, want 1", synth.calls)
	}

	// The circuit is open now; the next run must fail fast without a call.
	err = narrator.Execute(context.Background(), rec)
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("Execute = %v, want ErrOpen", err)
	}
	if synth.calls != 1 {
		t.Fatalf("open circuit still reached the synthesizer (%d calls)", synth.calls)
	}

	health := narrator.HealthCheck(context.Background())
	if health.Ready {
		t.Fatal("health check should report the open circuit")
	}
}

func TestComposerBuildsManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{NarrationEnabled: true})
	runThrough(t, cfg, rec, state.StageCompose)

	var composition stages.Composition
	if err := rec.Artifact(stages.ArtifactComposition, &composition); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if !composition.HasNarration {
		t.Fatal("manifest should include narration")
	}
	raw, err := os.ReadFile(composition.ManifestFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), rec.JobID) {
		t.Fatal("manifest missing job id")
	}

	silent := newJob(t, state.Options{})
	runThrough(t, cfg, silent, state.StageCompose)
	if err := silent.Artifact(stages.ArtifactComposition, &composition); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if composition.HasNarration {
		t.Fatal("silent job must not report narration")
	}
}

func TestPublisherMovesToLibraryAndHonorsOverwrite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := newJob(t, state.Options{})
	runThrough(t, cfg, rec, state.StagePublish)

	var published stages.Published
	if err := rec.Artifact(stages.ArtifactPublished, &published); err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if _, err := os.Stat(published.Path); err != nil {
		t.Fatalf("published file missing: %v", err)
	}
	if filepath.Dir(published.Path) != cfg.Paths.LibraryDir {
		t.Fatalf("published outside library: %s", published.Path)
	}
	if _, err := os.Stat(stages.JobStagingDir(cfg, rec.JobID)); !os.IsNotExist(err) {
		t.Fatal("staging directory should be cleaned after publish")
	}

	// A second job with the same title collides unless overwrite is set.
	second := newJob(t, state.Options{})
	runThrough(t, cfg, second, state.StageCompose)
	err := stages.NewPublisher(cfg, logging.NewNop()).Execute(context.Background(), second)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Execute = %v, want validation error on collision", err)
	}

	second.Options.OverwriteExisting = true
	runStage(t, stages.NewPublisher(cfg, logging.NewNop()), second)
}

func TestDefaultRegistryCoversAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	registry := stages.DefaultRegistry(cfg, logging.NewNop(), stages.NewBreakerRegistry(cfg, nil))

	if got, want := len(registry.Stages()), len(state.AllStages()); got != want {
		t.Fatalf("registered %d stages, want %d", got, want)
	}
	for _, check := range registry.HealthChecks(context.Background()) {
		if !check.Ready {
			t.Fatalf("stage %s unhealthy: %s", check.Name, check.Detail)
		}
	}
}
