package stages

// Artifact names, keyed into state.Record.Artifacts. Each stage owns exactly
// one output artifact; downstream stages validate their inputs by presence.
const (
	ArtifactSource      = "source"
	ArtifactAnalysis    = "analysis"
	ArtifactScript      = "script"
	ArtifactPlan        = "plan"
	ArtifactRender      = "render"
	ArtifactAudio       = "audio"
	ArtifactComposition = "composition"
	ArtifactPublished   = "published"
)

// SourceDocument is the normalized input text produced by ingestion.
type SourceDocument struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	WordCount  int    `json:"word_count"`
	LoadedFrom string `json:"loaded_from,omitempty"`
}

// Analysis summarizes the source document for script building.
type Analysis struct {
	Sentences []string `json:"sentences"`
	Keywords  []string `json:"keywords"`
	WordCount int      `json:"word_count"`
}

// Scene is one narrated unit of the generated video.
type Scene struct {
	Index     int      `json:"index"`
	Heading   string   `json:"heading"`
	Narration string   `json:"narration"`
	Keywords  []string `json:"keywords,omitempty"`
}

// Script is the ordered scene list built from the analysis.
type Script struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// ScenePlan carries the timing computed for one scene.
type ScenePlan struct {
	Index           int     `json:"index"`
	StartSeconds    float64 `json:"start_seconds"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Plan is the full timing layout of the video.
type Plan struct {
	Scenes       []ScenePlan `json:"scenes"`
	TotalSeconds float64     `json:"total_seconds"`
}

// Render records the frame descriptors written to the staging directory.
type Render struct {
	SceneFiles []string `json:"scene_files"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	FPS        int      `json:"fps"`
}

// Cue is one synthesized narration segment.
type Cue struct {
	SceneIndex      int     `json:"scene_index"`
	File            string  `json:"file"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// AudioTrack is the narration cue sheet produced by synthesis.
type AudioTrack struct {
	Voice string `json:"voice"`
	Cues  []Cue  `json:"cues"`
}

// Composition points at the assembled manifest tying scenes, timing, and
// narration together.
type Composition struct {
	ManifestFile    string  `json:"manifest_file"`
	DurationSeconds float64 `json:"duration_seconds"`
	HasNarration    bool    `json:"has_narration"`
}

// Published records where the finished output landed in the library.
type Published struct {
	Path string `json:"path"`
}
