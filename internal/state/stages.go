package state

import "strings"

// StageType identifies a pipeline stage in the workflow graph.
type StageType string

const (
	// StageNone marks the absence of a stage; it doubles as the graph's
	// terminal marker.
	StageNone StageType = ""

	StageIngest     StageType = "ingest"
	StageUnderstand StageType = "understand"
	StageScript     StageType = "script"
	StagePlan       StageType = "plan"
	StageRender     StageType = "render"
	StageAudio      StageType = "audio"
	StageCompose    StageType = "compose"
	StagePublish    StageType = "publish"
)

var allStages = []StageType{
	StageIngest,
	StageUnderstand,
	StageScript,
	StagePlan,
	StageRender,
	StageAudio,
	StageCompose,
	StagePublish,
}

var stageSet = func() map[StageType]struct{} {
	set := make(map[StageType]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// AllStages returns the ordered list of production stage types.
func AllStages() []StageType {
	cp := make([]StageType, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStageType converts a string into a known StageType.
func ParseStageType(value string) (StageType, bool) {
	normalized := StageType(strings.ToLower(strings.TrimSpace(value)))
	if normalized == StageNone {
		return StageNone, false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// Label returns a human-readable stage label for progress messages.
func (s StageType) Label() string {
	switch s {
	case StageIngest:
		return "Ingesting"
	case StageUnderstand:
		return "Understanding"
	case StageScript:
		return "Scripting"
	case StagePlan:
		return "Planning"
	case StageRender:
		return "Rendering"
	case StageAudio:
		return "Synthesizing Audio"
	case StageCompose:
		return "Composing"
	case StagePublish:
		return "Publishing"
	default:
		return string(s)
	}
}
