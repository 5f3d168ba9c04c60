package flow

import "github.com/BTreeMap/CoachPipe/internal/models"

// EventKind classifies internal workflow events.
type EventKind int

const (
	// EventStageStarted marks entry into a stage, emitted strictly before
	// that stage's first delta.
	EventStageStarted EventKind = iota
	// EventDelta carries one streamed content chunk from a stage.
	EventDelta
	// EventSearchResult carries one web-search tool output.
	EventSearchResult
)

// Event is one internal workflow event. Stage tags every event at emission
// time so downstream routing never has to infer the origin.
type Event struct {
	Kind    EventKind
	Stage   Stage
	Content string
}

// Emitter receives workflow events in execution order. A non-nil error stops
// further emission and aborts the turn.
type Emitter func(Event) error

// nodeFor maps a workflow stage onto its client-facing channel name.
func nodeFor(stage Stage) models.ClientNode {
	switch stage {
	case StageDraft:
		return models.NodeCoachDraft
	case StageCritique:
		return models.NodeCritic
	case StageFinalize:
		return models.NodeCoach
	case StageMentor:
		return models.NodeMentor
	default:
		return ""
	}
}

// ClientEvent converts an internal event into the client stream shape, or
// (zero, false) when the event has no client representation.
func ClientEvent(ev Event) (models.StreamEvent, bool) {
	switch ev.Kind {
	case EventStageStarted:
		// Only draft and critique entries are surfaced, as revision markers.
		if ev.Stage != StageDraft && ev.Stage != StageCritique {
			return models.StreamEvent{}, false
		}
		return models.StreamEvent{
			Type: models.EventTypeRevisionStart,
			Node: nodeFor(ev.Stage),
		}, true
	case EventDelta:
		if ev.Content == "" {
			return models.StreamEvent{}, false
		}
		return models.StreamEvent{
			Node:    nodeFor(ev.Stage),
			Content: ev.Content,
		}, true
	case EventSearchResult:
		return models.StreamEvent{
			Node:    models.NodeSearch,
			Content: ev.Content,
		}, true
	default:
		return models.StreamEvent{}, false
	}
}
