// Package flow implements the coaching workflow: a four-stage state machine
// (draft, critique, finalize, mentor) with a bounded revision loop, a bounded
// tool-call loop, and per-stage checkpointing.
package flow

import "strings"

// Stage identifies a node of the workflow state machine.
type Stage string

const (
	// StageDraft produces or revises the coach's draft reply.
	StageDraft Stage = "draft"
	// StageCritique reviews the draft and emits feedback or the pass marker.
	StageCritique Stage = "critique"
	// StageFinalize turns the draft into the permanent assistant reply.
	StageFinalize Stage = "finalize"
	// StageMentor closes the turn with advice and optional profile updates.
	StageMentor Stage = "mentor"
	// StageDone marks turn completion.
	StageDone Stage = "done"
)

// Revision loop constants
const (
	// PassMarker is the literal token a critique contains when no further
	// revision is needed.
	PassMarker = "PASS"
	// MaxRevisions caps critique passes per turn. When reached, the workflow
	// proceeds to finalize regardless of the critic's verdict.
	MaxRevisions = 3
)

// CritiquePassed reports whether critique text contains the pass marker.
func CritiquePassed(critique string) bool {
	return strings.Contains(critique, PassMarker)
}

// NextStage is the pure transition function of the workflow. critiquePassed
// and revisionCount are only consulted on the critique edge.
func NextStage(current Stage, critiquePassed bool, revisionCount int) Stage {
	switch current {
	case StageDraft:
		return StageCritique
	case StageCritique:
		if critiquePassed || revisionCount >= MaxRevisions {
			return StageFinalize
		}
		return StageDraft
	case StageFinalize:
		return StageMentor
	case StageMentor:
		return StageDone
	default:
		return StageDone
	}
}
