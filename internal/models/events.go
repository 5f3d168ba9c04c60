// Package models defines the client-facing stream event shapes.
package models

// ClientNode identifies the client-facing channel a stream event belongs to.
type ClientNode string

const (
	// NodeCoachDraft carries the drafting coach's intermediate output.
	NodeCoachDraft ClientNode = "coach_draft"
	// NodeCritic carries the critic's feedback output.
	NodeCritic ClientNode = "critic"
	// NodeCoach carries the finalized assistant reply.
	NodeCoach ClientNode = "coach"
	// NodeMentor carries the mentor's closing remark.
	NodeMentor ClientNode = "mentor"
	// NodeSearch carries raw web-search tool output.
	NodeSearch ClientNode = "search"
)

// Stream event type markers. Content deltas carry no type field.
const (
	// EventTypeRevisionStart signals that a draft or critique pass is beginning.
	EventTypeRevisionStart = "revision_start"
)

// StreamDone is the terminal sentinel written after the last event of a turn.
const StreamDone = "[DONE]"

// StreamEvent is one JSON line on the server-push channel.
type StreamEvent struct {
	Type    string     `json:"type,omitempty"`
	Node    ClientNode `json:"node,omitempty"`
	Content string     `json:"content,omitempty"`
}
