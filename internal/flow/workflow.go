package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/genai"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/store"
	"github.com/openai/openai-go"
)

// Workflow executes one coaching turn as a sequential pipeline of stages.
// Each thread's state is independent; concurrent turns on different threads
// need no coordination beyond the store's own guarantees.
type Workflow struct {
	store       store.Store
	client      genai.ClientInterface
	loop        *ToolLoop
	draftTools  *ToolRegistry
	mentorTools *ToolRegistry
	now         func() time.Time
}

// NewWorkflow wires the workflow over its injected dependencies. The drafting
// coach gets the search tool only; the mentor additionally gets the profile
// tool, as the sole stage authorized to persist profile changes.
func NewWorkflow(s store.Store, client genai.ClientInterface, search *SearchTool, profile *ProfileTool) *Workflow {
	return &Workflow{
		store:       s,
		client:      client,
		loop:        NewToolLoop(client),
		draftTools:  NewToolRegistry(search),
		mentorTools: NewToolRegistry(search, profile),
		now:         time.Now,
	}
}

// RunTurn drives one user turn through draft, critique, finalize, and mentor,
// checkpointing after every completed stage. Events go to emit in execution
// order; emit may be nil for non-streaming callers. A gateway fault aborts
// the turn; tool faults are contained inside the tool loop.
func (w *Workflow) RunTurn(ctx context.Context, threadID string, incoming []models.ChatMessage, emit Emitter) (*models.ConversationState, error) {
	state, err := w.store.LoadLatestState(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread state: %w", err)
	}
	if state == nil {
		state = models.NewConversationState()
	}

	// Scratch fields from a previous turn must not leak into this one.
	state.SearchResults = ""
	state.MentorNote = ""
	state.Messages = append(state.Messages, incoming...)

	slog.Debug("Workflow.RunTurn: starting turn", "threadID", threadID, "historyLen", len(state.Messages))

	stage := StageDraft
	for stage != StageDone {
		if err := w.emit(emit, Event{Kind: EventStageStarted, Stage: stage}); err != nil {
			return nil, err
		}

		switch stage {
		case StageDraft:
			err = w.runDraft(ctx, state, emit)
		case StageCritique:
			err = w.runCritique(ctx, state, emit)
		case StageFinalize:
			err = w.runFinalize(ctx, state, emit)
		case StageMentor:
			err = w.runMentor(ctx, state, emit)
		}
		if err != nil {
			slog.Error("Workflow.RunTurn: stage failed", "threadID", threadID, "stage", stage, "error", err)
			return nil, fmt.Errorf("stage %s failed: %w", stage, err)
		}

		if err := w.store.SaveCheckpoint(ctx, threadID, string(stage), state); err != nil {
			return nil, fmt.Errorf("failed to checkpoint after stage %s: %w", stage, err)
		}
		stage = NextStage(stage, CritiquePassed(state.Critique), state.RevisionCount)
	}

	slog.Debug("Workflow.RunTurn: turn complete", "threadID", threadID, "messages", len(state.Messages))
	return state, nil
}

// runDraft produces or revises the coach draft, consulting the search tool
// as needed. The profile is read-only here.
func (w *Workflow) runDraft(ctx context.Context, state *models.ConversationState, emit Emitter) error {
	profile, err := w.store.GetProfile(ctx)
	if err != nil {
		return err
	}
	messages := append(
		[]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(draftSystemPrompt(profile, w.now(), state))},
		historyMessages(state.Messages)...,
	)
	result, err := w.loop.Run(ctx, messages, w.draftTools, w.deltaFunc(emit, StageDraft), w.searchFunc(emit))
	if err != nil {
		return err
	}
	state.Draft = result.Content
	state.SearchResults = result.SearchResults
	return nil
}

// runCritique reviews the draft in a single tool-free completion. The
// critique text never enters the message history.
func (w *Workflow) runCritique(ctx context.Context, state *models.ConversationState, emit Emitter) error {
	profile, err := w.store.GetProfile(ctx)
	if err != nil {
		return err
	}
	messages := append(
		[]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(critiqueSystemPrompt(profile, state.Draft))},
		historyMessages(state.Messages)...,
	)
	content, err := w.client.GenerateStream(ctx, messages, w.deltaFunc(emit, StageCritique))
	if err != nil {
		return err
	}
	state.Critique = content
	state.RevisionCount++
	return nil
}

// runFinalize produces the turn's permanent assistant message. On a passed
// critique the model is instructed to reproduce the draft verbatim.
func (w *Workflow) runFinalize(ctx context.Context, state *models.ConversationState, emit Emitter) error {
	profile, err := w.store.GetProfile(ctx)
	if err != nil {
		return err
	}
	messages := append(
		[]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(finalizeSystemPrompt(profile, state.Draft, state.Critique))},
		historyMessages(state.Messages)...,
	)
	content, err := w.client.GenerateStream(ctx, messages, w.deltaFunc(emit, StageFinalize))
	if err != nil {
		return err
	}
	state.Messages = append(state.Messages, models.ChatMessage{Role: models.RoleAssistant, Content: content})
	return nil
}

// runMentor closes the turn: both tools are permitted, new search text is
// merged with what the draft stage accumulated, and the revision scratch
// fields are reset for the next turn.
func (w *Workflow) runMentor(ctx context.Context, state *models.ConversationState, emit Emitter) error {
	profile, err := w.store.GetProfile(ctx)
	if err != nil {
		return err
	}
	messages := append(
		[]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(mentorSystemPrompt(profile, w.now()))},
		historyMessages(state.Messages)...,
	)
	result, err := w.loop.Run(ctx, messages, w.mentorTools, w.deltaFunc(emit, StageMentor), w.searchFunc(emit))
	if err != nil {
		return err
	}
	state.MentorNote = result.Content
	state.SearchResults = mergeSearchResults(state.SearchResults, result.SearchResults)
	state.Draft = ""
	state.Critique = ""
	state.RevisionCount = 0
	return nil
}

// emit forwards an event, tolerating a nil emitter.
func (w *Workflow) emit(emit Emitter, ev Event) error {
	if emit == nil {
		return nil
	}
	return emit(ev)
}

// deltaFunc adapts the emitter into a stage-tagged delta callback.
func (w *Workflow) deltaFunc(emit Emitter, stage Stage) func(chunk string) error {
	if emit == nil {
		return nil
	}
	return func(chunk string) error {
		return emit(Event{Kind: EventDelta, Stage: stage, Content: chunk})
	}
}

// searchFunc adapts the emitter into a search-result callback.
func (w *Workflow) searchFunc(emit Emitter) func(result string) error {
	if emit == nil {
		return nil
	}
	return func(result string) error {
		return emit(Event{Kind: EventSearchResult, Content: result})
	}
}

// mergeSearchResults joins the draft and mentor stages' search text.
func mergeSearchResults(existing, incoming string) string {
	if existing != "" && incoming != "" {
		return existing + "\n\n" + incoming
	}
	if incoming != "" {
		return incoming
	}
	return existing
}

// historyMessages converts persisted chat history into gateway message
// params. Tool-role messages are transient and never persisted, so they do
// not appear here.
func historyMessages(history []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		}
	}
	return out
}
