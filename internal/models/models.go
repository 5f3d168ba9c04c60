// Package models defines the core data structures for CoachPipe.
//
// It includes the conversation state mutated by the workflow stages, the
// persisted user profile and thread metadata, and the request/response
// envelopes shared across modules.
package models

import (
	"errors"
	"time"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	// RoleUser is a message written by the end user.
	RoleUser MessageRole = "user"
	// RoleAssistant is a message produced by the finalize stage.
	RoleAssistant MessageRole = "assistant"
	// RoleSystem is an instruction message injected by a stage.
	RoleSystem MessageRole = "system"
	// RoleTool is a tool-result message correlated to a tool call.
	RoleTool MessageRole = "tool"
)

// Validation constants for input validation
const (
	// MaxMessageContentLength defines the maximum allowed length for a single chat message
	MaxMessageContentLength = 32768
	// MaxIncomingMessages defines the maximum number of messages accepted in one chat request
	MaxIncomingMessages = 200
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessages     = errors.New("messages cannot be empty")
	ErrTooManyMessages   = errors.New("too many messages in request")
	ErrInvalidRole       = errors.New("invalid message role")
	ErrMessageTooLong    = errors.New("message content exceeds maximum length")
	ErrEmptyThreadID     = errors.New("thread id cannot be empty")
	ErrMissingKnowledge  = errors.New("knowledge_summary is required")
	ErrMissingGoals      = errors.New("learning_goals is required")
	ErrEmptySearchQuery  = errors.New("query cannot be empty")
	ErrStreamUnsupported = errors.New("response writer does not support streaming")
)

// IsValidMessageRole checks if the given message role is supported.
func IsValidMessageRole(r MessageRole) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	default:
		return false
	}
}

// ChatMessage is a single entry in a thread's permanent conversation history.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Validate checks a chat message for acceptable role and size.
func (m *ChatMessage) Validate() error {
	if !IsValidMessageRole(m.Role) {
		return ErrInvalidRole
	}
	if len(m.Content) > MaxMessageContentLength {
		return ErrMessageTooLong
	}
	return nil
}

// ConversationState is the full per-thread state mutated across workflow
// stages within a turn. Draft, Critique and RevisionCount are scratch space
// for the current turn only; the mentor stage resets them before the turn's
// final checkpoint. Only user and finalize-stage assistant messages ever
// enter Messages.
type ConversationState struct {
	Messages      []ChatMessage `json:"messages"`
	Draft         string        `json:"draft,omitempty"`
	Critique      string        `json:"critique,omitempty"`
	RevisionCount int           `json:"revision_count"`
	SearchResults string        `json:"search_results,omitempty"`
	MentorNote    string        `json:"mentor_note,omitempty"`
}

// NewConversationState returns an empty state for a freshly referenced thread.
func NewConversationState() *ConversationState {
	return &ConversationState{Messages: []ChatMessage{}}
}

// Default profile placeholders returned when no profile row exists yet.
const (
	DefaultKnowledgeSummary = "尚无用户画像。"
	DefaultLearningGoals    = "尚无学习目标。"
)

// UserProfile is the single global record of user knowledge and goals.
// Exactly one row exists, keyed by a fixed identifier; reads on an empty
// store return the default placeholders.
type UserProfile struct {
	KnowledgeSummary string    `json:"knowledge_summary"`
	LearningGoals    string    `json:"learning_goals"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// DefaultUserProfile returns the placeholder profile used when none is stored.
func DefaultUserProfile() UserProfile {
	return UserProfile{
		KnowledgeSummary: DefaultKnowledgeSummary,
		LearningGoals:    DefaultLearningGoals,
	}
}

// DefaultThreadTitle is used for threads the summarizer has not titled yet.
const DefaultThreadTitle = "New Chat"

// Thread is the metadata entry for one persisted conversation.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatRequest is the payload for both the streaming and synchronous chat endpoints.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	ThreadID string        `json:"thread_id,omitempty"`
}

// Validate performs comprehensive validation on a ChatRequest.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrEmptyMessages
	}
	if len(r.Messages) > MaxIncomingMessages {
		return ErrTooManyMessages
	}
	for i := range r.Messages {
		if err := r.Messages[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ChatResponse is the synchronous chat endpoint's payload.
type ChatResponse struct {
	ThreadID string        `json:"thread_id"`
	Messages []ChatMessage `json:"messages"`
}

// UpdateProfileRequest is the payload for the profile update endpoint.
type UpdateProfileRequest struct {
	KnowledgeSummary string `json:"knowledge_summary"`
	LearningGoals    string `json:"learning_goals"`
}

// APIStatus defines the status values for API responses.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard JSON envelope for non-streaming endpoints.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a success response with a result payload.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a success response with a message and result payload.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
