// Package models defines tool structures for LLM function calling.
package models

import (
	"encoding/json"
	"strings"
)

// Tool names registered with the model gateway.
const (
	// ToolWebSearch performs an external web lookup and returns formatted results.
	ToolWebSearch = "web_search"
	// ToolUpdateProfile upserts the global user profile.
	ToolUpdateProfile = "update_profile"
)

// ToolCall represents an LLM tool function call.
type ToolCall struct {
	ID       string       `json:"id"`       // Tool call ID correlating the call to its result
	Type     string       `json:"type"`     // Always "function"
	Function FunctionCall `json:"function"` // Function details
}

// FunctionCall represents the function details within a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`      // Function name (e.g., "web_search")
	Arguments json.RawMessage `json:"arguments"` // JSON arguments as raw message
}

// WebSearchParams defines the parameters for the web_search tool call.
type WebSearchParams struct {
	Query string `json:"query"`
}

// Validate ensures the search parameters are usable.
func (p *WebSearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return ErrEmptySearchQuery
	}
	return nil
}

// UpdateProfileParams defines the parameters for the update_profile tool call.
type UpdateProfileParams struct {
	KnowledgeSummary string `json:"knowledge_summary"`
	LearningGoals    string `json:"learning_goals"`
}

// Validate ensures both profile fields are present.
func (p *UpdateProfileParams) Validate() error {
	if strings.TrimSpace(p.KnowledgeSummary) == "" {
		return ErrMissingKnowledge
	}
	if strings.TrimSpace(p.LearningGoals) == "" {
		return ErrMissingGoals
	}
	return nil
}

// ParseWebSearchParams parses the arguments as WebSearchParams.
func (fc *FunctionCall) ParseWebSearchParams() (*WebSearchParams, error) {
	var params WebSearchParams
	if err := json.Unmarshal(fc.Arguments, &params); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}

// ParseUpdateProfileParams parses the arguments as UpdateProfileParams.
func (fc *FunctionCall) ParseUpdateProfileParams() (*UpdateProfileParams, error) {
	var params UpdateProfileParams
	if err := json.Unmarshal(fc.Arguments, &params); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}
