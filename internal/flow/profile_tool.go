package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/store"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// ProfileTool upserts the global user profile. Only the mentor stage is
// given this tool; the drafting coach may read the profile but not write it.
type ProfileTool struct {
	store store.Store
}

var _ ToolExecutor = (*ProfileTool)(nil)

// NewProfileTool creates a profile tool over the given store.
func NewProfileTool(s store.Store) *ProfileTool {
	return &ProfileTool{store: s}
}

// Name returns the registered tool name.
func (t *ProfileTool) Name() string { return models.ToolUpdateProfile }

// Definition returns the OpenAI tool definition for profile updates.
func (t *ProfileTool) Definition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        models.ToolUpdateProfile,
			Description: openai.String("Update the user's global knowledge profile and learning goals. Use this to record what the user has mastered, what they are struggling with, and their current learning direction."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"knowledge_summary": map[string]interface{}{
						"type":        "string",
						"description": "A comprehensive summary of the user's current knowledge state, including strengths and weaknesses",
					},
					"learning_goals": map[string]interface{}{
						"type":        "string",
						"description": "A list of current and future learning objectives",
					},
				},
				"required": []string{"knowledge_summary", "learning_goals"},
			},
		},
	}
}

// Execute upserts the profile. Storage faults come back as result text so
// the turn is never aborted by a failed profile write.
func (t *ProfileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	fc := models.FunctionCall{Name: models.ToolUpdateProfile, Arguments: args}
	params, err := fc.ParseUpdateProfileParams()
	if err != nil {
		return "", fmt.Errorf("invalid update_profile arguments: %w", err)
	}
	slog.Debug("ProfileTool.Execute: updating user profile")

	if err := t.store.UpsertProfile(ctx, params.KnowledgeSummary, params.LearningGoals); err != nil {
		slog.Warn("ProfileTool.Execute: upsert failed", "error", err)
		return fmt.Sprintf("Error updating profile: %s", err.Error()), nil
	}
	return "Successfully updated user profile.", nil
}
