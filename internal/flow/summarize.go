package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
)

// TitleHistoryWindow bounds how many trailing messages feed the title
// prompt, so the title tracks the latest topic of a long thread.
const TitleHistoryWindow = 10

// SummarizeThread rewrites the thread title from recent conversation
// content. It runs after the turn's stream has completed and must never
// affect the turn itself; callers log failures and move on.
func (w *Workflow) SummarizeThread(ctx context.Context, threadID string) error {
	state, err := w.store.LoadLatestState(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to load state for summarization: %w", err)
	}
	if state == nil || len(state.Messages) == 0 {
		return nil
	}

	recent := state.Messages
	if len(recent) > TitleHistoryWindow {
		recent = recent[len(recent)-TitleHistoryWindow:]
	}
	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}

	title, err := w.client.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(titlePrompt(strings.Join(lines, "\n"))),
	})
	if err != nil {
		return fmt.Errorf("title generation failed: %w", err)
	}
	title = strings.TrimSpace(title)
	title = strings.ReplaceAll(title, `"`, "")
	title = strings.ReplaceAll(title, "'", "")
	title = strings.ReplaceAll(title, "“", "")
	title = strings.ReplaceAll(title, "”", "")
	if title == "" {
		return nil
	}

	if err := w.store.SetThreadTitle(ctx, threadID, title); err != nil {
		return fmt.Errorf("failed to save thread title: %w", err)
	}
	slog.Debug("Workflow.SummarizeThread: title updated", "threadID", threadID, "title", title)
	return nil
}
