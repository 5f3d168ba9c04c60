package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BTreeMap/CoachPipe/internal/genai"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// fakeGenAI replays a scripted queue of responses. Streaming variants chop
// content into small chunks so delta ordering is observable.
type fakeGenAI struct {
	mu        sync.Mutex
	responses []*genai.ToolCallResponse
	errs      []error
	calls     [][]openai.ChatCompletionMessageParamUnion
	toolsSeen [][]openai.ChatCompletionToolParam
}

func (f *fakeGenAI) pushText(content string) {
	f.responses = append(f.responses, &genai.ToolCallResponse{Content: content})
	f.errs = append(f.errs, nil)
}

func (f *fakeGenAI) pushToolCalls(content string, calls ...models.ToolCall) {
	f.responses = append(f.responses, &genai.ToolCallResponse{Content: content, ToolCalls: calls})
	f.errs = append(f.errs, nil)
}

func (f *fakeGenAI) pushErr(err error) {
	f.responses = append(f.responses, nil)
	f.errs = append(f.errs, err)
}

func (f *fakeGenAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGenAI) next(messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.calls)
	f.calls = append(f.calls, messages)
	f.toolsSeen = append(f.toolsSeen, tools)
	if idx >= len(f.responses) {
		return nil, fmt.Errorf("fakeGenAI: unexpected call %d", idx+1)
	}
	if f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	return f.responses[idx], nil
}

func (f *fakeGenAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := f.next(messages, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (f *fakeGenAI) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	return f.next(messages, tools)
}

func (f *fakeGenAI) GenerateStream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, onDelta func(chunk string) error) (string, error) {
	resp, err := f.next(messages, nil)
	if err != nil {
		return "", err
	}
	if err := streamChunks(resp.Content, onDelta); err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (f *fakeGenAI) GenerateWithToolsStream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, onDelta func(chunk string) error) (*genai.ToolCallResponse, error) {
	resp, err := f.next(messages, tools)
	if err != nil {
		return nil, err
	}
	if err := streamChunks(resp.Content, onDelta); err != nil {
		return nil, err
	}
	return resp, nil
}

var _ genai.ClientInterface = (*fakeGenAI)(nil)

// streamChunks delivers content in chunks of a few runes.
func streamChunks(content string, onDelta func(chunk string) error) error {
	if onDelta == nil || content == "" {
		return nil
	}
	runes := []rune(content)
	const size = 4
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		if err := onDelta(string(runes[i:end])); err != nil {
			return err
		}
	}
	return nil
}

// messagesJSON renders a recorded call's messages for substring assertions.
func messagesJSON(messages []openai.ChatCompletionMessageParamUnion) string {
	b, _ := json.Marshal(messages)
	return string(b)
}

// toolCall builds a scripted tool call.
func toolCall(id, name, args string) models.ToolCall {
	return models.ToolCall{
		ID:   id,
		Type: "function",
		Function: models.FunctionCall{
			Name:      name,
			Arguments: json.RawMessage(args),
		},
	}
}

// fakeTool is a scripted ToolExecutor that records execution order.
type fakeTool struct {
	name   string
	output string
	err    error
	log    *[]string
}

func (t *fakeTool) Name() string { return t.name }

func (t *fakeTool) Definition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name: t.name,
			Parameters: shared.FunctionParameters{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

func (t *fakeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if t.log != nil {
		*t.log = append(*t.log, t.name)
	}
	if t.err != nil {
		return "", t.err
	}
	return t.output, nil
}
