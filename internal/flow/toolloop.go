package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/CoachPipe/internal/genai"
	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

// MaxToolRounds caps model round-trips per tool loop invocation. Exhausting
// the budget returns the last response obtained; it is a soft cap, not an
// error.
const MaxToolRounds = 5

// ToolExecutor is a named callable the model may request during a loop.
type ToolExecutor interface {
	// Name returns the registered tool name.
	Name() string
	// Definition returns the schema advertised to the model.
	Definition() openai.ChatCompletionToolParam
	// Execute runs the tool with the supplied JSON arguments and returns a
	// textual result.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolRegistry holds the tools permitted for one loop invocation.
type ToolRegistry struct {
	order []string
	tools map[string]ToolExecutor
}

// NewToolRegistry creates a registry over the given executors.
func NewToolRegistry(tools ...ToolExecutor) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]ToolExecutor)}
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; !exists {
			r.order = append(r.order, t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r
}

// Lookup returns the executor registered under name.
func (r *ToolRegistry) Lookup(name string) (ToolExecutor, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the tool schemas in registration order.
func (r *ToolRegistry) Definitions() []openai.ChatCompletionToolParam {
	defs := make([]openai.ChatCompletionToolParam, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// ToolLoopResult is the outcome of one bounded tool loop.
type ToolLoopResult struct {
	// Content is the final assistant text.
	Content string
	// SearchResults is the accumulated search text for the invocation,
	// formatted one "Query: ...\nResult: ..." block per search call.
	SearchResults string
}

// ToolLoop drives bounded tool-augmented completions against the gateway.
type ToolLoop struct {
	client genai.ClientInterface
}

// NewToolLoop creates a tool loop over the given gateway client.
func NewToolLoop(client genai.ClientInterface) *ToolLoop {
	return &ToolLoop{client: client}
}

// Run repeatedly requests completions with the registry's tools attached,
// executing requested calls one at a time in response order, until the model
// produces a tool-free response or the round budget runs out.
//
// Tool execution faults never abort the loop; they are stringified into the
// tool result. A gateway fault or callback error aborts immediately. onDelta
// and onSearch may be nil.
func (l *ToolLoop) Run(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, registry *ToolRegistry, onDelta func(chunk string) error, onSearch func(result string) error) (*ToolLoopResult, error) {
	working := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	copy(working, messages)

	var searchBlocks []string
	var resp *genai.ToolCallResponse

	for round := 0; round < MaxToolRounds; round++ {
		var err error
		resp, err = l.client.GenerateWithToolsStream(ctx, working, registry.Definitions(), onDelta)
		if err != nil {
			return nil, fmt.Errorf("tool loop round %d failed: %w", round+1, err)
		}
		if len(resp.ToolCalls) == 0 {
			return &ToolLoopResult{
				Content:       resp.Content,
				SearchResults: strings.Join(searchBlocks, "\n\n"),
			}, nil
		}

		working = append(working, assistantToolCallMessage(resp))
		for _, call := range resp.ToolCalls {
			output := l.executeCall(ctx, registry, call)
			if call.Function.Name == models.ToolWebSearch {
				searchBlocks = append(searchBlocks, formatSearchBlock(call.Function.Arguments, output))
				if onSearch != nil {
					if err := onSearch(output); err != nil {
						return nil, fmt.Errorf("search callback failed: %w", err)
					}
				}
			}
			working = append(working, openai.ToolMessage(output, call.ID))
		}
	}

	// Budget exhausted; hand back the last response even if it still
	// requests tools.
	slog.Warn("ToolLoop.Run: round budget exhausted", "rounds", MaxToolRounds)
	return &ToolLoopResult{
		Content:       resp.Content,
		SearchResults: strings.Join(searchBlocks, "\n\n"),
	}, nil
}

// executeCall runs one tool call, containing every fault as result text.
func (l *ToolLoop) executeCall(ctx context.Context, registry *ToolRegistry, call models.ToolCall) string {
	name := call.Function.Name
	tool, ok := registry.Lookup(name)
	if !ok {
		slog.Warn("ToolLoop.executeCall: unknown tool requested", "tool", name)
		return fmt.Sprintf("Error: tool %s not found.", name)
	}
	slog.Debug("ToolLoop.executeCall: executing tool", "tool", name, "callID", call.ID)
	output, err := tool.Execute(ctx, call.Function.Arguments)
	if err != nil {
		slog.Warn("ToolLoop.executeCall: tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error executing tool %s: %s", name, err.Error())
	}
	return output
}

// formatSearchBlock pairs a search query with its result for accumulation.
func formatSearchBlock(args json.RawMessage, output string) string {
	var params models.WebSearchParams
	_ = json.Unmarshal(args, &params)
	return fmt.Sprintf("Query: %s\nResult: %s", params.Query, output)
}

// assistantToolCallMessage rebuilds the model's tool-requesting response as
// an assistant message for the working sequence.
func assistantToolCallMessage(resp *genai.ToolCallResponse) openai.ChatCompletionMessageParamUnion {
	msg := openai.ChatCompletionAssistantMessageParam{
		Content: openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(resp.Content),
		},
	}
	for _, call := range resp.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   call.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Function.Name,
				Arguments: string(call.Function.Arguments),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}
