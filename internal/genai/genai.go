// Package genai provides the model gateway for CoachPipe.
//
// It wraps the OpenAI-compatible chat completion API (the reference backend
// is DeepSeek) with plain, tool-augmented, and streaming variants. Stage
// attribution of streamed deltas is the caller's concern: the gateway hands
// chunks to a callback and nothing more.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default model configuration
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "deepseek-chat"
	// DefaultTemperature is the sampling temperature for all completions.
	DefaultTemperature = 0.7
)

// ToolCallResponse represents a completion that may request tool invocations.
type ToolCallResponse struct {
	Content   string            `json:"content"`
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`
}

// ClientInterface defines the gateway operations used by the workflow.
type ClientInterface interface {
	// GenerateWithMessages produces a single completion with no tools attached.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)

	// GenerateWithTools produces a completion that may contain tool call requests.
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error)

	// GenerateStream streams a tool-free completion, invoking onDelta for each
	// content chunk in generation order, and returns the accumulated content.
	GenerateStream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, onDelta func(chunk string) error) (string, error)

	// GenerateWithToolsStream streams a tool-augmented completion. Content
	// chunks go to onDelta in generation order; tool calls are only available
	// on the accumulated result.
	GenerateWithToolsStream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, onDelta func(chunk string) error) (*ToolCallResponse, error)
}

// Opts holds configuration for the gateway client.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Option configures the gateway client.
type Option func(*Opts)

// WithAPIKey sets the API key explicitly (overrides OPENAI_API_KEY).
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) { o.Temperature = temp }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
}

var _ ClientInterface = (*Client)(nil)

// NewClient initializes a gateway client. The API key falls back to the
// OPENAI_API_KEY environment variable, the base URL to OPENAI_BASE_URL.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Model: DefaultModel, Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	slog.Debug("genai.NewClient: gateway configured", "model", cfg.Model, "baseURL_set", cfg.BaseURL != "")

	return &Client{
		client:      openai.NewClient(reqOpts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// newParams assembles completion parameters shared by all variants.
func (c *Client) newParams(messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	return params
}

// GenerateWithMessages produces a single completion with no tools attached.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.newParams(messages, nil))
	if err != nil {
		slog.Error("genai.GenerateWithMessages: completion failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateWithTools produces a completion that may request tool calls.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.newParams(messages, tools))
	if err != nil {
		slog.Error("genai.GenerateWithTools: completion failed", "error", err)
		return nil, fmt.Errorf("chat completion with tools failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	msg := resp.Choices[0].Message
	return &ToolCallResponse{
		Content:   msg.Content,
		ToolCalls: convertToolCalls(msg.ToolCalls),
	}, nil
}

// GenerateStream streams a tool-free completion through onDelta.
func (c *Client) GenerateStream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, onDelta func(chunk string) error) (string, error) {
	resp, err := c.streamCompletion(ctx, c.newParams(messages, nil), onDelta)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// GenerateWithToolsStream streams a tool-augmented completion through onDelta.
func (c *Client) GenerateWithToolsStream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, onDelta func(chunk string) error) (*ToolCallResponse, error) {
	return c.streamCompletion(ctx, c.newParams(messages, tools), onDelta)
}

// streamCompletion drives one streamed completion and accumulates the final
// structured result. Delta callbacks run in the exact order chunks arrive.
func (c *Client) streamCompletion(ctx context.Context, params openai.ChatCompletionNewParams, onDelta func(chunk string) error) (*ToolCallResponse, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" || onDelta == nil {
			continue
		}
		if err := onDelta(delta); err != nil {
			slog.Warn("genai.streamCompletion: delta callback aborted stream", "error", err)
			return nil, fmt.Errorf("delta callback failed: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		slog.Error("genai.streamCompletion: stream failed", "error", err)
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	if len(acc.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	msg := acc.Choices[0].Message
	return &ToolCallResponse{
		Content:   msg.Content,
		ToolCalls: convertToolCalls(msg.ToolCalls),
	}, nil
}

// convertToolCalls maps API tool calls onto the internal representation.
func convertToolCalls(calls []openai.ChatCompletionMessageToolCall) []models.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	converted := make([]models.ToolCall, 0, len(calls))
	for _, tc := range calls {
		converted = append(converted, models.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: models.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		})
	}
	return converted
}
