package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// Bocha web search API constants
const (
	// DefaultSearchEndpoint is the Bocha web search API URL.
	DefaultSearchEndpoint = "https://api.bocha.cn/v1/web-search"
	// DefaultSearchCount limits results per query to keep context manageable.
	DefaultSearchCount = 5
	// DefaultSearchTimeout bounds one outbound search request.
	DefaultSearchTimeout = 30 * time.Second
)

// SearchTool performs web lookups through the Bocha search API. Faults are
// returned as result text so a failed search degrades answer quality instead
// of aborting the turn.
type SearchTool struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

var _ ToolExecutor = (*SearchTool)(nil)

// SearchOption configures a SearchTool.
type SearchOption func(*SearchTool)

// WithSearchAPIKey sets the API key explicitly (overrides BOCHA_API_KEY).
func WithSearchAPIKey(key string) SearchOption {
	return func(t *SearchTool) { t.apiKey = key }
}

// WithSearchEndpoint overrides the search API URL, used by tests.
func WithSearchEndpoint(url string) SearchOption {
	return func(t *SearchTool) { t.endpoint = url }
}

// WithSearchHTTPClient overrides the HTTP client.
func WithSearchHTTPClient(c *http.Client) SearchOption {
	return func(t *SearchTool) { t.httpClient = c }
}

// NewSearchTool creates a search tool. The API key falls back to the
// BOCHA_API_KEY environment variable; a missing key is reported per query
// rather than at construction time.
func NewSearchTool(opts ...SearchOption) *SearchTool {
	t := &SearchTool{
		endpoint:   DefaultSearchEndpoint,
		httpClient: &http.Client{Timeout: DefaultSearchTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.apiKey == "" {
		t.apiKey = os.Getenv("BOCHA_API_KEY")
	}
	return t
}

// Name returns the registered tool name.
func (t *SearchTool) Name() string { return models.ToolWebSearch }

// Definition returns the OpenAI tool definition for web search.
func (t *SearchTool) Definition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        models.ToolWebSearch,
			Description: openai.String("Perform a web search to get up-to-date information. Useful for answering questions about current events, specific technical details, or finding learning resources."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The search query string",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

// searchRequest is the Bocha API request body.
type searchRequest struct {
	Query   string `json:"query"`
	Summary bool   `json:"summary"`
	Count   int    `json:"count"`
}

// searchResponse covers the subset of the Bocha API response we render.
type searchResponse struct {
	Data struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
				Summary string `json:"summary"`
			} `json:"value"`
		} `json:"webPages"`
	} `json:"data"`
}

// Execute performs one search. Network and API faults come back as result
// text; only unusable arguments produce an error.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	fc := models.FunctionCall{Name: models.ToolWebSearch, Arguments: args}
	params, err := fc.ParseWebSearchParams()
	if err != nil {
		return "", fmt.Errorf("invalid web_search arguments: %w", err)
	}
	if t.apiKey == "" {
		return "Error: BOCHA_API_KEY is not set in the environment variables.", nil
	}
	slog.Debug("SearchTool.Execute: performing web search", "query", params.Query)

	body, err := json.Marshal(searchRequest{Query: params.Query, Summary: true, Count: DefaultSearchCount})
	if err != nil {
		return fmt.Sprintf("Error performing web search: %s", err.Error()), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("Error performing web search: %s", err.Error()), nil
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		slog.Warn("SearchTool.Execute: request failed", "error", err, "query", params.Query)
		return fmt.Sprintf("Error performing web search: %s", err.Error()), nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error performing web search: %s", err.Error()), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("SearchTool.Execute: API returned non-success status", "status", resp.StatusCode, "query", params.Query)
		return fmt.Sprintf("Error performing web search: unexpected status %d", resp.StatusCode), nil
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Sprintf("Error performing web search: %s", err.Error()), nil
	}
	pages := parsed.Data.WebPages.Value
	if len(pages) == 0 {
		return fmt.Sprintf("No search results found. API Response: %s", string(raw)), nil
	}

	results := make([]string, 0, len(pages))
	for _, item := range pages {
		title := item.Name
		if title == "" {
			title = "No Title"
		}
		url := item.URL
		if url == "" {
			url = "No URL"
		}
		results = append(results, fmt.Sprintf("Title: %s\nURL: %s\nSnippet: %s\nSummary: %s\n", title, url, item.Snippet, item.Summary))
	}
	slog.Debug("SearchTool.Execute: search succeeded", "query", params.Query, "results", len(results))
	return strings.Join(results, "\n---\n"), nil
}
