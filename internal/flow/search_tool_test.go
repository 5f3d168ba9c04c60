package flow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

func TestSearchToolFormatsResults(t *testing.T) {
	var gotAuth string
	var gotBody searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(bochaFixture))
	}))
	defer srv.Close()

	tool := NewSearchTool(WithSearchAPIKey("key-123"), WithSearchEndpoint(srv.URL))
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"快速排序"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotBody.Query != "快速排序" || !gotBody.Summary || gotBody.Count != DefaultSearchCount {
		t.Errorf("unexpected request body: %+v", gotBody)
	}
	for _, want := range []string{"Title: 快速排序详解", "URL: https://example.com/qs", "Snippet: partition 原理", "Summary: 快排通过分区递归排序。"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestSearchToolMissingKey(t *testing.T) {
	tool := &SearchTool{endpoint: "http://unused", httpClient: http.DefaultClient}
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	if err != nil {
		t.Fatalf("a missing key is result text, not an error: %v", err)
	}
	if !strings.Contains(out, "BOCHA_API_KEY") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestSearchToolServerErrorBecomesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := NewSearchTool(WithSearchAPIKey("k"), WithSearchEndpoint(srv.URL))
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	if err != nil {
		t.Fatalf("server faults are result text, not errors: %v", err)
	}
	if !strings.Contains(out, "Error performing web search") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestSearchToolNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"webPages":{"value":[]}}}`))
	}))
	defer srv.Close()

	tool := NewSearchTool(WithSearchAPIKey("k"), WithSearchEndpoint(srv.URL))
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "No search results found") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestSearchToolRejectsEmptyQuery(t *testing.T) {
	tool := NewSearchTool(WithSearchAPIKey("k"))
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"  "}`))
	if !errors.Is(err, models.ErrEmptySearchQuery) {
		t.Fatalf("expected ErrEmptySearchQuery, got %v", err)
	}
}
