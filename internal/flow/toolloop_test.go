package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

func TestToolLoopReturnsToolFreeResponse(t *testing.T) {
	client := &fakeGenAI{}
	client.pushText("final answer")
	loop := NewToolLoop(client)
	registry := NewToolRegistry(&fakeTool{name: "noop", output: "ok"})

	result, err := loop.Run(context.Background(), nil, registry, nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Content != "final answer" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if result.SearchResults != "" {
		t.Errorf("expected no search results, got %q", result.SearchResults)
	}
	if client.callCount() != 1 {
		t.Errorf("expected 1 gateway call, got %d", client.callCount())
	}
}

func TestToolLoopExecutesCallsInResponseOrder(t *testing.T) {
	var log []string
	profile := &fakeTool{name: models.ToolUpdateProfile, output: "Successfully updated user profile.", log: &log}
	search := &fakeTool{name: models.ToolWebSearch, output: "some results", log: &log}
	registry := NewToolRegistry(search, profile)

	client := &fakeGenAI{}
	client.pushToolCalls("",
		toolCall("c1", models.ToolUpdateProfile, `{"knowledge_summary":"a","learning_goals":"b"}`),
		toolCall("c2", models.ToolWebSearch, `{"query":"快排"}`),
	)
	client.pushText("done")
	loop := NewToolLoop(client)

	result, err := loop.Run(context.Background(), nil, registry, nil, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Content != "done" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if len(log) != 2 || log[0] != models.ToolUpdateProfile || log[1] != models.ToolWebSearch {
		t.Errorf("tools did not execute in response order: %v", log)
	}
	if !strings.Contains(result.SearchResults, "Query: 快排\nResult: some results") {
		t.Errorf("search accumulation missing: %q", result.SearchResults)
	}
}

func TestToolLoopRoundBudget(t *testing.T) {
	client := &fakeGenAI{}
	for i := 0; i < MaxToolRounds; i++ {
		client.pushToolCalls("still working", toolCall("c", models.ToolWebSearch, `{"query":"q"}`))
	}
	loop := NewToolLoop(client)
	registry := NewToolRegistry(&fakeTool{name: models.ToolWebSearch, output: "r"})

	result, err := loop.Run(context.Background(), nil, registry, nil, nil)
	if err != nil {
		t.Fatalf("exhausting the budget must not error: %v", err)
	}
	if client.callCount() != MaxToolRounds {
		t.Errorf("expected %d gateway calls, got %d", MaxToolRounds, client.callCount())
	}
	if result.Content != "still working" {
		t.Errorf("expected last response content, got %q", result.Content)
	}
}

func TestToolLoopContainsExecutionFaults(t *testing.T) {
	client := &fakeGenAI{}
	client.pushToolCalls("", toolCall("c1", models.ToolWebSearch, `{"query":"q"}`))
	client.pushText("recovered")
	loop := NewToolLoop(client)
	registry := NewToolRegistry(&fakeTool{name: models.ToolWebSearch, err: errors.New("boom")})

	result, err := loop.Run(context.Background(), nil, registry, nil, nil)
	if err != nil {
		t.Fatalf("tool faults must not abort the loop: %v", err)
	}
	if result.Content != "recovered" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	// The fault is stringified into the tool result fed back to the model.
	second := messagesJSON(client.calls[1])
	if !strings.Contains(second, "Error executing tool web_search: boom") {
		t.Errorf("error text missing from follow-up messages: %s", second)
	}
}

func TestToolLoopUnknownTool(t *testing.T) {
	client := &fakeGenAI{}
	client.pushToolCalls("", toolCall("c1", "bogus", `{}`))
	client.pushText("ok")
	loop := NewToolLoop(client)
	registry := NewToolRegistry(&fakeTool{name: models.ToolWebSearch, output: "r"})

	_, err := loop.Run(context.Background(), nil, registry, nil, nil)
	if err != nil {
		t.Fatalf("unknown tools must not abort the loop: %v", err)
	}
	second := messagesJSON(client.calls[1])
	if !strings.Contains(second, "Error: tool bogus not found.") {
		t.Errorf("not-found text missing from follow-up messages: %s", second)
	}
}

func TestToolLoopSearchCallback(t *testing.T) {
	client := &fakeGenAI{}
	client.pushToolCalls("",
		toolCall("c1", models.ToolWebSearch, `{"query":"a"}`),
		toolCall("c2", models.ToolWebSearch, `{"query":"b"}`),
	)
	client.pushText("ok")
	loop := NewToolLoop(client)
	registry := NewToolRegistry(&fakeTool{name: models.ToolWebSearch, output: "r"})

	var seen []string
	onSearch := func(result string) error {
		seen = append(seen, result)
		return nil
	}
	result, err := loop.Run(context.Background(), nil, registry, nil, onSearch)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 search callbacks, got %d", len(seen))
	}
	blocks := strings.Split(result.SearchResults, "\n\n")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 accumulated blocks, got %d: %q", len(blocks), result.SearchResults)
	}
	if blocks[0] != "Query: a\nResult: r" || blocks[1] != "Query: b\nResult: r" {
		t.Errorf("unexpected accumulation: %q", result.SearchResults)
	}
}

func TestToolLoopGatewayFaultAborts(t *testing.T) {
	client := &fakeGenAI{}
	client.pushErr(errors.New("gateway down"))
	loop := NewToolLoop(client)

	_, err := loop.Run(context.Background(), nil, NewToolRegistry(), nil, nil)
	if err == nil {
		t.Fatal("expected gateway fault to propagate")
	}
	if !strings.Contains(err.Error(), "gateway down") {
		t.Errorf("unexpected error: %v", err)
	}
}
