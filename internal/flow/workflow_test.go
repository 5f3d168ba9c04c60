package flow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BTreeMap/CoachPipe/internal/models"
	"github.com/BTreeMap/CoachPipe/internal/store"
)

const bochaFixture = `{"data":{"webPages":{"value":[{"name":"快速排序详解","url":"https://example.com/qs","snippet":"partition 原理","summary":"快排通过分区递归排序。"}]}}}`

func newSearchServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(bochaFixture))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestWorkflow(t *testing.T, client *fakeGenAI, st store.Store) *Workflow {
	t.Helper()
	srv := newSearchServer(t)
	search := NewSearchTool(WithSearchAPIKey("test-key"), WithSearchEndpoint(srv.URL))
	profile := NewProfileTool(st)
	return NewWorkflow(st, client, search, profile)
}

func userTurn(content string) []models.ChatMessage {
	return []models.ChatMessage{{Role: models.RoleUser, Content: content}}
}

// collectEvents returns an emitter that appends every event to the slice.
func collectEvents(events *[]Event) Emitter {
	return func(ev Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestWorkflowFirstPassCritique(t *testing.T) {
	client := &fakeGenAI{}
	client.pushText("这是草稿。")   // draft
	client.pushText("PASS")     // critique
	client.pushText("这是最终回复。") // finalize
	client.pushText("继续保持！")    // mentor
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)

	var events []Event
	state, err := w.RunTurn(context.Background(), "t1", userTurn("解释一下快排"), collectEvents(&events))
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if client.callCount() != 4 {
		t.Errorf("expected exactly one draft and one critique before finalize; %d gateway calls", client.callCount())
	}

	// Exactly one new assistant message, carrying the finalize output.
	if len(state.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(state.Messages))
	}
	last := state.Messages[1]
	if last.Role != models.RoleAssistant || last.Content != "这是最终回复。" {
		t.Errorf("unexpected final message: %+v", last)
	}

	// Scratch fields reset by the mentor stage.
	if state.Draft != "" || state.Critique != "" || state.RevisionCount != 0 {
		t.Errorf("scratch fields not reset: draft=%q critique=%q revisions=%d", state.Draft, state.Critique, state.RevisionCount)
	}
	if state.MentorNote != "继续保持！" {
		t.Errorf("unexpected mentor note: %q", state.MentorNote)
	}

	// Stage-start markers precede that stage's first delta.
	firstDelta := map[Stage]int{}
	started := map[Stage]int{}
	for i, ev := range events {
		switch ev.Kind {
		case EventStageStarted:
			if _, seen := started[ev.Stage]; !seen {
				started[ev.Stage] = i
			}
		case EventDelta:
			if _, seen := firstDelta[ev.Stage]; !seen {
				firstDelta[ev.Stage] = i
			}
		}
	}
	for stage, deltaIdx := range firstDelta {
		startIdx, ok := started[stage]
		if !ok || startIdx > deltaIdx {
			t.Errorf("stage %s delta at %d without preceding start marker", stage, deltaIdx)
		}
	}
}

func TestWorkflowForcedFinalizeAtCeiling(t *testing.T) {
	client := &fakeGenAI{}
	for i := 0; i < MaxRevisions; i++ {
		client.pushText("草稿内容")
		client.pushText("还需要改进。")
	}
	client.pushText("最终回复")
	client.pushText("导师建议")
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)

	var events []Event
	state, err := w.RunTurn(context.Background(), "t1", userTurn("解释一下快排"), collectEvents(&events))
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if client.callCount() != 2*MaxRevisions+2 {
		t.Errorf("expected %d gateway calls, got %d", 2*MaxRevisions+2, client.callCount())
	}

	critiqueStarts := 0
	for _, ev := range events {
		if ev.Kind == EventStageStarted && ev.Stage == StageCritique {
			critiqueStarts++
		}
	}
	if critiqueStarts != MaxRevisions {
		t.Errorf("expected %d critique passes, got %d", MaxRevisions, critiqueStarts)
	}
	if len(state.Messages) != 2 {
		t.Errorf("expected exactly one appended assistant message, got %d messages", len(state.Messages))
	}
	if state.Messages[1].Content != "最终回复" {
		t.Errorf("unexpected final message: %q", state.Messages[1].Content)
	}
}

func TestWorkflowCritiqueNeverEntersHistory(t *testing.T) {
	client := &fakeGenAI{}
	client.pushText("草稿")
	client.pushText("反馈：需要更多示例。")
	client.pushText("修改后的草稿")
	client.pushText("PASS")
	client.pushText("最终回复")
	client.pushText("导师建议")
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)

	state, err := w.RunTurn(context.Background(), "t1", userTurn("解释一下快排"), nil)
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	for _, m := range state.Messages {
		if strings.Contains(m.Content, "反馈：需要更多示例。") || m.Content == "PASS" {
			t.Errorf("critique leaked into history: %+v", m)
		}
	}
	persisted, err := st.LoadLatestState(context.Background(), "t1")
	if err != nil {
		t.Fatalf("LoadLatestState failed: %v", err)
	}
	for _, m := range persisted.Messages {
		if strings.Contains(m.Content, "反馈：需要更多示例。") || m.Content == "PASS" {
			t.Errorf("critique leaked into persisted history: %+v", m)
		}
	}
}

func TestWorkflowSearchFlow(t *testing.T) {
	client := &fakeGenAI{}
	// Draft round 1: the coach searches, then drafts.
	client.pushToolCalls("", toolCall("c1", models.ToolWebSearch, `{"query":"快速排序"}`))
	client.pushText("参考资料后的草稿")
	client.pushText("PASS")
	client.pushText("最终回复")
	client.pushText("导师建议")
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)

	var events []Event
	state, err := w.RunTurn(context.Background(), "t1", userTurn("解释一下快排"), collectEvents(&events))
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	if !strings.Contains(state.SearchResults, "Query: 快速排序") {
		t.Errorf("search results not accumulated: %q", state.SearchResults)
	}
	if !strings.Contains(state.SearchResults, "快速排序详解") {
		t.Errorf("search payload missing from accumulation: %q", state.SearchResults)
	}

	var searchEvents []Event
	for _, ev := range events {
		if ev.Kind == EventSearchResult {
			searchEvents = append(searchEvents, ev)
		}
	}
	if len(searchEvents) != 1 {
		t.Fatalf("expected 1 search event, got %d", len(searchEvents))
	}
	ce, ok := ClientEvent(searchEvents[0])
	if !ok || ce.Node != models.NodeSearch {
		t.Errorf("search event not routed to search node: %+v", ce)
	}
}

func TestWorkflowMentorUpdatesProfile(t *testing.T) {
	client := &fakeGenAI{}
	client.pushText("草稿")
	client.pushText("PASS")
	client.pushText("最终回复")
	// Mentor round 1: update the profile, then close out.
	client.pushToolCalls("", toolCall("c1", models.ToolUpdateProfile, `{"knowledge_summary":"用户理解了快排的分区思想。","learning_goals":"下一步学习归并排序。"}`))
	client.pushText("导师建议")
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)

	if _, err := w.RunTurn(context.Background(), "t1", userTurn("解释一下快排"), nil); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	profile, err := st.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.KnowledgeSummary != "用户理解了快排的分区思想。" {
		t.Errorf("profile not updated: %+v", profile)
	}
}

func TestWorkflowResumesPersistedThread(t *testing.T) {
	client := &fakeGenAI{}
	for i := 0; i < 2; i++ {
		client.pushText("草稿")
		client.pushText("PASS")
		client.pushText("最终回复")
		client.pushText("导师建议")
	}
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)
	ctx := context.Background()

	if _, err := w.RunTurn(ctx, "t1", userTurn("第一问"), nil); err != nil {
		t.Fatalf("turn 1 failed: %v", err)
	}
	state, err := w.RunTurn(ctx, "t1", userTurn("第二问"), nil)
	if err != nil {
		t.Fatalf("turn 2 failed: %v", err)
	}
	// user, assistant, user, assistant
	if len(state.Messages) != 4 {
		t.Fatalf("expected 4 messages after two turns, got %d", len(state.Messages))
	}
	if state.Messages[2].Content != "第二问" {
		t.Errorf("second turn's user message missing: %+v", state.Messages)
	}
}

func TestWorkflowGatewayFaultAbortsTurn(t *testing.T) {
	client := &fakeGenAI{}
	client.pushText("草稿")
	client.pushErr(errors.New("gateway down"))
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)

	_, err := w.RunTurn(context.Background(), "t1", userTurn("解释一下快排"), nil)
	if err == nil {
		t.Fatal("expected turn-level failure on gateway fault")
	}
	if !strings.Contains(err.Error(), "critique") {
		t.Errorf("error should name the failing stage: %v", err)
	}
}

func TestSummarizeThread(t *testing.T) {
	client := &fakeGenAI{}
	client.pushText("草稿")
	client.pushText("PASS")
	client.pushText("最终回复")
	client.pushText("导师建议")
	client.pushText("\"快排入门\"") // title, quotes stripped
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)
	ctx := context.Background()

	if _, err := w.RunTurn(ctx, "t1", userTurn("解释一下快排"), nil); err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if err := w.SummarizeThread(ctx, "t1"); err != nil {
		t.Fatalf("SummarizeThread failed: %v", err)
	}
	threads, err := st.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 1 || threads[0].Title != "快排入门" {
		t.Errorf("unexpected threads: %+v", threads)
	}
}

func TestSummarizeThreadEmptyThread(t *testing.T) {
	client := &fakeGenAI{}
	st := store.NewInMemoryStore()
	w := newTestWorkflow(t, client, st)

	if err := w.SummarizeThread(context.Background(), "missing"); err != nil {
		t.Fatalf("summarizing an unknown thread must be a no-op: %v", err)
	}
	if client.callCount() != 0 {
		t.Errorf("no gateway call expected, got %d", client.callCount())
	}
}
