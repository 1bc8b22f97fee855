package assistant

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harunnryd/aide/pkg/conversation"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/llm"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/plugins"
	"github.com/harunnryd/aide/pkg/providers/mock"
	"github.com/harunnryd/aide/pkg/search"
)

type stubSearcher struct {
	calls   atomic.Int32
	results []search.Result
}

func (s *stubSearcher) Search(ctx context.Context, q string) ([]search.Result, error) {
	s.calls.Add(1)
	return s.results, nil
}

func TestReplyRecordsTurns(t *testing.T) {
	backend := mock.NewLLMAdapter(mock.LLMConfig{ResponseText: "  Hi there!  "})
	tr := conversation.New("sys")
	a := New(backend, tr, nil, nil, Options{})
	out, err := a.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if out.Text != "Hi there!" {
		t.Fatalf("unexpected text %q", out.Text)
	}
	turns := tr.Turns()
	if len(turns) != 3 || turns[1].Content != "hello" || turns[2].Role != llm.RoleAssistant {
		t.Fatalf("unexpected transcript %+v", turns)
	}
	req := backend.Request(0)
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("backend must see system prompt and user turn, got %+v", req.Messages)
	}
}

func TestReplyRunsToolCalls(t *testing.T) {
	backend := mock.NewLLMAdapter(mock.LLMConfig{Responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}},
			{ID: "c2", Name: "divide", Arguments: map[string]any{"a": 1.0, "b": 0.0}},
		}},
		{Text: "2 + 3 is 5 and 1 / 0 is undefined."},
	}})
	reg, err := plugins.NewRegistry(plugins.Calculator{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	obs := metrics.NewMemoryObserver()
	tr := conversation.New("sys")
	a := New(backend, tr, reg, nil, Options{Observer: obs})
	out, err := a.Reply(context.Background(), "what is 2+3 and 1/0?")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if out.ToolCalls != 2 || backend.Calls() != 2 {
		t.Fatalf("expected two tool calls in one round, got %d calls / %d backend", out.ToolCalls, backend.Calls())
	}
	second := backend.Request(1).Messages
	if len(second) != 5 {
		t.Fatalf("expected system, user, assistant tool request and two results, got %d", len(second))
	}
	if second[3].Role != llm.RoleTool || second[3].Content != "5" || second[3].ToolCallID != "c1" {
		t.Fatalf("unexpected first tool result %+v", second[3])
	}
	if second[4].Content != "undefined" {
		t.Fatalf("unexpected second tool result %+v", second[4])
	}
	if tr.Len() != 3 {
		t.Fatalf("tool messages must not be persisted, transcript has %d turns", tr.Len())
	}
	if obs.Count(metrics.EventToolCall) != 2 || obs.Count(metrics.EventReply) != 1 {
		t.Fatalf("unexpected metrics")
	}
}

func TestReplyBoundsToolRounds(t *testing.T) {
	loop := llm.Response{ToolCalls: []llm.ToolCall{{ID: "c", Name: "square", Arguments: map[string]any{"x": 2.0}}}}
	backend := mock.NewLLMAdapter(mock.LLMConfig{Responses: []llm.Response{loop, loop, {Text: "done"}}})
	reg, _ := plugins.NewRegistry(plugins.Calculator{})
	a := New(backend, conversation.New(""), reg, nil, Options{MaxToolRounds: 1})
	out, err := a.Reply(context.Background(), "loop")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if out.Text != "done" || out.ToolCalls != 1 {
		t.Fatalf("unexpected reply %+v", out)
	}
	if tools := backend.Request(2).Tools; tools != nil {
		t.Fatalf("final request after exhausting rounds must not offer tools")
	}
}

func TestReplyFollowsSearchDirective(t *testing.T) {
	backend := mock.NewLLMAdapter(mock.LLMConfig{Responses: []llm.Response{
		{Text: "[[SEARCH: go 1.24 release date]]"},
		{Text: "Go 1.24 was released in February 2025."},
	}})
	s := &stubSearcher{results: []search.Result{{Title: "Go 1.24", Snippet: "released", Link: "https://go.dev"}}}
	tr := conversation.New("sys")
	a := New(backend, tr, nil, s, Options{})
	out, err := a.Reply(context.Background(), "when was go 1.24 released?")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !out.Searched || s.calls.Load() != 1 || backend.Calls() != 2 {
		t.Fatalf("expected exactly one search follow-up, searched=%v searches=%d calls=%d", out.Searched, s.calls.Load(), backend.Calls())
	}
	turns := tr.Turns()
	if len(turns) != 5 || !strings.HasPrefix(turns[3].Content, "Here are the top web search results for 'go 1.24 release date':\n") {
		t.Fatalf("unexpected transcript %+v", turns)
	}
	if backend.Request(1).Tools != nil {
		t.Fatalf("follow-up must not offer tools")
	}
}

func TestReplyErrorKeepsUserTurn(t *testing.T) {
	backend := mock.NewLLMAdapter(mock.LLMConfig{Err: errors.New("connection refused")})
	tr := conversation.New("sys")
	a := New(backend, tr, nil, nil, Options{})
	_, err := a.Reply(context.Background(), "hello")
	if !errorsx.HasReason(err, errorsx.ReasonLLMGenerate) {
		t.Fatalf("expected llm_generate reason, got %v", err)
	}
	if tr.Len() != 2 {
		t.Fatalf("expected user turn kept, got %d turns", tr.Len())
	}
}

func TestSearchDirective(t *testing.T) {
	if q, ok := SearchDirective("Let me check. [[SEARCH:  weather in Oslo ]]"); !ok || q != "weather in Oslo" {
		t.Fatalf("unexpected %q %v", q, ok)
	}
	if _, ok := SearchDirective("[[SEARCH: ]]"); ok {
		t.Fatalf("empty directive must be ignored")
	}
}

type slowRegistry struct{}

func (slowRegistry) Tools() []llm.Tool { return []llm.Tool{{Name: "slow"}} }

func (slowRegistry) HandleTool(ctx context.Context, name string, args map[string]any) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Second):
		return "late", nil
	}
}

func TestDispatcherTimeout(t *testing.T) {
	d := NewToolDispatcherWithOptions(slowRegistry{}, ToolDispatcherOptions{Timeout: 20 * time.Millisecond})
	res := d.Dispatch(context.Background(), []llm.ToolCall{{ID: "1", Name: "slow"}})
	if res[0].Status != "timeout" || !errors.Is(res[0].Err, ErrToolTimeout) {
		t.Fatalf("expected timeout, got %+v", res[0])
	}
	if !strings.HasPrefix(res[0].Text, "error: ") {
		t.Fatalf("model must be told about the failure, got %q", res[0].Text)
	}
}
