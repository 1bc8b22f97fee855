// Package assistant turns user text into a reply: it keeps the transcript,
// calls the chat backend, runs tool calls and follows search directives.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/harunnryd/aide/pkg/conversation"
	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/llm"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/search"
)

const DefaultSystemPrompt = `You are a helpful AI personal assistant.
Keep responses clear, concise, and friendly.
Answer questions directly without unnecessary details.
Use simple language that's easy to understand.
Always call the calculator tools for arithmetic, the task tools for tasks and get_time for time questions.
Never answer time-sensitive questions from memory.
If you don't know the answer or it's time-sensitive (news, facts, current events),
respond only with: [[SEARCH: your query here]]`

var searchDirective = regexp.MustCompile(`\[\[SEARCH:\s*(.*?)\s*\]\]`)

// SearchDirective returns the query of a [[SEARCH: q]] directive in text.
func SearchDirective(text string) (string, bool) {
	m := searchDirective.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// SearchContext is the message that carries search results into the
// conversation.
func SearchContext(query string, results []search.Result) string {
	return fmt.Sprintf("Here are the top web search results for '%s':\n%s", query, search.Format(results))
}

type Options struct {
	// MaxToolRounds bounds model round trips that only request tools.
	MaxToolRounds   int
	ToolConcurrency int
	ToolTimeout     time.Duration
	Logger          *slog.Logger
	Observer        metrics.Observer
}

type Reply struct {
	Text      string
	ToolCalls int
	Searched  bool
}

type Assistant struct {
	backend    llm.LLMAdapter
	tools      llm.ToolRegistry
	dispatcher *ToolDispatcher
	searcher   search.Searcher
	transcript *conversation.Transcript
	maxRounds  int
	logger     *slog.Logger
	obs        metrics.Observer
}

// New builds an assistant. tools and searcher may be nil.
func New(backend llm.LLMAdapter, transcript *conversation.Transcript, tools llm.ToolRegistry, searcher search.Searcher, opts Options) *Assistant {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 4
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	a := &Assistant{
		backend:    backend,
		tools:      tools,
		searcher:   searcher,
		transcript: transcript,
		maxRounds:  opts.MaxToolRounds,
		logger:     logging.NewComponentLogger(opts.Logger, "assistant"),
		obs:        opts.Observer,
	}
	if tools != nil {
		a.dispatcher = NewToolDispatcherWithOptions(tools, ToolDispatcherOptions{
			Concurrency: opts.ToolConcurrency,
			Timeout:     opts.ToolTimeout,
			Logger:      opts.Logger,
			Observer:    opts.Observer,
		})
	}
	return a
}

func (a *Assistant) Transcript() *conversation.Transcript { return a.transcript }

// Reply records text as a user turn and returns the assistant's answer,
// which is recorded too. On error the user turn stays in the transcript.
func (a *Assistant) Reply(ctx context.Context, text string) (Reply, error) {
	start := time.Now()
	a.transcript.AddUser(text)
	out, err := a.reply(ctx)
	if err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
		a.logger.Warn("reply_failed", "reason_code", string(errorsx.Reason(err)), "error", err.Error())
		metrics.Record(a.obs, metrics.EventReplyFailed, float64(time.Since(start).Milliseconds()), map[string]string{
			"reason": string(errorsx.Reason(err)),
		})
		return Reply{}, err
	}
	a.transcript.AddAssistant(out.Text)
	a.logger.Info("reply",
		"provider", a.backend.Name(),
		"latency_ms", time.Since(start).Milliseconds(),
		"tool_calls", out.ToolCalls,
		"searched", out.Searched,
	)
	metrics.Record(a.obs, metrics.EventReply, float64(time.Since(start).Milliseconds()), map[string]string{"provider": a.backend.Name()})
	return out, nil
}

func (a *Assistant) reply(ctx context.Context) (Reply, error) {
	var out Reply
	messages := a.transcript.Messages()
	var tools []llm.Tool
	if a.tools != nil {
		tools = a.tools.Tools()
	}

	resp, err := a.generate(ctx, messages, tools)
	if err != nil {
		return out, err
	}
	for round := 0; len(resp.ToolCalls) > 0; round++ {
		if round >= a.maxRounds || a.dispatcher == nil {
			a.logger.Warn("tool_rounds_exhausted", "rounds", round)
			tools = nil
		} else {
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
			for _, res := range a.dispatcher.Dispatch(ctx, resp.ToolCalls) {
				messages = append(messages, llm.Message{Role: llm.RoleTool, Content: res.Text, ToolCallID: res.Call.ID})
			}
			out.ToolCalls += len(resp.ToolCalls)
		}
		if resp, err = a.generate(ctx, messages, tools); err != nil {
			return out, err
		}
		if tools == nil {
			break
		}
	}

	if q, ok := SearchDirective(resp.Text); ok && a.searcher != nil {
		results, err := a.searcher.Search(ctx, q)
		if err != nil {
			return out, err
		}
		out.Searched = true
		injected := SearchContext(q, results)
		a.transcript.AddAssistant(resp.Text)
		a.transcript.AddUser(injected)
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: resp.Text},
			llm.Message{Role: llm.RoleUser, Content: injected},
		)
		if resp, err = a.generate(ctx, messages, nil); err != nil {
			return out, err
		}
	}
	out.Text = strings.TrimSpace(resp.Text)
	if out.Text == "" {
		return out, errors.New("empty reply")
	}
	return out, nil
}

func (a *Assistant) generate(ctx context.Context, messages []llm.Message, tools []llm.Tool) (llm.Response, error) {
	return a.backend.Generate(ctx, llm.Context{Messages: messages, Tools: tools})
}
