package assistant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/llm"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/metrics"
	"github.com/harunnryd/aide/pkg/redact"
)

var ErrToolTimeout = errors.New("tool timeout")

type ToolDispatcherOptions struct {
	Concurrency int
	Timeout     time.Duration
	Logger      *slog.Logger
	Observer    metrics.Observer
}

// ToolResult is the outcome of one tool call. Text is what the model sees,
// including for failures.
type ToolResult struct {
	Call   llm.ToolCall
	Text   string
	Status string
	Err    error
}

// ToolDispatcher runs the tool calls of one model response. Calls run in
// parallel up to Concurrency and results keep the order of the calls. A
// failed call is reported to the model, never retried.
type ToolDispatcher struct {
	registry llm.ToolRegistry
	opts     ToolDispatcherOptions
	logger   *slog.Logger
}

func NewToolDispatcher(registry llm.ToolRegistry) *ToolDispatcher {
	return NewToolDispatcherWithOptions(registry, ToolDispatcherOptions{})
}

func NewToolDispatcherWithOptions(registry llm.ToolRegistry, opts ToolDispatcherOptions) *ToolDispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &ToolDispatcher{
		registry: registry,
		opts:     opts,
		logger:   logging.NewComponentLogger(opts.Logger, "tools"),
	}
}

func (d *ToolDispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	out := make([]ToolResult, len(calls))
	sem := make(chan struct{}, d.opts.Concurrency)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = d.exec(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return out
}

func (d *ToolDispatcher) exec(ctx context.Context, call llm.ToolCall) ToolResult {
	start := time.Now()
	res := ToolResult{Call: call, Status: "ok"}
	text, err := d.callWithTimeout(ctx, call)
	if err != nil {
		res.Status = "error"
		if errors.Is(err, ErrToolTimeout) {
			res.Status = "timeout"
		}
		res.Err = errorsx.Wrap(err, errorsx.ReasonToolCall)
		text = "error: " + err.Error()
		d.logger.Warn("tool_call_failed",
			"tool_name", call.Name,
			"tool_call_id", call.ID,
			"status", res.Status,
			"reason_code", string(errorsx.ReasonToolCall),
			"error", err.Error(),
		)
	} else {
		d.logger.Info("tool_call",
			"tool_name", call.Name,
			"tool_call_id", call.ID,
			"latency_ms", time.Since(start).Milliseconds(),
			"result", redact.Text(text),
		)
	}
	res.Text = text
	metrics.Record(d.opts.Observer, metrics.EventToolCall, float64(time.Since(start).Milliseconds()), map[string]string{
		"tool_name": call.Name,
		"status":    res.Status,
	})
	return res
}

func (d *ToolDispatcher) callWithTimeout(ctx context.Context, call llm.ToolCall) (string, error) {
	if d.registry == nil {
		return "", errors.New("missing registry")
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := d.registry.HandleTool(ctx, call.Name, call.Arguments)
		ch <- result{text: text, err: err}
	}()
	select {
	case out := <-ch:
		return out.text, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrToolTimeout
		}
		return "", ctx.Err()
	}
}
