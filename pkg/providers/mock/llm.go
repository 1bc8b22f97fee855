package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/aide/pkg/llm"
)

// LLMAdapter replays scripted responses in order and records every request.
// Once the script is exhausted the last response repeats.
type LLMAdapter struct {
	mu        sync.Mutex
	cfg       LLMConfig
	requests  []llm.Context
	responses []llm.Response
}

type LLMConfig struct {
	ResponseText string
	Responses    []llm.Response
	Err          error
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" && len(cfg.Responses) == 0 {
		cfg.ResponseText = "mock response"
	}
	responses := cfg.Responses
	if len(responses) == 0 {
		responses = []llm.Response{{Text: cfg.ResponseText}}
	}
	return &LLMAdapter{cfg: cfg, responses: responses}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := llm.Context{
		Messages: append([]llm.Message(nil), input.Messages...),
		Tools:    input.Tools,
	}
	a.requests = append(a.requests, snapshot)
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	i := len(a.requests) - 1
	if i >= len(a.responses) {
		i = len(a.responses) - 1
	}
	return a.responses[i], nil
}

// Calls returns how many times Generate ran.
func (a *LLMAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// Request returns the i-th recorded context.
func (a *LLMAdapter) Request(i int) llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[i]
}
