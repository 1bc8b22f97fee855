// Package openai talks to any OpenAI-compatible chat-completions endpoint.
// The default target is a local Ollama server.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/harunnryd/aide/pkg/llm"
	"github.com/harunnryd/aide/pkg/resilience"
)

const (
	DefaultBaseURL = "http://localhost:11434/v1"
	DefaultModel   = "qwen2.5:7b"
)

type Config struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.APIKey) == "" {
		c.APIKey = "not-needed"
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	return c
}

type Adapter struct {
	cfg    Config
	client *goopenai.Client
}

func NewAdapter(cfg Config) *Adapter {
	cfg = cfg.withDefaults()
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Adapter{cfg: cfg, client: goopenai.NewClientWithConfig(clientCfg)}
}

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) Model() string { return a.cfg.Model }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	msgs, err := toProviderMessages(input.Messages)
	if err != nil {
		return llm.Response{}, errorsx.Wrap(err, errorsx.ReasonToolCall)
	}
	req := goopenai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Messages:    msgs,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}
	if len(input.Tools) > 0 {
		req.Tools = toProviderTools(input.Tools)
		req.ToolChoice = "auto"
	}
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return llm.Response{}, mapError(err)
	}
	return fromProviderResponse(resp)
}

func toProviderMessages(in []llm.Message) ([]goopenai.ChatCompletionMessage, error) {
	out := make([]goopenai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		msg := goopenai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return nil, fmt.Errorf("openai: tool %s arguments: %w", tc.Name, err)
			}
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, msg)
	}
	return out, nil
}

func toProviderTools(tools []llm.Tool) []goopenai.Tool {
	out := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return out
}

func fromProviderResponse(resp goopenai.ChatCompletionResponse) (llm.Response, error) {
	if len(resp.Choices) == 0 {
		return llm.Response{}, errors.New("openai: response has no choices")
	}
	first := resp.Choices[0]
	out := llm.Response{
		Text:         strings.TrimSpace(first.Message.Content),
		FinishReason: string(first.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range first.Message.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return llm.Response{}, fmt.Errorf("openai: tool %s arguments: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "openai", Message: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "openai", Message: "rate limited"}
	}
	return fmt.Errorf("openai: chat completion: %w", err)
}
