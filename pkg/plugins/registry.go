// Package plugins provides the tools the assistant can call.
package plugins

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/harunnryd/aide/pkg/llm"
)

// Handler runs one tool call. The returned text goes back to the model.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a model-facing description with its handler.
type Tool struct {
	llm.Tool
	Handler Handler
}

// Plugin groups related tools.
type Plugin interface {
	Name() string
	Tools() []Tool
}

// Registry implements llm.ToolRegistry over a set of plugins.
type Registry struct {
	mu       sync.RWMutex
	plugins  []string
	tools    []llm.Tool
	handlers map[string]Handler
}

func NewRegistry(list ...Plugin) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, p := range list {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds every tool of p. Duplicate tool names are rejected.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tools := p.Tools()
	for _, t := range tools {
		if _, exists := r.handlers[t.Name]; exists {
			return fmt.Errorf("plugin %s: tool %q already registered", p.Name(), t.Name)
		}
	}
	for _, t := range tools {
		r.handlers[t.Name] = t.Handler
		r.tools = append(r.tools, t.Tool)
	}
	r.plugins = append(r.plugins, p.Name())
	return nil
}

func (r *Registry) Tools() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]llm.Tool(nil), r.tools...)
}

// Plugins returns registered plugin names, sorted.
func (r *Registry) Plugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.plugins...)
	sort.Strings(out)
	return out
}

func (r *Registry) HandleTool(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	h := r.handlers[name]
	r.mu.RUnlock()
	if h == nil {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return h(ctx, args)
}

var _ llm.ToolRegistry = (*Registry)(nil)

func llmTool(name, description string, required []string, props map[string]any) llm.Tool {
	return llm.Tool{
		Name:        name,
		Description: description,
		Schema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}
