package llm

import "context"

// ToolRegistry resolves tool calls requested by the model.
type ToolRegistry interface {
	Tools() []Tool
	HandleTool(ctx context.Context, name string, args map[string]any) (string, error)
}
