package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool describes one callable function offered to the model. Schema is a
// JSON-schema object for the arguments.
type Tool struct {
	Name        string
	Description string
	Schema      any
}

// Message is one entry of the chat context.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

type Context struct {
	Messages []Message
	Tools    []Tool
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
	ToolCalls    []ToolCall
}

// LLMAdapter is a chat-completion backend. Generate returns the full reply;
// callers never see partial text.
type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}
