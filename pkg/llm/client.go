package llm

import "context"

// Role of a chat message exchanged with a model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one chat turn.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant turns only
	ToolCallID string     // tool turns only
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON object
}

// ToolDefinition declares a function the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ResponseSchema asks the model for JSON conforming to Schema.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
}

// Request is one chat completion call.
type Request struct {
	Model          Resolution
	Credentials    Credentials
	Messages       []Message
	Tools          []ToolDefinition
	ResponseSchema *ResponseSchema
}

// Response is the model's reply.
type Response struct {
	Message    Message
	TokensUsed int
}

// Models performs chat completions. Implementations wrap upstream failures in ErrProvider.
type Models interface {
	Complete(ctx context.Context, request Request) (*Response, error)
}
