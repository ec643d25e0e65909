package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model. Arguments arrive
// as raw JSON; validation happens at the tool registry boundary.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallID,omitempty"`
}

// ToolDef describes one callable function in the wire format the chat API
// expects: a name, a natural-language description shown to the model, and a
// JSON schema for the arguments.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatProvider provides chat completion APIs.
type ChatProvider interface {
	// Chat streams deltas for a plain completion.
	Chat(ctx context.Context, model string, messages []Message, stream bool, temperature float32) (ChatStream, error)
	// ChatTools performs one non-streaming completion with function calling
	// enabled and returns the full assistant message, which may carry tool
	// calls instead of content.
	ChatTools(ctx context.Context, model string, messages []Message, tools []ToolDef, temperature float32) (Message, error)
}

// Embedder provides embedding generation APIs.
type Embedder interface {
	Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// ChatStream allows streaming tokens, or a single final message if non-streaming.
type ChatStream interface {
	Recv() (delta string, done bool, err error)
	Close() error
}
