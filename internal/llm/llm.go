// Package llm talks to the language models driving a conversation. A Provider turns a
// message history plus a tool catalog into either a final answer or a list of tool
// calls.
package llm

import (
	"context"

	json "github.com/goccy/go-json"
)

// Role of a message in a conversation.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolCallID and Name are set on tool messages answering a call.
	ToolCallID string `json:"toolCallId,omitempty"`
	Name       string `json:"name,omitempty"`
	// IsError marks a tool message that reports a failed call.
	IsError bool `json:"isError,omitempty"`
}

// ToolCall is a model's request to run a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Request asks a model for the next step of a conversation.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	// Temperature is left to the model's default when nil.
	Temperature *float64
	MaxTokens   int
}

// Reply is a model's answer. A reply with ToolCalls asks the caller to run them and
// come back with the results.
type Reply struct {
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// Provider produces replies.
type Provider interface {
	Complete(ctx context.Context, req Request) (Reply, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Reply, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}

// KeySource looks up the API key stored for a service.
type KeySource interface {
	GetKey(service string) (string, bool)
}
