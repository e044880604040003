package models

import (
	"context"
	"errors"
	"time"
)

// ErrBackend wraps every failure returned while talking to a chat backend.
var ErrBackend = errors.New("model backend error")

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the backend-neutral conversation entry.
type Message struct {
	Role    Role
	Content string
	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall
	// ToolCallID and Name are set on tool messages.
	ToolCallID string
	Name       string
	// IsError marks a tool message carrying a tool-level failure.
	IsError bool
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	// Arguments is either the serialized JSON string the backend returned or an
	// already decoded value.
	Arguments any
}

// ToolDeclaration is a tool offered to the model (MCP/OpenAI function schema).
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

// ChatBackend sends a conversation to a chat model and returns its reply.
type ChatBackend interface {
	// Name is the backend family, e.g. "ollama".
	Name() string
	Model() string
	BaseURL() string
	Send(ctx context.Context, messages []Message, tools []ToolDeclaration) (*Message, error)
}

// DefaultRequestTimeout bounds a single backend request.
const DefaultRequestTimeout = 10 * time.Minute

// SystemMessage returns a system role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolMessage returns a tool result message for the given call.
func ToolMessage(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}
