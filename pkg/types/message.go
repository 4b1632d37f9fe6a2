// Package types defines the wire-level data model shared by the agent loop,
// the orchestration layer, and the workflow engine: messages, tool calls,
// usage accounting, and the mutable conversation context.
package types

import (
	"encoding/json"
	"time"
)

// Role identifies the producer of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is the model's request to invoke a tool, correlated to its
// eventual Tool result message by CallID.
type ToolCallRequest struct {
	CallID     string          `json:"call_id"`
	ToolName   string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters"`
}

// Message is the sum type flowing through an AgentContext. Only the fields
// relevant to Role are expected to be populated; the others are zero.
type Message struct {
	Role   Role   `json:"role"`
	Source string `json:"source,omitempty"`

	// Text content. For Assistant messages this is the plain-text portion
	// of the response (may be empty if the turn was tool-calls only).
	Text string `json:"text,omitempty"`

	// StructuredContent holds a parsed, schema-validated record when the
	// assistant message carried structured output. Nil otherwise.
	StructuredContent json.RawMessage `json:"structured_content,omitempty"`

	// ToolCalls is populated on Assistant messages that request tool
	// invocations.
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`

	// Tool result fields, populated on Tool messages.
	CallID  string `json:"call_id,omitempty"`
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewSystemMessage builds a System message with the given source.
func NewSystemMessage(source, text string) Message {
	return Message{Role: RoleSystem, Source: source, Text: text, CreatedAt: time.Now()}
}

// NewUserMessage builds a User message with the given source.
func NewUserMessage(source, text string) Message {
	return Message{Role: RoleUser, Source: source, Text: text, CreatedAt: time.Now()}
}

// NewAssistantMessage builds an Assistant message, optionally carrying tool
// calls.
func NewAssistantMessage(source, text string, toolCalls []ToolCallRequest) Message {
	return Message{
		Role:      RoleAssistant,
		Source:    source,
		Text:      text,
		ToolCalls: toolCalls,
		CreatedAt: time.Now(),
	}
}

// NewToolMessage builds a Tool result message correlated by callID.
func NewToolMessage(source, callID string, success bool, text, errMsg string) Message {
	return Message{
		Role:      RoleTool,
		Source:    source,
		CallID:    callID,
		Success:   success,
		Text:      text,
		Error:     errMsg,
		CreatedAt: time.Now(),
	}
}

// HasToolCalls reports whether an Assistant message requested any tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}
