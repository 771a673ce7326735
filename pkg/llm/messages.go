package llm

import (
	"time"

	"aura/pkg/utils"
)

//----------------------------------------------------------------
// Message - unified conversation message
//----------------------------------------------------------------

// Message represents one conversation turn.
type Message struct {
	ID        string `json:"id,omitempty"`
	Role      string `json:"role"` // "user", "assistant", "system", "tool"
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// ToolCalls contains tool invocation requests produced by the model
	// (only valid for role: assistant).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool result back to the call that produced it
	// (only valid for role: tool).
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName records which tool produced this result (role: tool).
	ToolName string `json:"tool_name,omitempty"`
}

// ToolCall represents one fully assembled tool invocation request.
type ToolCall struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the concrete tool name and its argument payload.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

//----------------------------------------------------------------
// ToolCallDelta - streaming fragment of a tool call
//----------------------------------------------------------------

// ToolCallDelta is one incremental fragment of a tool call as it arrives
// on the stream. Fragments sharing an Index belong to the same call; the
// ID, Name and Arguments fields are each reassembled by concatenating the
// fragments in arrival order.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

//----------------------------------------------------------------
// StreamChunk - one increment of a streaming response
//----------------------------------------------------------------

// StreamChunk represents one chunk of a streaming LLM response.
type StreamChunk struct {
	// Content carries the incremental text fragment (only the new part).
	Content string `json:"content,omitempty"`

	// ToolCallDeltas carries incremental tool call fragments.
	ToolCallDeltas []ToolCallDelta `json:"tool_call_deltas,omitempty"`

	// IsFinal marks the last chunk of the stream.
	IsFinal bool `json:"is_final"`

	// FinishReason is populated on the final chunk only.
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage may appear mid-stream but is guaranteed on the final chunk
	// when the provider reports it.
	Usage *LLMUsage `json:"usage,omitempty"`

	// Err carries a provider-side failure as data so the consumer can
	// fold it into the conversation instead of crashing the run.
	Err string `json:"error,omitempty"`

	// RawError carries a genuine transport abort such as context
	// cancellation. Never serialized.
	RawError error `json:"-"`
}

// LLMUsage holds normalized token accounting for one model call.
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	StopReason       string `json:"stop_reason,omitempty"`
}

//----------------------------------------------------------------
// Helper Functions - Message
//----------------------------------------------------------------

// NewTextMessage builds a plain text message with a fresh id.
func NewTextMessage(role, text string) Message {
	return Message{
		ID:        utils.GenerateID(),
		Role:      role,
		Content:   text,
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewUserMessage builds a user message.
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// NewToolMessage builds a tool result message bound to a call id.
func NewToolMessage(callID, toolName, result string) Message {
	m := NewTextMessage(RoleTool, result)
	m.ToolCallID = callID
	m.ToolName = toolName
	return m
}

//----------------------------------------------------------------
// Helper Functions - StreamChunk
//----------------------------------------------------------------

// NewTextChunk builds a content fragment chunk.
func NewTextChunk(text string) StreamChunk {
	return StreamChunk{Content: text}
}

// NewErrorChunk builds an error-as-data chunk.
func NewErrorChunk(msg string) StreamChunk {
	return StreamChunk{Err: msg}
}

// NewFinalChunk builds the terminal chunk with usage accounting.
func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}
