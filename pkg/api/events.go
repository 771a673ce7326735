package api

// EventType identifies a progress event emitted by the agent loop while a
// run is in flight.
type EventType string

const (
	// EventThinking is emitted right before every model call.
	EventThinking EventType = "thinking"
	// EventToolUse is emitted when a tool invocation is about to start.
	EventToolUse EventType = "tool_use"
	// EventFinalStream carries one incremental content fragment of the
	// answer as it streams out of the model.
	EventFinalStream EventType = "final_stream"
	// EventObservation carries the (truncated) result of one tool call.
	EventObservation EventType = "observation"
	// EventFinal carries the complete final answer and terminates the run.
	EventFinal EventType = "final"
)

// Event is one typed progress update flowing from the agent loop to the
// transport layer. Only the fields matching the Type are populated.
type Event struct {
	Type    EventType      `json:"type"`
	Message string         `json:"message,omitempty"` // thinking
	Tool    string         `json:"tool,omitempty"`    // tool_use
	Args    map[string]any `json:"args,omitempty"`    // tool_use
	Content string         `json:"content,omitempty"` // final_stream, final
	Result  string         `json:"result,omitempty"`  // observation
}

// NewThinkingEvent builds a thinking status event.
func NewThinkingEvent(message string) Event {
	return Event{Type: EventThinking, Message: message}
}

// NewToolUseEvent builds a tool invocation event.
func NewToolUseEvent(tool string, args map[string]any) Event {
	return Event{Type: EventToolUse, Tool: tool, Args: args}
}

// NewFinalStreamEvent builds an incremental content event.
func NewFinalStreamEvent(fragment string) Event {
	return Event{Type: EventFinalStream, Content: fragment}
}

// NewObservationEvent builds a tool result event.
func NewObservationEvent(result string) Event {
	return Event{Type: EventObservation, Result: result}
}

// NewFinalEvent builds the terminal answer event.
func NewFinalEvent(content string) Event {
	return Event{Type: EventFinal, Content: content}
}
