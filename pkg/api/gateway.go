package api

// Channel defines the standardized lifecycle interface for communication platforms.
type Channel interface {
	ID() string
	Start(ctx ChannelContext) error
	Stop() error
	Send(session SessionContext, message string) error
	Stream(session SessionContext, events <-chan Event) error
}

// SignalingChannel is an optional extension of the Channel interface for
// platforms that support control signals (e.g., typing indicators).
type SignalingChannel interface {
	Channel
	// SendSignal transmits a control signal (e.g., "thinking") to the
	// target session to change UI state.
	SendSignal(session SessionContext, signal string) error
}

// ChannelContext provides the interface for a Channel implementation to
// communicate back with the Gateway core.
type ChannelContext interface {
	MessageResponder
	OnMessage(channelID string, msg *UnifiedMessage)
}

// MessageResponder defines the capabilities for sending responses back to a channel.
type MessageResponder interface {
	SendReply(session SessionContext, content string) error
	StreamEvents(session SessionContext, events <-chan Event) error
	SendSignal(session SessionContext, signal string) error
}

// UnifiedMessage defines the standardized internal data structure for all
// incoming messages, regardless of originating platform.
type UnifiedMessage struct {
	Session SessionContext   // Contextual information about the source (User, Chat)
	Content string           // Standardized text content of the message
	Files   []FileAttachment // File attachments already saved to local disk
	Raw     any              // Optional storage for the original platform payload
}

// SessionContext encapsulates identity and routing information for a specific
// conversation unit on a specific communication channel.
type SessionContext struct {
	ChannelID string // Identifier of the channel that originated the session (e.g., "telegram")
	UserID    string // Platform-specific unique identifier for the user
	ChatID    string // Platform-specific identifier for the chat or group
	Username  string // Display name of the user as provided by the platform
}

// SessionID returns the conversation identity used to key histories, usage
// counters and active runs.
func (s SessionContext) SessionID() string {
	return s.ChannelID + "_" + s.ChatID
}

// FileAttachment represents a single file uploaded by a user and saved to disk.
type FileAttachment struct {
	Filename string // Original name of the uploaded file
	MimeType string // MIME type descriptor (e.g., "image/jpeg")
	Path     string // Local path the file was saved to
}

// MessageHandler defines the function signature for processing incoming messages.
type MessageHandler func(*UnifiedMessage)

// OnMessage allows MessageHandler to satisfy the MessageProcessor interface.
func (h MessageHandler) OnMessage(msg *UnifiedMessage) {
	h(msg)
}

// MessageProcessor defines the interface for components that can process
// incoming messages.
type MessageProcessor interface {
	OnMessage(msg *UnifiedMessage)
}

// ResponderAware defines an interface for components that require a
// MessageResponder to be injected.
type ResponderAware interface {
	SetResponder(responder MessageResponder)
}
