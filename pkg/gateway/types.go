package gateway

import (
	"aura/pkg/api"
)

// Re-export transport types from the api package via aliases so channel
// implementations can depend on either package.
type Channel = api.Channel
type SignalingChannel = api.SignalingChannel
type MessageResponder = api.MessageResponder
type ChannelContext = api.ChannelContext
type UnifiedMessage = api.UnifiedMessage
type FileAttachment = api.FileAttachment
type SessionContext = api.SessionContext

type MessageHandler = api.MessageHandler
