package monitor

import "time"

// MonitorMessage is one entry of channel traffic mirrored to a monitor.
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // "USER" or "ASSISTANT"
	ChannelID   string
	Username    string
	Content     string
}

// Monitor observes all traffic flowing through the gateway.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg MonitorMessage)
}
