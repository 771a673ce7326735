package gateway

import (
	"fmt"
	"log"
	"sync"
	"time"

	"aura/pkg/api"
	"aura/pkg/monitor"
)

// GatewayManager owns every registered Channel and routes traffic in
// both directions: incoming messages to the handler, outgoing replies
// and event streams back to the originating channel.
type GatewayManager struct {
	channels      map[string]Channel
	msgHandler    MessageHandler
	monitor       monitor.Monitor
	channelBuffer int
	mu            sync.RWMutex
}

// NewGatewayManager creates a manager with no channels registered.
func NewGatewayManager() *GatewayManager {
	return &GatewayManager{
		channels:      make(map[string]Channel),
		channelBuffer: 100,
	}
}

// SetChannelBuffer sets the internal event buffer size.
func (g *GatewayManager) SetChannelBuffer(size int) {
	if size > 0 {
		g.channelBuffer = size
	}
}

// SetMessageHandler sets the core message processing logic.
func (g *GatewayManager) SetMessageHandler(handler MessageHandler) {
	g.msgHandler = handler
}

// SetMonitor attaches a traffic monitor.
func (g *GatewayManager) SetMonitor(m monitor.Monitor) {
	g.monitor = m
}

// Register adds a Channel.
func (g *GatewayManager) Register(c Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
}

// GetChannel returns a specific channel, typically for proactive sends.
func (g *GatewayManager) GetChannel(id string) (Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.channels[id]
	return c, ok
}

// StartAll starts every registered channel.
func (g *GatewayManager) StartAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		log.Printf("Starting channel: %s", id)
		if err := c.Start(g); err != nil {
			return fmt.Errorf("failed to start channel %s: %w", id, err)
		}
	}
	return nil
}

// StopAll stops every channel.
func (g *GatewayManager) StopAll() {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, c := range g.channels {
		log.Printf("Stopping channel: %s", id)
		if err := c.Stop(); err != nil {
			log.Printf("Error stopping channel %s: %v", id, err)
		}
	}
}

// SendReply delivers a plain message through the session's channel.
func (g *GatewayManager) SendReply(session SessionContext, content string) error {
	log.Printf("[Gateway] -> Reply to %s (%s): %s", session.ChannelID, session.Username, content)

	if g.monitor != nil {
		g.monitor.OnMessage(monitor.MonitorMessage{
			Timestamp:   time.Now(),
			MessageType: "ASSISTANT",
			ChannelID:   session.ChannelID,
			Username:    session.Username,
			Content:     content,
		})
	}

	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}
	return c.Send(session, content)
}

// SendSignal delivers a control signal (such as "thinking") to channels
// that support it; others ignore it silently.
func (g *GatewayManager) SendSignal(session SessionContext, signal string) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	if sc, ok := c.(SignalingChannel); ok {
		log.Printf("[Gateway] -> Signal to %s (%s): %s", session.ChannelID, session.Username, signal)
		return sc.SendSignal(session, signal)
	}

	return nil
}

// StreamEvents forwards an agent progress stream to the session's
// channel, mirroring the final answer to the monitor when it arrives.
func (g *GatewayManager) StreamEvents(session SessionContext, events <-chan api.Event) error {
	c, ok := g.GetChannel(session.ChannelID)
	if !ok {
		return fmt.Errorf("channel %s not found", session.ChannelID)
	}

	wrapped := make(chan api.Event, g.channelBuffer)

	go func() {
		defer close(wrapped)
		var finalContent string
		for ev := range events {
			if ev.Type == api.EventFinal {
				finalContent = ev.Content
			}
			wrapped <- ev
		}
		if finalContent != "" && g.monitor != nil {
			g.monitor.OnMessage(monitor.MonitorMessage{
				Timestamp:   time.Now(),
				MessageType: "ASSISTANT",
				ChannelID:   session.ChannelID,
				Username:    session.Username,
				Content:     finalContent,
			})
		}
	}()

	return c.Stream(session, wrapped)
}

// OnMessage implements ChannelContext, receiving messages from channels.
func (g *GatewayManager) OnMessage(channelID string, msg *UnifiedMessage) {
	log.Printf("[Gateway] <- Received from %s [%s(%s)]: %s",
		channelID, msg.Session.Username, msg.Session.UserID, msg.Content)

	if g.monitor != nil {
		g.monitor.OnMessage(monitor.MonitorMessage{
			Timestamp:   time.Now(),
			MessageType: "USER",
			ChannelID:   channelID,
			Username:    msg.Session.Username,
			Content:     msg.Content,
		})
	}

	if g.msgHandler != nil {
		g.msgHandler(msg)
	} else {
		log.Println("[Gateway] Warning: No message handler set")
	}
}
