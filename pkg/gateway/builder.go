package gateway

import (
	"fmt"

	"aura/pkg/api"
	"aura/pkg/config"
	"aura/pkg/monitor"
)

// GatewayBuilder provides a fluent builder pattern interface for
// constructing and initializing a GatewayManager with its dependencies.
//
// All components (channels, handler, monitor) are pre-built and injected
// as instances; the Builder assembles and starts them.
type GatewayBuilder struct {
	gw           *GatewayManager
	monitor      monitor.Monitor
	systemConfig *config.SystemConfig
	handler      api.MessageProcessor
	channels     []api.Channel
}

// NewGatewayBuilder creates a fresh builder with an allocated manager.
func NewGatewayBuilder() *GatewayBuilder {
	return &GatewayBuilder{
		gw: NewGatewayManager(),
	}
}

// WithMonitor injects a monitoring implementation. The monitor is
// started automatically during Build().
func (b *GatewayBuilder) WithMonitor(m monitor.Monitor) *GatewayBuilder {
	b.monitor = m
	return b
}

// WithSystemConfig provides engine-level technical parameters.
func (b *GatewayBuilder) WithSystemConfig(cfg *config.SystemConfig) *GatewayBuilder {
	b.systemConfig = cfg
	return b
}

// WithChannel adds pre-built channel instances to the gateway.
func (b *GatewayBuilder) WithChannel(channels ...api.Channel) *GatewayBuilder {
	b.channels = append(b.channels, channels...)
	return b
}

// WithHandler injects the message handler. If the handler implements
// api.ResponderAware the gateway is wired in as its responder.
func (b *GatewayBuilder) WithHandler(h api.MessageProcessor) *GatewayBuilder {
	b.handler = h
	return b
}

// Build finalizes the configuration, registers all channels and starts
// everything. Returns the operational manager or an error.
func (b *GatewayBuilder) Build() (*GatewayManager, error) {
	if b.systemConfig != nil {
		b.gw.SetChannelBuffer(b.systemConfig.InternalChannelBuffer)
	}

	if b.monitor != nil {
		b.gw.SetMonitor(b.monitor)
		if err := b.monitor.Start(); err != nil {
			return nil, fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	for _, c := range b.channels {
		b.gw.Register(c)
	}

	if b.handler != nil {
		if setter, ok := b.handler.(api.ResponderAware); ok {
			setter.SetResponder(b.gw)
		}
		b.gw.SetMessageHandler(b.handler.OnMessage)
	}

	if err := b.gw.StartAll(); err != nil {
		return nil, fmt.Errorf("failed to start channels: %w", err)
	}

	return b.gw, nil
}
