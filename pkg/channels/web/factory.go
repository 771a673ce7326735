package web

import (
	"fmt"

	"aura/pkg/api"
	"aura/pkg/channels"
	"aura/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// WebFactory implements channels.ChannelFactory for the websocket channel.
type WebFactory struct{}

func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error) {
	cfg := WebConfig{Port: 8080}

	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse web config: %w", err)
	}

	return NewWebChannel(cfg, system), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
