package telegram

import (
	"fmt"

	"aura/pkg/api"
	"aura/pkg/channels"
	"aura/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory implements channels.ChannelFactory for the Telegram platform.
type TelegramFactory struct{}

func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, system *config.SystemConfig) (api.Channel, error) {
	var cfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("invalid telegram config: %w", err)
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	return NewTelegramChannel(cfg, system)
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
