package channels

import (
	"log/slog"

	"aura/pkg/api"
	"aura/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

// CreateFromConfig resolves the factory for every configured channel and
// instantiates it. Unknown types and creation failures are logged and
// skipped so a single broken channel never blocks the rest.
func CreateFromConfig(configs map[string]jsoniter.RawMessage, system *config.SystemConfig) []api.Channel {
	var created []api.Channel

	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// A nil channel without error means the factory declined (e.g. disabled).
		if channel == nil {
			continue
		}

		created = append(created, channel)
		slog.Info("Channel created", "name", name)
	}

	return created
}
