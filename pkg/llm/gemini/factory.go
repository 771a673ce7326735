package gemini

import (
	"log/slog"

	"aura/pkg/config"
	"aura/pkg/llm"
)

// Factory handles creation of Gemini clients.
type Factory struct{}

// Create implements ProviderFactory.
// Builds the Cartesian product of models x keys, models first.
func (f *Factory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			client, err := NewClient(key, model)
			if err != nil {
				slog.Error("Failed to create Gemini client", "model", model, "error", err)
				continue
			}
			clients = append(clients, client)
		}
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &Factory{})
}
