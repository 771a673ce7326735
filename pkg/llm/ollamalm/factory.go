package ollamalm

import (
	"log"

	"aura/pkg/config"
	"aura/pkg/llm"
)

// Factory handles creation of Ollama clients.
type Factory struct{}

// Create implements ProviderFactory.
func (f *Factory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	for _, model := range cfg.Models {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = sys.OllamaDefaultURL
		}
		client, err := NewClient(model, baseURL, cfg.Options)
		if err != nil {
			log.Printf("Failed to create Ollama client for model %s: %v", model, err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("ollama", &Factory{})
}
