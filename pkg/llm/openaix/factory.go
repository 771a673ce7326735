package openaix

import (
	"log/slog"

	"aura/pkg/config"
	"aura/pkg/llm"
)

// Factory builds clients for one OpenAI-compatible endpoint family.
type Factory struct {
	provider       string
	defaultBaseURL string
}

// Create implements ProviderFactory.
func (f *Factory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.LLMClient, error) {
	var clients []llm.LLMClient

	apiKey := ""
	if len(cfg.APIKeys) > 0 {
		apiKey = cfg.APIKeys[0]
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = f.defaultBaseURL
	}

	for _, model := range cfg.Models {
		client, err := NewClient(f.provider, apiKey, model, baseURL, cfg.Options)
		if err != nil {
			slog.Error("Failed to create client", "provider", f.provider, "model", model, "error", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &Factory{provider: "openai"})
	llm.RegisterProvider("groq", &Factory{provider: "groq", defaultBaseURL: "https://api.groq.com/openai/v1"})
	llm.RegisterProvider("deepseek", &Factory{provider: "deepseek", defaultBaseURL: "https://api.deepseek.com"})
}
