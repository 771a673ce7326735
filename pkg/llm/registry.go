package llm

import (
	"aura/pkg/config"
)

// ProviderGroupConfig defines the configuration of one model group.
// It is the standard input of every provider factory.
type ProviderGroupConfig struct {
	Type    string         `json:"type"`
	APIKeys []string       `json:"api_keys,omitempty"`
	Models  []string       `json:"models"`
	BaseURL string         `json:"base_url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ProviderFactory creates LLM clients from a group configuration.
type ProviderFactory interface {
	// Create builds one atomic client per key/model combination.
	Create(groupConfig ProviderGroupConfig, systemConfig *config.SystemConfig) ([]LLMClient, error)
}

// Global provider registry.
var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider registers a provider factory under a type name.
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory looks up a provider factory by type name.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
