package config

import (
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSystemConfig(t *testing.T) {
	sys := DefaultSystemConfig()
	assert.Equal(t, 15, sys.MaxTurns)
	assert.Equal(t, 2000, sys.ObservationLimit)
	assert.Equal(t, 50000, sys.UsageQuota)
	assert.Equal(t, 6, sys.HistoryKeepRecent)
	assert.Equal(t, "modules", sys.ModulesDir)
	assert.True(t, sys.EnableTools)
}

func TestLoadSystemConfigMissingFileUsesDefaults(t *testing.T) {
	sys := LoadSystemConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, DefaultSystemConfig(), sys)
}

func TestLoadSystemConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_turns": 3, "usage_quota": 100}`), 0644))

	sys := LoadSystemConfig(path)
	assert.Equal(t, 3, sys.MaxTurns)
	assert.Equal(t, 100, sys.UsageQuota)
	// Untouched fields keep their defaults.
	assert.Equal(t, 2000, sys.ObservationLimit)
}

func TestLoadSystemConfigCorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	sys := LoadSystemConfig(path)
	assert.Equal(t, DefaultSystemConfig().MaxTurns, sys.MaxTurns)
}

func TestValidateRequiresLLM(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate())

	cfg.LLM = jsoniter.RawMessage(`[{"type":"ollama"}]`)
	assert.NoError(t, cfg.Validate())
}

func TestConfigParsesChannels(t *testing.T) {
	raw := `{
		"llm": [{"type": "ollama", "models": ["llama3"]}],
		"system_prompt": "You are helpful. {tool_descriptions}",
		"allowed_chats": ["123"],
		"channels": {
			"telegram": {"token": "abc"},
			"web": {"port": 9453}
		}
	}`

	var cfg Config
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(raw), &cfg))
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Channels, 2)
	assert.Contains(t, string(cfg.Channels["telegram"]), "abc")
	assert.Equal(t, []string{"123"}, cfg.AllowedChats)
}
