package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like channel credentials and LLM provider choices.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the provider group configuration in raw JSON.
	LLM jsoniter.RawMessage `json:"llm"`
	// SystemPrompt is the global persona/instruction string sent to the AI
	// as the initial system message in every conversation. It may contain
	// the {tool_descriptions} placeholder.
	SystemPrompt string `json:"system_prompt"`
	// AllowedChats is an optional allow-list of chat identities that may
	// invoke tools. Empty means every chat is allowed.
	AllowedChats []string `json:"allowed_chats"`
}

// Validate ensures the configuration structure contains all mandatory fields.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are stored in system.json and control the performance,
// reliability, and budget behavior of the agent runtime.
type SystemConfig struct {
	// MaxTurns caps the number of model calls one run may perform before
	// the loop terminates with a synthetic answer.
	MaxTurns int `json:"max_turns"`
	// ObservationLimit is the maximum character count of a single tool
	// observation folded back into history; longer results are cropped.
	ObservationLimit int `json:"observation_limit"`
	// UsageQuota is the cumulative token budget per conversation. Once
	// exceeded, new runs are refused until the counter is reset.
	UsageQuota int `json:"usage_quota"`
	// TurnOverheadTokens is the fixed token cost added to every completed
	// run to account for the system prompt and tool schemas.
	TurnOverheadTokens int `json:"turn_overhead_tokens"`
	// HistoryMaxMessages triggers compaction when the history grows past
	// this many messages.
	HistoryMaxMessages int `json:"history_max_messages"`
	// HistoryMaxTokens triggers compaction when the estimated history
	// token count grows past this budget.
	HistoryMaxTokens int `json:"history_max_tokens"`
	// HistoryKeepRecent is the number of most recent messages kept
	// verbatim when the older prefix is summarized away.
	HistoryKeepRecent int `json:"history_keep_recent"`
	// MaxRetries is the number of times the fallback client will attempt to
	// recover from a transient LLM or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for a single
	// LLM request. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// InternalChannelBuffer defines the size of the internal Go channels
	// used for buffering stream chunks and progress events.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// ThinkingInitDelayMs is the time to wait (in milliseconds) after a
	// user message before showing the "thinking" status in the UI.
	ThinkingInitDelayMs int `json:"thinking_init_delay_ms"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer responses are split into multiple chunks.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// EditIntervalMs is the minimum time between two in-place status
	// message edits while streaming progress to a chat platform.
	EditIntervalMs int `json:"edit_interval_ms"`
	// DownloadTimeoutMs is the timeout (in milliseconds) applied when
	// fetching user-uploaded media from the platform servers.
	DownloadTimeoutMs int `json:"download_timeout_ms"`
	// ModulesDir is the directory holding per-capability manifest files;
	// it is watched for changes to trigger registry reloads.
	ModulesDir string `json:"modules_dir"`
	// WatchDebounceMs is the debounce window of the capability watcher:
	// change bursts inside the window coalesce into one reload.
	WatchDebounceMs int `json:"watch_debounce_ms"`
	// SessionsFile is the path of the persisted conversation snapshot.
	SessionsFile string `json:"sessions_file"`
	// DownloadsDir is the root directory for user-uploaded files.
	DownloadsDir string `json:"downloads_dir"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles the tool calling (agentic) functionality.
	EnableTools bool `json:"enable_tools"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with safe
// default values. It is used as a fallback when system.json is missing or
// corrupt, ensuring the runtime can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxTurns:              15,
		ObservationLimit:      2000,
		UsageQuota:            50000,
		TurnOverheadTokens:    500,
		HistoryMaxMessages:    15,
		HistoryMaxTokens:      4000,
		HistoryKeepRecent:     6,
		MaxRetries:            3,
		RetryDelayMs:          500,
		LLMTimeoutMs:          600000,
		OllamaDefaultURL:      "http://localhost:11434",
		InternalChannelBuffer: 100,
		ThinkingInitDelayMs:   500,
		TelegramMessageLimit:  4000,
		EditIntervalMs:        3000,
		DownloadTimeoutMs:     10000,
		ModulesDir:            "modules",
		WatchDebounceMs:       1000,
		SessionsFile:          "data/sessions.json",
		DownloadsDir:          "downloads",
		LogLevel:              "info",
		EnableTools:           true,
	}
}

// Load reads and parses the JSON configuration files from the current working
// directory. config.json is mandatory; system.json falls back to defaults.
func Load() (*Config, *SystemConfig, error) {
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg // Parse failed, use defaults
	}

	return cfg
}
