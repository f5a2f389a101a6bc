// Package config provides configuration types and loading for miniclaw.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Provider, Tools, Channels, Timeline, Trace.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Model    ModelConfig    `json:"model"`
	Provider ProviderConfig `json:"provider"`
	Tools    ToolsConfig    `json:"tools"`
	Channels ChannelsConfig `json:"channels"`
	Timeline TimelineConfig `json:"timeline"`
	Trace    TraceConfig    `json:"trace"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	Workspace string `json:"workspace" envconfig:"WORKSPACE"`
	Sessions  string `json:"sessions" envconfig:"SESSIONS"`
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Name          string  `json:"name" envconfig:"NAME"`
	MaxTokens     int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature   float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxIterations int     `json:"maxIterations" envconfig:"MAX_ITERATIONS"`
}

// ---------------------------------------------------------------------------
// Provider – completion endpoint
// ---------------------------------------------------------------------------

// ProviderConfig describes how to reach the completion endpoint. BaseURL
// selects an alternate OpenAI-compatible endpoint; when set an APIKey is
// mandatory.
type ProviderConfig struct {
	APIKey    string        `json:"apiKey,omitempty" envconfig:"API_KEY"`
	BaseURL   string        `json:"baseUrl,omitempty" envconfig:"BASE_URL"`
	UserAgent string        `json:"userAgent,omitempty" envconfig:"USER_AGENT"`
	Timeout   time.Duration `json:"timeout" envconfig:"TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Tools – local tool execution
// ---------------------------------------------------------------------------

// ToolsConfig configures the tool executor.
type ToolsConfig struct {
	ShellTimeout    time.Duration `json:"shellTimeout" envconfig:"SHELL_TIMEOUT"`
	AllowPathEscape bool          `json:"allowPathEscape" envconfig:"ALLOW_PATH_ESCAPE"`
	MaxOutputChars  int           `json:"maxOutputChars" envconfig:"MAX_OUTPUT_CHARS"`
}

// ---------------------------------------------------------------------------
// Channels – messaging integrations
// ---------------------------------------------------------------------------

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram" ignored:"true"`
	Slack    SlackConfig    `json:"slack" ignored:"true"`
	WhatsApp WhatsAppConfig `json:"whatsapp" ignored:"true"`
	// ChunkPause is the delay between parts of a split reply.
	ChunkPause time.Duration `json:"chunkPause" envconfig:"CHUNK_PAUSE"`
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	Token     string   `json:"token" envconfig:"TOKEN"`
	AllowFrom []string `json:"allowFrom" envconfig:"ALLOW_FROM"`
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	BotToken  string   `json:"botToken" envconfig:"BOT_TOKEN"`
	AppToken  string   `json:"appToken" envconfig:"APP_TOKEN"`
	AllowFrom []string `json:"allowFrom" envconfig:"ALLOW_FROM"`
}

// WhatsAppConfig configures the WhatsApp channel.
type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	StorePath string   `json:"storePath" envconfig:"STORE_PATH"`
	QRPath    string   `json:"qrPath" envconfig:"QR_PATH"`
	AllowFrom []string `json:"allowFrom" envconfig:"ALLOW_FROM"`
}

// ---------------------------------------------------------------------------
// Timeline & trace – turn audit
// ---------------------------------------------------------------------------

// TimelineConfig configures the SQLite turn log.
type TimelineConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	DBPath  string `json:"dbPath" envconfig:"DB_PATH"`
}

// TraceConfig configures export of turn summaries to Kafka.
type TraceConfig struct {
	Enabled bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers []string `json:"brokers" envconfig:"BROKERS"`
	Topic   string   `json:"topic" envconfig:"TOPIC"`
	// SecurityProtocol is PLAINTEXT, SSL, SASL_PLAINTEXT or SASL_SSL.
	SecurityProtocol string `json:"securityProtocol,omitempty" envconfig:"SECURITY_PROTOCOL"`
	SASLMechanism    string `json:"saslMechanism,omitempty" envconfig:"SASL_MECHANISM"`
	SASLUsername     string `json:"saslUsername,omitempty" envconfig:"SASL_USERNAME"`
	SASLPassword     string `json:"saslPassword,omitempty" envconfig:"SASL_PASSWORD"`
	CAFile           string `json:"caFile,omitempty" envconfig:"CA_FILE"`
	CertFile         string `json:"certFile,omitempty" envconfig:"CERT_FILE"`
	KeyFile          string `json:"keyFile,omitempty" envconfig:"KEY_FILE"`
}

// DefaultConfig returns a new Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Workspace: "~/.miniclaw/workspace",
			Sessions:  "~/.miniclaw/sessions",
		},
		Model: ModelConfig{
			Name:          "gpt-4o-mini",
			MaxTokens:     4096,
			Temperature:   0.7,
			MaxIterations: 10,
		},
		Provider: ProviderConfig{
			Timeout: 120 * time.Second,
		},
		Tools: ToolsConfig{
			ShellTimeout:   30 * time.Second,
			MaxOutputChars: 100_000,
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				StorePath: "~/.miniclaw/whatsapp.db",
				QRPath:    "~/.miniclaw/whatsapp-qr.png",
			},
			ChunkPause: 500 * time.Millisecond,
		},
		Timeline: TimelineConfig{
			Enabled: true,
			DBPath:  "~/.miniclaw/timeline.db",
		},
		Trace: TraceConfig{
			Topic: "miniclaw.turns",
		},
	}
}
