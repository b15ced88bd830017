package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultGeminiModel     = "gemini-2.5-pro"
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultLineAPIBaseURL  = "https://api.line.me"
	DefaultLineDataBaseURL = "https://api-data.line.me"
	DefaultNotionBaseURL   = "https://api.notion.com"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	Line     LineConfig     `toml:"line"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Notion   NotionConfig   `toml:"notion"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Pool     PoolConfig     `toml:"pool"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// TelegramConfig holds Telegram Bot API credentials.
type TelegramConfig struct {
	BotToken string `toml:"bot_token" validate:"required"`
}

// LineConfig holds LINE Messaging API credentials. ChannelSecret signs
// inbound webhooks; AccessToken authorizes outbound calls.
type LineConfig struct {
	ChannelSecret string `toml:"channel_secret" validate:"required"`
	AccessToken   string `toml:"access_token" validate:"required"`
	APIBaseURL    string `toml:"api_base_url"`
	DataBaseURL   string `toml:"data_base_url"`
}

// GeminiConfig holds the AI vision service credentials. FallbackAPIKey is
// optional and only used when the primary key runs out of quota.
type GeminiConfig struct {
	APIKey         string `toml:"api_key" validate:"required"`
	FallbackAPIKey string `toml:"fallback_api_key"`
	Model          string `toml:"model"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type NotionConfig struct {
	APIKey         string `toml:"api_key" validate:"required"`
	DatabaseID     string `toml:"database_id" validate:"required"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type PipelineConfig struct {
	Workers            int `toml:"workers"`
	QueueSize          int `toml:"queue_size"`
	RunDeadlineSeconds int `toml:"run_deadline_seconds"`
	DedupWindowSeconds int `toml:"dedup_window_seconds"`
	FetchTimeoutSecs   int `toml:"fetch_timeout_seconds"`
	NotifyTimeoutSecs  int `toml:"notify_timeout_seconds"`
}

type PoolConfig struct {
	FetchSlots         int `toml:"fetch_slots"`
	ExtractSlots       int `toml:"extract_slots"`
	StoreSlots         int `toml:"store_slots"`
	AcquireWaitSeconds int `toml:"acquire_wait_seconds"`
}

// Default returns the built-in configuration. Credentials are left empty
// and must come from the config file or the environment.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Line: LineConfig{
			APIBaseURL:  DefaultLineAPIBaseURL,
			DataBaseURL: DefaultLineDataBaseURL,
		},
		Gemini: GeminiConfig{
			Model:          DefaultGeminiModel,
			BaseURL:        DefaultGeminiBaseURL,
			TimeoutSeconds: 30,
		},
		Notion: NotionConfig{
			BaseURL:        DefaultNotionBaseURL,
			TimeoutSeconds: 15,
		},
		Pipeline: PipelineConfig{
			Workers:            4,
			QueueSize:          64,
			RunDeadlineSeconds: 90,
			DedupWindowSeconds: 600,
			FetchTimeoutSecs:   20,
			NotifyTimeoutSecs:  10,
		},
		Pool: PoolConfig{
			FetchSlots:         8,
			ExtractSlots:       4,
			StoreSlots:         4,
			AcquireWaitSeconds: 5,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets deployment environments inject credentials without
// a config file. Environment values win over file values.
func applyEnvOverrides(cfg *Config) {
	setFromEnv(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setFromEnv(&cfg.Line.ChannelSecret, "LINE_CHANNEL_SECRET")
	setFromEnv(&cfg.Line.AccessToken, "LINE_CHANNEL_ACCESS_TOKEN")
	setFromEnv(&cfg.Gemini.APIKey, "GOOGLE_API_KEY")
	setFromEnv(&cfg.Gemini.FallbackAPIKey, "GOOGLE_API_KEY_FALLBACK")
	setFromEnv(&cfg.Notion.APIKey, "NOTION_API_KEY")
	setFromEnv(&cfg.Notion.DatabaseID, "NOTION_DATABASE_ID")
}

func setFromEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}
