package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
)

// Credentials are the optional third-party API keys. An empty value turns
// the matching integration into a no-op.
type Credentials struct {
	GoogleAPIKey    string `mapstructure:"GOOGLE_API_KEY"`
	XAPIToken       string `mapstructure:"X_API_TOKEN"`
	AnthropicAPIKey string `mapstructure:"ANTHROPIC_API_KEY"`
}

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	BadgerDBPath  string `mapstructure:"BADGERDB_PATH"`
	PostgresDSN   string `mapstructure:"POSTGRES_DSN"`

	Credentials    `mapstructure:",squash"`
	AnthropicModel string `mapstructure:"ANTHROPIC_MODEL"`

	LogLevel    string `mapstructure:"LOG_LEVEL"`
	MetricsAddr string `mapstructure:"METRICS_ADDR"`

	// ScraperBrowser renders pages with a headless browser before scraping.
	ScraperBrowser bool          `mapstructure:"SCRAPER_BROWSER"`
	APITimeout     time.Duration `mapstructure:"API_TIMEOUT"`
	ScrapeTimeout  time.Duration `mapstructure:"SCRAPE_TIMEOUT"`
	AITimeout      time.Duration `mapstructure:"AI_TIMEOUT"`
	AITagWorkers   int           `mapstructure:"AI_TAG_WORKERS"`
}

var defaults = map[string]any{
	"TELEGRAM_BOT_TOKEN": "",
	"STORAGE_DRIVER":     DriverBadger,
	"BADGERDB_PATH":      "./badger_data",
	"POSTGRES_DSN":       "",
	"GOOGLE_API_KEY":     "",
	"X_API_TOKEN":        "",
	"ANTHROPIC_API_KEY":  "",
	"ANTHROPIC_MODEL":    "claude-haiku-4-5-20251001",
	"LOG_LEVEL":          "info",
	"METRICS_ADDR":       "",
	"SCRAPER_BROWSER":    false,
	"API_TIMEOUT":        "10s",
	"SCRAPE_TIMEOUT":     "30s",
	"AI_TIMEOUT":         "60s",
	"AI_TAG_WORKERS":     2,
}

// Load reads config.yaml from dir, if present, and lets environment
// variables override it.
func Load(dir string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Every key needs a default so AutomaticEnv picks it up on Unmarshal.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverBadger:
		if c.BadgerDBPath == "" {
			return errors.New("BADGERDB_PATH is not set")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.APITimeout <= 0 || c.ScrapeTimeout <= 0 || c.AITimeout <= 0 {
		return errors.New("API_TIMEOUT, SCRAPE_TIMEOUT and AI_TIMEOUT must be positive")
	}
	if c.AITagWorkers < 1 {
		return errors.New("AI_TAG_WORKERS must be at least 1")
	}
	return nil
}

// RequireBotToken fails when the Telegram token is missing.
func (c Config) RequireBotToken() error {
	if c.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	return nil
}
