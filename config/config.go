package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bookflow/models"
)

const DefaultConfigPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

type Config struct {
	App         AppConfig          `yaml:"app"`
	Feed        FeedConfig         `yaml:"feed"`
	Instruments models.Instruments `yaml:"instruments"`
	Channels    ChannelsConfig     `yaml:"channels"`
	Dashboard   DashboardConfig    `yaml:"dashboard"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Logging     LoggingConfig      `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	URL         string              `yaml:"url"`
	FeedName    string              `yaml:"feed_name"`
	Instrument  models.InstrumentID `yaml:"instrument"`
	DialTimeout time.Duration       `yaml:"dial_timeout"`
	Retry       RetryConfig         `yaml:"retry"`
	Coalesce    CoalesceConfig      `yaml:"coalesce"`
}

type RetryConfig struct {
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Jitter            bool          `yaml:"jitter"`
}

type CoalesceConfig struct {
	Interval time.Duration `yaml:"interval"`
	Mode     string        `yaml:"mode"`
}

type ChannelsConfig struct {
	BookBuffer int `yaml:"book_buffer"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Depth   int    `yaml:"depth"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used for any key the file leaves out.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "bookflow", Version: "dev"},
		Feed: FeedConfig{
			URL:         "wss://www.cryptofacilities.com/ws/v1",
			FeedName:    "book_ui_1",
			Instrument:  models.InstrumentXBTUSD,
			DialTimeout: 10 * time.Second,
			Retry: RetryConfig{
				BaseDelay:         250 * time.Millisecond,
				MaxDelay:          30 * time.Second,
				BackoffMultiplier: 2,
			},
			Coalesce: CoalesceConfig{
				Interval: 16 * time.Millisecond,
				Mode:     "merge",
			},
		},
		Instruments: models.DefaultInstruments(),
		Channels:    ChannelsConfig{BookBuffer: 64},
		Dashboard:   DashboardConfig{Enabled: true, Address: "127.0.0.1:8080", Depth: 15},
		Metrics:     MetricsConfig{Enabled: true},
		Logging:     LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FEED_URL")); v != "" {
		cfg.Feed.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("FEED_INSTRUMENT")); v != "" {
		cfg.Feed.Instrument = models.InstrumentID(v)
	}
	if v := strings.TrimSpace(os.Getenv("DASHBOARD_ADDRESS")); v != "" {
		cfg.Dashboard.Address = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	u, err := url.Parse(cfg.Feed.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("feed.url must be a ws:// or wss:// URL, got %q", cfg.Feed.URL)
	}
	if cfg.Feed.FeedName == "" {
		return fmt.Errorf("feed.feed_name is required")
	}
	if cfg.Feed.DialTimeout <= 0 {
		return fmt.Errorf("feed.dial_timeout must be greater than 0")
	}

	retry := cfg.Feed.Retry
	if retry.BaseDelay <= 0 {
		return fmt.Errorf("feed.retry.base_delay must be greater than 0")
	}
	if retry.MaxDelay < retry.BaseDelay {
		return fmt.Errorf("feed.retry.max_delay must not be less than base_delay")
	}
	if retry.BackoffMultiplier < 1 {
		return fmt.Errorf("feed.retry.backoff_multiplier must be at least 1")
	}

	if cfg.Feed.Coalesce.Interval <= 0 {
		return fmt.Errorf("feed.coalesce.interval must be greater than 0")
	}
	switch cfg.Feed.Coalesce.Mode {
	case "merge", "drop":
	default:
		return fmt.Errorf("feed.coalesce.mode must be merge or drop, got %q", cfg.Feed.Coalesce.Mode)
	}

	if err := cfg.Instruments.Validate(); err != nil {
		return fmt.Errorf("instruments: %w", err)
	}
	if _, err := cfg.Instruments.Lookup(cfg.Feed.Instrument); err != nil {
		return fmt.Errorf("feed.instrument: %w", err)
	}

	if cfg.Channels.BookBuffer <= 0 {
		return fmt.Errorf("channels.book_buffer must be greater than 0")
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.Address == "" {
		return fmt.Errorf("dashboard.address is required when the dashboard is enabled")
	}

	return nil
}
