package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
)

// Transports selectable with the transport key.
const (
	TransportCloud  = "cloud"
	TransportLinked = "linked"
)

// Config represents the global ~/.waconsole/config.toml.
type Config struct {
	DefaultSession     string  `toml:"default_session"`
	Transport          string  `toml:"transport"`
	GraphBaseURL       string  `toml:"graph_base_url,omitempty"`
	GraphAPIVersion    string  `toml:"graph_api_version,omitempty"`
	WebhookAddr        string  `toml:"webhook_addr,omitempty"`
	WebhookVerifyToken string  `toml:"webhook_verify_token,omitempty"`
	WebhookAppSecret   string  `toml:"webhook_app_secret,omitempty"`
	SyncSchedule       string  `toml:"sync_schedule,omitempty"`
	LogLevel           string  `toml:"log_level,omitempty"`
	SendRatePerSecond  float64 `toml:"send_rate_per_second,omitempty"`
	Locale             string  `toml:"locale,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession:    "main",
		Transport:         TransportCloud,
		WebhookAddr:       "127.0.0.1:8787",
		LogLevel:          "info",
		SendRatePerSecond: 20,
		Locale:            "en",
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads path over the defaults. A missing file yields the
// defaults; a malformed or invalid one is an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated and parseable fields.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportCloud, TransportLinked:
	default:
		return fmt.Errorf("transport %q: must be %q or %q", c.Transport, TransportCloud, TransportLinked)
	}
	if c.SyncSchedule != "" {
		if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
			return fmt.Errorf("sync_schedule %q: %w", c.SyncSchedule, err)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.SendRatePerSecond < 0 {
		return fmt.Errorf("send_rate_per_second must not be negative")
	}
	return nil
}

// Level parses LogLevel; empty means info.
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
