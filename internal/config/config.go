// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	APIBaseURL         string        `env:"STOREPANEL_API_BASE_URL,required"`
	ListenAddr         string        `env:"STOREPANEL_LISTEN_ADDR"         envDefault:"127.0.0.1:8080"`
	DBPath             string        `env:"STOREPANEL_DB_PATH"             envDefault:"storepanel.db"`
	SecretKeyHex       string        `env:"STOREPANEL_SECRET_KEY"`
	RequestTimeout     time.Duration `env:"STOREPANEL_REQUEST_TIMEOUT"     envDefault:"15s"`
	RevalidateInterval time.Duration `env:"STOREPANEL_REVALIDATE_INTERVAL" envDefault:"5m"`
	LogLevel           string        `env:"STOREPANEL_LOG_LEVEL"           envDefault:"info"`
	LogFormat          string        `env:"STOREPANEL_LOG_FORMAT"          envDefault:"text"`

	secretKey []byte
}

// SecretKey returns the decoded 32-byte STOREPANEL_SECRET_KEY, or nil when unset.
func (c *Config) SecretKey() []byte {
	return c.secretKey
}

// HasSecretKey reports whether credential persistence is available.
func (c *Config) HasSecretKey() bool {
	return len(c.secretKey) == 32
}

// SlogLevel maps LogLevel onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from environment variables and returns a validated Config.
// STOREPANEL_API_BASE_URL is required. STOREPANEL_SECRET_KEY is optional; without it
// the app starts but sessions cannot be persisted and login reports the missing key.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validateBaseURL(cfg.APIBaseURL); err != nil {
		return nil, err
	}

	if cfg.SecretKeyHex != "" {
		key, err := hex.DecodeString(strings.TrimSpace(cfg.SecretKeyHex))
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("STOREPANEL_SECRET_KEY must be 64 hex characters (32 bytes)")
		}
		cfg.secretKey = key
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("STOREPANEL_REQUEST_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.RevalidateInterval < 0 {
		return nil, fmt.Errorf("STOREPANEL_REVALIDATE_INTERVAL must not be negative, got %s", cfg.RevalidateInterval)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("STOREPANEL_LOG_LEVEL has invalid value %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("STOREPANEL_LOG_FORMAT has invalid value %q", cfg.LogFormat)
	}

	return &cfg, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("STOREPANEL_API_BASE_URL is not a valid URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("STOREPANEL_API_BASE_URL must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}
