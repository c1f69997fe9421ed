// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	ServerPort             string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile                string `env:"LOG_FILE"`
	DatabasePath           string `env:"DATABASE_PATH" envDefault:"castvault.db"`
	CacheDir               string `env:"CACHE_DIR" envDefault:"cache"`
	PrefsPath              string `env:"PREFS_PATH" envDefault:"preferences.json"`
	MaxConcurrentDownloads int    `env:"MAX_CONCURRENT_DOWNLOADS" envDefault:"2"`
	WhatsNewCount          int    `env:"WHATS_NEW_COUNT" envDefault:"10"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.LogLevel)
	isValidLevel := false
	for _, level := range validLogLevels {
		if logLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.LogLevel, validLogLevels)
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH cannot be empty")
	}

	if c.CacheDir == "" {
		return fmt.Errorf("CACHE_DIR cannot be empty")
	}

	if c.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("MAX_CONCURRENT_DOWNLOADS must be at least 1, got: %d", c.MaxConcurrentDownloads)
	}

	if c.WhatsNewCount < 1 {
		return fmt.Errorf("WHATS_NEW_COUNT must be at least 1, got: %d", c.WhatsNewCount)
	}

	return nil
}
