// Package config handles configuration loading and management for TaskPilot.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration for TaskPilot.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Breakdown BreakdownConfig `mapstructure:"breakdown"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey authenticates provider calls. ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// Model is the model used for breakdown generation.
	Model string `mapstructure:"model"`
	// MaxTokens caps the generation length.
	MaxTokens int `mapstructure:"max_tokens"`
	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// UseAWSBedrock routes calls through Amazon Bedrock instead of the
	// Anthropic API directly.
	UseAWSBedrock bool `mapstructure:"use_aws_bedrock"`
	// AWSRegion selects the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile selects the shared-credentials profile for Bedrock.
	AWSProfile string `mapstructure:"aws_profile"`
}

// BreakdownConfig holds retry and worker settings for the breakdown pipeline.
type BreakdownConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Backoff        time.Duration `mapstructure:"backoff"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path is the SQLite file location. Empty means the XDG default.
	Path string `mapstructure:"path"`
}

// CleanupConfig holds retention settings.
type CleanupConfig struct {
	// Days is how long finished tasks are kept before cleanup purges them.
	Days int `mapstructure:"days"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:          "claude-sonnet-4-20250514",
			MaxTokens:      4096,
			RequestTimeout: 60 * time.Second,
		},
		Breakdown: BreakdownConfig{
			MaxAttempts:    3,
			Backoff:        10 * time.Second,
			AttemptTimeout: 120 * time.Second,
			Workers:        4,
			QueueSize:      64,
		},
		Server: ServerConfig{
			Addr: ":8321",
		},
		Cleanup: CleanupConfig{
			Days: 90,
		},
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// getUserConfigDir returns the XDG config directory for TaskPilot.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskpilot")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskpilot")
	}
	return filepath.Join(home, ".config", "taskpilot")
}

// findProjectConfig searches for .taskpilot.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".taskpilot.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate checks for values that would misbehave at runtime.
func (c *Config) Validate() error {
	if c.Anthropic.MaxTokens <= 0 {
		return fmt.Errorf("anthropic.max_tokens must be positive, got %d", c.Anthropic.MaxTokens)
	}
	if c.Breakdown.MaxAttempts <= 0 {
		return fmt.Errorf("breakdown.max_attempts must be positive, got %d", c.Breakdown.MaxAttempts)
	}
	if c.Breakdown.Backoff < 0 {
		return fmt.Errorf("breakdown.backoff must not be negative, got %s", c.Breakdown.Backoff)
	}
	if c.Cleanup.Days <= 0 {
		return fmt.Errorf("cleanup.days must be positive, got %d", c.Cleanup.Days)
	}
	return nil
}
