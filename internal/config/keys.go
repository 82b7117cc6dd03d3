package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when neither the environment nor the config
// file carries an Anthropic API key.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// keyPrefix is the prefix every Anthropic API key starts with.
const keyPrefix = "sk-ant-"

// KeySource says where an API key came from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKey resolves the Anthropic API key. The ANTHROPIC_API_KEY
// environment variable wins over the config file; config values may hold
// ${VAR} references, which are expanded here.
func GetAPIKey(cfg *Config) (string, error) {
	key, _ := resolveKey(cfg)
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// GetAPIKeySource reports which location GetAPIKey would use.
func GetAPIKeySource(cfg *Config) KeySource {
	_, source := resolveKey(cfg)
	return source
}

// resolveKey is the shared lookup order behind GetAPIKey and
// GetAPIKeySource.
func resolveKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, KeySourceEnv
	}
	if cfg != nil && cfg.Anthropic.APIKey != "" {
		key := os.ExpandEnv(cfg.Anthropic.APIKey)
		// An unresolved ${VAR} reference is not a usable key.
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, KeySourceConfig
		}
	}
	return "", KeySourceNone
}

// ValidateAPIKey checks the key's shape without calling the API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}
	if !strings.HasPrefix(key, keyPrefix) {
		return fmt.Errorf("invalid API key format: expected %q prefix", keyPrefix)
	}
	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey renders a key for display: the prefix and the last four
// characters, nothing else. Safe to log.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:len(keyPrefix)] + "..." + key[len(key)-4:]
}
