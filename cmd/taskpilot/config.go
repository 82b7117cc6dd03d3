package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify TaskPilot configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/taskpilot/config.yaml
Project-specific overrides can be placed in .taskpilot.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values. The API key is shown
// masked, with where it was resolved from.
func displayAllConfig(cfg *config.Config) {
	key, _ := config.GetAPIKey(cfg)
	fmt.Printf("anthropic.api_key: %s (source: %s)\n",
		config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.max_tokens: %d\n", cfg.Anthropic.MaxTokens)
	fmt.Printf("anthropic.request_timeout: %s\n", cfg.Anthropic.RequestTimeout)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("breakdown.max_attempts: %d\n", cfg.Breakdown.MaxAttempts)
	fmt.Printf("breakdown.backoff: %s\n", cfg.Breakdown.Backoff)
	fmt.Printf("breakdown.attempt_timeout: %s\n", cfg.Breakdown.AttemptTimeout)
	fmt.Printf("breakdown.workers: %d\n", cfg.Breakdown.Workers)
	fmt.Printf("breakdown.queue_size: %d\n", cfg.Breakdown.QueueSize)
	fmt.Printf("server.addr: %s\n", cfg.Server.Addr)
	fmt.Printf("database.path: %s\n", cfg.Database.Path)
	fmt.Printf("cleanup.days: %d\n", cfg.Cleanup.Days)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	if key == "anthropic.api_key" {
		value = config.MaskAPIKey(value)
	}
	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		k, _ := config.GetAPIKey(cfg)
		return config.MaskAPIKey(k), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.max_tokens":
		return strconv.Itoa(cfg.Anthropic.MaxTokens), nil
	case "anthropic.request_timeout":
		return cfg.Anthropic.RequestTimeout.String(), nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "breakdown.max_attempts":
		return strconv.Itoa(cfg.Breakdown.MaxAttempts), nil
	case "breakdown.backoff":
		return cfg.Breakdown.Backoff.String(), nil
	case "breakdown.attempt_timeout":
		return cfg.Breakdown.AttemptTimeout.String(), nil
	case "breakdown.workers":
		return strconv.Itoa(cfg.Breakdown.Workers), nil
	case "breakdown.queue_size":
		return strconv.Itoa(cfg.Breakdown.QueueSize), nil
	case "server.addr":
		return cfg.Server.Addr, nil
	case "database.path":
		return cfg.Database.Path, nil
	case "cleanup.days":
		return strconv.Itoa(cfg.Cleanup.Days), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.max_tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_tokens: %w", err)
		}
		cfg.Anthropic.MaxTokens = n
	case "anthropic.request_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for request_timeout: %w", err)
		}
		cfg.Anthropic.RequestTimeout = d
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "breakdown.max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_attempts: %w", err)
		}
		cfg.Breakdown.MaxAttempts = n
	case "breakdown.backoff":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for backoff: %w", err)
		}
		cfg.Breakdown.Backoff = d
	case "breakdown.attempt_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for attempt_timeout: %w", err)
		}
		cfg.Breakdown.AttemptTimeout = d
	case "breakdown.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for workers: %w", err)
		}
		cfg.Breakdown.Workers = n
	case "breakdown.queue_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for queue_size: %w", err)
		}
		cfg.Breakdown.QueueSize = n
	case "server.addr":
		cfg.Server.Addr = value
	case "database.path":
		cfg.Database.Path = value
	case "cleanup.days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for cleanup.days: %w", err)
		}
		cfg.Cleanup.Days = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
