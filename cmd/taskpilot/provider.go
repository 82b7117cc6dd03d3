package main

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/taskpilot/taskpilot/internal/config"
	"github.com/taskpilot/taskpilot/internal/provider"
)

// newGenerator builds the provider client from configuration. A missing
// API key is not fatal here; it surfaces when a breakdown is attempted.
func newGenerator(cfg *config.Config) *provider.Client {
	apiKey, _ := config.GetAPIKey(cfg)
	return provider.NewClient(provider.ClientConfig{
		Model:          anthropic.Model(cfg.Anthropic.Model),
		MaxTokens:      int64(cfg.Anthropic.MaxTokens),
		APIKey:         apiKey,
		RequestTimeout: cfg.Anthropic.RequestTimeout,
		UseAWSBedrock:  cfg.Anthropic.UseAWSBedrock,
		AWSRegion:      cfg.Anthropic.AWSRegion,
		AWSProfile:     cfg.Anthropic.AWSProfile,
	})
}
