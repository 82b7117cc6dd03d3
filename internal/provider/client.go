// Package provider calls the external text-generation service and turns
// its untrusted output into validated subtask drafts. All parsing and
// validation of provider responses lives here.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/taskpilot/taskpilot/pkg/models"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = anthropic.ModelClaudeSonnet4_20250514
	// DefaultMaxTokens bounds the generation size.
	DefaultMaxTokens = 4096
	// DefaultRequestTimeout bounds the single network call.
	DefaultRequestTimeout = 60 * time.Second
)

// Generator is the capability the executor depends on: produce an ordered
// list of subtask drafts for a task. The raw response text is returned
// alongside so callers can persist the payload verbatim.
type Generator interface {
	Generate(ctx context.Context, title, description string, opts models.BreakdownOptions) ([]models.SubtaskDraft, string, error)
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Model is the model to use. Defaults to DefaultModel.
	Model anthropic.Model
	// MaxTokens caps the generation. Defaults to DefaultMaxTokens.
	MaxTokens int64
	// APIKey is the provider credential. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// RequestTimeout bounds the network call. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
	// UseAWSBedrock routes the call through AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// Client generates task breakdowns via the Anthropic Messages API.
type Client struct {
	inner      anthropic.Client
	model      anthropic.Model
	maxTokens  int64
	timeout    time.Duration
	configured bool
}

// NewClient creates a new breakdown client. A missing credential does not
// fail construction; it surfaces as a configuration error on the first
// Generate call, before any network traffic.
func NewClient(cfg ClientConfig) *Client {
	var opts []option.RequestOption
	configured := true

	if cfg.UseAWSBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			log.Printf("[provider] WARNING: no API key configured")
			configured = false
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	return &Client{
		inner:      anthropic.NewClient(opts...),
		model:      model,
		maxTokens:  maxTokens,
		timeout:    timeout,
		configured: configured,
	}
}

// IsConfigured reports whether a credential is available.
func (c *Client) IsConfigured() bool {
	return c.configured
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Generate issues a single bounded Messages call and returns the parsed,
// validated subtask drafts plus the raw response text.
func (c *Client) Generate(ctx context.Context, title, description string, opts models.BreakdownOptions) ([]models.SubtaskDraft, string, error) {
	if !c.configured {
		return nil, "", configurationError("provider API key is not configured")
	}

	prompt := BuildPrompt(title, description, opts)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.inner.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		// Credential never appears in logs; title is enough to correlate.
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			log.Printf("[provider] request failed: status=%d title=%q", apiErr.StatusCode, title)
			return nil, "", upstreamError(apiErr.StatusCode, err)
		}
		log.Printf("[provider] connection error: %v title=%q", err, title)
		return nil, "", transportError(err)
	}

	text, err := firstText(resp)
	if err != nil {
		log.Printf("[provider] bad response shape: %v title=%q", err, title)
		return nil, "", err
	}

	drafts, err := ParseResponse(text)
	if err != nil {
		log.Printf("[provider] response rejected: %v title=%q", err, title)
		return nil, "", err
	}
	return drafts, text, nil
}

// firstText extracts the first content block's text. Only the first
// element is consumed.
func firstText(resp *anthropic.Message) (string, error) {
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			return variant.Text, nil
		}
	}
	return "", parseError(fmt.Sprintf("no text content in response (%d blocks)", len(resp.Content)), nil)
}
