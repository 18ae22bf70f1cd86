/**
 * @description
 * This package provides a completion client for an OpenAI-compatible chat
 * endpoint (OpenRouter by default). The meal plan service talks to it through
 * the Completer interface so tests never reach the network.
 *
 * @dependencies
 * - github.com/tmc/langchaingo/llms/openai: OpenAI-compatible chat client.
 */
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const (
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	DefaultModel       = "mistralai/mistral-7b-instruct:free"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1500
)

// ErrMissingAPIKey is returned by NewClient when no key is configured.
var ErrMissingAPIKey = errors.New("inference api key is not configured")

// Completer turns a single prompt into model text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// generator is the part of llms.Model the client uses.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Config holds the connection settings for the inference endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client is a langchaingo-backed Completer.
type Client struct {
	llm         generator
	temperature float64
	maxTokens   int
}

// NewClient creates a client for the configured endpoint.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating inference client: %w", err)
	}
	return newClient(llm, cfg.Temperature, cfg.MaxTokens), nil
}

func newClient(llm generator, temperature float64, maxTokens int) *Client {
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{llm: llm, temperature: temperature, maxTokens: maxTokens}
}

// Complete sends prompt as a single user message and returns the first choice.
// An empty string is returned when the model produced no content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}
