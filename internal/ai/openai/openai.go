// Package openai adapts any OpenAI-compatible chat completion endpoint to
// ai.Client. Gemini is reached the same way through Google's compatibility
// endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/sakif/codemind/internal/ai"
)

// GeminiBaseURL is Google's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

type Config struct {
	Provider string // label for logs and metrics, e.g. "gemini"
	APIKey   string
	BaseURL  string // empty means the library default (api.openai.com)
	Model    string
	Timeout  time.Duration
}

type Client struct {
	client   *goopenai.Client
	provider string
	model    string
	hasKey   bool
}

var _ ai.Client = (*Client)(nil)

func New(cfg Config) *Client {
	config := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client:   goopenai.NewClientWithConfig(config),
		provider: cfg.Provider,
		model:    cfg.Model,
		hasKey:   cfg.APIKey != "",
	}
}

func (c *Client) Provider() string { return c.provider }

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.hasKey {
		return "", ai.ErrCredentials
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if isCredentialError(err) {
			return "", fmt.Errorf("%w: %v", ai.ErrCredentials, err)
		}
		return "", fmt.Errorf("%s chat completion: %w", c.provider, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ai.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// isCredentialError recognises a rejected key. OpenAI answers 401; Gemini
// answers 400 with an "API key not valid" message that go-openai cannot
// always decode, so the raw body is checked as well.
func isCredentialError(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return true
		case http.StatusBadRequest:
			return mentionsAPIKey(apiErr.Message)
		}
		return false
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return true
		case http.StatusBadRequest:
			return mentionsAPIKey(string(reqErr.Body))
		}
	}
	return false
}

func mentionsAPIKey(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "api key") || strings.Contains(s, "api_key")
}
