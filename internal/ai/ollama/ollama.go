// Package ollama adapts a local Ollama server to ai.Client. Ollama needs no
// API key, so this adapter never reports ai.ErrCredentials.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/sakif/codemind/internal/ai"
)

// DefaultBaseURL is where `ollama serve` listens by default.
const DefaultBaseURL = "http://localhost:11434"

type Client struct {
	client *api.Client
	model  string
}

var _ ai.Client = (*Client)(nil)

// New builds a client for baseURL. A trailing /v1 (the OpenAI-compatible
// path some users paste) is stripped because the native API lives at the root.
func New(baseURL, model string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: parsing base URL %q: %w", baseURL, err)
	}

	return &Client{
		client: api.NewClient(parsed, &http.Client{Timeout: timeout}),
		model:  model,
	}, nil
}

func (c *Client) Provider() string { return "ollama" }

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
	}

	var content strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat (model %s): %w", c.model, err)
	}

	if strings.TrimSpace(content.String()) == "" {
		return "", ai.ErrEmptyResponse
	}
	return content.String(), nil
}
