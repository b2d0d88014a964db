// Package ai is the boundary to the external text-generation provider.
//
// Every provider adapter (openai, ollama) implements Client. The codegen
// package only ever sees this interface, so tests can replace the network
// with a fake and the server can pick a provider once at startup.
//
// ERROR CONTRACT:
// Adapters must wrap credential problems (no key configured, key rejected by
// the provider) in ErrCredentials. Callers treat that case as "run in demo
// mode" and serve fallback output. Every other failure is an ordinary error.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrCredentials means the provider cannot be used until a valid API key
	// is configured.
	ErrCredentials = errors.New("ai: missing or invalid provider credentials")

	// ErrEmptyResponse is returned when the provider answered without text.
	ErrEmptyResponse = errors.New("ai: provider returned an empty response")
)

// Client sends one prompt and returns the model's raw text.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Provider names the backend for logs and metrics, e.g. "gemini".
	Provider() string
}

// Disabled is the Client used when no API key is configured. Every call
// fails with ErrCredentials, which puts the gateway in demo mode.
type Disabled struct {
	Name string
}

func (d Disabled) Complete(context.Context, string) (string, error) {
	return "", ErrCredentials
}

func (d Disabled) Provider() string {
	if d.Name == "" {
		return "disabled"
	}
	return d.Name
}
