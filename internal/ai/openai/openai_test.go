package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codemind/internal/ai"
)

// fakeProvider serves /v1/chat/completions with a fixed status and body and
// records the last request it saw.
func fakeProvider(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &last)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func newTestClient(url, key string) *Client {
	return New(Config{
		Provider: "openai",
		APIKey:   key,
		BaseURL:  url + "/v1/",
		Model:    "test-model",
		Timeout:  5 * time.Second,
	})
}

func TestCompleteSuccess(t *testing.T) {
	srv, last := fakeProvider(t, http.StatusOK, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "test-model",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "print(1)"}, "finish_reason": "stop"}]
	}`)

	out, err := newTestClient(srv.URL, "test-key").Complete(context.Background(), "write python")
	require.NoError(t, err)
	assert.Equal(t, "print(1)", out)

	assert.Equal(t, "test-model", (*last)["model"])
	msgs, ok := (*last)["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "write python", msgs[0].(map[string]any)["content"])
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		credentials bool
	}{
		{
			name:        "unauthorized",
			status:      http.StatusUnauthorized,
			body:        `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			credentials: true,
		},
		{
			name:        "gemini bad key",
			status:      http.StatusBadRequest,
			body:        `{"error": {"message": "API key not valid. Please pass a valid API key.", "type": "invalid_request_error"}}`,
			credentials: true,
		},
		{
			name:   "bad request unrelated to key",
			status: http.StatusBadRequest,
			body:   `{"error": {"message": "model not found", "type": "invalid_request_error"}}`,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error": {"message": "overloaded", "type": "server_error"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeProvider(t, tt.status, tt.body)
			_, err := newTestClient(srv.URL, "test-key").Complete(context.Background(), "p")
			require.Error(t, err)
			assert.Equal(t, tt.credentials, errors.Is(err, ai.ErrCredentials), "err: %v", err)
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv, _ := fakeProvider(t, http.StatusOK, `{"id": "x", "object": "chat.completion", "choices": []}`)
	_, err := newTestClient(srv.URL, "test-key").Complete(context.Background(), "p")
	assert.True(t, errors.Is(err, ai.ErrEmptyResponse), "err: %v", err)
}

func TestCompleteWithoutKey(t *testing.T) {
	c := New(Config{Provider: "gemini", BaseURL: GeminiBaseURL, Model: "gemini-2.5-flash"})
	_, err := c.Complete(context.Background(), "p")
	assert.True(t, errors.Is(err, ai.ErrCredentials))
	assert.Equal(t, "gemini", c.Provider())
}
