package ollama

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

func TestComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"llama3","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"int main(void) { return 0; }"},"done":true}`+"\n")
	}))
	defer srv.Close()

	// The /v1 suffix must be stripped before talking to the native API.
	c, err := New(srv.URL+"/v1", "llama3", 5*time.Second)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "write c")
	require.NoError(t, err)
	assert.Equal(t, "int main(void) { return 0; }", out)
	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "ollama", c.Provider())
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model 'missing' not found"}`+"\n")
	}))
	defer srv.Close()

	c, err := New(srv.URL, "missing", 5*time.Second)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ai.ErrCredentials), "a local model never needs credentials")
}

func TestCompleteEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"model":"m","message":{"role":"assistant","content":"  "},"done":true}`+"\n")
	}))
	defer srv.Close()

	c, err := New(srv.URL, "m", 5*time.Second)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "p")
	assert.True(t, errors.Is(err, ai.ErrEmptyResponse))
}
