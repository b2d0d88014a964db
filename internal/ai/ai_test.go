package ai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/codemind/internal/ai"
)

func TestDisabled(t *testing.T) {
	var c ai.Client = ai.Disabled{Name: "gemini"}

	out, err := c.Complete(context.Background(), "anything")
	assert.Empty(t, out)
	assert.True(t, errors.Is(err, ai.ErrCredentials))
	assert.Equal(t, "gemini", c.Provider())

	assert.Equal(t, "disabled", ai.Disabled{}.Provider())
}
