package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronominer/chronominer/pkg/env"
)

func TestNew_DispatchesByDetectedVendor(t *testing.T) {
	envProvider := env.NewKeyValueProvider(map[string]string{
		"OPENAI_API_KEY":    "sk-test",
		"ANTHROPIC_API_KEY": "ak-test",
		"GOOGLE_API_KEY":    "gk-test",
	})

	p, err := New(context.Background(), Config{Model: "gpt-4o"}, envProvider)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", p.ID())

	p, err = New(context.Background(), Config{Model: "claude-sonnet-4-5"}, envProvider)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", p.ID())

	p, err = New(context.Background(), Config{Model: "gemini-2.5-pro"}, envProvider)
	require.NoError(t, err)
	assert.Equal(t, "gemini/gemini-2.5-pro", p.ID())
}

func TestNew_MissingAPIKeyIsAuthMissing(t *testing.T) {
	_, err := New(context.Background(), Config{Model: "gpt-4o"}, env.NewKeyValueProvider(nil))
	require.Error(t, err)
}
