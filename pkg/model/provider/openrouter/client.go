// Package openrouter implements the catch-all adapter for spec §4.5's
// "<vendor>/<model> shape → openrouter" detect_provider rule. OpenRouter
// speaks the OpenAI Chat Completions wire format, so this reuses the openai
// package's client with OpenRouter's base URL, the same way cagent's
// provider.New treats a custom base_url + OpenAI-shaped API as a distinct
// routing decision rather than a distinct wire protocol.
package openrouter

import (
	"context"

	"github.com/chronominer/chronominer/pkg/env"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/model/provider/openai"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

type Client struct {
	*openai.Client
	model string
}

func NewClient(ctx context.Context, model string, envProvider env.Provider, apiKeyVar, baseURL string) (*Client, error) {
	if apiKeyVar == "" {
		apiKeyVar = "OPENROUTER_API_KEY"
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	inner, err := openai.NewClient(ctx, model, envProvider, apiKeyVar, baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{Client: inner, model: model}, nil
}

func (c *Client) ID() string { return "openrouter/" + c.model }

func (c *Client) Capabilities() provider.Capability {
	return provider.CapabilitiesFor(c.model, "openrouter", false)
}
