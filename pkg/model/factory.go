// Package model wires the concrete vendor adapters (pkg/model/provider/*)
// behind C5's Provider interface, the dispatch step cagent's provider.New
// performs after an explicit override or its cfg.Type switch.
package model

import (
	"context"
	"fmt"

	"github.com/chronominer/chronominer/pkg/env"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/model/provider/anthropic"
	"github.com/chronominer/chronominer/pkg/model/provider/bedrock"
	"github.com/chronominer/chronominer/pkg/model/provider/gemini"
	"github.com/chronominer/chronominer/pkg/model/provider/openai"
	"github.com/chronominer/chronominer/pkg/model/provider/openrouter"
)

// Config names the per-call-site knobs needed to construct a Provider,
// mirroring the fields cagent's config.ModelConfig carries for the same
// purpose (provider override, base URL, credential env var name).
type Config struct {
	Model          string
	ProviderOption string // explicit override, takes precedence per spec §4.5
	APIKeyVar      string // env var name; empty uses the vendor default
	BaseURL        string
	BedrockRegion  string
}

// New constructs the concrete vendor adapter for cfg, dispatching on
// provider.DetectProvider the same way cagent's provider.New switches on
// cfg.Type after applying an explicit override first.
func New(ctx context.Context, cfg Config, envProvider env.Provider) (provider.Provider, error) {
	vendor := provider.DetectProvider(cfg.Model, cfg.ProviderOption)

	switch vendor {
	case provider.VendorOpenAI:
		return openai.NewClient(ctx, cfg.Model, envProvider, cfg.APIKeyVar, cfg.BaseURL)
	case provider.VendorAnthropic:
		return anthropic.NewClient(ctx, cfg.Model, envProvider, cfg.APIKeyVar)
	case provider.VendorGemini:
		return gemini.NewClient(ctx, cfg.Model, envProvider, cfg.APIKeyVar)
	case provider.VendorBedrock:
		return bedrock.NewClient(ctx, cfg.Model, cfg.BedrockRegion)
	case provider.VendorOpenRouter:
		return openrouter.NewClient(ctx, cfg.Model, envProvider, cfg.APIKeyVar, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown provider vendor: %s", vendor)
	}
}
