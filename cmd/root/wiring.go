package root

import (
	"context"
	"fmt"

	"github.com/chronominer/chronominer/pkg/batch"
	"github.com/chronominer/chronominer/pkg/batch/anthropicbatch"
	"github.com/chronominer/chronominer/pkg/batch/openaibatch"
	"github.com/chronominer/chronominer/pkg/config"
	"github.com/chronominer/chronominer/pkg/env"
	"github.com/chronominer/chronominer/pkg/ledger"
	"github.com/chronominer/chronominer/pkg/model"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/paths"
	"github.com/chronominer/chronominer/pkg/schema"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

// app bundles the dependencies every verb needs, built once from the
// loaded config and shared across every file a command processes (spec
// §4.2's ledger "process-wide singleton", §4.5's memoizable capabilities).
type app struct {
	cfg      config.Config
	registry *schema.Registry
	ledger   *ledger.Ledger
	env      env.Provider
}

// newApp loads configPath, scans its schema directory, and opens the
// process-wide token ledger, the same bootstrap order cagent's root
// commands follow: config first (everything else depends on its paths),
// then the collaborators that read from disk.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	registry, err := schema.LoadDir(cfg.SchemaDir)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(paths.LedgerPath(""), cfg.Ledger.DailyLimit, cfg.Ledger.Enforce)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		registry: registry,
		ledger:   l,
		env:      env.NewMultiProvider(env.NewOSProvider()),
	}, nil
}

// providerFor constructs the synchronous C5 adapter for a (possibly
// schema-overridden) config.
func (a *app) providerFor(ctx context.Context, cfg config.Config) (provider.Provider, error) {
	return model.New(ctx, model.Config{
		Model:          cfg.Model,
		ProviderOption: cfg.ProviderOverride,
		APIKeyVar:      keyVarFor(cfg, provider.DetectProvider(cfg.Model, cfg.ProviderOverride)),
		BedrockRegion:  cfg.Credentials.BedrockRegion,
	}, a.env)
}

// batchVendorFor returns the C8 vendor adapter for cfg's model, or a nil
// adapter and empty tag when the model's capability descriptor has
// BatchSupported=false (spec §4.8's "other providers fall back to
// synchronous mode").
func (a *app) batchVendorFor(ctx context.Context, cfg config.Config) (batch.VendorBatch, string, error) {
	vendor := provider.DetectProvider(cfg.Model, cfg.ProviderOverride)
	capability := provider.CapabilitiesFor(cfg.Model, cfg.ProviderOverride, false)
	if !capability.BatchSupported {
		return nil, "", nil
	}

	keyVar := keyVarFor(cfg, vendor)
	key, ok := a.env.Get(ctx, keyVar)
	if !ok {
		return nil, "", xerrors.AuthMissing.New(fmt.Sprintf("environment variable %s is not set", keyVar))
	}

	switch vendor {
	case provider.VendorOpenAI:
		return openaibatch.New(key, ""), string(vendor), nil
	case provider.VendorAnthropic:
		return anthropicbatch.New(key), string(vendor), nil
	default:
		return nil, "", nil
	}
}

// batchVendorByTag rebuilds a C8 vendor adapter from a persisted provider
// tag (SubmissionDebug.Provider) rather than from live model config — used
// by check-batches/cancel-batches/repair-extractions, which rediscover
// outstanding batches from the submission debug artifact on disk and never
// see the schema's current model config (spec §4.8: batch state lives in
// the persisted debug file and journal, not in process memory).
func (a *app) batchVendorByTag(ctx context.Context, cfg config.Config, tag string) (batch.VendorBatch, error) {
	vendor := provider.Vendor(tag)
	keyVar := keyVarFor(cfg, vendor)
	key, ok := a.env.Get(ctx, keyVar)
	if !ok {
		return nil, xerrors.AuthMissing.New(fmt.Sprintf("environment variable %s is not set", keyVar))
	}

	switch vendor {
	case provider.VendorOpenAI:
		return openaibatch.New(key, ""), nil
	case provider.VendorAnthropic:
		return anthropicbatch.New(key), nil
	default:
		return nil, xerrors.SchemaUnsupported.New("provider " + tag + " has no batch adapter")
	}
}

func keyVarFor(cfg config.Config, vendor provider.Vendor) string {
	switch vendor {
	case provider.VendorOpenAI:
		return cfg.Credentials.OpenAIKeyVar
	case provider.VendorAnthropic:
		return cfg.Credentials.AnthropicKeyVar
	case provider.VendorGemini:
		return cfg.Credentials.GoogleKeyVar
	case provider.VendorOpenRouter:
		return cfg.Credentials.OpenRouterKeyVar
	default:
		return ""
	}
}
