// Package config loads chronominer's YAML configuration file, following
// cagent's pkg/config load pattern (goccy/go-yaml, strict unmarshal, fail
// fast on malformed input) trimmed to a single current schema — this is a
// new tool with no upgrade chain to carry (SPEC_FULL §1.3).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/chronominer/chronominer/pkg/xerrors"
)

// RetryConfig holds C6's backoff tunables (spec §4.6).
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	WaitMin   time.Duration `yaml:"wait_min"`
	WaitMax   time.Duration `yaml:"wait_max"`
	JitterMax time.Duration `yaml:"jitter_max"`
}

// RefineConfig holds C4's certainty/expansion tunables (spec §4.4).
// CertaintyThreshold is an integer percentage (0-100), matching the
// refine package's probe schema, not a 0-1 fraction.
type RefineConfig struct {
	Window                 int `yaml:"window"`
	CertaintyThreshold     int `yaml:"certainty_threshold"`
	VerificationMultiplier int `yaml:"verification_multiplier"`
	MaxContextExpansions   int `yaml:"max_context_expansion_attempts"`
	MaxLowCertaintyRetries int `yaml:"max_low_certainty_retries"`
}

// LedgerConfig holds C2's daily-budget tunables (spec §4.2).
type LedgerConfig struct {
	DailyLimit int64 `yaml:"daily_limit"`
	Enforce    bool  `yaml:"enforce"`
}

// SchemaOverride lets one named schema override the process-wide defaults
// (spec §4.10's per-schema context bundle, SPEC_FULL §1.3).
type SchemaOverride struct {
	TokensPerChunk    int    `yaml:"tokens_per_chunk,omitempty"`
	Model             string `yaml:"model,omitempty"`
	ConcurrencyLimit  int    `yaml:"concurrency_limit,omitempty"`
	RequestsPerMinute int    `yaml:"requests_per_minute,omitempty"`
}

// ProviderCredentials names the environment variable that supplies each
// provider's API key, in resolution order (spec §6's "exactly one must be
// valid for the chosen model's provider").
type ProviderCredentials struct {
	OpenAIKeyVar     string `yaml:"openai_api_key_var,omitempty"`
	AnthropicKeyVar  string `yaml:"anthropic_api_key_var,omitempty"`
	GoogleKeyVar     string `yaml:"google_api_key_var,omitempty"`
	OpenRouterKeyVar string `yaml:"openrouter_api_key_var,omitempty"`
	BedrockRegion    string `yaml:"bedrock_region,omitempty"`
}

// Config is chronominer's top-level configuration document.
type Config struct {
	Model             string                    `yaml:"model"`
	ProviderOverride  string                    `yaml:"provider,omitempty"`
	SchemaDir         string                    `yaml:"schema_dir"`
	OutputDir         string                    `yaml:"output_dir"`
	TokensPerChunk    int                       `yaml:"tokens_per_chunk"`
	ConcurrencyLimit  int                       `yaml:"concurrency_limit"`
	RequestsPerMinute int                       `yaml:"requests_per_minute,omitempty"`
	NoWait            bool                      `yaml:"no_wait,omitempty"`
	RetainJournal     bool                      `yaml:"retain_temporary_jsonl,omitempty"`
	Retry             RetryConfig               `yaml:"retry"`
	Refine            RefineConfig              `yaml:"refine"`
	Ledger            LedgerConfig              `yaml:"ledger"`
	Credentials       ProviderCredentials       `yaml:"credentials"`
	SchemaOverrides   map[string]SchemaOverride `yaml:"schema_overrides,omitempty"`
}

// Default returns a Config populated with this engine's defaults, matching
// the "default e.g. 10" / "default M=3" / "default 3" figures spec.md
// names inline for C4 and C6.
func Default() Config {
	return Config{
		SchemaDir:        "schemas",
		OutputDir:        "output",
		TokensPerChunk:   4000,
		ConcurrencyLimit: 10,
		Retry: RetryConfig{
			Attempts:  5,
			WaitMin:   time.Second,
			WaitMax:   30 * time.Second,
			JitterMax: 2 * time.Second,
		},
		Refine: RefineConfig{
			Window:                 300,
			CertaintyThreshold:     70,
			VerificationMultiplier: 3,
			MaxContextExpansions:   3,
			MaxLowCertaintyRetries: 3,
		},
		Ledger: LedgerConfig{DailyLimit: 2_000_000, Enforce: true},
		Credentials: ProviderCredentials{
			OpenAIKeyVar:     "OPENAI_API_KEY",
			AnthropicKeyVar:  "ANTHROPIC_API_KEY",
			GoogleKeyVar:     "GOOGLE_API_KEY",
			OpenRouterKeyVar: "OPENROUTER_API_KEY",
		},
	}
}

// Load reads and strictly parses path over Default(), failing fast with
// xerrors.ConfigInvalid on any unknown field or malformed value (cagent's
// yaml.Strict() load discipline, SPEC_FULL §1.3).
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, xerrors.ConfigInvalid.Wrap(fmt.Errorf("reading config %s: %w", path, err))
	}

	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return Config{}, xerrors.ConfigInvalid.Wrap(fmt.Errorf("parsing config %s: %w", path, err))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks invariants Load cannot express through YAML shape alone.
func (c Config) Validate() error {
	if c.Model == "" {
		return xerrors.ConfigInvalid.New("model is required")
	}
	if c.TokensPerChunk <= 0 {
		return xerrors.ConfigInvalid.New("tokens_per_chunk must be positive")
	}
	if c.ConcurrencyLimit <= 0 {
		return xerrors.ConfigInvalid.New("concurrency_limit must be positive")
	}
	if c.Ledger.DailyLimit < 0 {
		return xerrors.ConfigInvalid.New("ledger.daily_limit must not be negative")
	}
	if c.Refine.CertaintyThreshold < 0 || c.Refine.CertaintyThreshold > 100 {
		return xerrors.ConfigInvalid.New("refine.certainty_threshold must be in [0,100]")
	}
	return nil
}

// ForSchema applies schema's overrides, if any, on top of c. The returned
// Config is a copy; c itself is never mutated.
func (c Config) ForSchema(schemaName string) Config {
	override, ok := c.SchemaOverrides[schemaName]
	if !ok {
		return c
	}

	out := c
	if override.TokensPerChunk > 0 {
		out.TokensPerChunk = override.TokensPerChunk
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.ConcurrencyLimit > 0 {
		out.ConcurrencyLimit = override.ConcurrencyLimit
	}
	if override.RequestsPerMinute > 0 {
		out.RequestsPerMinute = override.RequestsPerMinute
	}
	return out
}
