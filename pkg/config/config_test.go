package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronominer/chronominer/pkg/xerrors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaultsOnTopOfFile(t *testing.T) {
	path := writeConfig(t, "model: gpt-4o\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 4000, cfg.TokensPerChunk)
	assert.Equal(t, 10, cfg.ConcurrencyLimit)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.True(t, cfg.Ledger.Enforce)
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	path := writeConfig(t, "model: claude-3-5-sonnet\ntokens_per_chunk: 8000\nconcurrency_limit: 4\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.TokensPerChunk)
	assert.Equal(t, 4, cfg.ConcurrencyLimit)
}

func TestLoad_MissingModelIsConfigInvalid(t *testing.T) {
	path := writeConfig(t, "tokens_per_chunk: 1000\n")

	_, err := Load(path)
	require.Error(t, err)
	kind, ok := xerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerrors.ConfigInvalid, kind)
}

func TestLoad_UnknownFieldRejectedByStrictMode(t *testing.T) {
	path := writeConfig(t, "model: gpt-4o\nnot_a_real_field: true\n")

	_, err := Load(path)
	require.Error(t, err)
	kind, ok := xerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerrors.ConfigInvalid, kind)
}

func TestLoad_OutOfRangeCertaintyThresholdRejected(t *testing.T) {
	path := writeConfig(t, "model: gpt-4o\nrefine:\n  certainty_threshold: 150\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestForSchema_AppliesOverride(t *testing.T) {
	cfg := Default()
	cfg.Model = "gpt-4o"
	cfg.SchemaOverrides = map[string]SchemaOverride{
		"people": {TokensPerChunk: 1000, Model: "claude-3-5-sonnet"},
	}

	overridden := cfg.ForSchema("people")
	assert.Equal(t, 1000, overridden.TokensPerChunk)
	assert.Equal(t, "claude-3-5-sonnet", overridden.Model)

	unchanged := cfg.ForSchema("events")
	assert.Equal(t, cfg.TokensPerChunk, unchanged.TokensPerChunk)
	assert.Equal(t, "gpt-4o", unchanged.Model)
}
