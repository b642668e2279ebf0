package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronominer/chronominer/pkg/xerrors"
)

func writeSchemaFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644))
}

func TestLoadDir_RegistersEachJSONFileByStem(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "people", `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)
	writeSchemaFile(t, dir, "events", `{"type":"object","properties":{"title":{"type":"string"}}}`)

	reg, err := LoadDir(dir)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"events", "people"}, reg.Names())

	d, ok := reg.Get("people")
	require.True(t, ok)
	assert.Equal(t, "people", d.Name)
	assert.NotNil(t, d.Raw)
}

func TestLoadDir_IgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "people", `{"type":"object"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a schema"), 0o644))

	reg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"people"}, reg.Names())
}

func TestLoadDir_MalformedSchemaIsConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "broken", `{not valid json`)

	_, err := LoadDir(dir)
	require.Error(t, err)
	kind, ok := xerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerrors.ConfigInvalid, kind)
}

func TestGet_UnknownNameNotOK(t *testing.T) {
	dir := t.TempDir()
	reg, err := LoadDir(dir)
	require.NoError(t, err)

	_, ok := reg.Get("nope")
	assert.False(t, ok)
}

func TestLoadDir_MissingDirectoryIsConfigInvalid(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	kind, ok := xerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerrors.ConfigInvalid, kind)
}
