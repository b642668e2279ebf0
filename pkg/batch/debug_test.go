package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSubmissionDebug_WritesExpectedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_batch_submission_debug.json")

	require.NoError(t, WriteSubmissionDebug(path, "batch-1", "openai", "gpt-4o", 3, "2026-07-31T00:00:00Z"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var debug SubmissionDebug
	require.NoError(t, json.Unmarshal(data, &debug))

	assert.Equal(t, "batch-1", debug.BatchID)
	assert.Equal(t, "openai", debug.Provider)
	assert.Equal(t, 3, debug.ChunkCount)
	assert.NotEmpty(t, debug.TrackingID)
}

func TestWriteSubmissionDebug_OverwritesPriorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_batch_submission_debug.json")

	require.NoError(t, WriteSubmissionDebug(path, "batch-1", "openai", "gpt-4o", 3, "2026-07-31T00:00:00Z"))
	require.NoError(t, WriteSubmissionDebug(path, "batch-2", "openai", "gpt-4o", 3, "2026-07-31T01:00:00Z"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var debug SubmissionDebug
	require.NoError(t, json.Unmarshal(data, &debug))
	assert.Equal(t, "batch-2", debug.BatchID)
}
