package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronominer/chronominer/pkg/model/provider"
)

func fixedClock(t time.Time) Clock { return func() time.Time { return t } }

func TestOpen_WritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	j1, err := Open(path, Header{SourcePath: "a.txt", Schema: "s1", Model: "gpt-4o", ChunksExpected: 3}, fixedClock(now))
	require.NoError(t, err)
	require.NoError(t, j1.Close())

	j2, err := Open(path, Header{SourcePath: "a.txt", Schema: "s1", Model: "gpt-4o", ChunksExpected: 3}, fixedClock(now))
	require.NoError(t, err)
	require.NoError(t, j2.Close())

	view, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, view.Header)
	assert.Equal(t, "a.txt", view.Header.SourcePath)
}

func TestAppendResponse_AndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j, err := Open(path, Header{SourcePath: "a.txt", ChunksExpected: 2}, fixedClock(time.Now()))
	require.NoError(t, err)

	require.NoError(t, j.AppendResponse(1, &provider.Response{Object: map[string]any{"x": float64(1)}}))
	require.NoError(t, j.AppendError(2, errors.New("boom")))
	require.NoError(t, j.Close())

	view, err := Read(path)
	require.NoError(t, err)
	require.Len(t, view.ByChunk, 2)
	assert.Equal(t, KindResponse, view.ByChunk[1].Kind)
	assert.Equal(t, KindError, view.ByChunk[2].Kind)
	assert.Equal(t, "boom", view.ByChunk[2].Error)
}

func TestRead_LastOccurrenceWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j, err := Open(path, Header{SourcePath: "a.txt", ChunksExpected: 1}, fixedClock(time.Now()))
	require.NoError(t, err)

	require.NoError(t, j.AppendError(1, errors.New("first attempt failed")))
	require.NoError(t, j.AppendResponse(1, &provider.Response{Object: map[string]any{"ok": true}}))
	require.NoError(t, j.Close())

	view, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, KindResponse, view.ByChunk[1].Kind)
}

func TestRead_MissingFileReturnsEmptyView(t *testing.T) {
	view, err := Read(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, view.Header)
	assert.Empty(t, view.ByChunk)
}
