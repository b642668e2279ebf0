package batch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronominer/chronominer/pkg/journal"
)

type fakeVendor struct {
	submitID string
	statuses []Status // popped in order on each Status call, last value repeats
	results  []ChunkResult
}

func (f *fakeVendor) Submit(_ context.Context, _ string, _ []ChunkRequest) (string, error) {
	return f.submitID, nil
}

func (f *fakeVendor) Status(_ context.Context, _ string) (Status, error) {
	if len(f.statuses) == 0 {
		return StatusInProgress, nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

func (f *fakeVendor) Download(_ context.Context, _ string) ([]ChunkResult, error) {
	return f.results, nil
}

func (f *fakeVendor) Cancel(_ context.Context, _ string) error { return nil }

func newTestJournal(t *testing.T, chunksExpected int) *journal.Journal {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j, err := journal.Open(path, journal.Header{SourcePath: "a.txt", ChunksExpected: chunksExpected}, time.Now)
	require.NoError(t, err)
	return j
}

func TestSubmit_WritesTrackingRecord(t *testing.T) {
	j := newTestJournal(t, 2)
	v := &fakeVendor{submitID: "batch-123"}
	m := New(v, "gpt-4o", j)

	reqs := []ChunkRequest{
		{ChunkIndex: 1, CustomID: CustomIDFor("a", 1), Prompt: "p1"},
		{ChunkIndex: 2, CustomID: CustomIDFor("a", 2), Prompt: "p2"},
	}

	id, err := m.Submit(context.Background(), reqs)
	require.NoError(t, err)
	assert.Equal(t, "batch-123", id)
	require.NoError(t, j.Close())

	view, err := journal.Read(j.Path())
	require.NoError(t, err)
	require.Len(t, view.BatchEvents, 2)
	assert.Equal(t, "submitted", view.BatchEvents[0].Status)
}

func TestSubmit_EmptyRequestsRejected(t *testing.T) {
	j := newTestJournal(t, 1)
	m := New(&fakeVendor{}, "gpt-4o", j)

	_, err := m.Submit(context.Background(), nil)
	assert.Error(t, err)
}

func TestDownload_AppendsResponseAndErrorRecords(t *testing.T) {
	j := newTestJournal(t, 2)
	v := &fakeVendor{
		submitID: "batch-1",
		results: []ChunkResult{
			{CustomID: CustomIDFor("a", 1), Object: map[string]any{"ok": true}},
			{CustomID: CustomIDFor("a", 2), Error: "schema rejected"},
		},
	}
	m := New(v, "gpt-4o", j)

	results, err := m.Download(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NoError(t, j.Close())

	view, err := journal.Read(j.Path())
	require.NoError(t, err)
	assert.Equal(t, journal.KindResponse, view.ByChunk[1].Kind)
	assert.Equal(t, journal.KindError, view.ByChunk[2].Kind)
	assert.Equal(t, "schema rejected", view.ByChunk[2].Error)
}

func TestRepair_DownloadsCompletedBatchAndReportsOrphans(t *testing.T) {
	j := newTestJournal(t, 3)
	v := &fakeVendor{
		submitID: "batch-1",
		statuses: []Status{StatusCompleted},
		results: []ChunkResult{
			{CustomID: CustomIDFor("a", 1), Object: map[string]any{"ok": true}},
		},
	}
	m := New(v, "gpt-4o", j)

	reqs := []ChunkRequest{{ChunkIndex: 1, CustomID: CustomIDFor("a", 1), Prompt: "p1"}}
	_, err := m.Submit(context.Background(), reqs)
	require.NoError(t, err)

	view, err := journal.Read(j.Path())
	require.NoError(t, err)

	plan, err := Repair(context.Background(), m, view, 3)
	require.NoError(t, err)

	assert.Contains(t, plan.Downloaded, "batch-1")
	assert.ElementsMatch(t, []int{2, 3}, plan.Orphaned)
}

func TestRepair_StillInProgressBatchStaysOpen(t *testing.T) {
	j := newTestJournal(t, 1)
	v := &fakeVendor{submitID: "batch-1", statuses: []Status{StatusInProgress}}
	m := New(v, "gpt-4o", j)

	reqs := []ChunkRequest{{ChunkIndex: 1, CustomID: CustomIDFor("a", 1), Prompt: "p1"}}
	_, err := m.Submit(context.Background(), reqs)
	require.NoError(t, err)

	view, err := journal.Read(j.Path())
	require.NoError(t, err)

	plan, err := Repair(context.Background(), m, view, 1)
	require.NoError(t, err)

	assert.Contains(t, plan.StillOpen, "batch-1")
	assert.Empty(t, plan.Downloaded)
	// chunk 1 is covered by an open batch, not orphaned even without a response yet
	assert.Empty(t, plan.Orphaned)
}

func TestChunkIndexFromCustomID_RoundTrip(t *testing.T) {
	id := CustomIDFor("a", 42)
	idx, ok := ChunkIndexFromCustomID(id)
	require.True(t, ok)
	assert.Equal(t, 42, idx)

	_, ok = ChunkIndexFromCustomID("not-a-chunk-id")
	assert.False(t, ok)
}
