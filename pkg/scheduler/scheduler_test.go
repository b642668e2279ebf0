package scheduler

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronominer/chronominer/pkg/chunk"
	"github.com/chronominer/chronominer/pkg/journal"
	"github.com/chronominer/chronominer/pkg/ledger"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

type scriptedProvider struct {
	invokes  atomic.Int64
	fail     map[int]error // chunk index (by call order) -> error to return once
	failOnce map[int]bool
}

func (p *scriptedProvider) ID() string                       { return "fake/test" }
func (p *scriptedProvider) Capabilities() provider.Capability { return provider.Capability{} }

func (p *scriptedProvider) Invoke(_ context.Context, _ provider.Request) (*provider.Response, error) {
	n := p.invokes.Add(1)
	if err, ok := p.fail[int(n)]; ok {
		return nil, err
	}
	return &provider.Response{Object: map[string]any{"ok": true}, InputTokens: 10, OutputTokens: 5}, nil
}

func newTestJournal(t *testing.T) *journal.Journal {
	path := filepath.Join(t.TempDir(), "j.jsonl")
	j, err := journal.Open(path, journal.Header{SourcePath: "a.txt", ChunksExpected: 2}, time.Now)
	require.NoError(t, err)
	return j
}

func newTestLedger(t *testing.T, limit int64) *ledger.Ledger {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l, err := ledger.New(path, limit, true)
	require.NoError(t, err)
	return l
}

func TestRun_AllSucceed(t *testing.T) {
	p := &scriptedProvider{}
	j := newTestJournal(t)
	l := newTestLedger(t, 1_000_000)

	reqs := []Request{
		{Chunk: chunk.Chunk{Index: 1}, Prompt: "p1", EstimatedTokens: 10},
		{Chunk: chunk.Chunk{Index: 2}, Prompt: "p2", EstimatedTokens: 10},
	}

	cfg := DefaultConfig()
	require.NoError(t, Run(context.Background(), cfg, p, l, j, reqs))
	require.NoError(t, j.Close())

	view, err := journal.Read(j.Path())
	require.NoError(t, err)
	assert.Len(t, view.ByChunk, 2)
	assert.Equal(t, journal.KindResponse, view.ByChunk[1].Kind)
	assert.Equal(t, journal.KindResponse, view.ByChunk[2].Kind)
}

func TestRun_PermanentErrorIsJournaledWithoutFailingRun(t *testing.T) {
	p := &scriptedProvider{fail: map[int]error{1: xerrors.Permanent.New("bad request")}}
	j := newTestJournal(t)
	l := newTestLedger(t, 1_000_000)

	reqs := []Request{
		{Chunk: chunk.Chunk{Index: 1}, Prompt: "p1", EstimatedTokens: 10},
	}
	cfg := DefaultConfig()
	cfg.ConcurrencyLimit = 1

	require.NoError(t, Run(context.Background(), cfg, p, l, j, reqs))
	require.NoError(t, j.Close())

	view, err := journal.Read(j.Path())
	require.NoError(t, err)
	assert.Equal(t, journal.KindError, view.ByChunk[1].Kind)
}

func TestRun_TransientErrorRetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{fail: map[int]error{1: xerrors.Transient.New("503")}}
	j := newTestJournal(t)
	l := newTestLedger(t, 1_000_000)

	reqs := []Request{{Chunk: chunk.Chunk{Index: 1}, Prompt: "p1", EstimatedTokens: 10}}
	cfg := DefaultConfig()
	cfg.WaitMin = time.Millisecond
	cfg.WaitMax = 2 * time.Millisecond
	cfg.JitterMax = time.Millisecond

	require.NoError(t, Run(context.Background(), cfg, p, l, j, reqs))
	require.NoError(t, j.Close())

	view, err := journal.Read(j.Path())
	require.NoError(t, err)
	assert.Equal(t, journal.KindResponse, view.ByChunk[1].Kind)
	assert.Equal(t, int64(2), p.invokes.Load())
}

func TestRun_NoWaitAbortsOnTokenLimit(t *testing.T) {
	p := &scriptedProvider{}
	j := newTestJournal(t)
	l := newTestLedger(t, 5) // far below any request's estimate

	reqs := []Request{{Chunk: chunk.Chunk{Index: 1}, Prompt: "p1", EstimatedTokens: 1000}}
	cfg := DefaultConfig()
	cfg.NoWait = true

	runErr := Run(context.Background(), cfg, p, l, j, reqs)
	require.Error(t, runErr)
	assert.True(t, xerrors.Is(runErr, xerrors.TokenLimitReached))
	require.NoError(t, j.Close())

	view, err := journal.Read(j.Path())
	require.NoError(t, err)
	assert.Equal(t, journal.KindError, view.ByChunk[1].Kind)
	assert.Contains(t, view.ByChunk[1].Error, "token budget")
}
