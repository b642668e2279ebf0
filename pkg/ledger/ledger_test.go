package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestReserveCommit_WithinLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)

	l, err := New(path, 1000, true, WithClock(fixedClock(now)))
	require.NoError(t, err)

	res := l.Reserve(500)
	assert.True(t, res.OK)

	require.NoError(t, l.Commit(500, 480))

	used, limit, date := l.CurrentUsage()
	assert.Equal(t, int64(480), used)
	assert.Equal(t, int64(1000), limit)
	assert.Equal(t, "2026-07-31", date)
}

func TestReserve_ExceedsLimit_ReturnsWaitUntilMidnight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	now := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)

	l, err := New(path, 1000, true, WithClock(fixedClock(now)))
	require.NoError(t, err)

	require.NoError(t, l.Commit(0, 900))

	res := l.Reserve(500)
	assert.False(t, res.OK)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), res.WaitUntil)
}

func TestDisabledLedger_AlwaysOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l, err := New(path, 10, false)
	require.NoError(t, err)

	res := l.Reserve(1_000_000)
	assert.True(t, res.OK)
	require.NoError(t, l.Commit(1_000_000, 1_000_000))

	used, _, _ := l.CurrentUsage()
	assert.Zero(t, used)
}

func TestResetOnNewDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	day1 := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)

	l, err := New(path, 1000, true, WithClock(fixedClock(day1)))
	require.NoError(t, err)
	require.NoError(t, l.Commit(0, 900))

	used, _, _ := l.CurrentUsage()
	assert.Equal(t, int64(900), used)

	day2 := time.Date(2026, 8, 1, 0, 5, 0, 0, time.UTC)
	l.clock = fixedClock(day2)

	used, _, date := l.CurrentUsage()
	assert.Zero(t, used)
	assert.Equal(t, "2026-08-01", date)
}

func TestPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	l1, err := New(path, 1000, true, WithClock(fixedClock(now)))
	require.NoError(t, err)
	require.NoError(t, l1.Commit(0, 321))

	l2, err := New(path, 1000, true, WithClock(fixedClock(now)))
	require.NoError(t, err)

	used, _, _ := l2.CurrentUsage()
	assert.Equal(t, int64(321), used)
}

func TestWaitForReset_CancellableByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	now := time.Now()
	err := WaitForReset(ctx, now.Add(time.Hour), func() time.Time { return now })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForReset_PastDeadlineReturnsImmediately(t *testing.T) {
	now := time.Now()
	err := WaitForReset(context.Background(), now.Add(-time.Minute), func() time.Time { return now })
	assert.NoError(t, err)
}
