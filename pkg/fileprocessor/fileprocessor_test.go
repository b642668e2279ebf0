package fileprocessor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronominer/chronominer/pkg/batch"
	"github.com/chronominer/chronominer/pkg/config"
	"github.com/chronominer/chronominer/pkg/ledger"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/schema"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) ID() string { return "fake-model" }

func (f *fakeProvider) Invoke(_ context.Context, req provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &provider.Response{Object: map[string]any{"name": "Alice"}, InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeProvider) Capabilities() provider.Capability { return provider.Capability{} }

type fakeVendor struct{ submitted []batch.ChunkRequest }

func (f *fakeVendor) Submit(_ context.Context, _ string, reqs []batch.ChunkRequest) (string, error) {
	f.submitted = reqs
	return "batch-123", nil
}

func (f *fakeVendor) Status(_ context.Context, _ string) (batch.Status, error) {
	return batch.StatusInProgress, nil
}

func (f *fakeVendor) Download(_ context.Context, _ string) ([]batch.ChunkResult, error) { return nil, nil }

func (f *fakeVendor) Cancel(_ context.Context, _ string) error { return nil }

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.json"),
		[]byte(`{"type":"object","properties":{"name":{"type":"string"}}}`), 0o644))
	reg, err := schema.LoadDir(dir)
	require.NoError(t, err)
	return reg
}

func testLedger(t *testing.T, enforce bool, limit int64) *ledger.Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.json")
	l, err := ledger.New(path, limit, enforce)
	require.NoError(t, err)
	return l
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Model = "fake-model"
	cfg.OutputDir = t.TempDir()
	return cfg
}

func fixedClock() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

func TestProcessFile_Auto_Synchronous_BuildsAggregate(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("line one\nline two\nline three\n"), 0o644))

	p := &fakeProvider{}
	opts := Options{SchemaName: "people", Mode: Auto, Config: baseConfig(t)}
	deps := Deps{Ledger: testLedger(t, false, 0), Registry: testRegistry(t), Provider: p, Clock: fixedClock}

	outcome, err := ProcessFile(context.Background(), src, opts, deps)
	require.NoError(t, err)
	require.NotNil(t, outcome.Aggregate)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, outcome.Aggregate.Warnings)
	require.Len(t, outcome.Aggregate.Chunks, 1)
	assert.Equal(t, "Alice", outcome.Aggregate.Chunks[0].Response["name"])

	outPath := filepath.Join(opts.Config.OutputDir, "people", "a.json")
	_, statErr := os.Stat(outPath)
	assert.NoError(t, statErr)
}

func TestProcessFile_Batch_SubmitsAndWritesDebugFile(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("line one\nline two\n"), 0o644))

	vendor := &fakeVendor{}
	opts := Options{SchemaName: "people", Mode: Auto, Batch: true, Config: baseConfig(t)}
	deps := Deps{
		Ledger: testLedger(t, false, 0), Registry: testRegistry(t),
		Provider: &fakeProvider{}, BatchVendor: vendor, ProviderTag: "openai", Clock: fixedClock,
	}

	outcome, err := ProcessFile(context.Background(), src, opts, deps)
	require.NoError(t, err)
	assert.Nil(t, outcome.Aggregate)
	assert.Equal(t, "batch-123", outcome.BatchID)
	require.Len(t, vendor.submitted, 1)
	assert.Equal(t, "a-chunk-1", vendor.submitted[0].CustomID)

	debugPath := filepath.Join(opts.Config.OutputDir, "people", "a_batch_submission_debug.json")
	_, statErr := os.Stat(debugPath)
	assert.NoError(t, statErr)
}

func TestProcessFile_Batch_NoVendorFallsBackToSynchronous(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("line one\n"), 0o644))

	p := &fakeProvider{}
	opts := Options{SchemaName: "people", Mode: Auto, Batch: true, Config: baseConfig(t)}
	deps := Deps{Ledger: testLedger(t, false, 0), Registry: testRegistry(t), Provider: p, Clock: fixedClock}

	outcome, err := ProcessFile(context.Background(), src, opts, deps)
	require.NoError(t, err)
	assert.Empty(t, outcome.BatchID)
	require.NotNil(t, outcome.Aggregate)
	assert.Equal(t, 1, p.calls)
}

func TestProcessFile_UnknownSchemaIsConfigInvalid(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("line one\n"), 0o644))

	opts := Options{SchemaName: "nope", Mode: Auto, Config: baseConfig(t)}
	deps := Deps{Ledger: testLedger(t, false, 0), Registry: testRegistry(t), Provider: &fakeProvider{}, Clock: fixedClock}

	_, err := ProcessFile(context.Background(), src, opts, deps)
	require.Error(t, err)
}

func TestResolveMode_PerFile_UsesLineRangesWhenSidecarExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("x\n"), 0o644))

	assert.Equal(t, Auto, ResolveMode(PerFile, src))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_line_ranges.txt"), []byte("1-1\n"), 0o644))
	assert.Equal(t, AdjustLineRanges, ResolveMode(PerFile, src))
}

func TestProcessDirectory_ContinuesPastNonFatalFileError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_missing_ranges.txt"), []byte("irrelevant\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("line one\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_line_ranges.txt"), []byte("1-1\n"), 0o644))

	opts := Options{SchemaName: "people", Mode: LineRanges, Config: baseConfig(t)}
	deps := Deps{Ledger: testLedger(t, false, 0), Registry: testRegistry(t), Provider: &fakeProvider{}, Clock: fixedClock}

	results, err := ProcessDirectory(context.Background(), dir, opts, deps, slog.Default())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Error(t, results[0].Err) // a_missing_ranges.txt has no line-ranges sidecar of its own
	assert.NoError(t, results[1].Err)
	require.NotNil(t, results[1].Outcome.Aggregate)
}

func TestProcessDirectory_ParallelWhenLedgerNotEnforced(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("line one\n"), 0o644))
	}

	opts := Options{SchemaName: "people", Mode: Auto, Config: baseConfig(t)}
	deps := Deps{Ledger: testLedger(t, false, 0), Registry: testRegistry(t), Provider: &fakeProvider{}, Clock: fixedClock}

	results, err := ProcessDirectory(context.Background(), dir, opts, deps, slog.Default())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt"), filepath.Join(dir, "c.txt"),
	}, []string{results[0].SourceFile, results[1].SourceFile, results[2].SourceFile})
	for _, r := range results {
		assert.NoError(t, r.Err)
		require.NotNil(t, r.Outcome.Aggregate)
	}
}

func TestProcessDirectory_AbortsOnFatalConfigError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line one\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("line one\n"), 0o644))

	opts := Options{SchemaName: "does-not-exist", Mode: Auto, Config: baseConfig(t)}
	// An enforcing ledger forces the strictly sequential walk (spec §5), so
	// the first file's fatal error aborts before the second file ever runs.
	deps := Deps{Ledger: testLedger(t, true, 1_000_000), Registry: testRegistry(t), Provider: &fakeProvider{}, Clock: fixedClock}

	results, err := ProcessDirectory(context.Background(), dir, opts, deps, slog.Default())
	require.Error(t, err)
	assert.Len(t, results, 0)
}
