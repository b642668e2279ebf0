// Package fileprocessor implements C10, the File Processor: the top-level
// per-file driver that wires C3 (and optionally C4) into either C6 or C8,
// then C9, following spec §4.10's seven-step sequence. It is the one
// package that imports every other component package.
package fileprocessor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chronominer/chronominer/pkg/aggregate"
	"github.com/chronominer/chronominer/pkg/batch"
	"github.com/chronominer/chronominer/pkg/chunk"
	"github.com/chronominer/chronominer/pkg/config"
	"github.com/chronominer/chronominer/pkg/journal"
	"github.com/chronominer/chronominer/pkg/ledger"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/paths"
	"github.com/chronominer/chronominer/pkg/refine"
	"github.com/chronominer/chronominer/pkg/scheduler"
	"github.com/chronominer/chronominer/pkg/schema"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

// ChunkingMode names the five values of the CLI's `chunking` enum (spec
// §6). PerFile is never passed down to ProcessFile: ResolveMode expands it
// to Auto or AdjustLineRanges per file before a directory run calls
// ProcessFile (Open Question (c), decided in DESIGN.md).
type ChunkingMode string

const (
	Auto             ChunkingMode = "auto"
	AutoAdjust       ChunkingMode = "auto-adjust"
	LineRanges       ChunkingMode = "line_ranges"
	AdjustLineRanges ChunkingMode = "adjust-line-ranges"
	PerFile          ChunkingMode = "per-file"
)

// ResolveMode expands PerFile for one file: adjust-line-ranges when a
// line-ranges file already exists for it, auto otherwise. Any other mode is
// returned unchanged. Decided per Open Question (c): a mixed directory asks
// each file to speak for itself through the presence of its own
// line-ranges sidecar, rather than prompting interactively or requiring a
// single strategy for the whole directory.
func ResolveMode(mode ChunkingMode, sourceFile string) ChunkingMode {
	if mode != PerFile {
		return mode
	}
	if _, err := os.Stat(paths.LineRangesPath(sourceFile)); err == nil {
		return AdjustLineRanges
	}
	return Auto
}

// Deps bundles the component collaborators ProcessFile needs. One Deps is
// shared across every file in a run; Ledger and Registry are safe for
// concurrent use, Provider and BatchVendor are expected to be safe for the
// concurrency the caller drives them with.
type Deps struct {
	Ledger      *ledger.Ledger
	Registry    *schema.Registry
	Provider    provider.Provider // used for both chunk extraction and, when refining, the boundary probe
	BatchVendor batch.VendorBatch // nil when the model's capability has BatchSupported=false
	ProviderTag string            // vendor tag recorded in the batch submission debug file
	Clock       func() time.Time
}

// Options carries the per-run knobs that come from CLI flags / config
// rather than from Deps (spec §6's `process` verb flags).
type Options struct {
	SchemaName    string
	Mode          ChunkingMode
	Batch         bool
	ContextBundle string // pre-resolved by the caller (spec §4.10 step 3's "external collaborator")
	Config        config.Config
}

// Outcome is ProcessFile's result. Aggregate is nil when this run only
// submitted a batch job (spec §4.10 step 4: "batch path is resumed by a
// separate invocation") — BatchID names the job a later repair-extractions
// or check-batches invocation must follow up on.
type Outcome struct {
	Aggregate *aggregate.Aggregate
	BatchID   string
}

// ProcessFile runs spec §4.10's seven steps for one input file. mode must
// already be resolved (see ResolveMode) — ProcessFile never sees PerFile.
func ProcessFile(ctx context.Context, sourceFile string, opts Options, deps Deps) (Outcome, error) {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	descriptor, ok := deps.Registry.Get(opts.SchemaName)
	if !ok {
		return Outcome{}, xerrors.ConfigInvalid.New(fmt.Sprintf("unknown schema %q", opts.SchemaName))
	}

	raw, err := os.ReadFile(sourceFile)
	if err != nil {
		return Outcome{}, xerrors.ConfigInvalid.Wrap(fmt.Errorf("reading %s: %w", sourceFile, err))
	}
	source := string(raw)
	lines := chunk.Lines(source)

	chunks, err := buildChunks(ctx, source, lines, sourceFile, opts, deps)
	if err != nil {
		return Outcome{}, err
	}
	if err := chunk.Validate(chunks, len(lines)); err != nil {
		return Outcome{}, err
	}

	cfg := opts.Config.ForSchema(opts.SchemaName)
	stem := fileStem(sourceFile)
	outputDir := paths.SchemaOutputDir(cfg.OutputDir, opts.SchemaName)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Outcome{}, err
	}

	journalPath := paths.JournalPath(cfg.OutputDir, opts.SchemaName, sourceFile)
	j, err := journal.Open(journalPath, journal.Header{
		SourcePath:     sourceFile,
		Schema:         opts.SchemaName,
		Model:          cfg.Model,
		ChunksExpected: len(chunks),
		RunID:          uuid.NewString(),
	}, clock)
	if err != nil {
		return Outcome{}, err
	}

	if opts.Batch {
		return submitBatch(ctx, sourceFile, stem, chunks, descriptor, cfg, opts.ContextBundle, j, deps, clock)
	}
	return runSynchronous(ctx, sourceFile, chunks, descriptor, cfg, opts.ContextBundle, j, deps, clock)
}

// buildChunks dispatches to C3 and, when the mode calls for it, C4 (spec
// §4.3's three strategies, plus auto-adjust which applies C4 to an
// automatic split rather than a predefined one).
func buildChunks(ctx context.Context, source string, lines []string, sourceFile string, opts Options, deps Deps) ([]chunk.Chunk, error) {
	cfg := opts.Config.ForSchema(opts.SchemaName)

	switch opts.Mode {
	case Auto:
		return chunk.AutomaticChunks(source, cfg.Model, cfg.TokensPerChunk), nil

	case LineRanges:
		ranges, err := chunk.ParseLineRanges(paths.LineRangesPath(sourceFile), len(lines))
		if err != nil {
			return nil, err
		}
		return chunk.FromRanges(lines, ranges), nil

	case AutoAdjust:
		chunks := chunk.AutomaticChunks(source, cfg.Model, cfg.TokensPerChunk)
		refined, err := refineAndPersist(ctx, lines, chunks, sourceFile, opts, deps)
		if err != nil {
			return nil, err
		}
		return refined, nil

	case AdjustLineRanges:
		ranges, err := chunk.ParseLineRanges(paths.LineRangesPath(sourceFile), len(lines))
		if err != nil {
			return nil, err
		}
		chunks := chunk.FromRanges(lines, ranges)
		refined, err := refineAndPersist(ctx, lines, chunks, sourceFile, opts, deps)
		if err != nil {
			return nil, err
		}
		return refined, nil

	default:
		return nil, xerrors.ConfigInvalid.New(fmt.Sprintf("unresolved chunking mode %q", opts.Mode))
	}
}

// refineAndPersist runs C4 and, per spec §4.3 strategy 3 ("After
// refinement, persist the new ranges back to the line-ranges file"),
// rewrites the sidecar file so a later `process --chunking line_ranges` run
// sees the refined boundaries.
func refineAndPersist(ctx context.Context, lines []string, chunks []chunk.Chunk, sourceFile string, opts Options, deps Deps) ([]chunk.Chunk, error) {
	refineCfg := refine.Config{
		Window:                 opts.Config.Refine.Window,
		CertaintyThreshold:     opts.Config.Refine.CertaintyThreshold,
		VerificationMultiplier: opts.Config.Refine.VerificationMultiplier,
		MaxContextExpansions:   opts.Config.Refine.MaxContextExpansions,
		MaxLowCertaintyRetries: opts.Config.Refine.MaxLowCertaintyRetries,
	}

	refined, err := refine.Refine(ctx, deps.Provider, lines, chunks, refineCfg, "")
	if err != nil {
		return nil, err
	}

	ranges := make([]chunk.Range, len(refined))
	for i, c := range refined {
		ranges[i] = chunk.Range{Start: c.LineStart, End: c.LineEnd}
	}
	if err := os.WriteFile(paths.LineRangesPath(sourceFile), []byte(chunk.WriteLineRanges(ranges)), 0o644); err != nil {
		return nil, err
	}

	return refined, nil
}

// runSynchronous implements spec §4.10 steps 4 (synchronous branch) and 5
// (inline wait): dispatch every chunk through C6, then build and persist
// the aggregate once every chunk has produced exactly one journal record.
func runSynchronous(ctx context.Context, sourceFile string, chunks []chunk.Chunk, descriptor schema.Descriptor, cfg config.Config, contextBundle string, j *journal.Journal, deps Deps, clock func() time.Time) (Outcome, error) {
	reqs := make([]scheduler.Request, len(chunks))
	for i, c := range chunks {
		prompt := buildPrompt(descriptor.Name, contextBundle, c.Text)
		reqs[i] = scheduler.Request{
			Chunk:           c,
			Prompt:          prompt,
			Schema:          descriptor.Raw,
			SchemaName:      descriptor.Name,
			EstimatedTokens: int64(cfg.TokensPerChunk),
		}
	}

	schedCfg := scheduler.Config{
		ConcurrencyLimit:  cfg.ConcurrencyLimit,
		Attempts:          cfg.Retry.Attempts,
		WaitMin:           cfg.Retry.WaitMin,
		WaitMax:           cfg.Retry.WaitMax,
		JitterMax:         cfg.Retry.JitterMax,
		RequestsPerMinute: cfg.RequestsPerMinute,
		NoWait:            cfg.NoWait,
		EstimatedOutput:   scheduler.DefaultConfig().EstimatedOutput,
	}

	runErr := scheduler.Run(ctx, schedCfg, deps.Provider, deps.Ledger, j, reqs)
	if closeErr := j.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return Outcome{}, runErr
	}

	agg, err := finalize(sourceFile, descriptor.Name, cfg.Model, len(chunks), descriptor.Raw, cfg, j.Path(), clock)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Aggregate: agg}, nil
}

// submitBatch implements spec §4.10 step 4's batch branch: build one
// ChunkRequest per chunk with the canonical custom_id, submit, and persist
// the submission debug artifact; the aggregate is built by a later Ingest
// call once the batch completes. When deps.BatchVendor is nil (no batch
// adapter for the model), the file is processed synchronously instead.
func submitBatch(ctx context.Context, sourceFile, stem string, chunks []chunk.Chunk, descriptor schema.Descriptor, cfg config.Config, contextBundle string, j *journal.Journal, deps Deps, clock func() time.Time) (Outcome, error) {
	if deps.BatchVendor == nil {
		slog.Warn("model has no batch adapter, processing synchronously", "model", cfg.Model, "file", sourceFile)
		return runSynchronous(ctx, sourceFile, chunks, descriptor, cfg, contextBundle, j, deps, clock)
	}

	reqs := make([]batch.ChunkRequest, len(chunks))
	for i, c := range chunks {
		reqs[i] = batch.ChunkRequest{
			ChunkIndex: c.Index,
			CustomID:   batch.CustomIDFor(stem, c.Index),
			Prompt:     buildPrompt(descriptor.Name, contextBundle, c.Text),
			Schema:     descriptor.Raw,
			SchemaName: descriptor.Name,
		}
	}

	mgr := batch.New(deps.BatchVendor, cfg.Model, j)
	batchID, err := mgr.Submit(ctx, reqs)
	closeErr := j.Close()
	if err != nil {
		return Outcome{}, err
	}
	if closeErr != nil {
		return Outcome{}, closeErr
	}

	debugPath := paths.BatchDebugPath(cfg.OutputDir, descriptor.Name, sourceFile)
	submittedAt := clock().UTC().Format(time.RFC3339)
	if err := batch.WriteSubmissionDebug(debugPath, batchID, deps.ProviderTag, cfg.Model, len(chunks), submittedAt); err != nil {
		return Outcome{}, err
	}

	return Outcome{BatchID: batchID}, nil
}

// Ingest re-reads a file's journal (normally after repair-extractions has
// downloaded fresh responses into it) and builds and
// persists the aggregate, implementing spec §4.10 steps 5-7 for the batch
// path. It is also what repair-extractions calls once a batch's chunks are
// all accounted for.
func Ingest(sourceFile, schemaName string, descriptor schema.Descriptor, cfg config.Config, clock func() time.Time) (*aggregate.Aggregate, error) {
	journalPath := paths.JournalPath(cfg.OutputDir, schemaName, sourceFile)
	view, err := journal.Read(journalPath)
	if err != nil {
		return nil, err
	}
	chunksExpected := 0
	if view.Header != nil {
		chunksExpected = view.Header.ChunksExpected
	}
	return finalize(sourceFile, schemaName, cfg.Model, chunksExpected, descriptor.Raw, cfg, journalPath, clock)
}

// finalize builds the aggregate from the journal at journalPath, writes
// the canonical `<stem>.json`, and deletes the journal unless
// retain_temporary_jsonl is set or the aggregate is partial, so a partial
// run keeps its journal for repair (spec §4.10 steps 5-7, §3's journal
// lifecycle note).
func finalize(sourceFile, schemaName, model string, chunksExpected int, schemaJSON map[string]any, cfg config.Config, journalPath string, clock func() time.Time) (*aggregate.Aggregate, error) {
	view, err := journal.Read(journalPath)
	if err != nil {
		return nil, err
	}

	agg, err := aggregate.Build(sourceFile, schemaName, model, chunksExpected, view, schemaJSON, clock().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	outPath := paths.AggregatePath(cfg.OutputDir, schemaName, sourceFile)
	if err := aggregate.Write(outPath, agg); err != nil {
		return nil, err
	}

	if !cfg.RetainJournal && !agg.Meta.Partial {
		if err := journal.Delete(journalPath); err != nil {
			return agg, err
		}
	}

	return agg, nil
}

// buildPrompt concatenates the context bundle (spec §3's "Context bundle")
// ahead of the chunk text, the same placeholder-substitution shape C4's
// invokeProbe uses for its own, narrower prompt.
func buildPrompt(schemaName, contextBundle, chunkText string) string {
	var b strings.Builder
	if contextBundle != "" {
		b.WriteString(contextBundle)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Extract structured data conforming to the %q schema from the following text.\n\n%s", schemaName, chunkText)
	return b.String()
}

func fileStem(sourceFile string) string {
	base := filepath.Base(sourceFile)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
