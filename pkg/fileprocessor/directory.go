package fileprocessor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/chronominer/chronominer/pkg/concurrent"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

// lineRangesSuffix matches paths.LineRangesPath's sidecar naming
// (<stem>_line_ranges.txt), so a directory scan doesn't mistake a
// previously generated sidecar file for an input file of its own.
const lineRangesSuffix = "_line_ranges.txt"

// FileOutcome pairs one input file with the result (or error) of running
// it through ProcessFile.
type FileOutcome struct {
	SourceFile string
	Outcome    Outcome
	Err        error
}

// ListInputFiles returns dir's regular files in lexical order (spec §4.10's
// directory-input case; the spec names no particular order, so this picks
// the deterministic one: sorted by name, not directory-walk order).
func ListInputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), lineRangesSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ProcessDirectory runs every file in dir through ProcessFile. A
// TokenLimitReached abort under NoWait fails only the file it occurred on
// (spec §7's "fail the file... continue to next file" policy, extended
// here to every per-file error kind except ConfigInvalid/auth errors,
// which are fatal for the whole run since every file shares the same
// provider and config).
//
// Per spec §5 ("when daily-limit enforcement is active in synchronous
// mode, files are processed one at a time; otherwise files may also be
// parallelized by the caller"), this dispatches to a strictly sequential,
// lexical-order walk when deps.Ledger enforces the daily cap, and to a
// bounded-concurrency walk otherwise.
func ProcessDirectory(ctx context.Context, dir string, opts Options, deps Deps, logger *slog.Logger) ([]FileOutcome, error) {
	if logger == nil {
		logger = slog.Default()
	}

	files, err := ListInputFiles(dir)
	if err != nil {
		return nil, err
	}

	if deps.Ledger != nil && deps.Ledger.Enforced() {
		return processSequential(ctx, files, opts, deps, logger)
	}
	return processConcurrent(ctx, files, opts, deps, logger)
}

func processSequential(ctx context.Context, files []string, opts Options, deps Deps, logger *slog.Logger) ([]FileOutcome, error) {
	results := make([]FileOutcome, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		outcome, err := processOneFile(ctx, f, opts, deps, logger)
		if err != nil && isRunFatal(err) {
			return results, err
		}
		results = append(results, FileOutcome{SourceFile: f, Outcome: outcome, Err: err})
	}

	return results, nil
}

// processConcurrent runs files in parallel, bounded by
// opts.Config.ConcurrencyLimit, collecting results in a concurrent.Map
// keyed by file path so each worker goroutine never touches another's
// slot. A fatal error from any file cancels the remaining work via the
// errgroup's derived context, mirroring how C6's scheduler aborts
// sibling chunk requests on context cancellation.
func processConcurrent(ctx context.Context, files []string, opts Options, deps Deps, logger *slog.Logger) ([]FileOutcome, error) {
	limit := opts.Config.ConcurrencyLimit
	if limit <= 0 {
		limit = 1
	}

	byFile := concurrent.NewMap[string, FileOutcome]()
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(ctx)

	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			outcome, err := processOneFile(gctx, f, opts, deps, logger)
			byFile.Store(f, FileOutcome{SourceFile: f, Outcome: outcome, Err: err})
			if err != nil && isRunFatal(err) {
				return err
			}
			return nil
		})
	}

	groupErr := g.Wait()

	results := make([]FileOutcome, 0, len(files))
	for _, f := range files { // files is already lexically sorted
		if fo, ok := byFile.Load(f); ok {
			results = append(results, fo)
		}
	}

	return results, groupErr
}

func processOneFile(ctx context.Context, f string, opts Options, deps Deps, logger *slog.Logger) (Outcome, error) {
	fileOpts := opts
	fileOpts.Mode = ResolveMode(opts.Mode, f)

	outcome, err := ProcessFile(ctx, f, fileOpts, deps)
	if err != nil {
		logger.Warn("file failed", "file", f, "error", err)
	}
	return outcome, err
}

// isRunFatal reports whether err should abort the whole directory run
// rather than just the one file it occurred on (spec §7: ConfigInvalid and
// the auth kinds are fatal at startup / for the affected provider, and
// every file in a run shares one provider).
func isRunFatal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	kind, ok := xerrors.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case xerrors.ConfigInvalid, xerrors.AuthMissing, xerrors.AuthInvalid:
		return true
	}
	return false
}
