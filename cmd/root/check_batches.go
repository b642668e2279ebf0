package root

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/chronominer/chronominer/pkg/batch"
	"github.com/chronominer/chronominer/pkg/concurrent"
	"github.com/chronominer/chronominer/pkg/paths"
)

type checkBatchesFlags struct {
	schema string
}

// checkTarget is one schema/submission pair waiting on a status poll.
type checkTarget struct {
	schema string
	sub    batch.Submission
}

// newCheckBatchesCmd implements spec §6's `check-batches` verb: poll every
// outstanding batch this process knows about (via the submission debug
// artifacts under the output directory) and report its current unified
// status (spec §4.8's status() vocabulary), without downloading or
// ingesting anything — that is repair-extractions' job.
func newCheckBatchesCmd(root *rootFlags) *cobra.Command {
	var flags checkBatchesFlags

	cmd := &cobra.Command{
		Use:   "check-batches",
		Short: "Poll outstanding batch jobs and report their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckBatches(cmd, root, flags)
		},
	}

	cmd.Flags().StringVar(&flags.schema, "schema", "", "Limit to one schema's outstanding batches (default: all schemas)")

	return cmd
}

func runCheckBatches(cmd *cobra.Command, root *rootFlags, flags checkBatchesFlags) error {
	a, err := newApp(root.configPath)
	if err != nil {
		return err
	}

	schemaNames := a.registry.Names()
	if flags.schema != "" {
		schemaNames = []string{flags.schema}
	}

	var targets []checkTarget
	for _, name := range schemaNames {
		cfg := a.cfg.ForSchema(name)
		submissions, err := batch.ListSubmissions(paths.SchemaOutputDir(cfg.OutputDir, name))
		if err != nil {
			return err
		}
		for _, sub := range submissions {
			targets = append(targets, checkTarget{schema: name, sub: sub})
		}
	}

	if len(targets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no outstanding batches")
		return nil
	}

	lines := pollStatuses(cmd.Context(), a, targets)
	for _, line := range lines.All() {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

// pollStatuses polls every target's batch status concurrently, bounded the
// same way processConcurrent bounds per-file work, collecting one report
// line per target into a concurrent.Slice indexed by its position in
// targets so the printed order matches discovery order despite the
// network calls completing out of order.
func pollStatuses(ctx context.Context, a *app, targets []checkTarget) *concurrent.Slice[string] {
	lines := concurrent.NewSlice[string]()
	for range targets {
		lines.Append("")
	}

	sem := semaphore.NewWeighted(8)
	g, gctx := errgroup.WithContext(ctx)

	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			cfg := a.cfg.ForSchema(t.schema)
			vendor, err := a.batchVendorByTag(gctx, cfg, t.sub.Debug.Provider)
			if err != nil {
				lines.Set(i, fmt.Sprintf("%s/%s: %s", t.schema, t.sub.Stem, err))
				return nil
			}

			status, err := vendor.Status(gctx, t.sub.Debug.BatchID)
			if err != nil {
				lines.Set(i, fmt.Sprintf("%s/%s: %s", t.schema, t.sub.Stem, err))
				return nil
			}
			lines.Set(i, fmt.Sprintf("%s/%s: batch %s is %s", t.schema, t.sub.Stem, t.sub.Debug.BatchID, status))
			return nil
		})
	}

	_ = g.Wait()
	return lines
}
