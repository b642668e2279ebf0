package root

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chronominer/chronominer/pkg/batch"
	"github.com/chronominer/chronominer/pkg/paths"
)

type cancelBatchesFlags struct {
	force bool
}

// newCancelBatchesCmd implements spec §6's `cancel-batches` verb: best-effort
// cancel every outstanding batch across every schema (spec §4.8 cancel()).
// Without --force it asks for confirmation first, since cancellation can't
// be undone once the provider accepts it.
func newCancelBatchesCmd(root *rootFlags) *cobra.Command {
	var flags cancelBatchesFlags

	cmd := &cobra.Command{
		Use:   "cancel-batches",
		Short: "Cancel every outstanding batch job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancelBatches(cmd, root, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.force, "force", false, "Skip the confirmation prompt")

	return cmd
}

func runCancelBatches(cmd *cobra.Command, root *rootFlags, flags cancelBatchesFlags) error {
	a, err := newApp(root.configPath)
	if err != nil {
		return err
	}

	var targets []struct {
		schema string
		sub    batch.Submission
	}
	for _, name := range a.registry.Names() {
		cfg := a.cfg.ForSchema(name)
		submissions, err := batch.ListSubmissions(paths.SchemaOutputDir(cfg.OutputDir, name))
		if err != nil {
			return err
		}
		for _, sub := range submissions {
			targets = append(targets, struct {
				schema string
				sub    batch.Submission
			}{schema: name, sub: sub})
		}
	}

	if len(targets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no outstanding batches")
		return nil
	}

	if !flags.force {
		fmt.Fprintf(cmd.OutOrStdout(), "about to cancel %d outstanding batch(es). Continue? [y/N] ", len(targets))
		reader := bufio.NewReader(cmd.InOrStdin())
		line, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y") {
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		}
	}

	for _, t := range targets {
		cfg := a.cfg.ForSchema(t.schema)
		vendor, err := a.batchVendorByTag(cmd.Context(), cfg, t.sub.Debug.Provider)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s/%s: %s\n", t.schema, t.sub.Stem, err)
			continue
		}
		if err := vendor.Cancel(cmd.Context(), t.sub.Debug.BatchID); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s/%s: %s\n", t.schema, t.sub.Stem, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: cancelled batch %s\n", t.schema, t.sub.Stem, t.sub.Debug.BatchID)
	}
	return nil
}
