package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chronominer/chronominer/pkg/chunk"
	"github.com/chronominer/chronominer/pkg/paths"
	"github.com/chronominer/chronominer/pkg/refine"
)

type readjustLineRangesFlags struct {
	path          string
	schema        string
	contextWindow int
	dryRun        bool
	boundaryType  string
}

// newReadjustLineRangesCmd implements spec §6's `readjust-line-ranges` verb:
// run C4 over an existing line-ranges file's boundaries and persist the
// adjusted ranges back, the same refinement C10 applies inline for
// `adjust-line-ranges`, exposed here as its own verb for an operator who
// already has a line-ranges file and wants to refine it without re-running
// extraction.
func newReadjustLineRangesCmd(root *rootFlags) *cobra.Command {
	var flags readjustLineRangesFlags

	cmd := &cobra.Command{
		Use:   "readjust-line-ranges",
		Short: "Refine an existing line-range file's boundaries against semantic markers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReadjustLineRanges(cmd, root, flags)
		},
	}

	cmd.Flags().StringVar(&flags.path, "path", "", "Source file whose co-located line-ranges file will be refined (required)")
	cmd.Flags().StringVar(&flags.schema, "schema", "", "Schema name, used to resolve provider/model config overrides (required)")
	cmd.Flags().IntVar(&flags.contextWindow, "context-window", 0, "Override the refine window W (defaults to the config's refine.window)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the refined ranges without writing them back")
	cmd.Flags().StringVar(&flags.boundaryType, "boundary-type", "", "Schema-specific relevance probe text used in the verification scan")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("schema")

	return cmd
}

func runReadjustLineRanges(cmd *cobra.Command, root *rootFlags, flags readjustLineRangesFlags) error {
	a, err := newApp(root.configPath)
	if err != nil {
		return err
	}

	cfg := a.cfg.ForSchema(flags.schema)

	raw, err := os.ReadFile(flags.path)
	if err != nil {
		return err
	}
	lines := chunk.Lines(string(raw))

	ranges, err := chunk.ParseLineRanges(paths.LineRangesPath(flags.path), len(lines))
	if err != nil {
		return err
	}
	chunks := chunk.FromRanges(lines, ranges)

	p, err := a.providerFor(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	refineCfg := refine.Config{
		Window:                 cfg.Refine.Window,
		CertaintyThreshold:     cfg.Refine.CertaintyThreshold,
		VerificationMultiplier: cfg.Refine.VerificationMultiplier,
		MaxContextExpansions:   cfg.Refine.MaxContextExpansions,
		MaxLowCertaintyRetries: cfg.Refine.MaxLowCertaintyRetries,
	}
	if flags.contextWindow > 0 {
		refineCfg.Window = flags.contextWindow
	}

	refined, err := refine.Refine(cmd.Context(), p, lines, chunks, refineCfg, flags.boundaryType)
	if err != nil {
		return err
	}

	newRanges := make([]chunk.Range, len(refined))
	for i, c := range refined {
		newRanges[i] = chunk.Range{Start: c.LineStart, End: c.LineEnd}
	}
	out := chunk.WriteLineRanges(newRanges)

	if flags.dryRun {
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	}

	outPath := paths.LineRangesPath(flags.path)
	if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d ranges to %s\n", len(newRanges), outPath)
	return nil
}
