package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chronominer/chronominer/pkg/chunk"
	"github.com/chronominer/chronominer/pkg/paths"
)

type generateLineRangesFlags struct {
	input  string
	tokens int
}

// newGenerateLineRangesCmd implements spec §6's `generate-line-ranges` verb:
// run C3's automatic strategy once and persist the resulting boundaries as
// the co-located line-ranges sidecar, without ever calling a provider. This
// is how an operator seeds a file for later `--chunking line_ranges` or
// `adjust-line-ranges` runs.
func newGenerateLineRangesCmd(root *rootFlags) *cobra.Command {
	var flags generateLineRangesFlags

	cmd := &cobra.Command{
		Use:   "generate-line-ranges",
		Short: "Write an automatic line-range split for a file without calling a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateLineRanges(cmd, root, flags)
		},
	}

	cmd.Flags().StringVar(&flags.input, "input", "", "Input file (required)")
	cmd.Flags().IntVar(&flags.tokens, "tokens", 0, "Tokens per chunk (defaults to the config's tokens_per_chunk)")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runGenerateLineRanges(cmd *cobra.Command, root *rootFlags, flags generateLineRangesFlags) error {
	a, err := newApp(root.configPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(flags.input)
	if err != nil {
		return err
	}
	source := string(raw)

	tokensPerChunk := flags.tokens
	if tokensPerChunk <= 0 {
		tokensPerChunk = a.cfg.TokensPerChunk
	}

	chunks := chunk.AutomaticChunks(source, a.cfg.Model, tokensPerChunk)
	ranges := make([]chunk.Range, len(chunks))
	for i, c := range chunks {
		ranges[i] = chunk.Range{Start: c.LineStart, End: c.LineEnd}
	}

	outPath := paths.LineRangesPath(flags.input)
	if err := os.WriteFile(outPath, []byte(chunk.WriteLineRanges(ranges)), 0o644); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d ranges to %s\n", len(ranges), outPath)
	return nil
}
