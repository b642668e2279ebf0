package root

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chronominer/chronominer/pkg/config"
	"github.com/chronominer/chronominer/pkg/fileprocessor"
)

type processFlags struct {
	schema        string
	input         string
	chunking      string
	batch         bool
	context       bool
	contextSource string
	verbose       bool
	quiet         bool
}

// newProcessCmd implements spec §6's `process` verb: schema + input
// (file or directory) required, chunking/batch/context optional.
func newProcessCmd(root *rootFlags) *cobra.Command {
	var flags processFlags

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract structured data from a file or directory of files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, root, flags)
		},
	}

	cmd.Flags().StringVar(&flags.schema, "schema", "", "Schema name to extract against (required)")
	cmd.Flags().StringVar(&flags.input, "input", "", "Input file or directory (required)")
	cmd.Flags().StringVar(&flags.chunking, "chunking", string(fileprocessor.Auto),
		"Chunking strategy: auto, auto-adjust, line_ranges, adjust-line-ranges, per-file")
	cmd.Flags().BoolVar(&flags.batch, "batch", false, "Submit chunks as an asynchronous provider batch job instead of processing synchronously")
	cmd.Flags().BoolVar(&flags.context, "context", false, "Inject the schema's context bundle into every chunk prompt")
	cmd.Flags().StringVar(&flags.contextSource, "context-source", "default", "Context bundle source: default or file")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Accepted for CLI compatibility; process prints the same output with or without it")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.MarkFlagRequired("schema")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runProcess(cmd *cobra.Command, root *rootFlags, flags processFlags) error {
	a, err := newApp(root.configPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(flags.input)
	if err != nil {
		return err
	}

	schemaCfg := a.cfg.ForSchema(flags.schema)

	p, err := a.providerFor(cmd.Context(), schemaCfg)
	if err != nil {
		return err
	}

	opts := fileprocessor.Options{
		SchemaName: flags.schema,
		Mode:       fileprocessor.ChunkingMode(flags.chunking),
		Batch:      flags.batch,
		Config:     a.cfg,
	}
	if flags.context {
		opts.ContextBundle = resolveContextBundle(flags.contextSource, flags.schema, a.cfg)
	}

	deps := fileprocessor.Deps{Ledger: a.ledger, Registry: a.registry, Provider: p}
	if flags.batch {
		bv, tag, err := a.batchVendorFor(cmd.Context(), schemaCfg)
		if err != nil {
			return err
		}
		deps.BatchVendor = bv
		deps.ProviderTag = tag
	}

	logger := slog.Default()
	if flags.quiet {
		logger = slog.New(slog.DiscardHandler)
	}

	if info.IsDir() {
		results, err := fileprocessor.ProcessDirectory(cmd.Context(), flags.input, opts, deps, logger)
		if err != nil {
			return err
		}
		return summarizeResults(cmd, results, flags.quiet)
	}

	opts.Mode = fileprocessor.ResolveMode(opts.Mode, flags.input)
	outcome, err := fileprocessor.ProcessFile(cmd.Context(), flags.input, opts, deps)
	if err != nil {
		return err
	}
	if !flags.quiet {
		if outcome.BatchID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "submitted batch %s for %s\n", outcome.BatchID, flags.input)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote aggregate for %s (partial=%v)\n", flags.input, outcome.Aggregate.Meta.Partial)
		}
	}
	return nil
}

func summarizeResults(cmd *cobra.Command, results []fileprocessor.FileOutcome, quiet bool) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", r.SourceFile, r.Err)
			continue
		}
		if quiet {
			continue
		}
		if r.Outcome.BatchID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "submitted batch %s for %s\n", r.Outcome.BatchID, r.SourceFile)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote aggregate for %s (partial=%v)\n", r.SourceFile, r.Outcome.Aggregate.Meta.Partial)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// resolveContextBundle implements spec §3's "Context bundle" for the
// `--context`/`--context-source` flags: "default" uses the schema's
// conventional `<schema_dir>/<schema>.context.txt` sidecar if present;
// "file" reads the path given in ContextSource itself. Both are best
// effort — a missing context file yields an empty bundle rather than
// failing the run, since context is explicitly optional (spec §6).
func resolveContextBundle(source, schemaName string, cfg config.Config) string {
	var path string
	switch source {
	case "file":
		path = schemaName
	default:
		path = cfg.SchemaDir + "/" + schemaName + ".context.txt"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
