// Package root builds chronominer's Cobra command tree: the six verbs
// named in spec §6's CLI surface table, plus the shared setup (logging,
// config loading, dependency wiring) cagent's cmd/root.NewRootCmd performs
// before dispatching to a subcommand.
package root

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chronominer/chronominer/pkg/logging"
	"github.com/chronominer/chronominer/pkg/paths"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

type rootFlags struct {
	configPath string
	debugMode  bool
	logFile    string
	logHandle  io.Closer
}

// NewRootCmd builds the root command, mirroring cagent's NewRootCmd shape:
// a PersistentPreRunE that sets up logging before any subcommand runs, a
// PersistentPostRunE that closes the log file, and one AddCommand call per
// verb.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "chronominer",
		Short: "chronominer - schema-driven LLM extraction over large text files",
		Long: "chronominer chunks large text files, dispatches each chunk to a\n" +
			"pluggable LLM provider, and aggregates the structured responses into a\n" +
			"per-file dataset, synchronously or via provider batch jobs.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rf, err := logging.Setup(flags.debugMode, flags.logFile, paths.GetDataDir())
			if err != nil {
				slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))
				slog.Warn("failed to set up log file, falling back to stderr", "error", err)
			}
			if rf != nil {
				flags.logHandle = rf
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logHandle != nil {
				return flags.logHandle.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "chronominer.yaml", "Path to the configuration file")
	cmd.PersistentFlags().BoolVarP(&flags.debugMode, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "Path to debug log file (default under the data directory; only used with --debug)")

	cmd.AddCommand(newProcessCmd(&flags))
	cmd.AddCommand(newGenerateLineRangesCmd(&flags))
	cmd.AddCommand(newReadjustLineRangesCmd(&flags))
	cmd.AddCommand(newCheckBatchesCmd(&flags))
	cmd.AddCommand(newCancelBatchesCmd(&flags))
	cmd.AddCommand(newRepairExtractionsCmd(&flags))

	return cmd
}

// Execute runs the command tree against args, the cagent Execute's
// signature trimmed of the Docker CLI plugin / telemetry banner concerns
// this engine doesn't carry.
func Execute(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		return processErr(err, stderr)
	}
	return nil
}

// processErr prints a user-facing message for known error kinds (spec §7)
// before letting Execute's caller decide the process exit code.
func processErr(err error, stderr io.Writer) error {
	if kind, ok := xerrors.KindOf(err); ok {
		fmt.Fprintf(stderr, "%s: %s\n", kind, err)
		return err
	}

	fmt.Fprintln(stderr, err)
	return err
}
