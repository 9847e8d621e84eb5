package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions are the flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string
}

// ValidFormats are the values accepted by --format.
var ValidFormats = []string{"text", "json"}

// NewRootCommand assembles the entitymap command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "entitymap",
		Short: "Check object-to-entity mappings and the queries they produce",
		Long: `entitymap works on mapping files that describe how domain objects are
stored as entities. It validates a mapping, shows what a search or update
request compiles to on the document, relational and in-memory backends,
and runs conformance scenarios that must behave the same on every backend.

Examples:
  entitymap validate animal.yaml
  entitymap compile animal.yaml --request find.yaml --backend sqlite
  entitymap test ./scenarios --format json`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(cmd, opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log compiled queries and update strategies to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "result format (json|text)")

	cmd.AddCommand(
		NewValidateCommand(opts),
		NewCompileCommand(opts),
		NewTestCommand(opts),
	)
	return cmd
}

// configureLogging installs a stderr slog handler. Verbose mode lowers the
// level to debug.
func configureLogging(cmd *cobra.Command, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
