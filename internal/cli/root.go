package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBDir   string

	// Logger is built in PersistentPreRunE once --format and --verbose are
	// parsed, so command bodies never construct their own handler (§10.2:
	// the ledger core itself never logs; only the CLI does, always through
	// this injected *slog.Logger rather than a package-level global).
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the UkweliDB CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ukweli",
		Short: "UkweliDB - a tamper-evident, append-only ledger database",
		Long:  "UkweliDB is a tamper-evident, append-only ledger database with hash-linked records, signed appends, and a declarative workflow engine.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.Logger = newLogger(opts)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBDir, "db", "", "database directory")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))

	return cmd
}

// newLogger builds the diagnostic logger for a single command invocation:
// JSON when --format json (so CLI stdout and log lines share an encoding
// for log-aggregation pipelines), text otherwise; debug level under
// --verbose, info otherwise. Diagnostics always go to stderr so they never
// interleave with a command's stdout result.
func newLogger(opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	return slog.New(handler)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// requireDB validates that --db was given before a command tries to open a
// database directory.
func requireDB(opts *RootOptions) error {
	if opts.DBDir == "" {
		return NewExitError(ExitInputError, "--db is required")
	}
	return nil
}
