package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/persistq/internal/config"
	"github.com/roach88/persistq/internal/queue"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath   string
	Database     string
	Variant      string
	Table        string
	Serializer   string
	Driver       string
	NoAutoCommit bool
	Trace        bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the persistq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "persistq",
		Short: "persistq - durable SQLite-backed queues",
		Long: `A disk-backed queue whose items survive process restarts.

Queues live in a single SQLite file and come in three variants:
fifo (oldest first), lifo (newest first) and unique (fifo that
silently rejects values already queued).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	defaults := config.Default()

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .yml or .toml)")
	flags.StringVar(&opts.Database, "db", defaults.Path, "path to SQLite database")
	flags.StringVar(&opts.Variant, "variant", defaults.Variant, "queue variant (fifo|lifo|unique)")
	flags.StringVar(&opts.Table, "table", "", "table name (default depends on variant)")
	flags.StringVar(&opts.Serializer, "serializer", defaults.Serializer, "payload codec (json|canonical|yaml)")
	flags.StringVar(&opts.Driver, "driver", defaults.Driver, "SQLite driver (sqlite3|sqlite)")
	flags.BoolVar(&opts.NoAutoCommit, "no-auto-commit", false, "keep items after get until they are marked done")
	flags.BoolVar(&opts.Trace, "trace", false, "log every SQL statement (implies debug logging)")

	// Add subcommands
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewPeekCommand(opts))
	cmd.AddCommand(NewSizeCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewShrinkCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
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

// resolveConfig builds the queue configuration: defaults, then the config
// file if given, then any flag set explicitly on the command line.
func (o *RootOptions) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Path = o.Database
	}
	if flags.Changed("variant") {
		cfg.Variant = o.Variant
	}
	if flags.Changed("table") {
		cfg.Table = o.Table
	}
	if flags.Changed("serializer") {
		cfg.Serializer = o.Serializer
	}
	if flags.Changed("driver") {
		cfg.Driver = o.Driver
	}
	if flags.Changed("no-auto-commit") {
		cfg.AutoCommit = !o.NoAutoCommit
	}
	if flags.Changed("trace") {
		cfg.Trace = o.Trace
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger configures logging based on the verbose and trace flags.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if o.Verbose || o.Trace {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

// openQueue resolves configuration and opens the queue it names.
// The caller must Close the queue.
func (o *RootOptions) openQueue(cmd *cobra.Command) (*queue.Queue, error) {
	cfg, err := o.resolveConfig(cmd)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := o.newLogger(cmd.ErrOrStderr())
	logger.Debug("opening queue", "db", cfg.Path, "variant", cfg.Variant, "auto_commit", cfg.AutoCommit)

	q, err := queue.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open queue", err)
	}
	return q, nil
}

// formatter returns an OutputFormatter bound to the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// closeQueue closes q, logging failures rather than masking the command's
// own error.
func closeQueue(cmd *cobra.Command, q *queue.Queue) {
	if err := q.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error closing queue: %v\n", err)
	}
}
