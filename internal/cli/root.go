// Package cli implements the eavq command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/eavq/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional config file
	Schema  string // overrides the configured schema directory

	cfg *config.Config
	log *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the eavq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "eavq",
		Short: "eavq - expression compiler for property-bag stores",
		Long: `Compile filter, grouping and window queries over property-bag entities
into a database-agnostic filter algebra, preview the SQL it becomes and run
it against a SQLite or PostgreSQL object store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "directory of CUE entity definitions")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))

	return cmd
}

// setup loads configuration and installs the logger. Logs go to stderr so
// they never corrupt JSON output.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Schema != "" {
		cfg.Schema = o.Schema
	}
	o.cfg = cfg

	level, _ := cfg.Level()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return nil
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
