package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/eavq/internal/querysql"
	"github.com/roach88/eavq/internal/store"
)

// PreviewOptions holds flags for the preview command.
type PreviewOptions struct {
	*RootOptions
	Dialect string // overrides the configured dialect
	Count   bool   // preview the group count instead
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview <query.yaml>",
		Short: "Print the SQL a query document compiles to",
		Long: `Compile a query document and print the SQL the reference store would
run, with values interpolated. No database is opened.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect (sqlite3|postgres), defaults to the configured store")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "preview the count of groups")

	return cmd
}

func runPreview(opts *PreviewOptions, docPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	name := opts.Dialect
	if name == "" {
		name = opts.cfg.Store.Dialect
	}
	dialect, err := querysql.ParseDialect(name)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid dialect", err)
	}

	plan, err := loadPlan(opts.RootOptions, formatter, docPath)
	if err != nil {
		return err
	}

	op := plan.Op()
	if opts.Count {
		op = store.OpCountGroups
	}
	sql, err := store.New(nil, dialect, store.WithLogger(opts.log)).Preview(op, plan.Query())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "rendering SQL", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"dialect": string(dialect),
			"op":      op.String(),
			"sql":     sql,
		})
	}
	fmt.Fprintf(formatter.Writer, "-- %s %s (%s)\n%s\n", op, plan.Kind.Name, dialect, sql)
	return nil
}
