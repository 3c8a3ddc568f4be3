package cli

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/roach88/eavq/internal/querysql"
	"github.com/roach88/eavq/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	DB    string // SQLite database path
	DSN   string // PostgreSQL connection string
	Count bool   // count groups instead of returning rows
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query.yaml>",
		Short: "Run a query document against the object store",
		Long: `Compile a query document and run it against the reference object store.

A --dsn selects PostgreSQL; otherwise the SQLite database at --db is used.
Rows are printed one JSON object per line.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database path, defaults to the configured database")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "PostgreSQL connection string")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of groups")

	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, docPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	plan, err := loadPlan(opts.RootOptions, formatter, docPath)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, opts.RootOptions, opts.DB, opts.DSN)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	defer st.Close()

	if opts.Count {
		n, err := st.CountGroups(ctx, plan.Query())
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeStore, "query failed", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(map[string]any{"groups": n})
		}
		fmt.Fprintf(formatter.Writer, "%d group(s)\n", n)
		return nil
	}

	rows, err := st.Execute(ctx, plan.Query())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "query failed", err)
	}
	if formatter.Format == "json" {
		return formatter.Success(jsoniter.RawMessage(rows))
	}

	n := 0
	gjson.ParseBytes(rows).ForEach(func(_, row gjson.Result) bool {
		fmt.Fprintln(formatter.Writer, row.Raw)
		n++
		return true
	})
	fmt.Fprintf(formatter.Writer, "%d row(s)\n", n)
	return nil
}

// openStore opens PostgreSQL when a DSN is given or configured for the
// postgres dialect, and the SQLite database otherwise.
func openStore(ctx context.Context, opts *RootOptions, db, dsn string) (*store.Store, error) {
	if dsn == "" {
		if d, err := opts.cfg.Dialect(); err == nil && d == querysql.Postgres {
			dsn = opts.cfg.Store.DSN
		}
	}
	if dsn != "" {
		opts.log.Debug("opening store", "dialect", querysql.Postgres)
		return store.OpenPostgres(ctx, dsn, store.WithLogger(opts.log))
	}

	if db == "" {
		db = opts.cfg.Store.Database
	}
	opts.log.Debug("opening store", "dialect", querysql.SQLite, "database", db)
	return store.Open(db, store.WithLogger(opts.log))
}
