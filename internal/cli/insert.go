package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/eavq/internal/store"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	DB  string
	DSN string
}

// entityInput is one object of an insert file.
type entityInput struct {
	Name     string         `json:"name"`
	Note     string         `json:"note"`
	ParentID *int64         `json:"parentId"`
	OwnerID  *int64         `json:"ownerId"`
	Props    map[string]any `json:"props"`
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <kind> <objects.json>",
		Short: "Insert objects of one entity kind into the store",
		Long: `Insert a JSON array of objects into the reference object store.

Each object has a name, an optional note and a props document keyed by
property name. Props are checked against the kind's schema and all objects
are stored in one transaction.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database path, defaults to the configured database")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "PostgreSQL connection string")

	return cmd
}

func runInsert(ctx context.Context, opts *InsertOptions, kindName, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, err := loadRegistry(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	kind, ok := reg.Kind(kindName)
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("unknown entity kind %q", kindName), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to read objects file", err)
	}
	var inputs []entityInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBadInput, "objects file must be a JSON array", err)
	}

	entities := make([]store.Entity, len(inputs))
	for i, in := range inputs {
		entities[i] = store.Entity{
			ParentID: in.ParentID,
			OwnerID:  in.OwnerID,
			Name:     in.Name,
			Note:     in.Note,
			Props:    in.Props,
		}
	}

	st, err := openStore(ctx, opts.RootOptions, opts.DB, opts.DSN)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err)
	}
	defer st.Close()

	ids, err := st.InsertAll(ctx, kind, entities)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "insert failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"kind": kind.Name, "ids": ids})
	}
	fmt.Fprintf(formatter.Writer, "✓ Inserted %d %s object(s)\n", len(ids), kind.Name)
	return nil
}
