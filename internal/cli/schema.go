package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/eavq/internal/schema"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [dir]",
		Short: "Validate CUE entity definitions and list their properties",
		Long: `Compile the CUE entity definitions in dir (default: the configured schema
directory) and list every entity kind with its declared properties.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				rootOpts.cfg.Schema = args[0]
			}
			return runSchema(rootOpts, cmd)
		},
	}
	return cmd
}

func runSchema(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	reg, err := loadRegistry(opts, formatter)
	if err != nil {
		return err
	}

	if formatter.Format == "json" {
		kinds := make(map[string]any)
		for _, name := range reg.Names() {
			kind, _ := reg.Kind(name)
			kinds[name] = fieldTypes(kind.Fields)
		}
		return formatter.Success(map[string]any{"kinds": kinds})
	}

	names := reg.Names()
	fmt.Fprintf(formatter.Writer, "✓ %d entity kind(s) in %s\n", len(names), opts.cfg.Schema)
	for _, name := range names {
		kind, _ := reg.Kind(name)
		fmt.Fprintf(formatter.Writer, "\n%s:\n", name)
		for _, f := range kind.Fields {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", f.Name, f.Type)
		}
	}
	return nil
}

// fieldTypes maps property names to their type notation.
func fieldTypes(fields []schema.Field) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Type.String()
	}
	return out
}
