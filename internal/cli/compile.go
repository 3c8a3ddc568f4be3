package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/eavq/internal/canon"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/querydoc"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query.yaml>",
		Short: "Compile a query document to filter algebra and descriptors",
		Long: `Compile a YAML query document against the CUE entity schema.

The where clause becomes a filter algebra tree; group and window sections
become group-key, aggregate and window-function descriptors. The result is
printed, or written as indented canonical JSON with --output.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, docPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	plan, err := loadPlan(opts.RootOptions, formatter, docPath)
	if err != nil {
		return err
	}

	if opts.Output != "" {
		data, err := plan.JSON()
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeCompile, "rendering plan", err)
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "writing output file", err)
		}
		formatter.VerboseLog("Wrote plan to %s", opts.Output)
	}

	if formatter.Format == "json" {
		doc, err := plan.Document()
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeCompile, "rendering plan", err)
		}
		return formatter.Success(doc)
	}
	return outputPlanText(formatter, plan, opts.Output)
}

// outputPlanText prints a human-readable plan summary.
func outputPlanText(f *OutputFormatter, plan *querydoc.Plan, outputFile string) error {
	w := f.Writer
	fmt.Fprintf(w, "✓ Compiled %s query over %s\n", plan.Op(), plan.Kind.Name)

	if plan.Where != nil {
		where, err := whereText(plan.Where)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeCompile, "rendering where clause", err)
		}
		fmt.Fprintf(w, "\nWhere:\n  %s\n", where)
	}

	if len(plan.Keys) > 0 {
		fmt.Fprintln(w, "\nKeys:")
		for _, k := range plan.Keys {
			fmt.Fprintf(w, "  %s: %s (%s)\n", k.Alias, k.FieldPath, k.Type)
		}
	}
	if len(plan.Aggregates) > 0 {
		fmt.Fprintln(w, "\nAggregates:")
		for _, a := range plan.Aggregates {
			fmt.Fprintf(w, "  %s: %s(%s)\n", a.Alias, a.Function, a.FieldPath)
		}
	}
	if len(plan.Partition) > 0 {
		parts := make([]string, len(plan.Partition))
		for i, p := range plan.Partition {
			parts[i] = p.FieldPath
		}
		fmt.Fprintf(w, "\nPartition:\n  %s\n", strings.Join(parts, ", "))
	}
	if len(plan.Order) > 0 {
		orders := make([]string, len(plan.Order))
		for i, o := range plan.Order {
			orders[i] = o.FieldPath
			if o.Descending {
				orders[i] += " desc"
			}
		}
		fmt.Fprintf(w, "\nOrder:\n  %s\n", strings.Join(orders, ", "))
	}
	if len(plan.Functions) > 0 {
		fmt.Fprintln(w, "\nFunctions:")
		for _, fn := range plan.Functions {
			fmt.Fprintf(w, "  %s: %s(%s)\n", fn.Alias, fn.Function, fn.FieldPath)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote plan to %s\n", outputFile)
	}
	return nil
}

// whereText renders a filter as compact canonical JSON.
func whereText(e filter.Expression) (string, error) {
	doc, err := filter.Document(e)
	if err != nil {
		return "", err
	}
	data, err := canon.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
