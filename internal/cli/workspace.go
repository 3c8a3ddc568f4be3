package cli

import (
	"errors"
	"fmt"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/querydoc"
	"github.com/roach88/eavq/internal/schema"
)

// loadRegistry compiles the configured schema directory. Every schema error
// is reported before the command fails.
func loadRegistry(opts *RootOptions, f *OutputFormatter) (*schema.Registry, error) {
	dir := opts.cfg.Schema
	f.VerboseLog("Loading schema from %s", dir)

	reg, errs := schema.Load(dir)
	if len(errs) > 0 {
		return nil, outputSchemaErrors(f, errs)
	}
	opts.log.Debug("schema loaded", "dir", dir, "kinds", reg.Names())
	return reg, nil
}

// loadPlan parses and compiles the query document at path.
func loadPlan(opts *RootOptions, f *OutputFormatter, path string) (*querydoc.Plan, error) {
	reg, err := loadRegistry(opts, f)
	if err != nil {
		return nil, err
	}

	policy, err := opts.cfg.Policy()
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, "invalid path policy", err)
	}

	doc, err := querydoc.Load(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDocument, "invalid query document", err)
	}

	plan, err := querydoc.Compile(doc, reg, pathres.New(policy))
	if err != nil {
		return nil, outputCompileError(f, err)
	}
	opts.log.Debug("query compiled", "doc", path, "kind", plan.Kind.Name, "op", plan.Op().String())
	return plan, nil
}

// outputCompileError reports an expression compile failure. The failure
// category travels in the error details so scripts can branch on it.
func outputCompileError(f *OutputFormatter, err error) error {
	var ce *compileerr.Error
	if !errors.As(err, &ce) {
		return f.Fail(ExitFailure, ErrCodeCompile, "query failed to compile", err)
	}

	details := map[string]any{
		"category": string(ce.Code),
		"error":    err.Error(),
	}
	if ce.Path != "" {
		details["path"] = ce.Path
	}
	if ce.Limit > 0 {
		details["limit"] = ce.Limit
	}
	if f.Format == "json" {
		_ = f.Error(ErrCodeCompile, "query failed to compile", details)
	} else {
		fmt.Fprintf(f.Writer, "✗ Query failed to compile\n\n  %s: %s\n", ce.Code, err)
	}
	return WrapExitError(ExitFailure, fmt.Sprintf("%s: %s", ErrCodeCompile, ce.Code), err)
}

// outputSchemaErrors reports every schema error, with CUE source positions
// when they are known.
func outputSchemaErrors(f *OutputFormatter, errs []error) error {
	if f.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			cliErrors[i] = CLIError{Code: ErrCodeSchema, Message: err.Error()}
		}
		if err := json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("schema failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(f.Writer, "✗ Schema failed to compile")
	fmt.Fprintln(f.Writer)
	for _, err := range errs {
		var ce *schema.CompileError
		if errors.As(err, &ce) && ce.Pos.IsValid() {
			fmt.Fprintf(f.Writer, "%s:%d:%d\n", ce.Pos.Filename(), ce.Pos.Line(), ce.Pos.Column())
			fmt.Fprintf(f.Writer, "  %s: %s: %s\n\n", ErrCodeSchema, ce.Field, ce.Message)
			continue
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n\n", ErrCodeSchema, err)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("schema failed with %d error(s)", len(errs)))
}
