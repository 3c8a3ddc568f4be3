// Package window compiles analytic specifications evaluated over grouped
// rows: partitions, orderings and window-function calls in a result
// selector.
//
// Entries reference either a grouping field by property path or an
// aggregate call. An aggregate reference is named by its synthesized column
// (Agg_Sum_Salary, Agg_Count_Count) so the downstream layer can locate or
// add the precomputed value.
package window

import (
	"fmt"

	"github.com/roach88/eavq/internal/canon"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/schema"
)

// Function is a window function.
type Function int

const (
	RowNumber Function = iota
	Rank
	DenseRank
	Ntile
	Lag
	Lead
	FirstValue
	LastValue
	Sum
	Average
	Min
	Max
	Count
)

var functionNames = [...]string{
	RowNumber:  "RowNumber",
	Rank:       "Rank",
	DenseRank:  "DenseRank",
	Ntile:      "Ntile",
	Lag:        "Lag",
	Lead:       "Lead",
	FirstValue: "FirstValue",
	LastValue:  "LastValue",
	Sum:        "Sum",
	Average:    "Average",
	Min:        "Min",
	Max:        "Max",
	Count:      "Count",
}

func (f Function) String() string {
	if f < 0 || int(f) >= len(functionNames) {
		return fmt.Sprintf("Function(%d)", int(f))
	}
	return functionNames[f]
}

// ParseFunction maps a Win method name to its Function.
func ParseFunction(s string) (Function, bool) {
	for i, name := range functionNames {
		if name == s {
			return Function(i), true
		}
	}
	return 0, false
}

// Ranking reports whether f numbers rows and takes no value argument.
func (f Function) Ranking() bool {
	return f == RowNumber || f == Rank || f == DenseRank || f == Ntile
}

// Offset reports whether f reads a neighbouring row.
func (f Function) Offset() bool { return f == Lag || f == Lead }

// Ref is a value a window entry operates on: a grouping field or a
// precomputed aggregate.
type Ref struct {
	// FieldPath is the property path of a grouping field, or the
	// synthesized column name of an aggregate.
	FieldPath   string
	IsBaseField bool
	IsAggregate bool
	// Aggregate describes the precomputed column when IsAggregate is set.
	Aggregate grouping.AggregateRequest
	Type      *schema.Type
}

// FieldRequest is one partition entry.
type FieldRequest struct {
	Ref
}

// OrderRequest is one ordering entry.
type OrderRequest struct {
	Ref
	Descending bool
}

// FuncRequest is one window-function column. FieldPath is empty for ranking
// functions and grouping.CountAll for a plain row count. Argument is the
// bucket count of Ntile or the row offset of Lag and Lead.
type FuncRequest struct {
	Ref
	Function Function
	Alias    string
	Argument int
}

// OrderSpec is one ordering key as written by the caller.
type OrderSpec struct {
	Key        *expr.Lambda
	Descending bool
}

// Asc orders by key ascending.
func Asc(key *expr.Lambda) OrderSpec { return OrderSpec{Key: key} }

// Desc orders by key descending.
func Desc(key *expr.Lambda) OrderSpec { return OrderSpec{Key: key, Descending: true} }

// Aggregates lists the aggregate columns the window entries depend on,
// deduplicated by column name in first-seen order.
func Aggregates(partition []FieldRequest, order []OrderRequest, funcs []FuncRequest) []grouping.AggregateRequest {
	var out []grouping.AggregateRequest
	seen := map[string]bool{}
	add := func(r Ref) {
		if !r.IsAggregate || seen[r.FieldPath] {
			return
		}
		seen[r.FieldPath] = true
		out = append(out, r.Aggregate)
	}
	for _, p := range partition {
		add(p.Ref)
	}
	for _, o := range order {
		add(o.Ref)
	}
	for _, f := range funcs {
		add(f.Ref)
	}
	return out
}

// Fingerprint hashes a window request.
func Fingerprint(partition []FieldRequest, order []OrderRequest, funcs []FuncRequest) (string, error) {
	parts := make([]any, len(partition))
	for i, p := range partition {
		parts[i] = refDoc(p.Ref)
	}
	orders := make([]any, len(order))
	for i, o := range order {
		d := refDoc(o.Ref)
		d["desc"] = o.Descending
		orders[i] = d
	}
	fns := make([]any, len(funcs))
	for i, f := range funcs {
		d := refDoc(f.Ref)
		d["function"] = f.Function.String()
		d["alias"] = f.Alias
		d["argument"] = f.Argument
		fns[i] = d
	}
	return canon.Hash(canon.DomainWindow, map[string]any{"partition": parts, "order": orders, "functions": fns})
}

func refDoc(r Ref) map[string]any {
	return map[string]any{"path": r.FieldPath, "base": r.IsBaseField, "aggregate": r.IsAggregate}
}
