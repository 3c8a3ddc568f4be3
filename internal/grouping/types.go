// Package grouping compiles key selectors and result selectors of grouped
// queries into field and aggregate descriptors.
//
//	key:    x => new { x.Department, x.Address.City }
//	result: g => new { Key = g.Key, Total = Agg.Sum(g, x => x.Salary), N = Agg.Count(g) }
//
// compiles to two GroupFieldRequests (aliases Department, City) and two
// AggregateRequests ({Sum, Salary, Total}, {Count, *, N}). The Key member of
// the result selector names the grouping itself and yields no aggregate.
package grouping

import (
	"fmt"

	"github.com/roach88/eavq/internal/canon"
	"github.com/roach88/eavq/internal/schema"
)

// CountAll is the field path of a row count.
const CountAll = "*"

// GroupFieldRequest is one grouping column. Alias is unique within a request
// and is the key of the column in result rows.
type GroupFieldRequest struct {
	FieldPath   string
	Alias       string
	IsBaseField bool
	Type        *schema.Type
}

// Function is an aggregate function.
type Function int

const (
	Sum Function = iota
	Average
	Min
	Max
	Count
)

var functionNames = [...]string{Sum: "Sum", Average: "Average", Min: "Min", Max: "Max", Count: "Count"}

func (f Function) String() string {
	if f < 0 || int(f) >= len(functionNames) {
		return fmt.Sprintf("Function(%d)", int(f))
	}
	return functionNames[f]
}

// ParseFunction maps a method name to its aggregate Function.
func ParseFunction(s string) (Function, bool) {
	for i, name := range functionNames {
		if name == s {
			return Function(i), true
		}
	}
	return 0, false
}

// AggregateRequest is one computed column. FieldPath is CountAll for a
// row count.
type AggregateRequest struct {
	FieldPath   string
	Function    Function
	Alias       string
	IsBaseField bool
	Type        *schema.Type
}

// ColumnName is the synthesized name under which a window layer finds a
// precomputed aggregate: Agg_<Function>_<fieldPath>, or Agg_Count_Count for
// a row count.
func (a AggregateRequest) ColumnName() string {
	path := a.FieldPath
	if path == CountAll {
		path = "Count"
	}
	return "Agg_" + a.Function.String() + "_" + path
}

// CountOnly is the synthetic request behind a row count: Count(*) aliased
// Count.
func CountOnly() []AggregateRequest {
	return []AggregateRequest{{FieldPath: CountAll, Function: Count, Alias: "Count", Type: schema.Int}}
}

// Fingerprint hashes a grouping request so equal shapes share cache
// entries.
func Fingerprint(keys []GroupFieldRequest, aggs []AggregateRequest) (string, error) {
	doc := map[string]any{"keys": keyDocs(keys), "aggregates": aggregateDocs(aggs)}
	return canon.Hash(canon.DomainGrouping, doc)
}

func keyDocs(keys []GroupFieldRequest) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = map[string]any{"path": k.FieldPath, "alias": k.Alias, "base": k.IsBaseField, "type": k.Type.String()}
	}
	return out
}

func aggregateDocs(aggs []AggregateRequest) []any {
	out := make([]any, len(aggs))
	for i, a := range aggs {
		out[i] = map[string]any{"path": a.FieldPath, "function": a.Function.String(), "alias": a.Alias, "base": a.IsBaseField}
	}
	return out
}
