// Package querydoc reads YAML query documents and compiles them into store
// queries through the same expression builders and compilers a Go caller
// uses.
//
// A document names one entity kind and any of a filter, a grouping and a
// window:
//
//	name: payroll-by-department
//	kind: Employees
//	where:
//	  and:
//	    - {field: Age, op: gt, value: 30}
//	    - {field: Tags, op: contains, value: vip}
//	group:
//	  key: [Department]
//	  select:
//	    - {as: Payroll, fn: Sum, field: Salary}
//	window:
//	  order:
//	    - {fn: Sum, field: Salary, desc: true}
//	  select:
//	    - {as: Rank, fn: RowNumber}
package querydoc

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is one query as written in YAML.
type Document struct {
	// Name labels the query in logs and output.
	Name string `yaml:"name,omitempty"`

	// Kind is the entity kind the query runs against.
	Kind string `yaml:"kind"`

	// Where filters objects before grouping.
	Where *Clause `yaml:"where,omitempty"`

	// Group turns the query into a grouped aggregate.
	Group *Group `yaml:"group,omitempty"`

	// Window adds analytic columns over the grouped rows.
	Window *Window `yaml:"window,omitempty"`
}

// Clause is one node of a where tree. Exactly one of And, Or, Not or a
// property test (Field or Base with Op, or Field with Exists) is set.
type Clause struct {
	And []Clause `yaml:"and,omitempty"`
	Or  []Clause `yaml:"or,omitempty"`
	Not *Clause  `yaml:"not,omitempty"`

	// Field is a dotted property path. Inside Exists an empty Field is the
	// array element itself.
	Field string `yaml:"field,omitempty"`

	// Base names an envelope field (Id, Name, DateCreate, ...).
	Base string `yaml:"base,omitempty"`

	// Func applies a pseudo-member (Year, Month, Length, Count, ...) or a
	// string transform (lower, upper, trim) before the test.
	Func string `yaml:"func,omitempty"`

	Op         string `yaml:"op,omitempty"`
	Value      any    `yaml:"value,omitempty"`
	Values     []any  `yaml:"values,omitempty"`
	IgnoreCase bool   `yaml:"ignore_case,omitempty"`

	// Exists tests whether some element of an array matches the nested
	// clause. An empty mapping tests for a non-empty array.
	Exists *Clause `yaml:"exists,omitempty"`
}

// Group is the grouping section.
type Group struct {
	// Array groups by fields of the elements of this array property; Key
	// paths are then relative to an element.
	Array  string      `yaml:"array,omitempty"`
	Key    []KeyField  `yaml:"key"`
	Select []Aggregate `yaml:"select,omitempty"`
}

// KeyField is one grouping column. A plain string is shorthand for Field.
type KeyField struct {
	Field string `yaml:"field,omitempty"`
	Base  string `yaml:"base,omitempty"`
	As    string `yaml:"as,omitempty"`
}

// UnmarshalYAML accepts either a scalar path or a mapping.
func (k *KeyField) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		k.Field = node.Value
		return nil
	}
	type plain KeyField
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*k = KeyField(p)
	return nil
}

// Aggregate is one computed column of a group. Count without a field
// counts rows.
type Aggregate struct {
	As    string `yaml:"as,omitempty"`
	Fn    string `yaml:"fn"`
	Field string `yaml:"field,omitempty"`
	Base  string `yaml:"base,omitempty"`
}

// Window is the analytic section.
type Window struct {
	Partition []Term       `yaml:"partition,omitempty"`
	Order     []OrderTerm  `yaml:"order,omitempty"`
	Select    []WindowFunc `yaml:"select"`
}

// Term references a grouping field, or an aggregate of the group when Fn
// is set.
type Term struct {
	Fn    string `yaml:"fn,omitempty"`
	Field string `yaml:"field,omitempty"`
	Base  string `yaml:"base,omitempty"`
}

// OrderTerm is one ordering key.
type OrderTerm struct {
	Term `yaml:",inline"`
	Desc bool `yaml:"desc,omitempty"`
}

// WindowFunc is one window-function column. N is the Ntile bucket count;
// Offset is the Lag/Lead distance and defaults to 1.
type WindowFunc struct {
	As     string `yaml:"as"`
	Fn     string `yaml:"fn"`
	N      int    `yaml:"n,omitempty"`
	Value  *Term  `yaml:"value,omitempty"`
	Offset *int   `yaml:"offset,omitempty"`
}

// Load reads and parses a query document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query document: %w", err)
	}
	return Parse(data)
}

// Parse decodes a query document, rejecting unknown fields.
func Parse(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validate(&doc); err != nil {
		return nil, fmt.Errorf("invalid query document: %w", err)
	}
	return &doc, nil
}

func validate(d *Document) error {
	if d.Kind == "" {
		return fmt.Errorf("kind is required")
	}
	if d.Group != nil && len(d.Group.Key) == 0 && len(d.Group.Select) == 0 {
		return fmt.Errorf("group needs a key or a select list")
	}
	if d.Window != nil && len(d.Window.Select) == 0 {
		return fmt.Errorf("window select list is required and must be non-empty")
	}
	return nil
}

// empty reports whether the clause sets nothing, as an empty mapping does.
func (cl *Clause) empty() bool {
	return len(cl.And) == 0 && len(cl.Or) == 0 && cl.Not == nil && cl.Exists == nil &&
		cl.Field == "" && cl.Base == "" && cl.Func == "" && cl.Op == "" &&
		cl.Value == nil && len(cl.Values) == 0 && !cl.IgnoreCase
}
