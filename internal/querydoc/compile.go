package querydoc

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/predicate"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/window"
)

// compiler carries the builders of one document. Lambdas take the entity
// envelope so base fields and properties can be mixed freely.
type compiler struct {
	b       *expr.Builder
	preds   *predicate.Compiler
	groups  *grouping.Compiler
	windows *window.Compiler
}

// Compile resolves the document's kind in reg and compiles its sections
// with paths.
func Compile(d *Document, reg *schema.Registry, paths *pathres.Resolver) (*Plan, error) {
	kind, ok := reg.Kind(d.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q (have %s)", d.Kind, strings.Join(reg.Names(), ", "))
	}
	groups := grouping.New(paths)
	c := &compiler{
		b:       expr.Entity(kind),
		preds:   predicate.New(paths),
		groups:  groups,
		windows: window.New(groups),
	}

	plan := &Plan{Name: d.Name, Kind: kind}
	if d.Where != nil {
		body, err := c.clause(d.Where, c.b.Param())
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		plan.Where, err = c.preds.CompileBase(c.b.Lambda(body))
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
	}
	if d.Group != nil {
		if err := c.group(d.Group, d.Window, plan); err != nil {
			return nil, fmt.Errorf("group: %w", err)
		}
	}
	if d.Window != nil {
		if d.Group == nil {
			return nil, fmt.Errorf("window: a window needs a group section")
		}
		if err := c.window(d.Window, d.Group.Select, plan); err != nil {
			return nil, fmt.Errorf("window: %w", err)
		}
	}
	return plan, nil
}

// clause builds the boolean expression of one where node. root is the
// envelope parameter or, inside exists, the array element.
func (c *compiler) clause(cl *Clause, root *expr.Param) (expr.Expr, error) {
	switch {
	case len(cl.And) > 0:
		operands, err := c.clauses(cl.And, root)
		if err != nil {
			return nil, fmt.Errorf("and: %w", err)
		}
		return expr.And(operands...), nil
	case len(cl.Or) > 0:
		operands, err := c.clauses(cl.Or, root)
		if err != nil {
			return nil, fmt.Errorf("or: %w", err)
		}
		return expr.Or(operands...), nil
	case cl.Not != nil:
		inner, err := c.clause(cl.Not, root)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return expr.Not(inner), nil
	case cl.Exists != nil:
		return c.exists(cl, root)
	}
	return c.test(cl, root)
}

func (c *compiler) clauses(list []Clause, root *expr.Param) ([]expr.Expr, error) {
	out := make([]expr.Expr, 0, len(list))
	for i := range list {
		e, err := c.clause(&list[i], root)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *compiler) exists(cl *Clause, root *expr.Param) (expr.Expr, error) {
	e, err := c.member(cl.Field, cl.Base, root)
	if err != nil {
		return nil, err
	}
	arr, ok := e.(*expr.Member)
	if !ok || !arr.Type.Is(schema.KindArray) {
		return nil, fmt.Errorf("exists needs an array property, %q is not one", cl.Field)
	}
	if cl.Exists.empty() {
		return arr.Any(nil), nil
	}
	var inner error
	call := arr.Any(func(item *expr.Param) expr.Expr {
		body, err := c.clause(cl.Exists, item)
		if err != nil {
			inner = err
			return expr.Val(false)
		}
		return body
	})
	if inner != nil {
		return nil, fmt.Errorf("exists: %w", inner)
	}
	return call, nil
}

// test builds a single property test.
func (c *compiler) test(cl *Clause, root *expr.Param) (expr.Expr, error) {
	target, t, err := c.target(cl, root)
	if err != nil {
		return nil, err
	}

	switch cl.Op {
	case "":
		if cl.Value != nil {
			return nil, fmt.Errorf("%s: value without op", describe(cl))
		}
		return target, nil
	case "null":
		return expr.Eq(target, expr.Null()), nil
	case "not_null":
		return expr.Ne(target, expr.Null()), nil
	case "in":
		values := make([]any, len(cl.Values))
		for i, v := range cl.Values {
			if values[i], err = convert(v, t); err != nil {
				return nil, fmt.Errorf("%s value %d: %w", describe(cl), i, err)
			}
		}
		return expr.In(values, target), nil
	case "has_key":
		var key *schema.Type
		if t != nil && t.Is(schema.KindDictionary) {
			key = t.Key
		}
		k, err := convert(cl.Value, key)
		if err != nil {
			return nil, fmt.Errorf("%s key: %w", describe(cl), err)
		}
		return expr.Method(target, "ContainsKey", k), nil
	case "contains", "starts_with", "ends_with":
		vt := t
		if t != nil && t.Is(schema.KindArray) {
			vt = t.Elem
		}
		v, err := convert(cl.Value, vt)
		if err != nil {
			return nil, fmt.Errorf("%s value: %w", describe(cl), err)
		}
		args := []any{v}
		if cl.IgnoreCase {
			args = append(args, expr.OrdinalIgnoreCase)
		}
		return expr.Method(target, stringMethods[cl.Op], args...), nil
	}

	rel, ok := relations[cl.Op]
	if !ok {
		return nil, fmt.Errorf("%s: unknown op %q", describe(cl), cl.Op)
	}
	if cl.Value == nil {
		return rel(target, expr.Null()), nil
	}
	v, err := convert(cl.Value, t)
	if err != nil {
		return nil, fmt.Errorf("%s value: %w", describe(cl), err)
	}
	return rel(target, expr.Val(v)), nil
}

var relations = map[string]func(l, r any) *expr.Binary{
	"eq": expr.Eq,
	"ne": expr.Ne,
	"gt": expr.Gt,
	"ge": expr.Ge,
	"lt": expr.Lt,
	"le": expr.Le,
}

var stringMethods = map[string]string{
	"contains":    "Contains",
	"starts_with": "StartsWith",
	"ends_with":   "EndsWith",
}

var transforms = map[string]string{
	"lower": "ToLower",
	"upper": "ToUpper",
	"trim":  "Trim",
}

// target is the tested operand and the type its values convert to.
func (c *compiler) target(cl *Clause, root *expr.Param) (expr.Expr, *schema.Type, error) {
	e, err := c.member(cl.Field, cl.Base, root)
	if err != nil {
		return nil, nil, err
	}
	if cl.Func == "" {
		return e, typeOf(e), nil
	}
	if method, ok := transforms[cl.Func]; ok {
		return expr.Method(e, method), schema.String, nil
	}
	m, ok := e.(*expr.Member)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %s needs a member", describe(cl), cl.Func)
	}
	pm := m.Dot(cl.Func)
	if pm.Type == nil {
		return nil, nil, fmt.Errorf("%s: %s does not apply to %s", describe(cl), cl.Func, m.Type)
	}
	return pm, pm.Type, nil
}

// member resolves a dotted property path or a base field from root. An
// element parameter with no path is the element itself.
func (c *compiler) member(field, base string, root *expr.Param) (expr.Expr, error) {
	switch {
	case field != "" && base != "":
		return nil, fmt.Errorf("field %q and base %q are exclusive", field, base)
	case base != "":
		if root != c.b.Param() {
			return nil, fmt.Errorf("base field %q inside an array element", base)
		}
		if _, ok := schema.BaseField(base); !ok {
			return nil, fmt.Errorf("unknown base field %q", base)
		}
		return c.b.Base(base), nil
	case root == c.b.Param():
		if field == "" {
			return nil, fmt.Errorf("field or base is required")
		}
		return c.b.Prop(field), nil
	case field == "":
		return root, nil
	}
	var m *expr.Member
	for i, seg := range strings.Split(field, ".") {
		if i == 0 {
			m = root.Dot(seg)
			continue
		}
		m = m.Dot(seg)
	}
	return m, nil
}

func typeOf(e expr.Expr) *schema.Type {
	switch n := e.(type) {
	case *expr.Member:
		return n.Type
	case *expr.Param:
		return n.Type
	}
	return nil
}

// convert coerces a YAML scalar to the Go value the compilers expect for
// the declared type t. Values of unknown type pass through.
func convert(v any, t *schema.Type) (any, error) {
	if v == nil || t == nil {
		return v, nil
	}
	switch t.Kind {
	case schema.KindString, schema.KindEnum:
		return cast.ToStringE(v)
	case schema.KindInt, schema.KindReference:
		return cast.ToInt64E(v)
	case schema.KindFloat:
		return cast.ToFloat64E(v)
	case schema.KindBool:
		return cast.ToBoolE(v)
	case schema.KindDecimal:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		return decimal.NewFromString(s)
	case schema.KindDateTime:
		return cast.ToTimeE(v)
	case schema.KindGuid:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, err
		}
		return uuid.Parse(s)
	case schema.KindArray:
		list, ok := v.([]any)
		if !ok {
			return convert(v, t.Elem)
		}
		out := make([]any, len(list))
		for i, e := range list {
			var err error
			if out[i], err = convert(e, t.Elem); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return v, nil
}

func describe(cl *Clause) string {
	name := cl.Field
	if cl.Base != "" {
		name = cl.Base
	}
	if cl.Func != "" {
		name += "." + cl.Func
	}
	return name
}

func (c *compiler) group(g *Group, w *Window, plan *Plan) error {
	fields := make([]expr.Binding, 0, len(g.Key))
	var item *expr.Param
	if g.Array != "" {
		arr := c.b.Prop(g.Array)
		if arr.Type == nil || !arr.Type.Is(schema.KindArray) {
			return fmt.Errorf("array %q is not an array property", g.Array)
		}
		item = expr.Item("e", arr.Type.Elem)
	}
	for i, k := range g.Key {
		root := c.b.Param()
		if item != nil {
			root = item
		}
		m, err := c.member(k.Field, k.Base, root)
		if err != nil {
			return fmt.Errorf("key %d: %w", i, err)
		}
		fields = append(fields, expr.As(k.As, m))
	}

	if len(fields) > 0 {
		var err error
		if item != nil {
			plan.Keys, err = c.groups.CompileArrayKey(c.b.Lambda(c.b.Prop(g.Array)), expr.Func(expr.Record(fields...), item))
		} else {
			plan.Keys, err = c.groups.CompileKey(c.b.Lambda(expr.Record(fields...)))
		}
		if err != nil {
			return err
		}
	}

	if w != nil {
		// The window compiler splits aggregates from window functions.
		return nil
	}
	gp := expr.Group()
	members, err := c.aggregates(g.Select, gp)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	plan.Aggregates, err = c.groups.CompileAggregates(expr.Func(expr.Record(members...), gp))
	return err
}

func (c *compiler) aggregates(list []Aggregate, gp *expr.Param) ([]expr.Binding, error) {
	out := make([]expr.Binding, 0, len(list))
	for i, a := range list {
		call, err := c.aggregateCall(Term{Fn: a.Fn, Field: a.Field, Base: a.Base}, gp)
		if err != nil {
			return nil, fmt.Errorf("select %d: %w", i, err)
		}
		out = append(out, expr.As(a.As, call))
	}
	return out, nil
}

var aggregateCalls = map[string]func(g *expr.Param, sel *expr.Lambda) *expr.Call{
	"Sum":     expr.Sum,
	"Average": expr.Average,
	"Min":     expr.Min,
	"Max":     expr.Max,
}

func (c *compiler) aggregateCall(t Term, gp *expr.Param) (*expr.Call, error) {
	if t.Fn == "Count" && t.Field == "" && t.Base == "" {
		return expr.Count(gp), nil
	}
	m, err := c.member(t.Field, t.Base, c.b.Param())
	if err != nil {
		return nil, err
	}
	sel := c.b.Lambda(m)
	if t.Fn == "Count" {
		return expr.Count(gp, sel), nil
	}
	fn, ok := aggregateCalls[t.Fn]
	if !ok {
		// Let the grouping compiler report the unknown function.
		return expr.Static(expr.ClassAgg, t.Fn, gp, sel), nil
	}
	return fn(gp, sel), nil
}

func (c *compiler) window(w *Window, selects []Aggregate, plan *Plan) error {
	if len(w.Partition) > 0 {
		spec, err := c.partitionSpec(w.Partition)
		if err != nil {
			return fmt.Errorf("partition: %w", err)
		}
		if plan.Partition, err = c.windows.CompilePartition(spec); err != nil {
			return fmt.Errorf("partition: %w", err)
		}
	}

	specs := make([]window.OrderSpec, 0, len(w.Order))
	for i, o := range w.Order {
		key, err := c.specLambda(o.Term)
		if err != nil {
			return fmt.Errorf("order %d: %w", i, err)
		}
		if o.Desc {
			specs = append(specs, window.Desc(key))
		} else {
			specs = append(specs, window.Asc(key))
		}
	}
	if len(specs) > 0 {
		var err error
		if plan.Order, err = c.windows.CompileOrder(specs...); err != nil {
			return fmt.Errorf("order: %w", err)
		}
	}

	gp := expr.Group()
	members, err := c.aggregates(selects, gp)
	if err != nil {
		return err
	}
	for i, f := range w.Select {
		call, err := c.windowCall(f, gp)
		if err != nil {
			return fmt.Errorf("select %d: %w", i, err)
		}
		members = append(members, expr.As(f.As, call))
	}
	plan.Aggregates, plan.Functions, err = c.windows.CompileSelect(expr.Func(expr.Record(members...), gp))
	return err
}

// partitionSpec builds one lambda over all partition terms. Fields use the
// envelope parameter, aggregates the group parameter, so the two cannot
// be mixed.
func (c *compiler) partitionSpec(terms []Term) (*expr.Lambda, error) {
	aggregates := terms[0].Fn != ""
	gp := expr.Group()
	members := make([]expr.Binding, 0, len(terms))
	for i, t := range terms {
		if (t.Fn != "") != aggregates {
			return nil, fmt.Errorf("term %d: fields and aggregates cannot be mixed", i)
		}
		var e expr.Expr
		var err error
		if aggregates {
			e, err = c.aggregateCall(t, gp)
		} else {
			e, err = c.member(t.Field, t.Base, c.b.Param())
		}
		if err != nil {
			return nil, fmt.Errorf("term %d: %w", i, err)
		}
		members = append(members, expr.As("", e))
	}
	if aggregates {
		return expr.Func(expr.Record(members...), gp), nil
	}
	return c.b.Lambda(expr.Record(members...)), nil
}

func (c *compiler) specLambda(t Term) (*expr.Lambda, error) {
	if t.Fn != "" {
		gp := expr.Group()
		call, err := c.aggregateCall(t, gp)
		if err != nil {
			return nil, err
		}
		return expr.Func(call, gp), nil
	}
	m, err := c.member(t.Field, t.Base, c.b.Param())
	if err != nil {
		return nil, err
	}
	return c.b.Lambda(m), nil
}

// windowValue is the value argument of a window function: a field
// selector, or an aggregate over the result's group gp.
func (c *compiler) windowValue(t *Term, gp *expr.Param) (expr.Expr, error) {
	if t == nil {
		return nil, fmt.Errorf("value is required")
	}
	if t.Fn != "" {
		return c.aggregateCall(*t, gp)
	}
	m, err := c.member(t.Field, t.Base, c.b.Param())
	if err != nil {
		return nil, err
	}
	return c.b.Lambda(m), nil
}

func (c *compiler) windowCall(f WindowFunc, gp *expr.Param) (*expr.Call, error) {
	switch f.Fn {
	case "RowNumber":
		return expr.RowNumber(), nil
	case "Rank":
		return expr.Rank(), nil
	case "DenseRank":
		return expr.DenseRank(), nil
	case "Ntile":
		return expr.Ntile(f.N), nil
	case "Count":
		if f.Value == nil {
			return expr.WinCount(), nil
		}
	}

	v, err := c.windowValue(f.Value, gp)
	if err != nil {
		return nil, err
	}
	switch f.Fn {
	case "Lag", "Lead":
		offset := 1
		if f.Offset != nil {
			offset = *f.Offset
		}
		if f.Fn == "Lag" {
			return expr.Lag(v, offset), nil
		}
		return expr.Lead(v, offset), nil
	case "FirstValue":
		return expr.FirstValue(v), nil
	case "LastValue":
		return expr.LastValue(v), nil
	case "Sum":
		return expr.WinSum(v), nil
	case "Average":
		return expr.WinAverage(v), nil
	case "Min":
		return expr.WinMin(v), nil
	case "Max":
		return expr.WinMax(v), nil
	case "Count":
		return expr.WinCount(v), nil
	}
	// Let the window compiler report the unknown function.
	return expr.Static(expr.ClassWin, f.Fn, v), nil
}
