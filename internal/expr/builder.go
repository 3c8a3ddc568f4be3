package expr

import (
	"strings"

	"github.com/roach88/eavq/internal/schema"
)

// Builder produces typed member accesses and lambdas for one entity kind.
// A Builder is immutable and safe to share.
type Builder struct {
	kind  *schema.EntityKind
	param *Param
}

// Props returns a Builder whose lambdas take the property bag itself:
// b.Prop("Age") is p.Age.
func Props(kind *schema.EntityKind) *Builder {
	return &Builder{
		kind:  kind,
		param: &Param{Name: "p", Role: RoleProps, Type: kind.PropsType()},
	}
}

// Entity returns a Builder whose lambdas take the object envelope:
// b.Base("Name") is o.Name and b.Prop("Age") is o.Props.Age.
func Entity(kind *schema.EntityKind) *Builder {
	return &Builder{
		kind:  kind,
		param: &Param{Name: "o", Role: RoleEntity, Type: EnvelopeType(kind)},
	}
}

// EnvelopeType is the object envelope of kind: the base fields plus the
// property bag under the root marker.
func EnvelopeType(kind *schema.EntityKind) *schema.Type {
	fields := make([]schema.Field, 0, len(schema.BaseFields)+1)
	fields = append(fields, schema.BaseFields...)
	fields = append(fields, schema.F(schema.RootMarker, kind.PropsType()))
	return schema.ObjectOf(kind.Name, fields...)
}

// Kind returns the entity kind the builder is bound to.
func (b *Builder) Kind() *schema.EntityKind { return b.kind }

// Param returns the lambda parameter used by Prop, Base and Lambda.
func (b *Builder) Param() *Param { return b.param }

// Prop accesses a property-bag field. Dotted paths walk nested business
// classes: "Address.City".
func (b *Builder) Prop(path string) *Member {
	var m *Member
	if b.param.Role == RoleEntity {
		m = b.param.Dot(schema.RootMarker)
	}
	for i, seg := range strings.Split(path, ".") {
		if i == 0 && m == nil {
			m = b.param.Dot(seg)
			continue
		}
		m = m.Dot(seg)
	}
	return m
}

// Base accesses an envelope field.
func (b *Builder) Base(name string) *Member {
	t, _ := schema.BaseField(name)
	return &Member{Target: b.param, Name: name, Type: t}
}

// Lambda wraps body in a single-parameter lambda over the builder's param.
func (b *Builder) Lambda(body Expr) *Lambda {
	return &Lambda{Params: []*Param{b.param}, Body: body}
}

// Item returns a fresh parameter for one element of an array of t.
func Item(name string, t *schema.Type) *Param {
	return &Param{Name: name, Role: RoleItem, Type: t}
}

// Group returns a parameter standing for a group of rows.
func Group() *Param {
	return &Param{Name: "g", Role: RoleGroup}
}

// Dot accesses a member of the parameter.
func (p *Param) Dot(name string) *Member {
	return dot(p, p.Type, name)
}

// Key is g.Key on a group parameter.
func (p *Param) Key() *Member { return p.Dot("Key") }

// Dot accesses a member of m.
func (m *Member) Dot(name string) *Member {
	return dot(m, m.Type, name)
}

// At indexes a dictionary by key or an array by position.
func (m *Member) At(key any) *Index {
	var t *schema.Type
	if m.Type != nil && (m.Type.Kind == schema.KindDictionary || m.Type.Kind == schema.KindArray) {
		t = m.Type.Elem
	}
	return &Index{Target: m, Key: Value(key), Type: t}
}

// Dot accesses a member of an indexed element.
func (ix *Index) Dot(name string) *Member {
	return dot(ix, ix.Type, name)
}

// Len is the Length pseudo-member.
func (m *Member) Len() *Member { return m.Dot("Length") }

// Count is the Count pseudo-member.
func (m *Member) Count() *Member { return m.Dot("Count") }

// Method calls an instance method on m.
func (m *Member) Method(name string, args ...any) *Call { return Method(m, name, args...) }

// Then calls an instance method on the result of c.
func (c *Call) Then(name string, args ...any) *Call { return Method(c, name, args...) }

func (m *Member) Contains(v any, mode ...StringComparison) *Call {
	return Method(m, "Contains", withMode(v, mode)...)
}

func (m *Member) StartsWith(v any, mode ...StringComparison) *Call {
	return Method(m, "StartsWith", withMode(v, mode)...)
}

func (m *Member) EndsWith(v any, mode ...StringComparison) *Call {
	return Method(m, "EndsWith", withMode(v, mode)...)
}

func (m *Member) ToLower() *Call { return Method(m, "ToLower") }
func (m *Member) ToUpper() *Call { return Method(m, "ToUpper") }
func (m *Member) Trim() *Call    { return Method(m, "Trim") }

// ContainsKey tests a dictionary for a key.
func (m *Member) ContainsKey(key any) *Call { return Method(m, "ContainsKey", key) }

// Any tests whether some element of an array matches pred. A nil pred tests
// for a non-empty array.
func (m *Member) Any(pred func(item *Param) Expr) *Call {
	if pred == nil {
		return Method(m, "Any")
	}
	var elem *schema.Type
	if m.Type != nil {
		elem = m.Type.Elem
	}
	it := Item("x", elem)
	return Method(m, "Any", &Lambda{Params: []*Param{it}, Body: pred(it)})
}

func withMode(v any, mode []StringComparison) []any {
	if len(mode) == 0 {
		return []any{v}
	}
	return []any{v, mode[0]}
}

func dot(target Expr, t *schema.Type, name string) *Member {
	return &Member{Target: target, Name: name, Type: memberType(t, name)}
}

// memberType resolves the declared type of t.name, including the
// pseudo-members of strings, collections and date-times.
func memberType(t *schema.Type, name string) *schema.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case schema.KindObject:
		ft, _ := t.Lookup(name)
		return ft
	case schema.KindString:
		if name == "Length" {
			return schema.Int
		}
	case schema.KindArray:
		if name == "Length" || name == "Count" {
			return schema.Int
		}
	case schema.KindDictionary:
		if name == "Count" {
			return schema.Int
		}
	case schema.KindDateTime:
		if IsDatePart(name) {
			return schema.Int
		}
	}
	return nil
}

var dateParts = map[string]bool{
	"Year": true, "Month": true, "Day": true,
	"Hour": true, "Minute": true, "Second": true,
}

// IsDatePart reports whether name is a date-part member of a date-time.
func IsDatePart(name string) bool { return dateParts[name] }

// Value wraps a Go value as a constant unless it already is an Expr.
func Value(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return &Const{Value: v, Type: TypeOfValue(v)}
}

// Val is a typed constant.
func Val(v any) *Const {
	return &Const{Value: v, Type: TypeOfValue(v)}
}

// Null is the nil constant.
func Null() *Const { return &Const{} }

func binary(op BinaryOp, l, r any) *Binary {
	return &Binary{Op: op, Left: Value(l), Right: Value(r)}
}

func Eq(l, r any) *Binary  { return binary(OpEq, l, r) }
func Ne(l, r any) *Binary  { return binary(OpNe, l, r) }
func Gt(l, r any) *Binary  { return binary(OpGt, l, r) }
func Ge(l, r any) *Binary  { return binary(OpGe, l, r) }
func Lt(l, r any) *Binary  { return binary(OpLt, l, r) }
func Le(l, r any) *Binary  { return binary(OpLe, l, r) }
func Add(l, r any) *Binary { return binary(OpAdd, l, r) }
func Sub(l, r any) *Binary { return binary(OpSub, l, r) }
func Mul(l, r any) *Binary { return binary(OpMul, l, r) }
func Div(l, r any) *Binary { return binary(OpDiv, l, r) }
func Mod(l, r any) *Binary { return binary(OpMod, l, r) }

// And folds operands left to right. And() is the constant true.
func And(operands ...Expr) Expr { return fold(OpAnd, true, operands) }

// Or folds operands left to right. Or() is the constant false.
func Or(operands ...Expr) Expr { return fold(OpOr, false, operands) }

func fold(op BinaryOp, empty bool, operands []Expr) Expr {
	if len(operands) == 0 {
		return Val(empty)
	}
	acc := operands[0]
	for _, e := range operands[1:] {
		acc = &Binary{Op: op, Left: acc, Right: e}
	}
	return acc
}

func Not(x Expr) *Unary { return &Unary{Op: OpNot, Operand: x} }
func Neg(x any) *Unary  { return &Unary{Op: OpNegate, Operand: Value(x)} }

// Method is an instance call.
func Method(target Expr, name string, args ...any) *Call {
	return &Call{Target: target, Method: name, Args: values(args)}
}

// Static is a call on a class rather than an instance.
func Static(class, name string, args ...any) *Call {
	return &Call{Class: class, Method: name, Args: values(args)}
}

func values(args []any) []Expr {
	if len(args) == 0 {
		return nil
	}
	out := make([]Expr, len(args))
	for i, a := range args {
		out[i] = Value(a)
	}
	return out
}

// In is Enumerable.Contains(set, target): membership of target in a
// caller-supplied collection.
func In(set any, target Expr) *Call {
	return Static(ClassEnumerable, "Contains", set, target)
}

// Func is a lambda over the given parameters.
func Func(body Expr, params ...*Param) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// Record is an anonymous record initializer.
func Record(members ...Binding) *New { return &New{Members: members} }

// As names one record member.
func As(name string, v any) Binding { return Binding{Name: name, Value: Value(v)} }

// Math helpers.
func Abs(x any) *Call     { return Static(ClassMath, "Abs", x) }
func Round(x any) *Call   { return Static(ClassMath, "Round", x) }
func Floor(x any) *Call   { return Static(ClassMath, "Floor", x) }
func Ceiling(x any) *Call { return Static(ClassMath, "Ceiling", x) }

// SqlFunc calls a database function the compilers do not know by name.
func SqlFunc(name string, args ...any) *Call { return Static(ClassSql, name, args...) }

// Aggregate helpers over a group parameter.
func Sum(g *Param, sel *Lambda) *Call     { return Static(ClassAgg, "Sum", g, sel) }
func Average(g *Param, sel *Lambda) *Call { return Static(ClassAgg, "Average", g, sel) }
func Min(g *Param, sel *Lambda) *Call     { return Static(ClassAgg, "Min", g, sel) }
func Max(g *Param, sel *Lambda) *Call     { return Static(ClassAgg, "Max", g, sel) }

// Count counts the rows of a group, or the non-null values of sel.
func Count(g *Param, sel ...*Lambda) *Call {
	if len(sel) == 0 {
		return Static(ClassAgg, "Count", g)
	}
	return Static(ClassAgg, "Count", g, sel[0])
}

// Window helpers. Value arguments are field selector lambdas or aggregate
// calls.
func RowNumber() *Call        { return Static(ClassWin, "RowNumber") }
func Rank() *Call             { return Static(ClassWin, "Rank") }
func DenseRank() *Call        { return Static(ClassWin, "DenseRank") }
func Ntile(n int) *Call       { return Static(ClassWin, "Ntile", n) }
func FirstValue(v Expr) *Call { return Static(ClassWin, "FirstValue", v) }
func LastValue(v Expr) *Call  { return Static(ClassWin, "LastValue", v) }
func WinSum(v Expr) *Call     { return Static(ClassWin, "Sum", v) }
func WinAverage(v Expr) *Call { return Static(ClassWin, "Average", v) }
func WinMin(v Expr) *Call     { return Static(ClassWin, "Min", v) }
func WinMax(v Expr) *Call     { return Static(ClassWin, "Max", v) }

// WinCount counts rows in the window, or the non-null values of v.
func WinCount(v ...Expr) *Call {
	if len(v) == 0 {
		return Static(ClassWin, "Count")
	}
	return Static(ClassWin, "Count", v[0])
}

// Lag reads v from offset rows before the current one.
func Lag(v Expr, offset int) *Call { return Static(ClassWin, "Lag", v, offset) }

// Lead reads v from offset rows after the current one.
func Lead(v Expr, offset int) *Call { return Static(ClassWin, "Lead", v, offset) }
