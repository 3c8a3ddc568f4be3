// Package expr is the introspectable expression tree callers compose to
// describe predicates, key selectors and projections over a property bag.
//
// Callers never hand over compiled functions. They build a tree of nodes,
// usually through a Builder bound to an entity kind, and the compilers walk
// that tree statically:
//
//	b := expr.Props(employee)
//	where := b.Lambda(expr.And(
//	    expr.Gt(b.Prop("Age"), 30),
//	    expr.Eq(b.Prop("Department"), "Eng"),
//	))
//
// Expr is a sealed interface: only the node types in this package implement
// it, which lets compilers switch over every kind of node.
package expr

import "github.com/roach88/eavq/internal/schema"

// Expr is a node of an expression tree.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
	String() string
}

// ParamRole tells compilers what a lambda parameter stands for.
type ParamRole int

const (
	// RoleEntity is an object envelope whose property bag sits under Props.
	RoleEntity ParamRole = iota
	// RoleProps is the property bag itself.
	RoleProps
	// RoleGroup is a group of rows produced by a grouping key.
	RoleGroup
	// RoleItem is one element of an array-typed property.
	RoleItem
)

// Param is a lambda parameter.
type Param struct {
	Name string
	Role ParamRole
	Type *schema.Type
}

func (*Param) exprNode() {}

// Member is a field or property access on Target.
// Type is the declared type of the accessed member, nil when unknown.
type Member struct {
	Target Expr
	Name   string
	Type   *schema.Type
}

func (*Member) exprNode() {}

// Const is a literal or captured value.
// Type is inferred from the Go value when not set explicitly.
type Const struct {
	Value any
	Type  *schema.Type
}

func (*Const) exprNode() {}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpAnd BinaryOp = iota
	OpOr
	OpEq
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
)

var binaryOpText = [...]string{
	OpAnd: "&&", OpOr: "||",
	OpEq: "==", OpNe: "!=", OpGt: ">", OpGe: ">=", OpLt: "<", OpLe: "<=",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
}

func (op BinaryOp) String() string {
	if op < 0 || int(op) >= len(binaryOpText) {
		return "?"
	}
	return binaryOpText[op]
}

// IsLogical reports whether op combines predicates.
func (op BinaryOp) IsLogical() bool { return op == OpAnd || op == OpOr }

// IsRelational reports whether op compares two values.
func (op BinaryOp) IsRelational() bool { return op >= OpEq && op <= OpLe }

// IsArithmetic reports whether op computes a value.
func (op BinaryOp) IsArithmetic() bool { return op >= OpAdd && op <= OpMod }

// Binary is an infix operation.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*Binary) exprNode() {}

// UnaryOp enumerates prefix operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
)

// Unary is a prefix operation.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

func (*Unary) exprNode() {}

// Static call classes.
const (
	ClassMath       = "Math"
	ClassAgg        = "Agg"
	ClassWin        = "Win"
	ClassSql        = "Sql"
	ClassEnumerable = "Enumerable"
)

// Call is a method invocation. Instance calls set Target; static calls set
// Class instead.
type Call struct {
	Target Expr
	Class  string
	Method string
	Args   []Expr
}

func (*Call) exprNode() {}

// IsStatic reports whether the call has no receiver.
func (c *Call) IsStatic() bool { return c.Target == nil }

// Index is an indexer access: dictionary lookup or array element.
type Index struct {
	Target Expr
	Key    Expr
	Type   *schema.Type
}

func (*Index) exprNode() {}

// Lambda is an anonymous function.
type Lambda struct {
	Params []*Param
	Body   Expr
}

func (*Lambda) exprNode() {}

// Binding is one named member of a record initializer.
type Binding struct {
	Name  string
	Value Expr
}

// New is an anonymous record initializer: new { A = x, B = y }.
// Members keep declaration order; an empty Name means the output member was
// not named and compilers fall back to a positional alias.
type New struct {
	Members []Binding
}

func (*New) exprNode() {}
