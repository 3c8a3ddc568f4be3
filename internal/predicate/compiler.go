// Package predicate compiles boolean expressions over a property bag into
// the Filter Algebra.
//
// Compilation is a recursive walk over the expression tree that dispatches
// on node shape. It never evaluates the expression and never touches a
// connection. Shapes no rule covers fail with UNSUPPORTED_EXPRESSION_SHAPE;
// arithmetic or other non-boolean values used as a whole predicate fail with
// INVALID_TOP_LEVEL_FORM. There is no silent fallback.
//
// Whether direct members of the lambda parameter are base fields or
// property-bag fields is a Scope passed down every recursive call, so a
// Compiler holds no per-call state and is safe for concurrent use.
package predicate

import (
	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/schema"
)

// Compiler translates predicate lambdas.
type Compiler struct {
	paths *pathres.Resolver
}

// New creates a Compiler resolving paths with paths.
func New(paths *pathres.Resolver) *Compiler {
	return &Compiler{paths: paths}
}

// Compile translates a predicate over the property bag.
func (c *Compiler) Compile(l *expr.Lambda) (filter.Expression, error) {
	return c.CompileScoped(l, pathres.ScopeProps)
}

// CompileBase translates a predicate over the entity envelope, where direct
// members are base fields.
func (c *Compiler) CompileBase(l *expr.Lambda) (filter.Expression, error) {
	return c.CompileScoped(l, pathres.ScopeBase)
}

// CompileScoped translates a predicate in the given scope.
func (c *Compiler) CompileScoped(l *expr.Lambda, scope pathres.Scope) (filter.Expression, error) {
	if l == nil {
		return nil, compileerr.Unsupported("nil", "predicate lambda is nil")
	}
	if len(l.Params) != 1 {
		return nil, compileerr.Unsupported(expr.Describe(l), "predicate takes one parameter, got %d", len(l.Params))
	}
	return c.compile(l.Body, scope)
}

// compile dispatches on the shape of a boolean expression.
func (c *Compiler) compile(e expr.Expr, scope pathres.Scope) (filter.Expression, error) {
	switch n := e.(type) {
	case *expr.Binary:
		switch {
		case n.Op.IsLogical():
			return c.compileLogical(n, scope)
		case n.Op.IsRelational():
			return c.compileRelational(n, scope)
		default:
			return nil, compileerr.InvalidTopLevel(expr.Describe(n),
				"arithmetic must be an operand of a comparison")
		}

	case *expr.Unary:
		if n.Op != expr.OpNot {
			return nil, compileerr.InvalidTopLevel(expr.Describe(n),
				"negation must be an operand of a comparison")
		}
		return c.compileNot(n, scope)

	case *expr.Member, *expr.Index:
		return c.compileBoolMember(e, true, scope)

	case *expr.Call:
		return c.compileCall(n, scope)

	case *expr.Const:
		b, ok := n.Value.(bool)
		if !ok {
			return nil, compileerr.InvalidTopLevel(expr.Describe(n), "constant predicate must be boolean")
		}
		if b {
			return filter.And(), nil
		}
		return filter.Or(), nil

	case *expr.Param:
		return nil, compileerr.InvalidTopLevel(expr.Describe(n), "parameter used as a predicate")

	case *expr.Lambda:
		return nil, compileerr.Unsupported(expr.Describe(n), "nested lambda used as a predicate")

	case *expr.New:
		return nil, compileerr.InvalidTopLevel(expr.Describe(n), "record used as a predicate")

	case nil:
		return nil, compileerr.Unsupported("nil", "empty predicate body")

	default:
		return nil, compileerr.Unsupported(expr.Describe(e), "unknown expression node")
	}
}

// compileLogical flattens nested operators of the same kind, so
// a && (b && c) and (a && b) && c compile identically.
func (c *Compiler) compileLogical(n *expr.Binary, scope pathres.Scope) (filter.Expression, error) {
	op := filter.OpAnd
	if n.Op == expr.OpOr {
		op = filter.OpOr
	}

	var operands []filter.Expression
	for _, side := range []expr.Expr{n.Left, n.Right} {
		compiled, err := c.compile(side, scope)
		if err != nil {
			return nil, err
		}
		if l, ok := compiled.(filter.Logical); ok && l.Operator == op && len(l.Operands) > 0 {
			operands = append(operands, l.Operands...)
			continue
		}
		operands = append(operands, compiled)
	}
	return filter.Logical{Operator: op, Operands: operands}, nil
}

func (c *Compiler) compileNot(n *expr.Unary, scope pathres.Scope) (filter.Expression, error) {
	switch n.Operand.(type) {
	case *expr.Member, *expr.Index:
		return c.compileBoolMember(n.Operand, false, scope)
	}
	inner, err := c.compile(n.Operand, scope)
	if err != nil {
		return nil, err
	}
	return filter.Not(inner), nil
}

// compileBoolMember turns a boolean property used as a predicate into an
// explicit comparison: x.Flag is x.Flag == true, !x.Flag is x.Flag == false.
func (c *Compiler) compileBoolMember(e expr.Expr, want bool, scope pathres.Scope) (filter.Expression, error) {
	r, err := c.paths.Resolve(e, scope)
	if err != nil {
		return nil, err
	}
	if r.Function != filter.FuncNone || !r.Type.Is(schema.KindBool) {
		return nil, compileerr.InvalidTopLevel(expr.Describe(e),
			"non-boolean member of type %s used as a predicate", r.Type)
	}
	return filter.Comparison{Property: r.Property(), Operator: filter.Equal, Value: want}, nil
}
