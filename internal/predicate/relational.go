package predicate

import (
	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/schema"
)

var relationalOps = map[expr.BinaryOp]filter.Operator{
	expr.OpEq: filter.Equal,
	expr.OpNe: filter.NotEqual,
	expr.OpGt: filter.GreaterThan,
	expr.OpGe: filter.GreaterThanOrEqual,
	expr.OpLt: filter.LessThan,
	expr.OpLe: filter.LessThanOrEqual,
}

// compileRelational handles ==, !=, <, <=, >, >=.
//
// A plain property against a constant becomes a simple Comparison, with the
// operator mirrored when the constant is on the left. Anything richer
// (arithmetic, function calls, date parts, two properties) lowers both sides
// to value expressions in the extended slots.
func (c *Compiler) compileRelational(n *expr.Binary, scope pathres.Scope) (filter.Expression, error) {
	op := relationalOps[n.Op]

	if isNull(n.Left) || isNull(n.Right) {
		return c.compileNullCheck(n, op, scope)
	}

	left, leftIsConst := n.Left.(*expr.Const)
	right, rightIsConst := n.Right.(*expr.Const)
	if leftIsConst && rightIsConst {
		return nil, compileerr.Unsupported(expr.Describe(n), "comparison between two constants")
	}

	switch {
	case rightIsConst && c.isSimpleProperty(n.Left, scope):
		return c.simpleComparison(n, n.Left, op, right, scope)
	case leftIsConst && c.isSimpleProperty(n.Right, scope):
		return c.simpleComparison(n, n.Right, op.Mirror(), left, scope)
	}
	return c.extendedComparison(n, op, scope)
}

func (c *Compiler) simpleComparison(n *expr.Binary, side expr.Expr, op filter.Operator, k *expr.Const, scope pathres.Scope) (filter.Expression, error) {
	prop, err := c.resolveProperty(side, scope)
	if err != nil {
		return nil, err
	}
	value, err := normalize(k.Value, valueType(prop))
	if err != nil {
		return nil, compileerr.Unsupported(expr.Describe(n), "%s", err)
	}
	return filter.Comparison{Property: prop, Operator: op, Value: value}, nil
}

// compileNullCheck turns == nil and != nil into NullCheck. A null constant
// never reaches a Comparison.
func (c *Compiler) compileNullCheck(n *expr.Binary, op filter.Operator, scope pathres.Scope) (filter.Expression, error) {
	if isNull(n.Left) && isNull(n.Right) {
		return nil, compileerr.Unsupported(expr.Describe(n), "comparison between two nil constants")
	}
	if op != filter.Equal && op != filter.NotEqual {
		return nil, compileerr.Unsupported(expr.Describe(n), "ordering comparison with nil")
	}
	side := n.Left
	if isNull(n.Left) {
		side = n.Right
	}
	prop, err := c.resolveProperty(side, scope)
	if err != nil {
		return nil, err
	}
	return filter.NullCheck{Property: prop, IsEqualNull: op == filter.Equal}, nil
}

func (c *Compiler) extendedComparison(n *expr.Binary, op filter.Operator, scope pathres.Scope) (filter.Expression, error) {
	left, right, err := c.operands(n, scope, nil)
	if err != nil {
		return nil, err
	}

	ref, ok := firstPropertyRef(left)
	if !ok {
		ref, ok = firstPropertyRef(right)
	}
	if !ok {
		return nil, compileerr.Unsupported(expr.Describe(n), "comparison references no property")
	}
	if ref.Type.Is(schema.KindEnum) {
		if left, right, err = c.operands(n, scope, ref.Type); err != nil {
			return nil, err
		}
	}

	return filter.Comparison{
		Property: filter.PropertyInfo{Path: ref.Path, Type: ref.Type, IsBaseField: ref.IsBaseField},
		Operator: op,
		Left:     left,
		Right:    right,
	}, nil
}

func (c *Compiler) operands(n *expr.Binary, scope pathres.Scope, enum *schema.Type) (filter.ValueExpression, filter.ValueExpression, error) {
	left, err := c.toValue(n.Left, scope, enum)
	if err != nil {
		return nil, nil, err
	}
	right, err := c.toValue(n.Right, scope, enum)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func isNull(e expr.Expr) bool {
	k, ok := e.(*expr.Const)
	return ok && k.Value == nil
}

// firstPropertyRef finds the leftmost property reference of an operand.
func firstPropertyRef(v filter.ValueExpression) (filter.PropertyRef, bool) {
	switch n := v.(type) {
	case filter.PropertyRef:
		return n, true
	case filter.Arithmetic:
		if r, ok := firstPropertyRef(n.Left); ok {
			return r, true
		}
		return firstPropertyRef(n.Right)
	case filter.FunctionCall:
		return firstPropertyRef(n.Arg)
	case filter.CustomFunctionCall:
		for _, a := range n.Args {
			if r, ok := firstPropertyRef(a); ok {
				return r, true
			}
		}
	}
	return filter.PropertyRef{}, false
}
