package predicate

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/schema"
)

var arithmeticOps = map[expr.BinaryOp]filter.ArithmeticOp{
	expr.OpAdd: filter.Add,
	expr.OpSub: filter.Subtract,
	expr.OpMul: filter.Multiply,
	expr.OpDiv: filter.Divide,
	expr.OpMod: filter.Modulo,
}

var mathFunctions = map[string]filter.Function{
	"Abs":     filter.FuncAbs,
	"Round":   filter.FuncRound,
	"Floor":   filter.FuncFloor,
	"Ceiling": filter.FuncCeiling,
}

// toValue lowers an operand of an extended comparison. Integer and enum
// constants take the type of an enum property they are compared with, so
// they become symbolic names rather than ordinals.
func (c *Compiler) toValue(e expr.Expr, scope pathres.Scope, enum *schema.Type) (filter.ValueExpression, error) {
	switch n := e.(type) {
	case *expr.Const:
		if n.Value == nil {
			return nil, compileerr.Unsupported(expr.Describe(n), "nil operand in an extended comparison")
		}
		t := n.Type
		if enum.Is(schema.KindEnum) && (t.Is(schema.KindInt) || t.Is(schema.KindEnum)) {
			t = enum
		}
		v, err := normalize(n.Value, t)
		if err != nil {
			return nil, compileerr.Unsupported(expr.Describe(n), "%s", err)
		}
		return filter.Constant{Value: v, Type: t}, nil

	case *expr.Member, *expr.Index, *expr.Param:
		r, err := c.paths.Resolve(e, scope)
		if err != nil {
			return nil, err
		}
		ref := filter.PropertyRef{Path: r.Path, Type: r.Type, IsBaseField: r.IsBaseField}
		if r.Function != filter.FuncNone {
			return filter.FunctionCall{Function: r.Function, Arg: ref}, nil
		}
		return ref, nil

	case *expr.Binary:
		op, ok := arithmeticOps[n.Op]
		if !ok {
			return nil, compileerr.Unsupported(expr.Describe(n), "%s is not an arithmetic operator", n.Op)
		}
		left, err := c.toValue(n.Left, scope, enum)
		if err != nil {
			return nil, err
		}
		right, err := c.toValue(n.Right, scope, enum)
		if err != nil {
			return nil, err
		}
		return filter.Arithmetic{Left: left, Op: op, Right: right}, nil

	case *expr.Unary:
		if n.Op != expr.OpNegate {
			return nil, compileerr.Unsupported(expr.Describe(n), "boolean negation used as a value")
		}
		operand, err := c.toValue(n.Operand, scope, enum)
		if err != nil {
			return nil, err
		}
		return filter.Arithmetic{
			Left:  filter.Constant{Value: int64(0), Type: schema.Int},
			Op:    filter.Subtract,
			Right: operand,
		}, nil

	case *expr.Call:
		return c.callValue(n, scope, enum)

	case nil:
		return nil, compileerr.Unsupported("nil", "empty operand")
	}
	return nil, compileerr.Unsupported(expr.Describe(e), "unsupported operand")
}

func (c *Compiler) callValue(n *expr.Call, scope pathres.Scope, enum *schema.Type) (filter.ValueExpression, error) {
	if _, fn, ok := stringTransform(n); ok {
		arg, err := c.toValue(n.Target, scope, enum)
		if err != nil {
			return nil, err
		}
		return filter.FunctionCall{Function: fn, Arg: arg}, nil
	}

	switch n.Class {
	case expr.ClassMath:
		fn, ok := mathFunctions[n.Method]
		if !ok || len(n.Args) != 1 {
			return nil, compileerr.Unsupported(expr.Describe(n), "unsupported math function %s/%d", n.Method, len(n.Args))
		}
		arg, err := c.toValue(n.Args[0], scope, enum)
		if err != nil {
			return nil, err
		}
		return filter.FunctionCall{Function: fn, Arg: arg}, nil

	case expr.ClassSql:
		call := filter.CustomFunctionCall{Name: n.Method, Args: make([]filter.ValueExpression, 0, len(n.Args))}
		for _, a := range n.Args {
			v, err := c.toValue(a, scope, enum)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, v)
		}
		return call, nil
	}
	return nil, compileerr.Unsupported(expr.Describe(n), "call %s cannot be used as a value", n.Method)
}

// normalize converts a caller constant to the algebra's value domain,
// guided by the declared type it is compared with. Enum constants become
// symbolic names and reference constants their integer ids.
func normalize(v any, t *schema.Type) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case expr.Referencer:
		return x.RefID(), nil
	case expr.Enum:
		return x.Name, nil
	case expr.StringComparison:
		return nil, fmt.Errorf("comparison mode %s is not a value", x)
	case string, bool, float64, int64, decimal.Decimal, uuid.UUID:
		return v, nil
	case time.Time:
		return x.UTC(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t.Is(schema.KindEnum) {
			return enumName(rv.Int(), v, t)
		}
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Slice, reflect.Array:
		var elem *schema.Type
		if t.Is(schema.KindArray) {
			elem = t.Elem
		}
		out := make([]any, rv.Len())
		for i := range out {
			e, err := normalize(rv.Index(i).Interface(), elem)
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface(), t)
	}
	return nil, fmt.Errorf("unsupported constant type %T", v)
}

func enumName(ordinal int64, v any, t *schema.Type) (any, error) {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	if ordinal < 0 || ordinal >= int64(len(t.EnumValues)) {
		return nil, fmt.Errorf("ordinal %d out of range for enum %s", ordinal, t.Name)
	}
	return t.EnumValues[ordinal], nil
}
