package predicate

import (
	"reflect"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/schema"
)

type stringOps struct{ exact, ignoreCase filter.Operator }

var stringMethods = map[string]stringOps{
	"Contains":   {filter.Contains, filter.ContainsIgnoreCase},
	"StartsWith": {filter.StartsWith, filter.StartsWithIgnoreCase},
	"EndsWith":   {filter.EndsWith, filter.EndsWithIgnoreCase},
}

// compileCall handles method calls used as predicates.
func (c *Compiler) compileCall(n *expr.Call, scope pathres.Scope) (filter.Expression, error) {
	if n.IsStatic() {
		if n.Class == expr.ClassEnumerable && n.Method == "Contains" && len(n.Args) == 2 {
			return c.compileIn(n, n.Args[0], n.Args[1], scope)
		}
		return nil, compileerr.InvalidTopLevel(expr.Describe(n), "static call %s.%s is not a predicate", n.Class, n.Method)
	}

	switch n.Method {
	case "Contains":
		// set.Contains(property) is membership of the property in the set.
		if _, ok := n.Target.(*expr.Const); ok && len(n.Args) == 1 {
			return c.compileIn(n, n.Target, n.Args[0], scope)
		}
		if isChain(n.Target) {
			r, err := c.paths.Resolve(n.Target, scope)
			if err != nil {
				return nil, err
			}
			if r.Function == filter.FuncNone && r.Type.Is(schema.KindArray) {
				return c.compileArrayContains(n, r)
			}
		}
		return c.compileStringMethod(n, scope)
	case "StartsWith", "EndsWith":
		return c.compileStringMethod(n, scope)
	case "ContainsKey":
		return c.compileContainsKey(n, scope)
	case "Any":
		return c.compileAny(n, scope)
	}

	if _, _, ok := stringTransform(n); ok {
		return nil, compileerr.InvalidTopLevel(expr.Describe(n), "string value used as a predicate")
	}
	return nil, compileerr.Unsupported(expr.Describe(n), "unknown method %s", n.Method)
}

// compileStringMethod maps Contains/StartsWith/EndsWith with an optional
// comparison mode onto the string operators.
func (c *Compiler) compileStringMethod(n *expr.Call, scope pathres.Scope) (filter.Expression, error) {
	ops := stringMethods[n.Method]
	if len(n.Args) < 1 || len(n.Args) > 2 {
		return nil, compileerr.Unsupported(expr.Describe(n), "%s takes a value and an optional comparison mode", n.Method)
	}

	op := ops.exact
	if len(n.Args) == 2 {
		mode, ok := constValue(n.Args[1]).(expr.StringComparison)
		if !ok {
			return nil, compileerr.Unsupported(expr.Describe(n), "comparison mode must be a StringComparison constant")
		}
		if mode.IgnoreCase() {
			op = ops.ignoreCase
		}
	}

	prop, err := c.resolveProperty(n.Target, scope)
	if err != nil {
		return nil, err
	}
	if t := valueType(prop); t != nil && !t.Is(schema.KindString) {
		return nil, compileerr.Unsupported(expr.Describe(n), "%s applies to strings, not %s", n.Method, t)
	}

	arg, ok := n.Args[0].(*expr.Const)
	if !ok {
		return nil, compileerr.Unsupported(expr.Describe(n), "%s argument must be a constant", n.Method)
	}
	s, ok := arg.Value.(string)
	if !ok {
		return nil, compileerr.Unsupported(expr.Describe(n), "%s argument must be a string, got %T", n.Method, arg.Value)
	}
	return filter.Comparison{Property: prop, Operator: op, Value: s}, nil
}

// compileArrayContains handles arrayProperty.Contains(value).
func (c *Compiler) compileArrayContains(n *expr.Call, r pathres.Resolved) (filter.Expression, error) {
	if len(n.Args) != 1 {
		return nil, compileerr.Unsupported(expr.Describe(n), "array Contains takes one value")
	}
	k, ok := n.Args[0].(*expr.Const)
	if !ok {
		return nil, compileerr.Unsupported(expr.Describe(n), "array Contains argument must be a constant")
	}
	if k.Value == nil {
		return nil, compileerr.Unsupported(expr.Describe(n), "array Contains with nil")
	}
	value, err := normalize(k.Value, r.Type.Elem)
	if err != nil {
		return nil, compileerr.Unsupported(expr.Describe(n), "%s", err)
	}
	return filter.Comparison{Property: r.Property(), Operator: filter.ArrayContains, Value: value}, nil
}

// compileIn handles set.Contains(property) and Enumerable.Contains(set, property).
func (c *Compiler) compileIn(n *expr.Call, set, target expr.Expr, scope pathres.Scope) (filter.Expression, error) {
	k, ok := set.(*expr.Const)
	if !ok {
		return nil, compileerr.Unsupported(expr.Describe(n), "set must be a constant collection")
	}
	prop, err := c.resolveProperty(target, scope)
	if err != nil {
		return nil, err
	}

	rv := reflect.ValueOf(k.Value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, compileerr.Unsupported(expr.Describe(n), "set must be a slice or array, got %T", k.Value)
	}
	t := valueType(prop)
	values := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		v, err := normalize(rv.Index(i).Interface(), t)
		if err != nil {
			return nil, compileerr.Unsupported(expr.Describe(n), "set element %d: %s", i, err)
		}
		if v == nil {
			return nil, compileerr.Unsupported(expr.Describe(n), "set element %d is nil", i)
		}
		values = append(values, v)
	}
	return filter.In{Property: prop, Values: values}, nil
}

// compileContainsKey handles dictionary.ContainsKey(key). The path carries
// a ContainsKey marker and the value is the serialized key.
func (c *Compiler) compileContainsKey(n *expr.Call, scope pathres.Scope) (filter.Expression, error) {
	if len(n.Args) != 1 {
		return nil, compileerr.Unsupported(expr.Describe(n), "ContainsKey takes one key")
	}
	r, err := c.paths.Resolve(n.Target, scope)
	if err != nil {
		return nil, err
	}
	if r.Function != filter.FuncNone || !r.Type.Is(schema.KindDictionary) {
		return nil, compileerr.Unsupported(expr.Describe(n), "ContainsKey applies to dictionaries, not %s", r.Type)
	}
	k, ok := n.Args[0].(*expr.Const)
	if !ok {
		return nil, compileerr.Unsupported(expr.Describe(n), "ContainsKey argument must be a constant")
	}
	key, err := pathres.SerializeKey(k.Value, r.Type.Key)
	if err != nil {
		return nil, compileerr.Unsupported(expr.Describe(n), "%s", err)
	}

	prop := r.Property()
	prop.Path += "." + filter.ContainsKeyMarker
	prop.Type = schema.String
	return filter.Comparison{Property: prop, Operator: filter.Equal, Value: key}, nil
}

// compileAny handles arrayProperty.Any(item => item.Field == value).
//
// The element predicate becomes one equality on the synthesized path
// array[].Field, which tells the downstream layer to iterate. Only a single
// equality body has that meaning: compound bodies are rejected rather than
// collapsed into a comparison that would match different rows. Any() with no
// predicate tests for a non-empty array.
func (c *Compiler) compileAny(n *expr.Call, scope pathres.Scope) (filter.Expression, error) {
	arr, err := c.paths.Resolve(n.Target, scope)
	if err != nil {
		return nil, err
	}
	if arr.Function != filter.FuncNone || !arr.Type.Is(schema.KindArray) {
		return nil, compileerr.Unsupported(expr.Describe(n), "Any applies to arrays, not %s", arr.Type)
	}

	if len(n.Args) == 0 {
		prop := arr.Property()
		prop.Function = filter.FuncCount
		return filter.Comparison{Property: prop, Operator: filter.GreaterThan, Value: int64(0)}, nil
	}

	l, ok := n.Args[0].(*expr.Lambda)
	if !ok || len(n.Args) != 1 || len(l.Params) != 1 {
		return nil, compileerr.Unsupported(expr.Describe(n), "Any takes one single-parameter lambda")
	}
	body, ok := l.Body.(*expr.Binary)
	if !ok || body.Op != expr.OpEq {
		return nil, compileerr.Unsupported(expr.Describe(n),
			"Any supports a single equality on an element field")
	}

	field, k := body.Left, body.Right
	if _, ok := field.(*expr.Const); ok {
		field, k = k, field
	}
	value, ok := k.(*expr.Const)
	if !ok || !isChain(field) || value.Value == nil {
		return nil, compileerr.Unsupported(expr.Describe(n),
			"Any supports a single equality between an element field and a constant")
	}

	// item == value on an array of scalars is array membership.
	if p, ok := field.(*expr.Param); ok && p == l.Params[0] {
		v, err := normalize(value.Value, arr.Type.Elem)
		if err != nil {
			return nil, compileerr.Unsupported(expr.Describe(n), "%s", err)
		}
		return filter.Comparison{Property: arr.Property(), Operator: filter.ArrayContains, Value: v}, nil
	}

	elem, err := c.paths.Resolve(field, pathres.ScopeProps)
	if err != nil {
		return nil, err
	}
	if elem.Root != l.Params[0] {
		return nil, compileerr.Unsupported(expr.Describe(n), "Any body must compare a field of its own element")
	}
	joined, err := c.paths.JoinElement(arr, elem)
	if err != nil {
		return nil, err
	}
	v, err := normalize(value.Value, valueType(joined.Property()))
	if err != nil {
		return nil, compileerr.Unsupported(expr.Describe(n), "%s", err)
	}
	return filter.Comparison{Property: joined.Property(), Operator: filter.Equal, Value: v}, nil
}

func constValue(e expr.Expr) any {
	if k, ok := e.(*expr.Const); ok {
		return k.Value
	}
	return nil
}
