package predicate

import (
	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/schema"
)

var stringTransforms = map[string]filter.Function{
	"ToLower":   filter.FuncToLower,
	"ToUpper":   filter.FuncToUpper,
	"Trim":      filter.FuncTrim,
	"TrimStart": filter.FuncTrimStart,
	"TrimEnd":   filter.FuncTrimEnd,
}

// stringTransform reports whether e is x.ToLower() and friends.
func stringTransform(e expr.Expr) (*expr.Call, filter.Function, bool) {
	call, ok := e.(*expr.Call)
	if !ok || call.IsStatic() || len(call.Args) != 0 {
		return nil, filter.FuncNone, false
	}
	fn, ok := stringTransforms[call.Method]
	return call, fn, ok
}

// isChain reports whether e is a member/indexer chain down to a parameter.
func isChain(e expr.Expr) bool {
	for {
		switch n := e.(type) {
		case *expr.Param:
			return n.Role != expr.RoleGroup
		case *expr.Member:
			e = n.Target
		case *expr.Index:
			e = n.Target
		default:
			return false
		}
	}
}

// isSimpleProperty reports whether e fits a plain PropertyInfo: a member
// chain, optionally ending in Length/Count or wrapped in one string
// transform. Date parts and stacked functions are extended operands.
func (c *Compiler) isSimpleProperty(e expr.Expr, scope pathres.Scope) bool {
	if call, _, ok := stringTransform(e); ok {
		if !isChain(call.Target) {
			return false
		}
		r, err := c.paths.Resolve(call.Target, scope)
		return err != nil || r.Function == filter.FuncNone
	}
	if !isChain(e) {
		return false
	}
	r, err := c.paths.Resolve(e, scope)
	// Resolution errors surface from resolveProperty with the right code.
	return err != nil || !r.Function.IsDatePart()
}

// resolveProperty resolves a simple property operand, folding one string
// transform into the applied function.
func (c *Compiler) resolveProperty(e expr.Expr, scope pathres.Scope) (filter.PropertyInfo, error) {
	if call, fn, ok := stringTransform(e); ok {
		r, err := c.paths.Resolve(call.Target, scope)
		if err != nil {
			return filter.PropertyInfo{}, err
		}
		if r.Function != filter.FuncNone {
			return filter.PropertyInfo{}, compileerr.Unsupported(expr.Describe(e),
				"%s cannot apply on top of %s", fn, r.Function)
		}
		if r.Type != nil && !r.Type.Is(schema.KindString) {
			return filter.PropertyInfo{}, compileerr.Unsupported(expr.Describe(e),
				"%s applies to strings, not %s", fn, r.Type)
		}
		p := r.Property()
		p.Function = fn
		return p, nil
	}
	if !isChain(e) {
		return filter.PropertyInfo{}, compileerr.Unsupported(expr.Describe(e), "expected a property")
	}
	r, err := c.paths.Resolve(e, scope)
	if err != nil {
		return filter.PropertyInfo{}, err
	}
	return r.Property(), nil
}

// valueType is the declared type a comparison value is checked against:
// the property's type after its applied function.
func valueType(p filter.PropertyInfo) *schema.Type {
	switch {
	case p.Function.IsStringTransform():
		return schema.String
	case p.Function == filter.FuncLength || p.Function == filter.FuncCount || p.Function.IsDatePart():
		return schema.Int
	}
	return p.Type
}
