package grouping

import (
	"fmt"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/schema"
)

// Compiler translates grouping selectors. It holds no per-call state.
type Compiler struct {
	paths *pathres.Resolver
}

// New creates a Compiler resolving paths with paths.
func New(paths *pathres.Resolver) *Compiler {
	return &Compiler{paths: paths}
}

// Paths returns the resolver shared with layered compilers.
func (c *Compiler) Paths() *pathres.Resolver { return c.paths }

// ScopeOf picks the scope a selector's members resolve in: envelope
// parameters see base fields directly, every other parameter sees the
// property bag.
func ScopeOf(p *expr.Param) pathres.Scope {
	if p != nil && p.Role == expr.RoleEntity {
		return pathres.ScopeBase
	}
	return pathres.ScopeProps
}

// CompileKey compiles a key selector. A single member access yields one
// field aliased by the member name; a record yields one field per member,
// aliased by its declared name or Key<i> when it has none.
func (c *Compiler) CompileKey(l *expr.Lambda) ([]GroupFieldRequest, error) {
	param, err := singleParam(l, "key selector")
	if err != nil {
		return nil, err
	}
	fields, _, err := c.compileKeyBody(l.Body, ScopeOf(param))
	return fields, err
}

// CompileArrayKey groups by fields of the elements of an array property.
// array selects the array (x => x.Skills); key selects element fields
// (s => s.Name) and each field path becomes array[].field.
func (c *Compiler) CompileArrayKey(array, key *expr.Lambda) ([]GroupFieldRequest, error) {
	param, err := singleParam(array, "array selector")
	if err != nil {
		return nil, err
	}
	arr, err := c.paths.Resolve(array.Body, ScopeOf(param))
	if err != nil {
		return nil, err
	}
	if arr.Function != filter.FuncNone || !arr.Type.Is(schema.KindArray) {
		return nil, compileerr.Unsupported(expr.Describe(array), "array grouping needs an array property, got %s", arr.Type)
	}

	if _, err := singleParam(key, "element key selector"); err != nil {
		return nil, err
	}
	fields, resolved, err := c.compileKeyBody(key.Body, pathres.ScopeProps)
	if err != nil {
		return nil, err
	}
	for i := range fields {
		joined, err := c.paths.JoinElement(arr, resolved[i])
		if err != nil {
			return nil, err
		}
		fields[i].FieldPath = joined.Path
		fields[i].IsBaseField = false
	}
	return fields, nil
}

func (c *Compiler) compileKeyBody(body expr.Expr, scope pathres.Scope) ([]GroupFieldRequest, []pathres.Resolved, error) {
	switch n := body.(type) {
	case *expr.New:
		if len(n.Members) == 0 {
			return nil, nil, compileerr.Unsupported(expr.Describe(n), "composite key has no members")
		}
		fields := make([]GroupFieldRequest, 0, len(n.Members))
		resolved := make([]pathres.Resolved, 0, len(n.Members))
		seen := make(map[string]bool, len(n.Members))
		for i, m := range n.Members {
			alias := m.Name
			if alias == "" {
				alias = inferredName(m.Value, fmt.Sprintf("Key%d", i))
			}
			if seen[alias] {
				return nil, nil, compileerr.Unsupported(expr.Describe(n), "duplicate key alias %q", alias)
			}
			seen[alias] = true
			f, r, err := c.keyField(m.Value, alias, scope)
			if err != nil {
				return nil, nil, err
			}
			fields = append(fields, f)
			resolved = append(resolved, r)
		}
		return fields, resolved, nil
	case *expr.Member, *expr.Index:
		f, r, err := c.keyField(n, inferredName(n, "Key0"), scope)
		if err != nil {
			return nil, nil, err
		}
		return []GroupFieldRequest{f}, []pathres.Resolved{r}, nil
	case nil:
		return nil, nil, compileerr.Unsupported("nil", "empty key selector")
	default:
		return nil, nil, compileerr.Unsupported(expr.Describe(body), "key selector must be a member access or a record")
	}
}

func (c *Compiler) keyField(e expr.Expr, alias string, scope pathres.Scope) (GroupFieldRequest, pathres.Resolved, error) {
	r, err := c.paths.Resolve(e, scope)
	if err != nil {
		return GroupFieldRequest{}, pathres.Resolved{}, err
	}
	if r.Function != filter.FuncNone {
		return GroupFieldRequest{}, pathres.Resolved{}, compileerr.Unsupported(expr.Describe(e), "cannot group by %s", r.Function)
	}
	return GroupFieldRequest{FieldPath: r.Path, Alias: alias, IsBaseField: r.IsBaseField, Type: r.Type}, r, nil
}

// CompileAggregates compiles a result selector. Members bound to the group
// key are skipped; members bound to Agg calls become AggregateRequests.
func (c *Compiler) CompileAggregates(l *expr.Lambda) ([]AggregateRequest, error) {
	g, err := singleParam(l, "result selector")
	if err != nil {
		return nil, err
	}
	rec, ok := l.Body.(*expr.New)
	if !ok {
		return nil, compileerr.Unsupported(expr.Describe(l), "result selector must be a record")
	}

	var aggs []AggregateRequest
	seen := make(map[string]bool, len(rec.Members))
	for i, m := range rec.Members {
		if IsKeyRef(m.Value, g) {
			continue
		}
		alias := m.Name
		if alias == "" {
			alias = fmt.Sprintf("Value%d", i)
		}
		if seen[alias] {
			return nil, compileerr.Unsupported(expr.Describe(rec), "duplicate aggregate alias %q", alias)
		}
		seen[alias] = true
		call, ok := m.Value.(*expr.Call)
		if !ok || call.Class != expr.ClassAgg {
			return nil, compileerr.Unsupported(expr.Describe(m.Value), "result member %q is neither the key nor an aggregate", alias)
		}
		a, err := c.Aggregate(call, g, alias)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, nil
}

// Aggregate compiles one Agg.<Function>(g, selector) call.
func (c *Compiler) Aggregate(call *expr.Call, g *expr.Param, alias string) (AggregateRequest, error) {
	if call.Class != expr.ClassAgg {
		return AggregateRequest{}, compileerr.UnknownFunction(expr.Describe(call), "not an aggregate call")
	}
	fn, ok := ParseFunction(call.Method)
	if !ok {
		return AggregateRequest{}, compileerr.UnknownFunction(expr.Describe(call), "unknown aggregate %s", call.Method)
	}
	if len(call.Args) == 0 || call.Args[0] != expr.Expr(g) {
		return AggregateRequest{}, compileerr.Unsupported(expr.Describe(call), "aggregate must take the group as its first argument")
	}

	req := AggregateRequest{Function: fn, Alias: alias}
	switch len(call.Args) {
	case 1:
		if fn != Count {
			return AggregateRequest{}, compileerr.Unsupported(expr.Describe(call), "%s needs a field selector", fn)
		}
		req.FieldPath = CountAll
		req.Type = schema.Int
		return req, nil
	case 2:
		sel, ok := call.Args[1].(*expr.Lambda)
		if !ok {
			return AggregateRequest{}, compileerr.Unsupported(expr.Describe(call), "field selector must be a lambda")
		}
		p, err := singleParam(sel, "field selector")
		if err != nil {
			return AggregateRequest{}, err
		}
		r, err := c.paths.Resolve(sel.Body, ScopeOf(p))
		if err != nil {
			return AggregateRequest{}, err
		}
		if r.Function != filter.FuncNone {
			return AggregateRequest{}, compileerr.Unsupported(expr.Describe(call), "cannot aggregate %s of a field", r.Function)
		}
		if fn != Count && fn != Min && fn != Max && r.Type != nil && !r.Type.IsNumeric() {
			return AggregateRequest{}, compileerr.Unsupported(expr.Describe(call), "%s needs a numeric field, %s is %s", fn, r.Path, r.Type)
		}
		req.FieldPath = r.Path
		req.IsBaseField = r.IsBaseField
		req.Type = r.Type
		if fn == Count {
			req.Type = schema.Int
		}
		return req, nil
	}
	return AggregateRequest{}, compileerr.Unsupported(expr.Describe(call), "too many arguments")
}

// IsKeyRef reports whether e is g.Key or a member of it.
func IsKeyRef(e expr.Expr, g *expr.Param) bool {
	for {
		m, ok := e.(*expr.Member)
		if !ok {
			return false
		}
		if m.Target == expr.Expr(g) {
			return m.Name == "Key"
		}
		e = m.Target
	}
}

func singleParam(l *expr.Lambda, what string) (*expr.Param, error) {
	if l == nil {
		return nil, compileerr.Unsupported("nil", "%s is nil", what)
	}
	if len(l.Params) != 1 {
		return nil, compileerr.Unsupported(expr.Describe(l), "%s takes one parameter, got %d", what, len(l.Params))
	}
	return l.Params[0], nil
}

// inferredName is the implicit member name of a record member.
func inferredName(e expr.Expr, fallback string) string {
	switch n := e.(type) {
	case *expr.Member:
		return n.Name
	case *expr.Index:
		if m, ok := n.Target.(*expr.Member); ok {
			return m.Name
		}
	}
	return fallback
}
