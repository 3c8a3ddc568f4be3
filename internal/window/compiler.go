package window

import (
	"fmt"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/schema"
)

// Compiler translates window specifications. It reuses the grouping
// compiler for field and aggregate parsing.
type Compiler struct {
	groups *grouping.Compiler
}

// New creates a Compiler on top of groups.
func New(groups *grouping.Compiler) *Compiler {
	return &Compiler{groups: groups}
}

// CompilePartition compiles a partition spec: a field selector, a group
// lambda whose body is an aggregate call, or a record of those. A nil spec
// partitions nothing, so the window spans the whole result set.
func (c *Compiler) CompilePartition(spec *expr.Lambda) ([]FieldRequest, error) {
	if spec == nil {
		return nil, nil
	}
	refs, err := c.specRefs(spec)
	if err != nil {
		return nil, err
	}
	out := make([]FieldRequest, len(refs))
	for i, r := range refs {
		out[i] = FieldRequest{Ref: r}
	}
	return out, nil
}

// CompileOrder compiles ordering specs in priority order. A record key
// expands to one entry per member, all sharing the spec's direction.
func (c *Compiler) CompileOrder(specs ...OrderSpec) ([]OrderRequest, error) {
	var out []OrderRequest
	for _, s := range specs {
		if s.Key == nil {
			return nil, compileerr.Unsupported("nil", "order key is nil")
		}
		refs, err := c.specRefs(s.Key)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			out = append(out, OrderRequest{Ref: r, Descending: s.Descending})
		}
	}
	return out, nil
}

// CompileWindowFunctions compiles the Win calls of a result selector. Key
// members and Agg members are left to the grouping compiler.
func (c *Compiler) CompileWindowFunctions(result *expr.Lambda) ([]FuncRequest, error) {
	g, rec, err := resultRecord(result)
	if err != nil {
		return nil, err
	}
	var out []FuncRequest
	for i, m := range rec.Members {
		if grouping.IsKeyRef(m.Value, g) {
			continue
		}
		call, ok := m.Value.(*expr.Call)
		if !ok {
			return nil, compileerr.Unsupported(expr.Describe(m.Value), "result member %q is not the key or a function call", m.Name)
		}
		if call.Class == expr.ClassAgg {
			continue
		}
		alias := m.Name
		if alias == "" {
			alias = fmt.Sprintf("Value%d", i)
		}
		f, err := c.windowCall(call, g, alias)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// CompileSelect splits a windowed result selector into the aggregates the
// grouping layer computes and the window functions evaluated over them.
func (c *Compiler) CompileSelect(result *expr.Lambda) ([]grouping.AggregateRequest, []FuncRequest, error) {
	g, rec, err := resultRecord(result)
	if err != nil {
		return nil, nil, err
	}
	funcs, err := c.CompileWindowFunctions(result)
	if err != nil {
		return nil, nil, err
	}
	// Unnamed members keep the position they had in the full record.
	aggOnly := &expr.New{}
	seen := make(map[string]bool, len(rec.Members))
	for i, m := range rec.Members {
		if grouping.IsKeyRef(m.Value, g) {
			aggOnly.Members = append(aggOnly.Members, m)
			continue
		}
		if m.Name == "" {
			m.Name = fmt.Sprintf("Value%d", i)
		}
		if seen[m.Name] {
			return nil, nil, compileerr.Unsupported(expr.Describe(rec), "duplicate result alias %q", m.Name)
		}
		seen[m.Name] = true
		if call, ok := m.Value.(*expr.Call); ok && call.Class != expr.ClassAgg {
			continue
		}
		aggOnly.Members = append(aggOnly.Members, m)
	}
	aggs, err := c.groups.CompileAggregates(expr.Func(aggOnly, g))
	if err != nil {
		return nil, nil, err
	}
	return aggs, funcs, nil
}

func (c *Compiler) windowCall(call *expr.Call, g *expr.Param, alias string) (FuncRequest, error) {
	if call.Class != expr.ClassWin {
		return FuncRequest{}, compileerr.UnknownFunction(expr.Describe(call), "%s.%s is not a window function", call.Class, call.Method)
	}
	fn, ok := ParseFunction(call.Method)
	if !ok {
		return FuncRequest{}, compileerr.UnknownFunction(expr.Describe(call), "unknown window function %s", call.Method)
	}
	req := FuncRequest{Function: fn, Alias: alias}
	args := call.Args

	switch {
	case fn == Ntile:
		if len(args) != 1 {
			return FuncRequest{}, compileerr.Unsupported(expr.Describe(call), "Ntile takes the bucket count")
		}
		n, err := intArg(call, args[0])
		if err != nil {
			return FuncRequest{}, err
		}
		if n <= 0 {
			return FuncRequest{}, compileerr.Unsupported(expr.Describe(call), "Ntile bucket count must be positive, got %d", n)
		}
		req.Argument = n
		req.Type = schema.Int
		return req, nil

	case fn.Ranking():
		if len(args) != 0 {
			return FuncRequest{}, compileerr.Unsupported(expr.Describe(call), "%s takes no arguments", fn)
		}
		req.Type = schema.Int
		return req, nil

	case fn.Offset():
		if len(args) < 1 || len(args) > 2 {
			return FuncRequest{}, compileerr.Unsupported(expr.Describe(call), "%s takes a value and an optional offset", fn)
		}
		req.Argument = 1
		if len(args) == 2 {
			n, err := intArg(call, args[1])
			if err != nil {
				return FuncRequest{}, err
			}
			if n < 0 {
				return FuncRequest{}, compileerr.Unsupported(expr.Describe(call), "%s offset must not be negative, got %d", fn, n)
			}
			req.Argument = n
		}

	case fn == Count && len(args) == 0:
		req.FieldPath = grouping.CountAll
		req.Type = schema.Int
		return req, nil

	default:
		if len(args) != 1 {
			return FuncRequest{}, compileerr.Unsupported(expr.Describe(call), "%s takes one value", fn)
		}
	}

	ref, err := c.valueRef(args[0], g)
	if err != nil {
		return FuncRequest{}, err
	}
	if (fn == Sum || fn == Average) && ref.Type != nil && !ref.Type.IsNumeric() {
		return FuncRequest{}, compileerr.Unsupported(expr.Describe(call), "%s needs a numeric value, %s is %s", fn, ref.FieldPath, ref.Type)
	}
	req.Ref = ref
	if fn == Count {
		req.Type = schema.Int
	}
	return req, nil
}

// specRefs compiles the body of a partition or order key.
func (c *Compiler) specRefs(spec *expr.Lambda) ([]Ref, error) {
	if len(spec.Params) != 1 {
		return nil, compileerr.Unsupported(expr.Describe(spec), "window spec takes one parameter, got %d", len(spec.Params))
	}
	p := spec.Params[0]
	if rec, ok := spec.Body.(*expr.New); ok {
		if len(rec.Members) == 0 {
			return nil, compileerr.Unsupported(expr.Describe(spec), "window spec record has no members")
		}
		refs := make([]Ref, 0, len(rec.Members))
		for _, m := range rec.Members {
			r, err := c.specRef(m.Value, p)
			if err != nil {
				return nil, err
			}
			refs = append(refs, r)
		}
		return refs, nil
	}
	r, err := c.specRef(spec.Body, p)
	if err != nil {
		return nil, err
	}
	return []Ref{r}, nil
}

func (c *Compiler) specRef(e expr.Expr, p *expr.Param) (Ref, error) {
	if call, ok := e.(*expr.Call); ok && call.Class == expr.ClassAgg {
		return c.aggregateRef(call, p)
	}
	if p.Role == expr.RoleGroup {
		return Ref{}, compileerr.Unsupported(expr.Describe(e), "group spec must be an aggregate call")
	}
	return c.fieldRef(e, p)
}

// valueRef compiles the value argument of a window function: a field
// selector lambda or an aggregate call over the result's group.
func (c *Compiler) valueRef(arg expr.Expr, g *expr.Param) (Ref, error) {
	switch n := arg.(type) {
	case *expr.Lambda:
		if len(n.Params) != 1 {
			return Ref{}, compileerr.Unsupported(expr.Describe(n), "field selector takes one parameter, got %d", len(n.Params))
		}
		return c.fieldRef(n.Body, n.Params[0])
	case *expr.Call:
		if n.Class == expr.ClassAgg {
			return c.aggregateRef(n, g)
		}
	}
	return Ref{}, compileerr.Unsupported(expr.Describe(arg), "window value must be a field selector or an aggregate call")
}

func (c *Compiler) fieldRef(e expr.Expr, p *expr.Param) (Ref, error) {
	r, err := c.groups.Paths().Resolve(e, grouping.ScopeOf(p))
	if err != nil {
		return Ref{}, err
	}
	if r.Function != filter.FuncNone {
		return Ref{}, compileerr.Unsupported(expr.Describe(e), "cannot use %s in a window", r.Function)
	}
	return Ref{FieldPath: r.Path, IsBaseField: r.IsBaseField, Type: r.Type}, nil
}

func (c *Compiler) aggregateRef(call *expr.Call, g *expr.Param) (Ref, error) {
	a, err := c.groups.Aggregate(call, g, "")
	if err != nil {
		return Ref{}, err
	}
	a.Alias = a.ColumnName()
	return Ref{FieldPath: a.ColumnName(), IsAggregate: true, Aggregate: a, Type: a.Type}, nil
}

func resultRecord(result *expr.Lambda) (*expr.Param, *expr.New, error) {
	if result == nil {
		return nil, nil, compileerr.Unsupported("nil", "result selector is nil")
	}
	if len(result.Params) != 1 {
		return nil, nil, compileerr.Unsupported(expr.Describe(result), "result selector takes one parameter, got %d", len(result.Params))
	}
	rec, ok := result.Body.(*expr.New)
	if !ok {
		return nil, nil, compileerr.Unsupported(expr.Describe(result), "result selector must be a record")
	}
	return result.Params[0], rec, nil
}

func intArg(call *expr.Call, e expr.Expr) (int, error) {
	k, ok := e.(*expr.Const)
	if !ok {
		return 0, compileerr.Unsupported(expr.Describe(call), "%s argument must be an integer constant", call.Method)
	}
	switch v := k.Value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	}
	return 0, compileerr.Unsupported(expr.Describe(call), "%s argument must be an integer constant, got %T", call.Method, k.Value)
}
