package pathres

import (
	"fmt"
	"strings"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/schema"
)

// Scope says how direct members of an entity parameter resolve.
type Scope int

const (
	// ScopeProps resolves every member against the property bag.
	ScopeProps Scope = iota
	// ScopeBase resolves direct members against the envelope's base fields;
	// only members reached through the root marker are property-bag fields.
	ScopeBase
)

func (s Scope) String() string {
	if s == ScopeBase {
		return "base"
	}
	return "props"
}

// Resolved is a flattened member chain.
type Resolved struct {
	// Path is the storage path, segments joined with ".".
	Path string

	// Depth is the number of retained segments.
	Depth int

	// Type is the declared type of the stored value the path names, before
	// Function is applied.
	Type *schema.Type

	IsBaseField bool

	// Function is Length or Count for pseudo-members, or a date part
	// (Year, Month, ...) accessed on a date-time.
	Function filter.Function

	// Root is the parameter the chain starts from.
	Root *expr.Param
}

// Property converts r into the algebra's PropertyInfo.
func (r Resolved) Property() filter.PropertyInfo {
	return filter.PropertyInfo{
		Path:        r.Path,
		Type:        r.Type,
		IsBaseField: r.IsBaseField,
		Function:    r.Function,
	}
}

// Resolver applies one depth policy. It holds no per-call state and is safe
// for concurrent use.
type Resolver struct {
	policy Policy
}

// New creates a Resolver enforcing policy.
func New(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Policy returns the resolver's depth policy.
func (r *Resolver) Policy() Policy { return r.policy }

// segment is one step of a member chain before flattening.
type segment struct {
	name  string
	key   expr.Expr // indexer key, nil for plain members
	owner *schema.Type
	typ   *schema.Type
	node  expr.Expr
}

// Resolve flattens a chain of member accesses and indexers rooted at a
// lambda parameter.
func (r *Resolver) Resolve(e expr.Expr, scope Scope) (Resolved, error) {
	root, segs, err := unwind(e)
	if err != nil {
		return Resolved{}, err
	}

	out := Resolved{Root: root}
	parts := make([]string, 0, len(segs))
	first := true

	for i, s := range segs {
		if s.key == nil && s.name == schema.RootMarker {
			first = false
			continue
		}

		if fn, ok := pseudoFunction(s); ok {
			if i != len(segs)-1 {
				return Resolved{}, compileerr.Unsupported(expr.Describe(e),
					"member access after %s", s.name)
			}
			if len(parts) == 0 {
				return Resolved{}, compileerr.Unsupported(expr.Describe(e),
					"%s needs a property to apply to", s.name)
			}
			out.Function = fn
			break
		}

		if first && scope == ScopeBase && root.Role != expr.RoleItem && s.key == nil {
			t, ok := schema.BaseField(s.name)
			if !ok {
				return Resolved{}, compileerr.Unsupported(expr.Describe(e),
					"%q is not a base field", s.name)
			}
			out.IsBaseField = true
			out.Type = t
			parts = append(parts, s.name)
			first = false
			continue
		}
		first = false

		part := s.name
		if s.key != nil {
			k, err := indexSegment(s)
			if err != nil {
				return Resolved{}, compileerr.Unsupported(expr.Describe(e), "%s", err)
			}
			part += "[" + k + "]"
		}
		parts = append(parts, part)
		out.Type = s.typ
	}

	if len(parts) == 0 {
		return Resolved{}, compileerr.Unsupported(expr.Describe(e), "member chain names no property")
	}

	out.Path = strings.Join(parts, ".")
	out.Depth = len(parts)
	if err := r.check(out.Path, out.Depth); err != nil {
		return Resolved{}, err
	}
	return out, nil
}

// JoinElement resolves a path inside the elements of an array property:
// Skills + Name becomes "Skills[].Name". The combined depth is checked
// against the policy.
func (r *Resolver) JoinElement(array, elem Resolved) (Resolved, error) {
	out := elem
	out.Path = array.Path + "[]." + elem.Path
	out.Depth = array.Depth + elem.Depth
	out.IsBaseField = false
	out.Root = array.Root
	if err := r.check(out.Path, out.Depth); err != nil {
		return Resolved{}, err
	}
	return out, nil
}

func (r *Resolver) check(path string, depth int) error {
	if limit := r.policy.Limit(); limit > 0 && depth > limit {
		return compileerr.PathDepthExceeded(path, depth, limit)
	}
	return nil
}

// unwind walks a chain from its outermost node down to the parameter and
// returns the segments root first.
func unwind(e expr.Expr) (*expr.Param, []segment, error) {
	var segs []segment
	cur := e
	for {
		switch n := cur.(type) {
		case *expr.Param:
			if n.Role == expr.RoleGroup {
				return nil, nil, compileerr.Unsupported(expr.Describe(e),
					"group parameter used as a property")
			}
			for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
				segs[i], segs[j] = segs[j], segs[i]
			}
			return n, segs, nil
		case *expr.Member:
			segs = append(segs, segment{name: n.Name, owner: ownerType(n.Target), typ: n.Type, node: n})
			cur = n.Target
		case *expr.Index:
			m, ok := n.Target.(*expr.Member)
			if !ok {
				return nil, nil, compileerr.Unsupported(expr.Describe(e),
					"indexer must apply to a property, got %s", expr.Kind(n.Target))
			}
			segs = append(segs, segment{name: m.Name, key: n.Key, owner: m.Type, typ: n.Type, node: n})
			cur = m.Target
		case nil:
			return nil, nil, compileerr.Unsupported("nil", "empty member chain")
		default:
			return nil, nil, compileerr.Unsupported(expr.Describe(e),
				"not a member chain: contains %s", expr.Kind(cur))
		}
	}
}

func ownerType(target expr.Expr) *schema.Type {
	switch t := target.(type) {
	case *expr.Param:
		return t.Type
	case *expr.Member:
		return t.Type
	case *expr.Index:
		return t.Type
	}
	return nil
}

// pseudoFunction classifies members that are functions of the stored value
// rather than path segments.
func pseudoFunction(s segment) (filter.Function, bool) {
	if s.key != nil {
		return filter.FuncNone, false
	}
	switch s.name {
	case "Length":
		return filter.FuncLength, true
	case "Count":
		return filter.FuncCount, true
	}
	if s.owner.Is(schema.KindDateTime) && expr.IsDatePart(s.name) {
		fn, _ := filter.ParseFunction(s.name)
		return fn, true
	}
	return filter.FuncNone, false
}

// indexSegment renders the bracketed part of name[key].
func indexSegment(s segment) (string, error) {
	c, ok := s.key.(*expr.Const)
	if !ok {
		return "", fmt.Errorf("indexer key must be a constant, got %s", expr.Kind(s.key))
	}
	if s.owner.Is(schema.KindArray) {
		switch i := c.Value.(type) {
		case int:
			return fmt.Sprint(i), nil
		case int32:
			return fmt.Sprint(i), nil
		case int64:
			return fmt.Sprint(i), nil
		}
		return "", fmt.Errorf("array index must be an integer, got %T", c.Value)
	}
	var keyType *schema.Type
	if s.owner.Is(schema.KindDictionary) {
		keyType = s.owner.Key
	}
	return SerializeKey(c.Value, keyType)
}
