package querysql

import (
	"fmt"
	"regexp"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/schema"
)

var (
	alwaysTrue  = goqu.L("1 = 1")
	alwaysFalse = goqu.L("1 = 0")
)

var comparisonSQL = map[filter.Operator]string{
	filter.Equal:              "? = ?",
	filter.NotEqual:           "? <> ?",
	filter.GreaterThan:        "? > ?",
	filter.GreaterThanOrEqual: "? >= ?",
	filter.LessThan:           "? < ?",
	filter.LessThanOrEqual:    "? <= ?",
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// scope renders expressions for one statement. joins maps the path of an
// iterated array to the alias of its CROSS JOIN.
type scope struct {
	f     flavor
	kind  *schema.EntityKind
	table string
	joins map[string]string
	order []string
}

func (s *scope) props() exp.Expression {
	return goqu.I(s.table + ".props")
}

// where renders a predicate.
func (s *scope) where(e filter.Expression) (exp.Expression, error) {
	switch n := e.(type) {
	case filter.Comparison:
		return s.comparison(n)
	case *filter.Comparison:
		return s.comparison(*n)
	case filter.Logical:
		return s.logical(n)
	case *filter.Logical:
		return s.logical(*n)
	case filter.In:
		return s.in(n)
	case *filter.In:
		return s.in(*n)
	case filter.NullCheck:
		return s.nullCheck(n)
	case *filter.NullCheck:
		return s.nullCheck(*n)
	case nil:
		return nil, fmt.Errorf("nil predicate")
	default:
		return nil, fmt.Errorf("unsupported predicate node %T", e)
	}
}

func (s *scope) logical(n filter.Logical) (exp.Expression, error) {
	parts := make([]exp.Expression, 0, len(n.Operands))
	for _, op := range n.Operands {
		p, err := s.where(op)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	switch n.Operator {
	case filter.OpAnd:
		if len(parts) == 0 {
			return alwaysTrue, nil
		}
		return goqu.And(parts...), nil
	case filter.OpOr:
		if len(parts) == 0 {
			return alwaysFalse, nil
		}
		return goqu.Or(parts...), nil
	case filter.OpNot:
		if len(parts) != 1 {
			return nil, fmt.Errorf("negation takes one operand, got %d", len(parts))
		}
		return goqu.L("NOT (?)", parts[0]), nil
	}
	return nil, fmt.Errorf("unsupported logical operator %s", n.Operator)
}

func (s *scope) in(n filter.In) (exp.Expression, error) {
	if len(n.Values) == 0 {
		return alwaysFalse, nil
	}
	col, _, err := s.property(n.Property)
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(n.Values))
	for i, v := range n.Values {
		vals[i] = s.f.value(v)
	}
	return goqu.L("? IN ?", col, vals), nil
}

func (s *scope) nullCheck(n filter.NullCheck) (exp.Expression, error) {
	col, _, err := s.property(n.Property)
	if err != nil {
		return nil, err
	}
	if n.IsEqualNull {
		return goqu.L("? IS NULL", col), nil
	}
	return goqu.L("? IS NOT NULL", col), nil
}

func (s *scope) comparison(n filter.Comparison) (exp.Expression, error) {
	if n.IsExtended() {
		return s.extended(n)
	}

	p := n.Property
	if !p.IsBaseField {
		if dict, ok := splitContainsKey(p.Path); ok {
			loc, err := locate(s.kind, dict)
			if err == nil && loc.typ.Is(schema.KindDictionary) && !loc.each {
				key, ok := n.Value.(string)
				if !ok {
					return nil, fmt.Errorf("%s: dictionary key must be a string, got %T", p.Path, n.Value)
				}
				return s.f.containsKey(s.props(), loc.steps, key), nil
			}
		}
		loc, err := locate(s.kind, p.Path)
		if err != nil {
			return nil, err
		}
		if loc.each {
			return s.elementComparison(n, loc)
		}
		if n.Operator == filter.ArrayContains {
			if !loc.typ.Is(schema.KindArray) {
				return nil, fmt.Errorf("%s: ArrayContains on %s", p.Path, loc.typ)
			}
			return s.f.arrayContains(s.props(), loc.steps, n.Value), nil
		}
	}

	col, _, err := s.property(p)
	if err != nil {
		return nil, err
	}
	return s.compare(col, n.Operator, s.f.value(n.Value))
}

// elementComparison renders array[].field OP value as an EXISTS over the
// array elements.
func (s *scope) elementComparison(n filter.Comparison, loc location) (exp.Expression, error) {
	alias := "e"
	elem := s.f.typed(s.f.element(alias, loc.elem), loc.typ)
	cond, err := s.compare(elem, n.Operator, s.f.value(n.Value))
	if err != nil {
		return nil, err
	}
	return goqu.L("EXISTS (SELECT 1 FROM ? WHERE ?)", s.f.each(s.props(), loc.steps, alias), cond), nil
}

func (s *scope) compare(l exp.Expression, op filter.Operator, r any) (exp.Expression, error) {
	if tmpl, ok := comparisonSQL[op]; ok {
		return goqu.L(tmpl, l, r), nil
	}
	if op.IsString() {
		if str, ok := r.(string); ok && str == "" {
			return goqu.L("? IS NOT NULL", l), nil
		}
		if op.IgnoreCase() {
			l = goqu.L("lower(?)", l)
			r = goqu.L("lower(?)", r)
		}
		switch op {
		case filter.Contains, filter.ContainsIgnoreCase:
			return s.f.contains(l, r), nil
		case filter.StartsWith, filter.StartsWithIgnoreCase:
			return s.f.startsWith(l, r), nil
		case filter.EndsWith, filter.EndsWithIgnoreCase:
			return s.f.endsWith(l, r), nil
		}
	}
	return nil, fmt.Errorf("operator %s cannot compare scalars", op)
}

func (s *scope) extended(n filter.Comparison) (exp.Expression, error) {
	if n.Left == nil || n.Right == nil {
		return nil, fmt.Errorf("extended comparison needs both operands")
	}
	l, err := s.value(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := s.value(n.Right)
	if err != nil {
		return nil, err
	}
	return s.compare(l, n.Operator, r)
}

// value renders an operand of an extended comparison.
func (s *scope) value(v filter.ValueExpression) (exp.Expression, error) {
	switch n := v.(type) {
	case filter.Constant:
		return goqu.L("?", s.f.value(n.Value)), nil
	case filter.PropertyRef:
		col, _, err := s.property(filter.PropertyInfo{Path: n.Path, Type: n.Type, IsBaseField: n.IsBaseField})
		return col, err
	case filter.Arithmetic:
		l, err := s.value(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := s.value(n.Right)
		if err != nil {
			return nil, err
		}
		return goqu.L("(? "+n.Op.Symbol()+" ?)", l, r), nil
	case filter.FunctionCall:
		if ref, ok := n.Arg.(filter.PropertyRef); ok && n.Function.IsCollection() {
			col, _, err := s.property(filter.PropertyInfo{Path: ref.Path, Type: ref.Type, IsBaseField: ref.IsBaseField, Function: n.Function})
			return col, err
		}
		arg, err := s.value(n.Arg)
		if err != nil {
			return nil, err
		}
		return s.apply(n.Function, arg, nil)
	case filter.CustomFunctionCall:
		if !identifier.MatchString(n.Name) {
			return nil, fmt.Errorf("invalid function name %q", n.Name)
		}
		args := make([]any, len(n.Args))
		tmpl := n.Name + "("
		for i, a := range n.Args {
			x, err := s.value(a)
			if err != nil {
				return nil, err
			}
			args[i] = x
			if i > 0 {
				tmpl += ", "
			}
			tmpl += "?"
		}
		return goqu.L(tmpl+")", args...), nil
	case nil:
		return nil, fmt.Errorf("nil operand")
	}
	return nil, fmt.Errorf("unsupported operand node %T", v)
}

// property renders a stored value read through its declared type, with
// any folded function applied.
func (s *scope) property(p filter.PropertyInfo) (exp.Expression, *schema.Type, error) {
	if p.IsBaseField {
		col, t, err := baseColumn(p.Path)
		if err != nil {
			return nil, nil, err
		}
		e, err := s.apply(p.Function, goqu.I(s.table+"."+col), t)
		return e, t, err
	}

	loc, err := locate(s.kind, p.Path)
	if err != nil {
		return nil, nil, err
	}

	var raw exp.Expression
	if loc.each {
		alias, ok := s.joins[arrayKey(loc)]
		if !ok {
			return nil, nil, fmt.Errorf("%s: element path outside an element predicate", p.Path)
		}
		raw = s.f.element(alias, loc.elem)
	} else {
		switch {
		case p.Function.IsCollection() && loc.typ.Is(schema.KindArray):
			return s.f.arrayLength(s.props(), loc.steps), schema.Int, nil
		case p.Function == filter.FuncCount && loc.typ.Is(schema.KindDictionary):
			return s.f.dictCount(s.props(), loc.steps), schema.Int, nil
		}
		raw = s.f.extract(s.props(), loc.steps)
	}
	e, err := s.apply(p.Function, s.f.typed(raw, loc.typ), loc.typ)
	return e, loc.typ, err
}

// apply wraps x in fn. t is the declared type of x when known.
func (s *scope) apply(fn filter.Function, x exp.Expression, t *schema.Type) (exp.Expression, error) {
	switch fn {
	case filter.FuncNone:
		return x, nil
	case filter.FuncToLower:
		return goqu.L("lower(?)", x), nil
	case filter.FuncToUpper:
		return goqu.L("upper(?)", x), nil
	case filter.FuncTrim:
		return goqu.L("trim(?)", x), nil
	case filter.FuncTrimStart:
		return goqu.L("ltrim(?)", x), nil
	case filter.FuncTrimEnd:
		return goqu.L("rtrim(?)", x), nil
	case filter.FuncAbs:
		return goqu.L("abs(?)", x), nil
	case filter.FuncRound:
		return goqu.L("round(?)", x), nil
	case filter.FuncFloor:
		return s.f.floor(x), nil
	case filter.FuncCeiling:
		return s.f.ceiling(x), nil
	case filter.FuncLength:
		if t != nil && !t.Is(schema.KindString) {
			return nil, fmt.Errorf("cannot take the length of %s", t)
		}
		return goqu.L("length(?)", x), nil
	case filter.FuncCount:
		return nil, fmt.Errorf("cannot count %s", t)
	}
	if fn.IsDatePart() {
		return s.f.datePart(fn, x), nil
	}
	return nil, fmt.Errorf("unsupported function %s", fn)
}

func arrayKey(loc location) string {
	return sqliteJSONPath(loc.steps)
}
