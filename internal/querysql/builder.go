package querysql

import (
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/window"
)

const (
	objectsTable = "objects"
	objectsAlias = "o"
	groupedAlias = "grouped"
)

// Envelope lists the base columns of a search row in output order, keyed
// by field name.
var Envelope = []string{"Id", "ParentId", "OwnerId", "Name", "Note", "DateCreate", "DateModify"}

// PropsColumn is the output name of the property document in search rows.
const PropsColumn = "Props"

// Statement is rendered SQL with its arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Builder renders statements over entities of one kind.
type Builder struct {
	dialect Dialect
	f       flavor
	gq      goqu.DialectWrapper
	kind    *schema.EntityKind
}

// New creates a Builder for kind in dialect d.
func New(d Dialect, kind *schema.EntityKind) (*Builder, error) {
	f, err := flavorOf(d)
	if err != nil {
		return nil, err
	}
	if kind == nil {
		return nil, fmt.Errorf("nil entity kind")
	}
	return &Builder{dialect: d, f: f, gq: goqu.Dialect(string(d)), kind: kind}, nil
}

// Dialect returns the dialect statements are rendered in.
func (b *Builder) Dialect() Dialect { return b.dialect }

// Kind returns the entity kind statements select.
func (b *Builder) Kind() *schema.EntityKind { return b.kind }

// Render converts a dataset into SQL. Prepared statements carry their
// values as arguments; otherwise values are interpolated for display.
func Render(ds *goqu.SelectDataset, prepared bool) (Statement, error) {
	sql, args, err := ds.Prepared(prepared).ToSQL()
	if err != nil {
		return Statement{}, fmt.Errorf("render sql: %w", err)
	}
	return Statement{SQL: sql, Args: args}, nil
}

func (b *Builder) newScope() *scope {
	return &scope{f: b.f, kind: b.kind, table: objectsAlias, joins: map[string]string{}}
}

// from selects objects of the builder's kind that satisfy where. A nil
// where selects every object of the kind.
func (b *Builder) from(s *scope, where filter.Expression) (*goqu.SelectDataset, error) {
	ds := b.gq.From(goqu.T(objectsTable).As(objectsAlias)).
		Where(goqu.I(objectsAlias + ".kind").Eq(b.kind.Name))
	if where == nil {
		return ds, nil
	}
	if res := filter.Validate(where); !res.IsValid {
		return nil, fmt.Errorf("invalid predicate: %s", strings.Join(res.Errors, "; "))
	}
	w, err := s.where(where)
	if err != nil {
		return nil, err
	}
	return ds.Where(w), nil
}

// Search selects matching objects with their envelope and property
// document, ordered by id.
func (b *Builder) Search(where filter.Expression) (*goqu.SelectDataset, error) {
	s := b.newScope()
	ds, err := b.from(s, where)
	if err != nil {
		return nil, err
	}
	cols := make([]any, 0, len(Envelope)+1)
	for _, field := range Envelope {
		col, _, _ := baseColumn(field)
		cols = append(cols, goqu.I(objectsAlias+"."+col).As(field))
	}
	cols = append(cols, goqu.I(objectsAlias+".props").As(PropsColumn))
	return ds.Select(cols...).Order(goqu.I(objectsAlias + ".id").Asc()), nil
}

// GroupedAggregate selects one row per distinct key with the requested
// aggregates, ordered by the key columns.
func (b *Builder) GroupedAggregate(keys []grouping.GroupFieldRequest, aggs []grouping.AggregateRequest, where filter.Expression) (*goqu.SelectDataset, error) {
	if err := checkAliases(keys, aggs); err != nil {
		return nil, err
	}
	s := b.newScope()
	ds, err := b.from(s, where)
	if err != nil {
		return nil, err
	}

	for _, k := range keys {
		if ds, err = b.joinElements(s, ds, k.FieldPath, k.IsBaseField); err != nil {
			return nil, err
		}
	}
	for _, a := range aggs {
		if a.FieldPath == grouping.CountAll {
			continue
		}
		if ds, err = b.joinElements(s, ds, a.FieldPath, a.IsBaseField); err != nil {
			return nil, err
		}
	}

	sel := make([]any, 0, len(keys)+len(aggs))
	group := make([]any, 0, len(keys))
	order := make([]exp.OrderedExpression, 0, len(keys))
	for _, k := range keys {
		e, _, err := s.property(filter.PropertyInfo{Path: k.FieldPath, Type: k.Type, IsBaseField: k.IsBaseField})
		if err != nil {
			return nil, err
		}
		sel = append(sel, goqu.L("?", e).As(k.Alias))
		group = append(group, e)
		order = append(order, goqu.I(k.Alias).Asc())
	}
	for _, a := range aggs {
		e, err := b.aggregate(s, a)
		if err != nil {
			return nil, err
		}
		sel = append(sel, e.As(a.Alias))
	}
	if len(sel) == 0 {
		return nil, fmt.Errorf("grouped query selects nothing")
	}

	ds = ds.Select(sel...)
	if len(group) > 0 {
		ds = ds.GroupBy(group...).Order(order...)
	} else {
		ds = ds.Order(goqu.L("1").Asc())
	}
	return ds, nil
}

// CountGroups counts the distinct keys among matching objects.
func (b *Builder) CountGroups(keys []grouping.GroupFieldRequest, where filter.Expression) (*goqu.SelectDataset, error) {
	if len(keys) == 0 {
		return b.GroupedAggregate(nil, grouping.CountOnly(), where)
	}
	inner, err := b.GroupedAggregate(keys, nil, where)
	if err != nil {
		return nil, err
	}
	return b.gq.From(inner.ClearOrder().As("groups")).
		Select(goqu.COUNT(goqu.Star()).As("Count")).
		Order(goqu.L("1").Asc()), nil
}

// GroupedWindow evaluates window functions over the grouped rows. Aggregate
// columns the window entries depend on are added to the grouping under
// their synthesized names.
func (b *Builder) GroupedWindow(
	keys []grouping.GroupFieldRequest,
	aggs []grouping.AggregateRequest,
	funcs []window.FuncRequest,
	partition []window.FieldRequest,
	order []window.OrderRequest,
	where filter.Expression,
) (*goqu.SelectDataset, error) {
	all := append([]grouping.AggregateRequest(nil), aggs...)
	have := make(map[string]bool, len(aggs))
	for _, a := range aggs {
		have[a.Alias] = true
	}
	for _, a := range window.Aggregates(partition, order, funcs) {
		if !have[a.Alias] {
			all = append(all, a)
			have[a.Alias] = true
		}
	}

	inner, err := b.GroupedAggregate(keys, all, where)
	if err != nil {
		return nil, err
	}

	w := windowScope{keys: keys}
	over, overArgs, err := w.over(partition, order)
	if err != nil {
		return nil, err
	}

	sel := []any{goqu.T(groupedAlias).All()}
	for _, f := range funcs {
		if have[f.Alias] || w.isKey(f.Alias) {
			return nil, fmt.Errorf("window alias %q is already used", f.Alias)
		}
		call, args, err := w.call(f)
		if err != nil {
			return nil, err
		}
		tmpl := call + " OVER (" + over
		if f.Function == window.FirstValue || f.Function == window.LastValue {
			tmpl += frameSpec(len(partition) > 0 || len(order) > 0)
		}
		tmpl += ")"
		sel = append(sel, goqu.L(tmpl, append(args, overArgs...)...).As(f.Alias))
	}

	outerOrder := make([]exp.OrderedExpression, 0, len(order)+len(keys))
	for _, o := range order {
		col, err := w.ref(o.Ref)
		if err != nil {
			return nil, err
		}
		if o.Descending {
			outerOrder = append(outerOrder, col.Desc())
		} else {
			outerOrder = append(outerOrder, col.Asc())
		}
	}
	for _, k := range keys {
		outerOrder = append(outerOrder, goqu.I(groupedAlias+"."+k.Alias).Asc())
	}
	if len(outerOrder) == 0 {
		outerOrder = append(outerOrder, goqu.L("1").Asc())
	}

	return b.gq.From(inner.ClearOrder().As(groupedAlias)).Select(sel...).Order(outerOrder...), nil
}

// joinElements adds a CROSS JOIN over the array of an element path, once
// per array.
func (b *Builder) joinElements(s *scope, ds *goqu.SelectDataset, path string, base bool) (*goqu.SelectDataset, error) {
	if base {
		return ds, nil
	}
	loc, err := locate(b.kind, path)
	if err != nil {
		return nil, err
	}
	if !loc.each {
		return ds, nil
	}
	k := arrayKey(loc)
	if _, ok := s.joins[k]; ok {
		return ds, nil
	}
	alias := fmt.Sprintf("e%d", len(s.joins))
	s.joins[k] = alias
	return ds.CrossJoin(s.f.each(s.props(), loc.steps, alias)), nil
}

func (b *Builder) aggregate(s *scope, a grouping.AggregateRequest) (exp.SQLFunctionExpression, error) {
	if a.FieldPath == grouping.CountAll {
		if a.Function != grouping.Count {
			return nil, fmt.Errorf("%s needs a field", a.Function)
		}
		return goqu.COUNT(goqu.Star()), nil
	}
	e, _, err := s.property(filter.PropertyInfo{Path: a.FieldPath, Type: a.Type, IsBaseField: a.IsBaseField})
	if err != nil {
		return nil, err
	}
	switch a.Function {
	case grouping.Sum:
		return goqu.SUM(e), nil
	case grouping.Average:
		return goqu.AVG(e), nil
	case grouping.Min:
		return goqu.MIN(e), nil
	case grouping.Max:
		return goqu.MAX(e), nil
	case grouping.Count:
		return goqu.COUNT(e), nil
	}
	return nil, fmt.Errorf("unsupported aggregate %s", a.Function)
}

func checkAliases(keys []grouping.GroupFieldRequest, aggs []grouping.AggregateRequest) error {
	seen := make(map[string]bool, len(keys)+len(aggs))
	for _, k := range keys {
		if seen[k.Alias] {
			return fmt.Errorf("duplicate column alias %q", k.Alias)
		}
		seen[k.Alias] = true
	}
	for _, a := range aggs {
		if seen[a.Alias] {
			return fmt.Errorf("duplicate column alias %q", a.Alias)
		}
		seen[a.Alias] = true
	}
	return nil
}
