package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/querysql"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/window"
)

// Op names a boundary operation.
type Op int

const (
	OpSearch Op = iota
	OpGroupedAggregate
	OpGroupedWindow
	OpCountGroups
)

var opNames = [...]string{
	OpSearch:           "search",
	OpGroupedAggregate: "grouped-aggregate",
	OpGroupedWindow:    "grouped-window",
	OpCountGroups:      "count-groups",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(o))
	}
	return opNames[o]
}

// Query is a compiled request against one entity kind. Where may be nil.
type Query struct {
	Kind       *schema.EntityKind
	Where      filter.Expression
	Keys       []grouping.GroupFieldRequest
	Aggregates []grouping.AggregateRequest
	Partition  []window.FieldRequest
	Order      []window.OrderRequest
	Functions  []window.FuncRequest
}

// Op infers the operation a query asks for: window functions make a
// grouped window, keys or aggregates a grouped aggregate, and anything
// else a filtered search.
func (q Query) Op() Op {
	switch {
	case len(q.Functions) > 0:
		return OpGroupedWindow
	case len(q.Keys) > 0 || len(q.Aggregates) > 0:
		return OpGroupedAggregate
	}
	return OpSearch
}

// FilteredSearch returns matching objects with their envelope and Props
// document, ordered by id.
func (s *Store) FilteredSearch(ctx context.Context, q Query) ([]byte, error) {
	return s.run(ctx, OpSearch, q)
}

// GroupedAggregate returns one row per distinct key with the requested
// aggregates, ordered by key.
func (s *Store) GroupedAggregate(ctx context.Context, q Query) ([]byte, error) {
	return s.run(ctx, OpGroupedAggregate, q)
}

// GroupedWindow returns grouped rows extended with window function
// columns.
func (s *Store) GroupedWindow(ctx context.Context, q Query) ([]byte, error) {
	return s.run(ctx, OpGroupedWindow, q)
}

// CountGroups returns the number of distinct keys among matching objects,
// or the number of matching objects when the query has no keys.
func (s *Store) CountGroups(ctx context.Context, q Query) (int64, error) {
	rows, err := s.run(ctx, OpCountGroups, q)
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(rows, "0.Count").Int(), nil
}

// Execute runs the operation inferred by q.Op.
func (s *Store) Execute(ctx context.Context, q Query) ([]byte, error) {
	return s.run(ctx, q.Op(), q)
}

// Preview returns the SQL op would run, with values interpolated.
func (s *Store) Preview(op Op, q Query) (string, error) {
	st, err := s.statement(op, q, false)
	if err != nil {
		return "", err
	}
	return st.SQL, nil
}

func (s *Store) run(ctx context.Context, op Op, q Query) ([]byte, error) {
	st, err := s.statement(op, q, true)
	if err != nil {
		return nil, err
	}

	queryID := uuid.NewString()
	start := time.Now()
	s.log.Debug("executing query",
		"query_id", queryID,
		"op", op.String(),
		"kind", q.Kind.Name,
		"sql", st.SQL,
		"args", len(st.Args))

	rows, err := s.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		s.log.Error("query failed", "query_id", queryID, "op", op.String(), "error", err)
		return nil, fmt.Errorf("%s %s: %w", op, q.Kind.Name, err)
	}
	defer rows.Close()

	data, n, err := encodeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, q.Kind.Name, err)
	}

	s.log.Info("query finished",
		"query_id", queryID,
		"op", op.String(),
		"kind", q.Kind.Name,
		"rows", n,
		"elapsed", time.Since(start))
	return data, nil
}

// statement renders op for q, reusing SQL already rendered for an equal
// query.
func (s *Store) statement(op Op, q Query, prepared bool) (querysql.Statement, error) {
	if q.Kind == nil {
		return querysql.Statement{}, fmt.Errorf("%s: nil entity kind", op)
	}
	key, err := cacheKey(s.dialect, op, q, prepared)
	if err != nil {
		return querysql.Statement{}, fmt.Errorf("%s %s: fingerprint: %w", op, q.Kind.Name, err)
	}
	if st, ok := s.statements.Load(key); ok {
		return st.(querysql.Statement), nil
	}

	b, err := querysql.New(s.dialect, q.Kind)
	if err != nil {
		return querysql.Statement{}, err
	}
	ds, err := dataset(b, op, q)
	if err != nil {
		return querysql.Statement{}, fmt.Errorf("%s %s: %w", op, q.Kind.Name, err)
	}
	st, err := querysql.Render(ds, prepared)
	if err != nil {
		return querysql.Statement{}, err
	}
	s.statements.Store(key, st)
	return st, nil
}

func dataset(b *querysql.Builder, op Op, q Query) (*goqu.SelectDataset, error) {
	switch op {
	case OpSearch:
		return b.Search(q.Where)
	case OpGroupedAggregate:
		return b.GroupedAggregate(q.Keys, q.Aggregates, q.Where)
	case OpGroupedWindow:
		return b.GroupedWindow(q.Keys, q.Aggregates, q.Functions, q.Partition, q.Order, q.Where)
	case OpCountGroups:
		return b.CountGroups(q.Keys, q.Where)
	}
	return nil, fmt.Errorf("unsupported operation %s", op)
}

// cacheKey identifies the SQL of op for q. Filter fingerprints include
// constant values and their Go types, so equal keys render equal arguments.
func cacheKey(d querysql.Dialect, op Op, q Query, prepared bool) (string, error) {
	parts := []string{string(d), op.String(), q.Kind.Name, fmt.Sprint(prepared)}
	if q.Where != nil {
		fp, err := filter.Fingerprint(q.Where)
		if err != nil {
			return "", err
		}
		parts = append(parts, fp)
	} else {
		parts = append(parts, "-")
	}
	gfp, err := grouping.Fingerprint(q.Keys, q.Aggregates)
	if err != nil {
		return "", err
	}
	wfp, err := window.Fingerprint(q.Partition, q.Order, q.Functions)
	if err != nil {
		return "", err
	}
	parts = append(parts, gfp, wfp)
	return strings.Join(parts, "|"), nil
}
