package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/materialize"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/testutil"
	"github.com/roach88/eavq/internal/window"
)

type employeeRow struct {
	Id         int64
	Name       string
	DateCreate time.Time
	Props      struct {
		Age    int
		Salary decimal.Decimal
		Tags   []string
	}
}

func names(rows []employeeRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func search(t *testing.T, s *Store, body expr.Expr) []employeeRow {
	t.Helper()
	where, err := predicates().Compile(b.Lambda(body))
	require.NoError(t, err)
	data, err := s.FilteredSearch(context.Background(), Query{Kind: emp, Where: where})
	require.NoError(t, err)
	rows, err := materialize.Materialize[employeeRow](data, nil)
	require.NoError(t, err)
	return rows
}

func TestFilteredSearch(t *testing.T) {
	s := createTestStore(t)
	seedStaff(t, s)

	tests := []struct {
		name string
		body expr.Expr
		want []string
	}{
		{"integer comparison", expr.Gt(b.Prop("Age"), 30), []string{"Ann", "Cid", "Dee"}},
		{"and with array contains", expr.And(expr.Gt(b.Prop("Age"), 30), b.Prop("Tags").Contains("vip")), []string{"Ann", "Dee"}},
		{"decimal comparison", expr.Gt(b.Prop("Salary"), decimal.NewFromInt(1000)), []string{"Ann", "Cid", "Dee"}},
		{"date comparison", expr.Lt(b.Prop("HiredAt"), time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)), []string{"Ann", "Cid"}},
		{"boolean", expr.Eq(b.Prop("Active"), false), []string{"Cid"}},
		{"nested member", expr.Eq(b.Prop("Address.City"), "Oslo"), []string{"Ann", "Cid"}},
		{"element field", b.Prop("Skills").Any(func(x *expr.Param) expr.Expr {
			return expr.Ge(x.Dot("Level"), 3)
		}), []string{"Ann", "Cid"}},
		{"non-empty array", b.Prop("Tags").Any(nil), []string{"Ann", "Bob", "Dee"}},
		{"dictionary key", b.Prop("Scores").ContainsKey("math"), []string{"Ann"}},
		{"starts with ignoring case", b.Prop("Name").StartsWith("d", expr.OrdinalIgnoreCase), []string{"Dee"}},
		{"set membership", expr.In([]string{"Ops", "Sales"}, b.Prop("Department")), []string{"Cid", "Dee", "Eve"}},
		{"empty set", expr.In([]string{}, b.Prop("Department")), []string{}},
		{"null check", expr.Eq(b.Prop("HiredAt"), expr.Null()), []string{"Dee", "Eve"}},
		{"arithmetic", expr.Eq(expr.Mod(b.Prop("Age"), 2), 0), []string{"Ann", "Bob"}},
		{"always true", expr.Val(true), []string{"Ann", "Bob", "Cid", "Dee", "Eve"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(search(t, s, tt.body)))
		})
	}
}

func TestFilteredSearch_Envelope(t *testing.T) {
	s := createTestStore(t)
	seedStaff(t, s)

	rows := search(t, s, expr.Eq(b.Prop("Name"), "Bob"))
	require.Len(t, rows, 1)
	bob := rows[0]
	assert.Equal(t, int64(2), bob.Id)
	assert.Equal(t, testutil.Epoch.Add(time.Second), bob.DateCreate)
	assert.Equal(t, 28, bob.Props.Age)
	assert.True(t, decimal.NewFromInt(900).Equal(bob.Props.Salary))
	assert.Equal(t, []string{"remote"}, bob.Props.Tags)
}

func TestFilteredSearch_BaseFields(t *testing.T) {
	s := createTestStore(t)
	ids := seedStaff(t, s)
	entity := expr.Entity(emp)

	where, err := predicates().CompileBase(entity.Lambda(expr.In(ids[:2], entity.Base("Id"))))
	require.NoError(t, err)
	data, err := s.FilteredSearch(context.Background(), Query{Kind: emp, Where: where})
	require.NoError(t, err)
	assert.Equal(t, []any{"Ann", "Bob"}, gjson.GetBytes(data, "#.Name").Value())
}

type deptRow struct {
	Department string
	Headcount  int
	Payroll    decimal.Decimal
}

func deptQuery(t *testing.T, where filter.Expression) Query {
	t.Helper()
	g := expr.Group()
	keys, err := groupings().CompileKey(b.Lambda(b.Prop("Department")))
	require.NoError(t, err)
	aggs, err := groupings().CompileAggregates(deptResult(g))
	require.NoError(t, err)
	return Query{Kind: emp, Where: where, Keys: keys, Aggregates: aggs}
}

func deptResult(g *expr.Param) *expr.Lambda {
	return expr.Func(expr.Record(
		expr.As("Department", g.Key()),
		expr.As("Headcount", expr.Count(g)),
		expr.As("Payroll", expr.Sum(g, b.Lambda(b.Prop("Salary")))),
	), g)
}

func TestGroupedAggregate(t *testing.T) {
	s := createTestStore(t)
	seedStaff(t, s)

	q := deptQuery(t, nil)
	data, err := s.GroupedAggregate(context.Background(), q)
	require.NoError(t, err)

	rows, err := materialize.Materialize[deptRow](data, deptResult(expr.Group()))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Eng", "Ops", "Sales"}, []string{rows[0].Department, rows[1].Department, rows[2].Department})
	assert.Equal(t, []int{2, 2, 1}, []int{rows[0].Headcount, rows[1].Headcount, rows[2].Headcount})
	assert.Equal(t, "2100.5", rows[0].Payroll.String())
	assert.Equal(t, "3500", rows[1].Payroll.String())
	assert.Equal(t, "700", rows[2].Payroll.String())
}

func TestGroupedAggregate_ArrayElements(t *testing.T) {
	s := createTestStore(t)
	seedStaff(t, s)

	skill := expr.Item("s", testutil.SkillType)
	keys, err := groupings().CompileArrayKey(b.Lambda(b.Prop("Skills")), expr.Func(skill.Dot("Name"), skill))
	require.NoError(t, err)

	data, err := s.GroupedAggregate(context.Background(), Query{Kind: emp, Keys: keys, Aggregates: grouping.CountOnly()})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Name":"go","Count":2},{"Name":"sql","Count":2}]`, string(data))
}

func TestCountGroups_MatchesProjectedCount(t *testing.T) {
	s := createTestStore(t)
	seedStaff(t, s)

	active, err := predicates().Compile(b.Lambda(expr.Eq(b.Prop("Active"), true)))
	require.NoError(t, err)

	for _, where := range []filter.Expression{nil, active} {
		q := deptQuery(t, where)
		data, err := s.GroupedAggregate(context.Background(), q)
		require.NoError(t, err)

		rows, err := materialize.Materialize[deptRow](data, nil)
		require.NoError(t, err)
		projected := 0
		for _, r := range rows {
			projected += r.Headcount
		}

		total, err := s.CountGroups(context.Background(), Query{Kind: emp, Where: where})
		require.NoError(t, err)
		assert.Equal(t, int64(projected), total, "count-only equals the sum of group counts")

		groups, err := s.CountGroups(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, int64(len(rows)), groups)
	}
}

type rankedDept struct {
	Department string
	Payroll    decimal.Decimal
	Rank       int
	Previous   *float64
}

func TestGroupedWindow(t *testing.T) {
	s := createTestStore(t)
	seedStaff(t, s)

	g := expr.Group()
	payroll := func() *expr.Call { return expr.Sum(g, b.Lambda(b.Prop("Salary"))) }
	result := expr.Func(expr.Record(
		expr.As("Department", g.Key()),
		expr.As("Payroll", payroll()),
		expr.As("Rank", expr.RowNumber()),
		expr.As("Previous", expr.Lag(payroll(), 1)),
	), g)

	keys, err := groupings().CompileKey(b.Lambda(b.Prop("Department")))
	require.NoError(t, err)
	aggs, funcs, err := windows().CompileSelect(result)
	require.NoError(t, err)
	order, err := windows().CompileOrder(window.Desc(expr.Func(payroll(), g)))
	require.NoError(t, err)

	q := Query{Kind: emp, Keys: keys, Aggregates: aggs, Functions: funcs, Order: order}
	assert.Equal(t, OpGroupedWindow, q.Op())

	data, err := s.Execute(context.Background(), q)
	require.NoError(t, err)
	rows, err := materialize.Materialize[rankedDept](data, result)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Ops", rows[0].Department)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Nil(t, rows[0].Previous)
	assert.Equal(t, "Eng", rows[1].Department)
	assert.Equal(t, 2, rows[1].Rank)
	require.NotNil(t, rows[1].Previous)
	assert.InDelta(t, 3500, *rows[1].Previous, 1e-9)
	assert.Equal(t, "Sales", rows[2].Department)
	assert.Equal(t, 3, rows[2].Rank)
}

func TestPreview(t *testing.T) {
	s := createTestStore(t)

	where, err := predicates().Compile(b.Lambda(expr.Gt(b.Prop("Age"), 30)))
	require.NoError(t, err)
	sql, err := s.Preview(OpSearch, Query{Kind: emp, Where: where})
	require.NoError(t, err)
	assert.Contains(t, sql, "'Employees'")
	assert.Contains(t, sql, "> 30")
}

func TestStatementCache(t *testing.T) {
	s := createTestStore(t)
	seedStaff(t, s)

	entries := func() int {
		n := 0
		s.statements.Range(func(_, _ any) bool { n++; return true })
		return n
	}

	older := func(age int) Query {
		where, err := predicates().Compile(b.Lambda(expr.Gt(b.Prop("Age"), age)))
		require.NoError(t, err)
		return Query{Kind: emp, Where: where}
	}

	first, err := s.FilteredSearch(context.Background(), older(30))
	require.NoError(t, err)
	again, err := s.FilteredSearch(context.Background(), older(30))
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, entries())

	other, err := s.FilteredSearch(context.Background(), older(40))
	require.NoError(t, err)
	assert.Equal(t, 2, entries())
	assert.Equal(t, []any{"Cid", "Dee"}, gjson.GetBytes(other, "#.Name").Value())
}

func TestStatementCache_ConstantTypes(t *testing.T) {
	hired := time.Date(2020, 1, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		text     expr.Expr
		typed    expr.Expr
		textArg  any
		typedArg any
	}{
		{
			name:     "datetime",
			text:     expr.Gt(b.Prop("HiredAt"), "2020-01-02T09:00:00Z"),
			typed:    expr.Gt(b.Prop("HiredAt"), hired),
			textArg:  "2020-01-02T09:00:00Z",
			typedArg: "2020-01-02T09:00:00.000000000Z",
		},
		{
			name:     "decimal",
			text:     expr.Gt(b.Prop("Salary"), "1.5"),
			typed:    expr.Gt(b.Prop("Salary"), decimal.RequireFromString("1.5")),
			textArg:  "1.5",
			typedArg: 1.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			query := func(body expr.Expr) Query {
				where, err := predicates().Compile(b.Lambda(body))
				require.NoError(t, err)
				return Query{Kind: emp, Where: where}
			}

			text, err := s.statement(OpSearch, query(tt.text), true)
			require.NoError(t, err)
			typed, err := s.statement(OpSearch, query(tt.typed), true)
			require.NoError(t, err)

			assert.Contains(t, text.Args, tt.textArg)
			assert.Contains(t, typed.Args, tt.typedArg)

			n := 0
			s.statements.Range(func(_, _ any) bool { n++; return true })
			assert.Equal(t, 2, n)
		})
	}
}

func TestQuery_Errors(t *testing.T) {
	s := createTestStore(t)

	_, err := s.FilteredSearch(context.Background(), Query{})
	assert.ErrorContains(t, err, "nil entity kind")

	bad := filter.Comparison{Property: filter.PropertyInfo{Path: "Nope", Type: schema.Int}, Operator: filter.Equal, Value: int64(1)}
	_, err = s.FilteredSearch(context.Background(), Query{Kind: emp, Where: bad})
	assert.ErrorContains(t, err, "search Employees")

	_, err = s.Preview(Op(9), Query{Kind: emp})
	assert.ErrorContains(t, err, "unsupported operation Op(9)")
}

func TestQuery_Op(t *testing.T) {
	assert.Equal(t, OpSearch, Query{}.Op())
	assert.Equal(t, OpGroupedAggregate, Query{Aggregates: grouping.CountOnly()}.Op())
	assert.Equal(t, OpGroupedWindow, Query{Functions: []window.FuncRequest{{Function: window.Rank}}}.Op())
	assert.Equal(t, "count-groups", OpCountGroups.String())
}
