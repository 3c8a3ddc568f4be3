package window

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/grouping"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/testutil"
)

var (
	emp = testutil.Employee()
	b   = expr.Props(emp)
)

func newCompiler() *Compiler {
	return New(grouping.New(pathres.New(pathres.DefaultPolicy())))
}

func salarySum() grouping.AggregateRequest {
	return grouping.AggregateRequest{FieldPath: "Salary", Function: grouping.Sum, Alias: "Agg_Sum_Salary", Type: schema.Decimal}
}

func rowCount() grouping.AggregateRequest {
	return grouping.AggregateRequest{FieldPath: "*", Function: grouping.Count, Alias: "Agg_Count_Count", Type: schema.Int}
}

func TestCompilePartition(t *testing.T) {
	g := expr.Group()
	entity := expr.Entity(emp)

	tests := []struct {
		name string
		spec *expr.Lambda
		want []FieldRequest
	}{
		{"none spans everything", nil, nil},
		{
			name: "field",
			spec: b.Lambda(b.Prop("Department")),
			want: []FieldRequest{{Ref{FieldPath: "Department", Type: schema.String}}},
		},
		{
			name: "base field",
			spec: entity.Lambda(entity.Base("OwnerId")),
			want: []FieldRequest{{Ref{FieldPath: "OwnerId", IsBaseField: true, Type: schema.Int}}},
		},
		{
			name: "record of fields",
			spec: b.Lambda(expr.Record(expr.As("", b.Prop("Department")), expr.As("", b.Prop("Address.City")))),
			want: []FieldRequest{
				{Ref{FieldPath: "Department", Type: schema.String}},
				{Ref{FieldPath: "Address.City", Type: schema.String}},
			},
		},
		{
			name: "aggregate",
			spec: expr.Func(expr.Count(g), g),
			want: []FieldRequest{{Ref{FieldPath: "Agg_Count_Count", IsAggregate: true, Aggregate: rowCount(), Type: schema.Int}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newCompiler().CompilePartition(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileOrder(t *testing.T) {
	g := expr.Group()

	got, err := newCompiler().CompileOrder(
		Desc(expr.Func(expr.Sum(g, b.Lambda(b.Prop("Salary"))), g)),
		Asc(b.Lambda(b.Prop("Department"))),
	)
	require.NoError(t, err)
	assert.Equal(t, []OrderRequest{
		{Ref: Ref{FieldPath: "Agg_Sum_Salary", IsAggregate: true, Aggregate: salarySum(), Type: schema.Decimal}, Descending: true},
		{Ref: Ref{FieldPath: "Department", Type: schema.String}},
	}, got)

	t.Run("record shares direction", func(t *testing.T) {
		got, err := newCompiler().CompileOrder(Desc(b.Lambda(expr.Record(
			expr.As("", b.Prop("Department")),
			expr.As("", b.Prop("Age")),
		))))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].Descending)
		assert.True(t, got[1].Descending)
		assert.Equal(t, "Age", got[1].FieldPath)
	})

	t.Run("no specs", func(t *testing.T) {
		got, err := newCompiler().CompileOrder()
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestCompileWindowFunctions(t *testing.T) {
	g := expr.Group()
	salary := b.Lambda(b.Prop("Salary"))

	result := expr.Func(expr.Record(
		expr.As("Key", g.Key()),
		expr.As("Total", expr.Sum(g, salary)),
		expr.As("Row", expr.RowNumber()),
		expr.As("Place", expr.Rank()),
		expr.As("Dense", expr.DenseRank()),
		expr.As("Quartile", expr.Ntile(4)),
		expr.As("Prev", expr.Lag(expr.Sum(g, salary), 1)),
		expr.As("Next", expr.Lead(b.Lambda(b.Prop("Department")), 2)),
		expr.As("First", expr.FirstValue(b.Lambda(b.Prop("Department")))),
		expr.As("Running", expr.WinSum(expr.Sum(g, salary))),
		expr.As("Rows", expr.WinCount()),
		expr.As("Peak", expr.WinMax(expr.Count(g))),
	), g)

	got, err := newCompiler().CompileWindowFunctions(result)
	require.NoError(t, err)

	sumRef := Ref{FieldPath: "Agg_Sum_Salary", IsAggregate: true, Aggregate: salarySum(), Type: schema.Decimal}
	countRef := Ref{FieldPath: "Agg_Count_Count", IsAggregate: true, Aggregate: rowCount(), Type: schema.Int}
	dept := Ref{FieldPath: "Department", Type: schema.String}

	assert.Equal(t, []FuncRequest{
		{Ref: Ref{Type: schema.Int}, Function: RowNumber, Alias: "Row"},
		{Ref: Ref{Type: schema.Int}, Function: Rank, Alias: "Place"},
		{Ref: Ref{Type: schema.Int}, Function: DenseRank, Alias: "Dense"},
		{Ref: Ref{Type: schema.Int}, Function: Ntile, Alias: "Quartile", Argument: 4},
		{Ref: sumRef, Function: Lag, Alias: "Prev", Argument: 1},
		{Ref: dept, Function: Lead, Alias: "Next", Argument: 2},
		{Ref: dept, Function: FirstValue, Alias: "First"},
		{Ref: sumRef, Function: Sum, Alias: "Running"},
		{Ref: Ref{FieldPath: "*", Type: schema.Int}, Function: Count, Alias: "Rows"},
		{Ref: countRef, Function: Max, Alias: "Peak"},
	}, got)
}

func TestCompileSelect(t *testing.T) {
	g := expr.Group()
	result := expr.Func(expr.Record(
		expr.As("Key", g.Key()),
		expr.As("Total", expr.Sum(g, b.Lambda(b.Prop("Salary")))),
		expr.As("Row", expr.RowNumber()),
	), g)

	aggs, funcs, err := newCompiler().CompileSelect(result)
	require.NoError(t, err)
	assert.Equal(t, []grouping.AggregateRequest{{FieldPath: "Salary", Function: grouping.Sum, Alias: "Total", Type: schema.Decimal}}, aggs)
	require.Len(t, funcs, 1)
	assert.Equal(t, RowNumber, funcs[0].Function)
}

func TestCompileSelect_PositionalAliases(t *testing.T) {
	g := expr.Group()
	result := expr.Func(expr.Record(
		expr.As("", g.Key()),
		expr.As("", expr.RowNumber()),
		expr.As("", expr.Count(g)),
	), g)

	aggs, funcs, err := newCompiler().CompileSelect(result)
	require.NoError(t, err)
	assert.Equal(t, []grouping.AggregateRequest{{FieldPath: "*", Function: grouping.Count, Alias: "Value2", Type: schema.Int}}, aggs)
	require.Len(t, funcs, 1)
	assert.Equal(t, "Value1", funcs[0].Alias)
}

func TestCompileSelect_DuplicateAliases(t *testing.T) {
	g := expr.Group()

	tests := []struct {
		name    string
		members []expr.Binding
		alias   string
	}{
		{
			name:    "window and aggregate",
			members: []expr.Binding{expr.As("N", expr.RowNumber()), expr.As("N", expr.Count(g))},
			alias:   "N",
		},
		{
			name:    "named member takes a position",
			members: []expr.Binding{expr.As("", expr.Count(g)), expr.As("Value0", expr.Rank())},
			alias:   "Value0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newCompiler().CompileSelect(expr.Func(expr.Record(tt.members...), g))
			require.Error(t, err)
			assert.Contains(t, err.Error(), fmt.Sprintf("duplicate result alias %q", tt.alias))
		})
	}
}

func TestCompileWindowFunctions_Failures(t *testing.T) {
	g := expr.Group()
	salary := b.Lambda(b.Prop("Salary"))

	tests := []struct {
		name    string
		member  expr.Expr
		unknown bool
		contain string
	}{
		{"unknown window function", expr.Static(expr.ClassWin, "PercentRank"), true, "unknown window function PercentRank"},
		{"math call", expr.Abs(1), true, "is not a window function"},
		{"plain member", b.Prop("Age"), false, "not the key"},
		{"ntile zero", expr.Ntile(0), false, "must be positive"},
		{"ntile non constant", expr.Static(expr.ClassWin, "Ntile", b.Prop("Age")), false, "integer constant"},
		{"rank with argument", expr.Static(expr.ClassWin, "Rank", salary), false, "takes no arguments"},
		{"negative lag", expr.Lag(salary, -1), false, "must not be negative"},
		{"sum of string", expr.WinSum(b.Lambda(b.Prop("Name"))), false, "needs a numeric value"},
		{"value not a selector", expr.WinMin(b.Prop("Age")), false, "field selector or an aggregate"},
		{"unknown aggregate value", expr.WinMax(expr.Static(expr.ClassAgg, "Median", g, salary)), true, "unknown aggregate Median"},
		{"pseudo member", expr.WinMax(b.Lambda(b.Prop("Name").Len())), false, "cannot use"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCompiler().CompileWindowFunctions(expr.Func(expr.Record(expr.As("X", tt.member)), g))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contain)
			assert.Equal(t, tt.unknown, compileerr.IsUnknownFunction(err))
		})
	}
}

func TestCompilePartition_Failures(t *testing.T) {
	g := expr.Group()

	_, err := newCompiler().CompilePartition(expr.Func(g.Key(), g))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an aggregate call")

	_, err = newCompiler().CompilePartition(b.Lambda(expr.Record()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no members")

	_, err = newCompiler().CompileOrder(OrderSpec{})
	require.Error(t, err)
	assert.True(t, compileerr.IsUnsupportedShape(err))

	_, err = newCompiler().CompilePartition(b.Lambda(b.Prop("Address.Geo.Lat")))
	assert.True(t, compileerr.IsPathDepthExceeded(err))
}

func TestAggregates(t *testing.T) {
	g := expr.Group()
	c := newCompiler()

	order, err := c.CompileOrder(Desc(expr.Func(expr.Sum(g, b.Lambda(b.Prop("Salary"))), g)))
	require.NoError(t, err)
	funcs, err := c.CompileWindowFunctions(expr.Func(expr.Record(
		expr.As("Running", expr.WinSum(expr.Sum(g, b.Lambda(b.Prop("Salary"))))),
		expr.As("Share", expr.WinMax(expr.Count(g))),
	), g))
	require.NoError(t, err)

	assert.Equal(t, []grouping.AggregateRequest{salarySum(), rowCount()}, Aggregates(nil, order, funcs))
}

func TestFingerprint(t *testing.T) {
	order := []OrderRequest{{Ref: Ref{FieldPath: "Department"}}}
	asc, err := Fingerprint(nil, order, nil)
	require.NoError(t, err)

	order[0].Descending = true
	desc, err := Fingerprint(nil, order, nil)
	require.NoError(t, err)
	assert.NotEqual(t, asc, desc)
}

func TestParseFunction(t *testing.T) {
	f, ok := ParseFunction("DenseRank")
	require.True(t, ok)
	assert.True(t, f.Ranking())
	assert.True(t, Lead.Offset())
	assert.False(t, Sum.Ranking())
	_, ok = ParseFunction("Median")
	assert.False(t, ok)
}
