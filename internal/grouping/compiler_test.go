package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/pathres"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/testutil"
)

var (
	emp = testutil.Employee()
	b   = expr.Props(emp)
)

func newCompiler() *Compiler {
	return New(pathres.New(pathres.DefaultPolicy()))
}

func TestCompileKey(t *testing.T) {
	entity := expr.Entity(emp)

	tests := []struct {
		name string
		key  *expr.Lambda
		want []GroupFieldRequest
	}{
		{
			name: "single member",
			key:  b.Lambda(b.Prop("Department")),
			want: []GroupFieldRequest{{FieldPath: "Department", Alias: "Department", Type: schema.String}},
		},
		{
			name: "nested member aliased by last name",
			key:  b.Lambda(b.Prop("Address.City")),
			want: []GroupFieldRequest{{FieldPath: "Address.City", Alias: "City", Type: schema.String}},
		},
		{
			name: "composite with declared names",
			key: b.Lambda(expr.Record(
				expr.As("Dept", b.Prop("Department")),
				expr.As("State", b.Prop("Status")),
			)),
			want: []GroupFieldRequest{
				{FieldPath: "Department", Alias: "Dept", Type: schema.String},
				{FieldPath: "Status", Alias: "State", Type: testutil.StatusType},
			},
		},
		{
			name: "composite with implicit names",
			key: b.Lambda(expr.Record(
				expr.As("", b.Prop("Department")),
				expr.As("", b.Prop("Active")),
			)),
			want: []GroupFieldRequest{
				{FieldPath: "Department", Alias: "Department", Type: schema.String},
				{FieldPath: "Active", Alias: "Active", Type: schema.Bool},
			},
		},
		{
			name: "dictionary entry",
			key:  b.Lambda(b.Prop("Scores").At("math")),
			want: []GroupFieldRequest{{FieldPath: "Scores[math]", Alias: "Scores", Type: schema.Int}},
		},
		{
			name: "base field through envelope",
			key:  entity.Lambda(entity.Base("ParentId")),
			want: []GroupFieldRequest{{FieldPath: "ParentId", Alias: "ParentId", IsBaseField: true, Type: schema.Int}},
		},
		{
			name: "envelope mixes base and props",
			key: entity.Lambda(expr.Record(
				expr.As("Owner", entity.Base("OwnerId")),
				expr.As("Dept", entity.Prop("Department")),
			)),
			want: []GroupFieldRequest{
				{FieldPath: "OwnerId", Alias: "Owner", IsBaseField: true, Type: schema.Int},
				{FieldPath: "Department", Alias: "Dept", Type: schema.String},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newCompiler().CompileKey(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompileKey_Failures(t *testing.T) {
	tests := []struct {
		name    string
		key     *expr.Lambda
		contain string
	}{
		{"nil selector", nil, "key selector is nil"},
		{"constant", b.Lambda(expr.Val(1)), "member access or a record"},
		{"empty record", b.Lambda(expr.Record()), "no members"},
		{"duplicate alias", b.Lambda(expr.Record(
			expr.As("A", b.Prop("Name")),
			expr.As("A", b.Prop("Department")),
		)), `duplicate key alias "A"`},
		{"pseudo member", b.Lambda(b.Prop("Name").Len()), "cannot group by"},
		{"too deep", b.Lambda(b.Prop("Address.Geo.Lat")), "limit=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCompiler().CompileKey(tt.key)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contain)
		})
	}
}

func TestCompileKey_ComputedMemberFallsBackToPositionalAlias(t *testing.T) {
	// Computed members cannot be grouped, but the positional alias is
	// assigned before the member is resolved.
	_, err := newCompiler().CompileKey(b.Lambda(expr.Record(expr.As("", expr.Add(b.Prop("Age"), 1)))))
	require.Error(t, err)
	assert.True(t, compileerr.IsUnsupportedShape(err))
	assert.Equal(t, "Key0", inferredName(expr.Add(b.Prop("Age"), 1), "Key0"))
}

func TestCompileArrayKey(t *testing.T) {
	skill := expr.Item("s", testutil.SkillType)

	got, err := newCompiler().CompileArrayKey(
		b.Lambda(b.Prop("Skills")),
		expr.Func(skill.Dot("Name"), skill),
	)
	require.NoError(t, err)
	assert.Equal(t, []GroupFieldRequest{{FieldPath: "Skills[].Name", Alias: "Name", Type: schema.String}}, got)

	t.Run("composite element key", func(t *testing.T) {
		got, err := newCompiler().CompileArrayKey(
			b.Lambda(b.Prop("Skills")),
			expr.Func(expr.Record(expr.As("Skill", skill.Dot("Name")), expr.As("Lvl", skill.Dot("Level"))), skill),
		)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Skills[].Level", got[1].FieldPath)
		assert.Equal(t, "Lvl", got[1].Alias)
	})

	t.Run("not an array", func(t *testing.T) {
		_, err := newCompiler().CompileArrayKey(b.Lambda(b.Prop("Address")), expr.Func(skill.Dot("Name"), skill))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "needs an array property")
	})

	t.Run("joined depth checked", func(t *testing.T) {
		c := New(pathres.New(pathres.Policy{Tier: pathres.TierPro, MaxDepth: 1}))
		_, err := c.CompileArrayKey(b.Lambda(b.Prop("Skills")), expr.Func(skill.Dot("Name"), skill))
		require.Error(t, err)
		assert.True(t, compileerr.IsPathDepthExceeded(err))
	})
}

func TestCompileAggregates(t *testing.T) {
	g := expr.Group()
	entity := expr.Entity(emp)

	result := expr.Func(expr.Record(
		expr.As("Key", g.Key()),
		expr.As("Total", expr.Sum(g, b.Lambda(b.Prop("Salary")))),
		expr.As("Mean", expr.Average(g, b.Lambda(b.Prop("Age")))),
		expr.As("Lowest", expr.Min(g, b.Lambda(b.Prop("HiredAt")))),
		expr.As("Best", expr.Max(g, b.Lambda(b.Prop("Rating")))),
		expr.As("N", expr.Count(g)),
		expr.As("Rated", expr.Count(g, b.Lambda(b.Prop("Rating")))),
		expr.As("Newest", expr.Max(g, entity.Lambda(entity.Base("DateCreate")))),
	), g)

	got, err := newCompiler().CompileAggregates(result)
	require.NoError(t, err)
	assert.Equal(t, []AggregateRequest{
		{FieldPath: "Salary", Function: Sum, Alias: "Total", Type: schema.Decimal},
		{FieldPath: "Age", Function: Average, Alias: "Mean", Type: schema.Int},
		{FieldPath: "HiredAt", Function: Min, Alias: "Lowest", Type: schema.DateTime},
		{FieldPath: "Rating", Function: Max, Alias: "Best", Type: schema.Float},
		{FieldPath: CountAll, Function: Count, Alias: "N", Type: schema.Int},
		{FieldPath: "Rating", Function: Count, Alias: "Rated", Type: schema.Int},
		{FieldPath: "DateCreate", Function: Max, Alias: "Newest", IsBaseField: true, Type: schema.DateTime},
	}, got)
}

func TestCompileAggregates_SkipsKeyMembers(t *testing.T) {
	g := expr.Group()
	result := expr.Func(expr.Record(
		expr.As("Key", g.Key()),
		expr.As("Dept", g.Key().Dot("Dept")),
	), g)

	got, err := newCompiler().CompileAggregates(result)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompileAggregates_Failures(t *testing.T) {
	g := expr.Group()
	other := expr.Group()

	tests := []struct {
		name    string
		body    expr.Expr
		unknown bool
		contain string
	}{
		{"not a record", expr.Count(g), false, "must be a record"},
		{"unknown aggregate", expr.Record(expr.As("X", expr.Static(expr.ClassAgg, "Median", g, b.Lambda(b.Prop("Age"))))), true, "unknown aggregate Median"},
		{"plain member", expr.Record(expr.As("X", b.Prop("Age"))), false, "neither the key nor an aggregate"},
		{"window call", expr.Record(expr.As("R", expr.RowNumber())), false, "neither the key nor an aggregate"},
		{"foreign group", expr.Record(expr.As("N", expr.Count(other))), false, "group as its first argument"},
		{"sum without selector", expr.Record(expr.As("S", expr.Static(expr.ClassAgg, "Sum", g))), false, "needs a field selector"},
		{"sum of string", expr.Record(expr.As("S", expr.Sum(g, b.Lambda(b.Prop("Name"))))), false, "needs a numeric field"},
		{"selector not lambda", expr.Record(expr.As("S", expr.Static(expr.ClassAgg, "Sum", g, b.Prop("Age")))), false, "must be a lambda"},
		{"pseudo member", expr.Record(expr.As("S", expr.Sum(g, b.Lambda(b.Prop("Tags").Count())))), false, "cannot aggregate"},
		{"duplicate alias", expr.Record(expr.As("N", expr.Count(g)), expr.As("N", expr.Sum(g, b.Lambda(b.Prop("Age"))))), false, `duplicate aggregate alias "N"`},
		{"name clashes with position", expr.Record(expr.As("", expr.Count(g)), expr.As("Value0", expr.Sum(g, b.Lambda(b.Prop("Age"))))), false, `duplicate aggregate alias "Value0"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newCompiler().CompileAggregates(expr.Func(tt.body, g))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contain)
			assert.Equal(t, tt.unknown, compileerr.IsUnknownFunction(err))
		})
	}
}

func TestCountOnly(t *testing.T) {
	assert.Equal(t, []AggregateRequest{{FieldPath: "*", Function: Count, Alias: "Count", Type: schema.Int}}, CountOnly())
	assert.Equal(t, "Agg_Count_Count", CountOnly()[0].ColumnName())
	assert.Equal(t, "Agg_Sum_Salary", AggregateRequest{FieldPath: "Salary", Function: Sum}.ColumnName())
}

func TestParseFunction(t *testing.T) {
	for _, name := range []string{"Sum", "Average", "Min", "Max", "Count"} {
		f, ok := ParseFunction(name)
		require.True(t, ok, name)
		assert.Equal(t, name, f.String())
	}
	_, ok := ParseFunction("Median")
	assert.False(t, ok)
	assert.Equal(t, "Function(9)", Function(9).String())
}

func TestFingerprint(t *testing.T) {
	keys, err := newCompiler().CompileKey(b.Lambda(b.Prop("Department")))
	require.NoError(t, err)

	a, err := Fingerprint(keys, CountOnly())
	require.NoError(t, err)
	again, err := Fingerprint(keys, CountOnly())
	require.NoError(t, err)
	assert.Equal(t, a, again)

	keys[0].Alias = "Dept"
	renamed, err := Fingerprint(keys, CountOnly())
	require.NoError(t, err)
	assert.NotEqual(t, a, renamed)
}
