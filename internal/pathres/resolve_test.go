package pathres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eavq/internal/compileerr"
	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/filter"
	"github.com/roach88/eavq/internal/schema"
	"github.com/roach88/eavq/internal/testutil"
)

func TestResolve_Paths(t *testing.T) {
	props := expr.Props(testutil.Employee())
	entity := expr.Entity(testutil.Employee())
	r := New(Policy{Tier: TierPro})

	tests := []struct {
		name  string
		chain expr.Expr
		scope Scope
		path  string
		fn    filter.Function
		base  bool
		typ   *schema.Type
	}{
		{"simple", props.Prop("Age"), ScopeProps, "Age", filter.FuncNone, false, schema.Int},
		{"nested", props.Prop("Address.Geo.Lat"), ScopeProps, "Address.Geo.Lat", filter.FuncNone, false, schema.Float},
		{"root marker dropped", entity.Prop("Address.City"), ScopeProps, "Address.City", filter.FuncNone, false, schema.String},
		{"root marker in base scope", entity.Prop("Age"), ScopeBase, "Age", filter.FuncNone, false, schema.Int},
		{"base field", entity.Base("Name"), ScopeBase, "Name", filter.FuncNone, true, schema.String},
		{"props shadowing base name", props.Prop("Name"), ScopeProps, "Name", filter.FuncNone, false, schema.String},
		{"string length", props.Prop("Name").Len(), ScopeProps, "Name", filter.FuncLength, false, schema.String},
		{"array count", props.Prop("Tags").Count(), ScopeProps, "Tags", filter.FuncCount, false, schema.ArrayOf(schema.String)},
		{"date part", props.Prop("HiredAt").Dot("Year"), ScopeProps, "HiredAt", filter.FuncYear, false, schema.DateTime},
		{"base date part", entity.Base("DateCreate").Dot("Month"), ScopeBase, "DateCreate", filter.FuncMonth, true, schema.DateTime},
		{"dictionary key", props.Prop("Scores").At("math"), ScopeProps, "Scores[math]", filter.FuncNone, false, schema.Int},
		{"array index", props.Prop("Skills").At(1).Dot("Level"), ScopeProps, "Skills[1].Level", filter.FuncNone, false, schema.Int},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.chain, tt.scope)
			require.NoError(t, err)
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, tt.fn, got.Function)
			assert.Equal(t, tt.base, got.IsBaseField)
			assert.Equal(t, tt.typ.String(), got.Type.String())
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	b := expr.Props(testutil.Employee())
	r := New(DefaultPolicy())
	chain := b.Prop("Address.City")

	first, err := r.Resolve(chain, ScopeProps)
	require.NoError(t, err)
	second, err := r.Resolve(chain, ScopeProps)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_DepthPolicy(t *testing.T) {
	b := expr.Props(testutil.Employee())
	deep := b.Prop("Address.Geo.Lat")

	_, err := New(DefaultPolicy()).Resolve(deep, ScopeProps)
	require.Error(t, err)
	assert.True(t, compileerr.IsPathDepthExceeded(err))
	assert.Contains(t, err.Error(), "path=Address.Geo.Lat")
	assert.Contains(t, err.Error(), "limit=2")

	_, err = New(Policy{Tier: TierPro, MaxDepth: 2}).Resolve(deep, ScopeProps)
	assert.True(t, compileerr.IsPathDepthExceeded(err), "pro tier honors a configured limit")

	got, err := New(Policy{Tier: TierPro}).Resolve(deep, ScopeProps)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Depth)

	// The open tier ignores MaxDepth.
	_, err = New(Policy{Tier: TierOpen, MaxDepth: 10}).Resolve(deep, ScopeProps)
	assert.True(t, compileerr.IsPathDepthExceeded(err))
}

func TestResolve_FunctionDoesNotCountAsSegment(t *testing.T) {
	b := expr.Props(testutil.Employee())
	got, err := New(DefaultPolicy()).Resolve(b.Prop("Address.City").Len(), ScopeProps)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Depth)
	assert.Equal(t, filter.FuncLength, got.Function)
}

func TestResolve_Errors(t *testing.T) {
	b := expr.Props(testutil.Employee())
	entity := expr.Entity(testutil.Employee())
	r := New(Policy{Tier: TierPro})

	tests := []struct {
		name  string
		chain expr.Expr
		scope Scope
		want  string
	}{
		{"method call in chain", b.Prop("Name").ToLower(), ScopeProps, "not a member chain"},
		{"member after pseudo member", b.Prop("Tags").Count().Dot("X"), ScopeProps, "member access after Count"},
		{"unknown base field", entity.Base("Salary"), ScopeBase, "not a base field"},
		{"bare parameter", b.Param(), ScopeProps, "names no property"},
		{"group parameter", expr.Group().Key(), ScopeProps, "group parameter"},
		{"non-constant key", b.Prop("Scores").At(b.Prop("Name")), ScopeProps, "must be a constant"},
		{"non-integer array index", b.Prop("Tags").At("x"), ScopeProps, "must be an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.chain, tt.scope)
			require.Error(t, err)
			assert.True(t, compileerr.IsUnsupportedShape(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestJoinElement(t *testing.T) {
	b := expr.Props(testutil.Employee())
	skills, err := New(DefaultPolicy()).Resolve(b.Prop("Skills"), ScopeProps)
	require.NoError(t, err)

	item := expr.Item("x", testutil.SkillType)
	name, err := New(DefaultPolicy()).Resolve(item.Dot("Name"), ScopeBase)
	require.NoError(t, err)
	assert.False(t, name.IsBaseField, "item members are never base fields")

	joined, err := New(DefaultPolicy()).JoinElement(skills, name)
	require.NoError(t, err)
	assert.Equal(t, "Skills[].Name", joined.Path)
	assert.Equal(t, 2, joined.Depth)

	_, err = New(Policy{Tier: TierPro, MaxDepth: 1}).JoinElement(skills, name)
	assert.True(t, compileerr.IsPathDepthExceeded(err))
}

type level int

func (l level) String() string { return [...]string{"Low", "High"}[l] }

func TestSerializeKey(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	status := schema.EnumOf("Status", "Active", "OnLeave")

	tests := []struct {
		name    string
		key     any
		keyType *schema.Type
		want    string
	}{
		{"string", "math", nil, "math"},
		{"int", 42, nil, "42"},
		{"negative", int64(-7), nil, "-7"},
		{"float", 2.5, nil, "2.5"},
		{"integral float", 3.0, nil, "3"},
		{"bool", true, nil, "true"},
		{"guid", id, nil, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
		{"time", time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600)), nil, "2024-03-01T11:00:00Z"},
		{"decimal", decimal.RequireFromString("1.50"), nil, "1.5"},
		{"enum ordinal", 1, status, "OnLeave"},
		{"enum stringer", level(1), status, "High"},
		{"symbolic enum", expr.Enum{Type: "Status", Name: "Active"}, nil, "Active"},
		{"reference", expr.ListItem{ID: 9, Value: "x"}, nil, "9"},
		{"tuple", struct {
			B string
			A int
		}{"x", 1}, nil, `{"A":1,"B":"x"}`},
		{"slice", []string{"a", "b"}, nil, `["a","b"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SerializeKey(tt.key, tt.keyType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SerializeKey(nil, nil)
	assert.Error(t, err)
	_, err = SerializeKey(func() {}, nil)
	assert.Error(t, err)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("PRO")
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)

	tier, err = ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierOpen, tier)

	_, err = ParseTier("gold")
	assert.Error(t, err)
}
