package materialize

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eavq/internal/expr"
	"github.com/roach88/eavq/internal/testutil"
)

type deptTotal struct {
	Name  string
	Total int
}

func TestMaterialize_RoundTrip(t *testing.T) {
	got, err := Materialize[deptTotal]([]byte(`[{"Name":"X","Total":42},{"Name":"Y"}]`), nil)
	require.NoError(t, err)
	assert.Equal(t, []deptTotal{{Name: "X", Total: 42}, {Name: "Y"}}, got)
}

func TestMaterialize_Coercion(t *testing.T) {
	type row struct {
		Count    int32
		Big      uint64
		Mean     float64
		Ratio    float32
		Amount   decimal.Decimal
		When     time.Time
		Badge    uuid.UUID
		Flag     bool
		Label    string
		Tags     []string
		Scores   map[string]int
		Optional *int
		Missing  *string
	}

	rows := `[{
		"Count": "17",
		"Big": 42,
		"Mean": 2,
		"Ratio": "0.5",
		"Amount": 12.50,
		"When": "2024-03-01T10:00:00+02:00",
		"Badge": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"Flag": true,
		"Label": 7,
		"Tags": ["a","b"],
		"Scores": "{\"math\":3}",
		"Optional": 5,
		"Missing": null
	}]`

	got, err := Materialize[row]([]byte(rows), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	r := got[0]

	assert.Equal(t, int32(17), r.Count)
	assert.Equal(t, uint64(42), r.Big)
	assert.Equal(t, 2.0, r.Mean)
	assert.Equal(t, float32(0.5), r.Ratio)
	assert.True(t, decimal.RequireFromString("12.5").Equal(r.Amount))
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), r.When)
	assert.Equal(t, uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), r.Badge)
	assert.True(t, r.Flag)
	assert.Equal(t, "7", r.Label)
	assert.Equal(t, []string{"a", "b"}, r.Tags)
	assert.Equal(t, map[string]int{"math": 3}, r.Scores)
	require.NotNil(t, r.Optional)
	assert.Equal(t, 5, *r.Optional)
	assert.Nil(t, r.Missing)
}

func TestMaterialize_SelectorAliases(t *testing.T) {
	emp := testutil.Employee()
	g := expr.Group()
	b := expr.Props(emp)

	// Fields pair with selector members by position.
	selector := expr.Func(expr.Record(
		expr.As("Dept", g.Key().Dot("Department")),
		expr.As("Boss", g.Key().Dot("Manager").Dot("Id")),
		expr.As("N", expr.Count(g)),
		expr.As("Pay", expr.Sum(g, b.Lambda(b.Prop("Salary")))),
	), g)

	type summary struct {
		Department string
		Manager    int64
		Employees  int
		Payroll    decimal.Decimal `json:"Pay"`
	}

	rows := `[{"Dept":"Eng","Manager":12,"N":3,"Pay":"300.25"}]`
	got, err := Materialize[summary]([]byte(rows), selector)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Eng", got[0].Department)
	assert.Equal(t, int64(12), got[0].Manager)
	assert.Equal(t, 3, got[0].Employees)
	assert.Equal(t, "300.25", got[0].Payroll.String())
}

func TestMaterialize_SameNameWins(t *testing.T) {
	g := expr.Group()
	selector := expr.Func(expr.Record(expr.As("Alias", expr.Count(g))), g)

	type r struct{ N int }
	got, err := Materialize[r]([]byte(`[{"N":1,"Alias":2}]`), selector)
	require.NoError(t, err)
	assert.Equal(t, 1, got[0].N)
}

func TestMaterialize_SkipsUnexportedAndIgnored(t *testing.T) {
	type r struct {
		hidden int
		Skip   string `json:"-"`
		Name   string
	}
	got, err := Materialize[r]([]byte(`[{"hidden":1,"Skip":"x","Name":"n"}]`), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got[0].hidden)
	assert.Empty(t, got[0].Skip)
	assert.Equal(t, "n", got[0].Name)
}

func TestMaterialize_LenientNonNumerics(t *testing.T) {
	type r struct {
		When  time.Time
		Badge uuid.UUID
		Flag  bool
		Tags  []string
	}
	got, err := Materialize[r]([]byte(`[{"When":"soon","Badge":"nope","Flag":"maybe","Tags":"{"}]`), nil)
	require.NoError(t, err)
	assert.Equal(t, r{}, got[0])
}

func TestMaterialize_CoercionErrors(t *testing.T) {
	type ints struct{ Total int }
	type small struct{ Total int8 }
	type money struct{ Amount decimal.Decimal }
	type opt struct{ Total *int }

	tests := []struct {
		name string
		run  func() error
		typ  reflect.Type
	}{
		{"text into int", func() error { _, err := Materialize[ints]([]byte(`[{"Total":"many"}]`), nil); return err }, reflect.TypeOf(0)},
		{"overflow", func() error { _, err := Materialize[small]([]byte(`[{"Total":300}]`), nil); return err }, reflect.TypeOf(int8(0))},
		{"text into decimal", func() error { _, err := Materialize[money]([]byte(`[{"Amount":"x"}]`), nil); return err }, reflect.TypeOf(decimal.Decimal{})},
		{"present optional still coerced", func() error { _, err := Materialize[opt]([]byte(`[{"Total":"x"}]`), nil); return err }, reflect.TypeOf((*int)(nil))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			var ce *CoercionError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, 0, ce.Row)
			assert.Equal(t, tt.typ, ce.Type)
		})
	}
}

func TestMaterialize_BadInput(t *testing.T) {
	_, err := Materialize[deptTotal]([]byte(`{"Name":"X"}`), nil)
	assert.ErrorContains(t, err, "must be a JSON array")

	_, err = Materialize[deptTotal]([]byte(`[{`), nil)
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = Materialize[int]([]byte(`[]`), nil)
	assert.ErrorContains(t, err, "must be a struct")

	got, err := Materialize[deptTotal]([]byte(`[]`), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMaterialize_ErrorNamesRow(t *testing.T) {
	type r struct{ Total int }
	_, err := Materialize[r]([]byte(`[{"Total":1},{"Total":"x"}]`), nil)
	var ce *CoercionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 1, ce.Row)
	assert.Equal(t, "Total", ce.Field)
	assert.Contains(t, ce.Error(), "row 1")
}
