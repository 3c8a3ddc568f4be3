package canon

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"true", true, "true"},
		{"int", 42, "42"},
		{"negative int64", int64(-7), "-7"},
		{"uint", uint8(200), "200"},
		{"integral float", 2.0, "2"},
		{"fractional float", 1.5, "1.5"},
		{"string", "hello", `"hello"`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"json number int", json.Number("12"), "12"},
		{"json number float", json.Number("12.50"), "12.5"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Marshal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestMarshal_SortsKeysByUTF16(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00 which sort before U+FF5E.
	in := map[string]int{"～": 1, "\U0001F600": 2, "a": 3}

	got, err := Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"`+"\U0001F600"+`":2,"`+"～"+`":1}`, string(got))
}

func TestMarshal_StructAsObject(t *testing.T) {
	type key struct {
		Region string
		Year   int
		hidden bool
	}

	got, err := Marshal(key{Region: "EU", Year: 2024, hidden: true})
	require.NoError(t, err)
	assert.Equal(t, `{"Region":"EU","Year":2024}`, string(got))
}

func TestMarshal_Leaves(t *testing.T) {
	id := uuid.MustParse("0191b0c4-6f2d-7c3e-8a9b-0123456789ab")
	got, err := Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"0191b0c4-6f2d-7c3e-8a9b-0123456789ab"`, string(got))

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err = Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T12:00:00Z"`, string(got))
}

func TestMarshal_NFCNormalization(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := Marshal(decomposed)
	require.NoError(t, err)
	b, err := Marshal(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshal_LineSeparatorsStayLiteral(t *testing.T) {
	got, err := Marshal("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	got, err = Marshal(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestMarshal_RejectsNonFinite(t *testing.T) {
	_, err := Marshal([]any{1, func() float64 { z := 0.0; return 1 / z }()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[1]")
}

func TestHash_StableAndDomainSeparated(t *testing.T) {
	v := map[string]any{"b": 1, "a": []any{"x", true}}

	h1 := MustHash(DomainFilter, v)
	h2 := MustHash(DomainFilter, map[string]any{"a": []any{"x", true}, "b": 1})
	h3 := MustHash(DomainGrouping, v)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
