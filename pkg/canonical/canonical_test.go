package canonical_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ksmashhero06/smart-data-integration-portal/pkg/canonical"
)

func TestEncode_KeepsInsertionOrder(t *testing.T) {
	out, err := canonical.Encode(canonical.Object{{Key: "b", Value: "x"}, {Key: "a", Value: 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"b": "x", "a": 1}`, out)
}

func TestEncodeSorted_SortsNestedObjects(t *testing.T) {
	v := canonical.Object{
		{Key: "z", Value: []any{1, nil, true, 1.5}},
		{Key: "a", Value: canonical.Object{{Key: "d", Value: "e"}, {Key: "c", Value: "f"}}},
	}
	out, err := canonical.EncodeSorted(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"c": "f", "d": "e"}, "z": [1, null, true, 1.5]}`, out)
}

func TestEncode_MapsAreAlwaysSorted(t *testing.T) {
	out, err := canonical.Encode(map[string]any{"b": false, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"a": "x", "b": false}`, out)
}

func TestEncode_StringEscaping(t *testing.T) {
	in := "café ✓ \U0001F600 \"q\" \\ \n\t\x7f\x01 </script>"
	out, err := canonical.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, `"caf\u00e9 \u2713 \ud83d\ude00 \"q\" \\ \n\t\u007f\u0001 </script>"`, out)
}

func TestEncode_InvalidUTF8(t *testing.T) {
	_, err := canonical.Encode(string([]byte{0xff, 0xfe}))
	require.ErrorIs(t, err, canonical.ErrInvalidUTF8)
}

func TestEncode_UnsupportedType(t *testing.T) {
	_, err := canonical.Encode(struct{}{})
	var unsupported *canonical.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
}

func TestFormatFloat(t *testing.T) {
	cases := map[float64]string{
		1700000000.5: "1700000000.5",
		1700000000.0: "1700000000.0",
		1e-05:        "1e-05",
		1e16:         "1e+16",
		1234.5678:    "1234.5678",
		0:            "0.0",
		math.Inf(1):  "Infinity",
		math.Inf(-1): "-Infinity",
	}
	for in, want := range cases {
		assert.Equal(t, want, canonical.FormatFloat(in), "input %v", in)
	}
	a, b := 0.1, 0.2
	assert.Equal(t, "0.30000000000000004", canonical.FormatFloat(a+b))
	assert.Equal(t, "-0.0", canonical.FormatFloat(math.Copysign(0, -1)))
	assert.Equal(t, "NaN", canonical.FormatFloat(math.NaN()))
}
