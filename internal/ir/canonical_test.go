package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"number with fraction", IRNumber(2.5), "2.5"},
		{"integral number keeps fraction", IRNumber(1), "1.0"},
		{"negative number", IRNumber(-12.75), "-12.75"},
		{"large number uses exponent", IRNumber(1e21), "1e+21"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"simple object", IRObject{"a": IRInt(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra": IRInt(1),
		"alpha": IRInt(2),
		"beta":  IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+E000 vs U+10000 - UTF-16 order differs from UTF-8
	obj := IRObject{
		"\uE000":     IRInt(1), // UTF-16: 0xE000
		"\U00010000": IRInt(2), // UTF-16: 0xD800, 0xDC00 (surrogate pair)
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)

	// UTF-16 order: 0xD800 < 0xE000, so U+10000 comes first
	expected := "{\"\U00010000\":2,\"\uE000\":1}"
	assert.Equal(t, expected, string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<b>rent & bills</b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<b>rent & bills</b>"`, string(result))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "e" + combining acute (NFD) must encode like the precomposed form
	nfd := IRString("cafe\u0301")
	nfc := IRString("caf\u00e9")

	a, err := MarshalCanonical(nfd)
	require.NoError(t, err)
	b, err := MarshalCanonical(nfc)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(IRNumber(math.NaN()))
	assert.Error(t, err)

	_, err = MarshalCanonical(IRObject{"amount": IRNumber(math.Inf(1))})
	assert.Error(t, err)
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"quote\"", `"quote\""`},
		{"back\\slash", `"back\\slash"`},
		{"new\nline", `"new\nline"`},
		{"tab\t", `"tab\t"`},
	}

	for _, tt := range tests {
		result, err := MarshalCanonical(IRString(tt.input))
		require.NoError(t, err)
		assert.Equal(t, tt.expected, string(result))
	}
}

func TestMarshalCanonicalU2028U2029NotEscaped(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
}

func TestMarshalCanonicalLiteralBackslashU2028(t *testing.T) {
	// The text `\u2028` (backslash + "u2028") must stay escaped
	result, err := MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	obj := IRObject{
		"title":  IRString("Pay rent"),
		"amount": IRNumber(1250.5),
		"tags":   IRArray{IRString("home"), IRString("monthly")},
		"done":   IRBool(false),
		"due":    IRNull{},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)

	parsed, err := ParseValue(first)
	require.NoError(t, err)

	second, err := MarshalCanonical(parsed)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestMarshalCanonicalWithGoTypes(t *testing.T) {
	result, err := MarshalCanonical(map[string]any{
		"b": []any{"x", int64(2), true},
		"a": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":["x",2,true]}`, string(result))
}

func TestCanonicalEqual(t *testing.T) {
	a := IRObject{"id": IRString("t1"), "n": IRInt(1)}
	b := IRObject{"n": IRInt(1), "id": IRString("t1")}
	c := IRObject{"id": IRString("t1"), "n": IRNumber(1)}

	assert.True(t, CanonicalEqual(a, b))
	assert.False(t, CanonicalEqual(a, c), "IRInt(1) and IRNumber(1) encode differently")
	assert.False(t, CanonicalEqual(IRNumber(math.NaN()), IRNumber(math.NaN())))
}
