package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"float", IRFloat(2.5), "2.5"},
		{"integral float", IRFloat(3), "3"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"bytes", IRBytes("hi"), `"aGk="`},
		{"ref", IRRef("shop:7:product"), `"shop:7:product"`},
		{"empty list", IRList{}, "[]"},
		{"set keeps order", IRSet{IRInt(3), IRInt(1)}, "[3,1]"},
		{"empty map", IRMap{}, "{}"},
		{"nested", IRMap{"b": IRList{IRInt(1)}, "a": IRBool(true)}, `{"a":true,"b":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRString("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(IRString("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	// A literal backslash followed by u2028 text stays escaped
	result, err = MarshalCanonical(IRString(`\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"\\u2028"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent normalizes to the precomposed form
	result, err := MarshalCanonical(IRString("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(IRFloat(posInf()))
	require.Error(t, err)
}

func TestJSONMarshalerUsesCanonicalForm(t *testing.T) {
	data, err := json.Marshal(map[string]any{"v": IRMap{"z": IRInt(1), "a": IRSet{IRString("x")}}})
	require.NoError(t, err)
	assert.Equal(t, `{"v":{"a":["x"],"z":1}}`, string(data))
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
