package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"float integral", 1.0, "1"},
		{"float fraction", 1.5, "1.5"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"bool", true, "true"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"simple object", map[string]any{"a": 1}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical{}.Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestCanonicalSortedKeys(t *testing.T) {
	got, err := Canonical{}.Marshal(map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  map[string]any{"y": 1, "x": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":{"x":2,"y":1},"zebra":1}`, string(got))
}

func TestCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before U+E000.
	got, err := Canonical{}.Marshal(map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(got))
}

func TestCanonicalEquivalentValuesMatch(t *testing.T) {
	type point struct {
		Y int `json:"y"`
		X int `json:"x"`
	}

	a, err := Canonical{}.Marshal(point{X: 1, Y: 2})
	require.NoError(t, err)
	b, err := Canonical{}.Marshal(map[string]any{"x": 1.0, "y": 2})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCanonicalNFC(t *testing.T) {
	// "e" + combining acute accent composes to U+00E9.
	decomposed, err := Canonical{}.Marshal("e\u0301")
	require.NoError(t, err)
	composed, err := Canonical{}.Marshal("\u00e9")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestCanonicalEscaping(t *testing.T) {
	got, err := Canonical{}.Marshal("<&> \"\\\n\x01")
	require.NoError(t, err)
	assert.Equal(t, "\"<&> \\\"\\\\\\n\\u0001\"", string(got))
}

func TestCanonicalRejectsUnsupported(t *testing.T) {
	_, err := Canonical{}.Marshal(func() {})
	require.Error(t, err)
}

func TestCanonicalRejectsKeysCollidingAfterNFC(t *testing.T) {
	_, err := Canonical{}.Marshal(map[string]any{"\u00e9": 1, "e\u0301": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collide")

	nested := map[string]any{"outer": []any{map[string]any{"\u00c5": true, "A\u030a": false}}}
	_, err = Canonical{}.Marshal(nested)
	require.Error(t, err)
}

func TestCanonicalNormalizesKeysWithoutCollision(t *testing.T) {
	got, err := Canonical{}.Marshal(map[string]any{"cafe\u0301": 1, "cafe": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"cafe\":2,\"caf\u00e9\":1}", string(got))

	decoded, err := Canonical{}.Unmarshal(got)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"caf\u00e9": float64(1), "cafe": float64(2)}, decoded)
}

func TestCanonicalDecodesNFDStringAsNFC(t *testing.T) {
	data, err := Canonical{}.Marshal("cafe\u0301")
	require.NoError(t, err)

	got, err := Canonical{}.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got)
}
