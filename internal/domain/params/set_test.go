package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSet() Set {
	return Set{
		"scoring": map[string]any{
			"weights": map[string]any{
				"gamma_regime": 0.4,
			},
			"entry": map[string]any{
				"score": 3,
			},
		},
		"symbol":  "SPY",
		"enabled": true,
		"days":    float64(14),
	}
}

func TestSetPathGetters(t *testing.T) {
	s := sampleSet()

	v, ok := s.Float("scoring.weights.gamma_regime")
	require.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-12)

	// ints coerce to floats
	entry, ok := s.Float("scoring.entry.score")
	require.True(t, ok)
	assert.InDelta(t, 3.0, entry, 1e-12)

	days, ok := s.Int("days")
	require.True(t, ok)
	assert.Equal(t, 14, days)

	str, ok := s.Str("symbol")
	require.True(t, ok)
	assert.Equal(t, "SPY", str)

	b, ok := s.Bool("enabled")
	require.True(t, ok)
	assert.True(t, b)
}

func TestSetMissingAndMistyped(t *testing.T) {
	s := sampleSet()

	_, ok := s.Float("scoring.weights.missing")
	assert.False(t, ok)

	// path descends through a scalar
	_, ok = s.Float("symbol.nested")
	assert.False(t, ok)

	// wrong type
	_, ok = s.Float("symbol")
	assert.False(t, ok)

	assert.Equal(t, 9.9, s.FloatOr("nope", 9.9))
	assert.Equal(t, "dflt", s.StrOr("scoring", "dflt"))
	assert.True(t, s.BoolOr("nope", true))
	assert.Equal(t, 7, s.IntOr("nope", 7))
}

func TestSetClone(t *testing.T) {
	s := sampleSet()
	c := s.Clone()

	c["scoring"].(map[string]any)["weights"].(map[string]any)["gamma_regime"] = 0.9
	c["symbol"] = "QQQ"

	v, _ := s.Float("scoring.weights.gamma_regime")
	assert.InDelta(t, 0.4, v, 1e-12)
	str, _ := s.Str("symbol")
	assert.Equal(t, "SPY", str)
}

func TestExpand(t *testing.T) {
	m := Expand("compare.material_change_pct", 5.0)
	require.Contains(t, m, "compare")
	inner, ok := m["compare"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5.0, inner["material_change_pct"])

	flat := Expand("vix", 22.0)
	assert.Equal(t, 22.0, flat["vix"])
}
