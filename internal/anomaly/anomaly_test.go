package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestDegree_NilWhenNoPrediction(t *testing.T) {
	assert.Nil(t, Degree(f(0.5), nil, f(0.1), f(0.4)))
	assert.Nil(t, Degree(nil, nil, nil, nil))
}

func TestDegree_ZeroValueEdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		lower  *float64
		upper  *float64
		expect float64
	}{
		{"band entirely negative", f(-0.5), f(-0.1), 1.0},
		{"band entirely positive", f(0.2), f(0.5), -1.0},
		{"band straddles zero", f(-0.1), f(0.1), 0.0},
		{"zero on band edge", f(0.0), f(0.1), 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Degree(f(0), f(0.2), tt.lower, tt.upper)
			require.NotNil(t, got)
			assert.Equal(t, tt.expect, *got)
		})
	}
}

func TestDegree_AboveBand(t *testing.T) {
	got := Degree(f(0.8), f(0.4), f(0.2), f(0.6))
	require.NotNil(t, got)
	assert.InDelta(t, (0.8-0.6)/0.8, *got, 1e-12)
}

func TestDegree_BelowBand(t *testing.T) {
	got := Degree(f(0.1), f(0.4), f(0.2), f(0.6))
	require.NotNil(t, got)
	assert.InDelta(t, (0.1-0.2)/0.1, *got, 1e-12)
}

func TestDegree_WithinBand(t *testing.T) {
	got := Degree(f(0.4), f(0.4), f(0.2), f(0.6))
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)

	// Band edges are within, not anomalous.
	assert.Equal(t, 0.0, *Degree(f(0.2), f(0.4), f(0.2), f(0.6)))
	assert.Equal(t, 0.0, *Degree(f(0.6), f(0.4), f(0.2), f(0.6)))
}

func TestDegree_NullValueWithPrediction(t *testing.T) {
	// A missing measurement against an existing prediction is not an anomaly;
	// the degree stays defined so the null-iff-unpredicted invariant holds.
	got := Degree(nil, f(0.4), f(0.2), f(0.6))
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestDegree_BoundedRange(t *testing.T) {
	// Degrees stay within [-1, 1] for positive values in [0, 1] bands.
	cases := [][3]float64{
		{0.9, 0.1, 0.2},
		{0.4, 0.5, 0.9},
		{1.0, 0.0, 0.001},
	}
	for _, c := range cases {
		got := Degree(f(c[0]), f(0.5), f(c[1]), f(c[2]))
		require.NotNil(t, got)
		assert.GreaterOrEqual(t, *got, -1.0)
		assert.LessOrEqual(t, *got, 1.0)
	}
}
