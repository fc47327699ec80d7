package riskweight

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeight(t *testing.T) {
	tests := []struct {
		name string
		ltv  float64
		want float64
	}{
		{"zero", 0, 0.20},
		{"low", 0.3, 0.20},
		{"edge 0.50", 0.50, 0.20},
		{"just above 0.50", 0.5000001, 0.25},
		{"edge 0.60", 0.60, 0.25},
		{"0.70", 0.70, 0.30},
		{"edge 0.80", 0.80, 0.30},
		{"0.7778", 0.7778, 0.30},
		{"0.85", 0.85, 0.40},
		{"edge 0.90", 0.90, 0.40},
		{"0.95", 0.95, 0.50},
		{"edge 1.00", 1.00, 0.50},
		{"above 1", 1.0001, 0.70},
		{"large", 42, 0.70},
		{"infinity", math.Inf(1), 0.70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Weight(tt.ltv))
		})
	}
}

func TestWeight_MonotoneAndImage(t *testing.T) {
	image := map[float64]bool{}
	prev := 0.0
	for ltv := 0.0; ltv <= 1.5; ltv += 0.001 {
		w := Weight(ltv)
		assert.GreaterOrEqual(t, w, prev, "ltv %v", ltv)
		prev = w
		image[w] = true
	}
	image[Weight(math.Inf(1))] = true

	want := map[float64]bool{0.20: true, 0.25: true, 0.30: true, 0.40: true, 0.50: true, 0.70: true}
	assert.Equal(t, want, image)
}

func TestClassify(t *testing.T) {
	w, err := Classify(0.75)
	require.NoError(t, err)
	assert.Equal(t, 0.30, w)

	_, err = Classify(-0.1)
	assert.True(t, errors.Is(err, ErrNegativeLTV))

	_, err = Classify(math.NaN())
	assert.True(t, errors.Is(err, ErrUndefinedLTV))

	w, err = Classify(math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, 0.70, w)
}

func TestNewTable(t *testing.T) {
	t.Run("sorts buckets", func(t *testing.T) {
		tbl, err := NewTable([]Bucket{
			{UpperBound: math.Inf(1), Weight: 1},
			{UpperBound: 0.5, Weight: 0.1},
		})
		require.NoError(t, err)
		assert.Equal(t, 0.1, tbl.Weight(0.5))
		assert.Equal(t, 1.0, tbl.Weight(0.51))
		assert.Equal(t, []float64{0.1, 1}, tbl.Weights())
	})

	t.Run("requires unbounded bucket", func(t *testing.T) {
		_, err := NewTable([]Bucket{{UpperBound: 1, Weight: 0.5}})
		assert.Error(t, err)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := NewTable([]Bucket{
			{UpperBound: 1, Weight: 0.5},
			{UpperBound: 1, Weight: 0.6},
			{UpperBound: math.Inf(1), Weight: 0.7},
		})
		assert.Error(t, err)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := NewTable(nil)
		assert.Error(t, err)
	})
}

func TestChangeRatio(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, ChangeRatio(63000, 84000), 1e-12)
	assert.Equal(t, 0.0, ChangeRatio(100, 100))
	assert.True(t, math.IsInf(ChangeRatio(0, 5), 1))
}
