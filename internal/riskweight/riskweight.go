// Package riskweight maps a loan-to-value ratio to a regulatory risk weight.
package riskweight

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrNegativeLTV is returned by Classify for ltv < 0.
	ErrNegativeLTV = errors.New("negative loan-to-value")
	// ErrUndefinedLTV is returned by Classify for NaN ltv.
	ErrUndefinedLTV = errors.New("undefined loan-to-value")
)

// Bucket is one row of a risk-weight table. A bucket covers
// (previous UpperBound, UpperBound]. The last bucket of a table
// uses +Inf as its bound.
type Bucket struct {
	UpperBound float64 `yaml:"upper_bound" json:"upper_bound"`
	Weight     float64 `yaml:"weight" json:"weight"`
}

// Table is an ordered set of buckets.
type Table struct {
	buckets []Bucket
}

// Default is the standard residential mortgage table.
var Default = MustNewTable([]Bucket{
	{UpperBound: 0.50, Weight: 0.20},
	{UpperBound: 0.60, Weight: 0.25},
	{UpperBound: 0.80, Weight: 0.30},
	{UpperBound: 0.90, Weight: 0.40},
	{UpperBound: 1.00, Weight: 0.50},
	{UpperBound: math.Inf(1), Weight: 0.70},
})

// NewTable validates and sorts the buckets. The highest bound must be +Inf
// so the table is total over non-negative ltv.
func NewTable(buckets []Bucket) (*Table, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("NewTable: no buckets")
	}
	sorted := make([]Bucket, len(buckets))
	copy(sorted, buckets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UpperBound < sorted[j].UpperBound })

	for i, b := range sorted {
		if math.IsNaN(b.UpperBound) || math.IsNaN(b.Weight) || b.Weight < 0 {
			return nil, fmt.Errorf("NewTable: bucket %d: invalid bound %v or weight %v", i, b.UpperBound, b.Weight)
		}
		if i > 0 && sorted[i-1].UpperBound == b.UpperBound {
			return nil, fmt.Errorf("NewTable: duplicate bound %v", b.UpperBound)
		}
	}
	if !math.IsInf(sorted[len(sorted)-1].UpperBound, 1) {
		return nil, fmt.Errorf("NewTable: last bucket must be unbounded")
	}
	return &Table{buckets: sorted}, nil
}

// MustNewTable is NewTable that panics on error.
func MustNewTable(buckets []Bucket) *Table {
	t, err := NewTable(buckets)
	if err != nil {
		panic(err)
	}
	return t
}

// Buckets returns a copy of the table rows in ascending order.
func (t *Table) Buckets() []Bucket {
	out := make([]Bucket, len(t.buckets))
	copy(out, t.buckets)
	return out
}

// Weights returns the distinct weights of the table in bucket order.
func (t *Table) Weights() []float64 {
	out := make([]float64, 0, len(t.buckets))
	for _, b := range t.buckets {
		out = append(out, b.Weight)
	}
	return out
}

// Weight returns the weight of the first bucket whose bound is >= ltv.
// Negative ltv falls into the first bucket and NaN into the last.
func (t *Table) Weight(ltv float64) float64 {
	if math.IsNaN(ltv) {
		return t.buckets[len(t.buckets)-1].Weight
	}
	i := sort.Search(len(t.buckets), func(i int) bool { return ltv <= t.buckets[i].UpperBound })
	return t.buckets[i].Weight
}

// Classify is Weight with input validation.
func (t *Table) Classify(ltv float64) (float64, error) {
	switch {
	case math.IsNaN(ltv):
		return 0, ErrUndefinedLTV
	case ltv < 0:
		return 0, fmt.Errorf("Classify: ltv %v: %w", ltv, ErrNegativeLTV)
	}
	return t.Weight(ltv), nil
}

// Weight classifies ltv with the Default table.
func Weight(ltv float64) float64 {
	return Default.Weight(ltv)
}

// Classify validates and classifies ltv with the Default table.
func Classify(ltv float64) (float64, error) {
	return Default.Classify(ltv)
}

// RWA is loan * weight.
func RWA(loan, weight float64) float64 {
	return loan * weight
}

// ChangeRatio returns newRWA/oldRWA - 1, or +Inf when oldRWA is not positive.
func ChangeRatio(oldRWA, newRWA float64) float64 {
	if oldRWA > 0 {
		return newRWA/oldRWA - 1
	}
	return math.Inf(1)
}
