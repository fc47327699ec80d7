package physical

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/logger"
	"github.com/dvloznov/climate-risk/internal/riskweight"
)

func record(id int, value, loan, damage float64) domain.LoanRecord {
	rec := domain.NewLoanRecord(id)
	rec.PropertyValue = value
	rec.LoanAmount = loan
	rec.DamageFactor = damage
	rec.HazardProbability = 0.01
	rec.LTV = domain.LoanToValue(loan, value)
	rec.RiskWeight = riskweight.Weight(rec.LTV)
	return rec
}

func TestCompute_ReferenceRecord(t *testing.T) {
	m := NewModel()
	res, err := m.Compute(record(1, 300000, 210000, 0.10))
	require.NoError(t, err)

	assert.InDelta(t, 30000, res.DamageAmount, 1e-6)
	assert.InDelta(t, 300, res.ExpectedAnnualImpact, 1e-6)
	assert.InDelta(t, 6000, res.ExpectedImpactOverHorizon, 1e-6)
	assert.InDelta(t, 270000, res.NewPropertyValue, 1e-6)
	assert.InDelta(t, 0.7778, res.NewLTV, 1e-4)
	// 0.7778 stays in the (0.60, 0.80] bucket.
	assert.Equal(t, 0.30, res.NewRiskWeight)
	assert.InDelta(t, 63000, res.OldRWA, 1e-6)
	assert.InDelta(t, 63000, res.NewRWA, 1e-6)
	assert.Equal(t, 0.0, res.RWAChangeRatio)
	assert.True(t, res.Exposed)
}

func TestCompute_CrossesBucket(t *testing.T) {
	m := NewModel()
	res, err := m.Compute(record(1, 300000, 210000, 0.15))
	require.NoError(t, err)

	assert.InDelta(t, 45000, res.DamageAmount, 1e-6)
	assert.InDelta(t, 255000, res.NewPropertyValue, 1e-6)
	assert.InDelta(t, 0.8235, res.NewLTV, 1e-4)
	assert.Equal(t, 0.40, res.NewRiskWeight)
	assert.InDelta(t, 63000, res.OldRWA, 1e-6)
	assert.InDelta(t, 84000, res.NewRWA, 1e-6)
	assert.InDelta(t, 1.0/3.0, res.RWAChangeRatio, 1e-9)
}

func TestCompute_BucketBoundary(t *testing.T) {
	m := NewModel()
	// new ltv exactly 0.80 keeps the lower weight
	res, err := m.Compute(record(1, 250000, 160000, 0.2))
	require.NoError(t, err)
	assert.InDelta(t, 0.80, res.NewLTV, 1e-12)
	assert.Equal(t, 0.30, res.NewRiskWeight)
}

func TestCompute_ZeroDamageIsIdentity(t *testing.T) {
	m := NewModel()
	rec := record(2, 250000, 180000, 0)
	res, err := m.Compute(rec)
	require.NoError(t, err)

	assert.Equal(t, rec.PropertyValue, res.NewPropertyValue)
	assert.Equal(t, rec.LTV, res.NewLTV)
	assert.Equal(t, 0.0, res.RWAChangeRatio)
	assert.False(t, res.Exposed)
}

func TestCompute_TotalLoss(t *testing.T) {
	m := NewModel()
	res, err := m.Compute(record(3, 100000, 50000, 1))
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.NewPropertyValue)
	assert.True(t, math.IsInf(res.NewLTV, 1))
	assert.Equal(t, 0.70, res.NewRiskWeight)
}

func TestCompute_ZeroLoan(t *testing.T) {
	m := NewModel()
	res, err := m.Compute(record(4, 100000, 0, 0.2))
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.RWAChangeRatio, 1))
}

func TestCompute_Errors(t *testing.T) {
	m := NewModel()

	neg := record(5, 100000, 50000, 0.1)
	neg.LTV = -0.5
	_, err := m.Compute(neg)
	assert.True(t, errors.Is(err, riskweight.ErrNegativeLTV))

	_, err = m.Compute(record(6, 100000, 50000, 1.5))
	assert.Error(t, err)

	missing := record(7, 100000, 50000, 0.1)
	missing.LoanAmount = math.NaN()
	res, err := m.Compute(missing)
	assert.Error(t, err)
	assert.True(t, math.IsNaN(res.NewRWA))
}

func TestCompute_Horizon(t *testing.T) {
	m := &Model{Horizon: 5, Table: riskweight.Default}
	rec := record(8, 100000, 50000, 0.2)
	rec.HazardProbability = 0.1
	res, err := m.Compute(rec)
	require.NoError(t, err)
	assert.InDelta(t, 2000, res.ExpectedAnnualImpact, 1e-9)
	assert.InDelta(t, 10000, res.ExpectedImpactOverHorizon, 1e-9)
}

func TestRun_RowFailuresDoNotAbort(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))

	bad := record(2, 100000, 50000, 0.1)
	bad.LTV = -1
	recs := []domain.LoanRecord{
		record(1, 300000, 210000, 0.15),
		bad,
		record(3, 200000, 100000, 0),
	}

	results := NewModel().Run(ctx, recs)
	require.Len(t, results, 3)

	assert.InDelta(t, 84000, results[0].NewRWA, 1e-6)
	assert.True(t, math.IsNaN(results[1].NewRWA))
	assert.NotEmpty(t, results[1].Err)
	assert.Equal(t, 0.0, results[2].RWAChangeRatio)

	assert.Contains(t, buf.String(), "row skipped")
	assert.Contains(t, buf.String(), `"row_id":2`)
}

func TestSummarize(t *testing.T) {
	results := NewModel().Run(context.Background(), []domain.LoanRecord{
		record(1, 300000, 210000, 0.15),
		record(2, 100000, 50000, 0.5),
		record(3, 200000, 100000, 0),
		record(4, 100000, 50000, 2),
	})

	s := Summarize(results)
	assert.Equal(t, 4, s.Rows)
	assert.Equal(t, 2, s.Exposed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Upgraded)
	assert.InDelta(t, 45000+50000, s.TotalDamage, 1e-6)
	assert.InDelta(t, 63000+10000, s.TotalOldRWA, 1e-6)
	assert.InDelta(t, 84000+25000, s.TotalNewRWA, 1e-6)
	assert.InDelta(t, (1.0/3.0+1.5)/2, s.MeanChange, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Exposed)
	assert.True(t, math.IsNaN(s.MeanChange))
	assert.Equal(t, 0.0, s.TotalNewRWA)
}
