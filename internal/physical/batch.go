package physical

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/logger"
)

// Run applies the model to every record. A failing row is logged and
// gets NaN outputs; the batch always completes.
func (m *Model) Run(ctx context.Context, recs []domain.LoanRecord) []domain.PhysicalResult {
	log := logger.FromContext(ctx)
	out := make([]domain.PhysicalResult, len(recs))
	for i, rec := range recs {
		res, err := m.safeCompute(rec)
		if err != nil {
			log.Warn().Err(err).Int("row_id", rec.ID).Str("stage", "physical").Msg("row skipped")
			res.Err = err.Error()
		}
		res.Row = rec.Row
		out[i] = res
	}
	return out
}

func (m *Model) safeCompute(rec domain.LoanRecord) (res domain.PhysicalResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Missing(rec.ID)
			err = fmt.Errorf("Compute: row %d: panic: %v", rec.ID, r)
		}
	}()
	return m.Compute(rec)
}

// Summary describes the exposed rows of a physical run.
type Summary struct {
	Rows          int     `json:"rows"`
	Exposed       int     `json:"exposed"`
	Failed        int     `json:"failed"`
	TotalDamage   float64 `json:"total_damage"`
	TotalExpected float64 `json:"total_expected_annual_impact"`
	TotalOldRWA   float64 `json:"total_old_rwa"`
	TotalNewRWA   float64 `json:"total_new_rwa"`
	MeanChange    float64 `json:"mean_rwa_change_ratio"`
	StdChange     float64 `json:"std_rwa_change_ratio"`
	MedianChange  float64 `json:"median_rwa_change_ratio"`
	P95Change     float64 `json:"p95_rwa_change_ratio"`
	MeanNewLTV    float64 `json:"mean_new_ltv"`
	// Upgraded counts rows whose risk bucket moved up.
	Upgraded int `json:"upgraded"`
}

// Summarize aggregates results. Rows with no damage exposure, failed rows and
// rows with an infinite change ratio are left out of the statistics.
func Summarize(results []domain.PhysicalResult) Summary {
	s := Summary{Rows: len(results)}

	var damage, expected, oldRWA, newRWA, changes, ltvs []float64
	for _, r := range results {
		if r.Err != "" || math.IsNaN(r.NewRWA) {
			s.Failed++
			continue
		}
		if !r.Exposed {
			continue
		}
		s.Exposed++
		damage = append(damage, r.DamageAmount)
		expected = append(expected, r.ExpectedAnnualImpact)
		oldRWA = append(oldRWA, r.OldRWA)
		newRWA = append(newRWA, r.NewRWA)
		if r.NewRWA > r.OldRWA {
			s.Upgraded++
		}
		if !math.IsInf(r.RWAChangeRatio, 0) {
			changes = append(changes, r.RWAChangeRatio)
		}
		if !math.IsInf(r.NewLTV, 0) {
			ltvs = append(ltvs, r.NewLTV)
		}
	}

	s.TotalDamage = floats.Sum(damage)
	s.TotalExpected = floats.Sum(expected)
	s.TotalOldRWA = floats.Sum(oldRWA)
	s.TotalNewRWA = floats.Sum(newRWA)

	s.MeanChange, s.StdChange, s.MedianChange, s.P95Change = math.NaN(), math.NaN(), math.NaN(), math.NaN()
	if len(changes) > 0 {
		s.MeanChange = stat.Mean(changes, nil)
		if len(changes) > 1 {
			s.StdChange = stat.StdDev(changes, nil)
		}
		sorted := append([]float64(nil), changes...)
		floats.Argsort(sorted, make([]int, len(sorted)))
		s.MedianChange = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		s.P95Change = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	s.MeanNewLTV = math.NaN()
	if len(ltvs) > 0 {
		s.MeanNewLTV = stat.Mean(ltvs, nil)
	}
	return s
}
