// Package physical applies a hazard damage scenario to loan records and
// recomputes their loan-to-value and risk-weighted assets.
package physical

import (
	"fmt"
	"math"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/riskweight"
)

// DefaultHorizon is the number of years the annual impact is integrated over.
const DefaultHorizon = 20

// RequiredFields lists the columns the damage stage needs per row.
var RequiredFields = []domain.Field{
	domain.FieldPropertyValue,
	domain.FieldLoanAmount,
	domain.FieldDamageFactor,
}

// Model holds the parameters of the damage calculation.
type Model struct {
	Horizon float64
	Table   *riskweight.Table
}

// NewModel returns a Model with the default horizon and risk-weight table.
func NewModel() *Model {
	return &Model{Horizon: DefaultHorizon, Table: riskweight.Default}
}

// Compute runs the damage model for one record.
// The old RWA baseline uses the risk weight of the record's current ltv.
func (m *Model) Compute(rec domain.LoanRecord) (domain.PhysicalResult, error) {
	res := domain.PhysicalResult{LoanID: rec.ID, Exposed: rec.HasDamageExposure()}

	switch {
	case math.IsNaN(rec.PropertyValue), math.IsNaN(rec.LoanAmount), math.IsNaN(rec.DamageFactor):
		return Missing(rec.ID), fmt.Errorf("Compute: row %d: missing property value, loan or damage factor", rec.ID)
	case rec.DamageFactor < 0 || rec.DamageFactor > 1:
		return Missing(rec.ID), fmt.Errorf("Compute: row %d: damage factor %v outside [0,1]", rec.ID, rec.DamageFactor)
	}

	oldWeight, err := m.Table.Classify(rec.LTV)
	if err != nil {
		return Missing(rec.ID), fmt.Errorf("Compute: row %d: %w", rec.ID, err)
	}

	aep := rec.HazardProbability
	if math.IsNaN(aep) {
		aep = domain.DefaultHazardProbability
	}

	res.DamageAmount = rec.PropertyValue * rec.DamageFactor
	res.ExpectedAnnualImpact = res.DamageAmount * aep
	res.ExpectedImpactOverHorizon = res.ExpectedAnnualImpact * m.Horizon
	res.NewPropertyValue = rec.PropertyValue - res.DamageAmount
	res.NewLTV = domain.LoanToValue(rec.LoanAmount, res.NewPropertyValue)

	res.NewRiskWeight, err = m.Table.Classify(res.NewLTV)
	if err != nil {
		return Missing(rec.ID), fmt.Errorf("Compute: row %d: new ltv: %w", rec.ID, err)
	}

	res.OldRWA = riskweight.RWA(rec.LoanAmount, oldWeight)
	res.NewRWA = riskweight.RWA(rec.LoanAmount, res.NewRiskWeight)
	res.RWAChangeRatio = riskweight.ChangeRatio(res.OldRWA, res.NewRWA)
	return res, nil
}

// Missing returns a result whose outputs are all NaN.
func Missing(id int) domain.PhysicalResult {
	nan := math.NaN()
	return domain.PhysicalResult{
		LoanID:                    id,
		DamageAmount:              nan,
		ExpectedAnnualImpact:      nan,
		ExpectedImpactOverHorizon: nan,
		NewPropertyValue:          nan,
		NewLTV:                    nan,
		NewRiskWeight:             nan,
		OldRWA:                    nan,
		NewRWA:                    nan,
		RWAChangeRatio:            nan,
	}
}
