package domain

import (
	"math"
)

// Field names a LoanRecord attribute. The string value is the canonical
// column name used in reports and storage.
type Field string

const (
	FieldID                Field = "id"
	FieldPropertyValue     Field = "property_value"
	FieldLoanAmount        Field = "loan_amount"
	FieldLTV               Field = "ltv"
	FieldDamageFactor      Field = "damage_factor"
	FieldHazardProbability Field = "hazard_probability"
	FieldRiskWeight        Field = "risk_weight"
	FieldEnergyClass       Field = "energy_class"
	FieldFloorArea         Field = "floor_area"
	FieldPricePerArea      Field = "price_per_area"
	FieldBuildYear         Field = "build_year"
	FieldFloodLevel        Field = "flood_level"
)

// DefaultHazardProbability is the AEP assumed when a record carries none.
const DefaultHazardProbability = 0.01

// LoanRecord is one row of a mortgage portfolio.
// Numeric fields hold NaN when the source cell was missing or unparseable.
type LoanRecord struct {
	ID                int     `json:"id"`
	PropertyValue     float64 `json:"property_value"`
	LoanAmount        float64 `json:"loan_amount"`
	LTV               float64 `json:"ltv"`
	DamageFactor      float64 `json:"damage_factor"`
	HazardProbability float64 `json:"hazard_probability"`
	RiskWeight        float64 `json:"risk_weight"`
	EnergyClass       string  `json:"energy_class,omitempty"`
	FloorArea         float64 `json:"floor_area"`
	PricePerArea      float64 `json:"price_per_area"`

	// Set by the synthetic generator only.
	BuildYear  string `json:"build_year,omitempty"`
	FloodLevel string `json:"flood_level,omitempty"`

	// Row is the zero-based data row the record was read from.
	Row int `json:"-"`
}

// NewLoanRecord returns a record with every numeric field marked missing.
func NewLoanRecord(id int) LoanRecord {
	nan := math.NaN()
	return LoanRecord{
		ID:                id,
		PropertyValue:     nan,
		LoanAmount:        nan,
		LTV:               nan,
		DamageFactor:      nan,
		HazardProbability: nan,
		RiskWeight:        nan,
		FloorArea:         nan,
		PricePerArea:      nan,
	}
}

// Value returns the numeric value of f. Non-numeric fields report NaN.
func (r *LoanRecord) Value(f Field) float64 {
	switch f {
	case FieldID:
		return float64(r.ID)
	case FieldPropertyValue:
		return r.PropertyValue
	case FieldLoanAmount:
		return r.LoanAmount
	case FieldLTV:
		return r.LTV
	case FieldDamageFactor:
		return r.DamageFactor
	case FieldHazardProbability:
		return r.HazardProbability
	case FieldRiskWeight:
		return r.RiskWeight
	case FieldFloorArea:
		return r.FloorArea
	case FieldPricePerArea:
		return r.PricePerArea
	default:
		return math.NaN()
	}
}

// SetValue assigns a numeric field. It reports false for non-numeric fields.
func (r *LoanRecord) SetValue(f Field, v float64) bool {
	switch f {
	case FieldPropertyValue:
		r.PropertyValue = v
	case FieldLoanAmount:
		r.LoanAmount = v
	case FieldLTV:
		r.LTV = v
	case FieldDamageFactor:
		r.DamageFactor = v
	case FieldHazardProbability:
		r.HazardProbability = v
	case FieldRiskWeight:
		r.RiskWeight = v
	case FieldFloorArea:
		r.FloorArea = v
	case FieldPricePerArea:
		r.PricePerArea = v
	default:
		return false
	}
	return true
}

// Has reports whether field f carries a usable value.
func (r *LoanRecord) Has(f Field) bool {
	switch f {
	case FieldEnergyClass:
		return r.EnergyClass != ""
	case FieldBuildYear:
		return r.BuildYear != ""
	case FieldFloodLevel:
		return r.FloodLevel != ""
	case FieldID:
		return r.ID > 0
	default:
		return !math.IsNaN(r.Value(f))
	}
}

// HasDamageExposure reports whether a hazard scenario applies to the record.
// Records with a zero damage factor are left out of damage aggregates.
func (r *LoanRecord) HasDamageExposure() bool {
	return r.DamageFactor > 0
}

// LoanToValue divides loan by value, returning +Inf when value is not positive.
func LoanToValue(loan, value float64) float64 {
	if value > 0 {
		return loan / value
	}
	return math.Inf(1)
}

// IsMissing reports whether v is the missing-value sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}
