package domain

import (
	"time"
)

// PhysicalResult holds the Damage/Value Model outputs for one record.
// Every field is NaN when the row could not be computed.
type PhysicalResult struct {
	LoanID                    int     `json:"loan_id"`
	DamageAmount              float64 `json:"damage_amount"`
	ExpectedAnnualImpact      float64 `json:"expected_annual_impact"`
	ExpectedImpactOverHorizon float64 `json:"expected_impact_over_horizon"`
	NewPropertyValue          float64 `json:"new_property_value"`
	NewLTV                    float64 `json:"new_ltv"`
	NewRiskWeight             float64 `json:"new_risk_weight"`
	OldRWA                    float64 `json:"old_rwa"`
	NewRWA                    float64 `json:"new_rwa"`
	RWAChangeRatio            float64 `json:"rwa_change_ratio"`
	Exposed                   bool    `json:"exposed"`
	Err                       string  `json:"error,omitempty"`

	// Row is copied from the source record.
	Row int `json:"-"`
}

// TransitionResult holds the capitalized energy-cost adjustment of one record
// for one (scenario, year) cell.
type TransitionResult struct {
	LoanID           int     `json:"loan_id"`
	Scenario         string  `json:"scenario"`
	Year             int     `json:"year"`
	EnergyClass      string  `json:"energy_class"`
	PropertyValue    float64 `json:"property_value"`
	LTV              float64 `json:"ltv"`
	DeltaCost        float64 `json:"delta_consumption_cost"`
	DeltaValue       float64 `json:"delta_value"`
	NewPropertyValue float64 `json:"new_property_value"`
	ValueChange      float64 `json:"value_change"`
	NewLTV           float64 `json:"new_ltv"`
	NewRiskWeight    float64 `json:"new_risk_weight"`
	OldRWA           float64 `json:"old_rwa"`
	NewRWA           float64 `json:"new_rwa"`
	RWAChangeRatio   float64 `json:"rwa_change_ratio"`
	Err              string  `json:"error,omitempty"`
}

// ClassAverage is the mean of transition outputs over one energy class.
type ClassAverage struct {
	Scenario         string  `json:"scenario"`
	Year             int     `json:"year"`
	EnergyClass      string  `json:"energy_class"`
	Count            int     `json:"count"`
	PropertyValue    float64 `json:"property_value"`
	NewPropertyValue float64 `json:"new_property_value"`
	LTV              float64 `json:"ltv"`
	NewLTV           float64 `json:"new_ltv"`
	ValueChange      float64 `json:"value_change"`
	RWAChangeRatio   float64 `json:"rwa_change_ratio"`
}

// PortfolioTotal is the additive reduction of RWA over a whole portfolio.
type PortfolioTotal struct {
	Scenario string  `json:"scenario"`
	Year     int     `json:"year"`
	Count    int     `json:"count"`
	OldRWA   float64 `json:"old_rwa"`
	NewRWA   float64 `json:"new_rwa"`
}

// Run describes one execution of the recalculation pipeline.
type Run struct {
	RunID          string     `json:"run_id"`
	InputURI       string     `json:"input_uri"`
	OutputURI      string     `json:"output_uri,omitempty"`
	Stages         []string   `json:"stages"`
	RowsLoaded     int        `json:"rows_loaded"`
	RowsPhysical   int        `json:"rows_physical"`
	RowsTransition int        `json:"rows_transition"`
	RowErrors      int        `json:"row_errors"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}
