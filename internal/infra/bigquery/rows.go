package bigquery

import (
	"math"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/climate-risk/internal/domain"
)

// Table names inside the result dataset.
const (
	RunsTable             = "runs"
	PhysicalResultsTable  = "physical_results"
	ClassAveragesTable    = "transition_class_averages"
	PortfolioTotalsTable  = "transition_totals"
	DefaultDataset        = "climate_risk"
	maxRowsPerInsert      = 500
	maxErrorMessageLength = 2000
)

type RunRow struct {
	RunID     string              `bigquery:"run_id"`     // REQUIRED
	InputURI  string              `bigquery:"input_uri"`  // REQUIRED
	OutputURI bigquery.NullString `bigquery:"output_uri"` // NULLABLE
	Stages    []string            `bigquery:"stages"`     // REPEATED

	RowsLoaded     int64 `bigquery:"rows_loaded"`
	RowsPhysical   int64 `bigquery:"rows_physical"`
	RowsTransition int64 `bigquery:"rows_transition"`
	RowErrors      int64 `bigquery:"row_errors"`

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE
}

type PhysicalResultRow struct {
	RunID  string `bigquery:"run_id"`  // REQUIRED
	LoanID int64  `bigquery:"loan_id"` // REQUIRED

	DamageAmount              bigquery.NullFloat64 `bigquery:"damage_amount"`
	ExpectedAnnualImpact      bigquery.NullFloat64 `bigquery:"expected_annual_impact"`
	ExpectedImpactOverHorizon bigquery.NullFloat64 `bigquery:"expected_impact_over_horizon"`
	NewPropertyValue          bigquery.NullFloat64 `bigquery:"new_property_value"`
	NewLTV                    bigquery.NullFloat64 `bigquery:"new_ltv"`
	NewRiskWeight             bigquery.NullFloat64 `bigquery:"new_risk_weight"`
	OldRWA                    bigquery.NullFloat64 `bigquery:"old_rwa"`
	NewRWA                    bigquery.NullFloat64 `bigquery:"new_rwa"`
	RWAChangeRatio            bigquery.NullFloat64 `bigquery:"rwa_change_ratio"`

	Exposed      bool                `bigquery:"exposed"`
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
}

type ClassAverageRow struct {
	RunID       string `bigquery:"run_id"`
	Scenario    string `bigquery:"scenario"`
	Year        int64  `bigquery:"year"`
	EnergyClass string `bigquery:"energy_class"`
	Count       int64  `bigquery:"count"`

	PropertyValue    bigquery.NullFloat64 `bigquery:"property_value"`
	NewPropertyValue bigquery.NullFloat64 `bigquery:"new_property_value"`
	LTV              bigquery.NullFloat64 `bigquery:"ltv"`
	NewLTV           bigquery.NullFloat64 `bigquery:"new_ltv"`
	ValueChange      bigquery.NullFloat64 `bigquery:"value_change"`
	RWAChangeRatio   bigquery.NullFloat64 `bigquery:"rwa_change_ratio"`
}

type PortfolioTotalRow struct {
	RunID    string               `bigquery:"run_id"`
	Scenario string               `bigquery:"scenario"`
	Year     int64                `bigquery:"year"`
	Count    int64                `bigquery:"count"`
	OldRWA   bigquery.NullFloat64 `bigquery:"old_rwa"`
	NewRWA   bigquery.NullFloat64 `bigquery:"new_rwa"`
}

// nullFloat maps NaN and ±Inf to NULL; the streaming API cannot carry them.
func nullFloat(v float64) bigquery.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: v, Valid: true}
}

func nullString(s string) bigquery.NullString {
	if s == "" {
		return bigquery.NullString{}
	}
	if len(s) > maxErrorMessageLength {
		s = s[:maxErrorMessageLength]
	}
	return bigquery.NullString{StringVal: s, Valid: true}
}

// NewRunRow converts a run for insertion.
func NewRunRow(run *domain.Run) *RunRow {
	row := &RunRow{
		RunID:          run.RunID,
		InputURI:       run.InputURI,
		OutputURI:      nullString(run.OutputURI),
		Stages:         run.Stages,
		RowsLoaded:     int64(run.RowsLoaded),
		RowsPhysical:   int64(run.RowsPhysical),
		RowsTransition: int64(run.RowsTransition),
		RowErrors:      int64(run.RowErrors),
		StartedTS:      run.StartedAt,
	}
	if run.FinishedAt != nil {
		row.FinishedTS = bigquery.NullTimestamp{Timestamp: *run.FinishedAt, Valid: true}
	}
	return row
}

// Run converts a stored row back to the domain type.
func (r *RunRow) Run() domain.Run {
	run := domain.Run{
		RunID:          r.RunID,
		InputURI:       r.InputURI,
		OutputURI:      r.OutputURI.StringVal,
		Stages:         r.Stages,
		RowsLoaded:     int(r.RowsLoaded),
		RowsPhysical:   int(r.RowsPhysical),
		RowsTransition: int(r.RowsTransition),
		RowErrors:      int(r.RowErrors),
		StartedAt:      r.StartedTS,
	}
	if r.FinishedTS.Valid {
		t := r.FinishedTS.Timestamp
		run.FinishedAt = &t
	}
	return run
}

// NewPhysicalResultRows converts results for insertion.
func NewPhysicalResultRows(runID string, results []domain.PhysicalResult) []*PhysicalResultRow {
	rows := make([]*PhysicalResultRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, &PhysicalResultRow{
			RunID:                     runID,
			LoanID:                    int64(r.LoanID),
			DamageAmount:              nullFloat(r.DamageAmount),
			ExpectedAnnualImpact:      nullFloat(r.ExpectedAnnualImpact),
			ExpectedImpactOverHorizon: nullFloat(r.ExpectedImpactOverHorizon),
			NewPropertyValue:          nullFloat(r.NewPropertyValue),
			NewLTV:                    nullFloat(r.NewLTV),
			NewRiskWeight:             nullFloat(r.NewRiskWeight),
			OldRWA:                    nullFloat(r.OldRWA),
			NewRWA:                    nullFloat(r.NewRWA),
			RWAChangeRatio:            nullFloat(r.RWAChangeRatio),
			Exposed:                   r.Exposed,
			ErrorMessage:              nullString(r.Err),
		})
	}
	return rows
}

// NewClassAverageRows converts class averages for insertion.
func NewClassAverageRows(runID string, avgs []domain.ClassAverage) []*ClassAverageRow {
	rows := make([]*ClassAverageRow, 0, len(avgs))
	for _, a := range avgs {
		rows = append(rows, &ClassAverageRow{
			RunID:            runID,
			Scenario:         a.Scenario,
			Year:             int64(a.Year),
			EnergyClass:      a.EnergyClass,
			Count:            int64(a.Count),
			PropertyValue:    nullFloat(a.PropertyValue),
			NewPropertyValue: nullFloat(a.NewPropertyValue),
			LTV:              nullFloat(a.LTV),
			NewLTV:           nullFloat(a.NewLTV),
			ValueChange:      nullFloat(a.ValueChange),
			RWAChangeRatio:   nullFloat(a.RWAChangeRatio),
		})
	}
	return rows
}

// NewPortfolioTotalRows converts totals for insertion.
func NewPortfolioTotalRows(runID string, totals []domain.PortfolioTotal) []*PortfolioTotalRow {
	rows := make([]*PortfolioTotalRow, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, &PortfolioTotalRow{
			RunID:    runID,
			Scenario: t.Scenario,
			Year:     int64(t.Year),
			Count:    int64(t.Count),
			OldRWA:   nullFloat(t.OldRWA),
			NewRWA:   nullFloat(t.NewRWA),
		})
	}
	return rows
}
