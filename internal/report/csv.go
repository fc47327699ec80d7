package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/portfolio"
)

// WriteCSV writes a header and rows with the configured delimiter.
func WriteCSV(w io.Writer, header []string, rows [][]string, opts Options) error {
	cw := csv.NewWriter(w)
	cw.Comma = opts.delimiter()
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("WriteCSV: rows: %w", err)
	}
	return nil
}

// PhysicalColumns are appended to the input columns by WritePhysical.
var PhysicalColumns = []string{
	"risk_weight_calc",
	"damage_amount",
	"expected_annual_impact",
	"expected_impact_over_horizon",
	"new_property_value",
	"new_ltv",
	"new_risk_weight",
	"old_rwa",
	"new_rwa",
	"rwa_change_ratio",
}

// WritePhysical echoes every input row unchanged followed by the damage model
// outputs. Results are matched to rows by source row. Rows the stage skipped
// get empty output cells.
func WritePhysical(w io.Writer, tbl *portfolio.Table, results []domain.PhysicalResult, opts Options) error {
	byRow := make(map[int]domain.PhysicalResult, len(results))
	for _, r := range results {
		byRow[r.Row] = r
	}

	header := withIDColumn(tbl)
	header = append(header, PhysicalColumns...)

	rows := make([][]string, 0, len(tbl.Records))
	for i, rec := range tbl.Records {
		row := echoRow(tbl, i)
		row = append(row, opts.Ratio(rec.RiskWeight))
		r, ok := byRow[rec.Row]
		if !ok {
			row = append(row, make([]string, len(PhysicalColumns)-1)...)
			rows = append(rows, row)
			continue
		}
		row = append(row,
			opts.Money(r.DamageAmount),
			opts.Money(r.ExpectedAnnualImpact),
			opts.Money(r.ExpectedImpactOverHorizon),
			opts.Money(r.NewPropertyValue),
			opts.Ratio(r.NewLTV),
			opts.Ratio(r.NewRiskWeight),
			opts.Money(r.OldRWA),
			opts.Money(r.NewRWA),
			opts.Ratio(r.RWAChangeRatio),
		)
		rows = append(rows, row)
	}
	return WriteCSV(w, header, rows, opts)
}

// withIDColumn returns the input header, prefixed with "id" when the file
// had no identifier column.
func withIDColumn(tbl *portfolio.Table) []string {
	header := make([]string, 0, len(tbl.Header)+1)
	if !tbl.HasColumn(domain.FieldID) {
		header = append(header, string(domain.FieldID))
	}
	return append(header, tbl.Header...)
}

func echoRow(tbl *portfolio.Table, i int) []string {
	row := make([]string, 0, len(tbl.Header)+len(PhysicalColumns)+1)
	if !tbl.HasColumn(domain.FieldID) {
		row = append(row, fmt.Sprint(tbl.Records[i].ID))
	}
	src := tbl.Rows[i]
	for c := range tbl.Header {
		if c < len(src) {
			row = append(row, src[c])
		} else {
			row = append(row, "")
		}
	}
	return row
}

// TransitionColumns is the header of WriteTransition.
var TransitionColumns = []string{
	"id", "scenario", "year", "energy_class",
	"property_value", "ltv",
	"delta_consumption_cost", "delta_value", "new_property_value", "value_change",
	"new_ltv", "new_risk_weight", "old_rwa", "new_rwa", "rwa_change_ratio",
}

// WriteTransition writes one line per record and grid cell.
func WriteTransition(w io.Writer, results []domain.TransitionResult, opts Options) error {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			opts.Int(r.LoanID),
			r.Scenario,
			opts.Int(r.Year),
			r.EnergyClass,
			opts.Money(r.PropertyValue),
			opts.Ratio(r.LTV),
			opts.Money(r.DeltaCost),
			opts.Money(r.DeltaValue),
			opts.Money(r.NewPropertyValue),
			opts.Ratio(r.ValueChange),
			opts.Ratio(r.NewLTV),
			opts.Ratio(r.NewRiskWeight),
			opts.Money(r.OldRWA),
			opts.Money(r.NewRWA),
			opts.Ratio(r.RWAChangeRatio),
		})
	}
	return WriteCSV(w, TransitionColumns, rows, opts)
}

// WriteClassAverages writes the per-class means.
func WriteClassAverages(w io.Writer, avgs []domain.ClassAverage, opts Options) error {
	header := []string{
		"scenario", "year", "energy_class", "count",
		"property_value", "new_property_value", "ltv", "new_ltv", "value_change", "rwa_change_ratio",
	}
	rows := make([][]string, 0, len(avgs))
	for _, a := range avgs {
		rows = append(rows, []string{
			a.Scenario,
			opts.Int(a.Year),
			a.EnergyClass,
			opts.Int(a.Count),
			opts.Money(a.PropertyValue),
			opts.Money(a.NewPropertyValue),
			opts.Ratio(a.LTV),
			opts.Ratio(a.NewLTV),
			opts.Ratio(a.ValueChange),
			opts.Ratio(a.RWAChangeRatio),
		})
	}
	return WriteCSV(w, header, rows, opts)
}

// WritePortfolioTotals writes the RWA time series per scenario.
func WritePortfolioTotals(w io.Writer, totals []domain.PortfolioTotal, opts Options) error {
	header := []string{"scenario", "year", "count", "old_rwa", "new_rwa"}
	rows := make([][]string, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, []string{
			t.Scenario,
			opts.Int(t.Year),
			opts.Int(t.Count),
			opts.Money(t.OldRWA),
			opts.Money(t.NewRWA),
		})
	}
	return WriteCSV(w, header, rows, opts)
}

// RecordColumns is the header of WriteRecords. The names are the German
// headers the loader recognises, so generated files load back unchanged.
var RecordColumns = []string{
	"ID", "Baujahr", "Energieklasse", "wohnflaeche", "Quadratmeterpreise",
	"aktueller_immobilienwert", "darlehenbetrag", "aktuelles_LtV",
	"Risikogewicht", "Schadensfaktor", "AEP", "Hochwasserrisiko",
}

// WriteRecords writes loan records, as produced by the synthetic generator.
func WriteRecords(w io.Writer, recs []domain.LoanRecord, opts Options) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			opts.Int(r.ID),
			r.BuildYear,
			r.EnergyClass,
			opts.Money(r.FloorArea),
			opts.Money(r.PricePerArea),
			opts.Money(r.PropertyValue),
			opts.Money(r.LoanAmount),
			opts.Ratio(r.LTV),
			opts.Ratio(r.RiskWeight),
			opts.Ratio(r.DamageFactor),
			opts.Ratio(r.HazardProbability),
			r.FloodLevel,
		})
	}
	return WriteCSV(w, RecordColumns, rows, opts)
}
