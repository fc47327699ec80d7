package transition

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/logger"
	"github.com/dvloznov/climate-risk/internal/riskweight"
)

// RequiredFields lists the columns the transition stage needs per row.
var RequiredFields = []domain.Field{
	domain.FieldPropertyValue,
	domain.FieldLoanAmount,
	domain.FieldFloorArea,
	domain.FieldEnergyClass,
}

// Driver evaluates records over every (scenario, year) cell of a catalog.
type Driver struct {
	Catalog     *Catalog
	Consumption Consumption
	Rate        float64
	Horizon     int
	Table       *riskweight.Table
	Workers     int
}

// NewDriver returns a Driver over catalog with default parameters.
func NewDriver(catalog *Catalog) *Driver {
	return &Driver{
		Catalog:     catalog,
		Consumption: DefaultConsumption(),
		Rate:        DefaultDiscountRate,
		Horizon:     DefaultAnnuityHorizon,
		Table:       riskweight.Default,
		Workers:     4,
	}
}

// Cell is one point of the scenario × year grid.
type Cell struct {
	Scenario Scenario
	Year     int
}

// Cells enumerates the grid in catalog order, scenario-major.
func (d *Driver) Cells() []Cell {
	cells := make([]Cell, 0, len(d.Catalog.Scenarios)*len(d.Catalog.Years))
	for _, s := range d.Catalog.Scenarios {
		for _, y := range d.Catalog.Years {
			cells = append(cells, Cell{Scenario: s, Year: y})
		}
	}
	return cells
}

// Compute revalues one record for one cell.
func (d *Driver) Compute(rec domain.LoanRecord, cell Cell) (domain.TransitionResult, error) {
	res := Missing(rec, cell)

	switch {
	case math.IsNaN(rec.PropertyValue), math.IsNaN(rec.LoanAmount), math.IsNaN(rec.FloorArea):
		return res, fmt.Errorf("Compute: row %d: missing property value, loan or floor area", rec.ID)
	}

	excess, err := d.Consumption.Excess(rec.EnergyClass)
	if err != nil {
		return res, fmt.Errorf("Compute: row %d: %w", rec.ID, err)
	}
	delta, err := d.Catalog.PriceDelta(cell.Scenario, cell.Year)
	if err != nil {
		return res, fmt.Errorf("Compute: row %d: %w", rec.ID, err)
	}
	oldWeight, err := d.Table.Classify(rec.LTV)
	if err != nil {
		return res, fmt.Errorf("Compute: row %d: %w", rec.ID, err)
	}

	deltaCost := excess * delta * rec.FloorArea
	deltaValue := -deltaCost * AnnuityFactor(d.Rate, d.Horizon)
	newValue := rec.PropertyValue + deltaValue
	newLTV := domain.LoanToValue(rec.LoanAmount, newValue)

	newWeight, err := d.Table.Classify(newLTV)
	if err != nil {
		return res, fmt.Errorf("Compute: row %d: new ltv: %w", rec.ID, err)
	}

	res.DeltaCost = deltaCost
	res.DeltaValue = deltaValue
	res.NewPropertyValue = newValue
	res.ValueChange = math.NaN()
	if rec.PropertyValue > 0 {
		res.ValueChange = deltaValue / rec.PropertyValue
	}
	res.NewLTV = newLTV
	res.NewRiskWeight = newWeight
	res.OldRWA = riskweight.RWA(rec.LoanAmount, oldWeight)
	res.NewRWA = riskweight.RWA(rec.LoanAmount, newWeight)
	res.RWAChangeRatio = riskweight.ChangeRatio(res.OldRWA, res.NewRWA)
	return res, nil
}

// Missing returns a result carrying the record identity and NaN outputs.
func Missing(rec domain.LoanRecord, cell Cell) domain.TransitionResult {
	nan := math.NaN()
	return domain.TransitionResult{
		LoanID:           rec.ID,
		Scenario:         cell.Scenario.Name,
		Year:             cell.Year,
		EnergyClass:      rec.EnergyClass,
		PropertyValue:    rec.PropertyValue,
		LTV:              rec.LTV,
		DeltaCost:        nan,
		DeltaValue:       nan,
		NewPropertyValue: nan,
		ValueChange:      nan,
		NewLTV:           nan,
		NewRiskWeight:    nan,
		OldRWA:           nan,
		NewRWA:           nan,
		RWAChangeRatio:   nan,
	}
}

// Run evaluates every record over the whole grid. Cells are processed in
// parallel and the output is laid out cell by cell in Cells() order, records
// in input order within a cell. Row failures are logged and yield NaN
// outputs; only context cancellation fails the run.
func (d *Driver) Run(ctx context.Context, recs []domain.LoanRecord) ([]domain.TransitionResult, error) {
	if err := d.Consumption.Validate(); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	cells := d.Cells()
	out := make([]domain.TransitionResult, len(cells)*len(recs))

	g, ctx := errgroup.WithContext(ctx)
	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for ci, cell := range cells {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			base := ci * len(recs)
			for ri, rec := range recs {
				res, err := d.safeCompute(rec, cell)
				if err != nil {
					log.Warn().Err(err).
						Int("row_id", rec.ID).
						Str("stage", "transition").
						Str("scenario", cell.Scenario.Name).
						Int("year", cell.Year).
						Msg("row skipped")
					res.Err = err.Error()
				}
				out[base+ri] = res
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("Driver.Run: %w", err)
	}
	return out, nil
}

func (d *Driver) safeCompute(rec domain.LoanRecord, cell Cell) (res domain.TransitionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Missing(rec, cell)
			err = fmt.Errorf("Compute: row %d: panic: %v", rec.ID, r)
		}
	}()
	return d.Compute(rec, cell)
}
