package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/physical"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// WriteScenarioTable renders one table per scenario with the class
// averages of every year.
func WriteScenarioTable(w io.Writer, avgs []domain.ClassAverage, opts Options) error {
	var order []string
	byScenario := make(map[string][]domain.ClassAverage)
	for _, a := range avgs {
		if _, ok := byScenario[a.Scenario]; !ok {
			order = append(order, a.Scenario)
		}
		byScenario[a.Scenario] = append(byScenario[a.Scenario], a)
	}

	var sb strings.Builder
	for _, name := range order {
		t := newTable("Year", "Class", "N", "Value", "New value", "LTV", "New LTV", "Value change", "RWA change")
		for _, a := range byScenario[name] {
			t.Row(
				opts.Int(a.Year),
				a.EnergyClass,
				opts.Int(a.Count),
				opts.Money(a.PropertyValue),
				opts.Money(a.NewPropertyValue),
				opts.Ratio(a.LTV),
				opts.Ratio(a.NewLTV),
				opts.Ratio(a.ValueChange),
				opts.Ratio(a.RWAChangeRatio),
			)
		}
		sb.WriteString(titleStyle.Render("Scenario: " + name))
		sb.WriteString("\n")
		sb.WriteString(t.String())
		sb.WriteString("\n\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("WriteScenarioTable: %w", err)
	}
	return nil
}

// WriteTotalsTable renders the portfolio RWA per scenario and year.
func WriteTotalsTable(w io.Writer, totals []domain.PortfolioTotal, opts Options) error {
	t := newTable("Scenario", "Year", "N", "Old RWA", "New RWA", "Change")
	for _, tot := range totals {
		change := ""
		if tot.OldRWA > 0 {
			change = opts.Ratio(tot.NewRWA/tot.OldRWA - 1)
		}
		t.Row(tot.Scenario, opts.Int(tot.Year), opts.Int(tot.Count), opts.Money(tot.OldRWA), opts.Money(tot.NewRWA), change)
	}
	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return fmt.Errorf("WriteTotalsTable: %w", err)
	}
	return nil
}

// WritePhysicalSummary renders the statistics of a physical run.
func WritePhysicalSummary(w io.Writer, s physical.Summary, opts Options) error {
	t := newTable("Metric", "Value")
	t.Row("rows", opts.Int(s.Rows))
	t.Row("exposed rows", opts.Int(s.Exposed))
	t.Row("failed rows", opts.Int(s.Failed))
	t.Row("rows with higher RWA", opts.Int(s.Upgraded))
	t.Row("total damage", opts.Money(s.TotalDamage))
	t.Row("total expected annual impact", opts.Money(s.TotalExpected))
	t.Row("total old RWA", opts.Money(s.TotalOldRWA))
	t.Row("total new RWA", opts.Money(s.TotalNewRWA))
	t.Row("mean RWA change", opts.Ratio(s.MeanChange))
	t.Row("std RWA change", opts.Ratio(s.StdChange))
	t.Row("median RWA change", opts.Ratio(s.MedianChange))
	t.Row("p95 RWA change", opts.Ratio(s.P95Change))
	t.Row("mean new LTV", opts.Ratio(s.MeanNewLTV))

	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return fmt.Errorf("WritePhysicalSummary: %w", err)
	}
	return nil
}

// PriceSeries is one scenario's energy price path.
type PriceSeries struct {
	Name   string
	Prices []float64
}

// WritePriceTable renders energy prices with one row per scenario and one
// column per year.
func WritePriceTable(w io.Writer, years []int, series []PriceSeries, opts Options) error {
	headers := []string{"Scenario"}
	for _, y := range years {
		headers = append(headers, opts.Int(y))
	}
	t := newTable(headers...)
	for _, s := range series {
		row := []string{s.Name}
		for i := range years {
			cell := ""
			if i < len(s.Prices) {
				cell = opts.Ratio(s.Prices[i])
			}
			row = append(row, cell)
		}
		t.Row(row...)
	}
	if _, err := fmt.Fprintln(w, t.String()); err != nil {
		return fmt.Errorf("WritePriceTable: %w", err)
	}
	return nil
}
