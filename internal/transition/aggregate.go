package transition

import (
	"math"
	"sort"

	"github.com/dvloznov/climate-risk/internal/domain"
)

type groupKey struct {
	scenario string
	year     int
	class    string
}

type meanAcc struct {
	sum [6]float64
	n   [6]int
}

func (a *meanAcc) add(i int, v float64) {
	if math.IsNaN(v) {
		return
	}
	a.sum[i] += v
	a.n[i]++
}

func (a *meanAcc) mean(i int) float64 {
	if a.n[i] == 0 {
		return math.NaN()
	}
	return a.sum[i] / float64(a.n[i])
}

// ClassAverages averages results per scenario, year and energy class.
// NaN values are left out of each mean. Groups keep first-seen scenario and
// year order; classes follow the consumption table order.
func ClassAverages(results []domain.TransitionResult, consumption Consumption) []domain.ClassAverage {
	type cellKey struct {
		scenario string
		year     int
	}
	var cells []cellKey
	seenCell := make(map[cellKey]bool)
	accs := make(map[groupKey]*meanAcc)
	counts := make(map[groupKey]int)

	for _, r := range results {
		ck := cellKey{r.Scenario, r.Year}
		if !seenCell[ck] {
			seenCell[ck] = true
			cells = append(cells, ck)
		}
		k := groupKey{r.Scenario, r.Year, r.EnergyClass}
		acc, ok := accs[k]
		if !ok {
			acc = &meanAcc{}
			accs[k] = acc
		}
		counts[k]++
		acc.add(0, r.PropertyValue)
		acc.add(1, r.NewPropertyValue)
		acc.add(2, r.LTV)
		acc.add(3, r.NewLTV)
		acc.add(4, r.ValueChange)
		acc.add(5, r.RWAChangeRatio)
	}

	classes := consumption.Classes()
	known := make(map[string]bool, len(classes))
	for _, c := range classes {
		known[c] = true
	}
	// classes outside the table still get a row, after the known ones
	var extra []string
	for k := range accs {
		if !known[k.class] {
			known[k.class] = true
			extra = append(extra, k.class)
		}
	}
	sort.Strings(extra)
	classes = append(classes, extra...)

	var out []domain.ClassAverage
	for _, ck := range cells {
		for _, class := range classes {
			k := groupKey{ck.scenario, ck.year, class}
			acc, ok := accs[k]
			if !ok {
				continue
			}
			out = append(out, domain.ClassAverage{
				Scenario:         ck.scenario,
				Year:             ck.year,
				EnergyClass:      class,
				Count:            counts[k],
				PropertyValue:    acc.mean(0),
				NewPropertyValue: acc.mean(1),
				LTV:              acc.mean(2),
				NewLTV:           acc.mean(3),
				ValueChange:      acc.mean(4),
				RWAChangeRatio:   acc.mean(5),
			})
		}
	}
	return out
}

// PortfolioTotals sums old and new RWA per scenario and year over the rows
// that computed. The sum is order-independent.
func PortfolioTotals(results []domain.TransitionResult) []domain.PortfolioTotal {
	type cellKey struct {
		scenario string
		year     int
	}
	var order []cellKey
	totals := make(map[cellKey]*domain.PortfolioTotal)

	for _, r := range results {
		k := cellKey{r.Scenario, r.Year}
		t, ok := totals[k]
		if !ok {
			t = &domain.PortfolioTotal{Scenario: r.Scenario, Year: r.Year}
			totals[k] = t
			order = append(order, k)
		}
		if math.IsNaN(r.OldRWA) || math.IsNaN(r.NewRWA) {
			continue
		}
		t.Count++
		t.OldRWA += r.OldRWA
		t.NewRWA += r.NewRWA
	}

	out := make([]domain.PortfolioTotal, 0, len(order))
	for _, k := range order {
		out = append(out, *totals[k])
	}
	return out
}
