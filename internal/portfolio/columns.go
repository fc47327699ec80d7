package portfolio

import (
	"strings"

	"github.com/dvloznov/climate-risk/internal/domain"
)

// columnAliases maps lower-cased header names to record fields.
var columnAliases = map[string]domain.Field{
	"id":                       domain.FieldID,
	"property_value":           domain.FieldPropertyValue,
	"aktueller_immobilienwert": domain.FieldPropertyValue,
	"immobilienwert":           domain.FieldPropertyValue,
	"loan_amount":              domain.FieldLoanAmount,
	"darlehenbetrag":           domain.FieldLoanAmount,
	"darlehensbetrag":          domain.FieldLoanAmount,
	"ltv":                      domain.FieldLTV,
	"aktuelles_ltv":            domain.FieldLTV,
	"damage_factor":            domain.FieldDamageFactor,
	"schadensfaktor":           domain.FieldDamageFactor,
	"hazard_probability":       domain.FieldHazardProbability,
	"aep":                      domain.FieldHazardProbability,
	"risk_weight":              domain.FieldRiskWeight,
	"risikogewicht":            domain.FieldRiskWeight,
	"energy_class":             domain.FieldEnergyClass,
	"energieklasse":            domain.FieldEnergyClass,
	"floor_area":               domain.FieldFloorArea,
	"wohnflaeche":              domain.FieldFloorArea,
	"price_per_area":           domain.FieldPricePerArea,
	"quadratmeterpreise":       domain.FieldPricePerArea,
	"build_year":               domain.FieldBuildYear,
	"baujahr":                  domain.FieldBuildYear,
	"flood_level":              domain.FieldFloodLevel,
	"hochwasserrisiko":         domain.FieldFloodLevel,
}

// hqHeaders name the flood-zone column carrying "HQ T" return-period labels.
var hqHeaders = map[string]bool{
	"geb_hq":    true,
	"hq":        true,
	"hq_class":  true,
	"hq_klasse": true,
}

// FieldForHeader resolves a header cell to a record field.
func FieldForHeader(h string) (domain.Field, bool) {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	f, ok := columnAliases[h]
	return f, ok
}

// mapColumns returns the column index of every recognised field.
// The first occurrence wins when two headers alias the same field.
func mapColumns(header []string) map[domain.Field]int {
	cols := make(map[domain.Field]int)
	for i, h := range header {
		f, ok := FieldForHeader(h)
		if !ok {
			continue
		}
		if _, seen := cols[f]; !seen {
			cols[f] = i
		}
	}
	return cols
}

// hqColumn returns the index of the first flood-zone column, or -1.
func hqColumn(header []string) int {
	for i, h := range header {
		if hqHeaders[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] {
			return i
		}
	}
	return -1
}
