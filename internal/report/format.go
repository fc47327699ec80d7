// Package report serialises pipeline results as delimited files and text tables.
package report

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Options control number formatting and the field separator.
type Options struct {
	Delimiter    rune
	DecimalComma bool
}

// DefaultOptions writes German-style files: ';' separated, comma decimals.
func DefaultOptions() Options {
	return Options{Delimiter: ';', DecimalComma: true}
}

func (o Options) delimiter() rune {
	if o.Delimiter == 0 {
		return ';'
	}
	return o.Delimiter
}

// Money formats a currency amount with two decimals.
func (o Options) Money(v float64) string {
	return o.fixed(v, 2)
}

// Ratio formats an ltv, weight or change ratio with four decimals.
func (o Options) Ratio(v float64) string {
	return o.fixed(v, 4)
}

// Int formats an integer.
func (o Options) Int(v int) string {
	return strconv.Itoa(v)
}

func (o Options) fixed(v float64, places int32) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := decimal.NewFromFloat(v).Round(places).StringFixed(places)
	if o.DecimalComma {
		s = strings.Replace(s, ".", ",", 1)
	}
	return s
}
