package portfolio

import (
	"math"
	"strconv"
	"strings"
)

// ParseLocaleFloat converts a possibly comma-decimal string to float64.
// Unparseable input yields NaN, never an error.
func ParseLocaleFloat(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}

	// German grouping: 163.700,50
	if strings.Contains(s, ".") && strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return math.NaN()
}

// parseID reads an integer identifier, accepting float-formatted cells like "12.0".
func parseID(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	v := ParseLocaleFloat(s)
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}
