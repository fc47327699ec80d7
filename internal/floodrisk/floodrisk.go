// Package floodrisk holds the flood hazard helpers used to prepare portfolio
// inputs: HQ return-period classes, point apportionment and water depth.
package floodrisk

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Level is a qualitative flood risk class.
type Level string

const (
	LevelHigh    Level = "high"
	LevelMedium  Level = "medium"
	LevelLow     Level = "low"
	LevelVeryLow Level = "very low"
)

// Levels lists every class from most to least exposed.
var Levels = []Level{LevelHigh, LevelMedium, LevelLow, LevelVeryLow}

// ParseHQ extracts the return period T from a label like "HQ 100" or "HQ100".
func ParseHQ(hq string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(hq))
	if !strings.HasPrefix(s, "HQ") {
		return 0, false
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "HQ"))
	t, err := strconv.Atoi(s)
	if err != nil || t <= 0 {
		return 0, false
	}
	return t, true
}

// LevelForHQ maps an HQ class of a flood zone to a risk level. Points outside
// any zone (empty label) and unknown labels are very low.
func LevelForHQ(hq string) Level {
	t, ok := ParseHQ(hq)
	if !ok {
		return LevelVeryLow
	}
	switch t {
	case 20, 30:
		return LevelHigh
	case 40, 50, 80:
		return LevelMedium
	case 100, 200:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

// AEPForHQ returns the annual exceedance probability 1/T of an "HQ T" label.
func AEPForHQ(hq string) (float64, error) {
	t, ok := ParseHQ(hq)
	if !ok {
		return 0, fmt.Errorf("AEPForHQ: invalid label %q", hq)
	}
	return 1 / float64(t), nil
}

// ParseLevel accepts the level names case-insensitively.
func ParseLevel(s string) (Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	for _, l := range Levels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// Apportion splits total points across regions in proportion to weights.
// Shares are rounded to the nearest integer and the rounding difference is
// settled one point at a time on the largest allocations, so the result
// always sums to total.
func Apportion(weights []float64, total int) ([]int, error) {
	if total < 0 {
		return nil, fmt.Errorf("Apportion: negative total %d", total)
	}
	var sum float64
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("Apportion: negative weight at %d", i)
		}
		sum += w
	}
	out := make([]int, len(weights))
	if len(weights) == 0 || total == 0 {
		return out, nil
	}
	if sum == 0 {
		return nil, fmt.Errorf("Apportion: weights sum to zero")
	}

	assigned := 0
	for i, w := range weights {
		out[i] = int(w/sum*float64(total) + 0.5)
		assigned += out[i]
	}

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return out[order[a]] > out[order[b]] })

	diff := total - assigned
	for k := 0; diff != 0; k = (k + 1) % len(order) {
		i := order[k]
		if diff > 0 {
			out[i]++
			diff--
		} else if out[i] > 0 {
			out[i]--
			diff++
		}
	}
	return out, nil
}

// FloodDepth returns the water depth above ground in metres for a gauge
// reading. Ground and gauge zero are heights in metres, stage is in cm.
func FloodDepth(ground, gaugeZero, stageCM float64) float64 {
	level := gaugeZero + stageCM/100
	if d := level - ground; d > 0 {
		return d
	}
	return 0
}
