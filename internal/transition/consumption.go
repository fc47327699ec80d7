package transition

import (
	"fmt"
	"sort"
)

// Consumption maps an energy class to annual final energy use in kWh/m².
type Consumption struct {
	Best   string             `yaml:"best" json:"best"`
	Values map[string]float64 `yaml:"values" json:"values"`
}

// DefaultConsumption uses the midpoints of the German energy certificate bands.
func DefaultConsumption() Consumption {
	return Consumption{
		Best: "A+",
		Values: map[string]float64{
			"A+": 30,
			"A":  40,
			"B":  62.5,
			"C":  87.5,
			"D":  115,
			"E":  145,
			"F":  180,
			"G":  225,
			"H":  275,
		},
	}
}

// Validate checks that the best class exists in the table.
func (c Consumption) Validate() error {
	if len(c.Values) == 0 {
		return fmt.Errorf("Consumption.Validate: empty table")
	}
	if _, ok := c.Values[c.Best]; !ok {
		return fmt.Errorf("Consumption.Validate: best class %q not in table", c.Best)
	}
	return nil
}

// Excess returns the consumption of class above the best class.
func (c Consumption) Excess(class string) (float64, error) {
	v, ok := c.Values[class]
	if !ok {
		return 0, fmt.Errorf("unknown energy class %q", class)
	}
	return v - c.Values[c.Best], nil
}

// Classes returns the known classes from most to least efficient.
func (c Consumption) Classes() []string {
	out := make([]string, 0, len(c.Values))
	for k := range c.Values {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		vi, vj := c.Values[out[i]], c.Values[out[j]]
		if vi != vj {
			return vi < vj
		}
		return out[i] < out[j]
	})
	return out
}
