// Package transition revalues properties under energy-price scenarios.
package transition

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownScenario is returned when a scenario name is not in the catalog.
var ErrUnknownScenario = errors.New("unknown scenario")

//go:embed scenarios.yaml
var defaultCatalogYAML []byte

// Scenario is a named energy-price path aligned with Catalog.Years.
type Scenario struct {
	Name   string    `yaml:"name" json:"name"`
	Key    string    `yaml:"key,omitempty" json:"key,omitempty"`
	Prices []float64 `yaml:"prices" json:"prices"`
}

// Catalog is a set of scenarios sharing one year axis.
type Catalog struct {
	BaseYear  int        `yaml:"base_year" json:"base_year"`
	Years     []int      `yaml:"years" json:"years"`
	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`
}

// DefaultCatalog returns the built-in scenario catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded scenario catalog: %v", err))
	}
	return c
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("ParseCatalog: decode: %w", err)
	}
	if c.BaseYear == 0 && len(c.Years) > 0 {
		c.BaseYear = c.Years[0]
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads a catalog file. An empty path returns the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("LoadCatalog: read %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// Validate checks the year axis, the base year and every price path.
func (c *Catalog) Validate() error {
	if len(c.Years) == 0 {
		return fmt.Errorf("Catalog.Validate: no years")
	}
	for i := 1; i < len(c.Years); i++ {
		if c.Years[i] <= c.Years[i-1] {
			return fmt.Errorf("Catalog.Validate: years not strictly increasing at %d", c.Years[i])
		}
	}
	if c.yearIndex(c.BaseYear) < 0 {
		return fmt.Errorf("Catalog.Validate: base year %d not in years", c.BaseYear)
	}
	if len(c.Scenarios) == 0 {
		return fmt.Errorf("Catalog.Validate: no scenarios")
	}
	seen := make(map[string]bool)
	for _, s := range c.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("Catalog.Validate: scenario without name")
		}
		if seen[s.Name] {
			return fmt.Errorf("Catalog.Validate: duplicate scenario %q", s.Name)
		}
		seen[s.Name] = true
		if len(s.Prices) != len(c.Years) {
			return fmt.Errorf("Catalog.Validate: scenario %q has %d prices for %d years", s.Name, len(s.Prices), len(c.Years))
		}
	}
	return nil
}

func (c *Catalog) yearIndex(year int) int {
	for i, y := range c.Years {
		if y == year {
			return i
		}
	}
	return -1
}

// Lookup finds a scenario by name or key.
func (c *Catalog) Lookup(name string) (Scenario, error) {
	for _, s := range c.Scenarios {
		if s.Name == name || (s.Key != "" && s.Key == name) {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}

// Select returns a catalog restricted to the named scenarios, in the given order.
// No names selects everything.
func (c *Catalog) Select(names ...string) (*Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	out := &Catalog{BaseYear: c.BaseYear, Years: c.Years}
	for _, n := range names {
		s, err := c.Lookup(n)
		if err != nil {
			return nil, err
		}
		out.Scenarios = append(out.Scenarios, s)
	}
	return out, nil
}

// Price returns the scenario price for year.
func (c *Catalog) Price(s Scenario, year int) (float64, error) {
	i := c.yearIndex(year)
	if i < 0 {
		return 0, fmt.Errorf("Catalog.Price: year %d not in catalog", year)
	}
	return s.Prices[i], nil
}

// PriceDelta returns price(year) - price(base year).
func (c *Catalog) PriceDelta(s Scenario, year int) (float64, error) {
	p, err := c.Price(s, year)
	if err != nil {
		return 0, err
	}
	base, err := c.Price(s, c.BaseYear)
	if err != nil {
		return 0, err
	}
	return p - base, nil
}

// Names lists scenario names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.Scenarios))
	for i, s := range c.Scenarios {
		out[i] = s.Name
	}
	return out
}
