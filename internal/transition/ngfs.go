package transition

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed ngfs.yaml
var ngfsYAML []byte

// PriceParams are the constants of the end-energy price formula.
type PriceParams struct {
	KappaOil float64 `yaml:"kappa_oil"` // kg CO2 per kWh of oil
	KappaGas float64 `yaml:"kappa_gas"` // kg CO2 per kWh of gas
	Gamma    float64 `yaml:"gamma"`     // kWh per BOE
	OmegaOil float64 `yaml:"omega_oil"` // oil share of heating
	Tax      float64 `yaml:"tax"`       // VAT and energy tax
	FX       float64 `yaml:"fx"`        // EUR per USD
	GJToBOE  float64 `yaml:"gj_to_boe"`
}

// DefaultPriceParams returns the parameters of the German residential mix.
func DefaultPriceParams() PriceParams {
	return PriceParams{
		KappaOil: 0.287,
		KappaGas: 0.238,
		Gamma:    1700,
		OmegaOil: 0.35,
		Tax:      0.19,
		FX:       0.65,
		GJToBOE:  5.8,
	}
}

// EndEnergyPrice computes the consumer price in EUR/kWh from oil and gas
// prices per BOE and a CO2 price per tonne already converted to EUR.
func (p PriceParams) EndEnergyPrice(oil, gas, co2 float64) float64 {
	po := p.KappaOil*co2/1000 + oil/(p.FX*p.Gamma)
	pg := p.KappaGas*co2/1000 + gas/(p.FX*p.Gamma)
	return (1 + p.Tax) * (p.OmegaOil*po + (1-p.OmegaOil)*pg)
}

// EndEnergyPrice uses the default parameters with the given exchange rate.
func EndEnergyPrice(oil, gas, co2, fx float64) float64 {
	p := DefaultPriceParams()
	p.FX = fx
	return p.EndEnergyPrice(oil, gas, co2)
}

// NGFSSeries is one NGFS scenario in primary-energy units.
type NGFSSeries struct {
	Name string    `yaml:"name" json:"name"`
	Gas  []float64 `yaml:"gas" json:"gas"`
	Oil  []float64 `yaml:"oil" json:"oil"`
	CO2  []float64 `yaml:"co2" json:"co2"`
}

// NGFSData is a set of NGFS series on one year axis.
type NGFSData struct {
	Years  []int        `yaml:"years" json:"years"`
	Series []NGFSSeries `yaml:"series" json:"series"`
}

// DefaultNGFS returns the built-in NGFS series.
func DefaultNGFS() *NGFSData {
	var d NGFSData
	if err := yaml.Unmarshal(ngfsYAML, &d); err != nil {
		panic(fmt.Sprintf("embedded ngfs data: %v", err))
	}
	return &d
}

// BuildScenarioFromNGFS converts a series into an end-energy price path.
// Gas and oil arrive per GJ and CO2 in USD per tonne.
func (p PriceParams) BuildScenarioFromNGFS(s NGFSSeries) (Scenario, error) {
	if len(s.Gas) != len(s.Oil) || len(s.Gas) != len(s.CO2) {
		return Scenario{}, fmt.Errorf("BuildScenarioFromNGFS: %s: series lengths differ", s.Name)
	}
	prices := make([]float64, len(s.Gas))
	for i := range s.Gas {
		oil := s.Oil[i] * p.GJToBOE
		gas := s.Gas[i] * p.GJToBOE
		co2 := s.CO2[i] * p.FX
		prices[i] = p.EndEnergyPrice(oil, gas, co2)
	}
	return Scenario{Name: s.Name, Key: s.Name, Prices: prices}, nil
}

// Catalog converts every series into a scenario catalog based on the first year.
func (d *NGFSData) Catalog(p PriceParams) (*Catalog, error) {
	c := &Catalog{Years: d.Years}
	if len(d.Years) > 0 {
		c.BaseYear = d.Years[0]
	}
	for _, s := range d.Series {
		if len(s.Gas) != len(d.Years) {
			return nil, fmt.Errorf("NGFSData.Catalog: %s: %d values for %d years", s.Name, len(s.Gas), len(d.Years))
		}
		sc, err := p.BuildScenarioFromNGFS(s)
		if err != nil {
			return nil, err
		}
		c.Scenarios = append(c.Scenarios, sc)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
