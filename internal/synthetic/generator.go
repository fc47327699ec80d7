// Package synthetic draws artificial mortgage portfolios with realistic
// marginal distributions.
package synthetic

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/floodrisk"
	"github.com/dvloznov/climate-risk/internal/riskweight"
)

// ErrZeroMean is returned when values cannot be rescaled to a target mean.
var ErrZeroMean = errors.New("current mean is zero")

// LTVBucket is a range of loan-to-value ratios with its sampling weight.
type LTVBucket struct {
	Low    float64 `yaml:"low"`
	High   float64 `yaml:"high"`
	Weight float64 `yaml:"weight"`
}

// BuildYearBand is a construction period with its share of the stock and the
// energy-class mix of buildings from that period.
type BuildYearBand struct {
	Label        string             `yaml:"label"`
	Weight       float64            `yaml:"weight"`
	ClassWeights map[string]float64 `yaml:"class_weights"`
}

// FloodProfile describes the hazard assigned to a flood risk level.
type FloodProfile struct {
	Level     floodrisk.Level `yaml:"level"`
	Weight    float64         `yaml:"weight"`
	AEP       float64         `yaml:"aep"`
	DamageMin float64         `yaml:"damage_min"`
	DamageMax float64         `yaml:"damage_max"`
}

// Config parameterises a synthetic portfolio.
type Config struct {
	N    int    `yaml:"n"`
	Seed uint64 `yaml:"seed"`

	PriceMu    float64 `yaml:"price_mu"`
	PriceSigma float64 `yaml:"price_sigma"`

	AreaMean float64 `yaml:"area_mean"`
	AreaStd  float64 `yaml:"area_std"`
	AreaMin  float64 `yaml:"area_min"`
	AreaMax  float64 `yaml:"area_max"`

	LTVBuckets    []LTVBucket `yaml:"ltv_buckets"`
	LTVTargetMean float64     `yaml:"ltv_target_mean"`

	LoanTargetMean float64 `yaml:"loan_target_mean"`

	BuildYears []BuildYearBand `yaml:"build_years"`

	FloodExposure bool           `yaml:"flood_exposure"`
	FloodProfiles []FloodProfile `yaml:"flood_profiles"`
}

// DefaultConfig returns the parameters of the Bavarian sample portfolio.
func DefaultConfig() Config {
	return Config{
		N:          3853,
		Seed:       1,
		PriceMu:    math.Log(3500),
		PriceSigma: 0.35,
		AreaMean:   125,
		AreaStd:    35,
		AreaMin:    60,
		AreaMax:    250,
		LTVBuckets: []LTVBucket{
			{Low: 0.10, High: 0.60, Weight: 0.392},
			{Low: 0.60, High: 0.70, Weight: 0.150},
			{Low: 0.70, High: 0.80, Weight: 0.164},
			{Low: 0.80, High: 0.90, Weight: 0.102},
			{Low: 0.90, High: 1.00, Weight: 0.082},
			{Low: 1.00, High: 1.10, Weight: 0.110},
		},
		LoanTargetMean: 163700,
		BuildYears: []BuildYearBand{
			{Label: "bis 1948", Weight: 0.24, ClassWeights: map[string]float64{
				"C": 0.05, "D": 0.10, "E": 0.15, "F": 0.20, "G": 0.22, "H": 0.28}},
			{Label: "1949-1978", Weight: 0.36, ClassWeights: map[string]float64{
				"B": 0.02, "C": 0.10, "D": 0.18, "E": 0.22, "F": 0.18, "G": 0.15, "H": 0.15}},
			{Label: "1979-1994", Weight: 0.16, ClassWeights: map[string]float64{
				"A": 0.02, "B": 0.06, "C": 0.24, "D": 0.28, "E": 0.20, "F": 0.12, "G": 0.06, "H": 0.02}},
			{Label: "1995-2009", Weight: 0.14, ClassWeights: map[string]float64{
				"A+": 0.08, "A": 0.14, "B": 0.18, "C": 0.30, "D": 0.20, "E": 0.10}},
			{Label: "ab 2010", Weight: 0.10, ClassWeights: map[string]float64{
				"A+": 0.45, "A": 0.30, "B": 0.20, "C": 0.05}},
		},
		FloodProfiles: []FloodProfile{
			{Level: floodrisk.LevelHigh, Weight: 0.02, AEP: 1.0 / 20, DamageMin: 0.20, DamageMax: 0.40},
			{Level: floodrisk.LevelMedium, Weight: 0.03, AEP: 1.0 / 50, DamageMin: 0.10, DamageMax: 0.20},
			{Level: floodrisk.LevelLow, Weight: 0.05, AEP: 1.0 / 100, DamageMin: 0.05, DamageMax: 0.10},
			{Level: floodrisk.LevelVeryLow, Weight: 0.90, AEP: domain.DefaultHazardProbability},
		},
	}
}

// Validate checks the parameters that would make sampling meaningless.
func (c Config) Validate() error {
	switch {
	case c.N < 0:
		return fmt.Errorf("synthetic: negative size %d", c.N)
	case c.PriceSigma < 0 || c.AreaStd < 0:
		return fmt.Errorf("synthetic: negative dispersion")
	case c.AreaMin <= 0 || c.AreaMax < c.AreaMin:
		return fmt.Errorf("synthetic: invalid floor area band [%v, %v]", c.AreaMin, c.AreaMax)
	case len(c.LTVBuckets) == 0:
		return fmt.Errorf("synthetic: no ltv buckets")
	case len(c.BuildYears) == 0:
		return fmt.Errorf("synthetic: no build year bands")
	case c.FloodExposure && len(c.FloodProfiles) == 0:
		return fmt.Errorf("synthetic: flood exposure without profiles")
	}
	for _, b := range c.LTVBuckets {
		if b.Low < 0 || b.High < b.Low || b.Weight < 0 {
			return fmt.Errorf("synthetic: invalid ltv bucket %+v", b)
		}
	}
	for _, p := range c.FloodProfiles {
		if p.DamageMin < 0 || p.DamageMax > 1 || p.DamageMax < p.DamageMin {
			return fmt.Errorf("synthetic: invalid damage range for %s", p.Level)
		}
	}
	return nil
}

// Generator samples portfolios from a Config.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// NewGenerator validates cfg and seeds a deterministic source.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Generate draws cfg.N records. Loans are rescaled so their mean equals
// LoanTargetMean and ltv is recomputed from the rescaled loans.
func (g *Generator) Generate() ([]domain.LoanRecord, error) {
	n := g.cfg.N
	recs := make([]domain.LoanRecord, n)
	ltvs := make([]float64, n)

	for i := range recs {
		rec := domain.NewLoanRecord(i + 1)
		rec.PricePerArea = g.logNormal(g.cfg.PriceMu, g.cfg.PriceSigma)
		rec.FloorArea = g.floorArea()
		rec.PropertyValue = rec.FloorArea * rec.PricePerArea

		band := g.buildYear()
		rec.BuildYear = band.Label
		rec.EnergyClass = pickWeighted(g.rng, band.ClassWeights)

		rec.DamageFactor = 0
		rec.HazardProbability = domain.DefaultHazardProbability
		if g.cfg.FloodExposure {
			g.assignFlood(&rec)
		}

		recs[i] = rec
		ltvs[i] = g.ltv()
	}
	if n == 0 {
		return recs, nil
	}

	if g.cfg.LTVTargetMean > 0 {
		scaled, err := RescaleToMean(ltvs, g.cfg.LTVTargetMean)
		if err != nil {
			return nil, fmt.Errorf("Generate: ltv: %w", err)
		}
		ltvs = scaled
	}

	loans := make([]float64, n)
	for i := range recs {
		loans[i] = recs[i].PropertyValue * ltvs[i]
	}
	if g.cfg.LoanTargetMean > 0 {
		scaled, err := RescaleToMean(loans, g.cfg.LoanTargetMean)
		if err != nil {
			return nil, fmt.Errorf("Generate: loans: %w", err)
		}
		loans = scaled
	}

	for i := range recs {
		recs[i].LoanAmount = loans[i]
		recs[i].LTV = domain.LoanToValue(loans[i], recs[i].PropertyValue)
		recs[i].RiskWeight = riskweight.Weight(recs[i].LTV)
	}
	return recs, nil
}

func (g *Generator) logNormal(mu, sigma float64) float64 {
	return math.Exp(mu + sigma*g.rng.NormFloat64())
}

func (g *Generator) floorArea() float64 {
	a := g.cfg.AreaMean + g.cfg.AreaStd*g.rng.NormFloat64()
	return math.Min(math.Max(a, g.cfg.AreaMin), g.cfg.AreaMax)
}

func (g *Generator) ltv() float64 {
	weights := make([]float64, len(g.cfg.LTVBuckets))
	for i, b := range g.cfg.LTVBuckets {
		weights[i] = b.Weight
	}
	b := g.cfg.LTVBuckets[pickIndex(g.rng, weights)]
	return b.Low + g.rng.Float64()*(b.High-b.Low)
}

func (g *Generator) buildYear() BuildYearBand {
	weights := make([]float64, len(g.cfg.BuildYears))
	for i, b := range g.cfg.BuildYears {
		weights[i] = b.Weight
	}
	return g.cfg.BuildYears[pickIndex(g.rng, weights)]
}

func (g *Generator) assignFlood(rec *domain.LoanRecord) {
	weights := make([]float64, len(g.cfg.FloodProfiles))
	for i, p := range g.cfg.FloodProfiles {
		weights[i] = p.Weight
	}
	p := g.cfg.FloodProfiles[pickIndex(g.rng, weights)]
	rec.FloodLevel = string(p.Level)
	rec.HazardProbability = p.AEP
	if p.Level == floodrisk.LevelVeryLow || p.DamageMax == 0 {
		rec.DamageFactor = 0
		return
	}
	rec.DamageFactor = p.DamageMin + g.rng.Float64()*(p.DamageMax-p.DamageMin)
}

// pickIndex draws an index with probability proportional to its weight.
func pickIndex(rng *rand.Rand, weights []float64) int {
	total := floats.Sum(weights)
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	u := rng.Float64() * total
	for i, w := range weights {
		if u < w {
			return i
		}
		u -= w
	}
	return len(weights) - 1
}

// pickWeighted draws a key of m. Keys are visited in sorted order so the
// draw is reproducible for a given seed.
func pickWeighted(rng *rand.Rand, m map[string]float64) string {
	keys := sortedKeys(m)
	if len(keys) == 0 {
		return ""
	}
	weights := make([]float64, len(keys))
	for i, k := range keys {
		weights[i] = m[k]
	}
	return keys[pickIndex(rng, weights)]
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RescaleToMean multiplies values by target/mean so the result has mean target.
func RescaleToMean(values []float64, target float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, ErrZeroMean
	}
	mean := stat.Mean(values, nil)
	if mean == 0 || math.IsNaN(mean) {
		return nil, ErrZeroMean
	}
	out := make([]float64, len(values))
	copy(out, values)
	floats.Scale(target/mean, out)
	return out, nil
}

// FitLogNormal estimates mu and sigma of a log-normal sample by the mean and
// standard deviation of the logs. Non-positive values are ignored.
func FitLogNormal(values []float64) (mu, sigma float64, err error) {
	logs := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 && !math.IsInf(v, 0) {
			logs = append(logs, math.Log(v))
		}
	}
	if len(logs) < 2 {
		return 0, 0, fmt.Errorf("FitLogNormal: need at least two positive values, got %d", len(logs))
	}
	mu, sigma = stat.MeanStdDev(logs, nil)
	return mu, sigma, nil
}

// FitPrices sets PriceMu and PriceSigma from the price per area of observed
// records. A record without a price contributes value / area when both are known.
func (c *Config) FitPrices(recs []domain.LoanRecord) error {
	prices := make([]float64, 0, len(recs))
	for _, r := range recs {
		p := r.PricePerArea
		if math.IsNaN(p) && r.FloorArea > 0 && !math.IsNaN(r.PropertyValue) {
			p = r.PropertyValue / r.FloorArea
		}
		if !math.IsNaN(p) {
			prices = append(prices, p)
		}
	}
	mu, sigma, err := FitLogNormal(prices)
	if err != nil {
		return fmt.Errorf("FitPrices: %w", err)
	}
	c.PriceMu, c.PriceSigma = mu, sigma
	return nil
}
