// Package config loads the run configuration from a YAML file, an optional
// .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dvloznov/climate-risk/internal/physical"
	"github.com/dvloznov/climate-risk/internal/portfolio"
	"github.com/dvloznov/climate-risk/internal/report"
	"github.com/dvloznov/climate-risk/internal/riskweight"
	"github.com/dvloznov/climate-risk/internal/synthetic"
	"github.com/dvloznov/climate-risk/internal/transition"
)

// Stage names accepted in Config.Stages.
const (
	StagePhysical   = "physical"
	StageTransition = "transition"
)

// Store drivers.
const (
	DriverNone     = ""
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBigQuery = "bigquery"
)

// Config is everything a run needs. Nothing else reads process state.
type Config struct {
	Input     string   `yaml:"input"`
	Output    string   `yaml:"output"`
	Delimiter string   `yaml:"delimiter"`
	LogLevel  string   `yaml:"log_level"`
	Stages    []string `yaml:"stages"`

	Report     ReportConfig        `yaml:"report"`
	Physical   PhysicalConfig      `yaml:"physical"`
	Transition TransitionConfig    `yaml:"transition"`
	RiskTable  []riskweight.Bucket `yaml:"risk_weights"`
	Synthetic  synthetic.Config    `yaml:"synthetic"`
	Store      StoreConfig         `yaml:"store"`
	GCP        GCPConfig           `yaml:"gcp"`
	Server     ServerConfig        `yaml:"server"`
}

// ReportConfig controls output files.
type ReportConfig struct {
	Delimiter    string `yaml:"delimiter"`
	DecimalComma bool   `yaml:"decimal_comma"`
}

// PhysicalConfig parameterises the damage model.
type PhysicalConfig struct {
	Horizon    float64 `yaml:"horizon"`
	DefaultAEP float64 `yaml:"default_aep"`
}

// TransitionConfig parameterises the scenario driver.
type TransitionConfig struct {
	ScenariosFile  string   `yaml:"scenarios_file"`
	Scenarios      []string `yaml:"scenarios"`
	UseNGFS        bool     `yaml:"use_ngfs"`
	DiscountRate   float64  `yaml:"discount_rate"`
	AnnuityHorizon int      `yaml:"annuity_horizon"`
	Workers        int      `yaml:"workers"`
}

// StoreConfig selects the result sink.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// GCPConfig holds Google Cloud settings.
type GCPConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
	Bucket  string `yaml:"bucket"`
}

// ServerConfig holds API settings.
type ServerConfig struct {
	Port      string        `yaml:"port"`
	Workers   int           `yaml:"workers"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Delimiter: ";",
		LogLevel:  "info",
		Stages:    []string{StagePhysical, StageTransition},
		Report: ReportConfig{
			Delimiter:    ";",
			DecimalComma: true,
		},
		Physical: PhysicalConfig{
			Horizon:    physical.DefaultHorizon,
			DefaultAEP: 0.01,
		},
		Transition: TransitionConfig{
			DiscountRate:   transition.DefaultDiscountRate,
			AnnuityHorizon: transition.DefaultAnnuityHorizon,
			Workers:        4,
		},
		Synthetic: synthetic.DefaultConfig(),
		GCP: GCPConfig{
			Dataset: "climate_risk",
		},
		Server: ServerConfig{
			Port:      "8080",
			Workers:   5,
			RateLimit: 10,
			Burst:     20,
			CacheTTL:  30 * time.Minute,
		},
	}
}

// Load builds a Config from defaults, the .env file in the working directory,
// the YAML file at path and environment overrides, in that order. A missing
// .env is ignored; a missing YAML file is an error only when path is set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Load: read .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("Load: parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLIMATERISK_INPUT"); v != "" {
		c.Input = v
	}
	if v := os.Getenv("CLIMATERISK_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("CLIMATERISK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CLIMATERISK_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("CLIMATERISK_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		c.GCP.Project = v
	}
	if v := os.Getenv("BQ_DATASET"); v != "" {
		c.GCP.Dataset = v
	}
	if v := os.Getenv("GCS_BUCKET"); v != "" {
		c.GCP.Bucket = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("CLIMATERISK_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("CLIMATERISK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Transition.Workers = n
		}
	}
}

// ValidDrivers lists the supported store drivers.
var ValidDrivers = []string{DriverNone, DriverSQLite, DriverPostgres, DriverBigQuery}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if c.Physical.Horizon < 0 {
		return fmt.Errorf("invalid physical horizon: %v", c.Physical.Horizon)
	}
	if c.Physical.DefaultAEP <= 0 || c.Physical.DefaultAEP > 1 {
		return fmt.Errorf("invalid default AEP: %v", c.Physical.DefaultAEP)
	}
	if c.Transition.DiscountRate <= 0 {
		return fmt.Errorf("invalid discount rate: %v", c.Transition.DiscountRate)
	}
	if c.Transition.AnnuityHorizon <= 0 {
		return fmt.Errorf("invalid annuity horizon: %d", c.Transition.AnnuityHorizon)
	}
	if _, err := ParseDelimiter(c.Delimiter); err != nil {
		return err
	}
	if _, err := ParseDelimiter(c.Report.Delimiter); err != nil {
		return err
	}
	for _, s := range c.Stages {
		if s != StagePhysical && s != StageTransition {
			return fmt.Errorf("unknown stage: %s", s)
		}
	}

	validDriver := false
	for _, d := range ValidDrivers {
		if c.Store.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid store driver: %s (valid: sqlite, postgres, bigquery)", c.Store.Driver)
	}
	if (c.Store.Driver == DriverSQLite || c.Store.Driver == DriverPostgres) && c.Store.DSN == "" {
		return fmt.Errorf("store driver %s requires a DSN", c.Store.Driver)
	}
	if c.Store.Driver == DriverBigQuery && c.GCP.Project == "" {
		return fmt.Errorf("store driver bigquery requires GCP_PROJECT")
	}
	return nil
}

// ParseDelimiter accepts a single character, "tab" or "auto" (returns 0).
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid delimiter: %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\n' || r == '\r' {
		return 0, fmt.Errorf("invalid delimiter: %q", s)
	}
	return r, nil
}

// HasStage reports whether stage is enabled.
func (c *Config) HasStage(stage string) bool {
	for _, s := range c.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// RiskWeights returns the configured table or the default one.
func (c *Config) RiskWeights() (*riskweight.Table, error) {
	if len(c.RiskTable) == 0 {
		return riskweight.Default, nil
	}
	return riskweight.NewTable(c.RiskTable)
}

// LoaderOptions derives portfolio parsing options.
func (c *Config) LoaderOptions() (portfolio.Options, error) {
	d, err := ParseDelimiter(c.Delimiter)
	if err != nil {
		return portfolio.Options{}, err
	}
	table, err := c.RiskWeights()
	if err != nil {
		return portfolio.Options{}, err
	}
	return portfolio.Options{Delimiter: d, DefaultAEP: c.Physical.DefaultAEP, RiskTable: table}, nil
}

// ReportOptions derives output formatting options.
func (c *Config) ReportOptions() report.Options {
	d, _ := ParseDelimiter(c.Report.Delimiter)
	return report.Options{Delimiter: d, DecimalComma: c.Report.DecimalComma}
}

// PhysicalModel builds the damage model.
func (c *Config) PhysicalModel() (*physical.Model, error) {
	table, err := c.RiskWeights()
	if err != nil {
		return nil, err
	}
	return &physical.Model{Horizon: c.Physical.Horizon, Table: table}, nil
}

// Catalog loads the scenario catalog, restricted to Transition.Scenarios.
func (c *Config) Catalog() (*transition.Catalog, error) {
	var (
		cat *transition.Catalog
		err error
	)
	if c.Transition.UseNGFS {
		cat, err = transition.DefaultNGFS().Catalog(transition.DefaultPriceParams())
	} else {
		cat, err = transition.LoadCatalog(c.Transition.ScenariosFile)
	}
	if err != nil {
		return nil, err
	}
	return cat.Select(c.Transition.Scenarios...)
}

// TransitionDriver builds the scenario driver.
func (c *Config) TransitionDriver() (*transition.Driver, error) {
	cat, err := c.Catalog()
	if err != nil {
		return nil, err
	}
	table, err := c.RiskWeights()
	if err != nil {
		return nil, err
	}
	d := transition.NewDriver(cat)
	d.Rate = c.Transition.DiscountRate
	d.Horizon = c.Transition.AnnuityHorizon
	d.Workers = c.Transition.Workers
	d.Table = table
	return d, nil
}
