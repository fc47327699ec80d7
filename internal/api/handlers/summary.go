package handlers

import (
	"encoding/json"
	"math"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/pipeline"
)

// Number marshals NaN and ±Inf as null.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// PhysicalStats is the JSON view of a physical run summary.
type PhysicalStats struct {
	Rows          int    `json:"rows"`
	Exposed       int    `json:"exposed"`
	Failed        int    `json:"failed"`
	Upgraded      int    `json:"upgraded"`
	TotalDamage   Number `json:"total_damage"`
	TotalExpected Number `json:"total_expected_annual_impact"`
	TotalOldRWA   Number `json:"total_old_rwa"`
	TotalNewRWA   Number `json:"total_new_rwa"`
	MeanChange    Number `json:"mean_rwa_change_ratio"`
	MedianChange  Number `json:"median_rwa_change_ratio"`
	P95Change     Number `json:"p95_rwa_change_ratio"`
	MeanNewLTV    Number `json:"mean_new_ltv"`
}

// Total is the JSON view of one scenario-year portfolio total.
type Total struct {
	Scenario    string `json:"scenario"`
	Year        int    `json:"year"`
	Count       int    `json:"count"`
	OldRWA      Number `json:"old_rwa"`
	NewRWA      Number `json:"new_rwa"`
	ChangeRatio Number `json:"rwa_change_ratio"`
}

// RunSummary is what GET /api/runs/{id} returns for a finished run.
type RunSummary struct {
	Run      domain.Run     `json:"run"`
	Physical *PhysicalStats `json:"physical,omitempty"`
	Totals   []Total        `json:"totals,omitempty"`
	Outputs  []string       `json:"outputs,omitempty"`
}

// NewRunSummary condenses a pipeline state.
func NewRunSummary(state *pipeline.PipelineState) *RunSummary {
	s := &RunSummary{
		Run:     state.Run,
		Outputs: append([]string(nil), state.Outputs...),
	}
	if p := state.PhysicalSummary; p != nil {
		s.Physical = &PhysicalStats{
			Rows:          p.Rows,
			Exposed:       p.Exposed,
			Failed:        p.Failed,
			Upgraded:      p.Upgraded,
			TotalDamage:   Number(p.TotalDamage),
			TotalExpected: Number(p.TotalExpected),
			TotalOldRWA:   Number(p.TotalOldRWA),
			TotalNewRWA:   Number(p.TotalNewRWA),
			MeanChange:    Number(p.MeanChange),
			MedianChange:  Number(p.MedianChange),
			P95Change:     Number(p.P95Change),
			MeanNewLTV:    Number(p.MeanNewLTV),
		}
	}
	for _, t := range state.Totals {
		s.Totals = append(s.Totals, Total{
			Scenario:    t.Scenario,
			Year:        t.Year,
			Count:       t.Count,
			OldRWA:      Number(t.OldRWA),
			NewRWA:      Number(t.NewRWA),
			ChangeRatio: Number((t.NewRWA - t.OldRWA) / t.OldRWA),
		})
	}
	return s
}

// SummaryCache keeps finished run summaries for a limited time.
type SummaryCache struct {
	c *cache.Cache
}

// NewSummaryCache creates a cache whose entries expire after ttl.
func NewSummaryCache(ttl time.Duration) *SummaryCache {
	return &SummaryCache{c: cache.New(ttl, 2*ttl)}
}

// Set stores the summary for runID.
func (s *SummaryCache) Set(runID string, summary *RunSummary) {
	s.c.SetDefault(runID, summary)
}

// Get returns the summary for runID if it has not expired.
func (s *SummaryCache) Get(runID string) (*RunSummary, bool) {
	v, ok := s.c.Get(runID)
	if !ok {
		return nil, false
	}
	return v.(*RunSummary), true
}
