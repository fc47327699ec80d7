package sqlstore

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/climate-risk/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	version, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", sqliteDSN("a.db"))
	assert.Equal(t, "a.db?mode=ro&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", sqliteDSN("a.db?mode=ro"))
	assert.Equal(t, "a.db?_pragma=foreign_keys(on)", sqliteDSN("a.db?_pragma=foreign_keys(on)"))
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	version, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestSaveRun_GetAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	older := &domain.Run{RunID: "older", InputURI: "a.csv", Stages: []string{"physical"}, StartedAt: started.Add(-time.Hour)}
	run := &domain.Run{
		RunID:          "run-1",
		InputURI:       "gs://bucket/hypotheken.csv",
		OutputURI:      "gs://bucket/out",
		Stages:         []string{"physical", "transition"},
		RowsLoaded:     10,
		RowsPhysical:   9,
		RowsTransition: 8,
		RowErrors:      1,
		StartedAt:      started,
		FinishedAt:     &finished,
	}
	require.NoError(t, s.SaveRun(ctx, older))
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.InputURI, got.InputURI)
	assert.Equal(t, run.OutputURI, got.OutputURI)
	assert.Equal(t, run.Stages, got.Stages)
	assert.Equal(t, 8, got.RowsTransition)
	assert.True(t, got.StartedAt.Equal(started))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].RunID)
	assert.Nil(t, runs[1].FinishedAt)

	// saving again replaces the record
	run.RowErrors = 0
	require.NoError(t, s.SaveRun(ctx, run))
	runs, err = s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.RowErrors)
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSavePhysicalResults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	nan := math.NaN()

	results := []domain.PhysicalResult{
		{LoanID: 2, DamageAmount: nan, ExpectedAnnualImpact: nan, ExpectedImpactOverHorizon: nan, NewPropertyValue: nan, NewLTV: nan, NewRiskWeight: nan, OldRWA: nan, NewRWA: nan, RWAChangeRatio: nan, Err: "damage factor out of range"},
		{LoanID: 1, DamageAmount: 45000, ExpectedAnnualImpact: 450, ExpectedImpactOverHorizon: 9000, NewPropertyValue: 255000, NewLTV: 0.8235, NewRiskWeight: 0.40, OldRWA: 63000, NewRWA: 84000, RWAChangeRatio: 1.0 / 3, Exposed: true},
		{LoanID: 3, DamageAmount: 0, NewLTV: 0.5, NewRiskWeight: 0.2, OldRWA: 0, NewRWA: 0, RWAChangeRatio: math.Inf(1)},
	}
	require.NoError(t, s.SavePhysicalResults(ctx, "run-1", results))

	got, err := s.PhysicalResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].LoanID)
	assert.True(t, got[0].Exposed)
	assert.Equal(t, 84000.0, got[0].NewRWA)
	assert.InDelta(t, 0.3333, got[0].RWAChangeRatio, 1e-4)

	assert.Equal(t, 2, got[1].LoanID)
	assert.True(t, math.IsNaN(got[1].NewRWA))
	assert.Equal(t, "damage factor out of range", got[1].Err)

	assert.True(t, math.IsNaN(got[2].RWAChangeRatio), "infinite ratios are stored as NULL")

	// a retry replaces the previous attempt
	require.NoError(t, s.SavePhysicalResults(ctx, "run-1", results[:1]))
	got, err = s.PhysicalResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSavePhysicalResults_ManyRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	results := make([]domain.PhysicalResult, 3*rowsPerChunk+7)
	for i := range results {
		results[i] = domain.PhysicalResult{LoanID: i + 1, NewRWA: float64(i)}
	}
	require.NoError(t, s.SavePhysicalResults(ctx, "big", results))

	got, err := s.PhysicalResults(ctx, "big")
	require.NoError(t, err)
	assert.Len(t, got, len(results))
}

func TestSaveTransitionAggregates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	avgs := []domain.ClassAverage{
		{Scenario: "Netto-Null", Year: 2050, EnergyClass: "A+", Count: 2, PropertyValue: 400000, NewPropertyValue: 401000, LTV: 0.5, NewLTV: 0.49, ValueChange: 0.0025, RWAChangeRatio: 0},
		{Scenario: "Netto-Null", Year: 2050, EnergyClass: "A", Count: 1, PropertyValue: 300000, NewPropertyValue: 299000, LTV: 0.6, NewLTV: math.NaN(), ValueChange: -0.003, RWAChangeRatio: 0.1},
	}
	totals := []domain.PortfolioTotal{
		{Scenario: "Ungeordnet", Year: 2030, Count: 3, OldRWA: 1000, NewRWA: 1100},
		{Scenario: "Netto-Null", Year: 2050, Count: 3, OldRWA: 1000, NewRWA: 1200},
		{Scenario: "Netto-Null", Year: 2030, Count: 3, OldRWA: 1000, NewRWA: 1050},
	}
	require.NoError(t, s.SaveClassAverages(ctx, "run-1", avgs))
	require.NoError(t, s.SavePortfolioTotals(ctx, "run-1", totals))

	gotAvgs, err := s.ClassAverages(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, gotAvgs, 2)
	assert.Equal(t, "A+", gotAvgs[0].EnergyClass, "saved order is kept")
	assert.Equal(t, "A", gotAvgs[1].EnergyClass)
	assert.True(t, math.IsNaN(gotAvgs[1].NewLTV))
	assert.Equal(t, 2, gotAvgs[0].Count)

	gotTotals, err := s.PortfolioTotals(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, gotTotals, 3)
	assert.Equal(t, "Netto-Null", gotTotals[0].Scenario)
	assert.Equal(t, 2030, gotTotals[0].Year)
	assert.Equal(t, 1050.0, gotTotals[0].NewRWA)
	assert.Equal(t, "Ungeordnet", gotTotals[2].Scenario)

	other, err := s.PortfolioTotals(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
