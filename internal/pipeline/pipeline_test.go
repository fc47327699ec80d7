package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/climate-risk/internal/config"
	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/gcs"
	"github.com/dvloznov/climate-risk/internal/physical"
	"github.com/dvloznov/climate-risk/internal/pipeline"
	"github.com/dvloznov/climate-risk/internal/portfolio"
	"github.com/dvloznov/climate-risk/internal/report"
	"github.com/dvloznov/climate-risk/internal/transition"
)

// MockObjectStore is an in-memory ObjectStore.
type MockObjectStore struct {
	mu      sync.Mutex
	Objects map[string][]byte

	ReadFunc  func(ctx context.Context, uri string) ([]byte, error)
	WriteFunc func(ctx context.Context, uri string, data []byte) error
}

func NewMockObjectStore(objects map[string]string) *MockObjectStore {
	m := &MockObjectStore{Objects: make(map[string][]byte)}
	for k, v := range objects {
		m.Objects[k] = []byte(v)
	}
	return m
}

func (m *MockObjectStore) Read(ctx context.Context, uri string) ([]byte, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, uri)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Objects[uri]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *MockObjectStore) Write(ctx context.Context, uri string, data []byte) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, uri, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[uri] = append([]byte(nil), data...)
	return nil
}

// MockResultSink records calls in order.
type MockResultSink struct {
	Calls []string

	SaveRunFunc             func(ctx context.Context, run *domain.Run) error
	SavePhysicalResultsFunc func(ctx context.Context, runID string, results []domain.PhysicalResult) error
	SaveClassAveragesFunc   func(ctx context.Context, runID string, avgs []domain.ClassAverage) error
	SavePortfolioTotalsFunc func(ctx context.Context, runID string, totals []domain.PortfolioTotal) error
}

func (m *MockResultSink) SaveRun(ctx context.Context, run *domain.Run) error {
	m.Calls = append(m.Calls, "run")
	if m.SaveRunFunc != nil {
		return m.SaveRunFunc(ctx, run)
	}
	return nil
}

func (m *MockResultSink) SavePhysicalResults(ctx context.Context, runID string, results []domain.PhysicalResult) error {
	m.Calls = append(m.Calls, "physical")
	if m.SavePhysicalResultsFunc != nil {
		return m.SavePhysicalResultsFunc(ctx, runID, results)
	}
	return nil
}

func (m *MockResultSink) SaveClassAverages(ctx context.Context, runID string, avgs []domain.ClassAverage) error {
	m.Calls = append(m.Calls, "class_averages")
	if m.SaveClassAveragesFunc != nil {
		return m.SaveClassAveragesFunc(ctx, runID, avgs)
	}
	return nil
}

func (m *MockResultSink) SavePortfolioTotals(ctx context.Context, runID string, totals []domain.PortfolioTotal) error {
	m.Calls = append(m.Calls, "totals")
	if m.SavePortfolioTotalsFunc != nil {
		return m.SavePortfolioTotalsFunc(ctx, runID, totals)
	}
	return nil
}

var (
	_ pipeline.ObjectStore = (*MockObjectStore)(nil)
	_ pipeline.ResultSink  = (*MockResultSink)(nil)
)

const portfolioCSV = "ID;aktueller_immobilienwert;darlehenbetrag;Schadensfaktor;wohnflaeche;Energieklasse\n" +
	"1;300000;210000;0,1;100;C\n" +
	"2;250000;200000;0;120;H\n" +
	"3;;100000;0,2;80;A\n"

func defaultOptions() pipeline.Options {
	return pipeline.Options{
		Report:     report.DefaultOptions(),
		Physical:   physical.NewModel(),
		Transition: transition.NewDriver(transition.DefaultCatalog()),
	}
}

func TestRunRecalculation_FullRun(t *testing.T) {
	store := NewMockObjectStore(map[string]string{"gs://bucket/in.csv": portfolioCSV})
	sink := &MockResultSink{}

	var savedRun domain.Run
	sink.SaveRunFunc = func(ctx context.Context, run *domain.Run) error {
		savedRun = *run
		return nil
	}
	var savedPhysical []domain.PhysicalResult
	sink.SavePhysicalResultsFunc = func(ctx context.Context, runID string, results []domain.PhysicalResult) error {
		assert.Equal(t, "run-1", runID)
		savedPhysical = results
		return nil
	}

	state, err := pipeline.RunRecalculation(context.Background(), store, sink, defaultOptions(), "run-1", "gs://bucket/in.csv", "gs://bucket/out")
	require.NoError(t, err)

	assert.Equal(t, []string{"physical", "class_averages", "totals", "run"}, sink.Calls)
	assert.Equal(t, "run-1", savedRun.RunID)
	assert.Equal(t, []string{config.StagePhysical, config.StageTransition}, savedRun.Stages)
	assert.Equal(t, 3, savedRun.RowsLoaded)
	assert.Equal(t, 2, savedRun.RowsPhysical, "row without property value is dropped")
	assert.Equal(t, 2, savedRun.RowsTransition)
	assert.Equal(t, 0, savedRun.RowErrors)
	require.NotNil(t, savedRun.FinishedAt)
	assert.False(t, savedRun.FinishedAt.Before(savedRun.StartedAt))

	require.Len(t, savedPhysical, 2)
	assert.Equal(t, 0.30, savedPhysical[0].NewRiskWeight)
	assert.Equal(t, 63000.0, savedPhysical[0].NewRWA)
	assert.Equal(t, 0.0, savedPhysical[0].RWAChangeRatio)

	cells := len(transition.DefaultCatalog().Scenarios) * len(transition.DefaultCatalog().Years)
	assert.Len(t, state.Transition, 2*cells)
	assert.Len(t, state.Totals, cells)
	require.NotNil(t, state.PhysicalSummary)
	assert.Equal(t, 1, state.PhysicalSummary.Exposed)

	assert.Equal(t, []string{
		"gs://bucket/out/physical.csv",
		"gs://bucket/out/transition.csv",
		"gs://bucket/out/transition_class_averages.csv",
		"gs://bucket/out/transition_totals.csv",
		"gs://bucket/out/summary.txt",
	}, state.Outputs)

	lines := strings.Split(strings.TrimSpace(string(store.Objects["gs://bucket/out/physical.csv"])), "\n")
	require.Len(t, lines, 4, "report echoes every input row")
	assert.True(t, strings.HasSuffix(lines[1], ";0,3000;63000,00;63000,00;0,0000"), lines[1])
	assert.True(t, strings.HasSuffix(lines[3], ";;;"), "dropped row has empty outputs")

	assert.Contains(t, string(store.Objects["gs://bucket/out/summary.txt"]), "Netto-Null")
}

func TestRunRecalculation_PhysicalOnlyNoOutput(t *testing.T) {
	store := NewMockObjectStore(map[string]string{"in.csv": portfolioCSV})
	store.WriteFunc = func(ctx context.Context, uri string, data []byte) error {
		t.Errorf("unexpected write to %s", uri)
		return nil
	}
	opts := defaultOptions()
	opts.Transition = nil

	state, err := pipeline.RunRecalculation(context.Background(), store, nil, opts, "", "in.csv", "")
	require.NoError(t, err)
	assert.NotEmpty(t, state.Run.RunID, "run id is generated")
	assert.Equal(t, []string{config.StagePhysical}, state.Run.Stages)
	assert.Nil(t, state.Transition)
	assert.Empty(t, state.Outputs)
}

func TestRunRecalculation_MissingColumn(t *testing.T) {
	store := NewMockObjectStore(map[string]string{"in.csv": "aktueller_immobilienwert;darlehenbetrag\n300000;210000\n"})
	sink := &MockResultSink{}

	_, err := pipeline.RunRecalculation(context.Background(), store, sink, defaultOptions(), "", "in.csv", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, portfolio.ErrMissingColumn))
	assert.Empty(t, sink.Calls, "nothing is persisted for a failed run")
}

func TestRunRecalculation_ReadError(t *testing.T) {
	store := NewMockObjectStore(nil)
	_, err := pipeline.RunRecalculation(context.Background(), store, nil, defaultOptions(), "", "gs://bucket/none.csv", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunRecalculation_SinkError(t *testing.T) {
	store := NewMockObjectStore(map[string]string{"in.csv": portfolioCSV})
	boom := errors.New("insert failed")
	sink := &MockResultSink{
		SavePortfolioTotalsFunc: func(ctx context.Context, runID string, totals []domain.PortfolioTotal) error {
			return boom
		},
	}

	_, err := pipeline.RunRecalculation(context.Background(), store, sink, defaultOptions(), "", "in.csv", "")
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, sink.Calls, "run")
}

func TestRunRecalculation_NoStages(t *testing.T) {
	_, err := pipeline.RunRecalculation(context.Background(), NewMockObjectStore(nil), nil, pipeline.Options{}, "", "in.csv", "")
	assert.Error(t, err)
}

func TestRunRecalculation_RowErrorsCounted(t *testing.T) {
	input := "aktueller_immobilienwert;darlehenbetrag;Schadensfaktor;wohnflaeche;Energieklasse\n" +
		"300000;210000;1,5;100;Z\n"
	store := NewMockObjectStore(map[string]string{"in.csv": input})

	state, err := pipeline.RunRecalculation(context.Background(), store, nil, defaultOptions(), "", "in.csv", "")
	require.NoError(t, err, "row failures never abort the batch")

	cells := len(transition.DefaultCatalog().Scenarios) * len(transition.DefaultCatalog().Years)
	assert.Equal(t, 1+cells, state.Run.RowErrors)
	assert.NotEmpty(t, state.Physical[0].Err)
}

func TestPipeline_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := &pipeline.PipelineState{}
	state.Run.InputURI = "in.csv"
	err := pipeline.NewPipeline(&pipeline.StartRunStep{}).Execute(ctx, state)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Stages = []string{config.StageTransition}
	cfg.Transition.Scenarios = []string{"Netto-Null"}

	opts, err := pipeline.OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Nil(t, opts.Physical)
	require.NotNil(t, opts.Transition)
	assert.Equal(t, []string{"Netto-Null"}, opts.Transition.Catalog.Names())
	assert.Equal(t, []string{config.StageTransition}, opts.Stages())
}

func TestOpenSink(t *testing.T) {
	ctx := context.Background()

	cfg := config.DefaultConfig()
	sink, err := pipeline.OpenSink(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, sink)

	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.DSN = filepath.Join(t.TempDir(), "results.db")
	sink, err = pipeline.OpenSink(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, sink)
	defer sink.Close()

	store := NewMockObjectStore(map[string]string{"in.csv": portfolioCSV})
	_, err = pipeline.RunRecalculation(ctx, store, sink, defaultOptions(), "run-sql", "in.csv", "")
	require.NoError(t, err)
}

func TestWriteReports_LocalStore(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(portfolioCSV), 0o644))

	out := filepath.Join(dir, "out")
	state, err := pipeline.RunRecalculation(context.Background(), gcs.NewStore(), nil, defaultOptions(), "", in, out)
	require.NoError(t, err)
	assert.Len(t, state.Outputs, 5)

	data, err := os.ReadFile(filepath.Join(out, pipeline.TotalsFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "scenario;year;"), string(data))
}
