package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/climate-risk/internal/api"
	"github.com/dvloznov/climate-risk/internal/api/handlers"
	"github.com/dvloznov/climate-risk/internal/gcs"
	"github.com/dvloznov/climate-risk/internal/jobs"
	"github.com/dvloznov/climate-risk/internal/jobs/inmemory"
	"github.com/dvloznov/climate-risk/internal/physical"
	"github.com/dvloznov/climate-risk/internal/pipeline"
	"github.com/dvloznov/climate-risk/internal/report"
	"github.com/dvloznov/climate-risk/internal/riskweight"
	"github.com/dvloznov/climate-risk/internal/transition"
)

const portfolioCSV = "ID;aktueller_immobilienwert;darlehenbetrag;Schadensfaktor;wohnflaeche;Energieklasse\n" +
	"1;300000;210000;0,1;100;C\n" +
	"2;250000;200000;0;120;H\n"

type testServer struct {
	handler http.Handler
	queue   *inmemory.Queue
	store   *inmemory.Store
}

func newTestServer(t *testing.T, opts api.RouterOptions) *testServer {
	t.Helper()
	log := zerolog.Nop()

	store := inmemory.NewStore()
	queue := inmemory.NewQueue(10, store)
	queue.Workers = 1
	queue.Backoff = time.Millisecond
	summaries := handlers.NewSummaryCache(time.Minute)

	worker := &handlers.RecalculationWorker{
		Store: gcs.NewStore(),
		Options: pipeline.Options{
			Report:     report.DefaultOptions(),
			Physical:   physical.NewModel(),
			Transition: transition.NewDriver(transition.DefaultCatalog()),
		},
		Summaries: summaries,
		Log:       log,
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, queue.Start(ctx, worker.Handle))
	t.Cleanup(func() {
		cancel()
		_ = queue.Stop(context.Background())
	})

	h := api.Handlers{
		Runs:      handlers.NewRunsHandler(queue, store, summaries, log),
		Reference: handlers.NewReferenceHandler(riskweight.Default, transition.DefaultCatalog(), log),
	}
	return &testServer{handler: api.NewRouter(h, opts, log), queue: queue, store: store}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})
	rec := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRiskWeight(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})

	tests := []struct {
		name   string
		query  string
		status int
		weight float64
	}{
		{"bucket upper bound", "?ltv=0.8", http.StatusOK, 0.30},
		{"decimal comma", "?ltv=0,45", http.StatusOK, 0.20},
		{"above one", "?ltv=1.2", http.StatusOK, 0.70},
		{"negative", "?ltv=-0.1", http.StatusBadRequest, 0},
		{"not a number", "?ltv=abc", http.StatusBadRequest, 0},
		{"missing", "", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/risk-weight"+tt.query, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var resp struct {
				RiskWeight float64 `json:"risk_weight"`
			}
			decode(t, rec, &resp)
			assert.Equal(t, tt.weight, resp.RiskWeight)
		})
	}
}

func TestRiskWeightTable(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})
	rec := s.do(t, http.MethodGet, "/api/risk-weights", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Buckets []struct {
			UpperBound *float64 `json:"upper_bound"`
			Weight     float64  `json:"weight"`
		} `json:"buckets"`
	}
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Buckets)
	assert.Nil(t, resp.Buckets[len(resp.Buckets)-1].UpperBound, "open bucket is null")
}

func TestListScenarios(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})
	rec := s.do(t, http.MethodGet, "/api/scenarios", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cat transition.Catalog
	decode(t, rec, &cat)
	assert.Equal(t, transition.DefaultCatalog().Names(), cat.Names())
}

func TestCreateRun_Validation(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})

	for name, body := range map[string]string{
		"bad json":      "{",
		"missing input": `{"stages":["physical"]}`,
		"unknown stage": `{"input_uri":"in.csv","stages":["flood"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/runs", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRun_EndToEnd(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})

	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(portfolioCSV), 0o644))
	out := filepath.Join(dir, "out")

	body, err := json.Marshal(handlers.CreateRunRequest{InputURI: in, OutputURI: out})
	require.NoError(t, err)
	rec := s.do(t, http.MethodPost, "/api/runs", string(body))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var created map[string]string
	decode(t, rec, &created)
	id := created["job_id"]
	require.NotEmpty(t, id)

	var resp struct {
		Job     jobs.RecalculationJob `json:"job"`
		Summary *handlers.RunSummary  `json:"summary"`
	}
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, "/api/runs/"+id, "")
		if rec.Code != http.StatusOK {
			return false
		}
		resp.Summary = nil
		decode(t, rec, &resp)
		return resp.Job.Done()
	}, 10*time.Second, 20*time.Millisecond)

	require.Equal(t, jobs.JobStatusCompleted, resp.Job.Status, resp.Job.Error)
	require.NotNil(t, resp.Job.Run)
	assert.Equal(t, id, resp.Job.Run.RunID)
	assert.Equal(t, 2, resp.Job.Run.RowsLoaded)

	require.NotNil(t, resp.Summary)
	require.NotNil(t, resp.Summary.Physical)
	assert.Equal(t, 1, resp.Summary.Physical.Exposed)
	assert.NotEmpty(t, resp.Summary.Totals)
	assert.Len(t, resp.Summary.Outputs, 5)

	_, err = os.Stat(filepath.Join(out, pipeline.PhysicalReportFile))
	assert.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/runs?status=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
}

func TestRun_PhysicalOnlyStage(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})

	in := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(in, []byte(portfolioCSV), 0o644))

	rec := s.do(t, http.MethodPost, "/api/runs", `{"input_uri":"`+filepath.ToSlash(in)+`","stages":["physical"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created map[string]string
	decode(t, rec, &created)

	var job *jobs.RecalculationJob
	require.Eventually(t, func() bool {
		j, err := s.store.GetJob(context.Background(), created["job_id"])
		job = j
		return err == nil && j.Done()
	}, 10*time.Second, 20*time.Millisecond)

	require.Equal(t, jobs.JobStatusCompleted, job.Status)
	assert.Equal(t, []string{"physical"}, job.Run.Stages)
	assert.Equal(t, 0, job.Run.RowsTransition)
}

func TestRun_MissingInputFails(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})

	rec := s.do(t, http.MethodPost, "/api/runs", `{"input_uri":"`+filepath.ToSlash(filepath.Join(t.TempDir(), "nope.csv"))+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created map[string]string
	decode(t, rec, &created)

	var job *jobs.RecalculationJob
	require.Eventually(t, func() bool {
		j, err := s.store.GetJob(context.Background(), created["job_id"])
		job = j
		return err == nil && j.Status == jobs.JobStatusFailed
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, jobs.DefaultMaxRetries, job.RetryCount)
	assert.NotEmpty(t, job.Error)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})
	rec := s.do(t, http.MethodGet, "/api/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{})
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/nothing", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(t, http.MethodDelete, "/api/scenarios", "").Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodOptions, "/api/runs", "").Code)
}

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServer(t, api.RouterOptions{RateLimit: 0.001, Burst: 2})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "").Code)

	rec := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
