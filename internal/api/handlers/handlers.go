package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/climate-risk/internal/api/middleware"
	"github.com/dvloznov/climate-risk/internal/config"
	"github.com/dvloznov/climate-risk/internal/jobs"
	"github.com/dvloznov/climate-risk/internal/logger"
)

// RunsHandler handles recalculation run endpoints.
type RunsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	summaries *SummaryCache
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(publisher jobs.Publisher, store jobs.JobStore, summaries *SummaryCache, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		publisher: publisher,
		store:     store,
		summaries: summaries,
		log:       log,
	}
}

// CreateRunRequest is the body of POST /api/runs.
type CreateRunRequest struct {
	InputURI  string   `json:"input_uri"`
	OutputURI string   `json:"output_uri"`
	Stages    []string `json:"stages"`
}

// CreateRun handles POST /api/runs
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.InputURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "input_uri is required")
		return
	}
	for _, s := range req.Stages {
		if s != config.StagePhysical && s != config.StageTransition {
			middleware.WriteError(w, http.StatusBadRequest, "unknown stage: "+s)
			return
		}
	}

	ctx := r.Context()

	job := &jobs.RecalculationJob{
		InputURI:  req.InputURI,
		OutputURI: req.OutputURI,
		Stages:    req.Stages,
	}

	if err := h.publisher.PublishRecalculation(ctx, job); err != nil {
		log := logger.FromContextOr(ctx, h.log)
		log.Error().Err(err).Msg("Failed to enqueue recalculation job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue recalculation job")
		return
	}

	log := logger.FromContextOr(ctx, h.log)
	log.Info().Str("run_id", job.JobID).Str("input_uri", req.InputURI).Msg("Recalculation job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		log := logger.FromContextOr(r.Context(), h.log)
		log.Error().Err(err).Str("run_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	resp := map[string]interface{}{"job": job}
	if job.Status == jobs.JobStatusCompleted && h.summaries != nil {
		if summary, ok := h.summaries.Get(jobID); ok {
			resp["summary"] = summary
		}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		InputURI: query.Get("input_uri"),
		Status:   jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContextOr(ctx, h.log)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if jobsList == nil {
		jobsList = []*jobs.RecalculationJob{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  jobsList,
		"count": len(jobsList),
	})
}
