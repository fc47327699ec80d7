package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/climate-risk/internal/api/middleware"
	"github.com/dvloznov/climate-risk/internal/logger"
	"github.com/dvloznov/climate-risk/internal/portfolio"
	"github.com/dvloznov/climate-risk/internal/riskweight"
	"github.com/dvloznov/climate-risk/internal/transition"
)

// ReferenceHandler serves the risk-weight table and the scenario catalog.
type ReferenceHandler struct {
	table   *riskweight.Table
	catalog *transition.Catalog
	log     zerolog.Logger
}

// NewReferenceHandler creates a new reference handler.
func NewReferenceHandler(table *riskweight.Table, catalog *transition.Catalog, log zerolog.Logger) *ReferenceHandler {
	if table == nil {
		table = riskweight.Default
	}
	return &ReferenceHandler{table: table, catalog: catalog, log: log}
}

// RiskWeight handles GET /api/risk-weight?ltv=0.75
func (h *ReferenceHandler) RiskWeight(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ltv"))
	if raw == "" {
		middleware.WriteError(w, http.StatusBadRequest, "ltv is required")
		return
	}

	ltv := portfolio.ParseLocaleFloat(raw)
	weight, err := h.table.Classify(ltv)
	if errors.Is(err, riskweight.ErrNegativeLTV) || errors.Is(err, riskweight.ErrUndefinedLTV) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid ltv: "+raw)
		return
	}
	if err != nil {
		log := logger.FromContextOr(r.Context(), h.log)
		log.Error().Err(err).Str("ltv", raw).Msg("Failed to classify")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to classify")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ltv":         Number(ltv),
		"risk_weight": weight,
	})
}

// ListScenarios handles GET /api/scenarios
func (h *ReferenceHandler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "No scenario catalog loaded")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.catalog)
}

// RiskWeightTable handles GET /api/risk-weights
func (h *ReferenceHandler) RiskWeightTable(w http.ResponseWriter, r *http.Request) {
	buckets := h.table.Buckets()
	out := make([]map[string]Number, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, map[string]Number{
			"upper_bound": Number(b.UpperBound),
			"weight":      Number(b.Weight),
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"buckets": out})
}
