package handlers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/clausebank/clausebank/internal/service"
	"github.com/go-chi/chi/v5"
)

type DecayHandler struct {
	engine *service.DecayEngine
}

func NewDecayHandler(engine *service.DecayEngine) *DecayHandler {
	return &DecayHandler{engine: engine}
}

// Run handles POST /v1/decay/run?dry_run=true.
func (h *DecayHandler) Run(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"

	report, err := h.engine.Run(r.Context(), dryRun)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "decay run failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// History handles GET /v1/clauses/{id}/decay-history.
func (h *DecayHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := intQuery(r.URL.Query().Get("limit"), 50)

	entries, err := h.engine.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load decay history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clause_id": id,
		"history":   entries,
	})
}

// Estimate handles GET /v1/clauses/{id}/expiration-estimate.
func (h *DecayHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	days, err := h.engine.EstimateExpirationDays(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrClauseNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to estimate expiration")
		return
	}

	resp := map[string]any{"clause_id": id}
	if math.IsInf(days, 1) {
		resp["expires"] = false
	} else {
		resp["expires"] = true
		resp["days_until_expiration"] = days
	}
	writeJSON(w, http.StatusOK, resp)
}

type adjustRequest struct {
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Adjust handles POST /v1/clauses/{id}/confidence.
func (h *DecayHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.AdjustConfidence(r.Context(), id, req.Confidence, req.Reason); err != nil {
		if errors.Is(err, service.ErrClauseNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to adjust confidence")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "adjusted"})
}
