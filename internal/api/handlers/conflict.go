package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/service"
	"github.com/go-chi/chi/v5"
)

type ConflictHandler struct {
	resolver *service.ConflictResolver
}

func NewConflictHandler(resolver *service.ConflictResolver) *ConflictHandler {
	return &ConflictHandler{resolver: resolver}
}

// ListPending handles GET /v1/conflicts.
func (h *ConflictHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.resolver.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conflicts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conflicts": pending,
		"count":     len(pending),
	})
}

type resolveRequest struct {
	Strategy string `json:"strategy,omitempty"`
}

// Resolve handles POST /v1/conflicts/{id}/resolve.
func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req resolveRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Strategy != "" && !domain.ValidResolutionStrategy(req.Strategy) {
		writeError(w, http.StatusBadRequest, "unknown resolution strategy")
		return
	}

	result, err := h.resolver.Resolve(r.Context(), id, domain.ResolutionStrategy(req.Strategy))
	if err != nil {
		if errors.Is(err, service.ErrConflictNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve conflict")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ResolveAll handles POST /v1/conflicts/resolve-all.
func (h *ConflictHandler) ResolveAll(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.Strategy != "" && !domain.ValidResolutionStrategy(req.Strategy) {
		writeError(w, http.StatusBadRequest, "unknown resolution strategy")
		return
	}

	report, err := h.resolver.ResolveAll(r.Context(), domain.ResolutionStrategy(req.Strategy))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve conflicts")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type strategyRequest struct {
	Strategy string `json:"strategy"`
}

// SetStrategy handles PUT /v1/conflicts/strategy.
func (h *ConflictHandler) SetStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.resolver.SetStrategy(domain.ResolutionStrategy(req.Strategy)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"strategy": req.Strategy})
}
