package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/service"
	"github.com/go-chi/chi/v5"
)

type ClauseHandler struct {
	svc *service.ClauseService
}

func NewClauseHandler(svc *service.ClauseService) *ClauseHandler {
	return &ClauseHandler{svc: svc}
}

type createClauseRequest struct {
	Type             string         `json:"type"`
	Subject          string         `json:"subject"`
	Predicate        string         `json:"predicate"`
	Object           string         `json:"object"`
	NaturalForm      string         `json:"natural_form,omitempty"`
	Confidence       float64        `json:"confidence,omitempty"`
	DecayRate        float64        `json:"decay_rate,omitempty"`
	SourceID         string         `json:"source_id,omitempty"`
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func (h *ClauseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createClauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	clause := &domain.Clause{
		Type:             domain.ClauseType(req.Type),
		Subject:          req.Subject,
		Predicate:        req.Predicate,
		Object:           req.Object,
		NaturalForm:      req.NaturalForm,
		Confidence:       req.Confidence,
		DecayRate:        req.DecayRate,
		SourceID:         req.SourceID,
		ExtractionMethod: req.ExtractionMethod,
		Tags:             req.Tags,
		Metadata:         req.Metadata,
	}

	created, err := h.svc.Create(r.Context(), clause)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidType), errors.Is(err, service.ErrMissingSPO):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to create clause")
		}
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ClauseHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	clause, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrClauseNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get clause")
		return
	}

	writeJSON(w, http.StatusOK, clause)
}

// Search handles GET /v1/clauses?query=...&type=fact,preference&min_confidence=0.5
func (h *ClauseHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.ClauseFilter{}
	if types := q.Get("type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			t = strings.TrimSpace(t)
			if !domain.ValidClauseType(t) {
				writeError(w, http.StatusBadRequest, "invalid clause type: "+t)
				return
			}
			filter.Types = append(filter.Types, domain.ClauseType(t))
		}
	}
	if mc := q.Get("min_confidence"); mc != "" {
		v, err := strconv.ParseFloat(mc, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_confidence")
			return
		}
		filter.MinConfidence = v
	}
	filter.IncludeExpired = q.Get("include_expired") == "true"
	filter.Limit = intQuery(q.Get("limit"), 20)
	filter.Offset = intQuery(q.Get("offset"), 0)
	if sortBy := q.Get("sort_by"); sortBy != "" {
		filter.SortBy = domain.SortField(sortBy)
	}
	filter.SortAsc = q.Get("order") == "asc"

	results, err := h.svc.Search(r.Context(), q.Get("query"), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clauses": results,
		"count":   len(results),
	})
}

type updateClauseRequest struct {
	Confidence  *float64       `json:"confidence,omitempty"`
	DecayRate   *float64       `json:"decay_rate,omitempty"`
	Tags        *[]string      `json:"tags,omitempty"`
	NaturalForm *string        `json:"natural_form,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (h *ClauseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateClauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	clause, err := h.svc.Update(r.Context(), id, domain.ClauseUpdate{
		Confidence:  req.Confidence,
		DecayRate:   req.DecayRate,
		Tags:        req.Tags,
		NaturalForm: req.NaturalForm,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if errors.Is(err, service.ErrClauseNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update clause")
		return
	}

	writeJSON(w, http.StatusOK, clause)
}

type invalidateRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *ClauseHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req invalidateRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "manual_invalidation"
	}

	if err := h.svc.Invalidate(r.Context(), id, req.Reason); err != nil {
		if errors.Is(err, service.ErrClauseNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to invalidate clause")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

type reinforceRequest struct {
	Amount float64 `json:"amount,omitempty"`
}

func (h *ClauseHandler) Reinforce(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req reinforceRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	clause, err := h.svc.Reinforce(r.Context(), id, req.Amount)
	if err != nil {
		if errors.Is(err, service.ErrClauseNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to reinforce clause")
		return
	}

	writeJSON(w, http.StatusOK, clause)
}

func intQuery(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
