package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/service"
)

type RetrievalHandler struct {
	engine *service.RetrievalEngine
}

func NewRetrievalHandler(engine *service.RetrievalEngine) *RetrievalHandler {
	return &RetrievalHandler{engine: engine}
}

type retrieveRequest struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit,omitempty"`
	Types          []string `json:"types,omitempty"`
	MinConfidence  float64  `json:"min_confidence,omitempty"`
	IncludeExpired bool     `json:"include_expired,omitempty"`
	MaxStages      int      `json:"max_stages,omitempty"`
}

func (req *retrieveRequest) options(w http.ResponseWriter) (service.RetrievalOptions, bool) {
	opts := service.RetrievalOptions{
		Limit:          req.Limit,
		MinConfidence:  req.MinConfidence,
		IncludeExpired: req.IncludeExpired,
	}
	for _, t := range req.Types {
		if !domain.ValidClauseType(t) {
			writeError(w, http.StatusBadRequest, "invalid clause type: "+t)
			return opts, false
		}
		opts.Types = append(opts.Types, domain.ClauseType(t))
	}
	return opts, true
}

// Retrieve handles POST /v1/retrieve.
func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	opts, ok := req.options(w)
	if !ok {
		return
	}

	result, err := h.engine.Retrieve(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Progressive handles POST /v1/retrieve/progressive.
func (h *RetrievalHandler) Progressive(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	opts, ok := req.options(w)
	if !ok {
		return
	}

	result, err := h.engine.ProgressiveRetrieve(r.Context(), req.Query, req.MaxStages, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type taskRequest struct {
	Task  string `json:"task"`
	Limit int    `json:"limit,omitempty"`
}

// Task handles POST /v1/retrieve/task.
func (h *RetrievalHandler) Task(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Task == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	taskCtx, err := h.engine.RetrieveForTask(r.Context(), req.Task, service.RetrievalOptions{Limit: req.Limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}
	writeJSON(w, http.StatusOK, taskCtx)
}
