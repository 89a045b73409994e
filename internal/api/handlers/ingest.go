package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/service"
)

type IngestHandler struct {
	svc *service.IngestService
}

func NewIngestHandler(svc *service.IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// Ingest handles POST /v1/ingest: one candidate through the full pipeline.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var cand domain.Candidate
	if err := json.NewDecoder(r.Body).Decode(&cand); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.ProcessNewClause(r.Context(), &cand)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	status := http.StatusCreated
	if result.Action != service.ActionInsert && result.Action != service.ActionSuperseded {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

type batchIngestRequest struct {
	Candidates []domain.Candidate `json:"candidates"`
}

// Batch handles POST /v1/ingest/batch.
func (h *IngestHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Candidates) == 0 {
		writeError(w, http.StatusBadRequest, "candidates are required")
		return
	}

	report := h.svc.ProcessBatch(r.Context(), req.Candidates)
	writeJSON(w, http.StatusOK, report)
}

type extractRequest struct {
	Text   string `json:"text"`
	Source *struct {
		Type      string `json:"type,omitempty"`
		SessionID string `json:"session_id,omitempty"`
		AgentID   string `json:"agent_id,omitempty"`
		Tool      string `json:"tool,omitempty"`
		URL       string `json:"url,omitempty"`
	} `json:"source,omitempty"`
}

// Extract handles POST /v1/ingest/extract: raw text through the external
// extractor, then the pipeline.
func (h *IngestHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var src *domain.Source
	if req.Source != nil {
		src = &domain.Source{
			Type:      req.Source.Type,
			SessionID: req.Source.SessionID,
			AgentID:   req.Source.AgentID,
			Tool:      req.Source.Tool,
			URL:       req.Source.URL,
		}
	}

	report, err := h.svc.ExtractAndProcess(r.Context(), req.Text, src)
	if err != nil {
		if errors.Is(err, service.ErrExtractorUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
