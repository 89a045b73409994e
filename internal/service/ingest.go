package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrExtractorUnavailable = errors.New("extractor unavailable")

// IngestAction is the terminal outcome of processing one candidate.
type IngestAction string

const (
	ActionInsert     IngestAction = "insert"
	ActionReinforced IngestAction = "reinforced"
	ActionSuperseded IngestAction = "superseded"
	ActionConflict   IngestAction = "conflict"
	ActionSkipped    IngestAction = "skipped"
)

type IngestResult struct {
	Action   IngestAction     `json:"action"`
	Clause   *domain.Clause   `json:"clause,omitempty"`
	Conflict *domain.Conflict `json:"conflict,omitempty"`
}

// BatchReport summarizes a batched ingestion. Per-candidate failures are
// counted, never propagated, so a batch can partially succeed.
type BatchReport struct {
	Loaded     int `json:"loaded"`
	Reinforced int `json:"reinforced"`
	Skipped    int `json:"skipped"`
	Conflicts  int `json:"conflicts"`
	Errors     int `json:"errors"`
}

// IngestService runs the candidate pipeline: Deduplicator, then
// ConflictResolver analysis, then clause creation.
type IngestService struct {
	clauses   *ClauseService
	dedup     *Deduplicator
	resolver  *ConflictResolver
	sources   domain.SourceStore
	conflicts domain.ConflictStore
	extractor domain.Extractor
	logger    *zap.Logger
}

func NewIngestService(clauses *ClauseService, dedup *Deduplicator, resolver *ConflictResolver, sources domain.SourceStore, conflicts domain.ConflictStore, logger *zap.Logger) *IngestService {
	return &IngestService{
		clauses:   clauses,
		dedup:     dedup,
		resolver:  resolver,
		sources:   sources,
		conflicts: conflicts,
		logger:    logger,
	}
}

// SetExtractor wires the optional external extraction collaborator.
func (s *IngestService) SetExtractor(e domain.Extractor) {
	s.extractor = e
}

// ProcessNewClause runs one candidate through dedup and conflict analysis.
func (s *IngestService) ProcessNewClause(ctx context.Context, cand *domain.Candidate) (*IngestResult, error) {
	if err := cand.Validate(); err != nil {
		return nil, err
	}

	match, err := s.dedup.FindDuplicate(ctx, cand)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return s.applyDuplicatePolicy(ctx, cand, match)
	}

	return s.applyConflictAnalysis(ctx, cand)
}

func (s *IngestService) applyDuplicatePolicy(ctx context.Context, cand *domain.Candidate, match *DuplicateMatch) (*IngestResult, error) {
	cfg := s.dedup.Config()
	switch cfg.OnDuplicate {
	case DedupSkip:
		return &IngestResult{Action: ActionSkipped, Clause: match.Clause}, nil

	case DedupMerge:
		merged := make(map[string]any, len(match.Clause.Metadata)+len(cand.Metadata))
		for k, v := range match.Clause.Metadata {
			merged[k] = v
		}
		for k, v := range cand.Metadata {
			merged[k] = v
		}
		if _, err := s.clauses.Update(ctx, match.Clause.ID, domain.ClauseUpdate{Metadata: merged}); err != nil {
			return nil, err
		}
		c, err := s.clauses.Reinforce(ctx, match.Clause.ID, cfg.MergeReinforceAmount)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Action: ActionReinforced, Clause: c}, nil

	default: // reinforce
		c, err := s.clauses.Reinforce(ctx, match.Clause.ID, cfg.ReinforceAmount)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Action: ActionReinforced, Clause: c}, nil
	}
}

// applyConflictAnalysis classifies the candidate against each existing
// active clause sharing (subject, predicate) and applies the decision table.
func (s *IngestService) applyConflictAnalysis(ctx context.Context, cand *domain.Candidate) (*IngestResult, error) {
	existing, err := s.clauses.clauses.ActiveBySubjectPredicate(ctx, cand.Subject, cand.Predicate)
	if err != nil {
		return nil, err
	}

	class := s.resolver.Policy().Classify(cand.Predicate)

	// Identical objects anywhere reinforce instead of inserting.
	for i := range existing {
		if ClassifyRelation(class, ObjectsEqual(existing[i].Object, cand.Object)) == RelationIdentical {
			c, err := s.clauses.Reinforce(ctx, existing[i].ID, DefaultReinforceAmount)
			if err != nil {
				return nil, err
			}
			return &IngestResult{Action: ActionReinforced, Clause: c}, nil
		}
	}

	if len(existing) == 0 {
		c, err := s.createFromCandidate(ctx, cand)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Action: ActionInsert, Clause: c}, nil
	}

	switch ClassifyRelation(class, false) {
	case RelationSupersession:
		for i := range existing {
			if err := s.clauses.Invalidate(ctx, existing[i].ID, "superseded"); err != nil {
				return nil, err
			}
		}
		c, err := s.createFromCandidate(ctx, cand)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Action: ActionSuperseded, Clause: c}, nil

	case RelationCoexistent:
		c, err := s.createFromCandidate(ctx, cand)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Action: ActionInsert, Clause: c}, nil

	default: // contradiction: insert and record a pending conflict per differing clause
		c, err := s.createFromCandidate(ctx, cand)
		if err != nil {
			return nil, err
		}
		var first *domain.Conflict
		for i := range existing {
			conflict := &domain.Conflict{
				ID:         uuid.NewString(),
				ClauseAID:  existing[i].ID,
				ClauseBID:  c.ID,
				Type:       domain.ConflictContradiction,
				Status:     domain.ConflictPending,
				DetectedAt: time.Now(),
			}
			if err := s.conflicts.Create(ctx, conflict); err != nil {
				return nil, err
			}
			if first == nil {
				first = conflict
			}
		}
		return &IngestResult{Action: ActionConflict, Clause: c, Conflict: first}, nil
	}
}

func (s *IngestService) createFromCandidate(ctx context.Context, cand *domain.Candidate) (*domain.Clause, error) {
	return s.clauses.Create(ctx, &domain.Clause{
		Type:             cand.Type,
		Subject:          cand.Subject,
		Predicate:        cand.Predicate,
		Object:           cand.Object,
		NaturalForm:      cand.NaturalForm,
		Confidence:       cand.Confidence,
		SourceID:         cand.SourceID,
		ExtractionMethod: cand.ExtractionMethod,
		Tags:             cand.Tags,
		Metadata:         cand.Metadata,
	})
}

// ProcessBatch ingests candidates one by one; a failing candidate is counted
// and the batch continues.
func (s *IngestService) ProcessBatch(ctx context.Context, cands []domain.Candidate) *BatchReport {
	report := &BatchReport{}
	for i := range cands {
		result, err := s.ProcessNewClause(ctx, &cands[i])
		if err != nil {
			report.Errors++
			s.logger.Warn("candidate ingestion failed",
				zap.String("subject", cands[i].Subject),
				zap.String("predicate", cands[i].Predicate),
				zap.Error(err))
			continue
		}
		switch result.Action {
		case ActionInsert, ActionSuperseded:
			report.Loaded++
		case ActionReinforced:
			report.Reinforced++
		case ActionConflict:
			report.Loaded++
			report.Conflicts++
		case ActionSkipped:
			report.Skipped++
		}
	}
	return report
}

// ContentHash fingerprints raw input for source-level dedup.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ExtractAndProcess registers a source for the raw text and runs extracted
// candidates through the pipeline. Identical raw input (same content hash)
// short-circuits with an empty report.
func (s *IngestService) ExtractAndProcess(ctx context.Context, text string, src *domain.Source) (*BatchReport, error) {
	if s.extractor == nil {
		return nil, ErrExtractorUnavailable
	}

	if src == nil {
		src = &domain.Source{Type: "text"}
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.ContentHash == "" {
		src.ContentHash = ContentHash(text)
	}
	now := time.Now()
	if src.OccurredAt.IsZero() {
		src.OccurredAt = now
	}
	if src.RecordedAt.IsZero() {
		src.RecordedAt = now
	}

	created, err := s.sources.Upsert(ctx, src)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Info("duplicate source content, skipping extraction",
			zap.String("source_id", src.ID),
			zap.String("content_hash", src.ContentHash))
		return &BatchReport{}, nil
	}

	cands, err := s.extractor.Extract(ctx, text, map[string]string{"source_id": src.ID})
	if err != nil {
		return nil, err
	}
	for i := range cands {
		if cands[i].SourceID == "" {
			cands[i].SourceID = src.ID
		}
	}
	return s.ProcessBatch(ctx, cands), nil
}
