package service

import (
	"context"
	"errors"
	"time"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/store"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var (
	ErrClauseNotFound   = errors.New("clause not found")
	ErrConflictNotFound = errors.New("conflict not found")
	ErrInvalidType      = errors.New("invalid clause type")
	ErrMissingSPO       = errors.New("subject, predicate and object are required")
)

// DefaultReinforceAmount is the confidence boost for a plain reinforcement.
const DefaultReinforceAmount = 0.05

// NewClauseID returns an opaque, time-sortable identifier.
func NewClauseID() string {
	return ulid.Make().String()
}

// ClauseService owns clause persistence and lifecycle transitions. All
// confidence writes clamp to [0,1]; invalidation is one-way.
type ClauseService struct {
	clauses   domain.ClauseStore
	audit     domain.AuditStore
	textIndex domain.TextIndex
	logger    *zap.Logger

	indexer      domain.EmbeddingIndexer
	indexerModel string
}

func NewClauseService(cs domain.ClauseStore, audit domain.AuditStore, textIndex domain.TextIndex, logger *zap.Logger) *ClauseService {
	return &ClauseService{clauses: cs, audit: audit, textIndex: textIndex, logger: logger}
}

// SetEmbeddingIndexer wires the optional semantic indexing collaborator.
// Without it, clauses are only reachable by keyword.
func (s *ClauseService) SetEmbeddingIndexer(indexer domain.EmbeddingIndexer, model string) {
	s.indexer = indexer
	s.indexerModel = model
}

// Create assigns identity, timestamps, and per-type defaults, then persists
// the clause.
func (s *ClauseService) Create(ctx context.Context, c *domain.Clause) (*domain.Clause, error) {
	if !domain.ValidClauseType(string(c.Type)) {
		return nil, ErrInvalidType
	}
	if c.Subject == "" || c.Predicate == "" || c.Object == "" {
		return nil, ErrMissingSPO
	}

	now := time.Now()
	if c.ID == "" {
		c.ID = NewClauseID()
	}
	if c.ValidFrom.IsZero() {
		c.ValidFrom = now
	}
	if c.RecordedAt.IsZero() {
		c.RecordedAt = now
	}
	if c.Confidence == 0 {
		c.Confidence = domain.DefaultConfidence
	}
	c.Confidence = domain.ClampConfidence(c.Confidence)
	if c.DecayRate == 0 {
		c.DecayRate = c.Type.DefaultDecayRate()
	}

	if err := s.clauses.Create(ctx, c); err != nil {
		return nil, err
	}

	if s.indexer != nil && c.NaturalForm != "" {
		if err := s.indexer.Index(ctx, c.ID, c.NaturalForm, s.indexerModel); err != nil {
			s.logger.Warn("failed to index clause embedding", zap.String("clause_id", c.ID), zap.Error(err))
		}
	}
	return c, nil
}

// Get fetches a clause and, as a side effect, bumps its access counters and
// appends an access-log row. Audit failures are logged, not propagated.
func (s *ClauseService) Get(ctx context.Context, id string) (*domain.Clause, error) {
	c, err := s.clauses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrClauseNotFound
		}
		return nil, err
	}

	if err := s.clauses.RecordAccess(ctx, id); err != nil {
		s.logger.Warn("failed to record clause access", zap.String("clause_id", id), zap.Error(err))
	}
	s.logAccess(ctx, id, "direct", "")

	return c, nil
}

// Search ranks by the text index when a query is given; otherwise it falls
// back to confidence/recency ordering from the store.
func (s *ClauseService) Search(ctx context.Context, query string, f domain.ClauseFilter) ([]domain.ScoredClause, error) {
	if query != "" && s.textIndex != nil {
		return s.textIndex.Query(ctx, query, f)
	}

	if f.SortBy == "" {
		f.SortBy = domain.SortByConfidence
	}
	clauses, err := s.clauses.List(ctx, f)
	if err != nil {
		return nil, err
	}
	results := make([]domain.ScoredClause, len(clauses))
	for i, c := range clauses {
		results[i] = domain.ScoredClause{Clause: c, Score: c.Confidence}
	}
	return results, nil
}

// Update mutates the restricted field set only.
func (s *ClauseService) Update(ctx context.Context, id string, u domain.ClauseUpdate) (*domain.Clause, error) {
	c, err := s.clauses.UpdateFields(ctx, id, u)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrClauseNotFound
		}
		return nil, err
	}
	return c, nil
}

// Invalidate sets valid_to, permanently freezing the clause. Calling it on
// an already invalid clause is a no-op.
func (s *ClauseService) Invalidate(ctx context.Context, id string, reason string) error {
	c, err := s.clauses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClauseNotFound
		}
		return err
	}
	if !c.Active() {
		return nil
	}

	changed, err := s.clauses.Invalidate(ctx, id, time.Now())
	if err != nil {
		return err
	}
	if changed {
		s.logDecay(ctx, id, c.Confidence, c.Confidence, reason)
	}
	return nil
}

// Reinforce boosts confidence by amount (capped at 1.0) and increments the
// reinforcement count, logging the change with reason "reinforcement".
func (s *ClauseService) Reinforce(ctx context.Context, id string, amount float64) (*domain.Clause, error) {
	if amount <= 0 {
		amount = DefaultReinforceAmount
	}
	prev, next, err := s.clauses.Reinforce(ctx, id, amount)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrClauseNotFound
		}
		return nil, err
	}
	s.logDecay(ctx, id, prev, next, "reinforcement")

	c, err := s.clauses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClauseService) logDecay(ctx context.Context, id string, prev, next float64, reason string) {
	err := s.audit.AppendDecay(ctx, &domain.DecayLogEntry{
		ClauseID:           id,
		PreviousConfidence: prev,
		NewConfidence:      next,
		Reason:             reason,
	})
	if err != nil {
		s.logger.Warn("failed to append decay log", zap.String("clause_id", id), zap.Error(err))
	}
}

func (s *ClauseService) logAccess(ctx context.Context, id, accessType, context string) {
	err := s.audit.AppendAccess(ctx, &domain.AccessLogEntry{
		ClauseID:   id,
		AccessType: accessType,
		Context:    context,
	})
	if err != nil {
		s.logger.Warn("failed to append access log", zap.String("clause_id", id), zap.Error(err))
	}
}
