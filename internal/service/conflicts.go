package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/store"
	"go.uber.org/zap"
)

// Relation classifies how a candidate relates to an existing active clause
// on the same (subject, predicate).
type Relation int

const (
	// RelationIdentical: objects equal, candidate reinforces the existing clause.
	RelationIdentical Relation = iota
	// RelationSupersession: singleton predicate, candidate replaces the existing clause.
	RelationSupersession
	// RelationCoexistent: multi-value predicate, both clauses stay active.
	RelationCoexistent
	// RelationContradiction: open predicate with differing objects.
	RelationContradiction
)

func (r Relation) String() string {
	switch r {
	case RelationIdentical:
		return "identical"
	case RelationSupersession:
		return "supersession"
	case RelationCoexistent:
		return "coexistent"
	default:
		return "contradiction"
	}
}

// ClassifyRelation is the decision table over the two independent axes:
// object equality and predicate class. Equality wins regardless of class.
func ClassifyRelation(class domain.PredicateClass, objectsEqual bool) Relation {
	if objectsEqual {
		return RelationIdentical
	}
	switch class {
	case domain.PredicateSingleton:
		return RelationSupersession
	case domain.PredicateMultiValue:
		return RelationCoexistent
	default:
		return RelationContradiction
	}
}

// ObjectsEqual is the identity test for clause objects: case-insensitive
// string equality. This under-matches rephrasings and over-matches short
// homonyms; it is kept deliberately, matching the engine's contract.
func ObjectsEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ConflictConfig controls resolution behavior. It is owned by the resolver's
// thread-safe config cell, never shared as an ambient global.
type ConflictConfig struct {
	Strategy domain.ResolutionStrategy
	// PreserveHistory links invalidated clause ids into the kept clause's
	// metadata under "supersedes" when resolving via merge_history.
	PreserveHistory bool
}

func DefaultConflictConfig() ConflictConfig {
	return ConflictConfig{Strategy: domain.StrategyMergeHistory, PreserveHistory: true}
}

// ResolutionOutcome is the terminal state of one resolution attempt.
type ResolutionOutcome string

const (
	OutcomeResolved      ResolutionOutcome = "resolved"
	OutcomeManual        ResolutionOutcome = "requires_manual_resolution"
	OutcomeClauseDeleted ResolutionOutcome = "clause_deleted"
	OutcomeSkipped       ResolutionOutcome = "skipped"
)

type ResolutionResult struct {
	ConflictID    string            `json:"conflict_id"`
	Outcome       ResolutionOutcome `json:"outcome"`
	KeptID        string            `json:"kept_id,omitempty"`
	InvalidatedID string            `json:"invalidated_id,omitempty"`
	Strategy      domain.ResolutionStrategy `json:"strategy"`
}

// ResolveReport aggregates a resolveAll run. Individual failures never abort
// the batch.
type ResolveReport struct {
	Resolved int `json:"resolved"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// ConflictResolver detects contradictions during ingestion and settles
// pending conflicts under a configured strategy.
type ConflictResolver struct {
	clauses   domain.ClauseStore
	conflicts domain.ConflictStore
	audit     domain.AuditStore
	policy    *domain.PredicatePolicy
	logger    *zap.Logger

	mu  sync.RWMutex
	cfg ConflictConfig
}

func NewConflictResolver(cs domain.ClauseStore, conflicts domain.ConflictStore, audit domain.AuditStore, policy *domain.PredicatePolicy, cfg ConflictConfig, logger *zap.Logger) *ConflictResolver {
	if cfg.Strategy == "" {
		cfg.Strategy = domain.StrategyMergeHistory
	}
	return &ConflictResolver{
		clauses:   cs,
		conflicts: conflicts,
		audit:     audit,
		policy:    policy,
		logger:    logger,
		cfg:       cfg,
	}
}

func (r *ConflictResolver) Policy() *domain.PredicatePolicy {
	return r.policy
}

func (r *ConflictResolver) Config() ConflictConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

func (r *ConflictResolver) SetStrategy(s domain.ResolutionStrategy) error {
	if !domain.ValidResolutionStrategy(string(s)) {
		return fmt.Errorf("unknown resolution strategy %q", s)
	}
	r.mu.Lock()
	r.cfg.Strategy = s
	r.mu.Unlock()
	return nil
}

func (r *ConflictResolver) ListPending(ctx context.Context) ([]domain.Conflict, error) {
	return r.conflicts.ListPending(ctx)
}

// Resolve settles one conflict. An empty strategy uses the configured
// default. Resolving a conflict whose clauses no longer exist auto-resolves
// it as clause_deleted; strategy manual changes nothing.
func (r *ConflictResolver) Resolve(ctx context.Context, conflictID string, strategy domain.ResolutionStrategy) (*ResolutionResult, error) {
	conflict, err := r.conflicts.GetByID(ctx, conflictID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}
	if conflict.Status != domain.ConflictPending {
		return &ResolutionResult{ConflictID: conflictID, Outcome: OutcomeSkipped, Strategy: strategy}, nil
	}

	if strategy == "" {
		strategy = r.Config().Strategy
	}
	if !domain.ValidResolutionStrategy(string(strategy)) {
		return nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}

	if strategy == domain.StrategyManual {
		return &ResolutionResult{ConflictID: conflictID, Outcome: OutcomeManual, Strategy: strategy}, nil
	}

	a, errA := r.clauses.GetByID(ctx, conflict.ClauseAID)
	b, errB := r.clauses.GetByID(ctx, conflict.ClauseBID)
	if errA != nil || errB != nil {
		if (errA != nil && !errors.Is(errA, store.ErrNotFound)) ||
			(errB != nil && !errors.Is(errB, store.ErrNotFound)) {
			if errA != nil {
				return nil, errA
			}
			return nil, errB
		}
		if err := r.conflicts.UpdateStatus(ctx, conflictID, domain.ConflictAutoResolved, "clause_deleted", time.Now()); err != nil {
			return nil, err
		}
		return &ResolutionResult{ConflictID: conflictID, Outcome: OutcomeClauseDeleted, Strategy: strategy}, nil
	}

	kept, dropped := r.pick(strategy, a, b)

	if err := r.invalidate(ctx, dropped, "conflict_resolution"); err != nil {
		return nil, err
	}

	if strategy == domain.StrategyMergeHistory && r.Config().PreserveHistory {
		if err := r.linkSupersedes(ctx, kept, dropped.ID); err != nil {
			r.logger.Warn("failed to link superseded clause",
				zap.String("kept_id", kept.ID),
				zap.String("dropped_id", dropped.ID),
				zap.Error(err))
		}
	}

	resolution := fmt.Sprintf("kept %s via %s", kept.ID, strategy)
	if err := r.conflicts.UpdateStatus(ctx, conflictID, domain.ConflictAutoResolved, resolution, time.Now()); err != nil {
		return nil, err
	}

	return &ResolutionResult{
		ConflictID:    conflictID,
		Outcome:       OutcomeResolved,
		KeptID:        kept.ID,
		InvalidatedID: dropped.ID,
		Strategy:      strategy,
	}, nil
}

// ResolveAll settles every pending conflict, continuing past individual
// failures and reporting counts.
func (r *ConflictResolver) ResolveAll(ctx context.Context, strategy domain.ResolutionStrategy) (*ResolveReport, error) {
	pending, err := r.conflicts.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	report := &ResolveReport{}
	for _, c := range pending {
		result, err := r.Resolve(ctx, c.ID, strategy)
		if err != nil {
			report.Errors++
			r.logger.Warn("conflict resolution failed", zap.String("conflict_id", c.ID), zap.Error(err))
			continue
		}
		switch result.Outcome {
		case OutcomeResolved, OutcomeClauseDeleted:
			report.Resolved++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

// pick chooses the surviving clause. Ties break deterministically on id, so
// repeated resolution of equivalent state yields the same winner.
func (r *ConflictResolver) pick(strategy domain.ResolutionStrategy, a, b *domain.Clause) (kept, dropped *domain.Clause) {
	switch strategy {
	case domain.StrategyHighestConfidence:
		if a.Confidence > b.Confidence {
			return a, b
		}
		if b.Confidence > a.Confidence {
			return b, a
		}
	default: // newest_wins and merge_history share the recency rule
		if a.RecordedAt.After(b.RecordedAt) {
			return a, b
		}
		if b.RecordedAt.After(a.RecordedAt) {
			return b, a
		}
	}
	if a.ID > b.ID {
		return a, b
	}
	return b, a
}

func (r *ConflictResolver) invalidate(ctx context.Context, c *domain.Clause, reason string) error {
	changed, err := r.clauses.Invalidate(ctx, c.ID, time.Now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	err = r.audit.AppendDecay(ctx, &domain.DecayLogEntry{
		ClauseID:           c.ID,
		PreviousConfidence: c.Confidence,
		NewConfidence:      c.Confidence,
		Reason:             reason,
	})
	if err != nil {
		r.logger.Warn("failed to append decay log", zap.String("clause_id", c.ID), zap.Error(err))
	}
	return nil
}

func (r *ConflictResolver) linkSupersedes(ctx context.Context, kept *domain.Clause, droppedID string) error {
	var supersedes []any
	if existing, ok := kept.Metadata["supersedes"].([]any); ok {
		supersedes = existing
	}
	supersedes = append(supersedes, droppedID)

	metadata := make(map[string]any, len(kept.Metadata)+1)
	for k, v := range kept.Metadata {
		metadata[k] = v
	}
	metadata["supersedes"] = supersedes

	_, err := r.clauses.UpdateFields(ctx, kept.ID, domain.ClauseUpdate{Metadata: metadata})
	return err
}
