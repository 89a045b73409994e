package store

import (
	"context"
	"fmt"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditStore appends to the decay_log and access_log trails. Rows are never
// updated or deleted.
type AuditStore struct {
	db *pgxpool.Pool
}

func NewAuditStore(db *pgxpool.Pool) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) AppendDecay(ctx context.Context, e *domain.DecayLogEntry) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO decay_log (clause_id, previous_confidence, new_confidence, reason)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		e.ClauseID, e.PreviousConfidence, e.NewConfidence, e.Reason,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append decay log: %w", err)
	}
	return nil
}

func (s *AuditStore) AppendAccess(ctx context.Context, e *domain.AccessLogEntry) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO access_log (clause_id, access_type, context)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		e.ClauseID, e.AccessType, e.Context,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	return nil
}

func (s *AuditStore) ListDecayByClause(ctx context.Context, clauseID string, limit int) ([]domain.DecayLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, clause_id, previous_confidence, new_confidence, reason, created_at
		 FROM decay_log WHERE clause_id = $1 ORDER BY created_at DESC LIMIT $2`,
		clauseID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decay log: %w", err)
	}
	defer rows.Close()

	var entries []domain.DecayLogEntry
	for rows.Next() {
		var e domain.DecayLogEntry
		if err := rows.Scan(&e.ID, &e.ClauseID, &e.PreviousConfidence, &e.NewConfidence, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decay log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
