package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConflictStore struct {
	db *pgxpool.Pool
}

func NewConflictStore(db *pgxpool.Pool) *ConflictStore {
	return &ConflictStore{db: db}
}

func (s *ConflictStore) Create(ctx context.Context, c *domain.Conflict) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO conflicts (id, clause_a_id, clause_b_id, conflict_type, status, resolution, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ClauseAID, c.ClauseBID, c.Type, c.Status, c.Resolution, c.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

func (s *ConflictStore) GetByID(ctx context.Context, id string) (*domain.Conflict, error) {
	c := &domain.Conflict{}
	err := s.db.QueryRow(ctx,
		`SELECT id, clause_a_id, clause_b_id, conflict_type, status, resolution, detected_at, resolved_at
		 FROM conflicts WHERE id = $1`, id,
	).Scan(&c.ID, &c.ClauseAID, &c.ClauseBID, &c.Type, &c.Status, &c.Resolution, &c.DetectedAt, &c.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ConflictStore) ListPending(ctx context.Context) ([]domain.Conflict, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, clause_a_id, clause_b_id, conflict_type, status, resolution, detected_at, resolved_at
		 FROM conflicts WHERE status = 'pending' ORDER BY detected_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []domain.Conflict
	for rows.Next() {
		var c domain.Conflict
		if err := rows.Scan(&c.ID, &c.ClauseAID, &c.ClauseBID, &c.Type, &c.Status, &c.Resolution, &c.DetectedAt, &c.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan conflict row: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func (s *ConflictStore) UpdateStatus(ctx context.Context, id string, status domain.ConflictStatus, resolution string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE conflicts SET status = $2, resolution = $3, resolved_at = $4 WHERE id = $1`,
		id, status, resolution, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
