package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SourceStore struct {
	db *pgxpool.Pool
}

func NewSourceStore(db *pgxpool.Pool) *SourceStore {
	return &SourceStore{db: db}
}

// Upsert inserts the source unless its content hash is already recorded, in
// which case the existing row is loaded into s. The unique hash is what
// dedupes ingestion of identical raw inputs.
func (s *SourceStore) Upsert(ctx context.Context, src *domain.Source) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO sources (id, type, content_hash, occurred_at, recorded_at, session_id, agent_id, tool, url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (content_hash) DO NOTHING`,
		src.ID, src.Type, src.ContentHash, src.OccurredAt, src.RecordedAt,
		src.SessionID, src.AgentID, src.Tool, src.URL,
	)
	if err != nil {
		return false, fmt.Errorf("insert source: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	existing, err := s.getByHash(ctx, src.ContentHash)
	if err != nil {
		return false, err
	}
	*src = *existing
	return false, nil
}

func (s *SourceStore) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT id, type, content_hash, occurred_at, recorded_at, session_id, agent_id, tool, url
		 FROM sources WHERE id = $1`, id))
}

func (s *SourceStore) getByHash(ctx context.Context, hash string) (*domain.Source, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT id, type, content_hash, occurred_at, recorded_at, session_id, agent_id, tool, url
		 FROM sources WHERE content_hash = $1`, hash))
}

func (s *SourceStore) scanOne(row pgx.Row) (*domain.Source, error) {
	src := &domain.Source{}
	err := row.Scan(&src.ID, &src.Type, &src.ContentHash, &src.OccurredAt, &src.RecordedAt,
		&src.SessionID, &src.AgentID, &src.Tool, &src.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return src, nil
}
