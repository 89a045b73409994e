package store

import (
	"context"
	"fmt"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PgvectorSimilarity implements the EmbeddingSimilarity collaborator over the
// clause_embeddings side table. Vector computation is delegated to the
// injected embedding client; similarity is cosine in [0,1].
type PgvectorSimilarity struct {
	db    *pgxpool.Pool
	embed domain.EmbeddingClient
}

func NewPgvectorSimilarity(db *pgxpool.Pool, embed domain.EmbeddingClient) *PgvectorSimilarity {
	return &PgvectorSimilarity{db: db, embed: embed}
}

func (s *PgvectorSimilarity) FindSimilar(ctx context.Context, text string, limit int, minSimilarity float64) ([]domain.SimilarityMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	vector, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vec := pgvector.NewVector(vector)

	rows, err := s.db.Query(ctx,
		`SELECT e.clause_id, 1 - (e.embedding <=> $1) AS similarity
		 FROM clause_embeddings e
		 JOIN clauses c ON c.id = e.clause_id
		 WHERE c.valid_to IS NULL AND 1 - (e.embedding <=> $1) >= $2
		 ORDER BY similarity DESC
		 LIMIT $3`,
		vec, minSimilarity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var matches []domain.SimilarityMatch
	for rows.Next() {
		var m domain.SimilarityMatch
		if err := rows.Scan(&m.ClauseID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Index stores or replaces the embedding for a clause.
func (s *PgvectorSimilarity) Index(ctx context.Context, clauseID, text, model string) error {
	vector, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed clause: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO clause_embeddings (clause_id, embedding, model)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (clause_id) DO UPDATE SET embedding = $2, model = $3, created_at = NOW()`,
		clauseID, pgvector.NewVector(vector), model,
	)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}
