package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TextIndex ranks clauses by Postgres full-text relevance over the generated
// search_tsv column. The ts_rank value is exposed as an opaque relative
// score; callers normalize before fusing it with other signals.
type TextIndex struct {
	db *pgxpool.Pool
}

func NewTextIndex(db *pgxpool.Pool) *TextIndex {
	return &TextIndex{db: db}
}

func (s *TextIndex) Query(ctx context.Context, text string, f domain.ClauseFilter) ([]domain.ScoredClause, error) {
	conditions := []string{"search_tsv @@ plainto_tsquery('english', $1)"}
	args := []any{text}

	if !f.IncludeExpired {
		conditions = append(conditions, "valid_to IS NULL")
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("type = ANY($%d)", len(args)+1))
		args = append(args, types)
	}
	if f.MinConfidence > 0 {
		conditions = append(conditions, fmt.Sprintf("confidence >= $%d", len(args)+1))
		args = append(args, f.MinConfidence)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	limitParam := len(args) + 1
	args = append(args, limit)

	query := fmt.Sprintf(
		`SELECT %s, ts_rank(search_tsv, plainto_tsquery('english', $1)) AS score
		 FROM clauses
		 WHERE %s
		 ORDER BY score DESC
		 LIMIT $%d`,
		clauseColumns, strings.Join(conditions, " AND "), limitParam,
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("text query: %w", err)
	}
	defer rows.Close()

	var results []domain.ScoredClause
	for rows.Next() {
		var sc domain.ScoredClause
		var sourceID *string
		err := rows.Scan(
			&sc.ID, &sc.Type, &sc.Subject, &sc.Predicate, &sc.Object, &sc.NaturalForm,
			&sc.ValidFrom, &sc.ValidTo, &sc.RecordedAt,
			&sc.Confidence, &sc.DecayRate, &sc.Reinforcements,
			&sourceID, &sc.ExtractionMethod,
			&sc.LastAccessed, &sc.AccessCount, &sc.Tags, &sc.Metadata,
			&sc.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scored clause: %w", err)
		}
		if sourceID != nil {
			sc.SourceID = *sourceID
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}
