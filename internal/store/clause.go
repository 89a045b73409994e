package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const clauseColumns = `id, type, subject, predicate, object, natural_form,
	valid_from, valid_to, recorded_at,
	confidence, decay_rate, reinforcement_count,
	source_id, extraction_method,
	last_accessed, access_count, tags, metadata`

type ClauseStore struct {
	db *pgxpool.Pool
}

func NewClauseStore(db *pgxpool.Pool) *ClauseStore {
	return &ClauseStore{db: db}
}

func scanClause(row pgx.Row) (*domain.Clause, error) {
	c := &domain.Clause{}
	var sourceID *string
	err := row.Scan(
		&c.ID, &c.Type, &c.Subject, &c.Predicate, &c.Object, &c.NaturalForm,
		&c.ValidFrom, &c.ValidTo, &c.RecordedAt,
		&c.Confidence, &c.DecayRate, &c.Reinforcements,
		&sourceID, &c.ExtractionMethod,
		&c.LastAccessed, &c.AccessCount, &c.Tags, &c.Metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sourceID != nil {
		c.SourceID = *sourceID
	}
	return c, nil
}

func collectClauses(rows pgx.Rows) ([]domain.Clause, error) {
	defer rows.Close()
	var clauses []domain.Clause
	for rows.Next() {
		c, err := scanClause(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clause row: %w", err)
		}
		clauses = append(clauses, *c)
	}
	return clauses, rows.Err()
}

func (s *ClauseStore) Create(ctx context.Context, c *domain.Clause) error {
	var sourceID *string
	if c.SourceID != "" {
		sourceID = &c.SourceID
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO clauses (id, type, subject, predicate, object, natural_form,
		     valid_from, valid_to, recorded_at,
		     confidence, decay_rate, reinforcement_count,
		     source_id, extraction_method, last_accessed, access_count, tags, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		c.ID, c.Type, c.Subject, c.Predicate, c.Object, c.NaturalForm,
		c.ValidFrom, c.ValidTo, c.RecordedAt,
		c.Confidence, c.DecayRate, c.Reinforcements,
		sourceID, c.ExtractionMethod, c.LastAccessed, c.AccessCount, c.Tags, c.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert clause: %w", err)
	}
	return nil
}

func (s *ClauseStore) GetByID(ctx context.Context, id string) (*domain.Clause, error) {
	return scanClause(s.db.QueryRow(ctx,
		`SELECT `+clauseColumns+` FROM clauses WHERE id = $1`, id))
}

func (s *ClauseStore) List(ctx context.Context, f domain.ClauseFilter) ([]domain.Clause, error) {
	conditions := []string{"TRUE"}
	var args []any

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

	sortCol := "confidence"
	switch f.SortBy {
	case domain.SortByRecordedAt:
		sortCol = "recorded_at"
	case domain.SortByLastAccessed:
		sortCol = "last_accessed"
	case domain.SortByAccessCount:
		sortCol = "access_count"
	}
	dir := "DESC"
	if f.SortAsc {
		dir = "ASC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	limitParam := len(args) + 1
	args = append(args, limit)
	offsetParam := len(args) + 1
	args = append(args, f.Offset)

	query := fmt.Sprintf(
		`SELECT %s FROM clauses WHERE %s ORDER BY %s %s NULLS LAST, recorded_at DESC LIMIT $%d OFFSET $%d`,
		clauseColumns, strings.Join(conditions, " AND "), sortCol, dir, limitParam, offsetParam,
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clauses: %w", err)
	}
	return collectClauses(rows)
}

func (s *ClauseStore) ActiveBySubjectPredicate(ctx context.Context, subject, predicate string) ([]domain.Clause, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+clauseColumns+` FROM clauses
		 WHERE subject = $1 AND predicate = $2 AND valid_to IS NULL
		 ORDER BY recorded_at DESC`,
		subject, predicate,
	)
	if err != nil {
		return nil, fmt.Errorf("active by subject/predicate: %w", err)
	}
	return collectClauses(rows)
}

func (s *ClauseStore) ActiveBySubject(ctx context.Context, subject string, minConfidence float64, limit int) ([]domain.Clause, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+clauseColumns+` FROM clauses
		 WHERE subject = $1 AND valid_to IS NULL AND confidence >= $2
		 ORDER BY confidence DESC LIMIT $3`,
		subject, minConfidence, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("active by subject: %w", err)
	}
	return collectClauses(rows)
}

func (s *ClauseStore) UpdateFields(ctx context.Context, id string, u domain.ClauseUpdate) (*domain.Clause, error) {
	sets := []string{}
	var args []any

	if u.Confidence != nil {
		sets = append(sets, fmt.Sprintf("confidence = $%d", len(args)+1))
		args = append(args, domain.ClampConfidence(*u.Confidence))
	}
	if u.DecayRate != nil {
		sets = append(sets, fmt.Sprintf("decay_rate = $%d", len(args)+1))
		args = append(args, *u.DecayRate)
	}
	if u.Tags != nil {
		sets = append(sets, fmt.Sprintf("tags = $%d", len(args)+1))
		args = append(args, *u.Tags)
	}
	if u.Metadata != nil {
		sets = append(sets, fmt.Sprintf("metadata = $%d", len(args)+1))
		args = append(args, u.Metadata)
	}
	if u.NaturalForm != nil {
		sets = append(sets, fmt.Sprintf("natural_form = $%d", len(args)+1))
		args = append(args, *u.NaturalForm)
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}

	idParam := len(args) + 1
	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE clauses SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), idParam, clauseColumns,
	)
	return scanClause(s.db.QueryRow(ctx, query, args...))
}

func (s *ClauseStore) Invalidate(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE clauses SET valid_to = $2 WHERE id = $1 AND valid_to IS NULL`,
		id, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Reinforce is a single-statement read-modify-write so concurrent
// reinforcements on the same clause serialize at the row level.
func (s *ClauseStore) Reinforce(ctx context.Context, id string, amount float64) (float64, float64, error) {
	var prev, next float64
	err := s.db.QueryRow(ctx,
		`UPDATE clauses c
		 SET confidence = LEAST(c.confidence + $2, 1.0),
		     reinforcement_count = c.reinforcement_count + 1
		 FROM (SELECT confidence FROM clauses WHERE id = $1 FOR UPDATE) old
		 WHERE c.id = $1
		 RETURNING old.confidence, c.confidence`,
		id, amount,
	).Scan(&prev, &next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrNotFound
		}
		return 0, 0, fmt.Errorf("reinforce clause: %w", err)
	}
	return prev, next, nil
}

func (s *ClauseStore) UpdateConfidence(ctx context.Context, id string, confidence float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE clauses SET confidence = $2 WHERE id = $1`,
		id, domain.ClampConfidence(confidence),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ClauseStore) ArchiveWithConfidence(ctx context.Context, id string, confidence float64, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE clauses SET confidence = $2, valid_to = $3 WHERE id = $1 AND valid_to IS NULL`,
		id, domain.ClampConfidence(confidence), at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ClauseStore) RecordAccess(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE clauses SET access_count = access_count + 1, last_accessed = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ClauseStore) ListActiveForDecay(ctx context.Context, minConfidence float64) ([]domain.Clause, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+clauseColumns+` FROM clauses
		 WHERE valid_to IS NULL AND confidence > $1
		 ORDER BY last_accessed ASC NULLS FIRST`,
		minConfidence,
	)
	if err != nil {
		return nil, fmt.Errorf("list for decay: %w", err)
	}
	return collectClauses(rows)
}
