package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "clauses: SPO memory units with bitemporal validity",
		SQL: `
CREATE TABLE clauses (
    id                  TEXT PRIMARY KEY,
    type                TEXT NOT NULL,
    subject             TEXT NOT NULL,
    predicate           TEXT NOT NULL,
    object              TEXT NOT NULL,
    natural_form        TEXT NOT NULL DEFAULT '',

    valid_from          TIMESTAMPTZ NOT NULL,
    valid_to            TIMESTAMPTZ,
    recorded_at         TIMESTAMPTZ NOT NULL,

    confidence          DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    decay_rate          DOUBLE PRECISION NOT NULL DEFAULT 0.05 CHECK (decay_rate >= 0),
    reinforcement_count INTEGER NOT NULL DEFAULT 0 CHECK (reinforcement_count >= 0),

    source_id           TEXT,
    extraction_method   TEXT NOT NULL DEFAULT '',

    last_accessed       TIMESTAMPTZ,
    access_count        INTEGER NOT NULL DEFAULT 0,

    tags                TEXT[] NOT NULL DEFAULT '{}',
    metadata            JSONB NOT NULL DEFAULT '{}',

    search_tsv          TSVECTOR GENERATED ALWAYS AS (
        to_tsvector('english', natural_form || ' ' || subject || ' ' || predicate || ' ' || object)
    ) STORED
);

CREATE INDEX idx_clauses_subject_predicate ON clauses (subject, predicate) WHERE valid_to IS NULL;
CREATE INDEX idx_clauses_confidence        ON clauses (confidence DESC) WHERE valid_to IS NULL;
CREATE INDEX idx_clauses_search            ON clauses USING GIN (search_tsv);
`,
	},
	{
		Version:     2,
		Description: "sources: provenance records with unique content hash",
		SQL: `
CREATE TABLE sources (
    id           TEXT PRIMARY KEY,
    type         TEXT NOT NULL,
    content_hash TEXT NOT NULL UNIQUE,
    occurred_at  TIMESTAMPTZ NOT NULL,
    recorded_at  TIMESTAMPTZ NOT NULL,
    session_id   TEXT NOT NULL DEFAULT '',
    agent_id     TEXT NOT NULL DEFAULT '',
    tool         TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT ''
);
`,
	},
	{
		Version:     3,
		Description: "conflicts: detected contradictions between clauses",
		SQL: `
CREATE TABLE conflicts (
    id            TEXT PRIMARY KEY,
    clause_a_id   TEXT NOT NULL REFERENCES clauses(id),
    clause_b_id   TEXT NOT NULL REFERENCES clauses(id),
    conflict_type TEXT NOT NULL CHECK (conflict_type IN ('contradiction', 'supersession', 'ambiguity')),
    status        TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'auto_resolved', 'user_resolved', 'ignored')),
    resolution    TEXT NOT NULL DEFAULT '',
    detected_at   TIMESTAMPTZ NOT NULL,
    resolved_at   TIMESTAMPTZ
);

CREATE INDEX idx_conflicts_status ON conflicts (status);
`,
	},
	{
		Version:     4,
		Description: "decay_log and access_log: append-only audit trails",
		SQL: `
CREATE TABLE decay_log (
    id                  BIGSERIAL PRIMARY KEY,
    clause_id           TEXT NOT NULL,
    previous_confidence DOUBLE PRECISION NOT NULL,
    new_confidence      DOUBLE PRECISION NOT NULL,
    reason              TEXT NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_decay_log_clause ON decay_log (clause_id, created_at DESC);

CREATE TABLE access_log (
    id          BIGSERIAL PRIMARY KEY,
    clause_id   TEXT NOT NULL,
    access_type TEXT NOT NULL,
    context     TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_access_log_clause ON access_log (clause_id, created_at DESC);
`,
	},
	{
		Version:     5,
		Description: "clause_embeddings: pgvector side table for semantic similarity",
		SQL: `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE clause_embeddings (
    clause_id  TEXT PRIMARY KEY REFERENCES clauses(id),
    embedding  VECTOR(1536) NOT NULL,
    model      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
}

// Migrate applies pending migrations in order, tracking the applied version
// in schema_migrations.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
