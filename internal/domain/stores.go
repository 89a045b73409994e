package domain

import (
	"context"
	"time"
)

// SortField selects the ordering of a clause search when no query ranking
// applies.
type SortField string

const (
	SortByConfidence   SortField = "confidence"
	SortByRecordedAt   SortField = "recorded_at"
	SortByLastAccessed SortField = "last_accessed"
	SortByAccessCount  SortField = "access_count"
)

// ClauseFilter bounds clause listing and keyword queries.
type ClauseFilter struct {
	Types          []ClauseType
	MinConfidence  float64
	IncludeExpired bool
	Limit          int
	Offset         int
	SortBy         SortField
	SortAsc        bool
}

// ClauseUpdate is the restricted set of mutable clause fields. Nil pointers
// leave the field unchanged; all other clause fields are immutable after
// creation.
type ClauseUpdate struct {
	Confidence  *float64
	DecayRate   *float64
	Tags        *[]string
	Metadata    map[string]any
	NaturalForm *string
}

type ClauseStore interface {
	Create(ctx context.Context, c *Clause) error
	GetByID(ctx context.Context, id string) (*Clause, error)
	List(ctx context.Context, f ClauseFilter) ([]Clause, error)
	ActiveBySubjectPredicate(ctx context.Context, subject, predicate string) ([]Clause, error)
	ActiveBySubject(ctx context.Context, subject string, minConfidence float64, limit int) ([]Clause, error)
	UpdateFields(ctx context.Context, id string, u ClauseUpdate) (*Clause, error)
	// Invalidate sets valid_to once; rows already invalidated are untouched.
	Invalidate(ctx context.Context, id string, at time.Time) (bool, error)
	// Reinforce atomically bumps confidence (capped at 1) and the
	// reinforcement count, returning the previous and new confidence.
	Reinforce(ctx context.Context, id string, amount float64) (prev, next float64, err error)
	UpdateConfidence(ctx context.Context, id string, confidence float64) error
	// ArchiveWithConfidence persists a final decayed confidence and sets
	// valid_to in one statement.
	ArchiveWithConfidence(ctx context.Context, id string, confidence float64, at time.Time) error
	RecordAccess(ctx context.Context, id string) error
	ListActiveForDecay(ctx context.Context, minConfidence float64) ([]Clause, error)
}

type SourceStore interface {
	// Upsert inserts the source or, when its content hash already exists,
	// loads the existing row into s. Returns true when a new row was created.
	Upsert(ctx context.Context, s *Source) (bool, error)
	GetByID(ctx context.Context, id string) (*Source, error)
}

type ConflictStore interface {
	Create(ctx context.Context, c *Conflict) error
	GetByID(ctx context.Context, id string) (*Conflict, error)
	ListPending(ctx context.Context) ([]Conflict, error)
	UpdateStatus(ctx context.Context, id string, status ConflictStatus, resolution string, at time.Time) error
}

type AuditStore interface {
	AppendDecay(ctx context.Context, e *DecayLogEntry) error
	AppendAccess(ctx context.Context, e *AccessLogEntry) error
	ListDecayByClause(ctx context.Context, clauseID string, limit int) ([]DecayLogEntry, error)
}

// ScoredClause is a clause with an opaque relative relevance score attached
// by a retrieval collaborator.
type ScoredClause struct {
	Clause
	Score float64 `json:"score"`
}

// TextIndex ranks clauses by keyword relevance. Scores are treated as an
// opaque relative ordering signal; callers normalize before fusing.
type TextIndex interface {
	Query(ctx context.Context, text string, f ClauseFilter) ([]ScoredClause, error)
}

// SimilarityMatch pairs a clause id with a similarity in [0,1].
type SimilarityMatch struct {
	ClauseID   string
	Similarity float64
}

// EmbeddingSimilarity finds clauses semantically close to a text. The
// collaborator is optional: a nil value configures degraded keyword-only
// retrieval.
type EmbeddingSimilarity interface {
	FindSimilar(ctx context.Context, text string, limit int, minSimilarity float64) ([]SimilarityMatch, error)
}

// EmbeddingClient computes embedding vectors for text. Vector computation is
// external to the engine.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingIndexer persists an embedding for a clause so semantic retrieval
// can find it. Indexing is best-effort; failures must not block writes.
type EmbeddingIndexer interface {
	Index(ctx context.Context, clauseID, text, model string) error
}

// Extractor turns raw text into typed candidate clauses. Extraction is an
// external collaborator; its failures must not corrupt ingestion.
type Extractor interface {
	Extract(ctx context.Context, text string, extractionContext map[string]string) ([]Candidate, error)
}
