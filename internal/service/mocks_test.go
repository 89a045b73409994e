package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clausebank/clausebank/internal/domain"
	"github.com/clausebank/clausebank/internal/store"
)

// mockClauseStore implements domain.ClauseStore for testing.
type mockClauseStore struct {
	clauses map[string]*domain.Clause

	failReinforce error
	failCreate    error
}

func newMockClauseStore() *mockClauseStore {
	return &mockClauseStore{clauses: make(map[string]*domain.Clause)}
}

func (m *mockClauseStore) put(c *domain.Clause) *domain.Clause {
	if c.ID == "" {
		c.ID = NewClauseID()
	}
	if c.RecordedAt.IsZero() {
		c.RecordedAt = time.Now()
	}
	if c.ValidFrom.IsZero() {
		c.ValidFrom = c.RecordedAt
	}
	m.clauses[c.ID] = c
	return c
}

func (m *mockClauseStore) Create(ctx context.Context, c *domain.Clause) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	m.clauses[c.ID] = c
	return nil
}

func (m *mockClauseStore) GetByID(ctx context.Context, id string) (*domain.Clause, error) {
	c, ok := m.clauses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockClauseStore) List(ctx context.Context, f domain.ClauseFilter) ([]domain.Clause, error) {
	var results []domain.Clause
	for _, c := range m.clauses {
		if !f.IncludeExpired && !c.Active() {
			continue
		}
		if c.Confidence < f.MinConfidence {
			continue
		}
		if len(f.Types) > 0 {
			found := false
			for _, t := range f.Types {
				if c.Type == t {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		results = append(results, *c)
	}
	sort.Slice(results, func(i, j int) bool {
		if f.SortBy == domain.SortByConfidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].RecordedAt.After(results[j].RecordedAt)
	})
	if f.Limit > 0 && len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results, nil
}

func (m *mockClauseStore) ActiveBySubjectPredicate(ctx context.Context, subject, predicate string) ([]domain.Clause, error) {
	var results []domain.Clause
	for _, c := range m.clauses {
		if c.Active() && c.Subject == subject && c.Predicate == predicate {
			results = append(results, *c)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *mockClauseStore) ActiveBySubject(ctx context.Context, subject string, minConfidence float64, limit int) ([]domain.Clause, error) {
	var results []domain.Clause
	for _, c := range m.clauses {
		if c.Active() && c.Subject == subject && c.Confidence >= minConfidence {
			results = append(results, *c)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Confidence > results[j].Confidence })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *mockClauseStore) UpdateFields(ctx context.Context, id string, u domain.ClauseUpdate) (*domain.Clause, error) {
	c, ok := m.clauses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if u.Confidence != nil {
		c.Confidence = domain.ClampConfidence(*u.Confidence)
	}
	if u.DecayRate != nil {
		c.DecayRate = *u.DecayRate
	}
	if u.Tags != nil {
		c.Tags = *u.Tags
	}
	if u.NaturalForm != nil {
		c.NaturalForm = *u.NaturalForm
	}
	if u.Metadata != nil {
		c.Metadata = u.Metadata
	}
	copied := *c
	return &copied, nil
}

func (m *mockClauseStore) Invalidate(ctx context.Context, id string, at time.Time) (bool, error) {
	c, ok := m.clauses[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if c.ValidTo != nil {
		return false, nil
	}
	c.ValidTo = &at
	return true, nil
}

func (m *mockClauseStore) Reinforce(ctx context.Context, id string, amount float64) (float64, float64, error) {
	if m.failReinforce != nil {
		return 0, 0, m.failReinforce
	}
	c, ok := m.clauses[id]
	if !ok {
		return 0, 0, store.ErrNotFound
	}
	prev := c.Confidence
	c.Confidence = domain.ClampConfidence(prev + amount)
	c.Reinforcements++
	now := time.Now()
	c.LastAccessed = &now
	return prev, c.Confidence, nil
}

func (m *mockClauseStore) UpdateConfidence(ctx context.Context, id string, confidence float64) error {
	c, ok := m.clauses[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Confidence = confidence
	return nil
}

func (m *mockClauseStore) ArchiveWithConfidence(ctx context.Context, id string, confidence float64, at time.Time) error {
	c, ok := m.clauses[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Confidence = confidence
	c.ValidTo = &at
	return nil
}

func (m *mockClauseStore) RecordAccess(ctx context.Context, id string) error {
	c, ok := m.clauses[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	c.LastAccessed = &now
	c.AccessCount++
	return nil
}

func (m *mockClauseStore) ListActiveForDecay(ctx context.Context, minConfidence float64) ([]domain.Clause, error) {
	var results []domain.Clause
	for _, c := range m.clauses {
		if c.Active() {
			results = append(results, *c)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// mockSourceStore implements domain.SourceStore keyed by content hash.
type mockSourceStore struct {
	sources map[string]*domain.Source // by id
	hashes  map[string]string         // content hash -> id
}

func newMockSourceStore() *mockSourceStore {
	return &mockSourceStore{
		sources: make(map[string]*domain.Source),
		hashes:  make(map[string]string),
	}
}

func (m *mockSourceStore) Upsert(ctx context.Context, s *domain.Source) (bool, error) {
	if id, ok := m.hashes[s.ContentHash]; ok {
		*s = *m.sources[id]
		return false, nil
	}
	copied := *s
	m.sources[s.ID] = &copied
	m.hashes[s.ContentHash] = s.ID
	return true, nil
}

func (m *mockSourceStore) GetByID(ctx context.Context, id string) (*domain.Source, error) {
	s, ok := m.sources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

// mockConflictStore implements domain.ConflictStore.
type mockConflictStore struct {
	conflicts map[string]*domain.Conflict
}

func newMockConflictStore() *mockConflictStore {
	return &mockConflictStore{conflicts: make(map[string]*domain.Conflict)}
}

func (m *mockConflictStore) Create(ctx context.Context, c *domain.Conflict) error {
	copied := *c
	m.conflicts[c.ID] = &copied
	return nil
}

func (m *mockConflictStore) GetByID(ctx context.Context, id string) (*domain.Conflict, error) {
	c, ok := m.conflicts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *mockConflictStore) ListPending(ctx context.Context) ([]domain.Conflict, error) {
	var results []domain.Conflict
	for _, c := range m.conflicts {
		if c.Status == domain.ConflictPending {
			results = append(results, *c)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *mockConflictStore) UpdateStatus(ctx context.Context, id string, status domain.ConflictStatus, resolution string, at time.Time) error {
	c, ok := m.conflicts[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	c.Resolution = resolution
	c.ResolvedAt = &at
	return nil
}

// mockAuditStore records appended entries in order.
type mockAuditStore struct {
	decays   []domain.DecayLogEntry
	accesses []domain.AccessLogEntry
}

func newMockAuditStore() *mockAuditStore {
	return &mockAuditStore{}
}

func (m *mockAuditStore) AppendDecay(ctx context.Context, e *domain.DecayLogEntry) error {
	e.ID = int64(len(m.decays) + 1)
	e.CreatedAt = time.Now()
	m.decays = append(m.decays, *e)
	return nil
}

func (m *mockAuditStore) AppendAccess(ctx context.Context, e *domain.AccessLogEntry) error {
	e.ID = int64(len(m.accesses) + 1)
	e.CreatedAt = time.Now()
	m.accesses = append(m.accesses, *e)
	return nil
}

func (m *mockAuditStore) ListDecayByClause(ctx context.Context, clauseID string, limit int) ([]domain.DecayLogEntry, error) {
	var results []domain.DecayLogEntry
	for i := len(m.decays) - 1; i >= 0; i-- {
		if m.decays[i].ClauseID == clauseID {
			results = append(results, m.decays[i])
		}
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// mockTextIndex scores active clauses by naive token overlap with the query,
// scaled so the ordering is deterministic.
type mockTextIndex struct {
	clauses *mockClauseStore
	err     error
}

func (m *mockTextIndex) Query(ctx context.Context, text string, f domain.ClauseFilter) ([]domain.ScoredClause, error) {
	if m.err != nil {
		return nil, m.err
	}
	queryTokens := tokenSet(text)
	var results []domain.ScoredClause
	for _, c := range m.clauses.clauses {
		if !f.IncludeExpired && !c.Active() {
			continue
		}
		if c.Confidence < f.MinConfidence {
			continue
		}
		if len(f.Types) > 0 {
			found := false
			for _, ct := range f.Types {
				if c.Type == ct {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		matched := 0
		for t := range tokenSet(c.NaturalForm + " " + c.Subject + " " + c.Object) {
			if _, ok := queryTokens[t]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, domain.ScoredClause{Clause: *c, Score: float64(matched)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if f.Limit > 0 && len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results, nil
}

// mockSimilarity returns canned matches.
type mockSimilarity struct {
	matches []domain.SimilarityMatch
	err     error
}

func (m *mockSimilarity) FindSimilar(ctx context.Context, text string, limit int, minSimilarity float64) ([]domain.SimilarityMatch, error) {
	if m.err != nil {
		return nil, m.err
	}
	var results []domain.SimilarityMatch
	for _, match := range m.matches {
		if match.Similarity >= minSimilarity {
			results = append(results, match)
		}
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// mockExtractor splits input lines of the form "subject|predicate|object".
type mockExtractor struct {
	err error
}

func (m *mockExtractor) Extract(ctx context.Context, text string, _ map[string]string) ([]domain.Candidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	var cands []domain.Candidate
	for _, line := range strings.Split(text, "\n") {
		parts := strings.Split(strings.TrimSpace(line), "|")
		if len(parts) != 3 {
			continue
		}
		cands = append(cands, domain.Candidate{
			Type:        domain.ClauseTypeFact,
			Subject:     parts[0],
			Predicate:   parts[1],
			Object:      parts[2],
			NaturalForm: fmt.Sprintf("%s %s %s", parts[0], parts[1], parts[2]),
		})
	}
	return cands, nil
}
