package service

import (
	"context"
	"errors"
	"testing"

	"github.com/clausebank/clausebank/internal/domain"
	"go.uber.org/zap"
)

type ingestFixture struct {
	clauses   *mockClauseStore
	sources   *mockSourceStore
	conflicts *mockConflictStore
	audit     *mockAuditStore
	svc       *IngestService
}

func newIngestFixture(dedupCfg DedupConfig) *ingestFixture {
	cs := newMockClauseStore()
	sources := newMockSourceStore()
	conflicts := newMockConflictStore()
	audit := newMockAuditStore()
	logger := zap.NewNop()

	clauseSvc := NewClauseService(cs, audit, &mockTextIndex{clauses: cs}, logger)
	dedup := NewDeduplicator(cs, dedupCfg)
	resolver := NewConflictResolver(cs, conflicts, audit, domain.DefaultPredicatePolicy(), DefaultConflictConfig(), logger)
	svc := NewIngestService(clauseSvc, dedup, resolver, sources, conflicts, logger)

	return &ingestFixture{clauses: cs, sources: sources, conflicts: conflicts, audit: audit, svc: svc}
}

func factCandidate(subject, predicate, object string) *domain.Candidate {
	return &domain.Candidate{
		Type: domain.ClauseTypeFact, Subject: subject, Predicate: predicate, Object: object,
		NaturalForm: subject + " " + predicate + " " + object,
	}
}

func TestProcessNewClause_InsertWhenNoExisting(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())

	result, err := f.svc.ProcessNewClause(context.Background(), factCandidate("user", "lives_in", "Seattle"))
	if err != nil {
		t.Fatalf("ProcessNewClause failed: %v", err)
	}
	if result.Action != ActionInsert {
		t.Errorf("Action = %v, want insert", result.Action)
	}
	if result.Clause == nil || result.Clause.ID == "" {
		t.Fatal("expected created clause")
	}
	if result.Clause.Confidence != domain.DefaultConfidence {
		t.Errorf("Confidence = %v, want default", result.Clause.Confidence)
	}
}

func TestProcessNewClause_ExactDuplicateReinforces(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	existing := f.clauses.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "user", Predicate: "lives_in", Object: "Seattle",
		NaturalForm: "user lives in seattle", Confidence: 0.8,
	})

	result, err := f.svc.ProcessNewClause(context.Background(), factCandidate("user", "lives_in", "Seattle"))
	if err != nil {
		t.Fatalf("ProcessNewClause failed: %v", err)
	}
	if result.Action != ActionReinforced {
		t.Errorf("Action = %v, want reinforced", result.Action)
	}
	stored := f.clauses.clauses[existing.ID]
	if stored.Confidence <= 0.8 || stored.Reinforcements != 1 {
		t.Errorf("existing clause not reinforced: conf=%v, reinf=%d", stored.Confidence, stored.Reinforcements)
	}
	if len(f.clauses.clauses) != 1 {
		t.Errorf("duplicate must not create a new clause, have %d", len(f.clauses.clauses))
	}
}

func TestProcessNewClause_SkipPolicy(t *testing.T) {
	cfg := DefaultDedupConfig()
	cfg.OnDuplicate = DedupSkip
	f := newIngestFixture(cfg)
	existing := f.clauses.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "user", Predicate: "lives_in", Object: "Seattle",
		NaturalForm: "user lives in seattle", Confidence: 0.8,
	})

	result, err := f.svc.ProcessNewClause(context.Background(), factCandidate("user", "lives_in", "Seattle"))
	if err != nil {
		t.Fatalf("ProcessNewClause failed: %v", err)
	}
	if result.Action != ActionSkipped {
		t.Errorf("Action = %v, want skipped", result.Action)
	}
	if f.clauses.clauses[existing.ID].Reinforcements != 0 {
		t.Error("skip policy must not reinforce")
	}
}

func TestProcessNewClause_MergePolicyUnionsMetadata(t *testing.T) {
	cfg := DefaultDedupConfig()
	cfg.OnDuplicate = DedupMerge
	f := newIngestFixture(cfg)
	existing := f.clauses.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "user", Predicate: "lives_in", Object: "Seattle",
		NaturalForm: "user lives in seattle", Confidence: 0.8,
		Metadata: map[string]any{"origin": "chat"},
	})

	cand := factCandidate("user", "lives_in", "Seattle")
	cand.Metadata = map[string]any{"session": "s-42"}

	result, err := f.svc.ProcessNewClause(context.Background(), cand)
	if err != nil {
		t.Fatalf("ProcessNewClause failed: %v", err)
	}
	if result.Action != ActionReinforced {
		t.Errorf("Action = %v, want reinforced", result.Action)
	}
	stored := f.clauses.clauses[existing.ID]
	if stored.Metadata["origin"] != "chat" || stored.Metadata["session"] != "s-42" {
		t.Errorf("metadata not merged: %v", stored.Metadata)
	}
}

func TestProcessNewClause_SingletonSupersedes(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	old := f.clauses.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "user", Predicate: "lives_in", Object: "Seattle",
		NaturalForm: "user lives in seattle", Confidence: 0.8,
	})

	result, err := f.svc.ProcessNewClause(context.Background(), factCandidate("user", "lives_in", "Denver"))
	if err != nil {
		t.Fatalf("ProcessNewClause failed: %v", err)
	}
	if result.Action != ActionSuperseded {
		t.Fatalf("Action = %v, want superseded", result.Action)
	}
	if f.clauses.clauses[old.ID].ValidTo == nil {
		t.Error("old singleton value must be invalidated")
	}
	if !f.clauses.clauses[result.Clause.ID].Active() {
		t.Error("new clause must be active")
	}
	// Invalidation of the superseded clause leaves an audit trail.
	found := false
	for _, e := range f.audit.decays {
		if e.ClauseID == old.ID && e.Reason == "superseded" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected superseded audit row, got %+v", f.audit.decays)
	}
}

func TestProcessNewClause_MultiValueCoexists(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	old := f.clauses.put(&domain.Clause{
		Type: domain.ClauseTypePreference, Subject: "user", Predicate: "likes", Object: "coffee",
		NaturalForm: "user likes coffee", Confidence: 0.8,
	})

	cand := factCandidate("user", "likes", "tea")
	cand.Type = domain.ClauseTypePreference
	result, err := f.svc.ProcessNewClause(context.Background(), cand)
	if err != nil {
		t.Fatalf("ProcessNewClause failed: %v", err)
	}
	if result.Action != ActionInsert {
		t.Errorf("Action = %v, want insert", result.Action)
	}
	if f.clauses.clauses[old.ID].ValidTo != nil {
		t.Error("multi-value predicate must keep both clauses active")
	}
	if len(f.clauses.clauses) != 2 {
		t.Errorf("expected 2 active clauses, have %d", len(f.clauses.clauses))
	}
}

func TestProcessNewClause_OpenPredicateConflicts(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	old := f.clauses.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "project", Predicate: "deadline", Object: "friday",
		NaturalForm: "project deadline is friday", Confidence: 0.8,
	})

	result, err := f.svc.ProcessNewClause(context.Background(), factCandidate("project", "deadline", "monday"))
	if err != nil {
		t.Fatalf("ProcessNewClause failed: %v", err)
	}
	if result.Action != ActionConflict {
		t.Fatalf("Action = %v, want conflict", result.Action)
	}
	if result.Conflict == nil {
		t.Fatal("expected pending conflict")
	}
	if result.Conflict.Status != domain.ConflictPending {
		t.Errorf("Status = %v, want pending", result.Conflict.Status)
	}
	if result.Conflict.ClauseAID != old.ID || result.Conflict.ClauseBID != result.Clause.ID {
		t.Errorf("conflict links %s/%s, want %s/%s",
			result.Conflict.ClauseAID, result.Conflict.ClauseBID, old.ID, result.Clause.ID)
	}
	// Both clauses stay active until the conflict is resolved.
	if f.clauses.clauses[old.ID].ValidTo != nil || f.clauses.clauses[result.Clause.ID].ValidTo != nil {
		t.Error("contradicting clauses must both stay active while pending")
	}
}

func TestProcessNewClause_RejectsInvalidCandidate(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	_, err := f.svc.ProcessNewClause(context.Background(), &domain.Candidate{
		Type: domain.ClauseTypeFact, Subject: "user",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestProcessBatch_IsolatesFailures(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	f.clauses.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "user", Predicate: "lives_in", Object: "Seattle",
		NaturalForm: "user lives in seattle", Confidence: 0.8,
	})

	cands := []domain.Candidate{
		*factCandidate("user", "lives_in", "Seattle"),  // reinforce
		*factCandidate("user", "works_at", "Acme"),     // insert
		{Type: "bogus", Subject: "x", Predicate: "y", Object: "z"}, // invalid
		*factCandidate("project", "deadline", "friday"), // insert
	}

	report := f.svc.ProcessBatch(context.Background(), cands)
	if report.Loaded != 2 {
		t.Errorf("Loaded = %d, want 2", report.Loaded)
	}
	if report.Reinforced != 1 {
		t.Errorf("Reinforced = %d, want 1", report.Reinforced)
	}
	if report.Errors != 1 {
		t.Errorf("Errors = %d, want 1", report.Errors)
	}
}

func TestExtractAndProcess_DeduplicatesSourceContent(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	f.svc.SetExtractor(&mockExtractor{})

	text := "user|works_at|Acme\nuser|lives_in|Seattle"

	report, err := f.svc.ExtractAndProcess(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("ExtractAndProcess failed: %v", err)
	}
	if report.Loaded != 2 {
		t.Errorf("Loaded = %d, want 2", report.Loaded)
	}

	// Same raw content short-circuits on the content hash.
	report, err = f.svc.ExtractAndProcess(context.Background(), text, nil)
	if err != nil {
		t.Fatalf("repeated ExtractAndProcess failed: %v", err)
	}
	if report.Loaded != 0 || report.Reinforced != 0 {
		t.Errorf("duplicate content must be a no-op, got %+v", report)
	}
	if len(f.clauses.clauses) != 2 {
		t.Errorf("expected 2 clauses after duplicate content, have %d", len(f.clauses.clauses))
	}
}

func TestExtractAndProcess_StampsSourceID(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	f.svc.SetExtractor(&mockExtractor{})

	_, err := f.svc.ExtractAndProcess(context.Background(), "user|works_at|Acme", nil)
	if err != nil {
		t.Fatalf("ExtractAndProcess failed: %v", err)
	}
	for _, c := range f.clauses.clauses {
		if c.SourceID == "" {
			t.Error("extracted clause must carry its source id")
		}
		if _, err := f.sources.GetByID(context.Background(), c.SourceID); err != nil {
			t.Errorf("source %s not persisted: %v", c.SourceID, err)
		}
	}
}

func TestExtractAndProcess_WithoutExtractor(t *testing.T) {
	f := newIngestFixture(DefaultDedupConfig())
	_, err := f.svc.ExtractAndProcess(context.Background(), "anything", nil)
	if !errors.Is(err, ErrExtractorUnavailable) {
		t.Errorf("expected ErrExtractorUnavailable, got %v", err)
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	if ContentHash("abc") != ContentHash("abc") {
		t.Error("hash must be deterministic")
	}
	if ContentHash("abc") == ContentHash("abd") {
		t.Error("different content must hash differently")
	}
	if len(ContentHash("abc")) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(ContentHash("abc")))
	}
}
