package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clausebank/clausebank/internal/domain"
	"go.uber.org/zap"
)

func newTestClauseService(cs *mockClauseStore, audit *mockAuditStore) *ClauseService {
	return NewClauseService(cs, audit, &mockTextIndex{clauses: cs}, zap.NewNop())
}

func TestCreate_AppliesDefaults(t *testing.T) {
	cs := newMockClauseStore()
	svc := newTestClauseService(cs, newMockAuditStore())

	c, err := svc.Create(context.Background(), &domain.Clause{
		Type:        domain.ClauseTypePreference,
		Subject:     "user",
		Predicate:   "prefers",
		Object:      "dark mode",
		NaturalForm: "User prefers dark mode",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if c.ID == "" {
		t.Error("expected generated id")
	}
	if c.Confidence != domain.DefaultConfidence {
		t.Errorf("Confidence = %v, want %v", c.Confidence, domain.DefaultConfidence)
	}
	if c.DecayRate != 0.01 {
		t.Errorf("DecayRate = %v, want preference default 0.01", c.DecayRate)
	}
	if c.ValidFrom.IsZero() || c.RecordedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if !c.Active() {
		t.Error("new clause must be active")
	}
}

func TestCreate_GeneratedIDsAreTimeSortable(t *testing.T) {
	cs := newMockClauseStore()
	svc := newTestClauseService(cs, newMockAuditStore())

	var prev string
	for i := 0; i < 5; i++ {
		c, err := svc.Create(context.Background(), &domain.Clause{
			Type: domain.ClauseTypeFact, Subject: "s", Predicate: "p", Object: "o",
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if prev != "" && c.ID < prev {
			t.Errorf("ids not monotonically sortable: %s < %s", c.ID, prev)
		}
		prev = c.ID
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestClauseService(newMockClauseStore(), newMockAuditStore())

	_, err := svc.Create(context.Background(), &domain.Clause{
		Type: "rumor", Subject: "s", Predicate: "p", Object: "o",
	})
	if !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}

	_, err = svc.Create(context.Background(), &domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "s", Predicate: "p",
	})
	if !errors.Is(err, ErrMissingSPO) {
		t.Errorf("expected ErrMissingSPO, got %v", err)
	}
}

func TestCreate_ClampsConfidence(t *testing.T) {
	svc := newTestClauseService(newMockClauseStore(), newMockAuditStore())

	c, err := svc.Create(context.Background(), &domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "s", Predicate: "p", Object: "o",
		Confidence: 4.2,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped 1.0", c.Confidence)
	}
}

func TestGet_RecordsAccess(t *testing.T) {
	cs := newMockClauseStore()
	audit := newMockAuditStore()
	svc := newTestClauseService(cs, audit)

	seeded := cs.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "s", Predicate: "p", Object: "o",
		Confidence: 0.8,
	})

	c, err := svc.Get(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if c.ID != seeded.ID {
		t.Errorf("got clause %s, want %s", c.ID, seeded.ID)
	}

	stored := cs.clauses[seeded.ID]
	if stored.AccessCount != 1 || stored.LastAccessed == nil {
		t.Errorf("access not recorded: count=%d, last=%v", stored.AccessCount, stored.LastAccessed)
	}
	if len(audit.accesses) != 1 || audit.accesses[0].AccessType != "direct" {
		t.Errorf("expected one direct access-log row, got %+v", audit.accesses)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestClauseService(newMockClauseStore(), newMockAuditStore())
	_, err := svc.Get(context.Background(), "nope")
	if !errors.Is(err, ErrClauseNotFound) {
		t.Errorf("expected ErrClauseNotFound, got %v", err)
	}
}

func TestInvalidate_OneWayAndIdempotent(t *testing.T) {
	cs := newMockClauseStore()
	audit := newMockAuditStore()
	svc := newTestClauseService(cs, audit)

	seeded := cs.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "s", Predicate: "p", Object: "o",
		Confidence: 0.7,
	})

	if err := svc.Invalidate(context.Background(), seeded.ID, "correction"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	firstValidTo := *cs.clauses[seeded.ID].ValidTo

	// Second call must not move valid_to and must not append another log row.
	if err := svc.Invalidate(context.Background(), seeded.ID, "correction"); err != nil {
		t.Fatalf("repeated Invalidate failed: %v", err)
	}
	if !cs.clauses[seeded.ID].ValidTo.Equal(firstValidTo) {
		t.Error("valid_to changed on repeated invalidation")
	}
	if len(audit.decays) != 1 {
		t.Errorf("expected exactly one audit row, got %d", len(audit.decays))
	}
	if audit.decays[0].Reason != "correction" {
		t.Errorf("Reason = %q, want correction", audit.decays[0].Reason)
	}
}

func TestReinforce_CapsAtOne(t *testing.T) {
	cs := newMockClauseStore()
	audit := newMockAuditStore()
	svc := newTestClauseService(cs, audit)

	seeded := cs.put(&domain.Clause{
		Type: domain.ClauseTypeFact, Subject: "s", Predicate: "p", Object: "o",
		Confidence: 0.98,
	})

	c, err := svc.Reinforce(context.Background(), seeded.ID, 0.05)
	if err != nil {
		t.Fatalf("Reinforce failed: %v", err)
	}
	if c.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want capped 1.0", c.Confidence)
	}
	if c.Reinforcements != 1 {
		t.Errorf("Reinforcements = %d, want 1", c.Reinforcements)
	}
	if len(audit.decays) != 1 || audit.decays[0].Reason != "reinforcement" {
		t.Errorf("expected one reinforcement audit row, got %+v", audit.decays)
	}
}

func TestSearch_FallsBackToConfidenceOrdering(t *testing.T) {
	cs := newMockClauseStore()
	svc := newTestClauseService(cs, newMockAuditStore())

	cs.put(&domain.Clause{Type: domain.ClauseTypeFact, Subject: "a", Predicate: "p", Object: "x", Confidence: 0.4})
	cs.put(&domain.Clause{Type: domain.ClauseTypeFact, Subject: "b", Predicate: "p", Object: "y", Confidence: 0.9})

	results, err := svc.Search(context.Background(), "", domain.ClauseFilter{Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Confidence != 0.9 {
		t.Errorf("expected highest confidence first, got %v", results[0].Confidence)
	}
	if results[0].Score != results[0].Confidence {
		t.Errorf("empty-query score should equal confidence, got %v", results[0].Score)
	}
}
