package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/clausebank/clausebank/internal/domain"
)

// DedupPolicy selects what happens to a candidate that duplicates an
// existing active clause.
type DedupPolicy string

const (
	DedupReinforce DedupPolicy = "reinforce"
	DedupSkip      DedupPolicy = "skip"
	DedupMerge     DedupPolicy = "merge"
)

// DedupConfig is passed in explicitly; the deduplicator holds no mutable
// process-wide state.
type DedupConfig struct {
	// FuzzyThreshold is the minimum token-Jaccard similarity of natural
	// forms for a fuzzy match.
	FuzzyThreshold float64
	OnDuplicate    DedupPolicy
	// ReinforceAmount boosts the existing clause on a plain duplicate.
	ReinforceAmount float64
	// MergeReinforceAmount is the smaller boost used under the merge policy.
	MergeReinforceAmount float64
}

func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		FuzzyThreshold:       0.85,
		OnDuplicate:          DedupReinforce,
		ReinforceAmount:      0.05,
		MergeReinforceAmount: 0.03,
	}
}

type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchFuzzy MatchType = "fuzzy"
)

// DuplicateMatch reports an existing active clause the candidate duplicates.
type DuplicateMatch struct {
	Clause     *domain.Clause
	Similarity float64
	Type       MatchType
}

// Deduplicator decides whether a candidate duplicates an existing active
// clause, by exact SPO equality or fuzzy natural-form similarity.
type Deduplicator struct {
	clauses domain.ClauseStore
	cfg     DedupConfig
}

func NewDeduplicator(clauses domain.ClauseStore, cfg DedupConfig) *Deduplicator {
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = 0.85
	}
	if cfg.OnDuplicate == "" {
		cfg.OnDuplicate = DedupReinforce
	}
	if cfg.ReinforceAmount <= 0 {
		cfg.ReinforceAmount = 0.05
	}
	if cfg.MergeReinforceAmount <= 0 {
		cfg.MergeReinforceAmount = 0.03
	}
	return &Deduplicator{clauses: clauses, cfg: cfg}
}

func (d *Deduplicator) Config() DedupConfig {
	return d.cfg
}

// FindDuplicate returns the best duplicate among active clauses sharing the
// candidate's (subject, predicate), or nil when none qualifies. An exact
// (subject, predicate, object) match wins outright at similarity 1.0;
// otherwise the best fuzzy natural-form match at or above the threshold is
// returned.
func (d *Deduplicator) FindDuplicate(ctx context.Context, cand *domain.Candidate) (*DuplicateMatch, error) {
	existing, err := d.clauses.ActiveBySubjectPredicate(ctx, cand.Subject, cand.Predicate)
	if err != nil {
		return nil, err
	}

	for i := range existing {
		if existing[i].Object == cand.Object {
			return &DuplicateMatch{Clause: &existing[i], Similarity: 1.0, Type: MatchExact}, nil
		}
	}

	candTokens := tokenSet(cand.NaturalForm)
	if len(candTokens) == 0 {
		return nil, nil
	}

	var best *DuplicateMatch
	for i := range existing {
		sim := jaccard(candTokens, tokenSet(existing[i].NaturalForm))
		if sim < d.cfg.FuzzyThreshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &DuplicateMatch{Clause: &existing[i], Similarity: sim, Type: MatchFuzzy}
		}
	}
	return best, nil
}

// tokenSet case-folds and keeps tokens longer than two characters.
func tokenSet(text string) map[string]struct{} {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if len(t) > 2 {
			set[t] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
