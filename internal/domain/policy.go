package domain

// PredicateClass determines how many simultaneously active clauses a subject
// may hold for a predicate.
type PredicateClass int

const (
	// PredicateOpen is the default: neither singleton nor multi-value.
	// Differing objects on the same (subject, predicate) are a contradiction.
	PredicateOpen PredicateClass = iota
	// PredicateSingleton allows at most one active clause per (subject, predicate).
	PredicateSingleton
	// PredicateMultiValue allows many simultaneous active clauses.
	PredicateMultiValue
)

func (c PredicateClass) String() string {
	switch c {
	case PredicateSingleton:
		return "singleton"
	case PredicateMultiValue:
		return "multi_value"
	default:
		return "open"
	}
}

// PredicatePolicy classifies predicates. It is immutable after construction
// and safe for concurrent use; build a new policy to change classification.
type PredicatePolicy struct {
	classes map[string]PredicateClass
}

// NewPredicatePolicy builds a policy from explicit predicate lists.
func NewPredicatePolicy(singleton, multiValue []string) *PredicatePolicy {
	classes := make(map[string]PredicateClass, len(singleton)+len(multiValue))
	for _, p := range singleton {
		classes[p] = PredicateSingleton
	}
	for _, p := range multiValue {
		classes[p] = PredicateMultiValue
	}
	return &PredicatePolicy{classes: classes}
}

// DefaultPredicatePolicy covers the common personal-fact predicates.
func DefaultPredicatePolicy() *PredicatePolicy {
	return NewPredicatePolicy(
		[]string{
			"lives_in", "works_at", "born_in", "employed_by", "named",
			"aged", "timezone", "primary_language", "email", "role",
		},
		[]string{
			"likes", "dislikes", "knows", "owns", "uses", "speaks",
			"interested_in", "visited", "skilled_in", "prefers",
		},
	)
}

// Classify returns the class for a predicate, PredicateOpen when unlisted.
func (p *PredicatePolicy) Classify(predicate string) PredicateClass {
	if p == nil {
		return PredicateOpen
	}
	return p.classes[predicate]
}
