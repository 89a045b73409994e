package domain

import (
	"time"
)

type ClauseType string

const (
	ClauseTypeFact            ClauseType = "fact"
	ClauseTypePreference      ClauseType = "preference"
	ClauseTypeHabit           ClauseType = "habit"
	ClauseTypeSkill           ClauseType = "skill"
	ClauseTypeRelationship    ClauseType = "relationship"
	ClauseTypeIntention       ClauseType = "intention"
	ClauseTypeContext         ClauseType = "context"
	ClauseTypeCorrection      ClauseType = "correction"
	ClauseTypeSkillSuccess    ClauseType = "skill_success"
	ClauseTypeSkillFailure    ClauseType = "skill_failure"
	ClauseTypeSkillPreference ClauseType = "skill_preference"
)

func ValidClauseType(t string) bool {
	switch ClauseType(t) {
	case ClauseTypeFact, ClauseTypePreference, ClauseTypeHabit, ClauseTypeSkill,
		ClauseTypeRelationship, ClauseTypeIntention, ClauseTypeContext,
		ClauseTypeCorrection, ClauseTypeSkillSuccess, ClauseTypeSkillFailure,
		ClauseTypeSkillPreference:
		return true
	}
	return false
}

// DefaultDecayRate returns the per-type decay rate applied when a clause is
// created without an explicit rate. Stable knowledge (preferences, skills)
// decays slower than situational knowledge (context, intentions).
func (t ClauseType) DefaultDecayRate() float64 {
	switch t {
	case ClauseTypePreference, ClauseTypeSkill, ClauseTypeSkillPreference:
		return 0.01
	case ClauseTypeFact, ClauseTypeRelationship, ClauseTypeSkillSuccess, ClauseTypeSkillFailure:
		return 0.02
	case ClauseTypeHabit:
		return 0.02
	case ClauseTypeCorrection:
		return 0.03
	case ClauseTypeIntention:
		return 0.05
	case ClauseTypeContext:
		return 0.08
	default:
		return 0.05
	}
}

// DefaultConfidence is assigned when a clause arrives without one.
const DefaultConfidence = 0.8

// Clause is the atomic memory unit: a subject-predicate-object triple with
// confidence, bitemporal validity, and usage tracking.
type Clause struct {
	ID               string         `json:"id"`
	Type             ClauseType     `json:"type"`
	Subject          string         `json:"subject"`
	Predicate        string         `json:"predicate"`
	Object           string         `json:"object"`
	NaturalForm      string         `json:"natural_form"`
	ValidFrom        time.Time      `json:"valid_from"`
	ValidTo          *time.Time     `json:"valid_to,omitempty"`
	RecordedAt       time.Time      `json:"recorded_at"`
	Confidence       float64        `json:"confidence"`
	DecayRate        float64        `json:"decay_rate"`
	Reinforcements   int            `json:"reinforcement_count"`
	SourceID         string         `json:"source_id,omitempty"`
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	LastAccessed     *time.Time     `json:"last_accessed,omitempty"`
	AccessCount      int            `json:"access_count"`
	Tags             []string       `json:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Active reports whether the clause is currently valid (valid_to unset).
func (c *Clause) Active() bool {
	return c.ValidTo == nil
}

// ClampConfidence bounds a confidence value to [0,1]. Applied on every write.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
