package domain

import (
	"errors"
	"fmt"
)

var ErrValidation = errors.New("candidate validation failed")

// Candidate is a structured clause proposed for ingestion, typically emitted
// by an external extractor. It has not yet passed deduplication or conflict
// analysis.
type Candidate struct {
	Type             ClauseType     `json:"type"`
	Subject          string         `json:"subject"`
	Predicate        string         `json:"predicate"`
	Object           string         `json:"object"`
	NaturalForm      string         `json:"natural_form"`
	Confidence       float64        `json:"confidence"`
	SourceID         string         `json:"source_id,omitempty"`
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Validate rejects candidates with an unknown type or missing SPO fields and
// clamps confidence to [0,1]. Invalid candidates are dropped by the caller;
// a batch continues past them.
func (c *Candidate) Validate() error {
	if !ValidClauseType(string(c.Type)) {
		return fmt.Errorf("%w: unknown clause type %q", ErrValidation, c.Type)
	}
	if c.Subject == "" || c.Predicate == "" || c.Object == "" {
		return fmt.Errorf("%w: subject, predicate and object are required", ErrValidation)
	}
	c.Confidence = ClampConfidence(c.Confidence)
	return nil
}
