package domain

import "time"

// DecayLogEntry is an append-only audit row for any confidence change.
// Entries are never mutated after insertion.
type DecayLogEntry struct {
	ID                 int64     `json:"id"`
	ClauseID           string    `json:"clause_id"`
	PreviousConfidence float64   `json:"previous_confidence"`
	NewConfidence      float64   `json:"new_confidence"`
	Reason             string    `json:"reason"`
	CreatedAt          time.Time `json:"created_at"`
}

// AccessLogEntry is an append-only audit row recording a clause read.
type AccessLogEntry struct {
	ID         int64     `json:"id"`
	ClauseID   string    `json:"clause_id"`
	AccessType string    `json:"access_type"`
	Context    string    `json:"context,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
