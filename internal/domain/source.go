package domain

import "time"

// Source is a provenance record for ingested raw input. ContentHash is
// unique: submitting the same raw input twice resolves to the same source.
type Source struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ContentHash string    `json:"content_hash"`
	OccurredAt  time.Time `json:"occurred_at"`
	RecordedAt  time.Time `json:"recorded_at"`
	SessionID   string    `json:"session_id,omitempty"`
	AgentID     string    `json:"agent_id,omitempty"`
	Tool        string    `json:"tool,omitempty"`
	URL         string    `json:"url,omitempty"`
}
