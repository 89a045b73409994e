package domain

import "time"

type ConflictType string

const (
	ConflictContradiction ConflictType = "contradiction"
	ConflictSupersession  ConflictType = "supersession"
	ConflictAmbiguity     ConflictType = "ambiguity"
)

type ConflictStatus string

const (
	ConflictPending      ConflictStatus = "pending"
	ConflictAutoResolved ConflictStatus = "auto_resolved"
	ConflictUserResolved ConflictStatus = "user_resolved"
	ConflictIgnored      ConflictStatus = "ignored"
)

// ResolutionStrategy selects how a pending conflict is settled.
type ResolutionStrategy string

const (
	StrategyNewestWins        ResolutionStrategy = "newest_wins"
	StrategyHighestConfidence ResolutionStrategy = "highest_confidence"
	StrategyMergeHistory      ResolutionStrategy = "merge_history"
	StrategyManual            ResolutionStrategy = "manual"
)

func ValidResolutionStrategy(s string) bool {
	switch ResolutionStrategy(s) {
	case StrategyNewestWins, StrategyHighestConfidence, StrategyMergeHistory, StrategyManual:
		return true
	}
	return false
}

// Conflict records a detected contradiction between two active clauses on
// the same (subject, predicate) with differing objects.
type Conflict struct {
	ID         string         `json:"id"`
	ClauseAID  string         `json:"clause_a_id"`
	ClauseBID  string         `json:"clause_b_id"`
	Type       ConflictType   `json:"conflict_type"`
	Status     ConflictStatus `json:"status"`
	Resolution string         `json:"resolution,omitempty"`
	DetectedAt time.Time      `json:"detected_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}
