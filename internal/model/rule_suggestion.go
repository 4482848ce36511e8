package model

import "time"

// SuggestionStatus is the lifecycle state of a mined rule suggestion.
type SuggestionStatus string

// Suggestion statuses. Accepted and dismissed are terminal.
const (
	SuggestionNew       SuggestionStatus = "new"
	SuggestionAccepted  SuggestionStatus = "accepted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// Valid reports whether s is a known status.
func (s SuggestionStatus) Valid() bool {
	switch s {
	case SuggestionNew, SuggestionAccepted, SuggestionDismissed:
		return true
	}
	return false
}

// RuleSuggestion is a mined candidate rule persisted for user review.
type RuleSuggestion struct {
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
	RuleID     *int64           `json:"rule_id,omitempty"`
	Merchant   string           `json:"merchant"`
	Category   string           `json:"category"`
	Status     SuggestionStatus `json:"status"`
	ID         int64            `json:"id"`
	Count      int              `json:"count"`
	Total      int              `json:"total"`
	Share      float64          `json:"share"`
}

// SuggestionIgnore is a dismissed (merchant, category) pair.
type SuggestionIgnore struct {
	CreatedAt time.Time `json:"created_at"`
	Merchant  string    `json:"merchant"`
	Category  string    `json:"category"`
}
