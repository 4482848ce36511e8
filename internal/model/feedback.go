package model

import "time"

// FeedbackAction is the kind of user signal recorded for a pair.
type FeedbackAction string

// Feedback actions.
const (
	FeedbackAccept FeedbackAction = "accept"
	FeedbackReject FeedbackAction = "reject"
	FeedbackUndo   FeedbackAction = "undo"
)

// Valid reports whether a is a known action.
func (a FeedbackAction) Valid() bool {
	switch a {
	case FeedbackAccept, FeedbackReject, FeedbackUndo:
		return true
	}
	return false
}

// FeedbackStat holds the rolling counters for a (merchant, category) pair.
type FeedbackStat struct {
	LastFeedbackAt time.Time `json:"last_feedback_at"`
	Merchant       string    `json:"merchant"`
	Category       string    `json:"category"`
	AcceptCount    int       `json:"accept_count"`
	RejectCount    int       `json:"reject_count"`
}

// NetRejected reports whether rejections outweigh acceptances.
func (s FeedbackStat) NetRejected() bool {
	return s.RejectCount > s.AcceptCount
}

// FeedbackEvent is one entry of the append-only feedback log.
type FeedbackEvent struct {
	CreatedAt     time.Time      `json:"created_at"`
	RevertsID     *int64         `json:"reverts_id,omitempty"` // set on undo events
	RuleID        *int64         `json:"rule_id,omitempty"`
	Merchant      string         `json:"merchant"`
	Category      string         `json:"category"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Action        FeedbackAction `json:"action"`
	ID            int64          `json:"id"`
	Weight        int            `json:"weight"`
	Reverted      bool           `json:"reverted"`
}
