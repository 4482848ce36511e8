// Package feedback records accept, reject and undo signals per
// (canonical merchant, category) pair. Every signal is appended to an event
// log and folded into atomically incremented counters; undo reverts the
// latest matching event and re-derives the counters from the log.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
)

// Signal weights for rule and suggestion actions.
const (
	WeightToggle         = 1
	WeightCategoryChange = 2
	WeightDelete         = 3
	WeightSuggestion     = 1
	WeightManual         = 1
)

// Event is one feedback signal.
type Event struct {
	RuleID        *int64
	Merchant      string
	Category      string
	TransactionID string
	Action        model.FeedbackAction
	Weight        int
}

// Store is the persistence needed to record feedback. Both service.Storage
// and service.Transaction satisfy it.
type Store interface {
	AppendFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error
	IncrementFeedback(ctx context.Context, merchant, category string, acceptDelta, rejectDelta int) error
	SetFeedbackCounts(ctx context.Context, merchant, category string, acceptCount, rejectCount int) error
	LockFeedback(ctx context.Context, merchant, category string) error
	GetLatestFeedbackEvent(ctx context.Context, merchant, category, transactionID string) (*model.FeedbackEvent, error)
	MarkFeedbackEventReverted(ctx context.Context, id int64) error
	SumFeedbackEvents(ctx context.Context, merchant, category string) (int, int, error)
	DeleteFeedback(ctx context.Context, merchant, category string) error
}

// Normalize canonicalizes the merchant, trims the category and defaults a
// zero weight to 1.
func (e Event) Normalize() (Event, error) {
	key, ok := merchant.Canonicalize(e.Merchant)
	if !ok {
		return e, fmt.Errorf("%w: merchant is empty", common.ErrInvalidInput)
	}
	e.Merchant = key
	e.Category = strings.TrimSpace(e.Category)
	if !model.IsLabel(e.Category) {
		return e, fmt.Errorf("%w: category %q is not a label", common.ErrInvalidInput, e.Category)
	}
	if !e.Action.Valid() {
		return e, fmt.Errorf("%w: unknown action %q", common.ErrInvalidInput, e.Action)
	}
	if e.Weight < 0 {
		return e, fmt.Errorf("%w: weight must be positive", common.ErrInvalidInput)
	}
	if e.Weight == 0 {
		e.Weight = 1
	}
	return e, nil
}

// Record applies one event to store. Accept and reject append to the log
// and increment the pair's counters by the event weight. Undo reverts the
// latest non-reverted accept or reject for the pair, scoped to the event's
// transaction when set; with nothing to undo it is a no-op.
func Record(ctx context.Context, store Store, e Event) error {
	e, err := e.Normalize()
	if err != nil {
		return err
	}

	switch e.Action {
	case model.FeedbackAccept, model.FeedbackReject:
		event := &model.FeedbackEvent{
			Merchant:      e.Merchant,
			Category:      e.Category,
			Action:        e.Action,
			Weight:        e.Weight,
			TransactionID: e.TransactionID,
			RuleID:        e.RuleID,
		}
		if err := store.AppendFeedbackEvent(ctx, event); err != nil {
			return err
		}
		accept, reject := 0, 0
		if e.Action == model.FeedbackAccept {
			accept = e.Weight
		} else {
			reject = e.Weight
		}
		return store.IncrementFeedback(ctx, e.Merchant, e.Category, accept, reject)

	case model.FeedbackUndo:
		return undo(ctx, store, e)
	}
	return nil
}

// undo recomputes the counters from the log while holding the pair's row
// lock, so concurrent increments are never overwritten.
func undo(ctx context.Context, store Store, e Event) error {
	if err := store.LockFeedback(ctx, e.Merchant, e.Category); err != nil {
		return err
	}

	last, err := store.GetLatestFeedbackEvent(ctx, e.Merchant, e.Category, e.TransactionID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := store.MarkFeedbackEventReverted(ctx, last.ID); err != nil {
		return err
	}
	if err := store.AppendFeedbackEvent(ctx, &model.FeedbackEvent{
		Merchant:      e.Merchant,
		Category:      e.Category,
		Action:        model.FeedbackUndo,
		Weight:        last.Weight,
		TransactionID: last.TransactionID,
		RuleID:        last.RuleID,
		RevertsID:     &last.ID,
	}); err != nil {
		return err
	}

	accept, reject, err := store.SumFeedbackEvents(ctx, e.Merchant, e.Category)
	if err != nil {
		return err
	}
	return store.SetFeedbackCounts(ctx, e.Merchant, e.Category, accept, reject)
}

// Reset deletes a pair's counters and event log.
func Reset(ctx context.Context, store Store, merchantName, category string) error {
	key, ok := merchant.Canonicalize(merchantName)
	if !ok {
		return fmt.Errorf("%w: merchant is empty", common.ErrInvalidInput)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("%w: category is empty", common.ErrInvalidInput)
	}
	return store.DeleteFeedback(ctx, key, category)
}
