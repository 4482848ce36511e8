package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/feedback"
	"github.com/Veraticus/finrules/internal/merchant"
	"github.com/Veraticus/finrules/internal/model"
	"github.com/Veraticus/finrules/internal/service"
	"github.com/Veraticus/finrules/internal/storage"
)

// RecordFeedback records a stand-alone feedback signal. Invalid events are
// rejected; storage failures are logged and dropped.
func (e *Engine) RecordFeedback(ctx context.Context, event feedback.Event) error {
	return e.recorder.Record(ctx, event)
}

// FeedbackStats returns the counters for every category of a merchant.
func (e *Engine) FeedbackStats(ctx context.Context, merchantName string) ([]model.FeedbackStat, error) {
	key, ok := merchant.Canonicalize(merchantName)
	if !ok {
		return nil, fmt.Errorf("%w: merchant is empty", common.ErrInvalidInput)
	}
	stats, err := e.storage.GetFeedbackStats(ctx, key)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []model.FeedbackStat{}
	}
	return stats, nil
}

// ResetFeedback clears a pair's counters and event log.
func (e *Engine) ResetFeedback(ctx context.Context, merchantName, category string) error {
	return storage.WithTx(ctx, e.storage, func(tx service.Transaction) error {
		return feedback.Reset(ctx, tx, merchantName, category)
	})
}

// FeedbackEvents returns a pair's event log, oldest first.
func (e *Engine) FeedbackEvents(ctx context.Context, merchantName, category string) ([]model.FeedbackEvent, error) {
	key, cat, err := ignorePair(merchantName, category)
	if err != nil {
		return nil, err
	}
	return e.storage.GetFeedbackEvents(ctx, key, cat)
}
