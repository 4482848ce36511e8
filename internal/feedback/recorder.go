package feedback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/service"
	"github.com/Veraticus/finrules/internal/storage"
)

const savepoint = "feedback"

// Recorder writes feedback either inside a caller's transaction or as a
// stand-alone retried write. Both paths are best-effort: storage failures
// are logged and swallowed.
type Recorder struct {
	store  storage.TxBeginner
	logger *slog.Logger
	retry  common.RetryOptions
}

// NewRecorder creates a recorder over store.
func NewRecorder(store storage.TxBeginner, retry common.RetryOptions, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, retry: retry, logger: logger}
}

// Record writes one event in its own transaction, retrying lock contention
// within the retry budget. Invalid events are returned as errors; storage
// failures drop the event and return nil.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	if _, err := e.Normalize(); err != nil {
		return err
	}

	err := common.WithRetry(ctx, func() error {
		return storage.WithTx(ctx, r.store, func(tx service.Transaction) error {
			return Record(ctx, tx, e)
		})
	}, r.retry)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("Dropping feedback event",
			"merchant", e.Merchant,
			"category", e.Category,
			"action", e.Action,
			"weight", e.Weight,
			"error", err)
	}
	return nil
}

// RecordInTx writes events inside tx under a savepoint. A failure rolls the
// savepoint back so the caller's primary change can still commit; it is
// logged and never returned.
func (r *Recorder) RecordInTx(ctx context.Context, tx service.Transaction, events ...Event) {
	if len(events) == 0 {
		return
	}

	if err := tx.Savepoint(ctx, savepoint); err != nil {
		r.logger.Warn("Skipping feedback, savepoint failed", "error", err)
		return
	}

	if err := r.recordAll(ctx, tx, events); err != nil {
		r.logger.Warn("Discarding feedback for this change", "events", len(events), "error", err)
		if rbErr := tx.RollbackToSavepoint(ctx, savepoint); rbErr != nil {
			r.logger.Error("Failed to roll back feedback savepoint", "error", rbErr)
			return
		}
	}

	if err := tx.ReleaseSavepoint(ctx, savepoint); err != nil {
		r.logger.Warn("Failed to release feedback savepoint", "error", err)
	}
}

func (r *Recorder) recordAll(ctx context.Context, tx service.Transaction, events []Event) error {
	for _, e := range events {
		if err := Record(ctx, tx, e); err != nil {
			return fmt.Errorf("%s %s/%s: %w", e.Action, e.Merchant, e.Category, err)
		}
	}
	return nil
}
