package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
)

// IncrementFeedback atomically adds to a pair's counters, creating the row
// on first use.
func (s *Store) IncrementFeedback(ctx context.Context, merchant, category string, acceptDelta, rejectDelta int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePair(merchant, category); err != nil {
		return err
	}
	if acceptDelta < 0 || rejectDelta < 0 {
		return fmt.Errorf("%w: increments must be non-negative", ErrInvalidFeedback)
	}

	_, err := s.exec(ctx, `
		INSERT INTO ml_feedback_merchant_category_stats
			(merchant, category, accept_count, reject_count, last_feedback_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (merchant, category) DO UPDATE SET
			accept_count = ml_feedback_merchant_category_stats.accept_count + excluded.accept_count,
			reject_count = ml_feedback_merchant_category_stats.reject_count + excluded.reject_count,
			last_feedback_at = excluded.last_feedback_at
	`, merchant, category, acceptDelta, rejectDelta, s.now())
	if err != nil {
		return fmt.Errorf("failed to increment feedback: %w", err)
	}
	return nil
}

// LockFeedback takes the row lock on a pair's counters for the rest of the
// enclosing transaction. A missing row is not an error.
func (s *Store) LockFeedback(ctx context.Context, merchant, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePair(merchant, category); err != nil {
		return err
	}

	_, err := s.exec(ctx, `
		UPDATE ml_feedback_merchant_category_stats
		SET last_feedback_at = last_feedback_at
		WHERE merchant = ? AND category = ?
	`, merchant, category)
	if err != nil {
		return fmt.Errorf("failed to lock feedback row: %w", err)
	}
	return nil
}

// SetFeedbackCounts overwrites a pair's counters.
func (s *Store) SetFeedbackCounts(ctx context.Context, merchant, category string, acceptCount, rejectCount int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePair(merchant, category); err != nil {
		return err
	}
	if acceptCount < 0 || rejectCount < 0 {
		return fmt.Errorf("%w: counts must be non-negative", ErrInvalidFeedback)
	}

	_, err := s.exec(ctx, `
		INSERT INTO ml_feedback_merchant_category_stats
			(merchant, category, accept_count, reject_count, last_feedback_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (merchant, category) DO UPDATE SET
			accept_count = excluded.accept_count,
			reject_count = excluded.reject_count,
			last_feedback_at = excluded.last_feedback_at
	`, merchant, category, acceptCount, rejectCount, s.now())
	if err != nil {
		return fmt.Errorf("failed to set feedback counts: %w", err)
	}
	return nil
}

// GetFeedbackStat returns the counters for one pair.
func (s *Store) GetFeedbackStat(ctx context.Context, merchant, category string) (*model.FeedbackStat, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePair(merchant, category); err != nil {
		return nil, err
	}

	var stat model.FeedbackStat
	err := s.queryRow(ctx, `
		SELECT merchant, category, accept_count, reject_count, last_feedback_at
		FROM ml_feedback_merchant_category_stats
		WHERE merchant = ? AND category = ?
	`, merchant, category).Scan(&stat.Merchant, &stat.Category, &stat.AcceptCount, &stat.RejectCount, &stat.LastFeedbackAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feedback %s/%s: %w", merchant, category, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback stat: %w", err)
	}
	return &stat, nil
}

// GetFeedbackStats returns all counters for a merchant ordered by category.
func (s *Store) GetFeedbackStats(ctx context.Context, merchant string) ([]model.FeedbackStat, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(merchant, "merchant"); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `
		SELECT merchant, category, accept_count, reject_count, last_feedback_at
		FROM ml_feedback_merchant_category_stats
		WHERE merchant = ?
		ORDER BY category
	`, merchant)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []model.FeedbackStat
	for rows.Next() {
		var stat model.FeedbackStat
		if err := rows.Scan(&stat.Merchant, &stat.Category, &stat.AcceptCount, &stat.RejectCount, &stat.LastFeedbackAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback stats: %w", err)
	}
	return stats, nil
}

// DeleteFeedback removes a pair's counters and its event log.
func (s *Store) DeleteFeedback(ctx context.Context, merchant, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePair(merchant, category); err != nil {
		return err
	}

	if _, err := s.exec(ctx,
		`DELETE FROM feedback_events WHERE merchant = ? AND category = ?`, merchant, category); err != nil {
		return fmt.Errorf("failed to delete feedback events: %w", err)
	}
	if _, err := s.exec(ctx,
		`DELETE FROM ml_feedback_merchant_category_stats WHERE merchant = ? AND category = ?`, merchant, category); err != nil {
		return fmt.Errorf("failed to delete feedback stat: %w", err)
	}
	return nil
}

const feedbackEventColumns = `id, merchant, category, action, weight, transaction_id,
	rule_id, reverts_id, reverted, created_at`

// AppendFeedbackEvent appends an event to the log and fills in its ID.
func (s *Store) AppendFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateFeedbackEvent(event); err != nil {
		return err
	}

	now := s.now()
	err := s.queryRow(ctx, `
		INSERT INTO feedback_events (
			merchant, category, action, weight, transaction_id, rule_id, reverts_id, reverted, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		event.Merchant, event.Category, string(event.Action), event.Weight, event.TransactionID,
		nullInt64(event.RuleID), nullInt64(event.RevertsID), event.Reverted, now,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to append feedback event: %w", err)
	}
	event.CreatedAt = now
	return nil
}

// GetLatestFeedbackEvent returns the most recent non-reverted accept or
// reject event for a pair, restricted to transactionID when it is set.
func (s *Store) GetLatestFeedbackEvent(ctx context.Context, merchant, category, transactionID string) (*model.FeedbackEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePair(merchant, category); err != nil {
		return nil, err
	}

	query := `SELECT ` + feedbackEventColumns + `
		FROM feedback_events
		WHERE merchant = ? AND category = ? AND reverted = ? AND action IN (?, ?)`
	args := []any{merchant, category, false, string(model.FeedbackAccept), string(model.FeedbackReject)}
	if transactionID != "" {
		query += ` AND transaction_id = ?`
		args = append(args, transactionID)
	}
	query += ` ORDER BY id DESC LIMIT 1`

	event, err := scanFeedbackEvent(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feedback event for %s/%s: %w", merchant, category, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest feedback event: %w", err)
	}
	return event, nil
}

// MarkFeedbackEventReverted flags an event as undone.
func (s *Store) MarkFeedbackEventReverted(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.exec(ctx,
		`UPDATE feedback_events SET reverted = ? WHERE id = ? AND reverted = ?`, true, id, false)
	if err != nil {
		return fmt.Errorf("failed to revert feedback event: %w", err)
	}
	return expectAffected(result, fmt.Sprintf("feedback event %d", id))
}

// SumFeedbackEvents re-derives a pair's counters from its non-reverted log.
func (s *Store) SumFeedbackEvents(ctx context.Context, merchant, category string) (int, int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}
	if err := validatePair(merchant, category); err != nil {
		return 0, 0, err
	}

	var acceptCount, rejectCount int
	err := s.queryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN action = ? THEN weight ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = ? THEN weight ELSE 0 END), 0)
		FROM feedback_events
		WHERE merchant = ? AND category = ? AND reverted = ?
	`, string(model.FeedbackAccept), string(model.FeedbackReject), merchant, category, false).
		Scan(&acceptCount, &rejectCount)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum feedback events: %w", err)
	}
	return acceptCount, rejectCount, nil
}

// GetFeedbackEvents returns a pair's log oldest first.
func (s *Store) GetFeedbackEvents(ctx context.Context, merchant, category string) ([]model.FeedbackEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validatePair(merchant, category); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `SELECT `+feedbackEventColumns+`
		FROM feedback_events
		WHERE merchant = ? AND category = ?
		ORDER BY id ASC
	`, merchant, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.FeedbackEvent
	for rows.Next() {
		event, err := scanFeedbackEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback events: %w", err)
	}
	return events, nil
}

func scanFeedbackEvent(row rowScanner) (*model.FeedbackEvent, error) {
	var (
		event     model.FeedbackEvent
		action    string
		ruleID    sql.NullInt64
		revertsID sql.NullInt64
	)
	if err := row.Scan(
		&event.ID, &event.Merchant, &event.Category, &action, &event.Weight, &event.TransactionID,
		&ruleID, &revertsID, &event.Reverted, &event.CreatedAt,
	); err != nil {
		return nil, err
	}
	event.Action = model.FeedbackAction(action)
	event.RuleID = int64Ptr(ruleID)
	event.RevertsID = int64Ptr(revertsID)
	return &event, nil
}
