package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/finrules/internal/common"
	"github.com/Veraticus/finrules/internal/model"
)

const suggestionColumns = `id, merchant, category, status, count, total, share, rule_id, created_at, resolved_at`

// InsertRuleSuggestion stores a new suggestion. It reports false, without
// error, when an unresolved suggestion for the same pair already exists.
func (s *Store) InsertRuleSuggestion(ctx context.Context, suggestion *model.RuleSuggestion) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateSuggestion(suggestion); err != nil {
		return false, err
	}

	now := s.now()
	err := s.queryRow(ctx, `
		INSERT INTO rule_suggestions (merchant, category, status, count, total, share, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (merchant, category) WHERE status = 'new' DO NOTHING
		RETURNING id
	`,
		suggestion.Merchant, suggestion.Category, string(model.SuggestionNew),
		suggestion.Count, suggestion.Total, suggestion.Share, now,
	).Scan(&suggestion.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert rule suggestion: %w", err)
	}

	suggestion.Status = model.SuggestionNew
	suggestion.CreatedAt = now
	return true, nil
}

// GetRuleSuggestion retrieves a suggestion by ID.
func (s *Store) GetRuleSuggestion(ctx context.Context, id int64) (*model.RuleSuggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	suggestion, err := scanSuggestion(s.queryRow(ctx,
		`SELECT `+suggestionColumns+` FROM rule_suggestions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule suggestion %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule suggestion: %w", err)
	}
	return suggestion, nil
}

// ListRuleSuggestions returns suggestions with the given status, or all of
// them when status is empty, ordered by merchant.
func (s *Store) ListRuleSuggestions(ctx context.Context, status model.SuggestionStatus) ([]model.RuleSuggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + suggestionColumns + ` FROM rule_suggestions`
	var args []any
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidSuggestion, status)
		}
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY merchant, category, id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suggestions []model.RuleSuggestion
	for rows.Next() {
		suggestion, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule suggestion: %w", err)
		}
		suggestions = append(suggestions, *suggestion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule suggestions: %w", err)
	}
	return suggestions, nil
}

// ResolveRuleSuggestion moves a suggestion out of the new state. Only new
// suggestions can be resolved; anything else yields ErrAlreadyResolved.
func (s *Store) ResolveRuleSuggestion(ctx context.Context, id int64, status model.SuggestionStatus, ruleID *int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if status != model.SuggestionAccepted && status != model.SuggestionDismissed {
		return fmt.Errorf("%w: cannot resolve to %q", ErrInvalidSuggestion, status)
	}

	result, err := s.exec(ctx, `
		UPDATE rule_suggestions SET status = ?, rule_id = ?, resolved_at = ?
		WHERE id = ? AND status = ?
	`, string(status), nullInt64(ruleID), s.now(), id, string(model.SuggestionNew))
	if err != nil {
		return fmt.Errorf("failed to resolve rule suggestion: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	current, err := s.GetRuleSuggestion(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("rule suggestion %d is %s: %w", id, current.Status, common.ErrAlreadyResolved)
}

func scanSuggestion(row rowScanner) (*model.RuleSuggestion, error) {
	var (
		suggestion model.RuleSuggestion
		status     string
		ruleID     sql.NullInt64
		resolvedAt sql.NullTime
	)
	if err := row.Scan(
		&suggestion.ID, &suggestion.Merchant, &suggestion.Category, &status,
		&suggestion.Count, &suggestion.Total, &suggestion.Share, &ruleID,
		&suggestion.CreatedAt, &resolvedAt,
	); err != nil {
		return nil, err
	}
	suggestion.Status = model.SuggestionStatus(status)
	suggestion.RuleID = int64Ptr(ruleID)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		suggestion.ResolvedAt = &t
	}
	return &suggestion, nil
}
