package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/finrules/internal/model"
)

// AddSuggestionIgnore adds a pair to the ignore list. Adding an existing
// pair is a no-op.
func (s *Store) AddSuggestionIgnore(ctx context.Context, merchant, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePair(merchant, category); err != nil {
		return err
	}

	_, err := s.exec(ctx, `
		INSERT INTO suggestion_ignores (merchant, category, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (merchant, category) DO NOTHING
	`, merchant, category, s.now())
	if err != nil {
		return fmt.Errorf("failed to add suggestion ignore: %w", err)
	}
	return nil
}

// ListSuggestionIgnores returns the ignore list ordered by pair.
func (s *Store) ListSuggestionIgnores(ctx context.Context) ([]model.SuggestionIgnore, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `
		SELECT merchant, category, created_at
		FROM suggestion_ignores
		ORDER BY merchant, category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestion ignores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ignores []model.SuggestionIgnore
	for rows.Next() {
		var ig model.SuggestionIgnore
		if err := rows.Scan(&ig.Merchant, &ig.Category, &ig.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion ignore: %w", err)
		}
		ignores = append(ignores, ig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestion ignores: %w", err)
	}
	return ignores, nil
}

// RemoveSuggestionIgnore deletes a pair from the ignore list.
func (s *Store) RemoveSuggestionIgnore(ctx context.Context, merchant, category string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePair(merchant, category); err != nil {
		return err
	}

	result, err := s.exec(ctx,
		`DELETE FROM suggestion_ignores WHERE merchant = ? AND category = ?`, merchant, category)
	if err != nil {
		return fmt.Errorf("failed to remove suggestion ignore: %w", err)
	}
	return expectAffected(result, fmt.Sprintf("ignore %s/%s", merchant, category))
}
