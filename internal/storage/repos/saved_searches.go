package repos

import (
	"context"
	"fmt"

	"quorum/internal/model"
)

// SavedSearches returns the user's terms in stored order.
func (s *Store) SavedSearches(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT term FROM saved_searches WHERE user_id = ? ORDER BY position ASC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, err
		}
		out = append(out, term)
	}
	return out, rows.Err()
}

// ReplaceSavedSearches overwrites the user's terms and drops cursors of terms
// that are no longer saved.
func (s *Store) ReplaceSavedSearches(ctx context.Context, userID string, terms []string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM saved_searches WHERE user_id = ?", userID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear saved searches: %w", err)
	}
	now := formatTS(s.nowUTC())
	for i, term := range terms {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO saved_searches(user_id, position, term, created_at) VALUES (?, ?, ?, ?)`,
			userID, i, term, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert saved search: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
DELETE FROM saved_search_cursors
WHERE user_id = ? AND term NOT IN (SELECT term FROM saved_searches WHERE user_id = ?)`,
		userID, userID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prune cursors: %w", err)
	}
	return tx.Commit()
}

// UsersWithSavedSearches lists ids of users that have at least one term.
func (s *Store) UsersWithSavedSearches(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT DISTINCT user_id FROM saved_searches ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) SearchCursors(ctx context.Context, userID string) (map[string]model.Cursor, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT term, last_created_at, last_post_id FROM saved_search_cursors WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]model.Cursor{}
	for rows.Next() {
		var (
			term    string
			created string
			c       model.Cursor
		)
		if err := rows.Scan(&term, &created, &c.PostID); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTS(created)
		out[term] = c
	}
	return out, rows.Err()
}

// AdvanceSearchCursors upserts cursors; a stored cursor is only ever moved forward.
func (s *Store) AdvanceSearchCursors(ctx context.Context, userID string, cursors map[string]model.Cursor) error {
	if len(cursors) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := formatTS(s.nowUTC())
	for term, c := range cursors {
		_, err := tx.ExecContext(ctx, `
INSERT INTO saved_search_cursors(user_id, term, last_created_at, last_post_id, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id, term) DO UPDATE SET
  last_created_at = excluded.last_created_at,
  last_post_id = excluded.last_post_id,
  updated_at = excluded.updated_at
WHERE (excluded.last_created_at, excluded.last_post_id)
    > (saved_search_cursors.last_created_at, saved_search_cursors.last_post_id)`,
			userID, term, formatTS(c.CreatedAt), c.PostID, now)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("advance cursor %q: %w", term, err)
		}
	}
	return tx.Commit()
}
