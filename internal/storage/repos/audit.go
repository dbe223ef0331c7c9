package repos

import (
	"context"

	"quorum/internal/model"
)

func (s *Store) AddAuditLog(ctx context.Context, entry model.AuditLog) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.nowUTC()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO audit_logs(id, user_id, action, resource, resource_id, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.Resource,
		entry.ResourceID,
		toJSON(entry.Metadata),
		formatTS(entry.CreatedAt),
	)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, action string, limit int) ([]model.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, action, resource, resource_id, metadata, created_at
FROM audit_logs WHERE action = ? ORDER BY created_at DESC LIMIT ?`, action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AuditLog
	for rows.Next() {
		var (
			e        model.AuditLog
			userID   *string
			resID    *string
			metadata string
			created  string
		)
		if err := rows.Scan(&e.ID, &userID, &e.Action, &e.Resource, &resID, &metadata, &created); err != nil {
			return nil, err
		}
		e.UserID = userID
		e.ResourceID = resID
		e.Metadata = fromJSON[map[string]any](metadata)
		e.CreatedAt = parseTS(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	tables := []string{
		"users",
		"topics",
		"posts",
		"saved_searches",
		"saved_search_cursors",
		"audit_logs",
	}
	out := map[string]int{}
	for _, t := range tables {
		c, err := s.Count(ctx, t)
		if err != nil {
			return nil, err
		}
		out[t] = c
	}
	return out, nil
}
