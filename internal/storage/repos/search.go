package repos

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"quorum/internal/model"
)

const excerptLength = 200

type PostSearchFilters struct {
	Query         string
	Since         time.Time
	ExcludeUserID string
	PublicOnly    bool
	// Before continues a previous page: only rows strictly older than it are returned.
	Before *model.Cursor
	Limit  int
}

// SearchPosts returns matching posts ordered newest first by (created_at, id).
func (s *Store) SearchPosts(ctx context.Context, f PostSearchFilters) ([]model.SearchResult, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	match := ftsLiteralQuery(f.Query)
	if match == "" {
		return nil, nil
	}
	where := "WHERE p.id IN (SELECT rowid FROM posts_fts WHERE posts_fts MATCH ?) AND p.deleted_at IS NULL"
	args := []any{match}
	if !f.Since.IsZero() {
		where += " AND p.created_at >= ?"
		args = append(args, formatTS(f.Since))
	}
	if f.ExcludeUserID != "" {
		where += " AND p.user_id <> ?"
		args = append(args, f.ExcludeUserID)
	}
	if f.PublicOnly {
		where += " AND t.archetype = ? AND t.visible = 1"
		args = append(args, string(model.TopicArchetypeRegular))
	}
	if f.Before != nil {
		where += " AND (p.created_at < ? OR (p.created_at = ? AND p.id < ?))"
		ts := formatTS(f.Before.CreatedAt)
		args = append(args, ts, ts, f.Before.PostID)
	}
	query := `
SELECT p.id, p.post_number, p.topic_id, t.title, p.user_id, u.username, p.raw, p.created_at
FROM posts p
JOIN topics t ON t.id = p.topic_id
JOIN users u ON u.id = p.user_id
` + where + `
ORDER BY p.created_at DESC, p.id DESC
LIMIT ?`
	args = append(args, f.Limit)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SearchResult
	for rows.Next() {
		var (
			r       model.SearchResult
			raw     string
			created string
		)
		if err := rows.Scan(&r.PostID, &r.PostNumber, &r.TopicID, &r.TopicTitle, &r.AuthorID, &r.AuthorUsername, &raw, &created); err != nil {
			return nil, err
		}
		r.Excerpt = excerpt(raw, excerptLength)
		r.CreatedAt = parseTS(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func ftsLiteralQuery(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		quoted = append(quoted, `"`+strings.ReplaceAll(part, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func excerpt(raw string, limit int) string {
	text := strings.Join(strings.Fields(raw), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > limit/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
