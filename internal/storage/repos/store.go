package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	DB *sql.DB
	// Now is the store clock; tests pin it to create posts in the past.
	Now func() time.Time
}

// timeFormat is fixed width so that lexical order in SQLite equals time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func New(db *sql.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) nowUTC() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func formatTS(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func newID() string {
	return uuid.NewString()
}

func toJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func fromJSON[T any](s string) T {
	var v T
	if strings.TrimSpace(s) == "" {
		return v
	}
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func parseTS(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseTSPtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTS(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) Count(ctx context.Context, table string) (int, error) {
	var c int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := s.DB.QueryRowContext(ctx, query).Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}
