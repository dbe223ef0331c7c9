package storage

import (
	"context"
	"path/filepath"
	"testing"

	"quorum/internal/config"
)

func TestMigrateIsIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "migrate.db")
	ctx := context.Background()

	db, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	first, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected migrations to be applied on a fresh database")
	}
	second, err := Migrate(ctx, db)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no pending migrations, got %v", second)
	}

	for _, table := range []string{"users", "topics", "posts", "posts_fts", "saved_searches", "saved_search_cursors"} {
		var name string
		if err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE name = ?", table).Scan(&name); err != nil {
			t.Fatalf("expected table %s: %v", table, err)
		}
	}
}
