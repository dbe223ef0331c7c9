package repos

import (
	"context"
	"database/sql"
	"fmt"

	"quorum/internal/model"
)

type CreateUserInput struct {
	ID         string
	Username   string
	TrustLevel int
	Admin      bool
	APIKeyHash string
}

func (s *Store) CreateUser(ctx context.Context, in CreateUserInput) (model.User, error) {
	if in.ID == "" {
		in.ID = newID()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO users(id, username, trust_level, admin, api_key_hash, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID,
		in.Username,
		in.TrustLevel,
		boolToInt(in.Admin),
		nullString(in.APIKeyHash),
		formatTS(s.nowUTC()),
	)
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUser(ctx, in.ID)
}

func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, username, trust_level, admin, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, username, trust_level, admin, created_at FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *Store) GetUserByAPIKeyHash(ctx context.Context, hash string) (model.User, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, username, trust_level, admin, created_at FROM users WHERE api_key_hash = ?`, hash)
	return scanUser(row)
}

func (s *Store) SetTrustLevel(ctx context.Context, id string, level int) (model.User, error) {
	res, err := s.DB.ExecContext(ctx, "UPDATE users SET trust_level = ? WHERE id = ?", level, id)
	if err != nil {
		return model.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.User{}, sql.ErrNoRows
	}
	return s.GetUser(ctx, id)
}

func (s *Store) RotateAPIKey(ctx context.Context, id, hash string) error {
	res, err := s.DB.ExecContext(ctx, "UPDATE users SET api_key_hash = ? WHERE id = ?", hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanUser(row scanner) (model.User, error) {
	var (
		u       model.User
		admin   int
		created string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.TrustLevel, &admin, &created); err != nil {
		return model.User{}, err
	}
	u.Admin = admin == 1
	u.CreatedAt = parseTS(created)
	return u, nil
}
