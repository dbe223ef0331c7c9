package repos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"quorum/internal/model"
)

type CreateTopicInput struct {
	ID        string
	Title     string
	UserID    string
	Archetype model.TopicArchetype
	Subtype   model.TopicSubtype
	Hidden    bool
	// Raw is the body of the first post.
	Raw string
	// AllowedUserIDs restricts a private_message topic to these users.
	AllowedUserIDs []string
	// CreatedAt overrides the store clock when set.
	CreatedAt time.Time
}

type CreatePostInput struct {
	TopicID   string
	UserID    string
	Raw       string
	CreatedAt time.Time
}

// CreateTopic inserts a topic, its first post and its allowed users in one transaction.
func (s *Store) CreateTopic(ctx context.Context, in CreateTopicInput) (model.Topic, model.Post, error) {
	if in.ID == "" {
		in.ID = newID()
	}
	if in.Archetype == "" {
		in.Archetype = model.TopicArchetypeRegular
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = s.nowUTC()
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Topic{}, model.Post{}, err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO topics(id, title, user_id, archetype, subtype, visible, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID,
		in.Title,
		in.UserID,
		string(in.Archetype),
		nullString(string(in.Subtype)),
		boolToInt(!in.Hidden),
		formatTS(created),
	)
	if err != nil {
		_ = tx.Rollback()
		return model.Topic{}, model.Post{}, fmt.Errorf("insert topic: %w", err)
	}
	postID, err := insertPost(ctx, tx, in.ID, in.UserID, in.Raw, created)
	if err != nil {
		_ = tx.Rollback()
		return model.Topic{}, model.Post{}, err
	}
	seen := map[string]struct{}{}
	for _, uid := range in.AllowedUserIDs {
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO topic_allowed_users(topic_id, user_id, created_at) VALUES (?, ?, ?)`,
			in.ID, uid, formatTS(created)); err != nil {
			_ = tx.Rollback()
			return model.Topic{}, model.Post{}, fmt.Errorf("insert allowed user: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Topic{}, model.Post{}, err
	}
	topic, err := s.GetTopic(ctx, in.ID)
	if err != nil {
		return model.Topic{}, model.Post{}, err
	}
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return model.Topic{}, model.Post{}, err
	}
	return topic, post, nil
}

func (s *Store) CreatePost(ctx context.Context, in CreatePostInput) (model.Post, error) {
	created := in.CreatedAt
	if created.IsZero() {
		created = s.nowUTC()
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Post{}, err
	}
	id, err := insertPost(ctx, tx, in.TopicID, in.UserID, in.Raw, created)
	if err != nil {
		_ = tx.Rollback()
		return model.Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Post{}, err
	}
	return s.GetPost(ctx, id)
}

func insertPost(ctx context.Context, tx *sql.Tx, topicID, userID, raw string, created time.Time) (int64, error) {
	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(post_number), 0) + 1 FROM posts WHERE topic_id = ?", topicID).Scan(&next); err != nil {
		return 0, fmt.Errorf("next post number: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO posts(topic_id, user_id, post_number, raw, created_at)
VALUES (?, ?, ?, ?, ?)`,
		topicID, userID, next, raw, formatTS(created))
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetTopic(ctx context.Context, id string) (model.Topic, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, title, user_id, archetype, subtype, visible, created_at FROM topics WHERE id = ?`, id)
	return scanTopic(row)
}

// IsTopicAllowed reports whether userID is listed on a private topic.
func (s *Store) IsTopicAllowed(ctx context.Context, topicID, userID string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM topic_allowed_users WHERE topic_id = ? AND user_id = ?", topicID, userID).Scan(&n)
	return n > 0, err
}

func (s *Store) GetPost(ctx context.Context, id int64) (model.Post, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, topic_id, user_id, post_number, raw, created_at, deleted_at FROM posts WHERE id = ?`, id)
	return scanPost(row)
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, "UPDATE posts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		formatTS(s.nowUTC()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountTopicsBySubtype counts topics of the given subtype; TopicSubtypeNone counts every topic.
func (s *Store) CountTopicsBySubtype(ctx context.Context, subtype model.TopicSubtype) (int, error) {
	var c int
	var err error
	if subtype == model.TopicSubtypeNone {
		err = s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM topics").Scan(&c)
	} else {
		err = s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM topics WHERE subtype = ?", string(subtype)).Scan(&c)
	}
	return c, err
}

// ListPrivateMessages returns the private messages a user may read, newest first.
func (s *Store) ListPrivateMessages(ctx context.Context, userID string, page, perPage int) ([]model.PrivateMessage, int, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	var total int
	if err := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM topics t
JOIN topic_allowed_users tau ON tau.topic_id = t.id
WHERE tau.user_id = ? AND t.archetype = ?`, userID, string(model.TopicArchetypePrivateMessage)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT t.id, t.title, t.user_id, t.archetype, t.subtype, t.visible, t.created_at, COALESCE(p.raw, '')
FROM topics t
JOIN topic_allowed_users tau ON tau.topic_id = t.id
LEFT JOIN posts p ON p.topic_id = t.id AND p.post_number = 1
WHERE tau.user_id = ? AND t.archetype = ?
ORDER BY t.created_at DESC
LIMIT ? OFFSET ?`,
		userID, string(model.TopicArchetypePrivateMessage), perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.PrivateMessage
	for rows.Next() {
		var (
			pm        model.PrivateMessage
			archetype string
			subtype   sql.NullString
			visible   int
			created   string
		)
		if err := rows.Scan(&pm.Topic.ID, &pm.Topic.Title, &pm.Topic.UserID, &archetype, &subtype, &visible, &created, &pm.Body); err != nil {
			return nil, 0, err
		}
		pm.Topic.Archetype = model.TopicArchetype(archetype)
		pm.Topic.Subtype = model.TopicSubtype(subtype.String)
		pm.Topic.Visible = visible == 1
		pm.Topic.CreatedAt = parseTS(created)
		out = append(out, pm)
	}
	return out, total, rows.Err()
}

func scanTopic(row scanner) (model.Topic, error) {
	var (
		t         model.Topic
		archetype string
		subtype   sql.NullString
		visible   int
		created   string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.UserID, &archetype, &subtype, &visible, &created); err != nil {
		return model.Topic{}, err
	}
	t.Archetype = model.TopicArchetype(archetype)
	t.Subtype = model.TopicSubtype(subtype.String)
	t.Visible = visible == 1
	t.CreatedAt = parseTS(created)
	return t, nil
}

func scanPost(row scanner) (model.Post, error) {
	var (
		p       model.Post
		created string
		deleted sql.NullString
	)
	if err := row.Scan(&p.ID, &p.TopicID, &p.UserID, &p.PostNumber, &p.Raw, &created, &deleted); err != nil {
		return model.Post{}, err
	}
	p.CreatedAt = parseTS(created)
	p.DeletedAt = parseTSPtr(deleted)
	return p, nil
}
