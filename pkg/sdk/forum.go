package sdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type User struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	TrustLevel int       `json:"trust_level"`
	Admin      bool      `json:"admin"`
	CreatedAt  time.Time `json:"created_at"`
}

type Topic struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"user_id"`
	Archetype string    `json:"archetype"`
	Subtype   string    `json:"subtype,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Post struct {
	ID         int64     `json:"id"`
	TopicID    string    `json:"topic_id"`
	UserID     string    `json:"user_id"`
	PostNumber int       `json:"post_number"`
	Raw        string    `json:"raw"`
	CreatedAt  time.Time `json:"created_at"`
}

type SearchResult struct {
	PostID         int64     `json:"post_id"`
	PostNumber     int       `json:"post_number"`
	TopicID        string    `json:"topic_id"`
	TopicTitle     string    `json:"topic_title"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Excerpt        string    `json:"excerpt"`
	CreatedAt      time.Time `json:"created_at"`
}

type PrivateMessage struct {
	Topic Topic  `json:"topic"`
	Body  string `json:"body"`
}

// NotifyResult reports one notifier run.
type NotifyResult struct {
	Skipped  string `json:"skipped,omitempty"`
	Notified bool   `json:"notified"`
	TopicID  string `json:"topic_id,omitempty"`
	Count    int    `json:"count"`
}

type RunSummary struct {
	Users    int `json:"users"`
	Notified int `json:"notified"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type UsersService struct{ client *Client }

func (s *UsersService) Me(ctx context.Context) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	_, err := s.client.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &out)
	return out.User, err
}

// Create returns the new user and its API key. Admin only.
func (s *UsersService) Create(ctx context.Context, username string, trustLevel int, admin bool) (User, string, error) {
	var out struct {
		User   User   `json:"user"`
		APIKey string `json:"api_key"`
	}
	_, err := s.client.do(ctx, http.MethodPost, "/api/v1/users", map[string]any{
		"username":    username,
		"trust_level": trustLevel,
		"admin":       admin,
	}, &out)
	return out.User, out.APIKey, err
}

func (s *UsersService) Get(ctx context.Context, idOrUsername string) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	_, err := s.client.do(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(idOrUsername), nil, &out)
	return out.User, err
}

func (s *UsersService) SetTrustLevel(ctx context.Context, userID string, level int) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	_, err := s.client.do(ctx, http.MethodPut, "/api/v1/users/"+url.PathEscape(userID)+"/trust-level", map[string]any{
		"trust_level": level,
	}, &out)
	return out.User, err
}

func (s *UsersService) RotateKey(ctx context.Context, userID string) (string, error) {
	var out struct {
		APIKey string `json:"api_key"`
	}
	_, err := s.client.do(ctx, http.MethodPost, "/api/v1/users/"+url.PathEscape(userID)+"/rotate-key", map[string]any{}, &out)
	return out.APIKey, err
}

type SavedSearchesService struct{ client *Client }

func (s *SavedSearchesService) Get(ctx context.Context) ([]string, error) {
	var out struct {
		SavedSearches []string `json:"saved_searches"`
	}
	_, err := s.client.do(ctx, http.MethodGet, "/api/v1/users/me/saved-searches", nil, &out)
	return out.SavedSearches, err
}

// Set replaces the whole list and returns it normalized. An empty list
// clears it.
func (s *SavedSearchesService) Set(ctx context.Context, terms []string) ([]string, error) {
	if terms == nil {
		terms = []string{}
	}
	var out struct {
		SavedSearches []string `json:"saved_searches"`
	}
	_, err := s.client.do(ctx, http.MethodPut, "/api/v1/users/me/saved-searches", map[string]any{
		"saved_searches": terms,
	}, &out)
	return out.SavedSearches, err
}

type TopicsService struct{ client *Client }

func (s *TopicsService) Create(ctx context.Context, title, raw string) (Topic, Post, error) {
	var out struct {
		Topic Topic `json:"topic"`
		Post  Post  `json:"post"`
	}
	_, err := s.client.do(ctx, http.MethodPost, "/api/v1/topics", map[string]any{
		"title": title,
		"raw":   raw,
	}, &out)
	return out.Topic, out.Post, err
}

func (s *TopicsService) Reply(ctx context.Context, topicID, raw string) (Post, error) {
	var out struct {
		Post Post `json:"post"`
	}
	_, err := s.client.do(ctx, http.MethodPost, "/api/v1/topics/"+url.PathEscape(topicID)+"/posts", map[string]any{
		"raw": raw,
	}, &out)
	return out.Post, err
}

type SearchService struct{ client *Client }

// Posts runs a full-text search over public posts, newest first.
func (s *SearchService) Posts(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Results []SearchResult `json:"results"`
	}
	_, err := s.client.do(ctx, http.MethodGet, "/api/v1/search?"+q.Encode(), nil, &out)
	return out.Results, err
}

type MessagesService struct{ client *Client }

func (s *MessagesService) Inbox(ctx context.Context, page, perPage int) ([]PrivateMessage, Pagination, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	path := "/api/v1/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Messages []PrivateMessage `json:"messages"`
	}
	pg, err := s.client.do(ctx, http.MethodGet, path, nil, &out)
	if pg == nil {
		pg = &Pagination{}
	}
	return out.Messages, *pg, err
}

type AdminService struct{ client *Client }

func (s *AdminService) Stats(ctx context.Context) (map[string]int, error) {
	var out struct {
		Stats map[string]int `json:"stats"`
	}
	_, err := s.client.do(ctx, http.MethodGet, "/api/v1/admin/stats", nil, &out)
	return out.Stats, err
}

func (s *AdminService) Config(ctx context.Context) (map[string]any, error) {
	var out struct {
		Config map[string]any `json:"config"`
	}
	_, err := s.client.do(ctx, http.MethodGet, "/api/v1/admin/config", nil, &out)
	return out.Config, err
}

func (s *AdminService) Audit(ctx context.Context) ([]map[string]any, error) {
	var out struct {
		Entries []map[string]any `json:"entries"`
	}
	_, err := s.client.do(ctx, http.MethodGet, "/api/v1/admin/audit", nil, &out)
	return out.Entries, err
}

// RunSavedSearches runs the notifier for one user now.
func (s *AdminService) RunSavedSearches(ctx context.Context, userID string) (NotifyResult, error) {
	var out struct {
		Result NotifyResult `json:"result"`
	}
	_, err := s.client.do(ctx, http.MethodPost, "/api/v1/admin/saved-searches/run/"+url.PathEscape(userID), map[string]any{}, &out)
	return out.Result, err
}

func (s *AdminService) RunAllSavedSearches(ctx context.Context) (RunSummary, error) {
	var out struct {
		Summary RunSummary `json:"summary"`
	}
	_, err := s.client.do(ctx, http.MethodPost, "/api/v1/admin/saved-searches/run", map[string]any{}, &out)
	return out.Summary, err
}
