package model

import "time"

type User struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	TrustLevel int       `json:"trust_level"`
	Admin      bool      `json:"admin"`
	CreatedAt  time.Time `json:"created_at"`
}

type TopicArchetype string

const (
	TopicArchetypeRegular        TopicArchetype = "regular"
	TopicArchetypePrivateMessage TopicArchetype = "private_message"
)

type TopicSubtype string

const (
	TopicSubtypeNone          TopicSubtype = ""
	TopicSubtypeSystemMessage TopicSubtype = "system_message"
)

type Topic struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	UserID    string         `json:"user_id"`
	Archetype TopicArchetype `json:"archetype"`
	Subtype   TopicSubtype   `json:"subtype,omitempty"`
	Visible   bool           `json:"visible"`
	CreatedAt time.Time      `json:"created_at"`
}

type Post struct {
	ID         int64      `json:"id"`
	TopicID    string     `json:"topic_id"`
	UserID     string     `json:"user_id"`
	PostNumber int        `json:"post_number"`
	Raw        string     `json:"raw"`
	CreatedAt  time.Time  `json:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// PrivateMessage is a private_message topic together with its first post.
type PrivateMessage struct {
	Topic Topic  `json:"topic"`
	Body  string `json:"body"`
}

// SearchQuery scopes one saved-search lookup.
type SearchQuery struct {
	Term          string
	Since         time.Time
	ExcludeUserID string
	PublicOnly    bool
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

// Cursor marks the newest result already reported for one saved-search term.
// Results are ordered by (CreatedAt, PostID).
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	PostID    int64     `json:"post_id"`
}

func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.PostID == 0
}

// Before reports whether r is strictly newer than the cursor.
func (c Cursor) Before(r SearchResult) bool {
	if r.CreatedAt.After(c.CreatedAt) {
		return true
	}
	return r.CreatedAt.Equal(c.CreatedAt) && r.PostID > c.PostID
}

func CursorOf(r SearchResult) Cursor {
	return Cursor{CreatedAt: r.CreatedAt, PostID: r.PostID}
}

type TermResults struct {
	Term    string         `json:"term"`
	Results []SearchResult `json:"results"`
}

// SavedSearchSummary is everything new found in one notifier run.
type SavedSearchSummary struct {
	Terms []TermResults `json:"terms"`
}

func (s SavedSearchSummary) Total() int {
	n := 0
	for _, t := range s.Terms {
		n += len(t.Results)
	}
	return n
}

type NotificationKind string

const NotificationSavedSearchResults NotificationKind = "saved_search_results"

// Notification is pushed to a user's live mailbox.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	TopicID   string           `json:"topic_id,omitempty"`
	Title     string           `json:"title"`
	Count     int              `json:"count"`
	CreatedAt time.Time        `json:"created_at"`
}

type AuditLog struct {
	ID         string         `json:"id"`
	UserID     *string        `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID *string        `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}
