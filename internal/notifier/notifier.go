// Package notifier implements the saved-search notification job: for one
// user, re-run every saved search term, and when anything new turned up
// since the last report, send a single system message and advance the
// per-term cursors.
package notifier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"quorum/internal/logging"
	"quorum/internal/model"
)

const (
	DefaultRecencyWindow     = 24 * time.Hour
	DefaultMaxResultsPerTerm = 10
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	SavedSearches(ctx context.Context, userID string) ([]string, error)
	SearchCursors(ctx context.Context, userID string) (map[string]model.Cursor, error)
	AdvanceSearchCursors(ctx context.Context, userID string, cursors map[string]model.Cursor) error
}

// Searcher yields matches newest first.
type Searcher interface {
	Search(ctx context.Context, q model.SearchQuery) iter.Seq2[model.SearchResult, error]
}

type Messenger interface {
	DeliverSavedSearchResults(ctx context.Context, recipient model.User, summary model.SavedSearchSummary) (model.Topic, error)
}

type Options struct {
	MinTrustLevel     int
	RecencyWindow     time.Duration
	MaxResultsPerTerm int
	Now               func() time.Time
	Logger            *slog.Logger
}

// Result describes what one Execute call did.
type Result struct {
	Skipped  string `json:"skipped,omitempty"`
	Notified bool   `json:"notified"`
	TopicID  string `json:"topic_id,omitempty"`
	Count    int    `json:"count"`
}

const (
	SkipUserNotFound  = "user_not_found"
	SkipTrustLevel    = "trust_level"
	SkipNoSavedSearch = "no_saved_searches"
	SkipNoNewResults  = "no_new_results"
)

type Notifier struct {
	users     UserStore
	searcher  Searcher
	messenger Messenger
	opts      Options
	log       *slog.Logger
}

func New(users UserStore, searcher Searcher, messenger Messenger, opts Options) *Notifier {
	if opts.RecencyWindow <= 0 {
		opts.RecencyWindow = DefaultRecencyWindow
	}
	if opts.MaxResultsPerTerm <= 0 {
		opts.MaxResultsPerTerm = DefaultMaxResultsPerTerm
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Notifier{
		users:     users,
		searcher:  searcher,
		messenger: messenger,
		opts:      opts,
		log:       logger.With("job", "saved_search_notification"),
	}
}

// Execute runs the job for one user. Expected no-ops return a nil error.
func (n *Notifier) Execute(ctx context.Context, userID string) error {
	_, err := n.Run(ctx, userID)
	return err
}

func (n *Notifier) Run(ctx context.Context, userID string) (Result, error) {
	user, err := n.users.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		n.log.Debug("user not found", "user_id", userID)
		return Result{Skipped: SkipUserNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user.TrustLevel < n.opts.MinTrustLevel {
		return Result{Skipped: SkipTrustLevel}, nil
	}

	terms, err := n.users.SavedSearches(ctx, user.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load saved searches: %w", err)
	}
	terms = distinctTerms(terms)
	if len(terms) == 0 {
		return Result{Skipped: SkipNoSavedSearch}, nil
	}

	cursors, err := n.users.SearchCursors(ctx, user.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load search cursors: %w", err)
	}

	since := n.opts.Now().UTC().Add(-n.opts.RecencyWindow)
	var summary model.SavedSearchSummary
	advanced := map[string]model.Cursor{}
	for _, term := range terms {
		results, err := n.newResults(ctx, user, term, since, cursors[term])
		if err != nil {
			return Result{}, fmt.Errorf("search %q: %w", term, err)
		}
		if len(results) == 0 {
			continue
		}
		summary.Terms = append(summary.Terms, model.TermResults{Term: term, Results: results})
		advanced[term] = model.CursorOf(results[0])
	}

	if summary.Total() == 0 {
		return Result{Skipped: SkipNoNewResults}, nil
	}

	topic, err := n.messenger.DeliverSavedSearchResults(ctx, user, summary)
	if err != nil {
		return Result{}, fmt.Errorf("deliver saved search results: %w", err)
	}
	if err := n.users.AdvanceSearchCursors(ctx, user.ID, advanced); err != nil {
		return Result{}, fmt.Errorf("advance search cursors: %w", err)
	}
	n.log.Info("saved search results delivered",
		"user_id", user.ID, "topic_id", topic.ID, "terms", len(summary.Terms), "results", summary.Total())
	return Result{Notified: true, TopicID: topic.ID, Count: summary.Total()}, nil
}

// newResults consumes the recency-ordered sequence until it reaches the
// cursor or the per-term cap.
func (n *Notifier) newResults(ctx context.Context, user model.User, term string, since time.Time, cursor model.Cursor) ([]model.SearchResult, error) {
	q := model.SearchQuery{
		Term:          term,
		Since:         since,
		ExcludeUserID: user.ID,
		PublicOnly:    true,
	}
	var out []model.SearchResult
	for r, err := range n.searcher.Search(ctx, q) {
		if err != nil {
			return nil, err
		}
		if !cursor.Before(r) {
			break
		}
		// A searcher that ignores the scope must still never leak these.
		if r.AuthorID == user.ID || r.CreatedAt.Before(since) {
			continue
		}
		out = append(out, r)
		if len(out) >= n.opts.MaxResultsPerTerm {
			break
		}
	}
	return out, nil
}

func distinctTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
