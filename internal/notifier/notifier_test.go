package notifier

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"sort"
	"testing"
	"time"

	"quorum/internal/model"
)

type fakeStore struct {
	users    map[string]model.User
	terms    map[string][]string
	cursors  map[string]map[string]model.Cursor
	advanced int
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]model.User{},
		terms:   map[string][]string{},
		cursors: map[string]map[string]model.Cursor{},
	}
}

func (f *fakeStore) GetUser(_ context.Context, id string) (model.User, error) {
	if f.err != nil {
		return model.User{}, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) SavedSearches(_ context.Context, userID string) ([]string, error) {
	return f.terms[userID], nil
}

func (f *fakeStore) SearchCursors(_ context.Context, userID string) (map[string]model.Cursor, error) {
	out := map[string]model.Cursor{}
	for k, v := range f.cursors[userID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) AdvanceSearchCursors(_ context.Context, userID string, cursors map[string]model.Cursor) error {
	f.advanced++
	if f.cursors[userID] == nil {
		f.cursors[userID] = map[string]model.Cursor{}
	}
	for term, c := range cursors {
		if f.cursors[userID][term].Before(model.SearchResult{CreatedAt: c.CreatedAt, PostID: c.PostID}) {
			f.cursors[userID][term] = c
		}
	}
	return nil
}

// fakeSearcher ignores every scope filter so the notifier's own guards are exercised.
type fakeSearcher struct {
	posts   map[string][]model.SearchResult
	queries []model.SearchQuery
	err     error
}

func (f *fakeSearcher) add(term string, r model.SearchResult) {
	if f.posts == nil {
		f.posts = map[string][]model.SearchResult{}
	}
	f.posts[term] = append(f.posts[term], r)
	sort.Slice(f.posts[term], func(i, j int) bool {
		a, b := f.posts[term][i], f.posts[term][j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.PostID > b.PostID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (f *fakeSearcher) Search(_ context.Context, q model.SearchQuery) iter.Seq2[model.SearchResult, error] {
	f.queries = append(f.queries, q)
	return func(yield func(model.SearchResult, error) bool) {
		if f.err != nil {
			yield(model.SearchResult{}, f.err)
			return
		}
		for _, r := range f.posts[q.Term] {
			if !yield(r, nil) {
				return
			}
		}
	}
}

type fakeMessenger struct {
	delivered []model.SavedSearchSummary
	err       error
}

func (f *fakeMessenger) DeliverSavedSearchResults(_ context.Context, _ model.User, s model.SavedSearchSummary) (model.Topic, error) {
	if f.err != nil {
		return model.Topic{}, f.err
	}
	f.delivered = append(f.delivered, s)
	return model.Topic{ID: "topic-1"}, nil
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	store     *fakeStore
	searcher  *fakeSearcher
	messenger *fakeMessenger
	notifier  *Notifier
}

func newHarness(minTrust int) *harness {
	h := &harness{store: newFakeStore(), searcher: &fakeSearcher{}, messenger: &fakeMessenger{}}
	h.store.users["alice"] = model.User{ID: "alice", TrustLevel: 1}
	h.store.users["bob"] = model.User{ID: "bob", TrustLevel: 2}
	h.notifier = New(h.store, h.searcher, h.messenger, Options{
		MinTrustLevel: minTrust,
		Now:           func() time.Time { return fixedNow },
	})
	return h
}

func result(id int64, author string, age time.Duration) model.SearchResult {
	return model.SearchResult{PostID: id, AuthorID: author, TopicID: "t", TopicTitle: "t", CreatedAt: fixedNow.Add(-age)}
}

func TestExecuteNoops(t *testing.T) {
	cases := []struct {
		name     string
		minTrust int
		userID   string
		setup    func(h *harness)
		skipped  string
		searched bool
	}{
		{
			name:    "missing user",
			userID:  "ghost",
			skipped: SkipUserNotFound,
		},
		{
			name:     "no saved searches",
			minTrust: 1,
			userID:   "alice",
			skipped:  SkipNoSavedSearch,
		},
		{
			name:     "only blank terms",
			minTrust: 1,
			userID:   "alice",
			setup:    func(h *harness) { h.store.terms["alice"] = []string{" ", ""} },
			skipped:  SkipNoSavedSearch,
		},
		{
			name:     "trust level below minimum",
			minTrust: 2,
			userID:   "alice",
			setup: func(h *harness) {
				h.store.terms["alice"] = []string{"coupon"}
				h.searcher.add("coupon", result(1, "bob", time.Hour))
			},
			skipped: SkipTrustLevel,
		},
		{
			name:     "no results",
			minTrust: 1,
			userID:   "alice",
			setup:    func(h *harness) { h.store.terms["alice"] = []string{"coupon"} },
			skipped:  SkipNoNewResults,
			searched: true,
		},
		{
			name:     "only self-authored results",
			minTrust: 1,
			userID:   "alice",
			setup: func(h *harness) {
				h.store.terms["alice"] = []string{"coupon"}
				h.searcher.add("coupon", result(1, "alice", time.Hour))
			},
			skipped:  SkipNoNewResults,
			searched: true,
		},
		{
			name:     "only results outside the window",
			minTrust: 1,
			userID:   "alice",
			setup: func(h *harness) {
				h.store.terms["alice"] = []string{"coupon"}
				h.searcher.add("coupon", result(1, "bob", 48*time.Hour))
			},
			skipped:  SkipNoNewResults,
			searched: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(tc.minTrust)
			if tc.setup != nil {
				tc.setup(h)
			}
			res, err := h.notifier.Run(context.Background(), tc.userID)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Skipped != tc.skipped || res.Notified {
				t.Fatalf("expected skip %q, got %+v", tc.skipped, res)
			}
			if len(h.messenger.delivered) != 0 {
				t.Fatalf("expected no delivery, got %d", len(h.messenger.delivered))
			}
			if h.store.advanced != 0 {
				t.Fatal("cursors must not move on a no-op")
			}
			if searched := len(h.searcher.queries) > 0; searched != tc.searched {
				t.Fatalf("searched = %v, want %v", searched, tc.searched)
			}
		})
	}
}

func TestExecuteDeliversOneMessageAcrossTerms(t *testing.T) {
	h := newHarness(1)
	h.store.terms["alice"] = []string{"coupon", "discount", "coupon", "  "}
	h.searcher.add("coupon", result(1, "bob", 2*time.Hour))
	h.searcher.add("coupon", result(2, "alice", time.Hour))
	h.searcher.add("coupon", result(3, "bob", 30*time.Minute))
	h.searcher.add("discount", result(4, "bob", 10*time.Minute))

	res, err := h.notifier.Run(context.Background(), "alice")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Notified || res.Count != 3 || res.TopicID != "topic-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(h.messenger.delivered) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(h.messenger.delivered))
	}
	s := h.messenger.delivered[0]
	if len(s.Terms) != 2 || s.Terms[0].Term != "coupon" || s.Terms[1].Term != "discount" {
		t.Fatalf("unexpected summary terms %+v", s.Terms)
	}
	for _, tr := range s.Terms {
		for _, r := range tr.Results {
			if r.AuthorID == "alice" {
				t.Fatalf("self-authored result leaked: %+v", r)
			}
		}
	}
	if len(h.searcher.queries) != 2 {
		t.Fatalf("expected repeated term searched once, got %d queries", len(h.searcher.queries))
	}
	for _, q := range h.searcher.queries {
		if q.ExcludeUserID != "alice" || !q.PublicOnly || !q.Since.Equal(fixedNow.Add(-24*time.Hour)) {
			t.Fatalf("unexpected query scope %+v", q)
		}
	}
	if got := h.store.cursors["alice"]["coupon"]; got.PostID != 3 {
		t.Fatalf("expected coupon cursor at post 3, got %+v", got)
	}
	if got := h.store.cursors["alice"]["discount"]; got.PostID != 4 {
		t.Fatalf("expected discount cursor at post 4, got %+v", got)
	}
}

func TestExecuteSecondRunOnlyReportsNewResults(t *testing.T) {
	h := newHarness(1)
	ctx := context.Background()
	h.store.terms["alice"] = []string{"coupon"}
	h.searcher.add("coupon", result(1, "bob", 3*time.Hour))

	if err := h.notifier.Execute(ctx, "alice"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := h.store.cursors["alice"]["coupon"]

	res, err := h.notifier.Run(ctx, "alice")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Notified || len(h.messenger.delivered) != 1 {
		t.Fatalf("second run without new posts must not notify: %+v", res)
	}
	if h.store.cursors["alice"]["coupon"] != before {
		t.Fatal("cursor changed without new results")
	}

	h.searcher.add("coupon", result(2, "bob", time.Hour))
	res, err = h.notifier.Run(ctx, "alice")
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if !res.Notified || res.Count != 1 || len(h.messenger.delivered) != 2 {
		t.Fatalf("expected one new result, got %+v", res)
	}
	if got := h.messenger.delivered[1].Terms[0].Results[0].PostID; got != 2 {
		t.Fatalf("expected only post 2 reported, got %d", got)
	}
}

func TestExecuteCursorTieBreaksOnPostID(t *testing.T) {
	h := newHarness(1)
	h.store.terms["alice"] = []string{"coupon"}
	r := result(5, "bob", time.Hour)
	h.store.cursors["alice"] = map[string]model.Cursor{"coupon": model.CursorOf(r)}
	h.searcher.add("coupon", r)
	same := r
	same.PostID = 6
	h.searcher.add("coupon", same)

	res, err := h.notifier.Run(context.Background(), "alice")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Count != 1 || h.messenger.delivered[0].Terms[0].Results[0].PostID != 6 {
		t.Fatalf("expected only post 6, got %+v", res)
	}
}

func TestExecuteCapsResultsPerTerm(t *testing.T) {
	h := newHarness(1)
	h.notifier = New(h.store, h.searcher, h.messenger, Options{
		MinTrustLevel:     1,
		MaxResultsPerTerm: 2,
		Now:               func() time.Time { return fixedNow },
	})
	h.store.terms["alice"] = []string{"coupon"}
	for i := int64(1); i <= 5; i++ {
		h.searcher.add("coupon", result(i, "bob", time.Duration(i)*time.Minute))
	}
	res, err := h.notifier.Run(context.Background(), "alice")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("expected 2 results, got %d", res.Count)
	}
	if got := h.store.cursors["alice"]["coupon"]; got.PostID != 1 {
		t.Fatalf("expected cursor at newest post 1, got %+v", got)
	}
}

func TestExecuteErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")

	t.Run("store", func(t *testing.T) {
		h := newHarness(1)
		h.store.err = boom
		if err := h.notifier.Execute(context.Background(), "alice"); !errors.Is(err, boom) {
			t.Fatalf("expected store error, got %v", err)
		}
	})

	t.Run("search", func(t *testing.T) {
		h := newHarness(1)
		h.store.terms["alice"] = []string{"coupon"}
		h.searcher.err = boom
		if err := h.notifier.Execute(context.Background(), "alice"); !errors.Is(err, boom) {
			t.Fatalf("expected search error, got %v", err)
		}
		if h.store.advanced != 0 {
			t.Fatal("cursor advanced after search failure")
		}
	})

	t.Run("messenger", func(t *testing.T) {
		h := newHarness(1)
		h.store.terms["alice"] = []string{"coupon"}
		h.searcher.add("coupon", result(1, "bob", time.Hour))
		h.messenger.err = boom
		if err := h.notifier.Execute(context.Background(), "alice"); !errors.Is(err, boom) {
			t.Fatalf("expected messenger error, got %v", err)
		}
		if h.store.advanced != 0 {
			t.Fatal("cursor advanced after failed delivery")
		}
	})
}
