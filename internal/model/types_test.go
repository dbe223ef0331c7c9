package model

import (
	"testing"
	"time"
)

func TestCursorBefore(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cur := Cursor{CreatedAt: base, PostID: 10}

	cases := []struct {
		name string
		r    SearchResult
		want bool
	}{
		{name: "newer timestamp", r: SearchResult{CreatedAt: base.Add(time.Second), PostID: 1}, want: true},
		{name: "same timestamp higher id", r: SearchResult{CreatedAt: base, PostID: 11}, want: true},
		{name: "same timestamp same id", r: SearchResult{CreatedAt: base, PostID: 10}, want: false},
		{name: "same timestamp lower id", r: SearchResult{CreatedAt: base, PostID: 9}, want: false},
		{name: "older", r: SearchResult{CreatedAt: base.Add(-time.Second), PostID: 99}, want: false},
	}
	for _, tc := range cases {
		if got := cur.Before(tc.r); got != tc.want {
			t.Fatalf("%s: Before = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestZeroCursorAcceptsEverything(t *testing.T) {
	var cur Cursor
	if !cur.IsZero() {
		t.Fatal("expected zero cursor")
	}
	if !cur.Before(SearchResult{CreatedAt: time.Unix(1, 0), PostID: 1}) {
		t.Fatal("zero cursor must accept any result")
	}
}

func TestSummaryTotal(t *testing.T) {
	s := SavedSearchSummary{Terms: []TermResults{
		{Term: "coupon", Results: make([]SearchResult, 2)},
		{Term: "discount", Results: make([]SearchResult, 1)},
	}}
	if s.Total() != 3 {
		t.Fatalf("expected 3, got %d", s.Total())
	}
}
