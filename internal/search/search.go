// Package search exposes post search as a lazy, recency-ordered sequence.
package search

import (
	"context"
	"iter"

	"quorum/internal/model"
	"quorum/internal/storage/repos"
)

const DefaultPageSize = 50

type PostSource interface {
	SearchPosts(ctx context.Context, f repos.PostSearchFilters) ([]model.SearchResult, error)
}

type PostSearcher struct {
	Source   PostSource
	PageSize int
}

func New(source PostSource) *PostSearcher {
	return &PostSearcher{Source: source, PageSize: DefaultPageSize}
}

// Search yields matches newest first. Pages are fetched only as the caller
// keeps ranging; every call starts from the newest match again.
func (s *PostSearcher) Search(ctx context.Context, q model.SearchQuery) iter.Seq2[model.SearchResult, error] {
	return func(yield func(model.SearchResult, error) bool) {
		pageSize := s.PageSize
		if pageSize <= 0 {
			pageSize = DefaultPageSize
		}
		filters := repos.PostSearchFilters{
			Query:         q.Term,
			ExcludeUserID: q.ExcludeUserID,
			PublicOnly:    q.PublicOnly,
			Since:         q.Since,
			Limit:         pageSize,
		}
		for {
			if err := ctx.Err(); err != nil {
				yield(model.SearchResult{}, err)
				return
			}
			page, err := s.Source.SearchPosts(ctx, filters)
			if err != nil {
				yield(model.SearchResult{}, err)
				return
			}
			for _, r := range page {
				if !yield(r, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			last := model.CursorOf(page[len(page)-1])
			filters.Before = &last
		}
	}
}
