// Package store accumulates articles keyed by URL while many workers discover them.
package store

import (
	"context"
	"errors"
	"sync"

	"ArticlesDB/internal/domain"
)

// ErrUnresolved is returned to callers that waited on a resolution that never produced
// an article.
var ErrUnresolved = errors.New("article resolution did not complete")

// ResolveFunc produces metadata for a URL. It is called at most once per URL.
type ResolveFunc func(ctx context.Context, url string) domain.ArticleMetadata

// entry is published under the store lock before its article is resolved; ready is
// closed once resolution returns, leaving article nil if it panicked.
type entry struct {
	ready   chan struct{}
	article *domain.Article
	postIDs map[string]struct{}
}

// Store is a concurrency-safe, URL-keyed article accumulator.
type Store struct {
	mu          sync.Mutex
	entries     map[string]*entry
	order       []string
	resolutions int
}

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// MergeOrCreate attaches post to the article for url, creating and resolving it on
// first sighting. Concurrent callers for the same url wait for that resolution instead
// of starting their own. Waiters fail with ctx cancellation or, when the resolution
// they waited on panicked, ErrUnresolved.
func (s *Store) MergeOrCreate(ctx context.Context, url string, post domain.Post, resolve ResolveFunc) error {
	s.mu.Lock()
	e, exists := s.entries[url]
	if !exists {
		e = &entry{ready: make(chan struct{}), postIDs: make(map[string]struct{})}
		s.entries[url] = e
		s.order = append(s.order, url)
		s.resolutions++
	}
	s.mu.Unlock()

	if !exists {
		defer close(e.ready)
		meta := resolve(ctx, url)
		article := domain.NewArticle(url, meta, post)

		s.mu.Lock()
		e.article = &article
		e.postIDs[post.ID] = struct{}{}
		s.mu.Unlock()
		return nil
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.article == nil {
		return ErrUnresolved
	}
	if _, dup := e.postIDs[post.ID]; dup {
		return nil
	}
	e.postIDs[post.ID] = struct{}{}
	e.article.Posts = append(e.article.Posts, post)
	return nil
}

// Articles returns copies of all resolved articles in first-sighting order.
func (s *Store) Articles() []domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Article, 0, len(s.order))
	for _, url := range s.order {
		e := s.entries[url]
		if e.article == nil {
			continue
		}
		out = append(out, e.article.Clone())
	}
	return out
}

// Len reports the number of distinct URLs seen, resolved or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Resolutions reports how many resolutions were started.
func (s *Store) Resolutions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolutions
}
