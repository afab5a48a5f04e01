package ports

import (
	"context"
	"net/http"

	"ArticlesDB/internal/domain"
)

// Fetcher is the cached fetch client contract. Implementations may serve a stored
// response instead of hitting the network; callers must close the body.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// InfluencerSource pages through the ranked accounts of a topic.
type InfluencerSource interface {
	FetchPage(ctx context.Context, topic string, page int) (domain.InfluencerPage, error)
	PageSize() int
}

// TimelineSource returns the recent posts of one account. On a page failure it returns
// the posts gathered so far together with the error.
type TimelineSource interface {
	FetchTimeline(ctx context.Context, accountID string) ([]domain.Post, error)
}

// Resolver turns a URL into article metadata and never fails; failures degrade to fallbacks.
type Resolver interface {
	Resolve(ctx context.Context, url string) domain.ArticleMetadata
}

// SnapshotWriter persists the final article collection.
type SnapshotWriter interface {
	Name() string
	Write(ctx context.Context, articles []domain.Article) error
}
