package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/links"
	"ArticlesDB/internal/logging"
	"ArticlesDB/internal/metrics"
	"ArticlesDB/internal/ports"
)

type fakeInfluencers struct {
	total    int
	pageSize int
	pages    map[int][]string
	fail     map[int]error

	mu    sync.Mutex
	calls []int
}

func (f *fakeInfluencers) PageSize() int { return f.pageSize }

func (f *fakeInfluencers) FetchPage(_ context.Context, _ string, page int) (domain.InfluencerPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	f.mu.Unlock()

	if err := f.fail[page]; err != nil {
		return domain.InfluencerPage{}, err
	}
	out := domain.InfluencerPage{Page: page, Total: f.total}
	for i, id := range f.pages[page] {
		out.Influencers = append(out.Influencers, domain.Influencer{AccountID: id, Score: float64(100 - i)})
	}
	return out, nil
}

func (f *fakeInfluencers) calledPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

type fakeTimelines struct {
	posts map[string][]domain.Post
	errs  map[string]error
}

func (f *fakeTimelines) FetchTimeline(_ context.Context, accountID string) ([]domain.Post, error) {
	return f.posts[accountID], f.errs[accountID]
}

type countingResolver struct {
	delay time.Duration

	mu     sync.Mutex
	counts map[string]int
}

func (r *countingResolver) Resolve(ctx context.Context, url string) domain.ArticleMetadata {
	r.mu.Lock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[url]++
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
		}
	}
	return domain.ArticleMetadata{Title: "title of " + url, Description: "d", Domain: "example.com"}
}

func (r *countingResolver) count(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[url]
}

type memWriter struct {
	err      error
	calls    int
	articles []domain.Article
}

func (w *memWriter) Name() string { return "memory" }

func (w *memWriter) Write(_ context.Context, articles []domain.Article) error {
	w.calls++
	w.articles = articles
	return w.err
}

func post(id, author string, urls ...string) domain.Post {
	return domain.Post{ID: id, AuthorID: author, Links: urls}
}

func newTestPipeline(inf *fakeInfluencers, tl ports.TimelineSource, res *countingResolver, w *memWriter) *Pipeline {
	return NewPipeline(PipelineDeps{
		Influencers:     inf,
		Timelines:       tl,
		Resolver:        res,
		Extractor:       links.NewExtractor([]string{"twitter.com", "x.com", "t.co"}),
		Writer:          w,
		Metrics:         metrics.New(),
		Logger:          logging.Discard(),
		Workers:         4,
		PageConcurrency: 2,
	})
}

func byURL(articles []domain.Article) map[string]domain.Article {
	out := make(map[string]domain.Article, len(articles))
	for _, a := range articles {
		out[a.URL] = a
	}
	return out
}

func postIDs(a domain.Article) []string {
	ids := make([]string, 0, len(a.Posts))
	for _, p := range a.Posts {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids
}

const (
	urlX = "https://example.com/x"
	urlY = "https://example.com/y"
)

func TestRunBuildsArticleDatabase(t *testing.T) {
	t.Parallel()

	inf := &fakeInfluencers{
		total:    120,
		pageSize: 50,
		pages: map[int][]string{
			0: {"a"},
			1: {"b"},
			2: {"c", "a"},
		},
	}
	tl := &fakeTimelines{posts: map[string][]domain.Post{
		"a": {
			post("p1", "a", urlX),
			post("p2", "a", "https://twitter.com/a/status/9"),
			post("p3", "a", "https://t.co/abc", urlY),
		},
		"b": {post("p4", "b", urlX)},
		"c": {post("p5", "z", urlX)},
	}}
	res := &countingResolver{}
	w := &memWriter{}

	summary, err := newTestPipeline(inf, tl, res, w).Run(context.Background(), "tesla")
	require.NoError(t, err)

	calls := inf.calledPages()
	require.NotEmpty(t, calls)
	assert.Equal(t, 0, calls[0], "page 0 is fetched before any other page")
	assert.ElementsMatch(t, []int{0, 1, 2}, calls)

	require.Equal(t, 1, w.calls)
	got := byURL(w.articles)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"p1", "p4"}, postIDs(got[urlX]))
	assert.Equal(t, []string{"p3"}, postIDs(got[urlY]))
	assert.Equal(t, "title of "+urlX, got[urlX].Title)

	assert.Equal(t, 1, res.count(urlX))
	assert.Equal(t, 1, res.count(urlY))

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, "tesla", summary.Topic)
	assert.Equal(t, 3, summary.Influencers)
	assert.Equal(t, 3, summary.InfluencerPages)
	assert.Equal(t, 0, summary.FailedPages)
	assert.Equal(t, 5, summary.Posts)
	assert.Equal(t, 1, summary.RejectedPosts)
	assert.Equal(t, 2, summary.Articles)
}

func TestRunRejectsForeignAuthorOnly(t *testing.T) {
	t.Parallel()

	inf := &fakeInfluencers{total: 1, pageSize: 50, pages: map[int][]string{0: {"owner"}}}
	tl := &fakeTimelines{posts: map[string][]domain.Post{
		"owner": {
			post("mine", "owner", urlX),
			post("theirs", "someone-else", urlY),
			post("no-link", "someone-else"),
		},
	}}
	w := &memWriter{}

	summary, err := newTestPipeline(inf, tl, &countingResolver{}, w).Run(context.Background(), "tesla")
	require.NoError(t, err)

	got := byURL(w.articles)
	assert.Contains(t, got, urlX)
	assert.NotContains(t, got, urlY)
	assert.Equal(t, 1, summary.RejectedPosts)
}

func TestRunAbortsWhenFirstPageFails(t *testing.T) {
	t.Parallel()

	inf := &fakeInfluencers{
		pageSize: 50,
		fail:     map[int]error{0: &domain.FetchError{URL: "https://api/page0", StatusCode: 503}},
	}
	w := &memWriter{}

	summary, err := newTestPipeline(inf, &fakeTimelines{}, &countingResolver{}, w).Run(context.Background(), "tesla")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrFetchFailed)
	assert.Equal(t, 0, w.calls, "no snapshot is written without a listing")
	assert.Equal(t, 1, summary.FailedPages)
}

func TestRunToleratesLaterPageFailures(t *testing.T) {
	t.Parallel()

	inf := &fakeInfluencers{
		total:    150,
		pageSize: 50,
		pages:    map[int][]string{0: {"a"}, 2: {"c"}},
		fail:     map[int]error{1: &domain.FetchError{URL: "https://api/page1", StatusCode: 500}},
	}
	tl := &fakeTimelines{posts: map[string][]domain.Post{
		"a": {post("p1", "a", urlX)},
		"c": {post("p2", "c", urlY)},
	}}
	w := &memWriter{}

	summary, err := newTestPipeline(inf, tl, &countingResolver{}, w).Run(context.Background(), "tesla")
	require.NoError(t, err)
	assert.Len(t, w.articles, 2)
	assert.Equal(t, 1, summary.FailedPages)
	assert.Equal(t, 2, summary.InfluencerPages)
}

func TestRunKeepsPartialTimelines(t *testing.T) {
	t.Parallel()

	inf := &fakeInfluencers{total: 2, pageSize: 50, pages: map[int][]string{0: {"a", "b"}}}
	tl := &fakeTimelines{
		posts: map[string][]domain.Post{
			"a": {post("p1", "a", urlX)},
			"b": {post("p2", "b", urlY)},
		},
		errs: map[string]error{"a": &domain.FetchError{URL: "https://api/timeline", StatusCode: 429}},
	}
	w := &memWriter{}

	summary, err := newTestPipeline(inf, tl, &countingResolver{}, w).Run(context.Background(), "tesla")
	require.NoError(t, err)
	assert.Len(t, w.articles, 2)
	assert.Equal(t, 1, summary.FailedTimelines)
}

func TestRunEmptyListingWritesEmptySnapshot(t *testing.T) {
	t.Parallel()

	inf := &fakeInfluencers{total: 0, pageSize: 50}
	w := &memWriter{}

	summary, err := newTestPipeline(inf, &fakeTimelines{}, &countingResolver{}, w).Run(context.Background(), "tesla")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, inf.calledPages())
	assert.Equal(t, 1, w.calls)
	assert.NotNil(t, w.articles)
	assert.Empty(t, w.articles)
	assert.Equal(t, 0, summary.Articles)
}

func TestRunPersistenceFailureIsFatal(t *testing.T) {
	t.Parallel()

	inf := &fakeInfluencers{total: 1, pageSize: 50, pages: map[int][]string{0: {"a"}}}
	tl := &fakeTimelines{posts: map[string][]domain.Post{"a": {post("p1", "a", urlX)}}}
	w := &memWriter{err: errors.New("disk full")}

	_, err := newTestPipeline(inf, tl, &countingResolver{}, w).Run(context.Background(), "tesla")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistenceFailed)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunResolvesSharedURLOnce(t *testing.T) {
	t.Parallel()

	const accounts = 30
	ids := make([]string, accounts)
	posts := make(map[string][]domain.Post, accounts)
	for i := range ids {
		id := fmt.Sprintf("acct-%d", i)
		ids[i] = id
		posts[id] = []domain.Post{post("post-"+id, id, urlX)}
	}

	inf := &fakeInfluencers{total: accounts, pageSize: 50, pages: map[int][]string{0: ids}}
	res := &countingResolver{delay: 20 * time.Millisecond}
	w := &memWriter{}

	_, err := newTestPipeline(inf, &fakeTimelines{posts: posts}, res, w).Run(context.Background(), "tesla")
	require.NoError(t, err)

	assert.Equal(t, 1, res.count(urlX))
	require.Len(t, w.articles, 1)
	assert.Len(t, w.articles[0].Posts, accounts)
}

func TestRunCancelledContextSkipsSnapshot(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	inf := &fakeInfluencers{total: 1, pageSize: 50, pages: map[int][]string{0: {"a"}}}
	tl := &cancellingTimelines{cancel: cancel}
	w := &memWriter{}

	_, err := newTestPipeline(inf, tl, &countingResolver{}, w).Run(ctx, "tesla")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, w.calls)
}

type cancellingTimelines struct {
	cancel context.CancelFunc
}

func (c *cancellingTimelines) FetchTimeline(ctx context.Context, _ string) ([]domain.Post, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestRunRequiresWiring(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(PipelineDeps{}).Run(context.Background(), "tesla")
	require.Error(t, err)
}
