package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/links"
	"ArticlesDB/internal/metrics"
	"ArticlesDB/internal/ports"
	"ArticlesDB/internal/store"
)

const (
	defaultWorkers         = 16
	defaultPageConcurrency = 8
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Influencers ports.InfluencerSource
	Timelines   ports.TimelineSource
	Resolver    ports.Resolver
	Extractor   *links.Extractor
	Writer      ports.SnapshotWriter
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	// Workers bounds concurrent timeline fetches and, separately, concurrent article merges.
	Workers int
	// PageConcurrency bounds concurrent influencer page fetches after page 0.
	PageConcurrency int
}

// Pipeline builds the article database for one topic per Run.
type Pipeline struct {
	influencers     ports.InfluencerSource
	timelines       ports.TimelineSource
	resolver        ports.Resolver
	extractor       *links.Extractor
	writer          ports.SnapshotWriter
	metrics         *metrics.Metrics
	logger          *slog.Logger
	workers         int
	pageConcurrency int
}

// RunSummary reports what one run saw and produced.
type RunSummary struct {
	RunID           string
	Topic           string
	Influencers     int
	InfluencerPages int
	FailedPages     int
	FailedTimelines int
	Posts           int
	RejectedPosts   int
	Articles        int
	Duration        time.Duration
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	pageConcurrency := deps.PageConcurrency
	if pageConcurrency <= 0 {
		pageConcurrency = defaultPageConcurrency
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = links.NewExtractor(nil)
	}

	return &Pipeline{
		influencers:     deps.Influencers,
		timelines:       deps.Timelines,
		resolver:        deps.Resolver,
		extractor:       extractor,
		writer:          deps.Writer,
		metrics:         deps.Metrics,
		logger:          logger,
		workers:         workers,
		pageConcurrency: pageConcurrency,
	}
}

// runState is the per-run mutable state shared by every task of one Run.
type runState struct {
	logger *slog.Logger
	store  *store.Store

	mu   sync.Mutex
	seen map[string]struct{}

	timelines errgroup.Group
	merges    errgroup.Group

	influencers     atomic.Int64
	pages           atomic.Int64
	failedPages     atomic.Int64
	failedTimelines atomic.Int64
	posts           atomic.Int64
	rejected        atomic.Int64
}

// claim reports whether accountID has not been scheduled yet in this run.
func (s *runState) claim(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[accountID]; ok {
		return false
	}
	s.seen[accountID] = struct{}{}
	return true
}

// Run fetches the influencers of topic, walks their timelines, resolves every shared
// article once and writes the resulting collection. Failures of individual pages,
// timelines and resolutions are logged and skipped; a failed first influencer page,
// a cancelled context or a failed snapshot write fail the run.
func (p *Pipeline) Run(ctx context.Context, topic string) (RunSummary, error) {
	if p.influencers == nil || p.timelines == nil || p.resolver == nil || p.writer == nil {
		return RunSummary{}, errors.New("pipeline is not fully wired")
	}

	started := time.Now()
	summary := RunSummary{RunID: uuid.NewString(), Topic: topic}
	logger := p.logger.With("run_id", summary.RunID, "topic", topic)

	st := &runState{
		logger: logger,
		store:  store.New(),
		seen:   make(map[string]struct{}),
	}
	st.timelines.SetLimit(p.workers)
	st.merges.SetLimit(p.workers)

	first, err := p.influencers.FetchPage(ctx, topic, 0)
	if err != nil {
		p.metrics.InfluencerPage(metrics.StatusFailed)
		summary.FailedPages = 1
		summary.Duration = time.Since(started)
		return summary, fmt.Errorf("fetch influencer page 0: %w", err)
	}
	p.metrics.InfluencerPage(metrics.StatusOK)
	st.pages.Add(1)

	pageCount := domain.PageCount(first.Total, p.influencers.PageSize())
	logger.Info("influencer listing", "total", first.Total, "pages", pageCount)

	var pages errgroup.Group
	pages.SetLimit(p.pageConcurrency)
	pages.Go(func() error {
		p.schedule(ctx, st, first)
		return nil
	})
	for page := 1; page < pageCount; page++ {
		pages.Go(func() error {
			p.fetchPage(ctx, st, topic, page)
			return nil
		})
	}
	_ = pages.Wait()
	_ = st.timelines.Wait()
	_ = st.merges.Wait()

	summary.Influencers = int(st.influencers.Load())
	summary.InfluencerPages = int(st.pages.Load())
	summary.FailedPages = int(st.failedPages.Load())
	summary.FailedTimelines = int(st.failedTimelines.Load())
	summary.Posts = int(st.posts.Load())
	summary.RejectedPosts = int(st.rejected.Load())

	if err := ctx.Err(); err != nil {
		summary.Duration = time.Since(started)
		return summary, fmt.Errorf("run cancelled: %w", err)
	}

	articles := st.store.Articles()
	summary.Articles = len(articles)

	if err := p.writer.Write(ctx, articles); err != nil {
		summary.Duration = time.Since(started)
		if !errors.Is(err, domain.ErrPersistenceFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
		}
		return summary, fmt.Errorf("write snapshot to %s: %w", p.writer.Name(), err)
	}

	summary.Duration = time.Since(started)
	p.metrics.SetArticles(summary.Articles)
	p.metrics.ObserveRun(summary.Duration)

	logger.Info("run complete",
		"influencers", summary.Influencers,
		"pages", summary.InfluencerPages,
		"failed_pages", summary.FailedPages,
		"failed_timelines", summary.FailedTimelines,
		"posts", summary.Posts,
		"rejected_posts", summary.RejectedPosts,
		"articles", summary.Articles,
		"resolutions", st.store.Resolutions(),
		"duration", summary.Duration,
	)
	return summary, nil
}

func (p *Pipeline) fetchPage(ctx context.Context, st *runState, topic string, page int) {
	result, err := p.influencers.FetchPage(ctx, topic, page)
	if err != nil {
		p.metrics.InfluencerPage(metrics.StatusFailed)
		st.failedPages.Add(1)
		st.logger.Warn("influencer page failed", "page", page, "error", err)
		return
	}
	p.metrics.InfluencerPage(metrics.StatusOK)
	st.pages.Add(1)
	p.schedule(ctx, st, result)
}

// schedule starts one timeline task per influencer not seen earlier in the run. It
// blocks while the timeline group is at its limit.
func (p *Pipeline) schedule(ctx context.Context, st *runState, page domain.InfluencerPage) {
	for _, inf := range page.Influencers {
		if !st.claim(inf.AccountID) {
			continue
		}
		st.influencers.Add(1)

		accountID := inf.AccountID
		st.timelines.Go(func() error {
			p.processTimeline(ctx, st, accountID)
			return nil
		})
	}
}

func (p *Pipeline) processTimeline(ctx context.Context, st *runState, accountID string) {
	if ctx.Err() != nil {
		return
	}

	posts, err := p.timelines.FetchTimeline(ctx, accountID)
	if err != nil {
		st.failedTimelines.Add(1)
		st.logger.Warn("timeline incomplete", "account_id", accountID, "posts", len(posts), "error", err)
	}
	st.posts.Add(int64(len(posts)))
	p.metrics.Posts(len(posts))

	for _, post := range posts {
		link, ok, err := p.extractor.Extract(post, accountID)
		if err != nil {
			st.rejected.Add(1)
			p.metrics.LinkRejected(metrics.ReasonAuthorMismatch)
			st.logger.Error("post rejected", "account_id", accountID, "post_id", post.ID, "error", err)
			continue
		}
		if !ok {
			p.metrics.LinkRejected(metrics.ReasonNoArticleLink)
			continue
		}

		st.merges.Go(func() error {
			if err := st.store.MergeOrCreate(ctx, link.URL, post, p.resolver.Resolve); err != nil {
				st.logger.Debug("merge abandoned", "url", link.URL, "post_id", post.ID, "error", err)
			}
			return nil
		})
	}
}
