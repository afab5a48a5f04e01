// Package metrics exposes prometheus counters for one pipeline run.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "articlesdb"

// Status and reason label values.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusEnvelope = "envelope"

	ReasonNoArticleLink  = "no_article_link"
	ReasonAuthorMismatch = "author_mismatch"
)

const shutdownTimeout = 5 * time.Second

// Metrics holds the run collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	influencerPages *prometheus.CounterVec
	timelinePages   *prometheus.CounterVec
	posts           prometheus.Counter
	linksRejected   *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	articles        prometheus.Gauge
	runDuration     prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		influencerPages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "influencer_pages_total",
			Help:      "Influencer pages fetched, by status",
		}, []string{"status"}),
		timelinePages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_pages_total",
			Help:      "Timeline pages fetched, by status",
		}, []string{"status"}),
		posts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Posts returned by timeline fetches",
		}),
		linksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_rejected_total",
			Help:      "Posts that contributed no article, by reason",
		}, []string{"reason"}),
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Article metadata resolutions, by outcome",
		}, []string{"outcome"}),
		articles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "articles",
			Help:      "Articles in the latest snapshot",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (m *Metrics) InfluencerPage(status string) {
	if m == nil {
		return
	}
	m.influencerPages.WithLabelValues(status).Inc()
}

func (m *Metrics) TimelinePage(status string) {
	if m == nil {
		return
	}
	m.timelinePages.WithLabelValues(status).Inc()
}

func (m *Metrics) Posts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.posts.Add(float64(n))
}

func (m *Metrics) LinkRejected(reason string) {
	if m == nil {
		return
	}
	m.linksRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Resolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetArticles(n int) {
	if m == nil {
		return
	}
	m.articles.Set(float64(n))
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics listener started", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
