package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"ArticlesDB/internal/config"
	"ArticlesDB/internal/infrastructure/hive"
	"ArticlesDB/internal/infrastructure/httpcache"
	"ArticlesDB/internal/infrastructure/httpclient"
	"ArticlesDB/internal/infrastructure/metadata"
	"ArticlesDB/internal/infrastructure/snapshot"
	"ArticlesDB/internal/infrastructure/storage"
	"ArticlesDB/internal/infrastructure/twitter"
	"ArticlesDB/internal/links"
	"ArticlesDB/internal/logging"
	"ArticlesDB/internal/metrics"
	"ArticlesDB/internal/ports"
	"ArticlesDB/internal/sink"
	"ArticlesDB/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	metrics  *metrics.Metrics
	closers  []func() error
}

// New builds a runnable application from cfg. Optional backends (redis cache,
// Postgres sink) are connected here; Close releases them.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	fetcher := a.buildFetcher(ctx)

	influencers := hive.NewSource(
		fetcher,
		cfg.Influencers.BaseURL,
		cfg.Influencers.Token,
		cfg.Influencers.PageSize,
		baseLogger.With("component", "influencers"),
	)

	timelines := twitter.NewTimelineSource(fetcher, twitter.Options{
		BaseURL:  cfg.Timeline.BaseURL,
		Token:    cfg.Timeline.Token,
		PageSize: cfg.Timeline.PageSize,
		MaxPages: cfg.Timeline.MaxPages,
		Observer: a.metrics.TimelinePage,
	}, baseLogger.With("component", "timeline"))

	resolver := metadata.NewResolver(fetcher, baseLogger.With("component", "resolver"),
		metadata.WithTimeout(cfg.Resolver.Timeout),
		metadata.WithMaxBodyBytes(cfg.Resolver.MaxBodyBytes),
		metadata.WithObserver(a.metrics.Resolution),
	)

	writer, err := a.buildSinks(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Influencers:     influencers,
		Timelines:       timelines,
		Resolver:        resolver,
		Extractor:       links.NewExtractor(cfg.Network.Domains),
		Writer:          writer,
		Metrics:         a.metrics,
		Logger:          baseLogger.With("component", "pipeline"),
		Workers:         cfg.Pipeline.Workers,
		PageConcurrency: cfg.Influencers.Concurrency,
	})
	return a, nil
}

// buildFetcher returns the throttled client, wrapped by the redis cache when one is
// configured and reachable.
func (a *Application) buildFetcher(ctx context.Context) ports.Fetcher {
	cfg := a.cfg
	client := httpclient.New(nil, httpclient.Options{
		UserAgent:         cfg.HTTP.UserAgent,
		Timeout:           cfg.HTTP.Timeout,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		MaxConcurrent:     cfg.HTTP.MaxConcurrent,
	})

	if cfg.Cache.RedisAddr == "" {
		return client
	}

	rdb, err := httpcache.NewClient(ctx, httpcache.Config{
		Address:  cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
		TTL:      cfg.Cache.TTL,
	})
	if err != nil {
		a.logger.Warn("response cache disabled", "addr", cfg.Cache.RedisAddr, "error", err)
		return client
	}
	a.closers = append(a.closers, rdb.Close)
	return httpcache.New(client, rdb, cfg.Cache.TTL, a.logger.With("component", "cache"))
}

func (a *Application) buildSinks(ctx context.Context) (*sink.Fanout, error) {
	cfg := a.cfg
	registry := sink.NewRegistry()
	registry.Register(snapshot.NewFileWriter(cfg.Snapshot.Path))

	if slices.Contains(cfg.Snapshot.Sinks, "postgres") {
		db, err := storage.Open(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)

		pg := storage.NewPostgresWriter(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		registry.Register(pg)
	}

	writer, err := registry.Select(cfg.Snapshot.Sinks...)
	if err != nil {
		return nil, fmt.Errorf("select sinks: %w", err)
	}
	return writer, nil
}

// Run performs one pipeline execution for topic, serving /metrics meanwhile when
// metrics.addr is configured.
func (a *Application) Run(ctx context.Context, topic string) (usecase.RunSummary, error) {
	if a.pipeline == nil {
		return usecase.RunSummary{}, errors.New("application is not initialised")
	}

	if a.cfg.Metrics.Addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := a.metrics.Serve(metricsCtx, a.cfg.Metrics.Addr, a.logger); err != nil {
				a.logger.Warn("metrics listener stopped", "error", err)
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	return a.pipeline.Run(ctx, topic)
}

// Close releases connections opened by New.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
