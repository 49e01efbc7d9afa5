// Package app initializes and holds long-lived application services, acting as a
// dependency injection container for the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/ehound/internal/api"
	"github.com/JakeFAU/ehound/internal/config"
	"github.com/JakeFAU/ehound/internal/downloader"
	"github.com/JakeFAU/ehound/internal/export"
	"github.com/JakeFAU/ehound/internal/fetcher"
	collyfetcher "github.com/JakeFAU/ehound/internal/fetcher/colly"
	"github.com/JakeFAU/ehound/internal/fetcher/retryable"
	"github.com/JakeFAU/ehound/internal/manager"
	"github.com/JakeFAU/ehound/internal/metrics"
	"github.com/JakeFAU/ehound/internal/progress"
	"github.com/JakeFAU/ehound/internal/progress/sinks"
	"github.com/JakeFAU/ehound/internal/publisher/pubsub"
	"github.com/JakeFAU/ehound/internal/ratelimit"
	"github.com/JakeFAU/ehound/internal/retriever"
	"github.com/JakeFAU/ehound/internal/source"
	"github.com/JakeFAU/ehound/internal/storage"
	"github.com/JakeFAU/ehound/internal/storage/gcs"
	"github.com/JakeFAU/ehound/internal/storage/local"
	"github.com/JakeFAU/ehound/internal/storage/memory"
	"github.com/JakeFAU/ehound/internal/storage/postgres"
)

// Options adjust how the container is assembled.
type Options struct {
	// Bars renders terminal progress bars to the writer when non-nil.
	Bars io.Writer
	// Fetcher replaces the HTTP backend (tests).
	Fetcher fetcher.Fetcher
	// Store replaces the configured blob store (tests).
	Store storage.BlobStore
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	store    storage.BlobStore
	manager  *manager.Manager
	hub      *progress.Hub
	catalog  *postgres.Catalog
	exporter *export.Exporter
	fetch    fetcher.Fetcher

	closers []func(context.Context) error
}

// New creates and initializes an App from cfg. It fails fast if any configured
// service cannot be initialized, releasing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	logger.Info("Initializing application services...")
	if a.metrics, err = metrics.New(a.registry); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a.limiter = ratelimit.New(ratelimit.Config{
		Interval:       cfg.Crawler.Interval,
		DefaultNext:    cfg.Crawler.DefaultNext,
		NextPredicates: cfg.NextPredicateMap(),
		Observer:       a.metrics,
	})

	a.store = opts.Store
	if a.store == nil {
		if a.store, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}

	eventSinks, err := a.openSinks(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger.Named("progress")}, eventSinks...)
	a.closers = append(a.closers, a.hub.Close)

	dl := downloader.New()
	headers := retriever.NewHeaderTable()
	pipeline := a.pipeline(opts.Fetcher, &retriever.Resolver{Table: headers, Downloader: dl})
	a.fetch = pipeline
	loader := source.NewLoader(pipeline, logger.Named("loader"))
	ret := retriever.New(loader, pipeline, a.store, headers, retriever.Config{
		ImageParallelism: cfg.Crawler.ImageParallelism,
		Classifier:       cfg.Classifier(),
	}, logger.Named("retriever"))
	a.manager = manager.New(loader, ret, dl, a.limiter, a.hub, manager.Config{
		BookParallelism:    cfg.Crawler.BookParallelism,
		ChapterParallelism: cfg.Crawler.ChapterParallelism,
		Classifier:         cfg.Classifier(),
		State: manager.StatePaths{
			Downloader: cfg.State.DownloaderPath,
			Retriever:  cfg.State.RetrieverPath,
			Library:    cfg.State.LibraryPath,
		},
	}, logger.Named("manager"))
	a.exporter = export.NewExporter(a.store, export.Config{Author: cfg.Export.Author}, logger.Named("export"))

	logger.Info("Application services initialized successfully.",
		zap.String("http_backend", cfg.HTTP.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Duration("interval", cfg.Crawler.Interval),
	)
	return a, nil
}

// pipeline builds the shared fetch chain. Outermost first: retries, headers, per-domain
// pacing, the global in-flight ceiling, then metrics around each attempt. Retries sit
// above pacing for every backend so each attempt waits on the domain's limiter.
func (a *App) pipeline(base fetcher.Fetcher, headers fetcher.HeaderSource) fetcher.Fetcher {
	cfg := a.cfg
	var mws []fetcher.Middleware
	if base == nil {
		switch cfg.HTTP.Backend {
		case config.BackendRetryable:
			base = retryable.New(retryable.Config{
				UserAgent:    cfg.HTTP.UserAgent,
				Timeout:      cfg.HTTP.RequestTimeout,
				RetryMax:     0,
				MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
			}, a.logger.Named("fetch"))
		default:
			base = collyfetcher.New(collyfetcher.Config{
				UserAgent:    cfg.HTTP.UserAgent,
				Timeout:      cfg.HTTP.RequestTimeout,
				MaxBodyBytes: int(cfg.HTTP.MaxBodyBytes),
			})
		}
	}
	if cfg.HTTP.MaxRetries > 0 {
		policy := fetcher.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries, cfg.HTTP.BackoffInitial, cfg.HTTP.BackoffMax)
		mws = append(mws, fetcher.Retrying(policy, a.logger.Named("fetch")))
	}
	mws = append(mws,
		fetcher.WithHeaders(headers),
		fetcher.Paced(a.limiter),
		fetcher.Bounded(semaphore.NewWeighted(int64(cfg.Crawler.MaxInFlight))),
		a.metrics.Instrument(),
	)
	return fetcher.Chain(base, mws...)
}

func (a *App) openStore(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		a.logger.Info("Using GCS storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.GCSPrefix}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	case config.StorageMemory:
		a.logger.Info("Using in-memory storage. Archived content is discarded on exit.")
		return memory.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: a.cfg.Cache.Root})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		a.logger.Info("Using local storage", zap.String("root", store.Root()))
		return store, nil
	}
}

func (a *App) openSinks(ctx context.Context, opts Options) ([]progress.Sink, error) {
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	out := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress")), promSink}
	if opts.Bars != nil {
		out = append(out, sinks.NewBarSink(opts.Bars))
	}
	if a.cfg.Catalog.DSN != "" {
		catalog, err := postgres.NewCatalog(ctx, postgres.CatalogConfig{DSN: a.cfg.Catalog.DSN, Table: a.cfg.Catalog.Table})
		if err != nil {
			return nil, fmt.Errorf("init catalog: %w", err)
		}
		a.catalog = catalog
		a.closers = append(a.closers, func(context.Context) error {
			catalog.Close()
			return nil
		})
		if err := catalog.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("init catalog schema: %w", err)
		}
		out = append(out, sinks.NewCatalogSink(catalog))
		a.logger.Info("Recording archived chapters in Postgres", zap.String("table", a.cfg.Catalog.Table))
	}
	if a.cfg.PubSub.ProjectID != "" {
		pub, err := pubsub.Open(ctx, a.cfg.PubSub.ProjectID, a.logger.Named("pubsub"))
		if err != nil {
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		out = append(out, sinks.NewNotifySink(pub, a.cfg.PubSub.Topic))
		a.logger.Info("Publishing chapter notifications", zap.String("topic", a.cfg.PubSub.Topic))
	}
	return out, nil
}

// Restore loads saved state when all state files exist. Missing files are not an error.
func (a *App) Restore() error {
	err := a.manager.Load()
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Debug("No saved state to restore")
		return nil
	}
	return err
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Manager returns the archive manager.
func (a *App) Manager() *manager.Manager { return a.manager }

// Metrics returns the Prometheus collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Limiter returns the per-domain limiter.
func (a *App) Limiter() *ratelimit.Limiter { return a.limiter }

// Store returns the blob store archived content is written to.
func (a *App) Store() storage.BlobStore { return a.store }

// Fetcher returns the shared fetch pipeline.
func (a *App) Fetcher() fetcher.Fetcher { return a.fetch }

// Catalog returns the Postgres catalog, or nil when none is configured.
func (a *App) Catalog() *postgres.Catalog { return a.catalog }

// Exporter returns the EPUB exporter.
func (a *App) Exporter() *export.Exporter { return a.exporter }

// Server builds the HTTP control surface over the manager.
func (a *App) Server() *api.Server {
	key := ""
	if a.cfg.Auth.Enabled {
		key = a.cfg.Auth.APIKey
	}
	return api.NewServer(a.manager, a.metrics, api.Config{
		APIKey:         key,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	}, a.logger.Named("api"))
}

// Close shuts down services in reverse order of creation. The progress hub is
// flushed before the catalog and publisher it delivers to are closed.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("Shutting down application services...")
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
