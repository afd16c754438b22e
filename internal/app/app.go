// Package app initializes and holds long-lived harvester services, acting as
// a dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/ned-harvester/internal/api"
	"github.com/JakeFAU/ned-harvester/internal/assets"
	"github.com/JakeFAU/ned-harvester/internal/browser"
	"github.com/JakeFAU/ned-harvester/internal/config"
	"github.com/JakeFAU/ned-harvester/internal/harvest"
	"github.com/JakeFAU/ned-harvester/internal/indices"
	"github.com/JakeFAU/ned-harvester/internal/logging"
	"github.com/JakeFAU/ned-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/ned-harvester/internal/pool"
	"github.com/JakeFAU/ned-harvester/internal/progress"
	"github.com/JakeFAU/ned-harvester/internal/progress/sinks"
	"github.com/JakeFAU/ned-harvester/internal/storage"
	"github.com/JakeFAU/ned-harvester/internal/transport"
)

// App holds the shared, long-lived services of one command invocation.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	RunID    uuid.UUID
	Store    *storage.Store
	Registry *prometheus.Registry
	Limiter  *ratelimit.Limiter
	Blobs    *transport.Fetcher
	Browser  *browser.Lazy
	Hub      *progress.Hub
	Tracker  *sinks.Tracker

	api      *api.Server
	apiAddr  string
	closers  []func(context.Context) error
	syncLogs bool
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	browserFactory harvest.BrowserFactory
}

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBrowserFactory replaces the Chrome launcher.
func WithBrowserFactory(factory harvest.BrowserFactory) Option {
	return func(o *options) { o.browserFactory = factory }
}

// New builds every service from cfg. On failure, whatever was already built
// is closed again.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, RunID: progress.NewRunID()}
	if o.logger != nil {
		a.Logger = o.logger
	} else {
		logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return nil, err
		}
		a.Logger = logger
		a.syncLogs = true
	}

	if err := a.init(ctx, cfg, o); err != nil {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			a.Logger.Warn("cleanup after failed init", zap.Error(cerr))
		}
		return nil, err
	}
	a.Logger.Info("application services initialized",
		zap.String("run_id", a.RunID.String()),
		zap.String("storage", cfg.Storage.URL),
		zap.String("metrics_addr", a.apiAddr))
	return a, nil
}

func (a *App) init(ctx context.Context, cfg config.Config, o options) error {
	store, err := storage.Open(ctx, cfg.Storage.URL)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	a.Store = store
	a.onClose(func(context.Context) error { return store.Close() })

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.Limiter, err = ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		Burst:             cfg.Remote.Burst,
		Registerer:        a.Registry,
	})
	if err != nil {
		return fmt.Errorf("init rate limiter: %w", err)
	}

	a.Blobs = transport.New(transport.Config{
		UserAgent:    cfg.Browser.UserAgent,
		Timeout:      cfg.HTTP.Timeout,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Retry:        transport.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries+1, cfg.HTTP.BackoffInitial, cfg.HTTP.BackoffMax),
		Limiter:      a.Limiter,
		Logger:       a.Logger,
	})

	factory := o.browserFactory
	if factory == nil {
		factory = browser.Factory(browser.Config{
			UserAgent:         cfg.Browser.UserAgent,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			Headless:          cfg.Browser.Headless,
			ExecPath:          cfg.Browser.ExecPath,
			Limiter:           a.Limiter,
			Logger:            a.Logger.Named("browser"),
		})
	}
	a.Browser = browser.NewLazy(factory)
	a.onClose(func(context.Context) error { return a.Browser.Close() })

	promSink, err := sinks.NewPrometheusSink(a.Registry)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.Tracker = sinks.NewTracker()
	a.Hub = progress.NewHub(progress.Config{Logger: a.Logger.Named("progress")},
		sinks.NewLogSink(a.Logger.Named("progress")), promSink, a.Tracker)
	a.onClose(a.Hub.Close)

	if cfg.Metrics.Addr != "" {
		a.api, err = api.NewServer(a.Registry, a.Tracker, a.Logger)
		if err != nil {
			return fmt.Errorf("init api: %w", err)
		}
		a.apiAddr, err = a.api.Start(cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("start api: %w", err)
		}
		a.onClose(a.api.Shutdown)
	}
	return nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// APIAddr is the bound address of the operator endpoint, or "" when it is
// disabled.
func (a *App) APIAddr() string {
	return a.apiAddr
}

// Indices builds the partition state machine over the shared services.
func (a *App) Indices() *indices.Fetcher {
	return indices.New(indices.Config{
		FormURL:      a.Config.Remote.FormURL,
		PollAttempts: a.Config.Indices.PollAttempts,
		PollTimeout:  a.Config.Indices.PollTimeout,
		Logger:       a.Logger,
	}, a.Browser, a.Blobs, a.Store)
}

// Assets builds the object harvester over the shared services.
func (a *App) Assets() *assets.Harvester {
	return assets.New(assets.Config{
		ObjectURLTemplate: a.Config.Remote.ObjectURLTemplate,
		GuessURLTemplate:  a.Config.Remote.GuessURLTemplate,
		TableTimeout:      a.Config.Objects.TableTimeout,
		Logger:            a.Logger,
	}, a.Browser, a.Blobs, a.Store)
}

// PoolOptions returns pool options reporting into the progress hub.
func (a *App) PoolOptions(name string, concurrency int) pool.Options {
	return pool.Options{
		Name:        name,
		Concurrency: concurrency,
		Logger:      a.Logger,
		Emitter:     a.Hub,
		RunID:       a.RunID,
	}
}

// Close shuts services down in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.syncLogs {
		// Syncing stderr fails on some platforms; the error is not actionable.
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
