// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the routing server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"cencori/config"
	"cencori/internal/cache"
	"cencori/internal/circuitbreaker"
	"cencori/internal/failover"
	"cencori/internal/observability"
	"cencori/internal/providers"
	"cencori/internal/requestlog"
	"cencori/internal/server"
	"cencori/internal/storage"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config     *config.Config
	redis      *redis.Client
	metrics    *observability.Metrics
	breaker    *circuitbreaker.Breaker
	pricing    *Pricing
	providers  *providers.InitResult
	requestLog *requestlog.Result
	executor   *failover.Executor
	server     *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	AppConfig *config.Config

	// Factory provides the ProviderFactory used to construct provider instances.
	// Nil uses NewFactory.
	Factory *providers.ProviderFactory

	// Registerer receives the Prometheus collectors when metrics are enabled.
	// Nil uses prometheus.DefaultRegisterer, which is what /metrics serves.
	Registerer prometheus.Registerer
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (_ *App, err error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	appCfg := cfg.AppConfig

	factory := cfg.Factory
	if factory == nil {
		factory = NewFactory()
	}

	app := &App{config: appCfg}
	defer func() {
		if err != nil {
			if closeErr := app.close(); closeErr != nil {
				err = fmt.Errorf("%w (also: close error: %v)", err, closeErr)
			}
		}
	}()

	if appCfg.Metrics.Enabled {
		reg := cfg.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		app.metrics = observability.NewMetrics(reg)
		factory.SetHooks(app.metrics.Hooks())
	}

	if appCfg.Cache.Type == "redis" {
		app.redis, err = cache.Connect(ctx, appCfg.Cache.Redis.URL)
		if err != nil {
			return nil, err
		}
	}

	if cb := appCfg.Resilience.CircuitBreaker; cb.Enabled {
		var store circuitbreaker.Store
		if app.redis != nil {
			store = circuitbreaker.NewRedisStore(app.redis)
		}
		app.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cb.FailureThreshold,
			OpenTimeout:      time.Duration(cb.OpenTimeout) * time.Second,
		}, store)
		factory.SetBreaker(app.breaker)
	}

	app.pricing, err = NewPricing(ctx, appCfg, app.redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pricing: %w", err)
	}
	factory.SetPricing(app.pricing.Resolver)
	factory.SetHTTPClient(NewHTTPClient(appCfg.HTTP))

	app.providers, err = providers.Init(ctx, appCfg, factory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	// Share the pricing connection when both live in the same PostgreSQL database.
	if shared := app.pricing.Storage(); shared != nil && appCfg.Storage.Type == storage.TypePostgreSQL {
		app.requestLog, err = requestlog.NewWithSharedStorage(ctx, appCfg, shared)
	} else {
		app.requestLog, err = requestlog.New(ctx, appCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize request log: %w", err)
	}

	var failoverObserver failover.Observer
	var usageObserver requestlog.UsageObserver
	if app.metrics != nil {
		failoverObserver = app.metrics
		usageObserver = app.metrics
	}
	app.executor = failover.NewExecutor(app.providers.Router, failover.Config{
		Enabled:     appCfg.Failover.Enabled,
		Fallback:    appCfg.Failover.Fallback,
		MaxAttempts: appCfg.Failover.MaxAttempts,
		Chains:      appCfg.Failover.Chains,
	}, failoverObserver)

	app.logStartupInfo()

	app.server = server.New(app.providers.Router, app.executor, &server.Config{
		MasterKey:       appCfg.Server.MasterKey,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		RequestLogger:   app.requestLog.Logger,
		UsageObserver:   usageObserver,
		Breaker:         app.breaker,
	})

	return app, nil
}

// Router returns the provider router.
func (a *App) Router() *providers.Router {
	if a.providers == nil {
		return nil
	}
	return a.providers.Router
}

// Executor returns the failover executor.
func (a *App) Executor() *failover.Executor {
	return a.executor
}

// Handler returns the HTTP handler of the server.
func (a *App) Handler() http.Handler {
	return a.server
}

// RequestLogger returns the request log writer.
func (a *App) RequestLogger() requestlog.LoggerInterface {
	if a.requestLog == nil {
		return nil
	}
	return a.requestLog.Logger
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order:
// the HTTP server first, honoring ctx, then the request log (flushing pending
// entries), pricing, and finally the shared Redis client.
//
// Shutdown is idempotent; after the first call, subsequent calls are no-ops.
// It attempts every step and returns the joined failures.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if err := a.close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	slog.Info("application shutdown complete")
	return nil
}

// close releases everything except the HTTP server.
func (a *App) close() error {
	var errs []error
	if a.requestLog != nil {
		if err := a.requestLog.Close(); err != nil {
			slog.Error("request log close error", "error", err)
			errs = append(errs, fmt.Errorf("request log close: %w", err))
		}
	}
	if a.pricing != nil {
		if err := a.pricing.Close(); err != nil {
			slog.Error("pricing close error", "error", err)
			errs = append(errs, fmt.Errorf("pricing close: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: CENCORI_MASTER_KEY not set - server running in UNSAFE MODE",
			"security_risk", "unauthenticated access allowed",
			"recommendation", "set CENCORI_MASTER_KEY environment variable to secure the API")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	slog.Info("providers registered", "count", a.providers.Router.Len(), "names", a.providers.Router.Providers())

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if a.breaker != nil {
		slog.Info("circuit breaker enabled",
			"failure_threshold", cfg.Resilience.CircuitBreaker.FailureThreshold,
			"open_timeout", cfg.Resilience.CircuitBreaker.OpenTimeout,
			"shared", a.redis != nil,
		)
	}

	if cfg.Failover.Enabled {
		slog.Info("failover enabled", "fallback", cfg.Failover.Fallback, "max_attempts", cfg.Failover.MaxAttempts)
	} else {
		slog.Info("failover disabled")
	}

	if cfg.RequestLog.Enabled {
		slog.Info("request log enabled",
			"storage_type", cfg.Storage.Type,
			"buffer_size", cfg.RequestLog.BufferSize,
			"flush_interval", cfg.RequestLog.FlushInterval,
			"retention_days", cfg.RequestLog.RetentionDays,
		)
	} else {
		slog.Info("request log disabled")
	}
}
