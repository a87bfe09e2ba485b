package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cencori/internal/circuitbreaker"
	"cencori/internal/core"
	"cencori/internal/failover"
	"cencori/internal/providers"
	"cencori/internal/requestlog"
)

// DefaultBodySizeLimit applies when Config.BodySizeLimit is empty.
const DefaultBodySizeLimit = "10M"

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	MasterKey       string // Optional: Master key for authentication
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   string // Max request body size, e.g. "10M"

	// RequestLogger receives one entry per chat request. Nil disables it.
	RequestLogger requestlog.LoggerInterface
	// UsageObserver receives token and cost totals. Nil disables it.
	UsageObserver requestlog.UsageObserver
	// Breaker backs GET /v1/circuits. Nil reports no circuits.
	Breaker *circuitbreaker.Breaker
}

// New creates a new HTTP server
func New(router *providers.Router, executor *failover.Executor, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(router, executor, cfg)

	authSkipPaths := []string{"/health"}

	metricsPath := metricsPath(cfg.MetricsEndpoint)
	if cfg.MetricsEnabled {
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := core.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				slog.Error("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	bodySizeLimit := DefaultBodySizeLimit
	if cfg.BodySizeLimit != "" {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(bodySizeLimit))

	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	// API routes
	v1 := e.Group("/v1")
	v1.POST("/chat", handler.Chat)
	v1.GET("/providers", handler.ListProviders)
	v1.POST("/providers/:name/test", handler.TestProvider)
	v1.GET("/route", handler.Route)
	v1.GET("/circuits", handler.Circuits)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// metricsPath cleans the configured endpoint. Paths that would shadow the API
// fall back to /metrics.
func metricsPath(endpoint string) string {
	if endpoint == "" {
		return "/metrics"
	}
	p := path.Clean("/" + endpoint)
	if p == "/" || p == "/health" || p == "/v1" || strings.HasPrefix(p, "/v1/") {
		return "/metrics"
	}
	return p
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
