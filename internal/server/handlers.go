// Package server provides HTTP handlers and server setup for the routing layer.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cencori/internal/circuitbreaker"
	"cencori/internal/core"
	"cencori/internal/failover"
	"cencori/internal/messages"
	"cencori/internal/providers"
	"cencori/internal/requestlog"
)

// Response headers describing which provider served a chat.
const (
	HeaderProvider = "X-Cencori-Provider"
	HeaderModel    = "X-Cencori-Model"
	HeaderFallback = "X-Cencori-Fallback"
)

// Handler holds the HTTP handlers
type Handler struct {
	router   *providers.Router
	executor *failover.Executor
	logger   requestlog.LoggerInterface
	observer requestlog.UsageObserver
	breaker  *circuitbreaker.Breaker
}

// NewHandler creates a handler. Optional collaborators are taken from cfg.
func NewHandler(router *providers.Router, executor *failover.Executor, cfg *Config) *Handler {
	h := &Handler{
		router:   router,
		executor: executor,
		logger:   requestlog.NoopLogger{},
	}
	if cfg != nil {
		if cfg.RequestLogger != nil {
			h.logger = cfg.RequestLogger
		}
		h.observer = cfg.UsageObserver
		h.breaker = cfg.Breaker
	}
	return h
}

// Chat handles POST /v1/chat
func (h *Handler) Chat(c echo.Context) error {
	var req core.ChatRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("", "invalid request body: "+err.Error(), err))
	}
	if req.Model == "" {
		return handleError(c, core.NewInvalidRequestError("", "model is required", nil))
	}
	if err := messages.Validate(req.Messages); err != nil {
		return handleError(c, core.NewInvalidRequestError("", err.Error(), err))
	}

	if req.Stream {
		return h.stream(c, &req)
	}

	ctx := c.Request().Context()
	start := time.Now()
	res, err := h.executor.Chat(ctx, &req)
	if err != nil {
		h.logger.Write(requestlog.FromError(ctx, &req, err, time.Since(start)))
		return handleError(c, err)
	}

	h.logger.Write(requestlog.FromResponse(ctx, &req, res.Response, res.UsedFallback))
	if h.observer != nil {
		h.observer.ObserveUsage(res.Response.Provider, res.Response.Model, res.Response.Usage, res.Response.Cost)
	}

	setOutcomeHeaders(c, res.Outcome)
	return c.JSON(http.StatusOK, res.Response)
}

// stream writes the completion as SSE frames terminated by "data: [DONE]".
func (h *Handler) stream(c echo.Context, req *core.ChatRequest) error {
	ctx := c.Request().Context()
	start := time.Now()

	res, err := h.executor.Stream(ctx, req)
	if err != nil {
		h.logger.Write(requestlog.FromError(ctx, req, err, time.Since(start)))
		return handleError(c, err)
	}

	p, err := h.router.GetProvider(res.Provider)
	if err != nil {
		_ = res.Stream.Close()
		return handleError(c, err)
	}

	stream := requestlog.NewMeteredStream(ctx, res.Stream, h.logger, requestlog.StreamInfo{
		Provider:       p,
		Request:        req.WithModel(res.Model),
		RequestedModel: req.Model,
		Fallback:       res.UsedFallback,
		Start:          start,
		Observer:       h.observer,
	})
	defer func() {
		_ = stream.Close() //nolint:errcheck
	}()

	setOutcomeHeaders(c, res.Outcome)
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Headers are already sent; report the failure in-band.
			pe := core.NormalizeProviderError(res.Provider, err)
			chunk = core.StreamChunk{FinishReason: core.FinishReasonError, Error: pe.Message}
			if writeErr := writeEvent(w, chunk); writeErr != nil {
				return nil
			}
			break
		}
		if err := writeEvent(w, chunk); err != nil {
			// Client went away.
			return nil
		}
	}

	if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err == nil {
		w.Flush()
	}
	return nil
}

func writeEvent(w *echo.Response, chunk core.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func setOutcomeHeaders(c echo.Context, o failover.Outcome) {
	h := c.Response().Header()
	h.Set(HeaderProvider, o.Provider)
	h.Set(HeaderModel, o.Model)
	if o.UsedFallback {
		h.Set(HeaderFallback, o.Primary)
	}
}

// providerView is one entry of GET /v1/providers.
type providerView struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Website    string                `json:"website,omitempty"`
	Registered bool                  `json:"registered"`
	Models     []providers.ModelInfo `json:"models"`
}

// ListProviders handles GET /v1/providers
func (h *Handler) ListProviders(c echo.Context) error {
	seen := make(map[string]bool)
	out := make([]providerView, 0, len(providers.SupportedProviders))
	for _, p := range providers.SupportedProviders {
		seen[p.ID] = true
		out = append(out, providerView{
			ID:         p.ID,
			Name:       p.Name,
			Website:    p.Website,
			Registered: h.router.HasProvider(p.ID),
			Models:     p.Models,
		})
	}
	// Registered providers outside the catalog, such as custom endpoints.
	for _, name := range h.router.Providers() {
		if seen[name] {
			continue
		}
		out = append(out, providerView{ID: name, Name: name, Registered: true, Models: []providers.ModelInfo{}})
	}
	return c.JSON(http.StatusOK, map[string]any{"providers": out})
}

// TestProvider handles POST /v1/providers/:name/test
func (h *Handler) TestProvider(c echo.Context) error {
	name := c.Param("name")
	p, err := h.router.GetProvider(name)
	if err != nil {
		return handleError(c, err)
	}

	start := time.Now()
	ok := p.TestConnection(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"provider":   name,
		"connected":  ok,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

// routeView is the body of GET /v1/route.
type routeView struct {
	Model         string   `json:"model"`
	Provider      string   `json:"provider"`
	UpstreamModel string   `json:"upstream_model"`
	Registered    bool     `json:"registered"`
	Fallbacks     []string `json:"fallbacks,omitempty"`
}

// Route handles GET /v1/route?model=
func (h *Handler) Route(c echo.Context) error {
	model := c.QueryParam("model")
	if model == "" {
		return handleError(c, core.NewInvalidRequestError("", "model query parameter is required", nil))
	}

	view := routeView{
		Model:         model,
		Provider:      providers.DetectProvider(model),
		UpstreamModel: model,
	}
	if plan, err := h.executor.Plan(model); err == nil {
		view.Registered = true
		view.UpstreamModel = plan[0].Model
		for _, a := range plan[1:] {
			view.Fallbacks = append(view.Fallbacks, a.Provider+"/"+a.Model)
		}
	}
	return c.JSON(http.StatusOK, view)
}

// Circuits handles GET /v1/circuits
func (h *Handler) Circuits(c echo.Context) error {
	circuits := map[string]circuitbreaker.Circuit{}
	if h.breaker != nil {
		circuits = h.breaker.Snapshot()
	}
	return c.JSON(http.StatusOK, map[string]any{"circuits": circuits})
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": h.router.Len(),
	})
}

// handleError converts provider errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var pe *core.ProviderError
	if errors.As(err, &pe) {
		return c.JSON(pe.HTTPStatusCode(), pe.ToJSON())
	}

	slog.Error("unexpected handler error", "error", err, "request_id", core.GetRequestID(c.Request().Context()))
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
