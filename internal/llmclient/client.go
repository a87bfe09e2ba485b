// Package llmclient is the HTTP client every vendor adapter sends requests through.
// It marshals JSON bodies, classifies error responses, consults the circuit breaker
// and reports each request to observability hooks.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"time"

	"cencori/internal/circuitbreaker"
	"cencori/internal/core"
	"cencori/internal/httpclient"
)

// RequestInfo describes an outgoing upstream request.
type RequestInfo struct {
	Provider string
	Model    string
	Endpoint string
	Method   string
	Stream   bool
}

// ResponseInfo describes a finished upstream request.
type ResponseInfo struct {
	Provider   string
	Model      string
	Endpoint   string
	StatusCode int
	Duration   time.Duration
	Stream     bool
	Err        error
}

// Hooks observe upstream traffic. Both callbacks are optional.
type Hooks struct {
	// OnRequestStart may return a derived context carried to OnRequestEnd.
	OnRequestStart func(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd   func(ctx context.Context, info ResponseInfo)
}

// Config holds configuration for the client.
type Config struct {
	ProviderName string
	BaseURL      string

	// MaxRetries is the number of extra attempts for retryable failures.
	// Zero means one attempt; failover handles cross-provider recovery.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// Breaker is shared across providers; nil disables circuit breaking.
	Breaker *circuitbreaker.Breaker
	Hooks   Hooks
}

// DefaultConfig returns a single-attempt configuration.
func DefaultConfig(providerName, baseURL string) Config {
	return Config{
		ProviderName:   providerName,
		BaseURL:        baseURL,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}
}

// HeaderSetter sets vendor headers such as credentials on a request.
type HeaderSetter func(req *http.Request)

// Client is a base HTTP client for vendor adapters.
type Client struct {
	httpClient   *http.Client
	config       Config
	headerSetter HeaderSetter
}

// New creates a client using the shared default transport.
func New(config Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), config, headerSetter)
}

// NewWithHTTPClient creates a client with a caller supplied HTTP client.
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}
	return &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
	}
}

// SetBaseURL updates the base URL.
func (c *Client) SetBaseURL(url string) {
	c.config.BaseURL = url
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Request represents an upstream HTTP request.
type Request struct {
	Method   string
	Endpoint string
	// Body is JSON marshaled when not nil; RawBody takes precedence.
	Body    any
	RawBody []byte
	Headers map[string]string
	// Model is reported to hooks only.
	Model string
}

// Response represents a buffered upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do executes a request and unmarshals a 2xx body into result.
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to unmarshal response: "+err.Error(), err)
		}
	}
	return nil
}

// DoRaw executes a request and returns the buffered 2xx response.
// Non-2xx responses are returned as *core.ProviderError.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	if err := c.allow(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	attempts := c.config.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, core.NormalizeProviderError(c.config.ProviderName, ctx.Err())
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		resp, err := c.doOnce(ctx, req)
		if err == nil {
			c.recordSuccess(ctx)
			return resp, nil
		}

		c.recordFailure(ctx, err)
		lastErr = err
		if !core.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// DoStream executes a streaming request and returns the open body on 2xx.
// Streams are never retried since the caller may already have consumed data.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	if err := c.allow(ctx); err != nil {
		return nil, err
	}

	info := RequestInfo{Provider: c.config.ProviderName, Model: req.Model, Endpoint: req.Endpoint, Method: req.Method, Stream: true}
	hookCtx := c.start(ctx, info)
	start := time.Now()

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		c.end(hookCtx, info, 0, start, err)
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		perr := core.NormalizeProviderError(c.config.ProviderName, err)
		c.end(hookCtx, info, 0, start, perr)
		c.recordFailure(ctx, perr)
		return nil, perr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			body = []byte("failed to read error response")
		}
		_ = resp.Body.Close()
		perr := core.ParseProviderError(c.config.ProviderName, resp.StatusCode, body, nil)
		c.end(hookCtx, info, resp.StatusCode, start, perr)
		c.recordFailure(ctx, perr)
		return nil, perr
	}

	c.end(hookCtx, info, resp.StatusCode, start, nil)
	c.recordSuccess(ctx)
	return resp.Body, nil
}

func (c *Client) doOnce(ctx context.Context, req Request) (*Response, error) {
	info := RequestInfo{Provider: c.config.ProviderName, Model: req.Model, Endpoint: req.Endpoint, Method: req.Method}
	hookCtx := c.start(ctx, info)
	start := time.Now()

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		c.end(hookCtx, info, 0, start, err)
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		perr := core.NormalizeProviderError(c.config.ProviderName, err)
		c.end(hookCtx, info, 0, start, perr)
		return nil, perr
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		perr := core.NormalizeProviderError(c.config.ProviderName, err)
		c.end(hookCtx, info, resp.StatusCode, start, perr)
		return nil, perr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := core.ParseProviderError(c.config.ProviderName, resp.StatusCode, body, nil)
		c.end(hookCtx, info, resp.StatusCode, start, perr)
		return nil, perr
	}

	c.end(hookCtx, info, resp.StatusCode, start, nil)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	var bodyReader io.Reader
	switch {
	case req.RawBody != nil:
		bodyReader = bytes.NewReader(req.RawBody)
	case req.Body != nil:
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.NewInvalidRequestError(c.config.ProviderName, "failed to marshal request", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.config.BaseURL+req.Endpoint, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError(c.config.ProviderName, "failed to create request", err)
	}

	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if id := core.GetRequestID(ctx); id != "" && httpReq.Header.Get("X-Request-Id") == "" {
		httpReq.Header.Set("X-Request-Id", id)
	}
	return httpReq, nil
}

func (c *Client) allow(ctx context.Context) error {
	if c.config.Breaker == nil || c.config.Breaker.Allow(ctx, c.config.ProviderName) {
		return nil
	}
	return core.NewProviderError(c.config.ProviderName, http.StatusServiceUnavailable,
		"circuit breaker is open - provider temporarily unavailable", nil)
}

func (c *Client) recordSuccess(ctx context.Context) {
	if c.config.Breaker != nil {
		c.config.Breaker.RecordSuccess(ctx, c.config.ProviderName)
	}
}

// recordFailure counts only failures that say something about upstream health.
// Client errors such as 400 or 401 leave the circuit alone.
func (c *Client) recordFailure(ctx context.Context, err error) {
	if c.config.Breaker == nil || ctx.Err() != nil {
		return
	}
	if core.IsRetryable(err) {
		c.config.Breaker.RecordFailure(ctx, c.config.ProviderName)
	}
}

func (c *Client) start(ctx context.Context, info RequestInfo) context.Context {
	if c.config.Hooks.OnRequestStart != nil {
		if derived := c.config.Hooks.OnRequestStart(ctx, info); derived != nil {
			return derived
		}
	}
	return ctx
}

func (c *Client) end(ctx context.Context, info RequestInfo, status int, start time.Time, err error) {
	if c.config.Hooks.OnRequestEnd == nil {
		return
	}
	c.config.Hooks.OnRequestEnd(ctx, ResponseInfo{
		Provider:   info.Provider,
		Model:      info.Model,
		Endpoint:   info.Endpoint,
		StatusCode: status,
		Duration:   time.Since(start),
		Stream:     info.Stream,
		Err:        err,
	})
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	factor := c.config.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	backoff := float64(c.config.InitialBackoff) * math.Pow(factor, float64(attempt-1))
	if c.config.MaxBackoff > 0 && backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}
	return time.Duration(backoff)
}
