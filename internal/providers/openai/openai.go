// Package openai provides OpenAI API integration. Its wire helpers are shared
// by the OpenAI-compatible and custom adapters.
package openai

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"cencori/internal/core"
	"cencori/internal/llmclient"
	"cencori/internal/messages"
	"cencori/internal/providers"
	"cencori/internal/tokenizer"
)

// Registration provides factory registration for the OpenAI provider.
var Registration = providers.Registration{
	Type: "openai",
	New:  New,
}

const (
	defaultBaseURL = "https://api.openai.com/v1"
)

// Provider implements the core.Provider interface for OpenAI
type Provider struct {
	providers.Base
	client  *llmclient.Client
	apiKey  string
	counter tokenizer.Counter
}

// New creates a new OpenAI provider. It fails when no API key is configured.
func New(cfg providers.ProviderConfig, opts providers.ProviderOptions) (core.Provider, error) {
	if err := providers.RequireAPIKey(cfg); err != nil {
		return nil, err
	}
	p := &Provider{
		Base:    opts.NewBase(cfg),
		apiKey:  cfg.APIKey,
		counter: tokenizer.NewTiktoken(),
	}
	p.client = opts.NewClient(cfg, defaultBaseURL, p.setHeaders)
	return p, nil
}

// SetCounter replaces the token counter.
func (p *Provider) SetCounter(c tokenizer.Counter) {
	p.counter = c
}

// setHeaders sets the required headers for OpenAI API requests
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	// OpenAI requires ASCII-only characters and max 512 bytes, otherwise returns 400.
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

// isValidClientRequestID checks if the request ID is valid for OpenAI's X-Client-Request-Id header.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

// Chat sends a chat completion request to OpenAI
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	raw, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     NewChatBody(req, req.Model, false),
		Model:    req.Model,
	})
	if err != nil {
		return nil, p.Fail(err)
	}

	completion, err := ParseCompletion(p.Name(), raw.Body)
	if err != nil {
		return nil, err
	}
	resp := completion.Response(req)
	if err := p.Complete(ctx, p, req.Model, resp, start); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream opens a streaming chat completion. The caller must Close the stream.
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	ctx, opened, cancel := p.WithStreamTimeout(ctx)
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     NewChatBody(req, req.Model, true),
		Model:    req.Model,
	})
	if err != nil {
		cancel()
		return nil, p.Fail(err)
	}
	opened()
	return providers.NewStream(body, providers.StreamConfig{
		Provider: p.Name(),
		Framing:  providers.FramingSSE,
		Decode:   NewStreamDecoder(p.Name()),
		Cancel:   cancel,
	}), nil
}

// CountTokens counts with tiktoken and falls back to the length estimate.
func (p *Provider) CountTokens(_ context.Context, text, model string) (int, error) {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	n, err := p.counter.Count(text, model)
	if err != nil {
		slog.Warn("tiktoken failed, using estimation", "provider", p.Name(), "model", model, "error", err)
		return messages.EstimateTokenCount(text), nil
	}
	return n, nil
}

// TestConnection lists models to verify the key.
func (p *Provider) TestConnection(ctx context.Context) bool {
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()
	_, err := p.client.DoRaw(ctx, llmclient.Request{Method: http.MethodGet, Endpoint: "/models"})
	return err == nil
}
