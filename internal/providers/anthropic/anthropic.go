// Package anthropic provides Anthropic API integration.
package anthropic

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"cencori/internal/core"
	"cencori/internal/llmclient"
	"cencori/internal/messages"
	"cencori/internal/providers"
)

// Registration provides factory registration for the Anthropic provider.
var Registration = providers.Registration{
	Type: "anthropic",
	New:  New,
}

const (
	defaultBaseURL    = "https://api.anthropic.com/v1"
	defaultCountModel = "claude-3-haiku-20240307"
)

// Provider implements the core.Provider interface for Anthropic
type Provider struct {
	providers.Base
	client *llmclient.Client
	apiKey string
}

// New creates a new Anthropic provider. It fails when no API key is configured.
func New(cfg providers.ProviderConfig, opts providers.ProviderOptions) (core.Provider, error) {
	if err := providers.RequireAPIKey(cfg); err != nil {
		return nil, err
	}
	p := &Provider{
		Base:   opts.NewBase(cfg),
		apiKey: cfg.APIKey,
	}
	p.client = opts.NewClient(cfg, defaultBaseURL, p.setHeaders)
	return p, nil
}

// setHeaders sets the required headers for Anthropic API requests
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", APIVersion)
}

// Chat sends a messages request to Anthropic
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	raw, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     NewMessagesBody(req, req.Model, false),
		Model:    req.Model,
	})
	if err != nil {
		return nil, p.Fail(err)
	}

	resp, err := parseMessage(p.Name(), req, raw.Body)
	if err != nil {
		return nil, err
	}
	if err := p.Complete(ctx, p, req.Model, resp, start); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream opens a streaming messages request. The caller must Close the stream.
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	ctx, opened, cancel := p.WithStreamTimeout(ctx)
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     NewMessagesBody(req, req.Model, true),
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

type countTokensRequest struct {
	Model    string                      `json:"model"`
	Messages []messages.AnthropicMessage `json:"messages"`
}

type countTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

func (p *Provider) countTokens(ctx context.Context, text, model string) (int, error) {
	if model == "" {
		model = defaultCountModel
	}
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	var resp countTokensResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages/count_tokens",
		Body: countTokensRequest{
			Model:    model,
			Messages: []messages.AnthropicMessage{{Role: "user", Content: text}},
		},
		Model: model,
	}, &resp)
	if err != nil {
		return 0, p.Fail(err)
	}
	return resp.InputTokens, nil
}

// CountTokens uses the count_tokens endpoint and falls back to the length estimate.
func (p *Provider) CountTokens(ctx context.Context, text, model string) (int, error) {
	n, err := p.countTokens(ctx, text, model)
	if err != nil {
		slog.Warn("token counting failed, using estimation", "provider", p.Name(), "error", err)
		return messages.EstimateTokenCount(text), nil
	}
	return n, nil
}

// TestConnection probes the count_tokens endpoint, which is free to call.
func (p *Provider) TestConnection(ctx context.Context) bool {
	_, err := p.countTokens(ctx, "test", defaultCountModel)
	return err == nil
}
