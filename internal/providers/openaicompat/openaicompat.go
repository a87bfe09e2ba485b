// Package openaicompat provides one adapter for every vendor that speaks the
// OpenAI chat completions API under a different base URL.
package openaicompat

import (
	"context"
	"net/http"
	"sort"
	"time"

	"cencori/internal/core"
	"cencori/internal/llmclient"
	"cencori/internal/messages"
	"cencori/internal/providers"
	"cencori/internal/providers/openai"
)

// fallbackProbeModel is tried when a vendor has no catalog entry.
const fallbackProbeModel = "gpt-3.5-turbo"

// Vendor describes one OpenAI-compatible upstream.
type Vendor struct {
	Name        string
	DisplayName string
	BaseURL     string
	// Headers are sent on every request in addition to the auth header.
	Headers map[string]string
}

// Vendors lists the supported OpenAI-compatible upstreams by provider type.
// Meta models are served through Together.
var Vendors = map[string]Vendor{
	"mistral":    {Name: "mistral", DisplayName: "Mistral AI", BaseURL: "https://api.mistral.ai/v1"},
	"groq":       {Name: "groq", DisplayName: "Groq", BaseURL: "https://api.groq.com/openai/v1"},
	"together":   {Name: "together", DisplayName: "Together AI", BaseURL: "https://api.together.xyz/v1"},
	"perplexity": {Name: "perplexity", DisplayName: "Perplexity", BaseURL: "https://api.perplexity.ai"},
	"openrouter": {
		Name:        "openrouter",
		DisplayName: "OpenRouter",
		BaseURL:     "https://openrouter.ai/api/v1",
		Headers: map[string]string{
			"HTTP-Referer": "https://cencori.com",
			"X-Title":      "Cencori",
		},
	},
	"xai":         {Name: "xai", DisplayName: "xAI", BaseURL: "https://api.x.ai/v1"},
	"deepseek":    {Name: "deepseek", DisplayName: "DeepSeek", BaseURL: "https://api.deepseek.com"},
	"qwen":        {Name: "qwen", DisplayName: "Qwen", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1"},
	"meta":        {Name: "meta", DisplayName: "Meta AI", BaseURL: "https://api.together.xyz/v1"},
	"huggingface": {Name: "huggingface", DisplayName: "Hugging Face", BaseURL: "https://api-inference.huggingface.co/v1/"},
}

// IsCompatible reports whether providerType is served by this package.
func IsCompatible(providerType string) bool {
	_, ok := Vendors[providerType]
	return ok
}

// Registrations returns one factory registration per vendor, sorted by type.
func Registrations() []providers.Registration {
	types := make([]string, 0, len(Vendors))
	for t := range Vendors {
		types = append(types, t)
	}
	sort.Strings(types)

	regs := make([]providers.Registration, 0, len(types))
	for _, t := range types {
		regs = append(regs, providers.Registration{Type: t, New: Builder(Vendors[t])})
	}
	return regs
}

// Builder returns a providers.Builder for vendor.
func Builder(vendor Vendor) providers.Builder {
	return func(cfg providers.ProviderConfig, opts providers.ProviderOptions) (core.Provider, error) {
		return New(vendor, cfg, opts)
	}
}

// Provider implements core.Provider for an OpenAI-compatible vendor.
type Provider struct {
	providers.Base
	client     *llmclient.Client
	apiKey     string
	headers    map[string]string
	probeModel string
}

// New creates a provider for vendor. cfg.BaseURL overrides the vendor URL and
// cfg.Headers are added to the vendor headers.
func New(vendor Vendor, cfg providers.ProviderConfig, opts providers.ProviderOptions) (*Provider, error) {
	if err := providers.RequireAPIKey(cfg); err != nil {
		return nil, err
	}
	headers := make(map[string]string, len(vendor.Headers)+len(cfg.Headers))
	for k, v := range vendor.Headers {
		headers[k] = v
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	p := &Provider{
		Base:       opts.NewBase(cfg),
		apiKey:     cfg.APIKey,
		headers:    headers,
		probeModel: probeModel(vendor.Name),
	}
	p.client = opts.NewClient(cfg, vendor.BaseURL, p.setHeaders)
	return p, nil
}

// probeModel picks the vendor's first catalog model for the completion probe.
func probeModel(vendor string) string {
	if models := providers.ModelsFor(vendor); len(models) > 0 {
		return models[0].ID
	}
	return fallbackProbeModel
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
}

// Chat sends a chat completion request. Missing usage is estimated.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	raw, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     openai.NewChatBody(req, req.Model, false),
		Model:    req.Model,
	})
	if err != nil {
		return nil, p.Fail(err)
	}

	completion, err := openai.ParseCompletion(p.Name(), raw.Body)
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
		Body:     openai.NewChatBody(req, req.Model, true),
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
		Decode:   openai.NewStreamDecoder(p.Name()),
		Cancel:   cancel,
	}), nil
}

// CountTokens returns the length estimate.
func (p *Provider) CountTokens(_ context.Context, text, _ string) (int, error) {
	return messages.EstimateTokenCount(text), nil
}

// TestConnection lists models and, when the vendor does not support that,
// sends a one-token completion.
func (p *Provider) TestConnection(ctx context.Context) bool {
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	if _, err := p.client.DoRaw(ctx, llmclient.Request{Method: http.MethodGet, Endpoint: "/models"}); err == nil {
		return true
	}

	maxTokens := 1
	probe := &core.ChatRequest{
		Model:     p.probeModel,
		Messages:  []core.Message{{Role: core.RoleUser, Content: "test"}},
		MaxTokens: &maxTokens,
	}
	_, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     openai.NewChatBody(probe, probe.Model, false),
		Model:    probe.Model,
	})
	return err == nil
}
