// Package custom adapts user-configured endpoints that speak either the
// OpenAI chat completions or the Anthropic messages wire format.
package custom

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"cencori/internal/core"
	"cencori/internal/llmclient"
	"cencori/internal/messages"
	"cencori/internal/providers"
	"cencori/internal/providers/anthropic"
	"cencori/internal/providers/openai"
)

// Registration provides factory registration for custom endpoints.
var Registration = providers.Registration{
	Type: "custom",
	New:  New,
}

// Wire formats accepted in the provider entry's format field.
const (
	FormatOpenAI    = "openai"
	FormatAnthropic = "anthropic"
)

// Provider implements core.Provider for a custom endpoint.
type Provider struct {
	providers.Base
	client *llmclient.Client
	apiKey string
	format string
	// model replaces the requested model upstream when set.
	model string
}

// New creates a custom provider. The base URL is required; the API key is
// optional. Pricing comes only from the entry itself, otherwise it is zero.
func New(cfg providers.ProviderConfig, opts providers.ProviderOptions) (core.Provider, error) {
	if cfg.BaseURL == "" {
		return nil, core.NewConfigurationError(cfg.Name, "base URL is not configured")
	}
	format := strings.ToLower(cfg.Format)
	switch format {
	case "":
		format = FormatOpenAI
	case FormatOpenAI, FormatAnthropic:
	default:
		return nil, core.NewConfigurationError(cfg.Name, "unsupported format: "+cfg.Format)
	}

	var resolver core.PricingResolver
	if cfg.Pricing != nil {
		resolver = providers.FixedPricing(*cfg.Pricing)
	}
	p := &Provider{
		Base:   providers.NewBase(cfg.Name, resolver, cfg.Timeout),
		apiKey: cfg.APIKey,
		format: format,
		model:  cfg.Model,
	}
	p.client = opts.NewClient(cfg, cfg.BaseURL, p.setHeaders)
	return p, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	if p.format == FormatAnthropic {
		req.Header.Set("anthropic-version", anthropic.APIVersion)
		if p.apiKey != "" {
			req.Header.Set("x-api-key", p.apiKey)
		}
		return
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

// Bill charges the provider cost as is. The configured markup percentage is
// reported but not applied.
func (p *Provider) Bill(usage core.TokenUsage, pricing core.ModelPricing) core.CostBreakdown {
	cost := core.CalculateCost(usage.PromptTokens, usage.CompletionTokens, pricing)
	return core.CostBreakdown{
		ProviderCostUSD:  cost,
		CencoriChargeUSD: cost,
		MarkupPercentage: pricing.CencoriMarkupPercentage,
	}
}

func (p *Provider) upstreamModel(req *core.ChatRequest) string {
	if p.model != "" {
		return p.model
	}
	return req.Model
}

func (p *Provider) request(req *core.ChatRequest, stream bool) llmclient.Request {
	model := p.upstreamModel(req)
	if p.format == FormatAnthropic {
		return llmclient.Request{
			Method:   http.MethodPost,
			Endpoint: "/messages",
			Body:     anthropic.NewMessagesBody(req, model, stream),
			Model:    model,
		}
	}
	return llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     openai.NewChatBody(req, model, stream),
		Model:    model,
	}
}

// Chat sends one completion in the configured format.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	raw, err := p.client.DoRaw(ctx, p.request(req, false))
	if err != nil {
		return nil, p.Fail(err)
	}
	if !gjson.ValidBytes(raw.Body) {
		return nil, core.NewProviderError(p.Name(), http.StatusBadGateway, "invalid JSON in custom provider response", nil)
	}

	resp := p.parse(req, gjson.ParseBytes(raw.Body))
	if err := p.Complete(ctx, p, p.upstreamModel(req), resp, start); err != nil {
		return nil, err
	}
	return resp, nil
}

// parse reads the response fields by path, so endpoints that only roughly
// follow a format still work.
func (p *Provider) parse(req *core.ChatRequest, doc gjson.Result) *core.ChatResponse {
	var content string
	var promptTokens, completionTokens int
	var finish core.FinishReason

	if p.format == FormatAnthropic {
		var b strings.Builder
		for _, block := range doc.Get("content").Array() {
			if t := block.Get("type").String(); t == "" || t == "text" {
				b.WriteString(block.Get("text").String())
			}
		}
		content = b.String()
		promptTokens = int(doc.Get("usage.input_tokens").Int())
		completionTokens = int(doc.Get("usage.output_tokens").Int())
		finish = anthropic.MapStopReason(doc.Get("stop_reason").String())
	} else {
		content = doc.Get("choices.0.message.content").String()
		promptTokens = int(doc.Get("usage.prompt_tokens").Int())
		completionTokens = int(doc.Get("usage.completion_tokens").Int())
		finish = openai.MapFinishReason(doc.Get("choices.0.finish_reason").String())
	}

	if promptTokens <= 0 {
		promptTokens = messages.EstimateMessagesTokens(req.Messages)
	}
	model := doc.Get("model").String()
	if model == "" {
		model = p.upstreamModel(req)
	}
	return &core.ChatResponse{
		Content:      content,
		Model:        model,
		Usage:        providers.Usage(promptTokens, completionTokens, "", content),
		FinishReason: finish,
	}
}

// Stream opens a streaming completion. Malformed events are skipped.
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	ctx, opened, cancel := p.WithStreamTimeout(ctx)
	body, err := p.client.DoStream(ctx, p.request(req, true))
	if err != nil {
		cancel()
		return nil, p.Fail(err)
	}
	opened()

	decode := openai.NewStreamDecoder(p.Name())
	if p.format == FormatAnthropic {
		decode = anthropic.NewStreamDecoder(p.Name())
	}
	return providers.NewStream(body, providers.StreamConfig{
		Provider:      p.Name(),
		Framing:       providers.FramingSSE,
		Decode:        decode,
		SkipMalformed: true,
		Cancel:        cancel,
	}), nil
}

// CountTokens returns the length estimate.
func (p *Provider) CountTokens(_ context.Context, text, _ string) (int, error) {
	return messages.EstimateTokenCount(text), nil
}

// TestConnection fetches the base URL. A 404 still proves the server is up.
func (p *Provider) TestConnection(ctx context.Context) bool {
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	raw, err := p.client.DoRaw(ctx, llmclient.Request{Method: http.MethodGet})
	if err == nil {
		return raw.StatusCode < 300
	}
	var pe *core.ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound
}
