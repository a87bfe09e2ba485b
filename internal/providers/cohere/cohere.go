// Package cohere provides Cohere Chat API (v1) integration.
package cohere

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"cencori/internal/core"
	"cencori/internal/llmclient"
	"cencori/internal/messages"
	"cencori/internal/providers"
)

// Registration provides factory registration for the Cohere provider.
var Registration = providers.Registration{
	Type: "cohere",
	New:  New,
}

const (
	defaultBaseURL     = "https://api.cohere.ai/v1"
	defaultTemperature = 0.7
)

var errMalformed = errors.New("malformed stream event")

// Provider implements the core.Provider interface for Cohere
type Provider struct {
	providers.Base
	client *llmclient.Client
	apiKey string
}

// New creates a new Cohere provider. It fails when no API key is configured.
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

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
}

type chatRequest struct {
	Model       string                    `json:"model"`
	Message     string                    `json:"message"`
	ChatHistory []messages.CohereChatTurn `json:"chat_history,omitempty"`
	Preamble    string                    `json:"preamble,omitempty"`
	Temperature float64                   `json:"temperature"`
	MaxTokens   *int                      `json:"max_tokens,omitempty"`
	Stream      bool                      `json:"stream,omitempty"`
}

func newChatRequest(req *core.ChatRequest, stream bool) (*chatRequest, messages.CohereChat) {
	chat := messages.ToCohere(req.Messages)
	body := &chatRequest{
		Model:       req.Model,
		Message:     chat.Message,
		ChatHistory: chat.History,
		Preamble:    chat.Preamble,
		Temperature: defaultTemperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}
	return body, chat
}

func mapFinishReason(reason string) core.FinishReason {
	switch reason {
	case "COMPLETE", "STOP_SEQUENCE":
		return core.FinishReasonStop
	case "MAX_TOKENS":
		return core.FinishReasonLength
	case "ERROR_TOXIC":
		return core.FinishReasonContentFilter
	default:
		return ""
	}
}

// firstPositive returns the first path holding a positive integer.
func firstPositive(body []byte, paths ...string) int {
	for _, path := range paths {
		if n := gjson.GetBytes(body, path).Int(); n > 0 {
			return int(n)
		}
	}
	return 0
}

// parseUsage reads token counts from meta.billed_units, then meta.tokens, and
// estimates whatever is still missing.
func parseUsage(body []byte, message, text string) core.TokenUsage {
	prompt := firstPositive(body, "meta.billed_units.input_tokens", "meta.tokens.input_tokens")
	completion := firstPositive(body, "meta.billed_units.output_tokens", "meta.tokens.output_tokens")
	return providers.Usage(prompt, completion, message, text)
}

// Chat sends a chat request to Cohere
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	body, chat := newChatRequest(req, false)
	raw, err := p.client.DoRaw(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat",
		Body:     body,
		Model:    req.Model,
	})
	if err != nil {
		return nil, p.Fail(err)
	}
	if !gjson.ValidBytes(raw.Body) {
		return nil, core.NewProviderError(p.Name(), http.StatusBadGateway, "failed to decode response: invalid JSON", nil)
	}

	text := gjson.GetBytes(raw.Body, "text").String()
	resp := &core.ChatResponse{
		Content:      text,
		Model:        req.Model,
		Usage:        parseUsage(raw.Body, chat.Message, text),
		FinishReason: mapFinishReason(gjson.GetBytes(raw.Body, "finish_reason").String()),
	}
	if err := p.Complete(ctx, p, req.Model, resp, start); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream opens a streaming chat request. Cohere streams newline-delimited JSON
// events; malformed lines are skipped.
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	ctx, opened, cancel := p.WithStreamTimeout(ctx)
	body, _ := newChatRequest(req, true)
	stream, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat",
		Body:     body,
		Model:    req.Model,
	})
	if err != nil {
		cancel()
		return nil, p.Fail(err)
	}
	opened()
	return providers.NewStream(stream, providers.StreamConfig{
		Provider:      p.Name(),
		Framing:       providers.FramingNDJSON,
		Decode:        decodeStreamEvent,
		SkipMalformed: true,
		Cancel:        cancel,
	}), nil
}

func decodeStreamEvent(data []byte) (core.StreamChunk, bool, error) {
	if !gjson.ValidBytes(data) {
		return core.StreamChunk{}, false, errMalformed
	}
	ev := gjson.ParseBytes(data)
	switch ev.Get("event_type").String() {
	case "text-generation":
		return core.StreamChunk{Delta: ev.Get("text").String()}, true, nil
	case "stream-end":
		reason := mapFinishReason(ev.Get("finish_reason").String())
		if reason == "" {
			reason = core.FinishReasonStop
		}
		return core.StreamChunk{FinishReason: reason}, true, nil
	default:
		// stream-start, search and citation events carry no text.
		return core.StreamChunk{}, false, nil
	}
}

// CountTokens returns the length estimate.
func (p *Provider) CountTokens(_ context.Context, text, _ string) (int, error) {
	return messages.EstimateTokenCount(text), nil
}

// TestConnection lists models to verify the key.
func (p *Provider) TestConnection(ctx context.Context) bool {
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()
	_, err := p.client.DoRaw(ctx, llmclient.Request{Method: http.MethodGet, Endpoint: "/models"})
	return err == nil
}
