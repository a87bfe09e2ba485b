// Package gemini provides Google Gemini API integration. The provider is
// registered under the name "google".
package gemini

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cencori/internal/core"
	"cencori/internal/llmclient"
	"cencori/internal/messages"
	"cencori/internal/providers"
)

// Registration provides factory registration for the Gemini provider.
var Registration = providers.Registration{
	Type: "google",
	New:  New,
}

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// defaultProbeModel is used by TestConnection and CountTokens without a model.
	defaultProbeModel = "gemini-2.5-flash"

	defaultTemperature     = 0.7
	defaultMaxOutputTokens = 2048
)

// Provider implements the core.Provider interface for Google Gemini
type Provider struct {
	providers.Base
	client *llmclient.Client
	apiKey string
}

// New creates a new Gemini provider. It fails when no API key is configured.
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
	req.Header.Set("x-goog-api-key", p.apiKey)
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []messages.GeminiContent `json:"contents"`
	GenerationConfig *generationConfig        `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content struct {
		Parts []messages.GeminiPart `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata"`
	PromptFeedback *promptFeedback `json:"promptFeedback"`
}

// text concatenates the parts of the first candidate.
func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

func (r *generateResponse) finishReason() core.FinishReason {
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			return core.FinishReasonContentFilter
		}
		return ""
	}
	return mapFinishReason(r.Candidates[0].FinishReason)
}

func mapFinishReason(reason string) core.FinishReason {
	switch reason {
	case "STOP":
		return core.FinishReasonStop
	case "MAX_TOKENS":
		return core.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return core.FinishReasonContentFilter
	default:
		return ""
	}
}

// newGenerateRequest builds the chat session: history plus the prompt sent as
// the final user turn.
func newGenerateRequest(req *core.ChatRequest) *generateRequest {
	history, prompt := messages.ToGemini(req.Messages)
	contents := append(history, messages.GeminiContent{Role: "user", Parts: []messages.GeminiPart{{Text: prompt}}})

	cfg := &generationConfig{Temperature: defaultTemperature, MaxOutputTokens: defaultMaxOutputTokens}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = *req.MaxTokens
	}
	return &generateRequest{Contents: contents, GenerationConfig: cfg}
}

func modelEndpoint(model, method string) string {
	return "/models/" + url.PathEscape(model) + ":" + method
}

// Chat sends a generateContent request. The response carries no reliable
// usage, so prompt and completion are counted with two countTokens calls.
func (p *Provider) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	start := time.Now()
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	var gen generateResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: modelEndpoint(req.Model, "generateContent"),
		Body:     newGenerateRequest(req),
		Model:    req.Model,
	}, &gen)
	if err != nil {
		return nil, p.Fail(err)
	}

	text := gen.text()
	_, prompt := messages.ToGemini(req.Messages)
	resp := &core.ChatResponse{
		Content:      text,
		Model:        req.Model,
		Usage:        p.usage(ctx, req.Model, prompt, text, gen.UsageMetadata),
		FinishReason: gen.finishReason(),
	}
	if err := p.Complete(ctx, p, req.Model, resp, start); err != nil {
		return nil, err
	}
	return resp, nil
}

// usage counts prompt and completion concurrently. A failed count falls back to
// usageMetadata, then to the length estimate.
func (p *Provider) usage(ctx context.Context, model, prompt, completion string, meta *usageMetadata) core.TokenUsage {
	var promptTokens, completionTokens int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := p.countTokens(gctx, prompt, model)
		promptTokens = n
		return err
	})
	g.Go(func() error {
		n, err := p.countTokens(gctx, completion, model)
		completionTokens = n
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Warn("token counting failed, using usage metadata", "provider", p.Name(), "model", model, "error", err)
		promptTokens, completionTokens = 0, 0
		if meta != nil {
			promptTokens, completionTokens = meta.PromptTokenCount, meta.CandidatesTokenCount
		}
	}
	return providers.Usage(promptTokens, completionTokens, prompt, completion)
}

// Stream opens a streamGenerateContent request. The caller must Close the stream.
func (p *Provider) Stream(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	ctx, opened, cancel := p.WithStreamTimeout(ctx)
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: modelEndpoint(req.Model, "streamGenerateContent") + "?alt=sse",
		Body:     newGenerateRequest(req),
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
		Decode:   decodeStreamEvent,
		Cancel:   cancel,
	}), nil
}

// decodeStreamEvent decodes one streamed GenerateContentResponse. Any finish
// reason ends the stream; unrecognized ones end it as stop.
func decodeStreamEvent(data []byte) (core.StreamChunk, bool, error) {
	var ev generateResponse
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.StreamChunk{}, false, err
	}
	chunk := core.StreamChunk{Delta: ev.text()}
	done := len(ev.Candidates) == 0 && ev.PromptFeedback != nil
	if len(ev.Candidates) > 0 {
		done = ev.Candidates[0].FinishReason != ""
	}
	if done {
		chunk.FinishReason = ev.finishReason()
		if chunk.FinishReason == "" {
			chunk.FinishReason = core.FinishReasonStop
		}
	}
	return chunk, true, nil
}

type countTokensRequest struct {
	Contents []messages.GeminiContent `json:"contents"`
}

type countTokensResponse struct {
	TotalTokens int `json:"totalTokens"`
}

func (p *Provider) countTokens(ctx context.Context, text, model string) (int, error) {
	if model == "" {
		model = defaultProbeModel
	}
	var resp countTokensResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: modelEndpoint(model, "countTokens"),
		Body: countTokensRequest{
			Contents: []messages.GeminiContent{{Role: "user", Parts: []messages.GeminiPart{{Text: text}}}},
		},
		Model: model,
	}, &resp)
	if err != nil {
		return 0, p.Fail(err)
	}
	return resp.TotalTokens, nil
}

// CountTokens uses the countTokens endpoint. Failures are returned, not estimated.
func (p *Provider) CountTokens(ctx context.Context, text, model string) (int, error) {
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()
	return p.countTokens(ctx, text, model)
}

// TestConnection generates a short completion and expects text back.
func (p *Provider) TestConnection(ctx context.Context) bool {
	ctx, cancel := p.WithTimeout(ctx)
	defer cancel()

	var gen generateResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: modelEndpoint(defaultProbeModel, "generateContent"),
		Body: generateRequest{
			Contents: []messages.GeminiContent{{Role: "user", Parts: []messages.GeminiPart{{Text: "test"}}}},
		},
		Model: defaultProbeModel,
	}, &gen)
	return err == nil && gen.text() != ""
}
