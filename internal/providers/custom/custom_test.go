package custom

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cencori/config"
	"cencori/internal/core"
	"cencori/internal/providers"
)

func newTestProvider(t *testing.T, cfg providers.ProviderConfig, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.Name = "custom-llm"
	cfg.Type = "custom"
	cfg.BaseURL = srv.URL
	p, err := New(cfg, providers.ProviderOptions{
		Pricing: providers.FixedPricing{InputPer1K: 100, OutputPer1K: 100},
	})
	require.NoError(t, err)
	return p.(*Provider)
}

var hello = []core.Message{
	{Role: core.RoleSystem, Content: "Be brief."},
	{Role: core.RoleUser, Content: "Hello"},
}

func TestNew_Validation(t *testing.T) {
	_, err := New(providers.ProviderConfig{Name: "c"}, providers.ProviderOptions{})
	var pe *core.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, core.ErrorTypeConfiguration, pe.Type)

	_, err = New(providers.ProviderConfig{Name: "c", BaseURL: "http://x", Format: "soap"}, providers.ProviderOptions{})
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Message, "soap")

	p, err := New(providers.ProviderConfig{Name: "c", BaseURL: "http://x", Format: "Anthropic"}, providers.ProviderOptions{})
	require.NoError(t, err)
	assert.Equal(t, FormatAnthropic, p.(*Provider).format)
}

func TestChat_OpenAIFormat(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	p := newTestProvider(t, providers.ProviderConfig{
		APIKey:  "secret",
		Model:   "local-llama",
		Pricing: &config.ProviderPricing{InputPer1K: 0.001, OutputPer1K: 0.002, MarkupPercentage: 50},
	}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{
			"choices": [{"message": {"content": "Hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 1000}
		}`)
	})

	resp, err := p.Chat(context.Background(), &core.ChatRequest{Model: "custom-llm", Messages: hello})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "local-llama", gotBody["model"])

	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, "local-llama", resp.Model)
	assert.Equal(t, "custom-llm", resp.Provider)
	assert.Equal(t, core.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, core.NewTokenUsage(1000, 1000), resp.Usage)

	// No markup is applied even though one is configured.
	assert.InDelta(t, 0.003, resp.Cost.ProviderCostUSD, 1e-12)
	assert.InDelta(t, 0.003, resp.Cost.CencoriChargeUSD, 1e-12)
	assert.Equal(t, 50.0, resp.Cost.MarkupPercentage)
}

func TestChat_AnthropicFormat(t *testing.T) {
	var got http.Header
	var gotPath string
	var gotBody map[string]any

	p := newTestProvider(t, providers.ProviderConfig{APIKey: "ant", Format: "anthropic"}, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{
			"model": "proxy-claude",
			"content": [{"type": "text", "text": "Hi"}, {"type": "text", "text": " there"}],
			"stop_reason": "max_tokens",
			"usage": {"input_tokens": 4, "output_tokens": 6}
		}`)
	})

	resp, err := p.Chat(context.Background(), &core.ChatRequest{Model: "claude-proxy", Messages: hello})
	require.NoError(t, err)

	assert.Equal(t, "/messages", gotPath)
	assert.Equal(t, "ant", got.Get("x-api-key"))
	assert.Empty(t, got.Get("Authorization"))
	assert.Equal(t, "Be brief.", gotBody["system"])
	assert.Equal(t, float64(4096), gotBody["max_tokens"])

	assert.Equal(t, "Hi there", resp.Content)
	assert.Equal(t, "proxy-claude", resp.Model)
	assert.Equal(t, core.FinishReasonLength, resp.FinishReason)
	assert.Equal(t, core.NewTokenUsage(4, 6), resp.Usage)
}

func TestChat_UnpricedAndUnauthenticated(t *testing.T) {
	var gotAuth string
	p := newTestProvider(t, providers.ProviderConfig{}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"choices": [{"message": {"content": "abcdefgh"}}]}`)
	})

	resp, err := p.Chat(context.Background(), &core.ChatRequest{Model: "m", Messages: hello})
	require.NoError(t, err)

	assert.Empty(t, gotAuth)
	assert.Equal(t, "m", resp.Model)
	assert.Equal(t, core.NewTokenUsage(5, 2), resp.Usage)
	assert.Equal(t, core.CostBreakdown{}, resp.Cost, "factory pricing must not leak into custom providers")
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error": "down"}`, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error": {"message": "bad"}}`},
		{name: "not json", status: http.StatusOK, body: `not json`, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, providers.ProviderConfig{}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := p.Chat(context.Background(), &core.ChatRequest{Model: "m", Messages: hello})

			var pe *core.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "custom-llm", pe.Provider)
			assert.Equal(t, tt.retryable, pe.IsRetryable())
		})
	}
}

func collect(t *testing.T, s core.ChunkStream) []core.StreamChunk {
	t.Helper()
	defer s.Close()
	var chunks []core.StreamChunk
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
}

func TestStream_OpenAIFormatSkipsMalformed(t *testing.T) {
	p := newTestProvider(t, providers.ProviderConfig{}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {broken\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"},\"finish_reason\":\"stop\"}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	s, err := p.Stream(context.Background(), &core.ChatRequest{Model: "m", Messages: hello})
	require.NoError(t, err)
	chunks := collect(t, s)

	require.Len(t, chunks, 3)
	assert.Equal(t, "ab", chunks[0].Delta+chunks[1].Delta)
	assert.Equal(t, core.FinishReasonStop, chunks[2].FinishReason)
}

func TestStream_AnthropicFormat(t *testing.T) {
	p := newTestProvider(t, providers.ProviderConfig{Format: "anthropic"}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n")
		_, _ = io.WriteString(w, "event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"}}\n\n")
	})

	s, err := p.Stream(context.Background(), &core.ChatRequest{Model: "m", Messages: hello})
	require.NoError(t, err)
	chunks := collect(t, s)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Hi", chunks[0].Delta)
	assert.Equal(t, core.FinishReasonStop, chunks[1].FinishReason)
}

func TestStream_OutlivesRequestTimeout(t *testing.T) {
	p := newTestProvider(t, providers.ProviderConfig{Timeout: 50 * time.Millisecond}, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"slow \"}}]}\n\n")
		flusher.Flush()
		time.Sleep(150 * time.Millisecond)
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"model\"},\"finish_reason\":\"stop\"}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	s, err := p.Stream(context.Background(), &core.ChatRequest{Model: "m", Messages: hello})
	require.NoError(t, err)
	chunks := collect(t, s)

	require.Len(t, chunks, 3)
	assert.Equal(t, "slow model", chunks[0].Delta+chunks[1].Delta)
	assert.Equal(t, core.FinishReasonStop, chunks[2].FinishReason)
}

func TestStream_UpstreamErrorEvent(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		body      string
		wantText  string
		wantType  core.ErrorType
		retryable bool
	}{
		{
			name:   "openai error payload",
			format: "openai",
			body: "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
				"data: {\"error\":{\"message\":\"upstream exploded\"}}\n\n",
			wantText:  "Hi",
			wantType:  core.ErrorTypeProvider,
			retryable: true,
		},
		{
			name:   "anthropic overloaded event",
			format: "anthropic",
			body: "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n" +
				"event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n",
			wantText:  "Hi",
			wantType:  core.ErrorTypeProvider,
			retryable: true,
		},
		{
			name:   "anthropic rate limit event",
			format: "anthropic",
			body: "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"rate_limit_error\",\"message\":\"slow down\"}}\n\n",
			wantType:  core.ErrorTypeRateLimit,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, providers.ProviderConfig{Format: tt.format}, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			s, err := p.Stream(context.Background(), &core.ChatRequest{Model: "m", Messages: hello})
			require.NoError(t, err)
			defer s.Close()

			var text string
			for {
				c, err := s.Recv()
				if err != nil {
					require.NotErrorIs(t, err, io.EOF)
					var pe *core.ProviderError
					require.ErrorAs(t, err, &pe)
					assert.Equal(t, "custom-llm", pe.Provider)
					assert.Equal(t, tt.wantType, pe.Type)
					assert.Equal(t, tt.retryable, pe.IsRetryable())
					break
				}
				require.False(t, c.Done(), "stream finished with %q instead of failing", c.FinishReason)
				text += c.Delta
			}
			assert.Equal(t, tt.wantText, text)
		})
	}
}

func TestCountTokens(t *testing.T) {
	p := newTestProvider(t, providers.ProviderConfig{}, func(w http.ResponseWriter, r *http.Request) {})
	n, err := p.CountTokens(context.Background(), "0123456789", "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTestConnection(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusOK, true},
		{http.StatusNoContent, true},
		{http.StatusNotFound, true},
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var gotPath, gotMethod string
			p := newTestProvider(t, providers.ProviderConfig{}, func(w http.ResponseWriter, r *http.Request) {
				gotPath, gotMethod = r.URL.Path, r.Method
				w.WriteHeader(tt.status)
			})
			assert.Equal(t, tt.want, p.TestConnection(context.Background()))
			assert.Equal(t, http.MethodGet, gotMethod)
			assert.Contains(t, []string{"", "/"}, gotPath)
		})
	}
}
