package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"cencori/internal/core"
	"cencori/internal/providers"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(providers.ProviderConfig{
		Name:    "google",
		Type:    "google",
		APIKey:  "gm-test",
		BaseURL: srv.URL,
	}, providers.ProviderOptions{Pricing: providers.FixedPricing{InputPer1K: 0.001, OutputPer1K: 0.002, MarkupPercentage: 50}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p.(*Provider)
}

// countBy answers countTokens with one token per word.
func countBy(w http.ResponseWriter, r *http.Request) {
	var req countTokensRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	n := 0
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			n += len(strings.Fields(p.Text))
		}
	}
	_ = json.NewEncoder(w).Encode(countTokensResponse{TotalTokens: n})
}

func TestNewGenerateRequest(t *testing.T) {
	temp := 0.1
	maxTokens := 100

	tests := []struct {
		name         string
		req          *core.ChatRequest
		wantContents []string
		wantRoles    []string
		wantTemp     float64
		wantMax      int
	}{
		{
			name:         "single message",
			req:          &core.ChatRequest{Messages: []core.Message{{Role: core.RoleUser, Content: "Hi"}}},
			wantContents: []string{"Hi"},
			wantRoles:    []string{"user"},
			wantTemp:     defaultTemperature,
			wantMax:      defaultMaxOutputTokens,
		},
		{
			name: "history with assistant renamed",
			req: &core.ChatRequest{
				Temperature: &temp,
				MaxTokens:   &maxTokens,
				Messages: []core.Message{
					{Role: core.RoleSystem, Content: "sys"},
					{Role: core.RoleUser, Content: "a"},
					{Role: core.RoleAssistant, Content: "b"},
					{Role: core.RoleUser, Content: "c"},
				},
			},
			wantContents: []string{"sys", "a", "b", "c"},
			wantRoles:    []string{"user", "user", "model", "user"},
			wantTemp:     0.1,
			wantMax:      100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newGenerateRequest(tt.req)
			if len(got.Contents) != len(tt.wantContents) {
				t.Fatalf("len(Contents) = %d, want %d", len(got.Contents), len(tt.wantContents))
			}
			for i, c := range got.Contents {
				if c.Role != tt.wantRoles[i] || c.Parts[0].Text != tt.wantContents[i] {
					t.Errorf("Contents[%d] = %+v", i, c)
				}
			}
			if got.GenerationConfig.Temperature != tt.wantTemp || got.GenerationConfig.MaxOutputTokens != tt.wantMax {
				t.Errorf("GenerationConfig = %+v", got.GenerationConfig)
			}
		})
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := map[string]core.FinishReason{
		"STOP":       core.FinishReasonStop,
		"MAX_TOKENS": core.FinishReasonLength,
		"SAFETY":     core.FinishReasonContentFilter,
		"RECITATION": core.FinishReasonContentFilter,
		"OTHER":      "",
	}
	for in, want := range tests {
		if got := mapFinishReason(in); got != want {
			t.Errorf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChat(t *testing.T) {
	var generateCalls, countCalls atomic.Int32
	var gotKey string

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		switch r.URL.Path {
		case "/models/gemini-2.5-pro:generateContent":
			generateCalls.Add(1)
			_, _ = io.WriteString(w, `{
				"candidates": [{"content": {"parts": [{"text": "four "}, {"text": "word answer here"}], "role": "model"}, "finishReason": "STOP"}],
				"usageMetadata": {"promptTokenCount": 99, "candidatesTokenCount": 99}
			}`)
		case "/models/gemini-2.5-pro:countTokens":
			countCalls.Add(1)
			countBy(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model: "gemini-2.5-pro",
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "earlier turn"},
			{Role: core.RoleUser, Content: "two words"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotKey != "gm-test" {
		t.Errorf("x-goog-api-key = %q", gotKey)
	}
	if generateCalls.Load() != 1 || countCalls.Load() != 2 {
		t.Errorf("generate calls = %d, count calls = %d; want 1 and 2", generateCalls.Load(), countCalls.Load())
	}
	if resp.Content != "four word answer here" || resp.Model != "gemini-2.5-pro" || resp.Provider != "google" {
		t.Errorf("resp = %+v", resp)
	}
	// Prompt is only the last message.
	if resp.Usage != core.NewTokenUsage(2, 4) {
		t.Errorf("Usage = %+v, want 2/4", resp.Usage)
	}
	if resp.FinishReason != core.FinishReasonStop {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	// 2/1000*0.001 + 4/1000*0.002 = 0.00001
	if diff := resp.Cost.ProviderCostUSD - 0.00001; diff > 1e-15 || diff < -1e-15 {
		t.Errorf("ProviderCostUSD = %v", resp.Cost.ProviderCostUSD)
	}
	if diff := resp.Cost.CencoriChargeUSD - 0.000015; diff > 1e-15 || diff < -1e-15 {
		t.Errorf("CencoriChargeUSD = %v", resp.Cost.CencoriChargeUSD)
	}
}

func TestChat_CountFallback(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantUsage core.TokenUsage
	}{
		{
			name:      "usage metadata",
			response:  `{"candidates": [{"content": {"parts": [{"text": "abcd"}]}, "finishReason": "MAX_TOKENS"}], "usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 9}}`,
			wantUsage: core.NewTokenUsage(7, 9),
		},
		{
			name:      "estimate",
			response:  `{"candidates": [{"content": {"parts": [{"text": "abcdefgh"}]}, "finishReason": "MAX_TOKENS"}]}`,
			wantUsage: core.NewTokenUsage(1, 2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, ":countTokens") {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				_, _ = io.WriteString(w, tt.response)
			})

			resp, err := p.Chat(context.Background(), &core.ChatRequest{
				Model:    "gemini-2.5-flash",
				Messages: []core.Message{{Role: core.RoleUser, Content: "abc"}},
			})
			if err != nil {
				t.Fatalf("Chat: %v", err)
			}
			if resp.Usage != tt.wantUsage {
				t.Errorf("Usage = %+v, want %+v", resp.Usage, tt.wantUsage)
			}
			if resp.FinishReason != core.FinishReasonLength {
				t.Errorf("FinishReason = %q", resp.FinishReason)
			}
		})
	}
}

func TestChat_BlockedPrompt(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":countTokens") {
			countBy(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"promptFeedback": {"blockReason": "SAFETY"}}`)
	})

	resp, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "gemini-2.5-flash",
		Messages: []core.Message{{Role: core.RoleUser, Content: "bad"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "" || resp.FinishReason != core.FinishReasonContentFilter {
		t.Errorf("resp = %+v", resp)
	}
}

func TestChat_Error(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error": {"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"}}`)
	})

	_, err := p.Chat(context.Background(), &core.ChatRequest{
		Model:    "gemini-2.5-flash",
		Messages: []core.Message{{Role: core.RoleUser, Content: "Hi"}},
	})
	var pe *core.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *core.ProviderError, got %v", err)
	}
	if pe.Type != core.ErrorTypeAuthentication || pe.IsRetryable() || pe.Provider != "google" {
		t.Errorf("error = %+v", pe)
	}
}

func TestStream(t *testing.T) {
	var gotPath, gotQuery string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\r\n\r\n")
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]},\"finishReason\":\"STOP\"}]}\r\n\r\n")
	})

	s, err := p.Stream(context.Background(), &core.ChatRequest{
		Model:    "gemini-2.5-flash",
		Messages: []core.Message{{Role: core.RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var chunks []core.StreamChunk
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		chunks = append(chunks, c)
	}

	if gotPath != "/models/gemini-2.5-flash:streamGenerateContent" || gotQuery != "alt=sse" {
		t.Errorf("path = %q, query = %q", gotPath, gotQuery)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %+v, want 3", chunks)
	}
	if chunks[0].Delta+chunks[1].Delta != "Hello" {
		t.Errorf("text = %q", chunks[0].Delta+chunks[1].Delta)
	}
	if !reflect.DeepEqual(chunks[2], core.StreamChunk{FinishReason: core.FinishReasonStop}) {
		t.Errorf("terminal = %+v", chunks[2])
	}
}

func TestDecodeStreamEvent(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantDelta  string
		wantFinish core.FinishReason
	}{
		{name: "text only", data: `{"candidates":[{"content":{"parts":[{"text":"x"}]}}]}`, wantDelta: "x"},
		{name: "safety stop", data: `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`, wantFinish: core.FinishReasonContentFilter},
		{name: "unknown reason ends stream", data: `{"candidates":[{"finishReason":"OTHER"}]}`, wantFinish: core.FinishReasonStop},
		{name: "blocked prompt", data: `{"promptFeedback":{"blockReason":"SAFETY"}}`, wantFinish: core.FinishReasonContentFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok, err := decodeStreamEvent([]byte(tt.data))
			if err != nil || !ok {
				t.Fatalf("decode: ok=%v err=%v", ok, err)
			}
			if c.Delta != tt.wantDelta || c.FinishReason != tt.wantFinish {
				t.Errorf("chunk = %+v", c)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	p := newTestProvider(t, countBy)

	n, err := p.CountTokens(context.Background(), "one two three", "")
	if err != nil || n != 3 {
		t.Fatalf("CountTokens = %d, %v", n, err)
	}

	failing := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	if _, err := failing.CountTokens(context.Background(), "x", "gemini-2.5-flash"); err == nil {
		t.Error("expected error")
	}
}

func TestTestConnection(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want bool
	}{
		{name: "text returned", body: `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`, code: http.StatusOK, want: true},
		{name: "empty text", body: `{"candidates":[]}`, code: http.StatusOK, want: false},
		{name: "error", body: `{}`, code: http.StatusUnauthorized, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = io.WriteString(w, tt.body)
			})
			if got := p.TestConnection(context.Background()); got != tt.want {
				t.Errorf("TestConnection = %v, want %v", got, tt.want)
			}
		})
	}
}
