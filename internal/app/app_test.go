package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"cencori/config"
	"cencori/internal/core"
	"cencori/internal/providers"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model string `json:"model"`
		}
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"model": "`+req.Model+`",
			"choices": [{"message": {"role": "assistant", "content": "pong"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 500}
		}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// clearProviderEnv keeps keys from the developer's shell out of the router.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"OPENAI", "ANTHROPIC", "GEMINI", "COHERE", "MISTRAL", "GROQ", "TOGETHER",
		"PERPLEXITY", "OPENROUTER", "XAI", "DEEPSEEK", "QWEN", "META", "HUGGINGFACE"} {
		t.Setenv(name+"_API_KEY", "")
		t.Setenv(name+"_BASE_URL", "")
	}
}

func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	clearProviderEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Providers = map[string]config.RawProviderConfig{
		"local": {
			Type:    "custom",
			BaseURL: upstreamURL + "/v1",
			Format:  "openai",
			Pricing: &config.ProviderPricing{InputPer1K: 0.001, OutputPer1K: 0.002, MarkupPercentage: 50},
		},
	}
	cfg.Metrics.Enabled = true
	cfg.RequestLog.Enabled = true
	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "cencori.db")
	return cfg
}

func TestApp_ChatEndToEnd(t *testing.T) {
	upstream := newUpstream(t)
	cfg := testConfig(t, upstream.URL)
	reg := prometheus.NewRegistry()

	a, err := New(context.Background(), Config{AppConfig: cfg, Registerer: reg})
	require.NoError(t, err)

	assert.True(t, a.Router().HasProvider("local"))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"model": "local/phi-3", "messages": [{"role": "user", "content": "ping"}]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp core.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "local", resp.Provider)
	assert.Equal(t, "phi-3", resp.Model)
	// Custom endpoints are billed at cost.
	assert.InDelta(t, 0.002, resp.Cost.ProviderCostUSD, 1e-9)
	assert.InDelta(t, 0.002, resp.Cost.CencoriChargeUSD, 1e-9)

	count, err := testutil.GatherAndCount(reg, "cencori_tokens_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, a.Shutdown(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))

	db, err := sql.Open("sqlite", cfg.Storage.SQLite.Path)
	require.NoError(t, err)
	defer db.Close()

	var provider, status string
	var charge float64
	require.NoError(t, db.QueryRow("SELECT provider, status, cencori_charge_usd FROM ai_requests").Scan(&provider, &status, &charge))
	assert.Equal(t, "local", provider)
	assert.Equal(t, "success", status)
	assert.InDelta(t, 0.002, charge, 1e-9)
}

func TestApp_NoProviders(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Providers = map[string]config.RawProviderConfig{
		"broken": {Type: "custom", BaseURL: "${UNSET_CENCORI_URL}"},
	}

	_, err = New(context.Background(), Config{AppConfig: cfg, Registerer: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no providers were successfully initialized")
}

func TestApp_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	types := NewFactory().ListRegistered()
	for _, want := range []string{"openai", "anthropic", "google", "gemini", "cohere", "mistral", "groq", "openrouter", "custom"} {
		assert.Contains(t, types, want)
	}
}

func TestNewFactory_GeminiAlias(t *testing.T) {
	f := NewFactory()
	for _, typ := range []string{"google", "gemini"} {
		p, err := f.Create(providers.ProviderConfig{Name: "vertex", Type: typ, APIKey: "k"})
		require.NoError(t, err, typ)
		assert.Equal(t, "vertex", p.Name())
	}
}

func TestNewPricing_Static(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	markup := 10.0
	cfg.Pricing.DefaultMarkup = 25
	cfg.Pricing.Models = []config.PricingModel{
		{Provider: "openai", Model: "gpt-4o", InputPer1K: 1, OutputPer1K: 2, MarkupPercentage: &markup},
		{Provider: "acme", Model: "rocket-1", InputPer1K: 0.5, OutputPer1K: 0.5},
	}

	p, err := NewPricing(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	got, err := p.Resolver.Resolve(context.Background(), "openai", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, core.ModelPricing{InputPer1KTokens: 1, OutputPer1KTokens: 2, CencoriMarkupPercentage: 10}, got)

	got, err = p.Resolver.Resolve(context.Background(), "acme", "rocket-1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.CencoriMarkupPercentage)

	got, err = p.Resolver.Resolve(context.Background(), "anthropic", "claude-sonnet-4")
	require.NoError(t, err)
	assert.Equal(t, 0.003, got.InputPer1KTokens)

	assert.Nil(t, p.Storage())
}
