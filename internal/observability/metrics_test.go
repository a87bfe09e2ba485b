package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cencori/internal/core"
	"cencori/internal/llmclient"
)

func TestHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	hooks := m.Hooks()

	ctx := hooks.OnRequestStart(context.Background(), llmclient.RequestInfo{Provider: "openai", Model: "gpt-4o"})
	assert.InDelta(t, 1, testutil.ToFloat64(m.inFlight.WithLabelValues("openai")), 0)

	hooks.OnRequestEnd(ctx, llmclient.ResponseInfo{
		Provider:   "openai",
		Model:      "gpt-4o",
		StatusCode: 200,
		Duration:   300 * time.Millisecond,
	})
	hooks.OnRequestStart(ctx, llmclient.RequestInfo{Provider: "openai", Model: "gpt-4o", Stream: true})
	hooks.OnRequestEnd(ctx, llmclient.ResponseInfo{Provider: "openai", Model: "gpt-4o", Stream: true})

	assert.InDelta(t, 0, testutil.ToFloat64(m.inFlight.WithLabelValues("openai")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("openai", "gpt-4o", "200", "false")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("openai", "gpt-4o", "error", "true")), 0)

	count, err := testutil.GatherAndCount(reg, "cencori_upstream_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestObserveUsage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	usage := core.NewTokenUsage(1000, 2000)
	cost := core.CostBreakdown{ProviderCostUSD: 0.005, CencoriChargeUSD: 0.0075, MarkupPercentage: 50}
	m.ObserveUsage("anthropic", "claude-sonnet-4", usage, cost)
	m.ObserveUsage("anthropic", "claude-sonnet-4", usage, cost)

	expected := `
# HELP cencori_tokens_total Tokens consumed by provider, model and direction
# TYPE cencori_tokens_total counter
cencori_tokens_total{direction="completion",model="claude-sonnet-4",provider="anthropic"} 4000
cencori_tokens_total{direction="prompt",model="claude-sonnet-4",provider="anthropic"} 2000
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cencori_tokens_total"))
	assert.InDelta(t, 0.015, testutil.ToFloat64(m.costUSD.WithLabelValues("anthropic", "claude-sonnet-4", "charge")), 1e-9)
}

func TestObserveFailover(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveFailover("openai", "anthropic")
	m.ObserveFailover("openai", "anthropic")
	assert.InDelta(t, 2, testutil.ToFloat64(m.failovers.WithLabelValues("openai", "anthropic")), 0)
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
