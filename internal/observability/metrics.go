// Package observability exposes Prometheus metrics for upstream traffic, tokens and cost.
package observability

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cencori/internal/core"
	"cencori/internal/llmclient"
)

// Metrics groups the collectors registered by the gateway.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec
	tokens    *prometheus.CounterVec
	costUSD   *prometheus.CounterVec
	failovers *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// to serve them from promhttp.Handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cencori_upstream_requests_total",
			Help: "Upstream requests by provider, model and outcome",
		}, []string{"provider", "model", "status_code", "stream"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cencori_upstream_request_duration_seconds",
			Help:    "Upstream request latency until response headers",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "model", "stream"}),
		inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cencori_upstream_requests_in_flight",
			Help: "Upstream requests currently awaiting a response",
		}, []string{"provider"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cencori_tokens_total",
			Help: "Tokens consumed by provider, model and direction",
		}, []string{"provider", "model", "direction"}),
		costUSD: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cencori_cost_usd_total",
			Help: "Provider cost and customer charge in USD",
		}, []string{"provider", "model", "kind"}),
		failovers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cencori_failovers_total",
			Help: "Requests served by a fallback provider",
		}, []string{"from", "to"}),
	}
}

// Hooks returns llmclient hooks that feed the request collectors.
func (m *Metrics) Hooks() llmclient.Hooks {
	return llmclient.Hooks{
		OnRequestStart: func(ctx context.Context, info llmclient.RequestInfo) context.Context {
			m.inFlight.WithLabelValues(info.Provider).Inc()
			return ctx
		},
		OnRequestEnd: func(_ context.Context, info llmclient.ResponseInfo) {
			stream := strconv.FormatBool(info.Stream)
			status := strconv.Itoa(info.StatusCode)
			if info.StatusCode == 0 {
				status = "error"
			}
			m.inFlight.WithLabelValues(info.Provider).Dec()
			m.requests.WithLabelValues(info.Provider, info.Model, status, stream).Inc()
			m.duration.WithLabelValues(info.Provider, info.Model, stream).Observe(info.Duration.Seconds())
		},
	}
}

// ObserveUsage records token counts and cost for a completed request.
func (m *Metrics) ObserveUsage(provider, model string, usage core.TokenUsage, cost core.CostBreakdown) {
	m.tokens.WithLabelValues(provider, model, "prompt").Add(float64(usage.PromptTokens))
	m.tokens.WithLabelValues(provider, model, "completion").Add(float64(usage.CompletionTokens))
	m.costUSD.WithLabelValues(provider, model, "provider").Add(cost.ProviderCostUSD)
	m.costUSD.WithLabelValues(provider, model, "charge").Add(cost.CencoriChargeUSD)
}

// ObserveFailover counts a request that moved from one provider to another.
func (m *Metrics) ObserveFailover(from, to string) {
	m.failovers.WithLabelValues(from, to).Inc()
}
