package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cencori/internal/core"
	"cencori/internal/messages"
	"cencori/internal/pricing"
)

// DefaultRequestTimeout bounds a request whose context carries no deadline.
const DefaultRequestTimeout = 120 * time.Second

// Base holds what every adapter shares: its name, the pricing resolver and the
// default request timeout. Adapters embed it.
type Base struct {
	name    string
	pricing core.PricingResolver
	timeout time.Duration
}

// NewBase creates a Base. A nil resolver prices every model at zero.
func NewBase(name string, resolver core.PricingResolver, timeout time.Duration) Base {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return Base{name: name, pricing: resolver, timeout: timeout}
}

// Name returns the provider identifier.
func (b *Base) Name() string {
	return b.name
}

// WithTimeout applies the default timeout when ctx has no deadline.
func (b *Base) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

// WithStreamTimeout is WithTimeout for streams. The default timeout covers
// opening the stream only: call opened once the response headers have arrived
// and the body may run for as long as the upstream keeps sending. cancel ends
// the stream.
func (b *Base) WithStreamTimeout(ctx context.Context) (context.Context, func(), context.CancelFunc) {
	streamCtx, cancelStream := context.WithCancel(ctx)
	if _, ok := ctx.Deadline(); ok {
		return streamCtx, func() {}, cancelStream
	}
	timer := time.AfterFunc(b.timeout, cancelStream)
	opened := func() { timer.Stop() }
	cancel := func() {
		timer.Stop()
		cancelStream()
	}
	return streamCtx, opened, cancel
}

// GetPricing implements core.Provider.
func (b *Base) GetPricing(ctx context.Context, model string) (core.ModelPricing, error) {
	return b.Price(ctx, model)
}

// Price resolves the pricing of model. An unknown model is priced at zero;
// any other resolver failure is returned as a retryable provider error.
func (b *Base) Price(ctx context.Context, model string) (core.ModelPricing, error) {
	if b.pricing == nil {
		return core.ZeroPricing, nil
	}
	p, err := b.pricing.Resolve(ctx, b.name, model)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, pricing.ErrPricingNotFound) {
		slog.Warn("no pricing for model, billing at zero", "provider", b.name, "model", model)
		return core.ZeroPricing, nil
	}
	return core.ZeroPricing, core.NewProviderError(b.name, http.StatusServiceUnavailable, "pricing lookup failed: "+err.Error(), err)
}

// Fail normalizes err into a *core.ProviderError attributed to this provider.
func (b *Base) Fail(err error) error {
	if err == nil {
		return nil
	}
	return core.NormalizeProviderError(b.name, err)
}

// Usage returns upstream token counts, estimating each side that is missing.
func Usage(prompt, completion int, promptText, completionText string) core.TokenUsage {
	if prompt <= 0 {
		prompt = messages.EstimateTokenCount(promptText)
	}
	if completion <= 0 {
		completion = messages.EstimateTokenCount(completionText)
	}
	return core.NewTokenUsage(prompt, completion)
}

// Complete prices resp.Usage at the price of the requested model and fills the
// billing fields of resp. p decides the billing rule through core.BillFor.
func (b *Base) Complete(ctx context.Context, p core.Provider, model string, resp *core.ChatResponse, start time.Time) error {
	price, err := b.Price(ctx, model)
	if err != nil {
		return err
	}
	resp.Provider = b.name
	resp.Cost = core.BillFor(p, resp.Usage, price)
	resp.LatencyMs = time.Since(start).Milliseconds()
	return nil
}
