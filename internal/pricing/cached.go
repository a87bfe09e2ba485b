package pricing

import (
	"context"
	"log/slog"
	"time"

	"cencori/internal/cache"
	"cencori/internal/core"
)

// DefaultCacheTTL bounds how long a price is served without consulting the source.
const DefaultCacheTTL = 5 * time.Minute

// CachedResolver fronts a slower resolver with a cache. Only found prices are
// cached; cache failures fall through to the source.
type CachedResolver struct {
	source core.PricingResolver
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachedResolver wraps source. A zero ttl uses DefaultCacheTTL.
func NewCachedResolver(source core.PricingResolver, c cache.Cache, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedResolver{source: source, cache: c, ttl: ttl}
}

func (r *CachedResolver) Resolve(ctx context.Context, provider, model string) (core.ModelPricing, error) {
	k := "pricing:" + key(provider, model)

	p, ok, err := cache.GetJSON[core.ModelPricing](ctx, r.cache, k)
	if err != nil {
		slog.Warn("pricing cache read failed", "provider", provider, "model", model, "error", err)
	} else if ok {
		return p, nil
	}

	p, err = r.source.Resolve(ctx, provider, model)
	if err != nil {
		return p, err
	}
	if err := cache.SetJSON(ctx, r.cache, k, p, r.ttl); err != nil {
		slog.Warn("pricing cache write failed", "provider", provider, "model", model, "error", err)
	}
	return p, nil
}
