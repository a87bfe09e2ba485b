package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"cencori/config"
	"cencori/internal/cache"
	"cencori/internal/core"
	"cencori/internal/httpclient"
	"cencori/internal/pricing"
	"cencori/internal/providers"
	"cencori/internal/providers/anthropic"
	"cencori/internal/providers/cohere"
	"cencori/internal/providers/custom"
	"cencori/internal/providers/gemini"
	"cencori/internal/providers/openai"
	"cencori/internal/providers/openaicompat"
	"cencori/internal/storage"
)

// NewFactory returns a factory with every built-in provider type registered.
func NewFactory() *providers.ProviderFactory {
	f := providers.NewProviderFactory()
	f.Add(openai.Registration)
	f.Add(anthropic.Registration)
	f.Add(gemini.Registration)
	f.Register("gemini", gemini.New)
	f.Add(cohere.Registration)
	for _, reg := range openaicompat.Registrations() {
		f.Add(reg)
	}
	f.Add(custom.Registration)
	return f
}

// NewHTTPClient builds the upstream client from the http section.
func NewHTTPClient(cfg config.HTTPConfig) *http.Client {
	cc := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		cc.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if cfg.ResponseHeaderTimeout > 0 {
		cc.ResponseHeaderTimeout = time.Duration(cfg.ResponseHeaderTimeout) * time.Second
	}
	return httpclient.NewHTTPClient(&cc)
}

// Pricing holds the resolver handed to providers and the resources behind it.
type Pricing struct {
	Resolver core.PricingResolver
	Static   *pricing.StaticResolver
	// Postgres is set when pricing.source is postgresql.
	Postgres *pricing.PostgresResolver

	cache cache.Cache
	store storage.Storage
}

// NewPricing builds the resolver chain: the model_pricing table when
// configured, then the static table, behind a cache. redisClient selects the
// Redis cache and may be nil.
func NewPricing(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (*Pricing, error) {
	p := &Pricing{
		Static: pricing.NewStaticResolver(staticEntries(cfg.Pricing), cfg.Pricing.DefaultMarkup),
	}
	var source core.PricingResolver = p.Static

	if cfg.Pricing.Source == "postgresql" {
		store, err := storage.NewPostgreSQL(ctx, storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open pricing database: %w", err)
		}
		p.store = store
		p.Postgres = pricing.NewPostgresResolver(store.PostgreSQLPool(), cfg.Pricing.DefaultMarkup)
		if err := p.Postgres.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		source = pricing.Chain{p.Postgres, p.Static}
	}

	ttl := time.Duration(cfg.Pricing.CacheTTL) * time.Second
	if redisClient != nil {
		p.cache = cache.NewRedisCacheWithClient(redisClient, cache.RedisConfig{Prefix: cfg.Cache.Redis.Prefix, TTL: ttl})
	} else {
		p.cache = cache.NewLocalCache(ttl)
	}
	p.Resolver = pricing.NewCachedResolver(source, p.cache, ttl)

	slog.Info("pricing configured",
		"source", cfg.Pricing.Source,
		"static_entries", len(p.Static.Keys()),
		"cache", cfg.Cache.Type,
	)
	return p, nil
}

// Storage returns the PostgreSQL connection opened for pricing, or nil.
func (p *Pricing) Storage() storage.Storage {
	return p.store
}

// Close releases the cache and the pricing database. The Redis client is not closed.
func (p *Pricing) Close() error {
	var errs []error
	if p.cache != nil {
		errs = append(errs, p.cache.Close())
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	return errors.Join(errs...)
}

// staticEntries merges the built-in list prices with the configured table.
// Configured entries win.
func staticEntries(cfg config.PricingConfig) []pricing.Entry {
	entries := pricing.Defaults()
	for _, m := range cfg.Models {
		entries = append(entries, pricing.Entry{
			Provider:         m.Provider,
			Model:            m.Model,
			InputPer1K:       m.InputPer1K,
			OutputPer1K:      m.OutputPer1K,
			MarkupPercentage: m.MarkupPercentage,
		})
	}
	return entries
}
