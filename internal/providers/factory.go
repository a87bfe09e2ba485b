// Package providers holds the adapter infrastructure shared by every vendor
// package: configuration, the factory, the router and the stream reader.
package providers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"cencori/internal/circuitbreaker"
	"cencori/internal/core"
	"cencori/internal/llmclient"
)

// ProviderOptions carries the shared collaborators handed to every builder.
type ProviderOptions struct {
	Hooks   llmclient.Hooks
	Breaker *circuitbreaker.Breaker
	// Pricing resolves model prices; a provider entry with fixed pricing overrides it.
	Pricing    core.PricingResolver
	HTTPClient *http.Client
}

// Builder creates a provider from its resolved configuration.
type Builder func(cfg ProviderConfig, opts ProviderOptions) (core.Provider, error)

// Registration binds a provider type to its builder.
type Registration struct {
	Type string
	New  Builder
}

// ProviderFactory creates providers by type.
type ProviderFactory struct {
	mu       sync.RWMutex
	builders map[string]Builder
	opts     ProviderOptions
}

// NewProviderFactory creates an empty factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{builders: make(map[string]Builder)}
}

// Add registers a provider type. Adding a type twice replaces the builder.
func (f *ProviderFactory) Add(reg Registration) {
	f.Register(reg.Type, reg.New)
}

// Register binds providerType to builder.
func (f *ProviderFactory) Register(providerType string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[providerType] = builder
}

// SetHooks sets the observability hooks passed to every provider.
func (f *ProviderFactory) SetHooks(hooks llmclient.Hooks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts.Hooks = hooks
}

// GetHooks returns the configured hooks.
func (f *ProviderFactory) GetHooks() llmclient.Hooks {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.opts.Hooks
}

// SetBreaker sets the circuit breaker shared by every provider.
func (f *ProviderFactory) SetBreaker(b *circuitbreaker.Breaker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts.Breaker = b
}

// SetPricing sets the default pricing resolver.
func (f *ProviderFactory) SetPricing(r core.PricingResolver) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts.Pricing = r
}

// SetHTTPClient overrides the upstream HTTP client.
func (f *ProviderFactory) SetHTTPClient(c *http.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts.HTTPClient = c
}

// Create instantiates a provider based on configuration.
func (f *ProviderFactory) Create(cfg ProviderConfig) (core.Provider, error) {
	f.mu.RLock()
	builder, ok := f.builders[cfg.Type]
	opts := f.opts
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	if cfg.Pricing != nil {
		opts.Pricing = FixedPricing(*cfg.Pricing)
	}
	return builder(cfg, opts)
}

// ListRegistered returns the registered provider types in sorted order.
func (f *ProviderFactory) ListRegistered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ClientConfig builds the llmclient configuration for a provider.
// defaultBaseURL is used when the entry sets none. Trailing slashes are dropped
// since endpoints start with one.
func (o ProviderOptions) ClientConfig(cfg ProviderConfig, defaultBaseURL string) llmclient.Config {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := llmclient.DefaultConfig(cfg.Name, strings.TrimRight(baseURL, "/"))
	c.MaxRetries = cfg.Retry.MaxRetries
	if cfg.Retry.InitialBackoff > 0 {
		c.InitialBackoff = cfg.Retry.InitialBackoff
	}
	if cfg.Retry.MaxBackoff > 0 {
		c.MaxBackoff = cfg.Retry.MaxBackoff
	}
	if cfg.Retry.BackoffFactor > 0 {
		c.BackoffFactor = cfg.Retry.BackoffFactor
	}
	c.Breaker = o.Breaker
	c.Hooks = o.Hooks
	return c
}

// NewClient builds the llmclient for a provider.
func (o ProviderOptions) NewClient(cfg ProviderConfig, defaultBaseURL string, headers llmclient.HeaderSetter) *llmclient.Client {
	return llmclient.NewWithHTTPClient(o.HTTPClient, o.ClientConfig(cfg, defaultBaseURL), headers)
}

// NewBase builds the Base shared by adapters.
func (o ProviderOptions) NewBase(cfg ProviderConfig) Base {
	return NewBase(cfg.Name, o.Pricing, cfg.Timeout)
}

// RequireAPIKey fails fast when a provider needs a key and none is configured.
func RequireAPIKey(cfg ProviderConfig) error {
	if cfg.APIKey == "" {
		return core.NewConfigurationError(cfg.Name, "API key is not configured")
	}
	return nil
}

// RetryConfig is the resolved retry policy of one provider.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}
