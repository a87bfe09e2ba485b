// Package pricing resolves per-model prices and the platform markup.
package pricing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"cencori/internal/core"
)

// ErrPricingNotFound is returned when no price is known for a provider and model.
var ErrPricingNotFound = errors.New("pricing not found")

// Entry is one configured price.
type Entry struct {
	Provider         string   `yaml:"provider" json:"provider"`
	Model            string   `yaml:"model" json:"model"`
	InputPer1K       float64  `yaml:"input_per_1k" json:"input_per_1k"`
	OutputPer1K      float64  `yaml:"output_per_1k" json:"output_per_1k"`
	MarkupPercentage *float64 `yaml:"markup_percentage,omitempty" json:"markup_percentage,omitempty"`
}

func key(provider, model string) string {
	return strings.ToLower(provider) + "/" + strings.ToLower(model)
}

// StaticResolver serves prices from an in-memory table.
type StaticResolver struct {
	mu            sync.RWMutex
	entries       map[string]core.ModelPricing
	defaultMarkup float64
}

// NewStaticResolver builds a resolver from entries. Entries without their own
// markup use defaultMarkup. Later entries override earlier ones.
func NewStaticResolver(entries []Entry, defaultMarkup float64) *StaticResolver {
	r := &StaticResolver{
		entries:       make(map[string]core.ModelPricing, len(entries)),
		defaultMarkup: defaultMarkup,
	}
	for _, e := range entries {
		r.Set(e)
	}
	return r
}

// Set adds or replaces an entry.
func (r *StaticResolver) Set(e Entry) {
	markup := r.defaultMarkup
	if e.MarkupPercentage != nil {
		markup = *e.MarkupPercentage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key(e.Provider, e.Model)] = core.ModelPricing{
		InputPer1KTokens:        e.InputPer1K,
		OutputPer1KTokens:       e.OutputPer1K,
		CencoriMarkupPercentage: markup,
	}
}

// Resolve returns the price for provider and model, matching case-insensitively.
func (r *StaticResolver) Resolve(_ context.Context, provider, model string) (core.ModelPricing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.entries[key(provider, model)]; ok {
		return p, nil
	}
	return core.ZeroPricing, ErrPricingNotFound
}

// Keys lists the configured provider/model pairs in sorted order.
func (r *StaticResolver) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Chain tries each resolver in order and returns the first price found.
// Errors other than ErrPricingNotFound stop the search.
type Chain []core.PricingResolver

func (c Chain) Resolve(ctx context.Context, provider, model string) (core.ModelPricing, error) {
	for _, r := range c {
		p, err := r.Resolve(ctx, provider, model)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrPricingNotFound) {
			return core.ZeroPricing, err
		}
	}
	return core.ZeroPricing, ErrPricingNotFound
}
