package providers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"cencori/internal/core"
)

// DefaultProvider serves model names that match no routing rule.
const DefaultProvider = "openai"

// DetectProvider maps a model name to a provider identifier. Rules are
// evaluated in order and the first match wins, so a model containing "llama"
// goes to groq even without a "llama-" prefix.
func DetectProvider(model string) string {
	switch {
	case hasAnyPrefix(model, "gpt-", "o1-", "text-", "davinci-"):
		return "openai"
	case strings.HasPrefix(model, "claude-"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini-"):
		return "google"
	case hasAnyPrefix(model, "mistral-", "codestral-", "open-mistral-", "open-mixtral-"):
		return "mistral"
	case hasAnyPrefix(model, "llama-", "llama2-", "llama3-", "mixtral-") || strings.Contains(model, "llama"):
		return "groq"
	case strings.HasPrefix(model, "command-"):
		return "cohere"
	case strings.HasPrefix(model, "grok-"):
		return "xai"
	case strings.HasPrefix(model, "deepseek-"):
		return "deepseek"
	case strings.Contains(model, "sonar"):
		return "perplexity"
	case strings.Contains(model, "qwen"):
		return "qwen"
	case strings.Contains(model, "/"):
		prefix, _, _ := strings.Cut(model, "/")
		return prefix
	case strings.HasPrefix(model, "custom-"):
		return model
	default:
		return DefaultProvider
	}
}

// NormalizeModelName strips an explicit "provider/" prefix. Only the first
// segment is removed so vendor ids with slashes survive.
func NormalizeModelName(model string) string {
	if _, rest, ok := strings.Cut(model, "/"); ok {
		return rest
	}
	return model
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// RouterBuilder collects provider registrations. Build produces an
// immutable Router; the builder may be discarded afterwards.
type RouterBuilder struct {
	providers map[string]core.Provider
}

// NewRouterBuilder returns an empty builder.
func NewRouterBuilder() *RouterBuilder {
	return &RouterBuilder{providers: make(map[string]core.Provider)}
}

// Register adds a provider under name. A later registration for the same
// name replaces the earlier one.
func (b *RouterBuilder) Register(name string, p core.Provider) *RouterBuilder {
	b.providers[name] = p
	return b
}

// Build snapshots the registrations into a Router.
func (b *RouterBuilder) Build() *Router {
	providers := make(map[string]core.Provider, len(b.providers))
	names := make([]string, 0, len(b.providers))
	for name, p := range b.providers {
		providers[name] = p
		names = append(names, name)
	}
	sort.Strings(names)
	return &Router{providers: providers, names: names}
}

// Router resolves model names to registered providers.
// It has no mutators and is safe for concurrent use.
type Router struct {
	providers map[string]core.Provider
	names     []string
}

// GetProvider returns the provider registered under name.
func (r *Router) GetProvider(name string) (core.Provider, error) {
	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	e := core.NewConfigurationError(name, fmt.Sprintf("provider '%s' is not registered or not available", name))
	e.StatusCode = http.StatusBadRequest
	return nil, e
}

// HasProvider reports whether name is registered.
func (r *Router) HasProvider(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// GetProviderForModel detects the provider of model and looks it up.
func (r *Router) GetProviderForModel(model string) (core.Provider, error) {
	return r.GetProvider(DetectProvider(model))
}

// Resolve returns the provider for model and the model name to send upstream.
// The "provider/" prefix is removed only when it names the resolved provider,
// so "openai/gpt-4o" is sent as "gpt-4o" while "meta-llama/Llama-3" is kept.
func (r *Router) Resolve(model string) (core.Provider, string, error) {
	name := DetectProvider(model)
	p, err := r.GetProvider(name)
	if err != nil {
		return nil, "", err
	}
	if prefix, rest, ok := strings.Cut(model, "/"); ok && prefix == name {
		return p, rest, nil
	}
	return p, model, nil
}

// Providers returns the registered names in sorted order.
func (r *Router) Providers() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered providers.
func (r *Router) Len() int {
	return len(r.names)
}
