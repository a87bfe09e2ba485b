package providers

import (
	"context"
	"os"
	"strings"
	"time"

	"cencori/config"
	"cencori/internal/core"
)

// ProviderConfig holds the fully resolved provider configuration after merging
// global defaults with per-provider overrides.
type ProviderConfig struct {
	// Name is the registry key, which is also the provider name reported in
	// responses and errors.
	Name    string
	Type    string
	APIKey  string
	BaseURL string
	Format  string
	Model   string
	Pricing *config.ProviderPricing
	Headers map[string]string
	Timeout time.Duration
	Retry   RetryConfig
}

// knownProviderEnvs maps well-known provider names to their environment variables.
// This list is the authoritative source for provider auto-discovery from env vars.
var knownProviderEnvs = []struct {
	name         string
	providerType string
	apiKeyEnv    string
	baseURLEnv   string
}{
	{"openai", "openai", "OPENAI_API_KEY", "OPENAI_BASE_URL"},
	{"anthropic", "anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL"},
	{"google", "google", "GEMINI_API_KEY", "GEMINI_BASE_URL"},
	{"cohere", "cohere", "COHERE_API_KEY", "COHERE_BASE_URL"},
	{"mistral", "mistral", "MISTRAL_API_KEY", "MISTRAL_BASE_URL"},
	{"groq", "groq", "GROQ_API_KEY", "GROQ_BASE_URL"},
	{"together", "together", "TOGETHER_API_KEY", "TOGETHER_BASE_URL"},
	{"perplexity", "perplexity", "PERPLEXITY_API_KEY", "PERPLEXITY_BASE_URL"},
	{"openrouter", "openrouter", "OPENROUTER_API_KEY", "OPENROUTER_BASE_URL"},
	{"xai", "xai", "XAI_API_KEY", "XAI_BASE_URL"},
	{"deepseek", "deepseek", "DEEPSEEK_API_KEY", "DEEPSEEK_BASE_URL"},
	{"qwen", "qwen", "QWEN_API_KEY", "QWEN_BASE_URL"},
	{"meta", "meta", "META_API_KEY", "META_BASE_URL"},
	{"huggingface", "huggingface", "HUGGINGFACE_API_KEY", "HUGGINGFACE_BASE_URL"},
}

// ResolveProviders applies env var overrides to the raw YAML provider map, filters
// out entries with invalid credentials, and merges each entry with the global
// ResilienceConfig. Returns a fully resolved map ready for provider instantiation.
func ResolveProviders(raw map[string]config.RawProviderConfig, global config.ResilienceConfig) map[string]ProviderConfig {
	merged := applyProviderEnvVars(raw)
	filtered := filterEmptyProviders(merged)
	return buildProviderConfigs(filtered, global)
}

// applyProviderEnvVars overlays well-known provider env vars onto the raw YAML map.
// Env var values always win over YAML values for the same provider name.
func applyProviderEnvVars(raw map[string]config.RawProviderConfig) map[string]config.RawProviderConfig {
	result := make(map[string]config.RawProviderConfig, len(raw))
	for k, v := range raw {
		result[k] = v
	}

	for _, kp := range knownProviderEnvs {
		apiKey := os.Getenv(kp.apiKeyEnv)
		baseURL := os.Getenv(kp.baseURLEnv)

		if apiKey == "" && baseURL == "" {
			continue
		}

		existing, exists := result[kp.name]
		if exists {
			if apiKey != "" {
				existing.APIKey = apiKey
			}
			if baseURL != "" {
				existing.BaseURL = baseURL
			}
			result[kp.name] = existing
		} else {
			result[kp.name] = config.RawProviderConfig{
				Type:    kp.providerType,
				APIKey:  apiKey,
				BaseURL: baseURL,
			}
		}
	}

	return result
}

// filterEmptyProviders removes providers without usable credentials.
// Custom providers may run without a key because their base URL may be an
// unauthenticated internal endpoint.
func filterEmptyProviders(raw map[string]config.RawProviderConfig) map[string]config.RawProviderConfig {
	result := make(map[string]config.RawProviderConfig, len(raw))
	for name, p := range raw {
		if strings.Contains(p.APIKey, "${") || strings.Contains(p.BaseURL, "${") {
			continue
		}
		if p.Type == "custom" && p.BaseURL != "" {
			result[name] = p
			continue
		}
		if p.APIKey != "" {
			result[name] = p
		}
	}
	return result
}

// buildProviderConfigs merges each raw provider config with the global ResilienceConfig,
// producing fully resolved ProviderConfig values.
func buildProviderConfigs(raw map[string]config.RawProviderConfig, global config.ResilienceConfig) map[string]ProviderConfig {
	result := make(map[string]ProviderConfig, len(raw))
	for name, r := range raw {
		result[name] = buildProviderConfig(name, r, global)
	}
	return result
}

// buildProviderConfig merges a single RawProviderConfig with the global ResilienceConfig.
// Non-nil retry fields in the raw config override the global defaults.
func buildProviderConfig(name string, raw config.RawProviderConfig, global config.ResilienceConfig) ProviderConfig {
	providerType := raw.Type
	if providerType == "" {
		providerType = name
	}
	resolved := ProviderConfig{
		Name:    name,
		Type:    providerType,
		APIKey:  raw.APIKey,
		BaseURL: raw.BaseURL,
		Format:  raw.Format,
		Model:   raw.Model,
		Pricing: raw.Pricing,
		Headers: raw.Headers,
		Timeout: time.Duration(global.RequestTimeout) * time.Second,
		Retry: RetryConfig{
			MaxRetries:     global.MaxRetries,
			InitialBackoff: time.Duration(global.InitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(global.MaxBackoffMs) * time.Millisecond,
			BackoffFactor:  global.BackoffFactor,
		},
	}

	r := raw.Retry
	if r == nil {
		return resolved
	}
	if r.MaxRetries != nil {
		resolved.Retry.MaxRetries = *r.MaxRetries
	}
	if r.InitialBackoffMs != nil {
		resolved.Retry.InitialBackoff = time.Duration(*r.InitialBackoffMs) * time.Millisecond
	}
	if r.MaxBackoffMs != nil {
		resolved.Retry.MaxBackoff = time.Duration(*r.MaxBackoffMs) * time.Millisecond
	}
	if r.BackoffFactor != nil {
		resolved.Retry.BackoffFactor = *r.BackoffFactor
	}
	return resolved
}

// FixedPricing is a resolver returning the same price for every model.
type FixedPricing config.ProviderPricing

// Resolve implements core.PricingResolver.
func (f FixedPricing) Resolve(context.Context, string, string) (core.ModelPricing, error) {
	return core.ModelPricing{
		InputPer1KTokens:        f.InputPer1K,
		OutputPer1KTokens:       f.OutputPer1K,
		CencoriMarkupPercentage: f.MarkupPercentage,
	}, nil
}
