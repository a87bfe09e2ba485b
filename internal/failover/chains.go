// Package failover retries a failed completion on other providers.
package failover

// defaultChain is used for primaries without an entry in Chains.
var defaultChain = []string{"openai", "anthropic"}

// Chains lists the fallback providers of each primary, in order.
var Chains = map[string][]string{
	"openai":     {"anthropic", "google", "groq", "mistral"},
	"anthropic":  {"openai", "google", "groq", "mistral"},
	"google":     {"openai", "anthropic", "groq", "mistral"},
	"xai":        {"openai", "anthropic", "groq", "google"},
	"deepseek":   {"openai", "anthropic", "groq", "google"},
	"mistral":    {"openai", "anthropic", "groq", "google"},
	"cohere":     {"openai", "anthropic", "google"},
	"groq":       {"openai", "anthropic", "google", "mistral"},
	"perplexity": {"openai", "anthropic", "google"},
	"together":   {"openai", "anthropic", "google"},
	"qwen":       {"openai", "anthropic", "google"},
}

// ModelMappings maps a model to its equivalent on other providers.
var ModelMappings = map[string]map[string]string{
	"gpt-5":       {"anthropic": "claude-opus-4", "google": "gemini-3-pro"},
	"gpt-4o":      {"anthropic": "claude-sonnet-4", "google": "gemini-2.5-flash"},
	"gpt-4o-mini": {"anthropic": "claude-haiku-4.5", "google": "gemini-2.5-flash-lite"},
	"o3":          {"anthropic": "claude-opus-4", "google": "gemini-3-deep-think"},
	"o3-mini":     {"anthropic": "claude-sonnet-4", "google": "gemini-2.5-flash"},
	"o1":          {"anthropic": "claude-sonnet-4", "google": "gemini-2.5-pro"},

	"claude-opus-4":              {"openai": "gpt-5", "google": "gemini-3-pro"},
	"claude-opus-4.5":            {"openai": "gpt-5", "google": "gemini-3-pro"},
	"claude-sonnet-4":            {"openai": "gpt-4o", "google": "gemini-2.5-flash"},
	"claude-sonnet-4.5":          {"openai": "gpt-4o", "google": "gemini-2.5-flash"},
	"claude-haiku-4.5":           {"openai": "gpt-4o-mini", "google": "gemini-2.5-flash-lite"},
	"claude-3-5-sonnet-20241022": {"openai": "gpt-4o", "google": "gemini-2.5-flash"},

	"gemini-3-pro":     {"openai": "gpt-5", "anthropic": "claude-opus-4"},
	"gemini-3-flash":   {"openai": "gpt-4o", "anthropic": "claude-sonnet-4"},
	"gemini-2.5-pro":   {"openai": "gpt-4o", "anthropic": "claude-sonnet-4"},
	"gemini-2.5-flash": {"openai": "gpt-4o", "anthropic": "claude-sonnet-4"},
	"gemini-2.0-flash": {"openai": "gpt-4o-mini", "anthropic": "claude-haiku-4.5"},

	"grok-4":   {"openai": "gpt-4o", "anthropic": "claude-sonnet-4"},
	"grok-4.1": {"openai": "gpt-4o", "anthropic": "claude-sonnet-4"},
	"grok-3":   {"openai": "gpt-4o", "anthropic": "claude-sonnet-4"},

	"mistral-large-latest": {"openai": "gpt-4o", "anthropic": "claude-sonnet-4", "google": "gemini-2.5-flash"},
	"codestral-latest":     {"openai": "gpt-4.1", "anthropic": "claude-sonnet-4"},

	"llama-3.3-70b-versatile": {"openai": "gpt-4o", "anthropic": "claude-sonnet-4", "google": "gemini-2.5-flash"},
	"llama-3.3-70b-specdec":   {"openai": "gpt-4o", "anthropic": "claude-sonnet-4", "google": "gemini-2.5-flash"},
	"llama-3.1-70b-versatile": {"openai": "gpt-4o", "anthropic": "claude-sonnet-4", "google": "gemini-2.5-flash"},
	"mixtral-8x7b-32768":      {"openai": "gpt-4o-mini", "anthropic": "claude-haiku-4.5", "google": "gemini-2.5-flash-lite"},
	"llama3-70b-8192":         {"openai": "gpt-4o", "anthropic": "claude-sonnet-4", "google": "gemini-2.5-flash"},

	"deepseek-chat":     {"openai": "gpt-4o", "anthropic": "claude-sonnet-4", "google": "gemini-2.5-flash"},
	"deepseek-reasoner": {"openai": "o1", "anthropic": "claude-opus-4", "google": "gemini-3-deep-think"},
}

// defaultModels is used when a model has no mapping for the fallback provider.
var defaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4",
	"google":    "gemini-2.5-flash",
}

const lastResortModel = "gpt-4o"

// FallbackModel returns the model to request from fallback in place of model.
func FallbackModel(model, fallback string) string {
	if m, ok := ModelMappings[model][fallback]; ok {
		return m
	}
	if m, ok := defaultModels[fallback]; ok {
		return m
	}
	return lastResortModel
}

// FallbackChain returns the providers to try after primary. A configured
// fallback other than primary goes first, followed by the rest of the chain
// without duplicates. overrides replaces the built-in chains per primary.
func FallbackChain(primary, configured string, overrides map[string][]string) []string {
	chain, ok := overrides[primary]
	if !ok {
		chain, ok = Chains[primary]
	}
	if !ok {
		chain = defaultChain
	}

	if configured == "" || configured == primary {
		out := make([]string, len(chain))
		copy(out, chain)
		return out
	}

	out := []string{configured}
	for _, p := range chain {
		if p != configured && p != primary {
			out = append(out, p)
		}
	}
	return out
}
