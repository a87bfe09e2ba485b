package providers

// ModelType classifies a catalog model.
type ModelType string

const (
	ModelTypeChat      ModelType = "chat"
	ModelTypeReasoning ModelType = "reasoning"
	ModelTypeCode      ModelType = "code"
	ModelTypeSearch    ModelType = "search"
)

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          ModelType `json:"type"`
	ContextWindow int       `json:"context_window"`
	Description   string    `json:"description,omitempty"`
}

// ProviderInfo describes a supported provider and its models.
type ProviderInfo struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Website   string      `json:"website"`
	DocsURL   string      `json:"docs_url"`
	KeyPrefix string      `json:"key_prefix,omitempty"`
	Models    []ModelInfo `json:"models"`
}

// SupportedProviders is the catalog of providers and models the gateway knows.
// Treat it as read-only.
var SupportedProviders = []ProviderInfo{
	{
		ID:        "openai",
		Name:      "OpenAI",
		Website:   "https://openai.com",
		DocsURL:   "https://platform.openai.com/docs",
		KeyPrefix: "sk-",
		Models: []ModelInfo{
			{ID: "gpt-5", Name: "GPT-5", Type: ModelTypeChat, ContextWindow: 256000, Description: "Latest flagship model"},
			{ID: "gpt-5-mini", Name: "GPT-5 Mini", Type: ModelTypeChat, ContextWindow: 128000, Description: "Fast and efficient"},
			{ID: "gpt-4o", Name: "GPT-4o", Type: ModelTypeChat, ContextWindow: 128000, Description: "Omni-modal model"},
			{ID: "gpt-4o-mini", Name: "GPT-4o Mini", Type: ModelTypeChat, ContextWindow: 128000, Description: "Fast and cost-effective"},
			{ID: "gpt-4.1", Name: "GPT-4.1", Type: ModelTypeCode, ContextWindow: 256000, Description: "Long context, code-optimized"},
			{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", Type: ModelTypeChat, ContextWindow: 128000, Description: "Previous flagship"},
			{ID: "o3", Name: "o3", Type: ModelTypeReasoning, ContextWindow: 200000, Description: "Most advanced reasoning"},
			{ID: "o3-mini", Name: "o3 Mini", Type: ModelTypeReasoning, ContextWindow: 128000, Description: "Fast reasoning model"},
			{ID: "o1", Name: "o1", Type: ModelTypeReasoning, ContextWindow: 128000, Description: "Advanced reasoning model"},
			{ID: "o1-mini", Name: "o1 Mini", Type: ModelTypeReasoning, ContextWindow: 128000, Description: "Efficient reasoning"},
		},
	},
	{
		ID:        "anthropic",
		Name:      "Anthropic",
		Website:   "https://anthropic.com",
		DocsURL:   "https://docs.anthropic.com",
		KeyPrefix: "sk-ant-",
		Models: []ModelInfo{
			{ID: "claude-opus-4.6", Name: "Claude Opus 4.6", Type: ModelTypeChat, ContextWindow: 1000000, Description: "Latest flagship, agentic coding record-breaker"},
			{ID: "claude-opus-4", Name: "Claude Opus 4", Type: ModelTypeChat, ContextWindow: 200000, Description: "Most capable Claude model"},
			{ID: "claude-sonnet-4", Name: "Claude Sonnet 4", Type: ModelTypeChat, ContextWindow: 200000, Description: "Balanced speed & capability"},
			{ID: "claude-sonnet-4.5", Name: "Claude Sonnet 4.5", Type: ModelTypeChat, ContextWindow: 200000, Description: "Enhanced coding & agents"},
			{ID: "claude-opus-4.5", Name: "Claude Opus 4.5", Type: ModelTypeChat, ContextWindow: 200000, Description: "Latest, most intelligent"},
			{ID: "claude-haiku-4.5", Name: "Claude Haiku 4.5", Type: ModelTypeChat, ContextWindow: 200000, Description: "Fastest Claude model"},
			{ID: "claude-3-7-sonnet", Name: "Claude 3.7 Sonnet", Type: ModelTypeReasoning, ContextWindow: 200000, Description: "Hybrid reasoning model"},
			{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Type: ModelTypeChat, ContextWindow: 200000, Description: "Balance of speed and capability"},
			{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", Type: ModelTypeChat, ContextWindow: 200000, Description: "Fast and efficient"},
		},
	},
	{
		ID:        "google",
		Name:      "Google AI",
		Website:   "https://ai.google.dev",
		DocsURL:   "https://ai.google.dev/docs",
		KeyPrefix: "AIza",
		Models: []ModelInfo{
			{ID: "gemini-3-pro", Name: "Gemini 3 Pro", Type: ModelTypeChat, ContextWindow: 2000000, Description: "Most powerful Gemini"},
			{ID: "gemini-3-flash", Name: "Gemini 3 Flash", Type: ModelTypeChat, ContextWindow: 1000000, Description: "Frontier speed & intelligence"},
			{ID: "gemini-3-deep-think", Name: "Gemini 3 Deep Think", Type: ModelTypeReasoning, ContextWindow: 1000000, Description: "Deep iterative reasoning"},
			{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", Type: ModelTypeChat, ContextWindow: 1000000, Description: "Enhanced reasoning & coding"},
			{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", Type: ModelTypeChat, ContextWindow: 1000000, Description: "Thinking capabilities"},
			{ID: "gemini-2.5-flash-lite", Name: "Gemini 2.5 Flash Lite", Type: ModelTypeChat, ContextWindow: 1000000, Description: "Speed optimized"},
			{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Type: ModelTypeChat, ContextWindow: 1000000, Description: "Fast model"},
			{ID: "gemini-2.0-flash-thinking", Name: "Gemini 2.0 Flash Thinking", Type: ModelTypeReasoning, ContextWindow: 1000000, Description: "Reasoning variant"},
		},
	},
	{
		ID:        "mistral",
		Name:      "Mistral AI",
		Website:   "https://mistral.ai",
		DocsURL:   "https://docs.mistral.ai",
		KeyPrefix: "",
		Models: []ModelInfo{
			{ID: "mistral-large-latest", Name: "Mistral Large 3", Type: ModelTypeChat, ContextWindow: 128000, Description: "675B params, best open-weight multimodal"},
			{ID: "mistral-medium-latest", Name: "Mistral Medium 3.1", Type: ModelTypeChat, ContextWindow: 128000, Description: "Frontier-class multimodal"},
			{ID: "mistral-small-latest", Name: "Mistral Small 3", Type: ModelTypeChat, ContextWindow: 32000, Description: "24B params, fast"},
			{ID: "ministral-3b", Name: "Ministral 3B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Compact edge model"},
			{ID: "ministral-8b", Name: "Ministral 8B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Small efficient model"},
			{ID: "codestral-latest", Name: "Codestral 25.01", Type: ModelTypeCode, ContextWindow: 256000, Description: "2.5x faster code generation"},
			{ID: "devstral-latest", Name: "Devstral 2", Type: ModelTypeCode, ContextWindow: 256000, Description: "Frontier code agents"},
			{ID: "magistral-medium", Name: "Magistral Medium", Type: ModelTypeReasoning, ContextWindow: 128000, Description: "Multimodal reasoning"},
		},
	},
	{
		ID:        "groq",
		Name:      "Groq",
		Website:   "https://groq.com",
		DocsURL:   "https://console.groq.com/docs",
		KeyPrefix: "gsk_",
		Models: []ModelInfo{
			{ID: "llama-4-maverick", Name: "Llama 4 Maverick", Type: ModelTypeChat, ContextWindow: 256000, Description: "Latest multimodal Llama"},
			{ID: "llama-4-scout", Name: "Llama 4 Scout", Type: ModelTypeChat, ContextWindow: 256000, Description: "Advanced Llama 4 model"},
			{ID: "llama-3.3-70b-versatile", Name: "Llama 3.3 70B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Latest Llama 3 model"},
			{ID: "llama-3.1-8b-instant", Name: "Llama 3.1 8B Instant", Type: ModelTypeChat, ContextWindow: 128000, Description: "Ultra-fast inference"},
			{ID: "mixtral-8x7b-32768", Name: "Mixtral 8x7B", Type: ModelTypeChat, ContextWindow: 32768, Description: "MoE architecture"},
		},
	},
	{
		ID:        "cohere",
		Name:      "Cohere",
		Website:   "https://cohere.com",
		DocsURL:   "https://docs.cohere.com",
		KeyPrefix: "",
		Models: []ModelInfo{
			{ID: "command-a-03-2025", Name: "Command A", Type: ModelTypeChat, ContextWindow: 256000, Description: "Most performant, agentic tasks"},
			{ID: "command-r-plus-08-2024", Name: "Command R+", Type: ModelTypeChat, ContextWindow: 128000, Description: "Complex RAG and multi-step"},
			{ID: "command-r", Name: "Command R", Type: ModelTypeChat, ContextWindow: 128000, Description: "Balanced performance"},
			{ID: "command-light", Name: "Command Light", Type: ModelTypeChat, ContextWindow: 4096, Description: "Fast and efficient"},
		},
	},
	{
		ID:        "together",
		Name:      "Together AI",
		Website:   "https://together.ai",
		DocsURL:   "https://docs.together.ai",
		KeyPrefix: "",
		Models: []ModelInfo{
			{ID: "meta-llama/Llama-4-Maverick", Name: "Llama 4 Maverick", Type: ModelTypeChat, ContextWindow: 256000, Description: "Latest Llama"},
			{ID: "meta-llama/Llama-3.3-70B-Instruct-Turbo", Name: "Llama 3.3 70B Turbo", Type: ModelTypeChat, ContextWindow: 128000, Description: "Fast Llama inference"},
			{ID: "Qwen/Qwen2.5-72B-Instruct-Turbo", Name: "Qwen 2.5 72B", Type: ModelTypeChat, ContextWindow: 32000, Description: "Alibaba flagship"},
			{ID: "deepseek-ai/DeepSeek-V3.1", Name: "DeepSeek V3.1", Type: ModelTypeChat, ContextWindow: 128000, Description: "Hybrid reasoning"},
		},
	},
	{
		ID:        "perplexity",
		Name:      "Perplexity",
		Website:   "https://perplexity.ai",
		DocsURL:   "https://docs.perplexity.ai",
		KeyPrefix: "pplx-",
		Models: []ModelInfo{
			{ID: "sonar-pro", Name: "Sonar Pro", Type: ModelTypeSearch, ContextWindow: 128000, Description: "Enhanced search, richer context"},
			{ID: "sonar", Name: "Sonar", Type: ModelTypeSearch, ContextWindow: 128000, Description: "Default web-connected"},
			{ID: "sonar-reasoning-pro", Name: "Sonar Reasoning Pro", Type: ModelTypeReasoning, ContextWindow: 128000, Description: "Deep inference & research"},
			{ID: "llama-3.1-sonar-large-128k-online", Name: "Sonar Large Online", Type: ModelTypeSearch, ContextWindow: 128000, Description: "Web-connected search"},
		},
	},
	{
		ID:        "openrouter",
		Name:      "OpenRouter",
		Website:   "https://openrouter.ai",
		DocsURL:   "https://openrouter.ai/docs",
		KeyPrefix: "sk-or-",
		Models: []ModelInfo{
			{ID: "openai/gpt-5", Name: "GPT-5 (via OpenRouter)", Type: ModelTypeChat, ContextWindow: 256000, Description: "Access any model"},
			{ID: "anthropic/claude-opus-4.5", Name: "Claude Opus 4.5 (via OpenRouter)", Type: ModelTypeChat, ContextWindow: 200000, Description: "Unified billing"},
			{ID: "google/gemini-3-pro", Name: "Gemini 3 Pro (via OpenRouter)", Type: ModelTypeChat, ContextWindow: 2000000, Description: "Meta-provider"},
			{ID: "x-ai/grok-4", Name: "Grok 4 (via OpenRouter)", Type: ModelTypeChat, ContextWindow: 256000, Description: "Access xAI models"},
		},
	},
	{
		ID:        "xai",
		Name:      "xAI",
		Website:   "https://x.ai",
		DocsURL:   "https://docs.x.ai",
		KeyPrefix: "xai-",
		Models: []ModelInfo{
			{ID: "grok-4", Name: "Grok 4", Type: ModelTypeChat, ContextWindow: 256000, Description: "Enhanced reasoning, real-time search"},
			{ID: "grok-4.1", Name: "Grok 4.1", Type: ModelTypeChat, ContextWindow: 256000, Description: "Improved multimodal & reasoning"},
			{ID: "grok-4.1-fast", Name: "Grok 4.1 Fast", Type: ModelTypeChat, ContextWindow: 2000000, Description: "Best agentic tool calling"},
			{ID: "grok-4-heavy", Name: "Grok 4 Heavy", Type: ModelTypeChat, ContextWindow: 256000, Description: "Maximum capability"},
			{ID: "grok-3", Name: "Grok 3", Type: ModelTypeChat, ContextWindow: 128000, Description: "DeepSearch, Big Brain Mode"},
			{ID: "grok-3-mini", Name: "Grok 3 Mini", Type: ModelTypeChat, ContextWindow: 128000, Description: "Fast responses"},
			{ID: "grok-code-fast-1", Name: "Grok Code Fast", Type: ModelTypeCode, ContextWindow: 128000, Description: "Fast agentic coding"},
		},
	},
	{
		ID:        "meta",
		Name:      "Meta AI",
		Website:   "https://llama.meta.com",
		DocsURL:   "https://llama.meta.com/docs",
		KeyPrefix: "",
		Models: []ModelInfo{
			{ID: "llama-4-maverick", Name: "Llama 4 Maverick", Type: ModelTypeChat, ContextWindow: 256000, Description: "Latest multimodal flagship"},
			{ID: "llama-4-scout", Name: "Llama 4 Scout", Type: ModelTypeChat, ContextWindow: 256000, Description: "Advanced reasoning"},
			{ID: "llama-3.3-70b", Name: "Llama 3.3 70B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Latest Llama 3 model"},
			{ID: "llama-3.2-90b-vision", Name: "Llama 3.2 90B Vision", Type: ModelTypeChat, ContextWindow: 128000, Description: "Multimodal understanding"},
			{ID: "llama-3.1-405b", Name: "Llama 3.1 405B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Largest open model"},
			{ID: "llama-3.1-70b", Name: "Llama 3.1 70B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Balanced performance"},
		},
	},
	{
		ID:        "huggingface",
		Name:      "Hugging Face",
		Website:   "https://huggingface.co",
		DocsURL:   "https://huggingface.co/docs",
		KeyPrefix: "hf_",
		Models: []ModelInfo{
			{ID: "meta-llama/Llama-4-Maverick", Name: "Llama 4 Maverick", Type: ModelTypeChat, ContextWindow: 256000, Description: "Via HF Inference"},
			{ID: "meta-llama/Llama-3.3-70B-Instruct", Name: "Llama 3.3 70B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Via HF Inference"},
			{ID: "Qwen/Qwen2.5-72B-Instruct", Name: "Qwen 2.5 72B", Type: ModelTypeChat, ContextWindow: 32000, Description: "Via HF Inference"},
			{ID: "mistralai/Mistral-Large-3", Name: "Mistral Large 3", Type: ModelTypeChat, ContextWindow: 128000, Description: "Via HF Inference"},
		},
	},
	{
		ID:        "qwen",
		Name:      "Qwen",
		Website:   "https://qwenlm.ai",
		DocsURL:   "https://qwen.readthedocs.io",
		KeyPrefix: "",
		Models: []ModelInfo{
			{ID: "qwen2.5-72b-instruct", Name: "Qwen 2.5 72B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Flagship model"},
			{ID: "qwen2.5-32b-instruct", Name: "Qwen 2.5 32B", Type: ModelTypeChat, ContextWindow: 128000, Description: "Balanced performance"},
			{ID: "qwen2.5-coder-32b", Name: "Qwen 2.5 Coder 32B", Type: ModelTypeCode, ContextWindow: 128000, Description: "Code specialized"},
			{ID: "qwq-32b-preview", Name: "QwQ 32B", Type: ModelTypeReasoning, ContextWindow: 32000, Description: "Reasoning model"},
		},
	},
	{
		ID:        "deepseek",
		Name:      "DeepSeek",
		Website:   "https://deepseek.com",
		DocsURL:   "https://platform.deepseek.com/docs",
		KeyPrefix: "sk-",
		Models: []ModelInfo{
			{ID: "deepseek-v3.2", Name: "DeepSeek V3.2", Type: ModelTypeChat, ContextWindow: 128000, Description: "GPT-5 level, daily driver"},
			{ID: "deepseek-v3.2-speciale", Name: "DeepSeek V3.2 Speciale", Type: ModelTypeReasoning, ContextWindow: 128000, Description: "Maxed reasoning, competition gold"},
			{ID: "deepseek-v3.1", Name: "DeepSeek V3.1", Type: ModelTypeChat, ContextWindow: 128000, Description: "Hybrid thinking modes"},
			{ID: "deepseek-chat", Name: "DeepSeek V3", Type: ModelTypeChat, ContextWindow: 128000, Description: "128K context, MIT license"},
			{ID: "deepseek-reasoner", Name: "DeepSeek R1", Type: ModelTypeReasoning, ContextWindow: 64000, Description: "Reasoning model"},
			{ID: "deepseek-coder-v2", Name: "DeepSeek Coder V2", Type: ModelTypeCode, ContextWindow: 128000, Description: "338 languages, GPT-4 level"},
		},
	},
}

// LookupProvider returns the catalog entry for id.
func LookupProvider(id string) (ProviderInfo, bool) {
	for _, p := range SupportedProviders {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderInfo{}, false
}

// ModelsFor returns the catalog models of a provider, or nil when unknown.
func ModelsFor(provider string) []ModelInfo {
	p, ok := LookupProvider(provider)
	if !ok {
		return nil
	}
	return p.Models
}

// LookupModel finds a model by id across all providers. Providers listed
// earlier win when several offer the same id.
func LookupModel(id string) (provider string, model ModelInfo, ok bool) {
	for _, p := range SupportedProviders {
		for _, m := range p.Models {
			if m.ID == id {
				return p.ID, m, true
			}
		}
	}
	return "", ModelInfo{}, false
}
