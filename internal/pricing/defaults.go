package pricing

// Defaults returns list prices in USD per 1K tokens for commonly routed models.
// Operators override or extend them through configuration or the model_pricing table.
func Defaults() []Entry {
	return []Entry{
		{Provider: "openai", Model: "gpt-4o", InputPer1K: 0.0025, OutputPer1K: 0.01},
		{Provider: "openai", Model: "gpt-4o-mini", InputPer1K: 0.00015, OutputPer1K: 0.0006},
		{Provider: "openai", Model: "gpt-4.1", InputPer1K: 0.002, OutputPer1K: 0.008},
		{Provider: "openai", Model: "gpt-4.1-mini", InputPer1K: 0.0004, OutputPer1K: 0.0016},
		{Provider: "openai", Model: "o3-mini", InputPer1K: 0.0011, OutputPer1K: 0.0044},
		{Provider: "anthropic", Model: "claude-sonnet-4", InputPer1K: 0.003, OutputPer1K: 0.015},
		{Provider: "anthropic", Model: "claude-3-5-haiku-latest", InputPer1K: 0.0008, OutputPer1K: 0.004},
		{Provider: "anthropic", Model: "claude-opus-4", InputPer1K: 0.015, OutputPer1K: 0.075},
		{Provider: "google", Model: "gemini-2.5-flash", InputPer1K: 0.0003, OutputPer1K: 0.0025},
		{Provider: "google", Model: "gemini-2.5-pro", InputPer1K: 0.00125, OutputPer1K: 0.01},
		{Provider: "cohere", Model: "command-r-plus", InputPer1K: 0.0025, OutputPer1K: 0.01},
		{Provider: "cohere", Model: "command-r", InputPer1K: 0.00015, OutputPer1K: 0.0006},
		{Provider: "mistral", Model: "mistral-large-latest", InputPer1K: 0.002, OutputPer1K: 0.006},
		{Provider: "groq", Model: "llama-3.3-70b-versatile", InputPer1K: 0.00059, OutputPer1K: 0.00079},
		{Provider: "deepseek", Model: "deepseek-chat", InputPer1K: 0.00027, OutputPer1K: 0.0011},
		{Provider: "xai", Model: "grok-3", InputPer1K: 0.003, OutputPer1K: 0.015},
	}
}
