// Package core provides the vendor-agnostic types, interfaces and errors shared by
// every provider adapter.
package core

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation in the unified format.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the schema of a callable function.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatRequest is one logical completion call.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  any       `json:"tool_choice,omitempty"`
}

// WithModel returns a shallow copy of the request addressed to a different model.
func (r *ChatRequest) WithModel(model string) *ChatRequest {
	clone := *r
	clone.Model = model
	return &clone
}

// TokenUsage holds token counts. TotalTokens is always PromptTokens + CompletionTokens.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewTokenUsage builds a TokenUsage with a consistent total. Negative counts are clamped to zero.
func NewTokenUsage(prompt, completion int) TokenUsage {
	prompt = max(prompt, 0)
	completion = max(completion, 0)
	return TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// ModelPricing is the per-1K-token price of a model plus the platform markup.
type ModelPricing struct {
	InputPer1KTokens        float64 `json:"input_per_1k_tokens"`
	OutputPer1KTokens       float64 `json:"output_per_1k_tokens"`
	CencoriMarkupPercentage float64 `json:"cencori_markup_percentage"`
}

// ZeroPricing is used when no price is known for a model.
var ZeroPricing = ModelPricing{}

// CostBreakdown is the cost of one completion.
type CostBreakdown struct {
	ProviderCostUSD  float64 `json:"provider_cost_usd"`
	CencoriChargeUSD float64 `json:"cencori_charge_usd"`
	MarkupPercentage float64 `json:"markup_percentage"`
}

// FinishReason is the normalized reason a completion ended.
// The empty value means the upstream reason was missing or unrecognized.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonError         FinishReason = "error"
)

// ChatResponse is the terminal value of a non-streaming call.
type ChatResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	Usage        TokenUsage    `json:"usage"`
	Cost         CostBreakdown `json:"cost"`
	LatencyMs    int64         `json:"latency_ms"`
	FinishReason FinishReason  `json:"finish_reason,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
}

// StreamChunk is one incremental piece of a streamed completion.
// The final chunk of a stream has an empty Delta and a non-empty FinishReason.
type StreamChunk struct {
	Delta        string       `json:"delta"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Error        string       `json:"error,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
}

// Done reports whether the chunk terminates the stream.
func (c StreamChunk) Done() bool {
	return c.FinishReason != ""
}
