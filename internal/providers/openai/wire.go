package openai

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"cencori/internal/core"
	"cencori/internal/messages"
)

// DefaultTemperature is sent when the request sets none.
const DefaultTemperature = 0.7

// ChatBody is the OpenAI chat completions request body.
type ChatBody struct {
	Model               string                   `json:"model"`
	Messages            []messages.OpenAIMessage `json:"messages"`
	Temperature         *float64                 `json:"temperature,omitempty"`
	MaxTokens           *int                     `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                     `json:"max_completion_tokens,omitempty"`
	Stream              bool                     `json:"stream,omitempty"`
	User                string                   `json:"user,omitempty"`
	Tools               []core.Tool              `json:"tools,omitempty"`
	ToolChoice          any                      `json:"tool_choice,omitempty"`
}

// NewChatBody converts a unified request into the OpenAI wire shape.
// o-series models get max_completion_tokens and no temperature.
func NewChatBody(req *core.ChatRequest, model string, stream bool) *ChatBody {
	body := &ChatBody{
		Model:      model,
		Messages:   messages.ToOpenAI(req.Messages),
		Stream:     stream,
		User:       req.UserID,
		Tools:      req.Tools,
		ToolChoice: req.ToolChoice,
	}
	if IsOSeriesModel(model) {
		body.MaxCompletionTokens = req.MaxTokens
		return body
	}
	temp := DefaultTemperature
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	body.Temperature = &temp
	body.MaxTokens = req.MaxTokens
	return body
}

// IsOSeriesModel reports whether the model is an OpenAI o-series model
// (o1, o3, o4) that requires max_completion_tokens instead of max_tokens
// and does not support the temperature parameter.
func IsOSeriesModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

type chatCompletion struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   *string                   `json:"content"`
			ToolCalls []messages.OpenAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Completion is a parsed non-streaming response.
type Completion struct {
	Content          string
	Model            string
	FinishReason     core.FinishReason
	ToolCalls        []core.ToolCall
	PromptTokens     int
	CompletionTokens int
	// HasUsage is false when the upstream omitted the usage object.
	HasUsage bool
}

// ParseCompletion decodes a chat completions response body.
func ParseCompletion(provider string, body []byte) (*Completion, error) {
	var raw chatCompletion
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.NewProviderError(provider, http.StatusBadGateway, "failed to decode response: "+err.Error(), err)
	}
	c := &Completion{Model: raw.Model}
	if len(raw.Choices) > 0 {
		choice := raw.Choices[0]
		if choice.Message.Content != nil {
			c.Content = *choice.Message.Content
		}
		c.FinishReason = MapFinishReason(choice.FinishReason)
		c.ToolCalls = convertToolCalls(choice.Message.ToolCalls)
	}
	if raw.Usage != nil {
		c.HasUsage = true
		c.PromptTokens = raw.Usage.PromptTokens
		c.CompletionTokens = raw.Usage.CompletionTokens
	}
	return c, nil
}

// Response builds the unified response. Missing usage is estimated from the
// prompt and completion text.
func (c *Completion) Response(req *core.ChatRequest) *core.ChatResponse {
	model := c.Model
	if model == "" {
		model = req.Model
	}
	var usage core.TokenUsage
	if c.HasUsage {
		usage = core.NewTokenUsage(c.PromptTokens, c.CompletionTokens)
	} else {
		usage = core.NewTokenUsage(messages.EstimateMessagesTokens(req.Messages), messages.EstimateTokenCount(c.Content))
	}
	return &core.ChatResponse{
		Content:      c.Content,
		Model:        model,
		Usage:        usage,
		FinishReason: c.FinishReason,
		ToolCalls:    c.ToolCalls,
	}
}

func convertToolCalls(in []messages.OpenAIToolCall) []core.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.ToolCall, 0, len(in))
	for _, tc := range in {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		out = append(out, core.ToolCall{ID: tc.ID, Type: typ, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out
}

// MapFinishReason normalizes an OpenAI finish_reason. Unknown values map to "".
func MapFinishReason(reason string) core.FinishReason {
	switch reason {
	case "stop":
		return core.FinishReasonStop
	case "length":
		return core.FinishReasonLength
	case "content_filter":
		return core.FinishReasonContentFilter
	case "tool_calls", "function_call":
		return core.FinishReasonToolCalls
	default:
		return ""
	}
}

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewStreamDecoder returns a decoder for chat completion chunks. Tool call
// fragments are accumulated by index and emitted with the terminal chunk.
// Each stream needs its own decoder.
func NewStreamDecoder(provider string) func(data []byte) (core.StreamChunk, bool, error) {
	calls := map[int]*core.ToolCall{}

	return func(data []byte) (core.StreamChunk, bool, error) {
		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return core.StreamChunk{}, false, err
		}
		if ev.Error != nil {
			return core.StreamChunk{}, false, core.NewProviderError(provider, http.StatusBadGateway, ev.Error.Message, nil)
		}
		if len(ev.Choices) == 0 {
			return core.StreamChunk{}, false, nil
		}

		choice := ev.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			existing, ok := calls[tc.Index]
			if !ok {
				calls[tc.Index] = &core.ToolCall{ID: tc.ID, Type: "function", Name: tc.Function.Name, Arguments: tc.Function.Arguments}
				continue
			}
			existing.Arguments += tc.Function.Arguments
		}

		chunk := core.StreamChunk{Delta: choice.Delta.Content}
		if choice.FinishReason != nil {
			chunk.FinishReason = MapFinishReason(*choice.FinishReason)
			if chunk.FinishReason == "" {
				// The stream is over even when the reason is unrecognized.
				chunk.FinishReason = core.FinishReasonStop
			}
			if chunk.FinishReason == core.FinishReasonToolCalls {
				chunk.ToolCalls = collectToolCalls(calls)
			}
		}
		return chunk, true, nil
	}
}

func collectToolCalls(calls map[int]*core.ToolCall) []core.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	out := make([]core.ToolCall, 0, len(calls))
	for _, i := range indexes {
		out = append(out, *calls[i])
	}
	return out
}
