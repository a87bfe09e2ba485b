package anthropic

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"cencori/internal/core"
	"cencori/internal/messages"
)

const (
	// APIVersion is sent in the anthropic-version header.
	APIVersion = "2023-06-01"
	// DefaultMaxTokens is used when the request sets none; the API requires the field.
	DefaultMaxTokens = 4096
)

// MessagesBody is the Anthropic messages API request format.
type MessagesBody struct {
	Model       string                      `json:"model"`
	Messages    []messages.AnthropicMessage `json:"messages"`
	MaxTokens   int                         `json:"max_tokens"`
	Temperature *float64                    `json:"temperature,omitempty"`
	System      string                      `json:"system,omitempty"`
	Stream      bool                        `json:"stream,omitempty"`
	Tools       []anthropicTool             `json:"tools,omitempty"`
	Metadata    *anthropicMetadata          `json:"metadata,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicMetadata struct {
	UserID string `json:"user_id"`
}

// NewMessagesBody converts a unified request into the Anthropic wire shape.
// The first system message moves to the top-level system field.
func NewMessagesBody(req *core.ChatRequest, model string, stream bool) *MessagesBody {
	system, msgs := messages.ToAnthropic(req.Messages)
	body := &MessagesBody{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   DefaultMaxTokens,
		Temperature: req.Temperature,
		System:      system,
		Stream:      stream,
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	for _, t := range req.Tools {
		schema := t.Function.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}
	if req.UserID != "" {
		body.Metadata = &anthropicMetadata{UserID: req.UserID}
	}
	return body
}

// messageResponse represents the Anthropic API response format
type messageResponse struct {
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      *usage         `json:"usage"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MapStopReason normalizes an Anthropic stop_reason. Unknown values map to "".
func MapStopReason(reason string) core.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return core.FinishReasonStop
	case "max_tokens":
		return core.FinishReasonLength
	case "tool_use":
		return core.FinishReasonToolCalls
	default:
		return ""
	}
}

// parseMessage converts a messages API response into a unified response.
// Text blocks are concatenated in order; tool_use blocks become tool calls.
func parseMessage(provider string, req *core.ChatRequest, body []byte) (*core.ChatResponse, error) {
	var raw messageResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, core.NewProviderError(provider, http.StatusBadGateway, "failed to decode response: "+err.Error(), err)
	}

	var text strings.Builder
	var calls []core.ToolCall
	for _, block := range raw.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			calls = append(calls, core.ToolCall{ID: block.ID, Type: "function", Name: block.Name, Arguments: string(block.Input)})
		}
	}

	model := raw.Model
	if model == "" {
		model = req.Model
	}
	var u core.TokenUsage
	if raw.Usage != nil {
		u = core.NewTokenUsage(raw.Usage.InputTokens, raw.Usage.OutputTokens)
	} else {
		u = core.NewTokenUsage(messages.EstimateMessagesTokens(req.Messages), messages.EstimateTokenCount(text.String()))
	}
	return &core.ChatResponse{
		Content:      text.String(),
		Model:        model,
		Usage:        u,
		FinishReason: MapStopReason(raw.StopReason),
		ToolCalls:    calls,
	}, nil
}

// streamEvent represents a streaming event from Anthropic
type streamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	ContentBlock *contentBlock `json:"content_block,omitempty"`
	Delta        *streamDelta  `json:"delta,omitempty"`
	Error        *streamErr    `json:"error,omitempty"`
}

type streamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type streamErr struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewStreamDecoder returns a decoder for the typed events of a messages
// stream. Tool input fragments are accumulated per content block and emitted
// with the terminal chunk. Each stream needs its own decoder.
func NewStreamDecoder(provider string) func(data []byte) (core.StreamChunk, bool, error) {
	calls := map[int]*core.ToolCall{}

	return func(data []byte) (core.StreamChunk, bool, error) {
		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return core.StreamChunk{}, false, err
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				calls[ev.Index] = &core.ToolCall{ID: ev.ContentBlock.ID, Type: "function", Name: ev.ContentBlock.Name}
			}
		case "content_block_delta":
			if ev.Delta == nil {
				return core.StreamChunk{}, false, nil
			}
			switch ev.Delta.Type {
			case "text_delta":
				return core.StreamChunk{Delta: ev.Delta.Text}, true, nil
			case "input_json_delta":
				if call, ok := calls[ev.Index]; ok {
					call.Arguments += ev.Delta.PartialJSON
				}
			}
		case "message_delta":
			if ev.Delta == nil || ev.Delta.StopReason == "" {
				return core.StreamChunk{}, false, nil
			}
			reason := MapStopReason(ev.Delta.StopReason)
			if reason == "" {
				reason = core.FinishReasonStop
			}
			chunk := core.StreamChunk{FinishReason: reason}
			if reason == core.FinishReasonToolCalls {
				chunk.ToolCalls = orderedCalls(calls)
			}
			return chunk, true, nil
		case "message_stop":
			return core.StreamChunk{FinishReason: core.FinishReasonStop}, true, nil
		case "error":
			return core.StreamChunk{}, false, streamError(provider, ev)
		}
		// message_start, content_block_stop and ping carry no text.
		return core.StreamChunk{}, false, nil
	}
}

func streamError(provider string, ev streamEvent) error {
	if ev.Error == nil {
		return core.NewProviderError(provider, http.StatusBadGateway, "stream error", nil)
	}
	switch ev.Error.Type {
	case "rate_limit_error":
		return core.NewRateLimitError(provider, ev.Error.Message)
	case "invalid_request_error":
		return core.NewInvalidRequestError(provider, ev.Error.Message, nil)
	default:
		// overloaded_error and api_error
		return core.NewProviderError(provider, http.StatusBadGateway, ev.Error.Message, nil)
	}
}

func orderedCalls(calls map[int]*core.ToolCall) []core.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	out := make([]core.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		call := *calls[i]
		if call.Arguments == "" {
			call.Arguments = "{}"
		}
		out = append(out, call)
	}
	return out
}
