// Package messages converts unified conversations into the wire shapes of each
// upstream vendor. All functions are pure: they never mutate their input.
package messages

import (
	"fmt"
	"strings"

	"cencori/internal/core"
)

// OpenAIMessage is a chat message in the OpenAI wire format.
type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
}

// OpenAIToolCall is a tool call in the OpenAI wire format.
type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIFunctionCall `json:"function"`
}

// OpenAIFunctionCall carries the function name and raw JSON arguments.
type OpenAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToOpenAI maps messages 1:1, keeping tool metadata.
// An assistant message that only carries tool calls is sent with null content.
func ToOpenAI(msgs []core.Message) []OpenAIMessage {
	out := make([]OpenAIMessage, 0, len(msgs))
	for _, m := range msgs {
		om := OpenAIMessage{
			Role:       string(m.Role),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content := m.Content
			om.Content = &content
		}
		for _, tc := range m.ToolCalls {
			typ := tc.Type
			if typ == "" {
				typ = "function"
			}
			om.ToolCalls = append(om.ToolCalls, OpenAIToolCall{
				ID:       tc.ID,
				Type:     typ,
				Function: OpenAIFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, om)
	}
	return out
}

// AnthropicMessage is a chat message in the Anthropic wire format.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToAnthropic moves the first system message out of band, drops any later
// system messages and collapses every other role to user or assistant.
func ToAnthropic(msgs []core.Message) (system string, out []AnthropicMessage) {
	out = make([]AnthropicMessage, 0, len(msgs))
	seenSystem := false
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			if !seenSystem {
				system = m.Content
				seenSystem = true
			}
			continue
		}
		role := "user"
		if m.Role == core.RoleAssistant {
			role = "assistant"
		}
		out = append(out, AnthropicMessage{Role: role, Content: m.Content})
	}
	return system, out
}

// GeminiPart is a text part of Gemini content.
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent is one turn of a Gemini conversation.
type GeminiContent struct {
	Role  string       `json:"role"`
	Parts []GeminiPart `json:"parts"`
}

// ToGemini splits a conversation into chat history and the prompt to send.
// The prompt is always the content of the last message, whatever its role.
func ToGemini(msgs []core.Message) (history []GeminiContent, prompt string) {
	if len(msgs) == 0 {
		return nil, ""
	}
	history = make([]GeminiContent, 0, len(msgs)-1)
	for _, m := range msgs[:len(msgs)-1] {
		role := "user"
		if m.Role == core.RoleAssistant {
			role = "model"
		}
		history = append(history, GeminiContent{Role: role, Parts: []GeminiPart{{Text: m.Content}}})
	}
	return history, msgs[len(msgs)-1].Content
}

// CohereChatTurn is one entry of Cohere's chat_history.
type CohereChatTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// CohereChat is the conversation split used by Cohere's v1 chat endpoint.
type CohereChat struct {
	Preamble string
	History  []CohereChatTurn
	Message  string
}

// ToCohere groups user/assistant pairs into chat history, promotes the last user
// message to Message and the system message to Preamble.
//
// A user message is held until the next assistant reply; if another user message
// arrives first it replaces the pending one. Tool results are not sent. When no
// user message is pending at the end, Message falls back to the content of the
// last message.
func ToCohere(msgs []core.Message) CohereChat {
	var chat CohereChat
	pending := ""
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			chat.Preamble = m.Content
		case core.RoleAssistant:
			if pending != "" {
				chat.History = append(chat.History, CohereChatTurn{Role: "USER", Message: pending})
				pending = ""
			}
			chat.History = append(chat.History, CohereChatTurn{Role: "CHATBOT", Message: m.Content})
		case core.RoleUser:
			pending = m.Content
		}
	}
	chat.Message = pending
	if chat.Message == "" && len(msgs) > 0 {
		chat.Message = msgs[len(msgs)-1].Content
	}
	return chat
}

// ExtractSystem returns the content of the first system message, or "".
func ExtractSystem(msgs []core.Message) string {
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			return m.Content
		}
	}
	return ""
}

// FilterSystem returns a copy of msgs without system messages.
func FilterSystem(msgs []core.Message) []core.Message {
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != core.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// Combine flattens a conversation into a "role: content" transcript.
func Combine(msgs []core.Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// Validate rejects conversations no upstream would accept.
func Validate(msgs []core.Message) error {
	if len(msgs) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range msgs {
		switch m.Role {
		case core.RoleSystem, core.RoleUser, core.RoleAssistant, core.RoleTool:
		default:
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" && len(m.ToolCalls) == 0 {
			return fmt.Errorf("message %d: content must not be empty", i)
		}
		if m.Role == core.RoleTool && m.ToolCallID == "" {
			return fmt.Errorf("message %d: tool message requires tool_call_id", i)
		}
	}
	return nil
}
