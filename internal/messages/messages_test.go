package messages

import (
	"reflect"
	"strings"
	"testing"

	"cencori/internal/core"
)

func conversation() []core.Message {
	return []core.Message{
		{Role: core.RoleSystem, Content: "S"},
		{Role: core.RoleUser, Content: "U1"},
		{Role: core.RoleAssistant, Content: "A1"},
		{Role: core.RoleUser, Content: "U2"},
	}
}

func TestToOpenAI(t *testing.T) {
	msgs := []core.Message{
		{Role: core.RoleUser, Content: "What's the weather?"},
		{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{{ID: "call_1", Name: "weather", Arguments: `{"city":"Lagos"}`}}},
		{Role: core.RoleTool, Content: "31C", ToolCallID: "call_1"},
	}

	out := ToOpenAI(msgs)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Role != "user" || out[0].Content == nil || *out[0].Content != "What's the weather?" {
		t.Errorf("user message not mapped verbatim: %+v", out[0])
	}
	if out[1].Content != nil {
		t.Errorf("tool-call-only assistant message should have null content")
	}
	if len(out[1].ToolCalls) != 1 || out[1].ToolCalls[0].Type != "function" || out[1].ToolCalls[0].Function.Name != "weather" {
		t.Errorf("tool call not mapped: %+v", out[1].ToolCalls)
	}
	if out[2].ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q, want call_1", out[2].ToolCallID)
	}
}

func TestToAnthropic(t *testing.T) {
	system, out := ToAnthropic(conversation())

	if system != "S" {
		t.Errorf("system = %q, want S", system)
	}
	want := []AnthropicMessage{
		{Role: "user", Content: "U1"},
		{Role: "assistant", Content: "A1"},
		{Role: "user", Content: "U2"},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("messages = %+v, want %+v", out, want)
	}
}

func TestToAnthropic_SystemMessagesNeverSentAsTurns(t *testing.T) {
	tests := []struct {
		name       string
		msgs       []core.Message
		wantSystem string
		want       []AnthropicMessage
	}{
		{
			name: "consecutive system messages",
			msgs: []core.Message{
				{Role: core.RoleSystem, Content: "first"},
				{Role: core.RoleSystem, Content: "second"},
				{Role: core.RoleTool, Content: "tool output", ToolCallID: "x"},
			},
			wantSystem: "first",
			want:       []AnthropicMessage{{Role: "user", Content: "tool output"}},
		},
		{
			name: "system message mid conversation",
			msgs: []core.Message{
				{Role: core.RoleSystem, Content: "S1"},
				{Role: core.RoleUser, Content: "U"},
				{Role: core.RoleSystem, Content: "S2"},
			},
			wantSystem: "S1",
			want:       []AnthropicMessage{{Role: "user", Content: "U"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, out := ToAnthropic(tt.msgs)
			if system != tt.wantSystem {
				t.Errorf("system = %q, want %q", system, tt.wantSystem)
			}
			if !reflect.DeepEqual(out, tt.want) {
				t.Errorf("messages = %+v, want %+v", out, tt.want)
			}
		})
	}
}

func TestToAnthropic_DoesNotMutateInput(t *testing.T) {
	msgs := conversation()
	before := append([]core.Message(nil), msgs...)
	ToAnthropic(msgs)
	if !reflect.DeepEqual(msgs, before) {
		t.Error("input was mutated")
	}
}

func TestToGemini(t *testing.T) {
	tests := []struct {
		name        string
		msgs        []core.Message
		wantHistory int
		wantPrompt  string
	}{
		{
			name: "three messages",
			msgs: []core.Message{
				{Role: core.RoleUser, Content: "hi"},
				{Role: core.RoleAssistant, Content: "hello"},
				{Role: core.RoleUser, Content: "how are you"},
			},
			wantHistory: 2,
			wantPrompt:  "how are you",
		},
		{
			name:        "single message",
			msgs:        []core.Message{{Role: core.RoleUser, Content: "only"}},
			wantHistory: 0,
			wantPrompt:  "only",
		},
		{
			name:        "single system message is still the prompt",
			msgs:        []core.Message{{Role: core.RoleSystem, Content: "be brief"}},
			wantHistory: 0,
			wantPrompt:  "be brief",
		},
		{
			name:        "empty",
			msgs:        nil,
			wantHistory: 0,
			wantPrompt:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history, prompt := ToGemini(tt.msgs)
			if len(history) != tt.wantHistory {
				t.Errorf("len(history) = %d, want %d", len(history), tt.wantHistory)
			}
			if prompt != tt.wantPrompt {
				t.Errorf("prompt = %q, want %q", prompt, tt.wantPrompt)
			}
		})
	}
}

func TestToGemini_RenamesAssistant(t *testing.T) {
	history, _ := ToGemini([]core.Message{
		{Role: core.RoleSystem, Content: "S"},
		{Role: core.RoleAssistant, Content: "A"},
		{Role: core.RoleUser, Content: "U"},
	})
	if history[0].Role != "user" || history[1].Role != "model" {
		t.Errorf("roles = %s,%s want user,model", history[0].Role, history[1].Role)
	}
	if history[1].Parts[0].Text != "A" {
		t.Errorf("parts text = %q, want A", history[1].Parts[0].Text)
	}
}

func TestToCohere(t *testing.T) {
	chat := ToCohere(conversation())

	if chat.Preamble != "S" {
		t.Errorf("preamble = %q, want S", chat.Preamble)
	}
	want := []CohereChatTurn{{Role: "USER", Message: "U1"}, {Role: "CHATBOT", Message: "A1"}}
	if !reflect.DeepEqual(chat.History, want) {
		t.Errorf("history = %+v, want %+v", chat.History, want)
	}
	if chat.Message != "U2" {
		t.Errorf("message = %q, want U2", chat.Message)
	}
}

func TestToCohere_TrailingAssistant(t *testing.T) {
	chat := ToCohere([]core.Message{
		{Role: core.RoleUser, Content: "U1"},
		{Role: core.RoleAssistant, Content: "A1"},
	})
	if chat.Message != "A1" {
		t.Errorf("message should fall back to last content, got %q", chat.Message)
	}
	if len(chat.History) != 2 {
		t.Errorf("history len = %d, want 2", len(chat.History))
	}
}

func TestToCohere_ToolResultNotPromoted(t *testing.T) {
	chat := ToCohere([]core.Message{
		{Role: core.RoleUser, Content: "weather in Lagos?"},
		{Role: core.RoleTool, Content: "31C", ToolCallID: "call_1"},
	})
	if chat.Message != "weather in Lagos?" {
		t.Errorf("message = %q, want the user question", chat.Message)
	}
	if len(chat.History) != 0 {
		t.Errorf("history = %+v, want empty", chat.History)
	}
}

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"aaaa", 1},
		{"aaaaa", 2},
		{strings.Repeat("a", 400), 100},
		{"你好世界", 1},
		{"こんにちは", 2},
		{"😀😀😀", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokenCount(tt.text); got != tt.want {
			t.Errorf("EstimateTokenCount(len %d) = %d, want %d", len(tt.text), got, tt.want)
		}
	}

	prev := 0
	for n := 0; n < 64; n++ {
		got := EstimateTokenCount(strings.Repeat("x", n))
		if got < prev {
			t.Fatalf("estimate decreased at length %d", n)
		}
		prev = got
	}
}

func TestEstimateMessagesTokens(t *testing.T) {
	if got := EstimateMessagesTokens(conversation()); got != 4 {
		t.Errorf("EstimateMessagesTokens = %d, want 4", got)
	}
}

func TestSystemHelpers(t *testing.T) {
	msgs := conversation()
	if got := ExtractSystem(msgs); got != "S" {
		t.Errorf("ExtractSystem = %q, want S", got)
	}
	if got := FilterSystem(msgs); len(got) != 3 {
		t.Errorf("FilterSystem len = %d, want 3", len(got))
	}
	if got := ExtractSystem(FilterSystem(msgs)); got != "" {
		t.Errorf("expected no system after filtering, got %q", got)
	}
}

func TestCombine(t *testing.T) {
	got := Combine([]core.Message{{Role: core.RoleUser, Content: "hi"}, {Role: core.RoleAssistant, Content: "yo"}})
	if got != "user: hi\n\nassistant: yo" {
		t.Errorf("Combine = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		msgs    []core.Message
		wantErr bool
	}{
		{"valid", conversation(), false},
		{"empty", nil, true},
		{"bad role", []core.Message{{Role: "robot", Content: "x"}}, true},
		{"blank content", []core.Message{{Role: core.RoleUser, Content: "  "}}, true},
		{"tool call carrier", []core.Message{{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{{ID: "1"}}}}, false},
		{"tool without id", []core.Message{{Role: core.RoleTool, Content: "x"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.msgs)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
