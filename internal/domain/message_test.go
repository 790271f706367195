package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestToolResultMessage(t *testing.T) {
	call := ToolCall{ID: "call-1", Name: ToolGetWeather, Arguments: json.RawMessage(`{"location":"Paris"}`)}

	msg := ToolResultMessage(call, "rain", true)
	if msg.Role != RoleTool || msg.Name != ToolGetWeather || msg.Content != "rain" || !msg.IsError {
		t.Errorf("got %+v", msg)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Arguments != nil {
		t.Errorf("tool message should reference the call without its arguments: %+v", msg.ToolCalls)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestAnsweredCallID(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"tool result", ToolResultMessage(ToolCall{ID: "c1", Name: "x"}, "", false), "c1"},
		{"tool without call", Message{Role: RoleTool}, ""},
		{"assistant request", Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c2"}}}, ""},
		{"user", Message{Role: RoleUser, Content: "hi"}, ""},
	}
	for _, tt := range tests {
		if got := tt.msg.AnsweredCallID(); got != tt.want {
			t.Errorf("%s: AnsweredCallID = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMessageIsErrorOmittedWhenFalse(t *testing.T) {
	data, err := json.Marshal(Message{Role: RoleUser, Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "is_error") {
		t.Errorf("unexpected is_error in %s", data)
	}
}

func TestUsageAdd(t *testing.T) {
	var total Usage
	total.Add(Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	total.Add(Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})

	if total.PromptTokens != 13 || total.CompletionTokens != 7 || total.TotalTokens != 20 {
		t.Errorf("got %+v", total)
	}
}
