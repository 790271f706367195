package domain

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation. An assistant message may request
// tools in ToolCalls. A tool message answers exactly one of those calls and
// names it in ToolCalls[0].
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Name      string     `json:"name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	IsError   bool       `json:"is_error,omitempty"` // tool call failed
	Timestamp time.Time  `json:"timestamp"`
}

// ToolResultMessage answers call with content.
func ToolResultMessage(call ToolCall, content string, isError bool) Message {
	return Message{
		Role:      RoleTool,
		Name:      call.Name,
		Content:   content,
		ToolCalls: []ToolCall{{ID: call.ID, Name: call.Name}},
		IsError:   isError,
		Timestamp: time.Now(),
	}
}

// AnsweredCallID returns the tool call ID a tool message answers, or "" for
// any other message.
func (m Message) AnsweredCallID() string {
	if m.Role != RoleTool || len(m.ToolCalls) == 0 {
		return ""
	}
	return m.ToolCalls[0].ID
}

type ChatRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	Tools       []ToolSchema `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage counts tokens for one call, or a whole turn once summed with Add.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
