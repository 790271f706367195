package domain

import (
	"context"
	"encoding/json"
)

// Built-in tool names. Agents and workflows refer to tools by these.
const (
	ToolGetWeather      = "get-weather"
	ToolFindRestaurants = "find-restaurants"
)

// ToolSchema is what a model sees of a tool: its name, purpose, and a JSON
// Schema for the arguments.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall is a model's request to run a tool. Arguments is the raw JSON
// the model produced and may not match the schema.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is fed back to the model. A failed call is still a result:
// IsError marks it, and IsRetryable tells the model a second attempt may work.
type ToolResult struct {
	ToolCallID  string `json:"tool_call_id"`
	Content     string `json:"content"`
	IsError     bool   `json:"is_error"`
	IsRetryable bool   `json:"is_retryable,omitempty"`
}

// NewToolResult returns a successful result carrying content.
func NewToolResult(content string) *ToolResult {
	return &ToolResult{Content: content}
}

// NewToolFailure returns an error result the model can read.
func NewToolFailure(content string, retryable bool) *ToolResult {
	return &ToolResult{Content: content, IsError: true, IsRetryable: retryable}
}

type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	// Execute reports tool-level failures in the result. A returned error
	// means the call could not be made at all.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor resolves tools by name. Agents see only the schemas their
// executor returns.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}
