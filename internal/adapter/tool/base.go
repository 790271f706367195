package tool

import (
	"context"
	"encoding/json"
	"time"

	"weatherdine/internal/domain"
	"weatherdine/internal/usecase/eventbus"
)

// toolCallPayload is published with tool.call.* events for calls that do
// not come from an agent loop (CLI, gateway, MCP).
type toolCallPayload struct {
	Tool    string `json:"tool"`
	Source  string `json:"source"`
	IsError bool   `json:"is_error,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
}

// Call looks up name in exec and runs it with params, publishing
// tool.call.started and tool.call.completed on bus. source names the caller
// ("cli", "gateway", "mcp").
func Call(ctx context.Context, exec domain.ToolExecutor, bus domain.EventBus, source, name string, params json.RawMessage) (*domain.ToolResult, error) {
	t, err := exec.Get(name)
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	eventbus.Emit(ctx, bus, domain.EventToolCallStarted, toolCallPayload{Tool: name, Source: source})
	start := time.Now()
	res, err := t.Execute(ctx, params)
	done := toolCallPayload{Tool: name, Source: source, Elapsed: time.Since(start).String()}
	if err != nil || (res != nil && res.IsError) {
		done.IsError = true
	}
	eventbus.Emit(ctx, bus, domain.EventToolCallCompleted, done)
	return res, err
}
