package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"weatherdine/internal/domain"
)

func mcpText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func newMCPTestServer(t *testing.T, bus domain.EventBus) *MCPServer {
	t.Helper()
	reg := NewRegistry(nopLogger())
	lookup := &fakeLookup{report: &domain.WeatherReport{Location: "London", Conditions: "Overcast", WeatherCode: 3}}
	if err := reg.Register(NewWeatherTool(lookup, nopLogger())); err != nil {
		t.Fatal(err)
	}
	return NewMCPServer("weatherdine", "test", reg, bus, nopLogger())
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	if args != nil {
		req.Params.Arguments = args
	}
	return req
}

func TestMCPServerCallTool(t *testing.T) {
	bus := &recordingBus{}
	m := newMCPTestServer(t, bus)

	res, err := m.handler("get-weather")(context.Background(), callRequest("get-weather", map[string]any{"location": "London"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", mcpText(res))
	}

	var report domain.WeatherReport
	if err := json.Unmarshal([]byte(mcpText(res)), &report); err != nil {
		t.Fatalf("bad JSON %q: %v", mcpText(res), err)
	}
	if report.Conditions != "Overcast" {
		t.Errorf("Conditions = %q", report.Conditions)
	}
	if len(bus.events) != 2 {
		t.Errorf("expected started and completed events, got %d", len(bus.events))
	}
}

func TestMCPServerToolErrors(t *testing.T) {
	m := newMCPTestServer(t, nil)

	res, err := m.handler("get-weather")(context.Background(), callRequest("get-weather", nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("missing arguments should produce an MCP error result")
	}

	res, err = m.handler("nope")(context.Background(), callRequest("nope", map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(mcpText(res), "tool not found") {
		t.Errorf("expected tool-not-found error result, got %q", mcpText(res))
	}
}
