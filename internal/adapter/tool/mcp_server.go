package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"weatherdine/internal/domain"
)

// MCPServer exposes registry tools to MCP clients.
type MCPServer struct {
	srv    *server.MCPServer
	exec   domain.ToolExecutor
	bus    domain.EventBus
	logger *slog.Logger
}

// NewMCPServer registers every tool of reg with an MCP server. Each tool's
// JSON schema is advertised unchanged.
func NewMCPServer(name, version string, reg *Registry, bus domain.EventBus, logger *slog.Logger) *MCPServer {
	m := &MCPServer{
		srv:    server.NewMCPServer(name, version, server.WithToolCapabilities(true)),
		exec:   reg,
		bus:    bus,
		logger: logger,
	}
	for _, t := range reg.List() {
		s := t.Schema()
		m.srv.AddTool(mcp.NewToolWithRawSchema(s.Name, s.Description, s.Parameters), m.handler(s.Name))
	}
	return m
}

// Server returns the underlying mcp-go server.
func (m *MCPServer) Server() *server.MCPServer { return m.srv }

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func (m *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(m.srv).Listen(ctx, in, out)
}

func (m *MCPServer) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		params, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		m.logger.Debug("mcp tool call", "tool", name)
		res, err := Call(ctx, m.exec, m.bus, "mcp", name, params)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}
