package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"forager/app/service/tools"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	serverName    = "forager"
	serverVersion = "0.2.0"
)

type Service struct {
	server *server.MCPServer
}

func New(di *do.Injector) (*Service, error) {
	return NewService(do.MustInvoke[*tools.Registry](di))
}

// NewService publishes every registry capability as an MCP tool with the same
// schema the agent loop offers to the model.
func NewService(registry *tools.Registry) (*Service, error) {
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, c := range registry.Capabilities() {
		schema, err := json.Marshal(c.Schema())
		if err != nil {
			return nil, oops.In("mcp").Errorf("failed to marshal schema of %s: %w", c.Name, err)
		}

		s.AddTool(mcp.NewToolWithRawSchema(c.Name, c.Description, schema), handler(registry, c.Name))
	}

	return &Service{server: s}, nil
}

func handler(registry *tools.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		arguments := "{}"
		if request.Params.Arguments != nil {
			data, err := json.Marshal(request.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			arguments = string(data)
		}

		result, err := registry.Call(ctx, name, arguments)
		if err != nil {
			slog.Warn("MCP tool call failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(result), nil
	}
}

func (s *Service) Server() *server.MCPServer {
	return s.server
}

// Serve speaks MCP over the given streams until ctx is done or in closes.
func (s *Service) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.server)

	slog.Info("MCP server listening on stdio")

	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return oops.In("mcp").Errorf("stdio server: %w", err)
	}

	return nil
}
