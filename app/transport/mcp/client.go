package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"forager/app/config"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/tools"
)

const (
	clientName  = "forager-client"
	initTimeout = time.Minute
)

// Dialer opens a client for one configured server.
type Dialer func(server config.MCPServer) (client.MCPClient, error)

// StdioDialer starts the server as a child process.
func StdioDialer(server config.MCPServer) (client.MCPClient, error) {
	return client.NewStdioMCPClient(server.Command, server.Env, server.Args...)
}

// Remotes holds the clients of the configured external MCP servers.
type Remotes struct {
	clients []client.MCPClient
	tools   []tools.Tool
}

func NewRemotes(di *do.Injector) (*Remotes, error) {
	cfg := do.MustInvoke[*config.Config](di)
	ctx := do.MustInvoke[context.Context](di)

	return Connect(ctx, cfg.Agent.MCPServers, StdioDialer)
}

// Connect dials every server and collects its tools, prefixed with the
// server name. Clients opened before a failure are closed.
func Connect(ctx context.Context, servers []config.MCPServer, dial Dialer) (*Remotes, error) {
	r := &Remotes{}

	for _, server := range servers {
		c, err := dial(server)
		if err != nil {
			_ = r.Shutdown()
			return nil, oops.In("mcp").Errorf("failed to create MCP client for %s: %w", server.Name, err)
		}
		r.clients = append(r.clients, c)

		initCtx, cancel := context.WithTimeout(ctx, initTimeout)
		remote, err := RemoteTools(initCtx, c, server.Name)
		cancel()
		if err != nil {
			_ = r.Shutdown()
			return nil, oops.In("mcp").Errorf("server %s: %w", server.Name, err)
		}

		slog.Info("Connected MCP server", "name", server.Name, "tools", len(remote))
		r.tools = append(r.tools, remote...)
	}

	return r, nil
}

func (r *Remotes) Tools() []tools.Tool {
	return r.tools
}

func (r *Remotes) Shutdown() error {
	var errs []error
	for _, c := range r.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.clients = nil

	return errors.Join(errs...)
}

// RemoteTools initializes c and wraps every tool it lists as a langchaingo
// tool. Names are prefixed with prefix and an underscore when prefix is set.
func RemoteTools(ctx context.Context, c client.MCPClient, prefix string) ([]tools.Tool, error) {
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: serverVersion,
	}

	if _, err := c.Initialize(ctx, initRequest); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	result := make([]tools.Tool, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		name := tool.Name
		if prefix != "" {
			name = prefix + "_" + tool.Name
		}

		result = append(result, &remoteTool{client: c, tool: tool, name: name})
	}

	return result, nil
}

type remoteTool struct {
	client client.MCPClient
	tool   mcp.Tool
	name   string
}

func (t *remoteTool) Name() string {
	return t.name
}

func (t *remoteTool) Description() string {
	return t.tool.Description
}

// Schema returns the parameter schema advertised by the server, nil when it
// cannot be decoded.
func (t *remoteTool) Schema() map[string]any {
	raw := t.tool.RawInputSchema
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(t.tool.InputSchema); err != nil {
			return nil
		}
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}

	return schema
}

// Call sends input as the argument object. Input that is not a JSON object
// is passed as the first required property, or as "input" without a schema.
func (t *remoteTool) Call(ctx context.Context, input string) (string, error) {
	request := mcp.CallToolRequest{}
	request.Params.Name = t.tool.Name
	request.Params.Arguments = t.arguments(input)

	response, err := t.client.CallTool(ctx, request)
	if err != nil {
		return "", fmt.Errorf("MCP tool call failed: %w", err)
	}

	var text strings.Builder
	for _, content := range response.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			text.WriteString(textContent.Text)
			text.WriteString("\n")
		}
	}

	result := strings.TrimSpace(text.String())
	if response.IsError {
		return "", fmt.Errorf("tool %s: %s", t.tool.Name, result)
	}

	return result, nil
}

func (t *remoteTool) arguments(input string) map[string]any {
	trimmed := strings.TrimSpace(input)

	var args map[string]any
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &args) == nil {
		return args
	}

	if required := t.tool.InputSchema.Required; len(required) > 0 {
		return map[string]any{required[0]: input}
	}

	return map[string]any{"input": input}
}
