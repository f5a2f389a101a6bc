// Package mcpserver exposes the workspace tools over the Model Context Protocol.
package mcpserver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/miniclaw/miniclaw/internal/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server serves the four workspace tools. Calls go through the same Executor
// as the agent loop, so confinement, denylist and timeouts are shared.
type Server struct {
	executor *tools.Executor
	server   *mcp.Server
}

// New builds an MCP server named name at version.
func New(executor *tools.Executor, name, version string) *Server {
	s := &Server{
		executor: executor,
		server:   mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
	}
	for _, decl := range tools.Declarations() {
		s.server.AddTool(&mcp.Tool{
			Name:        decl.Name(),
			Description: decl.Description,
			InputSchema: decl.Schema(),
		}, s.handler(decl.Name()))
	}
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.server }

// ServeStdio runs the server on stdin/stdout until the client disconnects or
// ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	slog.Info("MCP server listening on stdio", "workspace", s.executor.Workspace)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		parsed := tools.ParseArguments(name, string(req.Params.Arguments))
		if parsed.Err != nil {
			return textResult(parsed.Err.Message(), true), nil
		}
		out := s.executor.Execute(ctx, name, parsed.Args)
		slog.Debug("MCP tool call", "tool", name, "stage", parsed.Stage)
		return textResult(out, isFailure(out)), nil
	}
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

// isFailure recognizes the executor's error and refusal messages.
func isFailure(out string) bool {
	return strings.HasPrefix(out, "❌") || strings.HasPrefix(out, "🚫")
}
