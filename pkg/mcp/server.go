// Package mcp exposes the engine's operations as MCP tools.
package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/mcp/tools"
	"github.com/moham7dreza/structured-docs-engine/pkg/middleware"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterEngineTools adds the health tool and every engine operation.
func (s *Server) RegisterEngineTools(version string, checks map[string]tools.PingFunc, deps *tools.ToolDeps) {
	tools.RegisterHealthTool(s.mcp, version, checks)
	tools.RegisterTools(s.mcp, deps)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// Handler returns the stateless streamable HTTP transport with tool-call logging.
func (s *Server) Handler() http.Handler {
	return middleware.MCPRequestLogger(s.logger)(s.NewStreamableHTTPServer())
}
