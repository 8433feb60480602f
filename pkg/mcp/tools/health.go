package tools

import (
	"context"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
)

// PingFunc checks one backing store.
type PingFunc func(ctx context.Context) error

type healthResult struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and the result of each check.
func RegisterHealthTool(s *server.MCPServer, version string, checks map[string]PingFunc) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and backing store checks"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)

		if len(names) > 0 {
			result.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				result.Checks[name] = "unavailable: " + logging.SanitizeError(err)
				result.Status = "degraded"
				continue
			}
			result.Checks[name] = "ok"
		}

		return jsonResult(result)
	})
}
