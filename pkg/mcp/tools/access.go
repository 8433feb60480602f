// Package tools provides the MCP tools of the structured-docs engine.
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// ToolDeps holds the services the MCP tools call.
type ToolDeps struct {
	Scopes      services.ScopeAcquirer
	Completion  services.CompletionService
	Penalties   services.PenaltyEngine
	Scores      services.ScoreAggregator
	Leaderboard services.LeaderboardService
	Logger      *zap.Logger
}

// acquireScope binds a pooled connection to ctx for the duration of one tool
// call. Connection failures are system errors, not tool results.
func acquireScope(ctx context.Context, deps *ToolDeps, toolName string) (context.Context, func(), error) {
	scopedCtx, cleanup, err := deps.Scopes.WithScope(ctx)
	if err != nil {
		deps.Logger.Error("Failed to acquire connection for tool",
			zap.String("tool", toolName),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return scopedCtx, cleanup, nil
}

// RegisterTools adds every engine tool to the server.
func RegisterTools(s *server.MCPServer, deps *ToolDeps) {
	registerEvaluateCompletionTool(s, deps)
	registerApplyPenaltySweepTool(s, deps)
	registerRecomputeScoreTool(s, deps)
	registerRecomputeLeaderboardTool(s, deps)
	registerGetLeaderboardTool(s, deps)
}
