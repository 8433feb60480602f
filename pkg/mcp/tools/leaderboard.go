package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerRecomputeLeaderboardTool adds recompute_leaderboard.
func registerRecomputeLeaderboardTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"recompute_leaderboard",
		mcp.WithDescription(
			"Rebuild the leaderboard from current user scores. "+
				"Users with a positive score are ranked by score descending, ties by user ID. "+
				"Readers see either the previous or the new ranking, never a mix.",
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		scopedCtx, cleanup, err := acquireScope(ctx, deps, "recompute_leaderboard")
		if err != nil {
			return nil, err
		}
		defer cleanup()

		snapshot, err := deps.Leaderboard.RecomputeLeaderboard(scopedCtx)
		if err != nil {
			return nil, err
		}
		return jsonResult(snapshot)
	})
}

// registerGetLeaderboardTool adds get_leaderboard.
func registerGetLeaderboardTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_leaderboard",
		mcp.WithDescription("Return the current leaderboard, best rank first."),
		mcp.WithNumber(
			"limit",
			mcp.Description("Optional: maximum number of entries (defaults to the configured limit)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit, _, err := optionalID(req, "limit")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		scopedCtx, cleanup, err := acquireScope(ctx, deps, "get_leaderboard")
		if err != nil {
			return nil, err
		}
		defer cleanup()

		snapshot, err := deps.Leaderboard.GetLeaderboard(scopedCtx, int(limit))
		if err != nil {
			return nil, err
		}
		return jsonResult(snapshot)
	})
}
