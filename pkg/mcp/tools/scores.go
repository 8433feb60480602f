package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// registerRecomputeScoreTool adds recompute_score for one user or all users.
func registerRecomputeScoreTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"recompute_score",
		mcp.WithDescription(
			"Recompute user scores from documents written, reviews, engagement and unresolved penalties. "+
				"Pass user_id for one user or omit it to recompute every user. "+
				"Rerunning on unchanged data leaves stored scores unchanged.",
		),
		mcp.WithNumber(
			"user_id",
			mcp.Description("Optional: the user to recompute"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, one, err := optionalID(req, "user_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		scopedCtx, cleanup, err := acquireScope(ctx, deps, "recompute_score")
		if err != nil {
			return nil, err
		}
		defer cleanup()

		if !one {
			batch, err := deps.Scores.RecomputeAll(scopedCtx)
			if err != nil {
				return nil, err
			}
			return jsonResult(batch)
		}

		score, err := deps.Scores.RecomputeScore(scopedCtx, userID)
		if err != nil {
			if res := serviceErrorResult(err); res != nil {
				return res, nil
			}
			return nil, err
		}
		return jsonResult(models.ScoreBatchResult{
			Scores:        []models.UserScore{*score},
			FailedUserIDs: []int64{},
		})
	})
}
