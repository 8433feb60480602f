package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
)

// registerEvaluateCompletionTool adds evaluate_completion, which recomputes and
// stores a document's completeness.
func registerEvaluateCompletionTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"evaluate_completion",
		mcp.WithDescription(
			"Evaluate a document against its structure. "+
				"Validates every item, marks each section complete or incomplete and stores "+
				"the completeness percentage (0-100, truncated to two decimals). "+
				"Returns per-section completion and per-item validation errors.",
		),
		mcp.WithNumber(
			"document_id",
			mcp.Required(),
			mcp.Description("ID of the document to evaluate"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := requireID(req, "document_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		scopedCtx, cleanup, err := acquireScope(ctx, deps, "evaluate_completion")
		if err != nil {
			return nil, err
		}
		defer cleanup()

		result, err := deps.Completion.EvaluateCompletion(scopedCtx, documentID)
		if err != nil {
			if res := serviceErrorResult(err); res != nil {
				return res, nil
			}
			deps.Logger.Error("evaluate_completion failed",
				zap.Int64("document_id", documentID),
				logging.Error(err))
			return nil, err
		}

		return jsonResult(result)
	})
}
