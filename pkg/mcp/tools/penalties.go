package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// registerApplyPenaltySweepTool adds apply_penalty_sweep.
func registerApplyPenaltySweepTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"apply_penalty_sweep",
		mcp.WithDescription(
			"Evaluate outdated-document rules and apply penalties. "+
				"A rule already penalizing a document without resolution is never applied twice. "+
				"Omit rule_ids to use every active rule and document_ids to sweep every non-archived document. "+
				"Returns applied penalties and rules skipped because their condition could not be evaluated.",
		),
		mcp.WithArray(
			"rule_ids",
			mcp.Description("Optional: restrict the sweep to these rule IDs"),
			mcp.Items(map[string]any{"type": "integer"}),
		),
		mcp.WithArray(
			"document_ids",
			mcp.Description("Optional: restrict the sweep to these document IDs"),
			mcp.Items(map[string]any{"type": "integer"}),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ruleIDs, err := optionalIDs(req, "rule_ids")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		documentIDs, err := optionalIDs(req, "document_ids")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		scopedCtx, cleanup, err := acquireScope(ctx, deps, "apply_penalty_sweep")
		if err != nil {
			return nil, err
		}
		defer cleanup()

		result, err := deps.Penalties.ApplyPenaltySweep(scopedCtx, models.SweepScope{
			RuleIDs:     ruleIDs,
			DocumentIDs: documentIDs,
		})
		if err != nil {
			return nil, err
		}

		return jsonResult(result)
	})
}
