package tools

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
)

// requireID reads a positive integer id argument.
func requireID(req mcp.CallToolRequest, key string) (int64, error) {
	id, ok, err := optionalID(req, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	return id, nil
}

// optionalID reads an integer id argument when present. JSON numbers arrive
// as float64.
func optionalID(req mcp.CallToolRequest, key string) (int64, bool, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	id, err := toID(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s %w", key, err)
	}
	return id, true, nil
}

// optionalIDs reads an array of integer ids.
func optionalIDs(req mcp.CallToolRequest, key string) ([]int64, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	values, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of ids", key)
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := toID(v)
		if err != nil {
			return nil, fmt.Errorf("%s entries %w", key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toID(v any) (int64, error) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < 1 || f > math.MaxInt64 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return int64(f), nil
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
