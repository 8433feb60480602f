package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
)

// getTextContent extracts the text string from the first text content item
func getTextContent(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	jsonBytes, _ := json.Marshal(result.Content[0])
	var textContent struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	_ = json.Unmarshal(jsonBytes, &textContent)
	return textContent.Text
}

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("not_found", "document 9 not found")

	require.NotNil(t, result)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.True(t, errResp.Error)
	assert.Equal(t, "not_found", errResp.Code)
	assert.Equal(t, "document 9 not found", errResp.Message)
	assert.Nil(t, errResp.Details)
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("invalid_parameters", "bad ids", map[string]any{"rule_ids": []int{0}})

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.Equal(t, map[string]any{"rule_ids": []any{float64(0)}}, errResp.Details)
}

func TestServiceErrorResult(t *testing.T) {
	tests := []struct {
		err      error
		wantCode string
	}{
		{fmt.Errorf("document 9: %w", apperrors.ErrNotFound), "not_found"},
		{apperrors.ErrConcurrentModification, "concurrent_modification"},
		{apperrors.ErrConflict, "conflict"},
		{apperrors.ErrStructureUnavailable, "structure_unavailable"},
		{apperrors.ErrInvalidInput, "invalid_parameters"},
		{&pgconn.PgError{Code: "23505", Message: "duplicate key"}, "constraint_violation"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			result := serviceErrorResult(tt.err)
			require.NotNil(t, result)

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
			assert.Equal(t, tt.wantCode, errResp.Code)
		})
	}
}

func TestServiceErrorResult_SystemErrors(t *testing.T) {
	assert.Nil(t, serviceErrorResult(errors.New("connection reset")))
	assert.Nil(t, serviceErrorResult(&pgconn.PgError{Code: "08006"}))
}
