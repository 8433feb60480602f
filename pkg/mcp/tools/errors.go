package tools

import (
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Actionable failures are returned as tool results so the caller sees them;
// system failures stay Go errors.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for recoverable/actionable errors (invalid parameters, unknown
// document, stale lock version).
//
// Do NOT use this for system failures (database connection errors,
// internal server errors) - those should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceErrorResult converts an actionable service error to a tool result.
// It returns nil for system errors, which the caller returns as Go errors.
func serviceErrorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", err.Error())
	case errors.Is(err, apperrors.ErrConcurrentModification):
		return NewErrorResult("concurrent_modification", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		return NewErrorResult("conflict", err.Error())
	case errors.Is(err, apperrors.ErrStructureUnavailable):
		return NewErrorResult("structure_unavailable", err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrInvalidRuleParams):
		return NewErrorResult("invalid_parameters", err.Error())
	case IsConstraintViolation(err):
		return NewErrorResult("constraint_violation", err.Error())
	}
	return nil
}

// IsConstraintViolation reports whether err is a PostgreSQL data exception or
// integrity constraint violation (SQLSTATE classes 22 and 23), which the
// caller can fix by changing its input.
func IsConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	switch pgErr.Code[:2] {
	case "22", "23":
		return true
	}
	return false
}
