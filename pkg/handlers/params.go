package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// ParseDocumentID extracts the document ID from the request path.
// Expects path parameter: did
func ParseDocumentID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "did", "invalid_document_id", "Invalid document ID", logger)
}

// ParseItemID extracts the section item ID from the request path.
// Expects path parameter: iid
func ParseItemID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "iid", "invalid_item_id", "Invalid item ID", logger)
}

// ParseSectionID extracts the document section ID from the request path.
// Expects path parameter: sid
func ParseSectionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "sid", "invalid_section_id", "Invalid section ID", logger)
}

// ParsePenaltyID extracts the penalty ID from the request path.
// Expects path parameter: pid
func ParsePenaltyID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "pid", "invalid_penalty_id", "Invalid penalty ID", logger)
}

// ParseRuleID extracts the rule ID from the request path.
// Expects path parameter: rid
func ParseRuleID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "rid", "invalid_rule_id", "Invalid rule ID", logger)
}

// ParseUserID extracts the user ID from the request path.
// Expects path parameter: uid
func ParseUserID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "uid", "invalid_user_id", "Invalid user ID", logger)
}

// parseID is the internal helper that does the actual parsing work.
// IDs are positive integers.
func parseID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(pathParam), 10, 64)
	if err != nil || id <= 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return id, true
}

// parseLimit reads the optional limit query parameter. Zero means "not set".
func parseLimit(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		writeBadRequest(w, logger, "invalid_limit", "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}

// parseLockVersion reads the required lock_version query parameter.
func parseLockVersion(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get("lock_version"), 10, 64)
	if err != nil || v < 0 {
		writeBadRequest(w, logger, "invalid_lock_version", "lock_version query parameter is required")
		return 0, false
	}
	return v, true
}
