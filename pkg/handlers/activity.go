package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// AddCommentRequest for POST /api/documents/{did}/comments
type AddCommentRequest struct {
	UserID int64  `json:"user_id"`
	Body   string `json:"body"`
}

// AddReactionRequest for POST /api/documents/{did}/reactions
type AddReactionRequest struct {
	UserID int64  `json:"user_id"`
	Kind   string `json:"kind"`
}

// AddReviewRequest for POST /api/documents/{did}/reviews
type AddReviewRequest struct {
	ReviewerID int64           `json:"reviewer_id"`
	Score      decimal.Decimal `json:"score"`
}

// CreatedResponse carries the id of a created record.
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// ReactionResponse reports whether the reaction was new.
type ReactionResponse struct {
	Added bool `json:"added"`
}

// ActivityHandler records engagement signals on documents.
type ActivityHandler struct {
	activityService services.ActivityService
	logger          *zap.Logger
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(activityService services.ActivityService, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		activityService: activityService,
		logger:          logger.Named("activity-handler"),
	}
}

// RegisterRoutes registers the activity handler's routes on the given mux.
func (h *ActivityHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/documents/{did}"

	mux.HandleFunc("POST "+base+"/comments", scope(h.AddComment))
	mux.HandleFunc("POST "+base+"/reactions", scope(h.AddReaction))
	mux.HandleFunc("POST "+base+"/reviews", scope(h.AddReview))
	mux.HandleFunc("POST "+base+"/views", scope(h.RecordView))
}

// AddComment handles POST /api/documents/{did}/comments
func (h *ActivityHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	var req AddCommentRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	id, err := h.activityService.AddComment(r.Context(), documentID, req.UserID, req.Body)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add comment", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusCreated, CreatedResponse{ID: id})
}

// AddReaction handles POST /api/documents/{did}/reactions
func (h *ActivityHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	var req AddReactionRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	added, err := h.activityService.AddReaction(r.Context(), documentID, req.UserID, req.Kind)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add reaction", err, zap.Int64("document_id", documentID))
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeData(w, h.logger, status, ReactionResponse{Added: added})
}

// AddReview handles POST /api/documents/{did}/reviews
func (h *ActivityHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	var req AddReviewRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	id, err := h.activityService.AddReview(r.Context(), documentID, req.ReviewerID, req.Score)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to add review", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusCreated, CreatedResponse{ID: id})
}

// RecordView handles POST /api/documents/{did}/views
func (h *ActivityHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.activityService.RecordView(r.Context(), documentID); err != nil {
		writeServiceError(w, h.logger, "Failed to record view", err, zap.Int64("document_id", documentID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
