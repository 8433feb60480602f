package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// RecomputeScoreRequest for POST /api/scores/recompute. A nil UserID
// recomputes every user.
type RecomputeScoreRequest struct {
	UserID *int64 `json:"user_id,omitempty"`
}

// ScoreHandler handles score recomputation and reads.
type ScoreHandler struct {
	aggregator services.ScoreAggregator
	logger     *zap.Logger
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(aggregator services.ScoreAggregator, logger *zap.Logger) *ScoreHandler {
	return &ScoreHandler{
		aggregator: aggregator,
		logger:     logger.Named("score-handler"),
	}
}

// RegisterRoutes registers the score handler's routes on the given mux.
func (h *ScoreHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/scores/recompute", scope(h.Recompute))
	mux.HandleFunc("GET /api/users/{uid}/score", scope(h.Get))
}

// Recompute handles POST /api/scores/recompute
func (h *ScoreHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req RecomputeScoreRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, h.logger, &req) {
			return
		}
	}

	if req.UserID == nil {
		result, err := h.aggregator.RecomputeAll(r.Context())
		if err != nil {
			writeServiceError(w, h.logger, "Score batch failed", err)
			return
		}
		writeData(w, h.logger, http.StatusOK, result)
		return
	}

	score, err := h.aggregator.RecomputeScore(r.Context(), *req.UserID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to recompute score", err, zap.Int64("user_id", *req.UserID))
		return
	}

	writeData(w, h.logger, http.StatusOK, models.ScoreBatchResult{
		Scores:        []models.UserScore{*score},
		FailedUserIDs: []int64{},
	})
}

// Get handles GET /api/users/{uid}/score
func (h *ScoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	score, err := h.aggregator.GetScore(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get score", err, zap.Int64("user_id", userID))
		return
	}

	writeData(w, h.logger, http.StatusOK, score)
}
