package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// LeaderboardHandler handles leaderboard recomputation and reads.
type LeaderboardHandler struct {
	leaderboard services.LeaderboardService
	logger      *zap.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(leaderboard services.LeaderboardService, logger *zap.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboard: leaderboard,
		logger:      logger.Named("leaderboard-handler"),
	}
}

// RegisterRoutes registers the leaderboard handler's routes on the given mux.
func (h *LeaderboardHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/leaderboard/recompute", scope(h.Recompute))
	mux.HandleFunc("GET /api/leaderboard", scope(h.Get))
}

// Recompute handles POST /api/leaderboard/recompute
func (h *LeaderboardHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.leaderboard.RecomputeLeaderboard(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Leaderboard recompute failed", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, snapshot)
}

// Get handles GET /api/leaderboard?limit=N
func (h *LeaderboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, h.logger)
	if !ok {
		return
	}

	snapshot, err := h.leaderboard.GetLeaderboard(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get leaderboard", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, snapshot)
}
