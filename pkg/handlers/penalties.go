package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// ResolvePenaltyRequest for POST /api/penalties/{pid}/resolve
type ResolvePenaltyRequest struct {
	ResolvedBy int64 `json:"resolved_by"`
}

// PenaltyListResponse for GET /api/documents/{did}/penalties
type PenaltyListResponse struct {
	Penalties []models.DocumentPenalty `json:"penalties"`
	Total     int                      `json:"total"`
}

// PenaltyHandler handles penalty sweep and resolution requests.
type PenaltyHandler struct {
	penaltyEngine services.PenaltyEngine
	logger        *zap.Logger
}

// NewPenaltyHandler creates a new penalty handler.
func NewPenaltyHandler(penaltyEngine services.PenaltyEngine, logger *zap.Logger) *PenaltyHandler {
	return &PenaltyHandler{
		penaltyEngine: penaltyEngine,
		logger:        logger.Named("penalty-handler"),
	}
}

// RegisterRoutes registers the penalty handler's routes on the given mux.
func (h *PenaltyHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("GET /api/documents/{did}/penalties", scope(h.List))
	mux.HandleFunc("POST /api/penalties/sweep", scope(h.Sweep))
	mux.HandleFunc("POST /api/penalties/{pid}/resolve", scope(h.Resolve))
}

// List handles GET /api/documents/{did}/penalties
func (h *PenaltyHandler) List(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	penalties, err := h.penaltyEngine.ListPenalties(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list penalties", err, zap.Int64("document_id", documentID))
		return
	}

	writeData(w, h.logger, http.StatusOK, PenaltyListResponse{Penalties: penalties, Total: len(penalties)})
}

// Sweep handles POST /api/penalties/sweep. An empty body sweeps every active
// rule over every non-archived document.
func (h *PenaltyHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var scope models.SweepScope
	if r.ContentLength != 0 {
		if !decodeBody(w, r, h.logger, &scope) {
			return
		}
	}

	result, err := h.penaltyEngine.ApplyPenaltySweep(r.Context(), scope)
	if err != nil {
		writeServiceError(w, h.logger, "Penalty sweep failed", err,
			zap.Int("rule_ids", len(scope.RuleIDs)),
			zap.Int("document_ids", len(scope.DocumentIDs)))
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// Resolve handles POST /api/penalties/{pid}/resolve
func (h *PenaltyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	penaltyID, ok := ParsePenaltyID(w, r, h.logger)
	if !ok {
		return
	}

	var req ResolvePenaltyRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	penalty, err := h.penaltyEngine.ResolvePenalty(r.Context(), penaltyID, req.ResolvedBy)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to resolve penalty", err, zap.Int64("penalty_id", penaltyID))
		return
	}

	writeData(w, h.logger, http.StatusOK, penalty)
}
