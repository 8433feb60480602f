package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// RuleListResponse for GET /api/rules
type RuleListResponse struct {
	Rules []models.OutdatedRule `json:"rules"`
	Total int                   `json:"total"`
}

// RuleHandler handles outdated-rule management requests.
type RuleHandler struct {
	ruleService services.RuleService
	logger      *zap.Logger
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(ruleService services.RuleService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
		logger:      logger.Named("rule-handler"),
	}
}

// RegisterRoutes registers the rule handler's routes on the given mux.
func (h *RuleHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("GET /api/rules", scope(h.List))
	mux.HandleFunc("POST /api/rules", scope(h.Create))
	mux.HandleFunc("PUT /api/rules/{rid}", scope(h.Update))
}

// List handles GET /api/rules
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.ruleService.ListRules(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list rules", err)
		return
	}

	writeData(w, h.logger, http.StatusOK, RuleListResponse{Rules: rules, Total: len(rules)})
}

// Create handles POST /api/rules
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var rule models.OutdatedRule
	if !decodeBody(w, r, h.logger, &rule) {
		return
	}
	rule.ID = 0

	if err := h.ruleService.CreateRule(r.Context(), &rule); err != nil {
		writeServiceError(w, h.logger, "Failed to create rule", err, zap.String("name", rule.Name))
		return
	}

	writeData(w, h.logger, http.StatusCreated, rule)
}

// Update handles PUT /api/rules/{rid}
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	var rule models.OutdatedRule
	if !decodeBody(w, r, h.logger, &rule) {
		return
	}
	rule.ID = ruleID

	if err := h.ruleService.UpdateRule(r.Context(), &rule); err != nil {
		writeServiceError(w, h.logger, "Failed to update rule", err, zap.Int64("rule_id", ruleID))
		return
	}

	writeData(w, h.logger, http.StatusOK, rule)
}
