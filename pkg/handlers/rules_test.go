package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

func TestRuleHandler_List(t *testing.T) {
	svc := &mockRuleService{rules: []models.OutdatedRule{{ID: 1, Name: "stale-90"}}}
	rt := newRouteTester(NewRuleHandler(svc, zap.NewNop()).RegisterRoutes)

	rec := rt.do(http.MethodGet, "/api/rules", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RuleListResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "stale-90", resp.Rules[0].Name)
}

func TestRuleHandler_Create(t *testing.T) {
	svc := &mockRuleService{}
	rt := newRouteTester(NewRuleHandler(svc, zap.NewNop()).RegisterRoutes)

	rec := rt.do(http.MethodPost, "/api/rules",
		`{"id":99,"name":"stale-90","condition_type":"days_inactive","condition_params":{"days":90},"penalty_score":"10","priority":1,"is_active":true}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, models.ConditionType("days_inactive"), svc.created.ConditionType)
	assert.JSONEq(t, `{"days":90}`, string(svc.created.ConditionParams))

	var rule models.OutdatedRule
	decodeData(t, rec, &rule)
	assert.Equal(t, int64(11), rule.ID)
}

func TestRuleHandler_Create_InvalidParams(t *testing.T) {
	svc := &mockRuleService{err: fmt.Errorf("days must be positive: %w", apperrors.ErrInvalidRuleParams)}
	rt := newRouteTester(NewRuleHandler(svc, zap.NewNop()).RegisterRoutes)

	rec := rt.do(http.MethodPost, "/api/rules", `{"name":"bad","condition_type":"days_inactive","condition_params":{"days":-1}}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errorCode(t, rec))
}

func TestRuleHandler_Update_UsesPathID(t *testing.T) {
	svc := &mockRuleService{}
	rt := newRouteTester(NewRuleHandler(svc, zap.NewNop()).RegisterRoutes)

	rec := rt.do(http.MethodPut, "/api/rules/4", `{"id":99,"name":"stale-120","condition_type":"days_inactive","condition_params":{"days":120}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updated)
	assert.Equal(t, int64(4), svc.updated.ID)
}
