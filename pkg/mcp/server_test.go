package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/moham7dreza/structured-docs-engine/pkg/mcp/tools"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

type noopScopes struct{}

func (noopScopes) WithScope(ctx context.Context) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

type stubLeaderboard struct{}

func (stubLeaderboard) RecomputeLeaderboard(ctx context.Context) (*models.LeaderboardSnapshot, error) {
	return &models.LeaderboardSnapshot{Entries: []models.LeaderboardEntry{}}, nil
}

func (stubLeaderboard) GetLeaderboard(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error) {
	return &models.LeaderboardSnapshot{Entries: []models.LeaderboardEntry{}}, nil
}

func newEngineServer(logger *zap.Logger) *Server {
	s := NewServer("structured-docs-engine", "1.0.0", logger)
	s.RegisterEngineTools("1.0.0", nil, &tools.ToolDeps{
		Scopes:      noopScopes{},
		Leaderboard: stubLeaderboard{},
		Logger:      zap.NewNop(),
	})
	return s
}

func TestServer_RegistersEngineTools(t *testing.T) {
	s := newEngineServer(zap.NewNop())

	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	names := make([]string, 0, len(response.Result.Tools))
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"apply_penalty_sweep",
		"evaluate_completion",
		"get_leaderboard",
		"health",
		"recompute_leaderboard",
		"recompute_score",
	}, names)
}

func TestServer_Handler_LogsToolCalls(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := newEngineServer(zap.New(core))

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_leaderboard","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "entries")
	assert.Equal(t, 1, logs.FilterMessage("MCP request").Len())
}
