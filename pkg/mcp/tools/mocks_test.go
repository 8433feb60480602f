package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

type fakeScopes struct {
	acquired int
	released int
	err      error
}

func (f *fakeScopes) WithScope(ctx context.Context) (context.Context, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.acquired++
	return ctx, func() { f.released++ }, nil
}

type mockCompletion struct {
	result *models.CompletionResult
	err    error
	calls  []int64
}

func (m *mockCompletion) EvaluateCompletion(ctx context.Context, documentID int64) (*models.CompletionResult, error) {
	m.calls = append(m.calls, documentID)
	return m.result, m.err
}

func (m *mockCompletion) GetCompletionStatus(ctx context.Context, documentID int64) (*models.CompletionStatus, error) {
	return nil, errors.New("not used")
}

type mockPenalties struct {
	scope  models.SweepScope
	result *models.SweepResult
	err    error
}

func (m *mockPenalties) ApplyPenaltySweep(ctx context.Context, scope models.SweepScope) (*models.SweepResult, error) {
	m.scope = scope
	return m.result, m.err
}

func (m *mockPenalties) ListPenalties(ctx context.Context, documentID int64) ([]models.DocumentPenalty, error) {
	return nil, nil
}

func (m *mockPenalties) ResolvePenalty(ctx context.Context, penaltyID, resolverID int64) (*models.DocumentPenalty, error) {
	return nil, nil
}

type mockScores struct {
	score    *models.UserScore
	batch    *models.ScoreBatchResult
	users    []int64
	allCalls int
	err      error
}

func (m *mockScores) RecomputeScore(ctx context.Context, userID int64) (*models.UserScore, error) {
	m.users = append(m.users, userID)
	return m.score, m.err
}

func (m *mockScores) RecomputeAll(ctx context.Context) (*models.ScoreBatchResult, error) {
	m.allCalls++
	return m.batch, m.err
}

func (m *mockScores) GetScore(ctx context.Context, userID int64) (*models.UserScore, error) {
	return m.score, m.err
}

type mockLeaderboard struct {
	snapshot   *models.LeaderboardSnapshot
	limit      int
	recomputed int
	err        error
}

func (m *mockLeaderboard) RecomputeLeaderboard(ctx context.Context) (*models.LeaderboardSnapshot, error) {
	m.recomputed++
	return m.snapshot, m.err
}

func (m *mockLeaderboard) GetLeaderboard(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error) {
	m.limit = limit
	return m.snapshot, m.err
}

type toolFixture struct {
	server      *server.MCPServer
	scopes      *fakeScopes
	completion  *mockCompletion
	penalties   *mockPenalties
	scores      *mockScores
	leaderboard *mockLeaderboard
}

func newToolFixture() *toolFixture {
	f := &toolFixture{
		server:      server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true)),
		scopes:      &fakeScopes{},
		completion:  &mockCompletion{},
		penalties:   &mockPenalties{},
		scores:      &mockScores{},
		leaderboard: &mockLeaderboard{},
	}
	RegisterTools(f.server, &ToolDeps{
		Scopes:      f.scopes,
		Completion:  f.completion,
		Penalties:   f.penalties,
		Scores:      f.scores,
		Leaderboard: f.leaderboard,
		Logger:      zap.NewNop(),
	})
	return f
}

// toolResponse is a decoded tools/call response.
type toolResponse struct {
	Result struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r toolResponse) text() string {
	if len(r.Result.Content) == 0 {
		return ""
	}
	return r.Result.Content[0].Text
}

// callTool sends a tools/call message through the server.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolResponse {
	t.Helper()
	params := map[string]any{"name": name}
	if args != nil {
		params["arguments"] = args
	}
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  params,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), msg))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}
