package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// noScope stands in for the database middleware and counts wrapped calls.
type noScope struct{ calls int }

func (s *noScope) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.calls++
		next(w, r)
	}
}

type mockDocumentService struct {
	createReq   models.NewDocument
	tree        *models.DocumentTree
	edit        models.ItemEdit
	itemResult  *models.ItemUpdateResult
	section     *models.DocumentSection
	lockVersion int64
	removed     [3]int64
	version     *models.DocumentVersion
	newVersion  models.NewVersion
	changes     []models.DocumentChange
	changeLimit int
	versions    []models.DocumentVersion
	statusReq   models.StatusChange
	doc         *models.Document
	err         error
}

var _ services.DocumentService = (*mockDocumentService)(nil)

func (m *mockDocumentService) CreateDocument(ctx context.Context, req models.NewDocument) (*models.DocumentTree, error) {
	m.createReq = req
	return m.tree, m.err
}

func (m *mockDocumentService) GetDocument(ctx context.Context, documentID int64) (*models.DocumentTree, error) {
	return m.tree, m.err
}

func (m *mockDocumentService) UpdateItem(ctx context.Context, edit models.ItemEdit) (*models.ItemUpdateResult, error) {
	m.edit = edit
	return m.itemResult, m.err
}

func (m *mockDocumentService) TransitionStatus(ctx context.Context, change models.StatusChange) (*models.Document, error) {
	m.statusReq = change
	return m.doc, m.err
}

func (m *mockDocumentService) AddSectionInstance(ctx context.Context, documentID, structureSectionID, expectedLockVersion int64) (*models.DocumentSection, int64, error) {
	return m.section, m.lockVersion, m.err
}

func (m *mockDocumentService) RemoveSectionInstance(ctx context.Context, documentID, sectionID, expectedLockVersion int64) (int64, error) {
	m.removed = [3]int64{documentID, sectionID, expectedLockVersion}
	return m.lockVersion, m.err
}

func (m *mockDocumentService) CreateVersion(ctx context.Context, req models.NewVersion) (*models.DocumentVersion, error) {
	m.newVersion = req
	return m.version, m.err
}

func (m *mockDocumentService) ListChanges(ctx context.Context, documentID int64, limit int) ([]models.DocumentChange, error) {
	m.changeLimit = limit
	return m.changes, m.err
}

func (m *mockDocumentService) ListVersions(ctx context.Context, documentID int64) ([]models.DocumentVersion, error) {
	return m.versions, m.err
}

type mockCompletionService struct {
	result    *models.CompletionResult
	status    *models.CompletionStatus
	err       error
	evaluated []int64
}

var _ services.CompletionService = (*mockCompletionService)(nil)

func (m *mockCompletionService) EvaluateCompletion(ctx context.Context, documentID int64) (*models.CompletionResult, error) {
	m.evaluated = append(m.evaluated, documentID)
	return m.result, m.err
}

func (m *mockCompletionService) GetCompletionStatus(ctx context.Context, documentID int64) (*models.CompletionStatus, error) {
	return m.status, m.err
}

type mockPenaltyEngine struct {
	scope     models.SweepScope
	result    *models.SweepResult
	penalties []models.DocumentPenalty
	resolved  *models.DocumentPenalty
	resolver  int64
	err       error
}

var _ services.PenaltyEngine = (*mockPenaltyEngine)(nil)

func (m *mockPenaltyEngine) ApplyPenaltySweep(ctx context.Context, scope models.SweepScope) (*models.SweepResult, error) {
	m.scope = scope
	return m.result, m.err
}

func (m *mockPenaltyEngine) ListPenalties(ctx context.Context, documentID int64) ([]models.DocumentPenalty, error) {
	return m.penalties, m.err
}

func (m *mockPenaltyEngine) ResolvePenalty(ctx context.Context, penaltyID, resolverID int64) (*models.DocumentPenalty, error) {
	m.resolver = resolverID
	return m.resolved, m.err
}

type mockRuleService struct {
	rules   []models.OutdatedRule
	created *models.OutdatedRule
	updated *models.OutdatedRule
	err     error
}

var _ services.RuleService = (*mockRuleService)(nil)

func (m *mockRuleService) ListRules(ctx context.Context) ([]models.OutdatedRule, error) {
	return m.rules, m.err
}

func (m *mockRuleService) CreateRule(ctx context.Context, rule *models.OutdatedRule) error {
	if m.err != nil {
		return m.err
	}
	rule.ID = 11
	m.created = rule
	return nil
}

func (m *mockRuleService) UpdateRule(ctx context.Context, rule *models.OutdatedRule) error {
	m.updated = rule
	return m.err
}

func (m *mockRuleService) ImportCatalog(ctx context.Context, r io.Reader) (*services.CatalogImportResult, error) {
	return &services.CatalogImportResult{}, m.err
}

type mockScoreAggregator struct {
	score     *models.UserScore
	batch     *models.ScoreBatchResult
	recompute []int64
	allCalls  int
	err       error
}

var _ services.ScoreAggregator = (*mockScoreAggregator)(nil)

func (m *mockScoreAggregator) RecomputeScore(ctx context.Context, userID int64) (*models.UserScore, error) {
	m.recompute = append(m.recompute, userID)
	return m.score, m.err
}

func (m *mockScoreAggregator) RecomputeAll(ctx context.Context) (*models.ScoreBatchResult, error) {
	m.allCalls++
	return m.batch, m.err
}

func (m *mockScoreAggregator) GetScore(ctx context.Context, userID int64) (*models.UserScore, error) {
	return m.score, m.err
}

type mockLeaderboardService struct {
	snapshot *models.LeaderboardSnapshot
	limit    int
	err      error
}

var _ services.LeaderboardService = (*mockLeaderboardService)(nil)

func (m *mockLeaderboardService) RecomputeLeaderboard(ctx context.Context) (*models.LeaderboardSnapshot, error) {
	return m.snapshot, m.err
}

func (m *mockLeaderboardService) GetLeaderboard(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error) {
	m.limit = limit
	return m.snapshot, m.err
}

type mockActivityService struct {
	commentBody string
	reactionNew bool
	reviewScore decimal.Decimal
	views       []int64
	err         error
}

var _ services.ActivityService = (*mockActivityService)(nil)

func (m *mockActivityService) AddComment(ctx context.Context, documentID, userID int64, body string) (int64, error) {
	m.commentBody = body
	return 31, m.err
}

func (m *mockActivityService) AddReaction(ctx context.Context, documentID, userID int64, kind string) (bool, error) {
	return m.reactionNew, m.err
}

func (m *mockActivityService) AddReview(ctx context.Context, documentID, reviewerID int64, score decimal.Decimal) (int64, error) {
	m.reviewScore = score
	return 41, m.err
}

func (m *mockActivityService) RecordView(ctx context.Context, documentID int64) error {
	m.views = append(m.views, documentID)
	return m.err
}
