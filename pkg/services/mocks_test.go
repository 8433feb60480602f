package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/collaborators"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func int64Ptr(v int64) *int64 { return &v }

func cloneTree(t *models.DocumentTree) *models.DocumentTree {
	out := &models.DocumentTree{Document: t.Document, Sections: make([]models.DocumentSection, len(t.Sections))}
	for i, s := range t.Sections {
		s.Items = append([]models.DocumentSectionItem(nil), s.Items...)
		for j := range s.Items {
			s.Items[j].ValidationErrors = append([]string(nil), s.Items[j].ValidationErrors...)
		}
		out.Sections[i] = s
	}
	return out
}

// mockDocumentRepository is an in-memory document store that honors lock versions.
type mockDocumentRepository struct {
	mu       sync.Mutex
	trees    map[int64]*models.DocumentTree
	changes  []models.DocumentChange
	versions []models.DocumentVersion
	saved    []*models.CompletionResult
	nextID   int64

	// conflictSaves makes the next n SaveCompletion calls fail with a lock conflict.
	conflictSaves int
	getTreeErr    error
	listSweepErr  error
}

func newMockDocumentRepository() *mockDocumentRepository {
	return &mockDocumentRepository{trees: make(map[int64]*models.DocumentTree)}
}

var _ repositories.DocumentRepository = (*mockDocumentRepository)(nil)

func (m *mockDocumentRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockDocumentRepository) assignIDs(docID int64, s *models.DocumentSection) {
	s.ID = m.id()
	s.DocumentID = docID
	for j := range s.Items {
		s.Items[j].ID = m.id()
		s.Items[j].DocumentSectionID = s.ID
	}
}

func (m *mockDocumentRepository) Create(ctx context.Context, tree *models.DocumentTree) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tree.Document.ID = m.id()
	tree.Document.LockVersion = 1
	if tree.Document.Status == "" {
		tree.Document.Status = models.DocumentStatusDraft
	}
	if tree.Document.ApprovalStatus == "" {
		tree.Document.ApprovalStatus = models.ApprovalNotSubmitted
	}
	for i := range tree.Sections {
		m.assignIDs(tree.Document.ID, &tree.Sections[i])
	}
	m.trees[tree.Document.ID] = cloneTree(tree)
	return nil
}

// put stores a ready-made tree as-is.
func (m *mockDocumentRepository) put(tree *models.DocumentTree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trees[tree.Document.ID] = cloneTree(tree)
}

func (m *mockDocumentRepository) tree(id int64) (*models.DocumentTree, error) {
	t, ok := m.trees[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, apperrors.ErrNotFound)
	}
	return t, nil
}

func (m *mockDocumentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.tree(id)
	if err != nil {
		return nil, err
	}
	doc := t.Document
	return &doc, nil
}

func (m *mockDocumentRepository) GetTree(ctx context.Context, id int64) (*models.DocumentTree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getTreeErr != nil {
		return nil, m.getTreeErr
	}
	t, err := m.tree(id)
	if err != nil {
		return nil, err
	}
	return cloneTree(t), nil
}

func (m *mockDocumentRepository) ListForSweep(ctx context.Context, ids []int64) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listSweepErr != nil {
		return nil, m.listSweepErr
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.Document
	for id, t := range m.trees {
		if t.Document.Status == models.DocumentStatusArchived {
			continue
		}
		if len(ids) > 0 && !wanted[id] {
			continue
		}
		out = append(out, t.Document)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockDocumentRepository) UpdateStatus(ctx context.Context, change models.StatusChange, approval models.ApprovalStatus, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lockedTree(change.DocumentID, change.ExpectedLockVersion)
	if err != nil {
		return 0, err
	}
	t.Document.Status = change.Status
	t.Document.ApprovalStatus = approval
	m.touch(t, now)
	return t.Document.LockVersion, nil
}

func (m *mockDocumentRepository) lockedTree(id, expected int64) (*models.DocumentTree, error) {
	t, err := m.tree(id)
	if err != nil {
		return nil, err
	}
	if t.Document.LockVersion != expected {
		return nil, fmt.Errorf("document %d: %w", id, apperrors.ErrConcurrentModification)
	}
	return t, nil
}

func (m *mockDocumentRepository) touch(t *models.DocumentTree, now time.Time) {
	t.Document.LockVersion++
	t.Document.UpdatedAt = now
	t.Document.LastActivityAt = &now
}

func (m *mockDocumentRepository) UpdateItemContent(ctx context.Context, edit models.ItemEdit, change *models.DocumentChange, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lockedTree(edit.DocumentID, edit.ExpectedLockVersion)
	if err != nil {
		return 0, err
	}
	item := findItem(t, edit.ItemID)
	if item == nil {
		return 0, fmt.Errorf("item %d: %w", edit.ItemID, apperrors.ErrNotFound)
	}
	item.Content = edit.Content
	item.LastEditedBy = &edit.EditorID
	item.LastEditedAt = &now

	change.ID = m.id()
	change.CreatedAt = now
	m.changes = append(m.changes, *change)
	m.touch(t, now)
	return t.Document.LockVersion, nil
}

func (m *mockDocumentRepository) AddSection(ctx context.Context, documentID, expectedLockVersion int64, section *models.DocumentSection, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lockedTree(documentID, expectedLockVersion)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, inst := range t.InstancesOf(section.StructureSectionID) {
		highest = max(highest, inst.InstanceNumber)
	}
	section.InstanceNumber = highest + 1
	m.assignIDs(documentID, section)
	t.Sections = append(t.Sections, *section)
	m.touch(t, now)
	return t.Document.LockVersion, nil
}

func (m *mockDocumentRepository) RemoveSection(ctx context.Context, documentID, sectionID, expectedLockVersion int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lockedTree(documentID, expectedLockVersion)
	if err != nil {
		return 0, err
	}
	for i := range t.Sections {
		if t.Sections[i].ID == sectionID {
			t.Sections = append(t.Sections[:i], t.Sections[i+1:]...)
			m.touch(t, now)
			return t.Document.LockVersion, nil
		}
	}
	return 0, fmt.Errorf("section %d: %w", sectionID, apperrors.ErrNotFound)
}

func (m *mockDocumentRepository) SaveCompletion(ctx context.Context, result *models.CompletionResult, expectedLockVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictSaves > 0 {
		m.conflictSaves--
		return fmt.Errorf("document %d: %w", result.DocumentID, apperrors.ErrConcurrentModification)
	}
	t, err := m.lockedTree(result.DocumentID, expectedLockVersion)
	if err != nil {
		return err
	}

	items := make(map[int64]models.ItemResult, len(result.Items))
	for _, r := range result.Items {
		items[r.ItemID] = r
	}
	sections := make(map[int64]bool, len(result.Sections))
	for _, r := range result.Sections {
		sections[r.SectionID] = r.IsComplete
	}
	for i := range t.Sections {
		t.Sections[i].IsComplete = sections[t.Sections[i].ID]
		for j := range t.Sections[i].Items {
			r := items[t.Sections[i].Items[j].ID]
			t.Sections[i].Items[j].IsValid = r.IsValid
			t.Sections[i].Items[j].ValidationErrors = r.ValidationErrors
		}
	}
	evaluated := result.EvaluatedAt
	t.Document.CompletenessPercentage = result.CompletenessPercentage
	t.Document.CompletenessEvaluatedAt = &evaluated
	m.saved = append(m.saved, result)
	return nil
}

func (m *mockDocumentRepository) ListChanges(ctx context.Context, documentID int64, limit int) ([]models.DocumentChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentChange
	for i := len(m.changes) - 1; i >= 0 && len(out) < limit; i-- {
		if m.changes[i].DocumentID == documentID {
			out = append(out, m.changes[i])
		}
	}
	return out, nil
}

func (m *mockDocumentRepository) CreateVersion(ctx context.Context, version *models.DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.tree(version.DocumentID); err != nil {
		return err
	}
	next := 1
	for _, v := range m.versions {
		if v.DocumentID == version.DocumentID {
			next = max(next, v.Version+1)
		}
	}
	version.ID = m.id()
	version.Version = next
	m.versions = append(m.versions, *version)
	return nil
}

func (m *mockDocumentRepository) ListVersions(ctx context.Context, documentID int64) ([]models.DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentVersion
	for _, v := range m.versions {
		if v.DocumentID == documentID {
			out = append(out, v)
		}
	}
	return out, nil
}

type mockStructureRepository struct {
	structures map[int64]*models.Structure
	getErr     error
}

func newMockStructureRepository(structures ...*models.Structure) *mockStructureRepository {
	m := &mockStructureRepository{structures: make(map[int64]*models.Structure)}
	for _, s := range structures {
		m.structures[s.ID] = s
	}
	return m
}

var _ repositories.StructureRepository = (*mockStructureRepository)(nil)

func (m *mockStructureRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	return nil
}

func (m *mockStructureRepository) Create(ctx context.Context, structure *models.Structure) error {
	m.structures[structure.ID] = structure
	return nil
}

func (m *mockStructureRepository) GetByID(ctx context.Context, id int64) (*models.Structure, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.structures[id]
	if !ok {
		return nil, fmt.Errorf("structure %d: %w", id, apperrors.ErrNotFound)
	}
	return s, nil
}

func (m *mockStructureRepository) GetDefault(ctx context.Context, categoryID int64) (*models.Structure, error) {
	for _, s := range m.structures {
		if s.CategoryID == categoryID && s.IsDefault && s.IsActive {
			return s, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

type mockRuleRepository struct {
	rules     []models.OutdatedRule
	listErr   error
	upsertErr error
	upserted  []models.OutdatedRule
}

var _ repositories.RuleRepository = (*mockRuleRepository)(nil)

func (m *mockRuleRepository) ListActive(ctx context.Context, ids []int64) ([]models.OutdatedRule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.OutdatedRule
	for _, r := range m.rules {
		if r.IsActive && (len(ids) == 0 || wanted[r.ID]) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRuleRepository) List(ctx context.Context) ([]models.OutdatedRule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]models.OutdatedRule(nil), m.rules...), nil
}

func (m *mockRuleRepository) GetByID(ctx context.Context, id int64) (*models.OutdatedRule, error) {
	for i := range m.rules {
		if m.rules[i].ID == id {
			r := m.rules[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("rule %d: %w", id, apperrors.ErrNotFound)
}

func (m *mockRuleRepository) Create(ctx context.Context, rule *models.OutdatedRule) error {
	for _, r := range m.rules {
		if r.Name == rule.Name {
			return fmt.Errorf("rule %q: %w", rule.Name, apperrors.ErrConflict)
		}
	}
	rule.ID = int64(len(m.rules) + 1)
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *mockRuleRepository) Update(ctx context.Context, rule *models.OutdatedRule) error {
	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			m.rules[i] = *rule
			return nil
		}
	}
	return fmt.Errorf("rule %d: %w", rule.ID, apperrors.ErrNotFound)
}

func (m *mockRuleRepository) UpsertByName(ctx context.Context, rule *models.OutdatedRule) (bool, error) {
	if m.upsertErr != nil {
		return false, m.upsertErr
	}
	m.upserted = append(m.upserted, *rule)
	for i := range m.rules {
		if m.rules[i].Name == rule.Name {
			rule.ID = m.rules[i].ID
			m.rules[i] = *rule
			return false, nil
		}
	}
	rule.ID = int64(len(m.rules) + 1)
	m.rules = append(m.rules, *rule)
	return true, nil
}

// mockPenaltyRepository keeps penalties and cached document scores. It is
// safe for the concurrent use a sweep makes of it.
type mockPenaltyRepository struct {
	mu         sync.Mutex
	penalties  []models.DocumentPenalty
	docScores  map[int64]decimal.Decimal
	applyErr   error
	unresolved atomic.Int32
}

func newMockPenaltyRepository() *mockPenaltyRepository {
	return &mockPenaltyRepository{docScores: make(map[int64]decimal.Decimal)}
}

var _ repositories.PenaltyRepository = (*mockPenaltyRepository)(nil)

func (m *mockPenaltyRepository) Apply(ctx context.Context, penalty *models.DocumentPenalty) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return false, m.applyErr
	}
	for _, p := range m.penalties {
		if p.DocumentID == penalty.DocumentID && p.RuleID == penalty.RuleID && !p.IsResolved {
			return false, nil
		}
	}
	penalty.ID = int64(len(m.penalties) + 1)
	m.penalties = append(m.penalties, *penalty)

	score := m.docScores[penalty.DocumentID].Sub(penalty.PenaltyScore)
	if score.IsNegative() {
		score = decimal.Zero
	}
	m.docScores[penalty.DocumentID] = score
	return true, nil
}

func (m *mockPenaltyRepository) UnresolvedRuleIDs(ctx context.Context, documentID int64) (map[int64]bool, error) {
	m.unresolved.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]bool)
	for _, p := range m.penalties {
		if p.DocumentID == documentID && !p.IsResolved {
			out[p.RuleID] = true
		}
	}
	return out, nil
}

func (m *mockPenaltyRepository) ListByDocument(ctx context.Context, documentID int64) ([]models.DocumentPenalty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DocumentPenalty
	for _, p := range m.penalties {
		if p.DocumentID == documentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPenaltyRepository) Resolve(ctx context.Context, penaltyID, resolverID int64, now time.Time) (*models.DocumentPenalty, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.penalties {
		p := &m.penalties[i]
		if p.ID != penaltyID {
			continue
		}
		if p.IsResolved {
			return nil, fmt.Errorf("penalty %d: %w", penaltyID, apperrors.ErrConflict)
		}
		p.IsResolved = true
		p.ResolvedBy = &resolverID
		p.ResolvedAt = &now
		out := *p
		return &out, nil
	}
	return nil, fmt.Errorf("penalty %d: %w", penaltyID, apperrors.ErrNotFound)
}

// mockScoreRepository mimics the conditional upsert: the stored row only
// changes when a value differs.
type mockScoreRepository struct {
	signals   map[int64]*models.ScoreSignals
	stored    map[int64]models.UserScore
	docScores map[int64]decimal.Decimal
	failFor   map[int64]error
	writes    int
}

func newMockScoreRepository() *mockScoreRepository {
	return &mockScoreRepository{
		signals:   make(map[int64]*models.ScoreSignals),
		stored:    make(map[int64]models.UserScore),
		docScores: make(map[int64]decimal.Decimal),
		failFor:   make(map[int64]error),
	}
}

var _ repositories.ScoreRepository = (*mockScoreRepository)(nil)

func (m *mockScoreRepository) Recompute(ctx context.Context, userID int64, compute repositories.ScoreComputeFunc) (*models.UserScore, error) {
	if err := m.failFor[userID]; err != nil {
		return nil, err
	}
	signals, ok := m.signals[userID]
	if !ok {
		signals = &models.ScoreSignals{UserID: userID, ReviewScoreTotal: decimal.Zero}
	}

	score, docs, err := compute(signals)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		m.docScores[d.DocumentID] = d.TotalScore
	}

	if prev, ok := m.stored[userID]; ok && prev.SameValues(*score) {
		return &prev, nil
	}
	m.stored[userID] = *score
	m.writes++
	return score, nil
}

func (m *mockScoreRepository) GetByUserID(ctx context.Context, userID int64) (*models.UserScore, error) {
	s, ok := m.stored[userID]
	if !ok {
		return nil, fmt.Errorf("score of user %d: %w", userID, apperrors.ErrNotFound)
	}
	return &s, nil
}

type mockUserRepository struct {
	ids     []int64
	listErr error
}

var _ repositories.UserRepository = (*mockUserRepository)(nil)

func (m *mockUserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = int64(len(m.ids) + 1)
	m.ids = append(m.ids, user.ID)
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	for _, known := range m.ids {
		if known == id {
			return &models.User{ID: id}, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockUserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	return m.ids, m.listErr
}

// mockLeaderboardRepository ranks users the way the real swap does, keeping
// only the current generation.
type mockLeaderboardRepository struct {
	users      []models.RankedUser
	current    *models.LeaderboardSnapshot
	nextID     int64
	replaceErr error
	currentErr error
	reads      int
}

var _ repositories.LeaderboardRepository = (*mockLeaderboardRepository)(nil)

func (m *mockLeaderboardRepository) Replace(ctx context.Context, computedAt time.Time, rank repositories.RankFunc) (*models.LeaderboardSnapshot, error) {
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}
	previous := make(map[int64]int)
	if m.current != nil {
		for _, e := range m.current.Entries {
			previous[e.UserID] = e.Rank
		}
	}
	m.nextID++
	m.current = &models.LeaderboardSnapshot{
		ID:         m.nextID,
		ComputedAt: computedAt,
		Entries:    rank(m.users, previous),
	}
	return m.current, nil
}

func (m *mockLeaderboardRepository) Current(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error) {
	m.reads++
	if m.currentErr != nil {
		return nil, m.currentErr
	}
	if m.current == nil {
		return &models.LeaderboardSnapshot{Entries: []models.LeaderboardEntry{}}, nil
	}
	out := *m.current
	if len(out.Entries) > limit {
		out.Entries = out.Entries[:limit]
	}
	return &out, nil
}

type mockLeaderboardMirror struct {
	published     []*models.LeaderboardSnapshot
	publishErr    error
	current       *models.LeaderboardSnapshot
	currentErr    error
	invalidations int
}

var _ LeaderboardMirror = (*mockLeaderboardMirror)(nil)

func (m *mockLeaderboardMirror) Publish(ctx context.Context, snapshot *models.LeaderboardSnapshot) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, snapshot)
	m.current = snapshot
	return nil
}

func (m *mockLeaderboardMirror) Current(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error) {
	if m.currentErr != nil {
		return nil, m.currentErr
	}
	if m.current == nil {
		return nil, ErrMirrorMiss
	}
	return m.current, nil
}

func (m *mockLeaderboardMirror) Invalidate(ctx context.Context) error {
	m.invalidations++
	m.current = nil
	return nil
}

type mockActivityRepository struct {
	comments  []string
	reactions map[string]bool
	reviews   []decimal.Decimal
	views     int
}

var _ repositories.ActivityRepository = (*mockActivityRepository)(nil)

func (m *mockActivityRepository) AddComment(ctx context.Context, documentID, userID int64, body string) (int64, error) {
	m.comments = append(m.comments, body)
	return int64(len(m.comments)), nil
}

func (m *mockActivityRepository) AddReaction(ctx context.Context, documentID, userID int64, kind string) (bool, error) {
	if m.reactions == nil {
		m.reactions = make(map[string]bool)
	}
	key := fmt.Sprintf("%d/%d/%s", documentID, userID, kind)
	if m.reactions[key] {
		return false, nil
	}
	m.reactions[key] = true
	return true, nil
}

func (m *mockActivityRepository) AddReview(ctx context.Context, documentID, reviewerID int64, score decimal.Decimal) (int64, error) {
	m.reviews = append(m.reviews, score)
	return int64(len(m.reviews)), nil
}

func (m *mockActivityRepository) RecordView(ctx context.Context, documentID int64) error {
	m.views++
	return nil
}

// noopScopes hands out the caller's context unchanged.
type noopScopes struct {
	acquired atomic.Int32
	err      error
}

func (s *noopScopes) WithScope(ctx context.Context) (context.Context, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	s.acquired.Add(1)
	return ctx, func() {}, nil
}

// mockCollaboratorClient answers with check, or waits for ctx when block is set
// and fails the way an http.Client call does.
type mockCollaboratorClient struct {
	mu    sync.Mutex
	calls int
	block bool
	check func(req *collaborators.CheckRequest) (*collaborators.CheckResponse, error)
}

func (m *mockCollaboratorClient) Check(ctx context.Context, endpoint string, req *collaborators.CheckRequest) (*collaborators.CheckResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return nil, fmt.Errorf("failed to call collaborator: Post %q: %w", endpoint, ctx.Err())
	}
	return m.check(req)
}

// staticChecker returns a fixed verdict, optionally after blocking on ctx.
type staticChecker struct {
	result *TriggerResult
	err    error
	block  bool
}

func (c *staticChecker) Evaluate(ctx context.Context, doc *models.Document, rule *models.OutdatedRule) (*TriggerResult, error) {
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return c.result, c.err
}
