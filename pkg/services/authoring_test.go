package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

func authoringStructure() *models.Structure {
	return &models.Structure{
		ID:       7,
		IsActive: true,
		Sections: []models.StructureSection{
			{
				ID:         70,
				Name:       "Overview",
				IsRequired: true,
				Items: []models.StructureSectionItem{
					{ID: 700, Type: models.ItemTypeText, IsRequired: true},
					{
						ID:              701,
						Type:            models.ItemTypeSelect,
						DefaultValue:    strPtr("draft"),
						ValidationRules: models.ValidationRules{Options: []string{"draft", "final"}},
					},
				},
			},
			{
				ID:           71,
				Name:         "Steps",
				IsRequired:   true,
				IsRepeatable: true,
				MinItems:     intPtr(2),
				MaxItems:     intPtr(3),
				Items:        []models.StructureSectionItem{{ID: 710, Type: models.ItemTypeText, IsRequired: true}},
			},
		},
	}
}

type authoringFixture struct {
	svc       *documentService
	docs      *mockDocumentRepository
	structure *models.Structure
	now       time.Time
}

func newAuthoringFixture(t *testing.T) *authoringFixture {
	t.Helper()
	f := &authoringFixture{
		docs:      newMockDocumentRepository(),
		structure: authoringStructure(),
		now:       time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	structures := newMockStructureRepository(f.structure)
	completion := NewCompletionService(f.docs, structures, zap.NewNop()).(*completionService)
	f.svc = NewDocumentService(f.docs, structures, completion, zap.NewNop()).(*documentService)

	clock := func() time.Time { return f.now }
	f.svc.now = clock
	completion.now = clock
	return f
}

func (f *authoringFixture) create(t *testing.T) *models.DocumentTree {
	t.Helper()
	tree, err := f.svc.CreateDocument(context.Background(), models.NewDocument{
		StructureID: f.structure.ID,
		OwnerID:     42,
		Title:       "  Deploy runbook ",
	})
	require.NoError(t, err)
	return tree
}

// itemOf returns the first document item copied from the given structure item.
func itemOf(t *testing.T, tree *models.DocumentTree, structureItemID int64) *models.DocumentSectionItem {
	t.Helper()
	for i := range tree.Sections {
		for j := range tree.Sections[i].Items {
			if tree.Sections[i].Items[j].StructureSectionItemID == structureItemID {
				return &tree.Sections[i].Items[j]
			}
		}
	}
	t.Fatalf("no item copied from %d", structureItemID)
	return nil
}

func TestCreateDocument_InstantiatesStructure(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)

	assert.Equal(t, "Deploy runbook", tree.Document.Title)
	assert.Equal(t, int64(42), tree.Document.OwnerID)
	assert.Equal(t, models.DocumentStatusDraft, tree.Document.Status)
	assert.Equal(t, int64(1), tree.Document.LockVersion)

	require.Len(t, tree.Sections, 3)
	assert.Len(t, tree.InstancesOf(70), 1)
	steps := tree.InstancesOf(71)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].InstanceNumber)
	assert.Equal(t, 2, steps[1].InstanceNumber)

	status := itemOf(t, tree, 701)
	assert.Equal(t, "draft", status.Content)
	assert.Equal(t, models.ItemTypeSelect, status.Type)
	assert.Equal(t, []string{"draft", "final"}, status.ValidationRules.Options)

	require.Len(t, f.docs.saved, 1, "new documents are evaluated")
	require.NotNil(t, tree.Document.CompletenessEvaluatedAt)
	assert.True(t, tree.Document.CompletenessPercentage.IsZero())
}

func TestCreateDocument_Rejects(t *testing.T) {
	t.Run("empty title", func(t *testing.T) {
		f := newAuthoringFixture(t)
		_, err := f.svc.CreateDocument(context.Background(), models.NewDocument{StructureID: 7, Title: " "})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("inactive structure", func(t *testing.T) {
		f := newAuthoringFixture(t)
		f.structure.IsActive = false
		_, err := f.svc.CreateDocument(context.Background(), models.NewDocument{StructureID: 7, Title: "x"})
		assert.ErrorIs(t, err, apperrors.ErrStructureUnavailable)
	})

	t.Run("unknown structure", func(t *testing.T) {
		f := newAuthoringFixture(t)
		_, err := f.svc.CreateDocument(context.Background(), models.NewDocument{StructureID: 99, Title: "x"})
		assert.ErrorIs(t, err, apperrors.ErrStructureUnavailable)
	})

	t.Run("neither structure nor category", func(t *testing.T) {
		f := newAuthoringFixture(t)
		_, err := f.svc.CreateDocument(context.Background(), models.NewDocument{Title: "x"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("category without default", func(t *testing.T) {
		f := newAuthoringFixture(t)
		_, err := f.svc.CreateDocument(context.Background(), models.NewDocument{CategoryID: 3, Title: "x"})
		assert.ErrorIs(t, err, apperrors.ErrStructureUnavailable)
	})
}

func TestCreateDocument_UsesCategoryDefault(t *testing.T) {
	f := newAuthoringFixture(t)
	f.structure.CategoryID = 3
	f.structure.IsDefault = true

	tree, err := f.svc.CreateDocument(context.Background(), models.NewDocument{
		CategoryID: 3,
		OwnerID:    42,
		Title:      "Onboarding",
	})
	require.NoError(t, err)
	require.NotNil(t, tree.Document.StructureID)
	assert.Equal(t, f.structure.ID, *tree.Document.StructureID)
	assert.Len(t, tree.InstancesOf(71), 2)
}

func TestTransitionStatus_ReviewFlow(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)
	ctx := context.Background()
	id := tree.Document.ID

	f.now = f.now.Add(time.Hour)
	doc, err := f.svc.TransitionStatus(ctx, models.StatusChange{
		DocumentID:          id,
		Status:              models.DocumentStatusPendingReview,
		ExpectedLockVersion: tree.Document.LockVersion,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusPendingReview, doc.Status)
	assert.Equal(t, models.ApprovalPending, doc.ApprovalStatus)
	assert.Equal(t, tree.Document.LockVersion+1, doc.LockVersion)
	assert.True(t, f.now.Equal(doc.UpdatedAt), "status changes use the service clock")

	doc, err = f.svc.TransitionStatus(ctx, models.StatusChange{
		DocumentID:          id,
		Status:              models.DocumentStatusPublished,
		ExpectedLockVersion: doc.LockVersion,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusPublished, doc.Status)
	assert.Equal(t, models.ApprovalApproved, doc.ApprovalStatus)
}

func TestTransitionStatus_Rejects(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)
	ctx := context.Background()

	t.Run("unknown status", func(t *testing.T) {
		_, err := f.svc.TransitionStatus(ctx, models.StatusChange{
			DocumentID:          tree.Document.ID,
			Status:              "shipped",
			ExpectedLockVersion: tree.Document.LockVersion,
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("skipping review", func(t *testing.T) {
		_, err := f.svc.TransitionStatus(ctx, models.StatusChange{
			DocumentID:          tree.Document.ID,
			Status:              models.DocumentStatusPublished,
			ExpectedLockVersion: tree.Document.LockVersion,
		})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("stale lock version", func(t *testing.T) {
		_, err := f.svc.TransitionStatus(ctx, models.StatusChange{
			DocumentID:          tree.Document.ID,
			Status:              models.DocumentStatusPendingReview,
			ExpectedLockVersion: tree.Document.LockVersion + 5,
		})
		assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)
	})

	t.Run("missing document", func(t *testing.T) {
		_, err := f.svc.TransitionStatus(ctx, models.StatusChange{
			DocumentID: 999,
			Status:     models.DocumentStatusArchived,
		})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestUpdateItem_RecordsChange(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)
	ctx := context.Background()
	summary := itemOf(t, tree, 700)

	res, err := f.svc.UpdateItem(ctx, models.ItemEdit{
		DocumentID:          tree.Document.ID,
		ItemID:              summary.ID,
		EditorID:            42,
		Content:             "line one\nline two\n",
		ExpectedLockVersion: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LockVersion)
	require.NotNil(t, res.Completion)

	f.now = f.now.Add(time.Minute)
	res, err = f.svc.UpdateItem(ctx, models.ItemEdit{
		DocumentID:          tree.Document.ID,
		ItemID:              summary.ID,
		EditorID:            43,
		Content:             "line one\nline 2\n",
		ExpectedLockVersion: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Change)
	assert.Equal(t, "line one\nline two\n", res.Change.OldContent)
	assert.Equal(t, "line one\nline 2\n", res.Change.NewContent)
	assert.Equal(t, 2, res.Change.LineNumber)
	assert.Contains(t, res.Change.Diff, "-line two")
	assert.Contains(t, res.Change.Diff, "+line 2")
	assert.Equal(t, int64(43), res.Change.UserID)

	changes, err := f.svc.ListChanges(ctx, tree.Document.ID, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "line one\nline 2\n", changes[0].NewContent, "newest first")

	stored, err := f.svc.GetDocument(ctx, tree.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now, stored.Document.UpdatedAt)
	require.NotNil(t, stored.Document.LastActivityAt)
	assert.Equal(t, f.now, *stored.Document.LastActivityAt)
}

func TestUpdateItem_UnchangedContentIsNoop(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)
	status := itemOf(t, tree, 701)

	res, err := f.svc.UpdateItem(context.Background(), models.ItemEdit{
		DocumentID:          tree.Document.ID,
		ItemID:              status.ID,
		Content:             "draft",
		ExpectedLockVersion: 1,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Change)
	assert.Equal(t, int64(1), res.LockVersion)
	assert.Empty(t, f.docs.changes)
}

func TestUpdateItem_StaleLockVersion(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)
	summary := itemOf(t, tree, 700)
	ctx := context.Background()

	_, err := f.svc.UpdateItem(ctx, models.ItemEdit{DocumentID: tree.Document.ID, ItemID: summary.ID, Content: "a", ExpectedLockVersion: 1})
	require.NoError(t, err)

	_, err = f.svc.UpdateItem(ctx, models.ItemEdit{DocumentID: tree.Document.ID, ItemID: summary.ID, Content: "b", ExpectedLockVersion: 1})
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)
	assert.Len(t, f.docs.changes, 1)
}

func TestUpdateItem_UnknownItem(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)

	_, err := f.svc.UpdateItem(context.Background(), models.ItemEdit{DocumentID: tree.Document.ID, ItemID: 9999, Content: "a", ExpectedLockVersion: 1})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateItem_ReevaluationRetriesConflicts(t *testing.T) {
	tests := []struct {
		name           string
		conflicts      int
		wantCompletion bool
	}{
		{name: "succeeds on last attempt", conflicts: reevaluateAttempts - 1, wantCompletion: true},
		{name: "gives up without failing the edit", conflicts: reevaluateAttempts, wantCompletion: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthoringFixture(t)
			tree := f.create(t)
			f.docs.conflictSaves = tt.conflicts

			res, err := f.svc.UpdateItem(context.Background(), models.ItemEdit{
				DocumentID:          tree.Document.ID,
				ItemID:              itemOf(t, tree, 700).ID,
				Content:             "filled",
				ExpectedLockVersion: 1,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(2), res.LockVersion)
			assert.Equal(t, tt.wantCompletion, res.Completion != nil)
		})
	}
}

func TestSectionInstances_RespectBounds(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)
	ctx := context.Background()
	docID := tree.Document.ID

	section, lock, err := f.svc.AddSectionInstance(ctx, docID, 71, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, section.InstanceNumber)
	assert.Equal(t, int64(2), lock)

	_, _, err = f.svc.AddSectionInstance(ctx, docID, 71, lock)
	assert.ErrorIs(t, err, apperrors.ErrSectionLimit)

	_, _, err = f.svc.AddSectionInstance(ctx, docID, 70, lock)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "non-repeatable section")

	_, _, err = f.svc.AddSectionInstance(ctx, docID, 71, 1)
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)

	lock, err = f.svc.RemoveSectionInstance(ctx, docID, section.ID, lock)
	require.NoError(t, err)
	assert.Equal(t, int64(3), lock)

	stored, err := f.svc.GetDocument(ctx, docID)
	require.NoError(t, err)
	steps := stored.InstancesOf(71)
	require.Len(t, steps, 2)

	_, err = f.svc.RemoveSectionInstance(ctx, docID, steps[0].ID, lock)
	assert.ErrorIs(t, err, apperrors.ErrSectionLimit)

	_, err = f.svc.RemoveSectionInstance(ctx, docID, 9999, lock)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCreateVersion_NumbersSequentially(t *testing.T) {
	f := newAuthoringFixture(t)
	tree := f.create(t)
	ctx := context.Background()

	first, err := f.svc.CreateVersion(ctx, models.NewVersion{DocumentID: tree.Document.ID, CreatedBy: 42, Summary: "initial"})
	require.NoError(t, err)
	second, err := f.svc.CreateVersion(ctx, models.NewVersion{DocumentID: tree.Document.ID, CreatedBy: 42, IsMajor: true})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)
	assert.True(t, second.IsMajor)

	var snapshot models.DocumentTree
	require.NoError(t, json.Unmarshal(first.Snapshot, &snapshot))
	assert.Equal(t, "Deploy runbook", snapshot.Document.Title)
	assert.Len(t, snapshot.Sections, 3)

	versions, err := f.svc.ListVersions(ctx, tree.Document.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	_, err = f.svc.CreateVersion(ctx, models.NewVersion{DocumentID: 999})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDiffContent_FirstChangedLine(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		wantLine int
	}{
		{name: "from empty", old: "", new: "hello", wantLine: 1},
		{name: "third line", old: "a\nb\nc\n", new: "a\nb\nC\n", wantLine: 3},
		{name: "appended", old: "a\n", new: "a\nb\n", wantLine: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff, line, err := diffContent(5, tt.old, tt.new)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLine, line)
			assert.Contains(t, diff, "item-5")
		})
	}
}
