package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
)

const (
	// DefaultChangeListLimit bounds ListChanges when no limit is given.
	DefaultChangeListLimit = 100

	// reevaluateAttempts bounds re-evaluation after an edit when another edit
	// keeps moving the lock version.
	reevaluateAttempts = 3
)

// DocumentService is the authoring path: document creation, item edits with
// change recording, repeatable section instances and version snapshots.
type DocumentService interface {
	CreateDocument(ctx context.Context, req models.NewDocument) (*models.DocumentTree, error)
	GetDocument(ctx context.Context, documentID int64) (*models.DocumentTree, error)

	// UpdateItem writes new content if the document is still at the expected lock
	// version, recording a DocumentChange. Unchanged content is a no-op.
	UpdateItem(ctx context.Context, edit models.ItemEdit) (*models.ItemUpdateResult, error)

	// TransitionStatus moves a document along its lifecycle. Approval follows
	// the review steps: submitting sets pending, publishing from review approves
	// and returning to draft from review rejects.
	TransitionStatus(ctx context.Context, change models.StatusChange) (*models.Document, error)

	AddSectionInstance(ctx context.Context, documentID, structureSectionID, expectedLockVersion int64) (*models.DocumentSection, int64, error)
	RemoveSectionInstance(ctx context.Context, documentID, sectionID, expectedLockVersion int64) (int64, error)

	CreateVersion(ctx context.Context, req models.NewVersion) (*models.DocumentVersion, error)
	ListChanges(ctx context.Context, documentID int64, limit int) ([]models.DocumentChange, error)
	ListVersions(ctx context.Context, documentID int64) ([]models.DocumentVersion, error)
}

type documentService struct {
	docRepo       repositories.DocumentRepository
	structureRepo repositories.StructureRepository
	completion    CompletionService
	logger        *zap.Logger
	now           func() time.Time
}

// NewDocumentService creates a new document service.
func NewDocumentService(
	docRepo repositories.DocumentRepository,
	structureRepo repositories.StructureRepository,
	completion CompletionService,
	logger *zap.Logger,
) DocumentService {
	return &documentService{
		docRepo:       docRepo,
		structureRepo: structureRepo,
		completion:    completion,
		logger:        logger.Named("change-recorder"),
		now:           time.Now,
	}
}

var _ DocumentService = (*documentService)(nil)

func (s *documentService) CreateDocument(ctx context.Context, req models.NewDocument) (*models.DocumentTree, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("title is required: %w", apperrors.ErrInvalidInput)
	}

	structure, err := s.structureFor(ctx, req)
	if err != nil {
		return nil, err
	}
	if !structure.IsActive {
		return nil, fmt.Errorf("structure %d is inactive: %w", structure.ID, apperrors.ErrStructureUnavailable)
	}

	tree := &models.DocumentTree{
		Document: models.Document{
			StructureID: &structure.ID,
			OwnerID:     req.OwnerID,
			Title:       strings.TrimSpace(req.Title),
		},
	}
	for i := range structure.Sections {
		def := &structure.Sections[i]
		instances := def.MinInstances()
		if limit := def.MaxInstances(); limit > 0 && instances > limit {
			instances = limit
		}
		for n := 1; n <= instances; n++ {
			tree.Sections = append(tree.Sections, instantiateSection(def, n))
		}
	}

	if err := s.docRepo.Create(ctx, tree); err != nil {
		return nil, err
	}

	s.logger.Info("Document created",
		zap.Int64("document_id", tree.Document.ID),
		zap.Int64("structure_id", structure.ID),
		zap.Int64("owner_id", req.OwnerID),
		zap.Int("sections", len(tree.Sections)))

	s.reevaluate(ctx, tree.Document.ID)
	return s.docRepo.GetTree(ctx, tree.Document.ID)
}

// structureFor resolves the structure a new document is built from: the given
// structure, or the current default of the given category.
func (s *documentService) structureFor(ctx context.Context, req models.NewDocument) (*models.Structure, error) {
	if req.StructureID > 0 {
		structure, err := s.structureRepo.GetByID(ctx, req.StructureID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("structure %d: %w", req.StructureID, apperrors.ErrStructureUnavailable)
		}
		return structure, err
	}
	if req.CategoryID <= 0 {
		return nil, fmt.Errorf("structure_id or category_id is required: %w", apperrors.ErrInvalidInput)
	}

	structure, err := s.structureRepo.GetDefault(ctx, req.CategoryID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("category %d has no default structure: %w", req.CategoryID, apperrors.ErrStructureUnavailable)
	}
	return structure, err
}

// instantiateSection copies a section definition into a new document section.
// Item type, requiredness and rules are captured as they are now.
func instantiateSection(def *models.StructureSection, instance int) models.DocumentSection {
	section := models.DocumentSection{
		StructureSectionID: def.ID,
		InstanceNumber:     instance,
		Items:              make([]models.DocumentSectionItem, 0, len(def.Items)),
	}
	for _, itemDef := range def.Items {
		content := ""
		if itemDef.DefaultValue != nil {
			content = *itemDef.DefaultValue
		}
		section.Items = append(section.Items, models.DocumentSectionItem{
			StructureSectionItemID: itemDef.ID,
			Type:                   itemDef.Type,
			IsRequired:             itemDef.IsRequired,
			ValidationRules:        itemDef.ValidationRules,
			Content:                content,
			ValidationErrors:       []string{},
		})
	}
	return section
}

func (s *documentService) GetDocument(ctx context.Context, documentID int64) (*models.DocumentTree, error) {
	return s.docRepo.GetTree(ctx, documentID)
}

func (s *documentService) UpdateItem(ctx context.Context, edit models.ItemEdit) (*models.ItemUpdateResult, error) {
	tree, err := s.docRepo.GetTree(ctx, edit.DocumentID)
	if err != nil {
		return nil, err
	}
	if err := checkLockVersion(&tree.Document, edit.ExpectedLockVersion); err != nil {
		return nil, err
	}

	item := findItem(tree, edit.ItemID)
	if item == nil {
		return nil, fmt.Errorf("item %d in document %d: %w", edit.ItemID, edit.DocumentID, apperrors.ErrNotFound)
	}

	if item.Content == edit.Content {
		return &models.ItemUpdateResult{LockVersion: tree.Document.LockVersion}, nil
	}

	diff, line, err := diffContent(edit.ItemID, item.Content, edit.Content)
	if err != nil {
		return nil, err
	}
	change := &models.DocumentChange{
		DocumentID: edit.DocumentID,
		ItemID:     edit.ItemID,
		UserID:     edit.EditorID,
		OldContent: item.Content,
		NewContent: edit.Content,
		Diff:       diff,
		LineNumber: line,
	}

	next, err := s.docRepo.UpdateItemContent(ctx, edit, change, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Item updated",
		zap.Int64("document_id", edit.DocumentID),
		zap.Int64("item_id", edit.ItemID),
		zap.Int64("editor_id", edit.EditorID),
		zap.Int64("lock_version", next),
		logging.Content("content", edit.Content))

	return &models.ItemUpdateResult{
		LockVersion: next,
		Change:      change,
		Completion:  s.reevaluate(ctx, edit.DocumentID),
	}, nil
}

func (s *documentService) TransitionStatus(ctx context.Context, change models.StatusChange) (*models.Document, error) {
	if !change.Status.IsValid() {
		return nil, fmt.Errorf("unknown status %q: %w", change.Status, apperrors.ErrInvalidInput)
	}

	doc, err := s.docRepo.GetByID(ctx, change.DocumentID)
	if err != nil {
		return nil, err
	}
	if err := checkLockVersion(doc, change.ExpectedLockVersion); err != nil {
		return nil, err
	}
	if !doc.Status.CanTransitionTo(change.Status) {
		return nil, fmt.Errorf("document %d cannot move from %s to %s: %w",
			doc.ID, doc.Status, change.Status, apperrors.ErrConflict)
	}

	approval := models.ApprovalAfter(doc.Status, change.Status, doc.ApprovalStatus)
	if _, err := s.docRepo.UpdateStatus(ctx, change, approval, s.now().UTC()); err != nil {
		return nil, err
	}

	s.logger.Info("Document status changed",
		zap.Int64("document_id", doc.ID),
		zap.String("from", string(doc.Status)),
		zap.String("to", string(change.Status)),
		zap.String("approval_status", string(approval)))

	s.reevaluate(ctx, doc.ID)
	return s.docRepo.GetByID(ctx, doc.ID)
}

func (s *documentService) AddSectionInstance(ctx context.Context, documentID, structureSectionID, expectedLockVersion int64) (*models.DocumentSection, int64, error) {
	tree, def, err := s.loadSectionDef(ctx, documentID, structureSectionID, expectedLockVersion)
	if err != nil {
		return nil, 0, err
	}

	count := len(tree.InstancesOf(def.ID))
	if !def.AllowsMore(count) {
		return nil, 0, fmt.Errorf("section %q allows at most %d instances: %w", def.Name, def.MaxInstances(), apperrors.ErrSectionLimit)
	}

	section := instantiateSection(def, 0)
	next, err := s.docRepo.AddSection(ctx, documentID, expectedLockVersion, &section, s.now().UTC())
	if err != nil {
		return nil, 0, err
	}

	s.logger.Info("Section instance added",
		zap.Int64("document_id", documentID),
		zap.Int64("structure_section_id", def.ID),
		zap.Int("instance_number", section.InstanceNumber))

	s.reevaluate(ctx, documentID)
	return &section, next, nil
}

func (s *documentService) RemoveSectionInstance(ctx context.Context, documentID, sectionID, expectedLockVersion int64) (int64, error) {
	tree, err := s.docRepo.GetTree(ctx, documentID)
	if err != nil {
		return 0, err
	}

	var target *models.DocumentSection
	for i := range tree.Sections {
		if tree.Sections[i].ID == sectionID {
			target = &tree.Sections[i]
			break
		}
	}
	if target == nil {
		return 0, fmt.Errorf("section %d in document %d: %w", sectionID, documentID, apperrors.ErrNotFound)
	}

	_, def, err := s.loadSectionDef(ctx, documentID, target.StructureSectionID, expectedLockVersion)
	if err != nil {
		return 0, err
	}

	count := len(tree.InstancesOf(def.ID))
	if count-1 < def.MinInstances() {
		return 0, fmt.Errorf("section %q requires at least %d instances: %w", def.Name, def.MinInstances(), apperrors.ErrSectionLimit)
	}

	next, err := s.docRepo.RemoveSection(ctx, documentID, sectionID, expectedLockVersion, s.now().UTC())
	if err != nil {
		return 0, err
	}

	s.logger.Info("Section instance removed",
		zap.Int64("document_id", documentID),
		zap.Int64("section_id", sectionID))

	s.reevaluate(ctx, documentID)
	return next, nil
}

// loadSectionDef loads the document and the definition of one of its repeatable
// sections, checking the lock version.
func (s *documentService) loadSectionDef(ctx context.Context, documentID, structureSectionID, expectedLockVersion int64) (*models.DocumentTree, *models.StructureSection, error) {
	tree, err := s.docRepo.GetTree(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkLockVersion(&tree.Document, expectedLockVersion); err != nil {
		return nil, nil, err
	}
	if tree.Document.StructureID == nil {
		return nil, nil, fmt.Errorf("document %d has no structure: %w", documentID, apperrors.ErrStructureUnavailable)
	}

	structure, err := s.structureRepo.GetByID(ctx, *tree.Document.StructureID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("structure of document %d: %w", documentID, apperrors.ErrStructureUnavailable)
		}
		return nil, nil, err
	}

	def, ok := structure.Section(structureSectionID)
	if !ok {
		return nil, nil, fmt.Errorf("structure section %d: %w", structureSectionID, apperrors.ErrNotFound)
	}
	if !def.IsRepeatable {
		return nil, nil, fmt.Errorf("section %q is not repeatable: %w", def.Name, apperrors.ErrInvalidInput)
	}
	return tree, def, nil
}

func (s *documentService) CreateVersion(ctx context.Context, req models.NewVersion) (*models.DocumentVersion, error) {
	tree, err := s.docRepo.GetTree(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot document: %w", err)
	}

	version := &models.DocumentVersion{
		DocumentID: req.DocumentID,
		IsMajor:    req.IsMajor,
		Summary:    req.Summary,
		Snapshot:   snapshot,
		CreatedBy:  req.CreatedBy,
	}
	if err := s.docRepo.CreateVersion(ctx, version); err != nil {
		return nil, err
	}

	s.logger.Info("Document version created",
		zap.Int64("document_id", req.DocumentID),
		zap.Int("version", version.Version),
		zap.Bool("is_major", req.IsMajor))

	return version, nil
}

func (s *documentService) ListChanges(ctx context.Context, documentID int64, limit int) ([]models.DocumentChange, error) {
	if limit <= 0 {
		limit = DefaultChangeListLimit
	}
	return s.docRepo.ListChanges(ctx, documentID, limit)
}

func (s *documentService) ListVersions(ctx context.Context, documentID int64) ([]models.DocumentVersion, error) {
	return s.docRepo.ListVersions(ctx, documentID)
}

// reevaluate refreshes completeness after a write. Failures are logged and
// never fail the write that triggered them.
func (s *documentService) reevaluate(ctx context.Context, documentID int64) *models.CompletionResult {
	for attempt := 1; attempt <= reevaluateAttempts; attempt++ {
		result, err := s.completion.EvaluateCompletion(ctx, documentID)
		if err == nil {
			return result
		}
		if errors.Is(err, apperrors.ErrConcurrentModification) {
			continue
		}
		s.logger.Warn("Re-evaluation after edit failed",
			zap.Int64("document_id", documentID),
			logging.Error(err))
		return nil
	}

	s.logger.Warn("Re-evaluation gave up after concurrent edits",
		zap.Int64("document_id", documentID),
		zap.Int("attempts", reevaluateAttempts))
	return nil
}

func checkLockVersion(doc *models.Document, expected int64) error {
	if doc.LockVersion != expected {
		return fmt.Errorf("document %d is at version %d, expected %d: %w",
			doc.ID, doc.LockVersion, expected, apperrors.ErrConcurrentModification)
	}
	return nil
}

func findItem(tree *models.DocumentTree, itemID int64) *models.DocumentSectionItem {
	for i := range tree.Sections {
		for j := range tree.Sections[i].Items {
			if tree.Sections[i].Items[j].ID == itemID {
				return &tree.Sections[i].Items[j]
			}
		}
	}
	return nil
}

// diffContent returns a unified diff between old and new content and the
// 1-based line of the new content where they first differ.
func diffContent(itemID int64, oldContent, newContent string) (string, int, error) {
	a := difflib.SplitLines(oldContent)
	b := difflib.SplitLines(newContent)

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: fmt.Sprintf("item-%d", itemID),
		ToFile:   fmt.Sprintf("item-%d", itemID),
		Context:  3,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to diff content: %w", err)
	}

	line := 1
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag != 'e' {
			line = op.J1 + 1
			break
		}
	}
	return diff, line, nil
}
