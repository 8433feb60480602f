package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
)

// Stale reasons reported by GetCompletionStatus.
const (
	StaleNeverEvaluated       = "never evaluated"
	StaleContentChanged       = "content changed since last evaluation"
	StaleStructureUnavailable = "structure unavailable"
)

// CompletionService evaluates and reports document completeness.
type CompletionService interface {
	// EvaluateCompletion validates the document against its structure and stores
	// the results. Returns apperrors.ErrStructureUnavailable without writing
	// anything when the structure is missing or inactive, and
	// apperrors.ErrConcurrentModification when the document was edited meanwhile.
	EvaluateCompletion(ctx context.Context, documentID int64) (*models.CompletionResult, error)

	// GetCompletionStatus returns the last stored completeness with a staleness flag.
	GetCompletionStatus(ctx context.Context, documentID int64) (*models.CompletionStatus, error)
}

type completionService struct {
	docRepo       repositories.DocumentRepository
	structureRepo repositories.StructureRepository
	logger        *zap.Logger
	now           func() time.Time
}

// NewCompletionService creates a new completion service.
func NewCompletionService(
	docRepo repositories.DocumentRepository,
	structureRepo repositories.StructureRepository,
	logger *zap.Logger,
) CompletionService {
	return &completionService{
		docRepo:       docRepo,
		structureRepo: structureRepo,
		logger:        logger.Named("completion-evaluator"),
		now:           time.Now,
	}
}

var _ CompletionService = (*completionService)(nil)

func (s *completionService) EvaluateCompletion(ctx context.Context, documentID int64) (*models.CompletionResult, error) {
	tree, err := s.docRepo.GetTree(ctx, documentID)
	if err != nil {
		return nil, err
	}

	structure, err := s.liveStructure(ctx, &tree.Document)
	if err != nil {
		s.logger.Warn("Document cannot be evaluated",
			zap.Int64("document_id", documentID),
			zap.Error(err))
		return nil, err
	}

	result := EvaluateTree(tree, structure, s.now().UTC())

	if err := s.docRepo.SaveCompletion(ctx, result, tree.Document.LockVersion); err != nil {
		return nil, err
	}

	s.logger.Debug("Document evaluated",
		zap.Int64("document_id", documentID),
		zap.String("completeness", result.CompletenessPercentage.StringFixed(2)),
		zap.Int("sections", len(result.Sections)))

	return result, nil
}

func (s *completionService) GetCompletionStatus(ctx context.Context, documentID int64) (*models.CompletionStatus, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	status := &models.CompletionStatus{
		DocumentID:             doc.ID,
		CompletenessPercentage: doc.CompletenessPercentage,
		EvaluatedAt:            doc.CompletenessEvaluatedAt,
	}

	switch {
	case doc.CompletenessEvaluatedAt == nil:
		status.Stale, status.StaleReason = true, StaleNeverEvaluated
	case doc.UpdatedAt.After(*doc.CompletenessEvaluatedAt):
		status.Stale, status.StaleReason = true, StaleContentChanged
	}

	if !status.Stale {
		if _, err := s.liveStructure(ctx, doc); err != nil {
			if !errors.Is(err, apperrors.ErrStructureUnavailable) {
				return nil, err
			}
			status.Stale, status.StaleReason = true, StaleStructureUnavailable
		}
	}

	return status, nil
}

// liveStructure loads the document's structure, which must exist and be active.
func (s *completionService) liveStructure(ctx context.Context, doc *models.Document) (*models.Structure, error) {
	if doc.StructureID == nil {
		return nil, fmt.Errorf("document %d has no structure: %w", doc.ID, apperrors.ErrStructureUnavailable)
	}

	structure, err := s.structureRepo.GetByID(ctx, *doc.StructureID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("structure %d of document %d: %w", *doc.StructureID, doc.ID, apperrors.ErrStructureUnavailable)
		}
		return nil, err
	}
	if !structure.IsActive {
		return nil, fmt.Errorf("structure %d of document %d is inactive: %w", structure.ID, doc.ID, apperrors.ErrStructureUnavailable)
	}
	return structure, nil
}
