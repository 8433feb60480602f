package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
	"github.com/moham7dreza/structured-docs-engine/pkg/validation"
)

var reactionKindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// ActivityService records engagement on documents. These are the signals the
// score aggregator weighs; comments and reviews also count as document activity
// for inactivity rules.
type ActivityService interface {
	AddComment(ctx context.Context, documentID, userID int64, body string) (int64, error)
	// AddReaction returns false when the user already reacted with kind.
	AddReaction(ctx context.Context, documentID, userID int64, kind string) (bool, error)
	AddReview(ctx context.Context, documentID, reviewerID int64, score decimal.Decimal) (int64, error)
	RecordView(ctx context.Context, documentID int64) error
}

type activityService struct {
	repo   repositories.ActivityRepository
	logger *zap.Logger
}

// NewActivityService creates a new activity service.
func NewActivityService(repo repositories.ActivityRepository, logger *zap.Logger) ActivityService {
	return &activityService{
		repo:   repo,
		logger: logger.Named("activity"),
	}
}

var _ ActivityService = (*activityService)(nil)

func (s *activityService) AddComment(ctx context.Context, documentID, userID int64, body string) (int64, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return 0, fmt.Errorf("comment body is required: %w", apperrors.ErrInvalidInput)
	}
	if check := validation.CheckContent(body); check != nil && check.IsXSS {
		s.logger.Warn("Rejected comment with unsafe content",
			zap.Int64("document_id", documentID),
			zap.Int64("user_id", userID))
		return 0, fmt.Errorf("comment contains unsafe content: %w", apperrors.ErrInvalidInput)
	}

	id, err := s.repo.AddComment(ctx, documentID, userID, body)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Comment added",
		zap.Int64("document_id", documentID),
		zap.Int64("comment_id", id))
	return id, nil
}

func (s *activityService) AddReaction(ctx context.Context, documentID, userID int64, kind string) (bool, error) {
	if !reactionKindPattern.MatchString(kind) {
		return false, fmt.Errorf("invalid reaction kind %q: %w", kind, apperrors.ErrInvalidInput)
	}
	return s.repo.AddReaction(ctx, documentID, userID, kind)
}

func (s *activityService) AddReview(ctx context.Context, documentID, reviewerID int64, score decimal.Decimal) (int64, error) {
	if score.IsNegative() {
		return 0, fmt.Errorf("review score must not be negative: %w", apperrors.ErrInvalidInput)
	}

	id, err := s.repo.AddReview(ctx, documentID, reviewerID, score.Round(scorePlaces))
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Review recorded",
		zap.Int64("document_id", documentID),
		zap.Int64("reviewer_id", reviewerID),
		zap.String("score", score.StringFixed(scorePlaces)))
	return id, nil
}

func (s *activityService) RecordView(ctx context.Context, documentID int64) error {
	return s.repo.RecordView(ctx, documentID)
}
