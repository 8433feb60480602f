package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/config"
	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
)

// scorePlaces is the precision every stored score is rounded to.
const scorePlaces = 2

// ScoringWeights are the multipliers the aggregator applies to raw signals.
type ScoringWeights struct {
	DocumentBasePoints     decimal.Decimal
	PublishedBonus         decimal.Decimal
	CompletedBonus         decimal.Decimal
	ReviewWeight           decimal.Decimal
	CommentWeight          decimal.Decimal
	ReactionGivenWeight    decimal.Decimal
	ReactionReceivedWeight decimal.Decimal
	ViewWeight             decimal.Decimal
}

// WeightsFromConfig converts configured weights to decimals.
func WeightsFromConfig(c config.ScoringConfig) ScoringWeights {
	return ScoringWeights{
		DocumentBasePoints:     decimal.NewFromFloat(c.DocumentBasePoints),
		PublishedBonus:         decimal.NewFromFloat(c.PublishedBonus),
		CompletedBonus:         decimal.NewFromFloat(c.CompletedBonus),
		ReviewWeight:           decimal.NewFromFloat(c.ReviewWeight),
		CommentWeight:          decimal.NewFromFloat(c.CommentWeight),
		ReactionGivenWeight:    decimal.NewFromFloat(c.ReactionGivenWeight),
		ReactionReceivedWeight: decimal.NewFromFloat(c.ReactionReceivedWeight),
		ViewWeight:             decimal.NewFromFloat(c.ViewWeight),
	}
}

// DocumentContribution is the docs-written value of one owned document.
// Archived documents contribute nothing.
func (w ScoringWeights) DocumentContribution(doc models.OwnedDocument) decimal.Decimal {
	if doc.Status == models.DocumentStatusArchived {
		return decimal.Zero
	}

	value := w.DocumentBasePoints.Mul(doc.CompletenessPercentage).Div(hundred)
	switch doc.Status {
	case models.DocumentStatusCompleted:
		value = value.Add(w.PublishedBonus).Add(w.CompletedBonus)
	case models.DocumentStatusPublished:
		value = value.Add(w.PublishedBonus)
	}
	return value
}

// ComputeScore derives a user's score and the reconciled cached score of each
// owned document from signals. It is deterministic for equal inputs.
// Negative intermediates are clamped to zero and reported as
// apperrors.ErrAggregationInconsistency.
func ComputeScore(signals *models.ScoreSignals, w ScoringWeights, now time.Time) (*models.UserScore, []models.DocumentScore, []error) {
	var issues []error
	clamp := func(name string, v decimal.Decimal) decimal.Decimal {
		if v.IsNegative() {
			issues = append(issues, fmt.Errorf("user %d: %s is %s: %w",
				signals.UserID, name, v.StringFixed(scorePlaces), apperrors.ErrAggregationInconsistency))
			return decimal.Zero
		}
		return v
	}

	docsWritten := decimal.Zero
	penalties := decimal.Zero
	var reactionsReceived, views int64
	docScores := make([]models.DocumentScore, 0, len(signals.Documents))

	for _, doc := range signals.Documents {
		contribution := clamp(fmt.Sprintf("contribution of document %d", doc.ID), w.DocumentContribution(doc))
		penalty := clamp(fmt.Sprintf("penalties of document %d", doc.ID), doc.UnresolvedPenalties)

		docsWritten = docsWritten.Add(contribution)
		penalties = penalties.Add(penalty)
		reactionsReceived += int64(doc.ReactionCount)
		views += int64(doc.ViewCount)

		docTotal := contribution.Sub(penalty)
		if docTotal.IsNegative() {
			docTotal = decimal.Zero
		}
		docScores = append(docScores, models.DocumentScore{
			DocumentID: doc.ID,
			TotalScore: docTotal.Round(scorePlaces),
		})
	}

	reviews := clamp("reviews_score", w.ReviewWeight.Mul(signals.ReviewScoreTotal))
	engagement := clamp("engagement_score", w.CommentWeight.Mul(decimal.NewFromInt(signals.CommentsAuthored)).
		Add(w.ReactionGivenWeight.Mul(decimal.NewFromInt(signals.ReactionsGiven))).
		Add(w.ReactionReceivedWeight.Mul(decimal.NewFromInt(reactionsReceived))).
		Add(w.ViewWeight.Mul(decimal.NewFromInt(views))))

	score := &models.UserScore{
		UserID:           signals.UserID,
		DocsWrittenScore: docsWritten.Round(scorePlaces),
		ReviewsScore:     reviews.Round(scorePlaces),
		EngagementScore:  engagement.Round(scorePlaces),
		PenaltyScore:     penalties.Round(scorePlaces),
		CalculatedAt:     now,
	}
	score.TotalScore = clamp("total_score", score.DocsWrittenScore.
		Add(score.ReviewsScore).
		Add(score.EngagementScore).
		Sub(score.PenaltyScore))
	score.Grade = GradeFor(score.TotalScore)

	return score, docScores, issues
}

// ScoreAggregator recomputes user scores from activity.
type ScoreAggregator interface {
	// RecomputeScore recomputes one user's score. Running it twice on unchanged
	// data leaves the stored row identical.
	RecomputeScore(ctx context.Context, userID int64) (*models.UserScore, error)

	// RecomputeAll recomputes every user in ascending id order. A failing user is
	// logged and skipped.
	RecomputeAll(ctx context.Context) (*models.ScoreBatchResult, error)

	GetScore(ctx context.Context, userID int64) (*models.UserScore, error)
}

type scoreAggregator struct {
	scoreRepo repositories.ScoreRepository
	userRepo  repositories.UserRepository
	weights   ScoringWeights
	logger    *zap.Logger
	now       func() time.Time
}

// NewScoreAggregator creates a new score aggregator.
func NewScoreAggregator(
	scoreRepo repositories.ScoreRepository,
	userRepo repositories.UserRepository,
	weights ScoringWeights,
	logger *zap.Logger,
) ScoreAggregator {
	return &scoreAggregator{
		scoreRepo: scoreRepo,
		userRepo:  userRepo,
		weights:   weights,
		logger:    logger.Named("score-aggregator"),
		now:       time.Now,
	}
}

var _ ScoreAggregator = (*scoreAggregator)(nil)

func (s *scoreAggregator) RecomputeScore(ctx context.Context, userID int64) (*models.UserScore, error) {
	now := s.now().UTC()
	score, err := s.scoreRepo.Recompute(ctx, userID, func(signals *models.ScoreSignals) (*models.UserScore, []models.DocumentScore, error) {
		score, docs, issues := ComputeScore(signals, s.weights, now)
		for _, issue := range issues {
			s.logger.Warn("Aggregation inconsistency clamped",
				zap.Int64("user_id", userID),
				zap.Error(issue))
		}
		return score, docs, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("User score recomputed",
		zap.Int64("user_id", userID),
		zap.String("total_score", score.TotalScore.StringFixed(scorePlaces)),
		zap.String("grade", string(score.Grade)))
	return score, nil
}

func (s *scoreAggregator) RecomputeAll(ctx context.Context) (*models.ScoreBatchResult, error) {
	ids, err := s.userRepo.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	result := &models.ScoreBatchResult{
		Scores:        make([]models.UserScore, 0, len(ids)),
		FailedUserIDs: []int64{},
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("score batch interrupted: %w", err)
		}

		score, err := s.RecomputeScore(ctx, id)
		if err != nil {
			result.FailedUserIDs = append(result.FailedUserIDs, id)
			s.logger.Error("User score recompute failed",
				zap.Int64("user_id", id),
				logging.Error(err))
			continue
		}
		result.Scores = append(result.Scores, *score)
	}

	s.logger.Info("Score batch finished",
		zap.Int("users", len(ids)),
		zap.Int("failed", len(result.FailedUserIDs)))
	return result, nil
}

func (s *scoreAggregator) GetScore(ctx context.Context, userID int64) (*models.UserScore, error) {
	return s.scoreRepo.GetByUserID(ctx, userID)
}
