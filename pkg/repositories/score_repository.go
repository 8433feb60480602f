package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/database"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// ScoreComputeFunc turns a user's raw signals into a score and the reconciled
// cached score of each owned document.
type ScoreComputeFunc func(signals *models.ScoreSignals) (*models.UserScore, []models.DocumentScore, error)

// ScoreRepository defines data access for user scores.
type ScoreRepository interface {
	// Recompute loads the user's signals, calls compute and stores the result in
	// one transaction. The user_scores row is only written when a value changed,
	// so the returned row keeps its previous calculated_at on an unchanged rerun.
	Recompute(ctx context.Context, userID int64, compute ScoreComputeFunc) (*models.UserScore, error)
	GetByUserID(ctx context.Context, userID int64) (*models.UserScore, error)
}

type scoreRepository struct{}

var _ ScoreRepository = (*scoreRepository)(nil)

// NewScoreRepository creates a new score repository.
func NewScoreRepository() ScoreRepository {
	return &scoreRepository{}
}

const scoreColumns = `
	user_id, docs_written_score, reviews_score, engagement_score, penalty_score,
	total_score, grade, calculated_at`

func scanScore(row pgx.Row) (*models.UserScore, error) {
	var s models.UserScore
	err := row.Scan(
		&s.UserID,
		&s.DocsWrittenScore,
		&s.ReviewsScore,
		&s.EngagementScore,
		&s.PenaltyScore,
		&s.TotalScore,
		&s.Grade,
		&s.CalculatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scoreRepository) Recompute(ctx context.Context, userID int64, compute ScoreComputeFunc) (*models.UserScore, error) {
	var stored *models.UserScore
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		signals, err := loadSignals(ctx, tx, userID)
		if err != nil {
			return err
		}

		score, docs, err := compute(signals)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO user_scores
				(user_id, docs_written_score, reviews_score, engagement_score, penalty_score,
				 total_score, grade, calculated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (user_id) DO UPDATE
			SET docs_written_score = EXCLUDED.docs_written_score,
			    reviews_score = EXCLUDED.reviews_score,
			    engagement_score = EXCLUDED.engagement_score,
			    penalty_score = EXCLUDED.penalty_score,
			    total_score = EXCLUDED.total_score,
			    grade = EXCLUDED.grade,
			    calculated_at = EXCLUDED.calculated_at
			WHERE (user_scores.docs_written_score, user_scores.reviews_score,
			       user_scores.engagement_score, user_scores.penalty_score,
			       user_scores.total_score, user_scores.grade)
			  IS DISTINCT FROM
			      (EXCLUDED.docs_written_score, EXCLUDED.reviews_score,
			       EXCLUDED.engagement_score, EXCLUDED.penalty_score,
			       EXCLUDED.total_score, EXCLUDED.grade)`,
			score.UserID,
			score.DocsWrittenScore,
			score.ReviewsScore,
			score.EngagementScore,
			score.PenaltyScore,
			score.TotalScore,
			score.Grade,
			score.CalculatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store user score: %w", err)
		}

		if len(docs) > 0 {
			batch := &pgx.Batch{}
			for _, d := range docs {
				batch.Queue(`
					UPDATE documents SET total_score = $2
					WHERE id = $1 AND total_score <> $2`, d.DocumentID, d.TotalScore)
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to reconcile document scores: %w", err)
			}
		}

		stored, err = scanScore(tx.QueryRow(ctx,
			`SELECT `+scoreColumns+` FROM user_scores WHERE user_id = $1`, userID))
		if err != nil {
			return fmt.Errorf("failed to read user score: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func loadSignals(ctx context.Context, tx pgx.Tx, userID int64) (*models.ScoreSignals, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("user %d: %w", userID, apperrors.ErrNotFound)
	}

	signals := &models.ScoreSignals{UserID: userID}

	rows, err := tx.Query(ctx, `
		SELECT d.id, d.status, d.completeness_percentage, d.view_count, d.reaction_count,
		       d.total_score,
		       (SELECT COALESCE(SUM(p.penalty_score), 0)
		        FROM document_penalties p
		        WHERE p.document_id = d.id AND NOT p.is_resolved)
		FROM documents d
		WHERE d.owner_id = $1
		ORDER BY d.id
		FOR UPDATE OF d`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owned documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.OwnedDocument
		if err := rows.Scan(
			&d.ID,
			&d.Status,
			&d.CompletenessPercentage,
			&d.ViewCount,
			&d.ReactionCount,
			&d.TotalScore,
			&d.UnresolvedPenalties,
		); err != nil {
			return nil, fmt.Errorf("failed to scan owned document: %w", err)
		}
		signals.Documents = append(signals.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owned documents: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(score), 0) FROM review_scores WHERE reviewer_id = $1),
			(SELECT COUNT(*) FROM document_comments WHERE user_id = $1),
			(SELECT COUNT(*) FROM document_reactions WHERE user_id = $1)`, userID).Scan(
		&signals.ReviewScoreTotal,
		&signals.CommentsAuthored,
		&signals.ReactionsGiven,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity signals: %w", err)
	}
	return signals, nil
}

func (r *scoreRepository) GetByUserID(ctx context.Context, userID int64) (*models.UserScore, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	s, err := scanScore(scope.Conn.QueryRow(ctx,
		`SELECT `+scoreColumns+` FROM user_scores WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("score for user %d: %w", userID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user score: %w", err)
	}
	return s, nil
}
