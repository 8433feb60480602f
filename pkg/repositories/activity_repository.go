package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/database"
)

// ActivityRepository records the engagement signals scores are computed from.
// Each method also maintains the matching cached counter on the document.
type ActivityRepository interface {
	AddComment(ctx context.Context, documentID, userID int64, body string) (int64, error)
	// AddReaction returns false when the user already left this kind of reaction.
	AddReaction(ctx context.Context, documentID, userID int64, kind string) (bool, error)
	AddReview(ctx context.Context, documentID, reviewerID int64, score decimal.Decimal) (int64, error)
	RecordView(ctx context.Context, documentID int64) error
}

type activityRepository struct{}

var _ ActivityRepository = (*activityRepository)(nil)

// NewActivityRepository creates a new activity repository.
func NewActivityRepository() ActivityRepository {
	return &activityRepository{}
}

func touchDocument(ctx context.Context, tx pgx.Tx, documentID int64, set string) error {
	result, err := tx.Exec(ctx, `UPDATE documents SET `+set+` WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to update document counters: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", documentID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *activityRepository) AddComment(ctx context.Context, documentID, userID int64, body string) (int64, error) {
	var id int64
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := touchDocument(ctx, tx, documentID,
			"comment_count = comment_count + 1, last_activity_at = now()"); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO document_comments (document_id, user_id, body)
			VALUES ($1, $2, $3)
			RETURNING id`, documentID, userID, body).Scan(&id); err != nil {
			return fmt.Errorf("failed to add comment: %w", err)
		}
		return nil
	})
	return id, err
}

func (r *activityRepository) AddReaction(ctx context.Context, documentID, userID int64, kind string) (bool, error) {
	var added bool
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO document_reactions (document_id, user_id, kind)
			VALUES ($1, $2, $3)
			ON CONFLICT (document_id, user_id, kind) DO NOTHING
			RETURNING id`, documentID, userID, kind).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to add reaction: %w", err)
		}
		added = true
		return touchDocument(ctx, tx, documentID, "reaction_count = reaction_count + 1")
	})
	return added, err
}

func (r *activityRepository) AddReview(ctx context.Context, documentID, reviewerID int64, score decimal.Decimal) (int64, error) {
	var id int64
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := touchDocument(ctx, tx, documentID, "last_activity_at = now()"); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO review_scores (document_id, reviewer_id, score)
			VALUES ($1, $2, $3)
			RETURNING id`, documentID, reviewerID, score).Scan(&id); err != nil {
			return fmt.Errorf("failed to add review: %w", err)
		}
		return nil
	})
	return id, err
}

func (r *activityRepository) RecordView(ctx context.Context, documentID int64) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE documents SET view_count = view_count + 1 WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", documentID, apperrors.ErrNotFound)
	}
	return nil
}
