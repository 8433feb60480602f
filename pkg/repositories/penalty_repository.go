package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/database"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// PenaltyRepository defines data access for document penalties.
type PenaltyRepository interface {
	// Apply inserts the penalty unless an unresolved penalty for the same
	// document and rule exists, and decrements the document's cached score by
	// the penalty when inserted. Returns false when nothing was inserted.
	Apply(ctx context.Context, penalty *models.DocumentPenalty) (bool, error)
	// UnresolvedRuleIDs returns the rules with an unresolved penalty on the document.
	UnresolvedRuleIDs(ctx context.Context, documentID int64) (map[int64]bool, error)
	ListByDocument(ctx context.Context, documentID int64) ([]models.DocumentPenalty, error)
	// Resolve marks a penalty resolved. Resolving twice returns apperrors.ErrConflict.
	Resolve(ctx context.Context, penaltyID, resolverID int64, now time.Time) (*models.DocumentPenalty, error)
}

type penaltyRepository struct{}

var _ PenaltyRepository = (*penaltyRepository)(nil)

// NewPenaltyRepository creates a new penalty repository.
func NewPenaltyRepository() PenaltyRepository {
	return &penaltyRepository{}
}

const penaltyColumns = `
	id, document_id, outdated_rule_id, penalty_score, reason, sweep_run_id,
	applied_at, is_resolved, resolved_by, resolved_at`

func scanPenalty(row pgx.Row) (*models.DocumentPenalty, error) {
	var p models.DocumentPenalty
	err := row.Scan(
		&p.ID,
		&p.DocumentID,
		&p.RuleID,
		&p.PenaltyScore,
		&p.Reason,
		&p.SweepRunID,
		&p.AppliedAt,
		&p.IsResolved,
		&p.ResolvedBy,
		&p.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *penaltyRepository) Apply(ctx context.Context, penalty *models.DocumentPenalty) (bool, error) {
	var applied bool
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO document_penalties
				(document_id, outdated_rule_id, penalty_score, reason, sweep_run_id, applied_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (document_id, outdated_rule_id) WHERE NOT is_resolved DO NOTHING
			RETURNING id`,
			penalty.DocumentID,
			penalty.RuleID,
			penalty.PenaltyScore,
			penalty.Reason,
			penalty.SweepRunID,
			penalty.AppliedAt,
		).Scan(&penalty.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to insert penalty: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE documents
			SET total_score = GREATEST(total_score - $2, 0)
			WHERE id = $1`, penalty.DocumentID, penalty.PenaltyScore); err != nil {
			return fmt.Errorf("failed to decrement document score: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *penaltyRepository) UnresolvedRuleIDs(ctx context.Context, documentID int64) (map[int64]bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT outdated_rule_id FROM document_penalties
		WHERE document_id = $1 AND NOT is_resolved`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved penalties: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan unresolved penalties: %w", err)
	}

	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *penaltyRepository) ListByDocument(ctx context.Context, documentID int64) ([]models.DocumentPenalty, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+penaltyColumns+` FROM document_penalties
		WHERE document_id = $1
		ORDER BY applied_at DESC, id DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list penalties: %w", err)
	}
	defer rows.Close()

	penalties := []models.DocumentPenalty{}
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan penalty: %w", err)
		}
		penalties = append(penalties, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating penalties: %w", err)
	}
	return penalties, nil
}

func (r *penaltyRepository) Resolve(ctx context.Context, penaltyID, resolverID int64, now time.Time) (*models.DocumentPenalty, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	p, err := scanPenalty(scope.Conn.QueryRow(ctx, `
		UPDATE document_penalties
		SET is_resolved = true, resolved_by = $2, resolved_at = $3
		WHERE id = $1 AND NOT is_resolved
		RETURNING `+penaltyColumns, penaltyID, resolverID, now))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve penalty: %w", err)
	}

	var exists bool
	if err := scope.Conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_penalties WHERE id = $1)`, penaltyID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check penalty: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("penalty %d: %w", penaltyID, apperrors.ErrNotFound)
	}
	return nil, fmt.Errorf("penalty %d already resolved: %w", penaltyID, apperrors.ErrConflict)
}
