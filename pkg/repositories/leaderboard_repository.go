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

// leaderboardLockKey serializes recomputes through a transaction-level advisory lock.
const leaderboardLockKey = 7_301_001

// RankFunc builds the new leaderboard from users with a positive score and the
// ranks of the current generation keyed by user id.
type RankFunc func(users []models.RankedUser, previous map[int64]int) []models.LeaderboardEntry

// LeaderboardRepository defines data access for leaderboard snapshots.
type LeaderboardRepository interface {
	// Replace builds a new generation with rank and makes it current in one
	// transaction, deleting older generations.
	Replace(ctx context.Context, computedAt time.Time, rank RankFunc) (*models.LeaderboardSnapshot, error)
	// Current returns the current generation with at most limit entries in rank order.
	Current(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error)
}

type leaderboardRepository struct{}

var _ LeaderboardRepository = (*leaderboardRepository)(nil)

// NewLeaderboardRepository creates a new leaderboard repository.
func NewLeaderboardRepository() LeaderboardRepository {
	return &leaderboardRepository{}
}

func (r *leaderboardRepository) Replace(ctx context.Context, computedAt time.Time, rank RankFunc) (*models.LeaderboardSnapshot, error) {
	var snapshot *models.LeaderboardSnapshot
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, leaderboardLockKey); err != nil {
			return fmt.Errorf("failed to lock leaderboard: %w", err)
		}

		users, err := rankableUsers(ctx, tx)
		if err != nil {
			return err
		}
		previous, err := currentRanks(ctx, tx)
		if err != nil {
			return err
		}

		entries := rank(users, previous)

		snapshot = &models.LeaderboardSnapshot{ComputedAt: computedAt, Entries: entries}
		err = tx.QueryRow(ctx, `
			INSERT INTO leaderboard_snapshots (is_current, entry_count, computed_at)
			VALUES (false, $1, $2)
			RETURNING id`, len(entries), computedAt).Scan(&snapshot.ID)
		if err != nil {
			return fmt.Errorf("failed to create leaderboard snapshot: %w", err)
		}

		if len(entries) > 0 {
			rows := make([][]any, len(entries))
			for i, e := range entries {
				rows[i] = []any{snapshot.ID, e.UserID, e.UserName, e.Rank, e.PreviousRank, e.RankChange, numeric(e.TotalScore), string(e.Grade)}
			}
			_, err = tx.CopyFrom(ctx,
				pgx.Identifier{"leaderboard_entries"},
				[]string{"snapshot_id", "user_id", "user_name", "rank", "previous_rank", "rank_change", "total_score", "grade"},
				pgx.CopyFromRows(rows),
			)
			if err != nil {
				return fmt.Errorf("failed to write leaderboard entries: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM leaderboard_snapshots WHERE id <> $1`, snapshot.ID); err != nil {
			return fmt.Errorf("failed to drop previous leaderboard: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE leaderboard_snapshots SET is_current = true WHERE id = $1`, snapshot.ID); err != nil {
			return fmt.Errorf("failed to publish leaderboard: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func rankableUsers(ctx context.Context, tx pgx.Tx) ([]models.RankedUser, error) {
	rows, err := tx.Query(ctx, `
		SELECT s.user_id, u.name, s.total_score, s.grade
		FROM user_scores s
		JOIN users u ON u.id = s.user_id
		WHERE s.total_score > 0
		ORDER BY s.total_score DESC, s.user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to read user scores: %w", err)
	}
	defer rows.Close()

	var users []models.RankedUser
	for rows.Next() {
		var u models.RankedUser
		if err := rows.Scan(&u.UserID, &u.UserName, &u.TotalScore, &u.Grade); err != nil {
			return nil, fmt.Errorf("failed to scan user score: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user scores: %w", err)
	}
	return users, nil
}

func currentRanks(ctx context.Context, tx pgx.Tx) (map[int64]int, error) {
	rows, err := tx.Query(ctx, `
		SELECT e.user_id, e.rank
		FROM leaderboard_entries e
		JOIN leaderboard_snapshots s ON s.id = e.snapshot_id
		WHERE s.is_current`)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous ranks: %w", err)
	}
	defer rows.Close()

	ranks := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var rank int
		if err := rows.Scan(&userID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan previous rank: %w", err)
		}
		ranks[userID] = rank
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating previous ranks: %w", err)
	}
	return ranks, nil
}

func (r *leaderboardRepository) Current(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	// Snapshot and entries are read in one statement so a concurrent swap
	// cannot mix generations.
	rows, err := scope.Conn.Query(ctx, `
		SELECT s.id, s.computed_at, e.user_id, e.user_name, e.rank, e.previous_rank,
		       e.rank_change, e.total_score, e.grade
		FROM leaderboard_snapshots s
		JOIN leaderboard_entries e ON e.snapshot_id = s.id
		WHERE s.is_current
		ORDER BY e.rank
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	defer rows.Close()

	var snapshot *models.LeaderboardSnapshot
	for rows.Next() {
		var (
			id         int64
			computedAt time.Time
			e          models.LeaderboardEntry
		)
		if err := rows.Scan(
			&id,
			&computedAt,
			&e.UserID,
			&e.UserName,
			&e.Rank,
			&e.PreviousRank,
			&e.RankChange,
			&e.TotalScore,
			&e.Grade,
		); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		if snapshot == nil {
			snapshot = &models.LeaderboardSnapshot{ID: id, ComputedAt: computedAt}
		}
		snapshot.Entries = append(snapshot.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	if snapshot != nil {
		return snapshot, nil
	}

	// An empty generation has no entry rows to join.
	snapshot = &models.LeaderboardSnapshot{Entries: []models.LeaderboardEntry{}}
	err = scope.Conn.QueryRow(ctx,
		`SELECT id, computed_at FROM leaderboard_snapshots WHERE is_current`).
		Scan(&snapshot.ID, &snapshot.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("leaderboard: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return snapshot, nil
}
