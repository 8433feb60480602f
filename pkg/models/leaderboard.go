package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RankedUser is a ranking input row.
type RankedUser struct {
	UserID     int64
	UserName   string
	TotalScore decimal.Decimal
	Grade      Grade
}

// LeaderboardEntry is one row of a leaderboard snapshot.
// RankChange is PreviousRank - Rank, or 0 when the user was not ranked before.
type LeaderboardEntry struct {
	UserID       int64           `json:"user_id"`
	UserName     string          `json:"user_name"`
	Rank         int             `json:"rank"`
	PreviousRank *int            `json:"previous_rank"`
	RankChange   int             `json:"rank_change"`
	TotalScore   decimal.Decimal `json:"total_score"`
	Grade        Grade           `json:"grade"`
}

// LeaderboardSnapshot is one generation of the leaderboard.
type LeaderboardSnapshot struct {
	ID         int64              `json:"id"`
	ComputedAt time.Time          `json:"computed_at"`
	Entries    []LeaderboardEntry `json:"entries"`
}
