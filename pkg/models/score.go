package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Grade is the letter bucket derived from a total score.
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// UserScore is a user's rolled-up score.
type UserScore struct {
	UserID           int64           `json:"user_id"`
	DocsWrittenScore decimal.Decimal `json:"docs_written_score"`
	ReviewsScore     decimal.Decimal `json:"reviews_score"`
	EngagementScore  decimal.Decimal `json:"engagement_score"`
	PenaltyScore     decimal.Decimal `json:"penalty_score"`
	TotalScore       decimal.Decimal `json:"total_score"`
	Grade            Grade           `json:"grade"`
	CalculatedAt     time.Time       `json:"calculated_at"`
}

// SameValues reports whether two scores carry the same components and grade,
// ignoring CalculatedAt.
func (s UserScore) SameValues(o UserScore) bool {
	return s.UserID == o.UserID &&
		s.DocsWrittenScore.Equal(o.DocsWrittenScore) &&
		s.ReviewsScore.Equal(o.ReviewsScore) &&
		s.EngagementScore.Equal(o.EngagementScore) &&
		s.PenaltyScore.Equal(o.PenaltyScore) &&
		s.TotalScore.Equal(o.TotalScore) &&
		s.Grade == o.Grade
}

// OwnedDocument is the per-document input to a user's score.
type OwnedDocument struct {
	ID                     int64           `json:"id"`
	Status                 DocumentStatus  `json:"status"`
	CompletenessPercentage decimal.Decimal `json:"completeness_percentage"`
	ViewCount              int             `json:"view_count"`
	ReactionCount          int             `json:"reaction_count"`
	TotalScore             decimal.Decimal `json:"total_score"`
	UnresolvedPenalties    decimal.Decimal `json:"unresolved_penalties"`
}

// ScoreSignals are the raw activity counts a user's score is computed from.
type ScoreSignals struct {
	UserID           int64
	Documents        []OwnedDocument
	ReviewScoreTotal decimal.Decimal
	CommentsAuthored int64
	ReactionsGiven   int64
}

// DocumentScore is a reconciled cached score for one document.
type DocumentScore struct {
	DocumentID int64
	TotalScore decimal.Decimal
}

// ScoreBatchResult is the outcome of recomputing every user's score.
// FailedUserIDs lists users whose recompute failed; the batch continued past them.
type ScoreBatchResult struct {
	Scores        []UserScore `json:"scores"`
	FailedUserIDs []int64     `json:"failed_user_ids"`
}
