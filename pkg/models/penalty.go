package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentPenalty is one application of a rule to a document. Only the
// resolution fields change after creation.
type DocumentPenalty struct {
	ID           int64           `json:"id"`
	DocumentID   int64           `json:"document_id"`
	RuleID       int64           `json:"rule_id"`
	PenaltyScore decimal.Decimal `json:"penalty_score"`
	Reason       string          `json:"reason"`
	SweepRunID   *uuid.UUID      `json:"sweep_run_id,omitempty"`
	AppliedAt    time.Time       `json:"applied_at"`
	IsResolved   bool            `json:"is_resolved"`
	ResolvedBy   *int64          `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
}

// SweepScope restricts a penalty sweep. Empty lists mean all active rules and
// all non-archived documents.
type SweepScope struct {
	RuleIDs     []int64 `json:"rule_ids,omitempty"`
	DocumentIDs []int64 `json:"document_ids,omitempty"`
}

// SkippedRule records a rule that could not be evaluated for a document in a sweep.
type SkippedRule struct {
	DocumentID int64  `json:"document_id"`
	RuleID     int64  `json:"rule_id"`
	Reason     string `json:"reason"`
}

// SweepResult summarizes a penalty sweep.
type SweepResult struct {
	RunID            uuid.UUID         `json:"run_id"`
	Applied          []DocumentPenalty `json:"applied"`
	Skipped          []SkippedRule     `json:"skipped"`
	DocumentsChecked int               `json:"documents_checked"`
	DocumentsFailed  int               `json:"documents_failed"`
	RulesEvaluated   int               `json:"rules_evaluated"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
}
