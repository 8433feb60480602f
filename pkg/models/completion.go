package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemResult is the validation outcome for one item.
type ItemResult struct {
	ItemID           int64    `json:"item_id"`
	IsValid          bool     `json:"is_valid"`
	ValidationErrors []string `json:"validation_errors"`
}

// SectionResult is the completeness outcome for one section instance.
type SectionResult struct {
	SectionID          int64 `json:"section_id"`
	StructureSectionID int64 `json:"structure_section_id"`
	InstanceNumber     int   `json:"instance_number"`
	IsComplete         bool  `json:"is_complete"`
}

// CompletionResult is the output of evaluating a document.
type CompletionResult struct {
	DocumentID             int64           `json:"document_id"`
	CompletenessPercentage decimal.Decimal `json:"completeness_percentage"`
	Sections               []SectionResult `json:"sections"`
	Items                  []ItemResult    `json:"items"`
	EvaluatedAt            time.Time       `json:"evaluated_at"`
}

// CompletionStatus is the last stored completeness of a document.
// Stale is set when the value may no longer reflect the content.
type CompletionStatus struct {
	DocumentID             int64           `json:"document_id"`
	CompletenessPercentage decimal.Decimal `json:"completeness_percentage"`
	EvaluatedAt            *time.Time      `json:"evaluated_at,omitempty"`
	Stale                  bool            `json:"stale"`
	StaleReason            string          `json:"stale_reason,omitempty"`
}
