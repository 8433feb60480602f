package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	DocumentStatusDraft         DocumentStatus = "draft"
	DocumentStatusPendingReview DocumentStatus = "pending_review"
	DocumentStatusPublished     DocumentStatus = "published"
	DocumentStatusCompleted     DocumentStatus = "completed"
	DocumentStatusStale         DocumentStatus = "stale"
	DocumentStatusArchived      DocumentStatus = "archived"
)

// IsValid reports whether s is a known status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusPendingReview, DocumentStatusPublished,
		DocumentStatusCompleted, DocumentStatusStale, DocumentStatusArchived:
		return true
	}
	return false
}

// documentTransitions lists the statuses each status may move to.
var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusDraft:         {DocumentStatusPendingReview, DocumentStatusArchived},
	DocumentStatusPendingReview: {DocumentStatusDraft, DocumentStatusPublished, DocumentStatusArchived},
	DocumentStatusPublished:     {DocumentStatusCompleted, DocumentStatusStale, DocumentStatusDraft, DocumentStatusArchived},
	DocumentStatusCompleted:     {DocumentStatusStale, DocumentStatusArchived},
	DocumentStatusStale:         {DocumentStatusDraft, DocumentStatusPendingReview, DocumentStatusArchived},
	DocumentStatusArchived:      {DocumentStatusDraft},
}

// CanTransitionTo reports whether a document in status s may move to next.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, allowed := range documentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ApprovalStatus tracks review approval independently of the lifecycle status.
type ApprovalStatus string

const (
	ApprovalNotSubmitted ApprovalStatus = "not_submitted"
	ApprovalPending      ApprovalStatus = "pending"
	ApprovalApproved     ApprovalStatus = "approved"
	ApprovalRejected     ApprovalStatus = "rejected"
)

// Document is an instance of a Structure owned by a user.
// TotalScore, CompletenessPercentage and the counters are cached derived values.
type Document struct {
	ID                      int64           `json:"id"`
	StructureID             *int64          `json:"structure_id,omitempty"`
	OwnerID                 int64           `json:"owner_id"`
	Title                   string          `json:"title"`
	Status                  DocumentStatus  `json:"status"`
	ApprovalStatus          ApprovalStatus  `json:"approval_status"`
	TotalScore              decimal.Decimal `json:"total_score"`
	CompletenessPercentage  decimal.Decimal `json:"completeness_percentage"`
	CompletenessEvaluatedAt *time.Time      `json:"completeness_evaluated_at,omitempty"`
	ViewCount               int             `json:"view_count"`
	CommentCount            int             `json:"comment_count"`
	ReactionCount           int             `json:"reaction_count"`
	LockVersion             int64           `json:"lock_version"`
	LastActivityAt          *time.Time      `json:"last_activity_at,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// LastActivity returns the last recorded activity, falling back to the last update.
func (d *Document) LastActivity() time.Time {
	if d.LastActivityAt != nil {
		return *d.LastActivityAt
	}
	return d.UpdatedAt
}

// DocumentSection is one instance of a StructureSection within a document.
type DocumentSection struct {
	ID                 int64                 `json:"id"`
	DocumentID         int64                 `json:"document_id"`
	StructureSectionID int64                 `json:"structure_section_id"`
	InstanceNumber     int                   `json:"instance_number"`
	IsComplete         bool                  `json:"is_complete"`
	Items              []DocumentSectionItem `json:"items"`
}

// DocumentSectionItem holds the content of one field. Type, IsRequired and
// ValidationRules were copied from the template when the item was created.
type DocumentSectionItem struct {
	ID                     int64           `json:"id"`
	DocumentSectionID      int64           `json:"document_section_id"`
	StructureSectionItemID int64           `json:"structure_section_item_id"`
	Type                   ItemType        `json:"type"`
	IsRequired             bool            `json:"is_required"`
	ValidationRules        ValidationRules `json:"validation_rules"`
	Content                string          `json:"content"`
	IsValid                bool            `json:"is_valid"`
	ValidationErrors       []string        `json:"validation_errors"`
	LastEditedBy           *int64          `json:"last_edited_by,omitempty"`
	LastEditedAt           *time.Time      `json:"last_edited_at,omitempty"`
}

// DocumentTree is a document with its full section and item tree.
type DocumentTree struct {
	Document Document          `json:"document"`
	Sections []DocumentSection `json:"sections"`
}

// InstancesOf returns the sections instantiated from the given structure section,
// in instance order as loaded.
func (t *DocumentTree) InstancesOf(structureSectionID int64) []*DocumentSection {
	var out []*DocumentSection
	for i := range t.Sections {
		if t.Sections[i].StructureSectionID == structureSectionID {
			out = append(out, &t.Sections[i])
		}
	}
	return out
}

// NewDocument carries the fields needed to create a document. Without a
// StructureID the current default structure of CategoryID is used.
type NewDocument struct {
	StructureID int64  `json:"structure_id,omitempty"`
	CategoryID  int64  `json:"category_id,omitempty"`
	OwnerID     int64  `json:"owner_id"`
	Title       string `json:"title"`
}

// StatusChange is a request to move a document to another lifecycle status.
type StatusChange struct {
	DocumentID          int64          `json:"document_id"`
	Status              DocumentStatus `json:"status"`
	ExpectedLockVersion int64          `json:"expected_lock_version"`
}

// ApprovalAfter returns the approval status a document carries after moving
// from one lifecycle status to another, given its current approval status.
func ApprovalAfter(from, to DocumentStatus, current ApprovalStatus) ApprovalStatus {
	switch {
	case to == DocumentStatusPendingReview:
		return ApprovalPending
	case from == DocumentStatusPendingReview && to == DocumentStatusPublished:
		return ApprovalApproved
	case from == DocumentStatusPendingReview && to == DocumentStatusDraft:
		return ApprovalRejected
	}
	return current
}
