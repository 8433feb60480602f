package models

import (
	"encoding/json"
	"time"
)

// DocumentChange is an append-only record of one item edit.
type DocumentChange struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	ItemID     int64     `json:"item_id"`
	UserID     int64     `json:"user_id"`
	OldContent string    `json:"old_content"`
	NewContent string    `json:"new_content"`
	Diff       string    `json:"diff"`
	LineNumber int       `json:"line_number"`
	CreatedAt  time.Time `json:"created_at"`
}

// ItemEdit is a request to change one item's content.
// ExpectedLockVersion must match the document's current lock version.
type ItemEdit struct {
	DocumentID          int64  `json:"document_id"`
	ItemID              int64  `json:"item_id"`
	EditorID            int64  `json:"editor_id"`
	Content             string `json:"content"`
	ExpectedLockVersion int64  `json:"expected_lock_version"`
}

// DocumentVersion is an immutable snapshot of a document's content tree.
type DocumentVersion struct {
	ID         int64           `json:"id"`
	DocumentID int64           `json:"document_id"`
	Version    int             `json:"version"`
	IsMajor    bool            `json:"is_major"`
	Summary    string          `json:"summary"`
	Snapshot   json.RawMessage `json:"snapshot"`
	CreatedBy  int64           `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ItemUpdateResult is the outcome of an item edit. Change is nil when the
// content was unchanged. Completion is nil when the document could not be
// re-evaluated after the edit.
type ItemUpdateResult struct {
	LockVersion int64             `json:"lock_version"`
	Change      *DocumentChange   `json:"change,omitempty"`
	Completion  *CompletionResult `json:"completion,omitempty"`
}

// NewVersion carries the fields needed to snapshot a document.
type NewVersion struct {
	DocumentID int64  `json:"document_id"`
	CreatedBy  int64  `json:"created_by"`
	IsMajor    bool   `json:"is_major"`
	Summary    string `json:"summary"`
}
