package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/database"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// DocumentRepository defines data access for documents and their content trees.
// Every mutating method runs in one transaction and is guarded by the document's
// lock version: a mismatch returns apperrors.ErrConcurrentModification.
type DocumentRepository interface {
	// Create inserts the document with its sections and items and writes the
	// generated ids back into tree.
	Create(ctx context.Context, tree *models.DocumentTree) error
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	GetTree(ctx context.Context, id int64) (*models.DocumentTree, error)
	// ListForSweep returns non-archived documents in ascending id order,
	// restricted to ids when non-empty.
	ListForSweep(ctx context.Context, ids []int64) ([]models.Document, error)
	// UpdateStatus sets the lifecycle and approval status and bumps the lock
	// version. Returns the new lock version.
	UpdateStatus(ctx context.Context, change models.StatusChange, approval models.ApprovalStatus, now time.Time) (int64, error)

	// UpdateItemContent writes new content, records the change and bumps the
	// lock version. Returns the new lock version.
	UpdateItemContent(ctx context.Context, edit models.ItemEdit, change *models.DocumentChange, now time.Time) (int64, error)
	// AddSection appends a new instance of a repeatable section with the given items.
	AddSection(ctx context.Context, documentID, expectedLockVersion int64, section *models.DocumentSection, now time.Time) (int64, error)
	RemoveSection(ctx context.Context, documentID, sectionID, expectedLockVersion int64, now time.Time) (int64, error)

	// SaveCompletion stores evaluation results if the document is still at
	// expectedLockVersion. The lock version is not bumped.
	SaveCompletion(ctx context.Context, result *models.CompletionResult, expectedLockVersion int64) error

	ListChanges(ctx context.Context, documentID int64, limit int) ([]models.DocumentChange, error)
	// CreateVersion stores a snapshot under the next version number.
	CreateVersion(ctx context.Context, version *models.DocumentVersion) error
	ListVersions(ctx context.Context, documentID int64) ([]models.DocumentVersion, error)
}

type documentRepository struct{}

var _ DocumentRepository = (*documentRepository)(nil)

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository() DocumentRepository {
	return &documentRepository{}
}

const documentColumns = `
	id, structure_id, owner_id, title, status, approval_status, total_score,
	completeness_percentage, completeness_evaluated_at, view_count, comment_count,
	reaction_count, lock_version, last_activity_at, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID,
		&d.StructureID,
		&d.OwnerID,
		&d.Title,
		&d.Status,
		&d.ApprovalStatus,
		&d.TotalScore,
		&d.CompletenessPercentage,
		&d.CompletenessEvaluatedAt,
		&d.ViewCount,
		&d.CommentCount,
		&d.ReactionCount,
		&d.LockVersion,
		&d.LastActivityAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *documentRepository) Create(ctx context.Context, tree *models.DocumentTree) error {
	return database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		created, err := scanDocument(tx.QueryRow(ctx, `
			INSERT INTO documents (structure_id, owner_id, title, status, approval_status, last_activity_at)
			VALUES ($1, $2, $3, $4, $5, now())
			RETURNING `+documentColumns,
			tree.Document.StructureID,
			tree.Document.OwnerID,
			tree.Document.Title,
			models.DocumentStatusDraft,
			models.ApprovalNotSubmitted,
		))
		if err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		tree.Document = *created

		for i := range tree.Sections {
			if err := insertSection(ctx, tx, created.ID, &tree.Sections[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertSection(ctx context.Context, tx pgx.Tx, documentID int64, section *models.DocumentSection) error {
	section.DocumentID = documentID
	err := tx.QueryRow(ctx, `
		INSERT INTO document_sections (document_id, structure_section_id, instance_number)
		VALUES ($1, $2, $3)
		RETURNING id`,
		section.DocumentID,
		section.StructureSectionID,
		section.InstanceNumber,
	).Scan(&section.ID)
	if err != nil {
		return fmt.Errorf("failed to create document section: %w", err)
	}

	for j := range section.Items {
		item := &section.Items[j]
		item.DocumentSectionID = section.ID

		rules, err := marshalRules(item.ValidationRules)
		if err != nil {
			return err
		}
		validationErrors, err := marshalErrors(item.ValidationErrors)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO document_section_items
				(document_section_id, structure_section_item_id, type, is_required,
				 validation_rules, content, is_valid, validation_errors)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			item.DocumentSectionID,
			item.StructureSectionItemID,
			item.Type,
			item.IsRequired,
			rules,
			item.Content,
			item.IsValid,
			validationErrors,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create document item: %w", err)
		}
	}
	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	doc, err := scanDocument(scope.Conn.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (r *documentRepository) GetTree(ctx context.Context, id int64) (*models.DocumentTree, error) {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	scope, _ := database.GetScope(ctx)
	tree := &models.DocumentTree{Document: *doc}

	rows, err := scope.Conn.Query(ctx, `
		SELECT ds.id, ds.document_id, ds.structure_section_id, ds.instance_number, ds.is_complete
		FROM document_sections ds
		JOIN structure_sections ss ON ss.id = ds.structure_section_id
		WHERE ds.document_id = $1
		ORDER BY ss.position, ss.id, ds.instance_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document sections: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var s models.DocumentSection
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.StructureSectionID, &s.InstanceNumber, &s.IsComplete); err != nil {
			return nil, fmt.Errorf("failed to scan document section: %w", err)
		}
		index[s.ID] = len(tree.Sections)
		tree.Sections = append(tree.Sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document sections: %w", err)
	}

	itemRows, err := scope.Conn.Query(ctx, `
		SELECT i.id, i.document_section_id, i.structure_section_item_id, i.type, i.is_required,
		       i.validation_rules, i.content, i.is_valid, i.validation_errors,
		       i.last_edited_by, i.last_edited_at
		FROM document_section_items i
		JOIN document_sections ds ON ds.id = i.document_section_id
		JOIN structure_section_items si ON si.id = i.structure_section_item_id
		WHERE ds.document_id = $1
		ORDER BY si.position, si.id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item models.DocumentSectionItem
		var rules, validationErrors []byte
		if err := itemRows.Scan(
			&item.ID,
			&item.DocumentSectionID,
			&item.StructureSectionItemID,
			&item.Type,
			&item.IsRequired,
			&rules,
			&item.Content,
			&item.IsValid,
			&validationErrors,
			&item.LastEditedBy,
			&item.LastEditedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document item: %w", err)
		}
		if item.ValidationRules, err = unmarshalRules(rules); err != nil {
			return nil, err
		}
		if item.ValidationErrors, err = unmarshalErrors(validationErrors); err != nil {
			return nil, err
		}
		if i, ok := index[item.DocumentSectionID]; ok {
			tree.Sections[i].Items = append(tree.Sections[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document items: %w", err)
	}

	return tree, nil
}

func (r *documentRepository) ListForSweep(ctx context.Context, ids []int64) ([]models.Document, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE status <> 'archived'`
	args := []any{}
	if len(ids) > 0 {
		query += ` AND id = ANY($1)`
		args = append(args, ids)
	}
	query += ` ORDER BY id`

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, change models.StatusChange, approval models.ApprovalStatus, now time.Time) (int64, error) {
	var next int64
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE documents
			SET status = $3, approval_status = $4, lock_version = lock_version + 1,
				updated_at = $5, last_activity_at = $5
			WHERE id = $1 AND lock_version = $2
			RETURNING lock_version`,
			change.DocumentID, change.ExpectedLockVersion, change.Status, approval, now).Scan(&next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to update document status: %w", err)
		}
		return lockFailure(ctx, tx, change.DocumentID, change.ExpectedLockVersion)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// bumpLockVersion advances the document's lock version when it still equals
// expected. It distinguishes a missing document from a stale version.
func bumpLockVersion(ctx context.Context, tx pgx.Tx, documentID, expected int64, now time.Time) (int64, error) {
	var next int64
	err := tx.QueryRow(ctx, `
		UPDATE documents
		SET lock_version = lock_version + 1, updated_at = $3, last_activity_at = $3
		WHERE id = $1 AND lock_version = $2
		RETURNING lock_version`, documentID, expected, now).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to lock document: %w", err)
	}
	return 0, lockFailure(ctx, tx, documentID, expected)
}

func lockFailure(ctx context.Context, q database.Querier, documentID, expected int64) error {
	var current int64
	err := q.QueryRow(ctx, `SELECT lock_version FROM documents WHERE id = $1`, documentID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("document %d: %w", documentID, apperrors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read lock version: %w", err)
	}
	return fmt.Errorf("document %d at version %d, expected %d: %w",
		documentID, current, expected, apperrors.ErrConcurrentModification)
}

func (r *documentRepository) UpdateItemContent(ctx context.Context, edit models.ItemEdit, change *models.DocumentChange, now time.Time) (int64, error) {
	var next int64
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if next, err = bumpLockVersion(ctx, tx, edit.DocumentID, edit.ExpectedLockVersion, now); err != nil {
			return err
		}

		result, err := tx.Exec(ctx, `
			UPDATE document_section_items i
			SET content = $3, last_edited_by = $4, last_edited_at = $5
			FROM document_sections ds
			WHERE i.id = $1 AND ds.id = i.document_section_id AND ds.document_id = $2`,
			edit.ItemID, edit.DocumentID, edit.Content, edit.EditorID, now)
		if err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("item %d in document %d: %w", edit.ItemID, edit.DocumentID, apperrors.ErrNotFound)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO document_changes
				(document_id, document_section_item_id, user_id, old_content, new_content, diff, line_number, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			change.DocumentID,
			change.ItemID,
			change.UserID,
			change.OldContent,
			change.NewContent,
			change.Diff,
			change.LineNumber,
			now,
		).Scan(&change.ID)
		if err != nil {
			return fmt.Errorf("failed to record change: %w", err)
		}
		change.CreatedAt = now
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *documentRepository) AddSection(ctx context.Context, documentID, expectedLockVersion int64, section *models.DocumentSection, now time.Time) (int64, error) {
	var next int64
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if next, err = bumpLockVersion(ctx, tx, documentID, expectedLockVersion, now); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(instance_number), 0) + 1
			FROM document_sections
			WHERE document_id = $1 AND structure_section_id = $2`,
			documentID, section.StructureSectionID).Scan(&section.InstanceNumber)
		if err != nil {
			return fmt.Errorf("failed to number section instance: %w", err)
		}

		return insertSection(ctx, tx, documentID, section)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *documentRepository) RemoveSection(ctx context.Context, documentID, sectionID, expectedLockVersion int64, now time.Time) (int64, error) {
	var next int64
	err := database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if next, err = bumpLockVersion(ctx, tx, documentID, expectedLockVersion, now); err != nil {
			return err
		}

		result, err := tx.Exec(ctx,
			`DELETE FROM document_sections WHERE id = $1 AND document_id = $2`, sectionID, documentID)
		if err != nil {
			return fmt.Errorf("failed to remove section: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("section %d in document %d: %w", sectionID, documentID, apperrors.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *documentRepository) SaveCompletion(ctx context.Context, result *models.CompletionResult, expectedLockVersion int64) error {
	return database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE documents
			SET completeness_percentage = $3, completeness_evaluated_at = $4
			WHERE id = $1 AND lock_version = $2`,
			result.DocumentID,
			expectedLockVersion,
			result.CompletenessPercentage,
			result.EvaluatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store completeness: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return lockFailure(ctx, tx, result.DocumentID, expectedLockVersion)
		}

		batch := &pgx.Batch{}
		for _, item := range result.Items {
			validationErrors, err := marshalErrors(item.ValidationErrors)
			if err != nil {
				return err
			}
			batch.Queue(`
				UPDATE document_section_items
				SET is_valid = $2, validation_errors = $3
				WHERE id = $1`, item.ItemID, item.IsValid, validationErrors)
		}
		for _, section := range result.Sections {
			batch.Queue(`UPDATE document_sections SET is_complete = $2 WHERE id = $1`,
				section.SectionID, section.IsComplete)
		}
		if batch.Len() == 0 {
			return nil
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to store validation results: %w", err)
		}
		return nil
	})
}

func (r *documentRepository) ListChanges(ctx context.Context, documentID int64, limit int) ([]models.DocumentChange, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, document_id, document_section_item_id, user_id, old_content, new_content,
		       diff, line_number, created_at
		FROM document_changes
		WHERE document_id = $1
		ORDER BY id DESC
		LIMIT $2`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()

	changes := []models.DocumentChange{}
	for rows.Next() {
		var c models.DocumentChange
		if err := rows.Scan(
			&c.ID,
			&c.DocumentID,
			&c.ItemID,
			&c.UserID,
			&c.OldContent,
			&c.NewContent,
			&c.Diff,
			&c.LineNumber,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}
	return changes, nil
}

func (r *documentRepository) CreateVersion(ctx context.Context, version *models.DocumentVersion) error {
	return database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// Serializes version numbering per document.
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, version.DocumentID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("document %d: %w", version.DocumentID, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock document: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO document_versions (document_id, version, is_major, summary, snapshot, created_by)
			SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, $4, $5
			FROM document_versions
			WHERE document_id = $1
			RETURNING id, version, created_at`,
			version.DocumentID,
			version.IsMajor,
			version.Summary,
			[]byte(version.Snapshot),
			version.CreatedBy,
		).Scan(&version.ID, &version.Version, &version.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create version: %w", err)
		}
		return nil
	})
}

func (r *documentRepository) ListVersions(ctx context.Context, documentID int64) ([]models.DocumentVersion, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, document_id, version, is_major, summary, snapshot, created_by, created_at
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := []models.DocumentVersion{}
	for rows.Next() {
		var v models.DocumentVersion
		var snapshot []byte
		if err := rows.Scan(
			&v.ID,
			&v.DocumentID,
			&v.Version,
			&v.IsMajor,
			&v.Summary,
			&snapshot,
			&v.CreatedBy,
			&v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.Snapshot = json.RawMessage(snapshot)
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}
	return versions, nil
}
