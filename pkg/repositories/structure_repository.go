package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/database"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// StructureRepository defines data access for categories and structure templates.
type StructureRepository interface {
	CreateCategory(ctx context.Context, category *models.Category) error
	// Create inserts a structure with its sections and items in one transaction.
	// IDs are written back into the passed structure.
	Create(ctx context.Context, structure *models.Structure) error
	GetByID(ctx context.Context, id int64) (*models.Structure, error)
	// GetDefault returns the current default structure offered for new documents
	// in a category.
	GetDefault(ctx context.Context, categoryID int64) (*models.Structure, error)
}

type structureRepository struct{}

var _ StructureRepository = (*structureRepository)(nil)

// NewStructureRepository creates a new structure repository.
func NewStructureRepository() StructureRepository {
	return &structureRepository{}
}

func (r *structureRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	query := `
		INSERT INTO categories (name, slug)
		VALUES ($1, $2)
		RETURNING id, created_at`

	if err := scope.Conn.QueryRow(ctx, query, category.Name, category.Slug).
		Scan(&category.ID, &category.CreatedAt); err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (r *structureRepository) Create(ctx context.Context, structure *models.Structure) error {
	return database.RunInTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			INSERT INTO structures (category_id, name, version, is_active, is_default)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			structure.CategoryID,
			structure.Name,
			structure.Version,
			structure.IsActive,
			structure.IsDefault,
		).Scan(&structure.ID, &structure.CreatedAt, &structure.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create structure: %w", err)
		}

		for i := range structure.Sections {
			section := &structure.Sections[i]
			section.StructureID = structure.ID

			err := tx.QueryRow(ctx, `
				INSERT INTO structure_sections
					(structure_id, name, position, is_required, is_repeatable, min_items, max_items)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id`,
				section.StructureID,
				section.Name,
				section.Position,
				section.IsRequired,
				section.IsRepeatable,
				section.MinItems,
				section.MaxItems,
			).Scan(&section.ID)
			if err != nil {
				return fmt.Errorf("failed to create section %q: %w", section.Name, err)
			}

			for j := range section.Items {
				item := &section.Items[j]
				item.StructureSectionID = section.ID

				rules, err := marshalRules(item.ValidationRules)
				if err != nil {
					return err
				}

				err = tx.QueryRow(ctx, `
					INSERT INTO structure_section_items
						(structure_section_id, name, type, position, is_required, validation_rules, default_value)
					VALUES ($1, $2, $3, $4, $5, $6, $7)
					RETURNING id`,
					item.StructureSectionID,
					item.Name,
					item.Type,
					item.Position,
					item.IsRequired,
					rules,
					item.DefaultValue,
				).Scan(&item.ID)
				if err != nil {
					return fmt.Errorf("failed to create item %q: %w", item.Name, err)
				}
			}
		}
		return nil
	})
}

func (r *structureRepository) GetByID(ctx context.Context, id int64) (*models.Structure, error) {
	return r.getOne(ctx, `
		SELECT id, category_id, name, version, is_active, is_default, created_at, updated_at
		FROM structures
		WHERE id = $1`, id)
}

func (r *structureRepository) GetDefault(ctx context.Context, categoryID int64) (*models.Structure, error) {
	return r.getOne(ctx, `
		SELECT id, category_id, name, version, is_active, is_default, created_at, updated_at
		FROM structures
		WHERE category_id = $1 AND is_default AND is_active
		ORDER BY version DESC
		LIMIT 1`, categoryID)
}

func (r *structureRepository) getOne(ctx context.Context, query string, arg int64) (*models.Structure, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	var s models.Structure
	err := scope.Conn.QueryRow(ctx, query, arg).Scan(
		&s.ID,
		&s.CategoryID,
		&s.Name,
		&s.Version,
		&s.IsActive,
		&s.IsDefault,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("structure: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get structure: %w", err)
	}

	if err := r.loadSections(ctx, scope.Conn, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *structureRepository) loadSections(ctx context.Context, q database.Querier, s *models.Structure) error {
	rows, err := q.Query(ctx, `
		SELECT id, structure_id, name, position, is_required, is_repeatable, min_items, max_items
		FROM structure_sections
		WHERE structure_id = $1
		ORDER BY position, id`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to get structure sections: %w", err)
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var sec models.StructureSection
		if err := rows.Scan(
			&sec.ID,
			&sec.StructureID,
			&sec.Name,
			&sec.Position,
			&sec.IsRequired,
			&sec.IsRepeatable,
			&sec.MinItems,
			&sec.MaxItems,
		); err != nil {
			return fmt.Errorf("failed to scan structure section: %w", err)
		}
		index[sec.ID] = len(s.Sections)
		s.Sections = append(s.Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating structure sections: %w", err)
	}

	itemRows, err := q.Query(ctx, `
		SELECT i.id, i.structure_section_id, i.name, i.type, i.position, i.is_required,
		       i.validation_rules, i.default_value
		FROM structure_section_items i
		JOIN structure_sections s ON s.id = i.structure_section_id
		WHERE s.structure_id = $1
		ORDER BY i.position, i.id`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to get structure items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item models.StructureSectionItem
		var rules []byte
		if err := itemRows.Scan(
			&item.ID,
			&item.StructureSectionID,
			&item.Name,
			&item.Type,
			&item.Position,
			&item.IsRequired,
			&rules,
			&item.DefaultValue,
		); err != nil {
			return fmt.Errorf("failed to scan structure item: %w", err)
		}
		if item.ValidationRules, err = unmarshalRules(rules); err != nil {
			return err
		}
		if i, ok := index[item.StructureSectionID]; ok {
			s.Sections[i].Items = append(s.Sections[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("error iterating structure items: %w", err)
	}
	return nil
}
