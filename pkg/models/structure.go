package models

import "time"

// Category groups structures. Each category offers at most one current default structure.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// Structure is a versioned document template. Older versions stay readable for
// documents created from them.
type Structure struct {
	ID         int64              `json:"id"`
	CategoryID int64              `json:"category_id"`
	Name       string             `json:"name"`
	Version    int                `json:"version"`
	IsActive   bool               `json:"is_active"`
	IsDefault  bool               `json:"is_default"`
	Sections   []StructureSection `json:"sections,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Section returns the section with the given id.
func (s *Structure) Section(id int64) (*StructureSection, bool) {
	for i := range s.Sections {
		if s.Sections[i].ID == id {
			return &s.Sections[i], true
		}
	}
	return nil, false
}

// StructureSection is an ordered section definition. MinItems and MaxItems only
// apply when the section is repeatable.
type StructureSection struct {
	ID           int64                  `json:"id"`
	StructureID  int64                  `json:"structure_id"`
	Name         string                 `json:"name"`
	Position     int                    `json:"position"`
	IsRequired   bool                   `json:"is_required"`
	IsRepeatable bool                   `json:"is_repeatable"`
	MinItems     *int                   `json:"min_items,omitempty"`
	MaxItems     *int                   `json:"max_items,omitempty"`
	Items        []StructureSectionItem `json:"items,omitempty"`
}

// MinInstances is the number of instances a document must hold for the section
// to be complete. Non-repeatable sections always have exactly one.
func (s *StructureSection) MinInstances() int {
	if !s.IsRepeatable || s.MinItems == nil || *s.MinItems < 1 {
		return 1
	}
	return *s.MinItems
}

// MaxInstances is the upper bound on instances. Zero means unbounded.
func (s *StructureSection) MaxInstances() int {
	if !s.IsRepeatable {
		return 1
	}
	if s.MaxItems == nil {
		return 0
	}
	return *s.MaxItems
}

// AllowsMore reports whether another instance may be added to a section that
// currently has count instances.
func (s *StructureSection) AllowsMore(count int) bool {
	limit := s.MaxInstances()
	return limit == 0 || count < limit
}

// Item returns the item definition with the given id.
func (s *StructureSection) Item(id int64) (*StructureSectionItem, bool) {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i], true
		}
	}
	return nil, false
}

// StructureSectionItem is a field definition within a section.
type StructureSectionItem struct {
	ID                 int64           `json:"id"`
	StructureSectionID int64           `json:"structure_section_id"`
	Name               string          `json:"name"`
	Type               ItemType        `json:"type"`
	Position           int             `json:"position"`
	IsRequired         bool            `json:"is_required"`
	ValidationRules    ValidationRules `json:"validation_rules"`
	DefaultValue       *string         `json:"default_value,omitempty"`
}
