package models

// ItemType is the content type of a section item.
type ItemType string

const (
	ItemTypeText        ItemType = "text"
	ItemTypeTextarea    ItemType = "textarea"
	ItemTypeRichText    ItemType = "rich_text"
	ItemTypeMarkdown    ItemType = "markdown"
	ItemTypeNumber      ItemType = "number"
	ItemTypeDate        ItemType = "date"
	ItemTypeSelect      ItemType = "select"
	ItemTypeMultiSelect ItemType = "multi_select"
	ItemTypeCheckbox    ItemType = "checkbox"
	ItemTypeURL         ItemType = "url"
	ItemTypeEmail       ItemType = "email"
)

// IsTextual reports whether length rules apply to the type.
func (t ItemType) IsTextual() bool {
	switch t {
	case ItemTypeText, ItemTypeTextarea, ItemTypeRichText, ItemTypeMarkdown, ItemTypeURL, ItemTypeEmail:
		return true
	}
	return false
}

// ValidationRules are the type-specific checks captured on an item. Fields that
// do not apply to an item's type are ignored. Format is a Go time layout for
// date items and defaults to 2006-01-02. SafeContent rejects content that looks
// like an XSS or SQL injection payload.
type ValidationRules struct {
	MinLength   *int     `json:"min_length,omitempty"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Integer     bool     `json:"integer,omitempty"`
	Format      string   `json:"format,omitempty"`
	After       string   `json:"after,omitempty"`
	Before      string   `json:"before,omitempty"`
	Options     []string `json:"options,omitempty"`
	MinSelected *int     `json:"min_selected,omitempty"`
	MaxSelected *int     `json:"max_selected,omitempty"`
	SafeContent bool     `json:"safe_content,omitempty"`
}

// DateLayout returns the configured date layout or the ISO date default.
func (r ValidationRules) DateLayout() string {
	if r.Format == "" {
		return "2006-01-02"
	}
	return r.Format
}
