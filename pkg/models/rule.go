package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ConditionType selects the checker that evaluates a rule.
type ConditionType string

const (
	ConditionDaysInactive  ConditionType = "days_inactive"
	ConditionJiraClosed    ConditionType = "jira_closed"
	ConditionBranchMerged  ConditionType = "branch_merged"
	ConditionLinkBroken    ConditionType = "link_broken"
	ConditionSchemaChanged ConditionType = "schema_changed"
)

// ConditionTypes lists every known condition type.
var ConditionTypes = []ConditionType{
	ConditionDaysInactive,
	ConditionJiraClosed,
	ConditionBranchMerged,
	ConditionLinkBroken,
	ConditionSchemaChanged,
}

// IsValid reports whether c is a known condition type.
func (c ConditionType) IsValid() bool {
	for _, t := range ConditionTypes {
		if t == c {
			return true
		}
	}
	return false
}

// OutdatedRule is a configurable condition that penalizes documents when triggered.
// Rules are evaluated by descending Priority, then ascending ID.
type OutdatedRule struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	ConditionType   ConditionType   `json:"condition_type"`
	ConditionParams json.RawMessage `json:"condition_params"`
	PenaltyScore    decimal.Decimal `json:"penalty_score"`
	Priority        int             `json:"priority"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SortRulesForEvaluation orders rules by descending priority, then ascending id.
func SortRulesForEvaluation(rules []OutdatedRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// DaysInactiveParams are the condition params of a days_inactive rule.
type DaysInactiveParams struct {
	Days int `json:"days"`
}
