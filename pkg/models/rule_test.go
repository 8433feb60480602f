package models

import "testing"

func TestConditionType_IsValid(t *testing.T) {
	tests := []struct {
		condition ConditionType
		expected  bool
	}{
		{ConditionDaysInactive, true},
		{ConditionJiraClosed, true},
		{ConditionBranchMerged, true},
		{ConditionLinkBroken, true},
		{ConditionSchemaChanged, true},
		{ConditionType(""), false},
		{ConditionType("days_idle"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.condition), func(t *testing.T) {
			if got := tt.condition.IsValid(); got != tt.expected {
				t.Errorf("ConditionType(%q).IsValid() = %v, want %v", tt.condition, got, tt.expected)
			}
		})
	}
}

func TestSortRulesForEvaluation(t *testing.T) {
	rules := []OutdatedRule{
		{ID: 4, Priority: 1},
		{ID: 2, Priority: 5},
		{ID: 3, Priority: 5},
		{ID: 1, Priority: 1},
		{ID: 5, Priority: 10},
	}

	SortRulesForEvaluation(rules)

	want := []int64{5, 2, 3, 1, 4}
	for i, id := range want {
		if rules[i].ID != id {
			t.Fatalf("position %d: got rule %d, want %d (order %v)", i, rules[i].ID, id, ruleIDs(rules))
		}
	}
}

func ruleIDs(rules []OutdatedRule) []int64 {
	ids := make([]int64, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}
