package apperrors

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrConflict                 = errors.New("conflict")
	ErrInvalidInput             = errors.New("invalid input")
	ErrStructureUnavailable     = errors.New("structure unavailable")
	ErrConcurrentModification   = errors.New("concurrent modification")
	ErrSectionLimit             = errors.New("section instance limit reached")
	ErrRuleEvaluationFailed     = errors.New("rule evaluation failed")
	ErrInvalidRuleParams        = errors.New("invalid rule params")
	ErrAggregationInconsistency = errors.New("aggregation inconsistency")
)
