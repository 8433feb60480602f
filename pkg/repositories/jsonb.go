package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

func marshalRules(rules models.ValidationRules) ([]byte, error) {
	data, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation rules: %w", err)
	}
	return data, nil
}

func unmarshalRules(data []byte) (models.ValidationRules, error) {
	var rules models.ValidationRules
	if len(data) == 0 {
		return rules, nil
	}
	if err := json.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to unmarshal validation rules: %w", err)
	}
	return rules, nil
}

func marshalErrors(errs []string) ([]byte, error) {
	if errs == nil {
		errs = []string{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation errors: %w", err)
	}
	return data, nil
}

func unmarshalErrors(data []byte) ([]string, error) {
	errs := []string{}
	if len(data) == 0 {
		return errs, nil
	}
	if err := json.Unmarshal(data, &errs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal validation errors: %w", err)
	}
	return errs, nil
}

// numeric converts a decimal for the binary COPY protocol, which cannot
// encode driver.Valuer strings into numeric columns.
func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
