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

// RuleRepository defines data access for outdated-document rules.
type RuleRepository interface {
	// ListActive returns active rules in evaluation order, restricted to ids when non-empty.
	ListActive(ctx context.Context, ids []int64) ([]models.OutdatedRule, error)
	List(ctx context.Context) ([]models.OutdatedRule, error)
	GetByID(ctx context.Context, id int64) (*models.OutdatedRule, error)
	Create(ctx context.Context, rule *models.OutdatedRule) error
	Update(ctx context.Context, rule *models.OutdatedRule) error
	// UpsertByName inserts the rule or updates the existing rule with the same
	// name. Returns true when a new rule was inserted.
	UpsertByName(ctx context.Context, rule *models.OutdatedRule) (bool, error)
}

type ruleRepository struct{}

var _ RuleRepository = (*ruleRepository)(nil)

// NewRuleRepository creates a new rule repository.
func NewRuleRepository() RuleRepository {
	return &ruleRepository{}
}

const ruleColumns = `
	id, name, description, condition_type, condition_params, penalty_score,
	priority, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (*models.OutdatedRule, error) {
	var rule models.OutdatedRule
	var params []byte
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.ConditionType,
		&params,
		&rule.PenaltyScore,
		&rule.Priority,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.ConditionParams = params
	return &rule, nil
}

func (r *ruleRepository) query(ctx context.Context, query string, args ...any) ([]models.OutdatedRule, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := []models.OutdatedRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func (r *ruleRepository) ListActive(ctx context.Context, ids []int64) ([]models.OutdatedRule, error) {
	if len(ids) > 0 {
		return r.query(ctx, `
			SELECT `+ruleColumns+` FROM outdated_rules
			WHERE is_active AND id = ANY($1)
			ORDER BY priority DESC, id ASC`, ids)
	}
	return r.query(ctx, `
		SELECT `+ruleColumns+` FROM outdated_rules
		WHERE is_active
		ORDER BY priority DESC, id ASC`)
}

func (r *ruleRepository) List(ctx context.Context) ([]models.OutdatedRule, error) {
	return r.query(ctx, `SELECT `+ruleColumns+` FROM outdated_rules ORDER BY priority DESC, id ASC`)
}

func (r *ruleRepository) GetByID(ctx context.Context, id int64) (*models.OutdatedRule, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, database.ErrNoScope
	}

	rule, err := scanRule(scope.Conn.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM outdated_rules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("rule %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func paramsOrEmpty(rule *models.OutdatedRule) []byte {
	if len(rule.ConditionParams) == 0 {
		return []byte("{}")
	}
	return rule.ConditionParams
}

func (r *ruleRepository) Create(ctx context.Context, rule *models.OutdatedRule) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO outdated_rules
			(name, description, condition_type, condition_params, penalty_score, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		rule.Name,
		rule.Description,
		rule.ConditionType,
		paramsOrEmpty(rule),
		rule.PenaltyScore,
		rule.Priority,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (r *ruleRepository) Update(ctx context.Context, rule *models.OutdatedRule) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return database.ErrNoScope
	}

	err := scope.Conn.QueryRow(ctx, `
		UPDATE outdated_rules
		SET name = $2, description = $3, condition_type = $4, condition_params = $5,
		    penalty_score = $6, priority = $7, is_active = $8, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.ConditionType,
		paramsOrEmpty(rule),
		rule.PenaltyScore,
		rule.Priority,
		rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("rule %d: %w", rule.ID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

func (r *ruleRepository) UpsertByName(ctx context.Context, rule *models.OutdatedRule) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, database.ErrNoScope
	}

	var inserted bool
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO outdated_rules
			(name, description, condition_type, condition_params, penalty_score, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
		    condition_type = EXCLUDED.condition_type,
		    condition_params = EXCLUDED.condition_params,
		    penalty_score = EXCLUDED.penalty_score,
		    priority = EXCLUDED.priority,
		    is_active = EXCLUDED.is_active,
		    updated_at = now()
		RETURNING id, created_at, updated_at, (xmax = 0)`,
		rule.Name,
		rule.Description,
		rule.ConditionType,
		paramsOrEmpty(rule),
		rule.PenaltyScore,
		rule.Priority,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert rule %q: %w", rule.Name, err)
	}
	return inserted, nil
}
