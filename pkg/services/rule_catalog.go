package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/database"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
)

// RuleService manages the outdated-document rule catalog.
type RuleService interface {
	ListRules(ctx context.Context) ([]models.OutdatedRule, error)
	CreateRule(ctx context.Context, rule *models.OutdatedRule) error
	UpdateRule(ctx context.Context, rule *models.OutdatedRule) error
	// ImportCatalog upserts every rule of a YAML catalog by name. Nothing is
	// written unless every rule in the catalog is valid.
	ImportCatalog(ctx context.Context, r io.Reader) (*CatalogImportResult, error)
}

// CatalogImportResult counts the rules an import touched.
type CatalogImportResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// ruleCatalog is the YAML document accepted by ImportCatalog.
type ruleCatalog struct {
	Rules []catalogRule `yaml:"rules"`
}

type catalogRule struct {
	Name            string         `yaml:"name"`
	Description     string         `yaml:"description"`
	ConditionType   string         `yaml:"condition_type"`
	ConditionParams map[string]any `yaml:"condition_params"`
	PenaltyScore    float64        `yaml:"penalty_score"`
	Priority        int            `yaml:"priority"`
	Active          *bool          `yaml:"active"`
}

type ruleService struct {
	repo    repositories.RuleRepository
	logger  *zap.Logger
	runInTx func(ctx context.Context, fn func(ctx context.Context) error) error
}

func runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.RunInTx(ctx, func(ctx context.Context, _ pgx.Tx) error {
		return fn(ctx)
	})
}

// NewRuleService creates a new rule service.
func NewRuleService(repo repositories.RuleRepository, logger *zap.Logger) RuleService {
	return &ruleService{
		repo:    repo,
		logger:  logger.Named("rules"),
		runInTx: runInTx,
	}
}

var _ RuleService = (*ruleService)(nil)

func (s *ruleService) ListRules(ctx context.Context) ([]models.OutdatedRule, error) {
	return s.repo.List(ctx)
}

func (s *ruleService) CreateRule(ctx context.Context, rule *models.OutdatedRule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return err
	}
	s.logger.Info("Rule created",
		zap.Int64("rule_id", rule.ID),
		zap.String("name", rule.Name),
		zap.String("condition_type", string(rule.ConditionType)))
	return nil
}

func (s *ruleService) UpdateRule(ctx context.Context, rule *models.OutdatedRule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, rule); err != nil {
		return err
	}
	s.logger.Info("Rule updated",
		zap.Int64("rule_id", rule.ID),
		zap.Bool("is_active", rule.IsActive))
	return nil
}

func (s *ruleService) ImportCatalog(ctx context.Context, r io.Reader) (*CatalogImportResult, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var catalog ruleCatalog
	if err := dec.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse rule catalog: %v: %w", err, apperrors.ErrInvalidInput)
	}

	rules := make([]models.OutdatedRule, 0, len(catalog.Rules))
	seen := make(map[string]bool, len(catalog.Rules))
	for i, entry := range catalog.Rules {
		rule, err := entry.toRule()
		if err == nil {
			err = ValidateRule(rule)
		}
		if err != nil {
			return nil, fmt.Errorf("catalog rule %d (%q): %w", i+1, entry.Name, err)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("catalog rule %d: duplicate name %q: %w", i+1, rule.Name, apperrors.ErrInvalidInput)
		}
		seen[rule.Name] = true
		rules = append(rules, *rule)
	}

	result := &CatalogImportResult{}
	err := s.runInTx(ctx, func(ctx context.Context) error {
		result.Inserted, result.Updated = 0, 0
		for i := range rules {
			inserted, err := s.repo.UpsertByName(ctx, &rules[i])
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Rule catalog imported",
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated))
	return result, nil
}

func (c *catalogRule) toRule() (*models.OutdatedRule, error) {
	params := c.ConditionParams
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("condition_params: %v: %w", err, apperrors.ErrInvalidInput)
	}

	active := true
	if c.Active != nil {
		active = *c.Active
	}

	return &models.OutdatedRule{
		Name:            strings.TrimSpace(c.Name),
		Description:     c.Description,
		ConditionType:   models.ConditionType(c.ConditionType),
		ConditionParams: raw,
		PenaltyScore:    decimal.NewFromFloat(c.PenaltyScore),
		Priority:        c.Priority,
		IsActive:        active,
	}, nil
}

// ValidateRule checks a rule before it is stored. Params are checked with the
// same parsing the sweep applies, so a stored rule never fails on its shape.
func ValidateRule(rule *models.OutdatedRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("rule name is required: %w", apperrors.ErrInvalidInput)
	}
	if !rule.ConditionType.IsValid() {
		return fmt.Errorf("unknown condition type %q: %w", rule.ConditionType, apperrors.ErrInvalidInput)
	}
	if rule.PenaltyScore.IsNegative() {
		return fmt.Errorf("penalty score must not be negative: %w", apperrors.ErrInvalidInput)
	}

	if len(rule.ConditionParams) == 0 {
		rule.ConditionParams = json.RawMessage(`{}`)
	}
	var params map[string]any
	if err := json.Unmarshal(rule.ConditionParams, &params); err != nil || params == nil {
		return fmt.Errorf("condition params must be a JSON object: %w", apperrors.ErrInvalidInput)
	}

	if rule.ConditionType == models.ConditionDaysInactive {
		var p models.DaysInactiveParams
		if err := json.Unmarshal(rule.ConditionParams, &p); err != nil || p.Days <= 0 {
			return fmt.Errorf("days_inactive rules need a positive integer \"days\": %w", apperrors.ErrInvalidInput)
		}
	}
	return nil
}
