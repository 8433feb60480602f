package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jinzhu/inflection"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/collaborators"
	"github.com/moham7dreza/structured-docs-engine/pkg/config"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/retry"
)

// TriggerResult is a checker's verdict for one rule against one document.
type TriggerResult struct {
	Triggered bool
	Reason    string
}

// ConditionChecker evaluates one kind of condition.
type ConditionChecker interface {
	Evaluate(ctx context.Context, doc *models.Document, rule *models.OutdatedRule) (*TriggerResult, error)
}

// CollaboratorClient asks an external system for a verdict.
type CollaboratorClient interface {
	Check(ctx context.Context, endpoint string, req *collaborators.CheckRequest) (*collaborators.CheckResponse, error)
}

// ConditionRegistry maps condition types to their checkers. Types without a
// checker are skipped during sweeps.
type ConditionRegistry struct {
	checkers map[models.ConditionType]ConditionChecker
}

// NewConditionRegistry creates an empty registry.
func NewConditionRegistry() *ConditionRegistry {
	return &ConditionRegistry{checkers: make(map[models.ConditionType]ConditionChecker)}
}

// NewDefaultConditionRegistry registers the in-process days_inactive checker and
// a collaborator checker for every configured endpoint.
func NewDefaultConditionRegistry(cfg config.PenaltyConfig, client CollaboratorClient) *ConditionRegistry {
	r := NewConditionRegistry()
	r.Register(models.ConditionDaysInactive, NewDaysInactiveChecker(time.Now))

	retryCfg := retry.DefaultConfig().WithMaxRetries(cfg.MaxRetries)
	endpoints := map[models.ConditionType]string{
		models.ConditionJiraClosed:    cfg.Collaborators.JiraClosedURL,
		models.ConditionBranchMerged:  cfg.Collaborators.BranchMergedURL,
		models.ConditionLinkBroken:    cfg.Collaborators.LinkBrokenURL,
		models.ConditionSchemaChanged: cfg.Collaborators.SchemaChangedURL,
	}
	for kind, endpoint := range endpoints {
		if endpoint != "" {
			r.Register(kind, NewCollaboratorChecker(client, endpoint, retryCfg))
		}
	}
	return r
}

// Register sets the checker for kind, replacing any previous one.
func (r *ConditionRegistry) Register(kind models.ConditionType, checker ConditionChecker) {
	r.checkers[kind] = checker
}

// Checker returns the checker for kind.
func (r *ConditionRegistry) Checker(kind models.ConditionType) (ConditionChecker, bool) {
	c, ok := r.checkers[kind]
	return c, ok
}

type daysInactiveChecker struct {
	now func() time.Time
}

// NewDaysInactiveChecker triggers when a document has had no activity for at
// least the rule's number of days.
func NewDaysInactiveChecker(now func() time.Time) ConditionChecker {
	return &daysInactiveChecker{now: now}
}

func (c *daysInactiveChecker) Evaluate(_ context.Context, doc *models.Document, rule *models.OutdatedRule) (*TriggerResult, error) {
	var params models.DaysInactiveParams
	if err := json.Unmarshal(rule.ConditionParams, &params); err != nil {
		return nil, fmt.Errorf("rule %d: %w: %w", rule.ID, err, apperrors.ErrInvalidRuleParams)
	}
	if params.Days <= 0 {
		return nil, fmt.Errorf("rule %d: days must be positive: %w", rule.ID, apperrors.ErrInvalidRuleParams)
	}

	idle := c.now().Sub(doc.LastActivity())
	if idle < time.Duration(params.Days)*24*time.Hour {
		return &TriggerResult{}, nil
	}

	return &TriggerResult{
		Triggered: true,
		Reason: fmt.Sprintf("no activity for %s (threshold %s)",
			pluralize(int(idle.Hours()/24), "day"), pluralize(params.Days, "day")),
	}, nil
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(word))
}

type collaboratorChecker struct {
	client   CollaboratorClient
	endpoint string
	retryCfg *retry.Config
}

// NewCollaboratorChecker delegates the verdict to an external collaborator,
// retrying transient failures.
func NewCollaboratorChecker(client CollaboratorClient, endpoint string, retryCfg *retry.Config) ConditionChecker {
	return &collaboratorChecker{client: client, endpoint: endpoint, retryCfg: retryCfg}
}

func (c *collaboratorChecker) Evaluate(ctx context.Context, doc *models.Document, rule *models.OutdatedRule) (*TriggerResult, error) {
	var params map[string]any
	if err := json.Unmarshal(rule.ConditionParams, &params); err != nil || params == nil {
		return nil, fmt.Errorf("rule %d: condition params must be an object: %w", rule.ID, apperrors.ErrInvalidRuleParams)
	}

	req := &collaborators.CheckRequest{
		DocumentID:     doc.ID,
		DocumentTitle:  doc.Title,
		DocumentStatus: string(doc.Status),
		LastActivityAt: doc.LastActivity(),
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		ConditionType:  string(rule.ConditionType),
		Params:         rule.ConditionParams,
	}

	var resp *collaborators.CheckResponse
	err := retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		var err error
		resp, err = c.client.Check(ctx, c.endpoint, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s check for rule %d: %w: %w", rule.ConditionType, rule.ID, err, apperrors.ErrRuleEvaluationFailed)
	}

	return &TriggerResult{Triggered: resp.Triggered, Reason: resp.Reason}, nil
}
