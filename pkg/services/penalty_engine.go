package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moham7dreza/structured-docs-engine/pkg/apperrors"
	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
)

// ScopeAcquirer gives a goroutine its own database connection.
// *database.ScopeProvider satisfies it.
type ScopeAcquirer interface {
	WithScope(ctx context.Context) (context.Context, func(), error)
}

// PenaltyEngine applies outdated rules to documents.
type PenaltyEngine interface {
	// ApplyPenaltySweep evaluates the active rules of scope against every
	// document in scope. A rule already applied and unresolved on a document is
	// not applied again. Rule failures are recorded as skipped and never abort
	// the sweep.
	ApplyPenaltySweep(ctx context.Context, scope models.SweepScope) (*models.SweepResult, error)

	ListPenalties(ctx context.Context, documentID int64) ([]models.DocumentPenalty, error)

	// ResolvePenalty marks a penalty resolved. Resolving twice returns apperrors.ErrConflict.
	ResolvePenalty(ctx context.Context, penaltyID, resolverID int64) (*models.DocumentPenalty, error)
}

// PenaltyEngineConfig bounds sweep execution.
type PenaltyEngineConfig struct {
	Concurrency int
	RuleTimeout time.Duration
}

type penaltyEngine struct {
	ruleRepo    repositories.RuleRepository
	docRepo     repositories.DocumentRepository
	penaltyRepo repositories.PenaltyRepository
	registry    *ConditionRegistry
	scopes      ScopeAcquirer
	cfg         PenaltyEngineConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewPenaltyEngine creates a new penalty engine.
func NewPenaltyEngine(
	ruleRepo repositories.RuleRepository,
	docRepo repositories.DocumentRepository,
	penaltyRepo repositories.PenaltyRepository,
	registry *ConditionRegistry,
	scopes ScopeAcquirer,
	cfg PenaltyEngineConfig,
	logger *zap.Logger,
) PenaltyEngine {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &penaltyEngine{
		ruleRepo:    ruleRepo,
		docRepo:     docRepo,
		penaltyRepo: penaltyRepo,
		registry:    registry,
		scopes:      scopes,
		cfg:         cfg,
		logger:      logger.Named("penalty-engine"),
		now:         time.Now,
	}
}

var _ PenaltyEngine = (*penaltyEngine)(nil)

// documentSweep is the outcome for one document.
type documentSweep struct {
	applied   []models.DocumentPenalty
	skipped   []models.SkippedRule
	evaluated int
}

func (e *penaltyEngine) ApplyPenaltySweep(ctx context.Context, scope models.SweepScope) (*models.SweepResult, error) {
	result := &models.SweepResult{
		RunID:     uuid.New(),
		Applied:   []models.DocumentPenalty{},
		Skipped:   []models.SkippedRule{},
		StartedAt: e.now().UTC(),
	}

	rules, err := e.ruleRepo.ListActive(ctx, scope.RuleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	models.SortRulesForEvaluation(rules)

	docs, err := e.docRepo.ListForSweep(ctx, scope.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	result.DocumentsChecked = len(docs)

	logger := e.logger.With(zap.String("run_id", result.RunID.String()))
	logger.Info("Penalty sweep started",
		zap.Int("rules", len(rules)),
		zap.Int("documents", len(docs)),
		zap.Int("concurrency", e.cfg.Concurrency))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	for i := range docs {
		doc := &docs[i]
		if len(rules) == 0 || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := e.sweepDocument(ctx, result.RunID, doc, rules)

			mu.Lock()
			defer mu.Unlock()
			if out != nil {
				result.Applied = append(result.Applied, out.applied...)
				result.Skipped = append(result.Skipped, out.skipped...)
				result.RulesEvaluated += out.evaluated
			}
			if err != nil {
				result.DocumentsFailed++
				logger.Error("Document sweep failed",
					zap.Int64("document_id", doc.ID),
					logging.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("penalty sweep interrupted: %w", err)
	}

	sort.SliceStable(result.Applied, func(i, j int) bool {
		return result.Applied[i].DocumentID < result.Applied[j].DocumentID
	})
	sort.SliceStable(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].DocumentID < result.Skipped[j].DocumentID
	})
	result.FinishedAt = e.now().UTC()

	logger.Info("Penalty sweep finished",
		zap.Int("applied", len(result.Applied)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("rules_evaluated", result.RulesEvaluated),
		zap.Int("documents_failed", result.DocumentsFailed),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))

	return result, nil
}

// sweepDocument evaluates rules in order against one document on its own
// connection. A returned error means the document could not be processed; the
// partial outcome is still returned.
func (e *penaltyEngine) sweepDocument(ctx context.Context, runID uuid.UUID, doc *models.Document, rules []models.OutdatedRule) (*documentSweep, error) {
	out := &documentSweep{}

	docCtx, cleanup, err := e.scopes.WithScope(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer cleanup()

	applied, err := e.penaltyRepo.UnresolvedRuleIDs(docCtx, doc.ID)
	if err != nil {
		return out, err
	}

	for i := range rules {
		rule := &rules[i]
		if applied[rule.ID] {
			continue
		}

		checker, ok := e.registry.Checker(rule.ConditionType)
		if !ok {
			out.skipped = append(out.skipped, models.SkippedRule{
				DocumentID: doc.ID,
				RuleID:     rule.ID,
				Reason:     fmt.Sprintf("no checker configured for %s", rule.ConditionType),
			})
			continue
		}

		ruleCtx, cancel := context.WithTimeout(docCtx, e.cfg.RuleTimeout)
		verdict, err := checker.Evaluate(ruleCtx, doc, rule)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.skipped = append(out.skipped, models.SkippedRule{
				DocumentID: doc.ID,
				RuleID:     rule.ID,
				Reason:     skipReason(err),
			})
			e.logger.Warn("Rule skipped",
				zap.String("run_id", runID.String()),
				zap.Int64("document_id", doc.ID),
				zap.Int64("rule_id", rule.ID),
				logging.Error(err))
			continue
		}
		out.evaluated++

		if !verdict.Triggered {
			continue
		}

		penalty := &models.DocumentPenalty{
			DocumentID:   doc.ID,
			RuleID:       rule.ID,
			PenaltyScore: rule.PenaltyScore,
			Reason:       penaltyReason(rule, verdict.Reason),
			SweepRunID:   &runID,
			AppliedAt:    e.now().UTC(),
		}
		inserted, err := e.penaltyRepo.Apply(docCtx, penalty)
		if err != nil {
			return out, fmt.Errorf("failed to apply rule %d: %w", rule.ID, err)
		}
		if inserted {
			out.applied = append(out.applied, *penalty)
			e.logger.Info("Penalty applied",
				zap.String("run_id", runID.String()),
				zap.Int64("document_id", doc.ID),
				zap.Int64("rule_id", rule.ID),
				zap.String("penalty_score", rule.PenaltyScore.String()))
		}
	}
	return out, nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "rule evaluation timed out"
	case errors.Is(err, apperrors.ErrInvalidRuleParams):
		return "invalid condition params: " + logging.SanitizeError(err)
	default:
		return logging.SanitizeError(err)
	}
}

func penaltyReason(rule *models.OutdatedRule, evidence string) string {
	base := rule.Description
	if base == "" {
		base = rule.Name
	}
	if evidence == "" {
		return base
	}
	return base + ": " + evidence
}

func (e *penaltyEngine) ListPenalties(ctx context.Context, documentID int64) ([]models.DocumentPenalty, error) {
	if _, err := e.docRepo.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return e.penaltyRepo.ListByDocument(ctx, documentID)
}

func (e *penaltyEngine) ResolvePenalty(ctx context.Context, penaltyID, resolverID int64) (*models.DocumentPenalty, error) {
	penalty, err := e.penaltyRepo.Resolve(ctx, penaltyID, resolverID, e.now().UTC())
	if err != nil {
		return nil, err
	}

	e.logger.Info("Penalty resolved",
		zap.Int64("penalty_id", penaltyID),
		zap.Int64("document_id", penalty.DocumentID),
		zap.Int64("resolved_by", resolverID))
	return penalty, nil
}
