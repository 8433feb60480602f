package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/collaborators"
	"github.com/moham7dreza/structured-docs-engine/pkg/config"
	"github.com/moham7dreza/structured-docs-engine/pkg/database"
	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
	"github.com/moham7dreza/structured-docs-engine/pkg/repositories"
	"github.com/moham7dreza/structured-docs-engine/pkg/services"
)

// app holds the connections and services shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db     *database.DB
	redis  *redis.Client
	scopes *database.ScopeProvider

	documents   services.DocumentService
	completion  services.CompletionService
	penalties   services.PenaltyEngine
	scores      services.ScoreAggregator
	leaderboard services.LeaderboardService
	rules       services.RuleService
	activity    services.ActivityService
}

// newApp connects to Postgres and, when configured, Redis and builds the
// service graph. Close releases the connections.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if redisClient == nil {
		logger.Info("Redis not configured, leaderboard mirror disabled")
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		scopes: database.NewScopeProvider(db),
	}

	docRepo := repositories.NewDocumentRepository()
	structureRepo := repositories.NewStructureRepository()
	ruleRepo := repositories.NewRuleRepository()
	penaltyRepo := repositories.NewPenaltyRepository()
	scoreRepo := repositories.NewScoreRepository()
	userRepo := repositories.NewUserRepository()
	leaderboardRepo := repositories.NewLeaderboardRepository()
	activityRepo := repositories.NewActivityRepository()

	collaboratorClient := collaborators.NewClient(cfg.Penalties.Collaborators.Token, logger)
	registry := services.NewDefaultConditionRegistry(cfg.Penalties, collaboratorClient)
	logCollaborators(logger, cfg.Penalties.Collaborators)

	var mirror services.LeaderboardMirror
	if redisClient != nil {
		mirror = services.NewRedisLeaderboardMirror(redisClient, cfg.Leaderboard.RedisKeyPrefix, logger)
	}

	a.completion = services.NewCompletionService(docRepo, structureRepo, logger)
	a.documents = services.NewDocumentService(docRepo, structureRepo, a.completion, logger)
	a.penalties = services.NewPenaltyEngine(ruleRepo, docRepo, penaltyRepo, registry, a.scopes,
		services.PenaltyEngineConfig{
			Concurrency: cfg.Penalties.Concurrency,
			RuleTimeout: cfg.Penalties.RuleTimeout,
		}, logger)
	a.scores = services.NewScoreAggregator(scoreRepo, userRepo, services.WeightsFromConfig(cfg.Scoring), logger)
	a.leaderboard = services.NewLeaderboardService(leaderboardRepo, mirror, cfg.Leaderboard.DefaultLimit, logger)
	a.rules = services.NewRuleService(ruleRepo, logger)
	a.activity = services.NewActivityService(activityRepo, logger)

	return a, nil
}

func logCollaborators(logger *zap.Logger, c config.CollaboratorConfig) {
	endpoints := []struct{ name, url string }{
		{"jira_closed", c.JiraClosedURL},
		{"branch_merged", c.BranchMergedURL},
		{"link_broken", c.LinkBrokenURL},
		{"schema_changed", c.SchemaChangedURL},
	}
	for _, e := range endpoints {
		if e.url == "" {
			logger.Debug("Collaborator not configured, rules skipped", zap.String("condition", e.name))
			continue
		}
		logger.Info("Collaborator configured",
			zap.String("condition", e.name),
			zap.String("url", logging.SanitizeURL(e.url)))
	}
}

// withScope runs fn with a pooled connection bound to ctx.
func (a *app) withScope(ctx context.Context, fn func(ctx context.Context) error) error {
	scopedCtx, cleanup, err := a.scopes.WithScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer cleanup()
	return fn(scopedCtx)
}

// Close releases Redis and the database pool.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", logging.Error(err))
		}
	}
	a.db.Close()
}
