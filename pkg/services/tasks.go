package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
	"github.com/moham7dreza/structured-docs-engine/pkg/services/workqueue"
)

// MaintenancePipeline is what the maintenance tasks run against. A run is a
// chain: penalty sweep, then score recompute, then leaderboard recompute, so
// each step sees the previous step's writes.
type MaintenancePipeline struct {
	Penalties   PenaltyEngine
	Scores      ScoreAggregator
	Leaderboard LeaderboardService
	Scopes      ScopeAcquirer
	Logger      *zap.Logger
}

// Start returns the first task of a pipeline run.
func (p *MaintenancePipeline) Start() workqueue.Task {
	return NewPenaltySweepTask(p)
}

// withScope runs fn on a fresh pooled connection.
func (p *MaintenancePipeline) withScope(ctx context.Context, fn func(ctx context.Context) error) error {
	scopedCtx, cleanup, err := p.Scopes.WithScope(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer cleanup()
	return fn(scopedCtx)
}

// PenaltySweepTask sweeps every active rule over every non-archived document.
type PenaltySweepTask struct {
	workqueue.BaseTask
	pipeline *MaintenancePipeline
}

// NewPenaltySweepTask creates the first step of a maintenance run.
func NewPenaltySweepTask(p *MaintenancePipeline) *PenaltySweepTask {
	return &PenaltySweepTask{
		BaseTask: workqueue.NewBaseTask("Penalty sweep", true),
		pipeline: p,
	}
}

// Execute implements workqueue.Task.
func (t *PenaltySweepTask) Execute(ctx context.Context, enqueuer workqueue.TaskEnqueuer) error {
	err := t.pipeline.withScope(ctx, func(ctx context.Context) error {
		result, err := t.pipeline.Penalties.ApplyPenaltySweep(ctx, models.SweepScope{})
		if err != nil {
			return err
		}
		t.pipeline.Logger.Info("Scheduled penalty sweep finished",
			zap.String("run_id", result.RunID.String()),
			zap.Int("applied", len(result.Applied)),
			zap.Int("skipped", len(result.Skipped)))
		return nil
	})
	if err != nil {
		return fmt.Errorf("penalty sweep: %w", err)
	}

	enqueuer.Enqueue(NewScoreRecomputeTask(t.pipeline))
	return nil
}

// ScoreRecomputeTask recomputes every user's score.
type ScoreRecomputeTask struct {
	workqueue.BaseTask
	pipeline *MaintenancePipeline
}

// NewScoreRecomputeTask creates the second step of a maintenance run.
func NewScoreRecomputeTask(p *MaintenancePipeline) *ScoreRecomputeTask {
	return &ScoreRecomputeTask{
		BaseTask: workqueue.NewBaseTask("Score recompute", true),
		pipeline: p,
	}
}

// Execute implements workqueue.Task.
func (t *ScoreRecomputeTask) Execute(ctx context.Context, enqueuer workqueue.TaskEnqueuer) error {
	err := t.pipeline.withScope(ctx, func(ctx context.Context) error {
		result, err := t.pipeline.Scores.RecomputeAll(ctx)
		if err != nil {
			return err
		}
		if len(result.FailedUserIDs) > 0 {
			t.pipeline.Logger.Warn("Scheduled score recompute left users stale",
				zap.Int64s("user_ids", result.FailedUserIDs))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("score recompute: %w", err)
	}

	enqueuer.Enqueue(NewLeaderboardRecomputeTask(t.pipeline))
	return nil
}

// LeaderboardRecomputeTask publishes a new leaderboard generation.
type LeaderboardRecomputeTask struct {
	workqueue.BaseTask
	pipeline *MaintenancePipeline
}

// NewLeaderboardRecomputeTask creates the last step of a maintenance run.
func NewLeaderboardRecomputeTask(p *MaintenancePipeline) *LeaderboardRecomputeTask {
	return &LeaderboardRecomputeTask{
		BaseTask: workqueue.NewBaseTask("Leaderboard recompute", true),
		pipeline: p,
	}
}

// Execute implements workqueue.Task.
func (t *LeaderboardRecomputeTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	err := t.pipeline.withScope(ctx, func(ctx context.Context) error {
		_, err := t.pipeline.Leaderboard.RecomputeLeaderboard(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("leaderboard recompute: %w", err)
	}
	return nil
}
