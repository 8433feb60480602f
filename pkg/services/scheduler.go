package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/services/workqueue"
)

// Scheduler starts maintenance pipeline runs on a fixed interval.
type Scheduler struct {
	queue    *workqueue.Queue
	pipeline *MaintenancePipeline
	logger   *zap.Logger
}

// NewScheduler creates a scheduler that runs pipeline on queue.
func NewScheduler(queue *workqueue.Queue, pipeline *MaintenancePipeline, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		queue:    queue,
		pipeline: pipeline,
		logger:   logger.Named("scheduler"),
	}
}

// Run enqueues a pipeline run immediately and then on every tick. A tick is
// skipped while the previous run is still in progress. Run blocks until ctx is
// cancelled, then cancels the queue and waits for running tasks to return.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("Maintenance scheduler started", zap.Duration("interval", interval))

	s.trigger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.queue.Close()
			s.logger.Info("Maintenance scheduler stopped")
			return
		case <-ticker.C:
			s.trigger()
		}
	}
}

func (s *Scheduler) trigger() {
	if !s.queue.IsIdle() {
		s.logger.Warn("Previous maintenance run still in progress, skipping tick")
		return
	}
	s.queue.Enqueue(s.pipeline.Start())
}
