package workqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testTask struct {
	BaseTask
	executeFunc func(ctx context.Context, enqueuer TaskEnqueuer) error
}

func newTestTask(name string, exclusive bool, fn func(ctx context.Context, enqueuer TaskEnqueuer) error) *testTask {
	return &testTask{
		BaseTask:    NewBaseTask(name, exclusive),
		executeFunc: fn,
	}
}

func (t *testTask) Execute(ctx context.Context, enqueuer TaskEnqueuer) error {
	if t.executeFunc != nil {
		return t.executeFunc(ctx, enqueuer)
	}
	return nil
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func newTestQueue(t *testing.T, opts ...QueueOption) *Queue {
	t.Helper()
	q := New(zap.NewNop(), opts...)
	t.Cleanup(q.Close)
	return q
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestQueue_EmptyWaitReturnsImmediately(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Wait(waitCtx(t)))
	assert.True(t, q.IsIdle())
}

func TestQueue_EnqueueAndComplete(t *testing.T) {
	q := newTestQueue(t)

	var executed atomic.Bool
	q.Enqueue(newTestTask("evaluate", false, func(ctx context.Context, _ TaskEnqueuer) error {
		executed.Store(true)
		return nil
	}))

	require.NoError(t, q.Wait(waitCtx(t)))
	assert.True(t, executed.Load())

	tasks := q.GetTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskStatusCompleted, tasks[0].Status)
	assert.NotNil(t, tasks[0].StartedAt)
	assert.NotNil(t, tasks[0].CompletedAt)
}

func TestQueue_FollowUpJoinsBatch(t *testing.T) {
	q := newTestQueue(t)

	var order []string
	third := newTestTask("leaderboard", true, func(ctx context.Context, _ TaskEnqueuer) error {
		order = append(order, "leaderboard")
		return nil
	})
	second := newTestTask("scores", true, func(ctx context.Context, e TaskEnqueuer) error {
		order = append(order, "scores")
		e.Enqueue(third)
		return nil
	})
	q.Enqueue(newTestTask("sweep", true, func(ctx context.Context, e TaskEnqueuer) error {
		order = append(order, "sweep")
		e.Enqueue(second)
		return nil
	}))

	require.NoError(t, q.Wait(waitCtx(t)))
	assert.Equal(t, []string{"sweep", "scores", "leaderboard"}, order)
	assert.Equal(t, 3, q.Progress().Completed)
}

func TestQueue_ExclusiveTasksNeverOverlap(t *testing.T) {
	q := newTestQueue(t)

	var running, maxRunning atomic.Int32
	work := func(ctx context.Context, _ TaskEnqueuer) error {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	}
	for i := 0; i < 4; i++ {
		q.Enqueue(newTestTask("exclusive", true, work))
	}

	require.NoError(t, q.Wait(waitCtx(t)))
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestQueue_ExclusiveAndSharedOverlap(t *testing.T) {
	q := newTestQueue(t)

	sharedStarted := make(chan struct{})
	release := make(chan struct{})
	q.Enqueue(newTestTask("exclusive", true, func(ctx context.Context, _ TaskEnqueuer) error {
		<-sharedStarted
		return nil
	}))
	q.Enqueue(newTestTask("shared", false, func(ctx context.Context, _ TaskEnqueuer) error {
		close(sharedStarted)
		<-release
		return nil
	}))
	close(release)

	require.NoError(t, q.Wait(waitCtx(t)))
}

func TestQueue_BoundedStrategyRunsSharedInParallel(t *testing.T) {
	q := newTestQueue(t, WithStrategy(NewBoundedStrategy(3)))

	// Each task blocks until all three are running, so the batch only
	// finishes when they run in parallel.
	var running atomic.Int32
	gate := make(chan struct{})
	for i := 0; i < 3; i++ {
		q.Enqueue(newTestTask("shared", false, func(ctx context.Context, _ TaskEnqueuer) error {
			if running.Add(1) == 3 {
				close(gate)
			}
			select {
			case <-gate:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
	}

	require.NoError(t, q.Wait(waitCtx(t)))
	assert.Equal(t, 3, q.Progress().Completed)
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	q := newTestQueue(t, WithRetryConfig(fastRetry(3)))

	var calls atomic.Int32
	q.Enqueue(newTestTask("sweep", true, func(ctx context.Context, _ TaskEnqueuer) error {
		if calls.Add(1) < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	}))

	require.NoError(t, q.Wait(waitCtx(t)))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, q.GetTasks()[0].RetryCount)
}

func TestQueue_RetriesExhausted(t *testing.T) {
	q := newTestQueue(t, WithRetryConfig(fastRetry(2)))

	var calls atomic.Int32
	q.Enqueue(newTestTask("sweep", true, func(ctx context.Context, _ TaskEnqueuer) error {
		calls.Add(1)
		return errors.New("service unavailable")
	}))

	err := q.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, TaskStatusFailed, q.GetTasks()[0].Status)
}

func TestQueue_NonRetryableFailsImmediately(t *testing.T) {
	q := newTestQueue(t, WithRetryConfig(fastRetry(5)))

	var calls atomic.Int32
	q.Enqueue(newTestTask("scores", true, func(ctx context.Context, _ TaskEnqueuer) error {
		calls.Add(1)
		return errors.New("invalid rule params")
	}))

	err := q.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, q.Progress().Failed)
}

func TestQueue_CancelStopsRunningTasks(t *testing.T) {
	q := newTestQueue(t)

	started := make(chan struct{})
	q.Enqueue(newTestTask("long", true, func(ctx context.Context, _ TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	q.Enqueue(newTestTask("queued", true, nil))

	<-started
	q.Cancel()
	require.NoError(t, q.Wait(waitCtx(t)))

	p := q.Progress()
	assert.Equal(t, 2, p.Cancelled)
	assert.Equal(t, 100, p.Percentage())

	q.Enqueue(newTestTask("after-cancel", false, nil))
	assert.Len(t, q.GetTasks(), 2)
}

func TestQueue_NewBatchForgetsFinishedTasks(t *testing.T) {
	q := newTestQueue(t)

	q.Enqueue(newTestTask("first", false, nil))
	require.NoError(t, q.Wait(waitCtx(t)))

	q.Enqueue(newTestTask("second", false, nil))
	require.NoError(t, q.Wait(waitCtx(t)))

	tasks := q.GetTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "second", tasks[0].Name)
}

func TestQueue_CalculateBackoffCapped(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(RetryConfig{
		MaxRetries:     10,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2,
	}))
	defer q.Close()

	first := q.calculateBackoff(1)
	assert.InDelta(t, float64(100*time.Millisecond), float64(first), float64(10*time.Millisecond))

	capped := q.calculateBackoff(10)
	assert.LessOrEqual(t, capped, 1100*time.Millisecond)
	assert.GreaterOrEqual(t, capped, 900*time.Millisecond)
}

func TestProgress_Percentage(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want int
	}{
		{"empty", Progress{}, 100},
		{"half", Progress{Total: 4, Completed: 1, Failed: 1, Running: 2}, 50},
		{"all done", Progress{Total: 3, Completed: 2, Cancelled: 1}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Percentage())
		})
	}
}
