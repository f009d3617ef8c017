package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpetranov/coopsched/pkg/models"
)

type nopLogger struct{}

func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}

// blockingExecutor parks every attempt until release is closed.
func blockingExecutor(release <-chan struct{}) Executor {
	return func(ctx context.Context, ec *ExecContext) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func newTickTestScheduler(t *testing.T, cfg models.SchedulerConfig, release <-chan struct{}) *Scheduler {
	t.Helper()
	s := New(cfg, nopLogger{}, WithDriver(NewManualDriver()))
	require.NoError(t, s.RegisterExecutor("block", blockingExecutor(release)))
	return s
}

func add(t *testing.T, s *Scheduler, id string, p models.Priority, deps ...string) {
	t.Helper()
	_, err := s.AddTask(models.TaskConfig{ID: id, Type: "block", Priority: p, Dependencies: deps})
	require.NoError(t, err)
}

func runningIDs(s *Scheduler) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]bool, len(s.running))
	for id := range s.running {
		ids[id] = true
	}
	return ids
}

func TestTick_HighIsExemptFromTickBudget(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.SchedulerConfig{
		MaxTasksPerTick: 1,
		FrameBudget:     time.Hour,
		MaxConcurrent:   10,
	}, release)

	add(t, s, "h1", models.PriorityHigh)
	add(t, s, "h2", models.PriorityHigh)
	add(t, s, "h3", models.PriorityHigh)
	add(t, s, "n1", models.PriorityNormal)
	add(t, s, "n2", models.PriorityNormal)

	s.tick()

	running := runningIDs(s)
	assert.True(t, running["h1"] && running["h2"] && running["h3"], "all HIGH tasks dispatch in one tick")
	assert.Len(t, running, 4, "exactly one NORMAL task joins under the count ceiling")
}

func TestTick_CountCeilingAppliesPerTick(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.SchedulerConfig{
		MaxTasksPerTick: 2,
		FrameBudget:     time.Hour,
		MaxConcurrent:   10,
	}, release)

	for _, id := range []string{"n1", "n2", "n3", "l1"} {
		p := models.PriorityNormal
		if id == "l1" {
			p = models.PriorityLow
		}
		add(t, s, id, p)
	}

	s.tick()
	assert.Len(t, runningIDs(s), 2)

	s.tick()
	assert.Len(t, runningIDs(s), 4, "remaining tasks dispatch on the next tick")
}

func TestTick_SpentBudgetDispatchesOneBudgetedTask(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	// A nanosecond budget is always spent after the first dispatch, so each
	// tick moves exactly one NORMAL/LOW task.
	s := newTickTestScheduler(t, models.SchedulerConfig{
		MaxTasksPerTick: 100,
		FrameBudget:     time.Nanosecond,
		MaxConcurrent:   10,
	}, release)

	add(t, s, "n1", models.PriorityNormal)
	add(t, s, "n2", models.PriorityNormal)
	add(t, s, "n3", models.PriorityNormal)

	s.tick()
	assert.Len(t, runningIDs(s), 1)
	s.tick()
	assert.Len(t, runningIDs(s), 2)
	s.tick()
	assert.Len(t, runningIDs(s), 3)
}

func TestTick_ConcurrencyCeilingBoundsHigh(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.SchedulerConfig{
		MaxTasksPerTick: 10,
		FrameBudget:     time.Hour,
		MaxConcurrent:   2,
	}, release)

	add(t, s, "h1", models.PriorityHigh)
	add(t, s, "h2", models.PriorityHigh)
	add(t, s, "h3", models.PriorityHigh)

	s.tick()
	assert.Len(t, runningIDs(s), 2)

	s.mu.Lock()
	queued := s.ready.depth(models.PriorityHigh)
	s.mu.Unlock()
	assert.Equal(t, 1, queued)
}

func TestTick_HighDrainsBeforeNormalBeforeLow(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.SchedulerConfig{
		MaxTasksPerTick: 10,
		FrameBudget:     time.Hour,
		MaxConcurrent:   2,
	}, release)

	// Admission order deliberately inverted.
	add(t, s, "l1", models.PriorityLow)
	add(t, s, "n1", models.PriorityNormal)
	add(t, s, "h1", models.PriorityHigh)

	s.tick()
	running := runningIDs(s)
	assert.True(t, running["h1"])
	assert.True(t, running["n1"])
	assert.False(t, running["l1"], "LOW waits while the ceiling is full")
}

func TestInheritPriority_PromotesQueuedDependencyIntoNewBucket(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.DefaultSchedulerConfig(), release)

	add(t, s, "dep", models.PriorityNormal)
	add(t, s, "urgent", models.PriorityHigh, "dep")

	s.mu.Lock()
	dep := s.tasks["dep"]
	assert.Equal(t, models.PriorityHigh, dep.priority)
	assert.Equal(t, 1, s.ready.depth(models.PriorityHigh))
	assert.Equal(t, 0, s.ready.depth(models.PriorityNormal))
	_, blocked := s.blocked["urgent"]
	s.mu.Unlock()
	assert.True(t, blocked)
}

func TestInheritPriority_CascadesDownTheChain(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.DefaultSchedulerConfig(), release)

	add(t, s, "c", models.PriorityLow)
	add(t, s, "b", models.PriorityLow, "c")
	add(t, s, "a", models.PriorityHigh, "b")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, models.PriorityHigh, s.tasks["b"].priority)
	assert.Equal(t, models.PriorityHigh, s.tasks["c"].priority)
}

func TestInheritPriority_NeverDemotes(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.DefaultSchedulerConfig(), release)

	add(t, s, "dep", models.PriorityHigh)
	add(t, s, "low", models.PriorityLow, "dep")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, models.PriorityHigh, s.tasks["dep"].priority)
}

func TestSweep_EvictsOnlyPastRetention(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cfg := models.DefaultSchedulerConfig()
	cfg.RetentionPeriod = time.Minute
	s := newTickTestScheduler(t, cfg, release)

	add(t, s, "done", models.PriorityNormal)
	finished := time.Now()
	s.mu.Lock()
	done := s.tasks["done"]
	done.status = models.CompletedTaskStatus
	done.result = "ok"
	done.finishedAt = &finished
	s.ready.remove(done)
	s.mu.Unlock()

	assert.Equal(t, 0, s.sweep(finished.Add(cfg.RetentionPeriod)))
	_, _, ok := s.TaskResult("done")
	assert.True(t, ok, "still queryable within the retention window")

	assert.Equal(t, 1, s.sweep(finished.Add(cfg.RetentionPeriod+time.Millisecond)))
	_, found := s.TaskStatus("done")
	assert.False(t, found, "evicted after the retention window")
}

func TestInheritPriority_DependencyAdmittedAfterDependent(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.DefaultSchedulerConfig(), release)

	add(t, s, "urgent", models.PriorityHigh, "dep")
	add(t, s, "dep", models.PriorityLow)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, models.PriorityHigh, s.tasks["dep"].priority)
	assert.Equal(t, 1, s.ready.depth(models.PriorityHigh))
	assert.Equal(t, 0, s.ready.depth(models.PriorityLow))
}

func TestInheritPriority_LateDependencyCascadesIntoItsOwnChain(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := newTickTestScheduler(t, models.DefaultSchedulerConfig(), release)

	add(t, s, "leaf", models.PriorityLow)
	add(t, s, "urgent", models.PriorityHigh, "mid")
	add(t, s, "mid", models.PriorityLow, "leaf")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, models.PriorityHigh, s.tasks["mid"].priority)
	assert.Equal(t, models.PriorityHigh, s.tasks["leaf"].priority)
}

func TestSweep_EvictedDependencyDoesNotStrandDependent(t *testing.T) {
	releaseB := make(chan struct{})
	s := New(models.DefaultSchedulerConfig(), nopLogger{}, WithDriver(NewManualDriver()))
	require.NoError(t, s.RegisterExecutor("instant", func(ctx context.Context, ec *ExecContext) (any, error) {
		return nil, nil
	}))
	require.NoError(t, s.RegisterExecutor("gated", blockingExecutor(releaseB)))

	_, err := s.AddTask(models.TaskConfig{ID: "a", Type: "instant"})
	require.NoError(t, err)
	_, err = s.AddTask(models.TaskConfig{ID: "b", Type: "gated"})
	require.NoError(t, err)
	_, err = s.AddTask(models.TaskConfig{ID: "c", Type: "instant", Dependencies: []string{"a", "b"}})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		st, _ := s.TaskStatus("a")
		return st == models.CompletedTaskStatus
	}, time.Second, 2*time.Millisecond)

	// a's record is evicted while b is still running.
	require.Equal(t, 1, s.sweep(time.Now().Add(time.Hour)))
	_, found := s.TaskStatus("a")
	require.False(t, found)

	close(releaseB)
	require.Eventually(t, func() bool {
		st, _ := s.TaskStatus("c")
		return st == models.CompletedTaskStatus
	}, time.Second, 2*time.Millisecond, "c wakes once both dependencies completed, even after a's eviction")
	assert.Equal(t, 0, s.Stats().Blocked)
}

func TestAddTask_DuplicateDependencyIDsCountOnce(t *testing.T) {
	s := New(models.DefaultSchedulerConfig(), nopLogger{}, WithDriver(NewManualDriver()))
	require.NoError(t, s.RegisterExecutor("instant", func(ctx context.Context, ec *ExecContext) (any, error) {
		return nil, nil
	}))

	_, err := s.AddTask(models.TaskConfig{ID: "dep", Type: "instant"})
	require.NoError(t, err)
	_, err = s.AddTask(models.TaskConfig{ID: "w", Type: "instant", Dependencies: []string{"dep", "dep"}})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		st, _ := s.TaskStatus("w")
		return st == models.CompletedTaskStatus
	}, time.Second, 2*time.Millisecond)
}

func TestSweep_RemovesResidualGraphEntries(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cfg := models.DefaultSchedulerConfig()
	s := newTickTestScheduler(t, cfg, release)

	add(t, s, "dep", models.PriorityNormal)
	add(t, s, "waiter", models.PriorityNormal, "dep")

	finished := time.Now()
	s.mu.Lock()
	dep := s.tasks["dep"]
	dep.status = models.FailedTaskStatus
	dep.failure = ErrTimeout
	dep.finishedAt = &finished
	s.ready.remove(dep)
	s.mu.Unlock()

	assert.Equal(t, 1, s.sweep(finished.Add(cfg.RetentionPeriod+time.Second)))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.graph.dependents, "residual adjacency entries are dropped")
	_, stillBlocked := s.blocked["waiter"]
	assert.True(t, stillBlocked, "fail-closed: the dependent stays blocked")
}

func TestRetryDelay_LinearIsConstant(t *testing.T) {
	base := 50 * time.Millisecond
	for attempts := 1; attempts <= 4; attempts++ {
		assert.Equal(t, base, retryDelay(models.LinearRetry, base, attempts))
	}
}

func TestRetryDelay_ExponentialDoublesExactly(t *testing.T) {
	base := 50 * time.Millisecond
	assert.Equal(t, base, retryDelay(models.ExponentialRetry, base, 1))
	assert.Equal(t, 2*base, retryDelay(models.ExponentialRetry, base, 2))
	assert.Equal(t, 4*base, retryDelay(models.ExponentialRetry, base, 3))
	assert.Equal(t, 8*base, retryDelay(models.ExponentialRetry, base, 4))
}

func TestBudgetExhausted_ReflectsTickAge(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cfg := models.DefaultSchedulerConfig()
	cfg.FrameBudget = 10 * time.Millisecond
	s := newTickTestScheduler(t, cfg, release)

	assert.False(t, s.budgetExhausted(), "no tick has happened yet")

	s.tick()
	assert.False(t, s.budgetExhausted())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, s.budgetExhausted())
}
