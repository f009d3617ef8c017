package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/dpetranov/coopsched/pkg/models"
)

type attemptResult struct {
	value any
	err   error
}

// dispatchLocked moves a queued task into the running set and launches its
// attempt goroutine. Caller holds the mutex and has already popped t from
// its bucket; the returned started event must be emitted after unlocking.
func (s *Scheduler) dispatchLocked(t *task, delta time.Duration) Event {
	now := time.Now()
	t.status = models.RunningTaskStatus
	if t.startedAt == nil {
		started := now
		t.startedAt = &started
	}
	t.lastDispatch = now
	t.attempts++
	t.attempt++
	s.running[t.id] = t
	s.stats.recordWait(now.Sub(t.enqueuedAt))

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	ec := &ExecContext{
		taskID:        t.id,
		taskType:      t.taskType,
		data:          t.data,
		interruptible: t.interruptible,
		delta:         delta,
		s:             s,
		attempt:       t.attempt,
	}
	go s.runAttempt(t.id, t.attempt, s.executors[t.taskType], ctx, cancel, ec, t.timeout)

	return Event{Type: EventTaskStarted, TaskID: t.id, TaskType: t.taskType, Priority: t.priority, Time: now}
}

// runAttempt races the executor against its timeout and the cancel handle.
// The executor body runs in its own goroutine and is never preempted; losing
// the race only means the scheduler stops waiting for it.
func (s *Scheduler) runAttempt(id string, attempt uint64, fn Executor, ctx context.Context, cancel context.CancelFunc, ec *ExecContext, timeout time.Duration) {
	defer cancel()

	resCh := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- attemptResult{err: errors.Errorf("executor panic: %v", r)}
			}
		}()
		value, err := fn(ctx, ec)
		resCh <- attemptResult{value: value, err: err}
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case r := <-resCh:
		if r.err != nil {
			s.handleFailure(id, attempt, r.err)
		} else {
			s.handleCompletion(id, attempt, r.value)
		}
	case <-timeoutCh:
		cancel()
		s.handleFailure(id, attempt, errors.Wrapf(ErrTimeout, "after %s", timeout))
	case <-ctx.Done():
		// Cancelled by the scheduler; CancelTask or Clear already did the
		// bookkeeping and invalidated this attempt.
	}
}

// handleCompletion finalizes a successful attempt, records the result, and
// wakes dependents whose dependency sets are now fully COMPLETED.
func (s *Scheduler) handleCompletion(id string, attempt uint64, value any) {
	now := time.Now()
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.status != models.RunningTaskStatus || t.attempt != attempt {
		s.mu.Unlock()
		return
	}
	t.status = models.CompletedTaskStatus
	t.result = value
	t.finishedAt = &now
	t.cancel = nil
	delete(s.running, id)
	s.stats.completed++
	s.stats.recordExec(now.Sub(t.lastDispatch))

	// Consume the adjacency entry wholesale. Each dependent pays off one
	// unit of its unmet count; those reaching zero leave the blocked pool.
	// The count outlives this record, so a later eviction cannot strand a
	// dependent still waiting on siblings.
	for _, depID := range s.graph.take(id) {
		dt, blocked := s.blocked[depID]
		if !blocked {
			continue
		}
		dt.unmet--
		if dt.unmet > 0 {
			continue
		}
		delete(s.blocked, depID)
		dt.enqueuedAt = now
		s.ready.push(dt)
	}
	ev := Event{Type: EventTaskCompleted, TaskID: id, TaskType: t.taskType, Priority: t.priority, Time: now}
	s.mu.Unlock()

	s.bus.emit(ev)
	s.signalWake()
}

// handleFailure routes an attempt failure (executor error or timeout)
// through retry: with retries left the task is re-admitted to the tail of
// its bucket after the strategy's delay; otherwise it finalizes to FAILED.
// Dependents of a FAILED task stay blocked until explicitly cancelled.
func (s *Scheduler) handleFailure(id string, attempt uint64, cause error) {
	now := time.Now()
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.status != models.RunningTaskStatus || t.attempt != attempt {
		s.mu.Unlock()
		return
	}
	delete(s.running, id)
	t.cancel = nil

	attempts := t.attempts
	if t.retriesLeft > 0 {
		t.retriesLeft--
		t.status = models.PendingTaskStatus
		delay := retryDelay(t.retryStrategy, t.retryBaseDelay, attempts)
		t.retryTimer = time.AfterFunc(delay, func() { s.requeue(id, t) })
		s.mu.Unlock()
		s.log.Infof("task %s attempt %d failed, retrying in %s: %v", id, attempts, delay, cause)
		return
	}

	t.status = models.FailedTaskStatus
	t.failure = cause
	t.finishedAt = &now
	s.stats.failed++
	s.stats.recordExec(now.Sub(t.lastDispatch))
	ev := Event{Type: EventTaskFailed, TaskID: id, TaskType: t.taskType, Priority: t.priority, Err: cause, Time: now}
	s.mu.Unlock()

	s.log.Warnf("task %s failed permanently after %d attempts: %v", id, attempts, cause)
	s.bus.emit(ev)
	s.signalWake()
}

// requeue puts a retrying task back on the tail of its bucket once its
// backoff delay has elapsed. No-op when the task was cancelled or cleared in
// the meantime.
func (s *Scheduler) requeue(id string, t *task) {
	s.mu.Lock()
	cur, ok := s.tasks[id]
	if !ok || cur != t || t.status != models.PendingTaskStatus {
		s.mu.Unlock()
		return
	}
	t.retryTimer = nil
	t.enqueuedAt = time.Now()
	s.ready.push(t)
	s.mu.Unlock()
	s.signalWake()
}

// reportProgress backs ExecContext.Progress. Stale attempts report nothing.
func (s *Scheduler) reportProgress(id string, attempt uint64, p float64) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.status != models.RunningTaskStatus || t.attempt != attempt {
		s.mu.Unlock()
		return
	}
	cb := t.onProgress
	ev := Event{Type: EventTaskProgress, TaskID: id, TaskType: t.taskType, Priority: t.priority, Progress: p, Time: time.Now()}
	s.mu.Unlock()

	if cb != nil {
		cb(p)
	}
	s.bus.emit(ev)
}

// retryDelay computes the wait before re-admission. attemptsUsed counts the
// attempts consumed so far, so the first retry of an EXPONENTIAL task waits
// the base delay, the second twice that, and so on. Randomization is off to
// keep the progression exact.
func retryDelay(strategy models.RetryStrategy, base time.Duration, attemptsUsed int) time.Duration {
	switch strategy {
	case models.ExponentialRetry:
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = base
		bo.Multiplier = 2
		bo.RandomizationFactor = 0
		bo.MaxInterval = time.Hour
		bo.MaxElapsedTime = 0
		delay := base
		for i := 0; i < attemptsUsed; i++ {
			delay = bo.NextBackOff()
		}
		return delay
	default:
		return backoff.NewConstantBackOff(base).NextBackOff()
	}
}
