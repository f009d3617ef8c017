package scheduler

import (
	"context"
	"time"

	"github.com/dpetranov/coopsched/pkg/models"
)

// task is the engine's live record of one unit of work. All fields are
// guarded by the scheduler mutex; executor goroutines never touch a task
// directly, only through the snapshot captured at dispatch.
type task struct {
	id            string
	taskType      string
	priority      models.Priority
	status        models.TaskStatus
	data          any
	interruptible bool

	retriesLeft    int
	attempts       int
	retryStrategy  models.RetryStrategy
	retryBaseDelay time.Duration
	timeout        time.Duration

	// dependencies is immutable after creation.
	dependencies []string
	// unmet counts distinct dependencies not yet COMPLETED, fixed at
	// admission and decremented per dependency completion. The task leaves
	// the blocked pool when it reaches zero; membership of the dependency
	// record in the registry is irrelevant after that point.
	unmet int

	createdAt  time.Time
	enqueuedAt time.Time
	startedAt  *time.Time
	finishedAt *time.Time
	// lastDispatch is the start of the most recent attempt; exec-time samples
	// are measured from it.
	lastDispatch time.Time

	// result and failure are mutually exclusive and only set in a terminal
	// status.
	result  any
	failure error

	onProgress models.ProgressFunc

	// cancel aborts the current attempt. Replaced with a fresh handle on
	// every (re)dispatch.
	cancel context.CancelFunc
	// attempt guards against a stale attempt goroutine finalizing a record
	// that has since been cancelled or re-admitted.
	attempt uint64

	retryTimer *time.Timer
}

func newTask(id string, cfg models.TaskConfig) *task {
	now := time.Now()
	prio := cfg.Priority
	if !prio.Valid() {
		prio = models.PriorityNormal
	}
	strategy := cfg.RetryStrategy
	if strategy == "" {
		strategy = models.LinearRetry
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	deps := append([]string(nil), cfg.Dependencies...)
	return &task{
		id:             id,
		taskType:       cfg.Type,
		priority:       prio,
		status:         models.PendingTaskStatus,
		data:           cfg.Data,
		interruptible:  cfg.Interruptible,
		retriesLeft:    cfg.RetryCount,
		retryStrategy:  strategy,
		retryBaseDelay: baseDelay,
		timeout:        cfg.Timeout,
		dependencies:   deps,
		createdAt:      now,
		onProgress:     cfg.OnProgress,
	}
}

func (t *task) info() models.TaskInfo {
	return models.TaskInfo{
		ID:           t.id,
		Type:         t.taskType,
		Priority:     t.priority,
		Status:       t.status,
		Attempts:     t.attempts,
		RetriesLeft:  t.retriesLeft,
		Dependencies: append([]string(nil), t.dependencies...),
		CreatedAt:    t.createdAt,
		StartedAt:    t.startedAt,
		FinishedAt:   t.finishedAt,
	}
}
