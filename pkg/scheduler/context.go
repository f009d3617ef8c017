package scheduler

import (
	"context"
	"time"
)

// Executor runs the body of a task. ctx is cancelled when the task is
// cancelled or its timeout fires; ec exposes the cooperative contract.
//
// The scheduler never preempts an executor. A body doing more than one chunk
// of work is expected to poll ec.ShouldYield between chunks and voluntarily
// suspend (sleep, block on ctx, or otherwise pause) when it reports true.
type Executor func(ctx context.Context, ec *ExecContext) (any, error)

// ExecContext is handed to an executor alongside its attempt context.
type ExecContext struct {
	taskID        string
	taskType      string
	data          any
	interruptible bool
	delta         time.Duration
	s             *Scheduler
	attempt       uint64
}

func (ec *ExecContext) TaskID() string { return ec.taskID }

func (ec *ExecContext) TaskType() string { return ec.taskType }

// Data returns the opaque payload supplied at admission.
func (ec *ExecContext) Data() any { return ec.data }

// Interruptible echoes the advisory flag from the task config.
func (ec *ExecContext) Interruptible() bool { return ec.interruptible }

// DeltaTime is the time between the dispatching tick and the one before it,
// a pacing hint for frame-oriented work.
func (ec *ExecContext) DeltaTime() time.Duration { return ec.delta }

// ShouldYield reports whether the current tick's frame budget is spent. It
// is a request, not a preemption: the executor decides when to actually
// suspend.
func (ec *ExecContext) ShouldYield() bool {
	return ec.s.budgetExhausted()
}

// Progress forwards p to the task's progress callback, if any, and emits a
// progress event.
func (ec *ExecContext) Progress(p float64) {
	ec.s.reportProgress(ec.taskID, ec.attempt, p)
}
