package models

import "time"

type TaskStatus string

const (
	PendingTaskStatus   TaskStatus = "PENDING"
	RunningTaskStatus   TaskStatus = "RUNNING"
	CompletedTaskStatus TaskStatus = "COMPLETED"
	FailedTaskStatus    TaskStatus = "FAILED"
	CancelledTaskStatus TaskStatus = "CANCELLED"
	// PausedTaskStatus is reserved for forward compatibility. No transition
	// assigns it; pause/resume semantics are intentionally undefined.
	PausedTaskStatus TaskStatus = "PAUSED"
)

// Terminal reports whether a status is a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case CompletedTaskStatus, FailedTaskStatus, CancelledTaskStatus:
		return true
	}
	return false
}

// Priority orders ready tasks. Higher values are more urgent; a task's
// priority only ever increases (see priority inheritance).
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	}
	return "UNKNOWN"
}

func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// ParsePriority maps the wire names onto Priority. Unknown names and the
// empty string fall back to NORMAL.
func ParsePriority(s string) Priority {
	switch s {
	case "LOW":
		return PriorityLow
	case "HIGH":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

type RetryStrategy string

const (
	LinearRetry      RetryStrategy = "LINEAR"
	ExponentialRetry RetryStrategy = "EXPONENTIAL"
)

// ProgressFunc receives progress reports from a running executor, in the
// 0.0-1.0 range by convention.
type ProgressFunc func(progress float64)

// TaskConfig is the admission request accepted by AddTask. Zero values mean
// "use the default": generated id, NORMAL priority, no retries, LINEAR
// strategy, no timeout, no dependencies.
type TaskConfig struct {
	ID             string        `json:"id,omitempty"`
	Type           string        `json:"type"`
	Priority       Priority      `json:"priority,omitempty"`
	Data           any           `json:"data,omitempty"`
	Interruptible  bool          `json:"interruptible,omitempty"`
	RetryCount     int           `json:"retry_count,omitempty"`
	RetryStrategy  RetryStrategy `json:"retry_strategy,omitempty"`
	RetryBaseDelay time.Duration `json:"retry_base_delay,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
	Dependencies   []string      `json:"dependencies,omitempty"`
	OnProgress     ProgressFunc  `json:"-"`
}

// TaskInfo is a read-only snapshot of a task record, safe to hand out to
// callers and wire adapters.
type TaskInfo struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Priority     Priority   `json:"priority"`
	Status       TaskStatus `json:"status"`
	Attempts     int        `json:"attempts"`
	RetriesLeft  int        `json:"retries_left"`
	Dependencies []string   `json:"dependencies,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
