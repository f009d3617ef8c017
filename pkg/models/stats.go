package models

import "time"

// Stats is a point-in-time snapshot of scheduler state. It is a copy, never
// a live view; reading it does not observe later mutations.
type Stats struct {
	TotalTasks   int `json:"total_tasks"`
	QueuedHigh   int `json:"queued_high"`
	QueuedNormal int `json:"queued_normal"`
	QueuedLow    int `json:"queued_low"`
	Blocked      int `json:"blocked"`
	Running      int `json:"running"`

	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`

	// AvgWaitTime is the running mean of enqueue-to-dispatch latency.
	AvgWaitTime time.Duration `json:"avg_wait_time"`
	// AvgExecTime is the running mean of dispatch-to-terminal latency.
	AvgExecTime time.Duration `json:"avg_exec_time"`
	// LastTickDuration is the processing time of the most recent tick.
	LastTickDuration time.Duration `json:"last_tick_duration"`
	// TicksPerSecond estimates the tick arrival rate over a rolling window.
	TicksPerSecond float64 `json:"ticks_per_second"`
}

// Queued is the total ready-queue depth across all priorities.
func (s Stats) Queued() int {
	return s.QueuedHigh + s.QueuedNormal + s.QueuedLow
}
