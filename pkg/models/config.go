package models

import "time"

// SchedulerConfig is fixed at construction; the engine never mutates it.
type SchedulerConfig struct {
	// MaxTasksPerTick caps how many NORMAL/LOW tasks one tick may dispatch.
	// HIGH tasks are exempt.
	MaxTasksPerTick int
	// FrameBudget is the wall-clock budget of a single tick. NORMAL/LOW
	// dispatching stops once it is spent, and running executors observe it
	// through ExecContext.ShouldYield.
	FrameBudget time.Duration
	// MaxConcurrent bounds the size of the running set across all priorities.
	MaxConcurrent int
	// MaxPoolSize caps the registry; admission beyond it fails.
	MaxPoolSize int
	// RetentionPeriod is how long terminal records stay queryable before the
	// collector evicts them.
	RetentionPeriod time.Duration
	// TickInterval is the cadence of the fallback interval driver.
	TickInterval time.Duration
	// CollectInterval is the sweep cadence of the terminal-state collector.
	CollectInterval time.Duration
}

// DefaultSchedulerConfig approximates a 60Hz host loop with half a frame of
// dispatch budget.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxTasksPerTick: 16,
		FrameBudget:     8 * time.Millisecond,
		MaxConcurrent:   8,
		MaxPoolSize:     1000,
		RetentionPeriod: time.Minute,
		TickInterval:    16 * time.Millisecond,
		CollectInterval: 10 * time.Second,
	}
}

// Normalized returns a copy with zero or negative fields replaced by the
// defaults, so a partially filled config is still usable.
func (c SchedulerConfig) Normalized() SchedulerConfig {
	def := DefaultSchedulerConfig()
	if c.MaxTasksPerTick <= 0 {
		c.MaxTasksPerTick = def.MaxTasksPerTick
	}
	if c.FrameBudget <= 0 {
		c.FrameBudget = def.FrameBudget
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = def.MaxPoolSize
	}
	if c.RetentionPeriod <= 0 {
		c.RetentionPeriod = def.RetentionPeriod
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.CollectInterval <= 0 {
		c.CollectInterval = def.CollectInterval
	}
	return c
}
