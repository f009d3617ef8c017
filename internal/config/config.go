package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dpetranov/coopsched/pkg/models"
)

// Config is the YAML-backed configuration for the coopsched daemon.
// Durations are expressed in milliseconds so config files stay plain.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// ServerConfig holds configuration for the HTTP adapter.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address (default ":8080")
}

// SchedulerConfig mirrors models.SchedulerConfig for YAML loading.
type SchedulerConfig struct {
	MaxTasksPerTick   int `yaml:"max_tasks_per_tick"`
	FrameBudgetMS     int `yaml:"frame_budget_ms"`
	MaxConcurrent     int `yaml:"max_concurrent"`
	MaxPoolSize       int `yaml:"max_pool_size"`
	RetentionMS       int `yaml:"retention_ms"`
	TickIntervalMS    int `yaml:"tick_interval_ms"`
	CollectIntervalMS int `yaml:"collect_interval_ms"`
}

// MonitorConfig holds thresholds for the observability consumer.
type MonitorConfig struct {
	PollIntervalMS    int `yaml:"poll_interval_ms"`
	QueueDepthWarn    int `yaml:"queue_depth_warn"`
	AvgWaitWarnMS     int `yaml:"avg_wait_warn_ms"`
	FailureBurstWarn  int `yaml:"failure_burst_warn"`
	OverflowBurstWarn int `yaml:"overflow_burst_warn"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Monitor: MonitorConfig{
			PollIntervalMS:    5000,
			QueueDepthWarn:    100,
			AvgWaitWarnMS:     1000,
			FailureBurstWarn:  10,
			OverflowBurstWarn: 1,
		},
	}
}

// Load reads a YAML config file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	return cfg, nil
}

// SchedulerConfig converts the YAML fields into the engine's config. Zero
// fields stay zero; the engine substitutes its own defaults.
func (c Config) SchedulerConfig() models.SchedulerConfig {
	return models.SchedulerConfig{
		MaxTasksPerTick: c.Scheduler.MaxTasksPerTick,
		FrameBudget:     time.Duration(c.Scheduler.FrameBudgetMS) * time.Millisecond,
		MaxConcurrent:   c.Scheduler.MaxConcurrent,
		MaxPoolSize:     c.Scheduler.MaxPoolSize,
		RetentionPeriod: time.Duration(c.Scheduler.RetentionMS) * time.Millisecond,
		TickInterval:    time.Duration(c.Scheduler.TickIntervalMS) * time.Millisecond,
		CollectInterval: time.Duration(c.Scheduler.CollectIntervalMS) * time.Millisecond,
	}
}
