// Package monitor is an observability consumer: it polls scheduler
// statistics and subscribes to failure/overflow events, raising threshold
// warnings through the logger. It only uses the documented scheduler
// surface.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dpetranov/coopsched/pkg/models"
	"github.com/dpetranov/coopsched/pkg/scheduler"
)

// Logger is the subset of logrus the monitor needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Source is the scheduler surface the monitor consumes.
type Source interface {
	Stats() models.Stats
	On(t scheduler.EventType, fn scheduler.Listener) int
	Off(t scheduler.EventType, id int)
}

// Thresholds configures when the monitor warns.
type Thresholds struct {
	// PollInterval is the stats polling cadence.
	PollInterval time.Duration
	// QueueDepthWarn warns when the total ready-queue depth reaches it.
	QueueDepthWarn int
	// AvgWaitWarn warns when the mean enqueue-to-dispatch latency reaches it.
	AvgWaitWarn time.Duration
	// FailureBurstWarn warns when at least this many tasks failed within one
	// polling interval.
	FailureBurstWarn int
	// OverflowBurstWarn warns when at least this many admissions overflowed
	// within one polling interval.
	OverflowBurstWarn int
}

// Monitor watches a scheduler and logs warnings. Start/Stop bound its
// lifetime; it holds no scheduler internals.
type Monitor struct {
	source Source
	th     Thresholds
	logger Logger

	failures  atomic.Int64
	overflows atomic.Int64

	mu          sync.Mutex
	stopCh      chan struct{}
	wg          sync.WaitGroup
	failedSub   int
	overflowSub int
}

func New(source Source, th Thresholds, logger Logger) *Monitor {
	if th.PollInterval <= 0 {
		th.PollInterval = 5 * time.Second
	}
	return &Monitor{source: source, th: th, logger: logger}
}

func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})

	m.failedSub = m.source.On(scheduler.EventTaskFailed, func(ev scheduler.Event) {
		m.failures.Add(1)
	})
	m.overflowSub = m.source.On(scheduler.EventQueueOverflow, func(ev scheduler.Event) {
		m.overflows.Add(1)
		m.logger.Warnf("admission overflow: task %q of type %q rejected", ev.TaskID, ev.TaskType)
	})

	m.wg.Add(1)
	go m.poll(m.stopCh)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopCh == nil {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.stopCh = nil
	m.source.Off(scheduler.EventTaskFailed, m.failedSub)
	m.source.Off(scheduler.EventQueueOverflow, m.overflowSub)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) poll(stopCh chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.th.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

// check runs one inspection pass over a stats snapshot and the event
// counters accumulated since the previous pass.
func (m *Monitor) check() {
	st := m.source.Stats()

	if m.th.QueueDepthWarn > 0 && st.Queued() >= m.th.QueueDepthWarn {
		m.logger.Warnf("queue depth %d at or above threshold %d (high=%d normal=%d low=%d)",
			st.Queued(), m.th.QueueDepthWarn, st.QueuedHigh, st.QueuedNormal, st.QueuedLow)
	}
	if m.th.AvgWaitWarn > 0 && st.AvgWaitTime >= m.th.AvgWaitWarn {
		m.logger.Warnf("average wait time %s at or above threshold %s", st.AvgWaitTime, m.th.AvgWaitWarn)
	}
	if failed := m.failures.Swap(0); m.th.FailureBurstWarn > 0 && failed >= int64(m.th.FailureBurstWarn) {
		m.logger.Warnf("%d task failures within the last %s", failed, m.th.PollInterval)
	}
	if overflowed := m.overflows.Swap(0); m.th.OverflowBurstWarn > 0 && overflowed >= int64(m.th.OverflowBurstWarn) {
		m.logger.Warnf("%d admission overflows within the last %s", overflowed, m.th.PollInterval)
	}
}
