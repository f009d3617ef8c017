// Package scheduler implements a cooperative, priority-aware task scheduler.
// Many independent units of work are interleaved under a per-tick time and
// count budget so a host render/interaction loop never stalls; dependency
// chains are protected against priority inversion by priority inheritance.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dpetranov/coopsched/pkg/models"
)

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Scheduler owns the task registry, the three priority queues, the blocked
// pool, the running set and the dependency graph. All of them are mutated
// only from inside the documented operations; callers never reach into the
// collections directly.
type Scheduler struct {
	cfg    models.SchedulerConfig
	log    Logger
	driver Driver
	bus    *eventBus

	mu        sync.Mutex
	tasks     map[string]*task
	ready     readyQueues
	blocked   map[string]*task
	running   map[string]*task
	graph     *depGraph
	executors map[string]Executor
	stats     statsTracker

	lastTickStart time.Time
	tickStartNS   atomic.Int64

	started bool
	stopCh  chan struct{}
	wake    chan struct{}
	wg      sync.WaitGroup
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithDriver replaces the default fixed-interval driver, e.g. with a
// frame-synchronized one or a ManualDriver in tests.
func WithDriver(d Driver) Option {
	return func(s *Scheduler) {
		s.driver = d
	}
}

// New creates a stopped scheduler. Zero-valued config fields take defaults.
func New(cfg models.SchedulerConfig, logger Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg.Normalized(),
		log:       logger,
		tasks:     make(map[string]*task),
		blocked:   make(map[string]*task),
		running:   make(map[string]*task),
		graph:     newDepGraph(),
		executors: make(map[string]Executor),
		wake:      make(chan struct{}, 1),
	}
	s.bus = newEventBus(logger)
	for _, opt := range opts {
		opt(s)
	}
	if s.driver == nil {
		s.driver = NewIntervalDriver(s.cfg.TickInterval)
	}
	return s
}

// RegisterExecutor binds a task type to the function that runs it.
// Registering the same type again replaces the previous executor.
func (s *Scheduler) RegisterExecutor(taskType string, fn Executor) error {
	if taskType == "" {
		return errors.New("empty executor type")
	}
	if fn == nil {
		return errors.Errorf("nil executor for type %q", taskType)
	}
	s.mu.Lock()
	s.executors[taskType] = fn
	s.mu.Unlock()
	s.log.Infof("registered executor for type %q", taskType)
	return nil
}

// RegisterExecutors registers a batch of executors, stopping at the first
// invalid entry.
func (s *Scheduler) RegisterExecutors(m map[string]Executor) error {
	for taskType, fn := range m {
		if err := s.RegisterExecutor(taskType, fn); err != nil {
			return err
		}
	}
	return nil
}

// AddTask validates cfg and admits a new task. Rejection is synchronous and
// leaves no state behind: the registry at capacity, a duplicate id, or an
// unregistered type each return an *AdmissionError. Ready tasks join the
// tail of their priority queue; blocked tasks enter the blocked pool and
// propagate their priority down the dependency chain.
func (s *Scheduler) AddTask(cfg models.TaskConfig) (string, error) {
	s.mu.Lock()
	if _, ok := s.executors[cfg.Type]; !ok {
		s.mu.Unlock()
		return "", &AdmissionError{Reason: ReasonUnknownType, TaskID: cfg.ID, Type: cfg.Type}
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, exists := s.tasks[id]; exists {
		s.mu.Unlock()
		return "", &AdmissionError{Reason: ReasonDuplicateID, TaskID: id, Type: cfg.Type}
	}
	if len(s.tasks) >= s.cfg.MaxPoolSize {
		s.mu.Unlock()
		s.bus.emit(Event{Type: EventQueueOverflow, TaskID: id, TaskType: cfg.Type, Time: time.Now()})
		return "", &AdmissionError{Reason: ReasonPoolFull, TaskID: id, Type: cfg.Type}
	}

	t := newTask(id, cfg)
	s.tasks[id] = t
	// The unmet count, decremented at each dependency completion, is what
	// wakes the task. A COMPLETED dependency is counted as met here so that
	// its later eviction cannot resurrect the debt.
	seen := make(map[string]struct{}, len(t.dependencies))
	for _, depID := range t.dependencies {
		if _, dup := seen[depID]; dup {
			continue
		}
		seen[depID] = struct{}{}
		if dep, ok := s.tasks[depID]; ok && dep.status == models.CompletedTaskStatus {
			continue
		}
		s.graph.addEdge(depID, id)
		t.unmet++
	}
	if t.unmet == 0 {
		t.enqueuedAt = time.Now()
		s.ready.push(t)
	} else {
		s.blocked[id] = t
		s.inheritPriorityLocked(t.dependencies, t.priority)
	}
	// Dependents admitted before this id may already be waiting on it; the
	// new task inherits the most urgent of their priorities.
	if maxP := s.maxWaiterPriorityLocked(id); maxP > t.priority {
		s.inheritPriorityLocked([]string{id}, maxP)
	}
	ev := Event{Type: EventTaskAdmitted, TaskID: id, TaskType: t.taskType, Priority: t.priority, Time: time.Now()}
	s.mu.Unlock()

	s.bus.emit(ev)
	s.signalWake()
	return id, nil
}

// maxWaiterPriorityLocked returns the most urgent priority among blocked
// tasks already waiting on id, or zero when none wait.
func (s *Scheduler) maxWaiterPriorityLocked(id string) models.Priority {
	var max models.Priority
	for _, wid := range s.graph.waiting(id) {
		if w, ok := s.tasks[wid]; ok && w.priority > max {
			max = w.priority
		}
	}
	return max
}

// inheritPriorityLocked promotes every task in the dependency chains below
// deps to at least p. Queued dependencies are relocated to the tail of the
// new bucket. Explicit worklist, not recursion: chains can be arbitrarily
// deep. Dependency lists are immutable and acyclic by construction, so no
// cycle guard is needed.
func (s *Scheduler) inheritPriorityLocked(deps []string, p models.Priority) {
	stack := append([]string(nil), deps...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dep, ok := s.tasks[id]
		if !ok || dep.status.Terminal() || dep.priority >= p {
			continue
		}
		wasQueued := s.ready.remove(dep)
		dep.priority = p
		if wasQueued {
			s.ready.push(dep)
		}
		stack = append(stack, dep.dependencies...)
	}
}

// CancelTask cancels a task in any non-terminal state. Queued and blocked
// tasks are removed without ever dispatching; a running task has its cancel
// handle fired and is marked CANCELLED immediately, whether or not its
// executor body has observed the signal yet. Returns false for unknown or
// already-terminal ids.
func (s *Scheduler) CancelTask(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	switch t.status {
	case models.RunningTaskStatus:
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
		delete(s.running, id)
	default:
		// PENDING: queued, blocked, or waiting out a retry delay.
		if !s.ready.remove(t) {
			delete(s.blocked, id)
			s.graph.removeTask(id)
		}
		if t.retryTimer != nil {
			t.retryTimer.Stop()
			t.retryTimer = nil
		}
	}
	t.attempt++ // invalidate any in-flight attempt goroutine
	now := time.Now()
	t.status = models.CancelledTaskStatus
	t.failure = ErrCancelled
	t.finishedAt = &now
	s.stats.cancelled++
	ev := Event{Type: EventTaskCancelled, TaskID: id, TaskType: t.taskType, Priority: t.priority, Time: now}
	s.mu.Unlock()

	s.bus.emit(ev)
	s.signalWake()
	return true
}

// TaskStatus returns the current status of a task, or false if the id is
// unknown or already evicted.
func (s *Scheduler) TaskStatus(id string) (models.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return "", false
	}
	return t.status, true
}

// TaskInfo returns a snapshot of a task record.
func (s *Scheduler) TaskInfo(id string) (models.TaskInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.TaskInfo{}, false
	}
	return t.info(), true
}

// TaskResult returns the outcome of a terminal task: the result value for
// COMPLETED, the failure cause for FAILED, ErrCancelled for CANCELLED. The
// bool is false while the task is still non-terminal, unknown, or evicted.
func (s *Scheduler) TaskResult(id string) (any, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || !t.status.Terminal() {
		return nil, nil, false
	}
	return t.result, t.failure, true
}

// Stats returns a copy of the current statistics.
func (s *Scheduler) Stats() models.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats.snapshot()
	st.TotalTasks = len(s.tasks)
	st.QueuedHigh = s.ready.depth(models.PriorityHigh)
	st.QueuedNormal = s.ready.depth(models.PriorityNormal)
	st.QueuedLow = s.ready.depth(models.PriorityLow)
	st.Blocked = len(s.blocked)
	st.Running = len(s.running)
	return st
}

// On registers a listener for an event type and returns a handle for Off.
func (s *Scheduler) On(t EventType, fn Listener) int {
	return s.bus.on(t, fn)
}

// Off removes a listener previously registered with On.
func (s *Scheduler) Off(t EventType, id int) {
	s.bus.off(t, id)
}

// Start launches the tick loop and the terminal-state collector. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(2)
	go s.run(stopCh)
	go s.collect(stopCh)
	s.driver.Start(s.signalWake)
	// Pick up anything admitted while stopped.
	s.signalWake()
	s.log.Infof("scheduler started")
}

// Stop halts the tick loop and the collector without clearing state. Tasks
// already running keep running; their completions are still recorded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	stopCh := s.stopCh
	s.mu.Unlock()

	s.driver.Stop()
	close(stopCh)
	s.wg.Wait()
	s.log.Infof("scheduler stopped")
}

// Clear cancels everything running, empties all collections and resets the
// counters. The loop itself keeps going if started.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	for _, t := range s.running {
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
		t.attempt++
	}
	for _, t := range s.tasks {
		if t.retryTimer != nil {
			t.retryTimer.Stop()
			t.retryTimer = nil
		}
	}
	s.tasks = make(map[string]*task)
	s.blocked = make(map[string]*task)
	s.running = make(map[string]*task)
	s.ready.reset()
	s.graph.reset()
	s.stats.reset()
	s.mu.Unlock()
	s.log.Infof("scheduler cleared")
}

// run consumes wake signals and turns each into one tick. The driver, task
// admission, retry timers and dependency wake-ups all funnel through the
// same wake channel, so the loop is fully event-driven and never polls while
// idle.
func (s *Scheduler) run(stopCh chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case <-s.wake:
			s.tick()
		}
	}
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// tick drains the priority buckets under the configured budget: HIGH is
// bounded only by the concurrency ceiling, NORMAL and LOW additionally by
// the frame budget and the per-tick count ceiling. If dispatchable work
// remains afterwards, the next tick is requested immediately.
func (s *Scheduler) tick() {
	start := time.Now()
	s.tickStartNS.Store(start.UnixNano())

	var events []Event
	s.mu.Lock()
	var delta time.Duration
	if !s.lastTickStart.IsZero() {
		delta = start.Sub(s.lastTickStart)
	}
	s.lastTickStart = start
	s.stats.recordTickArrival(start)

	for len(s.running) < s.cfg.MaxConcurrent {
		t := s.ready.pop(models.PriorityHigh)
		if t == nil {
			break
		}
		events = append(events, s.dispatchLocked(t, delta))
	}

	dispatched := 0
budgeted:
	for _, p := range []models.Priority{models.PriorityNormal, models.PriorityLow} {
		for {
			if len(s.running) >= s.cfg.MaxConcurrent || dispatched >= s.cfg.MaxTasksPerTick {
				break budgeted
			}
			// The first budgeted dispatch is always allowed so a spent budget
			// can only defer work to the next tick, never starve it.
			if dispatched > 0 && time.Since(start) >= s.cfg.FrameBudget {
				break budgeted
			}
			t := s.ready.pop(p)
			if t == nil {
				break
			}
			events = append(events, s.dispatchLocked(t, delta))
			dispatched++
		}
	}

	s.stats.lastTick = time.Since(start)
	rearm := s.ready.total() > 0 && len(s.running) < s.cfg.MaxConcurrent
	s.mu.Unlock()

	for _, ev := range events {
		s.bus.emit(ev)
	}
	if rearm {
		s.signalWake()
	}
}

// budgetExhausted backs ExecContext.ShouldYield: true once the latest tick's
// frame budget has elapsed.
func (s *Scheduler) budgetExhausted() bool {
	startNS := s.tickStartNS.Load()
	if startNS == 0 {
		return false
	}
	return time.Now().UnixNano()-startNS >= int64(s.cfg.FrameBudget)
}
