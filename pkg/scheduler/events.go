package scheduler

import (
	"sort"
	"sync"
	"time"

	"github.com/dpetranov/coopsched/pkg/models"
)

type EventType string

const (
	EventTaskAdmitted  EventType = "task_admitted"
	EventTaskStarted   EventType = "task_started"
	EventTaskProgress  EventType = "task_progress"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskCancelled EventType = "task_cancelled"
	EventQueueOverflow EventType = "queue_overflow"
)

// Event describes a discrete scheduler occurrence. Err is set for failed
// events, Progress for progress events.
type Event struct {
	Type     EventType
	TaskID   string
	TaskType string
	Priority models.Priority
	Progress float64
	Err      error
	Time     time.Time
}

// Listener consumes events. A listener that panics is logged and isolated;
// it never interrupts other listeners or the scheduler.
type Listener func(Event)

// eventBus fans events out to registered listeners synchronously, keyed by
// event type. Subscriptions are identified by the handle On returns, since
// function values are not comparable.
type eventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[EventType]map[int]Listener
	log    Logger
}

func newEventBus(log Logger) *eventBus {
	return &eventBus{subs: make(map[EventType]map[int]Listener), log: log}
}

func (b *eventBus) on(t EventType, fn Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	set, ok := b.subs[t]
	if !ok {
		set = make(map[int]Listener)
		b.subs[t] = set
	}
	set[id] = fn
	return id
}

func (b *eventBus) off(t EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[t]; ok {
		delete(set, id)
	}
}

func (b *eventBus) emit(ev Event) {
	b.mu.RLock()
	set := b.subs[ev.Type]
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, len(ids))
	for i, id := range ids {
		listeners[i] = set[id]
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		b.deliver(fn, ev)
	}
}

func (b *eventBus) deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("event listener panicked on %s for task %s: %v", ev.Type, ev.TaskID, r)
		}
	}()
	fn(ev)
}
