package scheduler

import "time"

// collect is the terminal-state collector: a periodic sweep, decoupled from
// the tick loop, that evicts COMPLETED/FAILED/CANCELLED records older than
// the retention window. This bounds registry memory for hosts that create
// many short-lived tasks over long sessions.
func (s *Scheduler) collect(stopCh chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CollectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep removes every terminal task whose record has outlived the retention
// window, along with any residual dependency-graph entries, and returns the
// eviction count.
func (s *Scheduler) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, t := range s.tasks {
		if !t.status.Terminal() || t.finishedAt == nil {
			continue
		}
		if now.Sub(*t.finishedAt) <= s.cfg.RetentionPeriod {
			continue
		}
		delete(s.tasks, id)
		s.graph.removeTask(id)
		evicted++
	}
	if evicted > 0 {
		s.log.Infof("collector evicted %d terminal task(s)", evicted)
	}
	return evicted
}
