package scheduler

import "github.com/dpetranov/coopsched/pkg/models"

// readyQueues holds the three priority buckets. Each bucket is FIFO by
// admission time; promoted tasks re-enter at the tail of their new bucket.
// Not safe for concurrent use; callers hold the scheduler mutex.
type readyQueues struct {
	buckets [3][]*task
}

func bucketIndex(p models.Priority) int {
	// HIGH drains first.
	switch p {
	case models.PriorityHigh:
		return 0
	case models.PriorityNormal:
		return 1
	default:
		return 2
	}
}

func (q *readyQueues) push(t *task) {
	i := bucketIndex(t.priority)
	q.buckets[i] = append(q.buckets[i], t)
}

// pop removes and returns the head of the bucket for p, or nil when empty.
func (q *readyQueues) pop(p models.Priority) *task {
	i := bucketIndex(p)
	if len(q.buckets[i]) == 0 {
		return nil
	}
	t := q.buckets[i][0]
	q.buckets[i] = q.buckets[i][1:]
	return t
}

// remove detaches t from whichever bucket currently holds it. Returns false
// when t is not queued.
func (q *readyQueues) remove(t *task) bool {
	for i := range q.buckets {
		for j, cand := range q.buckets[i] {
			if cand == t {
				q.buckets[i] = append(q.buckets[i][:j], q.buckets[i][j+1:]...)
				return true
			}
		}
	}
	return false
}

func (q *readyQueues) depth(p models.Priority) int {
	return len(q.buckets[bucketIndex(p)])
}

func (q *readyQueues) total() int {
	return len(q.buckets[0]) + len(q.buckets[1]) + len(q.buckets[2])
}

func (q *readyQueues) reset() {
	for i := range q.buckets {
		q.buckets[i] = nil
	}
}
