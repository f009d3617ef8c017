package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dpetranov/coopsched/pkg/models"
)

func qt(id string, p models.Priority) *task {
	return &task{id: id, priority: p, status: models.PendingTaskStatus}
}

func TestReadyQueues_FIFOWithinBucket(t *testing.T) {
	var q readyQueues
	a := qt("a", models.PriorityNormal)
	b := qt("b", models.PriorityNormal)
	c := qt("c", models.PriorityNormal)
	q.push(a)
	q.push(b)
	q.push(c)

	assert.Same(t, a, q.pop(models.PriorityNormal))
	assert.Same(t, b, q.pop(models.PriorityNormal))
	assert.Same(t, c, q.pop(models.PriorityNormal))
	assert.Nil(t, q.pop(models.PriorityNormal))
}

func TestReadyQueues_BucketsAreIndependent(t *testing.T) {
	var q readyQueues
	low := qt("low", models.PriorityLow)
	high := qt("high", models.PriorityHigh)
	q.push(low)
	q.push(high)

	assert.Equal(t, 1, q.depth(models.PriorityHigh))
	assert.Equal(t, 0, q.depth(models.PriorityNormal))
	assert.Equal(t, 1, q.depth(models.PriorityLow))
	assert.Equal(t, 2, q.total())

	assert.Nil(t, q.pop(models.PriorityNormal))
	assert.Same(t, high, q.pop(models.PriorityHigh))
	assert.Same(t, low, q.pop(models.PriorityLow))
}

func TestReadyQueues_Remove(t *testing.T) {
	var q readyQueues
	a := qt("a", models.PriorityNormal)
	b := qt("b", models.PriorityNormal)
	q.push(a)
	q.push(b)

	assert.True(t, q.remove(a))
	assert.False(t, q.remove(a), "a is already removed")
	assert.Equal(t, 1, q.total())
	assert.Same(t, b, q.pop(models.PriorityNormal))
}

func TestReadyQueues_Reset(t *testing.T) {
	var q readyQueues
	q.push(qt("a", models.PriorityHigh))
	q.push(qt("b", models.PriorityLow))
	q.reset()
	assert.Equal(t, 0, q.total())
}
