package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrdersByPriorityThenArrival(t *testing.T) {
	q := NewTaskQueue()

	a := q.Enqueue(NewTask("A"), PriorityNormal)
	b := q.Enqueue(NewTask("B"), PriorityHigh)
	c := q.Enqueue(NewTask("C"), PriorityNormal)

	assert.Equal(t, b.ID, q.Dequeue(0).ID, "high priority jumps the line")
	assert.Equal(t, a.ID, q.Dequeue(0).ID, "FIFO within the same priority")
	assert.Equal(t, c.ID, q.Dequeue(0).ID)
	assert.True(t, q.Empty())
}

func TestQueueEnqueueStampsMetadata(t *testing.T) {
	q := NewTaskQueue()
	task := q.Enqueue(&Task{Description: "literal"}, PriorityCritical)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, PriorityCritical, task.Priority, "explicit priority overrides the task's own")
	assert.Equal(t, 4, task.PriorityScore)
	assert.Equal(t, TaskPending, task.Status)
	assert.False(t, task.EnqueuedAt.IsZero())
}

func TestQueueDequeueEmptyNonBlocking(t *testing.T) {
	q := NewTaskQueue()
	assert.Nil(t, q.Dequeue(0))
}

func TestQueueDequeueTimesOut(t *testing.T) {
	q := NewTaskQueue()

	start := time.Now()
	task := q.Dequeue(150 * time.Millisecond)

	assert.Nil(t, task)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestQueueDequeueWaitsForEnqueue(t *testing.T) {
	q := NewTaskQueue()

	go func() {
		time.Sleep(50 * time.Millisecond)
		q.Enqueue(NewTask("late arrival"), "")
	}()

	task := q.Dequeue(2 * time.Second)
	require.NotNil(t, task)
	assert.Equal(t, "late arrival", task.Description)
}

func TestQueuePeekDoesNotRemove(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(NewTask("only"), "")

	assert.NotNil(t, q.Peek())
	assert.Equal(t, 1, q.Size())
}

func TestQueueRemoveTask(t *testing.T) {
	q := NewTaskQueue()
	task := q.Enqueue(NewTask("doomed"), "")

	assert.True(t, q.RemoveTask(task.ID))
	assert.False(t, q.RemoveTask(task.ID))
	assert.True(t, q.Empty())
}

func TestQueueFilters(t *testing.T) {
	q := NewTaskQueue()
	q.Enqueue(NewTask("a"), PriorityLow)
	q.Enqueue(NewTask("b"), PriorityHigh)
	q.Enqueue(NewTask("c"), PriorityLow)

	assert.Len(t, q.TasksByPriority(PriorityLow), 2)
	assert.Len(t, q.TasksByPriority(PriorityCritical), 0)
	assert.Len(t, q.TasksByStatus(TaskPending), 3)
}

func TestQueueClearAndProcessedCount(t *testing.T) {
	q := NewTaskQueue()
	task := q.Enqueue(NewTask("x"), "")
	q.Enqueue(NewTask("y"), "")

	q.MarkProcessed(task.ID)
	assert.Equal(t, 1, q.TotalProcessed())

	q.Clear()
	assert.True(t, q.Empty())
	assert.Equal(t, 1, q.TotalProcessed(), "clear does not reset the processed counter")
}
