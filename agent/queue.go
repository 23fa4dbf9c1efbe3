package agent

import (
	"sort"
	"sync"
	"time"
)

// dequeuePollInterval is how often a blocking Dequeue re-checks the queue
const dequeuePollInterval = 100 * time.Millisecond

// TaskQueue is a thread-safe priority queue shared by the manager and all
// agents. Tasks are ordered by descending priority score; ties dequeue in
// arrival order (FIFO within a priority band). No task is ever silently
// dropped: a failed assignment re-enqueues the task at high priority.
type TaskQueue struct {
	tasks          []*Task
	totalProcessed int
	mu             sync.Mutex
}

// NewTaskQueue creates an empty task queue
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks: make([]*Task, 0),
	}
}

// Enqueue stamps identity and queue metadata on the task and inserts it in
// priority order. An explicit priority overrides the task's own.
func (q *TaskQueue) Enqueue(task *Task, priority Priority) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	task.normalize()
	if priority != "" {
		task.Priority = priority
	}
	task.PriorityScore = task.Priority.Score()
	task.EnqueuedAt = time.Now()
	task.Status = TaskPending

	q.tasks = append(q.tasks, task)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		if q.tasks[i].PriorityScore != q.tasks[j].PriorityScore {
			return q.tasks[i].PriorityScore > q.tasks[j].PriorityScore
		}
		return q.tasks[i].EnqueuedAt.Before(q.tasks[j].EnqueuedAt)
	})

	return task
}

// Dequeue removes and returns the head of the queue. With timeout <= 0 it
// returns immediately; otherwise it polls every 100ms until an item is
// available or the timeout elapses. Returns nil when empty.
func (q *TaskQueue) Dequeue(timeout time.Duration) *Task {
	if task := q.pop(); task != nil {
		return task
	}
	if timeout <= 0 {
		return nil
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(dequeuePollInterval)
		if task := q.pop(); task != nil {
			return task
		}
	}
	return nil
}

func (q *TaskQueue) pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task
}

// Peek returns the head of the queue without removing it
func (q *TaskQueue) Peek() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}
	return q.tasks[0]
}

// Size returns the number of queued tasks
func (q *TaskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Empty reports whether the queue has no tasks
func (q *TaskQueue) Empty() bool {
	return q.Size() == 0
}

// Clear removes all queued tasks
func (q *TaskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = q.tasks[:0]
}

// RemoveTask deletes a task by ID; returns false if not found
func (q *TaskQueue) RemoveTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, task := range q.tasks {
		if task.ID == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// TasksByStatus returns queued tasks matching the status
func (q *TaskQueue) TasksByStatus(status TaskStatus) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	matches := make([]*Task, 0)
	for _, task := range q.tasks {
		if task.Status == status {
			matches = append(matches, task)
		}
	}
	return matches
}

// TasksByPriority returns queued tasks matching the priority
func (q *TaskQueue) TasksByPriority(priority Priority) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	matches := make([]*Task, 0)
	for _, task := range q.tasks {
		if task.Priority == priority {
			matches = append(matches, task)
		}
	}
	return matches
}

// MarkProcessed increments the processed counter. Stats only: the task was
// already removed by Dequeue.
func (q *TaskQueue) MarkProcessed(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.totalProcessed++
}

// TotalProcessed returns how many tasks were marked processed
func (q *TaskQueue) TotalProcessed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalProcessed
}
