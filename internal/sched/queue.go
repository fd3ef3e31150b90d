package sched

import "container/heap"

// taskHeap is an indexed min-heap over (ReadyTick, Priority, ID).
// The heapIndex bookkeeping keeps Remove at O(log n) for cancellation.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.ReadyTick != b.ReadyTick {
		return a.ReadyTick < b.ReadyTick
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

// Queue is the scheduler's task queue.
type Queue struct {
	h    taskHeap
	byID map[int64]*Task
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{byID: make(map[int64]*Task)}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.h)
}

// Push inserts a task.
func (q *Queue) Push(t *Task) {
	heap.Push(&q.h, t)
	q.byID[t.ID] = t
}

// Remove cancels the task with the given id. Returns false if absent.
func (q *Queue) Remove(id int64) bool {
	t, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, t.heapIndex)
	delete(q.byID, id)
	return true
}

// Take removes and returns a task known to be in the queue.
func (q *Queue) Take(t *Task) {
	heap.Remove(&q.h, t.heapIndex)
	delete(q.byID, t.ID)
}

// Reprioritize updates a task's priority in place.
func (q *Queue) Reprioritize(t *Task, priority uint64) {
	t.Priority = priority
	heap.Fix(&q.h, t.heapIndex)
}

// Tasks returns the queued tasks in heap order. Callers must not mutate
// ordering fields; this exists for eligibility scans.
func (q *Queue) Tasks() []*Task {
	return q.h
}
