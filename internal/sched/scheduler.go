package sched

import (
	"sort"

	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/substrate"
)

// Scheduler picks the next runnable task deterministically. It owns the
// task queue and consults the cluster for preconditions; the engine owns
// recording each pick as a sched_pick decision.
type Scheduler struct {
	queue   *Queue
	cluster *Cluster
	policy  Policy
	rng     *substrate.RNG
	nextID  int64
}

// New creates a scheduler with the given policy.
func New(policyName string, pctDepth, horizon int, cluster *Cluster, rng *substrate.RNG) (*Scheduler, error) {
	policy, err := NewPolicy(policyName, pctDepth, horizon, rng)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		queue:   NewQueue(),
		cluster: cluster,
		policy:  policy,
		rng:     rng,
	}, nil
}

// Cluster returns the cluster state the scheduler consults.
func (s *Scheduler) Cluster() *Cluster {
	return s.cluster
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	return s.queue.Len()
}

// Add enqueues a task and returns it. Insertion order fixes the task's ID
// and thereby every later tie-break.
func (s *Scheduler) Add(node string, stepIndex int, label string, readyTick int64) *Task {
	t := &Task{
		ID:        s.nextID,
		Node:      node,
		StepIndex: stepIndex,
		Label:     label,
		ReadyTick: readyTick,
	}
	s.nextID++
	s.queue.Push(t)
	return t
}

// Cancel marks a task ineligible by removing it from the queue.
func (s *Scheduler) Cancel(id int64) bool {
	return s.queue.Remove(id)
}

// eligible returns the tasks runnable at the given tick in stable order.
func (s *Scheduler) eligible(now int64) []*Task {
	var out []*Task
	for _, t := range s.queue.Tasks() {
		if t.ReadyTick <= now && s.cluster.Live(t.Node) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ReadyTick != b.ReadyTick {
			return a.ReadyTick < b.ReadyTick
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	return out
}

// NextReadyTick returns the earliest tick at which some queued task on a
// live node becomes runnable. ok is false when no queued task can ever
// run without external state change (the deadlock precondition).
func (s *Scheduler) NextReadyTick() (int64, bool) {
	found := false
	var min int64
	for _, t := range s.queue.Tasks() {
		if !s.cluster.Live(t.Node) {
			continue
		}
		if !found || t.ReadyTick < min {
			min = t.ReadyTick
			found = true
		}
	}
	return min, found
}

// Pick removes and returns the policy's choice among tasks eligible at
// now. Returns false when the eligible set is empty.
func (s *Scheduler) Pick(now int64) (*Task, bool) {
	eligible := s.eligible(now)
	if len(eligible) == 0 {
		return nil, false
	}
	t := eligible[s.policy.Choose(eligible, s.rng)]
	s.queue.Take(t)
	return t, true
}

// Choose applies the pick policy to an arbitrary candidate set without
// touching the queue. The engine uses this to arbitrate between step
// tasks and synthesized delivery candidates; the returned pointer is one
// of the inputs. Candidates are sorted into stable order first so the
// policy sees the same view in record and replay.
func (s *Scheduler) Choose(candidates []*Task) *Task {
	sorted := append([]*Task(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ReadyTick != b.ReadyTick {
			return a.ReadyTick < b.ReadyTick
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	return sorted[s.policy.Choose(sorted, s.rng)]
}

// PickByID removes the named task, used when a recorded schedule drives
// replay. The task must exist and be eligible; anything else is drift.
func (s *Scheduler) PickByID(id, now int64) (*Task, error) {
	for _, t := range s.eligible(now) {
		if t.ID == id {
			s.queue.Take(t)
			return t, nil
		}
	}
	return nil, errs.Newf(errs.KindDrift, "recorded schedule picked task %d, which is not eligible at tick %d", id, now)
}
