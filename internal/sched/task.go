// Package sched implements the deterministic scheduler: an indexed task
// queue ordered by (ready tick, priority, insertion index), a set of pick
// policies, and the per-node cluster state used for distributed scenarios.
//
// The scheduler draws exclusively from the substrate RNG. Ties are broken
// by insertion index, never by host time, so a pick is a pure function of
// (queue state, policy, rng state).
package sched

// Task is a schedulable unit: one pending scenario step on one node.
type Task struct {
	// ID is the insertion index. It is unique per run, strictly
	// increasing, and the final tie-breaker in every ordering.
	ID int64

	// Node is the virtual node the task runs on.
	Node string

	// StepIndex is the scenario step this task executes.
	StepIndex int

	// Label is the step's compact kind tag, recorded in sched_pick
	// decisions.
	Label string

	// ReadyTick is the earliest virtual time the task may run.
	ReadyTick int64

	// Priority orders tasks within a tick; lower runs first. No policy
	// sets it: pct keeps its random priorities in its own table, so the
	// field stays zero unless a caller uses Queue.Reprioritize.
	Priority uint64

	heapIndex int
}
