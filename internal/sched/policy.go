package sched

import (
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/substrate"
)

// Policy selects one task from the eligible set. The eligible slice is
// always non-empty and sorted by (ReadyTick, Priority, ID), so index 0 is
// the stable-order head.
type Policy interface {
	Name() string
	Choose(eligible []*Task, r *substrate.RNG) int
}

// NewPolicy builds the named pick policy. pctDepth and horizon are only
// consulted by pct; horizon bounds the run length used to place priority
// change points.
func NewPolicy(name string, pctDepth int, horizon int, r *substrate.RNG) (Policy, error) {
	switch name {
	case "", "fifo":
		return fifoPolicy{}, nil
	case "bfs":
		return bfsPolicy{}, nil
	case "dfs":
		return dfsPolicy{}, nil
	case "random":
		return randomPolicy{}, nil
	case "pct":
		if pctDepth <= 0 {
			return nil, errs.New(errs.KindValidation, "pct policy requires a positive depth")
		}
		return newPCTPolicy(pctDepth, horizon, r), nil
	case "coverage":
		return &coveragePolicy{picked: make(map[string]int)}, nil
	default:
		return nil, errs.Newf(errs.KindValidation, "unknown scheduler policy %q", name)
	}
}

// fifoPolicy serves the stable-order head: oldest ready task first.
type fifoPolicy struct{}

func (fifoPolicy) Name() string { return "fifo" }

func (fifoPolicy) Choose(eligible []*Task, _ *substrate.RNG) int { return 0 }

// bfsPolicy explores breadth-first: the eligible task with the smallest
// step index runs first, spreading progress across nodes.
type bfsPolicy struct{}

func (bfsPolicy) Name() string { return "bfs" }

func (bfsPolicy) Choose(eligible []*Task, _ *substrate.RNG) int {
	best := 0
	for i, t := range eligible[1:] {
		if t.StepIndex < eligible[best].StepIndex {
			best = i + 1
		}
	}
	return best
}

// dfsPolicy explores depth-first: the most recently inserted eligible
// task runs first.
type dfsPolicy struct{}

func (dfsPolicy) Name() string { return "dfs" }

func (dfsPolicy) Choose(eligible []*Task, _ *substrate.RNG) int {
	best := 0
	for i, t := range eligible[1:] {
		if t.ID > eligible[best].ID {
			best = i + 1
		}
	}
	return best
}

// randomPolicy picks uniformly from the substrate RNG.
type randomPolicy struct{}

func (randomPolicy) Name() string { return "random" }

func (randomPolicy) Choose(eligible []*Task, r *substrate.RNG) int {
	return r.Pick(len(eligible))
}

// pctPolicy is probabilistic concurrency testing with depth d: each task
// gets a random priority at first sight, the lowest-priority eligible task
// runs, and at d-1 pre-drawn change points the current head is demoted.
type pctPolicy struct {
	depth        int
	prio         map[int64]uint64
	changePoints map[int]bool
	picks        int
}

func newPCTPolicy(depth, horizon int, r *substrate.RNG) *pctPolicy {
	if horizon <= 0 {
		horizon = 1000
	}
	p := &pctPolicy{
		depth:        depth,
		prio:         make(map[int64]uint64),
		changePoints: make(map[int]bool, depth-1),
	}
	for i := 0; i < depth-1; i++ {
		p.changePoints[int(r.DrawRange(0, uint64(horizon)))] = true
	}
	return p
}

func (p *pctPolicy) Name() string { return "pct" }

func (p *pctPolicy) Choose(eligible []*Task, r *substrate.RNG) int {
	for _, t := range eligible {
		if _, ok := p.prio[t.ID]; !ok {
			p.prio[t.ID] = r.DrawU64()
		}
	}
	best := 0
	for i := 1; i < len(eligible); i++ {
		if p.prio[eligible[i].ID] < p.prio[eligible[best].ID] {
			best = i
		}
	}
	if p.changePoints[p.picks] {
		p.prio[eligible[best].ID] = r.DrawU64()
		for i := 1; i < len(eligible); i++ {
			if p.prio[eligible[i].ID] < p.prio[eligible[best].ID] {
				best = i
			}
		}
	}
	p.picks++
	return best
}

// coveragePolicy prefers the eligible task whose label has been served
// least so far; ties go through the RNG so coverage runs still explore.
type coveragePolicy struct {
	picked map[string]int
}

func (p *coveragePolicy) Name() string { return "coverage" }

func (p *coveragePolicy) Choose(eligible []*Task, r *substrate.RNG) int {
	min := -1
	for _, t := range eligible {
		if n := p.picked[t.Label]; min == -1 || n < min {
			min = n
		}
	}
	var ties []int
	for i, t := range eligible {
		if p.picked[t.Label] == min {
			ties = append(ties, i)
		}
	}
	choice := ties[0]
	if len(ties) > 1 {
		choice = ties[r.Pick(len(ties))]
	}
	p.picked[eligible[choice].Label]++
	return choice
}
