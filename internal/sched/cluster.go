package sched

import "github.com/fozzylabs/fozzy/internal/errs"

// Cluster tracks per-node liveness and the symmetric partition matrix for
// distributed scenarios. A single-node scenario gets a one-node cluster
// with nothing ever blocked.
type Cluster struct {
	nodes   []string
	index   map[string]int
	blocked [][]bool
	crashed []bool
}

// NewCluster creates a fully-connected cluster of live nodes.
func NewCluster(nodes []string) *Cluster {
	c := &Cluster{
		nodes:   append([]string(nil), nodes...),
		index:   make(map[string]int, len(nodes)),
		blocked: make([][]bool, len(nodes)),
		crashed: make([]bool, len(nodes)),
	}
	for i, n := range nodes {
		c.index[n] = i
		c.blocked[i] = make([]bool, len(nodes))
	}
	return c
}

// Nodes returns the node names in declaration order.
func (c *Cluster) Nodes() []string {
	return c.nodes
}

// Has reports whether the node exists.
func (c *Cluster) Has(node string) bool {
	_, ok := c.index[node]
	return ok
}

// Partition splits the cluster into the given groups. Edges within a
// group stay open; edges across groups are blocked. Nodes not named in
// any group form one implicit extra group.
func (c *Cluster) Partition(groups [][]string) error {
	group := make([]int, len(c.nodes))
	for i := range group {
		group[i] = -1
	}
	for gi, g := range groups {
		for _, name := range g {
			idx, ok := c.index[name]
			if !ok {
				return errs.Newf(errs.KindValidation, "partition references unknown node %q", name)
			}
			group[idx] = gi
		}
	}
	implicit := len(groups)
	for i := range group {
		if group[i] == -1 {
			group[i] = implicit
		}
	}
	for i := range c.nodes {
		for j := range c.nodes {
			c.blocked[i][j] = group[i] != group[j]
		}
	}
	return nil
}

// Heal removes all partitions.
func (c *Cluster) Heal() {
	for i := range c.blocked {
		for j := range c.blocked[i] {
			c.blocked[i][j] = false
		}
	}
}

// Crash marks a node dead. Its tasks become ineligible and deliveries to
// it stall until restart.
func (c *Cluster) Crash(node string) error {
	idx, ok := c.index[node]
	if !ok {
		return errs.Newf(errs.KindValidation, "crash references unknown node %q", node)
	}
	c.crashed[idx] = true
	return nil
}

// Restart revives a crashed node.
func (c *Cluster) Restart(node string) error {
	idx, ok := c.index[node]
	if !ok {
		return errs.Newf(errs.KindValidation, "restart references unknown node %q", node)
	}
	c.crashed[idx] = false
	return nil
}

// Live reports whether a node is up. Unknown nodes are treated as the
// implicit default node and always live.
func (c *Cluster) Live(node string) bool {
	idx, ok := c.index[node]
	if !ok {
		return true
	}
	return !c.crashed[idx]
}

// Reachable reports whether a message may flow from a to b: both ends
// live and the edge unblocked by the partition mask.
func (c *Cluster) Reachable(a, b string) bool {
	ai, aok := c.index[a]
	bi, bok := c.index[b]
	if !aok || !bok {
		return c.Live(a) && c.Live(b)
	}
	return !c.crashed[ai] && !c.crashed[bi] && !c.blocked[ai][bi]
}
