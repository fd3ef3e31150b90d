package capability

import (
	"fmt"
	"sort"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/sched"
	"github.com/fozzylabs/fozzy/internal/substrate"
)

// Message is one in-flight or delivered network message.
type Message struct {
	From    string
	To      string
	Key     string // non-empty marks a replicated KV write
	Value   string
	Version int64
	Payload string

	DeliverTick int64
	Seq         int64
}

func (m *Message) label() string {
	return fmt.Sprintf("%s->%s#%d", m.From, m.To, m.Seq)
}

// Net is the virtual network: one delivery queue per destination ordered
// by (deliver tick, stable seq), per-key version ordering on replicated
// writes, and a delivery policy (reliable FIFO, lossy-random, or pct).
type Net struct {
	policy      string
	dropRatePct int
	latency     int64

	queues  map[string][]*Message
	inboxes map[string][]*Message
	seq     int64

	sendVersion map[string]int64
	applied     map[string]int64
}

// NewNet creates the network capability from the scenario topology.
func NewNet(cfg scenario.NetConfig) (*Net, error) {
	latency := int64(1)
	if cfg.Latency != "" {
		t, err := scenario.ParseTicks(cfg.Latency)
		if err != nil {
			return nil, err
		}
		latency = t
	}
	policy := cfg.Policy
	if policy == "" {
		policy = "fifo"
	}
	return &Net{
		policy:      policy,
		dropRatePct: cfg.DropRatePct,
		latency:     latency,
		queues:      make(map[string][]*Message),
		inboxes:     make(map[string][]*Message),
		sendVersion: make(map[string]int64),
		applied:     make(map[string]int64),
	}, nil
}

// Send enqueues a message. Replicated KV writes (key != "") get the key's
// next version so stale deliveries can be rejected later.
func (n *Net) Send(now int64, from, to, key, value, payload string) *Message {
	n.seq++
	m := &Message{
		From:        from,
		To:          to,
		Key:         key,
		Value:       value,
		Payload:     payload,
		DeliverTick: now + n.latency,
		Seq:         n.seq,
	}
	if key != "" {
		n.sendVersion[key]++
		m.Version = n.sendVersion[key]
	}
	n.insert(m)
	return m
}

// SendVersioned enqueues a replicated write carrying an existing version,
// used when one logical write fans out to several destinations.
func (n *Net) SendVersioned(now int64, from, to, key, value string, version int64) *Message {
	n.seq++
	m := &Message{
		From:        from,
		To:          to,
		Key:         key,
		Value:       value,
		Version:     version,
		DeliverTick: now + n.latency,
		Seq:         n.seq,
	}
	n.insert(m)
	return m
}

// NextVersion advances and returns the version counter for key.
func (n *Net) NextVersion(key string) int64 {
	n.sendVersion[key]++
	return n.sendVersion[key]
}

func (n *Net) insert(m *Message) {
	q := n.queues[m.To]
	i := sort.Search(len(q), func(i int) bool {
		if q[i].DeliverTick != m.DeliverTick {
			return q[i].DeliverTick > m.DeliverTick
		}
		return q[i].Seq > m.Seq
	})
	q = append(q, nil)
	copy(q[i+1:], q[i:])
	q[i] = m
	n.queues[m.To] = q
}

// Pending returns the number of undelivered messages.
func (n *Net) Pending() int {
	total := 0
	for _, q := range n.queues {
		total += len(q)
	}
	return total
}

// NextDeliverTick returns the earliest deliver tick among queued messages
// whose edge currently passes the partition mask.
func (n *Net) NextDeliverTick(cluster *sched.Cluster) (int64, bool) {
	found := false
	var min int64
	for _, q := range n.queues {
		for _, m := range q {
			if !cluster.Reachable(m.From, m.To) {
				continue
			}
			if !found || m.DeliverTick < min {
				min = m.DeliverTick
				found = true
			}
			break // queue is ordered; the head is the earliest
		}
	}
	return min, found
}

// Deliverable reports whether any message can be delivered at now.
func (n *Net) Deliverable(now int64, cluster *sched.Cluster) bool {
	t, ok := n.NextDeliverTick(cluster)
	return ok && t <= now
}

// DeliverResult describes one delivery attempt.
type DeliverResult struct {
	Message *Message
	Dropped bool
	Reason  string // "lossy" or "stale" when dropped
}

// DeliverOne pops the head of the eligible destination's queue. With an
// empty to, the eligible head of every destination is considered and the
// one with the smallest (deliver tick, seq) wins; destinations are visited
// in sorted order, keeping the choice independent of map iteration.
//
// Drops — lossy policy or stale replicated writes — are recorded as
// net_drop; deliveries as net_deliver. Returns ok=false when nothing is
// deliverable.
func (n *Net) DeliverOne(log *decision.Log, rng *substrate.RNG, now int64, to string, cluster *sched.Cluster) (DeliverResult, bool, error) {
	m := n.head(now, to, cluster)
	if m == nil {
		return DeliverResult{}, false, nil
	}

	drop := false
	reason := ""
	if n.policy == "lossy" && n.dropRatePct > 0 {
		if int(rng.DrawRange(0, 100)) < n.dropRatePct {
			drop = true
			reason = "lossy"
		}
	}
	if !drop && m.Key != "" && m.Version <= n.applied[appliedKey(m.To, m.Key)] {
		drop = true
		reason = "stale"
	}

	if drop {
		if _, err := log.Observe(decision.KindNetDrop, m.label(), func() (map[string]any, error) {
			return map[string]any{"reason": reason, "tick": now}, nil
		}); err != nil {
			return DeliverResult{}, false, err
		}
		n.remove(m)
		return DeliverResult{Message: m, Dropped: true, Reason: reason}, true, nil
	}

	payload := map[string]any{"from": m.From, "to": m.To, "tick": now}
	if m.Key != "" {
		payload["key"] = m.Key
		payload["version"] = m.Version
	}
	if _, err := log.Observe(decision.KindNetDeliver, m.label(), func() (map[string]any, error) {
		return payload, nil
	}); err != nil {
		return DeliverResult{}, false, err
	}

	n.remove(m)
	if m.Key != "" {
		n.applied[appliedKey(m.To, m.Key)] = m.Version
	}
	n.inboxes[m.To] = append(n.inboxes[m.To], m)
	return DeliverResult{Message: m}, true, nil
}

// head finds the next deliverable message without removing it.
func (n *Net) head(now int64, to string, cluster *sched.Cluster) *Message {
	dests := []string{to}
	if to == "" {
		dests = dests[:0]
		for d := range n.queues {
			if len(n.queues[d]) > 0 {
				dests = append(dests, d)
			}
		}
		sort.Strings(dests)
	}
	var best *Message
	for _, d := range dests {
		for _, m := range n.queues[d] {
			if m.DeliverTick > now {
				break
			}
			if !cluster.Reachable(m.From, m.To) {
				continue
			}
			if best == nil || m.DeliverTick < best.DeliverTick || (m.DeliverTick == best.DeliverTick && m.Seq < best.Seq) {
				best = m
			}
			break
		}
	}
	return best
}

func (n *Net) remove(m *Message) {
	q := n.queues[m.To]
	for i, x := range q {
		if x == m {
			n.queues[m.To] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

// Recv pops the head of node's inbox. ok=false when the inbox is empty.
func (n *Net) Recv(node string) (*Message, bool) {
	inbox := n.inboxes[node]
	if len(inbox) == 0 {
		return nil, false
	}
	m := inbox[0]
	n.inboxes[node] = inbox[1:]
	return m, true
}

// InboxLen returns the number of delivered-but-unreceived messages.
func (n *Net) InboxLen(node string) int {
	return len(n.inboxes[node])
}

// DropPendingFrom discards queued messages originated by a cancelled
// owner. Cancellation drains deliveries the task owned.
func (n *Net) DropPendingFrom(from string) int {
	dropped := 0
	for to, q := range n.queues {
		kept := q[:0]
		for _, m := range q {
			if m.From == from {
				dropped++
				continue
			}
			kept = append(kept, m)
		}
		n.queues[to] = kept
	}
	return dropped
}

// MarkApplied records that node has applied version of key locally, so a
// later replicated delivery of an older write is rejected as stale.
func (n *Net) MarkApplied(node, key string, version int64) {
	n.applied[appliedKey(node, key)] = version
}

// Seq returns the last assigned message sequence number. Guarded blocks
// mark here and roll back with RollbackTo.
func (n *Net) Seq() int64 {
	return n.seq
}

// RollbackTo discards queued messages enqueued after the mark. Delivered
// messages are not recalled; guarded blocks run atomically, so nothing
// enqueued inside one can have been delivered yet.
func (n *Net) RollbackTo(mark int64) {
	for to, q := range n.queues {
		kept := q[:0]
		for _, m := range q {
			if m.Seq > mark {
				continue
			}
			kept = append(kept, m)
		}
		n.queues[to] = kept
	}
	n.seq = mark
}

func appliedKey(node, key string) string {
	return node + "\x00" + key
}
