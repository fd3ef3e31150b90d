package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/sched"
	"github.com/fozzylabs/fozzy/internal/substrate"
)

func newTestNet(t *testing.T, cfg scenario.NetConfig) (*Net, *sched.Cluster) {
	t.Helper()
	n, err := NewNet(cfg)
	require.NoError(t, err)
	nodes := cfg.Nodes
	if len(nodes) == 0 {
		nodes = []string{"a", "b", "c"}
	}
	return n, sched.NewCluster(nodes)
}

func deliverAll(t *testing.T, n *Net, cluster *sched.Cluster, now int64) []DeliverResult {
	t.Helper()
	log := decision.NewRecorder()
	rng := substrate.NewRNG(1)
	var out []DeliverResult
	for {
		res, ok, err := n.DeliverOne(log, rng, now, "", cluster)
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, res)
	}
	return out
}

func TestNet_FIFODeliveryOrder(t *testing.T) {
	n, cluster := newTestNet(t, scenario.NetConfig{Nodes: []string{"a", "b"}, Latency: "1"})

	n.Send(0, "a", "b", "", "", "first")
	n.Send(0, "a", "b", "", "", "second")
	n.Send(0, "a", "b", "", "", "third")

	results := deliverAll(t, n, cluster, 10)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Message.Payload)
	assert.Equal(t, "second", results[1].Message.Payload)
	assert.Equal(t, "third", results[2].Message.Payload)

	m, ok := n.Recv("b")
	require.True(t, ok)
	assert.Equal(t, "first", m.Payload)
}

func TestNet_LatencyGatesDelivery(t *testing.T) {
	n, cluster := newTestNet(t, scenario.NetConfig{Nodes: []string{"a", "b"}, Latency: "5"})
	n.Send(0, "a", "b", "", "", "x")

	assert.False(t, n.Deliverable(4, cluster))
	assert.True(t, n.Deliverable(5, cluster))

	next, ok := n.NextDeliverTick(cluster)
	require.True(t, ok)
	assert.Equal(t, int64(5), next)
}

func TestNet_PartitionBlocksThenHealReleasesFIFO(t *testing.T) {
	n, cluster := newTestNet(t, scenario.NetConfig{Nodes: []string{"a", "b", "c"}, Latency: "1"})
	require.NoError(t, cluster.Partition([][]string{{"a"}, {"b", "c"}}))

	n.Send(0, "a", "b", "", "", "m1")
	n.Send(1, "a", "b", "", "", "m2")

	assert.Empty(t, deliverAll(t, n, cluster, 100), "partitioned edge must not deliver")
	assert.Equal(t, 2, n.Pending())

	cluster.Heal()
	results := deliverAll(t, n, cluster, 100)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].Message.Payload)
	assert.Equal(t, "m2", results[1].Message.Payload)
}

func TestNet_StaleReplicatedWriteDropped(t *testing.T) {
	n, cluster := newTestNet(t, scenario.NetConfig{Nodes: []string{"a", "b"}, Latency: "1"})

	v1 := n.NextVersion("k")
	v2 := n.NextVersion("k")
	// Newer write arrives first; the older one must be rejected as stale.
	n.SendVersioned(0, "a", "b", "k", "new", v2)
	n.SendVersioned(1, "a", "b", "k", "old", v1)

	results := deliverAll(t, n, cluster, 100)
	require.Len(t, results, 2)
	assert.False(t, results[0].Dropped)
	assert.Equal(t, "new", results[0].Message.Value)
	assert.True(t, results[1].Dropped)
	assert.Equal(t, "stale", results[1].Reason)
}

func TestNet_LossyDropsAreRecorded(t *testing.T) {
	n, cluster := newTestNet(t, scenario.NetConfig{Nodes: []string{"a", "b"}, Policy: "lossy", DropRatePct: 100, Latency: "1"})
	n.Send(0, "a", "b", "", "", "doomed")

	log := decision.NewRecorder()
	res, ok, err := n.DeliverOne(log, substrate.NewRNG(1), 10, "", cluster)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, res.Dropped)
	assert.Equal(t, "lossy", res.Reason)
	require.Equal(t, 1, log.Len())
	assert.Equal(t, decision.KindNetDrop, log.Decisions()[0].Kind)
	assert.Equal(t, 0, n.InboxLen("b"))
}

func TestNet_DeliveriesRecordedAndReplayable(t *testing.T) {
	n, cluster := newTestNet(t, scenario.NetConfig{Nodes: []string{"a", "b"}, Latency: "1"})
	n.Send(0, "a", "b", "k", "v", "")

	log := decision.NewRecorder()
	_, ok, err := n.DeliverOne(log, substrate.NewRNG(1), 10, "", cluster)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, log.Len())
	d := log.Decisions()[0]
	assert.Equal(t, decision.KindNetDeliver, d.Kind)
	assert.Equal(t, "a->b#1", d.Label)

	// Replay with the same sequence of sends consumes the same decision.
	n2, cluster2 := newTestNet(t, scenario.NetConfig{Nodes: []string{"a", "b"}, Latency: "1"})
	n2.Send(0, "a", "b", "k", "v", "")
	replay := decision.NewReplayer(log.Decisions())
	_, ok, err = n2.DeliverOne(replay, substrate.NewRNG(1), 10, "", cluster2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, replay.VerifyConsumed())
}

func TestNet_DropPendingFrom(t *testing.T) {
	n, _ := newTestNet(t, scenario.NetConfig{Nodes: []string{"a", "b", "c"}, Latency: "1"})
	n.Send(0, "a", "b", "", "", "1")
	n.Send(0, "a", "c", "", "", "2")
	n.Send(0, "b", "c", "", "", "3")

	assert.Equal(t, 2, n.DropPendingFrom("a"))
	assert.Equal(t, 1, n.Pending())
}
