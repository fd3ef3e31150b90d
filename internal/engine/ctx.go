package engine

import (
	"log/slog"

	"github.com/fozzylabs/fozzy/internal/capability"
	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/sched"
	"github.com/fozzylabs/fozzy/internal/substrate"
	"github.com/fozzylabs/fozzy/internal/trace"
)

// execCtx is the mutable state of one run. It is owned exclusively by the
// engine loop, mutated in place, and dropped at exit; nothing in it is
// shared across runs or cloned on the hot path.
type execCtx struct {
	sc   *scenario.Scenario
	opts Options
	log  *decision.Log
	slog *slog.Logger

	seed    uint64
	clock   *substrate.Clock
	rng     *substrate.RNG
	ids     *substrate.IDs
	sched   *sched.Scheduler
	cluster *sched.Cluster

	fs   *capability.FS
	http *capability.HTTPCap
	proc *capability.ProcCap
	net  *capability.Net
	mem  *capability.Ledger

	// kv holds the per-node key/value stores replicated through net.
	kv map[string]map[string]string

	// Scenario program state: the cursor into the step list and the
	// currently queued step task.
	stepCursor int
	stepTask   *sched.Task

	// Last effect results, resolvable by assert selectors.
	lastProc *capability.ProcResult
	lastHTTP *capability.Response
	lastRand *uint64

	faults map[string]bool

	events        []trace.Event
	stepsExecuted int
	latencies     []float64
	maxSteps      int
	maxTicks      int64
	maxDecisions  int

	outcome        Outcome
	failureKind    errs.Kind
	failureMessage string
	done           bool
}

func newExecCtx(sc *scenario.Scenario, seed uint64, log *decision.Log, opts Options) (*execCtx, error) {
	rng := substrate.NewRNG(seed)
	cluster := sched.NewCluster(sc.Nodes())

	maxSteps := sc.Limits.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}

	scheduler, err := sched.New(policyName(sc, opts), sc.PCTDepth, maxSteps, cluster, rng)
	if err != nil {
		return nil, err
	}

	net, err := capability.NewNet(sc.Net)
	if err != nil {
		return nil, err
	}

	mem := sc.Memory
	if opts.MemLimitMB > 0 {
		mem.LimitMB = opts.MemLimitMB
	}
	if opts.MemFailAfter > 0 {
		mem.FailAfter = opts.MemFailAfter
	}

	ids := substrate.NewIDs()

	ctx := &execCtx{
		sc:      sc,
		opts:    opts,
		log:     log,
		slog:    opts.logger(),
		seed:    seed,
		clock:   substrate.NewClock(),
		rng:     rng,
		ids:     ids,
		sched:   scheduler,
		cluster: cluster,
		fs:      capability.NewFS(sc.FS),
		http:    capability.NewHTTP(sc.HTTP),
		proc:    capability.NewProc(sc.Proc),
		net:     net,
		mem:     capability.NewLedger(mem, ids),
		kv:      make(map[string]map[string]string),
		faults:  make(map[string]bool),

		maxSteps:     maxSteps,
		maxTicks:     sc.Limits.MaxTicks,
		maxDecisions: sc.Limits.MaxDecisions,
		outcome:      OutcomePass,
	}

	if opts.FSHostRoot != "" {
		ctx.fs.WithHost(opts.FSHostRoot)
	}
	if opts.HTTPHost {
		ctx.http.WithHost(opts.hostTimeout())
	}
	if opts.ProcHost {
		ctx.proc.WithHost(opts.hostTimeout())
	}

	for _, n := range sc.Nodes() {
		ctx.kv[n] = make(map[string]string)
	}
	return ctx, nil
}

func policyName(sc *scenario.Scenario, opts Options) string {
	if opts.Policy != "" {
		return opts.Policy
	}
	return sc.Policy
}

// now returns the current virtual tick.
func (c *execCtx) now() int64 {
	return c.clock.Now()
}

// node resolves a step's node, defaulting to the scenario's first node.
func (c *execCtx) node(step scenario.Step) string {
	if step.Node != "" {
		return step.Node
	}
	return c.sc.DefaultNode()
}

// emit appends a timeline event unless the run is lite.
func (c *execCtx) emit(name string, fields map[string]any) {
	if c.opts.Lite {
		return
	}
	c.events = append(c.events, trace.Event{Tick: c.now(), Name: name, Fields: fields})
}

// fail finalizes the run with the outcome class the kind maps to.
func (c *execCtx) fail(kind errs.Kind, message string) {
	c.outcome = outcomeForKind(kind)
	c.failureKind = kind
	c.failureMessage = message
	if !c.opts.KeepGoing || c.outcome != OutcomeFail {
		c.done = true
	}
}

// scheduleNext queues the task for the next scenario step, if any.
func (c *execCtx) scheduleNext(readyTick int64) {
	if c.stepCursor >= len(c.sc.Steps) {
		c.stepTask = nil
		return
	}
	step := c.sc.Steps[c.stepCursor]
	c.stepTask = c.sched.Add(c.node(step), c.stepCursor, step.Kind(), readyTick)
	c.stepCursor++
}

// observeAdvance moves virtual time forward to target, recording the
// auto-advance as a time_tick decision. On replay a different computed
// target is drift.
func (c *execCtx) observeAdvance(target int64) error {
	payload, err := c.log.Observe(decision.KindTimeTick, "advance", func() (map[string]any, error) {
		return map[string]any{"to": target}, nil
	})
	if err != nil {
		return err
	}
	if got := payloadInt(payload, "to"); got != target {
		return errs.Newf(errs.KindDrift, "time advance mismatch: log has tick %d, engine computed %d", got, target)
	}
	c.clock.AdvanceTo(target)
	return nil
}

// kvSet writes key=value on node and replicates it to the rest of the
// topology as versioned writes.
func (c *execCtx) kvSet(node, key, value string) {
	if c.kv[node] == nil {
		c.kv[node] = make(map[string]string)
	}
	nodes := c.sc.Nodes()
	if len(nodes) <= 1 {
		c.kv[node][key] = value
		return
	}
	version := c.net.NextVersion(key)
	c.kv[node][key] = value
	c.net.MarkApplied(node, key, version)
	for _, peer := range nodes {
		if peer == node {
			continue
		}
		c.net.SendVersioned(c.now(), node, peer, key, value, version)
	}
}

// deliverOne delivers the next eligible message (optionally filtered to a
// destination) and applies replicated writes.
func (c *execCtx) deliverOne(to string) (bool, error) {
	res, ok, err := c.net.DeliverOne(c.log, c.rng, c.now(), to, c.cluster)
	if err != nil || !ok {
		return ok, err
	}
	m := res.Message
	if res.Dropped {
		c.emit("net_drop", map[string]any{"from": m.From, "to": m.To, "reason": res.Reason})
		return true, nil
	}
	if m.Key != "" {
		if c.kv[m.To] == nil {
			c.kv[m.To] = make(map[string]string)
		}
		c.kv[m.To][m.Key] = m.Value
	}
	c.emit("net_deliver", map[string]any{"from": m.From, "to": m.To, "seq": m.Seq})
	return true, nil
}

func payloadInt(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
