package engine

import (
	"fmt"
	"strconv"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/scenario"
)

// executeStep dispatches one step. A returned error is step-level: the
// loop classifies it into an outcome (or propagates fatal kinds). Guarded
// blocks call this for their inner steps with guarded=true.
func (c *execCtx) executeStep(idx int, step scenario.Step, guarded bool) error {
	switch step.Type {
	case scenario.StepTraceEvent:
		c.emit(step.Name, step.Fields)

	case scenario.StepRandU64:
		v := c.rng.DrawU64()
		label := step.Key
		if label == "" {
			label = "rand_u64"
		}
		// Full-range u64 values survive JSON decoding only as strings.
		payload, err := c.log.Observe(decision.KindRNGDraw, label, func() (map[string]any, error) {
			return map[string]any{"value": strconv.FormatUint(v, 10)}, nil
		})
		if err != nil {
			return err
		}
		if got := payload["value"]; got != strconv.FormatUint(v, 10) {
			return errs.Newf(errs.KindDrift, "rng draw mismatch: log has %v, engine drew %d", got, v)
		}
		c.lastRand = &v

	case scenario.StepSetRNG:
		c.rng.Reseed(*step.Seed)

	case scenario.StepSleep:
		// Completion handled by the caller: the next step wakes after
		// the duration; the clock advances through the scheduler.

	case scenario.StepAdvanceTime:
		d, _ := scenario.ParseTicks(step.Duration)
		c.clock.Advance(d)

	case scenario.StepKVSet:
		c.kvSet(c.node(step), step.Key, fmt.Sprint(valueOrEmpty(step.Value)))

	case scenario.StepKVGetAssert:
		got, ok := c.kv[c.node(step)][step.Key]
		switch {
		case step.Absent && ok:
			return assertionf("kv %q on %s: expected absent, found %q", step.Key, c.node(step), got)
		case step.Equals != nil && (!ok || got != *step.Equals):
			return assertionf("kv %q on %s: expected %q, got %q (present=%v)", step.Key, c.node(step), *step.Equals, got, ok)
		case !step.Absent && step.Equals == nil && !ok:
			return assertionf("kv %q on %s: expected present", step.Key, c.node(step))
		}

	case scenario.StepFSWrite:
		c.fs.Write(step.Path, step.Data)

	case scenario.StepFSReadAssert:
		var got string
		var ok bool
		if c.opts.FSHostRoot != "" {
			data, err := c.fs.HostRead(c.log, step.Path)
			if err != nil {
				return err
			}
			got, ok = data, true
		} else {
			got, ok = c.fs.Read(step.Path)
		}
		if !ok {
			return assertionf("fs %q: no such file", step.Path)
		}
		if got != step.Data {
			return assertionf("fs %q: expected %q, got %q", step.Path, step.Data, got)
		}

	case scenario.StepFSSnapshot:
		c.fs.Snapshot(step.Name)

	case scenario.StepFSRestore:
		if err := c.fs.Restore(step.Name); err != nil {
			return err
		}

	case scenario.StepHTTPRequest:
		resp, err := c.http.Request(c.log, step.Method, step.URL)
		if err != nil {
			return err
		}
		c.lastHTTP = &resp

	case scenario.StepProcSpawn:
		res, err := c.proc.Spawn(c.log, step.Cmd)
		if err != nil {
			return err
		}
		c.lastProc = &res

	case scenario.StepNetSend:
		c.net.Send(c.now(), step.From, step.To, step.Key, fmt.Sprint(valueOrEmpty(step.Value)), step.Payload)

	case scenario.StepNetDeliver:
		return c.netDeliverStep(step)

	case scenario.StepNetRecv:
		return c.netRecvStep(step)

	case scenario.StepMemAlloc:
		out, err := c.mem.Alloc(c.log, step.Bytes, step.Tag, idx, step.Type, c.now())
		if err != nil {
			return err
		}
		if out.FailedReason != "" {
			return errs.Newf(errs.KindOOM, "allocation of %d bytes failed: %s", step.Bytes, out.FailedReason)
		}

	case scenario.StepMemFree:
		if !c.mem.FreeTag(step.Tag, c.now()) {
			return assertionf("mem_free: no live allocation tagged %q", step.Tag)
		}

	case scenario.StepAssertOK:
		if !c.evalPred(step.Pred, step) {
			return assertionf("assert_ok: predicate %s is false%s", step.Pred, msgSuffix(step.Msg))
		}

	case scenario.StepAssertEq, scenario.StepAssertNe:
		return c.assertCompare(step)

	case scenario.StepAssertThrows, scenario.StepAssertRejects:
		return c.assertGuarded(step)

	case scenario.StepEventually:
		return c.eventually(step)

	case scenario.StepNever:
		return c.never(step)

	case scenario.StepInvariantCheck:
		for _, inv := range c.sc.Invariants {
			if inv.Name == step.Name {
				return c.checkInvariant(inv)
			}
		}
		return errs.Newf(errs.KindInternal, "invariant %q vanished after validation", step.Name)

	case scenario.StepFail:
		return assertionf("fail step%s", msgSuffix(step.Message))

	case scenario.StepPanic:
		c.outcome = OutcomeCrash
		c.failureKind = errs.KindInternal
		c.failureMessage = "panic step: " + step.Message
		c.done = true

	case scenario.StepPartition:
		if err := c.cluster.Partition(step.Groups); err != nil {
			return err
		}
		c.emit("partition", map[string]any{"groups": len(step.Groups)})
		return c.checkInvariants()

	case scenario.StepHeal:
		c.cluster.Heal()
		c.emit("heal", nil)
		return c.checkInvariants()

	case scenario.StepCrash:
		if err := c.cluster.Crash(step.Node); err != nil {
			return err
		}
		c.net.DropPendingFrom(step.Node)
		c.emit("crash", map[string]any{"node": step.Node})
		return c.checkInvariants()

	case scenario.StepRestart:
		if err := c.cluster.Restart(step.Node); err != nil {
			return err
		}
		c.emit("restart", map[string]any{"node": step.Node})
		return c.checkInvariants()

	case scenario.StepInjectFault:
		if _, err := c.log.Observe(decision.KindFaultFire, step.Name, func() (map[string]any, error) {
			return map[string]any{"tick": c.now()}, nil
		}); err != nil {
			return err
		}
		c.faults[step.Name] = true
		c.emit("fault_fire", map[string]any{"name": step.Name})
		return c.checkInvariants()

	default:
		return errs.Newf(errs.KindInternal, "unvalidated step type %q reached the engine", step.Type)
	}
	return nil
}

func (c *execCtx) netDeliverStep(step scenario.Step) error {
	delivered, err := c.deliverOne(step.To)
	if err != nil {
		return err
	}
	if delivered {
		return nil
	}
	// Nothing deliverable yet: advance to the next in-flight message.
	target, ok := c.net.NextDeliverTick(c.cluster)
	if !ok {
		return errs.New(errs.KindCapability, "net_deliver: no deliverable message")
	}
	if err := c.observeAdvance(target); err != nil {
		return err
	}
	if _, err := c.deliverOne(step.To); err != nil {
		return err
	}
	return nil
}

func (c *execCtx) netRecvStep(step scenario.Step) error {
	budget := int64(DefaultRecvBudget)
	if step.Budget != "" {
		budget, _ = scenario.ParseTicks(step.Budget)
	}
	deadline := c.now() + budget
	for {
		if m, ok := c.net.Recv(step.Node); ok {
			c.emit("net_recv", map[string]any{"node": step.Node, "seq": m.Seq})
			return nil
		}
		progressed, err := c.driveNetwork(deadline)
		if err != nil {
			return err
		}
		if !progressed {
			return errs.Newf(errs.KindTimeout, "net_recv on %s: no message within %d ticks", step.Node, budget)
		}
	}
}

// driveNetwork makes one unit of network progress: deliver an eligible
// message, or advance time to the next in-flight one within the deadline.
// Returns false when no further progress is possible before the deadline.
func (c *execCtx) driveNetwork(deadline int64) (bool, error) {
	if c.net.Deliverable(c.now(), c.cluster) {
		return c.deliverOne("")
	}
	target, ok := c.net.NextDeliverTick(c.cluster)
	if !ok || target > deadline {
		return false, nil
	}
	if err := c.observeAdvance(target); err != nil {
		return false, err
	}
	return true, nil
}

func assertionf(format string, args ...any) error {
	return errs.Newf(errs.KindAssertion, format, args...)
}

func msgSuffix(msg string) string {
	if msg == "" {
		return ""
	}
	return ": " + msg
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
