package engine

import (
	"fmt"
	"math"

	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/scenario"
)

// assertCompare handles assert_eq / assert_ne over either two literals or
// an `of:` selector against an expected value.
func (c *execCtx) assertCompare(step scenario.Step) error {
	var left, right any
	if step.Of != "" {
		got, err := c.resolveSelector(step.Of)
		if err != nil {
			return err
		}
		left, right = got, step.Value
	} else {
		left, right = step.A, step.B
	}

	equal := valueEqual(left, right)
	if step.Type == scenario.StepAssertEq && !equal {
		return assertionf("assert_eq: %v != %v%s", left, right, msgSuffix(step.Msg))
	}
	if step.Type == scenario.StepAssertNe && equal {
		return assertionf("assert_ne: %v == %v%s", left, right, msgSuffix(step.Msg))
	}
	return nil
}

// resolveSelector reads a result field of the preceding effect.
func (c *execCtx) resolveSelector(of string) (any, error) {
	switch of {
	case "proc.stdout":
		if c.lastProc == nil {
			return nil, assertionf("selector %s: no proc_spawn has run", of)
		}
		return c.lastProc.Stdout, nil
	case "proc.stderr":
		if c.lastProc == nil {
			return nil, assertionf("selector %s: no proc_spawn has run", of)
		}
		return c.lastProc.Stderr, nil
	case "proc.exit":
		if c.lastProc == nil {
			return nil, assertionf("selector %s: no proc_spawn has run", of)
		}
		return int64(c.lastProc.Exit), nil
	case "http.status":
		if c.lastHTTP == nil {
			return nil, assertionf("selector %s: no http_request has run", of)
		}
		return int64(c.lastHTTP.Status), nil
	case "http.body":
		if c.lastHTTP == nil {
			return nil, assertionf("selector %s: no http_request has run", of)
		}
		return c.lastHTTP.Body, nil
	case "rand.last":
		if c.lastRand == nil {
			return nil, assertionf("selector %s: no rand_u64 has run", of)
		}
		return *c.lastRand, nil
	case "mem.in_use":
		return c.mem.InUse(), nil
	default:
		return nil, errs.Newf(errs.KindInternal, "unvalidated selector %q reached the engine", of)
	}
}

// valueEqual compares loosely across the numeric shapes YAML and JSON
// decoding produce: integral numbers compare by value, everything else by
// string form.
func valueEqual(a, b any) bool {
	an, aIsNum := asInt(a)
	bn, bIsNum := asInt(b)
	if aIsNum && bIsNum {
		return an == bn
	}
	if aIsNum != bIsNum {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

// assertGuarded runs the inner steps against a thin overlay and rewinds
// their mutations. The assertion passes iff the body produces an error of
// the expected kind; fatal kinds still abort the run.
func (c *execCtx) assertGuarded(step scenario.Step) error {
	fsToken := c.fs.PushLayer()
	c.mem.BeginJournal()
	netMark := c.net.Seq()
	kvPrev := make(map[string]map[string]string, len(c.kv))
	for node, store := range c.kv {
		prev := make(map[string]string, len(store))
		for k, v := range store {
			prev[k] = v
		}
		kvPrev[node] = prev
	}

	var innerErr error
	for i, inner := range step.Steps {
		if err := c.executeStep(i, inner, true); err != nil {
			innerErr = err
			break
		}
	}

	// Rewind: the guarded body's state changes are discarded whether or
	// not the expected error occurred.
	c.fs.TruncateTo(fsToken)
	c.mem.Rollback()
	c.net.RollbackTo(netMark)
	c.kv = kvPrev

	if innerErr != nil && errs.Fatal(errs.KindOf(innerErr)) {
		return innerErr
	}
	if innerErr == nil {
		return assertionf("%s: expected %s error, body succeeded", step.Type, step.ErrKind)
	}
	if got := errs.KindOf(innerErr); string(got) != step.ErrKind {
		return assertionf("%s: expected %s error, got %s: %v", step.Type, step.ErrKind, got, innerErr)
	}
	return nil
}

// eventually polls the predicate after each unit of network progress
// until it holds or the virtual-time budget expires. A partition that
// never heals within budget fails the run as timeout.
func (c *execCtx) eventually(step scenario.Step) error {
	budget, _ := scenario.ParseTicks(step.Budget)
	deadline := c.now() + budget
	for {
		if c.evalPred(step.Pred, step) {
			return nil
		}
		progressed, err := c.driveNetwork(deadline)
		if err != nil {
			return err
		}
		if !progressed {
			return errs.Newf(errs.KindTimeout, "eventually %s: predicate still false after %d ticks", step.Pred, budget)
		}
	}
}

// never passes iff the predicate stays false across the budget.
func (c *execCtx) never(step scenario.Step) error {
	budget, _ := scenario.ParseTicks(step.Budget)
	deadline := c.now() + budget
	for {
		if c.evalPred(step.Pred, step) {
			return assertionf("never %s: predicate became true at tick %d", step.Pred, c.now())
		}
		progressed, err := c.driveNetwork(deadline)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// evalPred evaluates a named predicate with the step's arguments.
func (c *execCtx) evalPred(pred string, step scenario.Step) bool {
	switch pred {
	case scenario.PredKVPresentOnAll:
		want := fmt.Sprint(valueOrEmpty(step.Value))
		for _, n := range c.sc.Nodes() {
			if c.kv[n][step.Key] != want {
				return false
			}
		}
		return true
	case scenario.PredKVPresent:
		want := fmt.Sprint(valueOrEmpty(step.Value))
		return c.kv[c.node(step)][step.Key] == want
	case scenario.PredKVAbsent:
		_, ok := c.kv[c.node(step)][step.Key]
		return !ok
	case scenario.PredMemInUseBelow:
		return c.mem.InUse() < step.Bytes
	case scenario.PredNoPendingMsgs:
		return c.net.Pending() == 0
	default:
		return false
	}
}

// checkInvariant evaluates one scenario invariant.
func (c *execCtx) checkInvariant(inv scenario.Invariant) error {
	step := scenario.Step{Key: inv.Key, Value: inv.Value, Bytes: inv.Bytes}
	if !c.evalPred(inv.Pred, step) {
		return assertionf("invariant %q violated: %s is false", inv.Name, inv.Pred)
	}
	return nil
}

// checkInvariants runs every scenario invariant after a control step.
func (c *execCtx) checkInvariants() error {
	for _, inv := range c.sc.Invariants {
		if err := c.checkInvariant(inv); err != nil {
			return err
		}
	}
	return nil
}
