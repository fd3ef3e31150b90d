// Package engine drives scenario execution: it wires the deterministic
// substrate, scheduler, capabilities, and decision log together and steps
// the scenario until terminal.
//
// Everything observable is a pure function of (scenario, seed, decision
// log). In record mode the log captures live choices; in replay mode the
// log supplies them and any mismatch is drift.
package engine

import (
	"log/slog"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/sched"
	"github.com/fozzylabs/fozzy/internal/trace"
)

// Engine runs scenarios. It is stateless across runs; every Run gets a
// fresh ExecCtx, so one Engine may serve parallel isolated runs.
type Engine struct {
	logger *slog.Logger
	runIDs RunIDGenerator
}

// New creates an engine.
func New(logger *slog.Logger, runIDs RunIDGenerator) *Engine {
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	if runIDs == nil {
		runIDs = UUIDGenerator{}
	}
	return &Engine{logger: logger, runIDs: runIDs}
}

// Run executes the scenario in record mode.
func (e *Engine) Run(sc *scenario.Scenario, opts Options) (*RunResult, error) {
	return e.run(sc, decision.NewRecorder(), opts)
}

// RunLite is the artifact-free entrypoint for fuzz drivers: no timeline
// events, no leak artifacts, same verdict.
func (e *Engine) RunLite(sc *scenario.Scenario, opts Options) (*RunResult, error) {
	opts.Lite = true
	return e.run(sc, decision.NewRecorder(), opts)
}

// RunGuided executes the scenario consuming the given decision prefix,
// then recording. The shrinker trials schedules through this.
func (e *Engine) RunGuided(sc *scenario.Scenario, prefix []decision.Decision, opts Options) (*RunResult, error) {
	return e.run(sc, decision.NewGuided(prefix), opts)
}

// Replay re-executes a trace. The scenario comes from the trace itself;
// every decision must be consumed exactly once and the recorded outcome
// must reproduce, or the result is drift.
func (e *Engine) Replay(tf *trace.File, opts Options) (*RunResult, error) {
	if tf.Scenario == "" {
		return nil, errs.New(errs.KindParse, "trace embeds no scenario; cannot replay")
	}
	sc, err := scenario.Parse([]byte(tf.Scenario))
	if err != nil {
		return nil, err
	}
	seed := tf.Header.Seed
	opts.Seed = &seed

	res, err := e.run(sc, decision.NewReplayer(tf.Decisions), opts)
	if err != nil {
		return res, err
	}
	if want := tf.Summary.Outcome; want != "" && string(res.Outcome) != want {
		got := res.Outcome
		res.Outcome = OutcomeDrift
		res.FailureKind = errs.KindDrift
		res.FailureMessage = "replay outcome " + string(got) + " does not match recorded outcome " + want
		return res, errs.Newf(errs.KindDrift, "replay produced outcome %s, trace recorded %s", got, want)
	}
	return res, nil
}

func (e *Engine) run(sc *scenario.Scenario, log *decision.Log, opts Options) (*RunResult, error) {
	if opts.Det && (opts.HTTPHost || opts.ProcHost || opts.FSHostRoot != "") {
		return nil, errs.New(errs.KindDeterminism, "host backends cannot be combined with --det")
	}

	seed := uint64(0)
	if sc.Seed != nil {
		seed = *sc.Seed
	}
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	ctx, err := newExecCtx(sc, seed, log, opts)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("run start", "scenario", sc.Name, "seed", seed, "steps", len(sc.Steps))

	fatal := ctx.loop()

	if fatal == nil && log.Mode() == decision.ModeReplay {
		if err := log.VerifyConsumed(); err != nil {
			fatal = err
		}
	}
	if fatal != nil {
		kind := errs.KindOf(fatal)
		if kind == errs.KindDrift {
			ctx.outcome = OutcomeDrift
		} else {
			// Checksum, determinism, internal: no outcome class fits;
			// the run is aborted rather than finalized.
			ctx.outcome = OutcomeCrash
		}
		ctx.failureKind = kind
		ctx.failureMessage = fatal.Error()
	}

	res := e.finalize(ctx)
	e.logger.Debug("run done", "scenario", sc.Name, "outcome", res.Outcome, "decisions", len(res.Decisions))
	if fatal != nil {
		return res, fatal
	}
	return res, nil
}

// loop is the outer engine loop. It returns only fatal errors; outcome
// classes are finalized on ctx.
func (c *execCtx) loop() error {
	c.scheduleNext(0)

	for !c.done {
		if c.stepTask == nil {
			// Program exhausted: terminal. Undelivered messages are
			// simply still in flight at exit.
			return nil
		}
		if c.stepsExecuted >= c.maxSteps {
			c.fail(errs.KindTimeout, "max steps ceiling reached")
			return nil
		}
		if c.maxDecisions > 0 && c.log.Len() >= c.maxDecisions {
			c.fail(errs.KindTimeout, "max decisions ceiling reached")
			return nil
		}

		cands := c.candidates()
		if len(cands) == 0 {
			if err := c.advanceOrDeadlock(); err != nil {
				return err
			}
			continue
		}

		chosen := cands[0]
		if len(cands) > 1 {
			var err error
			chosen, err = c.pickCandidate(cands)
			if err != nil {
				return err
			}
		}

		if err := c.runCandidate(chosen); err != nil {
			kind := errs.KindOf(err)
			if errs.Fatal(kind) {
				return err
			}
			c.fail(kind, err.Error())
			if !c.done {
				c.scheduleNext(c.now())
			}
		}
	}
	return nil
}

// candidate is one schedulable unit: the pending step task or a network
// delivery. The delivery candidate is a synthesized task standing for the
// eligible frontier's (tick, seq) head.
type candidate struct {
	task    *sched.Task
	deliver bool
}

const deliverIDBase = int64(1) << 32

func (c *execCtx) candidates() []candidate {
	var out []candidate
	now := c.now()
	if c.stepTask != nil && c.stepTask.ReadyTick <= now && c.cluster.Live(c.stepTask.Node) {
		out = append(out, candidate{task: c.stepTask})
	}
	if c.net.Deliverable(now, c.cluster) {
		out = append(out, candidate{
			task: &sched.Task{
				ID:        deliverIDBase + c.net.Seq(),
				StepIndex: c.stepCursor,
				Label:     "net_deliver",
				ReadyTick: now,
			},
			deliver: true,
		})
	}
	return out
}

// pickCandidate arbitrates between multiple eligible candidates through
// the scheduler policy, recording the choice as a sched_pick decision
// labeled with the target's kind tag. On replay the same policy runs
// again; a different result is drift.
func (c *execCtx) pickCandidate(cands []candidate) (candidate, error) {
	tasks := make([]*sched.Task, len(cands))
	byTask := make(map[*sched.Task]candidate, len(cands))
	for i, cand := range cands {
		tasks[i] = cand.task
		byTask[cand.task] = cand
	}
	chosenTask := c.sched.Choose(tasks)
	chosen := byTask[chosenTask]

	payload, err := c.log.Observe(decision.KindSchedPick, chosenTask.Label, func() (map[string]any, error) {
		return map[string]any{"task": chosenTask.ID, "step": chosenTask.StepIndex, "candidates": len(cands)}, nil
	})
	if err != nil {
		return candidate{}, err
	}
	if got := payloadInt(payload, "task"); got != chosenTask.ID {
		return candidate{}, errs.Newf(errs.KindDrift, "scheduler pick mismatch: log has task %d, policy chose %d", got, chosenTask.ID)
	}
	return chosen, nil
}

func (c *execCtx) runCandidate(cand candidate) error {
	if cand.deliver {
		_, err := c.deliverOne("")
		return err
	}

	task := cand.task
	if _, err := c.sched.PickByID(task.ID, c.now()); err != nil {
		return err
	}
	c.stepTask = nil

	step := c.sc.Steps[task.StepIndex]
	start := c.now()

	err := c.executeStep(task.StepIndex, step, false)

	var sleepTicks int64
	if step.Type == scenario.StepSleep {
		sleepTicks, _ = scenario.ParseTicks(step.Duration)
	}

	c.stepsExecuted++
	if !c.opts.Lite {
		// A sleep's wait belongs to the sleep step even though the
		// clock only advances once its successor becomes ready.
		c.latencies = append(c.latencies, float64(c.now()-start+sleepTicks))
		c.emit(step.Kind(), map[string]any{"step": task.StepIndex, "node": task.Node})
	}
	if err != nil {
		return err
	}
	if c.done {
		return nil
	}

	c.scheduleNext(c.now() + sleepTicks)
	return nil
}

// advanceOrDeadlock moves virtual time to the next actionable tick, or
// finalizes the run as a deadlock finding when no queued work can ever
// become eligible again.
func (c *execCtx) advanceOrDeadlock() error {
	target, ok := c.sched.NextReadyTick()
	if t, netOK := c.net.NextDeliverTick(c.cluster); netOK && (!ok || t < target) {
		target, ok = t, true
	}
	if !ok {
		c.fail(errs.KindDeadlock, "no eligible task and none can become eligible")
		return nil
	}
	if c.maxTicks > 0 && target > c.maxTicks {
		c.fail(errs.KindTimeout, "max ticks ceiling reached")
		return nil
	}
	return c.observeAdvance(target)
}

func (e *Engine) finalize(c *execCtx) *RunResult {
	res := &RunResult{
		RunID:          e.runIDs.Generate(),
		ScenarioName:   c.sc.Name,
		ScenarioDigest: c.sc.Digest(),
		Seed:           c.seed,
		Outcome:        c.outcome,
		FailureKind:    c.failureKind,
		FailureMessage: c.failureMessage,
		StepsExecuted:  c.stepsExecuted,
		DurationTicks:  c.clock.Now(),
		Decisions:      c.log.Decisions(),
		Events:         c.events,
		Memory:         c.mem.Summary(),
		StepLatencies:  c.latencies,
	}
	if !c.opts.Lite {
		res.Leaks = c.mem.Leaks()
		res.MemoryEdges = c.mem.GraphEdges()
	}

	if res.Outcome == OutcomePass {
		budget, failOnLeak := c.leakPolicy()
		if failOnLeak {
			leaks := c.mem.Leaks()
			if len(leaks) > budget {
				res.Leaks = leaks
				res.Outcome = OutcomeFail
				res.FailureKind = errs.KindOOM
				res.FailureMessage = formatLeakFailure(len(leaks), budget)
			}
		}
	}
	return res
}

func (c *execCtx) leakPolicy() (int, bool) {
	budget := 0
	failOnLeak := c.sc.Memory.FailOnLeak
	if c.sc.Memory.LeakBudget != nil {
		budget = *c.sc.Memory.LeakBudget
	}
	if c.opts.LeakBudget != nil {
		budget = *c.opts.LeakBudget
	}
	if c.opts.FailOnLeak {
		failOnLeak = true
	}
	return budget, failOnLeak
}

func formatLeakFailure(leaks, budget int) string {
	return errs.Newf(errs.KindOOM, "leaks=%d exceed budget=%d", leaks, budget).Message
}
