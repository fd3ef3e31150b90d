package shrink

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/engine"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/trace"
)

func record(t *testing.T, src string) (*engine.Engine, *trace.File) {
	t.Helper()
	eng := engine.New(nil, engine.FixedGenerator{ID: "shrink-test"})
	sc, err := scenario.Parse([]byte(src))
	require.NoError(t, err)
	res, err := eng.Run(sc, engine.Options{})
	require.NoError(t, err)
	return eng, res.Trace(sc.Source(), "commit", "ts")
}

func failingTenStepScenario() string {
	var steps []string
	for i := 0; i < 10; i++ {
		if i == 4 {
			steps = append(steps, "  - type: fail\n    message: \"the culprit\"")
			continue
		}
		steps = append(steps, fmt.Sprintf("  - type: trace_event\n    name: step-%d", i))
	}
	return "version: 1\nname: ten-steps\nseed: 3\nsteps:\n" + strings.Join(steps, "\n") + "\n"
}

func TestShrink_TenStepsToOne(t *testing.T) {
	eng, tf := record(t, failingTenStepScenario())

	s := New(eng, engine.Options{}, nil)
	out, report, err := s.Shrink(tf, Policy{Surface: SurfaceSteps})
	require.NoError(t, err)

	assert.Equal(t, 10, report.FromSteps)
	assert.Equal(t, 1, report.ToSteps, "only the failing step survives")
	assert.Greater(t, report.Trials, 0)

	// The reduced trace replays to the same verdict.
	rep, err := eng.Replay(out, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeFail, rep.Outcome)
}

func TestShrink_ResultNeverLarger(t *testing.T) {
	eng, tf := record(t, failingTenStepScenario())

	s := New(eng, engine.Options{}, nil)
	out, report, err := s.Shrink(tf, Policy{})
	require.NoError(t, err)

	assert.LessOrEqual(t, report.ToSteps, report.FromSteps)
	assert.LessOrEqual(t, len(out.Decisions), len(tf.Decisions))
}

func TestShrink_PassingScenarioStaysPassing(t *testing.T) {
	eng, tf := record(t, `
version: 1
name: all-pass
steps:
  - type: trace_event
    name: a
  - type: trace_event
    name: b
`)

	s := New(eng, engine.Options{}, nil)
	out, _, err := s.Shrink(tf, Policy{})
	require.NoError(t, err)

	rep, err := eng.Replay(out, engine.Options{})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomePass, rep.Outcome, "minimize+replay preserves pass")
}

func TestShrink_MetricPreservingKeepsLatency(t *testing.T) {
	// Only the sleep steps contribute latency; a metric-preserving
	// shrink must keep enough of them to hold the p99 above threshold.
	eng, tf := record(t, `
version: 1
name: latency
steps:
  - type: trace_event
    name: cheap-1
  - type: sleep
    duration: "50"
  - type: trace_event
    name: cheap-2
  - type: trace_event
    name: cheap-3
`)

	s := New(eng, engine.Options{}, nil)
	out, report, err := s.Shrink(tf, Policy{
		Surface: SurfaceSteps,
		Metric:  &Metric{Name: "p99_latency", Direction: "increase", Threshold: 50},
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, report.ToSteps, report.FromSteps)

	sc, err := scenario.Parse([]byte(out.Scenario))
	require.NoError(t, err)
	found := false
	for _, st := range sc.Steps {
		if st.Type == scenario.StepSleep {
			found = true
		}
	}
	assert.True(t, found, "the latency-carrying step must survive")
}

func TestShrink_MemoryAwarePreservesLeakClass(t *testing.T) {
	eng, tf := record(t, `
version: 1
name: leak-class
steps:
  - type: trace_event
    name: filler
  - type: mem_alloc
    bytes: 64
    tag: leaked
`)

	s := New(eng, engine.Options{}, nil)
	out, _, err := s.Shrink(tf, Policy{PreserveLeaks: true})
	require.NoError(t, err)

	sc, err := scenario.Parse([]byte(out.Scenario))
	require.NoError(t, err)
	found := false
	for _, st := range sc.Steps {
		if st.Type == scenario.StepMemAlloc {
			found = true
		}
	}
	assert.True(t, found, "the leaking allocation must survive")
}

func TestShrink_BudgetBoundsTrials(t *testing.T) {
	eng, tf := record(t, failingTenStepScenario())

	s := New(eng, engine.Options{}, nil)
	_, report, err := s.Shrink(tf, Policy{MaxTrials: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, report.Trials, 3)
}

func TestShrink_DecisionSurface(t *testing.T) {
	eng, tf := record(t, `
version: 1
name: decisions
seed: 2
proc:
  - cmd: "echo hi"
    stdout: "hi"
steps:
  - type: proc_spawn
    cmd: "echo hi"
  - type: fail
    message: "after proc"
`)

	s := New(eng, engine.Options{}, nil)
	out, report, err := s.Shrink(tf, Policy{Surface: SurfaceDecisions})
	require.NoError(t, err)
	assert.Equal(t, SurfaceDecisions, report.Surface)
	assert.LessOrEqual(t, len(out.Decisions), len(tf.Decisions))
}

func TestShrink_TraceWithoutScenarioRejected(t *testing.T) {
	eng := engine.New(nil, nil)
	s := New(eng, engine.Options{}, nil)
	_, _, err := s.Shrink(&trace.File{}, Policy{})
	assert.Error(t, err)
}
