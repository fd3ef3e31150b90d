package engine

import (
	"github.com/fozzylabs/fozzy/internal/capability"
	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/trace"
)

// RunResult is the terminal state of one engine run.
type RunResult struct {
	RunID          string
	ScenarioName   string
	ScenarioDigest string
	Seed           uint64
	Outcome        Outcome

	// FailureKind and FailureMessage describe why a non-pass run
	// finalized. Empty for pass.
	FailureKind    errs.Kind
	FailureMessage string

	StepsExecuted int
	DurationTicks int64

	Decisions []decision.Decision
	Events    []trace.Event

	Memory      capability.MemSummary
	Leaks       []capability.Allocation
	MemoryEdges []capability.GraphEdge

	// StepLatencies holds per-step virtual durations in ticks, in
	// execution order. Metric predicates quantile over these.
	StepLatencies []float64
}

// Passed reports whether the run finished with outcome pass.
func (r *RunResult) Passed() bool {
	return r.Outcome == OutcomePass
}

// Trace assembles the .fozzy file for this run. Commit and CreatedAt are
// stamped by the caller; they live outside the determinism envelope.
func (r *RunResult) Trace(scenarioSource []byte, commit, createdAt string) *trace.File {
	return &trace.File{
		Header: trace.Header{
			Format:         trace.FormatName,
			Version:        trace.Version,
			Seed:           r.Seed,
			ScenarioDigest: r.ScenarioDigest,
			Commit:         commit,
			CreatedAt:      createdAt,
		},
		Scenario:  string(scenarioSource),
		Decisions: r.Decisions,
		Events:    r.Events,
		Summary: trace.Summary{
			Outcome:       string(r.Outcome),
			Steps:         r.StepsExecuted,
			Decisions:     len(r.Decisions),
			DurationTicks: r.DurationTicks,
		},
	}
}
