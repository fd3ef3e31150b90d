package report

import (
	"encoding/json"

	"github.com/fozzylabs/fozzy/internal/engine"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/profile"
	"github.com/fozzylabs/fozzy/internal/trace"
)

// ReportSchema identifies the run report format.
const ReportSchema = "fozzy.run_report.v1"

// RunReport is the machine-readable run summary.
type RunReport struct {
	SchemaVersion string               `json:"schema_version"`
	RunID         string               `json:"run_id"`
	Scenario      string               `json:"scenario"`
	Seed          uint64               `json:"seed"`
	Outcome       string               `json:"outcome"`
	FailureKind   string               `json:"failure_kind,omitempty"`
	Failure       string               `json:"failure,omitempty"`
	Steps         int                  `json:"steps"`
	Decisions     int                  `json:"decisions"`
	DurationTicks int64                `json:"duration_ticks"`
	Latency       profile.LatencyStats `json:"latency"`
}

// Build assembles the report for a run result.
func Build(res *engine.RunResult) *RunReport {
	return &RunReport{
		SchemaVersion: ReportSchema,
		RunID:         res.RunID,
		Scenario:      res.ScenarioName,
		Seed:          res.Seed,
		Outcome:       string(res.Outcome),
		FailureKind:   string(res.FailureKind),
		Failure:       res.FailureMessage,
		Steps:         res.StepsExecuted,
		Decisions:     len(res.Decisions),
		DurationTicks: res.DurationTicks,
		Latency:       profile.Latencies(res.StepLatencies),
	}
}

// Write emits the report. Compact encoding is the default; pretty is
// opt-in and never used in shrink inner loops.
func (r *RunReport) Write(path string, pretty bool) error {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(r, "", "  ")
	} else {
		data, err = json.Marshal(r)
	}
	if err != nil {
		return errs.Newf(errs.KindInternal, "report: encode: %v", err)
	}
	return trace.WriteAtomic(path, append(data, '\n'))
}

// WriteTimeline emits the indexed timeline artifact from trace events.
func WriteTimeline(path string, events []trace.Event) error {
	type entry struct {
		Index  int            `json:"index"`
		Tick   int64          `json:"tick"`
		Name   string         `json:"name"`
		Fields map[string]any `json:"fields,omitempty"`
	}
	out := make([]entry, len(events))
	for i, e := range events {
		out[i] = entry{Index: i, Tick: e.Tick, Name: e.Name, Fields: e.Fields}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return errs.Newf(errs.KindInternal, "timeline: encode: %v", err)
	}
	return trace.WriteAtomic(path, append(data, '\n'))
}
