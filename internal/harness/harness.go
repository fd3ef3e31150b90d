// Package harness is the scenario-driven conformance harness: it runs
// scenario files from testdata through the real engine and compares a
// canonical trace snapshot against golden files.
//
// Snapshots deliberately exclude run ids, commits, and timestamps — only
// the deterministic surface (decisions, events, outcome) is golden.
package harness

import (
	"os"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/engine"
	"github.com/fozzylabs/fozzy/internal/scenario"
)

// Run executes the scenario file and returns its result.
func Run(t *testing.T, path string, opts engine.Options) *engine.RunResult {
	t.Helper()
	src, err := os.ReadFile(path)
	require.NoError(t, err, "read scenario %s", path)
	sc, err := scenario.Parse(src)
	require.NoError(t, err, "parse scenario %s", path)

	eng := engine.New(nil, engine.FixedGenerator{ID: "golden"})
	res, err := eng.Run(sc, opts)
	require.NoError(t, err, "run scenario %s", path)
	return res
}

// RunGolden executes the scenario file and compares its canonical trace
// snapshot against testdata/<name>.golden. Regenerate goldens with:
//
//	go test ./internal/harness -update
func RunGolden(t *testing.T, name, path string) *engine.RunResult {
	t.Helper()
	res := Run(t, path, engine.Options{})

	data, err := marshalSnapshot(res)
	require.NoError(t, err, "canonicalize snapshot for %s", path)

	g := goldie.New(t)
	g.Assert(t, name, data)
	return res
}

// marshalSnapshot renders the deterministic surface as canonical JSON,
// so golden comparisons are byte-stable across map iteration orders.
func marshalSnapshot(res *engine.RunResult) ([]byte, error) {
	decs := make([]any, len(res.Decisions))
	for i, d := range res.Decisions {
		m := map[string]any{"kind": string(d.Kind), "label": d.Label}
		if len(d.Payload) > 0 {
			payload := make(map[string]any, len(d.Payload))
			for k, v := range d.Payload {
				payload[k] = v
			}
			m["payload"] = payload
		}
		decs[i] = m
	}
	events := make([]any, len(res.Events))
	for i, e := range res.Events {
		m := map[string]any{"tick": e.Tick, "name": e.Name}
		if len(e.Fields) > 0 {
			fields := make(map[string]any, len(e.Fields))
			for k, v := range e.Fields {
				fields[k] = v
			}
			m["fields"] = fields
		}
		events[i] = m
	}
	return decision.MarshalCanonical(map[string]any{
		"outcome":   string(res.Outcome),
		"decisions": decs,
		"events":    events,
	})
}
