// Package trace implements the .fozzy trace file: a one-line JSON header
// followed by the decision log and the compacted event timeline. A trace
// plus the engine is sufficient to replay, diff, and shrink a run.
package trace

import (
	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
)

// Format constants. Verify rejects versions outside [MinVersion, MaxVersion].
const (
	FormatName = "fozzy-trace"
	Version    = 1
	MinVersion = 1
	MaxVersion = 1
)

// Collision policies for recording over an existing trace path.
const (
	CollisionError     = "error"
	CollisionOverwrite = "overwrite"
	CollisionAppend    = "append"
)

// Header is the one-line JSON prefix of a trace file. The checksum covers
// the canonicalized payload after the header.
type Header struct {
	Format          string `json:"format"`
	Version         int    `json:"version"`
	Seed            uint64 `json:"seed"`
	ScenarioDigest  string `json:"scenario_digest"`
	Commit          string `json:"commit,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	Checksum        string `json:"checksum"`
	CollisionPolicy string `json:"collision_policy,omitempty"`
}

// Event is one timeline entry.
type Event struct {
	Tick   int64          `json:"tick"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Summary closes a trace with the run's terminal state.
type Summary struct {
	Outcome       string `json:"outcome"`
	Steps         int    `json:"steps"`
	Decisions     int    `json:"decisions"`
	DurationTicks int64  `json:"duration_ticks"`
}

// File is a fully decoded trace.
type File struct {
	Header    Header
	Scenario  string // embedded scenario source, so replay needs no original file
	Decisions []decision.Decision
	Events    []Event
	Summary   Summary
}

// ComputeChecksum canonicalizes the payload (everything after the header)
// and returns its domain-separated hash.
func (f *File) ComputeChecksum() (string, error) {
	payload, err := decision.MarshalCanonical(f.canonicalBody())
	if err != nil {
		return "", errs.Newf(errs.KindInternal, "trace: canonicalize payload: %v", err)
	}
	return decision.HashWithDomain(decision.DomainTrace, payload), nil
}

// Seal computes and stores the checksum. Must be called before Encode.
func (f *File) Seal() error {
	sum, err := f.ComputeChecksum()
	if err != nil {
		return err
	}
	f.Header.Checksum = sum
	return nil
}

func (f *File) canonicalBody() map[string]any {
	decs := make([]any, len(f.Decisions))
	for i, d := range f.Decisions {
		m := map[string]any{"kind": string(d.Kind), "label": d.Label}
		if len(d.Payload) > 0 {
			m["payload"] = anyValues(d.Payload)
		}
		decs[i] = m
	}
	events := make([]any, len(f.Events))
	for i, e := range f.Events {
		m := map[string]any{"tick": e.Tick, "name": e.Name}
		if len(e.Fields) > 0 {
			m["fields"] = anyValues(e.Fields)
		}
		events[i] = m
	}
	body := map[string]any{
		"decisions": decs,
		"events":    events,
		"summary": map[string]any{
			"outcome":        f.Summary.Outcome,
			"steps":          f.Summary.Steps,
			"decisions":      f.Summary.Decisions,
			"duration_ticks": f.Summary.DurationTicks,
		},
	}
	if f.Scenario != "" {
		body["scenario"] = f.Scenario
	}
	return body
}

func anyValues(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
