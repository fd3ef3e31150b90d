// Package decision implements the append-only decision log: the single
// source of nondeterminism for a run.
//
// Every choice the engine cannot derive purely from (scenario, seed, prior
// decisions) goes through the log. In record mode live choices are
// appended; in replay mode the log supplies them and any mismatch is
// drift. Anything not in the log must be derivable; anything derivable
// must not be in the log.
package decision

// Kind tags a decision with the choice category it records.
type Kind string

const (
	// KindSchedPick records which task the scheduler served.
	KindSchedPick Kind = "sched_pick"

	// KindNetDeliver records a message delivery.
	KindNetDeliver Kind = "net_deliver"

	// KindNetDrop records a message drop (lossy policy or stale write).
	KindNetDrop Kind = "net_drop"

	// KindRNGDraw records an RNG draw observable to user code.
	KindRNGDraw Kind = "rng_draw"

	// KindTimeTick records a scheduler auto-advance of virtual time.
	KindTimeTick Kind = "time_tick"

	// KindHTTPResult records an http capability response.
	KindHTTPResult Kind = "http_result"

	// KindProcResult records a proc capability result.
	KindProcResult Kind = "proc_result"

	// KindFSResult records a host filesystem read, so replay stays
	// purely in-memory.
	KindFSResult Kind = "fs_result"

	// KindMemFail records a rejected allocation.
	KindMemFail Kind = "mem_fail"

	// KindFaultFire records an injected fault firing.
	KindFaultFire Kind = "fault_fire"
)

// Decision is a single recorded choice. Payload values are restricted to
// canonical-JSON-safe types (strings, integers, bools, nested maps and
// slices of the same).
type Decision struct {
	Kind    Kind           `json:"kind"`
	Label   string         `json:"label"`
	Payload map[string]any `json:"payload,omitempty"`
}

// canonicalMap converts a decision to the map shape used for
// finalization. Payload is included only when present, so a decision
// round-tripped through JSON finalizes identically.
func (d Decision) canonicalMap() map[string]any {
	m := map[string]any{
		"kind":  string(d.Kind),
		"label": d.Label,
	}
	if len(d.Payload) > 0 {
		m["payload"] = anyMap(d.Payload)
	}
	return m
}

func anyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
