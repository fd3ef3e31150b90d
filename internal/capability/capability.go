// Package capability implements the virtualized capability layer: fs,
// http, proc, net, and memory. Each capability has a scripted backend
// (default, deterministic) and, where it makes sense, a host backend
// (opt-in, rejected under --det).
//
// The shared contract: results that cross the nondeterminism boundary go
// through decision.Log.Observe, so record mode captures live results and
// replay mode serves them from the log without touching the host.
package capability

import (
	"fmt"

	"github.com/fozzylabs/fozzy/internal/errs"
)

// Backend selects the implementation behind a capability.
type Backend int

const (
	// Scripted serves results from the scenario's capability scripts.
	Scripted Backend = iota
	// Host reaches the real system. Opt-in, refused under --det.
	Host
)

// HostBodyCeiling caps captured host response/stdio bytes so traces stay
// bounded.
const HostBodyCeiling = 64 * 1024

// RejectHost returns the determinism-violation error for a host backend
// requested under --det.
func RejectHost(capability string) error {
	return errs.Newf(errs.KindDeterminism, "%s capability: host backend is not allowed under --det", capability)
}

// payload coercion helpers. Decision payloads round-trip through JSON, so
// numbers arrive as float64 on replay and as int64 when freshly recorded.

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

func payloadString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func truncate(s string, ceiling int) string {
	if len(s) <= ceiling {
		return s
	}
	return s[:ceiling]
}

// callsiteLabel formats the step origin used for callsite hashing.
func callsiteLabel(stepIndex int, stepKind string) string {
	return fmt.Sprintf("step[%d]:%s", stepIndex, stepKind)
}
