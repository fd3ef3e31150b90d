package decision

import (
	"fmt"
	"strconv"

	"github.com/fozzylabs/fozzy/internal/errs"
)

// Mode selects how the log sources decisions.
type Mode int

const (
	// ModeRecord captures live choices as they are made.
	ModeRecord Mode = iota
	// ModeReplay supplies recorded choices and treats any divergence as drift.
	ModeReplay
	// ModeGuided consumes recorded choices while they last, then falls back
	// to live recording. Used by the shrinker to trial truncated schedules.
	ModeGuided
)

// Log is the append-only ordered record of every non-deterministic choice
// in a run. It is owned by the single engine task; no locking.
type Log struct {
	mode      Mode
	decisions []Decision
	cursor    int
}

// NewRecorder creates an empty log in record mode.
func NewRecorder() *Log {
	return &Log{mode: ModeRecord}
}

// NewReplayer creates a log that replays the given decisions in order.
func NewReplayer(decisions []Decision) *Log {
	return &Log{mode: ModeReplay, decisions: decisions}
}

// NewGuided creates a log that replays the given prefix, then records.
func NewGuided(prefix []Decision) *Log {
	return &Log{mode: ModeGuided, decisions: prefix}
}

// Mode returns the log's sourcing mode.
func (l *Log) Mode() Mode {
	return l.mode
}

// Len returns the number of decisions currently held.
func (l *Log) Len() int {
	return len(l.decisions)
}

// Decisions returns the underlying slice. Callers must not mutate it.
func (l *Log) Decisions() []Decision {
	return l.decisions
}

// Remaining returns how many recorded decisions have not been consumed.
// Always zero in record mode.
func (l *Log) Remaining() int {
	if l.mode == ModeRecord {
		return 0
	}
	return len(l.decisions) - l.cursor
}

// Observe is the symmetric capability entrypoint. In record (or exhausted
// guided) mode it invokes live, appends the resulting decision, and
// returns its payload. In replay mode it consumes the next recorded
// decision, verifying kind and label.
//
// The live callback runs only when its result will be recorded, so replay
// never touches the host.
func (l *Log) Observe(kind Kind, label string, live func() (map[string]any, error)) (map[string]any, error) {
	switch l.mode {
	case ModeReplay:
		return l.Expect(kind, label)
	case ModeGuided:
		if l.cursor < len(l.decisions) {
			return l.Expect(kind, label)
		}
	}
	payload, err := live()
	if err != nil {
		return nil, err
	}
	l.decisions = append(l.decisions, Decision{Kind: kind, Label: label, Payload: payload})
	return payload, nil
}

// Append records a decision directly. It is an internal invariant
// violation to append in replay mode.
func (l *Log) Append(d Decision) error {
	if l.mode == ModeReplay {
		return errs.New(errs.KindInternal, "decision log: append in replay mode")
	}
	l.decisions = append(l.decisions, d)
	return nil
}

// Expect consumes the next recorded decision, verifying that its kind and
// label match what the engine is about to do. A mismatch — or an exhausted
// log — is drift, reported with the expected and actual entries and the
// offending index.
func (l *Log) Expect(kind Kind, label string) (map[string]any, error) {
	if l.cursor >= len(l.decisions) {
		return nil, errs.Newf(errs.KindDrift, "decision log exhausted at index %d, engine expected %s(%s)", l.cursor, kind, label).
			WithDetail("index", strconv.Itoa(l.cursor)).
			WithDetail("expected", fmt.Sprintf("%s(%s)", kind, label))
	}
	d := l.decisions[l.cursor]
	if d.Kind != kind || d.Label != label {
		return nil, errs.Newf(errs.KindDrift, "replay mismatch at index %d: log has %s(%s), engine produced %s(%s)",
			l.cursor, d.Kind, d.Label, kind, label).
			WithDetail("index", strconv.Itoa(l.cursor)).
			WithDetail("expected", fmt.Sprintf("%s(%s)", d.Kind, d.Label)).
			WithDetail("actual", fmt.Sprintf("%s(%s)", kind, label))
	}
	l.cursor++
	return d.Payload, nil
}

// VerifyConsumed reports drift if recorded decisions remain unconsumed at
// the end of a replay. Every decision must be consumed exactly once.
func (l *Log) VerifyConsumed() error {
	if l.mode == ModeRecord {
		return nil
	}
	if rem := len(l.decisions) - l.cursor; rem > 0 && l.mode == ModeReplay {
		return errs.Newf(errs.KindDrift, "replay finished with %d unconsumed decisions (first at index %d)", rem, l.cursor).
			WithDetail("index", strconv.Itoa(l.cursor)).
			WithDetail("remaining", strconv.Itoa(rem))
	}
	return nil
}

// Finalize canonicalizes the log and returns the canonical bytes together
// with their domain-separated checksum.
func (l *Log) Finalize() ([]byte, string, error) {
	list := make([]any, len(l.decisions))
	for i, d := range l.decisions {
		list[i] = d.canonicalMap()
	}
	payload, err := MarshalCanonical(list)
	if err != nil {
		return nil, "", errs.Newf(errs.KindInternal, "decision log: canonicalize: %v", err)
	}
	return payload, HashWithDomain(DomainDecisions, payload), nil
}
