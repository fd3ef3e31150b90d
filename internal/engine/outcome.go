package engine

import "github.com/fozzylabs/fozzy/internal/errs"

// Outcome classifies a terminal run. It is the shrinker's preservation
// predicate and the value the CLI maps to an exit code.
type Outcome string

const (
	OutcomePass     Outcome = "pass"
	OutcomeFail     Outcome = "fail"
	OutcomeCrash    Outcome = "crash"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeDeadlock Outcome = "deadlock"
	OutcomeDrift    Outcome = "drift"
)

// outcomeForKind maps a step-level error kind to the run outcome it
// finalizes. Fatal kinds (drift, checksum, determinism, internal) do not
// finalize; they abort.
func outcomeForKind(kind errs.Kind) Outcome {
	switch kind {
	case errs.KindTimeout:
		return OutcomeTimeout
	case errs.KindDeadlock:
		return OutcomeDeadlock
	case errs.KindDrift:
		return OutcomeDrift
	default:
		// assertion, capability, oom
		return OutcomeFail
	}
}
