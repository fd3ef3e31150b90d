package scenario

import (
	"fmt"
	"strings"

	"github.com/fozzylabs/fozzy/internal/errs"
)

// Predicate names usable by assert_ok, eventually, never, and invariants.
const (
	PredKVPresentOnAll = "kv_present_on_all"
	PredKVPresent      = "kv_present"
	PredKVAbsent       = "kv_absent"
	PredMemInUseBelow  = "mem_in_use_below"
	PredNoPendingMsgs  = "no_pending_messages"
)

var knownPreds = map[string]bool{
	PredKVPresentOnAll: true,
	PredKVPresent:      true,
	PredKVAbsent:       true,
	PredMemInUseBelow:  true,
	PredNoPendingMsgs:  true,
}

// Selectors usable by assert_eq/assert_ne `of:` references.
var knownSelectors = map[string]bool{
	"proc.stdout": true,
	"proc.stderr": true,
	"proc.exit":   true,
	"http.status": true,
	"http.body":   true,
	"rand.last":   true,
	"mem.in_use":  true,
}

// Validate checks scenario semantics after a structurally valid parse.
// All failures are validation-kind errors and never reach the engine.
func (s *Scenario) Validate() error {
	if s.Policy == "pct" && s.PCTDepth == 0 {
		return errs.New(errs.KindValidation, "policy pct requires pct_depth")
	}
	if s.Net.Latency != "" {
		if _, err := ParseTicks(s.Net.Latency); err != nil {
			return validationf("net.latency: %v", err)
		}
	}
	if s.Net.Policy != "" && s.Net.Policy != "fifo" && s.Net.Policy != "lossy" && s.Net.Policy != "pct" {
		return validationf("unknown net policy %q", s.Net.Policy)
	}
	if s.Memory.PressureWave != "" {
		if _, err := ParsePressureWave(s.Memory.PressureWave); err != nil {
			return err
		}
	}
	for _, inv := range s.Invariants {
		if !knownPreds[inv.Pred] {
			return validationf("invariant %q: unknown predicate %q", inv.Name, inv.Pred)
		}
	}

	nodes := make(map[string]bool, len(s.Net.Nodes))
	for _, n := range s.Net.Nodes {
		nodes[n] = true
	}

	return s.validateSteps(s.Steps, nodes, false)
}

func (s *Scenario) validateSteps(steps []Step, nodes map[string]bool, nested bool) error {
	for i, st := range steps {
		if err := s.validateStep(st, nodes, nested); err != nil {
			return validationf("step %d (%s): %v", i, st.Type, err)
		}
	}
	return nil
}

func (s *Scenario) validateStep(st Step, nodes map[string]bool, nested bool) error {
	nodeRef := func(name string) error {
		if name == "" || len(nodes) == 0 {
			return nil
		}
		if !nodes[name] {
			return fmt.Errorf("unknown node %q", name)
		}
		return nil
	}
	if err := nodeRef(st.Node); err != nil {
		return err
	}

	switch st.Type {
	case StepTraceEvent:
		if st.Name == "" {
			return fmt.Errorf("name required")
		}
	case StepRandU64:
		// No required fields; Key optionally labels the draw.
	case StepSetRNG:
		if st.Seed == nil {
			return fmt.Errorf("seed required")
		}
	case StepSleep, StepAdvanceTime:
		if _, err := ParseTicks(st.Duration); err != nil {
			return err
		}
	case StepKVSet:
		if st.Key == "" {
			return fmt.Errorf("key required")
		}
	case StepKVGetAssert:
		if st.Key == "" {
			return fmt.Errorf("key required")
		}
		if st.Equals != nil && st.Absent {
			return fmt.Errorf("cannot set both equals and absent")
		}
	case StepFSWrite, StepFSReadAssert:
		if st.Path == "" {
			return fmt.Errorf("path required")
		}
	case StepFSSnapshot, StepFSRestore:
		if st.Name == "" {
			return fmt.Errorf("name required")
		}
	case StepHTTPRequest:
		if st.Method == "" || st.URL == "" {
			return fmt.Errorf("method and url required")
		}
	case StepProcSpawn:
		if st.Cmd == "" {
			return fmt.Errorf("cmd required")
		}
	case StepNetSend:
		if st.From == "" || st.To == "" {
			return fmt.Errorf("from and to required")
		}
		if err := nodeRef(st.From); err != nil {
			return err
		}
		if err := nodeRef(st.To); err != nil {
			return err
		}
	case StepNetDeliver:
		if err := nodeRef(st.To); err != nil {
			return err
		}
	case StepNetRecv:
		if st.Node == "" {
			return fmt.Errorf("node required")
		}
		if st.Budget != "" {
			if _, err := ParseTicks(st.Budget); err != nil {
				return err
			}
		}
	case StepMemAlloc:
		if st.Bytes == 0 {
			return fmt.Errorf("bytes required")
		}
	case StepMemFree:
		if st.Tag == "" {
			return fmt.Errorf("tag required")
		}
	case StepAssertOK:
		if err := predRef(st.Pred); err != nil {
			return err
		}
	case StepAssertEq, StepAssertNe:
		hasLiteral := st.A != nil || st.B != nil
		hasSelector := st.Of != ""
		if hasLiteral == hasSelector {
			return fmt.Errorf("exactly one of a/b literals or an of: selector is required")
		}
		if hasSelector && !knownSelectors[st.Of] {
			return fmt.Errorf("unknown selector %q", st.Of)
		}
	case StepAssertThrows, StepAssertRejects:
		if len(st.Steps) == 0 {
			return fmt.Errorf("steps required")
		}
		if st.ErrKind == "" {
			return fmt.Errorf("err_kind required")
		}
		if nested {
			return fmt.Errorf("guarded blocks cannot nest")
		}
		if err := s.validateSteps(st.Steps, nodes, true); err != nil {
			return err
		}
	case StepEventually, StepNever:
		if err := predRef(st.Pred); err != nil {
			return err
		}
		if _, err := ParseTicks(st.Budget); err != nil {
			return err
		}
	case StepInvariantCheck:
		if st.Name == "" {
			return fmt.Errorf("name required")
		}
		if !s.hasInvariant(st.Name) {
			return fmt.Errorf("unknown invariant %q", st.Name)
		}
	case StepFail, StepPanic:
		// Message optional.
	case StepPartition:
		if len(st.Groups) == 0 {
			return fmt.Errorf("groups required")
		}
		for _, g := range st.Groups {
			for _, n := range g {
				if err := nodeRef(n); err != nil {
					return err
				}
			}
		}
	case StepHeal:
		// No fields.
	case StepCrash, StepRestart:
		if st.Node == "" {
			return fmt.Errorf("node required")
		}
	case StepInjectFault:
		if st.Name == "" {
			return fmt.Errorf("name required")
		}
	default:
		return fmt.Errorf("unknown step type")
	}
	return nil
}

func (s *Scenario) hasInvariant(name string) bool {
	for _, inv := range s.Invariants {
		if inv.Name == name {
			return true
		}
	}
	return false
}

func predRef(pred string) error {
	if pred == "" {
		return fmt.Errorf("pred required")
	}
	if !knownPreds[pred] {
		return fmt.Errorf("unknown predicate %q", pred)
	}
	return nil
}

func validationf(format string, args ...any) error {
	return errs.Newf(errs.KindValidation, format, args...)
}

// ParsePressureWave parses a comma-separated multiplier schedule like
// "1,4,1". Multipliers must be positive integers.
func ParsePressureWave(pattern string) ([]uint64, error) {
	parts := strings.Split(pattern, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var m uint64
		if _, err := fmt.Sscanf(p, "%d", &m); err != nil || m == 0 {
			return nil, validationf("invalid pressure wave multiplier %q in %q", p, pattern)
		}
		out = append(out, m)
	}
	return out, nil
}
