// Package shrink implements delta-debugging over the shrinkable surface
// of a trace: the scenario step list and the recorded decision sequence.
// Shrinking preserves a predicate — the original outcome class, a metric
// threshold, or the leak class — while strictly reducing size.
package shrink

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/engine"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/profile"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/trace"
)

// Surfaces the shrinker can reduce.
const (
	SurfaceSteps     = "steps"
	SurfaceDecisions = "decisions"
)

// Metric is a metric-preserving predicate: the named metric must stay on
// the given side of the threshold for a trial to count as preserved.
type Metric struct {
	Name      string  // p50_latency | p99_latency | max_latency | alloc_bytes | peak_bytes
	Direction string  // increase | decrease
	Threshold float64 // captured from the baseline when zero
}

// Policy selects what to shrink and what to preserve.
type Policy struct {
	Surface string // SurfaceSteps (default) or SurfaceDecisions

	// Metric switches from outcome-class preservation to
	// metric-preservation.
	Metric *Metric

	// PreserveLeaks additionally requires the leak class (the set of
	// leaking callsites) to survive.
	PreserveLeaks bool

	// MaxTrials bounds the number of engine runs. Zero means the
	// default budget.
	MaxTrials int
}

// DefaultMaxTrials bounds a shrink when the policy does not.
const DefaultMaxTrials = 2000

// Report summarizes a shrink.
type Report struct {
	Surface       string `json:"surface"`
	Trials        int    `json:"trials"`
	CacheHits     int    `json:"cache_hits"`
	FromSteps     int    `json:"from_steps"`
	ToSteps       int    `json:"to_steps"`
	FromDecisions int    `json:"from_decisions"`
	ToDecisions   int    `json:"to_decisions"`
}

// Shrinker reduces traces. One Shrinker may be reused; its scenario cache
// is shared across shrinks.
type Shrinker struct {
	eng    *engine.Engine
	opts   engine.Options
	cache  *scenario.Cache
	logger *slog.Logger

	trials    int
	cacheHits int
	maxTrials int
	seen      map[string]bool
}

// New creates a shrinker that trials runs with the given options.
func New(eng *engine.Engine, opts engine.Options, logger *slog.Logger) *Shrinker {
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	opts.Lite = false // leak class and latencies must stay observable
	return &Shrinker{
		eng:    eng,
		opts:   opts,
		cache:  scenario.NewCache(),
		logger: logger,
	}
}

// Shrink reduces the trace under the policy. The returned trace replays
// to the same predicate value; the report carries the reduction stats.
func (s *Shrinker) Shrink(tf *trace.File, policy Policy) (*trace.File, *Report, error) {
	if tf.Scenario == "" {
		return nil, nil, errs.New(errs.KindParse, "trace embeds no scenario; cannot shrink")
	}
	sc, err := s.cache.Load([]byte(tf.Scenario))
	if err != nil {
		return nil, nil, err
	}
	if policy.Surface == "" {
		policy.Surface = SurfaceSteps
	}
	s.trials = 0
	s.cacheHits = 0
	s.seen = make(map[string]bool)
	s.maxTrials = policy.MaxTrials
	if s.maxTrials <= 0 {
		s.maxTrials = DefaultMaxTrials
	}

	seed := tf.Header.Seed
	opts := s.opts
	opts.Seed = &seed

	baseline, err := s.eng.Run(sc, opts)
	if err != nil {
		return nil, nil, err
	}
	pred := s.predicate(baseline, policy)
	if !pred(baseline) {
		return nil, nil, errs.New(errs.KindValidation, "shrink: baseline run does not satisfy the preservation predicate")
	}

	report := &Report{
		Surface:       policy.Surface,
		FromSteps:     len(sc.Steps),
		FromDecisions: len(tf.Decisions),
	}

	var out *trace.File
	switch policy.Surface {
	case SurfaceSteps:
		out, err = s.shrinkSteps(sc, opts, pred, tf)
	case SurfaceDecisions:
		out, err = s.shrinkDecisions(sc, opts, pred, tf)
	default:
		return nil, nil, errs.Newf(errs.KindValidation, "shrink: unknown surface %q", policy.Surface)
	}
	if err != nil {
		return nil, nil, err
	}

	report.Trials = s.trials
	report.CacheHits = s.cacheHits
	report.ToDecisions = len(out.Decisions)
	reduced, err := s.cache.Load([]byte(out.Scenario))
	if err != nil {
		return nil, nil, err
	}
	report.ToSteps = len(reduced.Steps)

	// Status-preservation guard: the shrunk trace must replay to the
	// same predicate value.
	guard, err := s.eng.Replay(out, s.opts)
	if err != nil {
		return nil, nil, errs.Newf(errs.KindInternal, "shrink: reduced trace does not replay: %v", err)
	}
	if !pred(guard) {
		return nil, nil, errs.New(errs.KindInternal, "shrink: reduced trace violates the preservation predicate on replay")
	}
	return out, report, nil
}

// shrinkSteps is classical ddmin with bisection over the step list.
// Trials are index-range masks over a single kept-index slice, never
// scenario clones; each trial is a fresh engine run.
func (s *Shrinker) shrinkSteps(sc *scenario.Scenario, opts engine.Options, pred func(*engine.RunResult) bool, orig *trace.File) (*trace.File, error) {
	keep := make([]int, len(sc.Steps))
	for i := range keep {
		keep[i] = i
	}

	try := func(candidate []int) (*engine.RunResult, bool, error) {
		trial, err := sc.Reduced(candidate)
		if err != nil {
			return nil, false, errs.Newf(errs.KindInternal, "shrink: build trial: %v", err)
		}
		key := trial.Digest()
		if s.seen[key] {
			s.cacheHits++
			return nil, false, nil
		}
		if s.trials >= s.maxTrials {
			return nil, false, nil
		}
		s.trials++
		res, err := s.eng.Run(trial, opts)
		if err != nil {
			// Fatal trial errors mean the candidate is not a valid
			// reduction, not that the shrink failed.
			s.seen[key] = true
			return nil, false, nil
		}
		ok := pred(res)
		if !ok {
			s.seen[key] = true
		}
		return res, ok, nil
	}

	n := 2
	for len(keep) >= 1 && n <= len(keep) {
		reduced := false
		chunk := (len(keep) + n - 1) / n
		for start := 0; start < len(keep); start += chunk {
			end := start + chunk
			if end > len(keep) {
				end = len(keep)
			}
			complement := append(append([]int{}, keep[:start]...), keep[end:]...)
			if len(complement) == len(keep) {
				continue
			}
			if _, ok, err := try(complement); err != nil {
				return nil, err
			} else if ok {
				keep = complement
				n = max(n-1, 2)
				reduced = true
				break
			}
		}
		if !reduced {
			if n >= len(keep) {
				break
			}
			n = min(n*2, len(keep))
		}
	}

	final, err := sc.Reduced(keep)
	if err != nil {
		return nil, errs.Newf(errs.KindInternal, "shrink: build result: %v", err)
	}
	res, err := s.eng.Run(final, opts)
	if err != nil {
		return nil, err
	}
	out := res.Trace(final.Source(), orig.Header.Commit, orig.Header.CreatedAt)
	return out, nil
}

// shrinkDecisions runs ddmin over the recorded decision sequence, using
// guided runs: the candidate prefix drives the engine and the rest is
// recorded live. A candidate that drifts simply fails its trial.
func (s *Shrinker) shrinkDecisions(sc *scenario.Scenario, opts engine.Options, pred func(*engine.RunResult) bool, orig *trace.File) (*trace.File, error) {
	keep := make([]int, len(orig.Decisions))
	for i := range keep {
		keep[i] = i
	}

	try := func(candidate []int) bool {
		if s.trials >= s.maxTrials {
			return false
		}
		key := maskKey(candidate)
		if s.seen[key] {
			s.cacheHits++
			return false
		}
		s.trials++
		prefix := make([]decision.Decision, 0, len(candidate))
		for _, i := range candidate {
			prefix = append(prefix, orig.Decisions[i])
		}
		res, err := s.eng.RunGuided(sc, prefix, opts)
		if err != nil || !pred(res) {
			s.seen[key] = true
			return false
		}
		return true
	}

	n := 2
	for len(keep) >= 1 && n <= len(keep) {
		reduced := false
		chunk := (len(keep) + n - 1) / n
		for start := 0; start < len(keep); start += chunk {
			end := min(start+chunk, len(keep))
			complement := append(append([]int{}, keep[:start]...), keep[end:]...)
			if len(complement) == len(keep) {
				continue
			}
			if try(complement) {
				keep = complement
				n = max(n-1, 2)
				reduced = true
				break
			}
		}
		if !reduced {
			if n >= len(keep) {
				break
			}
			n = min(n*2, len(keep))
		}
	}

	prefix := make([]decision.Decision, 0, len(keep))
	for _, i := range keep {
		prefix = append(prefix, orig.Decisions[i])
	}
	res, err := s.eng.RunGuided(sc, prefix, opts)
	if err != nil {
		return nil, err
	}
	return res.Trace(sc.Source(), orig.Header.Commit, orig.Header.CreatedAt), nil
}

// predicate builds the preservation predicate for the policy, capturing
// baseline values where thresholds are unset.
func (s *Shrinker) predicate(baseline *engine.RunResult, policy Policy) func(*engine.RunResult) bool {
	var checks []func(*engine.RunResult) bool

	if policy.Metric != nil {
		m := *policy.Metric
		if m.Threshold == 0 {
			m.Threshold = metricValue(baseline, m.Name)
		}
		checks = append(checks, func(r *engine.RunResult) bool {
			v := metricValue(r, m.Name)
			if m.Direction == "decrease" {
				return v <= m.Threshold
			}
			return v >= m.Threshold
		})
	} else {
		want := baseline.Outcome
		checks = append(checks, func(r *engine.RunResult) bool {
			return r.Outcome == want
		})
	}

	if policy.PreserveLeaks {
		want := leakClass(baseline)
		checks = append(checks, func(r *engine.RunResult) bool {
			return leakClass(r) == want
		})
	}

	return func(r *engine.RunResult) bool {
		for _, check := range checks {
			if !check(r) {
				return false
			}
		}
		return true
	}
}

func metricValue(r *engine.RunResult, name string) float64 {
	switch name {
	case "p50_latency":
		return profile.Quantile(r.StepLatencies, 0.50)
	case "p99_latency":
		return profile.Quantile(r.StepLatencies, 0.99)
	case "max_latency":
		return profile.Quantile(r.StepLatencies, 1.0)
	case "alloc_bytes":
		return float64(r.Memory.TotalBytes)
	case "peak_bytes":
		return float64(r.Memory.PeakBytes)
	default:
		return 0
	}
}

// leakClass fingerprints which callsites leak, independent of counts.
func leakClass(r *engine.RunResult) string {
	sites := make(map[string]bool, len(r.Leaks))
	for _, l := range r.Leaks {
		sites[l.CallsiteHash] = true
	}
	out := make([]string, 0, len(sites))
	for s := range sites {
		out = append(out, s)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func maskKey(indices []int) string {
	var b strings.Builder
	for i, idx := range indices {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", idx)
	}
	return b.String()
}
