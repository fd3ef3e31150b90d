package cli

import (
	"github.com/fozzylabs/fozzy/internal/engine"
	"github.com/fozzylabs/fozzy/internal/shrink"
)

// newShrinker wires a shrinker with the session's global options.
func newShrinker(eng *engine.Engine, opts *RootOptions) *shrink.Shrinker {
	return shrink.New(eng, engine.Options{
		Det:    opts.Det,
		Strict: opts.Strict,
		Logger: opts.logger,
	}, opts.logger)
}

// shrinkPolicy translates shrink flags into a policy.
func shrinkPolicy(minimize, metric, direction string, threshold float64, preserveLeaks bool, budget int) shrink.Policy {
	policy := shrink.Policy{
		Surface:       minimize,
		PreserveLeaks: preserveLeaks,
		MaxTrials:     budget,
	}
	if metric != "" {
		policy.Metric = &shrink.Metric{
			Name:      metric,
			Direction: direction,
			Threshold: threshold,
		}
	}
	return policy
}
