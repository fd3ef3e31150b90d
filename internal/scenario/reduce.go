package scenario

import (
	"gopkg.in/yaml.v3"

	"github.com/fozzylabs/fozzy/internal/decision"
)

// Reduced returns a copy of the scenario keeping only the steps at the
// selected indices (in their original order). The copy re-serializes its
// source so digests and trace embedding stay consistent. Scripts,
// topology, and policies are carried over unchanged; the shrinker only
// reduces the step list.
func (s *Scenario) Reduced(keep []int) (*Scenario, error) {
	steps := make([]Step, 0, len(keep))
	for _, i := range keep {
		steps = append(steps, s.Steps[i])
	}

	file := scenarioFile{
		Version:    1,
		Name:       s.Name,
		Seed:       s.Seed,
		Policy:     s.Policy,
		PCTDepth:   s.PCTDepth,
		Steps:      steps,
		FS:         s.FS,
		HTTP:       s.HTTP,
		Proc:       s.Proc,
		Net:        s.Net,
		Memory:     s.Memory,
		Invariants: s.Invariants,
		Limits:     s.Limits,
	}
	src, err := yaml.Marshal(file)
	if err != nil {
		return nil, err
	}

	return &Scenario{
		Name:       s.Name,
		Seed:       s.Seed,
		Policy:     s.Policy,
		PCTDepth:   s.PCTDepth,
		Steps:      steps,
		FS:         s.FS,
		HTTP:       s.HTTP,
		Proc:       s.Proc,
		Net:        s.Net,
		Memory:     s.Memory,
		Invariants: s.Invariants,
		Limits:     s.Limits,
		digest:     decision.HashWithDomain(decision.DomainScenario, src),
		source:     src,
	}, nil
}
