package scenario

import (
	"gopkg.in/yaml.v3"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
)

// scenarioFile is the on-disk shape. Version 1 is the only supported
// revision; the schema pins it before this struct is ever populated.
type scenarioFile struct {
	Version    int               `yaml:"version"`
	Name       string            `yaml:"name"`
	Seed       *uint64           `yaml:"seed,omitempty"`
	Policy     string            `yaml:"policy,omitempty"`
	PCTDepth   int               `yaml:"pct_depth,omitempty"`
	Steps      []Step            `yaml:"steps"`
	FS         map[string]string `yaml:"fs,omitempty"`
	HTTP       []HTTPRule        `yaml:"http,omitempty"`
	Proc       []ProcRule        `yaml:"proc,omitempty"`
	Net        NetConfig         `yaml:"net,omitempty"`
	Memory     MemoryPolicy      `yaml:"memory,omitempty"`
	Invariants []Invariant       `yaml:"invariants,omitempty"`
	Limits     Limits            `yaml:"limits,omitempty"`
}

// Parse builds a Scenario from YAML or JSON source bytes. The pipeline is
// schema validation (parse errors), typed unmarshal, then semantic
// validation (validation errors). The returned scenario is immutable.
func Parse(src []byte) (*Scenario, error) {
	if err := validateSchema(src); err != nil {
		return nil, err
	}

	var file scenarioFile
	if err := yaml.Unmarshal(src, &file); err != nil {
		return nil, errs.Newf(errs.KindParse, "scenario unmarshal: %v", err)
	}

	sc := &Scenario{
		Name:       file.Name,
		Seed:       file.Seed,
		Policy:     file.Policy,
		PCTDepth:   file.PCTDepth,
		Steps:      file.Steps,
		FS:         file.FS,
		HTTP:       file.HTTP,
		Proc:       file.Proc,
		Net:        file.Net,
		Memory:     file.Memory,
		Invariants: file.Invariants,
		Limits:     file.Limits,
		digest:     decision.HashWithDomain(decision.DomainScenario, src),
		source:     append([]byte(nil), src...),
	}
	if sc.Policy == "" {
		sc.Policy = "fifo"
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}
