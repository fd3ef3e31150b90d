package scenario

import (
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/fozzylabs/fozzy/internal/errs"
)

// schemaSource is the structural schema every scenario file must satisfy
// before the typed unmarshal runs. Step variants stay open here; per-variant
// field requirements are semantic and live in Validate.
const schemaSource = `
#Scenario: {
	version: 1
	name:    string & !=""
	seed?:   int & >=0
	policy?: "fifo" | "bfs" | "dfs" | "random" | "pct" | "coverage"
	pct_depth?: int & >0
	steps: [...#Step]
	fs?: {[string]: string}
	http?: [...{method: string & !="", url: string & !="", status?: int, body?: string, headers?: {[string]: string}, ...}]
	proc?: [...{cmd: string & !="", stdout?: string, stderr?: string, exit?: int, ...}]
	net?: {nodes?: [...string & !=""], policy?: "fifo" | "lossy" | "pct", drop_rate_pct?: int & >=0 & <=100, latency?: string, ...}
	memory?: {limit_mb?: int & >=0, fail_after?: int & >=0, pressure_wave?: string, fragmentation_seed?: int, leak_budget?: int & >=0, fail_on_leak?: bool, ...}
	invariants?: [...{name: string & !="", pred: string & !="", ...}]
	limits?: {max_steps?: int & >=0, max_decisions?: int & >=0, max_ticks?: int & >=0, ...}
}

#Step: {
	type: string & !=""
	...
}
`

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
)

// schema compiles the scenario schema exactly once per process. The
// compiled value is immutable and safe to share across parallel engines.
func schema() cue.Value {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		schemaValue = ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Scenario"))
	})
	return schemaValue
}

// validateSchema unifies the raw scenario document with the schema.
// Structural violations are reported as parse errors with CUE's message
// detail; the typed unmarshal only runs on documents that pass.
func validateSchema(src []byte) error {
	sc := schema()
	if err := sc.Err(); err != nil {
		return errs.Newf(errs.KindInternal, "scenario schema failed to compile: %v", err)
	}

	file, err := cueyaml.Extract("scenario", src)
	if err != nil {
		return errs.Newf(errs.KindParse, "scenario is not valid YAML/JSON: %v", err)
	}

	doc := sc.Context().BuildFile(file)
	if err := doc.Err(); err != nil {
		return errs.Newf(errs.KindParse, "scenario document: %v", err)
	}

	unified := sc.Unify(doc)
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return errs.Newf(errs.KindParse, "scenario does not match schema: %s", cueerrors.Details(err, nil))
	}
	return nil
}
