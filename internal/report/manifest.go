// Package report emits the run manifest and the machine-readable run
// report. All schemas are versioned and additive-only.
package report

import (
	"encoding/json"

	"github.com/fozzylabs/fozzy/internal/engine"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/trace"
	"github.com/fozzylabs/fozzy/internal/version"
)

// ManifestSchema identifies the manifest format.
const ManifestSchema = "fozzy.run_manifest.v1"

// Artifact names one emitted artifact.
type Artifact struct {
	Kind string `json:"kind"` // trace | report | timeline | memory | leaks
	Path string `json:"path"`
}

// Versions pins the schema and engine build a manifest was written by.
type Versions struct {
	Schema string `json:"schema"`
	Commit string `json:"commit,omitempty"`
}

// Manifest is the fozzy.run_manifest.v1 document, written exactly once
// per run.
type Manifest struct {
	RunID        string     `json:"run_id"`
	Seed         uint64     `json:"seed"`
	Outcome      string     `json:"outcome"`
	Capabilities []string   `json:"capabilities"`
	Artifacts    []Artifact `json:"artifacts"`
	Versions     Versions   `json:"versions"`

	written bool
}

// NewManifest starts a manifest for a run result.
func NewManifest(res *engine.RunResult, capabilities []string) *Manifest {
	if capabilities == nil {
		capabilities = []string{}
	}
	return &Manifest{
		RunID:        res.RunID,
		Seed:         res.Seed,
		Outcome:      string(res.Outcome),
		Capabilities: capabilities,
		Artifacts:    []Artifact{},
		Versions: Versions{
			Schema: ManifestSchema,
			Commit: version.Get().Commit,
		},
	}
}

// Add records an artifact.
func (m *Manifest) Add(kind, path string) {
	m.Artifacts = append(m.Artifacts, Artifact{Kind: kind, Path: path})
}

// Write emits the manifest atomically. A manifest is written exactly once
// per run; a second write is an internal error.
func (m *Manifest) Write(path string) error {
	if m.written {
		return errs.New(errs.KindInternal, "manifest already written for this run")
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errs.Newf(errs.KindInternal, "manifest: encode: %v", err)
	}
	if err := trace.WriteAtomic(path, append(data, '\n')); err != nil {
		return err
	}
	m.written = true
	return nil
}
