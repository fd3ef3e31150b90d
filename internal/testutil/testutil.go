// Package testutil provides small helpers shared by CLI and harness
// tests: temp scenario files and trace loading with hard assertions.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fozzylabs/fozzy/internal/trace"
)

// WriteScenario writes scenario source into a temp dir and returns its
// path. The file is cleaned up with the test.
func WriteScenario(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write scenario %s: %v", name, err)
	}
	return path
}

// ReadTrace loads and decodes a trace, failing the test on any error.
func ReadTrace(t *testing.T, path string) *trace.File {
	t.Helper()
	tf, err := trace.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace %s: %v", path, err)
	}
	return tf
}
