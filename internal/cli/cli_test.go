package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/testutil"
)

func chdir(t *testing.T, dir string) {
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

const passScenario = `
version: 1
name: cli-pass
seed: 1
proc:
  - cmd: "echo hi"
    stdout: "hi"
steps:
  - type: proc_spawn
    cmd: "echo hi"
  - type: assert_eq
    of: proc.stdout
    value: "hi"
`

const failScenario = `
version: 1
name: cli-fail
steps:
  - type: fail
    message: "expected failure"
`

func TestExecute_RunPassExitsZero(t *testing.T) {
	chdir(t, t.TempDir())
	path := testutil.WriteScenario(t, "pass.yaml", passScenario)

	assert.Equal(t, 0, Execute([]string{"run", path}))
}

func TestExecute_RunFailExitsOne(t *testing.T) {
	chdir(t, t.TempDir())
	path := testutil.WriteScenario(t, "fail.yaml", failScenario)

	assert.Equal(t, 1, Execute([]string{"run", path}))
}

func TestExecute_ParseErrorExitsTwo(t *testing.T) {
	chdir(t, t.TempDir())
	path := testutil.WriteScenario(t, "broken.yaml", `{"version": 2, "name": "x", "steps": []}`)

	assert.Equal(t, 2, Execute([]string{"run", path}))
}

func TestExecute_MissingScenarioExitsTwo(t *testing.T) {
	chdir(t, t.TempDir())
	assert.Equal(t, 2, Execute([]string{"run", "does-not-exist.yaml"}))
}

func TestExecute_UnknownFlagExitsTwo(t *testing.T) {
	assert.Equal(t, 2, Execute([]string{"run", "--no-such-flag"}))
}

func TestExecute_RecordThenReplay(t *testing.T) {
	chdir(t, t.TempDir())
	path := testutil.WriteScenario(t, "pass.yaml", passScenario)
	tracePath := filepath.Join(t.TempDir(), "run.fozzy")

	require.Equal(t, 0, Execute([]string{"run", path, "--record", tracePath}))
	require.FileExists(t, tracePath)

	assert.Equal(t, 0, Execute([]string{"replay", tracePath}))
	assert.Equal(t, 0, Execute([]string{"trace", "verify", tracePath}))
}

func TestExecute_RecordCollisionPolicyError(t *testing.T) {
	chdir(t, t.TempDir())
	path := testutil.WriteScenario(t, "pass.yaml", passScenario)
	tracePath := filepath.Join(t.TempDir(), "run.fozzy")

	require.Equal(t, 0, Execute([]string{"run", path, "--record", tracePath}))
	assert.Equal(t, 2, Execute([]string{"run", path, "--record", tracePath}),
		"default collision policy refuses to overwrite")
	assert.Equal(t, 0, Execute([]string{"run", path, "--record", tracePath, "--collision", "overwrite"}))
}

func TestExecute_TamperedTraceFailsVerification(t *testing.T) {
	chdir(t, t.TempDir())
	path := testutil.WriteScenario(t, "pass.yaml", passScenario)
	tracePath := filepath.Join(t.TempDir(), "run.fozzy")
	require.Equal(t, 0, Execute([]string{"run", path, "--record", tracePath}))

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	tampered := []byte(string(data))
	for i := range tampered {
		if tampered[i] == 'h' && i+1 < len(tampered) && tampered[i+1] == 'i' {
			tampered[i] = 'y' // corrupt the recorded stdout
			break
		}
	}
	require.NoError(t, os.WriteFile(tracePath, tampered, 0o644))

	assert.Equal(t, 1, Execute([]string{"trace", "verify", tracePath}), "checksum failure maps to exit 1")
	assert.Equal(t, 1, Execute([]string{"replay", tracePath}))
}

func TestExecute_ShrinkProducesSmallerTrace(t *testing.T) {
	chdir(t, t.TempDir())
	src := `
version: 1
name: cli-shrink
steps:
  - type: trace_event
    name: a
  - type: trace_event
    name: b
  - type: fail
    message: "culprit"
  - type: trace_event
    name: c
`
	path := testutil.WriteScenario(t, "shrink.yaml", src)
	tracePath := filepath.Join(t.TempDir(), "run.fozzy")

	// Recording a failing run still writes the trace; the run itself
	// exits 1.
	require.Equal(t, 1, Execute([]string{"run", path, "--record", tracePath}))
	require.FileExists(t, tracePath)

	outPath := tracePath + ".min"
	require.Equal(t, 0, Execute([]string{"shrink", tracePath, "--out", outPath}))

	reduced := testutil.ReadTrace(t, outPath)
	assert.Equal(t, "fail", reduced.Summary.Outcome)
	assert.Equal(t, 1, reduced.Summary.Steps, "shrunk to the single culprit step")
}

func TestExecute_RunJSONOutput(t *testing.T) {
	chdir(t, t.TempDir())
	path := testutil.WriteScenario(t, "pass.yaml", passScenario)

	cmd := NewRootCommand()
	var buf testBuffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"run", path, "--format", "json"})
	require.NoError(t, cmd.Execute())

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &envelope))
	assert.Equal(t, "pass", envelope["outcome"])
	assert.Equal(t, "cli-pass", envelope["scenario"])
}

func TestExecute_ArtifactsEmitted(t *testing.T) {
	chdir(t, t.TempDir())
	path := testutil.WriteScenario(t, "pass.yaml", passScenario)
	artifacts := filepath.Join(t.TempDir(), "artifacts")

	require.Equal(t, 0, Execute([]string{"run", path, "--artifacts", artifacts}))

	for _, name := range []string{"report.json", "timeline.json", "memory.leaks.json", "memory.json", "manifest.json"} {
		assert.FileExists(t, filepath.Join(artifacts, name))
	}

	data, err := os.ReadFile(filepath.Join(artifacts, "manifest.json"))
	require.NoError(t, err)
	var manifest map[string]any
	require.NoError(t, json.Unmarshal(data, &manifest))
	versions := manifest["versions"].(map[string]any)
	assert.Equal(t, "fozzy.run_manifest.v1", versions["schema"])
}

func TestExecute_VersionCommand(t *testing.T) {
	assert.Equal(t, 0, Execute([]string{"version"}))
}

// testBuffer is a minimal io.Writer capturing command output.
type testBuffer struct {
	data []byte
}

func (b *testBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *testBuffer) Bytes() []byte {
	return b.data
}
