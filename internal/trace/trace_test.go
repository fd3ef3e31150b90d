package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/errs"
)

func sampleTrace() *File {
	return &File{
		Header: Header{
			Format:          FormatName,
			Version:         Version,
			Seed:            1,
			ScenarioDigest:  "abc",
			Commit:          "deadbeef",
			CreatedAt:       "2026-01-02T03:04:05Z",
			CollisionPolicy: CollisionError,
		},
		Scenario: `{"version":1,"name":"t","steps":[]}`,
		Decisions: []decision.Decision{
			{Kind: decision.KindProcResult, Label: "echo hi", Payload: map[string]any{"stdout": "hi", "exit": int64(0)}},
		},
		Events: []Event{
			{Tick: 0, Name: "proc_spawn", Fields: map[string]any{"step": int64(0)}},
		},
		Summary: Summary{Outcome: "pass", Steps: 2, Decisions: 1, DurationTicks: 0},
	}
}

func TestTrace_EncodeDecodeRoundTrip(t *testing.T) {
	f := sampleTrace()
	require.NoError(t, f.Seal())

	data, err := EncodeBytes(f, false)
	require.NoError(t, err)

	// Header must be exactly the first line.
	first := strings.SplitN(string(data), "\n", 2)[0]
	assert.Contains(t, first, `"format":"fozzy-trace"`)

	got, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, f.Header, got.Header)
	assert.Equal(t, f.Scenario, got.Scenario)
	assert.Equal(t, f.Summary, got.Summary)
	require.Len(t, got.Decisions, 1)
	assert.Equal(t, decision.KindProcResult, got.Decisions[0].Kind)

	warnings, err := Verify(got, true)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestTrace_ChecksumStableAcrossDecode(t *testing.T) {
	f := sampleTrace()
	require.NoError(t, f.Seal())

	data, err := EncodeBytes(f, false)
	require.NoError(t, err)
	got, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	sum, err := got.ComputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, f.Header.Checksum, sum)
}

func TestTrace_TamperedPayloadFailsChecksum(t *testing.T) {
	f := sampleTrace()
	require.NoError(t, f.Seal())
	data, err := EncodeBytes(f, false)
	require.NoError(t, err)

	tampered := bytes.Replace(data, []byte(`"hi"`), []byte(`"bye"`), 1)
	got, err := Decode(bytes.NewReader(tampered))
	require.NoError(t, err)

	_, err = Verify(got, false)
	require.Error(t, err)
	assert.Equal(t, errs.KindChecksum, errs.KindOf(err))
}

func TestTrace_VersionOutOfRangeRejected(t *testing.T) {
	f := sampleTrace()
	f.Header.Version = 99
	require.NoError(t, f.Seal())

	_, err := Verify(f, false)
	require.Error(t, err)
	assert.Equal(t, errs.KindParse, errs.KindOf(err))
}

func TestTrace_MissingOptionalFieldsWarn(t *testing.T) {
	f := sampleTrace()
	f.Header.Commit = ""
	f.Header.CollisionPolicy = ""
	require.NoError(t, f.Seal())

	warnings, err := Verify(f, false)
	require.NoError(t, err)
	require.NotEmpty(t, warnings)
	assert.Equal(t, WarnStaleSchema, warnings[0].Code)

	_, err = Verify(f, true)
	require.Error(t, err, "strict escalates warnings")
	assert.Equal(t, 1, errs.ExitCode(err))
}

func TestTrace_LegacyHostProcWarning(t *testing.T) {
	f := sampleTrace()
	f.Decisions = nil
	f.Header.CollisionPolicy = CollisionError
	require.NoError(t, f.Seal())

	warnings, err := Verify(f, false)
	require.NoError(t, err)
	found := false
	for _, w := range warnings {
		if w.Code == WarnLegacyHostProc {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWriteFile_CollisionPolicies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.fozzy")

	require.NoError(t, WriteFile(path, sampleTrace(), CollisionError, false))

	err := WriteFile(path, sampleTrace(), CollisionError, false)
	require.Error(t, err, "second write under error policy collides")
	assert.Equal(t, 2, errs.ExitCode(err))

	require.NoError(t, WriteFile(path, sampleTrace(), CollisionOverwrite, false))

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, sampleTrace(), CollisionAppend, false))
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Greater(t, len(after), len(before), "append grows the file")

	err = WriteFile(filepath.Join(dir, "x.fozzy"), sampleTrace(), "sideways", false)
	assert.Error(t, err)
}

func TestWriteAtomic_NoPartialFileOnExistingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")

	require.NoError(t, WriteAtomic(path, []byte("first")))
	require.NoError(t, WriteAtomic(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// No temp droppings left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDecode_RejectsForeignFormat(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"format":"not-fozzy","version":1}` + "\n{}"))
	require.Error(t, err)
	assert.Equal(t, errs.KindParse, errs.KindOf(err))
}

func TestPrettyEncodingIsDecodable(t *testing.T) {
	f := sampleTrace()
	require.NoError(t, f.Seal())

	data, err := EncodeBytes(f, true)
	require.NoError(t, err)
	got, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	_, err = Verify(got, false)
	assert.NoError(t, err, "pretty encoding must not change the checksum")
}
