package decision

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/errs"
)

func TestLog_RecordThenReplay(t *testing.T) {
	rec := NewRecorder()

	payload, err := rec.Observe(KindProcResult, "echo hi", func() (map[string]any, error) {
		return map[string]any{"stdout": "hi", "exit": int64(0)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", payload["stdout"])
	require.Equal(t, 1, rec.Len())

	rep := NewReplayer(rec.Decisions())
	got, err := rep.Observe(KindProcResult, "echo hi", func() (map[string]any, error) {
		t.Fatal("live callback must not run in replay mode")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", got["stdout"])
	require.NoError(t, rep.VerifyConsumed())
}

func TestLog_ExpectMismatchIsDrift(t *testing.T) {
	rep := NewReplayer([]Decision{{Kind: KindProcResult, Label: "echo hi"}})

	_, err := rep.Expect(KindHTTPResult, "GET /")
	require.Error(t, err)
	assert.Equal(t, errs.KindDrift, errs.KindOf(err))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "0", e.Details["index"])
	assert.Contains(t, e.Details["expected"], "proc_result")
	assert.Contains(t, e.Details["actual"], "http_result")
}

func TestLog_ExhaustedIsDrift(t *testing.T) {
	rep := NewReplayer(nil)

	_, err := rep.Expect(KindSchedPick, "step")
	require.Error(t, err)
	assert.Equal(t, errs.KindDrift, errs.KindOf(err))
}

func TestLog_UnconsumedIsDrift(t *testing.T) {
	rep := NewReplayer([]Decision{
		{Kind: KindSchedPick, Label: "a"},
		{Kind: KindSchedPick, Label: "b"},
	})

	_, err := rep.Expect(KindSchedPick, "a")
	require.NoError(t, err)

	err = rep.VerifyConsumed()
	require.Error(t, err)
	assert.Equal(t, errs.KindDrift, errs.KindOf(err))
}

func TestLog_AppendInReplayModeIsInternal(t *testing.T) {
	rep := NewReplayer(nil)
	err := rep.Append(Decision{Kind: KindSchedPick, Label: "x"})
	require.Error(t, err)
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))
}

func TestLog_GuidedFallsBackToLive(t *testing.T) {
	guided := NewGuided([]Decision{{Kind: KindSchedPick, Label: "a", Payload: map[string]any{"task": int64(1)}}})

	got, err := guided.Observe(KindSchedPick, "a", func() (map[string]any, error) {
		t.Fatal("prefix must be served from the log")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got["task"])

	live := false
	_, err = guided.Observe(KindSchedPick, "b", func() (map[string]any, error) {
		live = true
		return map[string]any{"task": int64(2)}, nil
	})
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, 2, guided.Len())
	assert.NoError(t, guided.VerifyConsumed(), "guided mode tolerates switching to live")
}

func TestLog_FinalizeStableAcrossJSONRoundTrip(t *testing.T) {
	rec := NewRecorder()
	require.NoError(t, rec.Append(Decision{
		Kind:    KindHTTPResult,
		Label:   "GET /health",
		Payload: map[string]any{"status": int64(200), "body": "ok"},
	}))

	payload1, sum1, err := rec.Finalize()
	require.NoError(t, err)

	// Round-trip through JSON: numbers come back as float64.
	raw, err := json.Marshal(rec.Decisions())
	require.NoError(t, err)
	var decoded []Decision
	require.NoError(t, json.Unmarshal(raw, &decoded))

	payload2, sum2, err := NewReplayer(decoded).Finalize()
	require.NoError(t, err)

	assert.Equal(t, string(payload1), string(payload2))
	assert.Equal(t, sum1, sum2)
}

func TestMarshalCanonical_SortsKeysAndRejectsFloats(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{"b": int64(2), "a": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(out))

	_, err = MarshalCanonical(map[string]any{"x": 1.5})
	require.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": nil})
	require.Error(t, err)

	// Integral floats (the JSON decode shape of ints) canonicalize as ints.
	out, err = MarshalCanonical(map[string]any{"x": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, `{"x":3}`, string(out))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	out, err := MarshalCanonical("<a href=\"x\">&</a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a href=\"x\">&</a>"`, string(out))
}

func TestHashWithDomain_DomainSeparated(t *testing.T) {
	data := []byte("payload")
	assert.NotEqual(t, HashWithDomain(DomainDecisions, data), HashWithDomain(DomainTrace, data))
	assert.Equal(t, HashWithDomain(DomainTrace, data), HashWithDomain(DomainTrace, data))
}
