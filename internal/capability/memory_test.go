package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/substrate"
)

func newLedger(policy scenario.MemoryPolicy) *Ledger {
	return NewLedger(policy, substrate.NewIDs())
}

func mustAlloc(t *testing.T, l *Ledger, log *decision.Log, bytes uint64, tag string, step int) AllocOutcome {
	t.Helper()
	out, err := l.Alloc(log, bytes, tag, step, scenario.StepMemAlloc, 0)
	require.NoError(t, err)
	return out
}

func TestLedger_AllocFreeAndLeaks(t *testing.T) {
	l := newLedger(scenario.MemoryPolicy{})
	log := decision.NewRecorder()

	a := mustAlloc(t, l, log, 100, "a", 0)
	b := mustAlloc(t, l, log, 200, "b", 1)
	c := mustAlloc(t, l, log, 300, "c", 2)
	require.Equal(t, uint64(1), a.ID)
	require.Equal(t, uint64(2), b.ID)
	require.Equal(t, uint64(3), c.ID)

	require.True(t, l.FreeTag("b", 5))
	assert.False(t, l.Free(b.ID, 6), "double free of the same id")

	leaks := l.Leaks()
	require.Len(t, leaks, 2)
	assert.Equal(t, uint64(1), leaks[0].ID)
	assert.Equal(t, uint64(3), leaks[1].ID)

	sum := l.Summary()
	assert.Equal(t, uint64(3), sum.AllocCount)
	assert.Equal(t, uint64(1), sum.FreeCount)
	assert.Equal(t, uint64(400), sum.InUseBytes)
	assert.Equal(t, uint64(600), sum.PeakBytes)
	assert.Equal(t, uint64(2), sum.LeakedAllocs)
	assert.Equal(t, uint64(400), sum.LeakedBytes)
	assert.Equal(t, 0, log.Len(), "successful allocations are derivable, not decisions")
}

func TestLedger_FailAfterProducesMemFailDecision(t *testing.T) {
	l := newLedger(scenario.MemoryPolicy{FailAfter: 2})
	log := decision.NewRecorder()

	mustAlloc(t, l, log, 10, "", 0)
	out := mustAlloc(t, l, log, 10, "", 1)
	mustAlloc(t, l, log, 10, "", 2)

	assert.Equal(t, "fail_after", out.FailedReason)
	assert.Zero(t, out.ID)
	require.Equal(t, 1, log.Len())
	d := log.Decisions()[0]
	assert.Equal(t, decision.KindMemFail, d.Kind)
	assert.Equal(t, "fail_after", d.Payload["reason"])
}

func TestLedger_LimitMBEnforced(t *testing.T) {
	l := newLedger(scenario.MemoryPolicy{LimitMB: 1})
	log := decision.NewRecorder()

	ok := mustAlloc(t, l, log, 512*1024, "", 0)
	assert.Empty(t, ok.FailedReason)

	over := mustAlloc(t, l, log, 600*1024, "", 1)
	assert.Equal(t, "limit_mb", over.FailedReason)
	assert.Equal(t, uint64(1), l.Summary().FailedAllocCount)
}

func TestLedger_PressureWaveMultiplies(t *testing.T) {
	l := newLedger(scenario.MemoryPolicy{PressureWave: "1,4"})
	log := decision.NewRecorder()

	a := mustAlloc(t, l, log, 100, "a", 0)
	b := mustAlloc(t, l, log, 100, "b", 1)

	allocs := l.Allocations()
	require.Len(t, allocs, 2)
	assert.Equal(t, uint64(100), allocs[0].Bytes, "first op gets multiplier 1")
	assert.Equal(t, uint64(400), allocs[1].Bytes, "second op gets multiplier 4")
	_ = a
	_ = b
}

func TestLedger_FragmentationIsDeterministic(t *testing.T) {
	seed := uint64(7)
	run := func() []uint64 {
		l := newLedger(scenario.MemoryPolicy{FragmentationSeed: &seed})
		log := decision.NewRecorder()
		mustAlloc(t, l, log, 1000, "", 0)
		mustAlloc(t, l, log, 1000, "", 1)
		var out []uint64
		for _, a := range l.Allocations() {
			out = append(out, a.Bytes)
		}
		return out
	}

	first := run()
	assert.Equal(t, first, run())
	for _, b := range first {
		assert.GreaterOrEqual(t, b, uint64(1000), "padding never shrinks an allocation")
	}
}

func TestLedger_JournalRollback(t *testing.T) {
	l := newLedger(scenario.MemoryPolicy{})
	log := decision.NewRecorder()

	keep := mustAlloc(t, l, log, 100, "keep", 0)

	l.BeginJournal()
	mustAlloc(t, l, log, 50, "temp", 1)
	require.True(t, l.FreeTag("keep", 2))
	l.Rollback()

	leaks := l.Leaks()
	require.Len(t, leaks, 1)
	assert.Equal(t, keep.ID, leaks[0].ID)
	assert.Nil(t, leaks[0].FreeTick)
	assert.Equal(t, uint64(100), l.InUse())

	// Ids are never reused even after a rollback.
	next := mustAlloc(t, l, log, 10, "", 3)
	assert.Greater(t, next.ID, uint64(2))
}

func TestLedger_JournalCommitKeepsMutations(t *testing.T) {
	l := newLedger(scenario.MemoryPolicy{})
	log := decision.NewRecorder()

	l.BeginJournal()
	mustAlloc(t, l, log, 50, "kept", 0)
	l.Commit()

	assert.Len(t, l.Leaks(), 1)
}
