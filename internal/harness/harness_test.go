package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fozzylabs/fozzy/internal/engine"
)

func TestGolden_Ping(t *testing.T) {
	res := RunGolden(t, "ping", "testdata/scenarios/ping.yaml")
	assert.Equal(t, engine.OutcomePass, res.Outcome)
}

func TestGolden_Echo(t *testing.T) {
	res := RunGolden(t, "echo", "testdata/scenarios/echo.yaml")
	assert.Equal(t, engine.OutcomePass, res.Outcome)
	assert.Len(t, res.Decisions, 1)
}

func TestGolden_SnapshotIsStableAcrossRuns(t *testing.T) {
	a := Run(t, "testdata/scenarios/echo.yaml", engine.Options{})
	b := Run(t, "testdata/scenarios/echo.yaml", engine.Options{})

	snapA, err := marshalSnapshot(a)
	assert.NoError(t, err)
	snapB, err := marshalSnapshot(b)
	assert.NoError(t, err)
	assert.Equal(t, string(snapA), string(snapB))
}
