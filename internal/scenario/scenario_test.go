package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/errs"
)

const validYAML = `
version: 1
name: echo
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

func TestParse_Valid(t *testing.T) {
	sc, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "echo", sc.Name)
	require.NotNil(t, sc.Seed)
	assert.Equal(t, uint64(1), *sc.Seed)
	assert.Equal(t, "fifo", sc.Policy, "policy defaults to fifo")
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, "proc_spawn", sc.Steps[0].Kind())
	assert.NotEmpty(t, sc.Digest())
}

func TestParse_JSONIsAccepted(t *testing.T) {
	src := []byte(`{"version": 1, "name": "j", "steps": [{"type": "fail", "message": "boom"}]}`)
	sc, err := Parse(src)
	require.NoError(t, err)
	assert.Equal(t, "j", sc.Name)
}

func TestParse_SchemaViolationIsParseError(t *testing.T) {
	cases := map[string]string{
		"bad version":  `{"version": 2, "name": "x", "steps": []}`,
		"missing name": `{"version": 1, "steps": []}`,
		"bad policy":   `{"version": 1, "name": "x", "policy": "zigzag", "steps": []}`,
		"not yaml":     "\t{{{{",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			require.Error(t, err)
			assert.Equal(t, errs.KindParse, errs.KindOf(err))
		})
	}
}

func TestValidate_SemanticErrors(t *testing.T) {
	cases := map[string]string{
		"kv both equals and absent": `
version: 1
name: x
steps:
  - type: kv_get_assert
    key: k
    equals: "1"
    absent: true
`,
		"bad duration": `
version: 1
name: x
steps:
  - type: sleep
    duration: "-5ms"
`,
		"unknown predicate": `
version: 1
name: x
steps:
  - type: eventually
    pred: quux
    budget: "100"
`,
		"unknown node ref": `
version: 1
name: x
net:
  nodes: [a, b]
steps:
  - type: net_send
    from: a
    to: z
`,
		"pct without depth": `
version: 1
name: x
policy: pct
steps: []
`,
		"eq needs literal or selector": `
version: 1
name: x
steps:
  - type: assert_eq
`,
		"unknown step type": `
version: 1
name: x
steps:
  - type: frobnicate
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			require.Error(t, err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		})
	}
}

func TestParse_DigestStableAndSourcePreserved(t *testing.T) {
	a, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	b, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, a.Digest(), b.Digest())
	assert.Equal(t, []byte(validYAML), a.Source())

	c, err := Parse([]byte(`{"version": 1, "name": "other", "steps": []}`))
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestParseTicks(t *testing.T) {
	ticks, err := ParseTicks("100")
	require.NoError(t, err)
	assert.Equal(t, int64(100), ticks)

	ticks, err = ParseTicks("10ms")
	require.NoError(t, err)
	assert.Equal(t, int64(10), ticks)

	ticks, err = ParseTicks("2s")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), ticks)

	_, err = ParseTicks("")
	assert.Error(t, err)
	_, err = ParseTicks("abc")
	assert.Error(t, err)
}

func TestParsePressureWave(t *testing.T) {
	wave, err := ParsePressureWave("1,4, 2")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 4, 2}, wave)

	_, err = ParsePressureWave("1,0")
	assert.Error(t, err)
	_, err = ParsePressureWave("1,x")
	assert.Error(t, err)
}

func TestCache_SharesParsedScenario(t *testing.T) {
	c := NewCache()

	a, err := c.Load([]byte(validYAML))
	require.NoError(t, err)
	b, err := c.Load([]byte(validYAML))
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Len())

	_, err = c.Load([]byte("not a scenario"))
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len(), "parse failures are not cached")
}
