// Package scenario defines the normalized in-memory scenario model and its
// parsing/validation pipeline. A Scenario is immutable after Parse: the
// engine reads it, never writes it, and parallel engines may share one
// instance through the Cache.
package scenario

// Step type tags. The tag doubles as the step's compact schedule label:
// scheduler picks and timeline events reference steps by this tag.
const (
	StepTraceEvent     = "trace_event"
	StepRandU64        = "rand_u64"
	StepSetRNG         = "set_rng"
	StepSleep          = "sleep"
	StepAdvanceTime    = "advance_time"
	StepKVSet          = "kv_set"
	StepKVGetAssert    = "kv_get_assert"
	StepFSWrite        = "fs_write"
	StepFSReadAssert   = "fs_read_assert"
	StepFSSnapshot     = "fs_snapshot"
	StepFSRestore      = "fs_restore"
	StepHTTPRequest    = "http_request"
	StepProcSpawn      = "proc_spawn"
	StepNetSend        = "net_send"
	StepNetDeliver     = "net_deliver"
	StepNetRecv        = "net_recv"
	StepMemAlloc       = "mem_alloc"
	StepMemFree        = "mem_free"
	StepAssertOK       = "assert_ok"
	StepAssertEq       = "assert_eq"
	StepAssertNe       = "assert_ne"
	StepAssertThrows   = "assert_throws"
	StepAssertRejects  = "assert_rejects"
	StepEventually     = "eventually"
	StepNever          = "never"
	StepInvariantCheck = "invariant_check"
	StepFail           = "fail"
	StepPanic          = "panic"
	StepPartition      = "partition"
	StepHeal           = "heal"
	StepCrash          = "crash"
	StepRestart        = "restart"
	StepInjectFault    = "inject_fault"
)

// Step is a single scenario step. It is a tagged union over assertions,
// effects, and control steps; Type selects the variant and Validate
// enforces per-variant field requirements.
type Step struct {
	Type string `yaml:"type" json:"type"`

	// Node the step runs on. Empty means the default node.
	Node string `yaml:"node,omitempty" json:"node,omitempty"`

	// trace_event, fs_snapshot, fs_restore, inject_fault identifier.
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty" json:"fields,omitempty"`

	// Literal comparison (assert_eq, assert_ne).
	A any `yaml:"a,omitempty" json:"a,omitempty"`
	B any `yaml:"b,omitempty" json:"b,omitempty"`

	// Selector comparison: Of names a result field of the preceding
	// effect ("proc.stdout", "http.status", ...), Value the expected value.
	Of    string `yaml:"of,omitempty" json:"of,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
	Msg   string `yaml:"msg,omitempty" json:"msg,omitempty"`

	// KV steps.
	Key    string  `yaml:"key,omitempty" json:"key,omitempty"`
	Equals *string `yaml:"equals,omitempty" json:"equals,omitempty"`
	Absent bool    `yaml:"absent,omitempty" json:"absent,omitempty"`

	// fs steps.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	Data string `yaml:"data,omitempty" json:"data,omitempty"`

	// http_request.
	Method string `yaml:"method,omitempty" json:"method,omitempty"`
	URL    string `yaml:"url,omitempty" json:"url,omitempty"`

	// proc_spawn.
	Cmd string `yaml:"cmd,omitempty" json:"cmd,omitempty"`

	// net steps.
	From    string `yaml:"from,omitempty" json:"from,omitempty"`
	To      string `yaml:"to,omitempty" json:"to,omitempty"`
	Payload string `yaml:"payload,omitempty" json:"payload,omitempty"`

	// mem steps. Tag names an allocation so mem_free can refer back to it.
	Bytes uint64 `yaml:"bytes,omitempty" json:"bytes,omitempty"`
	Tag   string `yaml:"tag,omitempty" json:"tag,omitempty"`

	// Durations, in tick strings ("100" ticks or "10ms").
	Duration string `yaml:"duration,omitempty" json:"duration,omitempty"`
	Budget   string `yaml:"budget,omitempty" json:"budget,omitempty"`

	// set_rng.
	Seed *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`

	// Predicate reference (assert_ok, eventually, never).
	Pred string `yaml:"pred,omitempty" json:"pred,omitempty"`

	// Guarded body and expected error kind (assert_throws, assert_rejects).
	Steps   []Step `yaml:"steps,omitempty" json:"steps,omitempty"`
	ErrKind string `yaml:"err_kind,omitempty" json:"err_kind,omitempty"`

	// partition groups.
	Groups [][]string `yaml:"groups,omitempty" json:"groups,omitempty"`

	// fail / panic message.
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Kind returns the step's compact schedule label.
func (s Step) Kind() string {
	return s.Type
}

// HTTPRule scripts a fixed response for matching requests.
type HTTPRule struct {
	Method  string            `yaml:"method" json:"method"`
	URL     string            `yaml:"url" json:"url"`
	Status  int               `yaml:"status,omitempty" json:"status,omitempty"`
	Body    string            `yaml:"body,omitempty" json:"body,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// ProcRule scripts a fixed result for a spawned command.
type ProcRule struct {
	Cmd    string `yaml:"cmd" json:"cmd"`
	Stdout string `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Stderr string `yaml:"stderr,omitempty" json:"stderr,omitempty"`
	Exit   int    `yaml:"exit,omitempty" json:"exit,omitempty"`
}

// NetConfig declares the virtual topology and delivery policy.
type NetConfig struct {
	Nodes       []string `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	Policy      string   `yaml:"policy,omitempty" json:"policy,omitempty"` // fifo (default) | lossy | pct
	DropRatePct int      `yaml:"drop_rate_pct,omitempty" json:"drop_rate_pct,omitempty"`
	Latency     string   `yaml:"latency,omitempty" json:"latency,omitempty"`
}

// MemoryPolicy configures the memory capability.
type MemoryPolicy struct {
	LimitMB           uint64  `yaml:"limit_mb,omitempty" json:"limit_mb,omitempty"`
	FailAfter         uint64  `yaml:"fail_after,omitempty" json:"fail_after,omitempty"`
	PressureWave      string  `yaml:"pressure_wave,omitempty" json:"pressure_wave,omitempty"`
	FragmentationSeed *uint64 `yaml:"fragmentation_seed,omitempty" json:"fragmentation_seed,omitempty"`
	LeakBudget        *int    `yaml:"leak_budget,omitempty" json:"leak_budget,omitempty"`
	FailOnLeak        bool    `yaml:"fail_on_leak,omitempty" json:"fail_on_leak,omitempty"`
}

// Invariant is a named predicate checked by invariant_check steps and,
// for distributed scenarios, after every control step.
type Invariant struct {
	Name  string `yaml:"name" json:"name"`
	Pred  string `yaml:"pred" json:"pred"`
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
	Bytes uint64 `yaml:"bytes,omitempty" json:"bytes,omitempty"`
}

// Limits caps run resources. Zero means the engine default.
type Limits struct {
	MaxSteps     int   `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	MaxDecisions int   `yaml:"max_decisions,omitempty" json:"max_decisions,omitempty"`
	MaxTicks     int64 `yaml:"max_ticks,omitempty" json:"max_ticks,omitempty"`
}

// Scenario is the validated, immutable in-memory scenario.
type Scenario struct {
	Name       string
	Seed       *uint64
	Policy     string
	PCTDepth   int
	Steps      []Step
	FS         map[string]string
	HTTP       []HTTPRule
	Proc       []ProcRule
	Net        NetConfig
	Memory     MemoryPolicy
	Invariants []Invariant
	Limits     Limits

	digest string
	source []byte
}

// Digest returns the domain-separated hash of the scenario source bytes.
func (s *Scenario) Digest() string {
	return s.digest
}

// Source returns the raw bytes the scenario was parsed from. Embedded in
// traces so replay does not depend on the original file.
func (s *Scenario) Source() []byte {
	return s.source
}

// DefaultNode returns the node unscoped steps run on.
func (s *Scenario) DefaultNode() string {
	if len(s.Net.Nodes) > 0 {
		return s.Net.Nodes[0]
	}
	return "main"
}

// Nodes returns the declared topology, or the single default node.
func (s *Scenario) Nodes() []string {
	if len(s.Net.Nodes) > 0 {
		return s.Net.Nodes
	}
	return []string{"main"}
}
