package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Default resource ceilings applied when the scenario's limits are zero.
const (
	DefaultMaxSteps    = 10000
	DefaultHostTimeout = 30 * time.Second
	DefaultRecvBudget  = 100
)

// Options configures one run. The zero value is a deterministic scripted
// run with default ceilings.
type Options struct {
	// Det forbids every host backend and host-time read.
	Det bool

	// Strict escalates warnings to errors.
	Strict bool

	// Seed overrides the scenario seed.
	Seed *uint64

	// Policy overrides the scenario's scheduler policy.
	Policy string

	// KeepGoing continues past a failed assertion instead of breaking.
	KeepGoing bool

	// Lite skips timeline events and artifact bookkeeping. The fuzz
	// driver uses this entrypoint exclusively.
	Lite bool

	// Host backends, opt-in per capability.
	HTTPHost    bool
	ProcHost    bool
	FSHostRoot  string
	HostTimeout time.Duration

	// Memory overrides layered over the scenario's memory policy.
	MemLimitMB   uint64
	MemFailAfter uint64
	LeakBudget   *int
	FailOnLeak   bool

	// Logger receives engine debug output. Nil discards.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(discardHandler{})
}

func (o Options) hostTimeout() time.Duration {
	if o.HostTimeout > 0 {
		return o.HostTimeout
	}
	return DefaultHostTimeout
}

// RunIDGenerator mints run ids. Implemented by UUIDGenerator (production)
// and FixedGenerator (tests and golden files).
type RunIDGenerator interface {
	Generate() string
}

// UUIDGenerator issues UUIDv7 run ids: time-ordered, so run listings sort
// chronologically by id.
type UUIDGenerator struct{}

// Generate returns a new UUIDv7, falling back to v4 if the clock source
// misbehaves.
func (UUIDGenerator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// FixedGenerator returns a constant id, for deterministic tests.
type FixedGenerator struct {
	ID string
}

// Generate returns the fixed id.
func (g FixedGenerator) Generate() string {
	return g.ID
}
