package capability

import (
	"encoding/binary"
	"sort"
	"strconv"

	"github.com/fozzylabs/fozzy/internal/decision"
	"github.com/fozzylabs/fozzy/internal/scenario"
	"github.com/fozzylabs/fozzy/internal/substrate"
)

// Allocation is one ledger entry. FreeTick is nil while the allocation is
// live; end-of-run leaks are exactly the entries with FreeTick absent.
type Allocation struct {
	ID           uint64 `json:"alloc_id"`
	Requested    uint64 `json:"requested_bytes"`
	Bytes        uint64 `json:"bytes"` // effective, after pressure/fragmentation
	CallsiteHash string `json:"callsite_hash"`
	Tag          string `json:"tag,omitempty"`
	AllocTick    int64  `json:"t_alloc"`
	FreeTick     *int64 `json:"t_free,omitempty"`
	OriginStep   int    `json:"origin_step"`
}

// GraphEdge is one allocation-graph edge for the forensic artifact.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// MemSummary aggregates ledger counters.
type MemSummary struct {
	AllocCount       uint64 `json:"alloc_count"`
	FreeCount        uint64 `json:"free_count"`
	FailedAllocCount uint64 `json:"failed_alloc_count"`
	InUseBytes       uint64 `json:"in_use_bytes"`
	PeakBytes        uint64 `json:"peak_bytes"`
	TotalBytes       uint64 `json:"total_bytes"`
	LeakedBytes      uint64 `json:"leaked_bytes"`
	LeakedAllocs     uint64 `json:"leaked_allocs"`
}

// AllocOutcome reports one allocation attempt.
type AllocOutcome struct {
	ID           uint64
	FailedReason string // "" on success; "limit_mb" or "fail_after"
	CallsiteHash string
}

// memOp is one journal entry for guarded-block rollback.
type memOp struct {
	alloc *Allocation // set for allocs: remove on rollback
	freed *Allocation // set for frees: un-free on rollback
}

// Ledger is the memory capability: live allocations by id, pressure-wave
// scaling, limit enforcement, and the allocation graph.
type Ledger struct {
	policy scenario.MemoryPolicy
	wave   []uint64
	ids    *substrate.IDs

	ops        uint64
	inUse      uint64
	peak       uint64
	total      uint64
	freeCount  uint64
	failCount  uint64
	all        []*Allocation
	live       map[uint64]*Allocation
	byTag      map[string]uint64
	graphEdges []GraphEdge

	journal   []memOp
	journaled bool
}

// NewLedger creates the memory capability. The policy must already have
// passed scenario validation; a bad pressure wave here is an internal bug
// and parses as empty.
func NewLedger(policy scenario.MemoryPolicy, ids *substrate.IDs) *Ledger {
	wave, _ := scenario.ParsePressureWave(policy.PressureWave)
	if policy.PressureWave == "" {
		wave = nil
	}
	return &Ledger{
		policy: policy,
		wave:   wave,
		ids:    ids,
		live:   make(map[uint64]*Allocation),
		byTag:  make(map[string]uint64),
	}
}

// Alloc records an allocation attempt at tick, originated by stepIndex.
// Failures (limit or fail-after) are recorded as mem_fail decisions; the
// returned outcome says which.
func (l *Ledger) Alloc(log *decision.Log, bytes uint64, tag string, stepIndex int, stepKind string, tick int64) (AllocOutcome, error) {
	callsite := callsiteLabel(stepIndex, stepKind)
	callsiteHash := decision.HashWithDomain(decision.DomainCallsite, []byte(callsite))
	l.ops++
	effective := l.effectiveBytes(bytes)

	fail := ""
	if l.policy.LimitMB > 0 && l.inUse+effective > l.policy.LimitMB*1024*1024 {
		fail = "limit_mb"
	} else if l.policy.FailAfter > 0 && l.ops == l.policy.FailAfter {
		fail = "fail_after"
	}

	if fail != "" {
		l.failCount++
		if _, err := log.Observe(decision.KindMemFail, callsite, func() (map[string]any, error) {
			return map[string]any{
				"reason":         fail,
				"bytes":          bytes,
				"effectiveBytes": effective,
				"callsiteHash":   callsiteHash,
			}, nil
		}); err != nil {
			return AllocOutcome{}, err
		}
		return AllocOutcome{FailedReason: fail, CallsiteHash: callsiteHash}, nil
	}

	a := &Allocation{
		ID:           l.ids.Next(),
		Requested:    bytes,
		Bytes:        effective,
		CallsiteHash: callsiteHash,
		Tag:          tag,
		AllocTick:    tick,
		OriginStep:   stepIndex,
	}
	l.inUse += effective
	l.total += effective
	if l.inUse > l.peak {
		l.peak = l.inUse
	}
	l.all = append(l.all, a)
	l.live[a.ID] = a
	if tag != "" {
		l.byTag[tag] = a.ID
	}
	l.graphEdges = append(l.graphEdges, GraphEdge{
		From: "callsite:" + callsiteHash,
		To:   allocNode(a.ID),
		Kind: "allocates",
	})
	if l.journaled {
		l.journal = append(l.journal, memOp{alloc: a})
	}
	return AllocOutcome{ID: a.ID, CallsiteHash: callsiteHash}, nil
}

// Free releases the allocation with the given id. Returns false if the id
// is not live.
func (l *Ledger) Free(id uint64, tick int64) bool {
	a, ok := l.live[id]
	if !ok {
		return false
	}
	delete(l.live, id)
	l.freeCount++
	l.inUse -= a.Bytes
	t := tick
	a.FreeTick = &t
	l.graphEdges = append(l.graphEdges, GraphEdge{
		From: allocNode(id),
		To:   freeNode(id),
		Kind: "freed_by",
	})
	if l.journaled {
		l.journal = append(l.journal, memOp{freed: a})
	}
	return true
}

// FreeTag releases the allocation previously tagged by mem_alloc.
func (l *Ledger) FreeTag(tag string, tick int64) bool {
	id, ok := l.byTag[tag]
	if !ok {
		return false
	}
	return l.Free(id, tick)
}

// InUse returns the current live byte count.
func (l *Ledger) InUse() uint64 {
	return l.inUse
}

// Leaks returns the live allocations at end of run, ordered by id.
// The ordering (and hence the leak set serialization) is seed-stable.
func (l *Ledger) Leaks() []Allocation {
	out := make([]Allocation, 0, len(l.live))
	for _, a := range l.live {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Allocations returns every ledger entry in allocation order.
func (l *Ledger) Allocations() []Allocation {
	out := make([]Allocation, len(l.all))
	for i, a := range l.all {
		out[i] = *a
	}
	return out
}

// GraphEdges returns the allocation graph edges in emission order.
func (l *Ledger) GraphEdges() []GraphEdge {
	return l.graphEdges
}

// Summary aggregates the ledger counters including the leak tally.
func (l *Ledger) Summary() MemSummary {
	var leakedBytes uint64
	for _, a := range l.live {
		leakedBytes += a.Bytes
	}
	return MemSummary{
		AllocCount:       l.ops,
		FreeCount:        l.freeCount,
		FailedAllocCount: l.failCount,
		InUseBytes:       l.inUse,
		PeakBytes:        l.peak,
		TotalBytes:       l.total,
		LeakedBytes:      leakedBytes,
		LeakedAllocs:     uint64(len(l.live)),
	}
}

// BeginJournal starts capturing mutations for a guarded block.
func (l *Ledger) BeginJournal() {
	l.journaled = true
	l.journal = l.journal[:0]
}

// Rollback undoes every journaled mutation in reverse order and stops
// journaling. Counters for failed allocations are deliberately kept: a
// guarded block observing an OOM still counts the attempt.
func (l *Ledger) Rollback() {
	for i := len(l.journal) - 1; i >= 0; i-- {
		op := l.journal[i]
		switch {
		case op.alloc != nil:
			a := op.alloc
			if _, ok := l.live[a.ID]; ok {
				delete(l.live, a.ID)
				l.inUse -= a.Bytes
			}
			if a.Tag != "" {
				delete(l.byTag, a.Tag)
			}
			l.removeAll(a)
		case op.freed != nil:
			a := op.freed
			a.FreeTick = nil
			l.live[a.ID] = a
			l.inUse += a.Bytes
			l.freeCount--
		}
	}
	l.journal = l.journal[:0]
	l.journaled = false
}

// Commit keeps journaled mutations and stops journaling.
func (l *Ledger) Commit() {
	l.journal = l.journal[:0]
	l.journaled = false
}

func (l *Ledger) removeAll(a *Allocation) {
	for i, x := range l.all {
		if x == a {
			l.all = append(l.all[:i], l.all[i+1:]...)
			return
		}
	}
}

// effectiveBytes applies the pressure-wave multiplier schedule and the
// fragmentation padding to the requested size.
func (l *Ledger) effectiveBytes(requested uint64) uint64 {
	scaled := requested
	if len(l.wave) > 0 {
		idx := int((l.ops - 1) % uint64(len(l.wave)))
		scaled = requested * l.wave[idx]
	}
	if l.policy.FragmentationSeed != nil {
		var input [24]byte
		binary.LittleEndian.PutUint64(input[0:8], *l.policy.FragmentationSeed)
		binary.LittleEndian.PutUint64(input[8:16], l.ops)
		binary.LittleEndian.PutUint64(input[16:24], requested)
		h := decision.HashWithDomain(decision.DomainCallsite, input[:])
		pct := uint64(h[0]) % 31 // 0..30% padding
		scaled += scaled * pct / 100
	}
	return scaled
}

func allocNode(id uint64) string {
	return "alloc:" + strconv.FormatUint(id, 10)
}

func freeNode(id uint64) string {
	return "free:" + strconv.FormatUint(id, 10)
}
