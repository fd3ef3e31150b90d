package profile

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/fozzylabs/fozzy/internal/capability"
	"github.com/fozzylabs/fozzy/internal/errs"
	"github.com/fozzylabs/fozzy/internal/trace"
)

// MemoryReportSchema identifies the memory artifact format.
const MemoryReportSchema = "fozzy.memory_report.v1"

// GraphNode is one allocation-graph node.
type GraphNode struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

// MemoryGraph is the allocation graph for forensic tooling. Nodes are
// sorted by id; edges keep emission order.
type MemoryGraph struct {
	Nodes []GraphNode            `json:"nodes"`
	Edges []capability.GraphEdge `json:"edges"`
}

// MemoryReport is the fozzy.memory_report.v1 artifact.
type MemoryReport struct {
	SchemaVersion string                  `json:"schema_version"`
	Summary       capability.MemSummary   `json:"summary"`
	Leaks         []capability.Allocation `json:"leaks"`
	Graph         MemoryGraph             `json:"graph"`
}

// BuildMemoryReport assembles the memory artifact from a run's ledger
// outputs.
func BuildMemoryReport(summary capability.MemSummary, leaks []capability.Allocation, edges []capability.GraphEdge) *MemoryReport {
	if edges == nil {
		edges = []capability.GraphEdge{}
	}
	nodeSet := make(map[string]bool)
	for _, e := range edges {
		nodeSet[e.From] = true
		nodeSet[e.To] = true
	}
	nodes := make([]GraphNode, 0, len(nodeSet))
	for id := range nodeSet {
		kind, label := "node", id
		for _, prefix := range []string{"alloc:", "free:", "callsite:"} {
			if rest, ok := strings.CutPrefix(id, prefix); ok {
				kind, label = strings.TrimSuffix(prefix, ":"), rest
				break
			}
		}
		nodes = append(nodes, GraphNode{ID: id, Kind: kind, Label: label})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	if leaks == nil {
		leaks = []capability.Allocation{}
	}
	return &MemoryReport{
		SchemaVersion: MemoryReportSchema,
		Summary:       summary,
		Leaks:         leaks,
		Graph:         MemoryGraph{Nodes: nodes, Edges: edges},
	}
}

// WriteLeaks writes the memory.leaks.json artifact: the live allocation
// ids and their metadata at end of run.
func WriteLeaks(path string, leaks []capability.Allocation) error {
	if leaks == nil {
		leaks = []capability.Allocation{}
	}
	data, err := json.MarshalIndent(leaks, "", "  ")
	if err != nil {
		return errs.Newf(errs.KindInternal, "profile: encode leaks: %v", err)
	}
	return trace.WriteAtomic(path, append(data, '\n'))
}

// WriteMemoryReport writes the memory report artifact.
func WriteMemoryReport(path string, report *MemoryReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errs.Newf(errs.KindInternal, "profile: encode memory report: %v", err)
	}
	return trace.WriteAtomic(path, append(data, '\n'))
}
