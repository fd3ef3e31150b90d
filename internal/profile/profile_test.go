package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fozzylabs/fozzy/internal/capability"
)

func TestQuantile(t *testing.T) {
	samples := []float64{0, 0, 0, 50}

	assert.Equal(t, float64(50), Quantile(samples, 0.99))
	assert.Equal(t, float64(0), Quantile(samples, 0.25))
	assert.Zero(t, Quantile(nil, 0.99))
}

func TestLatencies(t *testing.T) {
	stats := Latencies([]float64{10, 20, 30, 40})

	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, float64(40), stats.Max)
	assert.Equal(t, float64(25), stats.Mean)
	assert.Equal(t, float64(40), stats.P99)

	assert.Zero(t, Latencies(nil).Count)
}

func TestBuildMemoryReport(t *testing.T) {
	leaks := []capability.Allocation{{ID: 2, Bytes: 64, CallsiteHash: "cs"}}
	edges := []capability.GraphEdge{
		{From: "callsite:cs", To: "alloc:1", Kind: "allocates"},
		{From: "alloc:1", To: "free:1", Kind: "freed_by"},
		{From: "callsite:cs", To: "alloc:2", Kind: "allocates"},
	}
	report := BuildMemoryReport(capability.MemSummary{AllocCount: 2, FreeCount: 1, LeakedAllocs: 1}, leaks, edges)

	assert.Equal(t, MemoryReportSchema, report.SchemaVersion)
	require.Len(t, report.Graph.Nodes, 4)
	assert.Equal(t, "alloc:1", report.Graph.Nodes[0].ID, "nodes sorted by id")
	assert.Equal(t, "alloc", report.Graph.Nodes[0].Kind)
	assert.Equal(t, "callsite", report.Graph.Nodes[2].Kind)
	assert.Len(t, report.Graph.Edges, 3)
}

func TestWriteLeaks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.leaks.json")
	leaks := []capability.Allocation{
		{ID: 1, Bytes: 10, CallsiteHash: "a"},
		{ID: 3, Bytes: 30, CallsiteHash: "b"},
	}
	require.NoError(t, WriteLeaks(path, leaks))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, float64(1), decoded[0]["alloc_id"])
	assert.Equal(t, float64(3), decoded[1]["alloc_id"])
}

func TestWriteLeaks_EmptyIsValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.leaks.json")
	require.NoError(t, WriteLeaks(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Empty(t, decoded)
}
