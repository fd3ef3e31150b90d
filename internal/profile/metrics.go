// Package profile computes post-run metrics and the forensic memory
// artifacts. Metrics feed both reports and the shrinker's
// metric-preserving predicates.
package profile

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// LatencyStats summarizes per-step virtual latencies in ticks.
type LatencyStats struct {
	P50   float64 `json:"p50"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// Quantile returns the p-quantile of the samples. Samples are copied and
// sorted; an empty input yields zero.
func Quantile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Latencies computes the summary statistics for a latency series.
func Latencies(samples []float64) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return LatencyStats{
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Max:   sorted[len(sorted)-1],
		Mean:  stat.Mean(sorted, nil),
		Count: len(sorted),
	}
}
