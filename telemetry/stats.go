package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// SeriesStats summarizes a numeric series. Std is the population standard
// deviation; quartiles interpolate linearly between order statistics.
type SeriesStats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// Summarize computes SeriesStats. An empty series yields zeros.
func Summarize(values []float64) SeriesStats {
	if len(values) == 0 {
		return SeriesStats{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean, std := stat.PopMeanStdDev(values, nil)
	return SeriesStats{
		Mean:   mean,
		Std:    std,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: Percentile(sorted, 0.50),
		Q25:    Percentile(sorted, 0.25),
		Q75:    Percentile(sorted, 0.75),
	}
}

// CoefficientOfVariation returns std/mean, or fallback when mean <= 0.
func CoefficientOfVariation(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if mean <= 0 {
		return fallback
	}
	return std / mean
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeEnergyStats returns mean, p10, p50, p90 for a slice of energies.
// Returns zeros if slice is empty.
func ComputeEnergyStats(energies []float64) (mean, p10, p50, p90 float64) {
	if len(energies) == 0 {
		return 0, 0, 0, 0
	}
	sorted := slices.Clone(energies)
	slices.Sort(sorted)

	return stat.Mean(energies, nil), Percentile(sorted, 0.10), Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// Ints converts a count series for the float statistics helpers.
func Ints(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// LogValue implements slog.LogValuer for structured logging.
func (s SeriesStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("min", s.Min),
		slog.Float64("max", s.Max),
		slog.Float64("median", s.Median),
	)
}
