// Package stats provides the summary statistics shared by the analyzers.
package stats

import (
	"gonum.org/v1/gonum/stat"
)

// Percentile returns the p-th percentile (0-100) of an ascending slice
// using the empirical quantile. It returns 0 for an empty slice.
func Percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	q := float64(min(max(p, 0), 100)) / 100
	return stat.Quantile(q, stat.Empirical, sorted, nil)
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
