package tdg

import (
	"fmt"
	"math"

	"github.com/panbanda/strata/pkg/uast"
)

// Metric names one TDG sub-metric.
type Metric string

const (
	MetricComplexity  Metric = "complexity"
	MetricChurn       Metric = "churn"
	MetricDuplication Metric = "duplication"
	MetricSATD        Metric = "satd"
	MetricCoverage    Metric = "coverage_gap"
	MetricCoupling    Metric = "coupling"
)

// metricOrder fixes the slot of each metric in a Components vector.
var metricOrder = [...]Metric{
	MetricComplexity, MetricChurn, MetricDuplication, MetricSATD, MetricCoverage, MetricCoupling,
}

// Components holds one value per sub-metric.
type Components struct {
	Complexity  float64 `json:"complexity" toon:"complexity"`
	Churn       float64 `json:"churn" toon:"churn"`
	Duplication float64 `json:"duplication" toon:"duplication"`
	SATD        float64 `json:"satd" toon:"satd"`
	CoverageGap float64 `json:"coverage_gap" toon:"coverage_gap"`
	Coupling    float64 `json:"coupling" toon:"coupling"`
}

func (c Components) vector() []float64 {
	return []float64{c.Complexity, c.Churn, c.Duplication, c.SATD, c.CoverageGap, c.Coupling}
}

func fromVector(v []float64) Components {
	return Components{
		Complexity:  v[0],
		Churn:       v[1],
		Duplication: v[2],
		SATD:        v[3],
		CoverageGap: v[4],
		Coupling:    v[5],
	}
}

// Weights scale each normalized sub-metric in the composite.
type Weights struct {
	Complexity  float64 `koanf:"complexity" toml:"complexity"`
	Churn       float64 `koanf:"churn" toml:"churn"`
	Duplication float64 `koanf:"duplication" toml:"duplication"`
	SATD        float64 `koanf:"satd" toml:"satd"`
	CoverageGap float64 `koanf:"coverage_gap" toml:"coverage_gap"`
	Coupling    float64 `koanf:"coupling" toml:"coupling"`
}

// DefaultWeights weighs the five core sub-metrics equally and ignores coupling.
func DefaultWeights() Weights {
	return Weights{
		Complexity:  1,
		Churn:       1,
		Duplication: 1,
		SATD:        1,
		CoverageGap: 1,
	}
}

func (w Weights) vector() []float64 {
	return []float64{w.Complexity, w.Churn, w.Duplication, w.SATD, w.CoverageGap, w.Coupling}
}

// Validate rejects negative or non-finite weights and an all-zero set.
func (w Weights) Validate() error {
	var total float64
	for i, v := range w.vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("tdg weight %s must be a finite number >= 0, got %v", metricOrder[i], v)
		}
		total += v
	}
	if total == 0 {
		return fmt.Errorf("tdg weights: at least one weight must be positive")
	}
	return nil
}

// Bucket is the percentile band a composite falls in.
type Bucket string

const (
	BucketCritical Bucket = "critical"
	BucketHigh     Bucket = "high"
	BucketMedium   Bucket = "medium"
	BucketLow      Bucket = "low"
)

// Unit is the granularity a score was computed at.
type Unit string

const (
	UnitFunction Unit = "function"
	UnitFile     Unit = "file"
)

// Score is the TDG result for one function or file.
type Score struct {
	Unit           Unit        `json:"unit" toon:"unit"`
	ID             uast.NodeID `json:"id,omitempty" toon:"id,omitempty"`
	Name           string      `json:"name" toon:"name"`
	File           string      `json:"file" toon:"file"`
	StartLine      uint32      `json:"start_line" toon:"start_line"`
	EndLine        uint32      `json:"end_line" toon:"end_line"`
	Raw            Components  `json:"raw" toon:"raw"`
	Normalized     Components  `json:"normalized" toon:"normalized"`
	Composite      float64     `json:"composite" toon:"composite"`
	Bucket         Bucket      `json:"bucket" toon:"bucket"`
	PrimaryFactor  Metric      `json:"primary_factor,omitempty" toon:"primary_factor,omitempty"`
	EstimatedHours float64     `json:"estimated_hours" toon:"estimated_hours"`
}

// Percentiles are the bucket boundaries of a population.
type Percentiles struct {
	P50 float64 `json:"p50" toon:"p50"`
	P90 float64 `json:"p90" toon:"p90"`
	P99 float64 `json:"p99" toon:"p99"`
}

// Bucket classifies a composite against the boundaries. Zero is always low.
func (p Percentiles) Bucket(composite float64) Bucket {
	switch {
	case composite <= 0:
		return BucketLow
	case composite >= p.P99:
		return BucketCritical
	case composite >= p.P90:
		return BucketHigh
	case composite >= p.P50:
		return BucketMedium
	default:
		return BucketLow
	}
}

// Summary provides aggregate statistics.
type Summary struct {
	TotalFunctions     int            `json:"total_functions" toon:"total_functions"`
	TotalFiles         int            `json:"total_files" toon:"total_files"`
	FunctionBounds     Percentiles    `json:"function_bounds" toon:"function_bounds"`
	FileBounds         Percentiles    `json:"file_bounds" toon:"file_bounds"`
	FunctionBuckets    map[Bucket]int `json:"function_buckets" toon:"-"`
	FileBuckets        map[Bucket]int `json:"file_buckets" toon:"-"`
	AverageFunction    float64        `json:"average_function" toon:"average_function"`
	AverageFile        float64        `json:"average_file" toon:"average_file"`
	EstimatedDebtHours float64        `json:"estimated_debt_hours" toon:"estimated_debt_hours"`
}

// Analysis is the ranked TDG result.
type Analysis struct {
	Functions []Score `json:"functions" toon:"functions"`
	Files     []Score `json:"files" toon:"files"`
	Weights   Weights `json:"weights" toon:"weights"`
	Summary   Summary `json:"summary" toon:"summary"`
}
