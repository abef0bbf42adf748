package complexity

import "github.com/panbanda/strata/pkg/uast"

// Metrics represents code complexity measurements for a function.
type Metrics struct {
	Cyclomatic uint32 `json:"cyclomatic"`
	Cognitive  uint32 `json:"cognitive"`
	MaxNesting int    `json:"max_nesting"`
	Lines      int    `json:"lines"`
}

// FunctionResult represents complexity metrics for a single function.
type FunctionResult struct {
	ID         uast.NodeID `json:"id"`
	Name       string      `json:"name"`
	File       string      `json:"file"`
	StartLine  uint32      `json:"start_line"`
	EndLine    uint32      `json:"end_line"`
	Metrics    Metrics     `json:"metrics"`
	Violations []string    `json:"violations,omitempty"`
}

// FileResult represents aggregated complexity for a file.
type FileResult struct {
	Path            string           `json:"path"`
	Language        string           `json:"language"`
	Functions       []FunctionResult `json:"functions"`
	TotalCyclomatic uint32           `json:"total_cyclomatic"`
	TotalCognitive  uint32           `json:"total_cognitive"`
	AvgCyclomatic   float64          `json:"avg_cyclomatic"`
	AvgCognitive    float64          `json:"avg_cognitive"`
	MaxCyclomatic   uint32           `json:"max_cyclomatic"`
	MaxCognitive    uint32           `json:"max_cognitive"`
	ViolationCount  int              `json:"violation_count"`
}

// Analysis represents the full analysis result.
type Analysis struct {
	Files      []FileResult `json:"files"`
	Violations []Violation  `json:"violations"`
	Summary    Summary      `json:"summary"`
}

// Summary provides aggregate statistics.
type Summary struct {
	TotalFiles     int     `json:"total_files"`
	TotalFunctions int     `json:"total_functions"`
	AvgCyclomatic  float64 `json:"avg_cyclomatic"`
	AvgCognitive   float64 `json:"avg_cognitive"`
	MaxCyclomatic  uint32  `json:"max_cyclomatic"`
	MaxCognitive   uint32  `json:"max_cognitive"`
	P50Cyclomatic  uint32  `json:"p50_cyclomatic"`
	P90Cyclomatic  uint32  `json:"p90_cyclomatic"`
	P95Cyclomatic  uint32  `json:"p95_cyclomatic"`
	P50Cognitive   uint32  `json:"p50_cognitive"`
	P90Cognitive   uint32  `json:"p90_cognitive"`
	P95Cognitive   uint32  `json:"p95_cognitive"`
	ViolationCount int     `json:"violation_count"`
}

// Thresholds defines the limits for complexity violations. A zero limit
// disables that check.
type Thresholds struct {
	MaxCyclomatic uint32 `json:"max_cyclomatic" koanf:"max_cyclomatic" toml:"max_cyclomatic"`
	MaxCognitive  uint32 `json:"max_cognitive" koanf:"max_cognitive" toml:"max_cognitive"`
	MaxNesting    int    `json:"max_nesting" koanf:"max_nesting" toml:"max_nesting"`
}

// DefaultThresholds flags cyclomatic complexity above 20 only.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxCyclomatic: 20,
	}
}

// Violation represents a complexity threshold violation.
type Violation struct {
	ID        uast.NodeID `json:"id"`
	Rule      string      `json:"rule"`
	Message   string      `json:"message"`
	Value     uint32      `json:"value"`
	Threshold uint32      `json:"threshold"`
	File      string      `json:"file"`
	Line      uint32      `json:"line"`
	Function  string      `json:"function,omitempty"`
}

// IsSimple returns true if complexity is within acceptable limits.
func (m *Metrics) IsSimple(t Thresholds) bool {
	return (t.MaxCyclomatic == 0 || m.Cyclomatic <= t.MaxCyclomatic) &&
		(t.MaxCognitive == 0 || m.Cognitive <= t.MaxCognitive) &&
		(t.MaxNesting == 0 || m.MaxNesting <= t.MaxNesting)
}

// ComplexityScore calculates a composite complexity score for ranking.
// Combines cyclomatic, cognitive, nesting, and lines with weighted factors.
func (m *Metrics) ComplexityScore() float64 {
	return float64(m.Cyclomatic)*1.0 +
		float64(m.Cognitive)*1.2 +
		float64(m.MaxNesting)*2.0 +
		float64(m.Lines)*0.1
}
