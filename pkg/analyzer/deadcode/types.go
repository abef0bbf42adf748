package deadcode

import (
	"github.com/panbanda/strata/pkg/uast"
)

// ConfidenceLevel indicates how certain we are about dead code detection.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// String returns the string representation.
func (c ConfidenceLevel) String() string {
	return string(c)
}

// ConfidenceThresholds defines the thresholds for confidence level classification.
type ConfidenceThresholds struct {
	HighThreshold   float64 // Confidence >= this is "High" (default: 0.8)
	MediumThreshold float64 // Confidence >= this (and < High) is "Medium" (default: 0.5)
}

// DefaultConfidenceThresholds returns the default confidence thresholds.
func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{
		HighThreshold:   0.8,
		MediumThreshold: 0.5,
	}
}

// Level classifies a numeric confidence.
func (t ConfidenceThresholds) Level(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= t.HighThreshold:
		return ConfidenceHigh
	case confidence >= t.MediumThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Dead is a declaration that no entry point reaches.
type Dead struct {
	ID              uast.NodeID     `json:"id" toon:"id"`
	Name            string          `json:"name" toon:"name"`
	QualifiedName   string          `json:"qualified_name" toon:"qualified_name"`
	Kind            uast.NodeKind   `json:"kind" toon:"kind"`
	File            string          `json:"file" toon:"file"`
	Line            uint32          `json:"line" toon:"line"`
	EndLine         uint32          `json:"end_line" toon:"end_line"`
	Visibility      uast.Visibility `json:"visibility" toon:"visibility"`
	Confidence      float64         `json:"confidence" toon:"confidence"` // 0.0-1.0, how certain we are it's dead
	ConfidenceLevel ConfidenceLevel `json:"confidence_level" toon:"confidence_level"`
	Reason          string          `json:"reason" toon:"reason"`
	ContextHash     string          `json:"context_hash" toon:"context_hash"`
}

// FileMetrics contains file-level dead code metrics.
type FileMetrics struct {
	Path           string  `json:"path" toon:"path"`
	DeadItems      int     `json:"dead_items" toon:"dead_items"`
	DeadLines      int     `json:"dead_lines" toon:"dead_lines"`
	TotalLines     int     `json:"total_lines" toon:"total_lines"`
	DeadPercentage float32 `json:"dead_percentage" toon:"dead_percentage"`
}

// UpdatePercentage updates the dead percentage based on current counts.
func (f *FileMetrics) UpdatePercentage() {
	if f.TotalLines > 0 {
		f.DeadPercentage = float32(f.DeadLines) / float32(f.TotalLines) * 100.0
	}
}

// Summary provides aggregate statistics.
type Summary struct {
	TotalNodes         int                     `json:"total_nodes" toon:"total_nodes"`
	EntryNodes         int                     `json:"entry_nodes" toon:"entry_nodes"`
	ReachableNodes     int                     `json:"reachable_nodes" toon:"reachable_nodes"`
	TotalDead          int                     `json:"total_dead" toon:"total_dead"`
	DeadFunctions      int                     `json:"dead_functions" toon:"dead_functions"`
	DeadTypes          int                     `json:"dead_types" toon:"dead_types"`
	DeadConstants      int                     `json:"dead_constants" toon:"dead_constants"`
	DeadCodePercentage float64                 `json:"dead_code_percentage" toon:"dead_code_percentage"`
	ByKind             map[uast.NodeKind]int   `json:"by_kind" toon:"-"`
	ByConfidence       map[ConfidenceLevel]int `json:"by_confidence" toon:"-"`
	ByFile             map[string]int          `json:"by_file" toon:"-"`
}

// NewSummary creates an initialized summary.
func NewSummary() Summary {
	return Summary{
		ByKind:       make(map[uast.NodeKind]int),
		ByConfidence: make(map[ConfidenceLevel]int),
		ByFile:       make(map[string]int),
	}
}

// Add updates the summary with a dead item.
func (s *Summary) Add(d Dead) {
	s.TotalDead++
	s.ByKind[d.Kind]++
	s.ByConfidence[d.ConfidenceLevel]++
	s.ByFile[d.File]++
	switch {
	case d.Kind.IsCallable():
		s.DeadFunctions++
	case d.Kind.IsType():
		s.DeadTypes++
	case d.Kind == uast.KindConstant:
		s.DeadConstants++
	}
}

// CalculatePercentage sets the share of candidate nodes that are dead.
func (s *Summary) CalculatePercentage() {
	if s.TotalNodes > 0 {
		s.DeadCodePercentage = float64(s.TotalDead) / float64(s.TotalNodes) * 100.0
	}
}

// Analysis represents the full dead code analysis result.
type Analysis struct {
	Dead    []Dead        `json:"dead" toon:"dead"`
	Files   []FileMetrics `json:"files" toon:"files"`
	Summary Summary       `json:"summary" toon:"summary"`
}
