package engine

import (
	"sort"

	"github.com/panbanda/strata/internal/scanner"
	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/analyzer/complexity"
	"github.com/panbanda/strata/pkg/analyzer/deadcode"
	"github.com/panbanda/strata/pkg/analyzer/duplicates"
	"github.com/panbanda/strata/pkg/analyzer/graph"
	"github.com/panbanda/strata/pkg/analyzer/satd"
	"github.com/panbanda/strata/pkg/analyzer/tdg"
	"github.com/panbanda/strata/pkg/parser"
	"github.com/panbanda/strata/pkg/project"
)

// Counts are the run totals. They are always present, zero included.
type Counts struct {
	Files         int `json:"files"`
	ParsedFiles   int `json:"parsed_files"`
	FailedFiles   int `json:"failed_files"`
	Functions     int `json:"functions"`
	Nodes         int `json:"nodes"`
	Edges         int `json:"edges"`
	ExternalEdges int `json:"external_edges"`
	Lines         int `json:"lines"`
}

// ParseWarning is a file that was counted but produced no FileContext.
type ParseWarning struct {
	Path    string                `json:"path"`
	Kind    parser.ParseErrorKind `json:"kind"`
	Message string                `json:"message"`
}

// Warnings are the non-fatal conditions of a run.
type Warnings struct {
	ParseErrors []ParseWarning                `json:"parse_errors"`
	Ambiguities []project.ResolutionAmbiguity `json:"ambiguities"`
	Degraded    []analyzer.PassDegraded       `json:"degraded"`
	Skipped     []scanner.Skip                `json:"skipped,omitempty"`
}

// Len returns the total number of warnings.
func (w *Warnings) Len() int {
	return len(w.ParseErrors) + len(w.Ambiguities) + len(w.Degraded) + len(w.Skipped)
}

// Summary is the result of one run. A pass disabled by configuration
// leaves its section nil. A Summary is not modified after Run returns.
type Summary struct {
	Counts     Counts                 `json:"counts"`
	Complexity *complexity.Analysis   `json:"complexity,omitempty"`
	DeadCode   *deadcode.Analysis     `json:"dead_code,omitempty"`
	Duplicates *duplicates.Analysis   `json:"duplicates,omitempty"`
	Graph      *graph.DependencyGraph `json:"graph,omitempty"`
	SATD       *satd.Analysis         `json:"satd,omitempty"`
	TDG        *tdg.Analysis          `json:"tdg,omitempty"`
	Warnings   Warnings               `json:"warnings"`
}

// Empty reports whether the run found no files at all.
func (s *Summary) Empty() bool {
	return s.Counts.Files == 0
}

// ViolationCount sums the findings of every pass that ran.
func (s *Summary) ViolationCount() int {
	n := 0
	if s.Complexity != nil {
		n += len(s.Complexity.Violations)
	}
	if s.DeadCode != nil {
		n += len(s.DeadCode.Dead)
	}
	if s.Duplicates != nil {
		n += len(s.Duplicates.Groups)
	}
	if s.SATD != nil {
		n += len(s.SATD.Items)
	}
	return n
}

func newWarnings() Warnings {
	return Warnings{
		ParseErrors: make([]ParseWarning, 0),
		Ambiguities: make([]project.ResolutionAmbiguity, 0),
		Degraded:    make([]analyzer.PassDegraded, 0),
	}
}

func sortParseWarnings(ws []ParseWarning) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].Path < ws[j].Path })
}
