package complexity

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/stats"
	"github.com/panbanda/strata/pkg/uast"
)

// Ensure Analyzer implements analyzer.ProjectAnalyzer.
var _ analyzer.ProjectAnalyzer[*Analysis] = (*Analyzer)(nil)

// Analyzer computes cyclomatic and cognitive complexity from body skeletons.
type Analyzer struct {
	thresholds Thresholds
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithThresholds replaces the violation thresholds.
func WithThresholds(t Thresholds) Option {
	return func(a *Analyzer) {
		a.thresholds = t
	}
}

// New creates a new complexity analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze measures every callable in the project.
func (a *Analyzer) Analyze(ctx context.Context, proj *project.Context) (*Analysis, error) {
	analysis := &Analysis{Files: make([]FileResult, 0, len(proj.Files))}

	for _, fc := range proj.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fr := FileResult{
			Path:      fc.Path,
			Language:  fc.Language,
			Functions: make([]FunctionResult, 0),
		}
		for _, n := range fc.Nodes {
			if !n.Kind.IsCallable() {
				continue
			}
			fn := a.analyzeFunction(n)
			fr.Functions = append(fr.Functions, fn)
			fr.TotalCyclomatic += fn.Metrics.Cyclomatic
			fr.TotalCognitive += fn.Metrics.Cognitive
			fr.MaxCyclomatic = max(fr.MaxCyclomatic, fn.Metrics.Cyclomatic)
			fr.MaxCognitive = max(fr.MaxCognitive, fn.Metrics.Cognitive)
			fr.ViolationCount += len(fn.Violations)
			analysis.Violations = append(analysis.Violations, a.violations(fn)...)
		}
		if len(fr.Functions) > 0 {
			fr.AvgCyclomatic = float64(fr.TotalCyclomatic) / float64(len(fr.Functions))
			fr.AvgCognitive = float64(fr.TotalCognitive) / float64(len(fr.Functions))
		}
		analysis.Files = append(analysis.Files, fr)
	}

	SortViolations(analysis.Violations)
	analysis.Summary = buildSummary(analysis)
	return analysis, nil
}

func (a *Analyzer) analyzeFunction(n *uast.Node) FunctionResult {
	fn := FunctionResult{
		ID:        n.ID,
		Name:      n.ShortName(),
		File:      n.Location.Path,
		StartLine: n.Location.StartLine,
		EndLine:   n.Location.EndLine,
		Metrics:   Measure(n.Body),
	}
	if n.Body == nil {
		fn.Metrics.Lines = n.Location.Lines()
	}

	t := a.thresholds
	if t.MaxCyclomatic > 0 && fn.Metrics.Cyclomatic > t.MaxCyclomatic {
		fn.Violations = append(fn.Violations, "cyclomatic")
	}
	if t.MaxCognitive > 0 && fn.Metrics.Cognitive > t.MaxCognitive {
		fn.Violations = append(fn.Violations, "cognitive")
	}
	if t.MaxNesting > 0 && fn.Metrics.MaxNesting > t.MaxNesting {
		fn.Violations = append(fn.Violations, "nesting")
	}
	return fn
}

func (a *Analyzer) violations(fn FunctionResult) []Violation {
	var out []Violation
	for _, rule := range fn.Violations {
		v := Violation{
			ID:       fn.ID,
			Rule:     rule,
			File:     fn.File,
			Line:     fn.StartLine,
			Function: fn.Name,
		}
		switch rule {
		case "cyclomatic":
			v.Value, v.Threshold = fn.Metrics.Cyclomatic, a.thresholds.MaxCyclomatic
		case "cognitive":
			v.Value, v.Threshold = fn.Metrics.Cognitive, a.thresholds.MaxCognitive
		case "nesting":
			v.Value, v.Threshold = uint32(fn.Metrics.MaxNesting), uint32(a.thresholds.MaxNesting)
		}
		v.Message = fmt.Sprintf("%s complexity %d exceeds %d", rule, v.Value, v.Threshold)
		out = append(out, v)
	}
	return out
}

// Measure computes the metrics of one body skeleton. A nil or empty body
// has cyclomatic 1 and cognitive 0.
func Measure(b *uast.Body) Metrics {
	m := Metrics{Cyclomatic: Cyclomatic(b), Cognitive: Cognitive(b), MaxNesting: b.MaxDepth()}
	if b != nil && b.EndLine >= b.StartLine && b.StartLine > 0 {
		m.Lines = int(b.EndLine-b.StartLine) + 1
	}
	return m
}

// Cyclomatic is decision points plus one. Conditionals, loops, catches,
// ternaries, short-circuit operators and every case arm after the first count.
func Cyclomatic(b *uast.Body) uint32 {
	count := uint32(1)
	if b == nil {
		return count
	}
	for _, d := range b.Decisions {
		switch d.Kind {
		case uast.DecisionIf, uast.DecisionElseIf, uast.DecisionLoop, uast.DecisionCatch,
			uast.DecisionTernary, uast.DecisionBoolOp:
			count++
		case uast.DecisionCase:
			if d.Arm > 0 {
				count++
			}
		}
	}
	return count
}

// Cognitive charges nesting constructs 1 plus their depth and sequential
// constructs (else, else-if, boolean operators, labelled jumps) a flat 1.
func Cognitive(b *uast.Body) uint32 {
	if b == nil {
		return 0
	}
	var total uint32
	for _, d := range b.Decisions {
		switch {
		case d.Kind.Nests():
			total += 1 + uint32(d.Depth)
		case d.Kind == uast.DecisionElseIf, d.Kind == uast.DecisionElse,
			d.Kind == uast.DecisionBoolOp, d.Kind == uast.DecisionJump:
			total++
		}
	}
	return total
}

// SortViolations orders by descending value, then file path, then node id.
func SortViolations(vs []Violation) {
	slices.SortStableFunc(vs, func(a, b Violation) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		if c := cmp.Compare(a.File, b.File); c != 0 {
			return c
		}
		if c := uast.CompareIDs(a.ID, b.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Rule, b.Rule)
	})
}

// Rank returns the functions ordered by descending cyclomatic complexity,
// then cognitive complexity, then file path, then node id.
func (a *Analysis) Rank() []FunctionResult {
	var all []FunctionResult
	for _, f := range a.Files {
		all = append(all, f.Functions...)
	}
	slices.SortStableFunc(all, func(x, y FunctionResult) int {
		if c := cmp.Compare(y.Metrics.Cyclomatic, x.Metrics.Cyclomatic); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Metrics.Cognitive, x.Metrics.Cognitive); c != 0 {
			return c
		}
		if c := cmp.Compare(x.File, y.File); c != 0 {
			return c
		}
		return uast.CompareIDs(x.ID, y.ID)
	})
	return all
}

// buildSummary computes project-level aggregates and percentiles.
func buildSummary(analysis *Analysis) Summary {
	var s Summary
	var totalCyc, totalCog uint32

	s.TotalFiles = len(analysis.Files)
	var allCyclomatic, allCognitive []float64
	for _, fr := range analysis.Files {
		totalCyc += fr.TotalCyclomatic
		totalCog += fr.TotalCognitive
		s.TotalFunctions += len(fr.Functions)
		s.MaxCyclomatic = max(s.MaxCyclomatic, fr.MaxCyclomatic)
		s.MaxCognitive = max(s.MaxCognitive, fr.MaxCognitive)
		for _, fn := range fr.Functions {
			allCyclomatic = append(allCyclomatic, float64(fn.Metrics.Cyclomatic))
			allCognitive = append(allCognitive, float64(fn.Metrics.Cognitive))
		}
	}
	s.ViolationCount = len(analysis.Violations)
	if s.TotalFunctions == 0 {
		return s
	}

	s.AvgCyclomatic = float64(totalCyc) / float64(s.TotalFunctions)
	s.AvgCognitive = float64(totalCog) / float64(s.TotalFunctions)

	sort.Float64s(allCyclomatic)
	sort.Float64s(allCognitive)
	s.P50Cyclomatic = uint32(stats.Percentile(allCyclomatic, 50))
	s.P90Cyclomatic = uint32(stats.Percentile(allCyclomatic, 90))
	s.P95Cyclomatic = uint32(stats.Percentile(allCyclomatic, 95))
	s.P50Cognitive = uint32(stats.Percentile(allCognitive, 50))
	s.P90Cognitive = uint32(stats.Percentile(allCognitive, 90))
	s.P95Cognitive = uint32(stats.Percentile(allCognitive, 95))
	return s
}
