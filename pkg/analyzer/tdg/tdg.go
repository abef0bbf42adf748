// Package tdg ranks functions and files by a composite technical debt score.
package tdg

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/panbanda/strata/pkg/analyzer/complexity"
	"github.com/panbanda/strata/pkg/analyzer/duplicates"
	"github.com/panbanda/strata/pkg/analyzer/satd"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/signals"
	"github.com/panbanda/strata/pkg/uast"
)

// Input bundles the pass results the scorer consumes. Any pass result or
// signal may be nil; its sub-metric is then zero everywhere except
// complexity, which is measured from the bodies directly.
type Input struct {
	Project    *project.Context
	Complexity *complexity.Analysis
	Duplicates *duplicates.Analysis
	SATD       *satd.Analysis
	Churn      signals.Churn
	Coverage   signals.Coverage
}

// Analyzer computes TDG scores.
type Analyzer struct {
	weights Weights
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithWeights sets the sub-metric weights.
func WithWeights(w Weights) Option {
	return func(a *Analyzer) {
		a.weights = w
	}
}

// New creates a new TDG analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// unit is one member of a scoring population before normalization.
type unit struct {
	score Score
	raw   []float64
}

// Analyze scores every callable and every file. The result depends only on
// the input.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Analysis, error) {
	if err := a.weights.Validate(); err != nil {
		return nil, err
	}
	analysis := &Analysis{
		Functions: make([]Score, 0),
		Files:     make([]Score, 0),
		Weights:   a.weights,
	}
	if in.Project == nil {
		analysis.Summary = summarize(analysis)
		return analysis, nil
	}

	m := newMetrics(in)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	funcs := m.functions()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files := m.files()

	w := a.weights.vector()
	analysis.Functions, analysis.Summary.FunctionBounds = score(funcs, w)
	analysis.Files, analysis.Summary.FileBounds = score(files, w)
	s := summarize(analysis)
	s.FunctionBounds = analysis.Summary.FunctionBounds
	s.FileBounds = analysis.Summary.FileBounds
	analysis.Summary = s
	return analysis, nil
}

// metrics gathers raw sub-metric lookups over one project.
type metrics struct {
	in         Input
	proj       *project.Context
	complexity map[uast.NodeID]complexity.Metrics
	duplicated map[uast.NodeID]bool
	debt       map[string][]satd.Item
}

func newMetrics(in Input) *metrics {
	m := &metrics{
		in:         in,
		proj:       in.Project,
		complexity: make(map[uast.NodeID]complexity.Metrics),
		duplicated: make(map[uast.NodeID]bool),
		debt:       make(map[string][]satd.Item),
	}
	if in.Complexity != nil {
		for _, fr := range in.Complexity.Files {
			for _, fn := range fr.Functions {
				m.complexity[fn.ID] = fn.Metrics
			}
		}
	}
	if in.Duplicates != nil {
		for _, g := range in.Duplicates.Groups {
			for _, inst := range g.Instances {
				m.duplicated[inst.ID] = true
			}
		}
	}
	if in.SATD != nil {
		for _, it := range in.SATD.Items {
			m.debt[it.File] = append(m.debt[it.File], it)
		}
	}
	return m
}

func (m *metrics) measure(n *uast.Node) float64 {
	cm, ok := m.complexity[n.ID]
	if !ok {
		cm = complexity.Measure(n.Body)
	}
	return float64(cm.Cognitive) + float64(cm.Cyclomatic)
}

func (m *metrics) satdWeight(path string, start, end uint32) float64 {
	var total float64
	for _, it := range m.debt[path] {
		if it.Line >= start && it.Line <= end {
			total += float64(it.Severity.Weight())
		}
	}
	return total
}

func (m *metrics) churn(path string, start, end uint32) float64 {
	if m.in.Churn == nil {
		return 0
	}
	return m.in.Churn.Churn(path, start, end)
}

func (m *metrics) gap(path string, start, end uint32) float64 {
	if m.in.Coverage == nil {
		return 0
	}
	return m.in.Coverage.Gap(path, start, end)
}

func (m *metrics) functions() []unit {
	proj := m.proj
	idx := proj.Callables()
	out := make([]unit, 0, len(idx))
	for _, i := range idx {
		n := proj.Nodes[i]
		loc := n.Location

		var coupling float64
		for _, k := range proj.Out(i) {
			if _, to, ok := proj.Endpoints(k); ok && to != i {
				coupling++
			}
		}
		for _, k := range proj.In(i) {
			if from, _, _ := proj.Endpoints(k); from != i {
				coupling++
			}
		}

		var dup float64
		if m.duplicated[n.ID] {
			dup = 1
		}

		raw := Components{
			Complexity:  m.measure(n),
			Churn:       m.churn(loc.Path, loc.StartLine, loc.EndLine),
			Duplication: dup,
			SATD:        m.satdWeight(loc.Path, loc.StartLine, loc.EndLine),
			CoverageGap: m.gap(loc.Path, loc.StartLine, loc.EndLine),
			Coupling:    coupling,
		}
		out = append(out, unit{
			score: Score{
				Unit:      UnitFunction,
				ID:        n.ID,
				Name:      n.ShortName(),
				File:      loc.Path,
				StartLine: loc.StartLine,
				EndLine:   loc.EndLine,
				Raw:       raw,
			},
			raw: raw.vector(),
		})
	}
	return out
}

func (m *metrics) files() []unit {
	proj := m.proj

	coupling := make(map[string]float64, len(proj.Files))
	for k := range proj.Edges {
		from, to, ok := proj.Endpoints(uint32(k))
		if !ok {
			continue
		}
		src, dst := proj.File(from).Path, proj.File(to).Path
		if src != dst {
			coupling[src]++
			coupling[dst]++
		}
	}

	out := make([]unit, 0, len(proj.Files))
	for _, fc := range proj.Files {
		end := uint32(max(fc.Lines, 1))

		var cx float64
		for _, n := range fc.Nodes {
			if n.Kind.IsCallable() {
				cx += m.measure(n)
			}
		}
		var dup float64
		if m.in.Duplicates != nil {
			dup = m.in.Duplicates.FileRatios[fc.Path]
		}

		raw := Components{
			Complexity:  cx,
			Churn:       m.churn(fc.Path, 1, end),
			Duplication: dup,
			SATD:        m.satdWeight(fc.Path, 1, math.MaxUint32),
			CoverageGap: m.gap(fc.Path, 1, end),
			Coupling:    coupling[fc.Path],
		}
		out = append(out, unit{
			score: Score{
				Unit:      UnitFile,
				Name:      fc.Path,
				File:      fc.Path,
				StartLine: 1,
				EndLine:   end,
				Raw:       raw,
			},
			raw: raw.vector(),
		})
	}
	return out
}

// score normalizes one population, computes composites, assigns buckets and
// returns the ranked scores.
func score(units []unit, w []float64) ([]Score, Percentiles) {
	out := make([]Score, len(units))
	if len(units) == 0 {
		return out, Percentiles{}
	}

	norm := normalize(units)
	total := floats.Sum(w)
	composites := make([]float64, len(units))
	contrib := make([]float64, len(w))
	for i, u := range units {
		s := u.score
		s.Normalized = fromVector(norm[i])
		s.Composite = round(floats.Dot(w, norm[i]) / total)
		if s.Composite > 0 {
			floats.MulTo(contrib, w, norm[i])
			s.PrimaryFactor = metricOrder[floats.MaxIdx(contrib)]
			s.EstimatedHours = math.Round(2*math.Pow(1.8, 5*s.Composite)*100) / 100
		}
		composites[i] = s.Composite
		out[i] = s
	}

	bounds := percentiles(composites)
	for i := range out {
		out[i].Bucket = bounds.Bucket(out[i].Composite)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Composite != out[j].Composite {
			return out[i].Composite > out[j].Composite
		}
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return uast.CompareIDs(out[i].ID, out[j].ID) < 0
	})
	return out, bounds
}

// normalize min-max scales every column to [0, 1]. A column whose values are
// all equal maps to zero.
func normalize(units []unit) [][]float64 {
	cols := len(metricOrder)
	out := make([][]float64, len(units))
	for i := range out {
		out[i] = make([]float64, cols)
	}
	col := make([]float64, len(units))
	for c := 0; c < cols; c++ {
		for i, u := range units {
			col[i] = u.raw[c]
		}
		lo, hi := floats.Min(col), floats.Max(col)
		span := hi - lo
		if span <= 0 {
			continue
		}
		for i := range units {
			out[i][c] = (col[i] - lo) / span
		}
	}
	return out
}

func percentiles(composites []float64) Percentiles {
	sorted := make([]float64, len(composites))
	copy(sorted, composites)
	sort.Float64s(sorted)
	return Percentiles{
		P50: stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90: stat.Quantile(0.90, stat.Empirical, sorted, nil),
		P99: stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}

func summarize(a *Analysis) Summary {
	s := Summary{
		TotalFunctions:  len(a.Functions),
		TotalFiles:      len(a.Files),
		FunctionBuckets: make(map[Bucket]int),
		FileBuckets:     make(map[Bucket]int),
	}
	if len(a.Functions) > 0 {
		xs := make([]float64, len(a.Functions))
		for i, f := range a.Functions {
			xs[i] = f.Composite
			s.FunctionBuckets[f.Bucket]++
			s.EstimatedDebtHours += f.EstimatedHours
		}
		s.AverageFunction = round(stat.Mean(xs, nil))
	}
	if len(a.Files) > 0 {
		xs := make([]float64, len(a.Files))
		for i, f := range a.Files {
			xs[i] = f.Composite
			s.FileBuckets[f.Bucket]++
		}
		s.AverageFile = round(stat.Mean(xs, nil))
	}
	s.EstimatedDebtHours = math.Round(s.EstimatedDebtHours*100) / 100
	return s
}

// Top returns the n highest-ranked functions.
func (a *Analysis) Top(n int) []Score {
	if n <= 0 || n >= len(a.Functions) {
		return a.Functions
	}
	return a.Functions[:n]
}

func round(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}
