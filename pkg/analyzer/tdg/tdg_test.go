package tdg

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/strata/pkg/analyzer/duplicates"
	"github.com/panbanda/strata/pkg/analyzer/satd"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/signals"
	"github.com/panbanda/strata/pkg/uast"
)

type fileBuilder struct {
	fc *uast.FileContext
}

func newFile(path string) *fileBuilder {
	b := &fileBuilder{fc: &uast.FileContext{Path: path, ModulePath: path, Language: "go", Lines: 100}}
	b.add(uast.KindModule, path, 0)
	return b
}

// add declares a node spanning five lines with ifs top-level conditionals.
func (b *fileBuilder) add(kind uast.NodeKind, name string, ifs int) *uast.Node {
	ord := uint32(len(b.fc.Nodes))
	start := ord*5 + 1
	n := &uast.Node{
		ID:            uast.MakeID(b.fc.Path, ord),
		Ordinal:       ord,
		Kind:          kind,
		Name:          name,
		QualifiedName: name,
		Language:      "go",
		Location:      uast.Location{Path: b.fc.Path, StartLine: start, EndLine: start + 4},
	}
	if kind.IsCallable() {
		body := &uast.Body{StartLine: start, EndLine: start + 4}
		for i := 0; i < ifs; i++ {
			body.Decisions = append(body.Decisions, uast.Decision{Kind: uast.DecisionIf})
		}
		n.Body = body
	}
	b.fc.Nodes = append(b.fc.Nodes, n)
	return n
}

func (b *fileBuilder) fn(name string, ifs int) *uast.Node {
	return b.add(uast.KindFunction, name, ifs)
}

func (b *fileBuilder) call(from *uast.Node, target string) {
	b.fc.Edges = append(b.fc.Edges, uast.Edge{Kind: uast.EdgeCalls, From: from.ID, Target: target})
}

func assemble(files ...*fileBuilder) *project.Context {
	fcs := make([]*uast.FileContext, len(files))
	for i, f := range files {
		fcs[i] = f.fc
	}
	return project.Assemble(fcs)
}

func analyze(t *testing.T, a *Analyzer, in Input) *Analysis {
	t.Helper()
	res, err := a.Analyze(context.Background(), in)
	require.NoError(t, err)
	return res
}

func byName(scores []Score) map[string]Score {
	out := make(map[string]Score, len(scores))
	for _, s := range scores {
		out[s.Name] = s
	}
	return out
}

func TestNew(t *testing.T) {
	a := New()
	if a == nil {
		t.Fatal("New() returned nil")
	}
	if a.weights != DefaultWeights() {
		t.Errorf("weights = %+v, want defaults", a.weights)
	}
	w := Weights{Churn: 2}
	if got := New(WithWeights(w)).weights; got != w {
		t.Errorf("WithWeights = %+v, want %+v", got, w)
	}
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"single metric", Weights{Coupling: 0.5}, false},
		{"all zero", Weights{}, true},
		{"negative", Weights{Complexity: 1, Churn: -1}, true},
		{"nan", Weights{Complexity: math.NaN()}, true},
		{"inf", Weights{SATD: math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnalyze_InvalidWeights(t *testing.T) {
	_, err := New(WithWeights(Weights{})).Analyze(context.Background(), Input{})
	assert.Error(t, err)
}

func TestAnalyze_Empty(t *testing.T) {
	res := analyze(t, New(), Input{})
	assert.Empty(t, res.Functions)
	assert.Empty(t, res.Files)
	assert.Zero(t, res.Summary.TotalFunctions)

	res = analyze(t, New(), Input{Project: project.Assemble(nil)})
	assert.Empty(t, res.Functions)
	assert.Empty(t, res.Files)
	assert.Zero(t, res.Summary.AverageFunction)
}

func TestAnalyze_Canceled(t *testing.T) {
	f := newFile("a.go")
	f.fn("a", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Analyze(ctx, Input{Project: assemble(f)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_ComplexityRanking(t *testing.T) {
	f := newFile("a.go")
	f.fn("simple", 0)
	f.fn("medium", 2)
	f.fn("hard", 4)
	res := analyze(t, New(WithWeights(Weights{Complexity: 1})), Input{Project: assemble(f)})

	require.Len(t, res.Functions, 3)
	assert.Equal(t, "hard", res.Functions[0].Name)
	assert.Equal(t, "medium", res.Functions[1].Name)
	assert.Equal(t, "simple", res.Functions[2].Name)

	// raw = cyclomatic + cognitive = 1 + 2*ifs
	assert.InDelta(t, 9.0, res.Functions[0].Raw.Complexity, 1e-9)
	assert.InDelta(t, 1.0, res.Functions[0].Composite, 1e-9)
	assert.InDelta(t, 0.5, res.Functions[1].Composite, 1e-9)
	assert.Zero(t, res.Functions[2].Composite)

	assert.Equal(t, MetricComplexity, res.Functions[0].PrimaryFactor)
	assert.Empty(t, res.Functions[2].PrimaryFactor)
	assert.Equal(t, BucketLow, res.Functions[2].Bucket)
	assert.Equal(t, BucketCritical, res.Functions[0].Bucket)
	assert.Zero(t, res.Functions[2].EstimatedHours)
	assert.Greater(t, res.Functions[0].EstimatedHours, res.Functions[1].EstimatedHours)
}

func TestAnalyze_AllEqualNormalizesToZero(t *testing.T) {
	f := newFile("a.go")
	f.fn("a", 1)
	f.fn("b", 1)
	res := analyze(t, New(), Input{Project: assemble(f)})

	for _, s := range res.Functions {
		assert.Zero(t, s.Composite, s.Name)
		assert.Equal(t, Components{}, s.Normalized, s.Name)
		assert.Equal(t, BucketLow, s.Bucket, s.Name)
	}
	assert.Equal(t, 2, res.Summary.FunctionBuckets[BucketLow])
}

func TestAnalyze_TieBreakByPathThenID(t *testing.T) {
	b := newFile("b.go")
	b.fn("z", 0)
	a := newFile("a.go")
	a.fn("y", 0)
	a.fn("x", 0)
	res := analyze(t, New(), Input{Project: assemble(b, a)})

	require.Len(t, res.Functions, 3)
	assert.Equal(t, uast.MakeID("a.go", 1), res.Functions[0].ID)
	assert.Equal(t, uast.MakeID("a.go", 2), res.Functions[1].ID)
	assert.Equal(t, uast.MakeID("b.go", 1), res.Functions[2].ID)
}

func TestAnalyze_Signals(t *testing.T) {
	f := newFile("svc.go")
	f.fn("stable", 0) // lines 6-10
	f.fn("hot", 0)    // lines 11-15
	proj := assemble(f)

	churn := signals.NewRangeSignal([]signals.Entry{
		{Path: "svc.go", Start: 11, End: 15, Value: 12},
	})
	coverage := signals.NewRangeSignal([]signals.Entry{
		{Path: "svc.go", Start: 6, End: 10, Value: 20},
		{Path: "svc.go", Start: 11, End: 15, Value: 80},
	})

	res := analyze(t, New(), Input{Project: proj, Churn: churn, Coverage: coverage})
	got := byName(res.Functions)

	assert.InDelta(t, 12.0, got["hot"].Raw.Churn, 1e-9)
	assert.InDelta(t, 80.0, got["hot"].Raw.CoverageGap, 1e-9)
	assert.InDelta(t, 20.0, got["stable"].Raw.CoverageGap, 1e-9)
	// churn and coverage both normalize to 1 for hot over five weights
	assert.InDelta(t, 0.4, got["hot"].Composite, 1e-9)
	assert.Zero(t, got["stable"].Composite)
	assert.Equal(t, MetricChurn, got["hot"].PrimaryFactor)
	assert.Equal(t, "hot", res.Functions[0].Name)

	file := res.Files[0]
	assert.InDelta(t, 12.0, file.Raw.Churn, 1e-9)
	assert.Equal(t, uint32(100), file.EndLine)
}

func TestAnalyze_DuplicationAndSATD(t *testing.T) {
	a := newFile("a.go")
	clone := a.fn("clone", 0) // lines 6-10
	a.fn("clean", 0)          // lines 11-15
	b := newFile("b.go")
	b.fn("other", 0)
	proj := assemble(a, b)

	dups := &duplicates.Analysis{
		Groups: []duplicates.Group{{
			Instances: []duplicates.Instance{{ID: clone.ID, File: "a.go", StartLine: 6, EndLine: 10}},
		}},
		FileRatios: map[string]float64{"a.go": 0.05},
	}
	debt := &satd.Analysis{Items: []satd.Item{
		{File: "a.go", Line: 12, Severity: satd.SeverityHigh},
		{File: "a.go", Line: 13, Severity: satd.SeverityLow},
		{File: "b.go", Line: 90, Severity: satd.SeverityCritical},
	}}

	res := analyze(t, New(), Input{Project: proj, Duplicates: dups, SATD: debt})
	fns := byName(res.Functions)
	assert.InDelta(t, 1.0, fns["clone"].Raw.Duplication, 1e-9)
	assert.Zero(t, fns["clean"].Raw.Duplication)
	assert.InDelta(t, 4.0, fns["clean"].Raw.SATD, 1e-9)
	assert.Zero(t, fns["other"].Raw.SATD)
	assert.Equal(t, MetricSATD, fns["clean"].PrimaryFactor)

	files := byName(res.Files)
	assert.InDelta(t, 0.05, files["a.go"].Raw.Duplication, 1e-9)
	assert.InDelta(t, 4.0, files["a.go"].Raw.SATD, 1e-9)
	assert.InDelta(t, 4.0, files["b.go"].Raw.SATD, 1e-9)
	assert.Equal(t, UnitFile, files["a.go"].Unit)
	assert.Empty(t, files["a.go"].ID)
}

func TestAnalyze_Coupling(t *testing.T) {
	a := newFile("a.go")
	caller := a.fn("caller", 0)
	a.call(caller, "callee")
	a.call(caller, "fmt.Println")
	a.call(caller, "caller")
	b := newFile("b.go")
	b.fn("callee", 0)
	proj := assemble(a, b)

	res := analyze(t, New(WithWeights(Weights{Coupling: 1})), Input{Project: proj})
	fns := byName(res.Functions)
	assert.InDelta(t, 1.0, fns["caller"].Raw.Coupling, 1e-9)
	assert.InDelta(t, 1.0, fns["callee"].Raw.Coupling, 1e-9)

	files := byName(res.Files)
	assert.InDelta(t, 1.0, files["a.go"].Raw.Coupling, 1e-9)
	assert.InDelta(t, 1.0, files["b.go"].Raw.Coupling, 1e-9)
}

func TestAnalyze_Deterministic(t *testing.T) {
	build := func() Input {
		f := newFile("a.go")
		for i := 0; i < 10; i++ {
			f.fn(string(rune('a'+i)), i%4)
		}
		return Input{Project: assemble(f)}
	}
	first := analyze(t, New(), build())
	second := analyze(t, New(), build())
	assert.Equal(t, first, second)
}

func TestScore_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	w := []float64{1, 1, 1, 1, 1, 0.5}

	population := func() []unit {
		units := make([]unit, 12)
		for i := range units {
			raw := make([]float64, len(metricOrder))
			for c := range raw {
				raw[c] = float64(rng.Intn(20))
			}
			units[i] = unit{
				score: Score{ID: uast.MakeID("p.go", uint32(i)), File: "p.go"},
				raw:   raw,
			}
		}
		return units
	}
	composite := func(scores []Score, id uast.NodeID) float64 {
		for _, s := range scores {
			if s.ID == id {
				return s.Composite
			}
		}
		t.Fatalf("missing %s", id)
		return 0
	}

	for trial := 0; trial < 5; trial++ {
		units := population()
		base, _ := score(units, w)
		for i := range units {
			for c := range metricOrder {
				bumped := make([]unit, len(units))
				copy(bumped, units)
				raw := append([]float64(nil), units[i].raw...)
				raw[c] += float64(1 + rng.Intn(10))
				bumped[i] = unit{score: units[i].score, raw: raw}

				after, _ := score(bumped, w)
				id := units[i].score.ID
				before := composite(base, id)
				if got := composite(after, id); got+1e-9 < before {
					t.Errorf("raising %s of %s lowered composite %v -> %v", metricOrder[c], id, before, got)
				}
			}
		}
	}
}

func TestPercentiles_Bucket(t *testing.T) {
	p := Percentiles{P50: 0.2, P90: 0.6, P99: 0.9}
	tests := []struct {
		composite float64
		want      Bucket
	}{
		{0, BucketLow},
		{0.1, BucketLow},
		{0.2, BucketMedium},
		{0.59, BucketMedium},
		{0.6, BucketHigh},
		{0.9, BucketCritical},
		{1, BucketCritical},
	}
	for _, tt := range tests {
		if got := p.Bucket(tt.composite); got != tt.want {
			t.Errorf("Bucket(%v) = %v, want %v", tt.composite, got, tt.want)
		}
	}

	zero := Percentiles{}
	assert.Equal(t, BucketLow, zero.Bucket(0))
}

func TestSummary(t *testing.T) {
	f := newFile("a.go")
	f.fn("a", 0)
	f.fn("b", 4)
	res := analyze(t, New(WithWeights(Weights{Complexity: 1})), Input{Project: assemble(f)})

	assert.Equal(t, 2, res.Summary.TotalFunctions)
	assert.Equal(t, 1, res.Summary.TotalFiles)
	assert.InDelta(t, 0.5, res.Summary.AverageFunction, 1e-9)
	assert.InDelta(t, res.Functions[0].EstimatedHours, res.Summary.EstimatedDebtHours, 1e-9)
	assert.Len(t, res.Top(1), 1)
	assert.Len(t, res.Top(0), 2)
}
