package complexity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/strata/pkg/parser"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/uast"
)

func body(ds ...uast.Decision) *uast.Body {
	return &uast.Body{Decisions: ds, StartLine: 1, EndLine: 3}
}

func dec(kind uast.DecisionKind, depth uint16) uast.Decision {
	return uast.Decision{Kind: kind, Depth: depth}
}

func assemble(t *testing.T, files map[string]string) *project.Context {
	t.Helper()
	reg := parser.DefaultRegistry()
	var fcs []*uast.FileContext
	for path, src := range files {
		fc, err := reg.Parse(context.Background(), path, []byte(src))
		require.NoError(t, err)
		fcs = append(fcs, fc)
	}
	return project.Assemble(fcs)
}

func TestNew(t *testing.T) {
	a := New()
	if a == nil {
		t.Fatal("New() returned nil")
	}
	if a.thresholds.MaxCyclomatic != 20 {
		t.Errorf("MaxCyclomatic = %d, want 20", a.thresholds.MaxCyclomatic)
	}
	if a.thresholds.MaxCognitive != 0 {
		t.Errorf("MaxCognitive = %d, want 0 (disabled)", a.thresholds.MaxCognitive)
	}
}

func TestNewWithThresholds(t *testing.T) {
	a := New(WithThresholds(Thresholds{MaxCyclomatic: 5, MaxCognitive: 7}))
	assert.Equal(t, uint32(5), a.thresholds.MaxCyclomatic)
	assert.Equal(t, uint32(7), a.thresholds.MaxCognitive)
}

func TestMeasure(t *testing.T) {
	tests := []struct {
		name       string
		body       *uast.Body
		cyclomatic uint32
		cognitive  uint32
		nesting    int
	}{
		{"nil body", nil, 1, 0, 0},
		{"empty body", body(), 1, 0, 0},
		{"single if", body(dec(uast.DecisionIf, 0)), 2, 1, 1},
		{
			"three nested ifs",
			body(dec(uast.DecisionIf, 0), dec(uast.DecisionIf, 1), dec(uast.DecisionIf, 2)),
			4, 6, 3,
		},
		{
			"if else-if else",
			body(dec(uast.DecisionIf, 0), dec(uast.DecisionElseIf, 0), dec(uast.DecisionElse, 0)),
			3, 3, 1,
		},
		{
			"loop with boolean operators",
			body(dec(uast.DecisionLoop, 0), dec(uast.DecisionBoolOp, 1), dec(uast.DecisionBoolOp, 1)),
			4, 3, 1,
		},
		{
			"switch with three arms",
			body(
				dec(uast.DecisionSwitch, 0),
				uast.Decision{Kind: uast.DecisionCase, Depth: 1, Arm: 0},
				uast.Decision{Kind: uast.DecisionCase, Depth: 1, Arm: 1},
				uast.Decision{Kind: uast.DecisionCase, Depth: 1, Arm: 2},
			),
			3, 1, 1,
		},
		{
			"catch ternary and labelled jump",
			body(dec(uast.DecisionCatch, 0), dec(uast.DecisionTernary, 1), dec(uast.DecisionJump, 1)),
			3, 4, 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Measure(tt.body)
			if m.Cyclomatic != tt.cyclomatic {
				t.Errorf("Cyclomatic = %d, want %d", m.Cyclomatic, tt.cyclomatic)
			}
			if m.Cognitive != tt.cognitive {
				t.Errorf("Cognitive = %d, want %d", m.Cognitive, tt.cognitive)
			}
			if m.MaxNesting != tt.nesting {
				t.Errorf("MaxNesting = %d, want %d", m.MaxNesting, tt.nesting)
			}
		})
	}
}

func TestMeasureLines(t *testing.T) {
	m := Measure(&uast.Body{StartLine: 10, EndLine: 14})
	assert.Equal(t, 5, m.Lines)
}

func TestAnalyze_Go(t *testing.T) {
	code := `package main

func simple() int {
	return 42
}

func nested(x, y, z int) int {
	if x > 0 {
		if y > 0 {
			if z > 0 {
				return x + y + z
			}
		}
	}
	return 0
}
`
	proj := assemble(t, map[string]string{"main.go": code})

	result, err := New().Analyze(context.Background(), proj)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)

	fns := map[string]FunctionResult{}
	for _, fn := range result.Files[0].Functions {
		fns[fn.Name] = fn
	}
	require.Contains(t, fns, "simple")
	require.Contains(t, fns, "nested")

	assert.Equal(t, uint32(1), fns["simple"].Metrics.Cyclomatic)
	assert.Equal(t, uint32(0), fns["simple"].Metrics.Cognitive)
	assert.Equal(t, uint32(4), fns["nested"].Metrics.Cyclomatic)
	assert.Equal(t, uint32(6), fns["nested"].Metrics.Cognitive)
	assert.Equal(t, 3, fns["nested"].Metrics.MaxNesting)

	assert.Equal(t, 2, result.Summary.TotalFunctions)
	assert.Equal(t, uint32(4), result.Summary.MaxCyclomatic)
	assert.InDelta(t, 2.5, result.Summary.AvgCyclomatic, 0.001)
	assert.Empty(t, result.Violations)
}

func TestAnalyze_FileWithoutCallables(t *testing.T) {
	proj := assemble(t, map[string]string{"consts.py": "LIMIT = 10\n"})

	result, err := New().Analyze(context.Background(), proj)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Empty(t, result.Files[0].Functions)
	assert.Equal(t, 1, result.Summary.TotalFiles)
	assert.Equal(t, 0, result.Summary.TotalFunctions)
}

func TestAnalyze_Violations(t *testing.T) {
	code := `def a(x):
    if x:
        return 1
    return 0

def b(x, y):
    if x:
        if y:
            return 1
    for i in range(3):
        pass
    return 0
`
	proj := assemble(t, map[string]string{"mod.py": code})
	a := New(WithThresholds(Thresholds{MaxCyclomatic: 1, MaxCognitive: 2}))

	result, err := a.Analyze(context.Background(), proj)
	require.NoError(t, err)
	require.NotEmpty(t, result.Violations)

	// b exceeds more than a, so it ranks first.
	assert.Equal(t, "b", result.Violations[0].Function)
	for i := 1; i < len(result.Violations); i++ {
		assert.GreaterOrEqual(t, result.Violations[i-1].Value, result.Violations[i].Value)
	}
	for _, v := range result.Violations {
		assert.Greater(t, v.Value, v.Threshold)
		assert.Equal(t, "mod.py", v.File)
	}
	assert.Equal(t, len(result.Violations), result.Summary.ViolationCount)
}

func TestAnalyze_Canceled(t *testing.T) {
	proj := assemble(t, map[string]string{"a.go": "package a\nfunc f() {}\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Analyze(ctx, proj)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSortViolations(t *testing.T) {
	vs := []Violation{
		{ID: "b.go#2", File: "b.go", Value: 5, Rule: "cyclomatic"},
		{ID: "a.go#10", File: "a.go", Value: 5, Rule: "cyclomatic"},
		{ID: "a.go#2", File: "a.go", Value: 5, Rule: "cyclomatic"},
		{ID: "c.go#1", File: "c.go", Value: 9, Rule: "cyclomatic"},
	}
	SortViolations(vs)

	var got []uast.NodeID
	for _, v := range vs {
		got = append(got, v.ID)
	}
	assert.Equal(t, []uast.NodeID{"c.go#1", "a.go#2", "a.go#10", "b.go#2"}, got)
}

func TestRank(t *testing.T) {
	a := &Analysis{Files: []FileResult{
		{Path: "a.go", Functions: []FunctionResult{
			{ID: "a.go#1", File: "a.go", Metrics: Metrics{Cyclomatic: 2, Cognitive: 1}},
			{ID: "a.go#2", File: "a.go", Metrics: Metrics{Cyclomatic: 7, Cognitive: 3}},
		}},
		{Path: "b.go", Functions: []FunctionResult{
			{ID: "b.go#1", File: "b.go", Metrics: Metrics{Cyclomatic: 7, Cognitive: 9}},
		}},
	}}
	ranked := a.Rank()
	require.Len(t, ranked, 3)
	assert.Equal(t, uast.NodeID("b.go#1"), ranked[0].ID)
	assert.Equal(t, uast.NodeID("a.go#2"), ranked[1].ID)
	assert.Equal(t, uast.NodeID("a.go#1"), ranked[2].ID)
}

func TestMetrics_IsSimple(t *testing.T) {
	m := Metrics{Cyclomatic: 10, Cognitive: 30, MaxNesting: 4}
	assert.True(t, m.IsSimple(DefaultThresholds()))
	assert.False(t, m.IsSimple(Thresholds{MaxCognitive: 15}))
	assert.False(t, m.IsSimple(Thresholds{MaxNesting: 3}))
}

func TestMetrics_ComplexityScore(t *testing.T) {
	m := Metrics{Cyclomatic: 10, Cognitive: 5, MaxNesting: 2, Lines: 20}
	assert.InDelta(t, 10+6+4+2, m.ComplexityScore(), 0.0001)
}
