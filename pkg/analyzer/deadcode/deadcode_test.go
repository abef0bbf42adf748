package deadcode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/strata/pkg/parser"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/uast"
)

type fileBuilder struct {
	fc *uast.FileContext
}

func newFile(path, module, lang string) *fileBuilder {
	b := &fileBuilder{fc: &uast.FileContext{Path: path, ModulePath: module, Language: lang, Lines: 100}}
	b.node(uast.KindModule, module, "", uast.Public)
	return b
}

func (b *fileBuilder) node(kind uast.NodeKind, name, container string, vis uast.Visibility) *uast.Node {
	ord := uint32(len(b.fc.Nodes))
	n := &uast.Node{
		ID:            uast.MakeID(b.fc.Path, ord),
		Ordinal:       ord,
		Kind:          kind,
		Name:          name,
		Container:     container,
		QualifiedName: uast.Qualify(b.fc.ModulePath, container, name),
		Visibility:    vis,
		Language:      b.fc.Language,
		Location:      uast.Location{Path: b.fc.Path, StartLine: ord*5 + 1, EndLine: ord*5 + 4},
	}
	b.fc.Nodes = append(b.fc.Nodes, n)
	return n
}

func (b *fileBuilder) fn(name string) *uast.Node {
	return b.node(uast.KindFunction, name, "", uast.Private)
}

func (b *fileBuilder) edge(from *uast.Node, kind uast.EdgeKind, target string) {
	b.fc.Edges = append(b.fc.Edges, uast.Edge{Kind: kind, From: from.ID, Target: target})
}

func run(t *testing.T, a *Analyzer, files ...*fileBuilder) *Analysis {
	t.Helper()
	fcs := make([]*uast.FileContext, len(files))
	for i, f := range files {
		fcs[i] = f.fc
	}
	result, err := a.Analyze(context.Background(), project.Assemble(fcs))
	require.NoError(t, err)
	return result
}

func deadIDs(a *Analysis) map[uast.NodeID]Dead {
	out := make(map[uast.NodeID]Dead, len(a.Dead))
	for _, d := range a.Dead {
		out[d.ID] = d
	}
	return out
}

func TestNew(t *testing.T) {
	a := New()
	if a == nil {
		t.Fatal("New() returned nil")
	}
	if !a.publicAPI {
		t.Error("public API should be an entry surface by default")
	}
	if a.strict {
		t.Error("strict should be off by default")
	}
}

func TestNewWithOptions(t *testing.T) {
	a := New(
		WithStrict(true),
		WithEntries("cmd.*"),
		WithTestGlobs("**/*_spec.go"),
		WithExclude("vendor/**"),
		WithConfidence(0.7),
		WithPublicAPI(false),
	)
	assert.True(t, a.strict)
	assert.False(t, a.publicAPI)
	assert.Equal(t, []string{"cmd.*"}, a.entries)
	assert.Equal(t, []string{"**/*_spec.go"}, a.testGlobs)
	assert.Equal(t, []string{"vendor/**"}, a.exclude)
	assert.Equal(t, 0.7, a.minConfidence)

	// Out of range confidence is ignored.
	assert.Equal(t, 0.0, New(WithConfidence(1.5)).minConfidence)
}

func TestAnalyze_StrictWithoutSelectorsReportsEveryCallable(t *testing.T) {
	f := newFile("app/main.go", "app", "go")
	main := f.fn("main")
	helper := f.fn("helper")
	api := f.node(uast.KindFunction, "Serve", "", uast.Public)
	f.edge(main, uast.EdgeCalls, "helper")
	f.edge(helper, uast.EdgeCalls, "Serve")

	result := run(t, New(WithStrict(true)), f)
	dead := deadIDs(result)

	for _, n := range []*uast.Node{main, helper, api} {
		assert.Contains(t, dead, n.ID, "%s should be dead", n.Name)
	}
	assert.NotContains(t, dead, f.fc.Nodes[0].ID, "modules are never reported")
	assert.Equal(t, 0, result.Summary.EntryNodes)
	assert.Equal(t, 3, result.Summary.DeadFunctions)
	assert.InDelta(t, 100.0, result.Summary.DeadCodePercentage, 0.001)
}

func TestAnalyze_StrictHonorsExplicitEntries(t *testing.T) {
	f := newFile("app/main.go", "app", "go")
	main := f.fn("main")
	helper := f.fn("helper")
	orphan := f.fn("orphan")
	f.edge(main, uast.EdgeCalls, "helper")

	dead := deadIDs(run(t, New(WithStrict(true), WithEntries("main")), f))
	assert.NotContains(t, dead, main.ID)
	assert.NotContains(t, dead, helper.ID)
	assert.Contains(t, dead, orphan.ID)
}

func TestAnalyze_DefaultEntries(t *testing.T) {
	f := newFile("app/main.go", "app", "go")
	main := f.fn("main")
	helper := f.fn("helper")
	orphan := f.fn("orphan")
	exported := f.node(uast.KindFunction, "Exported", "", uast.Public)
	f.edge(main, uast.EdgeCalls, "helper")
	f.edge(main, uast.EdgeCalls, "Println")

	result := run(t, New(), f)
	dead := deadIDs(result)

	require.Len(t, result.Dead, 1)
	d, ok := dead[orphan.ID]
	require.True(t, ok)
	assert.Equal(t, ConfidenceHigh, d.ConfidenceLevel)
	assert.InDelta(t, 0.98, d.Confidence, 0.0001)
	assert.Equal(t, "Not reachable from any entry point", d.Reason)
	assert.Len(t, d.ContextHash, 16)

	assert.NotContains(t, dead, helper.ID)
	assert.NotContains(t, dead, exported.ID)
	assert.Equal(t, 4, result.Summary.TotalNodes)
	assert.Equal(t, 3, result.Summary.ReachableNodes)
}

func TestAnalyze_CyclesTerminate(t *testing.T) {
	f := newFile("loop.py", "loop", "python")
	a := f.fn("ping")
	b := f.fn("pong")
	f.edge(a, uast.EdgeCalls, "pong")
	f.edge(b, uast.EdgeCalls, "ping")

	dead := deadIDs(run(t, New(), f))
	assert.Contains(t, dead, a.ID)
	assert.Contains(t, dead, b.ID)

	dead = deadIDs(run(t, New(WithEntries("ping")), f))
	assert.Empty(t, dead)
}

func TestAnalyze_ImplementsFollowedBothWays(t *testing.T) {
	f := newFile("shapes.ts", "shapes", "typescript")
	iface := f.node(uast.KindTrait, "Shape", "", uast.Private)
	area := f.node(uast.KindMethod, "area", "Shape", uast.Private)
	circle := f.node(uast.KindClass, "Circle", "", uast.Private)
	circleArea := f.node(uast.KindMethod, "area", "Circle", uast.Private)
	user := f.fn("main")
	f.edge(circle, uast.EdgeImplements, "Shape")
	f.edge(user, uast.EdgeCalls, "Shape.area")
	f.edge(user, uast.EdgeUses, "Shape")

	dead := deadIDs(run(t, New(WithStrict(true), WithEntries("main")), f))
	for _, n := range []*uast.Node{iface, area, circle, user} {
		assert.NotContains(t, dead, n.ID, "%s should be reachable", n.Name)
	}
	assert.NotContains(t, dead, circleArea.ID, "interface method dispatches to implementor")
}

func TestAnalyze_LiveTypeKeepsConstructor(t *testing.T) {
	f := newFile("src/Cache.java", "src/Cache", "java")
	cls := f.node(uast.KindClass, "Cache", "", uast.Private)
	ctor := f.node(uast.KindMethod, "Cache", "Cache", uast.Private)
	unused := f.node(uast.KindMethod, "flush", "Cache", uast.Private)
	main := f.fn("run")
	f.edge(main, uast.EdgeCalls, "Cache")

	dead := deadIDs(run(t, New(WithStrict(true), WithEntries("run")), f))
	assert.NotContains(t, dead, cls.ID)
	assert.NotContains(t, dead, ctor.ID)
	assert.Contains(t, dead, unused.ID)
}

func TestAnalyze_TestFilesAreEntries(t *testing.T) {
	lib := newFile("pkg/calc.go", "pkg", "go")
	add := lib.fn("add")
	tests := newFile("pkg/calc_test.go", "pkg", "go")
	check := tests.fn("checkAdd")
	tests.edge(check, uast.EdgeCalls, "add")

	dead := deadIDs(run(t, New(), lib, tests))
	assert.NotContains(t, dead, add.ID)
	assert.NotContains(t, dead, check.ID)

	// Strict mode ignores the default test globs.
	dead = deadIDs(run(t, New(WithStrict(true)), lib, tests))
	assert.Contains(t, dead, add.ID)

	// Explicit test globs still count in strict mode.
	dead = deadIDs(run(t, New(WithStrict(true), WithTestGlobs("**/*_test.go")), lib, tests))
	assert.NotContains(t, dead, add.ID)
}

func TestAnalyze_ExcludeAndMinConfidence(t *testing.T) {
	gen := newFile("gen/api.pb.go", "gen", "go")
	gen.fn("unused")
	app := newFile("app/app.go", "app", "go")
	private := app.fn("private")
	public := app.node(uast.KindFunction, "Public", "", uast.Public)

	result := run(t, New(WithExclude("gen/**"), WithPublicAPI(false), WithConfidence(0.8)), gen, app)
	dead := deadIDs(result)

	assert.Len(t, dead, 1)
	assert.Contains(t, dead, private.ID)
	assert.NotContains(t, dead, public.ID, "public confidence 0.70 is filtered")
	assert.Equal(t, 2, result.Summary.TotalNodes)
}

func TestAnalyze_FileMetrics(t *testing.T) {
	f := newFile("lib/util.py", "lib/util", "python")
	cls := f.node(uast.KindClass, "Unused", "", uast.Private)
	f.node(uast.KindMethod, "go", "Unused", uast.Private)

	result := run(t, New(), f)
	require.Len(t, result.Files, 1)
	fm := result.Files[0]
	assert.Equal(t, "lib/util.py", fm.Path)
	assert.Equal(t, 2, fm.DeadItems)
	assert.Equal(t, cls.Location.Lines(), fm.DeadLines)
	assert.InDelta(t, 4.0, fm.DeadPercentage, 0.001)
	assert.Equal(t, 1, result.Summary.DeadTypes)
	assert.Equal(t, 1, result.Summary.DeadFunctions)
	assert.Equal(t, 2, result.Summary.ByFile["lib/util.py"])
}

func TestAnalyze_ParsedProject(t *testing.T) {
	src := `package main

import "fmt"

func main() {
	greet()
}

func greet() {
	fmt.Println("hi")
}

func forgotten() {}
`
	fc, err := parser.DefaultRegistry().Parse(context.Background(), "main.go", []byte(src))
	require.NoError(t, err)

	result, err := New().Analyze(context.Background(), project.Assemble([]*uast.FileContext{fc}))
	require.NoError(t, err)
	require.Len(t, result.Dead, 1)
	assert.Equal(t, "forgotten", result.Dead[0].Name)
}

func TestAnalyze_EmptyProject(t *testing.T) {
	result, err := New().Analyze(context.Background(), project.Assemble(nil))
	require.NoError(t, err)
	assert.Empty(t, result.Dead)
	assert.Equal(t, 0, result.Summary.TotalNodes)
	assert.Equal(t, 0.0, result.Summary.DeadCodePercentage)
}

func TestAnalyze_Canceled(t *testing.T) {
	f := newFile("a.go", "a", "go")
	f.fn("main")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Analyze(ctx, project.Assemble([]*uast.FileContext{f.fc}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateConfidence(t *testing.T) {
	a := New()
	tests := []struct {
		name     string
		vis      uast.Visibility
		testFile bool
		foreign  bool
		want     float64
	}{
		{"private", uast.Private, false, false, 0.98},
		{"restricted", uast.Restricted, false, false, 0.85},
		{"public", uast.Public, false, false, 0.70},
		{"private in test file", uast.Private, true, false, 0.83},
		{"public foreign boundary", uast.Public, false, true, 0.40},
		{"everything against it", uast.Public, true, true, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.calculateConfidence(&uast.Node{Visibility: tt.vis}, tt.testFile, tt.foreign)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("calculateConfidence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestForeignBoundaryLowersConfidence(t *testing.T) {
	f := newFile("ext/hooks.py", "ext/hooks", "python")
	handler := f.node(uast.KindConstant, "HANDLER", "", uast.Private)
	quiet := f.node(uast.KindConstant, "QUIET", "", uast.Private)
	// A call can never bind to a constant, so this edge leaves the project.
	f.edge(f.fc.Nodes[0], uast.EdgeCalls, "HANDLER")

	result := run(t, New(WithStrict(true)), f)
	dead := deadIDs(result)

	require.Contains(t, dead, handler.ID)
	require.Contains(t, dead, quiet.ID)
	assert.InDelta(t, 0.68, dead[handler.ID].Confidence, 0.0001)
	assert.InDelta(t, 0.98, dead[quiet.ID].Confidence, 0.0001)
	assert.Equal(t, "Constant never referenced", dead[quiet.ID].Reason)
	assert.Equal(t, 2, result.Summary.DeadConstants)
}

func TestIsEntryPoint(t *testing.T) {
	tests := []struct {
		node *uast.Node
		want bool
	}{
		{&uast.Node{Name: "main", Kind: uast.KindFunction}, true},
		{&uast.Node{Name: "init", Kind: uast.KindFunction}, true},
		{&uast.Node{Name: "TestParse", Kind: uast.KindFunction}, true},
		{&uast.Node{Name: "BenchmarkParse", Kind: uast.KindFunction}, true},
		{&uast.Node{Name: "Test", Kind: uast.KindFunction}, false},
		{&uast.Node{Name: "test_parse", Kind: uast.KindFunction, Language: "python"}, true},
		{&uast.Node{Name: "__str__", Kind: uast.KindMethod, Container: "User"}, true},
		{&uast.Node{Name: "__init__", Kind: uast.KindMethod, Container: "User"}, true},
		{&uast.Node{Name: "constructor", Kind: uast.KindMethod, Container: "User"}, true},
		{&uast.Node{Name: "User", Kind: uast.KindMethod, Container: "models.User"}, true},
		{&uast.Node{Name: "new", Kind: uast.KindFunction, Container: "Cache", Language: "rust"}, true},
		{&uast.Node{Name: "new", Kind: uast.KindFunction, Language: "javascript"}, false},
		{&uast.Node{Name: "setUp", Kind: uast.KindMethod, Container: "Suite"}, true},
		{&uast.Node{Name: "helper", Kind: uast.KindFunction}, false},
	}
	for _, tt := range tests {
		t.Run(tt.node.Name, func(t *testing.T) {
			if got := isEntryPoint(tt.node); got != tt.want {
				t.Errorf("isEntryPoint(%q) = %v, want %v", tt.node.Name, got, tt.want)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"pkg/calc_test.go", true},
		{"calc_test.go", true},
		{"tests/test_api.py", true},
		{"app/test_api.py", true},
		{"web/src/button.test.tsx", true},
		{"web/src/__tests__/button.tsx", true},
		{"src/main/java/CacheTest.java", true},
		{"spec/models/user_spec.rb", true},
		{"pkg/calc.go", false},
		{"web/src/button.tsx", false},
		{"latest/config.py", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := matchAny(DefaultTestGlobs, tt.path); got != tt.want {
				t.Errorf("matchAny(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestConfidenceThresholds_Level(t *testing.T) {
	th := DefaultConfidenceThresholds()
	assert.Equal(t, ConfidenceHigh, th.Level(0.95))
	assert.Equal(t, ConfidenceHigh, th.Level(0.8))
	assert.Equal(t, ConfidenceMedium, th.Level(0.6))
	assert.Equal(t, ConfidenceLow, th.Level(0.2))

	a := New(WithConfidenceThresholds(ConfidenceThresholds{HighThreshold: 0.9, MediumThreshold: 2}))
	assert.Equal(t, 0.9, a.thresholds.HighThreshold)
	assert.Equal(t, 0.5, a.thresholds.MediumThreshold)
}

func TestComputeContextHash(t *testing.T) {
	h1 := computeContextHash("app.main", "main.go", 3, "function")
	h2 := computeContextHash("app.main", "main.go", 3, "function")
	h3 := computeContextHash("app.main", "main.go", 4, "function")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 16)
}
