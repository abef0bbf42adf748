package uast

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeIDRoundTrip(t *testing.T) {
	id := MakeID("pkg/a#b/file.go", 12)
	path, n := id.Split()
	assert.Equal(t, "pkg/a#b/file.go", path)
	assert.Equal(t, uint32(12), n)
	assert.False(t, id.IsExternal())
	assert.True(t, ExternalID.IsExternal())
}

func TestCompareIDsNumericOrdinal(t *testing.T) {
	ids := []NodeID{
		MakeID("b.go", 1),
		MakeID("a.go", 10),
		MakeID("a.go", 2),
		MakeID("a.go", 0),
	}
	sort.Slice(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })
	assert.Equal(t, []NodeID{"a.go#0", "a.go#2", "a.go#10", "b.go#1"}, ids)
}

func TestLocation(t *testing.T) {
	loc := Location{Path: "x.go", StartLine: 3, EndLine: 7}
	assert.Equal(t, 5, loc.Lines())
	assert.True(t, loc.Contains(3))
	assert.True(t, loc.Contains(7))
	assert.False(t, loc.Contains(8))
	assert.Equal(t, "x.go:3-7", loc.String())
	assert.Equal(t, 0, Location{StartLine: 4, EndLine: 2}.Lines())
}

func TestQualify(t *testing.T) {
	tests := []struct {
		module, container, name, want string
	}{
		{"pkg/svc", "Server", "Start", "pkg/svc.Server.Start"},
		{"pkg/svc", "", "New", "pkg/svc.New"},
		{"", "", "main", "main"},
		{"", "Outer.Inner", "run", "Outer.Inner.run"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Qualify(tt.module, tt.container, tt.name))
	}
}

func TestHashContentStable(t *testing.T) {
	a := HashContent([]byte("package main\n"))
	b := HashContent([]byte("package main\n"))
	c := HashContent([]byte("package main \n"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestFileContextEnclosing(t *testing.T) {
	fc := &FileContext{
		Path: "x.go",
		Nodes: []*Node{
			{ID: "x.go#0", Kind: KindModule, Location: Location{StartLine: 1, EndLine: 40}},
			{ID: "x.go#1", Kind: KindFunction, Name: "outer", Location: Location{StartLine: 5, EndLine: 30}},
			{ID: "x.go#2", Kind: KindMethod, Name: "inner", Location: Location{StartLine: 10, EndLine: 12}},
			{ID: "x.go#3", Kind: KindClass, Name: "T", Location: Location{StartLine: 32, EndLine: 38}},
		},
	}
	assert.Equal(t, "x.go#0", string(fc.Module().ID))
	assert.Equal(t, "inner", fc.Enclosing(11).Name)
	assert.Equal(t, "outer", fc.Enclosing(20).Name)
	assert.Nil(t, fc.Enclosing(35))
	assert.Nil(t, (&FileContext{}).Module())
}

func TestBodyMetrics(t *testing.T) {
	var nilBody *Body
	assert.True(t, nilBody.Empty())
	assert.Equal(t, 0, nilBody.MaxDepth())

	b := &Body{
		Decisions: []Decision{
			{Kind: DecisionIf, Depth: 0},
			{Kind: DecisionBoolOp, Depth: 3},
			{Kind: DecisionLoop, Depth: 1},
		},
		Tokens: []Token{{Kind: TokenKeyword, Text: "return"}},
	}
	assert.False(t, b.Empty())
	assert.Equal(t, 2, b.MaxDepth())
	assert.Equal(t, "bool_op", DecisionBoolOp.String())
	assert.Equal(t, "unknown", DecisionKind(0).String())
	assert.True(t, DecisionTernary.Nests())
	assert.False(t, DecisionElse.Nests())
}
