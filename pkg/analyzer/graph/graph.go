package graph

import (
	"cmp"
	"context"
	"math"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar"
	"gonum.org/v1/gonum/floats"
	gograph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/uast"
)

// Ensure Analyzer implements analyzer.ProjectAnalyzer.
var _ analyzer.ProjectAnalyzer[*DependencyGraph] = (*Analyzer)(nil)

// Analyzer builds dependency graphs from an assembled project.
type Analyzer struct {
	cfg Config
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithScope sets the graph granularity.
func WithScope(scope Scope) Option {
	return func(a *Analyzer) {
		a.cfg.Scope = scope
	}
}

// WithMaxDepth bounds the distance from an entry node. Zero disables the bound.
func WithMaxDepth(depth int) Option {
	return func(a *Analyzer) {
		if depth >= 0 {
			a.cfg.MaxDepth = depth
		}
	}
}

// WithMaxNodes caps the emitted node count. Zero disables the cap.
func WithMaxNodes(n int) Option {
	return func(a *Analyzer) {
		if n >= 0 {
			a.cfg.MaxNodes = n
		}
	}
}

// WithCentrality selects the measure used when pruning.
func WithCentrality(c Centrality) Option {
	return func(a *Analyzer) {
		a.cfg.Centrality = c
	}
}

// WithEntries sets name globs selecting the nodes depth is measured from.
func WithEntries(globs ...string) Option {
	return func(a *Analyzer) {
		a.cfg.Entries = globs
	}
}

// WithConfig replaces every setting.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) {
		a.cfg = cfg
	}
}

// New creates a new graph analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.Scope != ScopeFile {
		a.cfg.Scope = ScopeFunction
	}
	switch a.cfg.Centrality {
	case CentralityBetweenness, CentralityDegree:
	default:
		a.cfg.Centrality = CentralityPageRank
	}
	return a
}

// vertex is a candidate graph node before filtering.
type vertex struct {
	node Node
	out  []int
	in   []int
}

// builder accumulates vertices and aggregated edges.
type builder struct {
	verts   []vertex
	edges   map[[2]int]*Edge
	dropped int
}

func (b *builder) addEdge(from, to int, t EdgeType) {
	key := [2]int{from, to}
	if e, ok := b.edges[key]; ok {
		e.Weight++
		if edgeRank(t) < edgeRank(e.Type) {
			e.Type = t
		}
		return
	}
	b.edges[key] = &Edge{From: b.verts[from].node.ID, To: b.verts[to].node.ID, Type: t, Weight: 1}
	b.verts[from].out = append(b.verts[from].out, to)
	b.verts[to].in = append(b.verts[to].in, from)
}

// Analyze builds, filters and orders the graph.
func (a *Analyzer) Analyze(ctx context.Context, proj *project.Context) (*DependencyGraph, error) {
	var b *builder
	if a.cfg.Scope == ScopeFile {
		b = buildFileScope(proj)
	} else {
		b = buildFunctionScope(proj)
	}
	for i := range b.verts {
		slices.Sort(b.verts[i].out)
		slices.Sort(b.verts[i].in)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := NewDependencyGraph()
	result.Filters = Filters{
		Scope:           a.cfg.Scope,
		ExternalDropped: b.dropped,
		MaxDepth:        a.cfg.MaxDepth,
		MaxNodes:        a.cfg.MaxNodes,
		Centrality:      a.cfg.Centrality,
	}

	keep := make([]bool, len(b.verts))
	for i := range keep {
		keep[i] = true
	}
	if a.cfg.MaxDepth > 0 && len(b.verts) > 0 {
		keep = a.depthFilter(b)
		result.Filters.DepthTruncated = len(b.verts) - count(keep)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.cfg.MaxNodes > 0 && count(keep) > a.cfg.MaxNodes {
		before := count(keep)
		keep = a.prune(b, keep)
		result.Filters.Pruned = before - count(keep)
	}

	sub := b.induce(keep)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.emit(sub, result)
	return result, nil
}

// buildFunctionScope makes one vertex per callable or type and one edge per
// resolved call, use, implementation or inheritance between them.
func buildFunctionScope(proj *project.Context) *builder {
	b := &builder{edges: make(map[[2]int]*Edge)}
	vid := make([]int, proj.Len())
	for i, n := range proj.Nodes {
		vid[i] = -1
		if !n.Kind.IsCallable() && !n.Kind.IsType() {
			continue
		}
		vid[i] = len(b.verts)
		b.verts = append(b.verts, vertex{node: Node{
			ID:   string(n.ID),
			Name: n.ShortName(),
			Type: nodeType(n.Kind),
			File: n.Location.Path,
			Line: n.Location.StartLine,
		}})
	}
	for k, e := range proj.Edges {
		if e.Kind == uast.EdgeImports {
			continue
		}
		from, to, internal := proj.Endpoints(uint32(k))
		if vid[from] < 0 {
			continue
		}
		if !internal {
			b.dropped++
			continue
		}
		if vid[to] < 0 {
			continue
		}
		b.addEdge(vid[from], vid[to], edgeType(e.Kind))
	}
	return b
}

// buildFileScope makes one vertex per file and collapses every resolved
// cross-file relation into a single weighted edge.
func buildFileScope(proj *project.Context) *builder {
	b := &builder{edges: make(map[[2]int]*Edge)}
	byPath := make(map[string]int, len(proj.Files))
	for _, fc := range proj.Files {
		byPath[fc.Path] = len(b.verts)
		name := fc.ModulePath
		if name == "" {
			name = filepath.Base(fc.Path)
		}
		b.verts = append(b.verts, vertex{node: Node{
			ID:   fc.Path,
			Name: name,
			Type: NodeFile,
			File: fc.Path,
			Line: 1,
		}})
	}
	for k, e := range proj.Edges {
		from, to, internal := proj.Endpoints(uint32(k))
		if !internal {
			b.dropped++
			continue
		}
		vf := byPath[proj.File(from).Path]
		vt := byPath[proj.File(to).Path]
		if vf == vt {
			continue
		}
		b.addEdge(vf, vt, edgeType(e.Kind))
	}
	return b
}

// depthFilter keeps vertices within MaxDepth hops of a root.
func (a *Analyzer) depthFilter(b *builder) []bool {
	roots := a.explicitRoots(b)
	if len(roots) == 0 {
		roots = defaultRoots(b)
	}

	depth := make([]int, len(b.verts))
	for i := range depth {
		depth[i] = -1
	}
	queue := make([]int, 0, len(roots))
	for _, r := range roots {
		if depth[r] < 0 {
			depth[r] = 0
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if depth[v] == a.cfg.MaxDepth {
			continue
		}
		for _, w := range b.verts[v].out {
			if depth[w] < 0 {
				depth[w] = depth[v] + 1
				queue = append(queue, w)
			}
		}
	}

	keep := make([]bool, len(b.verts))
	for i, d := range depth {
		keep[i] = d >= 0
	}
	return keep
}

func (a *Analyzer) explicitRoots(b *builder) []int {
	if len(a.cfg.Entries) == 0 {
		return nil
	}
	var roots []int
	for i, v := range b.verts {
		for _, g := range a.cfg.Entries {
			if globMatch(g, v.node.Name) || globMatch(g, v.node.ID) {
				roots = append(roots, i)
				break
			}
		}
	}
	return roots
}

func globMatch(pattern, s string) bool {
	ok, err := doublestar.Match(pattern, s)
	return err == nil && ok
}

// defaultRoots returns every vertex without incoming edges from another
// vertex, plus the lexically smallest member of each strongly connected
// component those roots cannot reach.
func defaultRoots(b *builder) []int {
	var roots []int
	reached := make([]bool, len(b.verts))
	mark := func(start int) {
		if reached[start] {
			return
		}
		reached[start] = true
		stack := []int{start}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, w := range b.verts[v].out {
				if !reached[w] {
					reached[w] = true
					stack = append(stack, w)
				}
			}
		}
	}

	for i, v := range b.verts {
		external := 0
		for _, w := range v.in {
			if w != i {
				external++
			}
		}
		if external == 0 {
			roots = append(roots, i)
			mark(i)
		}
	}

	// TarjanSCC returns components in reverse topological order, so walking
	// it backwards visits upstream components first.
	g := toGonum(len(b.verts), b.edgeList(nil))
	sccs := topo.TarjanSCC(g)
	for j := len(sccs) - 1; j >= 0; j-- {
		members := sccs[j]
		smallest := -1
		hit := false
		for _, n := range members {
			id := int(n.ID())
			if reached[id] {
				hit = true
				break
			}
			if smallest < 0 || id < smallest {
				smallest = id
			}
		}
		if !hit {
			roots = append(roots, smallest)
			mark(smallest)
		}
	}
	slices.Sort(roots)
	return roots
}

// prune drops the lowest-centrality vertices until MaxNodes remain. Ties go
// to the lexically smaller id.
func (a *Analyzer) prune(b *builder, keep []bool) []bool {
	sub := b.induce(keep)
	scores := centrality(sub, a.cfg.Centrality)
	order := make([]int, len(sub.verts))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(x, y int) int {
		if c := cmp.Compare(scores[y], scores[x]); c != 0 {
			return c
		}
		return cmp.Compare(x, y)
	})

	kept := make(map[string]bool, a.cfg.MaxNodes)
	for _, i := range order[:a.cfg.MaxNodes] {
		kept[sub.verts[i].node.ID] = true
	}
	out := make([]bool, len(b.verts))
	for i, v := range b.verts {
		out[i] = keep[i] && kept[v.node.ID]
	}
	return out
}

// induce returns the subgraph on the kept vertices, preserving order.
func (b *builder) induce(keep []bool) *builder {
	sub := &builder{edges: make(map[[2]int]*Edge), dropped: b.dropped}
	remap := make([]int, len(b.verts))
	for i, v := range b.verts {
		remap[i] = -1
		if keep[i] {
			remap[i] = len(sub.verts)
			sub.verts = append(sub.verts, vertex{node: v.node})
		}
	}
	for _, key := range b.sortedKeys() {
		from, to := remap[key[0]], remap[key[1]]
		if from < 0 || to < 0 {
			continue
		}
		e := *b.edges[key]
		sub.edges[[2]int{from, to}] = &e
		sub.verts[from].out = append(sub.verts[from].out, to)
		sub.verts[to].in = append(sub.verts[to].in, from)
	}
	return sub
}

func (b *builder) sortedKeys() [][2]int {
	keys := make([][2]int, 0, len(b.edges))
	for k := range b.edges {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(x, y [2]int) int {
		if c := cmp.Compare(x[0], y[0]); c != 0 {
			return c
		}
		return cmp.Compare(x[1], y[1])
	})
	return keys
}

// edgeList returns the edge endpoints, skipping those in skip.
func (b *builder) edgeList(skip map[[2]int]bool) [][2]int {
	var out [][2]int
	for _, k := range b.sortedKeys() {
		if !skip[k] {
			out = append(out, k)
		}
	}
	return out
}

// backEdges finds the edges that close a cycle during a depth-first walk
// that starts from vertices and follows successors in lexical order.
func backEdges(b *builder) map[[2]int]bool {
	const (
		white = iota
		grey
		black
	)
	type frame struct {
		v    int
		next int
	}
	color := make([]int, len(b.verts))
	back := make(map[[2]int]bool)
	for start := range b.verts {
		if color[start] != white {
			continue
		}
		color[start] = grey
		stack := []frame{{v: start}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			out := b.verts[top.v].out
			if top.next == len(out) {
				color[top.v] = black
				stack = stack[:len(stack)-1]
				continue
			}
			w := out[top.next]
			top.next++
			switch color[w] {
			case white:
				color[w] = grey
				stack = append(stack, frame{v: w})
			case grey:
				back[[2]int{top.v, w}] = true
			}
		}
	}
	return back
}

// emit orders the filtered graph and fills the result.
func (a *Analyzer) emit(b *builder, result *DependencyGraph) {
	if len(b.verts) == 0 {
		return
	}
	back := backEdges(b)

	order := topoOrder(len(b.verts), b.edgeList(back))
	position := make([]int, len(b.verts))
	for pos, v := range order {
		position[v] = pos
	}

	scores := centrality(b, a.cfg.Centrality)
	for _, v := range order {
		n := b.verts[v].node
		n.InDegree = len(b.verts[v].in)
		n.OutDegree = len(b.verts[v].out)
		n.Centrality = scores[v]
		result.Nodes = append(result.Nodes, n)
	}

	keys := b.sortedKeys()
	slices.SortStableFunc(keys, func(x, y [2]int) int {
		if c := cmp.Compare(position[x[0]], position[y[0]]); c != 0 {
			return c
		}
		return cmp.Compare(position[x[1]], position[y[1]])
	})
	for _, k := range keys {
		e := *b.edges[k]
		e.BackEdge = back[k]
		result.Edges = append(result.Edges, e)
		if e.BackEdge {
			result.Summary.BackEdges++
		}
	}

	result.Cycles = cycles(b)
	result.Summary.TotalNodes = len(result.Nodes)
	result.Summary.TotalEdges = len(result.Edges)
	result.Summary.CycleCount = len(result.Cycles)
	result.Summary.IsCyclic = len(result.Cycles) > 0
	for _, c := range result.Cycles {
		result.Summary.LargestSCC = max(result.Summary.LargestSCC, len(c))
	}
	n := float64(len(result.Nodes))
	result.Summary.AvgDegree = 2 * float64(len(result.Edges)) / n
	if len(result.Nodes) > 1 {
		result.Summary.Density = float64(len(result.Edges)) / (n * (n - 1))
	}
	result.Summary.Components = len(topo.ConnectedComponents(toUndirected(len(b.verts), b.edgeList(nil))))
}

// topoOrder sorts an acyclic edge set, breaking ties by vertex index.
func topoOrder(n int, edges [][2]int) []int {
	g := toGonum(n, edges)
	sorted, err := topo.SortStabilized(g, func(nodes []gograph.Node) {
		slices.SortFunc(nodes, func(x, y gograph.Node) int { return cmp.Compare(x.ID(), y.ID()) })
	})
	order := make([]int, 0, n)
	if err != nil {
		for i := 0; i < n; i++ {
			order = append(order, i)
		}
		return order
	}
	for _, node := range sorted {
		order = append(order, int(node.ID()))
	}
	return order
}

// cycles reports each strongly connected component with more than one
// member, and each vertex with a self edge, members in lexical order.
func cycles(b *builder) [][]string {
	var comps [][]int
	for _, scc := range topo.TarjanSCC(toGonum(len(b.verts), b.edgeList(nil))) {
		if len(scc) < 2 {
			id := int(scc[0].ID())
			if _, self := b.edges[[2]int{id, id}]; !self {
				continue
			}
		}
		members := make([]int, len(scc))
		for i, n := range scc {
			members[i] = int(n.ID())
		}
		slices.Sort(members)
		comps = append(comps, members)
	}
	slices.SortFunc(comps, func(x, y []int) int { return cmp.Compare(x[0], y[0]) })

	out := make([][]string, 0, len(comps))
	for _, members := range comps {
		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = b.verts[m].node.ID
		}
		out = append(out, ids)
	}
	return out
}

// centrality scores every vertex. Scores are rounded so ties compare equal
// regardless of floating point summation order.
func centrality(b *builder, kind Centrality) []float64 {
	scores := make([]float64, len(b.verts))
	if len(b.verts) == 0 {
		return scores
	}
	switch kind {
	case CentralityDegree:
		for i, v := range b.verts {
			scores[i] = float64(len(v.in) + len(v.out))
		}
		return scores
	case CentralityBetweenness:
		for id, s := range network.Betweenness(toGonum(len(b.verts), b.edgeList(nil))) {
			scores[id] = s
		}
	default:
		scores = pageRank(len(b.verts), b.edgeList(nil), pageRankDamping, pageRankTolerance)
	}
	for i, s := range scores {
		scores[i] = math.Round(s*1e9) / 1e9
	}
	return scores
}

const (
	pageRankDamping   = 0.85
	pageRankTolerance = 1e-12
	pageRankMaxIter   = 1000
)

// pageRank runs the power iteration over vertex indexes in ascending order,
// so equal graphs always produce bit-identical scores. Dangling vertices
// spread their rank uniformly. Duplicate and self edges are ignored.
func pageRank(n int, edges [][2]int, damping, tol float64) []float64 {
	out := make([][]int, n)
	seen := make(map[[2]int]bool, len(edges))
	for _, e := range edges {
		if e[0] == e[1] || seen[e] {
			continue
		}
		seen[e] = true
		out[e[0]] = append(out[e[0]], e[1])
	}
	for _, targets := range out {
		slices.Sort(targets)
	}

	rank := make([]float64, n)
	floats.AddConst(1/float64(n), rank)
	next := make([]float64, n)
	for range pageRankMaxIter {
		var dangling float64
		for i, targets := range out {
			if len(targets) == 0 {
				dangling += rank[i]
			}
		}
		for i := range next {
			next[i] = (1-damping)/float64(n) + damping*dangling/float64(n)
		}
		for i, targets := range out {
			share := damping * rank[i] / float64(len(targets))
			for _, t := range targets {
				next[t] += share
			}
		}
		delta := floats.Distance(rank, next, 1)
		rank, next = next, rank
		if delta < tol {
			break
		}
	}
	return rank
}

// toGonum converts vertex indexes and edges to a gonum directed graph.
// Self edges are skipped as simple graphs do not allow them.
func toGonum(n int, edges [][2]int) *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(int64(i)))
	}
	for _, e := range edges {
		if e[0] != e[1] {
			g.SetEdge(simple.Edge{F: simple.Node(int64(e[0])), T: simple.Node(int64(e[1]))})
		}
	}
	return g
}

func toUndirected(n int, edges [][2]int) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(int64(i)))
	}
	for _, e := range edges {
		if e[0] != e[1] && !g.HasEdgeBetween(int64(e[0]), int64(e[1])) {
			g.SetEdge(simple.Edge{F: simple.Node(int64(e[0])), T: simple.Node(int64(e[1]))})
		}
	}
	return g
}

func count(keep []bool) int {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	return n
}
