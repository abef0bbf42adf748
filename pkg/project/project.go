// Package project links per-file parse results into one project-wide graph.
package project

import (
	"sort"

	"github.com/panbanda/strata/pkg/uast"
)

// Context is the assembled project: every node in one arena, every edge
// resolved. It is read-only once Assemble returns.
type Context struct {
	Files       []*uast.FileContext
	Nodes       []*uast.Node
	Edges       []uast.Edge
	Ambiguities []ResolutionAmbiguity
	Symbols     *SymbolIndex

	index    map[uast.NodeID]uint32
	fileOf   []uint32
	byPath   map[string]uint32
	edgeFrom []uint32
	edgeTo   []int64 // -1 for external
	owner    []int64 // declaring type, -1 for top-level
	out      [][]uint32
	in       [][]uint32
}

// Assemble builds the project context. Files are processed in path order so
// the result does not depend on the order parsing finished in.
func Assemble(files []*uast.FileContext) *Context {
	sorted := make([]*uast.FileContext, 0, len(files))
	for _, fc := range files {
		if fc != nil {
			sorted = append(sorted, fc)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	c := &Context{
		Files:   sorted,
		Symbols: newSymbolIndex(),
		index:   make(map[uast.NodeID]uint32),
		byPath:  make(map[string]uint32, len(sorted)),
	}
	for fi, fc := range sorted {
		c.byPath[fc.Path] = uint32(fi)
		types := make(map[string]uint32)
		for _, n := range fc.Nodes {
			i := uint32(len(c.Nodes))
			c.Nodes = append(c.Nodes, n)
			c.fileOf = append(c.fileOf, uint32(fi))
			c.index[n.ID] = i
			c.Symbols.add(i, n, fc.ModulePath)
			if n.Kind.IsType() {
				if _, dup := types[n.ShortName()]; !dup {
					types[n.ShortName()] = i
				}
			}
		}
		for _, n := range fc.Nodes {
			owner := int64(-1)
			if t, ok := types[n.Container]; ok && n.Container != "" {
				owner = int64(t)
			}
			c.owner = append(c.owner, owner)
		}
	}

	c.out = make([][]uint32, len(c.Nodes))
	c.in = make([][]uint32, len(c.Nodes))

	r := newResolver(c)
	for fi, fc := range sorted {
		for _, e := range fc.Edges {
			from, ok := c.index[e.From]
			if !ok {
				continue
			}
			to, amb := r.resolve(uint32(fi), from, e)
			resolved := e
			resolved.To = uast.ExternalID
			if to >= 0 {
				resolved.To = c.Nodes[to].ID
			}
			if amb != nil {
				c.Ambiguities = append(c.Ambiguities, *amb)
			}
			c.addEdge(from, to, resolved)
		}
	}
	return c
}

func (c *Context) addEdge(from uint32, to int64, e uast.Edge) {
	k := uint32(len(c.Edges))
	c.Edges = append(c.Edges, e)
	c.edgeFrom = append(c.edgeFrom, from)
	c.edgeTo = append(c.edgeTo, to)
	c.out[from] = append(c.out[from], k)
	if to >= 0 {
		c.in[to] = append(c.in[to], k)
	}
}

// Len returns the number of nodes.
func (c *Context) Len() int {
	return len(c.Nodes)
}

// Index returns the arena index of id.
func (c *Context) Index(id uast.NodeID) (uint32, bool) {
	i, ok := c.index[id]
	return i, ok
}

// Node looks up a node by id.
func (c *Context) Node(id uast.NodeID) (*uast.Node, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.Nodes[i], true
}

// File returns the file a node was declared in.
func (c *Context) File(i uint32) *uast.FileContext {
	return c.Files[c.fileOf[i]]
}

// FileByPath returns the parsed file at path.
func (c *Context) FileByPath(path string) (*uast.FileContext, bool) {
	fi, ok := c.byPath[path]
	if !ok {
		return nil, false
	}
	return c.Files[fi], true
}

// Out returns the indexes of edges leaving node i.
func (c *Context) Out(i uint32) []uint32 {
	return c.out[i]
}

// In returns the indexes of resolved edges arriving at node i.
func (c *Context) In(i uint32) []uint32 {
	return c.in[i]
}

// Endpoints returns the arena indexes of edge k. internal is false when the
// edge points at the external sentinel.
func (c *Context) Endpoints(k uint32) (from, to uint32, internal bool) {
	from = c.edgeFrom[k]
	if t := c.edgeTo[k]; t >= 0 {
		return from, uint32(t), true
	}
	return from, 0, false
}

// Owner returns the type that declares node i. Members of types declared in
// another file (Go methods, Rust impls) have no owner.
func (c *Context) Owner(i uint32) (uint32, bool) {
	if t := c.owner[i]; t >= 0 {
		return uint32(t), true
	}
	return 0, false
}

// Callables returns the arena indexes of functions and methods.
func (c *Context) Callables() []uint32 {
	var out []uint32
	for i, n := range c.Nodes {
		if n.Kind.IsCallable() {
			out = append(out, uint32(i))
		}
	}
	return out
}

// CountKind returns how many nodes have kind k.
func (c *Context) CountKind(k uast.NodeKind) int {
	count := 0
	for _, n := range c.Nodes {
		if n.Kind == k {
			count++
		}
	}
	return count
}
