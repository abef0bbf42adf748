package project

import (
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/panbanda/strata/pkg/uast"
)

var selfQualifiers = map[string]bool{
	"self": true, "this": true, "cls": true, "static": true, "Self": true, "@": true,
}

// resolver binds symbolic edge targets to arena nodes.
type resolver struct {
	c        *Context
	modCache map[modKey][]string
}

type modKey struct {
	file uint32
	spec string
}

func newResolver(c *Context) *resolver {
	return &resolver{c: c, modCache: make(map[modKey][]string)}
}

// allowed reports whether a node kind can be the target of an edge kind.
func allowed(ek uast.EdgeKind, nk uast.NodeKind) bool {
	switch ek {
	case uast.EdgeCalls:
		return nk.IsCallable() || nk == uast.KindClass
	case uast.EdgeInherits, uast.EdgeImplements:
		return nk.IsType()
	case uast.EdgeUses:
		return nk != uast.KindModule
	case uast.EdgeImports:
		return nk == uast.KindModule
	}
	return false
}

// resolve returns the arena index of the edge target, or -1 for external.
func (r *resolver) resolve(fi, from uint32, e uast.Edge) (int64, *ResolutionAmbiguity) {
	if e.Kind == uast.EdgeImports {
		return r.resolveImport(fi, from, e)
	}
	c := r.c
	src := c.Nodes[from]
	fc := c.Files[fi]

	steps := []func() []uint32{
		// self/this/receiver
		func() []uint32 {
			if e.Qualifier == "" || src.Container == "" || isAlias(fc, e.Qualifier) {
				return nil
			}
			if !selfQualifiers[e.Qualifier] && !src.Kind.IsCallable() {
				return nil
			}
			return r.filter(e.Kind, c.Symbols.Short(src.Container+"."+e.Target))
		},
		// imported module
		func() []uint32 {
			var hits []uint32
			for _, imp := range fc.Imports {
				byAlias := e.Qualifier != "" && imp.Alias == e.Qualifier
				byName := e.Qualifier == "" && slices.Contains(imp.Names, e.Target)
				if !byAlias && !byName {
					continue
				}
				for _, mod := range r.modulesFor(fi, imp) {
					hits = append(hits, r.inModule(e.Kind, mod, e.Target)...)
				}
			}
			return hits
		},
		// caller's own module
		func() []uint32 {
			if e.Qualifier != "" && !selfQualifiers[e.Qualifier] {
				if hits := r.inModule(e.Kind, fc.ModulePath, e.Target); hits != nil {
					return r.filterContainer(hits, e.Qualifier)
				}
				return nil
			}
			return r.inModule(e.Kind, fc.ModulePath, e.Target)
		},
		// project-wide short name
		func() []uint32 {
			if e.Qualifier != "" && !selfQualifiers[e.Qualifier] {
				if hits := r.filter(e.Kind, c.Symbols.Short(e.Qualifier+"."+e.Target)); len(hits) > 0 {
					return hits
				}
			}
			return r.filter(e.Kind, c.Symbols.Named(e.Target))
		},
		// Foo.new / Foo::new without a declared constructor
		func() []uint32 {
			if e.Qualifier == "" || (e.Target != "new" && e.Target != "create") {
				return nil
			}
			return r.filter(uast.EdgeInherits, c.Symbols.Named(e.Qualifier))
		},
	}

	for _, step := range steps {
		ranked := r.rank(fi, from, dedupe(step()))
		if len(ranked) == 0 {
			continue
		}
		return int64(ranked[0]), r.ambiguity(from, e, ranked)
	}
	return -1, nil
}

func isAlias(fc *uast.FileContext, name string) bool {
	for _, imp := range fc.Imports {
		if imp.Alias == name {
			return true
		}
	}
	return false
}

// resolveImport binds an import to the module node of the imported file or
// package. Files of one Go package share a module path and count as one target.
func (r *resolver) resolveImport(fi, from uint32, e uast.Edge) (int64, *ResolutionAmbiguity) {
	c := r.c
	fc := c.Files[fi]
	imp := uast.Import{Path: e.Target}
	for _, candidate := range fc.Imports {
		if candidate.Path == e.Target {
			imp = candidate
			break
		}
	}
	mods := r.modulesFor(fi, imp)
	if len(mods) == 0 {
		return -1, nil
	}
	var hits []uint32
	for _, m := range mods {
		if nodes := c.Symbols.modules[m]; len(nodes) > 0 {
			hits = append(hits, nodes[0])
		}
	}
	hits = r.rank(fi, from, hits)
	if len(hits) == 0 {
		return -1, nil
	}
	return int64(hits[0]), r.ambiguity(from, e, hits)
}

// modulesFor returns the project module paths an import refers to.
func (r *resolver) modulesFor(fi uint32, imp uast.Import) []string {
	key := modKey{file: fi, spec: imp.Path + "\x00" + strings.Join(imp.Names, ",")}
	if mods, ok := r.modCache[key]; ok {
		return mods
	}
	fc := r.c.Files[fi]
	var specs []string
	for _, name := range imp.Names {
		specs = append(specs, strings.TrimSuffix(imp.Path, "/")+"/"+name)
	}
	specs = append(specs, imp.Path)

	var mods []string
	for _, spec := range specs {
		if mods = r.matchModules(fc, spec); len(mods) > 0 {
			break
		}
	}
	r.modCache[key] = mods
	return mods
}

func (r *resolver) matchModules(fc *uast.FileContext, spec string) []string {
	spec = strings.ReplaceAll(spec, "\\", "/")
	if spec == "" {
		return nil
	}
	if strings.HasPrefix(spec, ".") {
		joined := path.Clean(path.Join(path.Dir(fc.Path), spec))
		joined = strings.TrimSuffix(joined, path.Ext(joined))
		var out []string
		for _, cand := range []string{joined, strings.TrimSuffix(joined, "/index"), joined + "/index"} {
			if _, ok := r.c.Symbols.modules[cand]; ok && !slices.Contains(out, cand) {
				out = append(out, cand)
			}
		}
		return out
	}

	for _, prefix := range []string{"crate/", "self/", "super/", "@/", "~/"} {
		spec = strings.TrimPrefix(spec, prefix)
	}
	spec = strings.TrimSuffix(spec, path.Ext(spec))

	var out []string
	for m := range r.c.Symbols.modules {
		if m == "" {
			continue
		}
		if m == spec || strings.HasSuffix(m, "/"+spec) || strings.HasSuffix(spec, "/"+m) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// inModule finds top-level or member declarations named target inside a module.
func (r *resolver) inModule(ek uast.EdgeKind, module, target string) []uint32 {
	var out []uint32
	for _, i := range r.c.Symbols.members[module] {
		n := r.c.Nodes[i]
		if (n.Name == target || n.ShortName() == target) && allowed(ek, n.Kind) {
			out = append(out, i)
		}
	}
	return out
}

func (r *resolver) filter(ek uast.EdgeKind, ids []uint32) []uint32 {
	var out []uint32
	for _, i := range ids {
		if allowed(ek, r.c.Nodes[i].Kind) {
			out = append(out, i)
		}
	}
	return out
}

func (r *resolver) filterContainer(ids []uint32, container string) []uint32 {
	var out []uint32
	for _, i := range ids {
		if r.c.Nodes[i].Container == container {
			out = append(out, i)
		}
	}
	return out
}

// rank orders candidates: same file, same module, same language, then arena
// order. Calls prefer callables over types.
func (r *resolver) rank(fi, from uint32, ids []uint32) []uint32 {
	if len(ids) == 0 {
		return nil
	}
	c := r.c
	src := c.Nodes[from]
	fc := c.Files[fi]

	callables := 0
	for _, i := range ids {
		if c.Nodes[i].Kind.IsCallable() {
			callables++
		}
	}
	if callables > 0 && callables < len(ids) {
		kept := ids[:0:0]
		for _, i := range ids {
			if c.Nodes[i].Kind.IsCallable() {
				kept = append(kept, i)
			}
		}
		ids = kept
	}

	score := func(i uint32) int {
		s := 0
		if c.fileOf[i] == fi {
			s += 4
		}
		if c.Files[c.fileOf[i]].ModulePath == fc.ModulePath {
			s += 2
		}
		if c.Nodes[i].Language == src.Language {
			s++
		}
		return s
	}
	out := slices.Clone(ids)
	sort.SliceStable(out, func(a, b int) bool {
		sa, sb := score(out[a]), score(out[b])
		if sa != sb {
			return sa > sb
		}
		return out[a] < out[b]
	})
	return out
}

func (r *resolver) ambiguity(from uint32, e uast.Edge, ranked []uint32) *ResolutionAmbiguity {
	if len(ranked) < 2 {
		return nil
	}
	cands := make([]uast.NodeID, len(ranked))
	for k, i := range ranked {
		cands[k] = r.c.Nodes[i].ID
	}
	return &ResolutionAmbiguity{
		From:       r.c.Nodes[from].ID,
		Kind:       e.Kind,
		Target:     e.Target,
		Line:       e.Line,
		Candidates: cands,
		Chosen:     cands[0],
	}
}

func dedupe(ids []uint32) []uint32 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[uint32]bool, len(ids))
	out := ids[:0:0]
	for _, i := range ids {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}
