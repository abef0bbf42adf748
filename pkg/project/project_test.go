package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/strata/pkg/uast"
)

// fileBuilder assembles a FileContext by hand, assigning ids the way a front-end does.
type fileBuilder struct {
	fc *uast.FileContext
}

func newFile(path, module, lang string) *fileBuilder {
	b := &fileBuilder{fc: &uast.FileContext{Path: path, ModulePath: module, Language: lang}}
	b.node(uast.KindModule, module, "")
	return b
}

func (b *fileBuilder) node(kind uast.NodeKind, name, container string) *uast.Node {
	ord := uint32(len(b.fc.Nodes))
	n := &uast.Node{
		ID:            uast.MakeID(b.fc.Path, ord),
		Ordinal:       ord,
		Kind:          kind,
		Name:          name,
		Container:     container,
		QualifiedName: uast.Qualify(b.fc.ModulePath, container, name),
		Visibility:    uast.Public,
		Language:      b.fc.Language,
		Location:      uast.Location{Path: b.fc.Path, StartLine: ord + 1, EndLine: ord + 1},
	}
	if kind == uast.KindModule {
		n.QualifiedName = b.fc.ModulePath
	}
	b.fc.Nodes = append(b.fc.Nodes, n)
	return n
}

func (b *fileBuilder) edge(from *uast.Node, kind uast.EdgeKind, target, qual string) {
	b.fc.Edges = append(b.fc.Edges, uast.Edge{Kind: kind, From: from.ID, Target: target, Qualifier: qual})
}

func (b *fileBuilder) imports(path, alias string, names ...string) {
	b.fc.Imports = append(b.fc.Imports, uast.Import{Path: path, Alias: alias, Names: names})
	b.edge(b.fc.Nodes[0], uast.EdgeImports, path, "")
}

func edgeTo(t *testing.T, c *Context, from *uast.Node, kind uast.EdgeKind, target string) uast.NodeID {
	t.Helper()
	for _, e := range c.Edges {
		if e.From == from.ID && e.Kind == kind && e.Target == target {
			return e.To
		}
	}
	t.Fatalf("no %s edge %s -> %s", kind, from.ID, target)
	return ""
}

func TestAssembleEmpty(t *testing.T) {
	c := Assemble(nil)
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Edges)
	assert.Empty(t, c.Callables())
}

func TestAssembleOrdersFilesByPath(t *testing.T) {
	b := newFile("b.py", "b", "python")
	a := newFile("a.py", "a", "python")
	c1 := Assemble([]*uast.FileContext{b.fc, a.fc})
	c2 := Assemble([]*uast.FileContext{a.fc, b.fc})

	require.Len(t, c1.Files, 2)
	assert.Equal(t, "a.py", c1.Files[0].Path)
	assert.Equal(t, c1.Nodes, c2.Nodes)

	i, ok := c1.Index("b.py#0")
	require.True(t, ok)
	assert.Equal(t, uint32(1), i)
	assert.Equal(t, "b.py", c1.File(i).Path)
}

func TestResolveSameModuleAndExternal(t *testing.T) {
	f := newFile("svc/server.go", "svc", "go")
	handle := f.node(uast.KindMethod, "Handle", "Server")
	helper := f.node(uast.KindFunction, "helper", "")
	f.edge(handle, uast.EdgeCalls, "helper", "")
	f.edge(handle, uast.EdgeCalls, "Println", "fmt")

	c := Assemble([]*uast.FileContext{f.fc})

	assert.Equal(t, helper.ID, edgeTo(t, c, handle, uast.EdgeCalls, "helper"))
	assert.Equal(t, uast.ExternalID, edgeTo(t, c, handle, uast.EdgeCalls, "Println"))
	assert.Empty(t, c.Ambiguities)

	hi, _ := c.Index(helper.ID)
	require.Len(t, c.In(hi), 1)
	from, to, internal := c.Endpoints(c.In(hi)[0])
	assert.True(t, internal)
	assert.Equal(t, hi, to)
	assert.Equal(t, handle, c.Nodes[from])
}

func TestResolveSelfQualifier(t *testing.T) {
	f := newFile("app/models.py", "app/models", "python")
	f.node(uast.KindClass, "User", "")
	save := f.node(uast.KindMethod, "save", "User")
	validate := f.node(uast.KindMethod, "validate", "User")
	f.node(uast.KindClass, "Group", "")
	f.node(uast.KindMethod, "validate", "Group")
	f.edge(save, uast.EdgeCalls, "validate", "self")

	c := Assemble([]*uast.FileContext{f.fc})
	assert.Equal(t, validate.ID, edgeTo(t, c, save, uast.EdgeCalls, "validate"))
	assert.Empty(t, c.Ambiguities)
}

func TestResolveThroughImports(t *testing.T) {
	util := newFile("src/util.js", "src/util", "javascript")
	format := util.node(uast.KindFunction, "format", "")

	other := newFile("lib/util.js", "lib/util", "javascript")
	other.node(uast.KindFunction, "format", "")

	app := newFile("src/app.js", "src/app", "javascript")
	app.imports("./util", "utils")
	render := app.node(uast.KindFunction, "render", "")
	app.edge(render, uast.EdgeCalls, "format", "utils")

	c := Assemble([]*uast.FileContext{util.fc, other.fc, app.fc})

	assert.Equal(t, format.ID, edgeTo(t, c, render, uast.EdgeCalls, "format"))
	assert.Equal(t, util.fc.Nodes[0].ID, edgeTo(t, c, app.fc.Nodes[0], uast.EdgeImports, "./util"))
	assert.Empty(t, c.Ambiguities)
}

func TestResolveFromImportNames(t *testing.T) {
	models := newFile("app/models.py", "app/models", "python")
	user := models.node(uast.KindClass, "User", "")

	svc := newFile("app/service.py", "app/service", "python")
	svc.imports("./models", "models", "User")
	run := svc.node(uast.KindFunction, "run", "")
	svc.edge(run, uast.EdgeCalls, "User", "")

	c := Assemble([]*uast.FileContext{models.fc, svc.fc})
	assert.Equal(t, user.ID, edgeTo(t, c, run, uast.EdgeCalls, "User"))
}

func TestResolveAmbiguityFirstMatch(t *testing.T) {
	a := newFile("a/util.go", "a", "go")
	first := a.node(uast.KindFunction, "Parse", "")
	b := newFile("b/util.go", "b", "go")
	second := b.node(uast.KindFunction, "Parse", "")
	m := newFile("main.go", "", "go")
	main := m.node(uast.KindFunction, "main", "")
	m.edge(main, uast.EdgeCalls, "Parse", "")

	c := Assemble([]*uast.FileContext{m.fc, b.fc, a.fc})

	assert.Equal(t, first.ID, edgeTo(t, c, main, uast.EdgeCalls, "Parse"))
	require.Len(t, c.Ambiguities, 1)
	amb := c.Ambiguities[0]
	assert.Equal(t, []uast.NodeID{first.ID, second.ID}, amb.Candidates)
	assert.Equal(t, first.ID, amb.Chosen)
	assert.Contains(t, amb.Error(), "ambiguous calls target \"Parse\"")
}

func TestResolveKindFiltering(t *testing.T) {
	f := newFile("shapes.ts", "shapes", "typescript")
	f.node(uast.KindConstant, "Shape", "")
	iface := f.node(uast.KindTrait, "Shape", "Types")
	circle := f.node(uast.KindClass, "Circle", "")
	f.edge(circle, uast.EdgeImplements, "Shape", "")

	c := Assemble([]*uast.FileContext{f.fc})
	assert.Equal(t, iface.ID, edgeTo(t, c, circle, uast.EdgeImplements, "Shape"))
}

func TestResolveConstructorFallback(t *testing.T) {
	f := newFile("lib/cache.rb", "lib/cache", "ruby")
	cache := f.node(uast.KindClass, "Cache", "")
	run := f.node(uast.KindFunction, "build", "")
	f.edge(run, uast.EdgeCalls, "new", "Cache")

	c := Assemble([]*uast.FileContext{f.fc})
	assert.Equal(t, cache.ID, edgeTo(t, c, run, uast.EdgeCalls, "new"))
}

func TestEveryEdgeIsResolvedOrExternal(t *testing.T) {
	f := newFile("x.py", "x", "python")
	fn := f.node(uast.KindFunction, "f", "")
	f.edge(fn, uast.EdgeCalls, "g", "")
	f.edge(fn, uast.EdgeUses, "h", "")
	f.imports("nowhere", "nowhere")

	c := Assemble([]*uast.FileContext{f.fc})
	require.Len(t, c.Edges, 3)
	for _, e := range c.Edges {
		if e.To.IsExternal() {
			continue
		}
		_, ok := c.Node(e.To)
		assert.True(t, ok, "edge %+v points at a missing node", e)
	}
}

func TestGoImportMatchesPackageDirectory(t *testing.T) {
	s1 := newFile("internal/store/a.go", "internal/store", "go")
	s2 := newFile("internal/store/b.go", "internal/store", "go")
	open := s2.node(uast.KindFunction, "Open", "")
	m := newFile("cmd/app/main.go", "cmd/app", "go")
	m.imports("github.com/acme/app/internal/store", "store")
	main := m.node(uast.KindFunction, "main", "")
	m.edge(main, uast.EdgeCalls, "Open", "store")

	c := Assemble([]*uast.FileContext{s1.fc, s2.fc, m.fc})

	assert.Equal(t, open.ID, edgeTo(t, c, main, uast.EdgeCalls, "Open"))
	assert.Equal(t, s1.fc.Nodes[0].ID, edgeTo(t, c, m.fc.Nodes[0], uast.EdgeImports, "github.com/acme/app/internal/store"))
	assert.Empty(t, c.Ambiguities)
}

func TestOwner(t *testing.T) {
	f := newFile("shop/cart.py", "shop/cart", "python")
	cart := f.node(uast.KindClass, "Cart", "")
	add := f.node(uast.KindMethod, "add", "Cart")
	free := f.node(uast.KindFunction, "total", "")

	c := Assemble([]*uast.FileContext{f.fc})

	ai, _ := c.Index(add.ID)
	ci, _ := c.Index(cart.ID)
	owner, ok := c.Owner(ai)
	require.True(t, ok)
	assert.Equal(t, ci, owner)

	fi, _ := c.Index(free.ID)
	_, ok = c.Owner(fi)
	assert.False(t, ok)
}
