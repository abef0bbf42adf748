package parser

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/strata/pkg/uast"
)

// ctxCheckInterval is how many visited nodes pass between cancellation checks.
const ctxCheckInterval = 2048

// TreeSitterFrontEnd returns the front-end for lang.
func TreeSitterFrontEnd(lang Language) FrontEndFunc {
	spec, ok := specs[lang]
	return func(ctx context.Context, p string, src []byte) (*uast.FileContext, error) {
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrUnsupported, lang)
		}
		psr := New()
		defer psr.Close()

		result, err := psr.Parse(ctx, src, lang, p)
		if err != nil {
			return nil, err
		}
		defer result.Close()

		fe := &frontEnd{
			ctx:  ctx,
			lang: lang,
			spec: spec,
			src:  src,
			seen: make(map[edgeKey]bool),
		}
		return fe.build(result)
	}
}

// scope is the lexical position of the walker.
type scope struct {
	container string     // enclosing type/module chain
	owner     *uast.Node // node that owns edges found here
	inType    bool       // directly inside a type or module body
	typeKind  string     // node type of the enclosing type declaration
	implTrait string     // trait named by an enclosing impl block
}

type edgeKey struct {
	from   uast.NodeID
	kind   uast.EdgeKind
	target string
	qual   string
}

type frontEnd struct {
	ctx   context.Context
	lang  Language
	spec  *langSpec
	src   []byte
	fc    *uast.FileContext
	next  uint32
	steps int
	err   error
	seen  map[edgeKey]bool
}

func (fe *frontEnd) build(result *ParseResult) (*uast.FileContext, error) {
	root := result.Tree.RootNode()
	fe.fc = &uast.FileContext{
		Path:       result.Path,
		Language:   string(fe.lang),
		ModulePath: ModulePath(result.Path, fe.lang),
		Lines:      countLines(fe.src),
		Partial:    root.HasError(),
	}

	mod := fe.addNode(uast.KindModule, moduleName(result.Path), "", uast.Public, root)
	fe.visitChildren(root, scope{owner: mod})

	if fe.err != nil {
		return nil, fe.err
	}
	return fe.fc, nil
}

func (fe *frontEnd) tick() bool {
	if fe.err != nil {
		return false
	}
	fe.steps++
	if fe.steps%ctxCheckInterval == 0 {
		if err := fe.ctx.Err(); err != nil {
			fe.err = err
			return false
		}
	}
	return true
}

func (fe *frontEnd) text(n *sitter.Node) string {
	return GetNodeText(n, fe.src)
}

func (fe *frontEnd) addNode(kind uast.NodeKind, name, container string, vis uast.Visibility, n *sitter.Node) *uast.Node {
	id := uast.MakeID(fe.fc.Path, fe.next)
	node := &uast.Node{
		ID:            id,
		Ordinal:       fe.next,
		Kind:          kind,
		Name:          name,
		Container:     container,
		QualifiedName: uast.Qualify(fe.fc.ModulePath, container, name),
		Visibility:    vis,
		Language:      string(fe.lang),
		Location: uast.Location{
			Path:      fe.fc.Path,
			StartLine: n.StartPoint().Row + 1,
			EndLine:   n.EndPoint().Row + 1,
		},
	}
	if kind == uast.KindModule {
		node.QualifiedName = fe.fc.ModulePath
		if container != "" {
			node.QualifiedName = uast.Qualify(fe.fc.ModulePath, container, name)
		}
	}
	fe.next++
	fe.fc.Nodes = append(fe.fc.Nodes, node)
	return node
}

func (fe *frontEnd) addEdge(kind uast.EdgeKind, from *uast.Node, target, qual string, line uint32) {
	if from == nil || target == "" {
		return
	}
	if kind != uast.EdgeCalls && qual == "" && target == from.Name {
		return
	}
	key := edgeKey{from: from.ID, kind: kind, target: target, qual: qual}
	if fe.seen[key] {
		return
	}
	fe.seen[key] = true
	fe.fc.Edges = append(fe.fc.Edges, uast.Edge{
		Kind:      kind,
		From:      from.ID,
		Target:    target,
		Qualifier: qual,
		Line:      line,
	})
}

func (fe *frontEnd) visitChildren(n *sitter.Node, sc scope) {
	for i := range int(n.ChildCount()) {
		fe.visit(n.Child(i), sc)
	}
}

func (fe *frontEnd) visit(n *sitter.Node, sc scope) {
	if n == nil || !fe.tick() {
		return
	}
	t := n.Type()
	sp := fe.spec

	switch {
	case sp.comments[t]:
		fe.addComment(n)
		return
	case sp.imports[t]:
		fe.addImports(n, t)
		return
	case sp.functions[t]:
		if fe.declareCallable(n, t, sc) {
			return
		}
	case sp.impls[t]:
		fe.visitImpl(n, sc)
		return
	case sp.modules[t]:
		if fe.declareModule(n, sc) {
			return
		}
	}
	if kind, ok := sp.types[t]; ok {
		if fe.declareType(n, t, kind, sc) {
			return
		}
	}
	if sp.constants[t] {
		for _, name := range fe.constantNames(n, t, sc) {
			fe.addNode(uast.KindConstant, name, sc.container, fe.visibility(n, t, name, sc), n)
		}
	}
	if rule, ok := sp.calls[t]; ok {
		fe.addCall(n, rule, sc)
	}
	if field, ok := sp.news[t]; ok {
		fe.addInstantiation(n, field, sc)
	}
	if sp.typeRefs[t] {
		fe.addEdge(uast.EdgeUses, sc.owner, fe.text(n), "", n.StartPoint().Row+1)
		return
	}
	fe.visitChildren(n, sc)
}

func (fe *frontEnd) addComment(n *sitter.Node) {
	fe.fc.Comments = append(fe.fc.Comments, uast.Comment{
		StartLine: n.StartPoint().Row + 1,
		EndLine:   n.EndPoint().Row + 1,
		Text:      fe.text(n),
	})
}

func (fe *frontEnd) declareCallable(n *sitter.Node, t string, sc scope) bool {
	name, container := fe.callableName(n, t)
	if name == "" {
		return false
	}
	if container == "" && sc.inType {
		container = sc.container
	}
	kind := uast.KindFunction
	if container != "" || fe.spec.methods[t] {
		kind = uast.KindMethod
	}
	node := fe.addNode(kind, name, container, fe.visibility(n, t, name, sc), n)
	node.Body = fe.buildBody(n)

	if sc.implTrait != "" && sc.inType {
		fe.addEdge(uast.EdgeImplements, node, sc.implTrait, "", node.Location.StartLine)
	}

	fe.visitChildren(n, scope{container: sc.container, owner: node})
	return true
}

func (fe *frontEnd) declareType(n *sitter.Node, t string, kind uast.NodeKind, sc scope) bool {
	name := fe.typeName(n, t)
	if name == "" {
		return false
	}
	if fe.lang == LangGo {
		if ty := n.ChildByFieldName("type"); ty != nil && ty.Type() == "interface_type" {
			kind = uast.KindTrait
		}
	}
	node := fe.addNode(kind, name, sc.container, fe.visibility(n, t, name, sc), n)
	fe.addHeritage(n, node)

	fe.visitChildren(n, scope{
		container: joinContainer(sc.container, name),
		owner:     node,
		inType:    true,
		typeKind:  t,
	})
	return true
}

func (fe *frontEnd) declareModule(n *sitter.Node, sc scope) bool {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return false
	}
	name := lastSegment(fe.text(nameNode))
	node := fe.addNode(uast.KindModule, name, sc.container, fe.visibility(n, n.Type(), name, sc), n)
	fe.visitChildren(n, scope{
		container: joinContainer(sc.container, name),
		owner:     node,
		inType:    true,
		typeKind:  n.Type(),
	})
	return true
}

// visitImpl walks a Rust impl block with the implemented type as container.
func (fe *frontEnd) visitImpl(n *sitter.Node, sc scope) {
	typeName := baseTypeName(n.ChildByFieldName("type"), fe.src)
	trait := ""
	if tr := n.ChildByFieldName("trait"); tr != nil {
		trait = baseTypeName(tr, fe.src)
	}
	if typeName == "" {
		fe.visitChildren(n, sc)
		return
	}
	inner := scope{
		container: typeName,
		owner:     sc.owner,
		inType:    true,
		typeKind:  "impl_item",
		implTrait: trait,
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fe.visitChildren(body, inner)
		return
	}
	fe.visitChildren(n, inner)
}

func (fe *frontEnd) addCall(n *sitter.Node, rule callRule, sc scope) {
	callee := n.ChildByFieldName(rule.name)
	if callee == nil {
		return
	}
	var name, qual string
	if rule.qual == "" {
		name, qual = fe.calleeParts(callee)
	} else {
		name = lastIdent(callee, fe.src)
		if q := n.ChildByFieldName(rule.qual); q != nil {
			qual = lastIdent(q, fe.src)
		}
	}
	if name == "" {
		return
	}
	line := n.StartPoint().Row + 1
	args := n.ChildByFieldName("arguments")

	if fe.isRequire(name, qual) {
		if spec := firstStringArg(args, fe.src); spec != "" {
			if name == "require_relative" && !strings.HasPrefix(spec, ".") {
				spec = "./" + spec
			}
			fe.fc.Imports = append(fe.fc.Imports, uast.Import{Path: spec, Alias: importAlias(spec), Line: line})
			fe.addEdge(uast.EdgeImports, fe.fc.Module(), spec, "", line)
			return
		}
	}

	fe.addEdge(uast.EdgeCalls, sc.owner, name, qual, line)

	// Functions passed by name are references even though they are not called here.
	if args == nil {
		return
	}
	for i := range int(args.NamedChildCount()) {
		arg := args.NamedChild(i)
		if arg.Type() == "keyword_argument" {
			arg = arg.ChildByFieldName("value")
		}
		if arg != nil && isIdentType(arg.Type()) && arg.ChildCount() == 0 {
			fe.addEdge(uast.EdgeUses, sc.owner, fe.text(arg), "", arg.StartPoint().Row+1)
		}
	}
}

func (fe *frontEnd) isRequire(name, qual string) bool {
	if qual != "" {
		return false
	}
	switch fe.lang {
	case LangJavaScript, LangTypeScript, LangTSX:
		return name == "require"
	case LangRuby:
		return name == "require" || name == "require_relative"
	}
	return false
}

func (fe *frontEnd) addInstantiation(n *sitter.Node, field string, sc scope) {
	var ty *sitter.Node
	if field != "" {
		ty = n.ChildByFieldName(field)
	} else {
		for i := range int(n.NamedChildCount()) {
			if c := n.NamedChild(i); c.Type() == "name" || c.Type() == "qualified_name" {
				ty = c
				break
			}
		}
	}
	name := baseTypeName(ty, fe.src)
	if name == "" {
		return
	}
	fe.addEdge(uast.EdgeUses, sc.owner, name, "", n.StartPoint().Row+1)
}

// calleeParts splits a callee expression into the called name and the
// receiver or package qualifier.
func (fe *frontEnd) calleeParts(c *sitter.Node) (string, string) {
	for c != nil {
		switch c.Type() {
		case "generic_function", "template_function", "parenthesized_expression":
			next := c.ChildByFieldName("function")
			if next == nil {
				next = c.ChildByFieldName("name")
			}
			if next == nil && c.NamedChildCount() > 0 {
				next = c.NamedChild(0)
			}
			c = next
			continue
		}
		break
	}
	if c == nil {
		return "", ""
	}
	if isIdentType(c.Type()) && c.NamedChildCount() == 0 {
		return fe.text(c), ""
	}
	count := int(c.NamedChildCount())
	if count == 0 {
		return "", ""
	}
	var last *sitter.Node
	for i := count - 1; i >= 0; i-- {
		child := c.NamedChild(i)
		if isIdentType(child.Type()) {
			last = child
			break
		}
	}
	if last == nil {
		return "", ""
	}
	name := fe.text(last)
	first := c.NamedChild(0)
	if first == nil || (first.StartByte() == last.StartByte() && first.EndByte() == last.EndByte()) {
		return name, ""
	}
	return name, lastIdent(first, fe.src)
}

// ModulePath derives the module a file belongs to: its directory for Go and
// package-index files, its extensionless path otherwise.
func ModulePath(p string, lang Language) string {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	dir := path.Dir(p)
	if dir == "." {
		dir = ""
	}
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))

	switch lang {
	case LangGo:
		return dir
	case LangPython:
		if stem == "__init__" {
			return dir
		}
	case LangJavaScript, LangTypeScript, LangTSX:
		if stem == "index" {
			return dir
		}
	case LangRust:
		if stem == "mod" || stem == "lib" || stem == "main" {
			return dir
		}
	}
	return path.Join(dir, stem)
}

func moduleName(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func joinContainer(outer, name string) string {
	if outer == "" {
		return name
	}
	return outer + "." + name
}

func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte{'\n'})
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}

// isIdentType reports whether a node type names an identifier in some grammar.
func isIdentType(t string) bool {
	switch t {
	case "identifier", "field_identifier", "property_identifier", "type_identifier",
		"package_identifier", "shorthand_property_identifier", "private_property_identifier",
		"constant", "name", "word", "command_name", "namespace_identifier", "statement_identifier":
		return true
	}
	return strings.HasSuffix(t, "_identifier")
}

// lastIdent returns the right-most identifier within n, e.g. "save" for "self.repo.save".
func lastIdent(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	t := n.Type()
	if t == "this" || t == "self" || t == "super" || t == "base" {
		return t
	}
	if isIdentType(t) && n.NamedChildCount() == 0 {
		return GetNodeText(n, src)
	}
	for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
		if s := lastIdent(n.NamedChild(i), src); s != "" {
			return s
		}
	}
	if n.NamedChildCount() == 0 {
		text := GetNodeText(n, src)
		if text == "this" || text == "self" {
			return text
		}
	}
	return ""
}

// baseTypeName strips pointers, references, generics and package
// qualification from a type expression.
func baseTypeName(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "generic_type", "pointer_type", "reference_type", "qualified_type", "scoped_type_identifier",
		"generic_name", "qualified_name", "scoped_identifier", "scope_resolution", "nested_type_identifier",
		"qualified_identifier", "type_annotation", "parameterized_type", "array_type", "slice_type":
		if ty := n.ChildByFieldName("type"); ty != nil && n.Type() != "qualified_type" {
			return baseTypeName(ty, src)
		}
		if name := n.ChildByFieldName("name"); name != nil {
			return baseTypeName(name, src)
		}
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			if s := baseTypeName(n.NamedChild(i), src); s != "" {
				return s
			}
		}
		return ""
	}
	if isIdentType(n.Type()) && n.NamedChildCount() == 0 {
		return GetNodeText(n, src)
	}
	if n.NamedChildCount() > 0 {
		return baseTypeName(n.NamedChild(0), src)
	}
	return ""
}

func firstStringArg(args *sitter.Node, src []byte) string {
	if args == nil {
		return ""
	}
	for i := range int(args.NamedChildCount()) {
		arg := args.NamedChild(i)
		if strings.Contains(arg.Type(), "string") {
			return trimQuotes(GetNodeText(arg, src))
		}
	}
	return ""
}

func lastSegment(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"::", ".", "\\", "/"} {
		if i := strings.LastIndex(s, sep); i >= 0 {
			s = s[i+len(sep):]
		}
	}
	return s
}
