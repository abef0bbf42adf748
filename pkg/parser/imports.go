package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/strata/pkg/uast"
)

// addImports records every import a declaration introduces and links the
// file's module node to each imported path.
func (fe *frontEnd) addImports(n *sitter.Node, t string) {
	line := n.StartPoint().Row + 1
	add := func(p, alias string, names ...string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		if alias == "" {
			alias = importAlias(p)
		}
		fe.fc.Imports = append(fe.fc.Imports, uast.Import{Path: p, Alias: alias, Names: names, Line: line})
		fe.addEdge(uast.EdgeImports, fe.fc.Module(), p, "", line)
	}

	switch fe.lang {
	case LangGo:
		alias := ""
		if name := n.ChildByFieldName("name"); name != nil {
			alias = fe.text(name)
		}
		add(trimQuotes(fe.text(n.ChildByFieldName("path"))), alias)

	case LangPython:
		fe.pythonImports(n, t, add)

	case LangJavaScript, LangTypeScript, LangTSX:
		src := trimQuotes(fe.text(n.ChildByFieldName("source")))
		alias, names := "", []string(nil)
		Walk(n, fe.src, func(c *sitter.Node, src []byte) bool {
			switch c.Type() {
			case "import_clause":
				for i := range int(c.NamedChildCount()) {
					if id := c.NamedChild(i); id.Type() == "identifier" {
						alias = GetNodeText(id, src)
					}
				}
			case "namespace_import":
				alias = lastIdent(c, src)
				return false
			case "import_specifier":
				names = append(names, GetNodeText(c.ChildByFieldName("name"), src))
				return false
			}
			return true
		})
		add(src, alias, names...)

	case LangJava:
		var path string
		wildcard := false
		for i := range int(n.NamedChildCount()) {
			switch c := n.NamedChild(i); c.Type() {
			case "scoped_identifier", "identifier":
				path = fe.text(c)
			case "asterisk":
				wildcard = true
			}
		}
		if path == "" {
			return
		}
		if wildcard {
			add(strings.ReplaceAll(path, ".", "/"), "")
			return
		}
		// import a.b.C names class C inside package a/b.
		pkg, cls := path, ""
		if i := strings.LastIndex(path, "."); i >= 0 {
			pkg, cls = path[:i], path[i+1:]
		}
		add(strings.ReplaceAll(pkg, ".", "/"), "", cls)

	case LangC, LangCPP:
		p := n.ChildByFieldName("path")
		if p == nil {
			return
		}
		add(trimQuotes(fe.text(p)), "")

	case LangCSharp:
		alias := ""
		if name := n.ChildByFieldName("name"); name != nil {
			alias = fe.text(name)
		}
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			if c.Type() == "qualified_name" || (c.Type() == "identifier" && fe.text(c) != alias) {
				add(strings.ReplaceAll(fe.text(c), ".", "/"), alias)
				return
			}
		}

	case LangRust:
		arg := n.ChildByFieldName("argument")
		if arg == nil {
			return
		}
		fe.rustUse(arg, "", add)

	case LangPHP:
		switch t {
		case "namespace_use_declaration":
			Walk(n, fe.src, func(c *sitter.Node, src []byte) bool {
				if c.Type() != "namespace_use_clause" {
					return true
				}
				alias := ""
				var path string
				for i := range int(c.NamedChildCount()) {
					switch part := c.NamedChild(i); part.Type() {
					case "qualified_name", "name":
						if path == "" {
							path = GetNodeText(part, src)
						} else {
							alias = GetNodeText(part, src)
						}
					case "namespace_aliasing_clause":
						alias = lastIdent(part, src)
					}
				}
				path = strings.TrimPrefix(path, "\\")
				add(strings.ReplaceAll(path, "\\", "/"), alias)
				return false
			})
		default:
			Walk(n, fe.src, func(c *sitter.Node, src []byte) bool {
				if c.Type() == "string" || c.Type() == "encapsed_string" {
					add(trimQuotes(GetNodeText(c, src)), "")
					return false
				}
				return true
			})
		}
	}
}

func (fe *frontEnd) pythonImports(n *sitter.Node, t string, add func(p, alias string, names ...string)) {
	dotted := func(s string) string {
		lead := len(s) - len(strings.TrimLeft(s, "."))
		rest := strings.ReplaceAll(s[lead:], ".", "/")
		switch {
		case lead == 0:
			return rest
		case lead == 1:
			return "./" + rest
		default:
			return strings.Repeat("../", lead-1) + rest
		}
	}

	if t == "import_statement" {
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			switch c.Type() {
			case "dotted_name":
				add(dotted(fe.text(c)), "")
			case "aliased_import":
				add(dotted(fe.text(c.ChildByFieldName("name"))), fe.text(c.ChildByFieldName("alias")))
			}
		}
		return
	}

	mod := n.ChildByFieldName("module_name")
	if mod == nil {
		return
	}
	var names []string
	for i := range int(n.NamedChildCount()) {
		c := n.NamedChild(i)
		if c.StartByte() == mod.StartByte() {
			continue
		}
		switch c.Type() {
		case "dotted_name":
			names = append(names, fe.text(c))
		case "aliased_import":
			names = append(names, fe.text(c.ChildByFieldName("name")))
		}
	}
	add(strings.TrimSuffix(dotted(fe.text(mod)), "/"), "", names...)
}

// rustUse expands a use tree such as crate::a::{b, c::D as E}.
func (fe *frontEnd) rustUse(n *sitter.Node, prefix string, add func(p, alias string, names ...string)) {
	join := func(a, b string) string {
		if a == "" {
			return b
		}
		return a + "::" + b
	}
	toPath := func(s string) string { return strings.ReplaceAll(s, "::", "/") }

	switch n.Type() {
	case "scoped_use_list":
		base := join(prefix, fe.text(n.ChildByFieldName("path")))
		if list := n.ChildByFieldName("list"); list != nil {
			fe.rustUse(list, base, add)
		}
	case "use_list":
		var names []string
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			switch c.Type() {
			case "identifier", "type_identifier":
				names = append(names, fe.text(c))
			case "self":
				names = append(names, "self")
			default:
				fe.rustUse(c, prefix, add)
			}
		}
		if len(names) > 0 {
			add(toPath(prefix), "", names...)
		}
	case "use_as_clause":
		full := join(prefix, fe.text(n.ChildByFieldName("path")))
		add(toPath(parentPath(full)), fe.text(n.ChildByFieldName("alias")), lastSegment(full))
	case "use_wildcard":
		full := join(prefix, strings.TrimSuffix(strings.TrimSpace(fe.text(n)), "::*"))
		add(toPath(full), "")
	default:
		full := join(prefix, fe.text(n))
		add(toPath(parentPath(full)), "", lastSegment(full))
	}
}

func parentPath(p string) string {
	if i := strings.LastIndex(p, "::"); i >= 0 {
		return p[:i]
	}
	return p
}

// importAlias is the local name an import binds by default: the last path
// segment without extension or version suffix.
func importAlias(spec string) string {
	parts := strings.Split(strings.Trim(strings.ReplaceAll(spec, "\\", "/"), "/"), "/")
	s := parts[len(parts)-1]
	if len(parts) > 1 && isMajorVersion(s) {
		s = parts[len(parts)-2]
	}
	if i := strings.Index(s, "."); i > 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "-", "_")
}

func isMajorVersion(s string) bool {
	return len(s) > 1 && s[0] == 'v' && strings.Trim(s[1:], "0123456789") == ""
}
