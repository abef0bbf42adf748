package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/strata/pkg/uast"
)

var upperSnake = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// callableName returns the declared name of a callable and, when the
// declaration itself names its owner (Go receivers, C++ Foo::bar), the container.
func (fe *frontEnd) callableName(n *sitter.Node, t string) (string, string) {
	switch fe.lang {
	case LangGo:
		name := fe.text(n.ChildByFieldName("name"))
		if t == "method_declaration" {
			return name, receiverType(n.ChildByFieldName("receiver"), fe.src)
		}
		return name, ""
	case LangC, LangCPP:
		return declaratorName(n.ChildByFieldName("declarator"), fe.src)
	case LangJavaScript, LangTypeScript, LangTSX:
		if name := n.ChildByFieldName("name"); name != nil {
			return fe.text(name), ""
		}
		return fe.boundName(n), ""
	case LangRuby:
		name := fe.text(n.ChildByFieldName("name"))
		if t == "singleton_method" {
			if obj := n.ChildByFieldName("object"); obj != nil && obj.Type() == "constant" {
				return name, fe.text(obj)
			}
		}
		return name, ""
	}
	if fe.spec.anonymous[t] {
		return "", ""
	}
	return fe.text(n.ChildByFieldName("name")), ""
}

// boundName names an anonymous function or class by what it is assigned to.
func (fe *frontEnd) boundName(n *sitter.Node) string {
	parent := n.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Type() {
	case "variable_declarator":
		if name := parent.ChildByFieldName("name"); name != nil && isIdentType(name.Type()) {
			return fe.text(name)
		}
	case "pair":
		return trimQuotes(fe.text(parent.ChildByFieldName("key")))
	case "public_field_definition", "field_definition":
		if name := parent.ChildByFieldName("name"); name != nil {
			return fe.text(name)
		}
		return fe.text(parent.ChildByFieldName("property"))
	case "assignment_expression":
		return lastIdent(parent.ChildByFieldName("left"), fe.src)
	}
	return ""
}

func (fe *frontEnd) typeName(n *sitter.Node, t string) string {
	switch fe.lang {
	case LangC, LangCPP:
		if n.ChildByFieldName("body") == nil {
			return ""
		}
	case LangRuby:
		return lastSegment(fe.text(n.ChildByFieldName("name")))
	}
	name := n.ChildByFieldName("name")
	if name == nil {
		if fe.lang == LangJavaScript || fe.lang == LangTypeScript || fe.lang == LangTSX {
			return fe.boundName(n)
		}
		return ""
	}
	return fe.text(name)
}

// receiverType extracts "Server" from "(s *Server)" or "(s Stack[T])".
func receiverType(recv *sitter.Node, src []byte) string {
	if recv == nil {
		return ""
	}
	for i := range int(recv.NamedChildCount()) {
		param := recv.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		return baseTypeName(param.ChildByFieldName("type"), src)
	}
	return ""
}

// declaratorName unwraps C/C++ declarators down to the function name.
func declaratorName(d *sitter.Node, src []byte) (string, string) {
	for d != nil {
		switch d.Type() {
		case "function_declarator", "pointer_declarator", "reference_declarator", "parenthesized_declarator":
			next := d.ChildByFieldName("declarator")
			if next == nil && d.NamedChildCount() > 0 {
				next = d.NamedChild(0)
			}
			d = next
		case "qualified_identifier":
			scope := GetNodeText(d.ChildByFieldName("scope"), src)
			name, _ := declaratorName(d.ChildByFieldName("name"), src)
			return name, lastSegment(scope)
		case "identifier", "field_identifier", "destructor_name", "operator_name", "type_identifier":
			return GetNodeText(d, src), ""
		default:
			return "", ""
		}
	}
	return "", ""
}

// constantNames returns the names a constant-bearing declaration introduces.
func (fe *frontEnd) constantNames(n *sitter.Node, t string, sc scope) []string {
	if sc.owner != nil && sc.owner.Kind.IsCallable() {
		return nil
	}
	var names []string
	switch fe.lang {
	case LangGo:
		for i := range int(n.NamedChildCount()) {
			spec := n.NamedChild(i)
			if spec.Type() != "const_spec" {
				continue
			}
			for j := range int(spec.NamedChildCount()) {
				if c := spec.NamedChild(j); c.Type() == "identifier" {
					names = append(names, fe.text(c))
				}
			}
		}
	case LangRust, LangC, LangCPP:
		if name := n.ChildByFieldName("name"); name != nil {
			names = append(names, fe.text(name))
		}
	case LangPython:
		parent := n.Parent()
		if parent == nil || parent.Type() != "expression_statement" || sc.inType {
			return nil
		}
		if gp := parent.Parent(); gp == nil || gp.Type() != "module" {
			return nil
		}
		if left := n.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
			if name := fe.text(left); upperSnake.MatchString(name) {
				names = append(names, name)
			}
		}
	case LangRuby:
		if left := n.ChildByFieldName("left"); left != nil && left.Type() == "constant" {
			names = append(names, fe.text(left))
		}
	case LangJava:
		mods := fe.modifierWords(n)
		if !mods["static"] || !mods["final"] {
			return nil
		}
		names = fe.declaratorNames(n)
	case LangCSharp:
		if !fe.modifierWords(n)["const"] {
			return nil
		}
		names = fe.declaratorNames(n)
	case LangJavaScript, LangTypeScript, LangTSX:
		parent := n.Parent()
		if parent == nil || (parent.Type() != "program" && parent.Type() != "export_statement") {
			return nil
		}
		if n.ChildCount() == 0 || fe.text(n.Child(0)) != "const" {
			return nil
		}
		for i := range int(n.NamedChildCount()) {
			decl := n.NamedChild(i)
			if decl.Type() != "variable_declarator" {
				continue
			}
			if v := decl.ChildByFieldName("value"); v != nil && (fe.spec.functions[v.Type()] || v.Type() == "class") {
				continue
			}
			if name := decl.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				names = append(names, fe.text(name))
			}
		}
	case LangPHP:
		for i := range int(n.NamedChildCount()) {
			el := n.NamedChild(i)
			if el.Type() != "const_element" {
				continue
			}
			for j := range int(el.NamedChildCount()) {
				if c := el.NamedChild(j); c.Type() == "name" {
					names = append(names, fe.text(c))
					break
				}
			}
		}
	}
	return names
}

// declaratorNames collects variable_declarator names below a field declaration.
func (fe *frontEnd) declaratorNames(n *sitter.Node) []string {
	var names []string
	Walk(n, fe.src, func(c *sitter.Node, src []byte) bool {
		if c.Type() != "variable_declarator" {
			return true
		}
		name := c.ChildByFieldName("name")
		if name == nil {
			for i := range int(c.NamedChildCount()) {
				if id := c.NamedChild(i); id.Type() == "identifier" {
					name = id
					break
				}
			}
		}
		if name != nil {
			names = append(names, GetNodeText(name, src))
		}
		return false
	})
	return names
}

// modifierWords returns the access and storage keywords attached to a declaration.
func (fe *frontEnd) modifierWords(n *sitter.Node) map[string]bool {
	words := make(map[string]bool)
	for i := range int(n.ChildCount()) {
		c := n.Child(i)
		switch c.Type() {
		case "modifiers", "modifier", "visibility_modifier", "accessibility_modifier",
			"storage_class_specifier", "static_modifier", "final_modifier", "abstract_modifier", "readonly_modifier":
			for _, w := range strings.Fields(fe.text(c)) {
				words[w] = true
			}
		}
	}
	return words
}

// visibility applies each language's export rules.
func (fe *frontEnd) visibility(n *sitter.Node, t, name string, sc scope) uast.Visibility {
	switch fe.lang {
	case LangGo:
		r, _ := utf8.DecodeRuneInString(name)
		if unicode.IsUpper(r) {
			return uast.Public
		}
		return uast.Private
	case LangPython:
		switch {
		case strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"):
			return uast.Public
		case strings.HasPrefix(name, "__"):
			return uast.Private
		case strings.HasPrefix(name, "_"):
			return uast.Restricted
		}
		return uast.Public
	case LangJavaScript, LangTypeScript, LangTSX:
		return fe.jsVisibility(n, name, sc)
	case LangJava:
		mods := fe.modifierWords(n)
		switch {
		case mods["public"]:
			return uast.Public
		case mods["private"]:
			return uast.Private
		case mods["protected"]:
			return uast.Restricted
		case sc.typeKind == "interface_declaration":
			return uast.Public
		}
		return uast.Restricted
	case LangCSharp:
		mods := fe.modifierWords(n)
		switch {
		case mods["public"]:
			return uast.Public
		case mods["private"]:
			return uast.Private
		case mods["protected"], mods["internal"]:
			return uast.Restricted
		case sc.typeKind == "interface_declaration":
			return uast.Public
		case !sc.inType || fe.spec.modules[sc.typeKind]:
			return uast.Restricted
		}
		return uast.Private
	case LangRust:
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			if c.Type() != "visibility_modifier" {
				continue
			}
			if strings.TrimSpace(fe.text(c)) == "pub" {
				return uast.Public
			}
			return uast.Restricted
		}
		if sc.implTrait != "" || sc.typeKind == "trait_item" {
			return uast.Public
		}
		return uast.Private
	case LangC:
		if fe.modifierWords(n)["static"] {
			return uast.Private
		}
		return uast.Public
	case LangCPP:
		if sc.inType && (sc.typeKind == "class_specifier" || sc.typeKind == "struct_specifier") {
			return fe.cppAccess(n, sc.typeKind)
		}
		if fe.modifierWords(n)["static"] {
			return uast.Private
		}
		return uast.Public
	case LangRuby:
		return fe.rubyAccess(n)
	case LangPHP:
		mods := fe.modifierWords(n)
		switch {
		case mods["private"]:
			return uast.Private
		case mods["protected"]:
			return uast.Restricted
		}
		return uast.Public
	}
	return uast.Public
}

func (fe *frontEnd) jsVisibility(n *sitter.Node, name string, sc scope) uast.Visibility {
	if strings.HasPrefix(name, "#") {
		return uast.Private
	}
	if sc.inType {
		mods := fe.modifierWords(n)
		switch {
		case mods["private"]:
			return uast.Private
		case mods["protected"]:
			return uast.Restricted
		}
		return uast.Public
	}
	for p, depth := n.Parent(), 0; p != nil && depth < 3; p, depth = p.Parent(), depth+1 {
		switch p.Type() {
		case "export_statement":
			return uast.Public
		case "program", "statement_block", "class_body":
			return uast.Private
		}
	}
	return uast.Private
}

// cppAccess finds the access specifier governing a class member.
func (fe *frontEnd) cppAccess(n *sitter.Node, typeKind string) uast.Visibility {
	for s := n.PrevSibling(); s != nil; s = s.PrevSibling() {
		if s.Type() != "access_specifier" {
			continue
		}
		switch strings.TrimSpace(fe.text(s)) {
		case "public":
			return uast.Public
		case "protected":
			return uast.Restricted
		default:
			return uast.Private
		}
	}
	if typeKind == "struct_specifier" {
		return uast.Public
	}
	return uast.Private
}

// rubyAccess honours bare private/protected/public lines earlier in the body.
func (fe *frontEnd) rubyAccess(n *sitter.Node) uast.Visibility {
	for s := n.PrevNamedSibling(); s != nil; s = s.PrevNamedSibling() {
		if s.Type() != "identifier" {
			continue
		}
		switch fe.text(s) {
		case "private":
			return uast.Private
		case "protected":
			return uast.Restricted
		case "public":
			return uast.Public
		}
	}
	return uast.Public
}

// addHeritage records Inherits and Implements edges declared on a type.
func (fe *frontEnd) addHeritage(n *sitter.Node, node *uast.Node) {
	line := node.Location.StartLine
	inherit := func(ref *sitter.Node) {
		fe.addEdge(uast.EdgeInherits, node, baseTypeName(ref, fe.src), "", line)
	}
	implement := func(ref *sitter.Node) {
		fe.addEdge(uast.EdgeImplements, node, baseTypeName(ref, fe.src), "", line)
	}
	eachNamed := func(parent *sitter.Node, fn func(*sitter.Node)) {
		if parent == nil {
			return
		}
		for i := range int(parent.NamedChildCount()) {
			fn(parent.NamedChild(i))
		}
	}

	switch fe.lang {
	case LangGo:
		ty := n.ChildByFieldName("type")
		if ty == nil || ty.Type() != "struct_type" {
			return
		}
		Walk(ty, fe.src, func(c *sitter.Node, _ []byte) bool {
			if c.Type() == "field_declaration" {
				if c.ChildByFieldName("name") == nil {
					inherit(c.ChildByFieldName("type"))
				}
				return false
			}
			return true
		})
	case LangPython:
		eachNamed(n.ChildByFieldName("superclasses"), func(c *sitter.Node) {
			if c.Type() != "keyword_argument" {
				inherit(c)
			}
		})
	case LangJavaScript, LangTypeScript, LangTSX:
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			switch c.Type() {
			case "class_heritage":
				if c.NamedChildCount() > 0 && c.NamedChild(0).Type() != "extends_clause" && c.NamedChild(0).Type() != "implements_clause" {
					inherit(c.NamedChild(0))
					continue
				}
				eachNamed(c, func(cl *sitter.Node) {
					switch cl.Type() {
					case "extends_clause":
						if v := cl.ChildByFieldName("value"); v != nil {
							inherit(v)
						} else {
							eachNamed(cl, inherit)
						}
					case "implements_clause":
						eachNamed(cl, implement)
					}
				})
			case "extends_type_clause":
				eachNamed(c, inherit)
			}
		}
	case LangJava:
		if sup := n.ChildByFieldName("superclass"); sup != nil {
			eachNamed(sup, inherit)
		}
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			switch c.Type() {
			case "super_interfaces":
				eachNamed(c, func(list *sitter.Node) { eachNamed(list, implement) })
			case "extends_interfaces":
				eachNamed(c, func(list *sitter.Node) { eachNamed(list, inherit) })
			}
		}
	case LangCSharp:
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			if c.Type() != "base_list" {
				continue
			}
			eachNamed(c, func(b *sitter.Node) {
				if name := baseTypeName(b, fe.src); looksLikeInterface(name) {
					implement(b)
				} else {
					inherit(b)
				}
			})
		}
	case LangCPP:
		for i := range int(n.NamedChildCount()) {
			if c := n.NamedChild(i); c.Type() == "base_class_clause" {
				eachNamed(c, func(b *sitter.Node) {
					if b.Type() != "access_specifier" {
						inherit(b)
					}
				})
			}
		}
	case LangRuby:
		if sup := n.ChildByFieldName("superclass"); sup != nil {
			eachNamed(sup, inherit)
		}
	case LangPHP:
		for i := range int(n.NamedChildCount()) {
			c := n.NamedChild(i)
			switch c.Type() {
			case "base_clause":
				eachNamed(c, inherit)
			case "class_interface_clause":
				eachNamed(c, implement)
			}
		}
	}
}

// looksLikeInterface applies the .NET "IFoo" naming convention.
func looksLikeInterface(name string) bool {
	if len(name) < 2 || name[0] != 'I' {
		return false
	}
	r, _ := utf8.DecodeRuneInString(name[1:])
	return unicode.IsUpper(r)
}
