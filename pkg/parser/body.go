package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/strata/pkg/uast"
)

// bodyBuilder flattens a callable body into its decision skeleton and token stream.
type bodyBuilder struct {
	fe   *frontEnd
	body *uast.Body
	arms []uint16 // next arm ordinal of each open switch
}

// buildBody summarizes the implementation of callable n. Nested named
// declarations are skipped; anonymous functions count one nesting level deeper.
func (fe *frontEnd) buildBody(n *sitter.Node) *uast.Body {
	target := n.ChildByFieldName("body")
	if target == nil {
		target = n
	}
	b := &bodyBuilder{
		fe: fe,
		body: &uast.Body{
			StartLine: n.StartPoint().Row + 1,
			EndLine:   n.EndPoint().Row + 1,
		},
	}
	if target == n {
		b.children(n, 0, n.ChildByFieldName("name"))
	} else {
		b.walk(target, 0)
	}
	return b.body
}

func (b *bodyBuilder) decide(kind uast.DecisionKind, depth int) {
	b.body.Decisions = append(b.body.Decisions, uast.Decision{Kind: kind, Depth: uint16(depth)})
}

func (b *bodyBuilder) token(kind uast.TokenKind, text, typ string) {
	b.body.Tokens = append(b.body.Tokens, uast.Token{Kind: kind, Text: text, Type: typ})
}

// children walks every child of n except skip.
func (b *bodyBuilder) children(n *sitter.Node, depth int, skip *sitter.Node) {
	for i := range int(n.ChildCount()) {
		c := n.Child(i)
		if skip != nil && c.StartByte() == skip.StartByte() && c.EndByte() == skip.EndByte() && c.Type() == skip.Type() {
			continue
		}
		b.walk(c, depth)
	}
}

func (b *bodyBuilder) walk(n *sitter.Node, depth int) {
	if n == nil || !b.fe.tick() {
		return
	}
	sp := b.fe.spec
	t := n.Type()

	if sp.comments[t] {
		return
	}
	if lit := literalType(t); lit != "" {
		b.token(uast.TokenLiteral, b.fe.text(n), lit)
		return
	}
	if n.ChildCount() == 0 {
		b.leaf(n, t)
		return
	}

	switch {
	case sp.anonymous[t]:
		b.children(n, depth+1, nil)
		return
	case sp.functions[t]:
		if name, _ := b.fe.callableName(n, t); name != "" {
			return
		}
		b.children(n, depth+1, nil)
		return
	case sp.modules[t]:
		return
	}
	if _, ok := sp.types[t]; ok && b.fe.typeName(n, t) != "" {
		return
	}

	switch {
	case sp.ifs[t]:
		b.decide(uast.DecisionIf, depth)
		b.ifBranches(n, depth)
	case sp.loops[t], sp.catches[t], sp.ternaries[t]:
		b.decide(nestingKind(sp, t), depth)
		b.children(n, depth+1, nil)
	case sp.switches[t]:
		b.decide(uast.DecisionSwitch, depth)
		b.arms = append(b.arms, 0)
		b.children(n, depth+1, nil)
		b.arms = b.arms[:len(b.arms)-1]
	case sp.arms[t]:
		var arm uint16
		if top := len(b.arms) - 1; top >= 0 {
			arm = b.arms[top]
			b.arms[top]++
		}
		b.body.Decisions = append(b.body.Decisions, uast.Decision{Kind: uast.DecisionCase, Depth: uint16(depth), Arm: arm})
		b.children(n, depth, nil)
	case sp.boolOps[t]:
		if b.isLogical(n) {
			b.decide(uast.DecisionBoolOp, depth)
		}
		b.children(n, depth, nil)
	case sp.jumps[t]:
		if isNonLocalJump(sp, n, t) {
			b.decide(uast.DecisionJump, depth)
		}
		b.children(n, depth, nil)
	default:
		b.children(n, depth, nil)
	}
}

// ifBranches walks the condition, consequence and alternatives of an if.
// Alternatives that are themselves ifs become else-if arms at the same depth.
func (b *bodyBuilder) ifBranches(n *sitter.Node, depth int) {
	sp := b.fe.spec
	afterElse := false
	for i := range int(n.ChildCount()) {
		c := n.Child(i)
		ct := c.Type()
		switch {
		case sp.comments[ct]:
			continue
		case afterElse && c.IsNamed() && sp.ifs[ct]:
			b.decide(uast.DecisionElseIf, depth)
			b.ifBranches(c, depth)
		case c.IsNamed() && sp.elseIfs[ct]:
			b.decide(uast.DecisionElseIf, depth)
			b.ifBranches(c, depth)
		case sp.elses[ct] && c.ChildCount() == 0:
			b.leaf(c, ct)
			if next := c.NextSibling(); next != nil && sp.ifs[next.Type()] {
				afterElse = true
				continue
			}
			b.decide(uast.DecisionElse, depth)
		case sp.elses[ct]:
			b.elseClause(c, depth)
		default:
			b.walk(c, depth+1)
		}
		afterElse = false
	}
}

func (b *bodyBuilder) elseClause(c *sitter.Node, depth int) {
	sp := b.fe.spec
	var chained *sitter.Node
	if c.NamedChildCount() == 1 && sp.ifs[c.NamedChild(0).Type()] {
		chained = c.NamedChild(0)
	}
	if chained == nil {
		b.decide(uast.DecisionElse, depth)
		b.children(c, depth+1, nil)
		return
	}
	for i := range int(c.ChildCount()) {
		part := c.Child(i)
		if part.Type() == chained.Type() && part.StartByte() == chained.StartByte() {
			b.decide(uast.DecisionElseIf, depth)
			b.ifBranches(part, depth)
			continue
		}
		b.walk(part, depth+1)
	}
}

func (b *bodyBuilder) leaf(n *sitter.Node, t string) {
	text := b.fe.text(n)
	if text == "" {
		return
	}
	if isIdentType(t) {
		b.token(uast.TokenIdent, text, "")
		return
	}
	if isWord(text) {
		b.token(uast.TokenKeyword, text, "")
		return
	}
	b.token(uast.TokenOperator, text, "")
}

// isLogical reports whether a binary node is a short-circuit && / || / and / or.
func (b *bodyBuilder) isLogical(n *sitter.Node) bool {
	if op := n.ChildByFieldName("operator"); op != nil {
		return isLogicalOp(b.fe.text(op))
	}
	for i := range int(n.ChildCount()) {
		c := n.Child(i)
		if !c.IsNamed() && isLogicalOp(b.fe.text(c)) {
			return true
		}
	}
	return false
}

func isLogicalOp(op string) bool {
	switch strings.TrimSpace(op) {
	case "&&", "||", "and", "or", "??":
		return true
	}
	return false
}

// isNonLocalJump reports whether a jump leaves structured flow: a goto or a
// break/continue naming a label. Operands that are not labels, such as the
// value of a Rust break, do not count.
func isNonLocalJump(sp *langSpec, n *sitter.Node, t string) bool {
	if strings.Contains(t, "goto") {
		return true
	}
	for i := range int(n.NamedChildCount()) {
		if sp.labels[n.NamedChild(i).Type()] {
			return true
		}
	}
	return false
}

func nestingKind(sp *langSpec, t string) uast.DecisionKind {
	switch {
	case sp.loops[t]:
		return uast.DecisionLoop
	case sp.catches[t]:
		return uast.DecisionCatch
	}
	return uast.DecisionTernary
}

// literalType classifies literal node types across grammars.
func literalType(t string) string {
	switch t {
	case "true", "false", "boolean", "boolean_literal":
		return "bool"
	case "nil", "null", "none", "null_literal", "undefined":
		return "null"
	case "char_literal", "character_literal", "rune_literal":
		return "char"
	}
	switch {
	case strings.Contains(t, "string") && !strings.Contains(t, "content") && !strings.Contains(t, "fragment"),
		t == "heredoc_body", t == "raw_string":
		return "string"
	case strings.Contains(t, "number"), strings.Contains(t, "integer"), strings.Contains(t, "float"),
		t == "int_literal", t == "imaginary_literal", t == "decimal_integer_literal", t == "real_literal":
		return "number"
	}
	return ""
}

func isWord(s string) bool {
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
