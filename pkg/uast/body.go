package uast

// DecisionKind classifies a control-flow construct in a callable body.
type DecisionKind uint8

const (
	DecisionIf DecisionKind = iota + 1
	DecisionElseIf
	DecisionElse
	DecisionLoop
	DecisionSwitch
	DecisionCase
	DecisionCatch
	DecisionTernary
	DecisionBoolOp
	DecisionJump
)

var decisionNames = [...]string{
	DecisionIf:      "if",
	DecisionElseIf:  "else_if",
	DecisionElse:    "else",
	DecisionLoop:    "loop",
	DecisionSwitch:  "switch",
	DecisionCase:    "case",
	DecisionCatch:   "catch",
	DecisionTernary: "ternary",
	DecisionBoolOp:  "bool_op",
	DecisionJump:    "jump",
}

func (k DecisionKind) String() string {
	if int(k) < len(decisionNames) && decisionNames[k] != "" {
		return decisionNames[k]
	}
	return "unknown"
}

// Nests reports whether the construct opens a nesting level.
func (k DecisionKind) Nests() bool {
	switch k {
	case DecisionIf, DecisionLoop, DecisionSwitch, DecisionCatch, DecisionTernary:
		return true
	}
	return false
}

// Decision is one construct of the control-flow skeleton. Depth is the
// nesting depth at which the construct appears; Arm is the 0-based position
// of a case arm within its switch.
type Decision struct {
	Kind  DecisionKind `json:"kind"`
	Depth uint16       `json:"depth"`
	Arm   uint16       `json:"arm,omitempty"`
}

// TokenKind classifies a body token.
type TokenKind uint8

const (
	TokenIdent TokenKind = iota + 1
	TokenLiteral
	TokenKeyword
	TokenOperator
)

// Token is one lexical token of a callable body. For literals Text holds the
// source text and Type the literal class (string, number, bool, null, char).
type Token struct {
	Kind TokenKind `json:"kind"`
	Text string    `json:"text"`
	Type string    `json:"type,omitempty"`
}

// Body is the language-neutral summary of a callable's implementation.
type Body struct {
	Decisions []Decision `json:"decisions"`
	Tokens    []Token    `json:"-"`
	StartLine uint32     `json:"start_line"`
	EndLine   uint32     `json:"end_line"`
}

// Empty reports whether the body has no tokens.
func (b *Body) Empty() bool {
	return b == nil || len(b.Tokens) == 0
}

// MaxDepth returns the deepest nesting level reached, counting from 1.
func (b *Body) MaxDepth() int {
	if b == nil {
		return 0
	}
	deepest := 0
	for _, d := range b.Decisions {
		if d.Kind.Nests() && int(d.Depth)+1 > deepest {
			deepest = int(d.Depth) + 1
		}
	}
	return deepest
}
