// Package uast defines the language-independent representation every
// front-end produces and every analysis pass reads.
package uast

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID identifies a node. It is "<path>#<ordinal>" where ordinal comes
// from a per-file counter assigned in source order.
type NodeID string

// ExternalID is the target of an edge that could not be resolved inside the project.
const ExternalID NodeID = "<external>"

// MakeID builds the id of the n-th node of a file.
func MakeID(path string, n uint32) NodeID {
	return NodeID(path + "#" + strconv.FormatUint(uint64(n), 10))
}

// IsExternal reports whether id is the external sentinel.
func (id NodeID) IsExternal() bool {
	return id == ExternalID
}

// Split returns the file path and ordinal encoded in the id.
func (id NodeID) Split() (string, uint32) {
	s := string(id)
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return s, 0
	}
	n, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return s, 0
	}
	return s[:i], uint32(n)
}

// CompareIDs orders ids by path, then numerically by ordinal.
func CompareIDs(a, b NodeID) int {
	pa, na := a.Split()
	pb, nb := b.Split()
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	switch {
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return 0
}

// NodeKind is the tagged variant of a unified node.
type NodeKind string

const (
	KindFunction NodeKind = "function"
	KindMethod   NodeKind = "method"
	KindClass    NodeKind = "class"
	KindTrait    NodeKind = "trait"
	KindModule   NodeKind = "module"
	KindConstant NodeKind = "constant"
	KindEnum     NodeKind = "enum"
)

// IsCallable reports whether nodes of this kind carry a body.
func (k NodeKind) IsCallable() bool {
	return k == KindFunction || k == KindMethod
}

// IsType reports whether the kind declares a type.
func (k NodeKind) IsType() bool {
	return k == KindClass || k == KindTrait || k == KindEnum
}

// Visibility of a declaration.
type Visibility string

const (
	Public     Visibility = "public"
	Private    Visibility = "private"
	Restricted Visibility = "restricted"
)

// Location is a 1-based inclusive line span within a file.
type Location struct {
	Path      string `json:"path"`
	StartLine uint32 `json:"start_line"`
	EndLine   uint32 `json:"end_line"`
}

// Lines returns the number of lines spanned.
func (l Location) Lines() int {
	if l.EndLine < l.StartLine {
		return 0
	}
	return int(l.EndLine-l.StartLine) + 1
}

// Contains reports whether line falls within the span.
func (l Location) Contains(line uint32) bool {
	return line >= l.StartLine && line <= l.EndLine
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d-%d", l.Path, l.StartLine, l.EndLine)
}

// Node is one declaration in the unified representation.
type Node struct {
	ID            NodeID     `json:"id"`
	Ordinal       uint32     `json:"-"`
	Kind          NodeKind   `json:"kind"`
	Name          string     `json:"name"`
	Container     string     `json:"container,omitempty"`
	QualifiedName string     `json:"qualified_name"`
	Visibility    Visibility `json:"visibility"`
	Language      string     `json:"language"`
	Location      Location   `json:"location"`
	Body          *Body      `json:"-"`
}

// ShortName is the name used for unqualified lookups, e.g. "Server.Start".
func (n *Node) ShortName() string {
	if n.Container == "" {
		return n.Name
	}
	return n.Container + "." + n.Name
}

// EdgeKind is the tagged variant of a unified edge.
type EdgeKind string

const (
	EdgeCalls      EdgeKind = "calls"
	EdgeImports    EdgeKind = "imports"
	EdgeInherits   EdgeKind = "inherits"
	EdgeImplements EdgeKind = "implements"
	EdgeUses       EdgeKind = "uses"
)

// Edge is a directed relation. Front-ends fill Target (and Qualifier) with
// the symbolic reference; the assembler fills To.
type Edge struct {
	Kind      EdgeKind `json:"kind"`
	From      NodeID   `json:"from"`
	To        NodeID   `json:"to,omitempty"`
	Target    string   `json:"target"`
	Qualifier string   `json:"qualifier,omitempty"`
	Line      uint32   `json:"line"`
}

// Import is one import/use/include declaration.
type Import struct {
	Path  string   `json:"path"`
	Alias string   `json:"alias,omitempty"`
	Names []string `json:"names,omitempty"`
	Line  uint32   `json:"line"`
}

// Comment is one comment as it appears in source.
type Comment struct {
	StartLine uint32 `json:"start_line"`
	EndLine   uint32 `json:"end_line"`
	Text      string `json:"text"`
}

// FileContext is the parse of one file. It is immutable once returned by a front-end.
type FileContext struct {
	Path        string    `json:"path"`
	Language    string    `json:"language"`
	ContentHash string    `json:"content_hash"`
	ModulePath  string    `json:"module_path"`
	Lines       int       `json:"lines"`
	Partial     bool      `json:"partial,omitempty"`
	Nodes       []*Node   `json:"nodes"`
	Edges       []Edge    `json:"local_edges"`
	Imports     []Import  `json:"imports,omitempty"`
	Comments    []Comment `json:"-"`
}

// Module returns the file's module node.
func (fc *FileContext) Module() *Node {
	if len(fc.Nodes) == 0 {
		return nil
	}
	return fc.Nodes[0]
}

// Enclosing returns the innermost callable whose span contains line, or nil.
func (fc *FileContext) Enclosing(line uint32) *Node {
	var best *Node
	for _, n := range fc.Nodes {
		if !n.Kind.IsCallable() || !n.Location.Contains(line) {
			continue
		}
		if best == nil || n.Location.Lines() <= best.Location.Lines() {
			best = n
		}
	}
	return best
}
