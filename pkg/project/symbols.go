package project

import (
	"fmt"
	"strings"

	"github.com/panbanda/strata/pkg/uast"
)

// SymbolIndex maps names to node arena indexes. Duplicate names are kept as
// lists in arena order (path, then local ordinal).
type SymbolIndex struct {
	qualified map[string][]uint32
	short     map[string][]uint32 // Container.Name
	name      map[string][]uint32
	modules   map[string][]uint32 // module path -> module nodes
	members   map[string][]uint32 // module path -> non-module nodes
}

func newSymbolIndex() *SymbolIndex {
	return &SymbolIndex{
		qualified: make(map[string][]uint32),
		short:     make(map[string][]uint32),
		name:      make(map[string][]uint32),
		modules:   make(map[string][]uint32),
		members:   make(map[string][]uint32),
	}
}

func (s *SymbolIndex) add(i uint32, n *uast.Node, modulePath string) {
	s.qualified[n.QualifiedName] = append(s.qualified[n.QualifiedName], i)
	if n.Kind == uast.KindModule && n.Ordinal == 0 {
		s.modules[modulePath] = append(s.modules[modulePath], i)
		return
	}
	s.members[modulePath] = append(s.members[modulePath], i)
	s.name[n.Name] = append(s.name[n.Name], i)
	if n.Container != "" {
		s.short[n.ShortName()] = append(s.short[n.ShortName()], i)
	}
}

// Qualified returns every node declared under a qualified name.
func (s *SymbolIndex) Qualified(name string) []uint32 {
	return s.qualified[name]
}

// Short returns nodes whose Container.Name equals name.
func (s *SymbolIndex) Short(name string) []uint32 {
	return s.short[name]
}

// Named returns nodes with the given bare name.
func (s *SymbolIndex) Named(name string) []uint32 {
	return s.name[name]
}

// ResolutionAmbiguity records an edge whose target matched several symbols.
// The first candidate in deterministic order was chosen.
type ResolutionAmbiguity struct {
	From       uast.NodeID   `json:"from"`
	Kind       uast.EdgeKind `json:"kind"`
	Target     string        `json:"target"`
	Line       uint32        `json:"line"`
	Candidates []uast.NodeID `json:"candidates"`
	Chosen     uast.NodeID   `json:"chosen"`
}

func (a *ResolutionAmbiguity) Error() string {
	ids := make([]string, len(a.Candidates))
	for i, c := range a.Candidates {
		ids[i] = string(c)
	}
	return fmt.Sprintf("ambiguous %s target %q from %s: chose %s among [%s]",
		a.Kind, a.Target, a.From, a.Chosen, strings.Join(ids, ", "))
}
