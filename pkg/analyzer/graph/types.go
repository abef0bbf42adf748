package graph

import (
	"strings"

	"github.com/panbanda/strata/pkg/uast"
)

// Node represents a node in the dependency graph.
type Node struct {
	ID         string   `json:"id" toon:"id"`
	Name       string   `json:"name" toon:"name"`
	Type       NodeType `json:"type" toon:"type"`
	File       string   `json:"file" toon:"file"`
	Line       uint32   `json:"line" toon:"line"`
	InDegree   int      `json:"in_degree" toon:"in_degree"`
	OutDegree  int      `json:"out_degree" toon:"out_degree"`
	Centrality float64  `json:"centrality" toon:"centrality"`
}

// NodeType represents the type of graph node.
type NodeType string

const (
	NodeFile     NodeType = "file"
	NodeFunction NodeType = "function"
	NodeMethod   NodeType = "method"
	NodeClass    NodeType = "class"
	NodeTrait    NodeType = "trait"
	NodeEnum     NodeType = "enum"
)

func nodeType(k uast.NodeKind) NodeType {
	switch k {
	case uast.KindMethod:
		return NodeMethod
	case uast.KindClass:
		return NodeClass
	case uast.KindTrait:
		return NodeTrait
	case uast.KindEnum:
		return NodeEnum
	case uast.KindModule:
		return NodeFile
	default:
		return NodeFunction
	}
}

// Edge represents a dependency between nodes.
type Edge struct {
	From     string   `json:"from" toon:"from"`
	To       string   `json:"to" toon:"to"`
	Type     EdgeType `json:"type" toon:"type"`
	Weight   int      `json:"weight" toon:"weight"`
	BackEdge bool     `json:"back_edge,omitempty" toon:"back_edge,omitempty"`
}

// EdgeType represents the type of dependency.
type EdgeType string

const (
	EdgeImport    EdgeType = "import"
	EdgeCall      EdgeType = "call"
	EdgeInherit   EdgeType = "inherit"
	EdgeImplement EdgeType = "implement"
	EdgeUses      EdgeType = "uses"
)

func edgeType(k uast.EdgeKind) EdgeType {
	switch k {
	case uast.EdgeImports:
		return EdgeImport
	case uast.EdgeInherits:
		return EdgeInherit
	case uast.EdgeImplements:
		return EdgeImplement
	case uast.EdgeUses:
		return EdgeUses
	default:
		return EdgeCall
	}
}

// edgeRank orders edge types when several relations collapse into one
// file-scope edge. Lower wins.
func edgeRank(t EdgeType) int {
	switch t {
	case EdgeImport:
		return 0
	case EdgeInherit:
		return 1
	case EdgeImplement:
		return 2
	case EdgeCall:
		return 3
	default:
		return 4
	}
}

// Filters records what was removed to produce the emitted graph.
type Filters struct {
	Scope           Scope      `json:"scope" toon:"scope"`
	ExternalDropped int        `json:"external_dropped" toon:"external_dropped"`
	MaxDepth        int        `json:"max_depth" toon:"max_depth"`
	DepthTruncated  int        `json:"depth_truncated" toon:"depth_truncated"`
	MaxNodes        int        `json:"max_nodes" toon:"max_nodes"`
	Pruned          int        `json:"pruned" toon:"pruned"`
	Centrality      Centrality `json:"centrality" toon:"centrality"`
}

// Summary provides aggregate statistics for the emitted graph.
type Summary struct {
	TotalNodes int     `json:"total_nodes" toon:"total_nodes"`
	TotalEdges int     `json:"total_edges" toon:"total_edges"`
	BackEdges  int     `json:"back_edges" toon:"back_edges"`
	AvgDegree  float64 `json:"avg_degree" toon:"avg_degree"`
	Density    float64 `json:"density" toon:"density"`
	Components int     `json:"components" toon:"components"`
	CycleCount int     `json:"cycle_count" toon:"cycle_count"`
	LargestSCC int     `json:"largest_scc" toon:"largest_scc"`
	IsCyclic   bool    `json:"is_cyclic" toon:"is_cyclic"`
}

// DependencyGraph is the filtered graph. Nodes are in topological order of
// the graph without its back edges.
type DependencyGraph struct {
	Nodes   []Node     `json:"nodes" toon:"nodes"`
	Edges   []Edge     `json:"edges" toon:"edges"`
	Cycles  [][]string `json:"cycles" toon:"cycles"`
	Filters Filters    `json:"filters" toon:"filters"`
	Summary Summary    `json:"summary" toon:"summary"`
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		Nodes:  make([]Node, 0),
		Edges:  make([]Edge, 0),
		Cycles: make([][]string, 0),
	}
}

// Node returns the node with the given id.
func (g *DependencyGraph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// ToMermaid renders the graph as a Mermaid flowchart. Back edges are drawn
// dotted.
func (g *DependencyGraph) ToMermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, node := range g.Nodes {
		label := node.Name
		if label == "" {
			label = node.ID
		}
		b.WriteString("    " + SanitizeMermaidID(node.ID) + "[\"" + EscapeMermaidLabel(label) + "\"]\n")
	}
	for _, edge := range g.Edges {
		arrow := edgeArrow(edge.Type)
		if edge.BackEdge {
			arrow = "-.->|cycle|"
		}
		b.WriteString("    " + SanitizeMermaidID(edge.From) + " " + arrow + " " + SanitizeMermaidID(edge.To) + "\n")
	}
	return b.String()
}

// edgeArrow returns the Mermaid arrow notation for an edge type.
func edgeArrow(t EdgeType) string {
	switch t {
	case EdgeCall:
		return "-->|calls|"
	case EdgeImport:
		return "-->|imports|"
	case EdgeInherit:
		return "-->|inherits|"
	case EdgeImplement:
		return "-->|implements|"
	case EdgeUses:
		return "---"
	default:
		return "-->"
	}
}

// SanitizeMermaidID makes an ID safe for Mermaid diagrams.
func SanitizeMermaidID(id string) string {
	if id == "" {
		return "empty"
	}
	var result []byte
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	// Ensure ID doesn't start with a number
	if result[0] >= '0' && result[0] <= '9' {
		result = append([]byte{'n'}, result...)
	}
	return string(result)
}

// EscapeMermaidLabel escapes special characters in labels for Mermaid.
func EscapeMermaidLabel(s string) string {
	var result []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '&':
			result = append(result, "&amp;"...)
		case '"':
			result = append(result, "&quot;"...)
		case '<':
			result = append(result, "&lt;"...)
		case '>':
			result = append(result, "&gt;"...)
		case '|':
			result = append(result, "&#124;"...)
		case '[':
			result = append(result, "&#91;"...)
		case ']':
			result = append(result, "&#93;"...)
		case '{':
			result = append(result, "&#123;"...)
		case '}':
			result = append(result, "&#125;"...)
		case '\n':
			result = append(result, "<br/>"...)
		default:
			result = append(result, c)
		}
	}
	return string(result)
}

// Scope determines the granularity of graph nodes.
type Scope string

const (
	ScopeFile     Scope = "file"
	ScopeFunction Scope = "function"
)

// Centrality selects the measure used to prune oversize graphs.
type Centrality string

const (
	CentralityPageRank    Centrality = "pagerank"
	CentralityBetweenness Centrality = "betweenness"
	CentralityDegree      Centrality = "degree"
)

// Config holds graph construction settings.
type Config struct {
	Scope      Scope      `koanf:"scope" toml:"scope"`
	MaxDepth   int        `koanf:"max_depth" toml:"max_depth"`
	MaxNodes   int        `koanf:"max_nodes" toml:"max_nodes"`
	Centrality Centrality `koanf:"centrality" toml:"centrality"`
	Entries    []string   `koanf:"entries" toml:"entries"`
}

// DefaultConfig returns the default graph settings: function scope, no depth
// bound, at most 500 nodes kept by PageRank.
func DefaultConfig() Config {
	return Config{
		Scope:      ScopeFunction,
		MaxNodes:   500,
		Centrality: CentralityPageRank,
	}
}
