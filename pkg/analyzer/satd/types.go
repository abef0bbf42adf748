package satd

import "github.com/panbanda/strata/pkg/uast"

// Category represents the type of technical debt.
type Category string

// String implements fmt.Stringer for toon serialization.
func (d Category) String() string {
	return string(d)
}

const (
	CategoryDesign      Category = "design"      // HACK, KLUDGE, SMELL
	CategoryDefect      Category = "defect"      // BUG, FIXME, BROKEN
	CategoryRequirement Category = "requirement" // TODO, FEAT, ENHANCEMENT
	CategoryTest        Category = "test"        // FAILING, SKIP, DISABLED
	CategoryPerformance Category = "performance" // SLOW, OPTIMIZE, PERF
	CategorySecurity    Category = "security"    // SECURITY, VULN, UNSAFE
)

// Severity represents the urgency of addressing the debt.
type Severity string

// String implements fmt.Stringer for toon serialization.
func (s Severity) String() string {
	return string(s)
}

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight returns a numeric weight for sorting and scoring.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Escalate increases severity by one level (max Critical).
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh:
		return SeverityCritical
	default:
		return s
	}
}

// Reduce decreases severity by one level (min Low).
func (s Severity) Reduce() Severity {
	switch s {
	case SeverityCritical:
		return SeverityHigh
	case SeverityHigh:
		return SeverityMedium
	case SeverityMedium:
		return SeverityLow
	default:
		return s
	}
}

// Item represents a single SATD item found in a comment.
type Item struct {
	Category    Category    `json:"category" toon:"category"`
	Severity    Severity    `json:"severity" toon:"severity"`
	File        string      `json:"file" toon:"file"`
	Line        uint32      `json:"line" toon:"line"`
	Node        uast.NodeID `json:"node,omitempty" toon:"node,omitempty"`
	Function    string      `json:"function,omitempty" toon:"function,omitempty"`
	Marker      string      `json:"marker" toon:"marker"` // TODO, FIXME, HACK, etc.
	Description string      `json:"description" toon:"description"`
	Snippet     string      `json:"snippet" toon:"snippet"`
	Sensitive   string      `json:"sensitive,omitempty" toon:"sensitive,omitempty"`
	ContextHash string      `json:"context_hash" toon:"context_hash"` // BLAKE3 hash for identity tracking
}

// Analysis represents the full SATD analysis result.
type Analysis struct {
	Items              []Item  `json:"items"`
	Summary            Summary `json:"summary"`
	TotalFilesAnalyzed int     `json:"total_files_analyzed"`
	FilesWithDebt      int     `json:"files_with_debt"`
}

// Summary provides aggregate statistics.
type Summary struct {
	TotalItems int            `json:"total_items"`
	BySeverity map[string]int `json:"by_severity"`
	ByCategory map[string]int `json:"by_category"`
	ByFile     map[string]int `json:"by_file,omitempty"`
}

// NewSummary creates an initialized summary.
func NewSummary() Summary {
	return Summary{
		BySeverity: make(map[string]int),
		ByCategory: make(map[string]int),
		ByFile:     make(map[string]int),
	}
}

// AddItem updates the summary with a new debt item.
func (s *Summary) AddItem(item Item) {
	s.TotalItems++
	s.BySeverity[string(item.Severity)]++
	s.ByCategory[string(item.Category)]++
	s.ByFile[item.File]++
}

// Weight sums the severity weights of items in file whose line falls in
// [start, end]. A zero end covers the whole file.
func (a *Analysis) Weight(file string, start, end uint32) float64 {
	if a == nil {
		return 0
	}
	var total float64
	for _, it := range a.Items {
		if it.File != file {
			continue
		}
		if end == 0 || (it.Line >= start && it.Line <= end) {
			total += float64(it.Severity.Weight())
		}
	}
	return total
}

// SiteContext describes where a comment sits, for severity adjustment.
type SiteContext struct {
	TestFile   bool
	Security   bool
	Sensitive  string
	Complexity uint32
}

// Config holds SATD detection settings.
type Config struct {
	Strict         bool `koanf:"strict" toml:"strict"`
	SkipTests      bool `koanf:"skip_tests" toml:"skip_tests"`
	IncludeVendor  bool `koanf:"include_vendor" toml:"include_vendor"`
	ProximityLines int  `koanf:"proximity_lines" toml:"proximity_lines"`
}

// DefaultConfig returns the default detection settings.
func DefaultConfig() Config {
	return Config{ProximityLines: 3}
}
