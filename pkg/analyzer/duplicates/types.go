package duplicates

import (
	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/uast"
)

// Type represents the type of code clone detected.
type Type string

const (
	Type1 Type = "type1" // Exact (whitespace and comments only differ)
	Type2 Type = "type2" // Renamed (identifiers/literals differ)
	Type3 Type = "type3" // Near-miss (statements added/removed)
)

// String returns the string representation.
func (t Type) String() string {
	return string(t)
}

// Instance represents a single occurrence within a clone group.
type Instance struct {
	ID             uast.NodeID `json:"id"`
	Name           string      `json:"name"`
	File           string      `json:"file"`
	StartLine      uint32      `json:"start_line"`
	EndLine        uint32      `json:"end_line"`
	Lines          int         `json:"lines"`
	Tokens         int         `json:"tokens"`
	NormalizedHash uint64      `json:"normalized_hash"`
}

// Group represents a maximal set of similar code blocks.
type Group struct {
	ID                uint64     `json:"id"`
	Type              Type       `json:"type"`
	Representative    Instance   `json:"representative"`
	Instances         []Instance `json:"instances"`
	TotalLines        int        `json:"total_lines"`
	TotalTokens       int        `json:"total_tokens"`
	MinSimilarity     float64    `json:"min_similarity"`
	AverageSimilarity float64    `json:"average_similarity"`
}

// Analysis represents the full duplicate detection result.
type Analysis struct {
	Groups     []Group                 `json:"groups"`
	FileRatios map[string]float64      `json:"file_ratios"`
	Summary    Summary                 `json:"summary"`
	Degraded   []analyzer.PassDegraded `json:"degraded,omitempty"`
	Threshold  float64                 `json:"threshold"`
}

// GroupOf returns the group containing the block with the given id.
func (a *Analysis) GroupOf(id uast.NodeID) (*Group, bool) {
	for i := range a.Groups {
		for _, inst := range a.Groups[i].Instances {
			if inst.ID == id {
				return &a.Groups[i], true
			}
		}
	}
	return nil, false
}

// Summary provides aggregate statistics.
type Summary struct {
	TotalBlocks      int            `json:"total_blocks"`
	SkippedBlocks    int            `json:"skipped_blocks"`
	TotalGroups      int            `json:"total_groups"`
	TotalInstances   int            `json:"total_instances"`
	Type1Count       int            `json:"type1_count"`
	Type2Count       int            `json:"type2_count"`
	Type3Count       int            `json:"type3_count"`
	DuplicatedLines  int            `json:"duplicated_lines"`
	TotalLines       int            `json:"total_lines"`
	DuplicationRatio float64        `json:"duplication_ratio"`
	FileOccurrences  map[string]int `json:"file_occurrences"`
	AvgSimilarity    float64        `json:"avg_similarity"`
	P50Similarity    float64        `json:"p50_similarity"`
	P95Similarity    float64        `json:"p95_similarity"`
	Hotspots         []Hotspot      `json:"hotspots,omitempty"`
}

// Hotspot represents a file with high duplication.
type Hotspot struct {
	File            string  `json:"file"`
	DuplicateLines  int     `json:"duplicate_lines"`
	CloneGroupCount int     `json:"clone_group_count"`
	Severity        float64 `json:"severity"`
}

// NewSummary creates an initialized summary.
func NewSummary() Summary {
	return Summary{
		FileOccurrences: make(map[string]int),
	}
}

// AddGroup updates the summary with a new group.
func (s *Summary) AddGroup(g Group) {
	s.TotalGroups++
	s.TotalInstances += len(g.Instances)
	for _, inst := range g.Instances {
		s.FileOccurrences[inst.File]++
	}

	switch g.Type {
	case Type1:
		s.Type1Count++
	case Type2:
		s.Type2Count++
	case Type3:
		s.Type3Count++
	}
}

// Config holds duplicate detection configuration.
type Config struct {
	MinTokens           int     `koanf:"min_tokens" toml:"min_tokens"`
	MaxTokens           int     `koanf:"max_tokens" toml:"max_tokens"`
	ShingleSize         int     `koanf:"shingle_size" toml:"shingle_size"`
	SimilarityThreshold float64 `koanf:"similarity_threshold" toml:"similarity_threshold"`
	MaxBucketSize       int     `koanf:"max_bucket_size" toml:"max_bucket_size"`
	MinGroupSize        int     `koanf:"min_group_size" toml:"min_group_size"`
}

// DefaultConfig returns the default detection settings.
func DefaultConfig() Config {
	return Config{
		MinTokens:           50,
		MaxTokens:           20000,
		ShingleSize:         5,
		SimilarityThreshold: 0.85,
		MaxBucketSize:       1000,
		MinGroupSize:        2,
	}
}
