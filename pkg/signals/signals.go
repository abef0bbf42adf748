// Package signals supplies externally computed per-range metrics, such as
// change frequency or uncovered lines, to the debt scorer.
package signals

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Churn reports how often a line range changed.
type Churn interface {
	Churn(path string, start, end uint32) float64
}

// Coverage reports the uncovered percentage of a line range.
type Coverage interface {
	Gap(path string, start, end uint32) float64
}

// Entry is one measured line range.
type Entry struct {
	Path  string  `json:"path" yaml:"path"`
	Start uint32  `json:"start" yaml:"start"`
	End   uint32  `json:"end" yaml:"end"`
	Value float64 `json:"value" yaml:"value"`
}

// Kind names what a signal file measures.
type Kind string

const (
	KindChurn    Kind = "churn"
	KindCoverage Kind = "coverage"
)

// File is the on-disk signal document.
type File struct {
	Kind    Kind    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// RangeSignal answers range queries over a fixed set of entries. It serves
// both as a churn and a coverage source.
type RangeSignal struct {
	Kind   Kind
	byPath map[string][]Entry
}

var (
	_ Churn    = (*RangeSignal)(nil)
	_ Coverage = (*RangeSignal)(nil)
)

// NewRangeSignal indexes entries by path. Entries whose end precedes their
// start are swapped into order.
func NewRangeSignal(entries []Entry) *RangeSignal {
	s := &RangeSignal{byPath: make(map[string][]Entry)}
	for _, e := range entries {
		if e.End < e.Start {
			e.Start, e.End = e.End, e.Start
		}
		p := normalizePath(e.Path)
		s.byPath[p] = append(s.byPath[p], e)
	}
	for p := range s.byPath {
		slices.SortStableFunc(s.byPath[p], func(a, b Entry) int {
			if a.Start != b.Start {
				return int(a.Start) - int(b.Start)
			}
			return int(a.End) - int(b.End)
		})
	}
	return s
}

// Len returns the number of entries.
func (s *RangeSignal) Len() int {
	n := 0
	for _, es := range s.byPath {
		n += len(es)
	}
	return n
}

// Churn sums the values of every entry overlapping [start, end].
func (s *RangeSignal) Churn(p string, start, end uint32) float64 {
	if s == nil {
		return 0
	}
	var total float64
	for _, e := range s.byPath[normalizePath(p)] {
		if overlap(e, start, end) > 0 {
			total += e.Value
		}
	}
	return total
}

// Gap is the mean of overlapping entry values weighted by the number of
// shared lines. Ranges without data have no gap.
func (s *RangeSignal) Gap(p string, start, end uint32) float64 {
	if s == nil {
		return 0
	}
	var sum, weight float64
	for _, e := range s.byPath[normalizePath(p)] {
		if n := overlap(e, start, end); n > 0 {
			sum += e.Value * float64(n)
			weight += float64(n)
		}
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func overlap(e Entry, start, end uint32) uint32 {
	if end < start {
		start, end = end, start
	}
	lo, hi := max(e.Start, start), min(e.End, end)
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

func normalizePath(p string) string {
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
}

//go:embed schema.json
var schemaJSON []byte

var schema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("signals: bad embedded schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("signals.json", doc); err != nil {
		panic(fmt.Sprintf("signals: bad embedded schema: %v", err))
	}
	return c.MustCompile("signals.json")
}

// Load reads a signal file. The format follows the extension: .yaml and .yml
// are YAML, everything else is JSON.
func Load(filename string) (*RangeSignal, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading signal file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		s, err := ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		return s, nil
	default:
		s, err := ParseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		return s, nil
	}
}

// ParseJSON validates and decodes a JSON signal document.
func ParseJSON(data []byte) (*RangeSignal, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing signal json: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid signal file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding signal json: %w", err)
	}
	return f.signal(), nil
}

// ParseYAML validates and decodes a YAML signal document.
func ParseYAML(data []byte) (*RangeSignal, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing signal yaml: %w", err)
	}
	// Re-encode so the validator sees JSON value types.
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing signal yaml: %w", err)
	}
	return ParseJSON(asJSON)
}

func (f File) signal() *RangeSignal {
	s := NewRangeSignal(f.Entries)
	s.Kind = f.Kind
	return s
}
