// Package config loads strata settings from TOML, YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/strata/pkg/analyzer/complexity"
	"github.com/panbanda/strata/pkg/analyzer/duplicates"
	"github.com/panbanda/strata/pkg/analyzer/graph"
	"github.com/panbanda/strata/pkg/analyzer/satd"
	"github.com/panbanda/strata/pkg/analyzer/tdg"
)

// Config holds all configuration options for strata.
type Config struct {
	// Which passes run
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// File discovery
	Scan ScanConfig `koanf:"scan" toml:"scan"`

	// Parse stage
	Parse ParseConfig `koanf:"parse" toml:"parse"`

	// Parse cache
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Pass settings
	Complexity complexity.Thresholds `koanf:"complexity" toml:"complexity"`
	DeadCode   DeadCodeConfig        `koanf:"dead_code" toml:"dead_code"`
	Duplicates duplicates.Config     `koanf:"duplicates" toml:"duplicates"`
	Graph      graph.Config          `koanf:"graph" toml:"graph"`
	SATD       satd.Config           `koanf:"satd" toml:"satd"`
	TDG        TDGConfig             `koanf:"tdg" toml:"tdg"`

	// External signal files
	Signals SignalsConfig `koanf:"signals" toml:"signals"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`
}

// AnalysisConfig controls which passes run. A disabled pass is absent from
// the summary.
type AnalysisConfig struct {
	Complexity bool `koanf:"complexity" toml:"complexity"`
	DeadCode   bool `koanf:"dead_code" toml:"dead_code"`
	Duplicates bool `koanf:"duplicates" toml:"duplicates"`
	Graph      bool `koanf:"graph" toml:"graph"`
	SATD       bool `koanf:"satd" toml:"satd"`
	TDG        bool `koanf:"tdg" toml:"tdg"`
}

// ScanConfig controls which files are analyzed.
type ScanConfig struct {
	Include     []string `koanf:"include" toml:"include"`
	Exclude     []string `koanf:"exclude" toml:"exclude"`
	ExcludeDirs []string `koanf:"exclude_dirs" toml:"exclude_dirs"`
	Gitignore   bool     `koanf:"gitignore" toml:"gitignore"`
	MaxFileSize int64    `koanf:"max_file_size" toml:"max_file_size"` // bytes, 0 = no limit
}

// ParseConfig controls the parse stage.
type ParseConfig struct {
	Workers        int `koanf:"workers" toml:"workers"` // 0 = 2x NumCPU
	TimeoutSeconds int `koanf:"timeout_seconds" toml:"timeout_seconds"`
}

// CacheConfig controls the parse cache.
type CacheConfig struct {
	Enabled bool `koanf:"enabled" toml:"enabled"`
	Size    int  `koanf:"size" toml:"size"` // entries
}

// DeadCodeConfig controls entry-point selection for reachability.
type DeadCodeConfig struct {
	Entries       []string `koanf:"entries" toml:"entries"`
	TestGlobs     []string `koanf:"test_globs" toml:"test_globs"`
	Exclude       []string `koanf:"exclude" toml:"exclude"`
	Strict        bool     `koanf:"strict" toml:"strict"`
	PublicAPI     bool     `koanf:"public_api" toml:"public_api"`
	MinConfidence float64  `koanf:"min_confidence" toml:"min_confidence"`
}

// TDGConfig controls the composite score.
type TDGConfig struct {
	Weights tdg.Weights `koanf:"weights" toml:"weights"`
	Top     int         `koanf:"top" toml:"top"` // 0 = all
}

// SignalsConfig points at optional churn and coverage files.
type SignalsConfig struct {
	Churn    string `koanf:"churn" toml:"churn"`
	Coverage string `koanf:"coverage" toml:"coverage"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format"` // text, json, toon, markdown
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// DefaultExcludeDirs are skipped during discovery unless overridden.
var DefaultExcludeDirs = []string{
	".git",
	".hg",
	".svn",
	".strata",
	"vendor",
	"node_modules",
	"dist",
	"build",
	"target",
	"__pycache__",
	".venv",
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Complexity: true,
			DeadCode:   true,
			Duplicates: true,
			Graph:      true,
			SATD:       true,
			TDG:        true,
		},
		Scan: ScanConfig{
			Include:     []string{},
			Exclude:     []string{"**/*.min.js", "**/*.min.css"},
			ExcludeDirs: append([]string(nil), DefaultExcludeDirs...),
			Gitignore:   true,
			MaxFileSize: 1 << 20,
		},
		Parse: ParseConfig{
			TimeoutSeconds: 10,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    4096,
		},
		Complexity: complexity.DefaultThresholds(),
		DeadCode: DeadCodeConfig{
			Entries:       []string{},
			TestGlobs:     []string{},
			Exclude:       []string{},
			PublicAPI:     true,
			MinConfidence: 0,
		},
		Duplicates: duplicates.DefaultConfig(),
		Graph:      graph.DefaultConfig(),
		SATD:       satd.DefaultConfig(),
		TDG: TDGConfig{
			Weights: tdg.DefaultWeights(),
			Top:     20,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Output.Format {
	case "text", "json", "toon", "markdown":
	default:
		errs = append(errs, fmt.Errorf("output.format must be text, json, toon or markdown, got %q", c.Output.Format))
	}
	if c.Scan.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("scan.max_file_size must be >= 0"))
	}
	for _, p := range append(append([]string{}, c.Scan.Include...), c.Scan.Exclude...) {
		if _, err := doublestar.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("scan: invalid glob %q: %w", p, err))
		}
	}
	if c.Parse.Workers < 0 {
		errs = append(errs, fmt.Errorf("parse.workers must be >= 0"))
	}
	if c.Parse.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("parse.timeout_seconds must be >= 0"))
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache.size must be > 0 when the cache is enabled"))
	}
	if c.DeadCode.MinConfidence < 0 || c.DeadCode.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("dead_code.min_confidence must be in [0, 1]"))
	}
	if t := c.Duplicates.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("duplicates.similarity_threshold must be in (0, 1]"))
	}
	if c.Duplicates.ShingleSize <= 0 {
		errs = append(errs, fmt.Errorf("duplicates.shingle_size must be > 0"))
	}
	if c.Duplicates.MaxTokens > 0 && c.Duplicates.MaxTokens < c.Duplicates.MinTokens {
		errs = append(errs, fmt.Errorf("duplicates.max_tokens must be >= min_tokens"))
	}
	switch c.Graph.Scope {
	case graph.ScopeFunction, graph.ScopeFile:
	default:
		errs = append(errs, fmt.Errorf("graph.scope must be function or file, got %q", c.Graph.Scope))
	}
	switch c.Graph.Centrality {
	case graph.CentralityPageRank, graph.CentralityBetweenness, graph.CentralityDegree:
	default:
		errs = append(errs, fmt.Errorf("graph.centrality must be pagerank, betweenness or degree, got %q", c.Graph.Centrality))
	}
	if c.Graph.MaxDepth < 0 || c.Graph.MaxNodes < 0 {
		errs = append(errs, fmt.Errorf("graph.max_depth and graph.max_nodes must be >= 0"))
	}
	if c.SATD.ProximityLines < 0 {
		errs = append(errs, fmt.Errorf("satd.proximity_lines must be >= 0"))
	}
	if c.Analysis.TDG {
		if err := c.TDG.Weights.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadResult is a loaded configuration and the file it came from. Source is
// empty when defaults were used.
type LoadResult struct {
	Config *Config
	Source string
}

type loadOptions struct {
	path string
	dir  string
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads exactly this file instead of searching.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) {
		o.path = path
	}
}

// WithDir searches for a config file under dir instead of the working directory.
func WithDir(dir string) LoadOption {
	return func(o *loadOptions) {
		o.dir = dir
	}
}

// SearchPaths are the config locations tried in order, relative to the
// search directory.
var SearchPaths = []string{
	"strata.toml",
	"strata.yaml",
	"strata.yml",
	"strata.json",
	".strata/strata.toml",
}

// LoadConfig loads and validates a configuration. An explicit path must
// exist; otherwise the first search path found wins, falling back to defaults.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	o := loadOptions{dir: "."}
	for _, opt := range opts {
		opt(&o)
	}

	path := o.path
	if path == "" {
		for _, name := range SearchPaths {
			candidate := filepath.Join(o.dir, name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Source: path}, nil
}

// Load loads configuration from a file over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	// ZeroFields makes a list in the file replace the default list instead
	// of being merged into it element by element.
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           cfg,
			WeaklyTypedInput: true,
			ZeroFields:       true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault searches the working directory and returns defaults when no
// usable config file is found.
func LoadOrDefault() *Config {
	res, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return res.Config
}
