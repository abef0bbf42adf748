// Package engine runs the full analysis pipeline over a source tree:
// discovery, parsing, project assembly, the analysis passes and the
// technical debt ranking.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/panbanda/strata/internal/cache"
	"github.com/panbanda/strata/internal/fileproc"
	"github.com/panbanda/strata/internal/observability"
	"github.com/panbanda/strata/internal/scanner"
	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/config"
	"github.com/panbanda/strata/pkg/parser"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/signals"
	"github.com/panbanda/strata/pkg/uast"
)

// Stats describes the work done by the most recent run. Unlike Summary it
// depends on cache state.
type Stats struct {
	Files     int           `json:"files"`
	Parsed    int           `json:"parsed"`
	CacheHits int           `json:"cache_hits"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Engine runs analyses. An Engine may be reused across runs; its parse
// cache carries over between them. Runs must not overlap.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *parser.Registry
	cache    *cache.Cache
	progress analyzer.ProgressFunc
	churn    signals.Churn
	coverage signals.Coverage

	mu    sync.Mutex
	stats Stats
}

// Option is a functional option for configuring Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry replaces the default front-end registry.
func WithRegistry(r *parser.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithCache sets the parse cache, overriding the cache configuration.
// A nil cache disables caching.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithProgress receives per-item progress of the parse and SATD stages.
func WithProgress(fn analyzer.ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithChurn supplies the churn signal, taking precedence over signals.churn.
func WithChurn(c signals.Churn) Option {
	return func(e *Engine) {
		e.churn = c
	}
}

// WithCoverage supplies the coverage signal, taking precedence over
// signals.coverage.
func WithCoverage(c signals.Coverage) Option {
	return func(e *Engine) {
		e.coverage = c
	}
}

// New validates cfg and builds an engine. A nil cfg means DefaultConfig.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		registry: parser.DefaultRegistry(),
	}
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Size)
		if err != nil {
			return nil, fmt.Errorf("create parse cache: %w", err)
		}
		e.cache = c
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Stats returns the counters of the most recent run.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Run analyzes the tree at root. Per-file failures, resolution ambiguities
// and degraded passes are reported in the summary's warnings. The returned
// error is a *FatalIOError when root cannot be read, or ctx's error when
// the run was canceled.
func (e *Engine) Run(ctx context.Context, root string) (*Summary, error) {
	ctx, span := observability.StartRun(ctx, root)
	defer span.End()
	start := time.Now()
	e.logger.Debug("pipeline.start", "root", root)

	scanned, err := e.scan(ctx, root)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	files, warnings, stats, err := e.parse(ctx, scanned)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	proj, err := e.assemble(ctx, files)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	sum := &Summary{Warnings: newWarnings()}
	sum.Warnings.ParseErrors = warnings
	sum.Warnings.Ambiguities = append(sum.Warnings.Ambiguities, proj.Ambiguities...)
	for _, s := range scanned.Skipped {
		if s.Reason == scanner.SkipSymlinkEscape {
			sum.Warnings.Skipped = append(sum.Warnings.Skipped, s)
		}
	}
	sum.Counts = count(proj, stats.Files, len(warnings))

	if err := e.analyze(ctx, root, proj, sum); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	stats.Duration = time.Since(start)
	e.mu.Lock()
	e.stats = stats
	e.mu.Unlock()

	observability.RecordItems(span, sum.Counts.Files,
		attribute.Int("strata.warnings", sum.Warnings.Len()),
		attribute.Int("strata.cache_hits", stats.CacheHits),
	)
	e.logger.Debug("pipeline.done",
		"files", sum.Counts.Files,
		"parsed", stats.Parsed,
		"cache_hits", stats.CacheHits,
		"warnings", sum.Warnings.Len(),
		"elapsed", stats.Duration,
	)
	return sum, nil
}

func (e *Engine) scan(ctx context.Context, root string) (*scanner.Result, error) {
	ctx, span := observability.StartStage(ctx, analyzer.StageScan)
	defer span.End()

	res, err := scanner.New(e.cfg.Scan,
		scanner.WithSupported(e.registry.Supports),
		scanner.WithScripts(e.registry.IsScript),
	).Scan(ctx, root)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		err = &FatalIOError{Path: root, Err: err}
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordItems(span, len(res.Files), attribute.Int("strata.skipped", len(res.Skipped)))
	e.logger.Debug("pipeline.discovered", "files", len(res.Files), "skipped", len(res.Skipped))
	return res, nil
}

// parse builds a FileContext per discovered file, consulting the cache
// first. Files the scanner refused for size or readability are reported as
// parse errors so they still count toward the file total.
func (e *Engine) parse(ctx context.Context, res *scanner.Result) ([]*uast.FileContext, []ParseWarning, Stats, error) {
	ctx, span := observability.StartStage(ctx, analyzer.StageParse)
	defer span.End()

	tracker := analyzer.NewTracker(analyzer.StageParse, e.progress)
	tracker.SetTotal(len(res.Files))

	var hits atomic.Int64
	opts := fileproc.Options{
		Workers: e.cfg.Parse.Workers,
		Timeout: time.Duration(e.cfg.Parse.TimeoutSeconds) * time.Second,
	}
	parsed, errs, err := fileproc.Map(ctx, res.Files, opts, func(ctx context.Context, f scanner.File) (*uast.FileContext, error) {
		defer tracker.Tick(f.Path)
		src, err := os.ReadFile(f.Abs)
		if err != nil {
			return nil, parser.NewParseError(f.Path, parser.ErrKindRead, err)
		}
		if e.cache != nil {
			if fc, ok := e.cache.Get(f.Path, src); ok {
				hits.Add(1)
				return fc, nil
			}
		}
		fc, err := e.registry.Parse(ctx, f.Path, src)
		if err != nil {
			return nil, err
		}
		if e.cache != nil {
			e.cache.Put(fc)
		}
		return fc, nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, nil, Stats{}, err
	}

	files := make([]*uast.FileContext, 0, len(parsed))
	warnings := make([]ParseWarning, 0)
	for i, fc := range parsed {
		if errs[i] != nil {
			pe := parser.NewParseError(res.Files[i].Path, parser.ErrKindSyntax, errs[i])
			warnings = append(warnings, ParseWarning{Path: pe.Path, Kind: pe.Kind, Message: pe.Message()})
			e.logger.Debug("parse.error", "path", pe.Path, "kind", pe.Kind, "err", pe.Err)
			continue
		}
		files = append(files, fc)
	}
	counted := len(res.Files)
	for _, s := range res.Skipped {
		switch s.Reason {
		case scanner.SkipTooLarge:
			msg := fmt.Sprintf("%d bytes exceeds max_file_size %d", s.Size, e.cfg.Scan.MaxFileSize)
			warnings = append(warnings, ParseWarning{Path: s.Path, Kind: parser.ErrKindTooLarge, Message: msg})
			counted++
		case scanner.SkipUnreadable:
			warnings = append(warnings, ParseWarning{Path: s.Path, Kind: parser.ErrKindRead, Message: "unreadable"})
			counted++
		}
	}
	sortParseWarnings(warnings)

	stats := Stats{
		Files:     counted,
		Parsed:    len(files) - int(hits.Load()),
		CacheHits: int(hits.Load()),
		Failed:    len(warnings),
	}
	observability.RecordItems(span, len(files),
		attribute.Int("strata.cache_hits", stats.CacheHits),
		attribute.Int("strata.parse_errors", stats.Failed),
	)
	e.logger.Debug("pipeline.parsed", "files", len(files), "cache_hits", stats.CacheHits, "errors", stats.Failed)
	return files, warnings, stats, nil
}

// assemble is the barrier between parsing and the passes.
func (e *Engine) assemble(ctx context.Context, files []*uast.FileContext) (*project.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, span := observability.StartStage(ctx, "assemble")
	defer span.End()

	proj := project.Assemble(files)
	observability.RecordItems(span, len(proj.Nodes),
		attribute.Int("strata.edges", len(proj.Edges)),
		attribute.Int("strata.ambiguities", len(proj.Ambiguities)),
	)
	e.logger.Debug("pipeline.assembled", "nodes", len(proj.Nodes), "edges", len(proj.Edges), "ambiguities", len(proj.Ambiguities))
	return proj, nil
}

func count(proj *project.Context, files, failed int) Counts {
	c := Counts{
		Files:       files,
		ParsedFiles: len(proj.Files),
		FailedFiles: failed,
		Functions:   len(proj.Callables()),
		Nodes:       len(proj.Nodes),
		Edges:       len(proj.Edges),
	}
	for k := range proj.Edges {
		if _, _, internal := proj.Endpoints(uint32(k)); !internal {
			c.ExternalEdges++
		}
	}
	for _, fc := range proj.Files {
		c.Lines += fc.Lines
	}
	return c
}
