package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/panbanda/strata/internal/observability"
	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/analyzer/complexity"
	"github.com/panbanda/strata/pkg/analyzer/deadcode"
	"github.com/panbanda/strata/pkg/analyzer/duplicates"
	"github.com/panbanda/strata/pkg/analyzer/graph"
	"github.com/panbanda/strata/pkg/analyzer/satd"
	"github.com/panbanda/strata/pkg/analyzer/tdg"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/signals"
)

// Pass names, in the order their warnings are reported.
const (
	PassComplexity = "complexity"
	PassDeadCode   = "dead_code"
	PassDuplicates = "duplicates"
	PassGraph      = "graph"
	PassSATD       = "satd"
	PassTDG        = "tdg"
)

// passResult is what one pass hands back to the barrier.
type passResult struct {
	name     string
	err      error
	degraded []analyzer.PassDegraded
}

// analyze runs the independent passes concurrently, then the TDG scorer
// over their results. Each pass writes only its own summary section.
func (e *Engine) analyze(ctx context.Context, root string, proj *project.Context, sum *Summary) error {
	ctx, span := observability.StartStage(ctx, "analyze")
	defer span.End()

	enabled := e.cfg.Analysis
	passes := []struct {
		name string
		on   bool
		run  func(context.Context) ([]analyzer.PassDegraded, error)
	}{
		{PassComplexity, enabled.Complexity, func(ctx context.Context) ([]analyzer.PassDegraded, error) {
			r, err := complexity.New(complexity.WithThresholds(e.cfg.Complexity)).Analyze(ctx, proj)
			sum.Complexity = r
			return nil, err
		}},
		{PassDeadCode, enabled.DeadCode, func(ctx context.Context) ([]analyzer.PassDegraded, error) {
			r, err := e.deadCode().Analyze(ctx, proj)
			sum.DeadCode = r
			return nil, err
		}},
		{PassDuplicates, enabled.Duplicates, func(ctx context.Context) ([]analyzer.PassDegraded, error) {
			r, err := duplicates.New(duplicates.WithConfig(e.cfg.Duplicates)).Analyze(ctx, proj)
			if err != nil {
				return nil, err
			}
			sum.Duplicates = r
			return r.Degraded, nil
		}},
		{PassGraph, enabled.Graph, func(ctx context.Context) ([]analyzer.PassDegraded, error) {
			r, err := graph.New(graph.WithConfig(e.cfg.Graph)).Analyze(ctx, proj)
			if err != nil {
				return nil, err
			}
			sum.Graph = r
			if r.Filters.Pruned > 0 {
				return []analyzer.PassDegraded{*analyzer.Degraded(PassGraph, "lowest-centrality nodes pruned to max_nodes", r.Filters.Pruned)}, nil
			}
			return nil, nil
		}},
		{PassSATD, enabled.SATD, func(ctx context.Context) ([]analyzer.PassDegraded, error) {
			ctx = analyzer.WithTracker(ctx, analyzer.NewTracker(analyzer.StageSATD, e.progress))
			r, err := satd.New(satd.WithConfig(e.cfg.SATD)).Analyze(ctx, proj)
			sum.SATD = r
			return nil, err
		}},
	}

	results := make([]passResult, len(passes))
	var wg conc.WaitGroup
	for i, p := range passes {
		if !p.on {
			continue
		}
		wg.Go(func() {
			results[i] = e.runPass(ctx, p.name, p.run)
		})
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		observability.RecordError(span, err)
		return err
	}

	for _, r := range results {
		sum.Warnings.Degraded = append(sum.Warnings.Degraded, r.degraded...)
		if r.err != nil {
			sum.Warnings.Degraded = append(sum.Warnings.Degraded, *analyzer.Degraded(r.name, r.err.Error(), 0))
			e.clear(r.name, sum)
		}
	}

	if !enabled.TDG {
		return nil
	}
	r := e.runPass(ctx, PassTDG, func(ctx context.Context) ([]analyzer.PassDegraded, error) {
		return e.scoreDebt(ctx, root, proj, sum)
	})
	if err := ctx.Err(); err != nil {
		observability.RecordError(span, err)
		return err
	}
	sum.Warnings.Degraded = append(sum.Warnings.Degraded, r.degraded...)
	if r.err != nil {
		sum.Warnings.Degraded = append(sum.Warnings.Degraded, *analyzer.Degraded(PassTDG, r.err.Error(), 0))
		sum.TDG = nil
	}
	return nil
}

func (e *Engine) runPass(ctx context.Context, name string, run func(context.Context) ([]analyzer.PassDegraded, error)) passResult {
	ctx, span := observability.StartPass(ctx, name)
	defer span.End()

	start := time.Now()
	degraded, err := run(ctx)
	observability.RecordError(span, err)
	e.logger.Debug("pass.timing", "pass", name, "elapsed", time.Since(start), "degraded", len(degraded))
	if err != nil && ctx.Err() == nil {
		e.logger.Warn("pass.failed", "pass", name, "err", err)
	}
	return passResult{name: name, err: err, degraded: degraded}
}

// clear drops the section of a failed pass so no partial result leaks.
func (e *Engine) clear(name string, sum *Summary) {
	switch name {
	case PassComplexity:
		sum.Complexity = nil
	case PassDeadCode:
		sum.DeadCode = nil
	case PassDuplicates:
		sum.Duplicates = nil
	case PassGraph:
		sum.Graph = nil
	case PassSATD:
		sum.SATD = nil
	}
}

func (e *Engine) deadCode() *deadcode.Analyzer {
	c := e.cfg.DeadCode
	return deadcode.New(
		deadcode.WithEntries(c.Entries...),
		deadcode.WithTestGlobs(c.TestGlobs...),
		deadcode.WithExclude(c.Exclude...),
		deadcode.WithStrict(c.Strict),
		deadcode.WithPublicAPI(c.PublicAPI),
		deadcode.WithConfidence(c.MinConfidence),
	)
}

// scoreDebt runs the TDG scorer over the finished pass sections.
func (e *Engine) scoreDebt(ctx context.Context, root string, proj *project.Context, sum *Summary) ([]analyzer.PassDegraded, error) {
	in := tdg.Input{
		Project:    proj,
		Complexity: sum.Complexity,
		Duplicates: sum.Duplicates,
		SATD:       sum.SATD,
		Churn:      e.churn,
		Coverage:   e.coverage,
	}

	var degraded []analyzer.PassDegraded
	if in.Churn == nil && e.cfg.Signals.Churn != "" {
		s, err := signals.Load(resolve(root, e.cfg.Signals.Churn))
		if err != nil {
			degraded = append(degraded, *analyzer.Degraded(PassTDG, fmt.Sprintf("churn signal ignored: %v", err), 0))
		} else {
			in.Churn = s
		}
	}
	if in.Coverage == nil && e.cfg.Signals.Coverage != "" {
		s, err := signals.Load(resolve(root, e.cfg.Signals.Coverage))
		if err != nil {
			degraded = append(degraded, *analyzer.Degraded(PassTDG, fmt.Sprintf("coverage signal ignored: %v", err), 0))
		} else {
			in.Coverage = s
		}
	}

	r, err := tdg.New(tdg.WithWeights(e.cfg.TDG.Weights)).Analyze(ctx, in)
	if err != nil {
		return degraded, err
	}
	sum.TDG = r
	return degraded, nil
}

// resolve interprets a relative signal path against the analysis root.
func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
