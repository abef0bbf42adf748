package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/strata/internal/observability"
	"github.com/panbanda/strata/internal/output"
	"github.com/panbanda/strata/internal/progress"
	"github.com/panbanda/strata/pkg/config"
	"github.com/panbanda/strata/pkg/engine"
)

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"all"},
		Usage:     "Run every enabled pass and print the analysis summary",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, toon, markdown (default from config)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.IntFlag{
				Name:  "top",
				Usage: "Rows per technical debt table, 0 for all",
			},
			&cli.StringFlag{
				Name:  "churn",
				Usage: "Churn signal file, relative to the analyzed path",
			},
			&cli.StringFlag{
				Name:  "coverage",
				Usage: "Coverage signal file, relative to the analyzed path",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the parse cache",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Show progress bars on stderr",
			},
			&cli.StringFlag{
				Name:    "otlp-endpoint",
				Usage:   "Export traces to this OTLP gRPC endpoint",
				EnvVars: []string{"OTEL_EXPORTER_OTLP_ENDPOINT"},
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	root, err := rootPath(c)
	if err != nil {
		return err
	}
	res, err := loadConfig(c, root)
	if err != nil {
		return err
	}
	cfg := res.Config
	applyAnalyzeFlags(c, cfg)

	ctx := c.Context
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "strata",
		ServiceVersion: version,
		OTLPEndpoint:   c.String("otlp-endpoint"),
		SampleRate:     1.0,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "trace shutdown: %v\n", err)
		}
	}()

	logger := newLogger(c.App.ErrWriter, cfg.Output.Verbose)
	opts := []engine.Option{engine.WithLogger(logger)}
	if c.Bool("progress") {
		rep := progress.NewReporter(c.App.ErrWriter)
		defer rep.Close()
		opts = append(opts, engine.WithProgress(rep.Report))
	}

	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return err
	}
	if res.Source != "" {
		logger.Debug("config.loaded", "source", res.Source)
	}

	sum, err := eng.Run(ctx, root)
	if err != nil {
		return err
	}
	return writeSummary(c, cfg, sum)
}

// applyAnalyzeFlags lets explicit flags override the loaded config.
func applyAnalyzeFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}
	if c.IsSet("top") {
		cfg.TDG.Top = c.Int("top")
	}
	if c.IsSet("churn") {
		cfg.Signals.Churn = c.String("churn")
	}
	if c.IsSet("coverage") {
		cfg.Signals.Coverage = c.String("coverage")
	}
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if c.Bool("no-color") {
		cfg.Output.Color = false
	}
	if c.Bool("verbose") {
		cfg.Output.Verbose = true
	}
}

func writeSummary(c *cli.Context, cfg *config.Config, sum *engine.Summary) error {
	format := output.ParseFormat(cfg.Output.Format)
	colored := cfg.Output.Color && !color.NoColor

	var f *output.Formatter
	if path := c.String("output"); path != "" {
		var err error
		if f, err = output.NewFormatter(format, path, false); err != nil {
			return fmt.Errorf("open output: %w", err)
		}
	} else {
		f = output.NewWriterFormatter(format, c.App.Writer, colored)
	}
	defer f.Close()

	report := output.SummaryReport(sum, output.SummaryOptions{
		Top:     cfg.TDG.Top,
		Colored: f.Colored(),
		Verbose: cfg.Output.Verbose,
	})
	if format == output.FormatMarkdown && sum.Graph != nil {
		report.Sections = append(report.Sections, output.MermaidSection(sum))
	}
	if err := f.Output(report); err != nil {
		return err
	}
	if n := sum.Warnings.Len(); n > 0 && format == output.FormatText {
		fw := output.NewWriterFormatter(format, c.App.ErrWriter, colored)
		fw.Warning("%d warnings, see the Warnings section", n)
	}
	return nil
}
