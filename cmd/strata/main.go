package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/strata/pkg/engine"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitError   = 1
	exitFatalIO = 2
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "strata",
		Usage:   "Multi-language static analysis engine",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Description: `strata parses a source tree into one unified AST and reports complexity,
dead code, duplicates, the dependency graph, self-admitted technical debt
and a ranked technical debt score.

Supports: Go, Rust, Python, TypeScript, JavaScript, Java, C, C++, C#, Ruby, PHP`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"STRATA_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging and list every warning",
			},
		},
		Commands: []*cli.Command{
			analyzeCmd(),
			initCmd(),
			configCmd(),
		},
		// main owns process exit so commands stay testable.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		color.Red("Error: %v", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var fatal *engine.FatalIOError
	if errors.As(err, &fatal) {
		return exitFatalIO
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitError
}
