package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/strata/pkg/config"
)

// rootPath returns the analysis root from the first argument, defaulting to ".".
func rootPath(c *cli.Context) (string, error) {
	root := "."
	if c.Args().Len() > 1 {
		return "", fmt.Errorf("expected one path, got %d", c.Args().Len())
	}
	if c.Args().Len() == 1 {
		root = c.Args().First()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", root, err)
	}
	return abs, nil
}

// loadConfig loads --config when given, otherwise searches dir.
func loadConfig(c *cli.Context, dir string) (*config.LoadResult, error) {
	if path := c.String("config"); path != "" {
		return config.LoadConfig(config.WithPath(path))
	}
	return config.LoadConfig(config.WithDir(dir))
}

// newLogger writes text logs to w, at debug level when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
