package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/strata/pkg/config"
	"github.com/panbanda/strata/pkg/parser"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func paths(res *Result) []string {
	out := make([]string, len(res.Files))
	for i, f := range res.Files {
		out[i] = f.Path
	}
	return out
}

func scan(t *testing.T, cfg config.ScanConfig, root string) *Result {
	t.Helper()
	res, err := New(cfg).Scan(context.Background(), root)
	require.NoError(t, err)
	return res
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":          "package main\n",
		"lib.go":           "package lib\n",
		"util/helper.go":   "package util\n",
		"util/helper.py":   "# python\n",
		"internal/core.rs": "fn main() {}\n",
		"README.md":        "# readme\n",
		"data.json":        "{}\n",
	})

	res := scan(t, config.DefaultConfig().Scan, root)
	assert.Equal(t, []string{"internal/core.rs", "lib.go", "main.go", "util/helper.go", "util/helper.py"}, paths(res))
	assert.Empty(t, res.Skipped)
	assert.Equal(t, int64(len("package main\n")), res.Files[2].Size)
	assert.True(t, filepath.IsAbs(res.Files[0].Abs))
}

func TestScan_ExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":                  "package main\n",
		"vendor/dep/dep.go":        "package dep\n",
		"node_modules/x/index.js":  "module.exports = 1\n",
		"src/__pycache__/mod.py":   "x = 1\n",
		"src/app.py":               "x = 1\n",
		".git/hooks/pre-commit.py": "x = 1\n",
	})

	res := scan(t, config.DefaultConfig().Scan, root)
	assert.Equal(t, []string{"main.go", "src/app.py"}, paths(res))
}

func TestScan_Globs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"cmd/main.go":          "package main\n",
		"pkg/a/a.go":           "package a\n",
		"pkg/a/a_generated.go": "package a\n",
		"web/app.min.js":       "x\n",
		"web/app.js":           "x\n",
	})

	cfg := config.DefaultConfig().Scan
	cfg.Exclude = append(cfg.Exclude, "**/*_generated.go")
	res := scan(t, cfg, root)
	assert.Equal(t, []string{"cmd/main.go", "pkg/a/a.go", "web/app.js"}, paths(res))

	cfg.Include = []string{"pkg/**"}
	res = scan(t, cfg, root)
	assert.Equal(t, []string{"pkg/a/a.go"}, paths(res))
}

func TestScan_Gitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":     "gen/\n*.pb.go\n",
		"main.go":        "package main\n",
		"api.pb.go":      "package main\n",
		"gen/out.go":     "package gen\n",
		"sub/.gitignore": "local.go\n",
		"sub/local.go":   "package sub\n",
		"sub/kept.go":    "package sub\n",
	})

	cfg := config.DefaultConfig().Scan
	res := scan(t, cfg, root)
	assert.Equal(t, []string{"main.go", "sub/kept.go"}, paths(res))

	cfg.Gitignore = false
	res = scan(t, cfg, root)
	assert.Equal(t, []string{"api.pb.go", "gen/out.go", "main.go", "sub/kept.go", "sub/local.go"}, paths(res))
}

func TestScan_MaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.go": "package a\n",
		"big.go":   "package a\n// " + string(make([]byte, 200)) + "\n",
	})

	cfg := config.DefaultConfig().Scan
	cfg.MaxFileSize = 64
	res := scan(t, cfg, root)
	assert.Equal(t, []string{"small.go"}, paths(res))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "big.go", res.Skipped[0].Path)
	assert.Equal(t, SkipTooLarge, res.Skipped[0].Reason)
}

func TestScan_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"secret.go": "package secret\n"})

	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.go": "package main\n"})
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.go"), filepath.Join(root, "leak.go")))
	require.NoError(t, os.Symlink(filepath.Join(root, "main.go"), filepath.Join(root, "alias.go")))

	res := scan(t, config.DefaultConfig().Scan, root)
	assert.Equal(t, []string{"alias.go", "main.go"}, paths(res))
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, Skip{Path: "leak.go", Reason: SkipSymlinkEscape}, res.Skipped[0])
}

func TestScan_Errors(t *testing.T) {
	_, err := New(config.ScanConfig{}).Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "a.go")
	require.NoError(t, os.WriteFile(file, []byte("package a\n"), 0o644))
	_, err = New(config.ScanConfig{}).Scan(context.Background(), file)
	assert.Error(t, err)
}

func TestScan_Canceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(config.ScanConfig{}).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_EmptyRoot(t *testing.T) {
	res := scan(t, config.DefaultConfig().Scan, t.TempDir())
	assert.Empty(t, res.Files)
	assert.Zero(t, res.TotalSize())
}

func TestWithSupported(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a\n", "b.txt": "b\n"})
	s := New(config.ScanConfig{}, WithSupported(func(p string) bool { return filepath.Ext(p) == ".txt" }))
	res, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, paths(res))
}

func TestWithScripts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":     "package main\n",
		"bin/deploy":  "#!/usr/bin/env bash\necho deploy\n",
		"bin/migrate": "#!/usr/bin/python3\nprint(1)\n",
		"bin/report":  "#!/usr/bin/perl\nprint 1;\n",
		"Makefile":    "all:\n\tgo build\n",
		"LICENSE":     "MIT\n",
		"notes.txt":   "#!/bin/sh\n",
	})

	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{
			name: "extensions only",
			want: []string{"main.go"},
		},
		{
			name: "registered interpreters",
			opts: []Option{WithScripts(parser.DefaultRegistry().IsScript)},
			want: []string{"bin/deploy", "bin/migrate", "main.go"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(config.DefaultConfig().Scan, tt.opts...).Scan(context.Background(), root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, paths(res))
		})
	}
}

func TestIsWithinRoot(t *testing.T) {
	tests := []struct {
		path, root string
		want       bool
	}{
		{"/a/b/c", "/a/b", true},
		{"/a/b", "/a/b", true},
		{"/a/bc", "/a/b", false},
		{"/x/y", "/a/b", false},
		{"/a/b/../c", "/a/b", false},
	}
	for _, tt := range tests {
		if got := isWithinRoot(tt.path, tt.root); got != tt.want {
			t.Errorf("isWithinRoot(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}
