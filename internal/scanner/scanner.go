// Package scanner discovers the source files of a project tree.
package scanner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/strata/pkg/config"
	"github.com/panbanda/strata/pkg/parser"
)

// SkipReason says why a candidate file was not returned.
type SkipReason string

const (
	SkipTooLarge      SkipReason = "too_large"
	SkipSymlinkEscape SkipReason = "symlink_escape"
	SkipUnreadable    SkipReason = "unreadable"
)

// File is one discovered source file.
type File struct {
	Path string // relative to the root, slash-separated
	Abs  string
	Size int64
}

// Skip records a file that matched the filters but was left out.
type Skip struct {
	Path   string     `json:"path"`
	Reason SkipReason `json:"reason"`
	Size   int64      `json:"size,omitempty"`
}

// Result is the outcome of one scan. Files are sorted by path.
type Result struct {
	Root    string
	Files   []File
	Skipped []Skip
}

// Scanner finds source files in a directory.
type Scanner struct {
	cfg      config.ScanConfig
	supports func(path string) bool
	scripts  func(head []byte) bool
}

// scriptHeadSize bounds how much of an extensionless file is read to find
// its shebang line.
const scriptHeadSize = 256

// Option is a functional option for configuring Scanner.
type Option func(*Scanner)

// WithSupported overrides the check deciding which files are source files.
func WithSupported(fn func(path string) bool) Option {
	return func(s *Scanner) {
		s.supports = fn
	}
}

// WithScripts admits extensionless files whose first bytes satisfy fn,
// typically a shebang check.
func WithScripts(fn func(head []byte) bool) Option {
	return func(s *Scanner) {
		s.scripts = fn
	}
}

// New creates a new file scanner.
func New(cfg config.ScanConfig, opts ...Option) *Scanner {
	s := &Scanner{
		cfg: cfg,
		supports: func(path string) bool {
			return parser.DetectLanguage(path) != parser.LangUnknown
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks root and returns every supported file that survives the
// include, exclude and .gitignore filters. An unreadable root is an error;
// unreadable entries below it are skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, err
	}
	if _, err := os.ReadDir(absRoot); err != nil {
		return nil, err
	}

	ignore := s.loadIgnore(absRoot)
	excludeDirs := make(map[string]bool, len(s.cfg.ExcludeDirs))
	for _, d := range s.cfg.ExcludeDirs {
		excludeDirs[d] = true
	}

	res := &Result{Root: absRoot, Files: make([]File, 0, 256)}
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		parts := strings.Split(rel, "/")

		if d.IsDir() {
			if excludeDirs[d.Name()] || (ignore != nil && ignore.Match(parts, true)) {
				return filepath.SkipDir
			}
			return nil
		}

		if ignore != nil && ignore.Match(parts, false) {
			return nil
		}
		if !s.selected(rel) {
			return nil
		}
		if !s.supports(rel) && !s.isScript(rel, path, d) {
			return nil
		}

		target := path
		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				res.Skipped = append(res.Skipped, Skip{Path: rel, Reason: SkipUnreadable})
				return nil
			}
			if !isWithinRoot(resolved, absRoot) {
				res.Skipped = append(res.Skipped, Skip{Path: rel, Reason: SkipSymlinkEscape})
				return nil
			}
			target = resolved
		}

		fi, err := os.Stat(target)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Path: rel, Reason: SkipUnreadable})
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		if s.cfg.MaxFileSize > 0 && fi.Size() > s.cfg.MaxFileSize {
			res.Skipped = append(res.Skipped, Skip{Path: rel, Reason: SkipTooLarge, Size: fi.Size()})
			return nil
		}

		res.Files = append(res.Files, File{Path: rel, Abs: path, Size: fi.Size()})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Path < res.Skipped[j].Path })
	return res, nil
}

// isScript sniffs the head of an extensionless regular file.
func (s *Scanner) isScript(rel, path string, d fs.DirEntry) bool {
	if s.scripts == nil || filepath.Ext(rel) != "" || !d.Type().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, scriptHeadSize)
	n, _ := io.ReadFull(f, head)
	return s.scripts(head[:n])
}

// selected applies the include and exclude globs to a relative path.
func (s *Scanner) selected(rel string) bool {
	for _, p := range s.cfg.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	if len(s.cfg.Include) == 0 {
		return true
	}
	for _, p := range s.cfg.Include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// loadIgnore reads every .gitignore below root.
func (s *Scanner) loadIgnore(root string) gitignore.Matcher {
	if !s.cfg.Gitignore {
		return nil
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil || len(patterns) == 0 {
		return nil
	}
	return gitignore.NewMatcher(patterns)
}

// isWithinRoot checks if a path is contained within the root directory.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)

	// the separator stops "/root2" matching "/root"
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// TotalSize sums the sizes of the discovered files.
func (r *Result) TotalSize() int64 {
	var n int64
	for _, f := range r.Files {
		n += f.Size
	}
	return n
}
