package parser

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/panbanda/strata/pkg/uast"
)

// FrontEndFunc turns the raw bytes of one file into a FileContext. It must
// be pure and deterministic: identical bytes yield an identical result.
type FrontEndFunc func(ctx context.Context, path string, src []byte) (*uast.FileContext, error)

type registration struct {
	lang Language
	fn   FrontEndFunc
}

// Registry maps file extensions to front-ends. Adding a language is a
// Register call; nothing else changes.
type Registry struct {
	byExt     map[string]registration
	byShebang map[string]registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:     make(map[string]registration),
		byShebang: make(map[string]registration),
	}
}

// Register binds fn to each extension (with leading dot, case-insensitive).
func (r *Registry) Register(lang Language, fn FrontEndFunc, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = registration{lang: lang, fn: fn}
	}
}

// RegisterInterpreter binds fn to extensionless scripts whose shebang names interp.
func (r *Registry) RegisterInterpreter(lang Language, fn FrontEndFunc, interps ...string) {
	for _, in := range interps {
		r.byShebang[in] = registration{lang: lang, fn: fn}
	}
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsScript reports whether head opens with a shebang naming a registered
// interpreter.
func (r *Registry) IsScript(head []byte) bool {
	interp := shebangInterpreter(head)
	if interp == "" {
		return false
	}
	_, ok := r.byShebang[interp]
	return ok
}

// Lookup selects a front-end by extension, falling back to the shebang line
// of src for extensionless files.
func (r *Registry) Lookup(path string, src []byte) (Language, FrontEndFunc, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if reg, ok := r.byExt[ext]; ok {
		return reg.lang, reg.fn, true
	}
	if ext == "" {
		if interp := shebangInterpreter(src); interp != "" {
			if reg, ok := r.byShebang[interp]; ok {
				return reg.lang, reg.fn, true
			}
		}
	}
	return LangUnknown, nil, false
}

// Parse runs the selected front-end. Failures are returned as *ParseError.
func (r *Registry) Parse(ctx context.Context, path string, src []byte) (*uast.FileContext, error) {
	_, fn, ok := r.Lookup(path, src)
	if !ok {
		return nil, NewParseError(path, ErrKindUnsupported, ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewParseError(path, ErrKindCanceled, err)
	}
	fc, err := fn(ctx, path, src)
	if err != nil {
		return nil, NewParseError(path, ErrKindSyntax, err)
	}
	fc.ContentHash = uast.HashContent(src)
	return fc, nil
}

// DefaultRegistry registers the tree-sitter front-end for every supported language.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, lang := range []Language{
		LangGo, LangRust, LangPython, LangJavaScript, LangTypeScript, LangTSX,
		LangJava, LangC, LangCPP, LangCSharp, LangRuby, LangPHP, LangBash,
	} {
		r.Register(lang, TreeSitterFrontEnd(lang), extensionsFor(lang)...)
	}
	r.RegisterInterpreter(LangPython, TreeSitterFrontEnd(LangPython), "python", "python3")
	r.RegisterInterpreter(LangBash, TreeSitterFrontEnd(LangBash), "sh", "bash", "zsh")
	r.RegisterInterpreter(LangRuby, TreeSitterFrontEnd(LangRuby), "ruby")
	r.RegisterInterpreter(LangJavaScript, TreeSitterFrontEnd(LangJavaScript), "node")
	return r
}

func extensionsFor(lang Language) []string {
	switch lang {
	case LangGo:
		return []string{".go"}
	case LangRust:
		return []string{".rs"}
	case LangPython:
		return []string{".py", ".pyw", ".pyi"}
	case LangJavaScript:
		return []string{".js", ".mjs", ".cjs"}
	case LangTypeScript:
		return []string{".ts", ".mts", ".cts"}
	case LangTSX:
		return []string{".tsx", ".jsx"}
	case LangJava:
		return []string{".java"}
	case LangC:
		return []string{".c", ".h"}
	case LangCPP:
		return []string{".cpp", ".cc", ".cxx", ".hpp", ".hxx", ".hh"}
	case LangCSharp:
		return []string{".cs"}
	case LangRuby:
		return []string{".rb"}
	case LangPHP:
		return []string{".php"}
	case LangBash:
		return []string{".sh", ".bash"}
	}
	return nil
}

// shebangInterpreter returns the interpreter named on a "#!" first line.
func shebangInterpreter(src []byte) string {
	if !bytes.HasPrefix(src, []byte("#!")) {
		return ""
	}
	line := src[2:]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return ""
	}
	interp := filepath.Base(fields[0])
	if interp == "env" && len(fields) > 1 {
		interp = fields[1]
	}
	return interp
}
