package deadcode

import (
	"context"
	"encoding/hex"
	"path"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bmatcuk/doublestar"
	"github.com/zeebo/blake3"

	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/uast"
)

// Ensure Analyzer implements analyzer.ProjectAnalyzer.
var _ analyzer.ProjectAnalyzer[*Analysis] = (*Analyzer)(nil)

// DefaultTestGlobs identify test files across the supported languages.
var DefaultTestGlobs = []string{
	"**/*_test.go",
	"**/test_*.py",
	"**/*_test.py",
	"**/conftest.py",
	"**/*.{test,spec}.{js,jsx,ts,tsx,mjs,cjs}",
	"**/__tests__/**",
	"**/*{Test,Tests}.{java,cs}",
	"**/*_spec.rb",
	"**/*_test.rb",
	"**/*Test.php",
	"**/tests/**",
	"**/test/**",
	"**/spec/**",
}

// Analyzer finds declarations unreachable from the configured entry points.
type Analyzer struct {
	entries       []string
	testGlobs     []string
	exclude       []string
	strict        bool
	publicAPI     bool
	minConfidence float64
	thresholds    ConfidenceThresholds
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithEntries adds name globs matched against a node's name, short name and
// qualified name. Matching nodes are reachable.
func WithEntries(globs ...string) Option {
	return func(a *Analyzer) {
		a.entries = append(a.entries, globs...)
	}
}

// WithTestGlobs adds path globs whose declarations are whitelisted as entries.
func WithTestGlobs(globs ...string) Option {
	return func(a *Analyzer) {
		a.testGlobs = append(a.testGlobs, globs...)
	}
}

// WithExclude adds path globs whose declarations are never reported.
func WithExclude(globs ...string) Option {
	return func(a *Analyzer) {
		a.exclude = append(a.exclude, globs...)
	}
}

// WithStrict restricts entry selection to explicitly configured selectors.
func WithStrict(strict bool) Option {
	return func(a *Analyzer) {
		a.strict = strict
	}
}

// WithPublicAPI controls whether public declarations count as entry points.
func WithPublicAPI(enabled bool) Option {
	return func(a *Analyzer) {
		a.publicAPI = enabled
	}
}

// WithConfidence sets the minimum confidence for a dead item to be reported.
func WithConfidence(confidence float64) Option {
	return func(a *Analyzer) {
		if confidence >= 0 && confidence <= 1 {
			a.minConfidence = confidence
		}
	}
}

// WithConfidenceThresholds sets the level boundaries.
func WithConfidenceThresholds(t ConfidenceThresholds) Option {
	return func(a *Analyzer) {
		if t.HighThreshold > 0 && t.HighThreshold <= 1 {
			a.thresholds.HighThreshold = t.HighThreshold
		}
		if t.MediumThreshold > 0 && t.MediumThreshold <= 1 {
			a.thresholds.MediumThreshold = t.MediumThreshold
		}
	}
}

// New creates a new dead code analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		publicAPI:  true,
		thresholds: DefaultConfidenceThresholds(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze marks entry points, walks the resolved graph breadth-first and
// reports every declaration never visited.
func (a *Analyzer) Analyze(ctx context.Context, proj *project.Context) (*Analysis, error) {
	analysis := &Analysis{
		Dead:    make([]Dead, 0),
		Files:   make([]FileMetrics, 0),
		Summary: NewSummary(),
	}

	testFiles := make(map[string]bool, len(proj.Files))
	for _, fc := range proj.Files {
		if a.isTestFile(fc.Path) {
			testFiles[fc.Path] = true
		}
	}

	entries := a.selectEntries(proj, testFiles)
	analysis.Summary.EntryNodes = len(entries)

	visited, err := markReachable(ctx, proj, entries)
	if err != nil {
		return nil, err
	}

	foreign := externalTargets(proj)
	perFile := make(map[string]*FileMetrics)

	for i, n := range proj.Nodes {
		if n.Kind == uast.KindModule {
			continue
		}
		if matchAny(a.exclude, n.Location.Path) {
			continue
		}
		analysis.Summary.TotalNodes++
		if visited.Contains(uint32(i)) {
			analysis.Summary.ReachableNodes++
			continue
		}

		conf := a.calculateConfidence(n, testFiles[n.Location.Path], foreign[n.Name])
		if conf < a.minConfidence {
			continue
		}
		d := Dead{
			ID:              n.ID,
			Name:            n.Name,
			QualifiedName:   n.QualifiedName,
			Kind:            n.Kind,
			File:            n.Location.Path,
			Line:            n.Location.StartLine,
			EndLine:         n.Location.EndLine,
			Visibility:      n.Visibility,
			Confidence:      conf,
			ConfidenceLevel: a.thresholds.Level(conf),
			Reason:          deadReason(n.Kind),
			ContextHash:     computeContextHash(n.QualifiedName, n.Location.Path, n.Location.StartLine, string(n.Kind)),
		}
		analysis.Dead = append(analysis.Dead, d)
		analysis.Summary.Add(d)

		fm, ok := perFile[d.File]
		if !ok {
			fm = &FileMetrics{Path: d.File, TotalLines: proj.File(uint32(i)).Lines}
			perFile[d.File] = fm
		}
		fm.DeadItems++
		// Lines of a member are already counted with its dead owner.
		if owner, ok := proj.Owner(uint32(i)); !ok || visited.Contains(owner) {
			fm.DeadLines += n.Location.Lines()
		}
	}

	for _, fc := range proj.Files {
		fm, ok := perFile[fc.Path]
		if !ok {
			continue
		}
		fm.DeadLines = min(fm.DeadLines, fm.TotalLines)
		fm.UpdatePercentage()
		analysis.Files = append(analysis.Files, *fm)
	}
	analysis.Summary.CalculatePercentage()
	return analysis, nil
}

// selectEntries returns the arena indexes that seed the traversal.
func (a *Analyzer) selectEntries(proj *project.Context, testFiles map[string]bool) []uint32 {
	var entries []uint32
	for i, n := range proj.Nodes {
		if a.isEntry(n, testFiles[n.Location.Path]) {
			entries = append(entries, uint32(i))
		}
	}
	return entries
}

func (a *Analyzer) isEntry(n *uast.Node, testFile bool) bool {
	for _, g := range a.entries {
		if matchName(g, n) {
			return true
		}
	}
	if a.strict {
		return testFile
	}
	if n.Kind == uast.KindModule || testFile {
		return true
	}
	if a.publicAPI && n.Visibility == uast.Public {
		return true
	}
	return n.Kind.IsCallable() && isEntryPoint(n)
}

func (a *Analyzer) isTestFile(p string) bool {
	if matchAny(a.testGlobs, p) {
		return true
	}
	return !a.strict && matchAny(DefaultTestGlobs, p)
}

// markReachable runs the breadth-first traversal. Calls, Uses, Implements
// and Inherits edges are followed forward. Implements is also followed
// backward so an interface reaches its implementors. Members keep their
// declaring type alive. A live interface or base method reaches the
// same-named method of every subtype.
func markReachable(ctx context.Context, proj *project.Context, entries []uint32) (*roaring.Bitmap, error) {
	members := make(map[uint32][]uint32)
	for i := range proj.Nodes {
		if owner, ok := proj.Owner(uint32(i)); ok {
			members[owner] = append(members[owner], uint32(i))
		}
	}

	visited := roaring.New()
	queue := make([]uint32, 0, len(entries)*2)
	push := func(i uint32) {
		if visited.CheckedAdd(i) {
			queue = append(queue, i)
		}
	}
	for _, e := range entries {
		push(e)
	}

	for head := 0; head < len(queue); head++ {
		if head%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cur := queue[head]

		for _, k := range proj.Out(cur) {
			_, to, internal := proj.Endpoints(k)
			if !internal {
				continue
			}
			switch proj.Edges[k].Kind {
			case uast.EdgeCalls, uast.EdgeUses, uast.EdgeImplements, uast.EdgeInherits:
				push(to)
			}
		}
		for _, k := range proj.In(cur) {
			if proj.Edges[k].Kind == uast.EdgeImplements {
				from, _, _ := proj.Endpoints(k)
				push(from)
			}
		}

		n := proj.Nodes[cur]
		if n.Kind.IsType() {
			for _, m := range members[cur] {
				if isConstructor(proj.Nodes[m]) {
					push(m)
				}
			}
		}
		owner, ok := proj.Owner(cur)
		if !ok {
			continue
		}
		push(owner)
		if !n.Kind.IsCallable() {
			continue
		}
		for _, k := range proj.In(owner) {
			kind := proj.Edges[k].Kind
			if kind != uast.EdgeImplements && kind != uast.EdgeInherits {
				continue
			}
			sub, _, _ := proj.Endpoints(k)
			for _, m := range members[sub] {
				if proj.Nodes[m].Name == n.Name {
					push(m)
				}
			}
		}
	}
	return visited, nil
}

// externalTargets collects the names of edge targets that left the project.
func externalTargets(proj *project.Context) map[string]bool {
	out := make(map[string]bool)
	for _, e := range proj.Edges {
		if e.To.IsExternal() {
			out[e.Target] = true
		}
	}
	return out
}

// calculateConfidence scores how likely an unreached node is really dead.
func (a *Analyzer) calculateConfidence(n *uast.Node, testFile, foreign bool) float64 {
	confidence := 0.95

	switch n.Visibility {
	case uast.Private:
		confidence += 0.03
	case uast.Restricted:
		confidence -= 0.10
	case uast.Public:
		confidence -= 0.25
	}
	if testFile {
		confidence -= 0.15
	}
	// Something outside the project calls a name like this one.
	if foreign {
		confidence -= 0.30
	}

	// Clamp to [0, 1]
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}
	return confidence
}

func deadReason(k uast.NodeKind) string {
	switch {
	case k.IsCallable():
		return "Not reachable from any entry point"
	case k.IsType():
		return "Type never instantiated or referenced"
	case k == uast.KindConstant:
		return "Constant never referenced"
	}
	return "Never referenced"
}

// isEntryPoint applies the built-in naming heuristics for callables.
func isEntryPoint(n *uast.Node) bool {
	name := n.Name
	switch name {
	case "main", "init", "Main":
		return true
	}
	for _, prefix := range []string{"Test", "Benchmark", "Example", "Fuzz"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return true
		}
	}
	if strings.HasPrefix(name, "test_") || (strings.HasPrefix(name, "test") && n.Language == "python") {
		return true
	}
	return isDunder(name) || isConstructor(n) || isLifecycleMethod(name)
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// isConstructor reports whether a callable builds instances of its container.
func isConstructor(n *uast.Node) bool {
	if !n.Kind.IsCallable() {
		return false
	}
	switch n.Name {
	case "constructor", "__init__", "__new__", "__construct", "initialize":
		return true
	case "new":
		return n.Language == "rust" && n.Container != ""
	}
	if n.Container == "" {
		return false
	}
	owner := n.Container
	if i := strings.LastIndexByte(owner, '.'); i >= 0 {
		owner = owner[i+1:]
	}
	return n.Name == owner || n.Name == "~"+owner
}

// isLifecycleMethod checks if a function name matches lifecycle method patterns.
func isLifecycleMethod(name string) bool {
	lifecycleMethods := []string{
		// Go
		"ServeHTTP",
		// Python
		"setUp", "tearDown", "setUpClass", "tearDownClass",
		// JavaScript/React
		"componentDidMount", "componentWillUnmount", "componentDidUpdate", "render",
	}
	for _, method := range lifecycleMethods {
		if name == method {
			return true
		}
	}
	return false
}

func matchName(glob string, n *uast.Node) bool {
	for _, s := range []string{n.Name, n.ShortName(), n.QualifiedName} {
		if ok, _ := doublestar.Match(glob, s); ok {
			return true
		}
	}
	return false
}

// matchAny reports whether p matches any glob. Globs without a slash are
// also tried against the base name.
func matchAny(globs []string, p string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
		if strings.HasPrefix(g, "**/") {
			if ok, _ := doublestar.Match(strings.TrimPrefix(g, "**/"), p); ok {
				return true
			}
		}
		if !strings.Contains(g, "/") {
			if ok, _ := doublestar.Match(g, path.Base(p)); ok {
				return true
			}
		}
	}
	return false
}

// computeContextHash generates a BLAKE3 hash for deduplication across runs.
func computeContextHash(name, file string, line uint32, kind string) string {
	data := name + ":" + file + ":" + strconv.FormatUint(uint64(line), 10) + ":" + kind
	hash := blake3.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
