package satd

import (
	"cmp"
	"context"
	"encoding/binary"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/analyzer/complexity"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/uast"
)

// Compile-time check that Analyzer implements ProjectAnalyzer.
var _ analyzer.ProjectAnalyzer[*Analysis] = (*Analyzer)(nil)

// Analyzer detects self-admitted technical debt markers in comments.
type Analyzer struct {
	patterns       []pattern
	includeTests   bool
	includeVendor  bool
	adjustSeverity bool
	strictMode     bool
	proximity      uint32
	testPatterns   []*regexp.Regexp
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithSkipTests excludes test files from analysis.
// By default, test files are included.
func WithSkipTests() Option {
	return func(a *Analyzer) {
		a.includeTests = false
	}
}

// WithIncludeVendor includes vendor/third-party files in analysis.
// By default, vendor files are excluded.
func WithIncludeVendor() Option {
	return func(a *Analyzer) {
		a.includeVendor = true
	}
}

// WithSkipSeverityAdjustment disables context-based severity adjustment.
func WithSkipSeverityAdjustment() Option {
	return func(a *Analyzer) {
		a.adjustSeverity = false
	}
}

// WithStrictMode matches only explicit markers followed by a colon.
func WithStrictMode() Option {
	return func(a *Analyzer) {
		a.strictMode = true
	}
}

// WithProximity sets how many lines around a comment are searched for
// sensitive API calls.
func WithProximity(lines int) Option {
	return func(a *Analyzer) {
		if lines >= 0 {
			a.proximity = uint32(lines)
		}
	}
}

// WithConfig applies a Config.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) {
		a.strictMode = cfg.Strict
		a.includeTests = !cfg.SkipTests
		a.includeVendor = cfg.IncludeVendor
		if cfg.ProximityLines >= 0 {
			a.proximity = uint32(cfg.ProximityLines)
		}
	}
}

type pattern struct {
	regex    *regexp.Regexp
	category Category
	severity Severity
}

// New creates a new SATD analyzer with default options.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		includeTests:   true,
		adjustSeverity: true,
		proximity:      3,
		testPatterns:   defaultTestPatterns(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.strictMode {
		a.patterns = strictPatterns()
	} else {
		a.patterns = defaultPatterns()
	}
	return a
}

// strictPatterns only match the form "MARKER: description".
func strictPatterns() []pattern {
	return []pattern{
		{regexp.MustCompile(`\b(SECURITY):\s+(.+)`), CategorySecurity, SeverityCritical},
		{regexp.MustCompile(`\b(FIXME):\s+(.+)`), CategoryDefect, SeverityHigh},
		{regexp.MustCompile(`\b(BUG):\s+(.+)`), CategoryDefect, SeverityHigh},
		{regexp.MustCompile(`\b(HACK):\s+(.+)`), CategoryDesign, SeverityMedium},
		{regexp.MustCompile(`\b(XXX):\s+(.+)`), CategoryDesign, SeverityMedium},
		{regexp.MustCompile(`\b(TODO):\s+(.+)`), CategoryRequirement, SeverityLow},
	}
}

// defaultTestPatterns returns patterns for detecting test files.
func defaultTestPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`_test\.go$`),
		regexp.MustCompile(`(^|/)test_[^/]*\.py$`),
		regexp.MustCompile(`_test\.py$`),
		regexp.MustCompile(`\.(test|spec)\.[jt]sx?$`),
		regexp.MustCompile(`(^|/)__tests__/`),
		regexp.MustCompile(`(^|/)tests?/`),
		regexp.MustCompile(`(^|/)spec/`),
		regexp.MustCompile(`Tests?\.(java|cs)$`),
		regexp.MustCompile(`_test\.rs$`),
		regexp.MustCompile(`_spec\.rb$`),
	}
}

// defaultPatterns returns the standard SATD detection patterns. The first
// group is the marker and the last group the description.
//   - Critical: security concerns
//   - High: known defects
//   - Medium: design compromises
//   - Low: TODOs and minor enhancements
func defaultPatterns() []pattern {
	return []pattern{
		{regexp.MustCompile(`(?i)\b(SECURITY|VULN|VULNERABILITY|CVE|XSS)\b[:\s]*(.*)`), CategorySecurity, SeverityCritical},
		{regexp.MustCompile(`(?i)\b(UNSAFE)\b[:\s]*(.*)`), CategorySecurity, SeverityHigh},

		{regexp.MustCompile(`(?i)\b(FIXME|FIX\s*ME)\b[:\s]*(.*)`), CategoryDefect, SeverityHigh},
		{regexp.MustCompile(`(?i)\b(BUG)\b[:\s]*(.*)`), CategoryDefect, SeverityHigh},
		{regexp.MustCompile(`(?i)\b(BROKEN)\b[:\s]*(.*)`), CategoryDefect, SeverityHigh},

		{regexp.MustCompile(`(?i)\b(HACK|KLUDGE|SMELL|XXX)\b[:\s]*(.*)`), CategoryDesign, SeverityMedium},
		{regexp.MustCompile(`(?i)\b(REFACTOR|CLEANUP)\b[:\s]*(.*)`), CategoryDesign, SeverityMedium},
		{regexp.MustCompile(`(?i)\b(technical\s+debt|code\s+smell)\b[:\s]*(.*)`), CategoryDesign, SeverityMedium},
		{regexp.MustCompile(`(?i)\b(performance\s+(?:issue|problem))\b[:\s]*(.*)`), CategoryPerformance, SeverityMedium},
		{regexp.MustCompile(`(?i)\b(tests?\s+(?:disabled|skipped|failing))\b[:\s]*(.*)`), CategoryTest, SeverityMedium},
		{regexp.MustCompile(`(?i)\b(UNTESTED)\b[:\s]*(.*)`), CategoryTest, SeverityMedium},
		{regexp.MustCompile(`(?i)\b(WORKAROUND|TEMP|TEMPORARY)\b[:\s]*(.*)`), CategoryDesign, SeverityLow},

		{regexp.MustCompile(`(?i)\b(TODO)\b[:\s]*(.*)`), CategoryRequirement, SeverityLow},
		{regexp.MustCompile(`(?i)\b(OPTIMIZE|SLOW)\b[:\s]*(.*)`), CategoryPerformance, SeverityLow},
	}
}

// sensitiveCalls are call targets whose neighbourhood makes debt riskier.
// Entries with a dot match the qualifier and target together.
var sensitiveCalls = map[string]bool{
	"eval": true, "exec": true, "system": true, "popen": true, "shell_exec": true,
	"strcpy": true, "strcat": true, "sprintf": true, "gets": true,
	"executescript": true, "innerHTML": true, "dangerouslySetInnerHTML": true,
	"os.system": true, "subprocess.call": true, "subprocess.Popen": true,
	"pickle.loads": true, "marshal.loads": true, "yaml.load": true,
	"unsafe.Pointer": true, "document.write": true,
	"hashlib.md5": true, "hashlib.sha1": true, "md5.New": true, "sha1.New": true,
	"des.NewCipher": true, "rc4.NewCipher": true, "crypto.createCipher": true,
}

// sensitiveMention matches comment text that names a sensitive API itself.
var sensitiveMention = regexp.MustCompile(`(?i)\b(eval|exec|unsafe|strcpy|pickle\.loads|innerHTML|raw\s+sql|sql\s+injection|md5|sha1|rc4)\b`)

var securityTerms = []string{"security", "vuln", "auth", "password", "inject", "xss", "csrf", "sql"}

// shouldSkipProcessing checks if a line should be excluded from SATD detection.
func shouldSkipProcessing(line string) bool {
	trimmed := strings.TrimSpace(line)
	return isMarkdownHeader(trimmed) ||
		isBugTrackingID(trimmed) ||
		isFixedBugDescription(trimmed) ||
		hasIgnoreDirective(line)
}

// hasIgnoreDirective checks for strata:ignore, strata:ignore-line or strata:ignore-satd.
func hasIgnoreDirective(line string) bool {
	return strings.Contains(strings.ToLower(line), "strata:ignore")
}

// isMarkdownHeader checks if a line is a changelog-style markdown header.
func isMarkdownHeader(trimmed string) bool {
	trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "/*"))
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	content := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
	switch content {
	case "Security", "Added", "Changed", "Deprecated", "Removed", "Fixed",
		"Unreleased", "Changelog", "CHANGELOG":
		return true
	}
	return strings.HasPrefix(content, "[")
}

// isBugTrackingID checks if a line references a tracker id like BUG-123.
func isBugTrackingID(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "-bug-") {
		return true
	}
	idx := strings.Index(lower, "bug-")
	if idx < 0 || idx+4 >= len(line) {
		return false
	}
	c := line[idx+4]
	return c >= '0' && c <= '9'
}

// isFixedBugDescription checks if a comment describes a bug already fixed.
func isFixedBugDescription(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "/#* ")))
	if strings.HasPrefix(lower, "bug:") && strings.Contains(lower, "previous") {
		return true
	}
	return strings.Contains(lower, " fix:")
}

// AddPattern adds a custom SATD detection pattern. The first capture group,
// if any, is reported as the marker.
func (a *Analyzer) AddPattern(pat string, category Category, severity Severity) error {
	re, err := regexp.Compile(pat)
	if err != nil {
		return err
	}
	a.patterns = append(a.patterns, pattern{re, category, severity})
	return nil
}

// Analyze scans the comments of every project file.
func (a *Analyzer) Analyze(ctx context.Context, proj *project.Context) (*Analysis, error) {
	analysis := &Analysis{Items: make([]Item, 0), Summary: NewSummary()}
	tracker := analyzer.TrackerFromContext(ctx)
	if tracker != nil {
		tracker.Add(len(proj.Files))
	}

	withDebt := make(map[string]bool)
	for _, fc := range proj.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tracker != nil {
			tracker.Tick(fc.Path)
		}
		if a.shouldExcludeFile(fc.Path) {
			continue
		}
		analysis.TotalFilesAnalyzed++
		items := a.AnalyzeFile(fc)
		for _, it := range items {
			analysis.Summary.AddItem(it)
			withDebt[it.File] = true
		}
		analysis.Items = append(analysis.Items, items...)
	}
	analysis.FilesWithDebt = len(withDebt)

	SortItems(analysis.Items)
	return analysis, nil
}

// AnalyzeFile scans the comments of one parsed file.
func (a *Analyzer) AnalyzeFile(fc *uast.FileContext) []Item {
	var items []Item
	isTest := a.isTestFile(fc.Path)
	isSecurityPath := isSecurityContext(fc.Path)
	calls := sensitiveSites(fc)

	for _, c := range fc.Comments {
		for offset, line := range strings.Split(c.Text, "\n") {
			lineNum := c.StartLine + uint32(offset)
			if shouldSkipProcessing(line) {
				continue
			}
			item, ok := a.match(line)
			if !ok {
				continue
			}
			item.File = fc.Path
			item.Line = lineNum
			item.ContextHash = generateContextHash(fc.Path, lineNum, line)

			site := SiteContext{TestFile: isTest, Security: isSecurityPath || hasSecurityTerm(line)}
			if m := sensitiveMention.FindString(line); m != "" {
				site.Sensitive = m
			} else if name := a.nearbyCall(calls, c.StartLine, c.EndLine); name != "" {
				site.Sensitive = name
			}
			item.Sensitive = site.Sensitive

			if n := fc.Enclosing(lineNum); n != nil {
				item.Node = n.ID
				if n.Kind != uast.KindModule {
					item.Function = n.ShortName()
				}
				if n.Kind.IsCallable() {
					site.Complexity = complexity.Cyclomatic(n.Body)
				}
			}
			if a.adjustSeverity {
				item.Severity = AdjustSeverity(item.Severity, site)
			}
			items = append(items, item)
		}
	}
	return items
}

// match applies the first pattern that hits line.
func (a *Analyzer) match(line string) (Item, bool) {
	for _, pat := range a.patterns {
		m := pat.regex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		marker := strings.ToUpper(strings.TrimSpace(m[0]))
		if len(m) > 1 {
			marker = strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
		}
		description := strings.TrimSpace(m[len(m)-1])
		description = strings.TrimRight(description, "*/ ")
		if description == "" {
			description = marker
		}
		return Item{
			Category:    pat.category,
			Severity:    pat.severity,
			Marker:      marker,
			Description: description,
			Snippet:     snippet(line),
		}, true
	}
	return Item{}, false
}

// AdjustSeverity escalates debt near security-sensitive code or in complex
// functions by one level and reduces it in test files by one level.
func AdjustSeverity(base Severity, site SiteContext) Severity {
	s := base
	if site.Sensitive != "" || site.Security || site.Complexity > 20 {
		s = s.Escalate()
	}
	if site.TestFile {
		s = s.Reduce()
	}
	return s
}

type callSite struct {
	line uint32
	name string
}

// sensitiveSites lists the sensitive calls in a file by line.
func sensitiveSites(fc *uast.FileContext) []callSite {
	var sites []callSite
	for _, e := range fc.Edges {
		if e.Kind != uast.EdgeCalls && e.Kind != uast.EdgeUses {
			continue
		}
		name := e.Target
		if e.Qualifier != "" {
			if full := e.Qualifier + "." + e.Target; sensitiveCalls[full] {
				sites = append(sites, callSite{e.Line, full})
				continue
			}
		}
		if sensitiveCalls[name] {
			sites = append(sites, callSite{e.Line, name})
		}
	}
	return sites
}

// nearbyCall returns the closest sensitive call within the proximity window
// of a comment spanning [start, end].
func (a *Analyzer) nearbyCall(sites []callSite, start, end uint32) string {
	lo := uint32(0)
	if start > a.proximity {
		lo = start - a.proximity
	}
	hi := end + a.proximity
	best, bestDist := "", uint32(0)
	for _, s := range sites {
		if s.line < lo || s.line > hi {
			continue
		}
		var dist uint32
		switch {
		case s.line < start:
			dist = start - s.line
		case s.line > end:
			dist = s.line - end
		}
		if best == "" || dist < bestDist {
			best, bestDist = s.name, dist
		}
	}
	return best
}

func hasSecurityTerm(line string) bool {
	lower := strings.ToLower(line)
	for _, term := range securityTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// shouldExcludeFile determines if a file should be skipped.
func (a *Analyzer) shouldExcludeFile(path string) bool {
	if !a.includeTests && a.isTestFile(path) {
		return true
	}
	if !a.includeVendor && isVendorFile(path) {
		return true
	}
	return isMinifiedFile(path)
}

// isTestFile checks if a file is a test file.
func (a *Analyzer) isTestFile(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, pat := range a.testPatterns {
		if pat.MatchString(slashed) {
			return true
		}
	}
	return false
}

// isVendorFile checks if a file is in a vendor directory.
func isVendorFile(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		switch part {
		case "vendor", "node_modules", "third_party", "external", "deps":
			return true
		}
	}
	return false
}

// isMinifiedFile checks if a file appears to be minified.
func isMinifiedFile(path string) bool {
	return strings.Contains(filepath.Base(path), ".min.")
}

// isSecurityContext checks if a file is in a security-sensitive location.
func isSecurityContext(path string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	for _, pat := range []string{
		"auth", "security", "crypto", "password", "credential",
		"token", "session", "permission", "sanitize", "validate", "escape",
	} {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// snippet trims comment syntax and caps the text at 120 characters.
func snippet(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "/#*-; ")
	s = strings.TrimSpace(strings.TrimSuffix(s, "*/"))
	if len(s) > 120 {
		cut := 117
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

// generateContextHash creates a stable identity hash for a debt item.
func generateContextHash(path string, line uint32, content string) string {
	h := blake3.New()
	h.Write([]byte(path))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], line)
	h.Write(buf[:])
	h.Write([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// SortItems orders by descending severity, then file, line and category.
func SortItems(items []Item) {
	slices.SortStableFunc(items, func(x, y Item) int {
		if c := cmp.Compare(y.Severity.Weight(), x.Severity.Weight()); c != 0 {
			return c
		}
		if c := cmp.Compare(x.File, y.File); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Line, y.Line); c != 0 {
			return c
		}
		return cmp.Compare(x.Category, y.Category)
	})
}
