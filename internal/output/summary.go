package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/panbanda/strata/pkg/analyzer/tdg"
	"github.com/panbanda/strata/pkg/engine"
)

// SummaryOptions controls how a summary is laid out for people.
type SummaryOptions struct {
	Top     int // TDG rows per table, 0 = all
	Colored bool
	Verbose bool // list every warning instead of counts
}

// SummaryReport lays out an analysis summary. Machine formats serialize
// the summary itself.
func SummaryReport(sum *engine.Summary, opts SummaryOptions) *Report {
	r := &Report{Title: "strata analysis", Data: sum}
	r.Sections = append(r.Sections, overview(sum))
	if sum.Complexity != nil {
		r.Sections = append(r.Sections, complexityTable(sum))
	}
	if sum.DeadCode != nil {
		r.Sections = append(r.Sections, deadCodeTable(sum))
	}
	if sum.Duplicates != nil {
		r.Sections = append(r.Sections, duplicatesTable(sum))
	}
	if sum.SATD != nil {
		r.Sections = append(r.Sections, satdTable(sum, opts.Colored))
	}
	if sum.Graph != nil {
		r.Sections = append(r.Sections, graphSection(sum))
	}
	if sum.TDG != nil {
		r.Sections = append(r.Sections,
			tdgTable("Technical debt: functions", topScores(sum.TDG.Functions, opts.Top), opts.Colored),
			tdgTable("Technical debt: files", topScores(sum.TDG.Files, opts.Top), opts.Colored),
		)
	}
	if sum.Warnings.Len() > 0 {
		r.Sections = append(r.Sections, warningsSection(sum, opts.Verbose))
	}
	return r
}

func overview(sum *engine.Summary) *Section {
	c := sum.Counts
	var b strings.Builder
	fmt.Fprintf(&b, "Files:      %d (%d parsed, %d failed)\n", c.Files, c.ParsedFiles, c.FailedFiles)
	fmt.Fprintf(&b, "Functions:  %d\n", c.Functions)
	fmt.Fprintf(&b, "Nodes:      %d\n", c.Nodes)
	fmt.Fprintf(&b, "Edges:      %d (%d external)\n", c.Edges, c.ExternalEdges)
	fmt.Fprintf(&b, "Lines:      %d\n", c.Lines)
	fmt.Fprintf(&b, "Violations: %d", sum.ViolationCount())
	if sum.TDG != nil {
		fmt.Fprintf(&b, "\nDebt:       %.1f estimated hours", sum.TDG.Summary.EstimatedDebtHours)
	}
	return &Section{Title: "Overview", Content: b.String(), Data: c}
}

func complexityTable(sum *engine.Summary) *Table {
	a := sum.Complexity
	rows := make([][]string, 0, len(a.Violations))
	for _, v := range a.Violations {
		rows = append(rows, []string{
			location(v.File, v.Line),
			v.Function,
			v.Rule,
			strconv.FormatUint(uint64(v.Value), 10),
			strconv.FormatUint(uint64(v.Threshold), 10),
		})
	}
	footer := []string{
		fmt.Sprintf("%d functions", a.Summary.TotalFunctions),
		fmt.Sprintf("avg cyclomatic %.1f", a.Summary.AvgCyclomatic),
		fmt.Sprintf("avg cognitive %.1f", a.Summary.AvgCognitive),
		"", "",
	}
	return NewTable("Complexity violations", []string{"Location", "Function", "Rule", "Value", "Threshold"}, rows, footer, a)
}

func deadCodeTable(sum *engine.Summary) *Table {
	a := sum.DeadCode
	rows := make([][]string, 0, len(a.Dead))
	for _, d := range a.Dead {
		rows = append(rows, []string{
			location(d.File, d.Line),
			string(d.Kind),
			d.Name,
			fmt.Sprintf("%.2f", d.Confidence),
			d.Reason,
		})
	}
	footer := []string{
		fmt.Sprintf("%d dead", a.Summary.TotalDead),
		"",
		fmt.Sprintf("%.1f%% of declarations", a.Summary.DeadCodePercentage),
		"", "",
	}
	return NewTable("Dead code", []string{"Location", "Kind", "Name", "Confidence", "Reason"}, rows, footer, a)
}

func duplicatesTable(sum *engine.Summary) *Table {
	a := sum.Duplicates
	rows := make([][]string, 0, len(a.Groups))
	for _, g := range a.Groups {
		spans := make([]string, len(g.Instances))
		for i, in := range g.Instances {
			spans[i] = fmt.Sprintf("%s:%d-%d", in.File, in.StartLine, in.EndLine)
		}
		rows = append(rows, []string{
			strconv.FormatUint(g.ID, 10),
			g.Type.String(),
			strings.Join(spans, ", "),
			strconv.Itoa(g.TotalLines),
			fmt.Sprintf("%.2f", g.AverageSimilarity),
		})
	}
	footer := []string{
		fmt.Sprintf("%d groups", a.Summary.TotalGroups),
		"",
		fmt.Sprintf("%.1f%% duplicated", a.Summary.DuplicationRatio*100),
		"", "",
	}
	return NewTable("Duplicates", []string{"Group", "Type", "Instances", "Lines", "Similarity"}, rows, footer, a)
}

func satdTable(sum *engine.Summary, colored bool) *Table {
	a := sum.SATD
	rows := make([][]string, 0, len(a.Items))
	for _, it := range a.Items {
		sev := string(it.Severity)
		if colored {
			sev = SeverityColor(sev, sev)
		}
		rows = append(rows, []string{
			location(it.File, it.Line),
			sev,
			string(it.Category),
			it.Marker,
			it.Description,
		})
	}
	return NewTable("Self-admitted technical debt", []string{"Location", "Severity", "Category", "Marker", "Description"}, rows, nil, a)
}

func graphSection(sum *engine.Summary) *Section {
	g := sum.Graph
	s := g.Summary
	content := fmt.Sprintf("%d nodes, %d edges, %d back edges, %d cycles (largest SCC %d), scope %s",
		s.TotalNodes, s.TotalEdges, s.BackEdges, s.CycleCount, s.LargestSCC, g.Filters.Scope)
	return &Section{Title: "Dependency graph", Content: content, Data: g}
}

// MermaidSection renders the dependency graph as a fenced Mermaid diagram.
func MermaidSection(sum *engine.Summary) *Section {
	if sum.Graph == nil {
		return &Section{Title: "Dependency diagram"}
	}
	return &Section{Title: "Dependency diagram", Content: sum.Graph.ToMermaid(), Fenced: "mermaid", Data: sum.Graph}
}

func tdgTable(title string, scores []tdg.Score, colored bool) *Table {
	rows := make([][]string, 0, len(scores))
	for i, s := range scores {
		bucket := string(s.Bucket)
		if colored {
			bucket = SeverityColor(bucket, bucket)
		}
		name := s.Name
		if name == "" {
			name = s.File
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			name,
			location(s.File, s.StartLine),
			fmt.Sprintf("%.3f", s.Composite),
			bucket,
			string(s.PrimaryFactor),
			fmt.Sprintf("%.1f", s.EstimatedHours),
		})
	}
	return NewTable(title, []string{"#", "Name", "Location", "Score", "Bucket", "Primary", "Hours"}, rows, nil, scores)
}

func topScores(scores []tdg.Score, n int) []tdg.Score {
	if n <= 0 || n >= len(scores) {
		return scores
	}
	return scores[:n]
}

func warningsSection(sum *engine.Summary, verbose bool) *Section {
	w := sum.Warnings
	var b strings.Builder
	fmt.Fprintf(&b, "%d parse errors, %d ambiguities, %d degraded, %d skipped",
		len(w.ParseErrors), len(w.Ambiguities), len(w.Degraded), len(w.Skipped))
	for _, d := range w.Degraded {
		fmt.Fprintf(&b, "\n  %s", d.Error())
	}
	if verbose {
		for _, p := range w.ParseErrors {
			fmt.Fprintf(&b, "\n  %s: %s: %s", p.Path, p.Kind, p.Message)
		}
		for _, a := range w.Ambiguities {
			fmt.Fprintf(&b, "\n  %s", a.Error())
		}
		for _, s := range w.Skipped {
			fmt.Fprintf(&b, "\n  %s: %s", s.Path, s.Reason)
		}
	}
	return &Section{Title: "Warnings", Content: b.String(), Data: w}
}

func location(file string, line uint32) string {
	if line == 0 {
		return file
	}
	return fmt.Sprintf("%s:%d", file, line)
}
