// Package output renders analysis results as text, JSON, TOON or markdown.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	toon "github.com/toon-format/toon-go"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatTOON     Format = "toon"
	FormatMarkdown Format = "markdown"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "toon":
		return FormatTOON
	case "markdown", "md":
		return FormatMarkdown
	default:
		return FormatText
	}
}

// Renderable is data that can render itself for people. Machine formats
// serialize RenderData instead.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	RenderData() any
}

// Formatter writes results in one format to stdout or a file.
type Formatter struct {
	format  Format
	writer  io.Writer
	file    *os.File
	colored bool
}

// NewFormatter creates a formatter. A non-empty output path is created and
// written without color.
func NewFormatter(format Format, output string, colored bool) (*Formatter, error) {
	if output == "" {
		return NewWriterFormatter(format, os.Stdout, colored), nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, err
	}
	fm := NewWriterFormatter(format, f, false)
	fm.file = f
	return fm, nil
}

// NewWriterFormatter creates a formatter over an existing writer.
func NewWriterFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, writer: w, colored: colored}
}

// Close closes the output file, if any.
func (f *Formatter) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Writer returns the underlying writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Format returns the configured format.
func (f *Formatter) Format() Format {
	return f.format
}

// Colored returns whether colored output is enabled.
func (f *Formatter) Colored() bool {
	return f.colored
}

// Output writes data in the configured format. Data that is not
// Renderable is serialized in every format; text falls back to JSON.
func (f *Formatter) Output(data any) error {
	r, ok := data.(Renderable)
	switch f.format {
	case FormatJSON:
		if ok {
			data = r.RenderData()
		}
		return writeJSON(f.writer, data)
	case FormatTOON:
		if ok {
			data = r.RenderData()
		}
		return writeTOON(f.writer, data)
	case FormatMarkdown:
		if ok {
			return r.RenderMarkdown(f.writer)
		}
		fmt.Fprintln(f.writer, "```json")
		if err := writeJSON(f.writer, data); err != nil {
			return err
		}
		fmt.Fprintln(f.writer, "```")
		return nil
	default:
		if ok {
			return r.RenderText(f.writer, f.colored)
		}
		return writeJSON(f.writer, data)
	}
}

func writeJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// writeTOON round-trips data through JSON first so field names and
// omitempty follow the json tags every result type carries.
func writeTOON(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	out, err := toon.Marshal(generic, toon.WithIndent(2))
	if err != nil {
		return fmt.Errorf("encode toon: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w)
	return err
}

// Table is a titled table. Data, when set, replaces the rows in machine
// formats.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Footer  []string
	Data    any
}

// NewTable creates a table that wraps structured data for serialization.
func NewTable(title string, headers []string, rows [][]string, footer []string, data any) *Table {
	return &Table{Title: title, Headers: headers, Rows: rows, Footer: footer, Data: data}
}

func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	result := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		result[i] = m
	}
	return result
}

func (t *Table) RenderText(w io.Writer, colored bool) error {
	heading(w, t.Title, "=", colored)

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
			},
			Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
			Footer: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{Left: tw.Off, Right: tw.Off, Top: tw.Off, Bottom: tw.Off},
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenColumns: tw.Off},
			},
		}),
	)

	table.Header(t.Headers)
	for _, row := range t.Rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if len(t.Footer) > 0 {
		footer := make([]any, len(t.Footer))
		for i, f := range t.Footer {
			footer[i] = f
		}
		table.Footer(footer...)
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return nil
}

func (t *Table) RenderMarkdown(w io.Writer) error {
	if t.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", t.Title)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(t.Headers, " | "))
	seps := make([]string, len(t.Headers))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
	for _, row := range t.Rows {
		fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(row), " | "))
	}
	if len(t.Footer) > 0 {
		fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(t.Footer), " | "))
	}
	fmt.Fprintln(w)
	return nil
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return out
}

// Section is a titled block of text. Fenced, when set, wraps the content
// in a markdown code fence of that language.
type Section struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Fenced  string `json:"-"`
	Data    any    `json:"data,omitempty"`
}

func (s *Section) RenderData() any {
	if s.Data != nil {
		return s.Data
	}
	return s
}

func (s *Section) RenderText(w io.Writer, colored bool) error {
	heading(w, s.Title, "-", colored)
	if s.Content != "" {
		fmt.Fprintln(w, strings.TrimRight(s.Content, "\n"))
	}
	return nil
}

func (s *Section) RenderMarkdown(w io.Writer) error {
	if s.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", s.Title)
	}
	if s.Content == "" {
		return nil
	}
	content := strings.TrimRight(s.Content, "\n")
	if s.Fenced != "" {
		fmt.Fprintf(w, "```%s\n%s\n```\n\n", s.Fenced, content)
		return nil
	}
	fmt.Fprintf(w, "%s\n\n", content)
	return nil
}

// Report is a titled sequence of sections and tables. Data, when set, is
// what machine formats serialize.
type Report struct {
	Title    string
	Sections []Renderable
	Data     any
}

func (r *Report) RenderData() any {
	if r.Data != nil {
		return r.Data
	}
	parts := make([]any, len(r.Sections))
	for i, s := range r.Sections {
		parts[i] = s.RenderData()
	}
	return map[string]any{
		"title":    r.Title,
		"sections": parts,
	}
}

func (r *Report) RenderText(w io.Writer, colored bool) error {
	if r.Title != "" {
		if colored {
			color.New(color.Bold, color.FgCyan).Fprintln(w, r.Title)
		} else {
			fmt.Fprintln(w, r.Title)
		}
		fmt.Fprintln(w, strings.Repeat("=", len(r.Title)))
		fmt.Fprintln(w)
	}
	for i, s := range r.Sections {
		if err := s.RenderText(w, colored); err != nil {
			return err
		}
		if i < len(r.Sections)-1 {
			fmt.Fprintln(w)
		}
	}
	return nil
}

func (r *Report) RenderMarkdown(w io.Writer) error {
	if r.Title != "" {
		fmt.Fprintf(w, "# %s\n\n", r.Title)
	}
	for _, s := range r.Sections {
		if err := s.RenderMarkdown(w); err != nil {
			return err
		}
	}
	return nil
}

func heading(w io.Writer, title, underline string, colored bool) {
	if title == "" {
		return
	}
	if colored {
		color.New(color.Bold).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat(underline, len(title)))
}

// SeverityColor colors text by severity or risk bucket.
func SeverityColor(severity, text string) string {
	switch strings.ToLower(severity) {
	case "critical", "high":
		return color.RedString(text)
	case "medium":
		return color.YellowString(text)
	case "low":
		return color.GreenString(text)
	default:
		return text
	}
}

// Warning prints a warning line, in yellow when colored.
func (f *Formatter) Warning(format string, args ...any) {
	if f.colored {
		color.New(color.FgYellow).Fprintf(f.writer, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.writer, "WARNING: "+format+"\n", args...)
}
