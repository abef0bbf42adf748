package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"TEXT", FormatText},
		{"json", FormatJSON},
		{"toon", FormatTOON},
		{"TOON", FormatTOON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"", FormatText},
		{"xml", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	f, err := NewFormatter(FormatText, "", true)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, FormatText, f.Format())
	assert.True(t, f.Colored())
	assert.Nil(t, f.file)
	assert.Equal(t, os.Stdout, f.Writer())
}

func TestNewFormatterWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")

	f, err := NewFormatter(FormatJSON, path, true)
	require.NoError(t, err)
	assert.NotNil(t, f.file)
	assert.False(t, f.Colored(), "files are never colored")

	require.NoError(t, f.Output(map[string]int{"files": 2}))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"files": 2}`, string(data))
}

func TestNewFormatterInvalidPath(t *testing.T) {
	_, err := NewFormatter(FormatText, filepath.Join(t.TempDir(), "missing", "out.txt"), false)
	assert.Error(t, err)
}

func sampleTable() *Table {
	return NewTable("Dead code",
		[]string{"Location", "Name"},
		[][]string{{"a.go:3", "unused"}, {"b.go:9", "stale|helper"}},
		[]string{"2 dead", ""},
		nil,
	)
}

func TestTableRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTable().RenderText(&buf, false))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Dead code\n=========\n"))
	assert.Contains(t, out, "unused")
	assert.Contains(t, out, "2 dead")
	assert.Contains(t, strings.ToUpper(out), "LOCATION")
}

func TestTableRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleTable().RenderMarkdown(&buf))
	out := buf.String()

	assert.Contains(t, out, "## Dead code\n\n")
	assert.Contains(t, out, "| Location | Name |\n| --- | --- |\n")
	assert.Contains(t, out, `| b.go:9 | stale\|helper |`)
	assert.Contains(t, out, "| 2 dead |  |")
}

func TestTableRenderData(t *testing.T) {
	rows := sampleTable().RenderData().([]map[string]string)
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]string{"Location": "a.go:3", "Name": "unused"}, rows[0])

	withData := NewTable("t", nil, nil, nil, []int{1, 2})
	assert.Equal(t, []int{1, 2}, withData.RenderData())
}

func TestSectionRender(t *testing.T) {
	s := &Section{Title: "Graph", Content: "graph TD\n    a --> b\n", Fenced: "mermaid"}

	var text bytes.Buffer
	require.NoError(t, s.RenderText(&text, false))
	assert.Equal(t, "Graph\n-----\ngraph TD\n    a --> b\n", text.String())

	var md bytes.Buffer
	require.NoError(t, s.RenderMarkdown(&md))
	assert.Equal(t, "## Graph\n\n```mermaid\ngraph TD\n    a --> b\n```\n\n", md.String())

	assert.Same(t, s, s.RenderData())
}

func TestReportRender(t *testing.T) {
	r := &Report{
		Title:    "strata analysis",
		Sections: []Renderable{&Section{Title: "Overview", Content: "Files: 2"}, sampleTable()},
	}

	var text bytes.Buffer
	require.NoError(t, r.RenderText(&text, false))
	assert.True(t, strings.HasPrefix(text.String(), "strata analysis\n===============\n\n"))
	assert.Contains(t, text.String(), "Overview\n--------\nFiles: 2\n")

	var md bytes.Buffer
	require.NoError(t, r.RenderMarkdown(&md))
	assert.True(t, strings.HasPrefix(md.String(), "# strata analysis\n\n## Overview\n\nFiles: 2\n\n"))

	data := r.RenderData().(map[string]any)
	assert.Equal(t, "strata analysis", data["title"])
	assert.Len(t, data["sections"], 2)
}

func TestFormatterOutput(t *testing.T) {
	r := &Report{Title: "x", Sections: []Renderable{sampleTable()}, Data: map[string]int{"files": 2}}

	tests := []struct {
		format Format
		check  func(t *testing.T, out string)
	}{
		{FormatJSON, func(t *testing.T, out string) {
			var got map[string]int
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			assert.Equal(t, 2, got["files"])
		}},
		{FormatTOON, func(t *testing.T, out string) {
			assert.Contains(t, out, "files: 2")
		}},
		{FormatMarkdown, func(t *testing.T, out string) {
			assert.True(t, strings.HasPrefix(out, "# x\n"))
		}},
		{FormatText, func(t *testing.T, out string) {
			assert.Contains(t, out, "unused")
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewWriterFormatter(tt.format, &buf, false).Output(r))
			tt.check(t, buf.String())
		})
	}
}

func TestFormatterOutputRaw(t *testing.T) {
	var md bytes.Buffer
	require.NoError(t, NewWriterFormatter(FormatMarkdown, &md, false).Output([]string{"a"}))
	assert.Equal(t, "```json\n[\n  \"a\"\n]\n```\n", md.String())

	var text bytes.Buffer
	require.NoError(t, NewWriterFormatter(FormatText, &text, false).Output(map[string]bool{"ok": true}))
	assert.JSONEq(t, `{"ok": true}`, text.String())
}

func TestFormatterWarning(t *testing.T) {
	var buf bytes.Buffer
	NewWriterFormatter(FormatText, &buf, false).Warning("%d parse errors", 3)
	assert.Equal(t, "WARNING: 3 parse errors\n", buf.String())
}

func TestSeverityColor(t *testing.T) {
	for _, sev := range []string{"critical", "high", "medium", "low", "unknown"} {
		assert.Contains(t, SeverityColor(sev, sev), sev)
	}
	assert.Equal(t, "plain", SeverityColor("other", "plain"))
}
