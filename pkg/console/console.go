package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize/english"
	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/verity/pkg/report"
)

// Status renders a scenario or step status with its glyph and color.
func Status(status string) string {
	switch status {
	case "passed":
		return passedStyle.Render(GlyphPassed + " passed")
	case "failed":
		return failedStyle.Render(GlyphFailed + " failed")
	case "timeout":
		return warnStyle.Render(GlyphTimeout + " timeout")
	case "skipped":
		return skippedStyle.Render(GlyphSkipped + " skipped")
	case "in_progress":
		return warnStyle.Render(GlyphRunning + " in progress")
	}
	return dimStyle.Render(GlyphPending + " " + status)
}

// Header renders a section title.
func Header(title string) string {
	return headerStyle.Render(title)
}

// Warning renders a one-line warning.
func Warning(msg string) string {
	return warnStyle.Render(GlyphWarning + " " + msg)
}

// Table lays out plain-text cells in aligned columns. Widths are measured
// in terminal cells, so wide runes and glyphs line up.
type Table struct {
	Headers []string
	Rows    [][]string
	// MaxWidth truncates cells wider than this many cells. 0 disables.
	MaxWidth int
}

// Append adds a row.
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table to w. The last column is not padded.
func (t *Table) Render(w io.Writer) error {
	cols := len(t.Headers)
	for _, r := range t.Rows {
		cols = max(cols, len(r))
	}
	widths := make([]int, cols)
	measure := func(cells []string) {
		for i, c := range cells {
			widths[i] = max(widths[i], runewidth.StringWidth(t.clip(c)))
		}
	}
	measure(t.Headers)
	for _, r := range t.Rows {
		measure(r)
	}

	line := func(cells []string, style func(string) string) string {
		parts := make([]string, 0, cols)
		for i := 0; i < cols; i++ {
			c := ""
			if i < len(cells) {
				c = t.clip(cells[i])
			}
			if i < cols-1 {
				c = runewidth.FillRight(c, widths[i])
			}
			parts = append(parts, style(c))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	var b strings.Builder
	if len(t.Headers) > 0 {
		b.WriteString(line(t.Headers, func(s string) string { return labelStyle.Render(s) }))
		b.WriteString("\n")
	}
	for _, r := range t.Rows {
		b.WriteString(line(r, func(s string) string { return s }))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (t *Table) clip(s string) string {
	if t.MaxWidth <= 0 || runewidth.StringWidth(s) <= t.MaxWidth {
		return s
	}
	return runewidth.Truncate(s, t.MaxWidth, "…")
}

// Banner renders the closing result box for a run.
func Banner(s report.Summary) string {
	var result string
	switch {
	case !s.Success():
		result = failedStyle.Render(GlyphFailed + " FAILED")
	case s.Remaining > 0:
		result = warnStyle.Render(GlyphPending + " INCOMPLETE")
	default:
		result = passedStyle.Render(GlyphPassed + " PASSED")
	}
	body := fmt.Sprintf("%s  %s · %s · %s · pass rate %.1f%%",
		result,
		english.Plural(s.Passed, "passed", "passed"),
		english.Plural(s.Failed, "failed", "failed"),
		english.Plural(s.Skipped, "skipped", "skipped"),
		s.PassRate)
	if s.Errors+s.Warnings > 0 {
		body += "\n" + dimStyle.Render(fmt.Sprintf("%s, %s",
			english.Plural(s.Errors, "error", ""), english.Plural(s.Warnings, "warning", "")))
	}
	return bannerStyle.Render(body)
}
