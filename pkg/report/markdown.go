package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
)

// Markdown renders the run as a markdown digest, suitable for a CI job
// summary or for terminal rendering.
func Markdown(cp *checkpoint.Checkpoint) string {
	s := Summarize(cp)
	var b strings.Builder

	fmt.Fprintf(&b, "# Verification run `%s`\n\n", cp.RunID)
	result := "✓ passed"
	if !s.Success() {
		result = "✗ failed"
	}
	if cp.Progress.Remaining > 0 && s.Failed == 0 {
		result = "… incomplete"
	}
	fmt.Fprintf(&b, "**Result:** %s · %d passed · %d failed · %d skipped · pass rate %.1f%%\n\n",
		result, s.Passed, s.Failed, s.Skipped, s.PassRate)
	fmt.Fprintf(&b, "Items verified: %d/%d\n\n", s.ItemsVerified, s.ItemsTotal)

	if len(cp.Completed) > 0 || len(cp.Skipped) > 0 {
		b.WriteString("| Scenario | Status | Confidence | Steps | Duration |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, r := range cp.Completed {
			fmt.Fprintf(&b, "| %s | %s %s | %d%% | %d/%d | %s |\n",
				mdCell(r.ID), statusGlyph(r.Status), r.Status, r.Confidence,
				r.ItemsVerified, r.ItemsTotal, time.Duration(r.Duration).Round(time.Millisecond))
		}
		for _, sk := range cp.Skipped {
			fmt.Fprintf(&b, "| %s | ⊘ skipped: %s | - | - | - |\n", mdCell(sk.ID), mdCell(sk.Reason))
		}
		b.WriteString("\n")
	}

	if len(cp.Findings) > 0 {
		b.WriteString("## Findings\n\n")
		for _, f := range cp.Findings {
			where := "`" + f.Scenario + "`"
			if f.Step != "" {
				where += " / " + f.Step
			}
			fmt.Fprintf(&b, "- **%s** %s: %s\n", f.Type, where, f.Message)
		}
		b.WriteString("\n")
	}

	if len(cp.Preserved) > 0 {
		b.WriteString("## Preserved resources\n\n")
		for _, p := range cp.Preserved {
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", p.Name, p.Scenario, p.Reason)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func statusGlyph(s checkpoint.Status) string {
	switch s {
	case checkpoint.StatusPassed:
		return "✓"
	case checkpoint.StatusFailed:
		return "✗"
	}
	return "⊘"
}

func mdCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
