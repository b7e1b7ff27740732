package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary renders a human-readable report of the checkpoint, with times
// relative to the checkpoint clock.
func (c *Checkpoint) Summary() string {
	now := c.now()
	var b strings.Builder
	p := c.Progress

	fmt.Fprintf(&b, "Run %s · started %s · updated %s\n",
		c.RunID, humanize.RelTime(c.StartedAt, now, "ago", "from now"), humanize.RelTime(c.LastUpdated, now, "ago", "from now"))
	fmt.Fprintf(&b, "Progress: %d/%d scenarios (%d in progress, %d remaining) · %s/%s items verified\n",
		p.Completed, p.Total, p.InProgress, p.Remaining, humanize.Comma(int64(p.ItemsVerified)), humanize.Comma(int64(p.ItemsTotal)))
	if c.Current != nil {
		fmt.Fprintf(&b, "Current: %s step %d", c.Current.Scenario, c.Current.Step)
		if c.Current.StepName != "" {
			fmt.Fprintf(&b, " (%s)", c.Current.StepName)
		}
		b.WriteString("\n")
	}

	if len(c.Completed) > 0 {
		b.WriteString("Completed:\n")
		width := 0
		for _, r := range c.Completed {
			if len(r.ID) > width {
				width = len(r.ID)
			}
		}
		for _, r := range c.Completed {
			mark := "✓"
			if r.Status != StatusPassed {
				mark = "✗"
			}
			fmt.Fprintf(&b, "  %s %-*s  %-6s %3d%%  %d/%d items  %s\n",
				mark, width, r.ID, r.Status, r.Confidence, r.ItemsVerified, r.ItemsTotal,
				time.Duration(r.Duration).Round(time.Millisecond))
		}
	}
	if len(c.Skipped) > 0 {
		b.WriteString("Skipped:\n")
		for _, s := range c.Skipped {
			fmt.Fprintf(&b, "  - %s: %s\n", s.ID, s.Reason)
		}
	}

	if len(c.Findings) > 0 {
		counts := map[FindingType]int{}
		for _, f := range c.Findings {
			counts[f.Type]++
		}
		var parts []string
		for _, t := range []FindingType{FindingError, FindingWarning, FindingFixed} {
			if counts[t] > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
			}
		}
		fmt.Fprintf(&b, "Findings: %d (%s)\n", len(c.Findings), strings.Join(parts, ", "))
		for _, f := range c.Findings {
			where := f.Scenario
			if f.Step != "" {
				where += "/" + f.Step
			}
			fmt.Fprintf(&b, "  [%s] %s: %s\n", f.Type, where, f.Message)
		}
	}

	if len(c.Preserved) > 0 {
		b.WriteString("Preserved:\n")
		for _, r := range c.Preserved {
			fmt.Fprintf(&b, "  - %s (%s)\n", r.Name, r.Reason)
		}
	}
	return b.String()
}
