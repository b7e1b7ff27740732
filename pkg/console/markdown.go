package console

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown converts md to styled terminal output wrapped at width
// columns (0 disables wrapping). It falls back to the raw input when
// rendering fails.
func RenderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n") + "\n"
}
