// Package diagram renders scenarios as Mermaid flowcharts or ASCII boxes.
// Two views exist: the dependency graph across scenarios, and the
// phase flow (setup, baseline, steps, cleanup) inside one scenario.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/verity/pkg/schema"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// ParseFormat accepts "mermaid" or "ascii".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatMermaid:
		return FormatMermaid, nil
	case FormatASCII:
		return FormatASCII, nil
	}
	return "", fmt.Errorf("unsupported diagram format: %s", s)
}

// Graph produces a dependency diagram. order must be a resolved
// topological order; scenarios not in order are left out.
func Graph(scenarios []*schema.Scenario, order []string, format Format) (string, error) {
	byID := make(map[string]*schema.Scenario, len(scenarios))
	for _, sc := range scenarios {
		byID[sc.ID] = sc
	}
	nodes := make([]graphNode, 0, len(order))
	for _, id := range order {
		sc, ok := byID[id]
		if !ok {
			return "", fmt.Errorf("scenario %q in order but not provided", id)
		}
		n := graphNode{id: sc.ID, title: sc.Name, gate: sc.Gate, steps: len(sc.Steps)}
		for _, d := range sc.Dependencies {
			if _, known := byID[d]; known {
				n.deps = append(n.deps, d)
			}
		}
		nodes = append(nodes, n)
	}
	switch format {
	case FormatMermaid:
		return graphMermaid(nodes), nil
	case FormatASCII:
		return graphASCII(nodes), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// Scenario produces the phase flow of a single scenario.
func Scenario(sc *schema.Scenario, format Format) (string, error) {
	if sc == nil {
		return "", fmt.Errorf("nil scenario")
	}
	switch format {
	case FormatMermaid:
		return flowMermaid(sc), nil
	case FormatASCII:
		return flowASCII(sc), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

type graphNode struct {
	id    string
	title string
	gate  bool
	steps int
	deps  []string
}

// --- Mermaid ---

func graphMermaid(nodes []graphNode) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, n := range nodes {
		label := escMermaid(n.title)
		if label == "" {
			label = n.id
		}
		label = fmt.Sprintf("%s<br/>%d steps", label, n.steps)
		if n.gate {
			fmt.Fprintf(&b, "    %s{{\"%s %s\"}}\n", safeID(n.id), gateIcon, label)
		} else {
			fmt.Fprintf(&b, "    %s[\"%s\"]\n", safeID(n.id), label)
		}
	}
	for _, n := range nodes {
		for _, d := range n.deps {
			fmt.Fprintf(&b, "    %s --> %s\n", safeID(d), safeID(n.id))
		}
	}
	for _, n := range nodes {
		if n.gate {
			fmt.Fprintf(&b, "    style %s fill:#e60,stroke:#c40,color:#fff\n", safeID(n.id))
		}
	}
	return b.String()
}

func flowMermaid(sc *schema.Scenario) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	ids := []string{"START"}
	b.WriteString("    START([" + escMermaid(sc.ID) + "])\n")

	for i, c := range sc.Setup {
		id := fmt.Sprintf("setup_%d", i)
		fmt.Fprintf(&b, "    %s[/\"%s %s\"/]\n", id, setupIcon, escMermaid(commandLabel(c.Name, c.Run, c.Argv)))
		ids = append(ids, id)
	}
	if len(sc.Baseline) > 0 {
		fmt.Fprintf(&b, "    baseline[(\"baseline: %s\")]\n", escMermaid(strings.Join(sortedKeys(sc.Baseline), ", ")))
		ids = append(ids, "baseline")
	}
	for i, s := range sc.Steps {
		id := fmt.Sprintf("step_%d", i)
		label := stepIcon(s) + " " + escMermaid(s.Name)
		if s.StoreAs != "" {
			label += "<br/>→ " + s.StoreAs
		}
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", id, label)
		ids = append(ids, id)
	}
	cleanupStart := len(ids)
	for i, c := range sc.Cleanup {
		id := fmt.Sprintf("cleanup_%d", i)
		fmt.Fprintf(&b, "    %s[\\\"%s %s\"\\]\n", id, cleanupIcon, escMermaid(commandLabel(c.Name, c.Run, c.Argv)))
		ids = append(ids, id)
	}
	ids = append(ids, "END")
	b.WriteString("    END([done])\n")

	for i := 0; i+1 < len(ids); i++ {
		fmt.Fprintf(&b, "    %s --> %s\n", ids[i], ids[i+1])
	}
	// Critical failures jump straight to cleanup.
	target := "END"
	if cleanupStart < len(ids)-1 {
		target = ids[cleanupStart]
	}
	for i, s := range sc.Steps {
		if s.Critical() {
			fmt.Fprintf(&b, "    step_%d -.->|\"critical failure\"| %s\n", i, target)
			fmt.Fprintf(&b, "    style step_%d stroke:#f33,stroke-width:2px\n", i)
		}
	}
	return b.String()
}

// --- ASCII ---

const indent = 4

func graphASCII(nodes []graphNode) string {
	var b strings.Builder
	if len(nodes) == 0 {
		b.WriteString("(no scenarios)\n")
		return b.String()
	}
	lines := make([][]string, len(nodes))
	for i, n := range nodes {
		head := fmt.Sprintf(" %d. %s ", i+1, n.id)
		if n.gate {
			head = fmt.Sprintf(" %d. %s %s ", i+1, gateIcon, n.id)
		}
		body := []string{head}
		if n.title != "" && n.title != n.id {
			body = append(body, "    "+n.title+" ")
		}
		if len(n.deps) > 0 {
			body = append(body, "    needs: "+strings.Join(n.deps, ", ")+" ")
		}
		lines[i] = body
	}
	width := 22
	for _, body := range lines {
		for _, l := range body {
			if w := runewidth.StringWidth(l); w > width {
				width = w
			}
		}
	}
	connCol := indent + 1 + width/2
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", connCol)

	for i, body := range lines {
		writeBox(&b, pad, body, width, i < len(lines)-1)
		if i < len(lines)-1 {
			b.WriteString(connPad + "│\n")
		}
	}
	return b.String()
}

func flowASCII(sc *schema.Scenario) string {
	var body [][]string
	for _, c := range sc.Setup {
		body = append(body, []string{" " + setupIcon + " setup: " + commandLabel(c.Name, c.Run, c.Argv) + " "})
	}
	if len(sc.Baseline) > 0 {
		body = append(body, []string{" baseline: " + strings.Join(sortedKeys(sc.Baseline), ", ") + " "})
	}
	for _, s := range sc.Steps {
		box := []string{" " + stepIcon(s) + " " + s.Name + " "}
		if s.StoreAs != "" {
			box = append(box, " → "+s.StoreAs+" ")
		}
		body = append(body, box)
	}
	for _, c := range sc.Cleanup {
		body = append(body, []string{" " + cleanupIcon + " cleanup: " + commandLabel(c.Name, c.Run, c.Argv) + " "})
	}

	name := sc.Name
	if name == "" {
		name = sc.ID
	}
	var b strings.Builder
	if len(body) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	width := runewidth.StringWidth(name) + 4
	if width < 22 {
		width = 22
	}
	for _, box := range body {
		for _, l := range box {
			if w := runewidth.StringWidth(l); w > width {
				width = w
			}
		}
	}
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", indent+1+width/2)
	mid := width / 2

	b.WriteString(pad + "╔" + strings.Repeat("═", width) + "╗\n")
	b.WriteString(pad + "║" + centerPad(name, width) + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", width-mid-1) + "╝\n")
	b.WriteString(connPad + "│\n")
	for i, box := range body {
		writeBox(&b, pad, box, width, i < len(body)-1)
		if i < len(body)-1 {
			b.WriteString(connPad + "│\n")
		}
	}
	return b.String()
}

func writeBox(b *strings.Builder, pad string, lines []string, width int, connect bool) {
	mid := width / 2
	b.WriteString(pad + "┌" + strings.Repeat("─", width) + "┐\n")
	for _, l := range lines {
		b.WriteString(pad + "│" + l + strings.Repeat(" ", width-runewidth.StringWidth(l)) + "│\n")
	}
	if connect {
		b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", width-mid-1) + "┘\n")
	} else {
		b.WriteString(pad + "└" + strings.Repeat("─", width) + "┘\n")
	}
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	total := width - sw
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}

const (
	gateIcon    = "⛩"
	setupIcon   = "⚙"
	cleanupIcon = "🧹"
)

func stepIcon(s schema.Step) string {
	if s.Critical() {
		return "⚡"
	}
	return "○"
}

func commandLabel(name, run string, argv []string) string {
	if name != "" {
		return name
	}
	if run != "" {
		return truncate(run, 40)
	}
	return truncate(strings.Join(argv, " "), 40)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_")
	return r.Replace(id)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
