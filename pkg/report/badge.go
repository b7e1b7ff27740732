package report

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ormasoftchile/verity/pkg/atomicfile"
	"github.com/ormasoftchile/verity/pkg/checkpoint"
	"github.com/ormasoftchile/verity/pkg/config"
)

// Badge kinds with built-in meaning.
const (
	KindCoverage = "coverage"
	KindIssues   = "issues"
)

// Badge colors, best to worst.
const (
	ColorGreen  = "brightgreen"
	ColorYellow = "yellow"
	ColorOrange = "orange"
	ColorRed    = "red"
)

// Badge is a shields.io endpoint description.
type Badge struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
}

// LowerIsBetter reports whether green sits at the low end for kind.
// Issue counts are; percentages are not.
func LowerIsBetter(kind string) bool {
	return kind == KindIssues
}

// Color maps value onto the four-tier palette.
func Color(value float64, th config.BadgeThresholds, lowerIsBetter bool) string {
	if lowerIsBetter {
		switch {
		case value <= th.Green:
			return ColorGreen
		case value <= th.Yellow:
			return ColorYellow
		case value <= th.Orange:
			return ColorOrange
		}
		return ColorRed
	}
	switch {
	case value >= th.Green:
		return ColorGreen
	case value >= th.Yellow:
		return ColorYellow
	case value >= th.Orange:
		return ColorOrange
	}
	return ColorRed
}

// NewBadge describes value for kind using th.
func NewBadge(kind string, value float64, th config.BadgeThresholds) Badge {
	b := Badge{SchemaVersion: 1, Label: kind, Color: Color(value, th, LowerIsBetter(kind))}
	switch kind {
	case KindCoverage:
		b.Label = "verified"
		b.Message = strconv.FormatFloat(value, 'f', -1, 64) + "%"
	case KindIssues:
		b.Label = "open issues"
		b.Message = strconv.Itoa(int(value))
	default:
		b.Message = strconv.FormatFloat(value, 'f', -1, 64)
	}
	return b
}

// BadgeValue derives the value of a built-in kind from the checkpoint:
// the pass rate for coverage, the number of error and warning findings
// for issues.
func BadgeValue(kind string, cp *checkpoint.Checkpoint) (float64, error) {
	s := Summarize(cp)
	switch kind {
	case KindCoverage:
		return s.PassRate, nil
	case KindIssues:
		return float64(s.Errors + s.Warnings), nil
	}
	return 0, fmt.Errorf("unknown badge kind %q (want %s or %s)", kind, KindCoverage, KindIssues)
}

// GenerateBadge writes the badge JSON for value to path atomically.
func GenerateBadge(path, kind string, value float64, th config.BadgeThresholds) error {
	data, err := json.MarshalIndent(NewBadge(kind, value, th), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal badge: %w", err)
	}
	if err := atomicfile.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write badge: %w", err)
	}
	return nil
}
