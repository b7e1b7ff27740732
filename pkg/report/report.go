// Package report turns a checkpoint into the artifacts a run publishes:
// a summary, a JUnit XML file, shields.io badge descriptions and a
// markdown digest. Everything is derived from the checkpoint alone, so
// reports can be regenerated after the run without re-executing it.
package report

import (
	"math"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
)

// Summary is the headline of a run.
type Summary struct {
	RunID         string  `json:"run"`
	PassRate      float64 `json:"pass_rate"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	Skipped       int     `json:"skipped"`
	Total         int     `json:"total"`
	Remaining     int     `json:"remaining"`
	ItemsVerified int     `json:"items_verified"`
	ItemsTotal    int     `json:"items_total"`
	Findings      int     `json:"findings"`
	Errors        int     `json:"errors"`
	Warnings      int     `json:"warnings"`
}

// Success is true when nothing failed. Skipped scenarios do not count.
func (s Summary) Success() bool { return s.Failed == 0 }

// Summarize computes the summary. PassRate is passed / (passed + failed)
// as a percentage rounded to one decimal; it is 0 when nothing ran.
func Summarize(cp *checkpoint.Checkpoint) Summary {
	s := Summary{
		RunID:         cp.RunID,
		Skipped:       len(cp.Skipped),
		Total:         cp.Progress.Total,
		Remaining:     cp.Progress.Remaining,
		ItemsVerified: cp.Progress.ItemsVerified,
		ItemsTotal:    cp.Progress.ItemsTotal,
		Findings:      len(cp.Findings),
	}
	for _, r := range cp.Completed {
		switch r.Status {
		case checkpoint.StatusPassed:
			s.Passed++
		case checkpoint.StatusFailed:
			s.Failed++
		}
	}
	for _, f := range cp.Findings {
		switch f.Type {
		case checkpoint.FindingError:
			s.Errors++
		case checkpoint.FindingWarning:
			s.Warnings++
		}
	}
	if executed := s.Passed + s.Failed; executed > 0 {
		s.PassRate = math.Round(float64(s.Passed)*1000/float64(executed)) / 10
	}
	return s
}
