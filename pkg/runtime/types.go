// Package runtime drives verification runs: it substitutes captured
// variables into step commands, executes and evaluates steps, and walks
// the resolved scenario order through the per-scenario state machine.
package runtime

import (
	"time"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
)

// Vars is the captured variable set of one scenario. It starts from the
// scenario's static vars and grows with baseline captures and store_as.
type Vars map[string]string

// Clone returns an independent copy.
func (v Vars) Clone() Vars {
	out := make(Vars, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// ScenarioOutcome is the result of one scenario in this run.
type ScenarioOutcome struct {
	ID         string            `json:"id"`
	Status     checkpoint.Status `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Confidence int               `json:"confidence"`
	Resumed    bool              `json:"resumed,omitempty"`
}

// RunState is returned by Runner.Run. It holds everything the run decided,
// so nothing about a run lives in package-level variables.
type RunState struct {
	RunID      string            `json:"run_id"`
	Order      []string          `json:"order"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
	Outcomes   []ScenarioOutcome `json:"outcomes"`
	GateFailed string            `json:"gate_failed,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

func (s *RunState) add(o ScenarioOutcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// Outcome returns the outcome recorded for id.
func (s *RunState) Outcome(id string) (ScenarioOutcome, bool) {
	for _, o := range s.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return ScenarioOutcome{}, false
}

// Counts tallies outcomes by status.
func (s *RunState) Counts() StepsSummary {
	var c StepsSummary
	for _, o := range s.Outcomes {
		c.Total++
		switch o.Status {
		case checkpoint.StatusPassed:
			c.Passed++
		case checkpoint.StatusFailed:
			c.Failed++
		case checkpoint.StatusSkipped:
			c.Skipped++
		}
	}
	return c
}

// Success is true iff every scenario that was not skipped passed and no
// gate failed.
func (s *RunState) Success() bool {
	return s.Counts().Failed == 0 && s.GateFailed == ""
}

// StepsSummary counts results by status.
type StepsSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Trace event types.
const (
	EventScenarioStarted   = "scenario_started"
	EventStepResult        = "step_result"
	EventScenarioCompleted = "scenario_completed"
	EventFinding           = "finding"
)

// TraceEvent is one line of the JSONL trace.
type TraceEvent struct {
	Type      string              `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	RunID     string              `json:"run_id"`
	Scenario  string              `json:"scenario"`
	Step      *StepTrace          `json:"step,omitempty"`
	Status    checkpoint.Status   `json:"status,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	Finding   *checkpoint.Finding `json:"finding,omitempty"`
}

// StepTrace is the step payload of a step_result event. Output is redacted.
type StepTrace struct {
	Index    int                   `json:"index"`
	Name     string                `json:"name"`
	Command  string                `json:"command"`
	Status   checkpoint.StepStatus `json:"status"`
	ExitCode int                   `json:"exit_code"`
	TimedOut bool                  `json:"timed_out,omitempty"`
	Duration checkpoint.Duration   `json:"duration"`
	Output   string                `json:"output,omitempty"`
	Reason   string                `json:"reason,omitempty"`
}
