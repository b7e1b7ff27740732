// Package checkpoint records the progress of a verification run so it can
// be inspected, reported on, and resumed without repeating work.
//
// A Checkpoint is mutated only through its methods. Each mutator updates
// LastUpdated together with the field it changes and recomputes the
// progress counters, so completed + in progress + remaining always equals
// the total.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the final status of a scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepTimeout StepStatus = "timeout"
	StepSkipped StepStatus = "skipped"
)

// FindingType classifies a finding.
type FindingType string

const (
	FindingWarning FindingType = "warning"
	FindingError   FindingType = "error"
	FindingFixed   FindingType = "fixed"
)

// Duration is a time.Duration that serializes as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Progress holds the run counters. Items are steps.
type Progress struct {
	Total         int `json:"total"`
	Completed     int `json:"completed"`
	InProgress    int `json:"in_progress"`
	Remaining     int `json:"remaining"`
	ItemsTotal    int `json:"items_total"`
	ItemsVerified int `json:"items_verified"`
}

// Position points at the step currently executing.
type Position struct {
	Scenario string `json:"scenario"`
	Step     int    `json:"step"`
	StepName string `json:"step_name,omitempty"`
}

// StepRecord is the persisted outcome of one step.
type StepRecord struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Critical bool       `json:"critical,omitempty"`
	Duration Duration   `json:"duration"`
	Message  string     `json:"message,omitempty"`
}

// ScenarioRecord is one entry of the completed-scenario history.
type ScenarioRecord struct {
	ID            string       `json:"id"`
	Status        Status       `json:"status"`
	Duration      Duration     `json:"duration"`
	Confidence    int          `json:"confidence"`
	ItemsVerified int          `json:"items_verified"`
	ItemsTotal    int          `json:"items_total"`
	CompletedAt   time.Time    `json:"completed_at"`
	Steps         []StepRecord `json:"steps,omitempty"`
}

// SkipRecord notes a scenario that was not run. Skipped scenarios are not
// completed: they count as remaining and are attempted again on resume.
type SkipRecord struct {
	ID     string    `json:"id"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Finding is an append-only log entry.
type Finding struct {
	Scenario  string      `json:"scenario"`
	Step      string      `json:"step,omitempty"`
	Type      FindingType `json:"type"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// PreservedResource is an ephemeral resource kept for inspection.
type PreservedResource struct {
	Name     string    `json:"name"`
	Scenario string    `json:"scenario,omitempty"`
	Reason   string    `json:"reason"`
	Preserve bool      `json:"preserve"`
	MarkedAt time.Time `json:"marked_at"`
}

// Checkpoint is the durable record of one run.
type Checkpoint struct {
	RunID       string              `json:"run_id"`
	StartedAt   time.Time           `json:"started_at"`
	LastUpdated time.Time           `json:"last_updated"`
	Progress    Progress            `json:"progress"`
	Current     *Position           `json:"current"`
	Completed   []ScenarioRecord    `json:"completed_scenarios"`
	Skipped     []SkipRecord        `json:"skipped_scenarios,omitempty"`
	Findings    []Finding           `json:"findings"`
	Preserved   []PreservedResource `json:"preserved_resources"`

	clock func() time.Time
}

// Option configures New.
type Option func(*Checkpoint)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Checkpoint) { c.clock = now }
}

// New starts a checkpoint. An empty runID is generated from the clock.
func New(runID string, opts ...Option) *Checkpoint {
	c := &Checkpoint{clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	now := c.now()
	if runID == "" {
		runID = NewRunID(now)
	}
	c.RunID = runID
	c.StartedAt = now
	c.LastUpdated = now
	c.Completed = []ScenarioRecord{}
	c.Findings = []Finding{}
	c.Preserved = []PreservedResource{}
	return c
}

// NewRunID derives an opaque, sortable run ID from t.
func NewRunID(t time.Time) string {
	return t.UTC().Format("20060102T150405") + fmt.Sprintf("-%03d", t.Nanosecond()/int(time.Millisecond))
}

// SetClock replaces the clock on a loaded checkpoint.
func (c *Checkpoint) SetClock(now func() time.Time) { c.clock = now }

func (c *Checkpoint) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock().UTC()
}

func (c *Checkpoint) touch() {
	c.LastUpdated = c.now()
}

func (c *Checkpoint) recount() {
	c.Progress.Completed = len(c.Completed)
	c.Progress.InProgress = 0
	if c.Current != nil {
		c.Progress.InProgress = 1
	}
	c.Progress.Remaining = c.Progress.Total - c.Progress.Completed - c.Progress.InProgress
	if c.Progress.Remaining < 0 {
		c.Progress.Remaining = 0
	}
	verified := 0
	for _, r := range c.Completed {
		verified += r.ItemsVerified
	}
	c.Progress.ItemsVerified = verified
}

// Plan sets the size of the run. Completed history is kept, so a resumed
// run that plans the same scenarios picks up where it left off. A scenario
// left in progress by an interrupted run is dropped back to remaining.
func (c *Checkpoint) Plan(scenarios, items int) error {
	if scenarios < len(c.Completed) {
		return fmt.Errorf("plan of %d scenarios is smaller than the %d already completed", scenarios, len(c.Completed))
	}
	c.Current = nil
	c.Progress.Total = scenarios
	c.Progress.ItemsTotal = items
	c.recount()
	c.touch()
	return nil
}

// StartScenario marks id as in progress.
func (c *Checkpoint) StartScenario(id string) error {
	if c.IsCompleted(id) {
		return fmt.Errorf("scenario %q already completed in run %s", id, c.RunID)
	}
	if c.Current != nil && c.Current.Scenario != id {
		return fmt.Errorf("scenario %q started while %q is in progress", id, c.Current.Scenario)
	}
	if len(c.Completed)+1 > c.Progress.Total {
		return fmt.Errorf("scenario %q exceeds the planned total of %d", id, c.Progress.Total)
	}
	c.Current = &Position{Scenario: id}
	c.dropSkip(id)
	c.recount()
	c.touch()
	return nil
}

// UpdateStep moves the pointer to step n (1-based) of the current scenario.
func (c *Checkpoint) UpdateStep(n int, name string) error {
	if c.Current == nil {
		return fmt.Errorf("update step %d: no scenario in progress", n)
	}
	c.Current.Step = n
	c.Current.StepName = name
	c.touch()
	return nil
}

// CompleteScenario appends rec to the history and clears the pointer.
func (c *Checkpoint) CompleteScenario(rec ScenarioRecord) error {
	if rec.Status != StatusPassed && rec.Status != StatusFailed {
		return fmt.Errorf("complete scenario %q: status must be passed or failed, got %q", rec.ID, rec.Status)
	}
	if c.IsCompleted(rec.ID) {
		return fmt.Errorf("scenario %q already completed in run %s", rec.ID, c.RunID)
	}
	if c.Current == nil || c.Current.Scenario != rec.ID {
		if len(c.Completed)+1 > c.Progress.Total {
			return fmt.Errorf("scenario %q exceeds the planned total of %d", rec.ID, c.Progress.Total)
		}
	}
	now := c.now()
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = now
	}
	c.Completed = append(c.Completed, rec)
	if c.Current != nil && c.Current.Scenario == rec.ID {
		c.Current = nil
	}
	c.recount()
	c.LastUpdated = now
	return nil
}

// RecordSkip notes that id was not run and why.
func (c *Checkpoint) RecordSkip(id, reason string) {
	c.dropSkip(id)
	now := c.now()
	c.Skipped = append(c.Skipped, SkipRecord{ID: id, Reason: reason, At: now})
	c.LastUpdated = now
}

func (c *Checkpoint) dropSkip(id string) {
	kept := c.Skipped[:0]
	for _, s := range c.Skipped {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	c.Skipped = kept
}

// AddFinding appends a finding. Findings are never removed.
func (c *Checkpoint) AddFinding(scenario, step string, typ FindingType, message string) Finding {
	now := c.now()
	f := Finding{Scenario: scenario, Step: step, Type: typ, Message: message, Timestamp: now}
	c.Findings = append(c.Findings, f)
	c.LastUpdated = now
	return f
}

// MarkPreserve flags resource so cleanup leaves it in place.
func (c *Checkpoint) MarkPreserve(resource, scenario, reason string) {
	now := c.now()
	for i := range c.Preserved {
		if c.Preserved[i].Name == resource {
			c.Preserved[i].Reason = reason
			c.Preserved[i].Scenario = scenario
			c.Preserved[i].MarkedAt = now
			c.LastUpdated = now
			return
		}
	}
	c.Preserved = append(c.Preserved, PreservedResource{
		Name: resource, Scenario: scenario, Reason: reason, Preserve: true, MarkedAt: now,
	})
	c.LastUpdated = now
}

// IsPreserved reports whether resource was marked for preservation.
func (c *Checkpoint) IsPreserved(resource string) bool {
	for _, p := range c.Preserved {
		if p.Name == resource && p.Preserve {
			return true
		}
	}
	return false
}

// CompletedIDs lists completed scenarios in completion order.
func (c *Checkpoint) CompletedIDs() []string {
	ids := make([]string, len(c.Completed))
	for i, r := range c.Completed {
		ids[i] = r.ID
	}
	return ids
}

// IsCompleted reports whether id is in the history.
func (c *Checkpoint) IsCompleted(id string) bool {
	_, ok := c.Record(id)
	return ok
}

// Record returns the history entry for id.
func (c *Checkpoint) Record(id string) (ScenarioRecord, bool) {
	for _, r := range c.Completed {
		if r.ID == id {
			return r, true
		}
	}
	return ScenarioRecord{}, false
}

// PassedSet returns the IDs of completed scenarios that passed.
func (c *Checkpoint) PassedSet() map[string]bool {
	set := make(map[string]bool, len(c.Completed))
	for _, r := range c.Completed {
		if r.Status == StatusPassed {
			set[r.ID] = true
		}
	}
	return set
}

// CheckInvariant verifies the progress counters.
func (c *Checkpoint) CheckInvariant() error {
	p := c.Progress
	if p.Completed+p.InProgress+p.Remaining != p.Total {
		return fmt.Errorf("checkpoint counters inconsistent: %d completed + %d in progress + %d remaining != %d total",
			p.Completed, p.InProgress, p.Remaining, p.Total)
	}
	if p.Completed != len(c.Completed) {
		return fmt.Errorf("checkpoint completed count %d != history length %d", p.Completed, len(c.Completed))
	}
	return nil
}

// Confidence is 100*passed/total truncated. ok is false when total is
// zero, in which case the score is 0.
func Confidence(passed, total int) (score int, ok bool) {
	if total <= 0 {
		return 0, false
	}
	return 100 * passed / total, true
}
