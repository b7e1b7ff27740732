package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
	"github.com/ormasoftchile/verity/pkg/config"
	"github.com/ormasoftchile/verity/pkg/graph"
	"github.com/ormasoftchile/verity/pkg/logging"
	"github.com/ormasoftchile/verity/pkg/registry"
	"github.com/ormasoftchile/verity/pkg/schema"
)

// Runner walks a resolved scenario order through the scenario state
// machine: pending, then skipped or running (setup, baseline, steps,
// cleanup), then passed or failed. Every transition is written to the
// checkpoint journal before the next one begins.
type Runner struct {
	Scenarios map[string]*schema.Scenario
	Resolver  *graph.Resolver
	Steps     *StepExecutor
	Journal   *checkpoint.Journal

	// Registry receives removals of ephemeral sites. Nil disables them.
	Registry *registry.Registry
	// Trace receives JSONL events. Nil disables tracing.
	Trace *TraceWriter
	// Logger receives findings and diagnostics.
	Logger *slog.Logger
	// Out receives human progress lines.
	Out io.Writer

	GatePolicy config.GatePolicy
	// Preserve keeps ephemeral sites of failed scenarios for inspection.
	Preserve bool
}

// RunOptions selects what Run executes.
type RunOptions struct {
	// Requested limits the run to these IDs and their dependencies.
	// Empty means every scenario.
	Requested []string
	// NoDeps runs exactly Requested, without pulling in or checking
	// dependencies.
	NoDeps bool
	// StepTimeout, when positive, overrides the timeout of every step.
	// Setup, baseline and cleanup commands keep their own.
	StepTimeout time.Duration
}

// NewRunner builds a runner over scenarios, recording into journal.
func NewRunner(scenarios []*schema.Scenario, steps *StepExecutor, journal *checkpoint.Journal) *Runner {
	byID := make(map[string]*schema.Scenario, len(scenarios))
	for _, sc := range scenarios {
		if _, dup := byID[sc.ID]; !dup {
			byID[sc.ID] = sc
		}
	}
	return &Runner{
		Scenarios:  byID,
		Resolver:   graph.New(scenarios),
		Steps:      steps,
		Journal:    journal,
		Logger:     logging.Discard(),
		Out:        io.Discard,
		GatePolicy: config.GateGlobal,
		Preserve:   true,
	}
}

// Plan resolves the execution order for opts without running anything.
func (r *Runner) Plan(opts RunOptions) (*graph.Result, error) {
	if !opts.NoDeps {
		return r.Resolver.ResolveOrder(opts.Requested...)
	}
	ids := opts.Requested
	if len(ids) == 0 {
		return r.Resolver.ResolveOrder()
	}
	for _, id := range ids {
		if !r.Resolver.Known(id) {
			return nil, &schema.NotFoundError{ID: id}
		}
	}
	return &graph.Result{Order: append([]string(nil), ids...)}, nil
}

// Run executes the plan. Scenarios already completed in the journal's
// checkpoint are not executed again; their recorded status stands.
//
// The returned error reports a failure of the run itself (resolution,
// persistence, cancellation). Scenario failures are in the RunState.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunState, error) {
	if r.Journal == nil || r.Journal.CP == nil {
		return nil, errors.New("runner has no checkpoint")
	}
	r.Logger = logging.OrDiscard(r.Logger)
	if r.Out == nil {
		r.Out = io.Discard
	}
	cp := r.Journal.CP

	plan, err := r.Plan(opts)
	if err != nil {
		return nil, err
	}

	state := &RunState{RunID: cp.RunID, Order: plan.Order, StartedAt: time.Now()}
	for _, w := range plan.Warnings {
		state.Warnings = append(state.Warnings, w.Message)
		r.Logger.Warn("unknown dependency", "scenario", w.Scenario, "dependency", w.Dependency)
		fmt.Fprintf(r.Out, "⚠ %s\n", w.Message)
	}

	if err := cp.Plan(r.planSize(plan.Order)); err != nil {
		return nil, err
	}
	if err := r.Journal.Flush(); err != nil {
		return nil, err
	}

	blocked := map[string]string{}
	for _, id := range plan.Order {
		if err := ctx.Err(); err != nil {
			state.EndedAt = time.Now()
			return state, err
		}

		if rec, done := cp.Record(id); done {
			state.add(ScenarioOutcome{ID: id, Status: rec.Status, Confidence: rec.Confidence, Resumed: true})
			fmt.Fprintf(r.Out, "⊙ %s: already %s in run %s\n", id, rec.Status, cp.RunID)
			if sc := r.Scenarios[id]; sc != nil && sc.Gate && rec.Status == checkpoint.StatusFailed {
				r.tripGate(state, blocked, id, false)
			}
			continue
		}

		if reason := r.skipReason(id, state, blocked, opts); reason != "" {
			if err := r.skip(state, id, reason); err != nil {
				return state, err
			}
			continue
		}

		sc := r.Scenarios[id]
		outcome, err := r.runScenario(ctx, sc, opts.StepTimeout)
		if err != nil {
			state.EndedAt = time.Now()
			return state, err
		}
		state.add(*outcome)

		if sc.Gate && outcome.Status == checkpoint.StatusFailed {
			r.tripGate(state, blocked, id, true)
			if err := r.Journal.Flush(); err != nil {
				return state, err
			}
		}
	}

	state.EndedAt = time.Now()
	return state, nil
}

// tripGate applies the gate policy after gate id failed. Only the first
// failed gate is reported in the RunState; under the dependents policy
// every failed gate blocks its own dependents.
func (r *Runner) tripGate(state *RunState, blocked map[string]string, id string, record bool) {
	for _, d := range r.Resolver.Dependents(id) {
		if _, ok := blocked[d]; !ok {
			blocked[d] = id
		}
	}
	if state.GateFailed == "" {
		state.GateFailed = id
	}
	msg := fmt.Sprintf("gate %s failed; skipping every scenario not yet started", id)
	if r.GatePolicy == config.GateDependents {
		msg = fmt.Sprintf("gate %s failed; skipping its dependents", id)
	}
	if record {
		r.finding(id, "", checkpoint.FindingError, msg)
	}
	fmt.Fprintf(r.Out, "\n■ %s\n", msg)
}

// planSize counts the scenarios and steps of the plan together with any
// already completed scenarios outside it, so resumed totals stay whole.
func (r *Runner) planSize(order []string) (scenarios, items int) {
	inPlan := make(map[string]bool, len(order))
	for _, id := range order {
		inPlan[id] = true
		if rec, ok := r.Journal.CP.Record(id); ok {
			items += rec.ItemsTotal
		} else if sc := r.Scenarios[id]; sc != nil {
			items += len(sc.Steps)
		}
	}
	scenarios = len(order)
	for _, rec := range r.Journal.CP.Completed {
		if !inPlan[rec.ID] {
			scenarios++
			items += rec.ItemsTotal
		}
	}
	return scenarios, items
}

func (r *Runner) skipReason(id string, state *RunState, blocked map[string]string, opts RunOptions) string {
	if gate := state.GateFailed; gate != "" {
		if r.GatePolicy != config.GateDependents {
			return fmt.Sprintf("gate %s failed", gate)
		}
		if g, ok := blocked[id]; ok {
			return fmt.Sprintf("gate %s failed", g)
		}
	}
	if opts.NoDeps {
		return ""
	}
	if unmet := r.Resolver.UnmetDependencies(id, r.Journal.CP.PassedSet()); len(unmet) > 0 {
		return fmt.Sprintf("dependencies not passed: %s", strings.Join(unmet, ", "))
	}
	return ""
}

func (r *Runner) skip(state *RunState, id, reason string) error {
	r.Journal.CP.RecordSkip(id, reason)
	state.add(ScenarioOutcome{ID: id, Status: checkpoint.StatusSkipped, Reason: reason})
	r.Logger.Info("scenario skipped", "scenario", id, "reason", reason)
	fmt.Fprintf(r.Out, "⊘ %s: skipped (%s)\n", id, reason)
	r.trace(TraceEvent{Type: EventScenarioCompleted, Scenario: id, Status: checkpoint.StatusSkipped, Reason: reason})
	return r.Journal.Flush()
}

func (r *Runner) runScenario(ctx context.Context, sc *schema.Scenario, stepTimeout time.Duration) (*ScenarioOutcome, error) {
	cp := r.Journal.CP
	if err := cp.StartScenario(sc.ID); err != nil {
		return nil, err
	}
	if err := r.Journal.Flush(); err != nil {
		return nil, err
	}
	r.trace(TraceEvent{Type: EventScenarioStarted, Scenario: sc.ID})
	r.Logger.Info("scenario started", "scenario", sc.ID, "steps", len(sc.Steps))
	fmt.Fprintf(r.Out, "\n▶ Scenario: %s [%s]\n", sc.Name, sc.ID)

	start := time.Now()
	vars := Vars(sc.Vars).Clone()
	failed := false
	var failReason string

	// runErr stops the scenario without completing it (cancellation or a
	// persistence failure). Cleanup still runs.
	setupOK, runErr := r.runSetup(ctx, sc, vars)
	if runErr == nil && !setupOK {
		failed = true
		failReason = "fatal setup command failed"
	}
	if runErr == nil && setupOK {
		runErr = r.captureBaseline(ctx, sc, vars)
	}

	records := make([]checkpoint.StepRecord, 0, len(sc.Steps))
	passed := 0
	aborted := !setupOK
	for i, step := range sc.Steps {
		if runErr != nil {
			break
		}
		if aborted {
			records = append(records, checkpoint.StepRecord{Name: step.Name, Status: checkpoint.StepSkipped, Critical: step.Critical()})
			continue
		}
		if runErr = cp.UpdateStep(i+1, step.Name); runErr != nil {
			break
		}
		fmt.Fprintf(r.Out, "  ▸ Step %d/%d: %s\n", i+1, len(sc.Steps), step.Name)

		res, err := r.Steps.ExecuteTimeout(ctx, step, vars, stepTimeout)
		if err != nil {
			runErr = err
			break
		}
		rec := checkpoint.StepRecord{
			Name:     step.Name,
			Status:   res.Status(),
			Critical: step.Critical(),
			Duration: checkpoint.Duration(res.Duration),
			Message:  res.Reason,
		}
		records = append(records, rec)
		r.trace(TraceEvent{Type: EventStepResult, Scenario: sc.ID, Step: &StepTrace{
			Index:    i,
			Name:     step.Name,
			Command:  r.Steps.Gov.Redact(res.Command),
			Status:   rec.Status,
			ExitCode: res.ExitCode,
			TimedOut: res.TimedOut,
			Duration: rec.Duration,
			Output:   res.Output,
			Reason:   res.Reason,
		}})

		if res.Matched {
			passed++
			fmt.Fprintf(r.Out, "    ✓ passed (%s)\n", res.Duration.Round(time.Millisecond))
		} else {
			failed = true
			if failReason == "" {
				failReason = fmt.Sprintf("step %q: %s", step.Name, res.Reason)
			}
			typ := checkpoint.FindingWarning
			if step.Critical() {
				typ = checkpoint.FindingError
			}
			msg := res.Reason
			if step.OnFailure != nil && step.OnFailure.Message != "" {
				msg = step.OnFailure.Message + ": " + msg
			}
			r.finding(sc.ID, step.Name, typ, msg)
			fmt.Fprintf(r.Out, "    ✗ %s: %s\n", rec.Status, res.Reason)
			if step.Critical() {
				fmt.Fprintf(r.Out, "    ■ critical step failed; remaining steps skipped\n")
				aborted = true
			}
		}
		runErr = r.Journal.Flush()
	}

	// Cleanup runs even after cancellation.
	r.runCleanup(context.WithoutCancel(ctx), sc, vars)

	if runErr != nil {
		// The scenario stays current in the checkpoint, so a resume
		// re-attempts it; its sites are handled as for a failure.
		fmt.Fprintf(r.Out, "  ■ interrupted: %v\n", runErr)
		r.handleEphemeral(sc, checkpoint.StatusFailed)
		if err := r.Journal.Flush(); err != nil {
			r.Logger.Error("saving checkpoint after interruption", "scenario", sc.ID, "error", err)
		}
		return nil, runErr
	}

	status := checkpoint.StatusPassed
	if failed {
		status = checkpoint.StatusFailed
	}
	r.handleEphemeral(sc, status)

	confidence, ok := checkpoint.Confidence(passed, len(sc.Steps))
	if !ok {
		r.finding(sc.ID, "", checkpoint.FindingWarning, "scenario has no steps; confidence undefined, recorded as 0")
	}

	rec := checkpoint.ScenarioRecord{
		ID:            sc.ID,
		Status:        status,
		Duration:      checkpoint.Duration(time.Since(start)),
		Confidence:    confidence,
		ItemsVerified: passed,
		ItemsTotal:    len(sc.Steps),
		Steps:         records,
	}
	if err := cp.CompleteScenario(rec); err != nil {
		return nil, err
	}
	if err := r.Journal.Flush(); err != nil {
		return nil, err
	}
	r.trace(TraceEvent{Type: EventScenarioCompleted, Scenario: sc.ID, Status: status, Reason: failReason})
	r.Logger.Info("scenario completed", "scenario", sc.ID, "status", status, "confidence", confidence)

	glyph := "✓"
	if failed {
		glyph = "✗"
	}
	fmt.Fprintf(r.Out, "%s %s: %s (%d/%d steps, confidence %d%%)\n", glyph, sc.ID, status, passed, len(sc.Steps), confidence)

	return &ScenarioOutcome{ID: sc.ID, Status: status, Reason: failReason, Confidence: confidence}, nil
}

// runSetup reports false when a fatal setup command failed. Non-fatal
// failures are warnings.
func (r *Runner) runSetup(ctx context.Context, sc *schema.Scenario, vars Vars) (bool, error) {
	for i, c := range sc.Setup {
		res, err := r.Steps.RunCommand(ctx, c, vars)
		if err != nil {
			return false, err
		}
		if res.Matched {
			continue
		}
		name := fmt.Sprintf("setup[%d] %s", i, res.Name)
		if c.Fatal {
			r.finding(sc.ID, name, checkpoint.FindingError, res.Reason)
			fmt.Fprintf(r.Out, "  ✗ %s: %s\n", name, res.Reason)
			return false, nil
		}
		r.finding(sc.ID, name, checkpoint.FindingWarning, res.Reason)
		fmt.Fprintf(r.Out, "  ⚠ %s: %s\n", name, res.Reason)
	}
	return true, nil
}

func (r *Runner) captureBaseline(ctx context.Context, sc *schema.Scenario, vars Vars) error {
	names := make([]string, 0, len(sc.Baseline))
	for name := range sc.Baseline {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value, res, err := r.Steps.Capture(ctx, name, sc.Baseline[name], vars)
		if err != nil {
			return err
		}
		if !res.TimedOut && res.Command != "" && !res.Blocked {
			vars[name] = value
		}
		if !res.Matched {
			r.finding(sc.ID, "baseline "+name, checkpoint.FindingWarning, res.Reason)
		}
	}
	return nil
}

// runCleanup attempts every cleanup command. Failures become findings and
// never change the scenario status.
func (r *Runner) runCleanup(ctx context.Context, sc *schema.Scenario, vars Vars) {
	for i, c := range sc.Cleanup {
		res, err := r.Steps.RunCommand(ctx, c, vars)
		name := fmt.Sprintf("cleanup[%d] %s", i, commandText(c.Run, c.Argv))
		if c.Name != "" {
			name = fmt.Sprintf("cleanup[%d] %s", i, c.Name)
		}
		switch {
		case err != nil:
			r.finding(sc.ID, name, checkpoint.FindingWarning, err.Error())
		case !res.Matched:
			r.finding(sc.ID, name, checkpoint.FindingWarning, res.Reason)
			fmt.Fprintf(r.Out, "  ⚠ %s: %s\n", name, res.Reason)
		}
	}
}

// handleEphemeral removes the scenario's ephemeral sites from the
// registry, or marks them preserved when the scenario failed.
func (r *Runner) handleEphemeral(sc *schema.Scenario, status checkpoint.Status) {
	cp := r.Journal.CP
	for _, res := range sc.Ephemeral {
		site := res.Site
		if status == checkpoint.StatusFailed && r.Preserve {
			cp.MarkPreserve(site, sc.ID, "scenario failed; kept for inspection")
			fmt.Fprintf(r.Out, "  ⚑ preserved %s for inspection\n", site)
			continue
		}
		if cp.IsPreserved(site) {
			r.Logger.Info("ephemeral site preserved by an earlier failure; not removing", "site", site)
			continue
		}
		if r.Registry == nil {
			continue
		}
		exists, err := r.Registry.SiteExists(site)
		if err != nil {
			r.finding(sc.ID, "ephemeral "+site, checkpoint.FindingError, err.Error())
			continue
		}
		if !exists {
			continue
		}
		result, err := r.Registry.RemoveSite(site)
		if err != nil {
			r.finding(sc.ID, "ephemeral "+site, checkpoint.FindingError, fmt.Sprintf("remove site: %v", err))
			continue
		}
		r.finding(sc.ID, "ephemeral "+site, checkpoint.FindingFixed,
			fmt.Sprintf("removed site %s from registry (%d lines)", site, result.LinesRemoved))
	}
}

func (r *Runner) finding(scenario, step string, typ checkpoint.FindingType, msg string) {
	f := r.Journal.CP.AddFinding(scenario, step, typ, msg)
	attrs := []any{"scenario", scenario, "message", msg}
	if step != "" {
		attrs = append(attrs, "step", step)
	}
	switch typ {
	case checkpoint.FindingError:
		r.Logger.Error("finding", attrs...)
	case checkpoint.FindingWarning:
		r.Logger.Warn("finding", attrs...)
	default:
		r.Logger.Info("finding", attrs...)
	}
	r.trace(TraceEvent{Type: EventFinding, Scenario: scenario, Finding: &f})
}

func (r *Runner) trace(ev TraceEvent) {
	if r.Trace == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	ev.RunID = r.Journal.CP.RunID
	if err := r.Trace.Write(ev); err != nil {
		r.Logger.Warn("trace write failed", "error", err)
	}
}
