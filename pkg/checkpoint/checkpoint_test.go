package checkpoint

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances one second per call.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time {
	f.t = f.t.Add(time.Second)
	return f.t
}

func newTestCheckpoint(t *testing.T) (*Checkpoint, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)}
	return New("run-1", WithClock(clk.now)), clk
}

func TestNewGeneratesRunID(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	c := New("", WithClock(func() time.Time { return at }))
	assert.Equal(t, "20260102T030405-006", c.RunID)
	assert.Equal(t, at, c.StartedAt)
	assert.NotNil(t, c.Completed)
	assert.NoError(t, c.CheckInvariant())
}

func TestLifecycleKeepsInvariant(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	require.NoError(t, c.Plan(3, 7))
	assert.Equal(t, Progress{Total: 3, Remaining: 3, ItemsTotal: 7}, c.Progress)

	require.NoError(t, c.StartScenario("a"))
	assert.Equal(t, 1, c.Progress.InProgress)
	assert.Equal(t, 2, c.Progress.Remaining)
	require.NoError(t, c.UpdateStep(1, "ping"))
	assert.Equal(t, &Position{Scenario: "a", Step: 1, StepName: "ping"}, c.Current)

	require.NoError(t, c.CompleteScenario(ScenarioRecord{ID: "a", Status: StatusPassed, Confidence: 100, ItemsVerified: 3, ItemsTotal: 3}))
	assert.Nil(t, c.Current)
	assert.Equal(t, Progress{Total: 3, Completed: 1, Remaining: 2, ItemsTotal: 7, ItemsVerified: 3}, c.Progress)
	assert.NoError(t, c.CheckInvariant())

	assert.Equal(t, []string{"a"}, c.CompletedIDs())
	assert.True(t, c.PassedSet()["a"])
}

func TestLastUpdatedMovesWithEveryMutation(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	last := c.LastUpdated
	step := func(name string, f func()) {
		f()
		assert.True(t, c.LastUpdated.After(last), "%s did not touch LastUpdated", name)
		last = c.LastUpdated
	}
	step("Plan", func() { require.NoError(t, c.Plan(2, 2)) })
	step("StartScenario", func() { require.NoError(t, c.StartScenario("a")) })
	step("UpdateStep", func() { require.NoError(t, c.UpdateStep(1, "x")) })
	step("CompleteScenario", func() { require.NoError(t, c.CompleteScenario(ScenarioRecord{ID: "a", Status: StatusFailed})) })
	assert.Equal(t, c.LastUpdated, c.Completed[0].CompletedAt, "completion timestamp and LastUpdated agree")
	step("AddFinding", func() { c.AddFinding("a", "x", FindingError, "boom") })
	step("MarkPreserve", func() { c.MarkPreserve("site-a", "a", "scenario failed") })
	step("RecordSkip", func() { c.RecordSkip("b", "gate failed") })
}

func TestMutatorErrors(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	require.NoError(t, c.Plan(1, 1))
	assert.Error(t, c.UpdateStep(1, "x"), "no scenario in progress")
	require.NoError(t, c.StartScenario("a"))
	assert.Error(t, c.StartScenario("b"), "one scenario at a time")
	assert.Error(t, c.CompleteScenario(ScenarioRecord{ID: "a", Status: StatusSkipped}), "skipped is not a completion status")
	require.NoError(t, c.CompleteScenario(ScenarioRecord{ID: "a", Status: StatusPassed}))
	assert.Error(t, c.StartScenario("a"), "already completed")
	assert.Error(t, c.CompleteScenario(ScenarioRecord{ID: "a", Status: StatusPassed}), "no duplicate history")
	assert.Error(t, c.Plan(0, 0), "cannot plan below completed")
	assert.NoError(t, c.CheckInvariant())
}

func TestInvariantUnderRandomMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 100; iter++ {
		c, _ := newTestCheckpoint(t)
		total := 1 + rng.Intn(8)
		require.NoError(t, c.Plan(total, total*2))
		next := 0
		for op := 0; op < 40; op++ {
			switch rng.Intn(5) {
			case 0:
				_ = c.StartScenario(fmt.Sprintf("s%d", next))
			case 1:
				_ = c.UpdateStep(rng.Intn(3)+1, "step")
			case 2:
				if c.Current != nil {
					status := StatusPassed
					if rng.Intn(2) == 0 {
						status = StatusFailed
					}
					_ = c.CompleteScenario(ScenarioRecord{ID: c.Current.Scenario, Status: status, ItemsVerified: 1})
					next++
				}
			case 3:
				c.AddFinding("s", "", FindingWarning, "w")
			case 4:
				c.RecordSkip(fmt.Sprintf("s%d", next), "deps")
				next++
			}
			require.NoError(t, c.CheckInvariant(), "iteration %d op %d", iter, op)
		}
	}
}

func TestSkippedCountsAsRemaining(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	require.NoError(t, c.Plan(2, 2))
	c.RecordSkip("b", "dependency a failed")
	assert.Equal(t, 2, c.Progress.Remaining)
	require.NoError(t, c.StartScenario("b"))
	assert.Empty(t, c.Skipped, "starting a scenario clears its skip record")
}

func TestFindingsAppendOnly(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	c.AddFinding("a", "s1", FindingWarning, "first")
	c.AddFinding("a", "", FindingFixed, "second")
	require.Len(t, c.Findings, 2)
	assert.Equal(t, "first", c.Findings[0].Message)
	assert.True(t, c.Findings[1].Timestamp.After(c.Findings[0].Timestamp))
}

func TestMarkPreserve(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	c.MarkPreserve("smoke-drupal", "drupal-smoke", "scenario failed")
	c.MarkPreserve("smoke-drupal", "drupal-smoke", "scenario failed again")
	require.Len(t, c.Preserved, 1)
	assert.Equal(t, "scenario failed again", c.Preserved[0].Reason)
	assert.True(t, c.IsPreserved("smoke-drupal"))
	assert.False(t, c.IsPreserved("other"))
}

func TestConfidence(t *testing.T) {
	score, ok := Confidence(2, 3)
	assert.True(t, ok)
	assert.Equal(t, 66, score, "integer truncation")
	score, ok = Confidence(0, 2)
	assert.Equal(t, 0, score)
	assert.True(t, ok)
	score, ok = Confidence(0, 0)
	assert.Equal(t, 0, score)
	assert.False(t, ok)
}

func TestGet(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	require.NoError(t, c.Plan(2, 4))
	require.NoError(t, c.StartScenario("a"))
	require.NoError(t, c.CompleteScenario(ScenarioRecord{ID: "a", Status: StatusPassed, Confidence: 75,
		Steps: []StepRecord{{Name: "ping", Status: StepPassed, Duration: Duration(1500 * time.Millisecond)}}}))

	v, err := c.Get("progress.remaining")
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)

	v, err = c.Get("completed_scenarios.0.confidence")
	require.NoError(t, err)
	assert.Equal(t, float64(75), v)

	v, err = c.Get("completed_scenarios.-1.steps.0.duration")
	require.NoError(t, err)
	assert.Equal(t, "1.5s", v)

	v, err = c.Get("current")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = c.Get("run_id")
	require.NoError(t, err)
	assert.Equal(t, "run-1", v)

	_, err = c.Get("progress.nope")
	assert.ErrorContains(t, err, `key "nope" not found`)
	_, err = c.Get("completed_scenarios.5")
	assert.ErrorContains(t, err, "out of range")
	_, err = c.Get("run_id.x")
	assert.Error(t, err)
}

func TestSaveLoadClear(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	require.NoError(t, c.Plan(2, 3))
	require.NoError(t, c.StartScenario("a"))
	require.NoError(t, c.CompleteScenario(ScenarioRecord{ID: "a", Status: StatusFailed, Duration: Duration(2 * time.Second)}))
	c.AddFinding("a", "install", FindingError, "exit code 1 != expected 0")

	path := filepath.Join(t.TempDir(), ".verity", "checkpoint.json")
	require.NoError(t, Save(path, c))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.RunID, loaded.RunID)
	assert.Equal(t, c.Progress, loaded.Progress)
	assert.Equal(t, c.Completed, loaded.Completed)
	assert.Equal(t, c.Findings, loaded.Findings)
	assert.True(t, c.LastUpdated.Equal(loaded.LastUpdated))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, Clear(path))
	_, err = Load(path)
	assert.True(t, errors.Is(err, ErrNoCheckpoint))
	assert.NoError(t, Clear(path), "clearing twice is fine")
}

func TestLoadRejectsInconsistentCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"run_id":"x","progress":{"total":3,"completed":0,"in_progress":0,"remaining":1}}`), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "inconsistent")
}

func TestSummary(t *testing.T) {
	c, clk := newTestCheckpoint(t)
	require.NoError(t, c.Plan(3, 5))
	require.NoError(t, c.StartScenario("docker-ready"))
	require.NoError(t, c.CompleteScenario(ScenarioRecord{ID: "docker-ready", Status: StatusPassed, Confidence: 100, ItemsVerified: 2, ItemsTotal: 2, Duration: Duration(1200 * time.Millisecond)}))
	require.NoError(t, c.StartScenario("drupal-smoke"))
	require.NoError(t, c.UpdateStep(2, "install"))
	c.AddFinding("drupal-smoke", "install", FindingError, "timed out after 1s")
	c.MarkPreserve("smoke-drupal", "drupal-smoke", "scenario failed")
	clk.t = clk.t.Add(10 * time.Minute)

	s := c.Summary()
	for _, want := range []string{
		"Run run-1",
		"started 10 minutes ago",
		"Progress: 1/3 scenarios (1 in progress, 1 remaining) · 2/5 items verified",
		"Current: drupal-smoke step 2 (install)",
		"✓ docker-ready  passed 100%  2/2 items  1.2s",
		"Findings: 1 (1 error)",
		"[error] drupal-smoke/install: timed out after 1s",
		"smoke-drupal (scenario failed)",
	} {
		assert.True(t, strings.Contains(s, want), "summary missing %q:\n%s", want, s)
	}
}

func TestPlanDropsInterruptedScenario(t *testing.T) {
	c, _ := newTestCheckpoint(t)
	require.NoError(t, c.Plan(2, 2))
	require.NoError(t, c.StartScenario("a"))

	require.NoError(t, c.Plan(2, 2))
	assert.Nil(t, c.Current)
	assert.Equal(t, 2, c.Progress.Remaining)
	assert.NoError(t, c.StartScenario("b"), "a resumed run may start any scenario")
}
