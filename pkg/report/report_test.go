package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
	"github.com/ormasoftchile/verity/pkg/config"
)

func ms(n int) checkpoint.Duration { return checkpoint.Duration(time.Duration(n) * time.Millisecond) }

// fixture is a run where docker-ready passed, drupal-smoke failed on a
// critical step and theme-check was skipped.
func fixture(t *testing.T) *checkpoint.Checkpoint {
	t.Helper()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	cp := checkpoint.New("run-golden", checkpoint.WithClock(func() time.Time { return base }))
	require.NoError(t, cp.Plan(3, 5))

	require.NoError(t, cp.CompleteScenario(checkpoint.ScenarioRecord{
		ID: "docker-ready", Status: checkpoint.StatusPassed, Duration: ms(1500), Confidence: 100,
		ItemsVerified: 1, ItemsTotal: 1, CompletedAt: base.Add(time.Second),
		Steps: []checkpoint.StepRecord{{Name: "ping", Status: checkpoint.StepPassed, Duration: ms(1500)}},
	}))
	require.NoError(t, cp.CompleteScenario(checkpoint.ScenarioRecord{
		ID: "drupal-smoke", Status: checkpoint.StatusFailed, Duration: ms(3250), Confidence: 33,
		ItemsVerified: 1, ItemsTotal: 3, CompletedAt: base.Add(5 * time.Second),
		Steps: []checkpoint.StepRecord{
			{Name: "install", Status: checkpoint.StepPassed, Duration: ms(2000)},
			{Name: "probe", Status: checkpoint.StepFailed, Critical: true, Duration: ms(1250), Message: "exit code 1 != expected 0; output: boom"},
			{Name: "report", Status: checkpoint.StepSkipped},
		},
	}))
	cp.RecordSkip("theme-check", "dependencies not passed: drupal-smoke")
	cp.AddFinding("drupal-smoke", "probe", checkpoint.FindingError, "exit code 1 != expected 0; output: boom")
	cp.AddFinding("drupal-smoke", "cleanup[0] docker rm", checkpoint.FindingWarning, "exit code 1 != expected 0")
	cp.MarkPreserve("smoke-drupal", "drupal-smoke", "scenario failed; kept for inspection")
	return cp
}

func TestSummarize(t *testing.T) {
	s := Summarize(fixture(t))
	assert.Equal(t, "run-golden", s.RunID)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 50.0, s.PassRate)
	assert.Equal(t, 2, s.ItemsVerified)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 1, s.Warnings)
	assert.False(t, s.Success())
}

func TestSummarizeEmptyRun(t *testing.T) {
	s := Summarize(checkpoint.New("empty"))
	assert.Zero(t, s.PassRate)
	assert.True(t, s.Success())
}

func TestPassRateRounding(t *testing.T) {
	cp := checkpoint.New("r")
	require.NoError(t, cp.Plan(3, 0))
	for i, st := range []checkpoint.Status{checkpoint.StatusPassed, checkpoint.StatusPassed, checkpoint.StatusFailed} {
		require.NoError(t, cp.CompleteScenario(checkpoint.ScenarioRecord{ID: string(rune('a' + i)), Status: st}))
	}
	assert.Equal(t, 66.7, Summarize(cp).PassRate)
}

func TestJUnitGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, fixture(t)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "junit", buf.Bytes())
}

func TestJUnitParsesBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, fixture(t)))

	var doc junitSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 5, doc.Tests)
	require.Len(t, doc.Suites, 3)
	for _, tc := range doc.Suites[1].Cases {
		assert.Equal(t, "drupal-smoke", tc.Classname, "steps are grouped by scenario")
	}
}

func TestJUnitFailedWithoutFailedStep(t *testing.T) {
	cp := checkpoint.New("r")
	require.NoError(t, cp.Plan(1, 1))
	require.NoError(t, cp.CompleteScenario(checkpoint.ScenarioRecord{
		ID: "setup-broke", Status: checkpoint.StatusFailed,
		Steps: []checkpoint.StepRecord{{Name: "a", Status: checkpoint.StepSkipped}},
	}))
	doc := buildJUnit(cp)
	assert.Equal(t, 1, doc.Failures, "a failed scenario always carries a failure")
}

func TestGenerateJUnitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "junit.xml")
	require.NoError(t, GenerateJUnit(path, fixture(t)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<testsuites name="run-golden"`)
}

func TestColor(t *testing.T) {
	coverage := config.BadgeThresholds{Green: 80, Yellow: 60, Orange: 40}
	issues := config.BadgeThresholds{Green: 0, Yellow: 5, Orange: 10}
	tests := []struct {
		value float64
		th    config.BadgeThresholds
		lower bool
		want  string
	}{
		{95, coverage, false, ColorGreen},
		{80, coverage, false, ColorGreen},
		{79.9, coverage, false, ColorYellow},
		{40, coverage, false, ColorOrange},
		{10, coverage, false, ColorRed},
		{0, issues, true, ColorGreen},
		{3, issues, true, ColorYellow},
		{10, issues, true, ColorOrange},
		{11, issues, true, ColorRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Color(tt.value, tt.th, tt.lower), "value %v lower=%v", tt.value, tt.lower)
	}
}

func TestBadgeValueAndGenerate(t *testing.T) {
	cp := fixture(t)
	cfg := config.Default(t.TempDir())

	v, err := BadgeValue(KindCoverage, cp)
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)

	path := filepath.Join(t.TempDir(), "coverage.json")
	require.NoError(t, GenerateBadge(path, KindCoverage, v, cfg.Badges[KindCoverage]))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var b Badge
	require.NoError(t, json.Unmarshal(data, &b))
	assert.Equal(t, Badge{SchemaVersion: 1, Label: "verified", Message: "50%", Color: ColorRed}, b)

	n, err := BadgeValue(KindIssues, cp)
	require.NoError(t, err)
	assert.Equal(t, 2.0, n)
	assert.Equal(t, "2", NewBadge(KindIssues, n, cfg.Badges[KindIssues]).Message)
	assert.Equal(t, ColorYellow, NewBadge(KindIssues, n, cfg.Badges[KindIssues]).Color)

	_, err = BadgeValue("stars", cp)
	assert.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	md := Markdown(fixture(t))
	for _, want := range []string{
		"# Verification run `run-golden`",
		"**Result:** ✗ failed · 1 passed · 1 failed · 1 skipped · pass rate 50.0%",
		"| docker-ready | ✓ passed | 100% | 1/1 | 1.5s |",
		"| drupal-smoke | ✗ failed | 33% | 1/3 | 3.25s |",
		"| theme-check | ⊘ skipped: dependencies not passed: drupal-smoke | - | - | - |",
		"- **error** `drupal-smoke` / probe: exit code 1 != expected 0; output: boom",
		"- `smoke-drupal` (drupal-smoke): scenario failed; kept for inspection",
	} {
		assert.Contains(t, md, want)
	}
}
