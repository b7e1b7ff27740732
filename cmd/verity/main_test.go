package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/verity/pkg/project"
)

const (
	passing = "commands:\n  - run: docker info\n  - run: curl -s http://smoke\n    stdout: ok\n"
	failing = "commands:\n  - run: docker info\n  - run: curl -s http://smoke\n    stdout: 502\n"
)

func newProjectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"verity.yaml":      "name: cli\n",
		"scenarios/a.yaml": "id: docker-ready\nname: Docker ready\ngate: true\nestimated_duration: 10s\nsteps:\n  - name: ping\n    run: docker info\n",
		"scenarios/b.yaml": "id: smoke\nname: Smoke\ndependencies: [docker-ready]\nsteps:\n  - name: probe\n    run: curl -s http://smoke\n    expect_contains: ok\n    on_failure: {severity: critical}\n",
		"passing.yaml":     passing,
		"failing.yaml":     failing,
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

func execute(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"-C", dir}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestList(t *testing.T) {
	dir := newProjectDir(t)
	out, _, err := execute(t, dir, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, "expected header and two rows, got:\n%s", out)
	assert.True(t, strings.HasPrefix(lines[1], "docker-ready"), "gate scenario row = %q", lines[1])
	assert.Contains(t, lines[1], "■")
	assert.Contains(t, lines[2], "docker-ready", "dependency missing from smoke row")
}

func TestValidate(t *testing.T) {
	dir := newProjectDir(t)
	out, _, err := execute(t, dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "2 scenarios")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("id: bad\nname: Bad\nsteps:\n  - name: s\n    run: a\n    argv: [b]\n"), 0o644))
	_, errOut, err := execute(t, dir, "validate", bad)
	require.Error(t, err, "expected validation failure")
	assert.Contains(t, errOut, "sets both run and argv")
}

func TestOrder(t *testing.T) {
	dir := newProjectDir(t)
	out, _, err := execute(t, dir, "order", "smoke")
	require.NoError(t, err)
	assert.Equal(t, "  1. docker-ready\n  2. smoke\n", out)

	out, _, err = execute(t, dir, "order", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "probe: curl -s http://smoke (critical)")
	assert.Contains(t, out, "Estimated duration: 10s")

	out, _, err = execute(t, dir, "order", "--diagram", "mermaid")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowchart TD"), "diagram = %q", out)
}

func TestRunPassingWritesReports(t *testing.T) {
	dir := newProjectDir(t)
	junit := filepath.Join(dir, "out", "junit.xml")
	out, errOut, err := execute(t, dir, "run", "--replay", filepath.Join(dir, "passing.yaml"), "--junit", junit)
	require.NoError(t, err, "%s\n%s", out, errOut)
	assert.Contains(t, out, "PASSED")
	data, err := os.ReadFile(junit)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<testsuite name="smoke"`)

	out, _, err = execute(t, dir, "checkpoint", "get", "progress.completed")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))
}

func TestRunFailingExitsNonZero(t *testing.T) {
	dir := newProjectDir(t)
	out, _, err := execute(t, dir, "run", "--replay", filepath.Join(dir, "failing.yaml"))
	require.ErrorIs(t, err, errRunFailed, out)
	assert.Contains(t, out, "FAILED")

	// A second run must not overwrite the recorded progress.
	_, _, err = execute(t, dir, "run", "--replay", filepath.Join(dir, "failing.yaml"))
	require.ErrorIs(t, err, project.ErrCheckpointExists)

	// Resuming re-runs nothing; the recorded failure stands.
	_, _, err = execute(t, dir, "run", "--resume", "--replay", filepath.Join(dir, "failing.yaml"))
	require.ErrorIs(t, err, errRunFailed)

	out, _, err = execute(t, dir, "run", "--fresh", "--replay", filepath.Join(dir, "passing.yaml"))
	require.NoError(t, err, out)
}

func TestSummaryAndReports(t *testing.T) {
	dir := newProjectDir(t)
	_, _, err := execute(t, dir, "run", "--replay", filepath.Join(dir, "failing.yaml"))
	require.ErrorIs(t, err, errRunFailed)

	out, _, err := execute(t, dir, "summary", "--json")
	require.NoError(t, err)
	var s struct {
		Passed   int     `json:"passed"`
		Failed   int     `json:"failed"`
		PassRate float64 `json:"pass_rate"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &s), out)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 50.0, s.PassRate)

	out, _, err = execute(t, dir, "report", "badge", "--kind", "issues")
	require.NoError(t, err)
	badge, err := os.ReadFile(filepath.Join(dir, ".verity", "reports", "issues.json"))
	require.NoError(t, err, out)
	assert.Contains(t, string(badge), `"label": "open issues"`)

	_, _, err = execute(t, dir, "report", "badge", "--value", "85", "--out", filepath.Join(dir, "cov.json"))
	require.NoError(t, err)
	cov, err := os.ReadFile(filepath.Join(dir, "cov.json"))
	require.NoError(t, err)
	assert.Contains(t, string(cov), `"color": "brightgreen"`, "85% coverage badge")

	_, _, err = execute(t, dir, "checkpoint", "clear")
	require.NoError(t, err)
	_, _, err = execute(t, dir, "summary")
	assert.Error(t, err, "summary needs a checkpoint")
}

func TestSchema(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), "schema")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)), "schema is not JSON")
}
