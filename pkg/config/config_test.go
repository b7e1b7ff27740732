package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefault(t *testing.T) {
	dir := t.TempDir()
	c := Default(dir)

	assert.Equal(t, filepath.Base(dir), c.Name)
	assert.Equal(t, filepath.Join(dir, "scenarios"), c.ScenariosDir())
	assert.Equal(t, filepath.Join(dir, ".verity", "checkpoint.json"), c.CheckpointPath())
	assert.Equal(t, filepath.Join(dir, "sites.yml"), c.RegistryPath())
	assert.Equal(t, 60*time.Second, c.StepTimeout())
	assert.Equal(t, 100, c.Defaults.MaxLinesRemoved)
	assert.Equal(t, GateGlobal, c.GatePolicy)
	assert.True(t, c.Preserve())
	assert.Equal(t, 80.0, c.Badges["coverage"].Green)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `
name: fleet
paths:
  scenarios: checks
  state: /var/lib/verity
registry: conf/sites.yml
defaults:
  timeout: 90s
  max_lines_removed: 20
gate_policy: dependents
preserve_on_failure: false
badges:
  coverage: {green: 95, yellow: 75, orange: 50}
governance:
  denied_commands: [shutdown]
  redact:
    - pattern: "password=\\S+"
      replace: "password=***"
`)

	c, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "fleet", c.Name)
	assert.Equal(t, filepath.Join(dir, "checks"), c.ScenariosDir())
	assert.Equal(t, "/var/lib/verity/trace.jsonl", c.TracePath())
	assert.Equal(t, filepath.Join(dir, "conf", "sites.yml"), c.RegistryPath())
	assert.Equal(t, 90*time.Second, c.StepTimeout())
	assert.Equal(t, 20, c.Defaults.MaxLinesRemoved)
	assert.Equal(t, GateDependents, c.GatePolicy)
	assert.False(t, c.Preserve())
	assert.Equal(t, 95.0, c.Badges["coverage"].Green)
	assert.Equal(t, 5.0, c.Badges["issues"].Yellow, "unset kinds keep their defaults")
	assert.Equal(t, []string{"shutdown"}, c.Governance.DeniedCommands)
	require.Len(t, c.Governance.Redact, 1)
	assert.Equal(t, `password=\S+`, c.Governance.Redact[0].Pattern)
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown field": "name: x\nnope: 1\n",
		"gate policy":   "name: x\ngate_policy: sometimes\n",
		"timeout":       "name: x\ndefaults: {timeout: soon}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			writeFile(t, path, body)
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "name: walked\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	c, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, "walked", c.Name)
	assert.Equal(t, root, c.Root)
}

func TestDiscoverFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	c, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, c.Root)
	assert.Equal(t, "scenarios", c.Paths.Scenarios)
}
