// Package config loads the verity.yaml project manifest: where scenarios
// live, where run state goes, the shared site registry, and engine defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the manifest name looked up by Discover.
const FileName = "verity.yaml"

// GatePolicy selects what a failed gate scenario skips.
type GatePolicy string

const (
	// GateGlobal skips every scenario not yet started.
	GateGlobal GatePolicy = "global"
	// GateDependents skips only the transitive dependents of the gate.
	GateDependents GatePolicy = "dependents"
)

// Config is the verity.yaml manifest.
type Config struct {
	Name              string                     `yaml:"name"`
	Paths             Paths                      `yaml:"paths,omitempty"`
	Registry          string                     `yaml:"registry,omitempty"`
	Defaults          Defaults                   `yaml:"defaults,omitempty"`
	GatePolicy        GatePolicy                 `yaml:"gate_policy,omitempty"`
	PreserveOnFailure *bool                      `yaml:"preserve_on_failure,omitempty"`
	Log               Log                        `yaml:"log,omitempty"`
	Badges            map[string]BadgeThresholds `yaml:"badges,omitempty"`
	Governance        Governance                 `yaml:"governance,omitempty"`

	// Root is the directory containing verity.yaml. Set after loading.
	Root string `yaml:"-"`
}

// Paths overrides convention directories.
type Paths struct {
	Scenarios string `yaml:"scenarios,omitempty"`
	State     string `yaml:"state,omitempty"`
}

// Defaults are engine-wide fallbacks.
type Defaults struct {
	Timeout         string `yaml:"timeout,omitempty"`
	MaxLinesRemoved int    `yaml:"max_lines_removed,omitempty"`
	Shell           string `yaml:"shell,omitempty"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// BadgeThresholds are the tier boundaries for one badge kind.
// For "higher is better" kinds a value >= Green is green; for "lower is
// better" kinds a value <= Green is green.
type BadgeThresholds struct {
	Green  float64 `yaml:"green"`
	Yellow float64 `yaml:"yellow"`
	Orange float64 `yaml:"orange"`
}

// Governance lists command policy and redaction rules.
type Governance struct {
	AllowedCommands []string        `yaml:"allowed_commands,omitempty"`
	DeniedCommands  []string        `yaml:"denied_commands,omitempty"`
	DenyEnvVars     []string        `yaml:"deny_env_vars,omitempty"`
	Redact          []RedactionRule `yaml:"redact,omitempty"`
}

// RedactionRule replaces regex matches in captured output.
type RedactionRule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// Default returns a manifest rooted at dir with every convention applied.
func Default(dir string) *Config {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	c := &Config{Name: filepath.Base(abs), Root: abs}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Paths.Scenarios == "" {
		c.Paths.Scenarios = "scenarios"
	}
	if c.Paths.State == "" {
		c.Paths.State = ".verity"
	}
	if c.Registry == "" {
		c.Registry = "sites.yml"
	}
	if c.Defaults.Timeout == "" {
		c.Defaults.Timeout = "60s"
	}
	if c.Defaults.MaxLinesRemoved == 0 {
		c.Defaults.MaxLinesRemoved = 100
	}
	if c.Defaults.Shell == "" {
		c.Defaults.Shell = "/bin/sh"
	}
	if c.GatePolicy == "" {
		c.GatePolicy = GateGlobal
	}
	if c.PreserveOnFailure == nil {
		t := true
		c.PreserveOnFailure = &t
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Badges == nil {
		c.Badges = make(map[string]BadgeThresholds)
	}
	if _, ok := c.Badges["coverage"]; !ok {
		c.Badges["coverage"] = BadgeThresholds{Green: 80, Yellow: 60, Orange: 40}
	}
	if _, ok := c.Badges["issues"]; !ok {
		c.Badges["issues"] = BadgeThresholds{Green: 0, Yellow: 5, Orange: 10}
	}
}

func (c *Config) validate() error {
	switch c.GatePolicy {
	case GateGlobal, GateDependents:
	default:
		return fmt.Errorf("gate_policy %q: must be %q or %q", c.GatePolicy, GateGlobal, GateDependents)
	}
	if _, err := time.ParseDuration(c.Defaults.Timeout); err != nil {
		return fmt.Errorf("defaults.timeout: %w", err)
	}
	if c.Defaults.MaxLinesRemoved < 0 {
		return fmt.Errorf("defaults.max_lines_removed must not be negative")
	}
	return nil
}

// LoadFile reads and parses a verity.yaml manifest.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	c.Root = abs
	if c.Name == "" {
		c.Name = filepath.Base(abs)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

// Discover walks up from startPath to find the nearest verity.yaml.
// When none exists it returns Default(startPath).
func Discover(startPath string) (*Config, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return LoadFile(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(abs), nil
		}
		dir = parent
	}
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ScenariosDir is the absolute scenario directory.
func (c *Config) ScenariosDir() string { return c.resolve(c.Paths.Scenarios) }

// StateDir is the absolute run-state directory.
func (c *Config) StateDir() string { return c.resolve(c.Paths.State) }

// CheckpointPath is where the run checkpoint is persisted.
func (c *Config) CheckpointPath() string { return filepath.Join(c.StateDir(), "checkpoint.json") }

// TracePath is the JSONL trace file.
func (c *Config) TracePath() string { return filepath.Join(c.StateDir(), "trace.jsonl") }

// ReportsDir holds generated JUnit and badge files.
func (c *Config) ReportsDir() string { return filepath.Join(c.StateDir(), "reports") }

// RegistryPath is the absolute path of the shared site registry.
func (c *Config) RegistryPath() string { return c.resolve(c.Registry) }

// StepTimeout is the parsed default step timeout.
func (c *Config) StepTimeout() time.Duration {
	d, err := time.ParseDuration(c.Defaults.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Preserve reports whether ephemeral resources of failed scenarios are kept.
func (c *Config) Preserve() bool {
	return c.PreserveOnFailure == nil || *c.PreserveOnFailure
}
