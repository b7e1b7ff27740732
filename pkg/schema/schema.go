// Package schema defines the Go struct types for verification scenario
// YAML documents and provides strict YAML parsing.
package schema

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStepTimeout applies when neither the step nor the project sets one.
const DefaultStepTimeout = 60 * time.Second

// Scenario is one declarative verification unit: ordered steps with
// optional setup, baseline captures, cleanup and dependencies on other
// scenarios.
type Scenario struct {
	ID                string            `yaml:"id"                           json:"id"                           jsonschema:"required,pattern=^[A-Za-z0-9][A-Za-z0-9._-]*$"`
	Name              string            `yaml:"name"                         json:"name"                         jsonschema:"required"`
	Description       string            `yaml:"description,omitempty"        json:"description,omitempty"`
	Dependencies      []string          `yaml:"dependencies,omitempty"       json:"dependencies,omitempty"`
	Gate              bool              `yaml:"gate,omitempty"               json:"gate,omitempty"`
	EstimatedDuration string            `yaml:"estimated_duration,omitempty" json:"estimated_duration,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
	Vars              map[string]string `yaml:"vars,omitempty"               json:"vars,omitempty"`
	Setup             []Command         `yaml:"setup,omitempty"              json:"setup,omitempty"`
	Baseline          map[string]string `yaml:"baseline,omitempty"           json:"baseline,omitempty"`
	Steps             []Step            `yaml:"steps"                        json:"steps,omitempty"`
	Cleanup           []Command         `yaml:"cleanup,omitempty"            json:"cleanup,omitempty"`
	Ephemeral         []Resource        `yaml:"ephemeral,omitempty"          json:"ephemeral,omitempty"`
	SuccessCriteria   []string          `yaml:"success_criteria,omitempty"   json:"success_criteria,omitempty"`

	// Source is the file the scenario was loaded from. Not part of the document.
	Source string `yaml:"-" json:"-"`
}

// Command is a setup or cleanup command. Setup commands are non-fatal
// unless Fatal is set; cleanup commands are always best-effort.
type Command struct {
	Name    string   `yaml:"name,omitempty"    json:"name,omitempty"`
	Run     string   `yaml:"run,omitempty"     json:"run,omitempty"`
	Argv    []string `yaml:"argv,omitempty"    json:"argv,omitempty"`
	Fatal   bool     `yaml:"fatal,omitempty"   json:"fatal,omitempty"`
	Timeout int      `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"minimum=0"`
}

// Step is a single verification step.
type Step struct {
	Name              string       `yaml:"name"                          json:"name"                          jsonschema:"required"`
	Run               string       `yaml:"run,omitempty"                 json:"run,omitempty"`
	Argv              []string     `yaml:"argv,omitempty"                json:"argv,omitempty"`
	ExpectExit        *int         `yaml:"expect_exit,omitempty"         json:"expect_exit,omitempty"`
	ExpectContains    string       `yaml:"expect_contains,omitempty"     json:"expect_contains,omitempty"`
	ExpectNotContains string       `yaml:"expect_not_contains,omitempty" json:"expect_not_contains,omitempty"`
	Timeout           int          `yaml:"timeout,omitempty"             json:"timeout,omitempty"             jsonschema:"minimum=0"`
	StoreAs           string       `yaml:"store_as,omitempty"            json:"store_as,omitempty"            jsonschema:"pattern=^[A-Za-z_][A-Za-z0-9_]*$"`
	OnFailure         *OnFailure   `yaml:"on_failure,omitempty"          json:"on_failure,omitempty"`
	Validations       []Validation `yaml:"validations,omitempty"         json:"validations,omitempty"`
}

// OnFailure controls what a failing step does to its scenario.
type OnFailure struct {
	Severity Severity `yaml:"severity" json:"severity,omitempty" jsonschema:"enum=critical,enum=warning"`
	Message  string   `yaml:"message,omitempty" json:"message,omitempty"`
}

// Validation is a nested check evaluated after the step's own expectations.
// Expr is an expr-lang boolean expression over output, exit_code and vars.
type Validation struct {
	Name        string `yaml:"name"                   json:"name"                   jsonschema:"required"`
	Expr        string `yaml:"expr,omitempty"         json:"expr,omitempty"`
	Contains    string `yaml:"contains,omitempty"     json:"contains,omitempty"`
	NotContains string `yaml:"not_contains,omitempty" json:"not_contains,omitempty"`
}

// Resource is an ephemeral test artifact created by a scenario and
// removed from the shared site registry during cleanup.
type Resource struct {
	Site string `yaml:"site" json:"site" jsonschema:"required"`
}

// Severity is the closed set of step failure severities.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// UnmarshalYAML rejects severities outside the closed set at parse time.
func (s *Severity) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = parsed
	return nil
}

// ParseSeverity parses a severity name; the empty string means warning.
func ParseSeverity(raw string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical:
		return SeverityCritical, nil
	case SeverityWarning, "":
		return SeverityWarning, nil
	}
	return "", fmt.Errorf("unknown severity %q (want critical or warning)", raw)
}

// ExpectedExit returns the expected exit code (default 0).
func (s Step) ExpectedExit() int {
	if s.ExpectExit != nil {
		return *s.ExpectExit
	}
	return 0
}

// Critical reports whether a failure of this step aborts its scenario.
func (s Step) Critical() bool {
	return s.OnFailure != nil && s.OnFailure.Severity == SeverityCritical
}

// TimeoutDuration returns the step timeout, falling back to def and then
// to DefaultStepTimeout.
func (s Step) TimeoutDuration(def time.Duration) time.Duration {
	if s.Timeout > 0 {
		return time.Duration(s.Timeout) * time.Second
	}
	if def > 0 {
		return def
	}
	return DefaultStepTimeout
}

// Estimated parses EstimatedDuration, returning zero when unset or invalid.
func (sc *Scenario) Estimated() time.Duration {
	if sc.EstimatedDuration == "" {
		return 0
	}
	d, err := time.ParseDuration(sc.EstimatedDuration)
	if err != nil {
		return 0
	}
	return d
}

// LoadFile reads and parses a scenario YAML file with strict unknown-field
// rejection (yaml.v3 KnownFields).
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	sc, err := Load(f)
	if err != nil {
		return nil, err
	}
	sc.Source = path
	return sc, nil
}

// Load parses a scenario from an io.Reader with strict unknown-field rejection.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &sc, nil
}
