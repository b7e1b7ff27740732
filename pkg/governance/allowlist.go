// Package governance implements command allowlist/denylist, output
// redaction, and environment variable blocking for scenario commands.
package governance

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ormasoftchile/verity/pkg/config"
)

// Engine evaluates governance policies before and during execution.
type Engine struct {
	AllowedCommands []string
	DeniedCommands  []string
	DenyEnvVars     []string
	Redactions      []*CompiledRedaction
}

// New creates an Engine from the project's governance section.
func New(policy config.Governance) (*Engine, error) {
	rules, err := CompileRedactionRules(policy.Redact)
	if err != nil {
		return nil, err
	}
	return &Engine{
		AllowedCommands: policy.AllowedCommands,
		DeniedCommands:  policy.DeniedCommands,
		DenyEnvVars:     policy.DenyEnvVars,
		Redactions:      rules,
	}, nil
}

// CheckCommand validates a program name against the allowlist/denylist.
// Deny takes precedence over allow. Paths are reduced to their base name.
func (g *Engine) CheckCommand(command string) error {
	if g == nil {
		return nil
	}
	name := filepath.Base(command)
	for _, denied := range g.DeniedCommands {
		if name == denied {
			return fmt.Errorf("command %q is denied by governance policy", name)
		}
	}
	if len(g.AllowedCommands) > 0 {
		for _, allowed := range g.AllowedCommands {
			if name == allowed {
				return nil
			}
		}
		return fmt.Errorf("command %q is not in the governance allowlist", name)
	}
	return nil
}

// CheckScript applies CheckCommand to the first word of every simple
// command in a shell script. It is a coarse split on control operators,
// not a shell parser.
func (g *Engine) CheckScript(script string) error {
	if g == nil || (len(g.AllowedCommands) == 0 && len(g.DeniedCommands) == 0) {
		return nil
	}
	for _, name := range CommandNames(script) {
		if err := g.CheckCommand(name); err != nil {
			return err
		}
	}
	return nil
}

// CommandNames returns the leading word of each command in script,
// skipping variable assignments such as FOO=bar.
func CommandNames(script string) []string {
	r := strings.NewReplacer(">&", ">", "<&", "<", "&&", "\n", "||", "\n", ";", "\n", "|", "\n", "&", "\n", "$(", "\n", "`", "\n", "(", "\n", ")", "\n")
	var names []string
	for _, segment := range strings.Split(r.Replace(script), "\n") {
		for _, word := range strings.Fields(segment) {
			if strings.Contains(word, "=") && !strings.HasPrefix(word, "=") {
				continue
			}
			names = append(names, strings.Trim(word, `"'`))
			break
		}
	}
	return names
}

// CheckEnvVar validates an environment variable name against deny_env_vars patterns.
func (g *Engine) CheckEnvVar(name string) error {
	if g == nil {
		return nil
	}
	for _, pattern := range g.DenyEnvVars {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return fmt.Errorf("invalid env var deny pattern %q: %w", pattern, err)
		}
		if matched {
			return fmt.Errorf("environment variable %q matches denied pattern %q", name, pattern)
		}
	}
	return nil
}
