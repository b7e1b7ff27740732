package governance

import (
	"fmt"
	"regexp"

	"github.com/ormasoftchile/verity/pkg/config"
)

// CompiledRedaction is a pre-compiled redaction rule.
type CompiledRedaction struct {
	Pattern *regexp.Regexp
	Replace string
}

// CompileRedactionRules compiles the configured redaction rules.
func CompileRedactionRules(rules []config.RedactionRule) ([]*CompiledRedaction, error) {
	var compiled []*CompiledRedaction
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, &CompiledRedaction{Pattern: re, Replace: r.Replace})
	}
	return compiled, nil
}

// RedactOutput applies all compiled redaction rules to the given output.
func RedactOutput(output string, rules []*CompiledRedaction) string {
	result := output
	for _, r := range rules {
		result = r.Pattern.ReplaceAllString(result, r.Replace)
	}
	return result
}

// Redact applies the engine's rules. A nil engine returns s unchanged.
func (g *Engine) Redact(s string) string {
	if g == nil {
		return s
	}
	return RedactOutput(s, g.Redactions)
}
