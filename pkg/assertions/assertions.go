// Package assertions evaluates a step's expectations against a command
// result: timeout, exit code, expected and forbidden substrings, and the
// nested validations declared on the step.
package assertions

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/verity/pkg/providers"
	"github.com/ormasoftchile/verity/pkg/schema"
)

// MaxOutputInReason bounds the command output quoted in failure messages.
const MaxOutputInReason = 200

// Outcome is the evaluation of every check on one step.
type Outcome struct {
	Results []*providers.AssertionResult
}

// Passed is true when every check passed.
func (o *Outcome) Passed() bool {
	for _, r := range o.Results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Reason is the message of the first failed check, or "".
func (o *Outcome) Reason() string {
	for _, r := range o.Results {
		if !r.Passed {
			return r.Message
		}
	}
	return ""
}

// EvaluateStep checks res against the step in a fixed order: timeout,
// exit code, expect_contains, expect_not_contains, then validations.
// A timeout short-circuits everything else.
func EvaluateStep(step schema.Step, res *providers.CommandResult, vars map[string]string) *Outcome {
	out := &Outcome{}
	if res.TimedOut {
		out.Results = append(out.Results, EvalTimeout(res))
		return out
	}
	output := res.Output()
	out.Results = append(out.Results, EvalExitCode(res.ExitCode, step.ExpectedExit(), output))
	if step.ExpectContains != "" {
		out.Results = append(out.Results, EvalContains(output, step.ExpectContains))
	}
	if step.ExpectNotContains != "" {
		out.Results = append(out.Results, EvalNotContains(output, step.ExpectNotContains))
	}
	for _, v := range step.Validations {
		out.Results = append(out.Results, EvalValidation(v, output, res.ExitCode, vars))
	}
	return out
}

// EvalTimeout always fails: a timed-out command never meets expectations.
func EvalTimeout(res *providers.CommandResult) *providers.AssertionResult {
	return &providers.AssertionResult{
		Type:     "timeout",
		Expected: "completion",
		Actual:   "timeout",
		Passed:   false,
		Message:  fmt.Sprintf("timed out after %s", res.Duration.Round(time.Millisecond)),
	}
}

// EvalExitCode checks if the actual exit code matches expected. The
// failure message quotes the truncated output.
func EvalExitCode(actual, expected int, output string) *providers.AssertionResult {
	passed := actual == expected
	msg := fmt.Sprintf("exit code %d == %d", actual, expected)
	if !passed {
		msg = fmt.Sprintf("exit code %d != expected %d; output: %s", actual, expected, Truncate(strings.TrimSpace(output), MaxOutputInReason))
	}
	return &providers.AssertionResult{
		Type:     "exit_code",
		Expected: fmt.Sprintf("%d", expected),
		Actual:   fmt.Sprintf("%d", actual),
		Passed:   passed,
		Message:  msg,
	}
}

// EvalContains checks if output contains the expected substring.
func EvalContains(output, expected string) *providers.AssertionResult {
	passed := strings.Contains(output, expected)
	msg := fmt.Sprintf("output contains %q", expected)
	if !passed {
		msg = fmt.Sprintf("output does not contain %q", expected)
	}
	return &providers.AssertionResult{
		Type:     "contains",
		Expected: expected,
		Actual:   Truncate(output, MaxOutputInReason),
		Passed:   passed,
		Message:  msg,
	}
}

// EvalNotContains checks that output does NOT contain the substring.
func EvalNotContains(output, forbidden string) *providers.AssertionResult {
	passed := !strings.Contains(output, forbidden)
	msg := fmt.Sprintf("output does not contain %q", forbidden)
	if !passed {
		msg = fmt.Sprintf("output contains forbidden %q", forbidden)
	}
	return &providers.AssertionResult{
		Type:     "not_contains",
		Expected: forbidden,
		Actual:   Truncate(output, MaxOutputInReason),
		Passed:   passed,
		Message:  msg,
	}
}

// EvalValidation evaluates one nested validation.
func EvalValidation(v schema.Validation, output string, exitCode int, vars map[string]string) *providers.AssertionResult {
	var r *providers.AssertionResult
	switch {
	case v.Expr != "":
		r = EvalExpr(v.Expr, output, exitCode, vars)
	case v.Contains != "":
		r = EvalContains(output, v.Contains)
	case v.NotContains != "":
		r = EvalNotContains(output, v.NotContains)
	default:
		r = &providers.AssertionResult{Type: "unknown", Message: "no validation field set"}
	}
	r.Name = v.Name
	if !r.Passed {
		r.Message = fmt.Sprintf("validation %q: %s", v.Name, r.Message)
	}
	return r
}

// EvalExpr evaluates a boolean expr-lang expression over output,
// exit_code and vars.
func EvalExpr(expression, output string, exitCode int, vars map[string]string) *providers.AssertionResult {
	if vars == nil {
		vars = map[string]string{}
	}
	env := map[string]any{"output": output, "exit_code": exitCode, "vars": vars}
	res := &providers.AssertionResult{Type: "expr", Expected: expression}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		res.Message = fmt.Sprintf("compile: %v", err)
		return res
	}
	v, err := expr.Run(program, env)
	if err != nil {
		res.Message = fmt.Sprintf("evaluate: %v", err)
		return res
	}
	res.Passed, _ = v.(bool)
	res.Actual = fmt.Sprintf("%v", v)
	if res.Passed {
		res.Message = fmt.Sprintf("%s is true", expression)
	} else {
		res.Message = fmt.Sprintf("%s is false", expression)
	}
	return res
}

// Truncate shortens s to at most max bytes without splitting a rune,
// appending "..." when anything was cut.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
