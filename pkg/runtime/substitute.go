package runtime

import (
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	shellSafeRe   = regexp.MustCompile(`^[A-Za-z0-9_./:@%+=,-]+$`)
)

// Substitute replaces {name} placeholders with values from vars.
// Placeholders naming an unknown variable are left as written, so commands
// with literal braces (awk, jq, JSON) pass through untouched. The result
// is plain text; use SubstituteShell for strings handed to a shell.
func Substitute(tmpl string, vars Vars) string {
	return replace(tmpl, vars, func(s string) string { return s })
}

// SubstituteShell is Substitute with every inserted value shell-quoted
// unless it consists only of characters that need no quoting.
func SubstituteShell(tmpl string, vars Vars) string {
	return replace(tmpl, vars, ShellQuote)
}

// SubstituteArgv substitutes each argument independently. No shell is
// involved, so values are inserted verbatim.
func SubstituteArgv(argv []string, vars Vars) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = Substitute(a, vars)
	}
	return out
}

func replace(tmpl string, vars Vars, quote func(string) string) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[1 : len(m)-1]
		val, ok := vars[name]
		if !ok {
			return m
		}
		return quote(val)
	})
}

// ShellQuote returns s unchanged when it is made of shell-safe characters,
// and single-quoted otherwise.
func ShellQuote(s string) string {
	if shellSafeRe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Placeholders lists the distinct placeholder names in tmpl, in order of
// first appearance.
func Placeholders(tmpl string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
