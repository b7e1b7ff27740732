package runtime

import (
	"reflect"
	"testing"
)

func TestSubstitute(t *testing.T) {
	vars := Vars{"site": "smoke-drupal", "count": "3"}
	tests := []struct {
		in, want string
	}{
		{"drush -l {site} status", "drush -l smoke-drupal status"},
		{"{count}{count}", "33"},
		{"awk '{print $1}'", "awk '{print $1}'"},
		{"echo {missing}", "echo {missing}"},
		{`jq '{a: 1}'`, `jq '{a: 1}'`},
		{"no placeholders", "no placeholders"},
	}
	for _, tt := range tests {
		if got := Substitute(tt.in, vars); got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstituteShellQuotesUnsafeValues(t *testing.T) {
	vars := Vars{
		"safe":   "http://localhost:8080/a_b-c.d",
		"space":  "two words",
		"inject": "x; rm -rf /",
		"quote":  "it's",
		"empty":  "",
	}
	tests := []struct {
		in, want string
	}{
		{"curl {safe}", "curl http://localhost:8080/a_b-c.d"},
		{"echo {space}", "echo 'two words'"},
		{"echo {inject}", "echo 'x; rm -rf /'"},
		{"echo {quote}", `echo 'it'\''s'`},
		{"test -n {empty}", "test -n ''"},
	}
	for _, tt := range tests {
		if got := SubstituteShell(tt.in, vars); got != tt.want {
			t.Errorf("SubstituteShell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstituteArgvIsVerbatim(t *testing.T) {
	got := SubstituteArgv([]string{"echo", "{v}", "pre-{v}", "{nope}"}, Vars{"v": "a b; c"})
	want := []string{"echo", "a b; c", "pre-a b; c", "{nope}"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SubstituteArgv = %q, want %q", got, want)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{a} {b} {a} {1bad} {c_2}")
	want := []string{"a", "b", "c_2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders = %v, want %v", got, want)
	}
}
