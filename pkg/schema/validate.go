package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps[0].run")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateFile performs the full 3-phase validation pipeline on a scenario file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Scenario, []*ValidationError) {
	sc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Path:     "",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	errs := Validate(sc)
	if len(errs) > 0 {
		return sc, errs
	}
	return sc, nil
}

// Validate runs the semantic and domain phases on an already decoded scenario.
func Validate(sc *Scenario) []*ValidationError {
	var all []*ValidationError
	all = append(all, validateSemantic(sc)...)
	all = append(all, ValidateDomain(sc)...)
	return all
}

// validateSemantic validates the scenario against the generated JSON Schema.
func validateSemantic(sc *Scenario) []*ValidationError {
	semErr := func(format string, args ...any) []*ValidationError {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf(format, args...),
			Severity: "error",
		}}
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return semErr("marshal for schema validation: %v", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return semErr("compile schema: %v", err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return semErr("unmarshal document: %v", err)
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return semErr("%v", err)
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

func compiledSchema() (*sjsonschema.Schema, error) {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return nil, err
	}
	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("scenario-v1.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("scenario-v1.json")
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation.
// Dependencies on unknown scenarios and undefined variables are not
// checked here; they are resolved later by the graph and the runner.
func ValidateDomain(sc *Scenario) []*ValidationError {
	var errs []*ValidationError
	add := func(path, severity, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: severity,
		})
	}

	if strings.TrimSpace(sc.ID) == "" {
		add("id", "error", "scenario id is required")
	}
	if sc.EstimatedDuration != "" {
		if _, err := time.ParseDuration(sc.EstimatedDuration); err != nil {
			add("estimated_duration", "error", "invalid duration %q: %v", sc.EstimatedDuration, err)
		}
	}

	seenDeps := make(map[string]bool)
	for i, dep := range sc.Dependencies {
		if dep == sc.ID {
			add(fmt.Sprintf("dependencies[%d]", i), "error", "scenario %q depends on itself", sc.ID)
		}
		if seenDeps[dep] {
			add(fmt.Sprintf("dependencies[%d]", i), "warning", "duplicate dependency %q", dep)
		}
		seenDeps[dep] = true
	}

	for name := range sc.Baseline {
		if !identRe.MatchString(name) {
			add("baseline."+name, "error", "baseline name %q is not a valid identifier", name)
		}
	}

	if len(sc.Steps) == 0 {
		add("steps", "warning", "scenario has no steps; its confidence will be reported as 0")
	}

	for i, c := range sc.Setup {
		validateCommand(fmt.Sprintf("setup[%d]", i), c, add)
	}
	for i, c := range sc.Cleanup {
		validateCommand(fmt.Sprintf("cleanup[%d]", i), c, add)
	}

	stepNames := make(map[string]int)
	for i, step := range sc.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if prev, ok := stepNames[step.Name]; ok && step.Name != "" {
			add(path+".name", "warning", "step name %q already used by steps[%d]", step.Name, prev)
		} else {
			stepNames[step.Name] = i
		}
		switch {
		case step.Run == "" && len(step.Argv) == 0:
			add(path, "error", "step %q needs run or argv", step.Name)
		case step.Run != "" && len(step.Argv) > 0:
			add(path, "error", "step %q sets both run and argv", step.Name)
		}
		if step.StoreAs != "" && !identRe.MatchString(step.StoreAs) {
			add(path+".store_as", "error", "store_as %q is not a valid identifier", step.StoreAs)
		}
		for j, v := range step.Validations {
			vpath := fmt.Sprintf("%s.validations[%d]", path, j)
			set := 0
			for _, f := range []string{v.Expr, v.Contains, v.NotContains} {
				if f != "" {
					set++
				}
			}
			if set != 1 {
				add(vpath, "error", "validation %q must set exactly one of expr, contains, not_contains", v.Name)
				continue
			}
			if v.Expr != "" {
				env := map[string]any{"output": "", "exit_code": 0, "vars": map[string]string{}}
				if _, err := expr.Compile(v.Expr, expr.Env(env), expr.AsBool()); err != nil {
					add(vpath+".expr", "error", "compile %q: %v", v.Expr, err)
				}
			}
		}
	}

	for i, r := range sc.Ephemeral {
		if strings.TrimSpace(r.Site) == "" {
			add(fmt.Sprintf("ephemeral[%d].site", i), "error", "ephemeral resource needs a site name")
		}
	}

	return errs
}

func validateCommand(path string, c Command, add func(path, severity, format string, args ...any)) {
	switch {
	case c.Run == "" && len(c.Argv) == 0:
		add(path, "error", "command %q needs run or argv", c.Name)
	case c.Run != "" && len(c.Argv) > 0:
		add(path, "error", "command %q sets both run and argv", c.Name)
	}
}
