package runtime

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ormasoftchile/verity/pkg/assertions"
	"github.com/ormasoftchile/verity/pkg/checkpoint"
	"github.com/ormasoftchile/verity/pkg/governance"
	"github.com/ormasoftchile/verity/pkg/providers"
	"github.com/ormasoftchile/verity/pkg/schema"
)

// DefaultShell runs shell-form commands.
const DefaultShell = "/bin/sh"

// StepResult is the evaluated outcome of one step or command.
type StepResult struct {
	Name     string
	Command  string // as executed, after substitution
	Output   string // combined stdout+stderr, redacted
	ExitCode int
	TimedOut bool
	Blocked  bool // refused by governance, never executed
	Duration time.Duration
	Matched  bool
	Reason   string // first failed check, redacted
	Checks   []*providers.AssertionResult
}

// Status maps the result onto the persisted step status.
func (r *StepResult) Status() checkpoint.StepStatus {
	switch {
	case r.TimedOut:
		return checkpoint.StepTimeout
	case r.Matched:
		return checkpoint.StepPassed
	default:
		return checkpoint.StepFailed
	}
}

// StepExecutor substitutes, runs and evaluates steps.
type StepExecutor struct {
	Executor providers.CommandExecutor
	Gov      *governance.Engine
	// Shell runs the run: form as `Shell -c script`.
	Shell string
	// DefaultTimeout applies to steps without their own timeout.
	DefaultTimeout time.Duration
	// Env is the command environment; nil means the process environment.
	// Governance-denied variables are removed either way.
	Env []string
}

// NewStepExecutor returns a StepExecutor with the default shell and timeout.
func NewStepExecutor(executor providers.CommandExecutor, gov *governance.Engine) *StepExecutor {
	return &StepExecutor{
		Executor:       executor,
		Gov:            gov,
		Shell:          DefaultShell,
		DefaultTimeout: schema.DefaultStepTimeout,
	}
}

// Execute runs step with vars substituted, evaluates its expectations and,
// when the step sets store_as and did not time out, stores its trimmed
// stdout into vars whether or not the step passed.
//
// The returned error is non-nil only when ctx itself was cancelled; every
// other problem (governance refusal, a command that cannot start) is a
// failed StepResult.
func (x *StepExecutor) Execute(ctx context.Context, step schema.Step, vars Vars) (*StepResult, error) {
	return x.ExecuteTimeout(ctx, step, vars, 0)
}

// ExecuteTimeout is Execute with a timeout override. A positive override
// replaces the step's own timeout and the default.
func (x *StepExecutor) ExecuteTimeout(ctx context.Context, step schema.Step, vars Vars, override time.Duration) (*StepResult, error) {
	timeout := step.TimeoutDuration(x.DefaultTimeout)
	if override > 0 {
		timeout = override
	}
	res, cmdRes, err := x.run(ctx, step.Name, step.Run, step.Argv, timeout, vars)
	if err != nil {
		return nil, err
	}
	if cmdRes == nil {
		return res, nil
	}

	outcome := assertions.EvaluateStep(step, cmdRes, vars)
	res.Checks = outcome.Results
	res.Matched = outcome.Passed()
	res.Reason = x.Gov.Redact(outcome.Reason())

	if step.StoreAs != "" && !cmdRes.TimedOut && vars != nil {
		vars[step.StoreAs] = strings.TrimSpace(string(cmdRes.Stdout))
	}
	return res, nil
}

// RunCommand runs a setup or cleanup command. It passes iff the command
// exits 0 within its timeout.
func (x *StepExecutor) RunCommand(ctx context.Context, c schema.Command, vars Vars) (*StepResult, error) {
	step := schema.Step{Name: c.Name, Run: c.Run, Argv: c.Argv, Timeout: c.Timeout}
	if step.Name == "" {
		step.Name = commandText(c.Run, c.Argv)
	}
	return x.Execute(ctx, step, vars)
}

// Capture runs a baseline command and returns its trimmed stdout.
func (x *StepExecutor) Capture(ctx context.Context, name, command string, vars Vars) (string, *StepResult, error) {
	res, cmdRes, err := x.run(ctx, name, command, nil, x.DefaultTimeout, vars)
	if err != nil || cmdRes == nil {
		return "", res, err
	}
	outcome := assertions.EvaluateStep(schema.Step{Name: name}, cmdRes, vars)
	res.Checks = outcome.Results
	res.Matched = outcome.Passed()
	res.Reason = x.Gov.Redact(outcome.Reason())
	if cmdRes.TimedOut {
		return "", res, nil
	}
	return strings.TrimSpace(string(cmdRes.Stdout)), res, nil
}

// run executes one command. A nil CommandResult with a nil error means the
// command never ran and res already describes why.
func (x *StepExecutor) run(ctx context.Context, name, script string, argv []string, timeout time.Duration, vars Vars) (*StepResult, *providers.CommandResult, error) {
	res := &StepResult{Name: name}

	var program string
	var args []string
	switch {
	case script != "":
		script = SubstituteShell(script, vars)
		res.Command = script
		if err := x.Gov.CheckScript(script); err != nil {
			return x.refuse(res, err), nil, nil
		}
		program, args = x.shell(), []string{"-c", script}
	case len(argv) > 0:
		argv = SubstituteArgv(argv, vars)
		res.Command = strings.Join(argv, " ")
		if err := x.Gov.CheckCommand(argv[0]); err != nil {
			return x.refuse(res, err), nil, nil
		}
		program, args = argv[0], argv[1:]
	default:
		res.Reason = "no command: set run or argv"
		res.ExitCode = -1
		return res, nil, nil
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmdRes, err := x.Executor.Execute(stepCtx, program, args, x.env())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, fmt.Errorf("step %q: %w", name, ctxErr)
	}
	if err != nil {
		res.Duration = time.Since(start)
		res.ExitCode = -1
		res.Reason = x.Gov.Redact(fmt.Sprintf("execute: %v", err))
		return res, nil, nil
	}
	if cmdRes.Duration == 0 {
		cmdRes.Duration = time.Since(start)
	}
	res.Duration = cmdRes.Duration
	res.ExitCode = cmdRes.ExitCode
	res.TimedOut = cmdRes.TimedOut
	res.Output = x.Gov.Redact(cmdRes.Output())
	return res, cmdRes, nil
}

func (x *StepExecutor) refuse(res *StepResult, err error) *StepResult {
	res.Blocked = true
	res.ExitCode = -1
	res.Reason = fmt.Sprintf("governance: %v", err)
	return res
}

func (x *StepExecutor) shell() string {
	if x.Shell != "" {
		return x.Shell
	}
	return DefaultShell
}

func (x *StepExecutor) env() []string {
	env := x.Env
	if env == nil {
		env = os.Environ()
	}
	filtered, _ := x.Gov.FilterEnvVars(env)
	if filtered == nil {
		// Non-nil so an all-denying policy yields an empty environment
		// instead of the inherited one.
		filtered = []string{}
	}
	return filtered
}

func commandText(run string, argv []string) string {
	if run != "" {
		return run
	}
	return strings.Join(argv, " ")
}
