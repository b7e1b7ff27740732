package runtime

import (
	"context"
	"errors"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
	"github.com/ormasoftchile/verity/pkg/config"
	"github.com/ormasoftchile/verity/pkg/governance"
	"github.com/ormasoftchile/verity/pkg/providers"
	"github.com/ormasoftchile/verity/pkg/schema"
)

// recordingExecutor records invocations and answers with a fixed result.
type recordingExecutor struct {
	calls  [][]string
	envs   [][]string
	result *providers.CommandResult
	err    error
}

func (r *recordingExecutor) Execute(ctx context.Context, command string, args []string, env []string) (*providers.CommandResult, error) {
	r.calls = append(r.calls, append([]string{command}, args...))
	r.envs = append(r.envs, env)
	if r.err != nil {
		return nil, r.err
	}
	res := *r.result
	return &res, nil
}

func output(s string) *providers.CommandResult {
	return &providers.CommandResult{Stdout: []byte(s), Combined: []byte(s)}
}

func intp(i int) *int { return &i }

func TestExecuteShellForm(t *testing.T) {
	exec := &recordingExecutor{result: output("ok\n")}
	x := NewStepExecutor(exec, nil)

	res, err := x.Execute(context.Background(), schema.Step{Name: "probe", Run: "curl {url}"}, Vars{"url": "http://a b"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched {
		t.Errorf("expected match, reason %q", res.Reason)
	}
	want := []string{DefaultShell, "-c", "curl 'http://a b'"}
	if strings.Join(exec.calls[0], "|") != strings.Join(want, "|") {
		t.Errorf("call = %q, want %q", exec.calls[0], want)
	}
	if res.Command != "curl 'http://a b'" {
		t.Errorf("Command = %q", res.Command)
	}
}

func TestExecuteArgvForm(t *testing.T) {
	exec := &recordingExecutor{result: output("")}
	x := NewStepExecutor(exec, nil)
	_, err := x.Execute(context.Background(), schema.Step{Name: "a", Argv: []string{"echo", "{v}"}}, Vars{"v": "x; y"})
	if err != nil {
		t.Fatal(err)
	}
	if got := exec.calls[0]; len(got) != 2 || got[0] != "echo" || got[1] != "x; y" {
		t.Errorf("argv = %q", got)
	}
}

func TestStoreAsCapturesEvenOnFailure(t *testing.T) {
	exec := &recordingExecutor{result: &providers.CommandResult{Stdout: []byte("  partial\n"), Combined: []byte("  partial\n"), ExitCode: 3}}
	x := NewStepExecutor(exec, nil)
	vars := Vars{}

	res, err := x.Execute(context.Background(), schema.Step{Name: "s", Run: "x", StoreAs: "out"}, vars)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched {
		t.Error("exit 3 should not match")
	}
	if vars["out"] != "partial" {
		t.Errorf("vars[out] = %q, want %q", vars["out"], "partial")
	}
}

func TestStoreAsSkippedOnTimeout(t *testing.T) {
	exec := &recordingExecutor{result: &providers.CommandResult{Stdout: []byte("half"), TimedOut: true, ExitCode: -1}}
	x := NewStepExecutor(exec, nil)
	vars := Vars{}

	res, err := x.Execute(context.Background(), schema.Step{Name: "s", Run: "x", StoreAs: "out", ExpectExit: intp(-1)}, vars)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched || res.Status() != checkpoint.StepTimeout {
		t.Errorf("timeout must fail regardless of expected exit: %+v", res)
	}
	if _, ok := vars["out"]; ok {
		t.Error("timed-out step must not store its output")
	}
}

func TestGovernanceBlocksBeforeExecution(t *testing.T) {
	exec := &recordingExecutor{result: output("")}
	gov, err := governance.New(config.Governance{DeniedCommands: []string{"rm"}})
	if err != nil {
		t.Fatal(err)
	}
	x := NewStepExecutor(exec, gov)

	res, err := x.Execute(context.Background(), schema.Step{Name: "wipe", Run: "cd /tmp && rm -rf x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Blocked || res.Matched {
		t.Errorf("expected blocked failure, got %+v", res)
	}
	if len(exec.calls) != 0 {
		t.Errorf("blocked command was executed: %q", exec.calls)
	}
}

func TestRedactionAppliesToOutputAndReason(t *testing.T) {
	exec := &recordingExecutor{result: &providers.CommandResult{Combined: []byte("password=hunter2"), ExitCode: 1}}
	gov, err := governance.New(config.Governance{Redact: []config.RedactionRule{{Pattern: `password=\S+`, Replace: "password=***"}}})
	if err != nil {
		t.Fatal(err)
	}
	x := NewStepExecutor(exec, gov)
	res, err := x.Execute(context.Background(), schema.Step{Name: "login", Run: "login"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Output, "hunter2") || strings.Contains(res.Reason, "hunter2") {
		t.Errorf("secret leaked: output=%q reason=%q", res.Output, res.Reason)
	}
}

func TestDeniedEnvVarsAreFiltered(t *testing.T) {
	exec := &recordingExecutor{result: output("")}
	gov, err := governance.New(config.Governance{DenyEnvVars: []string{"AWS_*"}})
	if err != nil {
		t.Fatal(err)
	}
	x := NewStepExecutor(exec, gov)
	x.Env = []string{"PATH=/bin", "AWS_SECRET_ACCESS_KEY=k"}
	if _, err := x.Execute(context.Background(), schema.Step{Name: "e", Run: "env"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := exec.envs[0]; len(got) != 1 || got[0] != "PATH=/bin" {
		t.Errorf("env = %q", got)
	}
}

func TestDenyAllEnvVarsPassesEmptyEnvironment(t *testing.T) {
	exec := &recordingExecutor{result: output("")}
	gov, err := governance.New(config.Governance{DenyEnvVars: []string{"*"}})
	if err != nil {
		t.Fatal(err)
	}
	x := NewStepExecutor(exec, gov)
	x.Env = []string{"PATH=/bin", "VERITY_SECRET=hunter2"}
	if _, err := x.Execute(context.Background(), schema.Step{Name: "e", Run: "env"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := exec.envs[0]; got == nil || len(got) != 0 {
		t.Errorf("env = %#v, want empty non-nil", got)
	}
}

func TestDenyAllEnvVarsHidesInheritedVariables(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("process tests use sh")
	}
	t.Setenv("VERITY_SECRET", "hunter2")
	gov, err := governance.New(config.Governance{DenyEnvVars: []string{"*"}})
	if err != nil {
		t.Fatal(err)
	}
	x := NewStepExecutor(&providers.RealExecutor{}, gov)
	res, err := x.Execute(context.Background(), schema.Step{Name: "e", Run: `echo "secret=$VERITY_SECRET"`}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(res.Output, "hunter2") {
		t.Errorf("denied variable reached the command: %q", res.Output)
	}
	if !strings.Contains(res.Output, "secret=") {
		t.Errorf("command did not run: %+v", res)
	}
}

// deadlineExecutor records how long each command was given to run.
type deadlineExecutor struct {
	budgets []time.Duration
}

func (d *deadlineExecutor) Execute(ctx context.Context, command string, args []string, env []string) (*providers.CommandResult, error) {
	if dl, ok := ctx.Deadline(); ok {
		d.budgets = append(d.budgets, time.Until(dl))
	}
	return &providers.CommandResult{}, nil
}

func TestTimeoutOverrideWinsOverStepTimeout(t *testing.T) {
	exec := &deadlineExecutor{}
	x := NewStepExecutor(exec, nil)
	st := schema.Step{Name: "s", Run: "true", Timeout: 300}

	if _, err := x.Execute(context.Background(), st, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := x.ExecuteTimeout(context.Background(), st, nil, 2*time.Second); err != nil {
		t.Fatal(err)
	}
	if len(exec.budgets) != 2 {
		t.Fatalf("expected 2 deadlines, got %d", len(exec.budgets))
	}
	if exec.budgets[0] < 200*time.Second {
		t.Errorf("step timeout not used: %s", exec.budgets[0])
	}
	if exec.budgets[1] > 2*time.Second {
		t.Errorf("override not applied: %s", exec.budgets[1])
	}
}

func TestStartFailureIsFailedStep(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("no such file")}
	x := NewStepExecutor(exec, nil)
	res, err := x.Execute(context.Background(), schema.Step{Name: "s", Argv: []string{"/nope"}}, nil)
	if err != nil {
		t.Fatalf("start failure should not be a run error: %v", err)
	}
	if res.Matched || !strings.Contains(res.Reason, "no such file") {
		t.Errorf("got %+v", res)
	}
}

func TestCancelledContextIsRunError(t *testing.T) {
	exec := &recordingExecutor{result: output("")}
	x := NewStepExecutor(exec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := x.Execute(ctx, schema.Step{Name: "s", Run: "true"}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNoCommandFails(t *testing.T) {
	x := NewStepExecutor(&recordingExecutor{result: output("")}, nil)
	res, err := x.Execute(context.Background(), schema.Step{Name: "empty"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched {
		t.Error("a step without a command cannot pass")
	}
}

// TestRealTimeoutKillsCommand runs sleep under a 1s timeout with a real shell.
func TestRealTimeoutKillsCommand(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	x := NewStepExecutor(&providers.RealExecutor{}, nil)
	start := time.Now()
	res, err := x.Execute(context.Background(), schema.Step{Name: "slow", Run: "sleep 5", Timeout: 1, StoreAs: "slow"}, Vars{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.TimedOut || res.Matched {
		t.Errorf("expected timeout failure, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("timeout did not kill the command promptly: %s", elapsed)
	}
	if !strings.Contains(res.Reason, "timed out") {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestRealExpectations(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	x := NewStepExecutor(&providers.RealExecutor{}, nil)
	step := schema.Step{
		Name:              "greet",
		Run:               "echo hello {who}; echo warn >&2; exit 2",
		ExpectExit:        intp(2),
		ExpectContains:    "warn",
		ExpectNotContains: "ERROR",
		StoreAs:           "greeting",
	}
	vars := Vars{"who": "world"}
	res, err := x.Execute(context.Background(), step, vars)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched {
		t.Errorf("expected match, reason %q", res.Reason)
	}
	if vars["greeting"] != "hello world" {
		t.Errorf("greeting = %q (stdout only, trimmed)", vars["greeting"])
	}
}
