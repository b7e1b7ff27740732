package providers

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process tests use sh")
	}
}

func TestRealExecutorEcho(t *testing.T) {
	skipWithoutShell(t)
	r := &RealExecutor{}
	result, err := r.Execute(context.Background(), "echo", []string{"hello"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := strings.TrimSpace(string(result.Stdout))
	if out != "hello" {
		t.Errorf("stdout = %q, want %q", out, "hello")
	}
	if result.ExitCode != 0 || result.TimedOut {
		t.Errorf("exit code = %d timedOut = %v", result.ExitCode, result.TimedOut)
	}
}

func TestRealExecutorCombinedOutput(t *testing.T) {
	skipWithoutShell(t)
	r := &RealExecutor{}
	result, err := r.Execute(context.Background(), "sh", []string{"-c", "echo out; echo err >&2; exit 3"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
	if strings.TrimSpace(string(result.Stderr)) != "err" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	got := result.Output()
	if !strings.Contains(got, "out") || !strings.Contains(got, "err") {
		t.Errorf("combined = %q, want both streams", got)
	}
}

// Exit code 124 from the command itself must not be mistaken for a timeout.
func TestRealExecutorExit124IsNotTimeout(t *testing.T) {
	skipWithoutShell(t)
	r := &RealExecutor{}
	result, err := r.Execute(context.Background(), "sh", []string{"-c", "exit 124"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TimedOut {
		t.Error("exit 124 reported as timeout")
	}
	if result.ExitCode != 124 {
		t.Errorf("exit code = %d, want 124", result.ExitCode)
	}
}

func TestRealExecutorTimeoutKillsGroup(t *testing.T) {
	skipWithoutShell(t)
	r := &RealExecutor{WaitDelay: 500 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	// The background sleep inherits stdout; only a group kill closes the pipe promptly.
	result, err := r.Execute(ctx, "sh", []string{"-c", "sleep 5 & sleep 5; wait"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected TimedOut")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout took %v, children were not killed", elapsed)
	}
}

func TestRealExecutorMissingBinary(t *testing.T) {
	r := &RealExecutor{}
	if _, err := r.Execute(context.Background(), "definitely-not-a-real-binary-xyz", nil, nil); err == nil {
		t.Error("expected start error for missing binary")
	}
}

func TestRealExecutorEmptyEnvIsNotInherited(t *testing.T) {
	skipWithoutShell(t)
	t.Setenv("VERITY_SECRET", "hunter2")
	r := &RealExecutor{}
	result, err := r.Execute(context.Background(), "/bin/sh", []string{"-c", `echo "x$VERITY_SECRET"`}, []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out := strings.TrimSpace(string(result.Stdout)); out != "x" {
		t.Errorf("stdout = %q, want %q", out, "x")
	}
}
