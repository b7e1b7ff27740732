// Package providers defines the CommandExecutor interface used to run
// scenario commands, and the result types shared by its implementations.
package providers

import (
	"context"
	"time"
)

// CommandResult holds the output of a single command execution.
// Combined interleaves stdout and stderr in the order they were written.
type CommandResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	Combined []byte        `json:"combined"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Output returns the combined stdout and stderr as a string.
func (r *CommandResult) Output() string {
	if r == nil {
		return ""
	}
	return string(r.Combined)
}

// CommandExecutor abstracts real vs replay command execution.
// Implementations: RealExecutor, replay.Executor.
//
// The deadline of ctx is the step timeout. When it expires the executor
// kills the command and returns a result with TimedOut set rather than an
// error. Errors are reserved for commands that could not be started.
type CommandExecutor interface {
	Execute(ctx context.Context, command string, args []string, env []string) (*CommandResult, error)
}

// AssertionResult is the outcome of evaluating a single expectation.
type AssertionResult struct {
	Type     string `json:"type"` // timeout, exit_code, contains, not_contains, expr
	Name     string `json:"name,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message"`
}
