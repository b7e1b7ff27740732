package replay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ormasoftchile/verity/pkg/providers"
)

// Executor implements providers.CommandExecutor by matching commands
// against recorded entries. Fail-closed: an unmatched command is an error.
type Executor struct {
	recording *Recording

	mu   sync.Mutex
	used []bool
}

// NewExecutor creates an Executor from a loaded recording.
func NewExecutor(r *Recording) *Executor {
	return &Executor{recording: r, used: make([]bool, len(r.Commands))}
}

// Execute returns the first unused recorded response matching the command.
func (e *Executor) Execute(ctx context.Context, command string, args []string, env []string) (*providers.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullArgv := append([]string{command}, args...)
	script, isShell := shellScript(args)

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, rc := range e.recording.Commands {
		if e.used[i] && !rc.Repeat {
			continue
		}
		var match bool
		if rc.Run != "" {
			match = isShell && rc.Run == script
		} else {
			match = argvMatch(fullArgv, rc.Argv)
		}
		if !match {
			continue
		}
		e.used[i] = true
		res := &providers.CommandResult{
			Stdout:   []byte(rc.Stdout),
			Stderr:   []byte(rc.Stderr),
			Combined: []byte(rc.Stdout + rc.Stderr),
			ExitCode: rc.ExitCode,
			TimedOut: rc.TimedOut,
		}
		if rc.TimedOut {
			res.ExitCode = -1
		}
		return res, nil
	}
	return nil, fmt.Errorf("replay: no matching recorded entry for command: %s", strings.Join(fullArgv, " "))
}

// Unused returns the recorded entries that were never served.
func (e *Executor) Unused() []RecordedCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []RecordedCommand
	for i, rc := range e.recording.Commands {
		if !e.used[i] {
			out = append(out, rc)
		}
	}
	return out
}

// shellScript recognises the "-c <script>" form used for run steps.
func shellScript(args []string) (string, bool) {
	if len(args) == 2 && args[0] == "-c" {
		return args[1], true
	}
	return "", false
}

// argvMatch returns true if the two argv slices are identical.
func argvMatch(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if actual[i] != expected[i] {
			return false
		}
	}
	return true
}
