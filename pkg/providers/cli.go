package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// DefaultWaitDelay bounds how long Execute waits for output pipes to close
// after the command was killed or exited.
const DefaultWaitDelay = 2 * time.Second

// RealExecutor runs commands via os/exec. Each command gets its own
// process group so a timeout kills the whole tree, not just the shell.
type RealExecutor struct {
	// Dir is the working directory; empty means the current one.
	Dir string
	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration
}

// Execute runs a command with the given arguments and environment.
// A nil env inherits the current process environment; an empty non-nil
// env runs the command with no variables at all.
func (r *RealExecutor) Execute(ctx context.Context, command string, args []string, env []string) (*CommandResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = r.Dir
	if env != nil {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	combined := &lockedBuffer{}
	cmd.Stdout = io.MultiWriter(&stdout, combined)
	cmd.Stderr = io.MultiWriter(&stderr, combined)
	cmd.WaitDelay = DefaultWaitDelay
	if r.WaitDelay > 0 {
		cmd.WaitDelay = r.WaitDelay
	}
	killProcessGroupOnCancel(cmd)

	err := cmd.Run()
	res := &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Combined: combined.Bytes(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			res.TimedOut = true
			res.ExitCode = -1
			return res, nil
		}
		return nil, fmt.Errorf("execute command %q: %w", command, ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay):
		// The command exited but a background child kept the pipes open.
		res.ExitCode = cmd.ProcessState.ExitCode()
	default:
		return nil, fmt.Errorf("execute command %q: %w", command, err)
	}
	return res, nil
}

// lockedBuffer is written to from both the stdout and stderr copy goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
