package replay

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/verity/pkg/atomicfile"
	"github.com/ormasoftchile/verity/pkg/providers"
)

// Recorder wraps a CommandExecutor and captures every response it returns,
// so a live run can be saved as a recording and replayed offline later.
type Recorder struct {
	inner providers.CommandExecutor
	// Redact is applied to captured stdout and stderr. Nil keeps them as is.
	Redact func(string) string

	mu       sync.Mutex
	commands []RecordedCommand
}

// NewRecorder creates a recording wrapper around inner.
func NewRecorder(inner providers.CommandExecutor) *Recorder {
	return &Recorder{inner: inner}
}

// Execute delegates to the inner executor and records the response.
// Commands that could not be started are not recorded.
func (r *Recorder) Execute(ctx context.Context, command string, args []string, env []string) (*providers.CommandResult, error) {
	res, err := r.inner.Execute(ctx, command, args, env)
	if err != nil {
		return res, err
	}

	rc := RecordedCommand{
		Stdout:   r.redact(string(res.Stdout)),
		Stderr:   r.redact(string(res.Stderr)),
		ExitCode: res.ExitCode,
		TimedOut: res.TimedOut,
	}
	if script, ok := shellScript(args); ok {
		rc.Run = script
	} else {
		rc.Argv = append([]string{command}, args...)
	}
	if rc.TimedOut {
		rc.ExitCode = 0
	}

	r.mu.Lock()
	r.commands = append(r.commands, rc)
	r.mu.Unlock()
	return res, nil
}

func (r *Recorder) redact(s string) string {
	if r.Redact == nil {
		return s
	}
	return r.Redact(s)
}

// Recording returns what has been captured so far.
func (r *Recorder) Recording() *Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Recording{Commands: append([]RecordedCommand(nil), r.commands...)}
}

// Save writes the captured commands to path as a recording file. Nothing
// is written when no command ran.
func (r *Recorder) Save(path string) error {
	rec := r.Recording()
	if len(rec.Commands) == 0 {
		return nil
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	return nil
}
