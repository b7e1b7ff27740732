// Package replay implements a CommandExecutor that serves pre-recorded
// command responses, for deterministic offline runs and tests.
package replay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Recording is a replay file: an ordered list of recorded commands.
type Recording struct {
	Commands []RecordedCommand `yaml:"commands"`
}

// RecordedCommand is a pre-recorded command with its response. A shell
// step is matched by Run (the script passed to "sh -c"); an argv step is
// matched by Argv. Repeat allows the entry to answer more than once.
type RecordedCommand struct {
	Run      string   `yaml:"run,omitempty"`
	Argv     []string `yaml:"argv,omitempty"`
	Stdout   string   `yaml:"stdout,omitempty"`
	Stderr   string   `yaml:"stderr,omitempty"`
	ExitCode int      `yaml:"exit_code,omitempty"`
	TimedOut bool     `yaml:"timed_out,omitempty"`
	Repeat   bool     `yaml:"repeat,omitempty"`
}

// LoadRecording reads and parses a recording YAML file.
func LoadRecording(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return ParseRecording(data)
}

// ParseRecording parses recording YAML bytes.
func ParseRecording(data []byte) (*Recording, error) {
	var r Recording
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse recording: %w", err)
	}
	if len(r.Commands) == 0 {
		return nil, fmt.Errorf("recording must have at least one command")
	}
	for i, c := range r.Commands {
		if (c.Run == "") == (len(c.Argv) == 0) {
			return nil, fmt.Errorf("commands[%d]: set exactly one of run or argv", i)
		}
	}
	return &r, nil
}
