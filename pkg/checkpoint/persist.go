package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ormasoftchile/verity/pkg/atomicfile"
)

// ErrNoCheckpoint is returned by Load when no checkpoint file exists.
var ErrNoCheckpoint = errors.New("no checkpoint")

// Save writes the checkpoint as indented JSON through an atomic replace,
// so a crash mid-write leaves the previous checkpoint intact.
func Save(path string, c *Checkpoint) error {
	if err := c.CheckInvariant(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	data = append(data, '\n')
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint. A missing file yields ErrNoCheckpoint.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNoCheckpoint, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %s: %w", path, err)
	}
	if c.Completed == nil {
		c.Completed = []ScenarioRecord{}
	}
	if c.Findings == nil {
		c.Findings = []Finding{}
	}
	if c.Preserved == nil {
		c.Preserved = []PreservedResource{}
	}
	if err := c.CheckInvariant(); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", path, err)
	}
	return &c, nil
}

// Clear removes the checkpoint file. Clearing a missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Journal pairs a checkpoint with its file and saves after each mutation
// the runner makes through it.
type Journal struct {
	Path string
	CP   *Checkpoint
}

// Flush persists the current state.
func (j *Journal) Flush() error {
	if j == nil || j.Path == "" {
		return nil
	}
	return Save(j.Path, j.CP)
}
