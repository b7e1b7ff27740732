// Package project assembles a verity project from its manifest: the
// scenario store, the governance policy, the site registry and the run
// journal, wired into a runtime.Runner. The CLI and the MCP server both
// go through it so they run scenarios the same way.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
	"github.com/ormasoftchile/verity/pkg/config"
	"github.com/ormasoftchile/verity/pkg/governance"
	"github.com/ormasoftchile/verity/pkg/logging"
	"github.com/ormasoftchile/verity/pkg/providers"
	"github.com/ormasoftchile/verity/pkg/registry"
	"github.com/ormasoftchile/verity/pkg/replay"
	"github.com/ormasoftchile/verity/pkg/runtime"
	"github.com/ormasoftchile/verity/pkg/schema"
)

// ErrCheckpointExists is returned by Start when a fresh run would
// overwrite a checkpoint that still records progress.
var ErrCheckpointExists = errors.New("checkpoint exists")

// Project is a loaded manifest plus its scenario store.
type Project struct {
	Config *config.Config
	Store  *schema.Store
	Logger *slog.Logger
}

// Load reads the manifest at configPath, or discovers one upward from
// dir when configPath is empty, and opens its scenario store.
func Load(dir, configPath string, logger *slog.Logger) (*Project, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Discover(dir)
	}
	if err != nil {
		return nil, err
	}
	return Open(cfg, logger)
}

// Open opens the scenario store of cfg. Broken definitions are logged and
// left out; they never fail the whole project.
func Open(cfg *config.Config, logger *slog.Logger) (*Project, error) {
	logger = logging.OrDiscard(logger)
	store, err := schema.OpenStore(cfg.ScenariosDir())
	if err != nil {
		return nil, err
	}
	for _, derr := range store.DefinitionErrors() {
		logger.Warn("skipping broken scenario definition", "scenario", derr.ScenarioID, "source", derr.Source, "error", derr.Error())
	}
	return &Project{Config: cfg, Store: store, Logger: logger}, nil
}

// RunConfig selects how a run is executed.
type RunConfig struct {
	runtime.RunOptions

	// Resume continues the persisted checkpoint instead of starting a new
	// run. Fresh discards it first.
	Resume bool
	Fresh  bool
	// Replay serves command responses from a recording file instead of
	// executing them.
	Replay string
	// Record saves every command response of the run to this recording
	// file, with governance redaction applied.
	Record string
	// Executor overrides the command executor; it wins over Replay.
	Executor providers.CommandExecutor
	// Out receives progress lines. Nil discards them.
	Out io.Writer
	// Clock stamps a new checkpoint. Nil uses time.Now.
	Clock func() time.Time
}

// Start loads or creates the run checkpoint. Without Resume or Fresh it
// refuses to replace a checkpoint that still records progress, since the
// operator is the only one who clears run history.
func (p *Project) Start(rc RunConfig) (*checkpoint.Journal, error) {
	path := p.Config.CheckpointPath()
	existing, err := checkpoint.Load(path)
	switch {
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		existing = nil
	case err != nil:
		return nil, err
	}

	if rc.Resume {
		if existing == nil {
			return nil, fmt.Errorf("resume: %w", checkpoint.ErrNoCheckpoint)
		}
		if rc.Clock != nil {
			existing.SetClock(rc.Clock)
		}
		p.Logger.Info("resuming run", "run", existing.RunID, "completed", existing.Progress.Completed)
		return &checkpoint.Journal{Path: path, CP: existing}, nil
	}

	if existing != nil && !rc.Fresh && len(existing.Completed) > 0 {
		return nil, fmt.Errorf("%w for run %s at %s (resume it, or clear it to start over)", ErrCheckpointExists, existing.RunID, path)
	}
	if existing != nil {
		if err := checkpoint.Clear(path); err != nil {
			return nil, err
		}
	}

	now := time.Now
	if rc.Clock != nil {
		now = rc.Clock
	}
	cp := checkpoint.New(checkpoint.NewRunID(now()), checkpoint.WithClock(now))
	return &checkpoint.Journal{Path: path, CP: cp}, nil
}

// Executor returns the command executor for rc.
func (p *Project) Executor(rc RunConfig) (providers.CommandExecutor, error) {
	if rc.Executor != nil {
		return rc.Executor, nil
	}
	if rc.Replay != "" {
		rec, err := replay.LoadRecording(rc.Replay)
		if err != nil {
			return nil, err
		}
		return replay.NewExecutor(rec), nil
	}
	return &providers.RealExecutor{Dir: p.Config.Root}, nil
}

// Runner wires a runner for rc over journal. The returned close function
// releases the trace file.
func (p *Project) Runner(rc RunConfig, journal *checkpoint.Journal) (*runtime.Runner, func() error, error) {
	cfg := p.Config
	gov, err := governance.New(cfg.Governance)
	if err != nil {
		return nil, nil, fmt.Errorf("governance: %w", err)
	}
	exec, err := p.Executor(rc)
	if err != nil {
		return nil, nil, err
	}

	if rc.Record != "" {
		rec := replay.NewRecorder(exec)
		rec.Redact = gov.Redact
		exec = rec
	}

	steps := runtime.NewStepExecutor(exec, gov)
	steps.Shell = cfg.Defaults.Shell
	if d := cfg.StepTimeout(); d > 0 {
		steps.DefaultTimeout = d
	}

	trace, err := runtime.NewTraceWriter(cfg.TracePath())
	if err != nil {
		return nil, nil, err
	}

	r := runtime.NewRunner(p.Store.All(), steps, journal)
	r.Registry = registry.New(cfg.RegistryPath(), cfg.Defaults.MaxLinesRemoved, p.Logger)
	r.Trace = trace
	r.Logger = p.Logger
	r.GatePolicy = cfg.GatePolicy
	r.Preserve = cfg.Preserve()
	if rc.Out != nil {
		r.Out = rc.Out
	}
	return r, trace.Close, nil
}

// Run starts or resumes a run and executes it. The checkpoint is returned
// even when the run stops with an error, so callers can report how far it
// got.
func (p *Project) Run(ctx context.Context, rc RunConfig) (*runtime.RunState, *checkpoint.Checkpoint, error) {
	journal, err := p.Start(rc)
	if err != nil {
		return nil, nil, err
	}
	r, closeTrace, err := p.Runner(rc, journal)
	if err != nil {
		return nil, journal.CP, err
	}
	defer func() {
		if cerr := closeTrace(); cerr != nil {
			p.Logger.Warn("closing trace", "error", cerr)
		}
	}()

	state, err := r.Run(ctx, rc.RunOptions)
	switch exec := r.Steps.Executor.(type) {
	case *replay.Executor:
		if err == nil {
			for _, c := range exec.Unused() {
				p.Logger.Warn("recorded command never replayed", "run", c.Run, "argv", c.Argv)
			}
		}
	case *replay.Recorder:
		if serr := exec.Save(rc.Record); serr != nil {
			p.Logger.Error("saving recording", "path", rc.Record, "error", serr)
			if err == nil {
				err = serr
			}
		} else {
			p.Logger.Info("saved recording", "path", rc.Record, "commands", len(exec.Recording().Commands))
		}
	}
	return state, journal.CP, err
}

// Checkpoint loads the persisted checkpoint of the project.
func (p *Project) Checkpoint() (*checkpoint.Checkpoint, error) {
	return checkpoint.Load(p.Config.CheckpointPath())
}

// ClearCheckpoint removes the persisted checkpoint.
func (p *Project) ClearCheckpoint() error {
	return checkpoint.Clear(p.Config.CheckpointPath())
}

// WorkingDir returns the process working directory, or "." when it cannot
// be determined.
func WorkingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
