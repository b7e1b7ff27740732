package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
	"github.com/ormasoftchile/verity/pkg/console"
	"github.com/ormasoftchile/verity/pkg/project"
	"github.com/ormasoftchile/verity/pkg/report"
	"github.com/ormasoftchile/verity/pkg/runtime"
)

type runOptions struct {
	resume    bool
	fresh     bool
	noDeps    bool
	timeout   time.Duration
	replay    string
	record    string
	junitOut  string
	badgeOut  string
	badgeKind string
}

func newRunCmd(o *rootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [ids...]",
		Short: "Run scenarios in dependency order",
		Long: "Run the given scenarios and their dependencies (all scenarios when none\n" +
			"are given). Progress is checkpointed after every step; --resume picks an\n" +
			"interrupted run up without re-running completed scenarios.\n\n" +
			"Exits 0 when every executed scenario passed and 1 otherwise.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ro.run(ctx, cmd, p, args)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&ro.resume, "resume", false, "Continue the persisted checkpoint")
	f.BoolVar(&ro.fresh, "fresh", false, "Discard the persisted checkpoint and start a new run")
	f.BoolVar(&ro.noDeps, "no-deps", false, "Run exactly the given IDs without their dependencies")
	f.DurationVar(&ro.timeout, "step-timeout", 0, "Override the timeout of every step (e.g. 30s)")
	f.StringVar(&ro.replay, "replay", "", "Serve commands from a recording file instead of executing them")
	f.StringVar(&ro.record, "record", "", "Save every command response to a recording file for later --replay")
	f.StringVar(&ro.junitOut, "junit", "", "Write a JUnit XML report to this file")
	f.StringVar(&ro.badgeOut, "badge", "", "Write a badge JSON file to this path")
	f.StringVar(&ro.badgeKind, "badge-kind", report.KindCoverage, "Badge kind: coverage or issues")
	cmd.MarkFlagsMutuallyExclusive("resume", "fresh")
	cmd.MarkFlagsMutuallyExclusive("replay", "record")
	return cmd
}

func (ro *runOptions) run(ctx context.Context, cmd *cobra.Command, p *project.Project, ids []string) error {
	out := cmd.OutOrStdout()
	rc := project.RunConfig{
		RunOptions: runtime.RunOptions{Requested: ids, NoDeps: ro.noDeps, StepTimeout: ro.timeout},
		Resume:     ro.resume,
		Fresh:      ro.fresh,
		Replay:     ro.replay,
		Record:     ro.record,
		Out:        out,
	}

	state, cp, err := p.Run(ctx, rc)
	if cp != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, console.Banner(report.Summarize(cp)))
		if rerr := ro.writeReports(cmd, p, cp); rerr != nil && err == nil {
			err = rerr
		}
	}
	if err != nil {
		return err
	}
	if state.GateFailed != "" {
		fmt.Fprintln(out, console.Warning(fmt.Sprintf("gate %s failed; remaining scenarios were skipped", state.GateFailed)))
	}
	if !state.Success() {
		return errRunFailed
	}
	return nil
}

func (ro *runOptions) writeReports(cmd *cobra.Command, p *project.Project, cp *checkpoint.Checkpoint) error {
	if ro.junitOut != "" {
		if err := report.GenerateJUnit(ro.junitOut, cp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", ro.junitOut)
	}
	if ro.badgeOut != "" {
		value, err := report.BadgeValue(ro.badgeKind, cp)
		if err != nil {
			return err
		}
		if err := report.GenerateBadge(ro.badgeOut, ro.badgeKind, value, p.Config.Badges[ro.badgeKind]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", ro.badgeOut)
	}
	return nil
}

// defaultReportPath places a report under the state directory.
func defaultReportPath(p *project.Project, name string) string {
	return filepath.Join(p.Config.ReportsDir(), name)
}
