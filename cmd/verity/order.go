package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/checkpoint"
	"github.com/ormasoftchile/verity/pkg/console"
	"github.com/ormasoftchile/verity/pkg/diagram"
	"github.com/ormasoftchile/verity/pkg/project"
	"github.com/ormasoftchile/verity/pkg/runtime"
)

func newOrderCmd(o *rootOptions) *cobra.Command {
	var (
		dryRun      bool
		noDeps      bool
		diagramKind string
	)
	cmd := &cobra.Command{
		Use:   "order [ids...]",
		Short: "Show the resolved execution order",
		Long: "Resolve the execution order for the given scenarios and everything they\n" +
			"depend on (all scenarios when none are given). --dry-run also shows the\n" +
			"commands each scenario would run and what a resume would skip.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			opts := runtime.RunOptions{Requested: args, NoDeps: noDeps}
			plan, err := runtime.NewRunner(p.Store.All(), nil, nil).Plan(opts)
			if err != nil {
				return err
			}
			for _, w := range plan.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), console.Warning(w.Message))
			}

			if diagramKind != "" {
				format, err := diagram.ParseFormat(diagramKind)
				if err != nil {
					return err
				}
				d, err := diagram.Graph(p.Store.All(), plan.Order, format)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, d)
				return nil
			}

			if !dryRun {
				for i, id := range plan.Order {
					fmt.Fprintf(out, "%3d. %s\n", i+1, id)
				}
				return nil
			}
			return printDryRun(out, p, plan.Order)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the commands each scenario would run")
	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "Use exactly the given IDs without their dependencies")
	cmd.Flags().StringVar(&diagramKind, "diagram", "", "Render the dependency graph: mermaid or ascii")
	return cmd
}

func printDryRun(w io.Writer, p *project.Project, order []string) error {
	cp, err := p.Checkpoint()
	if err != nil && !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return err
	}

	var total time.Duration
	for i, id := range order {
		sc, err := p.Store.Load(id)
		if err != nil {
			return err
		}
		header := fmt.Sprintf("%d. %s", i+1, sc.ID)
		if sc.Gate {
			header += " " + console.GlyphGate + " gate"
		}
		fmt.Fprintln(w, console.Header(header))
		if cp != nil {
			if rec, ok := cp.Record(id); ok {
				fmt.Fprintf(w, "   %s in run %s; a resume keeps it\n", console.Status(string(rec.Status)), cp.RunID)
				continue
			}
		}
		for _, c := range sc.Setup {
			fmt.Fprintf(w, "   setup     %s\n", commandText(c.Run, c.Argv))
		}
		for _, name := range sortedKeys(sc.Baseline) {
			fmt.Fprintf(w, "   baseline  %s = %s\n", name, sc.Baseline[name])
		}
		for _, st := range sc.Steps {
			line := fmt.Sprintf("   step      %s: %s", st.Name, commandText(st.Run, st.Argv))
			if st.Critical() {
				line += " (critical)"
			}
			fmt.Fprintln(w, line)
		}
		for _, c := range sc.Cleanup {
			fmt.Fprintf(w, "   cleanup   %s\n", commandText(c.Run, c.Argv))
		}
		for _, r := range sc.Ephemeral {
			fmt.Fprintf(w, "   ephemeral %s\n", r.Site)
		}
		total += sc.Estimated()
	}
	if total > 0 {
		fmt.Fprintf(w, "\nEstimated duration: %s\n", total)
	}
	return nil
}

func commandText(run string, argv []string) string {
	if run != "" {
		return run
	}
	return fmt.Sprintf("%q", argv)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
