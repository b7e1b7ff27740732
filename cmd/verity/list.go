package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/console"
)

func newListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenarios of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			tb := &console.Table{
				Headers:  []string{"ID", "NAME", "DEPENDS ON", "GATE", "STEPS", "EST."},
				MaxWidth: 48,
			}
			for _, sc := range p.Store.All() {
				gate := ""
				if sc.Gate {
					gate = console.GlyphGate
				}
				tb.Append(sc.ID, sc.Name, orDash(strings.Join(sc.Dependencies, ", ")), gate,
					strconv.Itoa(len(sc.Steps)), orDash(sc.EstimatedDuration))
			}
			if err := tb.Render(out); err != nil {
				return err
			}
			for _, derr := range p.Store.DefinitionErrors() {
				fmt.Fprintln(cmd.ErrOrStderr(), console.Warning(derr.Error()))
			}
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
