package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/console"
	"github.com/ormasoftchile/verity/pkg/report"
)

func newSummaryCmd(o *rootOptions) *cobra.Command {
	var (
		asJSON     bool
		asMarkdown bool
		width      int
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the summary of the checkpointed run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(cmd)
			if err != nil {
				return err
			}
			cp, err := p.Checkpoint()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report.Summarize(cp))
			case asMarkdown:
				_, err := fmt.Fprint(out, console.RenderMarkdown(report.Markdown(cp), width))
				return err
			}
			fmt.Fprint(out, cp.Summary())
			fmt.Fprintln(out, console.Banner(report.Summarize(cp)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	cmd.Flags().BoolVar(&asMarkdown, "markdown", false, "Render the markdown run report")
	cmd.Flags().IntVar(&width, "width", 100, "Wrap width for --markdown (0 disables wrapping)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	return cmd
}
