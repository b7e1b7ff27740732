package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/report"
)

func newReportCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Regenerate report artifacts from the checkpoint",
	}

	var junitOut string
	junit := &cobra.Command{
		Use:   "junit",
		Short: "Write the JUnit XML report",
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
			out := junitOut
			if out == "" {
				out = defaultReportPath(p, "junit.xml")
			}
			if err := report.GenerateJUnit(out, cp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	junit.Flags().StringVarP(&junitOut, "out", "o", "", "Output file (default: <state>/reports/junit.xml)")

	var (
		badgeOut  string
		badgeKind string
		value     float64
	)
	badge := &cobra.Command{
		Use:   "badge",
		Short: "Write a shields.io endpoint badge",
		Long: "Write a shields.io endpoint badge. The value is derived from the\n" +
			"checkpoint for the built-in kinds (coverage: pass rate, issues: error and\n" +
			"warning findings); --value sets it explicitly.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(cmd)
			if err != nil {
				return err
			}
			v := value
			if !cmd.Flags().Changed("value") {
				cp, err := p.Checkpoint()
				if err != nil {
					return err
				}
				if v, err = report.BadgeValue(badgeKind, cp); err != nil {
					return err
				}
			}
			out := badgeOut
			if out == "" {
				out = defaultReportPath(p, badgeKind+".json")
			}
			if err := report.GenerateBadge(out, badgeKind, v, p.Config.Badges[badgeKind]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	badge.Flags().StringVarP(&badgeOut, "out", "o", "", "Output file (default: <state>/reports/<kind>.json)")
	badge.Flags().StringVar(&badgeKind, "kind", report.KindCoverage, "Badge kind; thresholds come from the badges section of verity.yaml")
	badge.Flags().Float64Var(&value, "value", 0, "Badge value, overriding the one derived from the checkpoint")

	cmd.AddCommand(junit, badge)
	return cmd
}
