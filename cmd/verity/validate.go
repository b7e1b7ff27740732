package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/schema"
)

func newValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file|dir]",
		Short: "Validate scenario definitions (structural, semantic and domain phases)",
		Long: "Validate one scenario file, every scenario file of a directory, or,\n" +
			"with no argument, the scenario directory of the project.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

			var dir string
			if len(args) == 1 {
				info, err := os.Stat(args[0])
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return validateFile(out, errOut, args[0])
				}
				dir = args[0]
			} else {
				p, err := o.project(cmd)
				if err != nil {
					return err
				}
				dir = p.Config.ScenariosDir()
			}

			store, err := schema.OpenStore(dir)
			if err != nil {
				return err
			}
			for _, id := range store.ListScenarios() {
				printValidationWarnings(errOut, store.Warnings(id))
			}
			broken := store.DefinitionErrors()
			for i, derr := range broken {
				fmt.Fprintf(errOut, "  %d. %s\n", i+1, derr.Source)
				printProblems(errOut, derr)
			}
			if len(broken) > 0 {
				return fmt.Errorf("validation failed: %d broken scenario definition(s)", len(broken))
			}
			fmt.Fprintf(out, "✓ %d scenarios in %s are valid\n", len(store.ListScenarios()), dir)
			return nil
		},
	}
}

func validateFile(out, errOut io.Writer, path string) error {
	sc, errs := schema.ValidateFile(path)
	printValidationWarnings(errOut, errs)
	if schema.HasErrors(errs) {
		n := 0
		fmt.Fprintf(errOut, "Validation failed:\n\n")
		for _, e := range errs {
			if e.Severity == "warning" {
				continue
			}
			n++
			fmt.Fprintf(errOut, "  %d. [%s] %s\n", n, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(errOut, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", n)
	}
	fmt.Fprintf(out, "✓ %s is valid (%d steps)\n", sc.ID, len(sc.Steps))
	return nil
}

func printProblems(w io.Writer, derr *schema.DefinitionError) {
	if len(derr.Problems) == 0 {
		fmt.Fprintf(w, "     %s\n", derr.Error())
		return
	}
	for _, e := range derr.Problems {
		if e.Severity == "warning" {
			continue
		}
		fmt.Fprintf(w, "     [%s] %s\n", e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "       at: %s\n", e.Path)
		}
	}
}

func printValidationWarnings(w io.Writer, errs []*schema.ValidationError) {
	for _, e := range errs {
		if e.Severity != "warning" {
			continue
		}
		fmt.Fprintf(w, "  ⚠ [%s] %s\n", e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(w, "    at: %s\n", e.Path)
		}
	}
}
