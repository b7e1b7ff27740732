package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/atomicfile"
	"github.com/ormasoftchile/verity/pkg/schema"
)

func newSchemaCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of scenario definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.GenerateJSONSchema()
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := atomicfile.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the schema to this file instead of stdout")
	return cmd
}
