package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckpointCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear the run checkpoint",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the checkpoint as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCheckpointValue(cmd, o, "")
		},
	}

	get := &cobra.Command{
		Use:   "get <path>",
		Short: "Print one value by dotted path, e.g. progress.remaining",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCheckpointValue(cmd, o, args[0])
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the checkpoint so the next run starts fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.project(cmd)
			if err != nil {
				return err
			}
			if err := p.ClearCheckpoint(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ cleared %s\n", p.Config.CheckpointPath())
			return nil
		},
	}

	cmd.AddCommand(show, get, clearCmd)
	return cmd
}

// printCheckpointValue prints strings bare and everything else as JSON.
func printCheckpointValue(cmd *cobra.Command, o *rootOptions, path string) error {
	p, err := o.project(cmd)
	if err != nil {
		return err
	}
	cp, err := p.Checkpoint()
	if err != nil {
		return err
	}
	v, err := cp.Get(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(out, s)
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
