// Package main provides the verity CLI.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/logging"
	"github.com/ormasoftchile/verity/pkg/project"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// errRunFailed makes the process exit 1 without printing an error: the
// run output already said what failed.
var errRunFailed = errors.New("run failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	dir        string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "verity",
		Short: "Verification scenario engine",
		Long: "verity runs declarative verification scenarios in dependency order,\n" +
			"checkpointing every step so an interrupted run can be resumed.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "", "Path to verity.yaml (default: discovered upward from the working directory)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the manifest)")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "Log format: text or json (overrides the manifest)")
	root.PersistentFlags().StringVarP(&o.dir, "dir", "C", "", "Run as if started in this directory")

	root.AddCommand(
		newListCmd(o),
		newValidateCmd(o),
		newOrderCmd(o),
		newRunCmd(o),
		newSummaryCmd(o),
		newCheckpointCmd(o),
		newReportCmd(o),
		newSchemaCmd(),
	)
	return root
}

// project loads the manifest and scenario store, with a logger on the
// command's stderr configured from the manifest and the flags.
func (o *rootOptions) project(cmd *cobra.Command) (*project.Project, error) {
	dir := o.dir
	if dir == "" {
		dir = project.WorkingDir()
	}

	// Scenario definition warnings are logged while the store opens, so
	// the level is resolved before the manifest is read.
	boot, err := o.logger(cmd, "warn", "text")
	if err != nil {
		return nil, err
	}
	p, err := project.Load(dir, o.configPath, boot)
	if err != nil {
		return nil, err
	}
	logger, err := o.logger(cmd, p.Config.Log.Level, p.Config.Log.Format)
	if err != nil {
		return nil, err
	}
	p.Logger = logger
	return p, nil
}

func (o *rootOptions) logger(cmd *cobra.Command, level, format string) (*slog.Logger, error) {
	if o.logLevel != "" {
		level = o.logLevel
	}
	if o.logFormat != "" {
		format = o.logFormat
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logging.New(lvl, format, cmd.ErrOrStderr())
}
