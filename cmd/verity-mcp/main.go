// Package main provides the verity-mcp binary, an MCP stdio server for AI agents.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/verity/pkg/logging"
	vmcp "github.com/ormasoftchile/verity/pkg/mcp"
	"github.com/ormasoftchile/verity/pkg/project"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "verity-mcp",
	Short:         "Serve verity tools over the Model Context Protocol on stdio",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		// stdout carries the protocol; logs go to stderr.
		logger, err := logging.New(level, "text", os.Stderr)
		if err != nil {
			return err
		}
		h := &vmcp.Handlers{Dir: project.WorkingDir(), ConfigPath: configPath, Logger: logger}
		return server.ServeStdio(vmcp.NewServer(version, h))
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to verity.yaml (default: discovered from the working directory)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
