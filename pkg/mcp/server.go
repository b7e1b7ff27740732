// Package mcp exposes verity to AI agents as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the verity tools registered
// against the project h points at.
func NewServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"verity",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("verity/list",
			mcp.WithDescription("List the scenarios of the verity project, with dependencies and gate flags"),
		),
		h.HandleList,
	)

	s.AddTool(
		mcp.NewTool("verity/order",
			mcp.WithDescription("Resolve the execution order for scenarios and their dependencies"),
			mcp.WithString("ids", mcp.Description("Comma-separated scenario IDs (default: all)")),
			mcp.WithString("diagram", mcp.Description("Also render the graph: mermaid or ascii")),
		),
		h.HandleOrder,
	)

	s.AddTool(
		mcp.NewTool("verity/validate",
			mcp.WithDescription("Validate a scenario YAML file, or every scenario of the project when no path is given"),
			mcp.WithString("path", mcp.Description("Path to a scenario YAML file")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("verity/schema",
			mcp.WithDescription("Export the JSON Schema of scenario definitions"),
		),
		h.HandleSchema,
	)

	s.AddTool(
		mcp.NewTool("verity/checkpoint",
			mcp.WithDescription("Show the run checkpoint, or one value of it by dotted path"),
			mcp.WithString("path", mcp.Description("Dotted path into the checkpoint, e.g. progress.completed")),
		),
		h.HandleCheckpoint,
	)

	s.AddTool(
		mcp.NewTool("verity/run",
			mcp.WithDescription("Run scenarios. Defaults to a dry run that only reports the plan; set execute or replay to run commands"),
			mcp.WithString("ids", mcp.Description("Comma-separated scenario IDs (default: all)")),
			mcp.WithBoolean("execute", mcp.Description("Execute commands for real")),
			mcp.WithString("replay", mcp.Description("Serve commands from this recording file instead of executing them")),
			mcp.WithBoolean("resume", mcp.Description("Continue the persisted checkpoint")),
			mcp.WithBoolean("fresh", mcp.Description("Discard the persisted checkpoint first")),
			mcp.WithBoolean("no_deps", mcp.Description("Run exactly the requested IDs without their dependencies")),
		),
		h.HandleRun,
	)

	return s
}
