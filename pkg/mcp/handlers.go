package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/verity/pkg/diagram"
	"github.com/ormasoftchile/verity/pkg/project"
	"github.com/ormasoftchile/verity/pkg/report"
	"github.com/ormasoftchile/verity/pkg/runtime"
	"github.com/ormasoftchile/verity/pkg/schema"
)

// Handlers serves the verity tools for one project. The project is
// reloaded on every call so edits to scenario files are picked up.
type Handlers struct {
	Dir        string
	ConfigPath string
	Logger     *slog.Logger
}

func (h *Handlers) open() (*project.Project, error) {
	return project.Load(h.Dir, h.ConfigPath, h.Logger)
}

// HandleList implements verity/list.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := h.open()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	type entry struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Dependencies []string `json:"dependencies,omitempty"`
		Gate         bool     `json:"gate,omitempty"`
		Steps        int      `json:"steps"`
		Estimated    string   `json:"estimated_duration,omitempty"`
	}
	resp := struct {
		Scenarios []entry  `json:"scenarios"`
		Broken    []string `json:"broken,omitempty"`
	}{Scenarios: []entry{}}
	for _, sc := range p.Store.All() {
		resp.Scenarios = append(resp.Scenarios, entry{
			ID: sc.ID, Name: sc.Name, Dependencies: sc.Dependencies, Gate: sc.Gate,
			Steps: len(sc.Steps), Estimated: sc.EstimatedDuration,
		})
	}
	for _, derr := range p.Store.DefinitionErrors() {
		resp.Broken = append(resp.Broken, derr.Error())
	}
	return jsonResult(resp, false), nil
}

// HandleOrder implements verity/order.
func (h *Handlers) HandleOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	p, err := h.open()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	r := runtime.NewRunner(p.Store.All(), nil, nil)
	plan, err := r.Plan(runtime.RunOptions{Requested: splitIDs(args["ids"])})
	if err != nil {
		return errorResult(err.Error()), nil
	}

	resp := map[string]any{"order": plan.Order}
	if len(plan.Warnings) > 0 {
		resp["warnings"] = plan.Warnings
	}
	if raw, _ := args["diagram"].(string); raw != "" {
		format, err := diagram.ParseFormat(raw)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		out, err := diagram.Graph(p.Store.All(), plan.Order, format)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		resp["diagram"] = out
	}
	return jsonResult(resp, false), nil
}

// HandleValidate implements verity/validate.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if path, _ := args["path"].(string); path != "" {
		sc, errs := schema.ValidateFile(path)
		if schema.HasErrors(errs) {
			return errorResult(formatErrors(errs)), nil
		}
		return textResult(fmt.Sprintf("✓ %s is valid (%d steps)", sc.ID, len(sc.Steps))), nil
	}

	p, err := h.open()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	derrs := p.Store.DefinitionErrors()
	if len(derrs) > 0 {
		msgs := make([]string, 0, len(derrs))
		for _, d := range derrs {
			msgs = append(msgs, d.Error())
		}
		return errorResult(strings.Join(msgs, "\n")), nil
	}
	return textResult(fmt.Sprintf("✓ %d scenarios are valid", len(p.Store.ListScenarios()))), nil
}

// HandleSchema implements verity/schema.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleCheckpoint implements verity/checkpoint.
func (h *Handlers) HandleCheckpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := h.open()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	cp, err := p.Checkpoint()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if path, _ := req.GetArguments()["path"].(string); path != "" {
		v, err := cp.Get(path)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(v, false), nil
	}
	return jsonResult(cp, false), nil
}

// HandleRun implements verity/run. Without execute or replay it is a dry
// run that reports the plan and executes nothing.
func (h *Handlers) HandleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	p, err := h.open()
	if err != nil {
		return errorResult(err.Error()), nil
	}

	rc := project.RunConfig{
		RunOptions: runtime.RunOptions{
			Requested: splitIDs(args["ids"]),
			NoDeps:    boolArg(args, "no_deps"),
		},
		Resume: boolArg(args, "resume"),
		Fresh:  boolArg(args, "fresh"),
	}
	rc.Replay, _ = args["replay"].(string)

	if !boolArg(args, "execute") && rc.Replay == "" {
		plan, err := runtime.NewRunner(p.Store.All(), nil, nil).Plan(rc.RunOptions)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(map[string]any{"dry_run": true, "order": plan.Order, "warnings": plan.Warnings}, false), nil
	}

	var out bytes.Buffer
	rc.Out = &out
	state, cp, err := p.Run(ctx, rc)
	if err != nil {
		msg := err.Error()
		if out.Len() > 0 {
			msg += "\n\n" + out.String()
		}
		return errorResult(msg), nil
	}

	resp := map[string]any{
		"summary":  report.Summarize(cp),
		"outcomes": state.Outcomes,
		"output":   out.String(),
	}
	if state.GateFailed != "" {
		resp["gate_failed"] = state.GateFailed
	}
	return jsonResult(resp, !state.Success()), nil
}

func splitIDs(v any) []string {
	s, _ := v.(string)
	var ids []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			ids = append(ids, f)
		}
	}
	return ids
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, e.Error())
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
