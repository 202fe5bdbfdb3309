package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sysbind/internal/binding"
	"github.com/kalambet/sysbind/internal/bootup"
	"github.com/kalambet/sysbind/internal/storage"
)

// NewMCPServer exposes the same bindings, registry and restorer as the HTTP
// API as MCP tools. The bearer token is not used: stdio clients are the
// process that launched the server.
func NewMCPServer(deps AppDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sysbind",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sysbind keeps settings in sync with kernel control files and replays them at boot."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_bindings",
			mcp.WithDescription("List every binding with its kind, category, control file and current value."),
		),
		mcpListBindings(deps),
	)

	s.AddTool(
		mcp.NewTool("get_binding",
			mcp.WithDescription("Re-read one binding's control file and return its state."),
			mcp.WithString("key", mcp.Description("Binding key, e.g. led_x"), mcp.Required()),
		),
		mcpGetBinding(deps),
	)

	s.AddTool(
		mcp.NewTool("set_binding",
			mcp.WithDescription("Write a value through a binding. Toggles take true/false, 1/0 or on/off; lists take one of their options."),
			mcp.WithString("key", mcp.Description("Binding key"), mcp.Required()),
			mcp.WithString("value", mcp.Description("Value to write"), mcp.Required()),
		),
		mcpSetBinding(deps),
	)

	s.AddTool(
		mcp.NewTool("list_bootup",
			mcp.WithDescription("List values recorded for replay at boot, in replay order."),
			mcp.WithString("category", mcp.Description("Only entries in this category (default: all)")),
		),
		mcpListBootup(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_bootup",
			mcp.WithDescription("Stop replaying one recorded value at boot."),
			mcp.WithString("category", mcp.Description("Entry category"), mcp.Required()),
			mcp.WithString("key", mcp.Description("Entry key, e.g. cpu_gov0"), mcp.Required()),
		),
		mcpDeleteBootup(deps),
	)

	s.AddTool(
		mcp.NewTool("restore_bootup",
			mcp.WithDescription("Replay recorded values into their control files now."),
			mcp.WithString("category", mcp.Description("Only replay this category (default: all)")),
		),
		mcpRestore(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"sysbind://bindings",
			"Bindings",
			mcp.WithResourceDescription("Snapshot of every binding as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceBindings(deps),
	)

	return s
}

func snapshots(deps AppDeps) []binding.Info {
	all := deps.Screen.Bindings()
	infos := make([]binding.Info, 0, len(all))
	for _, b := range all {
		infos = append(infos, b.Snapshot())
	}
	return infos
}

func mcpListBindings(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(snapshots(deps)), nil
	}
}

func mcpGetBinding(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		b, ok := deps.Screen.Get(key)
		if !ok {
			return mcpError(fmt.Sprintf("binding %q not found", key)), nil
		}
		b.InitValue(ctx)
		return mcpJSON(b.Snapshot()), nil
	}
}

func mcpSetBinding(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return mcpError("value is required"), nil
		}

		b, ok := deps.Screen.Get(key)
		if !ok {
			return mcpError(fmt.Sprintf("binding %q not found", key)), nil
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal value: %v", err)), nil
		}
		v, err := parseValue(b, raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if !b.IsSupported() {
			return mcpError(fmt.Sprintf("binding %q has no control file on this device", key)), nil
		}

		report := b.Apply(ctx, v)
		result := mcpJSON(SetResponse{Key: key, Value: v.String(), WriteReport: report})
		if report.Failed() > 0 {
			result.IsError = true
		}
		return result, nil
	}
}

func mcpListBootup(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries, err := deps.Registry.All(ctx, req.GetString("category", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list bootup entries: %v", err)), nil
		}
		if entries == nil {
			entries = []bootup.Entry{}
		}
		return mcpJSON(entries), nil
	}
}

func mcpDeleteBootup(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, err := req.RequireString("category")
		if err != nil {
			return mcpError("category is required"), nil
		}
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		err = deps.Registry.Delete(ctx, category, key)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("bootup entry %s/%s not found", category, key)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to delete bootup entry: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted bootup entry %s/%s", category, key)), nil
	}
}

func mcpRestore(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := deps.Restorer.Run(ctx, req.GetString("category", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("restore failed: %v", err)), nil
		}
		result := mcpJSON(report)
		if len(report.Failed) > 0 {
			result.IsError = true
		}
		return result, nil
	}
}

func mcpResourceBindings(deps AppDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(snapshots(deps))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal bindings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
