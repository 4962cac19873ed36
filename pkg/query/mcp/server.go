// Package mcp serves the graph tools over the Model Context Protocol so that
// external assistants can query a policy graph directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	"github.com/OFFIS-RIT/policygraph/pkg/query"
	"github.com/OFFIS-RIT/policygraph/pkg/store"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "policygraph"
	serverVersion = "1.0.0"
)

// NewServer registers the graph tools for s. When agent is not nil an ask
// tool runs the full reasoning loop as well.
func NewServer(s *store.Store, agent *query.Agent) *server.MCPServer {
	srv := server.NewMCPServer(serverName, serverVersion, server.WithLogging())

	for _, t := range query.Tools(s, nil) {
		srv.AddTool(mcpgo.NewTool(t.Name, toolOptions(t)...), toolHandler(t))
	}
	if agent != nil {
		ask := mcpgo.NewTool("ask",
			mcpgo.WithDescription("Answer a question about the policy by letting the reasoning agent query the graph."),
			mcpgo.WithString("question", mcpgo.Required(), mcpgo.Description("The question to answer.")),
		)
		srv.AddTool(ask, askHandler(s, agent))
	}
	return srv
}

// ServeStdio blocks serving srv on stdin and stdout.
func ServeStdio(srv *server.MCPServer) error {
	logger.Info("[MCP] Serving on stdio")
	return server.ServeStdio(srv)
}

// toolOptions translates the JSON schema of t into builder options.
func toolOptions(t ai.Tool) []mcpgo.ToolOption {
	opts := []mcpgo.ToolOption{mcpgo.WithDescription(t.Description)}

	props, _ := t.Parameters["properties"].(map[string]any)
	required, _ := t.Parameters["required"].([]string)

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		desc, _ := prop["description"].(string)
		popts := []mcpgo.PropertyOption{mcpgo.Description(desc)}
		if slices.Contains(required, name) {
			popts = append(popts, mcpgo.Required())
		}
		switch prop["type"] {
		case "integer", "number":
			opts = append(opts, mcpgo.WithNumber(name, popts...))
		default:
			opts = append(opts, mcpgo.WithString(name, popts...))
		}
	}
	return opts
}

func toolHandler(t ai.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("Error: %s", err)), nil
		}
		logger.Debug("[MCP] Tool call", "tool", t.Name, "args", string(args))

		out, err := t.Handler(ctx, string(args))
		if err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("Error: %s", err)), nil
		}
		return mcpgo.NewToolResultText(out), nil
	}
}

func askHandler(s *store.Store, agent *query.Agent) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		question, _ := request.Params.Arguments["question"].(string)
		resp, err := agent.Ask(ctx, question, s)
		if err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("Error: %s", err)), nil
		}
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcpgo.NewToolResultText(string(data)), nil
	}
}
