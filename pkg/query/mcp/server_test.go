package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/query"
	"github.com/OFFIS-RIT/policygraph/pkg/store"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func testTool(t *testing.T, name string) ai.Tool {
	t.Helper()
	s := store.New(common.OntologyGraph{
		Version: common.GraphVersion,
		Entities: []common.Entity{
			{ID: "s2_role_ed", Type: "Role", Name: "Executive Director"},
		},
	})
	for _, tl := range query.Tools(s, nil) {
		if tl.Name == name {
			return tl
		}
	}
	t.Fatalf("tool %s not found", name)
	return ai.Tool{}
}

func text(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("result has %d content blocks, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(mcpgo.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestToolHandler(t *testing.T) {
	tests := []struct {
		name      string
		tool      string
		args      map[string]interface{}
		wantError bool
		want      string
	}{
		{"entity", "get_entity", map[string]interface{}{"entity_id": "s2_role_ed"}, false, "Name: Executive Director"},
		{"unknown entity", "get_entity", map[string]interface{}{"entity_id": "ghost"}, true, "Error: entity not found"},
		{"missing argument", "search_entities", map[string]interface{}{}, true, "Error: invalid arguments"},
		{"no arguments", "get_graph_summary", nil, false, "Total entities: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req mcpgo.CallToolRequest
			req.Params.Name = tt.tool
			req.Params.Arguments = tt.args

			res, err := toolHandler(testTool(t, tt.tool))(context.Background(), req)
			if err != nil {
				t.Fatalf("handler error = %v", err)
			}
			if res.IsError != tt.wantError {
				t.Errorf("IsError = %v, want %v", res.IsError, tt.wantError)
			}
			if got := text(t, res); !strings.Contains(got, tt.want) {
				t.Errorf("result = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestToolOptionsCoversSchema(t *testing.T) {
	tl := testTool(t, "find_paths")
	tool := mcpgo.NewTool(tl.Name, toolOptions(tl)...)
	for _, p := range []string{"source_id", "target_id", "max_depth"} {
		if _, ok := tool.InputSchema.Properties[p]; !ok {
			t.Errorf("schema lacks property %s", p)
		}
	}
}
