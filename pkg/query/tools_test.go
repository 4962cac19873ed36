package query

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/store"
)

func testStore() *store.Store {
	offset := 13
	anchor := func(text, section string) []common.SourceAnchor {
		return []common.SourceAnchor{{Text: text, SectionID: section, CharOffset: &offset, Tier: common.TierExact, Similarity: 1}}
	}
	var thresholdAttrs common.Attributes
	thresholdAttrs.Set(common.AttrAmount, 500000)
	thresholdAttrs.Set(common.AttrCurrency, "USD")

	return store.New(common.OntologyGraph{
		Version:   common.GraphVersion,
		ID:        "g1",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Sections: []common.DocumentSection{
			{ID: "s1", Header: "1. Scope", Number: "1", Level: 1, CharEnd: 40},
			{ID: "s2", Header: "2. Approvals", Number: "2", Level: 1, CharStart: 40, CharEnd: 90},
		},
		Entities: []common.Entity{
			{ID: "s1_policy", Type: "Policy", Name: "Travel Policy", Description: "Rules for travel.", Anchors: anchor("travel", "s1")},
			{ID: "s2_role_ed", Type: "Role", Name: "Executive Director", Description: "Approves trips.", Anchors: anchor("Executive Director", "s2"), MergedFrom: []string{"s2_role_ed", "s5_role_exec_dir"}},
			{ID: "s2_threshold", Type: "Threshold", Name: "Approval Threshold", Description: "Spend limit.", Attributes: thresholdAttrs, Anchors: anchor("$500,000", "s2")},
			{ID: "s3_role_cfo", Type: "Role", Name: "Chief Financial Officer", Description: "Owns budgets.", Anchors: anchor("CFO", "s2")},
			{ID: "s4_training", Type: "Training", Name: "Security Training", Description: "Annual course.", Anchors: anchor("training", "s2")},
		},
		Relationships: []common.Relationship{
			{SourceID: "s1_policy", TargetID: "s2_role_ed", Type: "requires_approval_from", Description: "sign off", SectionID: "s2"},
			{SourceID: "s1_policy", TargetID: "s2_threshold", Type: "constrained_by", Description: "limit", SectionID: "s2"},
			{SourceID: "s2_role_ed", TargetID: "s3_role_cfo", Type: "reports_to", Description: "line", SectionID: "s2"},
			{SourceID: "s3_role_cfo", TargetID: "s2_threshold", Type: "responsible_for", Description: "owner", SectionID: "s2"},
		},
	})
}

func tool(t *testing.T, tools []ai.Tool, name string) ai.Tool {
	t.Helper()
	for _, tl := range tools {
		if tl.Name == name {
			return tl
		}
	}
	t.Fatalf("tool %s not registered", name)
	return ai.Tool{}
}

func TestToolNames(t *testing.T) {
	var got []string
	for _, tl := range Tools(testStore(), nil) {
		got = append(got, tl.Name)
	}
	want := []string{"list_entity_types", "find_entities", "search_entities", "get_entity", "get_neighbors", "find_paths", "get_graph_summary"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tools() = %v, want %v", got, want)
	}
}

func TestToolOutputs(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    string
		want    string
		wantIDs []string
	}{
		{
			name: "list types",
			tool: "list_entity_types",
			want: "- Role: 2 entities\n- Policy: 1 entities\n- Threshold: 1 entities\n- Training: 1 entities",
		},
		{
			name:    "find by type",
			tool:    "find_entities",
			args:    `{"entity_type": "role"}`,
			want:    "- s2_role_ed: Executive Director -- Approves trips.\n- s3_role_cfo: Chief Financial Officer -- Owns budgets.",
			wantIDs: []string{"s2_role_ed", "s3_role_cfo"},
		},
		{
			name:    "find by attribute value",
			tool:    "find_entities",
			args:    `{"entity_type": "Threshold", "attribute": "currency", "value": "usd"}`,
			want:    "- s2_threshold: Approval Threshold -- Spend limit.",
			wantIDs: []string{"s2_threshold"},
		},
		{
			name: "find nothing",
			tool: "find_entities",
			args: `{"entity_type": "Vendor"}`,
			want: "No entities of type 'Vendor' found.",
		},
		{
			name:    "search",
			tool:    "search_entities",
			args:    `{"keyword": "DIRECTOR"}`,
			want:    "- s2_role_ed [Role]: Executive Director -- Approves trips.",
			wantIDs: []string{"s2_role_ed"},
		},
		{
			name: "search nothing",
			tool: "search_entities",
			args: `{"keyword": "visa"}`,
			want: "No entities matching 'visa' found.",
		},
		{
			name: "isolated neighbors",
			tool: "get_neighbors",
			args: `{"entity_id": "s4_training"}`,
			want: "Neighborhood of 's4_training' (depth=1): 1 entities\n\n" +
				"Entities:\n  - s4_training [Training]: Security Training (start)\n\nRelationships:",
			wantIDs: []string{"s4_training"},
		},
		{
			name: "paths",
			tool: "find_paths",
			args: `{"source_id": "s2_role_ed", "target_id": "s2_threshold"}`,
			want: "Found 2 path(s):\n\n" +
				"Path 1:\n  Executive Director <--[requires_approval_from]-- Travel Policy\n  Travel Policy --[constrained_by]--> Approval Threshold\n\n" +
				"Path 2:\n  Executive Director --[reports_to]--> Chief Financial Officer\n  Chief Financial Officer --[responsible_for]--> Approval Threshold",
			wantIDs: []string{"s2_role_ed", "s2_threshold", "s1_policy", "s3_role_cfo"},
		},
		{
			name:    "no path",
			tool:    "find_paths",
			args:    `{"source_id": "s1_policy", "target_id": "s4_training"}`,
			want:    "No path found between 's1_policy' and 's4_training'.",
			wantIDs: []string{"s1_policy", "s4_training"},
		},
		{
			name: "summary",
			tool: "get_graph_summary",
			want: "Total entities: 5\nTotal relationships: 4\n\n" +
				"Entity types:\n  Role: 2\n  Policy: 1\n  Threshold: 1\n  Training: 1\n\n" +
				"Relationship types:\n  constrained_by: 1\n  reports_to: 1\n  requires_approval_from: 1\n  responsible_for: 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace := NewQueryTrace()
			tl := tool(t, Tools(testStore(), trace), tt.tool)
			got, err := tl.Handler(context.Background(), tt.args)
			if err != nil {
				t.Fatalf("%s() error = %v", tt.tool, err)
			}
			if got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.tool, got, tt.want)
			}
			wantIDs := tt.wantIDs
			if wantIDs == nil {
				wantIDs = []string{}
			}
			if ids := trace.Snapshot().QueriedEntityIDs; !reflect.DeepEqual(ids, wantIDs) {
				t.Errorf("%s() recorded %v, want %v", tt.tool, ids, wantIDs)
			}
		})
	}
}

func TestGetEntity(t *testing.T) {
	trace := NewQueryTrace()
	tl := tool(t, Tools(testStore(), trace), "get_entity")
	got, err := tl.Handler(context.Background(), `{"entity_id": "s2_role_ed"}`)
	if err != nil {
		t.Fatalf("get_entity() error = %v", err)
	}
	for _, want := range []string{
		"ID: s2_role_ed\nType: Role\nName: Executive Director\nDescription: Approves trips.\n",
		"Sources:\n  [exact @13, s2 2. Approvals] \"Executive Director\"\n",
		"Merged from: s2_role_ed, s5_role_exec_dir\n",
		"Outgoing relationships:\n  --[reports_to]--> Chief Financial Officer (s3_role_cfo): line\n",
		"Incoming relationships:\n  <--[requires_approval_from]-- Travel Policy (s1_policy): sign off",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("get_entity() = %q, missing %q", got, want)
		}
	}
	want := []string{"s2_role_ed", "s3_role_cfo", "s1_policy"}
	if ids := trace.Snapshot().QueriedEntityIDs; !reflect.DeepEqual(ids, want) {
		t.Errorf("get_entity() recorded %v, want %v", ids, want)
	}

	got, err = tool(t, Tools(testStore(), nil), "get_entity").Handler(context.Background(), `{"entity_id": "s2_threshold"}`)
	if err != nil {
		t.Fatalf("get_entity() error = %v", err)
	}
	if !strings.Contains(got, "Attributes:\n  amount: 500000\n  currency: USD\n") {
		t.Errorf("get_entity() = %q, want attributes", got)
	}
}

func TestToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    string
		wantErr error
	}{
		{"malformed json", "get_entity", `{"entity_id": `, ErrInvalidArguments},
		{"not an object", "search_entities", `["x"]`, ErrInvalidArguments},
		{"missing argument", "find_entities", `{}`, ErrInvalidArguments},
		{"wrong type", "get_entity", `{"entity_id": 7}`, ErrInvalidArguments},
		{"unknown entity", "get_entity", `{"entity_id": "ghost"}`, store.ErrEntityNotFound},
		{"unknown neighbor start", "get_neighbors", `{"entity_id": "ghost"}`, store.ErrEntityNotFound},
		{"unknown path target", "find_paths", `{"source_id": "s1_policy", "target_id": "ghost"}`, store.ErrEntityNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool(t, Tools(testStore(), nil), tt.tool).Handler(context.Background(), tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s(%s) error = %v, want %v", tt.tool, tt.args, err, tt.wantErr)
			}
		})
	}
}
