package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

var travelOutline = segmentResponse{Sections: []segmentEntry{
	{Header: "1. Scope", SectionNumber: "1", Level: 1},
	{Header: "2. Approvals", SectionNumber: "2", Level: 1},
	{Header: "2.1 Thresholds", SectionNumber: "2.1", Level: 2, ParentSection: "2"},
}}

// travelReply answers every section with the same role and one rule that
// needs its approval.
func travelReply(_ int, prompt string) (string, error) {
	p := sectionPrefix(prompt)
	return fmt.Sprintf(`{
  "entities": [
    {"id": "%[1]s_role_ed", "type": "Role", "name": "Executive Director", "description": "", "source_text": "Executive Director"},
    {"id": "rule_%[1]s", "type": "PolicyRule", "name": "Rule %[1]s", "description": "A rule.", "source_text": "This policy applies to all employees."}
  ],
  "relationships": [
    {"source_id": "rule_%[1]s", "target_id": "%[1]s_role_ed", "type": "requires_approval_from", "description": ""}
  ]
}`, p), nil
}

func TestBuild(t *testing.T) {
	oracle := &stubOracle{outline: travelOutline, complete: travelReply}
	g := testClient(t, NewGraphClientParams{})

	graph, err := g.Build(context.Background(), oracle, "travel.md", travelPolicy)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if graph.ID == "" || graph.CreatedAt.IsZero() {
		t.Errorf("Build() did not set run identity")
	}
	if graph.Version != "1" {
		t.Errorf("Version = %q, want 1", graph.Version)
	}

	meta := graph.Metadata
	if meta.SectionCount != 3 || len(graph.Sections) != 3 {
		t.Errorf("sections = %d/%d, want 3", meta.SectionCount, len(graph.Sections))
	}
	if meta.DocumentName != "travel.md" || meta.SegmentationFallback {
		t.Errorf("metadata = %+v", meta)
	}
	// three roles fold into one, the rules stay apart
	if len(graph.Entities) != 4 || meta.MergedEntities != 2 {
		t.Errorf("entities = %d (merged %d), want 4 (merged 2)", len(graph.Entities), meta.MergedEntities)
	}
	if len(graph.Relationships) != 3 {
		t.Errorf("relationships = %d, want 3", len(graph.Relationships))
	}
	for _, stage := range []string{"segment", "extract", "merge"} {
		if _, ok := meta.StageTimings[stage]; !ok {
			t.Errorf("StageTimings missing %q", stage)
		}
	}
	if oracle.calls() != 3 {
		t.Errorf("extraction calls = %d, want 3", oracle.calls())
	}
}

func TestBuildErrors(t *testing.T) {
	g := testClient(t, NewGraphClientParams{})

	if _, err := g.Build(context.Background(), &stubOracle{}, "empty", ""); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Build(empty) error = %v, want ErrEmptyDocument", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Build(ctx, &stubOracle{outline: travelOutline}, "travel", travelPolicy); !errors.Is(err, context.Canceled) {
		t.Errorf("Build(canceled) error = %v, want context.Canceled", err)
	}
}
