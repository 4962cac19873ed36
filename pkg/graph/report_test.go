package graph

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/policygraph/pkg/common"
)

func reportGraph() common.OntologyGraph {
	anchor := func(tier common.VerificationTier) []common.SourceAnchor {
		return []common.SourceAnchor{{Text: "q", SectionID: "s1", Tier: tier}}
	}
	return common.OntologyGraph{
		Entities: []common.Entity{
			{ID: "s1_policy", Type: "Policy", Anchors: anchor(common.TierExact)},
			{ID: "s1_role_ed", Type: "Role", Anchors: anchor(common.TierFuzzy)},
			{ID: "s2_role_cfo", Type: "Role", Anchors: anchor(common.TierExact)},
			{ID: "s3_training", Type: "Training", Anchors: anchor(common.TierUnverified)},
		},
		Relationships: []common.Relationship{
			{SourceID: "s1_policy", TargetID: "s1_role_ed", Type: "requires_approval_from"},
			{SourceID: "s1_policy", TargetID: "s2_role_cfo", Type: "requires_approval_from"},
		},
		Metadata: common.RunMetadata{
			DroppedRelationships: 2,
			DegradedSections:     []common.SectionDegradation{{SectionID: "s4", Kind: common.DegradedParse}},
		},
	}
}

func TestValidate(t *testing.T) {
	r := Validate(reportGraph())

	if r.Entities != 4 || r.Relationships != 2 {
		t.Errorf("Validate() counts = %d/%d, want 4/2", r.Entities, r.Relationships)
	}
	if want := []string{"s3_training"}; !reflect.DeepEqual(r.Orphans, want) {
		t.Errorf("Orphans = %v, want %v", r.Orphans, want)
	}
	wantComponents := [][]string{{"s1_policy", "s1_role_ed", "s2_role_cfo"}, {"s3_training"}}
	if !reflect.DeepEqual(r.Components, wantComponents) {
		t.Errorf("Components = %v, want %v", r.Components, wantComponents)
	}
	if r.MostConnected != "s1_policy" || r.MaxDegree != 2 {
		t.Errorf("MostConnected = %s (%d), want s1_policy (2)", r.MostConnected, r.MaxDegree)
	}
	wantTypes := []common.TypeCount{{Type: "Role", Count: 2}, {Type: "Policy", Count: 1}, {Type: "Training", Count: 1}}
	if !reflect.DeepEqual(r.EntityTypes, wantTypes) {
		t.Errorf("EntityTypes = %v, want %v", r.EntityTypes, wantTypes)
	}
	if want := (common.VerificationCounts{Exact: 2, Fuzzy: 1, Unverified: 1}); r.Verification != want {
		t.Errorf("Verification = %+v, want %+v", r.Verification, want)
	}
	if got, want := r.Density, 2.0/12.0; got != want {
		t.Errorf("Density = %v, want %v", got, want)
	}
	if len(r.Issues) != 5 {
		t.Errorf("Issues = %v, want 5 entries", r.Issues)
	}
}

func TestValidateEmptyGraph(t *testing.T) {
	r := Validate(common.OntologyGraph{})
	if want := []string{"graph is empty"}; !reflect.DeepEqual(r.Issues, want) {
		t.Errorf("Issues = %v, want %v", r.Issues, want)
	}
}

func TestReportWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Validate(reportGraph()).Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Entities: 4",
		"Most connected: s1_policy (2 connections)",
		"  Role: 2",
		"Anchors: exact 2, normalized 0, fuzzy 1, unverified 1",
		"  - 1 orphan entities without relationships",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Write() output missing %q:\n%s", want, out)
		}
	}
}
