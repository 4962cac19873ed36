package graph

import (
	"strings"
	"testing"
)

func TestDefaultVocabulary(t *testing.T) {
	v := DefaultVocabulary()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Role", "Role", true},
		{"role", "Role", true},
		{" POLICY ", "Policy", true},
		{"policyrule", "PolicyRule", true},
		{"Spaceship", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := v.CanonicalEntityType(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CanonicalEntityType(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCheckRelationship(t *testing.T) {
	v := DefaultVocabulary()

	tests := []struct {
		name     string
		rel      string
		src, tgt string
		wantWarn bool
	}{
		{"unconstrained", "requires", "Policy", "Training", false},
		{"allowed target", "requires_approval_from", "Requirement", "Role", false},
		{"wrong target", "requires_approval_from", "Requirement", "Threshold", true},
		{"wrong source", "reports_to", "Policy", "Role", true},
		{"case insensitive", "REPORTS_TO", "Role", "Role", false},
		{"unknown type", "teleports_to", "Role", "Role", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warn := v.CheckRelationship(tt.rel, tt.src, tt.tgt)
			if (warn != "") != tt.wantWarn {
				t.Errorf("CheckRelationship(%q, %q, %q) = %q, want warning %v", tt.rel, tt.src, tt.tgt, warn, tt.wantWarn)
			}
		})
	}
}

func TestParseVocabulary(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{
			name: "minimal",
			data: "entity_types:\n  - name: Rule\n    description: a rule\nrelationship_types:\n  - name: cites\n    description: x\n",
		},
		{name: "no entity types", data: "relationship_types: []\n", wantErr: true},
		{name: "duplicate", data: "entity_types:\n  - name: Rule\n  - name: rule\n", wantErr: true},
		{name: "invalid yaml", data: "entity_types: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVocabulary([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseVocabulary() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVocabularyPrompts(t *testing.T) {
	v := DefaultVocabulary()
	if !strings.Contains(v.EntityTypesPrompt(), "- **Role**:") {
		t.Errorf("EntityTypesPrompt() does not list Role")
	}
	if !strings.Contains(v.RelationshipTypesPrompt(), "(ExpenseCategory -> PaymentMethod)") {
		t.Errorf("RelationshipTypesPrompt() does not render endpoint types")
	}
}
