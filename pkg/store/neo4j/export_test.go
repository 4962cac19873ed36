package neo4j

import (
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/policygraph/pkg/common"
)

func TestEntityRows(t *testing.T) {
	var attrs common.Attributes
	attrs.Set(common.AttrAmount, 500000)
	attrs.Set("approvers", []any{"CFO", "CEO"})

	rows := entityRows([]common.Entity{{
		ID:         "s2_threshold",
		Type:       "Threshold",
		Name:       "Approval Threshold",
		Attributes: attrs,
		Anchors: []common.SourceAnchor{
			{Text: "$500,000", SectionID: "s2"},
			{Text: "five hundred thousand", SectionID: "s6"},
		},
	}})

	props := rows[0]["props"].(map[string]interface{})
	if got := props["attr_amount"]; got != 500000.0 {
		t.Errorf("attr_amount = %v, want 500000", got)
	}
	if got := props["attr_approvers"]; got != `["CFO","CEO"]` {
		t.Errorf("attr_approvers = %v, want JSON text", got)
	}
	if got := props["merged_from"]; !reflect.DeepEqual(got, []string{}) {
		t.Errorf("merged_from = %#v, want empty list", got)
	}
	if got := rows[0]["sections"]; !reflect.DeepEqual(got, []string{"s2", "s6"}) {
		t.Errorf("sections = %v, want [s2 s6]", got)
	}
}

func TestPropertyValue(t *testing.T) {
	tests := []struct {
		in   any
		want interface{}
	}{
		{"x", "x"},
		{true, true},
		{2.5, 2.5},
		{3, int64(3)},
		{map[string]any{"a": 1.0}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := propertyValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("propertyValue(%v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
