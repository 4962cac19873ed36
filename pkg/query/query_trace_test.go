package query

import (
	"errors"
	"reflect"
	"testing"
)

func TestQueryTraceKeepsFirstTouchOrder(t *testing.T) {
	tr := NewQueryTrace()
	RecordQueriedEntityIDs(tr, "b", "a")
	RecordQueriedEntityIDs(tr, "a", "", "c", "b")
	RecordQueriedEntityTypes(tr, "Role", "Policy", "Role")
	RecordToolCall(tr, "get_entity", `{}`, 3, errors.New("boom"))

	got := tr.Snapshot()
	want := QueryTraceSnapshot{
		QueriedEntityIDs:   []string{"b", "a", "c"},
		QueriedEntityTypes: []string{"Policy", "Role"},
		ToolCalls:          1,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

type recorder struct{ events []TraceEvent }

func (r *recorder) Record(e TraceEvent) { r.events = append(r.events, e) }

func TestMultiTracer(t *testing.T) {
	r := &recorder{}
	tr := NewQueryTrace()
	RecordQueriedEntityIDs(MultiTracer{nil, r, tr}, "x")
	if len(r.events) != 1 {
		t.Errorf("recorder got %d events, want 1", len(r.events))
	}
	if got := tr.Snapshot().QueriedEntityIDs; !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("QueriedEntityIDs = %v, want [x]", got)
	}
}

func TestNilTracer(t *testing.T) {
	var tr *QueryTrace
	tr.Record(TraceEvent{Kind: TraceEventQueriedEntityIDs, EntityIDs: []string{"x"}})
	if got := tr.Snapshot(); !reflect.DeepEqual(got, QueryTraceSnapshot{}) {
		t.Errorf("Snapshot() on nil = %+v, want zero", got)
	}
}
