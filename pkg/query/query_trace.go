package query

import (
	"slices"
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventQueriedEntityIDs   TraceEventKind = "queried_entity_ids"
	TraceEventQueriedEntityTypes TraceEventKind = "queried_entity_types"

	TraceEventToolCall TraceEventKind = "tool_call"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	EntityIDs   []string
	EntityTypes []string

	ToolName      string
	ToolArguments string
	DurationMs    int64
	Error         string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom post-processing
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordQueriedEntityIDs(t Tracer, ids ...string) {
	if t == nil || len(ids) == 0 {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventQueriedEntityIDs, EntityIDs: ids})
}

func RecordQueriedEntityTypes(t Tracer, types ...string) {
	if t == nil || len(types) == 0 {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventQueriedEntityTypes, EntityTypes: types})
}

func RecordToolCall(t Tracer, name, args string, durationMs int64, err error) {
	if t == nil {
		return
	}
	ev := TraceEvent{Kind: TraceEventToolCall, ToolName: name, ToolArguments: args, DurationMs: durationMs}
	if err != nil {
		ev.Error = err.Error()
	}
	t.Record(ev)
}

// QueryTrace collects the entities and type filters a question touched.
// Entity IDs keep the order in which they were first seen.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	seenEntityIDs            map[string]struct{}
	queriedEntityIDs         []string
	queriedEntityTypeFilters map[string]struct{}
	toolCalls                int
}

type QueryTraceSnapshot struct {
	QueriedEntityIDs   []string
	QueriedEntityTypes []string
	ToolCalls          int
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		seenEntityIDs:            make(map[string]struct{}),
		queriedEntityTypeFilters: make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventQueriedEntityIDs:
		for _, id := range event.EntityIDs {
			if id == "" {
				continue
			}
			if _, ok := t.seenEntityIDs[id]; ok {
				continue
			}
			t.seenEntityIDs[id] = struct{}{}
			t.queriedEntityIDs = append(t.queriedEntityIDs, id)
		}
	case TraceEventQueriedEntityTypes:
		for _, typ := range event.EntityTypes {
			if typ == "" {
				continue
			}
			t.queriedEntityTypeFilters[typ] = struct{}{}
		}
	case TraceEventToolCall:
		t.toolCalls++
	default:
		return
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := QueryTraceSnapshot{
		QueriedEntityIDs:   slices.Clone(t.queriedEntityIDs),
		QueriedEntityTypes: make([]string, 0, len(t.queriedEntityTypeFilters)),
		ToolCalls:          t.toolCalls,
	}
	if s.QueriedEntityIDs == nil {
		s.QueriedEntityIDs = []string{}
	}
	for typ := range t.queriedEntityTypeFilters {
		s.QueriedEntityTypes = append(s.QueriedEntityTypes, typ)
	}
	sort.Strings(s.QueriedEntityTypes)

	return s
}
